package shift

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/HatiCode/mastercurve/pkg/wlf"
)

// NudgeStep is the relative change applied by a single Nudge.
const NudgeStep = 0.1

// DragFactor converts a vertical drag of dy pixels into a multiplicative
// factor. Dragging up by 100 pixels scales by 10, down by 100 by 0.1.
func DragFactor(dy float64) float64 {
	return math.Pow(10, dy/100)
}

func checkFactor(name string, f float64) error {
	if math.IsNaN(f) || math.IsInf(f, 0) || f <= 0 {
		return &wlf.ValidationError{Field: name, Reason: fmt.Sprintf("must be positive and finite, got %g", f)}
	}
	return nil
}

// Rescale multiplies every response value of base by factor. Frequencies are
// left unchanged and base is not modified.
func Rescale(base ShiftedSeries, factor float64) (ShiftedSeries, error) {
	if err := checkFactor("factor", factor); err != nil {
		return ShiftedSeries{}, err
	}
	out := base.Clone()
	floats.Scale(factor, out.Response)
	return out, nil
}

// Adjust scales the frequencies of base by freqFactor and its responses by
// respFactor. The applied a_T is updated to reflect the extra horizontal
// shift.
func Adjust(base ShiftedSeries, freqFactor, respFactor float64) (ShiftedSeries, error) {
	if err := checkFactor("frequency factor", freqFactor); err != nil {
		return ShiftedSeries{}, err
	}
	if err := checkFactor("response factor", respFactor); err != nil {
		return ShiftedSeries{}, err
	}
	out := base.Clone()
	floats.Scale(freqFactor, out.Frequency)
	floats.Scale(respFactor, out.Response)
	out.Shift *= freqFactor
	return out, nil
}

// Nudge moves a single response point of base up or down by NudgeStep.
func Nudge(base ShiftedSeries, index int, up bool) (ShiftedSeries, error) {
	if index < 0 || index >= len(base.Response) {
		return ShiftedSeries{}, &wlf.ValidationError{
			Field:  "index",
			Reason: fmt.Sprintf("%d out of range [0, %d)", index, len(base.Response)),
		}
	}
	out := base.Clone()
	if up {
		out.Response[index] *= 1 + NudgeStep
	} else {
		out.Response[index] *= 1 - NudgeStep
	}
	return out, nil
}
