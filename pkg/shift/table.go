// Package shift builds shift-factor tables from fitted WLF parameters and
// applies them to frequency-sweep measurements to form a master curve.
//
// The pipeline is:
//
//	wlf.Params → BuildTable(axis, new reference) → Apply(raw series) → []ShiftedSeries
//
// after which the shifted series can be fine-tuned with Rescale, Adjust and
// Nudge, or smoothed with Smooth. Every operation returns new values; inputs
// are never modified.
package shift

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/HatiCode/mastercurve/pkg/wlf"
)

// Axis describes the temperatures a table is evaluated at, in Celsius.
//
// Exactly one of Points or StepC must be positive:
//   - Points: that many samples uniformly spaced in Kelvin, endpoints included
//   - StepC: Start, Start+Step, ... up to and including Stop
type Axis struct {
	StartC float64 `json:"startC"`
	StopC  float64 `json:"stopC"`
	Points int     `json:"points,omitempty"`
	StepC  float64 `json:"stepC,omitempty"`
	// RoundLabels stores row temperatures rounded to whole degrees. The
	// model is still evaluated at the exact axis point.
	RoundLabels bool `json:"roundLabels,omitempty"`
}

// DefaultAxis is the dense estimate axis: 100 points over -80..80 °C with
// whole-degree labels.
var DefaultAxis = Axis{StartC: -80, StopC: 80, Points: 100, RoundLabels: true}

// ExportAxis is the 5 °C axis used when fits are exported.
var ExportAxis = Axis{StartC: -80, StopC: 80, StepC: 5}

// Validate reports whether the axis describes at least one temperature.
func (a Axis) Validate() error {
	if math.IsNaN(a.StartC) || math.IsNaN(a.StopC) || math.IsInf(a.StartC, 0) || math.IsInf(a.StopC, 0) {
		return &wlf.ValidationError{Field: "axis", Reason: "range must be finite"}
	}
	switch {
	case a.Points > 0 && a.StepC > 0:
		return &wlf.ValidationError{Field: "axis", Reason: "set either points or step, not both"}
	case a.Points > 0:
		if a.Points > 1 && a.StopC < a.StartC {
			return &wlf.ValidationError{Field: "axis", Reason: "stop must not be below start"}
		}
	case a.StepC > 0:
		if a.StopC < a.StartC {
			return &wlf.ValidationError{Field: "axis", Reason: "stop must not be below start"}
		}
	default:
		return &wlf.ValidationError{Field: "axis", Reason: "points or step must be positive"}
	}
	return nil
}

// sample is one axis position: the Kelvin value evaluated and the Celsius
// label stored in the table.
type sample struct {
	kelvin float64
	label  float64
}

func (a Axis) samples() []sample {
	var out []sample
	if a.Points > 0 {
		startK, stopK := wlf.Kelvin(a.StartC), wlf.Kelvin(a.StopC)
		out = make([]sample, a.Points)
		step := 0.0
		if a.Points > 1 {
			step = (stopK - startK) / float64(a.Points-1)
		}
		for i := range out {
			k := startK + float64(i)*step
			if i == a.Points-1 && a.Points > 1 {
				k = stopK
			}
			out[i] = sample{kelvin: k, label: wlf.Celsius(k)}
		}
	} else {
		n := int(math.Floor((a.StopC-a.StartC)/a.StepC+1e-9)) + 1
		out = make([]sample, n)
		for i := range out {
			c := a.StartC + float64(i)*a.StepC
			out[i] = sample{kelvin: wlf.Kelvin(c), label: c}
		}
	}
	if a.RoundLabels {
		for i := range out {
			out[i].label = math.Round(out[i].label)
		}
	}
	return out
}

// TemperaturesC returns the Celsius labels of the axis.
func (a Axis) TemperaturesC() []float64 {
	s := a.samples()
	out := make([]float64, len(s))
	for i := range s {
		out[i] = s[i].label
	}
	return out
}

// Row is one temperature of a shift-factor table.
type Row struct {
	TempC    float64 `json:"tempC"`
	LogShift float64 `json:"logShift"`
	Shift    float64 `json:"aT"`
}

// Usable reports whether the row's shift factor can be applied.
func (r Row) Usable() bool {
	return !math.IsNaN(r.Shift) && !math.IsInf(r.Shift, 0)
}

// rowJSON carries undefined values as null, which encoding/json cannot do
// for NaN.
type rowJSON struct {
	TempC    float64  `json:"tempC"`
	LogShift *float64 `json:"logShift"`
	Shift    *float64 `json:"aT"`
}

func (r Row) MarshalJSON() ([]byte, error) {
	return json.Marshal(rowJSON{TempC: r.TempC, LogShift: finitePtr(r.LogShift), Shift: finitePtr(r.Shift)})
}

func (r *Row) UnmarshalJSON(data []byte) error {
	var v rowJSON
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*r = Row{TempC: v.TempC, LogShift: math.NaN(), Shift: math.NaN()}
	if v.LogShift != nil {
		r.LogShift = *v.LogShift
	}
	if v.Shift != nil {
		r.Shift = *v.Shift
	}
	return nil
}

func finitePtr(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

// NewRow derives a_T from a log shift.
func NewRow(tempC, logShift float64) Row {
	return Row{TempC: tempC, LogShift: logShift, Shift: math.Pow(10, logShift)}
}

// Table maps temperatures to shift factors at one reference temperature.
// Tables are built once and not modified afterwards.
type Table struct {
	C1 float64 `json:"c1"`
	C2 float64 `json:"c2"`
	// RefTempC is the reference temperature the rows are relative to.
	RefTempC float64 `json:"refTempC"`
	// FitRefTempC is the reference temperature C1 and C2 were fitted at.
	FitRefTempC float64 `json:"fitRefTempC"`
	Rows        []Row   `json:"rows"`
}

// BuildTable evaluates the WLF model of p over axis, anchored at newRefC.
// The axis is fixed and independent of the measured range; rows outside the
// measured range are extrapolations. Singular rows carry NaN.
func BuildTable(p wlf.Params, newRefC float64, axis Axis) (Table, error) {
	if err := axis.Validate(); err != nil {
		return Table{}, err
	}
	if math.IsNaN(newRefC) || math.IsInf(newRefC, 0) {
		return Table{}, &wlf.ValidationError{Field: "reference temperature", Reason: "must be finite"}
	}

	tr := wlf.Kelvin(newRefC)
	samples := axis.samples()
	rows := make([]Row, len(samples))
	for i, s := range samples {
		rows[i] = NewRow(s.label, wlf.Evaluate(s.kelvin, p.C1, p.C2, tr))
	}

	return Table{
		C1:          p.C1,
		C2:          p.C2,
		RefTempC:    newRefC,
		FitRefTempC: p.RefTempC,
		Rows:        rows,
	}, nil
}

// Nearest returns the usable row whose temperature is closest to tempC.
// Ties go to the row that comes first. ok is false when no row is usable.
func (t Table) Nearest(tempC float64) (Row, bool) {
	best := -1
	bestDist := math.Inf(1)
	for i, r := range t.Rows {
		if !r.Usable() {
			continue
		}
		if d := math.Abs(r.TempC - tempC); d < bestDist {
			best, bestDist = i, d
		}
	}
	if best < 0 {
		return Row{}, false
	}
	return t.Rows[best], true
}

// String summarises the table for logs.
func (t Table) String() string {
	return fmt.Sprintf("shift table C1=%g C2=%g Tr=%g°C (%d rows)", t.C1, t.C2, t.RefTempC, len(t.Rows))
}
