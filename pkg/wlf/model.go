// Package wlf implements the Williams-Landel-Ferry shift-factor model and the
// procedures used to estimate its parameters from measured shift factors.
//
// The model relates a temperature T to the logarithm of the horizontal shift
// factor a_T around a reference temperature T_r:
//
//	log10(a_T) = -C1·(T - T_r) / (C2 + (T - T_r))
//
// All evaluation happens in Kelvin. User-facing temperatures are Celsius and
// are converted with [Kelvin] before they reach the model.
//
// Two estimators are provided:
//   - [GridSearch]: exhaustive scoring of an integer (C1, C2) grid, ranked by SSE
//   - [Refine]: derivative-free local refinement from a seed guess
package wlf

import (
	"encoding/json"
	"fmt"
	"math"
)

// KelvinOffset is added to a Celsius temperature to obtain Kelvin.
const KelvinOffset = 273.15

// Kelvin converts a Celsius temperature to Kelvin.
func Kelvin(celsius float64) float64 {
	return celsius + KelvinOffset
}

// Celsius converts a Kelvin temperature to Celsius.
func Celsius(kelvin float64) float64 {
	return kelvin - KelvinOffset
}

// Params holds a pair of WLF constants together with the reference
// temperature they were fitted against. Params are values: every fit or
// estimate produces a new one.
type Params struct {
	C1 float64 `json:"c1"`
	C2 float64 `json:"c2"`
	// RefTempC is the reference temperature in Celsius.
	RefTempC float64 `json:"refTempC"`
}

// String formats the parameters the way fit labels are shown.
func (p Params) String() string {
	return fmt.Sprintf("C1=%g, C2=%g, Tr=%g°C", p.C1, p.C2, p.RefTempC)
}

// LogShift evaluates the model at a Celsius temperature.
func (p Params) LogShift(tempC float64) float64 {
	return Evaluate(Kelvin(tempC), p.C1, p.C2, Kelvin(p.RefTempC))
}

// WithRef returns a copy of p anchored at a different reference temperature.
func (p Params) WithRef(refTempC float64) Params {
	p.RefTempC = refTempC
	return p
}

// Evaluate returns log10(a_T) for absolute temperatures t and tr.
// When C2 + (t - tr) is exactly zero the model is singular and NaN is
// returned instead of an infinity or a panic.
func Evaluate(t, c1, c2, tr float64) float64 {
	dt := t - tr
	denom := c2 + dt
	if denom == 0 {
		return math.NaN()
	}
	return -c1 * dt / denom
}

// EvaluateAll evaluates the model element-wise. Singular points are NaN.
func EvaluateAll(ts []float64, c1, c2, tr float64) []float64 {
	out := make([]float64, len(ts))
	for i, t := range ts {
		out[i] = Evaluate(t, c1, c2, tr)
	}
	return out
}

// CurvePoint is one sample of a model curve.
type CurvePoint struct {
	TempC    float64 `json:"tempC"`
	LogShift float64 `json:"logShift"`
}

// MarshalJSON writes a singular point as a null log shift.
func (c CurvePoint) MarshalJSON() ([]byte, error) {
	var v *float64
	if !math.IsNaN(c.LogShift) && !math.IsInf(c.LogShift, 0) {
		v = &c.LogShift
	}
	return json.Marshal(struct {
		TempC    float64  `json:"tempC"`
		LogShift *float64 `json:"logShift"`
	}{c.TempC, v})
}

// Curve evaluates p over the Celsius temperatures in axis, for overlaying one
// or several fits against the measured samples.
func Curve(p Params, axisC []float64) []CurvePoint {
	tr := Kelvin(p.RefTempC)
	points := make([]CurvePoint, len(axisC))
	for i, c := range axisC {
		points[i] = CurvePoint{
			TempC:    c,
			LogShift: Evaluate(Kelvin(c), p.C1, p.C2, tr),
		}
	}
	return points
}

// FiniteRange returns the minimum and maximum finite log shift in points.
// ok is false when every point is singular.
func FiniteRange(points []CurvePoint) (lo, hi float64, ok bool) {
	lo, hi = math.Inf(1), math.Inf(-1)
	for _, p := range points {
		if math.IsNaN(p.LogShift) || math.IsInf(p.LogShift, 0) {
			continue
		}
		lo = math.Min(lo, p.LogShift)
		hi = math.Max(hi, p.LogShift)
		ok = true
	}
	return lo, hi, ok
}
