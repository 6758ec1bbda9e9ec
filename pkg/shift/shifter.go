package shift

import (
	"errors"
	"fmt"
	"math"
	"slices"

	"gonum.org/v1/gonum/floats"

	"github.com/HatiCode/mastercurve/pkg/wlf"
)

// Series is one isothermal frequency sweep.
type Series struct {
	// Label is the temperature as it appeared in the source, e.g. "20°C".
	Label     string    `json:"label"`
	TempC     float64   `json:"tempC"`
	Frequency []float64 `json:"frequency"`
	Response  []float64 `json:"response"`
}

// Validate checks that the series has matching, finite columns.
func (s Series) Validate() error {
	field := s.Label
	if field == "" {
		field = fmt.Sprintf("%g°C", s.TempC)
	}
	if math.IsNaN(s.TempC) || math.IsInf(s.TempC, 0) {
		return &wlf.ValidationError{Field: field, Reason: "temperature must be finite"}
	}
	if len(s.Frequency) != len(s.Response) {
		return &wlf.ValidationError{
			Field:  field,
			Reason: fmt.Sprintf("%d frequencies but %d responses", len(s.Frequency), len(s.Response)),
		}
	}
	if i := nonFinite(s.Frequency); i >= 0 {
		return &wlf.ValidationError{Field: field, Reason: fmt.Sprintf("frequency[%d] is not finite", i)}
	}
	if i := nonFinite(s.Response); i >= 0 {
		return &wlf.ValidationError{Field: field, Reason: fmt.Sprintf("response[%d] is not finite", i)}
	}
	return nil
}

// nonFinite returns the index of the first NaN or infinite value, or -1.
func nonFinite(xs []float64) int {
	return slices.IndexFunc(xs, func(v float64) bool { return math.IsNaN(v) || math.IsInf(v, 0) })
}

// Clone returns a deep copy of s.
func (s Series) Clone() Series {
	s.Frequency = slices.Clone(s.Frequency)
	s.Response = slices.Clone(s.Response)
	return s
}

// ShiftedSeries is a series after horizontal shifting. Frequency holds the
// shifted frequencies; Response is carried over unchanged.
type ShiftedSeries struct {
	Series
	// Shift is the a_T that was applied.
	Shift float64 `json:"aT"`
	// MatchedTempC is the table temperature whose a_T was used.
	MatchedTempC float64 `json:"matchedTempC"`
}

// Clone returns a deep copy of s.
func (s ShiftedSeries) Clone() ShiftedSeries {
	s.Series = s.Series.Clone()
	return s
}

// Apply multiplies every frequency of each series by the a_T of the table row
// nearest to the series temperature.
//
// Series without a usable row are skipped and reported as *wlf.LookupError
// values joined into the returned error; the successfully shifted series are
// returned alongside in input order. A series whose shifted frequencies leave
// the float64 range is reported the same way. A nil error means every series
// shifted. Validation problems are reported before any shifting and return no series.
func Apply(raw []Series, table Table) ([]ShiftedSeries, error) {
	for _, s := range raw {
		if err := s.Validate(); err != nil {
			return nil, err
		}
	}

	out := make([]ShiftedSeries, 0, len(raw))
	var errs []error
	for _, s := range raw {
		row, ok := table.Nearest(s.TempC)
		if !ok {
			errs = append(errs, &wlf.LookupError{TempC: s.TempC, Label: s.Label})
			continue
		}

		shifted := s.Clone()
		floats.Scale(row.Shift, shifted.Frequency)
		if i := nonFinite(shifted.Frequency); i >= 0 {
			errs = append(errs, &wlf.LookupError{
				TempC:  s.TempC,
				Label:  s.Label,
				Reason: fmt.Sprintf("a_T %g overflows frequency %g", row.Shift, s.Frequency[i]),
			})
			continue
		}
		out = append(out, ShiftedSeries{
			Series:       shifted,
			Shift:        row.Shift,
			MatchedTempC: row.TempC,
		})
	}
	return out, errors.Join(errs...)
}

// LookupFailures extracts the individual lookup failures from an error
// returned by Apply.
func LookupFailures(err error) []*wlf.LookupError {
	if err == nil {
		return nil
	}
	var out []*wlf.LookupError
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		for _, e := range joined.Unwrap() {
			out = append(out, LookupFailures(e)...)
		}
		return out
	}
	var le *wlf.LookupError
	if errors.As(err, &le) {
		out = append(out, le)
	}
	return out
}

// Find returns the index of the series measured at tempC.
func Find(set []ShiftedSeries, tempC float64) (int, bool) {
	for i, s := range set {
		if s.TempC == tempC {
			return i, true
		}
	}
	return -1, false
}

// Replace returns a copy of set with the series at the same temperature as s
// swapped for s. ok is false when no such series exists.
func Replace(set []ShiftedSeries, s ShiftedSeries) ([]ShiftedSeries, bool) {
	i, ok := Find(set, s.TempC)
	if !ok {
		return set, false
	}
	out := slices.Clone(set)
	out[i] = s
	return out, true
}
