// Package session threads the fit → estimate → shift → adjust workflow
// through an explicit value.
//
// A Session holds everything a caller has produced so far. Every operation
// takes a Session and returns a new one; on error the returned Session is the
// receiver, unchanged. Because sessions are values, a caller can keep the
// session from the start of an interaction (for example a drag) and replay
// adjustments from it as often as needed.
//
// The candidate ranking is the one mutable piece: selections made through
// Session.Ranking are shared by every copy derived from the same fit.
package session

import (
	"errors"
	"fmt"
	"math"

	"github.com/HatiCode/mastercurve/pkg/ranking"
	"github.com/HatiCode/mastercurve/pkg/shift"
	"github.com/HatiCode/mastercurve/pkg/wlf"
)

// ErrNotFitted is returned by operations that need a fit first.
var ErrNotFitted = errors.New("no fit has been run")

// ErrNoTable is returned by Shift when no shift-factor table has been
// estimated or loaded.
var ErrNoTable = errors.New("no shift-factor table")

// ErrNotShifted is returned by adjustments made before Shift.
var ErrNotShifted = errors.New("no shifted data")

// Options configures the estimators used by a Session.
type Options struct {
	Grid   wlf.Grid
	Guess  wlf.Guess
	Refine wlf.RefineSettings
	Axis   shift.Axis
}

// DefaultOptions are the settings used by New.
var DefaultOptions = Options{
	Grid:   wlf.DefaultGrid,
	Guess:  wlf.DefaultGuess,
	Refine: wlf.DefaultRefineSettings,
	Axis:   shift.DefaultAxis,
}

// Session is the state of one interactive workflow.
type Session struct {
	Options Options

	// Samples are the observations of the last successful fit.
	Samples []wlf.Sample
	// Params are the current model parameters. Before any fit they are the
	// default guess at the default reference temperature.
	Params wlf.Params
	// Refined is the local refinement result of the last fit.
	Refined *wlf.Refined
	// Ranking holds the grid candidates of the last fit.
	Ranking *ranking.Store

	// Table is the current shift-factor table.
	Table *shift.Table
	// Source names the parameters Table was estimated from.
	Source wlf.Params

	Raw     []shift.Series
	Shifted []shift.ShiftedSeries
}

// New returns an empty session anchored at refTempC.
func New(refTempC float64, opts Options) Session {
	return Session{
		Options: opts,
		Params:  wlf.Params{C1: opts.Guess.C1, C2: opts.Guess.C2, RefTempC: refTempC},
	}
}

// Fitted reports whether a fit has completed.
func (s Session) Fitted() bool {
	return s.Ranking != nil
}

// Fit refines from the default guess and then runs the grid search over
// samples at refTempC. A failed refinement aborts the fit. On success the
// best grid candidate becomes the current parameters and the refined pair is
// kept alongside for comparison.
func (s Session) Fit(samples []wlf.Sample, refTempC float64) (Session, error) {
	if err := wlf.ValidateSamples(samples); err != nil {
		return s, err
	}
	if math.IsNaN(refTempC) || math.IsInf(refTempC, 0) {
		return s, &wlf.ValidationError{Field: "reference temperature", Reason: "must be finite"}
	}

	tempsK, logs := wlf.Observations(samples)
	tr := wlf.Kelvin(refTempC)

	refined, err := wlf.Refine(tempsK, logs, tr, s.Options.Guess, s.Options.Refine)
	if err != nil {
		return s, err
	}

	res, err := wlf.GridSearch(tempsK, logs, tr, s.Options.Grid)
	if err != nil {
		return s, err
	}

	next := s
	next.Samples = append([]wlf.Sample(nil), samples...)
	next.Refined = &refined
	next.Ranking = ranking.New(res.Candidates)
	next.Params = res.Best().Params(refTempC)
	return next, nil
}

// EstimateSource returns the parameters Estimate would use: the first
// selected candidate in the current view order, otherwise the current
// parameters.
func (s Session) EstimateSource() wlf.Params {
	if s.Ranking != nil {
		if sel := s.Ranking.Selected(); len(sel) > 0 {
			return sel[0].Params(s.Params.RefTempC)
		}
	}
	return s.Params
}

// Estimate builds the shift-factor table for a new reference temperature
// from EstimateSource over the session axis.
func (s Session) Estimate(newRefC float64) (Session, error) {
	src := s.EstimateSource()
	table, err := shift.BuildTable(src, newRefC, s.Options.Axis)
	if err != nil {
		return s, err
	}
	next := s
	next.Table = &table
	next.Source = src
	return next, nil
}

// WithTable installs a table produced elsewhere, e.g. read from an export.
func (s Session) WithTable(t shift.Table) Session {
	s.Table = &t
	return s
}

// Shift applies the current table to raw. Series that could not be matched
// are reported as joined *wlf.LookupError values; the returned session holds
// the series that did shift. Validation errors leave the session unchanged.
func (s Session) Shift(raw []shift.Series) (Session, error) {
	if s.Table == nil {
		return s, ErrNoTable
	}
	out, err := shift.Apply(raw, *s.Table)
	if err != nil && !wlf.IsLookup(err) {
		return s, err
	}
	next := s
	next.Raw = raw
	next.Shifted = out
	return next, err
}

func (s Session) series(tempC float64) (shift.ShiftedSeries, error) {
	if len(s.Shifted) == 0 {
		return shift.ShiftedSeries{}, ErrNotShifted
	}
	i, ok := shift.Find(s.Shifted, tempC)
	if !ok {
		return shift.ShiftedSeries{}, &wlf.ValidationError{
			Field:  "temperature",
			Reason: fmt.Sprintf("no shifted series at %g°C", tempC),
		}
	}
	return s.Shifted[i], nil
}

func (s Session) replace(ss shift.ShiftedSeries) Session {
	s.Shifted, _ = shift.Replace(s.Shifted, ss)
	return s
}

// Rescale multiplies the responses of the series at tempC by factor.
func (s Session) Rescale(tempC, factor float64) (Session, error) {
	base, err := s.series(tempC)
	if err != nil {
		return s, err
	}
	out, err := shift.Rescale(base, factor)
	if err != nil {
		return s, err
	}
	return s.replace(out), nil
}

// Drag rescales the series at tempC by the factor of a dy pixel drag.
func (s Session) Drag(tempC, dy float64) (Session, error) {
	return s.Rescale(tempC, shift.DragFactor(dy))
}

// Adjust scales the frequencies and responses of the series at tempC.
func (s Session) Adjust(tempC, freqFactor, respFactor float64) (Session, error) {
	base, err := s.series(tempC)
	if err != nil {
		return s, err
	}
	out, err := shift.Adjust(base, freqFactor, respFactor)
	if err != nil {
		return s, err
	}
	return s.replace(out), nil
}

// Nudge moves one response point of the series at tempC by ±10%.
func (s Session) Nudge(tempC float64, index int, up bool) (Session, error) {
	base, err := s.series(tempC)
	if err != nil {
		return s, err
	}
	out, err := shift.Nudge(base, index, up)
	if err != nil {
		return s, err
	}
	return s.replace(out), nil
}

// Smooth replaces all shifted responses with their log-log polynomial fit.
func (s Session) Smooth(degree int) (Session, error) {
	if len(s.Shifted) == 0 {
		return s, ErrNotShifted
	}
	out, err := shift.Smooth(s.Shifted, degree)
	if err != nil {
		return s, err
	}
	next := s
	next.Shifted = out
	return next, nil
}

// Overlay is one model curve to draw against the samples.
type Overlay struct {
	Params      wlf.Params       `json:"params"`
	Recommended bool             `json:"recommended"`
	Points      []wlf.CurvePoint `json:"points"`
}

// Overlays evaluates the best candidate and every selected candidate over
// axisC. The best candidate comes first and is not repeated if selected.
func (s Session) Overlays(axisC []float64) ([]Overlay, error) {
	if s.Ranking == nil {
		return nil, ErrNotFitted
	}
	ref := s.Params.RefTempC
	var out []Overlay
	best, ok := s.Ranking.Best()
	if ok {
		out = append(out, Overlay{Params: best.Params(ref), Recommended: true, Points: wlf.Curve(best.Params(ref), axisC)})
	}
	for _, c := range s.Ranking.Selected() {
		if ok && c.ID == best.ID {
			continue
		}
		out = append(out, Overlay{Params: c.Params(ref), Points: wlf.Curve(c.Params(ref), axisC)})
	}
	return out, nil
}
