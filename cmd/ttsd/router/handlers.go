package router

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/HatiCode/mastercurve/pkg/httpx"
	"github.com/HatiCode/mastercurve/pkg/ranking"
	"github.com/HatiCode/mastercurve/pkg/session"
	"github.com/HatiCode/mastercurve/pkg/shift"
	"github.com/HatiCode/mastercurve/pkg/storage"
	"github.com/HatiCode/mastercurve/pkg/tabular"
	"github.com/HatiCode/mastercurve/pkg/wlf"
)

type evaluateRequest struct {
	Params wlf.Params `json:"params"`
	// TemperaturesC defaults to the estimate axis.
	TemperaturesC []float64 `json:"temperaturesC,omitempty"`
}

type evaluateResponse struct {
	Params wlf.Params       `json:"params"`
	Points []wlf.CurvePoint `json:"points"`
}

func (a *api) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	var req evaluateRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		a.fail(w, "evaluate", err)
		return
	}
	if err := checkParams(req.Params); err != nil {
		a.fail(w, "evaluate", err)
		return
	}

	temps := req.TemperaturesC
	if len(temps) == 0 {
		temps = a.opts.Session.Axis.TemperaturesC()
	}
	a.writeJSON(w, evaluateResponse{Params: req.Params, Points: wlf.Curve(req.Params, temps)})
}

// sampleEntries is the text form of the sample table: one string per cell,
// blank rows allowed.
type sampleEntries struct {
	Temperatures []string `json:"temperatures"`
	LogShifts    []string `json:"logShifts"`
}

type sortOrder struct {
	Column    string `json:"column"`
	Direction string `json:"direction,omitempty"`
}

type fitRequest struct {
	Samples []wlf.Sample   `json:"samples,omitempty"`
	Entries *sampleEntries `json:"entries,omitempty"`
	// RefTempC defaults to the configured reference temperature.
	RefTempC *float64   `json:"refTempC,omitempty"`
	Sort     *sortOrder `json:"sort,omitempty"`
	// Selected candidate IDs, used for overlays and the estimate source.
	Selected []int `json:"selected,omitempty"`
	// Limit caps the candidate rows returned. Zero returns all.
	Limit int `json:"limit,omitempty"`
}

type fitResponse struct {
	Params         wlf.Params        `json:"params"`
	Refined        wlf.Refined       `json:"refined"`
	EstimateSource wlf.Params        `json:"estimateSource"`
	Total          int               `json:"total"`
	Candidates     []ranking.Row     `json:"candidates"`
	Overlays       []session.Overlay `json:"overlays"`
}

func (a *api) handleFit(w http.ResponseWriter, r *http.Request) {
	var req fitRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		a.fail(w, "fit", err)
		return
	}

	samples := req.Samples
	if req.Entries != nil {
		if len(samples) > 0 {
			a.fail(w, "fit", &wlf.ValidationError{Field: "samples", Reason: "give either samples or entries, not both"})
			return
		}
		parsed, err := wlf.ParseSamples(req.Entries.Temperatures, req.Entries.LogShifts)
		if err != nil {
			a.fail(w, "fit", err)
			return
		}
		samples = parsed
	}

	ref := a.opts.ReferenceTemp
	if req.RefTempC != nil {
		ref = *req.RefTempC
	}

	start := time.Now()
	s, err := session.New(ref, a.opts.Session).Fit(samples, ref)
	if err != nil {
		a.fail(w, "fit", err)
		return
	}
	a.metrics.RecordFit(time.Since(start).Seconds(), s.Ranking.Len())

	for _, id := range req.Selected {
		if _, err := s.Ranking.Toggle(id); err != nil {
			a.fail(w, "fit", &wlf.ValidationError{Field: "selected", Reason: err.Error()})
			return
		}
	}

	rows := s.Ranking.Rows()
	if req.Sort != nil {
		col, err := ranking.ParseColumn(req.Sort.Column)
		if err != nil {
			a.fail(w, "fit", &wlf.ValidationError{Field: "sort.column", Reason: err.Error()})
			return
		}
		dir, err := parseDirection(req.Sort.Direction)
		if err != nil {
			a.fail(w, "fit", err)
			return
		}
		if rows, err = s.Ranking.Sort(col, dir); err != nil {
			a.fail(w, "fit", err)
			return
		}
	}
	if req.Limit > 0 && req.Limit < len(rows) {
		rows = rows[:req.Limit]
	}

	overlays, err := s.Overlays(a.opts.Session.Axis.TemperaturesC())
	if err != nil {
		a.fail(w, "fit", err)
		return
	}

	a.logger.Debug("fit complete", "params", s.Params.String(), "candidates", s.Ranking.Len())
	a.writeJSON(w, fitResponse{
		Params:         s.Params,
		Refined:        *s.Refined,
		EstimateSource: s.EstimateSource(),
		Total:          s.Ranking.Len(),
		Candidates:     rows,
		Overlays:       overlays,
	})
}

func parseDirection(s string) (ranking.Direction, error) {
	switch strings.ToLower(s) {
	case "", "asc", "ascending":
		return ranking.Ascending, nil
	case "desc", "descending":
		return ranking.Descending, nil
	default:
		return ranking.Ascending, &wlf.ValidationError{Field: "sort.direction", Reason: fmt.Sprintf("unknown direction %q (must be asc or desc)", s)}
	}
}

type estimateRequest struct {
	// Session stores the table for a later shift when set.
	Session string     `json:"session,omitempty"`
	Params  wlf.Params `json:"params"`
	// NewRefTempC defaults to Params.RefTempC.
	NewRefTempC *float64 `json:"newRefTempC,omitempty"`
	// Axis defaults to the configured estimate axis.
	Axis *shift.Axis `json:"axis,omitempty"`
}

func (a *api) handleEstimate(w http.ResponseWriter, r *http.Request) {
	var req estimateRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		a.fail(w, "estimate", err)
		return
	}
	if req.Session != "" {
		if err := storage.ValidateName(req.Session); err != nil {
			httpx.WriteError(w, http.StatusBadRequest, err)
			return
		}
	}
	if err := checkParams(req.Params); err != nil {
		a.fail(w, "estimate", err)
		return
	}

	opts := a.opts.Session
	if req.Axis != nil {
		opts.Axis = *req.Axis
	}
	newRef := req.Params.RefTempC
	if req.NewRefTempC != nil {
		newRef = *req.NewRefTempC
	}

	s := session.New(req.Params.RefTempC, opts)
	s.Params = req.Params
	s, err := s.Estimate(newRef)
	if err != nil {
		a.fail(w, "estimate", err)
		return
	}

	snapshot := storage.Snapshot{
		Session:     req.Session,
		GeneratedAt: time.Now().UTC(),
		Source:      s.Source,
		Table:       *s.Table,
	}
	if req.Session != "" {
		ctx, cancel := context.WithTimeout(r.Context(), storeTimeout)
		defer cancel()
		if err := a.store.Put(ctx, snapshot); err != nil {
			a.logger.Error("failed to store snapshot", "session", req.Session, "error", err)
			a.metrics.RecordError("storage", "put")
			httpx.WriteErrorMessage(w, http.StatusInternalServerError, "internal server error")
			return
		}
		a.logger.Info("stored shift-factor table", "session", req.Session, "source", s.Source.String(), "refTempC", newRef)
	}

	a.writeJSON(w, snapshot)
}

type shiftRequest struct {
	// Exactly one of Session or Table names the shift factors.
	Session string       `json:"session,omitempty"`
	Table   *shift.Table `json:"table,omitempty"`
	// Series defaults to the configured adapter.
	Series []shift.Series `json:"series,omitempty"`
	// Smooth is the log-log polynomial degree applied after shifting. Zero
	// leaves responses as measured.
	Smooth int `json:"smooth,omitempty"`
}

type lookupFailure struct {
	TempC float64 `json:"tempC"`
	Label string  `json:"label,omitempty"`
	Error string  `json:"error"`
}

type shiftResponse struct {
	Shifted  []shift.ShiftedSeries `json:"shifted"`
	Failures []lookupFailure       `json:"failures,omitempty"`
}

func (a *api) handleShift(w http.ResponseWriter, r *http.Request) {
	var req shiftRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		a.fail(w, "shift", err)
		return
	}
	if (req.Session == "") == (req.Table == nil) {
		a.fail(w, "shift", &wlf.ValidationError{Field: "table", Reason: "give exactly one of session or table"})
		return
	}
	if req.Smooth < 0 {
		a.fail(w, "shift", &wlf.ValidationError{Field: "smooth", Reason: "degree cannot be negative"})
		return
	}

	table := req.Table
	if req.Session != "" {
		if err := storage.ValidateName(req.Session); err != nil {
			httpx.WriteError(w, http.StatusBadRequest, err)
			return
		}
		snapshot, found, err := a.load(r.Context(), req.Session)
		if err != nil {
			a.logger.Error("failed to get snapshot", "session", req.Session, "error", err)
			a.metrics.RecordError("storage", "get")
			httpx.WriteErrorMessage(w, http.StatusInternalServerError, "internal server error")
			return
		}
		if !found {
			httpx.WriteErrorMessage(w, http.StatusNotFound, fmt.Sprintf("no shift-factor table for session %q", req.Session))
			return
		}
		table = &snapshot.Table
	}

	raw := req.Series
	if len(raw) == 0 {
		if a.opts.Adapter == nil {
			a.fail(w, "shift", &wlf.ValidationError{Field: "series", Reason: "no series given and no adapter configured"})
			return
		}
		loaded, err := a.opts.Adapter.Load(r.Context())
		if err != nil {
			a.logger.Warn("adapter load failed", "adapter", a.opts.Adapter.Name(), "error", err)
			a.metrics.RecordError("adapter", a.opts.Adapter.Name())
			httpx.WriteError(w, http.StatusBadGateway, fmt.Errorf("load measurements: %w", err))
			return
		}
		raw = loaded
	}

	start := time.Now()
	s, err := session.New(table.FitRefTempC, a.opts.Session).WithTable(*table).Shift(raw)
	if err != nil && !wlf.IsLookup(err) {
		a.fail(w, "shift", err)
		return
	}
	failures := shift.LookupFailures(err)
	a.metrics.RecordShift(time.Since(start).Seconds(), len(failures))

	if req.Smooth > 0 && len(s.Shifted) > 0 {
		if s, err = s.Smooth(req.Smooth); err != nil {
			a.fail(w, "shift", err)
			return
		}
	}

	if r.URL.Query().Get("format") == "csv" {
		w.Header().Set("Content-Type", "text/csv")
		if err := tabular.WriteFlattened(w, s.Shifted); err != nil {
			a.logger.Error("failed to write CSV response", "error", err)
		}
		return
	}

	resp := shiftResponse{Shifted: s.Shifted}
	if resp.Shifted == nil {
		resp.Shifted = []shift.ShiftedSeries{}
	}
	for _, f := range failures {
		resp.Failures = append(resp.Failures, lookupFailure{TempC: f.TempC, Label: f.Label, Error: f.Error()})
	}
	a.writeJSON(w, resp)
}

type adjustRequest struct {
	Shifted []shift.ShiftedSeries `json:"shifted"`
	// Op is one of rescale, drag, adjust, nudge or smooth.
	Op    string  `json:"op"`
	TempC float64 `json:"tempC"`
	// Factor is the response factor for rescale and adjust.
	Factor float64 `json:"factor,omitempty"`
	// FreqFactor scales frequencies for adjust.
	FreqFactor float64 `json:"freqFactor,omitempty"`
	// DY is the vertical drag distance in pixels for drag.
	DY     float64 `json:"dy,omitempty"`
	Index  int     `json:"index,omitempty"`
	Up     bool    `json:"up,omitempty"`
	Degree int     `json:"degree,omitempty"`
}

func (a *api) handleAdjust(w http.ResponseWriter, r *http.Request) {
	var req adjustRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		a.fail(w, "adjust", err)
		return
	}

	s := session.New(a.opts.ReferenceTemp, a.opts.Session)
	s.Shifted = req.Shifted

	var err error
	switch req.Op {
	case "rescale":
		s, err = s.Rescale(req.TempC, req.Factor)
	case "drag":
		s, err = s.Drag(req.TempC, req.DY)
	case "adjust":
		s, err = s.Adjust(req.TempC, req.FreqFactor, req.Factor)
	case "nudge":
		s, err = s.Nudge(req.TempC, req.Index, req.Up)
	case "smooth":
		degree := req.Degree
		if degree == 0 {
			degree = shift.DefaultSmoothDegree
		}
		s, err = s.Smooth(degree)
	default:
		err = &wlf.ValidationError{Field: "op", Reason: fmt.Sprintf("unknown adjustment %q", req.Op)}
	}
	if errors.Is(err, session.ErrNotShifted) {
		err = &wlf.ValidationError{Field: "shifted", Reason: "no shifted series given"}
	}
	if err != nil {
		a.fail(w, "adjust", err)
		return
	}

	a.writeJSON(w, shiftResponse{Shifted: s.Shifted})
}

type exportFitsRequest struct {
	RefTempC   float64         `json:"refTempC"`
	Candidates []wlf.Candidate `json:"candidates"`
}

type exportFitsResponse struct {
	Sheets []tabular.FitSheet `json:"sheets"`
}

func (a *api) handleExportFits(w http.ResponseWriter, r *http.Request) {
	var req exportFitsRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		a.fail(w, "export", err)
		return
	}
	if err := checkParams(wlf.Params{RefTempC: req.RefTempC}); err != nil {
		a.fail(w, "export", err)
		return
	}

	sheets, err := tabular.FitSheets(req.Candidates, req.RefTempC, a.opts.ExportAxis)
	if err != nil {
		a.fail(w, "export", err)
		return
	}
	a.writeJSON(w, exportFitsResponse{Sheets: sheets})
}

func checkParams(p wlf.Params) error {
	for _, f := range []struct {
		name string
		v    float64
	}{{"c1", p.C1}, {"c2", p.C2}, {"refTempC", p.RefTempC}} {
		if math.IsNaN(f.v) || math.IsInf(f.v, 0) {
			return &wlf.ValidationError{Field: f.name, Reason: "must be finite"}
		}
	}
	return nil
}
