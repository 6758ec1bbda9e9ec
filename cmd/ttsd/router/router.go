// Package router configures the HTTP API of ttsd.
//
// Routes configured:
//   - GET  /healthz                      - Health check endpoint
//   - GET  /readyz                       - Readiness, pinging the snapshot store when it supports it
//   - GET  /metrics                      - Prometheus metrics endpoint
//   - POST /v1/evaluate                  - Evaluate the WLF model over temperatures
//   - POST /v1/fit                       - Refine and grid-search C1/C2 for samples
//   - POST /v1/estimate                  - Build a shift-factor table, optionally stored under a session
//   - GET  /v1/estimate/{session}        - Latest stored table (?format=csv for the export shape)
//   - POST /v1/shift                     - Shift measurements by a stored or inline table
//     (?format=csv for the flattened master curve)
//   - POST /v1/adjust                    - Rescale, drag, adjust, nudge or smooth shifted series
//   - POST /v1/export/fits               - One Fit_C1_<c1>_C2_<c2> table per candidate on the export axis
//
// Every endpoint is stateless apart from the snapshot store: the estimate
// step stores its table under a session name and the shift step reads it
// back.
package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/HatiCode/mastercurve/cmd/ttsd/metrics"
	"github.com/HatiCode/mastercurve/pkg/adapters"
	"github.com/HatiCode/mastercurve/pkg/httpx"
	"github.com/HatiCode/mastercurve/pkg/session"
	"github.com/HatiCode/mastercurve/pkg/shift"
	"github.com/HatiCode/mastercurve/pkg/storage"
	"github.com/HatiCode/mastercurve/pkg/tabular"
	"github.com/HatiCode/mastercurve/pkg/wlf"
)

// storeTimeout bounds every snapshot store call made by a handler.
const storeTimeout = 2 * time.Second

// Options carries the non-storage dependencies of the routes.
type Options struct {
	// Session configures the estimators and the estimate axis.
	Session session.Options
	// ExportAxis is the axis of /v1/export/fits tables.
	ExportAxis shift.Axis
	// ReferenceTemp is used by /v1/fit when a request names none.
	ReferenceTemp float64
	// Adapter loads measurements for /v1/shift requests without series.
	// May be nil.
	Adapter adapters.Adapter
	// Gatherer backs /metrics. Defaults to prometheus.DefaultGatherer.
	Gatherer prometheus.Gatherer
}

type api struct {
	store   storage.Store
	opts    Options
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// SetupRoutes configures HTTP endpoints for ttsd.
func SetupRoutes(store storage.Store, opts Options, m *metrics.Metrics, logger *slog.Logger) *http.ServeMux {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.ExportAxis == (shift.Axis{}) {
		opts.ExportAxis = shift.ExportAxis
	}
	if opts.Gatherer == nil {
		opts.Gatherer = prometheus.DefaultGatherer
	}
	a := &api{store: store, opts: opts, metrics: m, logger: logger}

	mux := http.NewServeMux()

	mux.Handle("GET /healthz", httpx.HealthHandler())
	mux.Handle("GET /readyz", httpx.HealthHandlerWithCheck(a.ready))
	mux.Handle("GET /metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{}))

	mux.HandleFunc("POST /v1/evaluate", a.handleEvaluate)
	mux.HandleFunc("POST /v1/fit", a.handleFit)
	mux.HandleFunc("POST /v1/estimate", a.handleEstimate)
	mux.HandleFunc("GET /v1/estimate/{session}", a.handleGetEstimate)
	mux.HandleFunc("POST /v1/shift", a.handleShift)
	mux.HandleFunc("POST /v1/adjust", a.handleAdjust)
	mux.HandleFunc("POST /v1/export/fits", a.handleExportFits)

	return mux
}

// statusFor maps an error kind to an HTTP status and a metrics reason.
func statusFor(err error) (int, string) {
	var de *httpx.DecodeError
	switch {
	case errors.As(err, &de):
		return http.StatusBadRequest, "bad_request"
	case wlf.IsValidation(err):
		return http.StatusBadRequest, "validation"
	case errors.Is(err, wlf.ErrNoFiniteCandidates):
		return http.StatusUnprocessableEntity, "no_finite_candidates"
	case wlf.IsFit(err):
		return http.StatusUnprocessableEntity, "fit"
	case errors.Is(err, session.ErrNoTable), errors.Is(err, session.ErrNotFitted):
		return http.StatusBadRequest, "precondition"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

// fail writes err with its mapped status. Internal errors are logged and
// replaced by a generic message.
func (a *api) fail(w http.ResponseWriter, component string, err error) {
	status, reason := statusFor(err)
	a.metrics.RecordError(component, reason)
	if status == http.StatusInternalServerError {
		a.logger.Error("request failed", "component", component, "error", err)
		httpx.WriteErrorMessage(w, status, "internal server error")
		return
	}
	a.logger.Debug("request rejected", "component", component, "status", status, "error", err)
	httpx.WriteError(w, status, err)
}

func (a *api) writeJSON(w http.ResponseWriter, v any) {
	if err := httpx.WriteJSON(w, http.StatusOK, v); err != nil {
		a.logger.Error("failed to write JSON response", "error", err)
	}
}

func (a *api) handleGetEstimate(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("session")
	if err := storage.ValidateName(name); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, err)
		return
	}

	snapshot, found, err := a.load(r.Context(), name)
	if err != nil {
		a.logger.Error("failed to get snapshot", "session", name, "error", err)
		a.metrics.RecordError("storage", "get")
		httpx.WriteErrorMessage(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if !found {
		httpx.WriteErrorMessage(w, http.StatusNotFound, fmt.Sprintf("no shift-factor table for session %q", name))
		return
	}

	if r.URL.Query().Get("format") == "csv" {
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name+".csv"))
		if err := tabular.WriteShiftTable(w, snapshot.Table); err != nil {
			a.logger.Error("failed to write CSV response", "error", err)
		}
		return
	}
	a.writeJSON(w, snapshot)
}

// pinger is implemented by stores backed by a remote service.
type pinger interface {
	Ping(ctx context.Context) error
}

// ready reports whether the snapshot store can be reached. Stores without
// a Ping method are always ready.
func (a *api) ready(ctx context.Context) error {
	p, ok := a.store.(pinger)
	if !ok {
		return nil
	}
	if err := p.Ping(ctx); err != nil {
		a.logger.Warn("snapshot store not ready", "error", err)
		return errors.New("snapshot store unavailable")
	}
	return nil
}

func (a *api) load(ctx context.Context, name string) (storage.Snapshot, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()
	return a.store.GetLatest(ctx, name)
}
