// Package metrics provides Prometheus instrumentation for ttsd.
//
// Metrics exposed:
//   - mastercurve_fit_seconds: Histogram of refine plus grid search duration
//   - mastercurve_grid_candidates: Gauge of ranked candidates in the last fit
//   - mastercurve_shift_seconds: Histogram of shift duration
//   - mastercurve_lookup_failures_total: Counter of temperatures without a shift factor
//   - mastercurve_errors_total: Counter of errors by component and reason
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for ttsd.
type Metrics struct {
	FitSeconds          prometheus.Histogram
	GridCandidates      prometheus.Gauge
	ShiftSeconds        prometheus.Histogram
	LookupFailuresTotal prometheus.Counter
	ErrorsTotal         *prometheus.CounterVec
}

// New creates the metrics and registers them with reg. Tests pass a fresh
// prometheus.NewRegistry(); the binary passes prometheus.DefaultRegisterer.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		FitSeconds: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "mastercurve_fit_seconds",
			Help:    "Time spent refining and grid-searching WLF constants",
			Buckets: prometheus.DefBuckets,
		}),

		GridCandidates: f.NewGauge(prometheus.GaugeOpts{
			Name: "mastercurve_grid_candidates",
			Help: "Number of grid candidates with a finite SSE in the last fit",
		}),

		ShiftSeconds: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "mastercurve_shift_seconds",
			Help:    "Time spent applying shift factors to measurements",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1, .5, 1},
		}),

		LookupFailuresTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "mastercurve_lookup_failures_total",
			Help: "Measured temperatures that had no usable shift factor",
		}),

		ErrorsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "mastercurve_errors_total",
			Help: "Total number of errors by component and reason",
		}, []string{"component", "reason"}),
	}
}

// RecordFit records a completed fit.
func (m *Metrics) RecordFit(seconds float64, candidates int) {
	m.FitSeconds.Observe(seconds)
	m.GridCandidates.Set(float64(candidates))
}

// RecordShift records a shift and the number of temperatures it could not match.
func (m *Metrics) RecordShift(seconds float64, failures int) {
	m.ShiftSeconds.Observe(seconds)
	if failures > 0 {
		m.LookupFailuresTotal.Add(float64(failures))
	}
}

// RecordError increments the error counter.
func (m *Metrics) RecordError(component, reason string) {
	m.ErrorsTotal.WithLabelValues(component, reason).Inc()
}
