package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Pipeline labels.
const (
	PipelineApprovals = "approvals"
	PipelineDust      = "dust"
	PipelineProtocols = "protocols"
)

// Result labels.
const (
	ResultOK      = "ok"
	ResultPartial = "partial"
	ResultError   = "error"
)

// Metrics holds the collectors exported at /metrics.
// All methods are safe on a nil receiver so components can run without metrics.
type Metrics struct {
	registry *prometheus.Registry

	Scans            *prometheus.CounterVec
	ProviderFailures *prometheus.CounterVec
	BreakerTrips     *prometheus.CounterVec
	DecodeFailures   *prometheus.CounterVec
	Submissions      *prometheus.CounterVec
	ScanDuration     *prometheus.HistogramVec
	RateLimitWaits   *prometheus.HistogramVec
}

// New creates the collectors and registers them on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		Scans: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rektrescue_scans_total",
			Help: "Total number of completed scans per pipeline and outcome",
		}, []string{"pipeline", "result"}),
		ProviderFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rektrescue_provider_failures_total",
			Help: "Total number of failed calls per RPC endpoint",
		}, []string{"endpoint"}),
		BreakerTrips: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rektrescue_breaker_trips_total",
			Help: "Total number of times the circuit breaker opened per RPC endpoint",
		}, []string{"endpoint"}),
		DecodeFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rektrescue_decode_failures_total",
			Help: "Total number of logs skipped because they did not match the queried layout",
		}, []string{"signature"}),
		Submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rektrescue_submissions_total",
			Help: "Total number of submitted actions per kind and outcome",
		}, []string{"kind", "result"}),
		ScanDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "rektrescue_scan_duration_seconds",
			Help:    "Time taken by one scan in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"pipeline"}),
		RateLimitWaits: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "rektrescue_rate_limit_wait_seconds",
			Help:    "Time calls spent waiting on an endpoint's rate limiter or throttling pause",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}, []string{"endpoint"}),
	}

	m.registry.MustRegister(
		m.Scans,
		m.ProviderFailures,
		m.BreakerTrips,
		m.DecodeFailures,
		m.Submissions,
		m.ScanDuration,
		m.RateLimitWaits,
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry (tests gather from it).
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) ObserveScan(pipeline, result string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.Scans.WithLabelValues(pipeline, result).Inc()
	m.ScanDuration.WithLabelValues(pipeline).Observe(elapsed.Seconds())
}

func (m *Metrics) ProviderFailure(endpoint string) {
	if m == nil {
		return
	}
	m.ProviderFailures.WithLabelValues(endpoint).Inc()
}

func (m *Metrics) BreakerTrip(endpoint string) {
	if m == nil {
		return
	}
	m.BreakerTrips.WithLabelValues(endpoint).Inc()
}

func (m *Metrics) DecodeFailure(signature string) {
	if m == nil {
		return
	}
	m.DecodeFailures.WithLabelValues(signature).Inc()
}

func (m *Metrics) Submission(kind, result string) {
	if m == nil {
		return
	}
	m.Submissions.WithLabelValues(kind, result).Inc()
}

func (m *Metrics) RateLimitWait(endpoint string, waited time.Duration) {
	if m == nil {
		return
	}
	m.RateLimitWaits.WithLabelValues(endpoint).Observe(waited.Seconds())
}
