package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for verifications. All methods are safe
// to call on a nil *Metrics, which records nothing.
type Metrics struct {
	// Verification outcomes by status
	Verifications *prometheus.CounterVec

	// Triggered rules by rule id and severity
	Flags *prometheus.CounterVec

	// Platform API latency by operation
	FetchLatency *prometheus.HistogramVec

	// Platform API failures by operation and error kind
	FetchErrors *prometheus.CounterVec

	// Profile cache lookups by result (hit, miss)
	CacheLookups *prometheus.CounterVec

	// Remote denylist loads by result (ok, failed)
	RemoteLoads *prometheus.CounterVec

	// Reference data reloads by result (ok, failed)
	ReferenceReloads *prometheus.CounterVec

	// Overall verification latency including fetching
	VerifyLatency prometheus.Histogram
}

// New creates a Metrics instance registered with reg. A nil reg uses the
// default Prometheus registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Metrics{
		Verifications: f.NewCounterVec(prometheus.CounterOpts{
			Name: "vetter_verifications_total",
			Help: "Total verification outcomes by status",
		}, []string{"status"}),

		Flags: f.NewCounterVec(prometheus.CounterOpts{
			Name: "vetter_flags_total",
			Help: "Total triggered rules by rule id and severity",
		}, []string{"rule", "severity"}),

		FetchLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "vetter_fetch_duration_seconds",
			Help:    "Duration of platform API calls by operation",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"op"}), // op: "resolve", "user", "friends", "groups", "badges", "avatar"

		FetchErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "vetter_fetch_errors_total",
			Help: "Total platform API failures by operation and kind",
		}, []string{"op", "kind"}),

		CacheLookups: f.NewCounterVec(prometheus.CounterOpts{
			Name: "vetter_cache_lookups_total",
			Help: "Profile cache lookups by result",
		}, []string{"result"}),

		RemoteLoads: f.NewCounterVec(prometheus.CounterOpts{
			Name: "vetter_remote_denylist_loads_total",
			Help: "Remote denylist loads by result",
		}, []string{"result"}),

		ReferenceReloads: f.NewCounterVec(prometheus.CounterOpts{
			Name: "vetter_reference_reloads_total",
			Help: "Reference data reloads by result",
		}, []string{"result"}),

		VerifyLatency: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "vetter_verify_duration_seconds",
			Help:    "Duration of full verification including fetching",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
	}
}

// IncrementVerification records a verification outcome.
func (m *Metrics) IncrementVerification(status string) {
	if m != nil {
		m.Verifications.WithLabelValues(status).Inc()
	}
}

// IncrementFlag records one triggered rule.
func (m *Metrics) IncrementFlag(rule, severity string) {
	if m != nil {
		m.Flags.WithLabelValues(rule, severity).Inc()
	}
}

// ObserveFetch records the duration of a platform API call.
func (m *Metrics) ObserveFetch(op string, d time.Duration) {
	if m != nil {
		m.FetchLatency.WithLabelValues(op).Observe(d.Seconds())
	}
}

// IncrementFetchError records a failed platform API call.
func (m *Metrics) IncrementFetchError(op, kind string) {
	if m != nil {
		m.FetchErrors.WithLabelValues(op, kind).Inc()
	}
}

// IncrementCache records a cache hit or miss.
func (m *Metrics) IncrementCache(hit bool) {
	if m != nil {
		m.CacheLookups.WithLabelValues(result(hit, "hit", "miss")).Inc()
	}
}

// IncrementRemoteLoad records a remote denylist load.
func (m *Metrics) IncrementRemoteLoad(ok bool) {
	if m != nil {
		m.RemoteLoads.WithLabelValues(result(ok, "ok", "failed")).Inc()
	}
}

// IncrementReload records a reference data reload.
func (m *Metrics) IncrementReload(ok bool) {
	if m != nil {
		m.ReferenceReloads.WithLabelValues(result(ok, "ok", "failed")).Inc()
	}
}

// ObserveVerifyLatency records the total verification duration.
func (m *Metrics) ObserveVerifyLatency(d time.Duration) {
	if m != nil {
		m.VerifyLatency.Observe(d.Seconds())
	}
}

func result(ok bool, yes, no string) string {
	if ok {
		return yes
	}
	return no
}
