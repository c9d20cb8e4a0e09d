package accesskit

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the prometheus collectors updated by the service.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	decisions     *prometheus.CounterVec
	logins        *prometheus.CounterVec
	resolves      *prometheus.CounterVec
	cacheLookups  *prometheus.CounterVec
	txDuration    *prometheus.HistogramVec
	sweptSessions prometheus.Counter
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "accesskit_decisions_total",
			Help: "Permission decisions by resource, operation and outcome.",
		}, []string{"resource", "operation", "decision"}),
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "accesskit_logins_total",
			Help: "Login attempts by outcome.",
		}, []string{"outcome"}),
		resolves: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "accesskit_session_resolves_total",
			Help: "Bearer token resolutions by outcome.",
		}, []string{"outcome"}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "accesskit_rule_cache_lookups_total",
			Help: "Rule cache lookups by result.",
		}, []string{"result"}),
		txDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "accesskit_store_transaction_duration_seconds",
			Help:    "Store transaction duration by outcome.",
			Buckets: prometheus.DefBuckets,
		}, []string{"outcome"}),
		sweptSessions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "accesskit_sessions_swept_total",
			Help: "Expired sessions removed by the sweeper.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.decisions, m.logins, m.resolves, m.cacheLookups, m.txDuration, m.sweptSessions)
	}
	return m
}

func (m *Metrics) observeDecision(resource string, op Operation, d Decision) {
	if m == nil {
		return
	}
	m.decisions.WithLabelValues(resource, op.String(), d.String()).Inc()
}

func (m *Metrics) observeLogin(ok bool) {
	if m == nil {
		return
	}
	m.logins.WithLabelValues(outcome(ok)).Inc()
}

func (m *Metrics) observeResolve(ok bool) {
	if m == nil {
		return
	}
	m.resolves.WithLabelValues(outcome(ok)).Inc()
}

func (m *Metrics) observeCache(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(result).Inc()
}

func (m *Metrics) observeTransaction(d time.Duration, ok bool) {
	if m == nil {
		return
	}
	m.txDuration.WithLabelValues(outcome(ok)).Observe(d.Seconds())
}

func (m *Metrics) observeSweep(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.sweptSessions.Add(float64(n))
}

func outcome(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}
