// Package metrics provides Prometheus metrics for the data-access engine.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the engine's collectors. A nil *Metrics records nothing.
type Metrics struct {
	QueriesTotal          *prometheus.CounterVec
	QueryDuration         *prometheus.HistogramVec
	PageItems             *prometheus.HistogramVec
	IDCollisionsTotal     *prometheus.CounterVec
	VersionConflictsTotal *prometheus.CounterVec
	TransientRetriesTotal *prometheus.CounterVec
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		QueriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rdr_dao_queries_total",
				Help: "Total number of paginated queries",
			},
			[]string{"entity", "status"},
		),
		QueryDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "rdr_dao_query_duration_seconds",
				Help:    "Duration of paginated queries in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"entity"},
		),
		PageItems: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "rdr_dao_page_items",
				Help:    "Number of records returned per page",
				Buckets: prometheus.ExponentialBuckets(1, 4, 8),
			},
			[]string{"entity"},
		),
		IDCollisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rdr_dao_id_collisions_total",
				Help: "Random identifier draws rejected by a uniqueness constraint",
			},
			[]string{"entity"},
		),
		VersionConflictsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rdr_dao_version_conflicts_total",
				Help: "Updates rejected by the optimistic version check",
			},
			[]string{"entity"},
		),
		TransientRetriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rdr_dao_transient_retries_total",
				Help: "Operations retried after a transient storage error",
			},
			[]string{"entity", "operation"},
		),
	}
	if reg != nil {
		reg.MustRegister(
			m.QueriesTotal,
			m.QueryDuration,
			m.PageItems,
			m.IDCollisionsTotal,
			m.VersionConflictsTotal,
			m.TransientRetriesTotal,
		)
	}
	return m
}

// ObserveQuery records one paginated query.
func (m *Metrics) ObserveQuery(entity string, duration time.Duration, items int, err error) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	m.QueriesTotal.WithLabelValues(entity, status).Inc()
	m.QueryDuration.WithLabelValues(entity).Observe(duration.Seconds())
	if err == nil {
		m.PageItems.WithLabelValues(entity).Observe(float64(items))
	}
}

// IDCollision records a rejected random identifier draw.
func (m *Metrics) IDCollision(entity string) {
	if m == nil {
		return
	}
	m.IDCollisionsTotal.WithLabelValues(entity).Inc()
}

// VersionConflict records a failed optimistic version check.
func (m *Metrics) VersionConflict(entity string) {
	if m == nil {
		return
	}
	m.VersionConflictsTotal.WithLabelValues(entity).Inc()
}

// TransientRetry records a retry after a transient storage error.
func (m *Metrics) TransientRetry(entity, operation string) {
	if m == nil {
		return
	}
	m.TransientRetriesTotal.WithLabelValues(entity, operation).Inc()
}
