package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_Record(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObserveQuery("participant", time.Millisecond, 10, nil)
	m.ObserveQuery("participant", time.Millisecond, 0, errors.New("boom"))
	m.IDCollision("participant")
	m.IDCollision("participant")
	m.VersionConflict("participant")
	m.TransientRetry("participant", "update")

	if got := testutil.ToFloat64(m.QueriesTotal.WithLabelValues("participant", "success")); got != 1 {
		t.Errorf("successful queries = %v", got)
	}
	if got := testutil.ToFloat64(m.QueriesTotal.WithLabelValues("participant", "error")); got != 1 {
		t.Errorf("failed queries = %v", got)
	}
	if got := testutil.ToFloat64(m.IDCollisionsTotal.WithLabelValues("participant")); got != 2 {
		t.Errorf("collisions = %v", got)
	}
	if got := testutil.ToFloat64(m.VersionConflictsTotal.WithLabelValues("participant")); got != 1 {
		t.Errorf("conflicts = %v", got)
	}
	if got := testutil.ToFloat64(m.TransientRetriesTotal.WithLabelValues("participant", "update")); got != 1 {
		t.Errorf("retries = %v", got)
	}
	if n := testutil.CollectAndCount(m.PageItems); n != 1 {
		t.Errorf("page item series = %d", n)
	}
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveQuery("participant", time.Millisecond, 1, nil)
	m.IDCollision("participant")
	m.VersionConflict("participant")
	m.TransientRetry("participant", "insert")
}
