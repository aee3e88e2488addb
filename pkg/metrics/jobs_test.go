package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func TestJobMetricsExportCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewJobMetrics(reg)

	m.IncSuccess("metafield_resync")
	m.IncSuccess("metafield_resync")
	m.IncFailure("coupon_audit")
	m.ObserveDuration("metafield_resync", 250*time.Millisecond)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}

	success, err := fetchCounterValue(mfs, "scheduled_job_success", "job", "metafield_resync")
	if err != nil {
		t.Fatalf("fetch success counter: %v", err)
	}
	if success != 2 {
		t.Fatalf("expected 2 successes, got %v", success)
	}

	failure, err := fetchCounterValue(mfs, "scheduled_job_failure", "job", "coupon_audit")
	if err != nil {
		t.Fatalf("fetch failure counter: %v", err)
	}
	if failure != 1 {
		t.Fatalf("expected 1 failure, got %v", failure)
	}

	if findMetricFamily(mfs, "scheduled_job_duration_seconds") == nil {
		t.Fatalf("expected duration histogram to be registered")
	}
}

func TestJobMetricsNilSafe(t *testing.T) {
	var m *JobMetrics
	m.IncSuccess("a")
	m.IncFailure("b")
	m.ObserveDuration("c", time.Second)

	empty := NewJobMetrics(nil)
	empty.IncSuccess("a")
	empty.IncFailure("b")
	empty.ObserveDuration("c", time.Second)
}
