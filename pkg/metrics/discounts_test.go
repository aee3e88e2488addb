package metrics

import (
	"fmt"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestDiscountMetricsExportCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewDiscountMetrics(reg)

	metrics.IncIssued("Gold")
	metrics.IncIssued("Gold")
	metrics.IncRevoked("Silver")
	metrics.IncRemoteFailure("discount_delete")
	metrics.IncSyncSuccess()
	metrics.IncSyncFailure()
	metrics.IncWebhookMatch("matched")

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}

	if got, err := fetchCounterValue(mfs, "discount_codes_issued", "tier", "Gold"); err != nil {
		t.Fatalf("fetch issued: %v", err)
	} else if got != 2 {
		t.Fatalf("expected issued=2, got %f", got)
	}

	if got, err := fetchCounterValue(mfs, "discount_codes_revoked", "tier", "Silver"); err != nil {
		t.Fatalf("fetch revoked: %v", err)
	} else if got != 1 {
		t.Fatalf("expected revoked=1, got %f", got)
	}

	if got, err := fetchCounterValue(mfs, "shopify_remote_failures", "operation", "discount_delete"); err != nil {
		t.Fatalf("fetch remote failures: %v", err)
	} else if got != 1 {
		t.Fatalf("expected remote failures=1, got %f", got)
	}

	if got, err := fetchCounterValue(mfs, "cart_webhook_matches", "outcome", "matched"); err != nil {
		t.Fatalf("fetch webhook matches: %v", err)
	} else if got != 1 {
		t.Fatalf("expected webhook matches=1, got %f", got)
	}
}

func TestDiscountMetricsNilSafe(t *testing.T) {
	var metrics *DiscountMetrics
	metrics.IncIssued("Gold")
	metrics.IncRevoked("Gold")
	metrics.IncRemoteFailure("op")
	metrics.IncSyncSuccess()
	metrics.IncSyncFailure()
	metrics.IncWebhookMatch("none")

	empty := NewDiscountMetrics(nil)
	empty.IncIssued("Gold")
	empty.IncSyncFailure()
}

func fetchCounterValue(mfs []*dto.MetricFamily, name, label, value string) (float64, error) {
	mf := findMetricFamily(mfs, name)
	if mf == nil {
		return 0, fmt.Errorf("metric %q not found", name)
	}
	for _, metric := range mf.GetMetric() {
		for _, pair := range metric.GetLabel() {
			if pair.GetName() == label && pair.GetValue() == value {
				return metric.GetCounter().GetValue(), nil
			}
		}
	}
	return 0, fmt.Errorf("metric %q with %s=%s not found", name, label, value)
}

func findMetricFamily(mfs []*dto.MetricFamily, name string) *dto.MetricFamily {
	for _, mf := range mfs {
		if mf.GetName() == name {
			return mf
		}
	}
	return nil
}
