package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// DiscountMetrics records discount lifecycle and sync outcomes.
type DiscountMetrics struct {
	issued        *prometheus.CounterVec
	revoked       *prometheus.CounterVec
	remoteFailure *prometheus.CounterVec
	syncSuccess   prometheus.Counter
	syncFailure   prometheus.Counter
	webhookMatch  *prometheus.CounterVec
}

// NewDiscountMetrics registers the discount metrics on the provided registerer.
func NewDiscountMetrics(reg prometheus.Registerer) *DiscountMetrics {
	if reg == nil {
		return &DiscountMetrics{}
	}
	issued := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "discount_codes_issued",
		Help: "Discount codes created for bundle tiers.",
	}, []string{"tier"})
	revoked := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "discount_codes_revoked",
		Help: "Discount codes revoked from bundle tiers.",
	}, []string{"tier"})
	remoteFailure := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "shopify_remote_failures",
		Help: "Failed Shopify Admin API calls by operation.",
	}, []string{"operation"})
	syncSuccess := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "metafield_sync_success",
		Help: "Successful storefront metafield snapshot writes.",
	})
	syncFailure := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "metafield_sync_failure",
		Help: "Failed storefront metafield snapshot writes.",
	})
	webhookMatch := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cart_webhook_matches",
		Help: "Cart-update webhook evaluations by outcome.",
	}, []string{"outcome"})
	reg.MustRegister(issued, revoked, remoteFailure, syncSuccess, syncFailure, webhookMatch)
	return &DiscountMetrics{
		issued:        issued,
		revoked:       revoked,
		remoteFailure: remoteFailure,
		syncSuccess:   syncSuccess,
		syncFailure:   syncFailure,
		webhookMatch:  webhookMatch,
	}
}

// IncIssued increments the issued counter for the named tier.
func (m *DiscountMetrics) IncIssued(tier string) {
	if m == nil || m.issued == nil {
		return
	}
	m.issued.WithLabelValues(normalizeLabel(tier)).Inc()
}

// IncRevoked increments the revoked counter for the named tier.
func (m *DiscountMetrics) IncRevoked(tier string) {
	if m == nil || m.revoked == nil {
		return
	}
	m.revoked.WithLabelValues(normalizeLabel(tier)).Inc()
}

// IncRemoteFailure increments the remote-failure counter for an operation.
func (m *DiscountMetrics) IncRemoteFailure(operation string) {
	if m == nil || m.remoteFailure == nil {
		return
	}
	m.remoteFailure.WithLabelValues(normalizeLabel(operation)).Inc()
}

// IncSyncSuccess increments the metafield sync success counter.
func (m *DiscountMetrics) IncSyncSuccess() {
	if m == nil || m.syncSuccess == nil {
		return
	}
	m.syncSuccess.Inc()
}

// IncSyncFailure increments the metafield sync failure counter.
func (m *DiscountMetrics) IncSyncFailure() {
	if m == nil || m.syncFailure == nil {
		return
	}
	m.syncFailure.Inc()
}

// IncWebhookMatch increments the webhook evaluation counter for an outcome.
func (m *DiscountMetrics) IncWebhookMatch(outcome string) {
	if m == nil || m.webhookMatch == nil {
		return
	}
	m.webhookMatch.WithLabelValues(normalizeLabel(outcome)).Inc()
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
