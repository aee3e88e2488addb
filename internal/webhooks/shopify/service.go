package shopifywebhook

import (
	"context"
	"fmt"

	"github.com/angelmondragon/bundleworks-backend/internal/bundles"
	"github.com/angelmondragon/bundleworks-backend/pkg/db/models"
	"github.com/angelmondragon/bundleworks-backend/pkg/logger"
	"github.com/angelmondragon/bundleworks-backend/pkg/metrics"
)

type bundleLister interface {
	List(ctx context.Context) ([]models.Bundle, error)
}

// CartUpdateEvent is the slice of the carts/update webhook payload the
// matcher consumes.
type CartUpdateEvent struct {
	ID        string             `json:"id"`
	Token     string             `json:"token"`
	LineItems []bundles.LineItem `json:"line_items"`
}

// Service evaluates cart-update events against the configured bundles. The
// match result is diagnostic; the discount itself is applied downstream from
// the metafield snapshot.
type Service struct {
	repo    bundleLister
	logg    *logger.Logger
	metrics *metrics.DiscountMetrics
}

// NewService builds the cart webhook service.
func NewService(repo bundleLister, logg *logger.Logger, m *metrics.DiscountMetrics) (*Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("bundle repository required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Service{repo: repo, logg: logg, metrics: m}, nil
}

// HandleCartUpdate loads a snapshot of all bundles and reports the best
// qualifying tier for the cart, or nil when no threshold is met.
func (s *Service) HandleCartUpdate(ctx context.Context, event *CartUpdateEvent) (*bundles.Match, error) {
	if event == nil {
		return nil, fmt.Errorf("cart event required")
	}

	list, err := s.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading bundles: %w", err)
	}

	match := bundles.MatchBestTier(list, event.LineItems)
	if match == nil {
		s.metrics.IncWebhookMatch("none")
		s.logg.Debug(ctx, "cart update matched no bundle tier")
		return nil, nil
	}

	s.metrics.IncWebhookMatch("matched")
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"bundle":    match.BundleName,
		"tier":      match.Tier,
		"threshold": match.Threshold,
	}), "cart update matched bundle tier")
	return match, nil
}
