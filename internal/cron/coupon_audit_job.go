package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/angelmondragon/bundleworks-backend/pkg/db/models"
	"github.com/angelmondragon/bundleworks-backend/pkg/logger"
)

const defaultCouponMaxAge = 7 * 24 * time.Hour

type bundleLister interface {
	List(ctx context.Context) ([]models.Bundle, error)
}

// CouponAuditJob flags single-use discount codes that have been active longer
// than the configured age. Codes are minted on demand, so a long-lived active
// code usually means a shopper abandoned the flow and the coupon was never
// consumed.
type CouponAuditJob struct {
	repo   bundleLister
	logg   *logger.Logger
	maxAge time.Duration
	now    func() time.Time
}

// NewCouponAuditJob builds the audit job.
func NewCouponAuditJob(repo bundleLister, logg *logger.Logger, maxAge time.Duration) (*CouponAuditJob, error) {
	if repo == nil {
		return nil, errors.New("bundle repository required")
	}
	if logg == nil {
		return nil, errors.New("logger required")
	}
	if maxAge <= 0 {
		maxAge = defaultCouponMaxAge
	}
	return &CouponAuditJob{repo: repo, logg: logg, maxAge: maxAge, now: time.Now}, nil
}

// Name implements Job.
func (j *CouponAuditJob) Name() string { return "coupon_audit" }

// Run implements Job.
func (j *CouponAuditJob) Run(ctx context.Context) error {
	list, err := j.repo.List(ctx)
	if err != nil {
		return fmt.Errorf("loading bundles: %w", err)
	}

	cutoff := j.now().Add(-j.maxAge)
	stale := 0
	for _, bundle := range list {
		for i, rule := range bundle.Rules {
			if !rule.Issued() || rule.CreatedAt == nil {
				continue
			}
			if rule.CreatedAt.After(cutoff) {
				continue
			}
			stale++
			j.logg.Warn(j.logg.WithFields(ctx, map[string]any{
				"bundle":     bundle.Name,
				"bundle_id":  bundle.ID.String(),
				"rule_index": i,
				"tier":       rule.Tier,
				"issued_at":  rule.CreatedAt.Format(time.RFC3339),
			}), "active discount code exceeded audit age")
		}
	}

	if stale == 0 {
		j.logg.Info(ctx, "no stale discount codes found")
		return nil
	}
	j.logg.Info(j.logg.WithField(ctx, "stale_codes", stale), "coupon audit complete")
	return nil
}
