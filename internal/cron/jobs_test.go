package cron

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/bundleworks-backend/pkg/db/models"
	"github.com/angelmondragon/bundleworks-backend/pkg/logger"
	"github.com/angelmondragon/bundleworks-backend/pkg/types"
)

type stubPublisher struct {
	calls int
	err   error
}

func (s *stubPublisher) Publish(context.Context) error {
	s.calls++
	return s.err
}

type stubBundleLister struct {
	bundles []models.Bundle
	err     error
}

func (s *stubBundleLister) List(context.Context) ([]models.Bundle, error) {
	return s.bundles, s.err
}

func jobTestLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "cron-test", Level: logger.ParseLevel("debug"), Output: io.Discard})
}

func TestMetafieldResyncJobDelegatesToPublisher(t *testing.T) {
	publisher := &stubPublisher{}
	job, err := NewMetafieldResyncJob(publisher)
	require.NoError(t, err)
	assert.Equal(t, "metafield_resync", job.Name())

	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, 1, publisher.calls)

	publisher.err = errors.New("metafield write failed")
	assert.Error(t, job.Run(context.Background()))
}

func TestMetafieldResyncJobRequiresPublisher(t *testing.T) {
	_, err := NewMetafieldResyncJob(nil)
	require.Error(t, err)
}

func TestCouponAuditJobFlagsStaleCodes(t *testing.T) {
	now := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
	freshAt := now.Add(-time.Hour)
	staleAt := now.Add(-10 * 24 * time.Hour)
	code := "GOLD_TIER_000001"
	nodeID := "gid://shopify/DiscountCodeNode/1"

	lister := &stubBundleLister{bundles: []models.Bundle{{
		ID:   uuid.New(),
		Name: "Summer Pack",
		Rules: types.BundleRules{
			{Tier: "Gold", TotalProducts: 5, DiscountPercentage: 10, DiscountCode: &code, ShopifyPriceRuleID: &nodeID, IsActive: true, CreatedAt: &staleAt},
			{Tier: "Silver", TotalProducts: 3, DiscountPercentage: 5, DiscountCode: &code, ShopifyPriceRuleID: &nodeID, IsActive: true, CreatedAt: &freshAt},
			{Tier: "Bronze", TotalProducts: 2, DiscountPercentage: 2},
		},
	}}}

	job, err := NewCouponAuditJob(lister, jobTestLogger(), 7*24*time.Hour)
	require.NoError(t, err)
	job.now = func() time.Time { return now }

	assert.Equal(t, "coupon_audit", job.Name())
	require.NoError(t, job.Run(context.Background()))
}

func TestCouponAuditJobSurfacesRepoError(t *testing.T) {
	lister := &stubBundleLister{err: errors.New("db down")}
	job, err := NewCouponAuditJob(lister, jobTestLogger(), 0)
	require.NoError(t, err)
	assert.Error(t, job.Run(context.Background()))
}
