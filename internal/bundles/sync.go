package bundles

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/bundleworks-backend/pkg/config"
	"github.com/angelmondragon/bundleworks-backend/pkg/db/models"
	"github.com/angelmondragon/bundleworks-backend/pkg/logger"
	"github.com/angelmondragon/bundleworks-backend/pkg/metrics"
	"github.com/angelmondragon/bundleworks-backend/pkg/types"
)

type snapshotLister interface {
	List(ctx context.Context) ([]models.Bundle, error)
}

type metafieldWriter interface {
	ShopID(ctx context.Context) (string, error)
	SetMetafield(ctx context.Context, ownerID, namespace, key string, value any) error
}

// Snapshot is the denormalized document published for the checkout-time
// consumer. Field names are shared with the storefront, so they stay camelCase.
type Snapshot struct {
	Bundles  []SnapshotBundle `json:"bundles"`
	AppURL   string           `json:"appUrl"`
	SyncedAt time.Time        `json:"syncedAt"`
}

// SnapshotBundle is one bundle inside the published snapshot.
type SnapshotBundle struct {
	ID              uuid.UUID         `json:"id"`
	Name            string            `json:"name"`
	CollectionID    string            `json:"collectionId"`
	CollectionTitle string            `json:"collectionTitle"`
	Rules           types.BundleRules `json:"rules"`
	CreatedAt       time.Time         `json:"createdAt"`
	UpdatedAt       time.Time         `json:"updatedAt"`
}

// Syncer publishes the full bundle snapshot to the shop metafield after any
// bundle mutation. Publishing is best-effort; failures never roll back the
// mutation that triggered them.
type Syncer struct {
	repo    snapshotLister
	remote  metafieldWriter
	cfg     config.ShopifyConfig
	logg    *logger.Logger
	metrics *metrics.DiscountMetrics
}

// NewSyncer builds the metafield syncer.
func NewSyncer(repo snapshotLister, remote metafieldWriter, cfg config.ShopifyConfig, logg *logger.Logger, m *metrics.DiscountMetrics) (*Syncer, error) {
	if repo == nil {
		return nil, fmt.Errorf("bundle repository required")
	}
	if remote == nil {
		return nil, fmt.Errorf("metafield writer required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Syncer{repo: repo, remote: remote, cfg: cfg, logg: logg, metrics: m}, nil
}

// Publish overwrites the previous snapshot wholesale. The returned error is
// informational; callers treat the publish as fire-and-forget.
func (s *Syncer) Publish(ctx context.Context) error {
	err := s.publish(ctx)
	if err != nil {
		s.metrics.IncSyncFailure()
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "metafield snapshot publish failed")
		return err
	}
	s.metrics.IncSyncSuccess()
	return nil
}

func (s *Syncer) publish(ctx context.Context) error {
	list, err := s.repo.List(ctx)
	if err != nil {
		return fmt.Errorf("loading bundles for snapshot: %w", err)
	}

	snapshot := Snapshot{
		Bundles:  make([]SnapshotBundle, 0, len(list)),
		AppURL:   s.cfg.AppURL,
		SyncedAt: time.Now().UTC(),
	}
	for _, bundle := range list {
		snapshot.Bundles = append(snapshot.Bundles, SnapshotBundle{
			ID:              bundle.ID,
			Name:            bundle.Name,
			CollectionID:    bundle.CollectionID,
			CollectionTitle: bundle.CollectionTitle,
			Rules:           bundle.Rules,
			CreatedAt:       bundle.CreatedAt,
			UpdatedAt:       bundle.UpdatedAt,
		})
	}

	ownerID, err := s.remote.ShopID(ctx)
	if err != nil {
		return fmt.Errorf("resolving shop id: %w", err)
	}
	if err := s.remote.SetMetafield(ctx, ownerID, s.cfg.MetafieldNamespace, s.cfg.MetafieldKey, snapshot); err != nil {
		return fmt.Errorf("writing snapshot metafield: %w", err)
	}
	return nil
}
