package bundles

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/bundleworks-backend/pkg/db"
	"github.com/angelmondragon/bundleworks-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/bundleworks-backend/pkg/errors"
	"github.com/angelmondragon/bundleworks-backend/pkg/logger"
	"github.com/angelmondragon/bundleworks-backend/pkg/metrics"
	"github.com/angelmondragon/bundleworks-backend/pkg/shopify"
	"github.com/angelmondragon/bundleworks-backend/pkg/types"
)

var whitespaceRe = regexp.MustCompile(`\s+`)

type bundleRepository interface {
	Create(ctx context.Context, dto CreateBundleDTO) (*models.Bundle, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.Bundle, error)
	List(ctx context.Context) ([]models.Bundle, error)
	Update(ctx context.Context, id uuid.UUID, fields map[string]any) (*models.Bundle, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

type couponService interface {
	CreateDiscountCode(ctx context.Context, params shopify.DiscountCodeParams) (string, error)
	DeleteDiscountCode(ctx context.Context, discountNodeID string) error
}

type snapshotPublisher interface {
	Publish(ctx context.Context) error
}

// Service exposes bundle and discount lifecycle operations.
type Service interface {
	GetByID(ctx context.Context, id uuid.UUID) (*BundleDTO, error)
	List(ctx context.Context) ([]BundleDTO, error)
	CreateBundle(ctx context.Context, dto CreateBundleDTO) (*BundleDTO, error)
	UpdateBundle(ctx context.Context, id uuid.UUID, input UpdateBundleInput) (*BundleDTO, error)
	DeleteBundle(ctx context.Context, id uuid.UUID) error
	IssueDiscount(ctx context.Context, id uuid.UUID, ruleIndex int) (*BundleDTO, error)
	RevokeDiscount(ctx context.Context, id uuid.UUID, ruleIndex int) (*BundleDTO, error)
}

type service struct {
	repo    bundleRepository
	coupons couponService
	sync    snapshotPublisher
	logg    *logger.Logger
	metrics *metrics.DiscountMetrics
	now     func() time.Time
}

// NewService builds a bundle service with the provided dependencies.
func NewService(repo bundleRepository, coupons couponService, sync snapshotPublisher, logg *logger.Logger, m *metrics.DiscountMetrics) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("bundle repository required")
	}
	if coupons == nil {
		return nil, fmt.Errorf("coupon service required")
	}
	if sync == nil {
		return nil, fmt.Errorf("snapshot publisher required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		repo:    repo,
		coupons: coupons,
		sync:    sync,
		logg:    logg,
		metrics: m,
		now:     time.Now,
	}, nil
}

func (s *service) GetByID(ctx context.Context, id uuid.UUID) (*BundleDTO, error) {
	bundle, err := s.loadBundle(ctx, id)
	if err != nil {
		return nil, err
	}
	return FromModel(bundle), nil
}

func (s *service) List(ctx context.Context) ([]BundleDTO, error) {
	list, err := s.repo.List(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "listing bundles")
	}
	dtos := make([]BundleDTO, 0, len(list))
	for i := range list {
		dtos = append(dtos, *FromModel(&list[i]))
	}
	return dtos, nil
}

// CreateBundle validates the name and rule array, persists the bundle with
// every rule starting without an issued coupon, and publishes a snapshot.
func (s *service) CreateBundle(ctx context.Context, dto CreateBundleDTO) (*BundleDTO, error) {
	if err := ValidateRules(dto.Rules); err != nil {
		return nil, err
	}
	if strings.TrimSpace(dto.CollectionID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "collection id is required").
			WithDetails(map[string]any{"field": "collectionId"})
	}

	existing, err := s.repo.List(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "listing bundles for name check")
	}
	if err := ValidateBundleName(dto.Name, existing, uuid.Nil); err != nil {
		return nil, err
	}

	dto.Name = strings.TrimSpace(dto.Name)
	bundle, err := s.repo.Create(ctx, dto)
	if err != nil {
		return nil, s.storeError(err, "creating bundle")
	}

	_ = s.sync.Publish(ctx)
	return FromModel(bundle), nil
}

// UpdateBundle replaces the name and/or rule array. Submitted rules inherit
// the coupon lifecycle fields of the stored rule with the same id, so editing
// a threshold or label does not implicitly revoke an issued coupon.
func (s *service) UpdateBundle(ctx context.Context, id uuid.UUID, input UpdateBundleInput) (*BundleDTO, error) {
	bundle, err := s.loadBundle(ctx, id)
	if err != nil {
		return nil, err
	}

	fields := map[string]any{}

	if input.Name != nil {
		existing, err := s.repo.List(ctx)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "listing bundles for name check")
		}
		if err := ValidateBundleName(*input.Name, existing, id); err != nil {
			return nil, err
		}
		fields["name"] = strings.TrimSpace(*input.Name)
	}

	if input.Rules != nil {
		if err := ValidateRules(*input.Rules); err != nil {
			return nil, err
		}
		fields["rules"] = mergeRules(bundle.Rules, *input.Rules)
	}

	if len(fields) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "nothing to update")
	}

	updated, err := s.repo.Update(ctx, id, fields)
	if err != nil {
		return nil, s.storeError(err, "updating bundle")
	}

	_ = s.sync.Publish(ctx)
	return FromModel(updated), nil
}

// DeleteBundle revokes every issued coupon best-effort, then removes the
// local record. Remote failures are logged and never block the local delete.
func (s *service) DeleteBundle(ctx context.Context, id uuid.UUID) error {
	bundle, err := s.loadBundle(ctx, id)
	if err != nil {
		return err
	}

	ctx = s.logg.WithBundleID(ctx, id.String())

	var remoteErrs error
	for i := range bundle.Rules {
		rule := bundle.Rules[i]
		if rule.ShopifyPriceRuleID == nil {
			continue
		}
		if err := s.coupons.DeleteDiscountCode(ctx, *rule.ShopifyPriceRuleID); err != nil {
			remoteErrs = multierr.Append(remoteErrs, err)
			s.metrics.IncRemoteFailure("discount_delete")
		}
	}
	if remoteErrs != nil {
		s.logg.Warn(s.logg.WithField(ctx, "error", remoteErrs.Error()), "remote coupon cleanup incomplete, deleting bundle anyway")
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return s.storeError(err, "deleting bundle")
	}

	_ = s.sync.Publish(ctx)
	return nil
}

// IssueDiscount creates a remote coupon for the rule at ruleIndex. Any
// lower-ranked rule still holding a live coupon is revoked first so only one
// code per bundle is redeemable below the new tier. The revocation step is
// persisted before the remote create, so a create failure leaves the revoked
// tiers durably inactive rather than silently resurrected.
func (s *service) IssueDiscount(ctx context.Context, id uuid.UUID, ruleIndex int) (*BundleDTO, error) {
	bundle, err := s.loadBundle(ctx, id)
	if err != nil {
		return nil, err
	}
	if ruleIndex < 0 || ruleIndex >= len(bundle.Rules) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "rule not found").
			WithDetails(map[string]any{"ruleIndex": ruleIndex})
	}

	ctx = s.logg.WithBundleID(ctx, id.String())

	rule := bundle.Rules[ruleIndex]
	if rule.Issued() {
		// Idempotent re-issue: the live coupon is returned without a
		// second remote call.
		return FromModel(bundle), nil
	}

	if revoked := s.revokeLowerTiers(ctx, bundle, ruleIndex); revoked {
		updated, err := s.repo.Update(ctx, id, map[string]any{
			"rules":          bundle.Rules,
			"discount_codes": bundle.DiscountCodes,
		})
		if err != nil {
			return nil, s.storeError(err, "persisting revoked lower tiers")
		}
		bundle = updated
	}

	now := s.now()
	code := codeForTier(rule.Tier, now)
	remoteID, err := s.coupons.CreateDiscountCode(ctx, shopify.DiscountCodeParams{
		Code:               code,
		Title:              fmt.Sprintf("%s Bundle Discount", rule.Tier),
		DiscountPercentage: rule.DiscountPercentage,
		CollectionID:       bundle.CollectionID,
		MinimumQuantity:    rule.TotalProducts,
		StartsAt:           now,
	})
	if err != nil {
		s.metrics.IncRemoteFailure("discount_create")
		return nil, err
	}

	bundle.Rules[ruleIndex].Activate(code, remoteID, now)
	bundle.DiscountCodes = append(bundle.DiscountCodes, types.DiscountCodeEntry{
		Code:           code,
		RuleIndex:      ruleIndex,
		DiscountNodeID: remoteID,
		Used:           false,
		CreatedAt:      now,
	})

	updated, err := s.repo.Update(ctx, id, map[string]any{
		"rules":          bundle.Rules,
		"discount_codes": bundle.DiscountCodes,
	})
	if err != nil {
		return nil, s.storeError(err, "persisting issued discount")
	}

	s.metrics.IncIssued(rule.Tier)
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{"tier": rule.Tier, "code": code}), "discount code issued")

	_ = s.sync.Publish(ctx)
	return FromModel(updated), nil
}

// RevokeDiscount deletes the remote coupon best-effort and always clears the
// rule locally. Issuance requires remote success; revocation never does.
func (s *service) RevokeDiscount(ctx context.Context, id uuid.UUID, ruleIndex int) (*BundleDTO, error) {
	bundle, err := s.loadBundle(ctx, id)
	if err != nil {
		return nil, err
	}
	if ruleIndex < 0 || ruleIndex >= len(bundle.Rules) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "rule not found").
			WithDetails(map[string]any{"ruleIndex": ruleIndex})
	}

	ctx = s.logg.WithBundleID(ctx, id.String())

	s.revokeRule(ctx, bundle, ruleIndex)

	updated, err := s.repo.Update(ctx, id, map[string]any{
		"rules":          bundle.Rules,
		"discount_codes": bundle.DiscountCodes,
	})
	if err != nil {
		return nil, s.storeError(err, "persisting revoked discount")
	}

	_ = s.sync.Publish(ctx)
	return FromModel(updated), nil
}

// revokeLowerTiers clears every live rule below newIndex. Reports whether any
// rule changed.
func (s *service) revokeLowerTiers(ctx context.Context, bundle *models.Bundle, newIndex int) bool {
	revoked := false
	for i := 0; i < newIndex; i++ {
		if !bundle.Rules[i].Issued() {
			continue
		}
		s.revokeRule(ctx, bundle, i)
		revoked = true
	}
	return revoked
}

// revokeRule performs the best-effort remote delete and the unconditional
// local transition for one rule, marking its audit entries used.
func (s *service) revokeRule(ctx context.Context, bundle *models.Bundle, index int) {
	rule := &bundle.Rules[index]
	if rule.ShopifyPriceRuleID != nil {
		if err := s.coupons.DeleteDiscountCode(ctx, *rule.ShopifyPriceRuleID); err != nil {
			s.metrics.IncRemoteFailure("discount_delete")
			s.logg.Warn(s.logg.WithFields(ctx, map[string]any{"tier": rule.Tier, "error": err.Error()}), "remote coupon delete failed, revoking locally")
		}
	}
	if rule.DiscountCode != nil {
		for i := range bundle.DiscountCodes {
			if bundle.DiscountCodes[i].Code == *rule.DiscountCode {
				bundle.DiscountCodes[i].Used = true
			}
		}
	}
	if rule.IsActive {
		s.metrics.IncRevoked(rule.Tier)
	}
	rule.Deactivate()
}

// mergeRules carries the coupon lifecycle fields of stored rules onto
// submitted rules with a matching id. Unmatched rules start without a coupon.
func mergeRules(current, submitted types.BundleRules) types.BundleRules {
	merged := make(types.BundleRules, len(submitted))
	copy(merged, submitted)
	for i := range merged {
		old, ok := current.FindByID(merged[i].ID)
		if ok && old.DiscountCode != nil {
			merged[i].DiscountCode = old.DiscountCode
			merged[i].ShopifyPriceRuleID = old.ShopifyPriceRuleID
			merged[i].IsActive = old.IsActive
			merged[i].CreatedAt = old.CreatedAt
			continue
		}
		merged[i].Deactivate()
		merged[i].CreatedAt = nil
	}
	return merged
}

// codeForTier derives the coupon text from the tier label plus a time-based
// suffix. Uniqueness is best-effort; the remote service rejects duplicates.
func codeForTier(tier string, now time.Time) string {
	normalized := whitespaceRe.ReplaceAllString(strings.ToUpper(strings.TrimSpace(tier)), "_")
	return fmt.Sprintf("%s_%06d", normalized, now.UnixMilli()%1_000_000)
}

func (s *service) loadBundle(ctx context.Context, id uuid.UUID) (*models.Bundle, error) {
	bundle, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, s.storeError(err, "loading bundle")
	}
	return bundle, nil
}

func (s *service) storeError(err error, msg string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "bundle not found")
	}
	// Concurrent creates can slip past the pre-insert name check; the unique
	// index is the backstop.
	if db.IsUniqueViolation(err, "idx_bundles_name") {
		return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "a bundle with this name already exists")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, msg)
}
