package bundles

import (
	"context"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/bundleworks-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/bundleworks-backend/pkg/errors"
	"github.com/angelmondragon/bundleworks-backend/pkg/logger"
	"github.com/angelmondragon/bundleworks-backend/pkg/shopify"
	"github.com/angelmondragon/bundleworks-backend/pkg/types"
)

func TestCreateBundleStartsRulesInactive(t *testing.T) {
	repo := newStubRepo()
	coupons := &stubCoupons{}
	sync := &stubSync{}
	svc := newTestService(t, repo, coupons, sync)

	code := "STALE_000001"
	dto, err := svc.CreateBundle(context.Background(), CreateBundleDTO{
		Name:            "Summer Pack",
		CollectionID:    "123",
		CollectionTitle: "Summer",
		Rules: types.BundleRules{
			{ID: "r1", Tier: "Gold", TotalProducts: 10, DiscountPercentage: 15, DiscountCode: &code, IsActive: true},
		},
	})
	if err != nil {
		t.Fatalf("create bundle: %v", err)
	}
	if dto.Rules[0].DiscountCode != nil || dto.Rules[0].IsActive || dto.Rules[0].ShopifyPriceRuleID != nil {
		t.Fatalf("submitted lifecycle fields must be stripped on create: %+v", dto.Rules[0])
	}
	if sync.publishes != 1 {
		t.Fatalf("expected one snapshot publish, got %d", sync.publishes)
	}
}

func TestCreateBundleRejectsDuplicateName(t *testing.T) {
	repo := newStubRepo()
	svc := newTestService(t, repo, &stubCoupons{}, &stubSync{})

	seedBundle(t, repo, "Summer Pack", types.BundleRules{{ID: "r1", Tier: "Gold", TotalProducts: 10, DiscountPercentage: 15}})

	_, err := svc.CreateBundle(context.Background(), CreateBundleDTO{
		Name:         " summer pack ",
		CollectionID: "123",
		Rules:        types.BundleRules{{ID: "r1", Tier: "Gold", TotalProducts: 10, DiscountPercentage: 15}},
	})
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestIssueDiscountActivatesTriple(t *testing.T) {
	repo := newStubRepo()
	coupons := &stubCoupons{}
	sync := &stubSync{}
	svc := newTestService(t, repo, coupons, sync)

	id := seedBundle(t, repo, "Summer Pack", types.BundleRules{
		{ID: "r1", Tier: "Silver", TotalProducts: 5, DiscountPercentage: 10},
		{ID: "r2", Tier: "Gold Tier", TotalProducts: 10, DiscountPercentage: 15},
	})

	dto, err := svc.IssueDiscount(context.Background(), id, 1)
	if err != nil {
		t.Fatalf("issue discount: %v", err)
	}

	rule := dto.Rules[1]
	if !rule.Issued() {
		t.Fatalf("issued rule must have the full lifecycle triple: %+v", rule)
	}
	if !strings.HasPrefix(*rule.DiscountCode, "GOLD_TIER_") {
		t.Fatalf("code must derive from the normalized tier label, got %q", *rule.DiscountCode)
	}
	if len(coupons.created) != 1 {
		t.Fatalf("expected one remote create, got %d", len(coupons.created))
	}
	params := coupons.created[0]
	if params.Title != "Gold Tier Bundle Discount" || params.MinimumQuantity != 10 || params.DiscountPercentage != 15 {
		t.Fatalf("unexpected remote params %+v", params)
	}
	if len(dto.DiscountCodes) != 1 || dto.DiscountCodes[0].RuleIndex != 1 || dto.DiscountCodes[0].Used {
		t.Fatalf("expected one unused audit entry for rule 1, got %+v", dto.DiscountCodes)
	}
	if sync.publishes != 1 {
		t.Fatalf("expected one snapshot publish, got %d", sync.publishes)
	}
}

func TestIssueDiscountIdempotentOnActiveRule(t *testing.T) {
	repo := newStubRepo()
	coupons := &stubCoupons{}
	svc := newTestService(t, repo, coupons, &stubSync{})

	id := seedBundle(t, repo, "Summer Pack", types.BundleRules{
		{ID: "r1", Tier: "Gold", TotalProducts: 10, DiscountPercentage: 15},
	})

	first, err := svc.IssueDiscount(context.Background(), id, 0)
	if err != nil {
		t.Fatalf("first issue: %v", err)
	}
	second, err := svc.IssueDiscount(context.Background(), id, 0)
	if err != nil {
		t.Fatalf("second issue: %v", err)
	}

	if *first.Rules[0].DiscountCode != *second.Rules[0].DiscountCode {
		t.Fatalf("re-issue must return the same code")
	}
	if len(coupons.created) != 1 {
		t.Fatalf("re-issue must not call the remote service again, got %d creates", len(coupons.created))
	}
}

func TestIssueDiscountRevokesLowerTiers(t *testing.T) {
	repo := newStubRepo()
	coupons := &stubCoupons{deleteErr: pkgerrors.New(pkgerrors.CodeDependency, "remote down")}
	svc := newTestService(t, repo, coupons, &stubSync{})

	id := seedBundle(t, repo, "Summer Pack", types.BundleRules{
		{ID: "r1", Tier: "Silver", TotalProducts: 5, DiscountPercentage: 10},
		{ID: "r2", Tier: "Gold", TotalProducts: 10, DiscountPercentage: 15},
	})

	if _, err := svc.IssueDiscount(context.Background(), id, 0); err != nil {
		t.Fatalf("issue silver: %v", err)
	}

	dto, err := svc.IssueDiscount(context.Background(), id, 1)
	if err != nil {
		t.Fatalf("issue gold: %v", err)
	}

	// The lower tier ends Inactive even though its remote delete failed.
	if dto.Rules[0].IsActive || dto.Rules[0].DiscountCode != nil || dto.Rules[0].ShopifyPriceRuleID != nil {
		t.Fatalf("lower tier must be fully revoked: %+v", dto.Rules[0])
	}
	if !dto.Rules[1].Issued() {
		t.Fatalf("new tier must be active: %+v", dto.Rules[1])
	}
	if len(coupons.deleted) != 1 {
		t.Fatalf("expected one remote delete attempt, got %d", len(coupons.deleted))
	}
	if !dto.DiscountCodes[0].Used {
		t.Fatalf("superseded audit entry must be flagged used")
	}
}

func TestIssueDiscountRemoteFailureLeavesRuleInactive(t *testing.T) {
	repo := newStubRepo()
	coupons := &stubCoupons{createErr: pkgerrors.New(pkgerrors.CodeRemoteRejected, "duplicate code")}
	sync := &stubSync{}
	svc := newTestService(t, repo, coupons, sync)

	id := seedBundle(t, repo, "Summer Pack", types.BundleRules{
		{ID: "r1", Tier: "Gold", TotalProducts: 10, DiscountPercentage: 15},
	})

	_, err := svc.IssueDiscount(context.Background(), id, 0)
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeRemoteRejected {
		t.Fatalf("expected remote-rejected error, got %v", err)
	}

	stored := repo.mustGet(t, id)
	if stored.Rules[0].IsActive || stored.Rules[0].DiscountCode != nil {
		t.Fatalf("failed issue must not persist any rule change: %+v", stored.Rules[0])
	}
	if len(stored.DiscountCodes) != 0 {
		t.Fatalf("failed issue must not append audit entries")
	}
	if sync.publishes != 0 {
		t.Fatalf("failed issue must not publish a snapshot")
	}
}

func TestIssueDiscountRuleIndexOutOfRange(t *testing.T) {
	repo := newStubRepo()
	svc := newTestService(t, repo, &stubCoupons{}, &stubSync{})

	id := seedBundle(t, repo, "Summer Pack", types.BundleRules{
		{ID: "r1", Tier: "Gold", TotalProducts: 10, DiscountPercentage: 15},
	})

	for _, index := range []int{-1, 1, 99} {
		_, err := svc.IssueDiscount(context.Background(), id, index)
		typed := pkgerrors.As(err)
		if typed == nil || typed.Code() != pkgerrors.CodeNotFound {
			t.Fatalf("index %d: expected not-found error, got %v", index, err)
		}
	}

	_, err := svc.IssueDiscount(context.Background(), uuid.New(), 0)
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeNotFound {
		t.Fatalf("missing bundle: expected not-found error, got %v", err)
	}
}

func TestRevokeDiscountAlwaysClearsLocally(t *testing.T) {
	repo := newStubRepo()
	coupons := &stubCoupons{}
	svc := newTestService(t, repo, coupons, &stubSync{})

	id := seedBundle(t, repo, "Summer Pack", types.BundleRules{
		{ID: "r1", Tier: "Gold", TotalProducts: 10, DiscountPercentage: 15},
	})
	if _, err := svc.IssueDiscount(context.Background(), id, 0); err != nil {
		t.Fatalf("issue: %v", err)
	}

	coupons.deleteErr = pkgerrors.New(pkgerrors.CodeDependency, "remote down")
	dto, err := svc.RevokeDiscount(context.Background(), id, 0)
	if err != nil {
		t.Fatalf("revoke must swallow remote failures: %v", err)
	}
	if dto.Rules[0].IsActive || dto.Rules[0].DiscountCode != nil || dto.Rules[0].ShopifyPriceRuleID != nil {
		t.Fatalf("rule must be inactive after revoke: %+v", dto.Rules[0])
	}
	if !dto.DiscountCodes[0].Used {
		t.Fatalf("audit entry must be flagged used on revoke")
	}
}

func TestUpdateBundleMergePreservesIssuedCoupons(t *testing.T) {
	repo := newStubRepo()
	coupons := &stubCoupons{}
	svc := newTestService(t, repo, coupons, &stubSync{})

	id := seedBundle(t, repo, "Summer Pack", types.BundleRules{
		{ID: "r1", Tier: "Gold", TotalProducts: 10, DiscountPercentage: 15},
	})
	issued, err := svc.IssueDiscount(context.Background(), id, 0)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	issuedCode := *issued.Rules[0].DiscountCode

	newRules := types.BundleRules{
		{ID: "r1", Tier: "Gold", TotalProducts: 20, DiscountPercentage: 15},
		{ID: "r9", Tier: "Platinum", TotalProducts: 30, DiscountPercentage: 25},
	}
	dto, err := svc.UpdateBundle(context.Background(), id, UpdateBundleInput{Rules: &newRules})
	if err != nil {
		t.Fatalf("update bundle: %v", err)
	}

	if dto.Rules[0].DiscountCode == nil || *dto.Rules[0].DiscountCode != issuedCode || !dto.Rules[0].IsActive {
		t.Fatalf("matched rule must inherit its issued coupon: %+v", dto.Rules[0])
	}
	if dto.Rules[0].TotalProducts != 20 {
		t.Fatalf("threshold edit must apply, got %d", dto.Rules[0].TotalProducts)
	}
	if dto.Rules[1].DiscountCode != nil || dto.Rules[1].IsActive {
		t.Fatalf("new rule must start without a coupon: %+v", dto.Rules[1])
	}
	if len(coupons.deleted) != 0 {
		t.Fatalf("merge must not call the remote system")
	}
}

func TestUpdateBundleRejectsDuplicateNameButAllowsOwn(t *testing.T) {
	repo := newStubRepo()
	svc := newTestService(t, repo, &stubCoupons{}, &stubSync{})

	id := seedBundle(t, repo, "Summer Pack", types.BundleRules{{ID: "r1", Tier: "Gold", TotalProducts: 10, DiscountPercentage: 15}})
	seedBundle(t, repo, "Winter Pack", types.BundleRules{{ID: "r1", Tier: "Gold", TotalProducts: 10, DiscountPercentage: 15}})

	name := "winter pack"
	if _, err := svc.UpdateBundle(context.Background(), id, UpdateBundleInput{Name: &name}); err == nil {
		t.Fatalf("rename onto another bundle's name must fail")
	}

	own := "Summer Pack"
	if _, err := svc.UpdateBundle(context.Background(), id, UpdateBundleInput{Name: &own}); err != nil {
		t.Fatalf("rename to own name must succeed: %v", err)
	}
}

func TestDeleteBundleBestEffortRemoteCleanup(t *testing.T) {
	repo := newStubRepo()
	coupons := &stubCoupons{}
	sync := &stubSync{}
	svc := newTestService(t, repo, coupons, sync)

	id := seedBundle(t, repo, "Summer Pack", types.BundleRules{
		{ID: "r1", Tier: "Silver", TotalProducts: 5, DiscountPercentage: 10},
		{ID: "r2", Tier: "Gold", TotalProducts: 10, DiscountPercentage: 15},
	})
	// Activate both rules directly so the bundle carries two live coupons.
	bundle := repo.mustGet(t, id)
	now := time.Now()
	bundle.Rules[0].Activate("SILVER_000001", "gid://shopify/DiscountCodeNode/1", now)
	bundle.Rules[1].Activate("GOLD_000002", "gid://shopify/DiscountCodeNode/2", now)
	repo.put(bundle)

	coupons.deleteErr = pkgerrors.New(pkgerrors.CodeDependency, "remote down")
	if err := svc.DeleteBundle(context.Background(), id); err != nil {
		t.Fatalf("delete must succeed despite remote failures: %v", err)
	}
	if len(coupons.deleted) != 2 {
		t.Fatalf("expected two remote delete attempts, got %d", len(coupons.deleted))
	}
	if _, err := repo.FindByID(context.Background(), id); err != gorm.ErrRecordNotFound {
		t.Fatalf("local record must be gone, got %v", err)
	}
	if sync.publishes != 1 {
		t.Fatalf("delete must publish a snapshot")
	}
}

func TestCodeForTier(t *testing.T) {
	now := time.UnixMilli(1757000123456)
	code := codeForTier("  Gold  Tier ", now)
	if code != "GOLD_TIER_123456" {
		t.Fatalf("unexpected code %q", code)
	}
}

func newTestService(t *testing.T, repo *stubRepo, coupons *stubCoupons, sync *stubSync) Service {
	t.Helper()
	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
	svc, err := NewService(repo, coupons, sync, logg, nil)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc
}

func seedBundle(t *testing.T, repo *stubRepo, name string, rules types.BundleRules) uuid.UUID {
	t.Helper()
	bundle, err := repo.Create(context.Background(), CreateBundleDTO{
		Name:            name,
		CollectionID:    "123",
		CollectionTitle: "Collection",
		Rules:           rules,
	})
	if err != nil {
		t.Fatalf("seed bundle: %v", err)
	}
	return bundle.ID
}

type stubRepo struct {
	records map[uuid.UUID]*models.Bundle
	order   []uuid.UUID
}

func newStubRepo() *stubRepo {
	return &stubRepo{records: map[uuid.UUID]*models.Bundle{}}
}

func (r *stubRepo) Create(ctx context.Context, dto CreateBundleDTO) (*models.Bundle, error) {
	bundle := dto.ToModel()
	bundle.ID = uuid.New()
	bundle.CreatedAt = time.Now()
	bundle.UpdatedAt = bundle.CreatedAt
	r.put(bundle)
	return cloneBundle(bundle), nil
}

func (r *stubRepo) FindByID(ctx context.Context, id uuid.UUID) (*models.Bundle, error) {
	bundle, ok := r.records[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return cloneBundle(bundle), nil
}

func (r *stubRepo) List(ctx context.Context) ([]models.Bundle, error) {
	list := make([]models.Bundle, 0, len(r.order))
	for i := len(r.order) - 1; i >= 0; i-- {
		if bundle, ok := r.records[r.order[i]]; ok {
			list = append(list, *cloneBundle(bundle))
		}
	}
	return list, nil
}

func (r *stubRepo) Update(ctx context.Context, id uuid.UUID, fields map[string]any) (*models.Bundle, error) {
	bundle, ok := r.records[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	for key, value := range fields {
		switch key {
		case "name":
			bundle.Name = value.(string)
		case "rules":
			bundle.Rules = value.(types.BundleRules)
		case "discount_codes":
			bundle.DiscountCodes = value.(types.DiscountCodeLog)
		default:
			return nil, fmt.Errorf("unexpected field %q", key)
		}
	}
	bundle.UpdatedAt = time.Now()
	return cloneBundle(bundle), nil
}

func (r *stubRepo) Delete(ctx context.Context, id uuid.UUID) error {
	if _, ok := r.records[id]; !ok {
		return gorm.ErrRecordNotFound
	}
	delete(r.records, id)
	return nil
}

func (r *stubRepo) put(bundle *models.Bundle) {
	if _, ok := r.records[bundle.ID]; !ok {
		r.order = append(r.order, bundle.ID)
	}
	r.records[bundle.ID] = cloneBundle(bundle)
}

func (r *stubRepo) mustGet(t *testing.T, id uuid.UUID) *models.Bundle {
	t.Helper()
	bundle, ok := r.records[id]
	if !ok {
		t.Fatalf("bundle %s not found", id)
	}
	return cloneBundle(bundle)
}

func cloneBundle(b *models.Bundle) *models.Bundle {
	cp := *b
	cp.Rules = make(types.BundleRules, len(b.Rules))
	copy(cp.Rules, b.Rules)
	cp.DiscountCodes = make(types.DiscountCodeLog, len(b.DiscountCodes))
	copy(cp.DiscountCodes, b.DiscountCodes)
	return &cp
}

type stubCoupons struct {
	created   []shopify.DiscountCodeParams
	deleted   []string
	createErr error
	deleteErr error
}

func (c *stubCoupons) CreateDiscountCode(ctx context.Context, params shopify.DiscountCodeParams) (string, error) {
	if c.createErr != nil {
		return "", c.createErr
	}
	c.created = append(c.created, params)
	return fmt.Sprintf("gid://shopify/DiscountCodeNode/%d", len(c.created)), nil
}

func (c *stubCoupons) DeleteDiscountCode(ctx context.Context, discountNodeID string) error {
	c.deleted = append(c.deleted, discountNodeID)
	return c.deleteErr
}

type stubSync struct {
	publishes int
}

func (s *stubSync) Publish(ctx context.Context) error {
	s.publishes++
	return nil
}
