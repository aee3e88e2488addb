package types

import (
	"sort"
	"time"
)

// BundleRule is one quantity-threshold-to-percentage tier inside a bundle.
// The JSON field names are shared with the storefront metafield consumer, so
// they stay camelCase.
type BundleRule struct {
	ID                 string     `json:"id"`
	Tier               string     `json:"tier"`
	TotalProducts      int        `json:"totalProducts"`
	DiscountPercentage float64    `json:"discountPercentage"`
	DiscountCode       *string    `json:"discountCode"`
	ShopifyPriceRuleID *string    `json:"shopifyPriceRuleId"`
	IsActive           bool       `json:"isActive"`
	CreatedAt          *time.Time `json:"createdAt,omitempty"`
}

// BundleRules is the ordered rule array persisted as a jsonb column.
type BundleRules []BundleRule

// Issued reports whether a live remote coupon backs this rule. The three
// lifecycle fields transition together; any disagreement is a bug upstream.
func (r BundleRule) Issued() bool {
	return r.IsActive && r.DiscountCode != nil && r.ShopifyPriceRuleID != nil
}

// Activate populates the lifecycle triple after a successful remote create.
func (r *BundleRule) Activate(code, remoteID string, now time.Time) {
	r.DiscountCode = &code
	r.ShopifyPriceRuleID = &remoteID
	r.IsActive = true
	r.CreatedAt = &now
}

// Deactivate clears the lifecycle triple after a revocation.
func (r *BundleRule) Deactivate() {
	r.DiscountCode = nil
	r.ShopifyPriceRuleID = nil
	r.IsActive = false
}

// SortedByThresholdDesc returns a copy ordered by totalProducts descending,
// leaving the stored tie-break order untouched.
func (rs BundleRules) SortedByThresholdDesc() BundleRules {
	sorted := make(BundleRules, len(rs))
	copy(sorted, rs)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].TotalProducts > sorted[j].TotalProducts
	})
	return sorted
}

// FindByID returns the rule with the given client-assigned id, if present.
func (rs BundleRules) FindByID(id string) (BundleRule, bool) {
	if id == "" {
		return BundleRule{}, false
	}
	for _, rule := range rs {
		if rule.ID == id {
			return rule, true
		}
	}
	return BundleRule{}, false
}

// DiscountCodeEntry is one append-only audit record of an issued code.
type DiscountCodeEntry struct {
	Code           string    `json:"code"`
	RuleIndex      int       `json:"ruleIndex"`
	DiscountNodeID string    `json:"discountNodeId,omitempty"`
	Used           bool      `json:"used"`
	CreatedAt      time.Time `json:"createdAt"`
}

// DiscountCodeLog is the bundle's issued-code audit trail.
type DiscountCodeLog []DiscountCodeEntry
