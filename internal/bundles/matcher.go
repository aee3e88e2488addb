package bundles

import (
	"github.com/google/uuid"

	"github.com/angelmondragon/bundleworks-backend/pkg/db/models"
)

// LineItem is the quantity-bearing slice of a cart line.
type LineItem struct {
	Quantity int `json:"quantity"`
}

// Match describes the single best-qualifying tier across all bundles.
type Match struct {
	BundleID           uuid.UUID `json:"bundle_id"`
	BundleName         string    `json:"bundle_name"`
	Tier               string    `json:"tier"`
	Threshold          int       `json:"threshold"`
	DiscountPercentage float64   `json:"discount_percentage"`
	DiscountCode       *string   `json:"discount_code,omitempty"`
}

// MatchBestTier returns the highest satisfied tier across all bundles for the
// given cart, or nil when no threshold is met.
//
// Eligibility is measured as total cart quantity, not quantity restricted to
// the bundle's collection. Checkout-side application scopes the code to the
// collection; this measure only drives diagnostics and snapshot consumers.
func MatchBestTier(list []models.Bundle, items []LineItem) *Match {
	eligibleQty := 0
	for _, item := range items {
		eligibleQty += item.Quantity
	}
	if eligibleQty <= 0 {
		return nil
	}

	var best *Match
	for _, bundle := range list {
		for _, rule := range bundle.Rules.SortedByThresholdDesc() {
			if rule.TotalProducts > eligibleQty {
				continue
			}
			// First satisfied rule is the bundle's local best. A strict
			// comparison keeps the first-encountered bundle on ties.
			if best == nil || rule.TotalProducts > best.Threshold {
				best = &Match{
					BundleID:           bundle.ID,
					BundleName:         bundle.Name,
					Tier:               rule.Tier,
					Threshold:          rule.TotalProducts,
					DiscountPercentage: rule.DiscountPercentage,
					DiscountCode:       rule.DiscountCode,
				}
			}
			break
		}
	}
	return best
}
