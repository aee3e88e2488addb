package bundles

import (
	"math"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/bundleworks-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/bundleworks-backend/pkg/errors"
	"github.com/angelmondragon/bundleworks-backend/pkg/types"
)

// ValidateRule checks a single tier definition.
func ValidateRule(rule types.BundleRule) error {
	if strings.TrimSpace(rule.Tier) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "tier label is required").
			WithDetails(map[string]any{"field": "tier"})
	}
	if rule.TotalProducts <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "total products must be a positive integer").
			WithDetails(map[string]any{"field": "totalProducts"})
	}
	if rule.DiscountPercentage <= 0 || math.IsInf(rule.DiscountPercentage, 0) || math.IsNaN(rule.DiscountPercentage) {
		return pkgerrors.New(pkgerrors.CodeValidation, "discount percentage must be a positive number").
			WithDetails(map[string]any{"field": "discountPercentage"})
	}
	return nil
}

// ValidateRules rejects the whole array on the first failing rule, evaluated
// in array order.
func ValidateRules(rules types.BundleRules) error {
	if len(rules) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "at least one rule is required").
			WithDetails(map[string]any{"field": "rules"})
	}
	for i, rule := range rules {
		if err := ValidateRule(rule); err != nil {
			typed := pkgerrors.As(err)
			details, _ := typed.Details().(map[string]any)
			if details == nil {
				details = map[string]any{}
			}
			details["rule"] = i
			return typed.WithDetails(details)
		}
	}
	return nil
}

// ValidateBundleName rejects names already taken by another bundle under
// case-insensitive, trimmed comparison. excludeID lets a bundle keep its own
// name on update.
func ValidateBundleName(name string, existing []models.Bundle, excludeID uuid.UUID) error {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "bundle name is required").
			WithDetails(map[string]any{"field": "name"})
	}
	for _, bundle := range existing {
		if excludeID != uuid.Nil && bundle.ID == excludeID {
			continue
		}
		if strings.EqualFold(strings.TrimSpace(bundle.Name), trimmed) {
			return pkgerrors.New(pkgerrors.CodeValidation, "a bundle with this name already exists").
				WithDetails(map[string]any{"field": "name"})
		}
	}
	return nil
}
