package bundles

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/bundleworks-backend/pkg/db/models"
	"github.com/angelmondragon/bundleworks-backend/pkg/types"
)

// BundleDTO exposes bundle data in API responses.
type BundleDTO struct {
	ID              uuid.UUID             `json:"id"`
	Name            string                `json:"name"`
	CollectionID    string                `json:"collection_id"`
	CollectionTitle string                `json:"collection_title"`
	Rules           types.BundleRules     `json:"rules"`
	DiscountCodes   types.DiscountCodeLog `json:"discount_codes"`
	CreatedAt       time.Time             `json:"created_at"`
	UpdatedAt       time.Time             `json:"updated_at"`
}

// CreateBundleDTO holds creation-time data for a new bundle.
type CreateBundleDTO struct {
	Name            string
	CollectionID    string
	CollectionTitle string
	Rules           types.BundleRules
}

// UpdateBundleInput captures the allowed bundle fields for mutation. Nil
// fields are left untouched.
type UpdateBundleInput struct {
	Name  *string
	Rules *types.BundleRules
}

// FromModel maps the persisted bundle into a DTO.
func FromModel(m *models.Bundle) *BundleDTO {
	if m == nil {
		return nil
	}

	dto := &BundleDTO{
		ID:              m.ID,
		Name:            m.Name,
		CollectionID:    m.CollectionID,
		CollectionTitle: m.CollectionTitle,
		Rules:           make(types.BundleRules, len(m.Rules)),
		DiscountCodes:   make(types.DiscountCodeLog, len(m.DiscountCodes)),
		CreatedAt:       m.CreatedAt,
		UpdatedAt:       m.UpdatedAt,
	}
	copy(dto.Rules, m.Rules)
	copy(dto.DiscountCodes, m.DiscountCodes)

	return dto
}

// ToModel prepares the GORM model from the creation DTO. Rules always start
// without an issued coupon regardless of submitted lifecycle fields.
func (c CreateBundleDTO) ToModel() *models.Bundle {
	rules := make(types.BundleRules, len(c.Rules))
	copy(rules, c.Rules)
	for i := range rules {
		rules[i].Deactivate()
		rules[i].CreatedAt = nil
	}

	return &models.Bundle{
		Name:            c.Name,
		CollectionID:    c.CollectionID,
		CollectionTitle: c.CollectionTitle,
		Rules:           rules,
		DiscountCodes:   types.DiscountCodeLog{},
	}
}
