package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/bundleworks-backend/pkg/types"
)

// Bundle is a named set of quantity-tier discounts scoped to one collection.
type Bundle struct {
	ID              uuid.UUID             `gorm:"column:id;type:uuid;primaryKey"`
	Name            string                `gorm:"column:name;not null;uniqueIndex:idx_bundles_name"`
	CollectionID    string                `gorm:"column:collection_id;not null"`
	CollectionTitle string                `gorm:"column:collection_title;not null"`
	Rules           types.BundleRules     `gorm:"column:rules;type:jsonb;serializer:json;not null"`
	DiscountCodes   types.DiscountCodeLog `gorm:"column:discount_codes;type:jsonb;serializer:json"`
	CreatedAt       time.Time             `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time             `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName pins the table name used by the goose migrations.
func (Bundle) TableName() string {
	return "bundles"
}
