package bundles

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/bundleworks-backend/pkg/db/models"
)

// Repository handles bundle persistence.
type Repository struct {
	db *gorm.DB
}

// NewRepository binds a GORM DB to bundle operations.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Create persists a new bundle row. The id is assigned here so the sqlite
// test dialector behaves the same as postgres.
func (r *Repository) Create(ctx context.Context, dto CreateBundleDTO) (*models.Bundle, error) {
	bundle := dto.ToModel()
	if bundle.ID == uuid.Nil {
		bundle.ID = uuid.New()
	}
	if err := r.db.WithContext(ctx).Create(bundle).Error; err != nil {
		return nil, err
	}
	return bundle, nil
}

// FindByID loads a bundle by its UUID.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Bundle, error) {
	var bundle models.Bundle
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&bundle).Error; err != nil {
		return nil, err
	}
	return &bundle, nil
}

// List returns all bundles, newest first.
func (r *Repository) List(ctx context.Context) ([]models.Bundle, error) {
	var list []models.Bundle
	if err := r.db.WithContext(ctx).Order("created_at DESC").Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

// Update applies a partial field set and returns the refreshed row. GORM
// bumps updated_at on any Updates call against the model.
func (r *Repository) Update(ctx context.Context, id uuid.UUID, fields map[string]any) (*models.Bundle, error) {
	if len(fields) == 0 {
		return nil, fmt.Errorf("no fields to update")
	}
	res := r.db.WithContext(ctx).Model(&models.Bundle{}).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, gorm.ErrRecordNotFound
	}
	return r.FindByID(ctx, id)
}

// Delete removes a bundle row.
func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	res := r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Bundle{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
