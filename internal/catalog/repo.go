package catalog

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tablyhq/tably-backend/pkg/db/models"
)

// MenuItemRepository reads the catalog projection. The write side lives in
// the external admin service.
type MenuItemRepository struct {
	db *gorm.DB
}

// NewMenuItemRepository binds the repository to the provided GORM handle.
func NewMenuItemRepository(db *gorm.DB) *MenuItemRepository {
	return &MenuItemRepository{db: db}
}

// WithTx scopes the repository to the provided transaction.
func (r *MenuItemRepository) WithTx(tx *gorm.DB) *MenuItemRepository {
	if tx == nil {
		return r
	}
	return &MenuItemRepository{db: tx}
}

// FindByIDAndStore returns the menu item belonging to the store.
func (r *MenuItemRepository) FindByIDAndStore(ctx context.Context, id, storeID uuid.UUID) (*models.MenuItem, error) {
	var item models.MenuItem
	err := r.db.WithContext(ctx).
		Where("id = ? AND store_id = ?", id, storeID).
		First(&item).Error
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// ListByStore returns the store's menu for the browse endpoint.
func (r *MenuItemRepository) ListByStore(ctx context.Context, storeID uuid.UUID) ([]models.MenuItem, error) {
	var items []models.MenuItem
	err := r.db.WithContext(ctx).
		Where("store_id = ?", storeID).
		Order("name ASC").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}
