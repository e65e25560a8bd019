package sessions

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tablyhq/tably-backend/pkg/db/models"
)

// TableRepo reads the table projection.
type TableRepo struct {
	db *gorm.DB
}

// NewTableRepo binds the repository to the provided GORM handle.
func NewTableRepo(db *gorm.DB) *TableRepo {
	return &TableRepo{db: db}
}

// FindByID returns the table row.
func (r *TableRepo) FindByID(ctx context.Context, id uuid.UUID) (*models.Table, error) {
	var table models.Table
	err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&table).Error
	if err != nil {
		return nil, err
	}
	return &table, nil
}

// FindByShortCode returns the table with the given join code.
func (r *TableRepo) FindByShortCode(ctx context.Context, shortCode string) (*models.Table, error) {
	var table models.Table
	err := r.db.WithContext(ctx).
		Where("short_code = ?", shortCode).
		First(&table).Error
	if err != nil {
		return nil, err
	}
	return &table, nil
}

// StoreRepo reads the store projection.
type StoreRepo struct {
	db *gorm.DB
}

// NewStoreRepo binds the repository to the provided GORM handle.
func NewStoreRepo(db *gorm.DB) *StoreRepo {
	return &StoreRepo{db: db}
}

// FindByID returns the store row.
func (r *StoreRepo) FindByID(ctx context.Context, id uuid.UUID) (*models.Store, error) {
	var store models.Store
	err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&store).Error
	if err != nil {
		return nil, err
	}
	return &store, nil
}
