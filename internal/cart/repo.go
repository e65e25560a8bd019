package cart

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tablyhq/tably-backend/pkg/db/models"
	"github.com/tablyhq/tably-backend/pkg/enums"
)

// SharedCartRepository encapsulates shared cart persistence. The version
// column is the concurrency token; every write path goes through
// IncrementVersion so concurrent editors serialize on it.
type SharedCartRepository struct {
	db *gorm.DB
}

// NewSharedCartRepository binds the repository to the provided GORM handle.
func NewSharedCartRepository(db *gorm.DB) *SharedCartRepository {
	return &SharedCartRepository{db: db}
}

// WithTx scopes the repository to the provided transaction.
func (r *SharedCartRepository) WithTx(tx *gorm.DB) CartRepository {
	if tx == nil {
		return r
	}
	return &SharedCartRepository{db: tx}
}

// FindByID returns the cart with its items.
func (r *SharedCartRepository) FindByID(ctx context.Context, id uuid.UUID) (*models.SharedCart, error) {
	var cart models.SharedCart
	err := r.db.WithContext(ctx).
		Preload("Items").
		Where("id = ?", id).
		First(&cart).Error
	if err != nil {
		return nil, err
	}
	return &cart, nil
}

// FindBySession returns the session's cart with its items.
func (r *SharedCartRepository) FindBySession(ctx context.Context, sessionID uuid.UUID) (*models.SharedCart, error) {
	var cart models.SharedCart
	err := r.db.WithContext(ctx).
		Preload("Items").
		Where("session_id = ?", sessionID).
		First(&cart).Error
	if err != nil {
		return nil, err
	}
	return &cart, nil
}

// Create inserts a cart at version 1.
func (r *SharedCartRepository) Create(ctx context.Context, cart *models.SharedCart) (*models.SharedCart, error) {
	if cart.ID == uuid.Nil {
		cart.ID = uuid.New()
	}
	if cart.Version == 0 {
		cart.Version = 1
	}
	if err := r.db.WithContext(ctx).Create(cart).Error; err != nil {
		return nil, err
	}
	return cart, nil
}

// IncrementVersion bumps the cart version only when the caller's expected
// version still matches. Returns false when another write won.
func (r *SharedCartRepository) IncrementVersion(ctx context.Context, cartID uuid.UUID, expectedVersion int64) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.SharedCart{}).
		Where("id = ? AND version = ?", cartID, expectedVersion).
		Update("version", gorm.Expr("version + 1"))
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// AddItem inserts a cart line.
func (r *SharedCartRepository) AddItem(ctx context.Context, item *models.CartItem) (*models.CartItem, error) {
	if item.ID == uuid.Nil {
		item.ID = uuid.New()
	}
	if err := r.db.WithContext(ctx).Create(item).Error; err != nil {
		return nil, err
	}
	return item, nil
}

// FindItem returns a line scoped to its cart.
func (r *SharedCartRepository) FindItem(ctx context.Context, cartID, itemID uuid.UUID) (*models.CartItem, error) {
	var item models.CartItem
	err := r.db.WithContext(ctx).
		Where("id = ? AND cart_id = ?", itemID, cartID).
		First(&item).Error
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// SaveItem persists an updated line.
func (r *SharedCartRepository) SaveItem(ctx context.Context, item *models.CartItem) error {
	return r.db.WithContext(ctx).Save(item).Error
}

// DeleteItem removes a line scoped to its cart.
func (r *SharedCartRepository) DeleteItem(ctx context.Context, cartID, itemID uuid.UUID) (bool, error) {
	result := r.db.WithContext(ctx).
		Where("id = ? AND cart_id = ?", itemID, cartID).
		Delete(&models.CartItem{})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// ListItems returns the cart's lines ordered by insertion.
func (r *SharedCartRepository) ListItems(ctx context.Context, cartID uuid.UUID) ([]models.CartItem, error) {
	var items []models.CartItem
	err := r.db.WithContext(ctx).
		Where("cart_id = ?", cartID).
		Order("created_at ASC").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

// ClearItems deletes every line of the cart.
func (r *SharedCartRepository) ClearItems(ctx context.Context, cartID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Where("cart_id = ?", cartID).
		Delete(&models.CartItem{}).Error
}

// PurgeStaleItems deletes lines belonging to carts of sessions that closed
// before the cutoff. The cart row itself stays for audit joins.
func (r *SharedCartRepository) PurgeStaleItems(ctx context.Context, cutoff time.Time, limit int) (int64, error) {
	staleCarts := r.db.
		Model(&models.SharedCart{}).
		Select("shared_carts.id").
		Joins("JOIN table_sessions ON table_sessions.id = shared_carts.session_id").
		Where("table_sessions.status IN ?", []enums.SessionStatus{enums.SessionStatusClosed, enums.SessionStatusExpired}).
		Where("table_sessions.closed_at IS NOT NULL AND table_sessions.closed_at < ?", cutoff)
	if limit > 0 {
		staleCarts = staleCarts.Limit(limit)
	}
	result := r.db.WithContext(ctx).
		Where("cart_id IN (?)", staleCarts).
		Delete(&models.CartItem{})
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}
