package orders

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tablyhq/tably-backend/pkg/db/models"
	"github.com/tablyhq/tably-backend/pkg/enums"
)

// OrderRepository defines the persistence surface required by the order
// service.
type OrderRepository interface {
	WithTx(tx *gorm.DB) OrderRepository
	Create(ctx context.Context, order *models.Order) (*models.Order, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	FindByIdempotencyKey(ctx context.Context, key string) (*models.Order, error)
	TransitionStatus(ctx context.Context, id, storeID uuid.UUID, from, to enums.OrderStatus) (bool, error)
	ListBySession(ctx context.Context, sessionID uuid.UUID) ([]models.Order, error)
	ListByStore(ctx context.Context, storeID uuid.UUID, activeOnly bool) ([]models.Order, error)
}

// Repository persists orders.
type Repository struct {
	db *gorm.DB
}

// NewRepository binds the repository to the provided GORM handle.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx scopes the repository to the provided transaction.
func (r *Repository) WithTx(tx *gorm.DB) OrderRepository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

// Create inserts the order row.
func (r *Repository) Create(ctx context.Context, order *models.Order) (*models.Order, error) {
	if order.ID == uuid.Nil {
		order.ID = uuid.New()
	}
	if order.Status == "" {
		order.Status = enums.OrderStatusPlaced
	}
	if err := r.db.WithContext(ctx).Create(order).Error; err != nil {
		return nil, err
	}
	return order, nil
}

// FindByID returns the order row.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// FindByIdempotencyKey returns the order created under the key, if any.
func (r *Repository) FindByIdempotencyKey(ctx context.Context, key string) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Where("idempotency_key = ?", key).
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// TransitionStatus moves the order between statuses only when it is still in
// the expected one, so concurrent staff updates cannot both win.
func (r *Repository) TransitionStatus(ctx context.Context, id, storeID uuid.UUID, from, to enums.OrderStatus) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND store_id = ? AND status = ?", id, storeID, from).
		Update("status", to)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// ListBySession returns the session's orders oldest first.
func (r *Repository) ListBySession(ctx context.Context, sessionID uuid.UUID) ([]models.Order, error) {
	var orders []models.Order
	err := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("round_no ASC").
		Find(&orders).Error
	if err != nil {
		return nil, err
	}
	return orders, nil
}

// ListByStore returns the store's orders newest first, optionally filtered
// to statuses the kitchen still acts on.
func (r *Repository) ListByStore(ctx context.Context, storeID uuid.UUID, activeOnly bool) ([]models.Order, error) {
	query := r.db.WithContext(ctx).Where("store_id = ?", storeID)
	if activeOnly {
		query = query.Where("status IN ?", enums.ActiveOrderStatuses)
	}
	var orders []models.Order
	if err := query.Order("placed_at DESC").Find(&orders).Error; err != nil {
		return nil, err
	}
	return orders, nil
}
