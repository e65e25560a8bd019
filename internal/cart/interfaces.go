package cart

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tablyhq/tably-backend/pkg/db/models"
)

// CartRepository defines the persistence surface required by the cart
// service.
type CartRepository interface {
	WithTx(tx *gorm.DB) CartRepository
	FindByID(ctx context.Context, id uuid.UUID) (*models.SharedCart, error)
	FindBySession(ctx context.Context, sessionID uuid.UUID) (*models.SharedCart, error)
	Create(ctx context.Context, cart *models.SharedCart) (*models.SharedCart, error)
	IncrementVersion(ctx context.Context, cartID uuid.UUID, expectedVersion int64) (bool, error)
	AddItem(ctx context.Context, item *models.CartItem) (*models.CartItem, error)
	FindItem(ctx context.Context, cartID, itemID uuid.UUID) (*models.CartItem, error)
	SaveItem(ctx context.Context, item *models.CartItem) error
	DeleteItem(ctx context.Context, cartID, itemID uuid.UUID) (bool, error)
	ListItems(ctx context.Context, cartID uuid.UUID) ([]models.CartItem, error)
	ClearItems(ctx context.Context, cartID uuid.UUID) error
}
