package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/tablyhq/tably-backend/pkg/types"
)

// CartItem is one line of a shared cart. UnitPriceCents snapshots base price
// plus option deltas at add/update time and is not recomputed afterwards
// except on an explicit update.
type CartItem struct {
	ID              uuid.UUID             `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	CartID          uuid.UUID             `gorm:"column:cart_id;type:uuid;not null;index"`
	ParticipantID   uuid.UUID             `gorm:"column:participant_id;type:uuid;not null"`
	MenuItemID      uuid.UUID             `gorm:"column:menu_item_id;type:uuid;not null"`
	Name            string                `gorm:"column:name;not null"`
	Quantity        int                   `gorm:"column:quantity;not null"`
	UnitPriceCents  int64                 `gorm:"column:unit_price_cents;not null"`
	SelectedOptions types.SelectedOptions `gorm:"column:selected_options;type:jsonb;serializer:json"`
	CreatedAt       time.Time             `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time             `gorm:"column:updated_at;autoUpdateTime"`
}
