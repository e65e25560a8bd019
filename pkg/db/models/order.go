package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/tablyhq/tably-backend/pkg/enums"
	"github.com/tablyhq/tably-backend/pkg/types"
)

// Order is an immutable round submitted from a session. Only Status moves
// after creation, and only along the kitchen state machine. IdempotencyKey
// is globally unique; a retried placement maps back to the same row.
type Order struct {
	ID                 uuid.UUID                `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	StoreID            uuid.UUID                `gorm:"column:store_id;type:uuid;not null;index"`
	SessionID          uuid.UUID                `gorm:"column:session_id;type:uuid;not null;index"`
	ParticipantID      uuid.UUID                `gorm:"column:participant_id;type:uuid;not null"`
	RoundNo            int                      `gorm:"column:round_no;not null"`
	Status             enums.OrderStatus        `gorm:"column:status;type:text;not null;default:'placed'"`
	Items              types.OrderItemSnapshots `gorm:"column:items;type:jsonb;serializer:json;not null"`
	SubtotalCents      int64                    `gorm:"column:subtotal_cents;not null"`
	TaxCents           int64                    `gorm:"column:tax_cents;not null"`
	ServiceChargeCents int64                    `gorm:"column:service_charge_cents;not null"`
	GrandTotalCents    int64                    `gorm:"column:grand_total_cents;not null"`
	IdempotencyKey     string                   `gorm:"column:idempotency_key;not null;uniqueIndex:idx_orders_idempotency_key"`
	PlacedAt           time.Time                `gorm:"column:placed_at;not null"`
	CreatedAt          time.Time                `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time                `gorm:"column:updated_at;autoUpdateTime"`
}
