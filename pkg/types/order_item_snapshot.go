package types

import (
	"github.com/google/uuid"

	"github.com/tablyhq/tably-backend/pkg/enums"
)

// OrderItemSnapshot freezes one cart line at placement time. Orders never
// reference live cart items; this copy is the permanent record.
type OrderItemSnapshot struct {
	MenuItemID      uuid.UUID             `json:"menu_item_id"`
	ParticipantID   uuid.UUID             `json:"participant_id"`
	Name            string                `json:"name"`
	Quantity        int                   `json:"quantity"`
	UnitPriceCents  int64                 `json:"unit_price_cents"`
	SelectedOptions SelectedOptions       `json:"selected_options,omitempty"`
	Status          enums.OrderItemStatus `json:"status"`
}

// OrderItemSnapshots is stored as a jsonb column.
type OrderItemSnapshots []OrderItemSnapshot
