package cart

import (
	"github.com/google/uuid"

	"github.com/tablyhq/tably-backend/pkg/db/models"
	"github.com/tablyhq/tably-backend/pkg/types"
)

// ItemView is one cart line as returned to clients.
type ItemView struct {
	ID              uuid.UUID             `json:"id"`
	ParticipantID   uuid.UUID             `json:"participant_id"`
	MenuItemID      uuid.UUID             `json:"menu_item_id"`
	Name            string                `json:"name"`
	Quantity        int                   `json:"quantity"`
	UnitPriceCents  int64                 `json:"unit_price_cents"`
	LineTotalCents  int64                 `json:"line_total_cents"`
	SelectedOptions types.SelectedOptions `json:"selected_options,omitempty"`
}

// View is the full cart state clients reconcile against. Totals are derived
// from the lines on every build.
type View struct {
	CartID    uuid.UUID  `json:"cart_id"`
	SessionID uuid.UUID  `json:"session_id"`
	Version   int64      `json:"version"`
	Items     []ItemView `json:"items"`
	Totals    Totals     `json:"totals"`
}

// BuildView assembles a view from raw rows under the store's pricing policy.
func BuildView(cartID, sessionID uuid.UUID, version int64, items []models.CartItem, policy PricingPolicy) *View {
	view := &View{
		CartID:    cartID,
		SessionID: sessionID,
		Version:   version,
		Items:     make([]ItemView, 0, len(items)),
	}
	for _, item := range items {
		view.Items = append(view.Items, ItemView{
			ID:              item.ID,
			ParticipantID:   item.ParticipantID,
			MenuItemID:      item.MenuItemID,
			Name:            item.Name,
			Quantity:        item.Quantity,
			UnitPriceCents:  item.UnitPriceCents,
			LineTotalCents:  int64(item.Quantity) * item.UnitPriceCents,
			SelectedOptions: item.SelectedOptions,
		})
	}
	view.Totals = policy.Compute(items)
	return view
}
