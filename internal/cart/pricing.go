package cart

import (
	"github.com/shopspring/decimal"

	"github.com/tablyhq/tably-backend/pkg/db/models"
)

// Totals carries the derived money amounts of a cart or order, in integer
// cents. Amounts are recomputed from lines on every read, never cached.
type Totals struct {
	SubtotalCents      int64 `json:"subtotal_cents"`
	TaxCents           int64 `json:"tax_cents"`
	ServiceChargeCents int64 `json:"service_charge_cents"`
	GrandTotalCents    int64 `json:"grand_total_cents"`
}

// PricingPolicy is the store's money configuration frozen for one
// computation.
type PricingPolicy struct {
	TaxRate           decimal.Decimal
	ServiceChargeRate decimal.Decimal
	TaxIncluded       bool
}

// PolicyFromStore lifts the pricing fields off the store row.
func PolicyFromStore(store *models.Store) PricingPolicy {
	return PricingPolicy{
		TaxRate:           store.TaxRate,
		ServiceChargeRate: store.ServiceChargeRate,
		TaxIncluded:       store.TaxIncluded,
	}
}

// Compute derives totals from cart lines. Rounding is half-up to whole
// cents at each derived amount.
//
// When tax is included in menu prices the subtotal already contains it, so
// the tax amount is carved out for display and the grand total adds only the
// service charge. When tax is excluded both tax and service charge are added
// on top.
func (p PricingPolicy) Compute(items []models.CartItem) Totals {
	var subtotal int64
	for _, item := range items {
		subtotal += int64(item.Quantity) * item.UnitPriceCents
	}
	return p.computeFromSubtotal(subtotal)
}

func (p PricingPolicy) computeFromSubtotal(subtotalCents int64) Totals {
	subtotal := decimal.NewFromInt(subtotalCents)
	service := roundCents(subtotal.Mul(p.ServiceChargeRate))

	if p.TaxIncluded {
		divisor := decimal.NewFromInt(1).Add(p.TaxRate)
		tax := roundCents(subtotal.Sub(subtotal.Div(divisor)))
		return Totals{
			SubtotalCents:      subtotalCents,
			TaxCents:           tax,
			ServiceChargeCents: service,
			GrandTotalCents:    subtotalCents + service,
		}
	}

	tax := roundCents(subtotal.Mul(p.TaxRate))
	return Totals{
		SubtotalCents:      subtotalCents,
		TaxCents:           tax,
		ServiceChargeCents: service,
		GrandTotalCents:    subtotalCents + tax + service,
	}
}

func roundCents(d decimal.Decimal) int64 {
	return d.Round(0).IntPart()
}
