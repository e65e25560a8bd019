package controllers

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/tablyhq/tably-backend/api/middleware"
	"github.com/tablyhq/tably-backend/api/responses"
	"github.com/tablyhq/tably-backend/api/validators"
	ordersvc "github.com/tablyhq/tably-backend/internal/orders"
	"github.com/tablyhq/tably-backend/pkg/db/models"
	pkgerrors "github.com/tablyhq/tably-backend/pkg/errors"
	"github.com/tablyhq/tably-backend/pkg/logger"
	"github.com/tablyhq/tably-backend/pkg/types"
)

// OrderPlace submits the caller's shared cart as an immutable order round.
func OrderPlace(svc ordersvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := middleware.SessionClaimsFromContext(r.Context())
		if !ok {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "session credential required"))
			return
		}

		var payload placeOrderRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		order, err := svc.Place(r.Context(), ordersvc.PlaceInput{
			SessionID:           claims.SessionID,
			ParticipantID:       claims.ParticipantID,
			ExpectedCartVersion: payload.ExpectedCartVersion,
			IdempotencyKey:      payload.IdempotencyKey,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, newOrderResponse(order))
	}
}

type placeOrderRequest struct {
	ExpectedCartVersion int64  `json:"expected_cart_version" validate:"required,min=1"`
	IdempotencyKey      string `json:"idempotency_key" validate:"required,min=8,max=128"`
}

// OrderList returns every order of the caller's session, newest round last.
func OrderList(svc ordersvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := middleware.SessionClaimsFromContext(r.Context())
		if !ok {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "session credential required"))
			return
		}

		orders, err := svc.ListBySession(r.Context(), claims.SessionID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, newOrderListResponse(orders))
	}
}

type orderResponse struct {
	ID                 uuid.UUID                `json:"id"`
	StoreID            uuid.UUID                `json:"store_id"`
	SessionID          uuid.UUID                `json:"session_id"`
	ParticipantID      uuid.UUID                `json:"participant_id"`
	RoundNo            int                      `json:"round_no"`
	Status             string                   `json:"status"`
	Items              types.OrderItemSnapshots `json:"items"`
	SubtotalCents      int64                    `json:"subtotal_cents"`
	TaxCents           int64                    `json:"tax_cents"`
	ServiceChargeCents int64                    `json:"service_charge_cents"`
	GrandTotalCents    int64                    `json:"grand_total_cents"`
	PlacedAt           time.Time                `json:"placed_at"`
}

func newOrderResponse(order *models.Order) orderResponse {
	return orderResponse{
		ID:                 order.ID,
		StoreID:            order.StoreID,
		SessionID:          order.SessionID,
		ParticipantID:      order.ParticipantID,
		RoundNo:            order.RoundNo,
		Status:             string(order.Status),
		Items:              order.Items,
		SubtotalCents:      order.SubtotalCents,
		TaxCents:           order.TaxCents,
		ServiceChargeCents: order.ServiceChargeCents,
		GrandTotalCents:    order.GrandTotalCents,
		PlacedAt:           order.PlacedAt,
	}
}

func newOrderListResponse(orders []models.Order) []orderResponse {
	out := make([]orderResponse, 0, len(orders))
	for i := range orders {
		out = append(out, newOrderResponse(&orders[i]))
	}
	return out
}
