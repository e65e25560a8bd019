package controllers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/tablyhq/tably-backend/api/middleware"
	"github.com/tablyhq/tably-backend/api/responses"
	"github.com/tablyhq/tably-backend/api/validators"
	cartsvc "github.com/tablyhq/tably-backend/internal/cart"
	"github.com/tablyhq/tably-backend/internal/catalog"
	"github.com/tablyhq/tably-backend/pkg/enums"
	pkgerrors "github.com/tablyhq/tably-backend/pkg/errors"
	"github.com/tablyhq/tably-backend/pkg/logger"
)

// CartFetch returns the shared cart scoped to the caller's session.
func CartFetch(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := middleware.SessionClaimsFromContext(r.Context())
		if !ok {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "session credential required"))
			return
		}

		cartID, err := uuid.Parse(chi.URLParam(r, "cartId"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cart id"))
			return
		}

		view, err := svc.Get(r.Context(), cartID, claims.SessionID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, view)
	}
}

// CartMutate applies one optimistic-concurrency-guarded change to the cart.
func CartMutate(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := middleware.SessionClaimsFromContext(r.Context())
		if !ok {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "session credential required"))
			return
		}

		cartID, err := uuid.Parse(chi.URLParam(r, "cartId"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cart id"))
			return
		}

		var payload mutationRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input, err := payload.toInput(cartID, claims.SessionID, claims.ParticipantID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		view, err := svc.Mutate(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, view)
	}
}

type mutationRequest struct {
	Action          string                   `json:"action" validate:"required"`
	ExpectedVersion int64                    `json:"expected_version" validate:"required,min=1"`
	MenuItemID      *uuid.UUID               `json:"menu_item_id"`
	ItemID          *uuid.UUID               `json:"item_id"`
	Quantity        int                      `json:"quantity" validate:"min=0,max=99"`
	Selections      []catalog.SelectionInput `json:"selections" validate:"omitempty,dive"`
	ReplaceOptions  bool                     `json:"replace_options"`
}

func (m mutationRequest) toInput(cartID, sessionID, participantID uuid.UUID) (cartsvc.MutateInput, error) {
	action, err := enums.ParseCartAction(m.Action)
	if err != nil {
		return cartsvc.MutateInput{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid action")
	}

	input := cartsvc.MutateInput{
		CartID:          cartID,
		SessionID:       sessionID,
		ParticipantID:   participantID,
		Action:          action,
		ExpectedVersion: m.ExpectedVersion,
		Quantity:        m.Quantity,
		Selections:      m.Selections,
		ReplaceOptions:  m.ReplaceOptions,
	}
	if m.MenuItemID != nil {
		input.MenuItemID = *m.MenuItemID
	}
	if m.ItemID != nil {
		input.ItemID = *m.ItemID
	}
	return input, nil
}
