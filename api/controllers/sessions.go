package controllers

import (
	"net/http"

	"github.com/tablyhq/tably-backend/api/middleware"
	"github.com/tablyhq/tably-backend/api/responses"
	"github.com/tablyhq/tably-backend/api/validators"
	sessionsvc "github.com/tablyhq/tably-backend/internal/sessions"
	pkgerrors "github.com/tablyhq/tably-backend/pkg/errors"
	"github.com/tablyhq/tably-backend/pkg/logger"
)

// SessionJoin handles a device scanning a table QR or entering a short code.
func SessionJoin(svc sessionsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "session service unavailable"))
			return
		}

		var payload joinRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if payload.Token == "" && payload.ShortCode == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "token or short_code is required"))
			return
		}

		result, err := svc.Join(r.Context(), sessionsvc.JoinInput{
			Token:             payload.Token,
			ShortCode:         payload.ShortCode,
			Nickname:          payload.Nickname,
			DeviceFingerprint: payload.DeviceFingerprint,
			Language:          payload.Language,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, result)
	}
}

type joinRequest struct {
	Token             string `json:"token"`
	ShortCode         string `json:"short_code"`
	Nickname          string `json:"nickname" validate:"required,min=1,max=30"`
	DeviceFingerprint string `json:"device_fingerprint" validate:"required"`
	Language          string `json:"language" validate:"omitempty,max=8"`
}

// SessionRefresh reissues the caller's session credential.
func SessionRefresh(svc sessionsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := middleware.SessionClaimsFromContext(r.Context())
		if !ok {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "session credential required"))
			return
		}

		credential, err := svc.RefreshCredential(r.Context(), claims.SessionID, claims.ParticipantID, claims.StoreID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, map[string]string{"credential": credential})
	}
}

// SessionMe returns the caller's session with its participants.
func SessionMe(svc sessionsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := middleware.SessionClaimsFromContext(r.Context())
		if !ok {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "session credential required"))
			return
		}

		view, err := svc.Get(r.Context(), claims.SessionID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, view)
	}
}
