package middleware

import (
	"context"
	"crypto/subtle"
	"net/http"

	"github.com/google/uuid"

	"github.com/tablyhq/tably-backend/api/responses"
	"github.com/tablyhq/tably-backend/pkg/config"
	pkgerrors "github.com/tablyhq/tably-backend/pkg/errors"
	"github.com/tablyhq/tably-backend/pkg/logger"
)

const (
	staffKeyHeader = "X-Staff-Key"
	storeIDHeader  = "X-Store-Id"
)

type staffStoreKey struct{}

// StaffKey gates staff routes behind the shared key and resolves the store
// scope from the X-Store-Id header. Full staff identity lives in the
// back-office service.
func StaffKey(cfg config.StaffConfig, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			provided := r.Header.Get(staffKeyHeader)
			if provided == "" || subtle.ConstantTimeCompare([]byte(provided), []byte(cfg.APIKey)) != 1 {
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid staff key"))
				return
			}

			storeID, err := uuid.Parse(r.Header.Get(storeIDHeader))
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "store id header required"))
				return
			}

			if logg != nil {
				ctx = logg.WithStoreID(ctx, storeID.String())
			}
			ctx = context.WithValue(ctx, staffStoreKey{}, storeID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// StaffStoreFromContext returns the store scope placed by StaffKey.
func StaffStoreFromContext(ctx context.Context) (uuid.UUID, bool) {
	storeID, ok := ctx.Value(staffStoreKey{}).(uuid.UUID)
	return storeID, ok
}
