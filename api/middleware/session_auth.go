package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/tablyhq/tably-backend/api/responses"
	pkgerrors "github.com/tablyhq/tably-backend/pkg/errors"
	"github.com/tablyhq/tably-backend/pkg/logger"
	"github.com/tablyhq/tably-backend/pkg/security"
)

type sessionClaimsKey struct{}

// CredentialParser verifies a signed session credential.
type CredentialParser interface {
	Parse(raw string) (*security.CredentialClaims, error)
}

// SessionAuth verifies the bearer session credential and stashes its claims
// in the request context. Websocket clients cannot set headers, so the
// credential is also accepted from the "credential" query parameter.
func SessionAuth(parser CredentialParser, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			raw := bearerToken(r)
			if raw == "" {
				raw = r.URL.Query().Get("credential")
			}
			if raw == "" {
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "session credential required"))
				return
			}

			claims, err := parser.Parse(raw)
			if err != nil {
				responses.WriteError(ctx, logg, w, err)
				return
			}

			if logg != nil {
				ctx = logg.WithSessionID(ctx, claims.SessionID.String())
				ctx = logg.WithParticipantID(ctx, claims.ParticipantID.String())
				ctx = logg.WithStoreID(ctx, claims.StoreID.String())
			}
			ctx = context.WithValue(ctx, sessionClaimsKey{}, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// SessionClaimsFromContext returns the verified claims placed by SessionAuth.
func SessionClaimsFromContext(ctx context.Context) (*security.CredentialClaims, bool) {
	claims, ok := ctx.Value(sessionClaimsKey{}).(*security.CredentialClaims)
	return claims, ok
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
