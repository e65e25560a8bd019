package security

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/tablyhq/tably-backend/pkg/config"
	pkgerrors "github.com/tablyhq/tably-backend/pkg/errors"
)

// CredentialClaims scope a session credential to one participant of one
// session. The credential is opaque to clients; they echo it back on every
// authenticated call.
type CredentialClaims struct {
	SessionID     uuid.UUID `json:"sid"`
	ParticipantID uuid.UUID `json:"pid"`
	StoreID       uuid.UUID `json:"stid"`
	jwt.RegisteredClaims
}

// CredentialIssuer signs and verifies session credentials.
type CredentialIssuer struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// NewCredentialIssuer builds an issuer from configuration.
func NewCredentialIssuer(cfg config.CredentialConfig) (*CredentialIssuer, error) {
	if cfg.Secret == "" {
		return nil, fmt.Errorf("credential secret is required")
	}
	ttl := cfg.TTL()
	if ttl <= 0 {
		return nil, fmt.Errorf("credential ttl must be positive")
	}
	return &CredentialIssuer{
		secret: []byte(cfg.Secret),
		issuer: cfg.Issuer,
		ttl:    ttl,
		now:    time.Now,
	}, nil
}

// Issue signs a credential for the given session/participant/store triple.
func (i *CredentialIssuer) Issue(sessionID, participantID, storeID uuid.UUID) (string, error) {
	now := i.now().UTC()
	claims := CredentialClaims{
		SessionID:     sessionID,
		ParticipantID: participantID,
		StoreID:       storeID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.issuer,
			Subject:   participantID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
			ID:        uuid.NewString(),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("signing credential: %w", err)
	}
	return signed, nil
}

// Parse verifies the signature, expiry, and issuer of a credential.
func (i *CredentialIssuer) Parse(raw string) (*CredentialClaims, error) {
	claims := &CredentialClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return i.secret, nil
	}, jwt.WithIssuer(i.issuer), jwt.WithExpirationRequired())
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid session credential")
	}
	if !token.Valid {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid session credential")
	}
	if claims.SessionID == uuid.Nil || claims.ParticipantID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "credential missing scope")
	}
	return claims, nil
}
