package tabletoken

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tablyhq/tably-backend/pkg/config"
	pkgerrors "github.com/tablyhq/tably-backend/pkg/errors"
)

// Claims identify the physical table a QR code points at. QRVersion pins the
// token to the code generation it was printed with, so reprinting a table's
// code invalidates every token minted before the bump.
type Claims struct {
	TableID   uuid.UUID `json:"table_id"`
	StoreID   uuid.UUID `json:"store_id"`
	QRVersion int       `json:"qr_version"`
	IssuedAt  int64     `json:"iat"`
}

// Codec signs and verifies table tokens. The format is
// base64url(json claims) "." base64url(hmac-sha256).
type Codec struct {
	secret []byte
	now    func() time.Time
}

// NewCodec builds a codec from configuration.
func NewCodec(cfg config.TableTokenConfig) (*Codec, error) {
	if cfg.Secret == "" {
		return nil, fmt.Errorf("table token secret is required")
	}
	return &Codec{secret: []byte(cfg.Secret), now: time.Now}, nil
}

// Issue mints a token for the table at the given code generation.
func (c *Codec) Issue(tableID, storeID uuid.UUID, qrVersion int) (string, error) {
	if tableID == uuid.Nil || storeID == uuid.Nil {
		return "", fmt.Errorf("table and store ids are required")
	}
	claims := Claims{
		TableID:   tableID,
		StoreID:   storeID,
		QRVersion: qrVersion,
		IssuedAt:  c.now().UTC().Unix(),
	}
	payload, err := json.Marshal(claims)
	if err != nil {
		return "", fmt.Errorf("encoding table token claims: %w", err)
	}
	body := base64.RawURLEncoding.EncodeToString(payload)
	return body + "." + c.sign(body), nil
}

// Verify checks the signature and decodes the claims. It does not check the
// claimed QR version against storage; callers own that comparison.
func (c *Codec) Verify(token string) (*Claims, error) {
	body, sig, ok := strings.Cut(token, ".")
	if !ok || body == "" || sig == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "malformed table token")
	}
	if !hmac.Equal([]byte(sig), []byte(c.sign(body))) {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "table token signature mismatch")
	}
	payload, err := base64.RawURLEncoding.DecodeString(body)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "malformed table token body")
	}
	claims := &Claims{}
	if err := json.Unmarshal(payload, claims); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decoding table token claims")
	}
	if claims.TableID == uuid.Nil || claims.StoreID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "table token missing identifiers")
	}
	return claims, nil
}

func (c *Codec) sign(body string) string {
	mac := hmac.New(sha256.New, c.secret)
	mac.Write([]byte(body))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}
