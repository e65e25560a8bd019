package tabletoken

import (
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/tablyhq/tably-backend/pkg/config"
	pkgerrors "github.com/tablyhq/tably-backend/pkg/errors"
)

func testCodec(t *testing.T) *Codec {
	t.Helper()
	codec, err := NewCodec(config.TableTokenConfig{Secret: "token-secret"})
	if err != nil {
		t.Fatalf("new codec: %v", err)
	}
	return codec
}

func TestTokenRoundTrip(t *testing.T) {
	codec := testCodec(t)
	tableID := uuid.New()
	storeID := uuid.New()

	token, err := codec.Issue(tableID, storeID, 3)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	claims, err := codec.Verify(token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.TableID != tableID {
		t.Fatalf("table id mismatch: %s", claims.TableID)
	}
	if claims.StoreID != storeID {
		t.Fatalf("store id mismatch: %s", claims.StoreID)
	}
	if claims.QRVersion != 3 {
		t.Fatalf("qr version mismatch: %d", claims.QRVersion)
	}
}

func TestTokenRejectsTamperedBody(t *testing.T) {
	codec := testCodec(t)
	token, err := codec.Issue(uuid.New(), uuid.New(), 1)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	body, sig, _ := strings.Cut(token, ".")
	mutated := body[:len(body)-2] + "xx." + sig
	_, err = codec.Verify(mutated)
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeUnauthorized {
		t.Fatalf("expected unauthorized for tampered body, got %v", err)
	}
}

func TestTokenRejectsForeignSignature(t *testing.T) {
	codec := testCodec(t)
	other, err := NewCodec(config.TableTokenConfig{Secret: "other-secret"})
	if err != nil {
		t.Fatalf("new codec: %v", err)
	}

	token, err := other.Issue(uuid.New(), uuid.New(), 1)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := codec.Verify(token); err == nil {
		t.Fatal("expected verification to fail across secrets")
	}
}

func TestTokenRejectsMalformed(t *testing.T) {
	codec := testCodec(t)
	cases := []string{"", "no-separator", ".only-sig", "only-body.", "!!!.###"}
	for _, raw := range cases {
		if _, err := codec.Verify(raw); err == nil {
			t.Fatalf("expected %q to be rejected", raw)
		}
	}
}
