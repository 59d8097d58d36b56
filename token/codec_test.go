package token

import (
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"testing"
	"time"

	"github.com/thephpleague/oauth2-server-sub003/internal/testutil"
	"github.com/thephpleague/oauth2-server-sub003/storage"
)

const testIssuer = "https://auth.example.com"

func newTestCodec(t *testing.T, leeway time.Duration) *Codec {
	t.Helper()
	params, err := DeriveSigningKeyParams(testutil.TestRSAKey(t), "", "")
	testutil.AssertNoError(t, err)
	codec, err := NewCodec(params, testIssuer, leeway)
	testutil.AssertNoError(t, err)
	return codec
}

func testAccessToken(expiresIn time.Duration) *storage.AccessToken {
	now := time.Now()
	return &storage.AccessToken{
		ID:        "token-id-1",
		OwnerType: storage.OwnerTypeUser,
		OwnerID:   "user-1",
		ClientID:  "client-1",
		GrantID:   "grant-1",
		Scopes:    []string{"read", "write"},
		CreatedAt: now,
		ExpiresAt: now.Add(expiresIn),
	}
}

func TestCodecRoundTrip(t *testing.T) {
	codec := newTestCodec(t, 0)

	signed, err := codec.Encode(testAccessToken(time.Hour))
	testutil.AssertNoError(t, err)

	claims, err := codec.Decode(signed)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, claims.ID, "token-id-1")
	testutil.AssertEqual(t, claims.Subject, "user-1")
	testutil.AssertEqual(t, claims.ClientID, "client-1")
	testutil.AssertEqual(t, claims.Issuer, testIssuer)
	testutil.AssertEqual(t, len(claims.Scopes), 2)
	testutil.AssertEqual(t, len(claims.Audience), 1)
	testutil.AssertEqual(t, claims.Audience[0], "client-1")
}

func TestCodecRejectsExpiredToken(t *testing.T) {
	codec := newTestCodec(t, 0)

	tok := testAccessToken(time.Hour)
	tok.CreatedAt = time.Now().Add(-2 * time.Hour)
	tok.ExpiresAt = time.Now().Add(-time.Hour)

	signed, err := codec.Encode(tok)
	testutil.AssertNoError(t, err)

	_, err = codec.Decode(signed)
	if !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
}

func TestCodecLeewayAcceptsRecentlyExpired(t *testing.T) {
	strict := newTestCodec(t, 0)
	lenient := newTestCodec(t, 2*time.Minute)

	tok := testAccessToken(time.Hour)
	tok.CreatedAt = time.Now().Add(-2 * time.Hour)
	tok.ExpiresAt = time.Now().Add(-30 * time.Second)

	signed, err := strict.Encode(tok)
	testutil.AssertNoError(t, err)

	if _, err := strict.Decode(signed); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("strict codec should reject, got %v", err)
	}
	if _, err := lenient.Decode(signed); err != nil {
		t.Fatalf("lenient codec should accept within leeway, got %v", err)
	}
}

func TestCodecRejectsWrongKey(t *testing.T) {
	codec := newTestCodec(t, 0)

	otherKey, err := rsa.GenerateKey(rand.Reader, 2048)
	testutil.AssertNoError(t, err)
	otherParams, err := DeriveSigningKeyParams(otherKey, "", "")
	testutil.AssertNoError(t, err)
	otherCodec, err := NewCodec(otherParams, testIssuer, 0)
	testutil.AssertNoError(t, err)

	signed, err := otherCodec.Encode(testAccessToken(time.Hour))
	testutil.AssertNoError(t, err)

	if _, err := codec.Decode(signed); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid, got %v", err)
	}
}

func TestCodecRejectsWrongIssuer(t *testing.T) {
	codec := newTestCodec(t, 0)

	params, err := DeriveSigningKeyParams(testutil.TestRSAKey(t), "", "")
	testutil.AssertNoError(t, err)
	otherIssuer, err := NewCodec(params, "https://other.example.com", 0)
	testutil.AssertNoError(t, err)

	signed, err := otherIssuer.Encode(testAccessToken(time.Hour))
	testutil.AssertNoError(t, err)

	if _, err := codec.Decode(signed); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid, got %v", err)
	}
}

func TestCodecRejectsEmptyTokenID(t *testing.T) {
	codec := newTestCodec(t, 0)

	tok := testAccessToken(time.Hour)
	tok.ID = ""

	signed, err := codec.Encode(tok)
	testutil.AssertNoError(t, err)

	if _, err := codec.Decode(signed); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid for missing jti, got %v", err)
	}
}

func TestCodecRejectsGarbage(t *testing.T) {
	codec := newTestCodec(t, 0)

	for _, input := range []string{"", "garbage", "a.b.c"} {
		if _, err := codec.Decode(input); !errors.Is(err, ErrTokenInvalid) {
			t.Errorf("Decode(%q): expected ErrTokenInvalid, got %v", input, err)
		}
	}
}

func TestNewCodecValidation(t *testing.T) {
	params, err := DeriveSigningKeyParams(testutil.TestRSAKey(t), "", "")
	testutil.AssertNoError(t, err)

	if _, err := NewCodec(nil, testIssuer, 0); err == nil {
		t.Error("expected error for nil params")
	}
	if _, err := NewCodec(params, "", 0); err == nil {
		t.Error("expected error for empty issuer")
	}
	if _, err := NewCodec(params, testIssuer, -time.Second); err == nil {
		t.Error("expected error for negative leeway")
	}
}

func TestHMACCodecRoundTrip(t *testing.T) {
	secret := []byte("0123456789abcdef0123456789abcdef")
	codec, err := NewHMACCodec(secret, "HS256", testIssuer, 0)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, codec.Algorithm(), "HS256")
	testutil.AssertEqual(t, codec.KeyID(), "")

	signed, err := codec.Encode(testAccessToken(time.Hour))
	testutil.AssertNoError(t, err)

	claims, err := codec.Decode(signed)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, claims.ID, "token-id-1")
	testutil.AssertEqual(t, claims.Subject, "user-1")
}

func TestHMACCodecRejectsWrongSecret(t *testing.T) {
	a, err := NewHMACCodec([]byte("secret-a-secret-a-secret-a-secre"), "HS256", testIssuer, 0)
	testutil.AssertNoError(t, err)
	b, err := NewHMACCodec([]byte("secret-b-secret-b-secret-b-secre"), "HS256", testIssuer, 0)
	testutil.AssertNoError(t, err)

	signed, err := a.Encode(testAccessToken(time.Hour))
	testutil.AssertNoError(t, err)

	if _, err := b.Decode(signed); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid across secrets, got %v", err)
	}
}

func TestNewHMACCodecValidation(t *testing.T) {
	secret := []byte("0123456789abcdef0123456789abcdef")

	if _, err := NewHMACCodec(nil, "HS256", testIssuer, 0); err == nil {
		t.Error("expected error for empty secret")
	}
	if _, err := NewHMACCodec(secret, "RS256", testIssuer, 0); err == nil {
		t.Error("expected error for non-HMAC algorithm")
	}
	if _, err := NewHMACCodec(secret, "none", testIssuer, 0); err == nil {
		t.Error("expected error for the none algorithm")
	}
	if _, err := NewHMACCodec(secret, "HS256", "", 0); err == nil {
		t.Error("expected error for empty issuer")
	}
}
