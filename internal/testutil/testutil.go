package testutil

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/thephpleague/oauth2-server-sub003/storage"
)

var (
	testKeyOnce sync.Once
	testKey     *rsa.PrivateKey
	testKeyErr  error
)

// TestRSAKey returns a process-wide RSA signing key for tests. Generating a
// key per test is too slow, and tests never depend on the key material
// itself.
func TestRSAKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	testKeyOnce.Do(func() {
		testKey, testKeyErr = rsa.GenerateKey(rand.Reader, 2048)
	})
	if testKeyErr != nil {
		t.Fatalf("failed to generate test RSA key: %v", testKeyErr)
	}
	return testKey
}

// HashSecret bcrypt-hashes a client secret at minimum cost for fast tests.
func HashSecret(t *testing.T, secret string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("failed to hash secret: %v", err)
	}
	return string(hash)
}

// GenerateTestClient creates a confidential test client whose secret is
// "test-secret".
func GenerateTestClient(t *testing.T) *storage.Client {
	t.Helper()
	return &storage.Client{
		ClientID:         "test-client-id",
		ClientSecretHash: HashSecret(t, "test-secret"),
		ClientType:       storage.ClientTypeConfidential,
		ClientName:       "Test Client",
		RedirectURIs:     []string{"https://example.com/callback"},
		GrantTypes:       []string{"authorization_code", "refresh_token", "client_credentials"},
		Scopes:           []string{"read", "write"},
		CreatedAt:        time.Now(),
	}
}

// GenerateTestPublicClient creates a public test client with a loopback
// redirect URI.
func GenerateTestPublicClient() *storage.Client {
	return &storage.Client{
		ClientID:     "test-public-client",
		ClientType:   storage.ClientTypePublic,
		ClientName:   "Test Public Client",
		RedirectURIs: []string{"http://127.0.0.1/callback"},
		GrantTypes:   []string{"authorization_code", "refresh_token"},
		Scopes:       []string{"read"},
		CreatedAt:    time.Now(),
	}
}

// GenerateTestAuthorizationCode creates an unused authorization code bound to
// the test client, with an S256 challenge for the given verifier.
func GenerateTestAuthorizationCode(verifier string) *storage.AuthorizationCode {
	code := &storage.AuthorizationCode{
		Code:        GenerateRandomString(32),
		ClientID:    "test-client-id",
		UserID:      "test-user-123",
		RedirectURI: "https://example.com/callback",
		Scopes:      []string{"read"},
		CreatedAt:   time.Now(),
		ExpiresAt:   time.Now().Add(10 * time.Minute),
	}
	if verifier != "" {
		hash := sha256.Sum256([]byte(verifier))
		code.CodeChallenge = base64.RawURLEncoding.EncodeToString(hash[:])
		code.CodeChallengeMethod = "S256"
	}
	return code
}

// GenerateRandomString generates a random base64url-encoded string.
func GenerateRandomString(length int) string {
	b := make([]byte, length)
	if _, err := rand.Read(b); err != nil {
		panic(fmt.Sprintf("failed to generate random string: %v", err))
	}
	return base64.RawURLEncoding.EncodeToString(b)[:length]
}

// GeneratePKCEPair generates a valid PKCE challenge and verifier pair.
// The challenge is the base64url-encoded S256 hash of the verifier.
func GeneratePKCEPair() (challenge, verifier string) {
	verifier = GenerateRandomString(50)
	hash := sha256.Sum256([]byte(verifier))
	challenge = base64.RawURLEncoding.EncodeToString(hash[:])
	return challenge, verifier
}

// AssertNoError fails the test if err is not nil
func AssertNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// AssertError fails the test if err is nil
func AssertError(t *testing.T, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error but got nil")
	}
}

// AssertEqual fails the test if got != want
func AssertEqual(t *testing.T, got, want interface{}) {
	t.Helper()
	if got != want {
		t.Errorf("got %v, want %v", got, want)
	}
}

// AssertTrue fails the test if condition is false
func AssertTrue(t *testing.T, condition bool, message string) {
	t.Helper()
	if !condition {
		t.Errorf("assertion failed: %s", message)
	}
}

// AssertFalse fails the test if condition is true
func AssertFalse(t *testing.T, condition bool, message string) {
	t.Helper()
	if condition {
		t.Errorf("assertion failed: %s", message)
	}
}
