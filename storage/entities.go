package storage

import (
	"time"
)

// Client type constants.
const (
	// ClientTypeConfidential represents a confidential OAuth client (holds a secret)
	ClientTypeConfidential = "confidential"

	// ClientTypePublic represents a public OAuth client (no secret, PKCE required)
	ClientTypePublic = "public"
)

// Token owner type constants. An access token is owned either by a resource
// owner (user-delegated grants) or by the client itself (client_credentials).
const (
	OwnerTypeUser   = "user"
	OwnerTypeClient = "client"
)

// Client represents a registered OAuth client application.
type Client struct {
	ClientID         string
	ClientSecretHash string // bcrypt hash; empty for public clients
	ClientType       string // "public" or "confidential"
	ClientName       string
	RedirectURIs     []string
	GrantTypes       []string // grant types this client may use; empty allows all
	Scopes           []string // scopes this client may request; empty allows all
	CreatedAt        time.Time
}

// IsConfidential reports whether the client holds a secret and must
// authenticate at the token endpoint.
func (c *Client) IsConfidential() bool {
	return c.ClientType == ClientTypeConfidential
}

// AllowsGrantType reports whether the client may use the given grant type.
// An empty allowlist permits every grant type.
func (c *Client) AllowsGrantType(grantType string) bool {
	if len(c.GrantTypes) == 0 {
		return true
	}
	for _, gt := range c.GrantTypes {
		if gt == grantType {
			return true
		}
	}
	return false
}

// Scope represents a single permission unit.
type Scope struct {
	ID          string
	Description string
}

// User represents a resource owner. The core only needs the identifier;
// everything else is opaque profile data for introspection consumers.
type User struct {
	ID       string
	Username string
}

// AuthorizationCode represents a single-use code issued by the authorize
// endpoint and redeemed at the token endpoint.
type AuthorizationCode struct {
	Code                string
	ClientID            string
	UserID              string
	RedirectURI         string
	CodeChallenge       string
	CodeChallengeMethod string
	Scopes              []string
	CreatedAt           time.Time
	ExpiresAt           time.Time
	Used                bool
}

// IsExpired reports whether the code is past its expiry. Expiry is strict:
// a code expiring at exactly now is no longer redeemable.
func (c *AuthorizationCode) IsExpired() bool {
	return !time.Now().Before(c.ExpiresAt)
}

// AccessToken represents an issued bearer credential. The identifier is the
// JWT `jti` claim; the signed token string itself is never persisted.
type AccessToken struct {
	ID        string // jti
	OwnerType string // "user" or "client"
	OwnerID   string
	ClientID  string
	GrantID   string // token family; shared by every token descended from one grant
	Scopes    []string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// IsExpired reports whether the token is past its expiry.
func (t *AccessToken) IsExpired() bool {
	return !time.Now().Before(t.ExpiresAt)
}

// RefreshToken represents a credential for minting a replacement access
// token. Each refresh token is bound to exactly one access token generation.
type RefreshToken struct {
	ID            string
	AccessTokenID string // jti of the access token this refresh token belongs to
	ClientID      string
	OwnerID       string
	GrantID       string // token family; shared by every token descended from one grant
	Scopes        []string
	CreatedAt     time.Time
	ExpiresAt     time.Time
	Consumed      bool
}

// IsExpired reports whether the refresh token is past its expiry.
func (t *RefreshToken) IsExpired() bool {
	return !time.Now().Before(t.ExpiresAt)
}
