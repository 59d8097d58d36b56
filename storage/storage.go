// Package storage defines the repository interfaces the grant engine depends
// on, together with the domain entities exchanged through them. The engine
// performs no I/O of its own; every lookup and persistence operation goes
// through these interfaces so backends (in-memory, Redis, databases) can be
// swapped freely. All methods accept context.Context for tracing and
// cancellation.
package storage

import (
	"context"
	"errors"
)

// Sentinel errors returned by repository implementations. The grant engine
// maps these to protocol errors; backends should wrap them rather than
// invent their own equivalents.
var (
	// ErrNotFound indicates the requested entity does not exist.
	ErrNotFound = errors.New("storage: not found")

	// ErrCodeAlreadyUsed indicates an authorization code was presented a
	// second time. The engine treats this as a reuse attack signal.
	ErrCodeAlreadyUsed = errors.New("storage: authorization code already used")

	// ErrTokenConsumed indicates a refresh token was already consumed by a
	// prior rotation. The engine treats this as a reuse attack signal.
	ErrTokenConsumed = errors.New("storage: refresh token already consumed")

	// ErrExpired indicates the entity exists but is past its expiry.
	ErrExpired = errors.New("storage: expired")

	// ErrInvalidCredentials indicates a secret or password comparison failed.
	ErrInvalidCredentials = errors.New("storage: invalid credentials")
)

// ClientRepository manages registered OAuth clients.
type ClientRepository interface {
	// GetClient retrieves a client by its identifier.
	// Returns ErrNotFound for unknown identifiers.
	GetClient(ctx context.Context, clientID string) (*Client, error)

	// ValidateClientSecret checks a confidential client's secret.
	// Implementations MUST compare in constant time (bcrypt satisfies this).
	// Returns ErrInvalidCredentials on mismatch and ErrNotFound for unknown
	// clients; callers should surface both identically to avoid enumeration.
	ValidateClientSecret(ctx context.Context, clientID, clientSecret string) error
}

// AccessTokenRepository persists issued access tokens and tracks revocation.
type AccessTokenRepository interface {
	// SaveAccessToken persists a newly minted access token.
	SaveAccessToken(ctx context.Context, token *AccessToken) error

	// RevokeAccessToken marks the token with the given identifier (jti) as
	// revoked. Revoking an unknown identifier is not an error (RFC 7009).
	RevokeAccessToken(ctx context.Context, tokenID string) error

	// IsAccessTokenRevoked reports whether the given identifier has been
	// revoked. The bearer validator rejects revoked identifiers regardless
	// of signature validity or remaining lifetime.
	IsAccessTokenRevoked(ctx context.Context, tokenID string) (bool, error)

	// RevokeAccessTokensByGrantID revokes every access token in the given
	// token family and returns how many were revoked. Used when code or
	// refresh token reuse is detected.
	RevokeAccessTokensByGrantID(ctx context.Context, grantID string) (int, error)
}

// RefreshTokenRepository persists refresh tokens and enforces single-use
// consumption under rotation.
type RefreshTokenRepository interface {
	// SaveRefreshToken persists a newly minted refresh token.
	SaveRefreshToken(ctx context.Context, token *RefreshToken) error

	// AtomicConsumeRefreshToken atomically retrieves and invalidates a
	// refresh token. Exactly one of any number of concurrent calls for the
	// same identifier succeeds; the rest fail with ErrTokenConsumed, and
	// when the stored record is still available it is returned alongside
	// that error so the engine can revoke the token's family.
	// Expired tokens fail with ErrExpired, unknown ones with ErrNotFound.
	// SECURITY: atomicity here is what makes refresh token rotation safe
	// against concurrent replay.
	AtomicConsumeRefreshToken(ctx context.Context, tokenID string) (*RefreshToken, error)

	// RevokeRefreshToken invalidates a refresh token. Revoking an unknown
	// identifier is not an error (RFC 7009).
	RevokeRefreshToken(ctx context.Context, tokenID string) error

	// RevokeRefreshTokensByGrantID revokes every refresh token in the given
	// token family and returns how many were revoked. Used when code or
	// refresh token reuse is detected.
	RevokeRefreshTokensByGrantID(ctx context.Context, grantID string) (int, error)
}

// AuthCodeRepository persists authorization codes and enforces their
// single-use invariant.
type AuthCodeRepository interface {
	// SaveAuthorizationCode persists a newly issued authorization code.
	SaveAuthorizationCode(ctx context.Context, code *AuthorizationCode) error

	// AtomicConsumeAuthorizationCode atomically checks that a code is
	// unused and marks it consumed, returning the stored code. Exactly one
	// of any number of concurrent redemptions succeeds.
	// Failure modes: ErrNotFound (unknown), ErrExpired (past expiry), and
	// ErrCodeAlreadyUsed (reuse attempt; the returned code is non-nil in
	// this case so the engine can revoke the tokens minted from the first
	// redemption).
	// SECURITY: this operation MUST be atomic; a code must never be
	// redeemable twice even under concurrent exchange attempts.
	AtomicConsumeAuthorizationCode(ctx context.Context, code string) (*AuthorizationCode, error)
}

// UserRepository authenticates resource owners for the password grant.
type UserRepository interface {
	// AuthenticateUser verifies a username/password pair and returns the
	// matching user. Implementations MUST compare passwords in constant
	// time and return ErrInvalidCredentials for both unknown usernames and
	// wrong passwords.
	AuthenticateUser(ctx context.Context, username, password string) (*User, error)
}

// ScopeRepository resolves scope identifiers and supplies defaults.
type ScopeRepository interface {
	// GetScope resolves a scope identifier. Returns ErrNotFound for
	// unknown identifiers.
	GetScope(ctx context.Context, scopeID string) (*Scope, error)

	// DefaultScopes returns the scopes granted when a request names none.
	DefaultScopes(ctx context.Context) ([]*Scope, error)
}

// Repositories bundles every repository the grant engine needs. The wiring
// layer may back all of them with a single store (the in-memory store does)
// or mix backends per concern.
type Repositories struct {
	Clients       ClientRepository
	AccessTokens  AccessTokenRepository
	RefreshTokens RefreshTokenRepository
	AuthCodes     AuthCodeRepository
	Users         UserRepository
	Scopes        ScopeRepository
}
