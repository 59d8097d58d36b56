package server

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/thephpleague/oauth2-server-sub003/security"
	"github.com/thephpleague/oauth2-server-sub003/storage"
)

// GrantResult is the outcome of a successful token grant.
type GrantResult struct {
	// AccessToken is the stored token record; its ID is the JWT's jti.
	AccessToken *storage.AccessToken

	// SignedToken is the serialized JWT handed to the client.
	SignedToken string

	// RefreshToken is nil for grants that do not issue one.
	RefreshToken *storage.RefreshToken

	// ExpiresIn is the access token lifetime in seconds.
	ExpiresIn int64
}

// mintAccessToken creates, persists, and signs an access token. grantID
// names the token family: the authorization code for code grants, a fresh
// random identifier otherwise.
func (s *Server) mintAccessToken(ctx context.Context, ownerType, ownerID, clientID, grantID string, scopes []string) (*storage.AccessToken, string, *OAuthError) {
	now := time.Now()
	tok := &storage.AccessToken{
		ID:        uuid.NewString(),
		OwnerType: ownerType,
		OwnerID:   ownerID,
		ClientID:  clientID,
		GrantID:   grantID,
		Scopes:    scopes,
		CreatedAt: now,
		ExpiresAt: now.Add(time.Duration(s.Config.AccessTokenTTL) * time.Second),
	}

	if err := s.repos.AccessTokens.SaveAccessToken(ctx, tok); err != nil {
		s.Logger.Error("Failed to persist access token", "error", err)
		return nil, "", ErrServerError("failed to issue access token")
	}

	signed, err := s.codec.Encode(tok)
	if err != nil {
		s.Logger.Error("Failed to sign access token", "error", err)
		// Best effort: do not leave an unusable token record behind
		_ = s.repos.AccessTokens.RevokeAccessToken(ctx, tok.ID)
		return nil, "", ErrServerError("failed to issue access token")
	}

	return tok, signed, nil
}

// mintRefreshToken creates and persists a refresh token bound to an access
// token. Refresh tokens are long-lived bearer credentials, so their
// identifiers come straight from the system randomness source and issuance
// aborts if that source fails.
func (s *Server) mintRefreshToken(ctx context.Context, accessToken *storage.AccessToken) (*storage.RefreshToken, *OAuthError) {
	id, err := security.GenerateIdentifier(security.DefaultIdentifierBytes)
	if err != nil {
		s.Logger.Error("Failed to generate refresh token identifier", "error", err)
		return nil, ErrServerError("failed to issue refresh token")
	}

	now := time.Now()
	rt := &storage.RefreshToken{
		ID:            id,
		AccessTokenID: accessToken.ID,
		ClientID:      accessToken.ClientID,
		OwnerID:       accessToken.OwnerID,
		GrantID:       accessToken.GrantID,
		Scopes:        accessToken.Scopes,
		CreatedAt:     now,
		ExpiresAt:     now.Add(time.Duration(s.Config.RefreshTokenTTL) * time.Second),
	}

	if err := s.repos.RefreshTokens.SaveRefreshToken(ctx, rt); err != nil {
		s.Logger.Error("Failed to persist refresh token", "error", err)
		return nil, ErrServerError("failed to issue refresh token")
	}

	return rt, nil
}

// scopesWithin reports whether every element of requested appears in granted.
func scopesWithin(requested, granted []string) bool {
	allowed := make(map[string]bool, len(granted))
	for _, scope := range granted {
		allowed[scope] = true
	}
	for _, scope := range requested {
		if !allowed[scope] {
			return false
		}
	}
	return true
}
