package server

import (
	"context"
	"errors"
	"strings"

	"github.com/thephpleague/oauth2-server-sub003/token"
)

// Bearer validation errors. The descriptions are safe to return in
// WWW-Authenticate headers; they never say why verification failed beyond
// the expired/invalid distinction RFC 6750 requires.
var (
	// ErrMissingToken indicates no bearer token was presented.
	ErrMissingToken = func() *OAuthError {
		return ErrInvalidRequest("bearer token is required")
	}

	// ErrExpiredToken indicates the token's validity window has passed.
	ErrExpiredToken = func() *OAuthError {
		return ErrInvalidToken("the access token expired")
	}
)

// ValidateBearerToken verifies a bearer token and returns its claims. A
// token passes only if its signature verifies with the pinned algorithm, its
// validity window holds, and its identifier has not been revoked.
func (s *Server) ValidateBearerToken(ctx context.Context, bearerToken string) (*token.Claims, *OAuthError) {
	if bearerToken == "" {
		return nil, ErrMissingToken()
	}

	claims, err := s.codec.Decode(bearerToken)
	if err != nil {
		if errors.Is(err, token.ErrTokenExpired) {
			return nil, ErrExpiredToken()
		}
		return nil, ErrInvalidToken("the access token is invalid")
	}

	revoked, err := s.repos.AccessTokens.IsAccessTokenRevoked(ctx, claims.ID)
	if err != nil {
		s.Logger.Error("Failed to check token revocation", "error", err)
		return nil, ErrServerError("failed to validate token")
	}
	if revoked {
		return nil, ErrInvalidToken("the access token is invalid")
	}

	return claims, nil
}

// ExtractBearerToken pulls the bearer token out of an Authorization header
// value per RFC 6750 section 2.1. The scheme comparison is case-insensitive.
func ExtractBearerToken(authorizationHeader string) string {
	const prefix = "bearer "
	if len(authorizationHeader) > len(prefix) &&
		strings.EqualFold(authorizationHeader[:len(prefix)], prefix) {
		return strings.TrimSpace(authorizationHeader[len(prefix):])
	}
	return ""
}

// HasScope reports whether the claims grant the given scope.
func HasScope(claims *token.Claims, scope string) bool {
	for _, granted := range claims.Scopes {
		if granted == scope {
			return true
		}
	}
	return false
}
