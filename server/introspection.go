package server

import (
	"context"
	"errors"
	"strings"

	"github.com/thephpleague/oauth2-server-sub003/events"
	"github.com/thephpleague/oauth2-server-sub003/storage"
	"github.com/thephpleague/oauth2-server-sub003/token"
)

// Introspection holds the result of an RFC 7662 token introspection.
// When Active is false every other field is zero: the response for an
// inactive token is exactly {"active": false}, revealing nothing about why.
type Introspection struct {
	Active    bool
	Scope     string
	ClientID  string
	Subject   string
	TokenType string
	ExpiresAt int64
	IssuedAt  int64
	NotBefore int64
	Audience  []string
	Issuer    string
	TokenID   string
}

// IntrospectToken inspects an access token per RFC 7662. Invalid, expired,
// and revoked tokens all yield the same inactive result; errors are reserved
// for backend failures.
func (s *Server) IntrospectToken(ctx context.Context, tokenString string) (*Introspection, *OAuthError) {
	inactive := &Introspection{Active: false}

	if tokenString == "" {
		return inactive, nil
	}

	claims, err := s.codec.Decode(tokenString)
	if err != nil {
		if errors.Is(err, token.ErrTokenExpired) || errors.Is(err, token.ErrTokenInvalid) {
			return inactive, nil
		}
		s.Logger.Error("Failed to decode token for introspection", "error", err)
		return nil, ErrServerError("failed to introspect token")
	}

	revoked, err := s.repos.AccessTokens.IsAccessTokenRevoked(ctx, claims.ID)
	if err != nil {
		s.Logger.Error("Failed to check token revocation", "error", err)
		return nil, ErrServerError("failed to introspect token")
	}
	if revoked {
		return inactive, nil
	}

	result := &Introspection{
		Active:    true,
		Scope:     strings.Join(claims.Scopes, " "),
		ClientID:  claims.ClientID,
		TokenType: "access_token",
		Audience:  claims.Audience,
		TokenID:   claims.ID,
	}
	if claims.Subject != "" {
		result.Subject = claims.Subject
	}
	if claims.Issuer != "" {
		result.Issuer = claims.Issuer
	}
	if claims.ExpiresAt != nil {
		result.ExpiresAt = claims.ExpiresAt.Unix()
	}
	if claims.IssuedAt != nil {
		result.IssuedAt = claims.IssuedAt.Unix()
	}
	if claims.NotBefore != nil {
		result.NotBefore = claims.NotBefore.Unix()
	}

	return result, nil
}

// RevokeToken revokes a token per RFC 7009. Tokens the server does not
// recognize are not an error, so a client cannot probe the token store
// through this endpoint. Access tokens may only be revoked by the client
// they were issued to; refresh tokens are unguessable random strings, so
// presenting one proves possession.
func (s *Server) RevokeToken(ctx context.Context, client *storage.Client, tokenString, tokenTypeHint string) *OAuthError {
	if tokenString == "" {
		return nil
	}

	if tokenTypeHint == "refresh_token" {
		return s.revokeRefreshTokenString(ctx, client, tokenString)
	}

	claims, err := s.codec.Decode(tokenString)
	if err == nil {
		if claims.ClientID != client.ClientID {
			return nil
		}
		if err := s.repos.AccessTokens.RevokeAccessToken(ctx, claims.ID); err != nil {
			s.Logger.Error("Failed to revoke access token", "error", err)
			return ErrServerError("failed to revoke token")
		}
		s.Emitter.Emit(ctx, &events.Event{
			Name:     events.AccessTokenRevoked,
			ClientID: client.ClientID,
			TokenID:  claims.ID,
		})
		s.Logger.Info("Access token revoked", "client_id", client.ClientID, "token_id", claims.ID)
		return nil
	}

	// Not a JWT the codec recognizes; treat it as a refresh token.
	return s.revokeRefreshTokenString(ctx, client, tokenString)
}

func (s *Server) revokeRefreshTokenString(ctx context.Context, client *storage.Client, tokenString string) *OAuthError {
	if err := s.repos.RefreshTokens.RevokeRefreshToken(ctx, tokenString); err != nil {
		s.Logger.Error("Failed to revoke refresh token", "error", err)
		return ErrServerError("failed to revoke token")
	}
	s.Emitter.Emit(ctx, &events.Event{
		Name:     events.RefreshTokenRevoked,
		ClientID: client.ClientID,
	})
	s.Logger.Info("Refresh token revoked", "client_id", client.ClientID)
	return nil
}
