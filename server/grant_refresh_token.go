package server

import (
	"context"
	"errors"
	"strings"

	"github.com/thephpleague/oauth2-server-sub003/events"
	"github.com/thephpleague/oauth2-server-sub003/storage"
)

// grantRefreshToken exchanges a refresh token for a new access token
// (RFC 6749 section 6). Under rotation the presented token is consumed
// atomically and a replacement is issued; presenting an already-consumed
// token revokes the whole token family, since the legitimate client or an
// attacker is holding a stolen copy.
func (s *Server) grantRefreshToken(ctx context.Context, client *storage.Client, req *TokenRequest) (*GrantResult, *OAuthError) {
	if req.RefreshToken == "" {
		return nil, ErrInvalidRequest("refresh_token is required")
	}

	rt, err := s.repos.RefreshTokens.AtomicConsumeRefreshToken(ctx, req.RefreshToken)
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrTokenConsumed):
			s.handleRefreshTokenReuse(ctx, rt)
			return nil, ErrInvalidGrant("refresh token is invalid")
		case errors.Is(err, storage.ErrNotFound), errors.Is(err, storage.ErrExpired):
			return nil, ErrInvalidGrant("refresh token is invalid")
		default:
			s.Logger.Error("Failed to consume refresh token", "error", err)
			return nil, ErrServerError("failed to redeem refresh token")
		}
	}

	// The refresh token must have been issued to the authenticated client.
	if rt.ClientID != client.ClientID {
		s.Logger.Warn("Refresh token presented by wrong client",
			"issued_to", rt.ClientID,
			"presented_by", client.ClientID)
		_, _ = s.repos.AccessTokens.RevokeAccessTokensByGrantID(ctx, rt.GrantID)
		_, _ = s.repos.RefreshTokens.RevokeRefreshTokensByGrantID(ctx, rt.GrantID)
		return nil, ErrInvalidGrant("refresh token is invalid")
	}

	// RFC 6749 section 6: scope may narrow the grant, never widen it.
	scopes := rt.Scopes
	if req.Scope != "" {
		requested := strings.Fields(req.Scope)
		if !scopesWithin(requested, rt.Scopes) {
			return nil, ErrInvalidScope("requested scope exceeds the original grant")
		}
		scopes = requested
	}

	// The previous access token dies with the refresh that replaced it.
	if err := s.repos.AccessTokens.RevokeAccessToken(ctx, rt.AccessTokenID); err != nil {
		s.Logger.Error("Failed to revoke replaced access token",
			"token_id", rt.AccessTokenID, "error", err)
	}

	accessToken, signed, oauthErr := s.mintAccessToken(ctx, storage.OwnerTypeUser, rt.OwnerID, client.ClientID, rt.GrantID, scopes)
	if oauthErr != nil {
		return nil, oauthErr
	}

	result := &GrantResult{
		AccessToken: accessToken,
		SignedToken: signed,
		ExpiresIn:   s.Config.AccessTokenTTL,
	}

	if s.Config.AllowRefreshTokenRotation {
		replacement, oauthErr := s.mintRefreshToken(ctx, accessToken)
		if oauthErr != nil {
			_ = s.repos.AccessTokens.RevokeAccessToken(ctx, accessToken.ID)
			return nil, oauthErr
		}
		result.RefreshToken = replacement

		s.Emitter.Emit(ctx, &events.Event{
			Name:     events.RefreshTokenIssued,
			ClientID: client.ClientID,
			UserID:   rt.OwnerID,
			TokenID:  replacement.ID,
			Scopes:   replacement.Scopes,
		})
	} else {
		// Without rotation the presented token stays valid; re-persisting
		// the consumed record keeps it redeemable.
		restored := *rt
		restored.Consumed = false
		restored.AccessTokenID = accessToken.ID
		if err := s.repos.RefreshTokens.SaveRefreshToken(ctx, &restored); err != nil {
			s.Logger.Error("Failed to restore refresh token", "error", err)
			return nil, ErrServerError("failed to redeem refresh token")
		}
	}

	s.Emitter.Emit(ctx, &events.Event{
		Name:     events.AccessTokenRefreshed,
		ClientID: client.ClientID,
		UserID:   rt.OwnerID,
		TokenID:  accessToken.ID,
		Scopes:   accessToken.Scopes,
	})

	if m := s.metrics(); m != nil {
		m.RecordTokenRefresh(ctx, client.ClientID, s.Config.AllowRefreshTokenRotation)
	}

	s.Logger.Info("Access token refreshed",
		"client_id", client.ClientID,
		"token_id", accessToken.ID,
		"rotation", s.Config.AllowRefreshTokenRotation,
		"scopes", accessToken.Scopes)

	return result, nil
}

// handleRefreshTokenReuse reacts to the replay of a consumed refresh token
// by revoking every token in its family.
func (s *Server) handleRefreshTokenReuse(ctx context.Context, rt *storage.RefreshToken) {
	if rt == nil {
		// The store only kept a tombstone; nothing left to revoke.
		return
	}

	s.Logger.Warn("Refresh token reuse detected",
		"client_id", rt.ClientID,
		"token_prefix", safeTruncate(rt.ID, 8))

	if m := s.metrics(); m != nil {
		m.RecordTokenReuseDetected(ctx)
	}

	revokedAccess, err := s.repos.AccessTokens.RevokeAccessTokensByGrantID(ctx, rt.GrantID)
	if err != nil {
		s.Logger.Error("Failed to revoke access tokens after refresh reuse", "error", err)
	}
	revokedRefresh, err := s.repos.RefreshTokens.RevokeRefreshTokensByGrantID(ctx, rt.GrantID)
	if err != nil {
		s.Logger.Error("Failed to revoke refresh tokens after refresh reuse", "error", err)
	}

	s.Emitter.Emit(ctx, &events.Event{
		Name:     events.RefreshTokenReuseDetected,
		ClientID: rt.ClientID,
		UserID:   rt.OwnerID,
		TokenID:  rt.ID,
		Details: map[string]any{
			"revoked_access_tokens":  revokedAccess,
			"revoked_refresh_tokens": revokedRefresh,
		},
	})
}
