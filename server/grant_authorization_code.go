package server

import (
	"context"
	"errors"

	"github.com/thephpleague/oauth2-server-sub003/events"
	"github.com/thephpleague/oauth2-server-sub003/storage"
)

// grantAuthorizationCode redeems an authorization code for tokens. The code
// is consumed atomically so concurrent redemptions of the same code succeed
// exactly once; a redemption attempt on an already-used code revokes every
// token minted from the first redemption (RFC 6749 section 4.1.2).
func (s *Server) grantAuthorizationCode(ctx context.Context, client *storage.Client, req *TokenRequest) (*GrantResult, *OAuthError) {
	if req.Code == "" {
		return nil, ErrInvalidRequest("code is required")
	}

	code, err := s.repos.AuthCodes.AtomicConsumeAuthorizationCode(ctx, req.Code)
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrCodeAlreadyUsed):
			s.handleCodeReuse(ctx, code)
			return nil, ErrInvalidGrant("authorization code is invalid")
		case errors.Is(err, storage.ErrNotFound), errors.Is(err, storage.ErrExpired):
			return nil, ErrInvalidGrant("authorization code is invalid")
		default:
			s.Logger.Error("Failed to consume authorization code", "error", err)
			return nil, ErrServerError("failed to redeem authorization code")
		}
	}

	// The code must have been issued to the authenticated client.
	if code.ClientID != client.ClientID {
		s.Logger.Warn("Authorization code presented by wrong client",
			"issued_to", code.ClientID,
			"presented_by", client.ClientID)
		return nil, ErrInvalidGrant("authorization code is invalid")
	}

	// RFC 6749 section 4.1.3: redirect_uri must match the one used on the
	// authorization request, and is required whenever one was used there.
	if code.RedirectURI != "" && req.RedirectURI != code.RedirectURI {
		return nil, ErrInvalidGrant("redirect_uri does not match the authorization request")
	}

	if oauthErr := s.validatePKCE(code.CodeChallenge, code.CodeChallengeMethod, req.CodeVerifier); oauthErr != nil {
		if m := s.metrics(); m != nil {
			m.RecordPKCEValidationFailed(ctx, code.CodeChallengeMethod)
		}
		return nil, oauthErr
	}

	accessToken, signed, oauthErr := s.mintAccessToken(ctx, storage.OwnerTypeUser, code.UserID, client.ClientID, code.Code, code.Scopes)
	if oauthErr != nil {
		return nil, oauthErr
	}

	refreshToken, oauthErr := s.mintRefreshToken(ctx, accessToken)
	if oauthErr != nil {
		_ = s.repos.AccessTokens.RevokeAccessToken(ctx, accessToken.ID)
		return nil, oauthErr
	}

	s.Emitter.Emit(ctx, &events.Event{
		Name:     events.AccessTokenIssued,
		ClientID: client.ClientID,
		UserID:   code.UserID,
		TokenID:  accessToken.ID,
		Scopes:   accessToken.Scopes,
		Details:  map[string]any{"grant_type": GrantTypeAuthorizationCode},
	})
	s.Emitter.Emit(ctx, &events.Event{
		Name:     events.RefreshTokenIssued,
		ClientID: client.ClientID,
		UserID:   code.UserID,
		TokenID:  refreshToken.ID,
		Scopes:   refreshToken.Scopes,
	})

	s.Logger.Info("Access token issued",
		"grant_type", GrantTypeAuthorizationCode,
		"client_id", client.ClientID,
		"token_id", accessToken.ID,
		"scopes", accessToken.Scopes)

	return &GrantResult{
		AccessToken:  accessToken,
		SignedToken:  signed,
		RefreshToken: refreshToken,
		ExpiresIn:    s.Config.AccessTokenTTL,
	}, nil
}

// handleCodeReuse reacts to the redemption of an already-used authorization
// code: the code may have been stolen, so every token issued from the first
// redemption is revoked.
func (s *Server) handleCodeReuse(ctx context.Context, code *storage.AuthorizationCode) {
	if code == nil {
		return
	}

	s.Logger.Warn("Authorization code reuse detected",
		"client_id", code.ClientID,
		"code_prefix", safeTruncate(code.Code, 8))

	if m := s.metrics(); m != nil {
		m.RecordCodeReuseDetected(ctx)
	}

	revokedAccess, err := s.repos.AccessTokens.RevokeAccessTokensByGrantID(ctx, code.Code)
	if err != nil {
		s.Logger.Error("Failed to revoke access tokens after code reuse", "error", err)
	}
	revokedRefresh, err := s.repos.RefreshTokens.RevokeRefreshTokensByGrantID(ctx, code.Code)
	if err != nil {
		s.Logger.Error("Failed to revoke refresh tokens after code reuse", "error", err)
	}

	s.Emitter.Emit(ctx, &events.Event{
		Name:     events.CodeReuseDetected,
		ClientID: code.ClientID,
		UserID:   code.UserID,
		Details: map[string]any{
			"revoked_access_tokens":  revokedAccess,
			"revoked_refresh_tokens": revokedRefresh,
		},
	})
}
