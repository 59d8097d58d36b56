package server

import (
	"context"
	"errors"

	"github.com/thephpleague/oauth2-server-sub003/events"
	"github.com/thephpleague/oauth2-server-sub003/storage"
)

// grantPassword exchanges a resource owner's credentials for tokens
// (RFC 6749 section 4.3). The grant is disabled by default and must be
// enabled in Config for trusted first-party clients.
func (s *Server) grantPassword(ctx context.Context, client *storage.Client, req *TokenRequest) (*GrantResult, *OAuthError) {
	if !s.Config.AllowPasswordGrant {
		return nil, ErrUnsupportedGrantType("the password grant is not enabled")
	}
	if s.repos.Users == nil {
		return nil, ErrUnsupportedGrantType("the password grant is not enabled")
	}
	if req.Username == "" {
		return nil, ErrInvalidRequest("username is required")
	}
	if req.Password == "" {
		return nil, ErrInvalidRequest("password is required")
	}

	user, err := s.repos.Users.AuthenticateUser(ctx, req.Username, req.Password)
	if err != nil {
		if !errors.Is(err, storage.ErrInvalidCredentials) && !errors.Is(err, storage.ErrNotFound) {
			s.Logger.Error("User authentication failed", "error", err)
			return nil, ErrServerError("failed to authenticate resource owner")
		}
		s.Emitter.Emit(ctx, &events.Event{
			Name:     events.UserAuthenticationFailed,
			ClientID: client.ClientID,
			Details:  map[string]any{"grant_type": GrantTypePassword},
		})
		// Same error for unknown users and wrong passwords.
		return nil, ErrInvalidGrant("invalid resource owner credentials")
	}

	scopes, oauthErr := s.resolveScopes(ctx, client, req.Scope)
	if oauthErr != nil {
		return nil, oauthErr
	}

	accessToken, signed, oauthErr := s.mintAccessToken(ctx, storage.OwnerTypeUser, user.ID, client.ClientID, generateRandomToken(), scopes)
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
		UserID:   user.ID,
		TokenID:  accessToken.ID,
		Scopes:   accessToken.Scopes,
		Details:  map[string]any{"grant_type": GrantTypePassword},
	})
	s.Emitter.Emit(ctx, &events.Event{
		Name:     events.RefreshTokenIssued,
		ClientID: client.ClientID,
		UserID:   user.ID,
		TokenID:  refreshToken.ID,
		Scopes:   refreshToken.Scopes,
	})

	s.Logger.Info("Access token issued",
		"grant_type", GrantTypePassword,
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
