package server

import (
	"context"

	"github.com/thephpleague/oauth2-server-sub003/events"
	"github.com/thephpleague/oauth2-server-sub003/storage"
)

// grantClientCredentials issues an access token to the client itself
// (RFC 6749 section 4.4). Only confidential clients qualify, and no refresh
// token is issued: the client can always authenticate again.
func (s *Server) grantClientCredentials(ctx context.Context, client *storage.Client, req *TokenRequest) (*GrantResult, *OAuthError) {
	if !client.IsConfidential() {
		return nil, ErrUnauthorizedClient("client_credentials requires a confidential client")
	}

	scopes, oauthErr := s.resolveScopes(ctx, client, req.Scope)
	if oauthErr != nil {
		return nil, oauthErr
	}

	accessToken, signed, oauthErr := s.mintAccessToken(ctx, storage.OwnerTypeClient, client.ClientID, client.ClientID, generateRandomToken(), scopes)
	if oauthErr != nil {
		return nil, oauthErr
	}

	s.Emitter.Emit(ctx, &events.Event{
		Name:     events.AccessTokenIssued,
		ClientID: client.ClientID,
		TokenID:  accessToken.ID,
		Scopes:   accessToken.Scopes,
		Details:  map[string]any{"grant_type": GrantTypeClientCredentials},
	})

	s.Logger.Info("Access token issued",
		"grant_type", GrantTypeClientCredentials,
		"client_id", client.ClientID,
		"token_id", accessToken.ID,
		"scopes", accessToken.Scopes)

	return &GrantResult{
		AccessToken: accessToken,
		SignedToken: signed,
		ExpiresIn:   s.Config.AccessTokenTTL,
	}, nil
}
