package server

import (
	"context"
	"fmt"
)

// Grant type identifiers (RFC 6749)
const (
	GrantTypeAuthorizationCode = "authorization_code"
	GrantTypeClientCredentials = "client_credentials"
	GrantTypePassword          = "password"
	GrantTypeRefreshToken      = "refresh_token"
	GrantTypeImplicit          = "implicit"
)

// TokenRequest carries the parameters of a token-endpoint request. Fields
// not relevant to the requested grant type are left empty.
type TokenRequest struct {
	GrantType    string
	ClientID     string
	ClientSecret string

	// authorization_code grant
	Code         string
	RedirectURI  string
	CodeVerifier string

	// password grant
	Username string
	Password string

	// refresh_token grant
	RefreshToken string

	// client_credentials and password grants; optional scope narrowing for
	// refresh_token
	Scope string
}

// Token executes a token-endpoint request: it authenticates the client,
// checks the client's grant-type allowlist, and dispatches to the requested
// grant.
func (s *Server) Token(ctx context.Context, req *TokenRequest) (*GrantResult, *OAuthError) {
	if req.GrantType == "" {
		return nil, ErrInvalidRequest("grant_type is required")
	}

	client, oauthErr := s.AuthenticateClient(ctx, req.ClientID, req.ClientSecret)
	if oauthErr != nil {
		return nil, oauthErr
	}

	if !client.AllowsGrantType(req.GrantType) {
		return nil, ErrUnauthorizedClient("client is not authorized for this grant type")
	}

	switch req.GrantType {
	case GrantTypeAuthorizationCode:
		return s.grantAuthorizationCode(ctx, client, req)
	case GrantTypeClientCredentials:
		return s.grantClientCredentials(ctx, client, req)
	case GrantTypePassword:
		return s.grantPassword(ctx, client, req)
	case GrantTypeRefreshToken:
		return s.grantRefreshToken(ctx, client, req)
	default:
		return nil, ErrUnsupportedGrantType(fmt.Sprintf("grant type %q is not supported", req.GrantType))
	}
}
