package server

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/thephpleague/oauth2-server-sub003/events"
	"github.com/thephpleague/oauth2-server-sub003/storage"
)

// Response types supported by the authorization endpoint.
const (
	ResponseTypeCode  = "code"
	ResponseTypeToken = "token"
)

// AuthorizationRequest is a validated authorization-endpoint request, ready
// to be completed once the resource owner has authenticated and decided.
type AuthorizationRequest struct {
	Client              *storage.Client
	ResponseType        string
	RedirectURI         string // as requested; may be empty
	State               string
	CodeChallenge       string
	CodeChallengeMethod string
	GrantedScopes       []string
}

// EffectiveRedirectURI is the URI responses will be delivered to: the
// requested URI, or the client's sole registered URI when none was sent.
func (ar *AuthorizationRequest) EffectiveRedirectURI() string {
	if ar.RedirectURI != "" {
		return ar.RedirectURI
	}
	return ar.Client.RedirectURIs[0]
}

// ValidateAuthorizationRequest validates the parameters of an authorization
// request. Errors raised before the redirect URI is known return a nil
// request and must be shown to the user agent directly. Once the client and
// redirect URI have been validated, errors return the partially validated
// request alongside, so callers deliver them via ErrorRedirectURL (RFC 6749
// sections 4.1.2.1 and 4.2.2.1).
func (s *Server) ValidateAuthorizationRequest(ctx context.Context, params url.Values) (*AuthorizationRequest, *OAuthError) {
	client, oauthErr := s.ResolveClient(ctx, params.Get("client_id"))
	if oauthErr != nil {
		return nil, oauthErr
	}

	redirectURI := params.Get("redirect_uri")
	if oauthErr := s.validateRedirectURI(client, redirectURI); oauthErr != nil {
		return nil, oauthErr
	}

	ar := &AuthorizationRequest{
		Client:       client,
		ResponseType: params.Get("response_type"),
		RedirectURI:  redirectURI,
		State:        params.Get("state"),
	}

	switch ar.ResponseType {
	case ResponseTypeCode:
		if !client.AllowsGrantType(GrantTypeAuthorizationCode) {
			return ar, ErrUnauthorizedClient("client is not authorized for the authorization_code grant")
		}

		ar.CodeChallenge = params.Get("code_challenge")
		ar.CodeChallengeMethod = params.Get("code_challenge_method")
		if ar.CodeChallenge != "" && ar.CodeChallengeMethod == "" {
			// RFC 7636 defaults to plain; S256-only deployments reject it
			// in validateCodeChallenge.
			ar.CodeChallengeMethod = PKCEMethodPlain
		}
		if oauthErr := s.validateCodeChallenge(ar.CodeChallenge, ar.CodeChallengeMethod); oauthErr != nil {
			return ar, oauthErr
		}

	case ResponseTypeToken:
		if !s.Config.AllowImplicitGrant {
			return ar, ErrUnsupportedResponseType("the token response type is not enabled")
		}
		if !client.AllowsGrantType(GrantTypeImplicit) {
			return ar, ErrUnauthorizedClient("client is not authorized for the implicit grant")
		}

	case "":
		return ar, ErrInvalidRequest("response_type is required")
	default:
		return ar, ErrUnsupportedResponseType(fmt.Sprintf("unsupported response_type: %s", ar.ResponseType))
	}

	scopes, oauthErr := s.resolveScopes(ctx, client, params.Get("scope"))
	if oauthErr != nil {
		return ar, oauthErr
	}
	ar.GrantedScopes = scopes

	return ar, nil
}

// CompleteAuthorizationRequest finishes a validated authorization request on
// behalf of the authenticated resource owner and returns the URL the user
// agent must be redirected to. When approved is false, the redirect carries
// an access_denied error instead of a code or token.
func (s *Server) CompleteAuthorizationRequest(ctx context.Context, ar *AuthorizationRequest, userID string, approved bool) (string, *OAuthError) {
	if ar == nil || ar.Client == nil {
		return "", ErrServerError("authorization request was not validated")
	}
	if userID == "" {
		return "", ErrServerError("resource owner identity is required")
	}

	if !approved {
		denied := ErrAccessDenied("the resource owner denied the request")
		return s.ErrorRedirectURL(ar, denied), nil
	}

	switch ar.ResponseType {
	case ResponseTypeCode:
		return s.completeCodeResponse(ctx, ar, userID)
	case ResponseTypeToken:
		return s.completeImplicitResponse(ctx, ar, userID)
	default:
		return "", ErrServerError("authorization request was not validated")
	}
}

func (s *Server) completeCodeResponse(ctx context.Context, ar *AuthorizationRequest, userID string) (string, *OAuthError) {
	now := time.Now()
	code := &storage.AuthorizationCode{
		Code:                generateRandomToken(),
		ClientID:            ar.Client.ClientID,
		UserID:              userID,
		RedirectURI:         ar.RedirectURI,
		CodeChallenge:       ar.CodeChallenge,
		CodeChallengeMethod: ar.CodeChallengeMethod,
		Scopes:              ar.GrantedScopes,
		CreatedAt:           now,
		ExpiresAt:           now.Add(time.Duration(s.Config.AuthorizationCodeTTL) * time.Second),
	}

	if err := s.repos.AuthCodes.SaveAuthorizationCode(ctx, code); err != nil {
		s.Logger.Error("Failed to persist authorization code", "error", err)
		return "", ErrServerError("failed to issue authorization code")
	}

	s.Emitter.Emit(ctx, &events.Event{
		Name:     events.AuthorizationCodeIssued,
		ClientID: ar.Client.ClientID,
		UserID:   userID,
		Scopes:   ar.GrantedScopes,
	})

	s.Logger.Info("Authorization code issued",
		"client_id", ar.Client.ClientID,
		"code_prefix", safeTruncate(code.Code, 8),
		"scopes", ar.GrantedScopes)

	redirect, err := url.Parse(ar.EffectiveRedirectURI())
	if err != nil {
		return "", ErrServerError("registered redirect URI is invalid")
	}

	query := redirect.Query()
	query.Set("code", code.Code)
	if ar.State != "" {
		query.Set("state", ar.State)
	}
	redirect.RawQuery = query.Encode()

	return redirect.String(), nil
}

func (s *Server) completeImplicitResponse(ctx context.Context, ar *AuthorizationRequest, userID string) (string, *OAuthError) {
	accessToken, signed, oauthErr := s.mintAccessToken(ctx, storage.OwnerTypeUser, userID, ar.Client.ClientID, generateRandomToken(), ar.GrantedScopes)
	if oauthErr != nil {
		return "", oauthErr
	}

	s.Emitter.Emit(ctx, &events.Event{
		Name:     events.AccessTokenIssued,
		ClientID: ar.Client.ClientID,
		UserID:   userID,
		TokenID:  accessToken.ID,
		Scopes:   accessToken.Scopes,
		Details:  map[string]any{"grant_type": GrantTypeImplicit},
	})

	redirect, err := url.Parse(ar.EffectiveRedirectURI())
	if err != nil {
		return "", ErrServerError("registered redirect URI is invalid")
	}

	// RFC 6749 section 4.2.2: implicit responses travel in the fragment so
	// the token never reaches the redirect target's server logs.
	fragment := url.Values{}
	fragment.Set("access_token", signed)
	fragment.Set("token_type", "Bearer")
	fragment.Set("expires_in", fmt.Sprintf("%d", s.Config.AccessTokenTTL))
	if len(accessToken.Scopes) > 0 {
		fragment.Set("scope", strings.Join(accessToken.Scopes, " "))
	}
	if ar.State != "" {
		fragment.Set("state", ar.State)
	}
	redirect.Fragment = ""
	redirect.RawFragment = ""

	return redirect.String() + "#" + fragment.Encode(), nil
}

// ErrorRedirectURL builds the redirect URL delivering an OAuth error to the
// client, per RFC 6749 sections 4.1.2.1 and 4.2.2.1. Implicit-flow errors
// travel in the fragment, code-flow errors in the query string.
func (s *Server) ErrorRedirectURL(ar *AuthorizationRequest, oauthErr *OAuthError) string {
	redirect, err := url.Parse(ar.EffectiveRedirectURI())
	if err != nil {
		return ""
	}

	params := url.Values{}
	params.Set("error", oauthErr.Code)
	if oauthErr.Description != "" {
		params.Set("error_description", oauthErr.Description)
	}
	if ar.State != "" {
		params.Set("state", ar.State)
	}

	if ar.ResponseType == ResponseTypeToken {
		redirect.Fragment = ""
		redirect.RawFragment = ""
		return redirect.String() + "#" + params.Encode()
	}

	query := redirect.Query()
	for key, values := range params {
		query[key] = values
	}
	redirect.RawQuery = query.Encode()
	return redirect.String()
}
