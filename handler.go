package oauth

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/thephpleague/oauth2-server-sub003/instrumentation"
	"github.com/thephpleague/oauth2-server-sub003/security"
	"github.com/thephpleague/oauth2-server-sub003/server"
	"github.com/thephpleague/oauth2-server-sub003/storage"
	"github.com/thephpleague/oauth2-server-sub003/token"
)

const tokenTypeBearer = "Bearer"

// Endpoint paths registered by RegisterRoutes, relative to the issuer URL.
const (
	PathAuthorization = "/authorize"
	PathToken         = "/token"
	PathIntrospection = "/introspect"
	PathRevocation    = "/revoke"
	PathJWKS          = "/.well-known/jwks.json"
	PathMetadata      = "/.well-known/oauth-authorization-server"
)

// SupportedTokenAuthMethods lists the client authentication methods accepted
// at the token endpoint.
var SupportedTokenAuthMethods = []string{"client_secret_basic", "client_secret_post", "none"}

// Error is the OAuth error type returned by the underlying server.
type Error = server.OAuthError

// ResourceOwnerAuthorizer identifies the resource owner behind an
// authorization request and reports their consent decision. Implementations
// typically check a session cookie and render a login or consent page; in
// that case they write the response themselves and return handled=false so
// the handler stops processing the request.
type ResourceOwnerAuthorizer func(w http.ResponseWriter, r *http.Request, ar *server.AuthorizationRequest) (userID string, approved bool, handled bool)

// Handler provides HTTP handlers for the OAuth endpoints
type Handler struct {
	server     *server.Server
	logger     *slog.Logger
	tracer     trace.Tracer
	authorizer ResourceOwnerAuthorizer
	jwks       []byte
}

// NewHandler creates a new OAuth HTTP handler
func NewHandler(srv *server.Server, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}

	h := &Handler{
		server: srv,
		logger: logger,
	}
	if srv.Instrumentation != nil {
		h.tracer = srv.Instrumentation.Tracer("handler")
	}
	return h
}

// SetAuthorizer sets the resource-owner authorizer used by the authorization
// endpoint. Without one, authorization requests are rejected.
func (h *Handler) SetAuthorizer(authorizer ResourceOwnerAuthorizer) {
	h.authorizer = authorizer
}

// SetSigningKey publishes the server's signing key through the JWKS endpoint.
// Only the public half of the key is exposed.
func (h *Handler) SetSigningKey(params *token.SigningKeyParams) error {
	doc, err := token.MarshalPublicKeySet(params)
	if err != nil {
		return err
	}
	h.jwks = doc
	return nil
}

// RegisterRoutes registers all OAuth endpoints on the given mux
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc(PathAuthorization, h.ServeAuthorization)
	mux.HandleFunc(PathToken, h.ServeToken)
	mux.HandleFunc(PathIntrospection, h.ServeTokenIntrospection)
	mux.HandleFunc(PathRevocation, h.ServeTokenRevocation)
	mux.HandleFunc(PathJWKS, h.ServeJWKS)
	mux.HandleFunc(PathMetadata, h.ServeAuthorizationServerMetadata)
}

// ServeAuthorization handles the OAuth authorization endpoint
func (h *Handler) ServeAuthorization(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()

	// Create span if tracing is enabled
	var span trace.Span
	ctx := r.Context()
	if h.tracer != nil {
		ctx, span = h.tracer.Start(ctx, "oauth.http.authorization")
		defer span.End()
		r = r.WithContext(ctx)
	}

	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		h.recordHTTPMetrics("authorization", r.Method, http.StatusMethodNotAllowed, startTime)
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	clientIP := security.GetClientIP(r, h.server.Config.TrustProxy, h.server.Config.TrustedProxyCount)
	if h.checkRateLimit(w, r, clientIP, "authorization") {
		return
	}

	params := r.URL.Query()
	if r.Method == http.MethodPost {
		if err := r.ParseForm(); err != nil {
			h.recordHTTPMetrics("authorization", r.Method, http.StatusBadRequest, startTime)
			instrumentation.SetSpanError(span, "parse form failed")
			h.writeError(w, server.ErrorCodeInvalidRequest, "Failed to parse request", http.StatusBadRequest)
			return
		}
		params = r.Form
	}
	instrumentation.SetSpanAttributes(span,
		attribute.String(instrumentation.AttrClientID, params.Get("client_id")),
		attribute.String(instrumentation.AttrPKCEMethod, params.Get("code_challenge_method")))

	ar, oauthErr := h.server.ValidateAuthorizationRequest(ctx, params)
	if oauthErr != nil {
		h.logger.Warn("Authorization request rejected",
			"client_id", params.Get("client_id"),
			"ip", clientIP,
			"error", oauthErr.Code)
		instrumentation.SetSpanError(span, oauthErr.Code)

		// A nil request means the client or redirect URI could not be
		// validated, so the error is shown to the user agent directly
		// (RFC 6749 Section 4.1.2.1). Otherwise it travels back to the
		// client via redirect.
		if ar == nil {
			h.recordHTTPMetrics("authorization", r.Method, oauthErr.Status, startTime)
			h.writeOAuthError(w, oauthErr)
			return
		}
		h.recordHTTPMetrics("authorization", r.Method, http.StatusFound, startTime)
		http.Redirect(w, r, h.server.ErrorRedirectURL(ar, oauthErr), http.StatusFound)
		return
	}

	h.recordAuthorizationRequest(ar.Client.ClientID, ar.ResponseType)

	if h.authorizer == nil {
		h.recordHTTPMetrics("authorization", r.Method, http.StatusInternalServerError, startTime)
		instrumentation.SetSpanError(span, "no authorizer configured")
		h.writeError(w, server.ErrorCodeServerError, "Authorization is not available", http.StatusInternalServerError)
		return
	}

	userID, approved, handled := h.authorizer(w, r, ar)
	if !handled {
		// The authorizer wrote its own response (login page, consent
		// form). The client retries once the resource owner is known.
		h.recordHTTPMetrics("authorization", r.Method, http.StatusOK, startTime)
		return
	}

	redirectURL, oauthErr := h.server.CompleteAuthorizationRequest(ctx, ar, userID, approved)
	if oauthErr != nil {
		// The redirect URI was validated, so errors travel back to the
		// client via redirect.
		h.logger.Error("Failed to complete authorization request",
			"client_id", ar.Client.ClientID,
			"ip", clientIP,
			"error", oauthErr.Code)
		h.recordHTTPMetrics("authorization", r.Method, http.StatusFound, startTime)
		instrumentation.SetSpanError(span, oauthErr.Code)
		http.Redirect(w, r, h.server.ErrorRedirectURL(ar, oauthErr), http.StatusFound)
		return
	}

	h.recordHTTPMetrics("authorization", r.Method, http.StatusFound, startTime)
	instrumentation.SetSpanSuccess(span)
	http.Redirect(w, r, redirectURL, http.StatusFound)
}

// ServeToken handles the OAuth token endpoint
func (h *Handler) ServeToken(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()

	// Create span if tracing is enabled
	var span trace.Span
	ctx := r.Context()
	if h.tracer != nil {
		ctx, span = h.tracer.Start(ctx, "oauth.http.token")
		defer span.End()
	}

	h.setCORSHeaders(w, r)
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if r.Method != http.MethodPost {
		h.recordHTTPMetrics("token", r.Method, http.StatusMethodNotAllowed, startTime)
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	clientIP := security.GetClientIP(r, h.server.Config.TrustProxy, h.server.Config.TrustedProxyCount)
	if h.checkRateLimit(w, r, clientIP, "token") {
		return
	}

	if err := r.ParseForm(); err != nil {
		h.recordHTTPMetrics("token", http.MethodPost, http.StatusBadRequest, startTime)
		instrumentation.SetSpanError(span, "parse form failed")
		h.writeError(w, server.ErrorCodeInvalidRequest, "Failed to parse request", http.StatusBadRequest)
		return
	}

	clientID, clientSecret := h.clientCredentials(r)
	req := &server.TokenRequest{
		GrantType:    r.FormValue("grant_type"),
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Code:         r.FormValue("code"),
		RedirectURI:  r.FormValue("redirect_uri"),
		CodeVerifier: r.FormValue("code_verifier"),
		Username:     r.FormValue("username"),
		Password:     r.FormValue("password"),
		RefreshToken: r.FormValue("refresh_token"),
		Scope:        r.FormValue("scope"),
	}

	instrumentation.AddGrantAttributes(span, req.GrantType, clientID)

	result, oauthErr := h.server.Token(ctx, req)
	if oauthErr != nil {
		h.logger.Warn("Token request failed",
			"grant_type", req.GrantType,
			"client_id", clientID,
			"ip", clientIP,
			"error", oauthErr.Code)
		h.recordHTTPMetrics("token", http.MethodPost, oauthErr.Status, startTime)
		instrumentation.SetSpanError(span, oauthErr.Code)
		h.writeOAuthError(w, oauthErr)
		return
	}

	h.logger.Info("Token request successful",
		"grant_type", req.GrantType,
		"client_id", clientID,
		"ip", clientIP)

	h.recordTokenIssued(req.GrantType, clientID)
	h.recordHTTPMetrics("token", http.MethodPost, http.StatusOK, startTime)
	instrumentation.SetSpanSuccess(span)

	h.writeTokenResponse(w, result)
}

// ServeTokenIntrospection handles the RFC 7662 token introspection endpoint
func (h *Handler) ServeTokenIntrospection(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()
	ctx := r.Context()

	h.setCORSHeaders(w, r)
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if r.Method != http.MethodPost {
		h.recordHTTPMetrics("introspect", r.Method, http.StatusMethodNotAllowed, startTime)
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	clientIP := security.GetClientIP(r, h.server.Config.TrustProxy, h.server.Config.TrustedProxyCount)
	if h.checkRateLimit(w, r, clientIP, "introspect") {
		return
	}

	if err := r.ParseForm(); err != nil {
		h.recordHTTPMetrics("introspect", http.MethodPost, http.StatusBadRequest, startTime)
		h.writeError(w, server.ErrorCodeInvalidRequest, "Failed to parse request", http.StatusBadRequest)
		return
	}

	tokenString := r.FormValue("token")
	if tokenString == "" {
		h.recordHTTPMetrics("introspect", http.MethodPost, http.StatusBadRequest, startTime)
		h.writeError(w, server.ErrorCodeInvalidRequest, "token parameter is required", http.StatusBadRequest)
		return
	}

	// RFC 7662 Section 2.1: the caller must authenticate, otherwise the
	// endpoint becomes a token-scanning oracle.
	if _, oauthErr := h.authenticateRequestClient(ctx, r, clientIP, "introspection"); oauthErr != nil {
		h.recordHTTPMetrics("introspect", http.MethodPost, oauthErr.Status, startTime)
		h.writeOAuthError(w, oauthErr)
		return
	}

	result, oauthErr := h.server.IntrospectToken(ctx, tokenString)
	if oauthErr != nil {
		h.recordHTTPMetrics("introspect", http.MethodPost, oauthErr.Status, startTime)
		h.writeOAuthError(w, oauthErr)
		return
	}

	h.recordIntrospection(result.Active)
	h.recordHTTPMetrics("introspect", http.MethodPost, http.StatusOK, startTime)

	response := &IntrospectionResponse{Active: result.Active}
	if result.Active {
		response.Scope = result.Scope
		response.ClientID = result.ClientID
		response.Sub = result.Subject
		response.TokenType = result.TokenType
		response.Exp = result.ExpiresAt
		response.Iat = result.IssuedAt
		response.Nbf = result.NotBefore
		response.Aud = result.Audience
		response.Iss = result.Issuer
		response.Jti = result.TokenID
	}

	security.SetSecurityHeaders(w)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(response)
}

// ServeTokenRevocation handles the RFC 7009 token revocation endpoint
func (h *Handler) ServeTokenRevocation(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()
	ctx := r.Context()

	h.setCORSHeaders(w, r)
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if r.Method != http.MethodPost {
		h.recordHTTPMetrics("revoke", r.Method, http.StatusMethodNotAllowed, startTime)
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	clientIP := security.GetClientIP(r, h.server.Config.TrustProxy, h.server.Config.TrustedProxyCount)
	if h.checkRateLimit(w, r, clientIP, "revoke") {
		return
	}

	if err := r.ParseForm(); err != nil {
		h.recordHTTPMetrics("revoke", http.MethodPost, http.StatusBadRequest, startTime)
		h.writeError(w, server.ErrorCodeInvalidRequest, "Failed to parse request", http.StatusBadRequest)
		return
	}

	tokenString := r.FormValue("token")
	if tokenString == "" {
		h.recordHTTPMetrics("revoke", http.MethodPost, http.StatusBadRequest, startTime)
		h.writeError(w, server.ErrorCodeInvalidRequest, "token parameter is required", http.StatusBadRequest)
		return
	}

	client, oauthErr := h.authenticateRequestClient(ctx, r, clientIP, "revocation")
	if oauthErr != nil {
		h.recordHTTPMetrics("revoke", http.MethodPost, oauthErr.Status, startTime)
		h.writeOAuthError(w, oauthErr)
		return
	}

	if oauthErr := h.server.RevokeToken(ctx, client, tokenString, r.FormValue("token_type_hint")); oauthErr != nil {
		// RFC 7009 Section 2.2: the client cannot act on a failure, so
		// log it and return success anyway.
		h.logger.Error("Failed to revoke token",
			"client_id", client.ClientID,
			"ip", clientIP,
			"error", oauthErr.Code)
	}

	h.recordTokenRevocation(client.ClientID)
	h.recordHTTPMetrics("revoke", http.MethodPost, http.StatusOK, startTime)

	security.SetSecurityHeaders(w)
	w.WriteHeader(http.StatusOK)
}

// ServeAuthorizationServerMetadata handles the RFC 8414 discovery endpoint
func (h *Handler) ServeAuthorizationServerMetadata(w http.ResponseWriter, r *http.Request) {
	h.setCORSHeaders(w, r)
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	clientIP := security.GetClientIP(r, h.server.Config.TrustProxy, h.server.Config.TrustedProxyCount)
	if h.checkRateLimit(w, r, clientIP, "metadata") {
		return
	}

	metadata := h.buildAuthServerMetadata()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(metadata)
}

// ServeJWKS serves the server's public signing keys as a JSON Web Key Set
func (h *Handler) ServeJWKS(w http.ResponseWriter, r *http.Request) {
	h.setCORSHeaders(w, r)
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if h.jwks == nil {
		http.Error(w, "Not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(h.jwks)
}

// buildAuthServerMetadata builds the RFC 8414 authorization server metadata.
func (h *Handler) buildAuthServerMetadata() *AuthorizationServerMetadata {
	responseTypes := []string{server.ResponseTypeCode}
	grantTypes := []string{
		server.GrantTypeAuthorizationCode,
		server.GrantTypeClientCredentials,
		server.GrantTypeRefreshToken,
	}
	challengeMethods := []string{server.PKCEMethodS256}

	if h.server.Config.AllowImplicitGrant {
		responseTypes = append(responseTypes, server.ResponseTypeToken)
		grantTypes = append(grantTypes, server.GrantTypeImplicit)
	}
	if h.server.Config.AllowPasswordGrant {
		grantTypes = append(grantTypes, server.GrantTypePassword)
	}
	if h.server.Config.AllowPKCEPlain {
		challengeMethods = append(challengeMethods, server.PKCEMethodPlain)
	}

	metadata := &AuthorizationServerMetadata{
		Issuer:                            h.server.Config.Issuer,
		AuthorizationEndpoint:             h.endpointURL(PathAuthorization),
		TokenEndpoint:                     h.endpointURL(PathToken),
		RevocationEndpoint:                h.endpointURL(PathRevocation),
		IntrospectionEndpoint:             h.endpointURL(PathIntrospection),
		ResponseTypesSupported:            responseTypes,
		GrantTypesSupported:               grantTypes,
		CodeChallengeMethodsSupported:     challengeMethods,
		TokenEndpointAuthMethodsSupported: SupportedTokenAuthMethods,
	}
	if h.jwks != nil {
		metadata.JWKSURI = h.endpointURL(PathJWKS)
	}
	return metadata
}

// endpointURL joins an endpoint path onto the issuer URL.
func (h *Handler) endpointURL(endpointPath string) string {
	return strings.TrimSuffix(h.server.Config.Issuer, "/") + endpointPath
}

// setCORSHeaders writes CORS headers when CORS is configured and the request
// carries an allowed Origin. Responses vary by Origin either way so caches
// never serve a response across origins.
func (h *Handler) setCORSHeaders(w http.ResponseWriter, r *http.Request) {
	if len(h.server.Config.CORS.AllowedOrigins) == 0 {
		return
	}

	origin := r.Header.Get("Origin")
	if origin == "" {
		return
	}
	w.Header().Add("Vary", "Origin")
	if !h.originAllowed(origin) {
		h.logger.Debug("CORS request from disallowed origin", "origin", origin)
		return
	}

	w.Header().Set("Access-Control-Allow-Origin", origin)
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
	w.Header().Set("Access-Control-Max-Age", strconv.Itoa(h.server.Config.CORS.MaxAge))
	if h.server.Config.CORS.AllowCredentials {
		w.Header().Set("Access-Control-Allow-Credentials", "true")
	}
}

// originAllowed checks the Origin against the configured allowlist.
// Matching is exact and case-sensitive per the CORS specification.
func (h *Handler) originAllowed(origin string) bool {
	for _, allowed := range h.server.Config.CORS.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}

// clientCredentials extracts client credentials from the request, preferring
// HTTP Basic authentication over form parameters (RFC 6749 Section 2.3.1).
func (h *Handler) clientCredentials(r *http.Request) (clientID, clientSecret string) {
	if basicID, basicSecret, ok := r.BasicAuth(); ok {
		return basicID, basicSecret
	}
	return r.FormValue("client_id"), r.FormValue("client_secret")
}

// authenticateRequestClient authenticates the client behind an introspection
// or revocation request.
func (h *Handler) authenticateRequestClient(ctx context.Context, r *http.Request, clientIP, endpoint string) (*storage.Client, *Error) {
	clientID, clientSecret := h.clientCredentials(r)
	if clientID == "" {
		h.logger.Warn("Request rejected: missing client authentication",
			"endpoint", endpoint,
			"ip", clientIP)
		if h.server.Auditor != nil {
			h.server.Auditor.LogAuthFailure("", "", clientIP, endpoint+"_missing_auth")
		}
		return nil, server.ErrInvalidClient("client authentication required")
	}

	client, oauthErr := h.server.AuthenticateClient(ctx, clientID, clientSecret)
	if oauthErr != nil {
		h.logger.Warn("Client authentication failed",
			"endpoint", endpoint,
			"client_id", clientID,
			"ip", clientIP)
		if h.server.Auditor != nil {
			h.server.Auditor.LogAuthFailure("", clientID, clientIP, endpoint+"_auth_failed")
		}
		return nil, oauthErr
	}
	return client, nil
}

// checkRateLimit checks the per-IP rate limit for an endpoint.
// Returns true if the limit was exceeded and a response was written.
func (h *Handler) checkRateLimit(w http.ResponseWriter, r *http.Request, clientIP, endpoint string) bool {
	if h.server.RateLimiter == nil || h.server.RateLimiter.Allow(clientIP) {
		return false
	}

	h.logger.Warn("Rate limit exceeded",
		"ip", clientIP,
		"endpoint", endpoint)

	if h.server.Instrumentation != nil {
		h.server.Instrumentation.Metrics().RecordRateLimitExceeded(r.Context(), endpoint)
	}
	if h.server.Auditor != nil {
		h.server.Auditor.LogRateLimitExceeded(clientIP, endpoint)
	}

	w.Header().Set("Retry-After", "60")
	http.Error(w, "Rate limit exceeded. Please try again later.", http.StatusTooManyRequests)
	return true
}

func (h *Handler) writeTokenResponse(w http.ResponseWriter, result *server.GrantResult) {
	security.SetSecurityHeaders(w)

	response := &TokenResponse{
		AccessToken: result.SignedToken,
		TokenType:   tokenTypeBearer,
		ExpiresIn:   result.ExpiresIn,
		Scope:       strings.Join(result.AccessToken.Scopes, " "),
	}
	if result.RefreshToken != nil {
		response.RefreshToken = result.RefreshToken.ID
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(response)
}

func (h *Handler) writeOAuthError(w http.ResponseWriter, oauthErr *Error) {
	description := oauthErr.Description
	if oauthErr.Hint != "" {
		description += " (" + oauthErr.Hint + ")"
	}
	h.writeError(w, oauthErr.Code, description, oauthErr.Status)
}

func (h *Handler) writeError(w http.ResponseWriter, code, description string, status int) {
	security.SetSecurityHeaders(w)

	// RFC 6750 Section 3: 401 responses carry a WWW-Authenticate challenge
	if status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", tokenTypeBearer)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(&ErrorResponse{
		Error:            code,
		ErrorDescription: description,
	})
}

func (h *Handler) recordHTTPMetrics(endpoint, method string, status int, startTime time.Time) {
	if h.server.Instrumentation == nil {
		return
	}

	duration := time.Since(startTime).Seconds() * 1000 // milliseconds
	h.server.Instrumentation.Metrics().RecordHTTPRequest(context.Background(), method, endpoint, status, duration)
}

func (h *Handler) recordTokenIssued(grantType, clientID string) {
	if h.server.Instrumentation == nil {
		return
	}
	h.server.Instrumentation.Metrics().RecordTokenIssued(context.Background(), grantType, clientID)
}

func (h *Handler) recordTokenRevocation(clientID string) {
	if h.server.Instrumentation == nil {
		return
	}
	h.server.Instrumentation.Metrics().RecordTokenRevocation(context.Background(), clientID)
}

func (h *Handler) recordAuthorizationRequest(clientID, responseType string) {
	if h.server.Instrumentation == nil {
		return
	}
	h.server.Instrumentation.Metrics().RecordAuthorizationRequest(context.Background(), clientID, responseType)
}

func (h *Handler) recordIntrospection(active bool) {
	if h.server.Instrumentation == nil {
		return
	}
	h.server.Instrumentation.Metrics().RecordIntrospection(context.Background(), active)
}
