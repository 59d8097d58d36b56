package oauth

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/thephpleague/oauth2-server-sub003/internal/testutil"
	"github.com/thephpleague/oauth2-server-sub003/security"
	"github.com/thephpleague/oauth2-server-sub003/server"
	"github.com/thephpleague/oauth2-server-sub003/storage"
	"github.com/thephpleague/oauth2-server-sub003/storage/memory"
	"github.com/thephpleague/oauth2-server-sub003/token"
)

const testIssuer = "https://auth.example.com"

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestHandler(t *testing.T) (*Handler, *server.Server, *memory.Store) {
	t.Helper()

	store := memory.NewWithInterval(0)
	t.Cleanup(store.Stop)
	store.AddScope(&storage.Scope{ID: "read", Description: "read access"})
	store.AddScope(&storage.Scope{ID: "write", Description: "write access"})
	store.SetDefaultScopes("read")
	store.AddClient(testutil.GenerateTestClient(t))

	params, err := token.DeriveSigningKeyParams(testutil.TestRSAKey(t), "", "")
	testutil.AssertNoError(t, err)
	codec, err := token.NewCodec(params, testIssuer, 0)
	testutil.AssertNoError(t, err)

	repos := storage.Repositories{
		Clients:       store,
		Users:         store,
		Scopes:        store,
		AuthCodes:     store,
		AccessTokens:  store,
		RefreshTokens: store,
	}
	srv, err := server.New(repos, codec, &server.Config{Issuer: testIssuer}, testLogger())
	testutil.AssertNoError(t, err)

	return NewHandler(srv, testLogger()), srv, store
}

func postForm(t *testing.T, handler http.HandlerFunc, path string, form url.Values, basicAuth [2]string) *httptest.ResponseRecorder {
	t.Helper()
	r := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if basicAuth[0] != "" {
		r.SetBasicAuth(basicAuth[0], basicAuth[1])
	}
	w := httptest.NewRecorder()
	handler(w, r)
	return w
}

func TestServeTokenClientCredentials(t *testing.T) {
	h, _, _ := newTestHandler(t)

	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("scope", "read")

	w := postForm(t, h.ServeToken, PathToken, form, [2]string{"test-client-id", "test-secret"})

	testutil.AssertEqual(t, w.Code, http.StatusOK)
	testutil.AssertEqual(t, w.Header().Get("Cache-Control"), "no-store")
	testutil.AssertEqual(t, w.Header().Get("Content-Type"), "application/json")

	var response TokenResponse
	testutil.AssertNoError(t, json.NewDecoder(w.Body).Decode(&response))
	testutil.AssertEqual(t, response.TokenType, "Bearer")
	testutil.AssertEqual(t, response.Scope, "read")
	testutil.AssertEqual(t, response.RefreshToken, "")
	if response.AccessToken == "" {
		t.Fatal("response should carry an access token")
	}
	if response.ExpiresIn <= 0 {
		t.Error("expires_in should be positive")
	}
}

func TestServeTokenFormCredentials(t *testing.T) {
	h, _, _ := newTestHandler(t)

	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("client_id", "test-client-id")
	form.Set("client_secret", "test-secret")

	w := postForm(t, h.ServeToken, PathToken, form, [2]string{})
	testutil.AssertEqual(t, w.Code, http.StatusOK)
}

func TestServeTokenBadSecret(t *testing.T) {
	h, _, _ := newTestHandler(t)

	form := url.Values{}
	form.Set("grant_type", "client_credentials")

	w := postForm(t, h.ServeToken, PathToken, form, [2]string{"test-client-id", "wrong"})

	testutil.AssertEqual(t, w.Code, http.StatusUnauthorized)
	testutil.AssertEqual(t, w.Header().Get("WWW-Authenticate"), "Bearer")

	var response ErrorResponse
	testutil.AssertNoError(t, json.NewDecoder(w.Body).Decode(&response))
	testutil.AssertEqual(t, response.Error, server.ErrorCodeInvalidClient)
}

func TestServeTokenRejectsGet(t *testing.T) {
	h, _, _ := newTestHandler(t)

	r := httptest.NewRequest(http.MethodGet, PathToken, nil)
	w := httptest.NewRecorder()
	h.ServeToken(w, r)

	testutil.AssertEqual(t, w.Code, http.StatusMethodNotAllowed)
}

func TestAuthorizationCodeFlowEndToEnd(t *testing.T) {
	h, _, _ := newTestHandler(t)
	h.SetAuthorizer(func(_ http.ResponseWriter, _ *http.Request, _ *server.AuthorizationRequest) (string, bool, bool) {
		return "test-user-123", true, true
	})

	challenge, verifier := testutil.GeneratePKCEPair()

	query := url.Values{}
	query.Set("response_type", "code")
	query.Set("client_id", "test-client-id")
	query.Set("redirect_uri", "https://example.com/callback")
	query.Set("scope", "read")
	query.Set("state", "xyzzy")
	query.Set("code_challenge", challenge)
	query.Set("code_challenge_method", "S256")

	r := httptest.NewRequest(http.MethodGet, PathAuthorization+"?"+query.Encode(), nil)
	w := httptest.NewRecorder()
	h.ServeAuthorization(w, r)

	testutil.AssertEqual(t, w.Code, http.StatusFound)
	location, err := url.Parse(w.Header().Get("Location"))
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, location.Query().Get("state"), "xyzzy")

	code := location.Query().Get("code")
	if code == "" {
		t.Fatal("redirect should carry an authorization code")
	}

	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	form.Set("redirect_uri", "https://example.com/callback")
	form.Set("code_verifier", verifier)

	tokenResp := postForm(t, h.ServeToken, PathToken, form, [2]string{"test-client-id", "test-secret"})
	testutil.AssertEqual(t, tokenResp.Code, http.StatusOK)

	var response TokenResponse
	testutil.AssertNoError(t, json.NewDecoder(tokenResp.Body).Decode(&response))
	if response.RefreshToken == "" {
		t.Error("code exchange should issue a refresh token")
	}
}

func TestServeAuthorizationErrorsBeforeRedirect(t *testing.T) {
	h, _, _ := newTestHandler(t)

	// Unknown client: the redirect URI cannot be trusted, so the error is
	// returned to the user agent directly instead of via redirect.
	r := httptest.NewRequest(http.MethodGet, PathAuthorization+"?response_type=code&client_id=ghost", nil)
	w := httptest.NewRecorder()
	h.ServeAuthorization(w, r)

	testutil.AssertEqual(t, w.Code, http.StatusUnauthorized)
	if w.Header().Get("Location") != "" {
		t.Error("pre-validation errors must not redirect")
	}
}

func TestServeAuthorizationErrorsAfterRedirectValidation(t *testing.T) {
	h, _, _ := newTestHandler(t)
	challenge, _ := testutil.GeneratePKCEPair()

	baseQuery := func() url.Values {
		query := url.Values{}
		query.Set("response_type", "code")
		query.Set("client_id", "test-client-id")
		query.Set("redirect_uri", "https://example.com/callback")
		query.Set("state", "xyzzy")
		query.Set("code_challenge", challenge)
		query.Set("code_challenge_method", "S256")
		return query
	}

	// Once the client and redirect URI have been validated, errors travel
	// back to the client via redirect (RFC 6749 Section 4.1.2.1).
	tests := []struct {
		name      string
		mutate    func(url.Values)
		wantError string
	}{
		{
			"unknown scope",
			func(q url.Values) { q.Set("scope", "does-not-exist") },
			server.ErrorCodeInvalidScope,
		},
		{
			"unrecognized response_type",
			func(q url.Values) { q.Set("response_type", "bogus") },
			server.ErrorCodeUnsupportedResponseType,
		},
		{
			"implicit disabled",
			func(q url.Values) { q.Set("response_type", "token") },
			server.ErrorCodeUnsupportedResponseType,
		},
		{
			"missing code_challenge",
			func(q url.Values) { q.Del("code_challenge"); q.Del("code_challenge_method") },
			server.ErrorCodeInvalidRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			query := baseQuery()
			tt.mutate(query)

			r := httptest.NewRequest(http.MethodGet, PathAuthorization+"?"+query.Encode(), nil)
			w := httptest.NewRecorder()
			h.ServeAuthorization(w, r)

			testutil.AssertEqual(t, w.Code, http.StatusFound)
			location, err := url.Parse(w.Header().Get("Location"))
			testutil.AssertNoError(t, err)
			testutil.AssertEqual(t, location.Host, "example.com")

			// Implicit-flow errors travel in the fragment instead.
			params := location.Query()
			if query.Get("response_type") == "token" {
				params, err = url.ParseQuery(location.EscapedFragment())
				testutil.AssertNoError(t, err)
			}
			testutil.AssertEqual(t, params.Get("error"), tt.wantError)
			testutil.AssertEqual(t, params.Get("state"), "xyzzy")
			testutil.AssertEqual(t, params.Get("code"), "")
		})
	}
}

func TestServeAuthorizationAcceptsFormPost(t *testing.T) {
	h, _, _ := newTestHandler(t)
	h.SetAuthorizer(func(_ http.ResponseWriter, _ *http.Request, _ *server.AuthorizationRequest) (string, bool, bool) {
		return "test-user-123", true, true
	})

	challenge, _ := testutil.GeneratePKCEPair()
	form := url.Values{}
	form.Set("response_type", "code")
	form.Set("client_id", "test-client-id")
	form.Set("redirect_uri", "https://example.com/callback")
	form.Set("scope", "read")
	form.Set("state", "xyzzy")
	form.Set("code_challenge", challenge)
	form.Set("code_challenge_method", "S256")

	w := postForm(t, h.ServeAuthorization, PathAuthorization, form, [2]string{})

	testutil.AssertEqual(t, w.Code, http.StatusFound)
	location, err := url.Parse(w.Header().Get("Location"))
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, location.Query().Get("state"), "xyzzy")
	if location.Query().Get("code") == "" {
		t.Fatal("redirect should carry an authorization code")
	}
}

func TestServeAuthorizationWithoutAuthorizer(t *testing.T) {
	h, _, _ := newTestHandler(t)
	challenge, _ := testutil.GeneratePKCEPair()

	query := url.Values{}
	query.Set("response_type", "code")
	query.Set("client_id", "test-client-id")
	query.Set("redirect_uri", "https://example.com/callback")
	query.Set("code_challenge", challenge)
	query.Set("code_challenge_method", "S256")

	r := httptest.NewRequest(http.MethodGet, PathAuthorization+"?"+query.Encode(), nil)
	w := httptest.NewRecorder()
	h.ServeAuthorization(w, r)

	testutil.AssertEqual(t, w.Code, http.StatusInternalServerError)
}

func TestServeTokenIntrospection(t *testing.T) {
	h, _, _ := newTestHandler(t)

	issueForm := url.Values{}
	issueForm.Set("grant_type", "client_credentials")
	issued := postForm(t, h.ServeToken, PathToken, issueForm, [2]string{"test-client-id", "test-secret"})
	testutil.AssertEqual(t, issued.Code, http.StatusOK)

	var tokenResponse TokenResponse
	testutil.AssertNoError(t, json.NewDecoder(issued.Body).Decode(&tokenResponse))

	t.Run("active token", func(t *testing.T) {
		form := url.Values{}
		form.Set("token", tokenResponse.AccessToken)
		w := postForm(t, h.ServeTokenIntrospection, PathIntrospection, form, [2]string{"test-client-id", "test-secret"})

		testutil.AssertEqual(t, w.Code, http.StatusOK)
		var response IntrospectionResponse
		testutil.AssertNoError(t, json.NewDecoder(w.Body).Decode(&response))
		testutil.AssertTrue(t, response.Active, "token should be active")
		testutil.AssertEqual(t, response.ClientID, "test-client-id")
		testutil.AssertEqual(t, response.TokenType, "access_token")
	})

	t.Run("inactive token reveals nothing", func(t *testing.T) {
		form := url.Values{}
		form.Set("token", "garbage")
		w := postForm(t, h.ServeTokenIntrospection, PathIntrospection, form, [2]string{"test-client-id", "test-secret"})

		testutil.AssertEqual(t, w.Code, http.StatusOK)
		var body map[string]any
		testutil.AssertNoError(t, json.NewDecoder(w.Body).Decode(&body))
		if len(body) != 1 || body["active"] != false {
			t.Errorf("inactive response must be exactly {\"active\": false}, got %v", body)
		}
	})

	t.Run("requires client authentication", func(t *testing.T) {
		form := url.Values{}
		form.Set("token", tokenResponse.AccessToken)
		w := postForm(t, h.ServeTokenIntrospection, PathIntrospection, form, [2]string{})

		testutil.AssertEqual(t, w.Code, http.StatusUnauthorized)
	})

	t.Run("requires token parameter", func(t *testing.T) {
		w := postForm(t, h.ServeTokenIntrospection, PathIntrospection, url.Values{}, [2]string{"test-client-id", "test-secret"})
		testutil.AssertEqual(t, w.Code, http.StatusBadRequest)
	})
}

func TestServeTokenRevocation(t *testing.T) {
	h, srv, _ := newTestHandler(t)

	issueForm := url.Values{}
	issueForm.Set("grant_type", "client_credentials")
	issued := postForm(t, h.ServeToken, PathToken, issueForm, [2]string{"test-client-id", "test-secret"})
	testutil.AssertEqual(t, issued.Code, http.StatusOK)

	var tokenResponse TokenResponse
	testutil.AssertNoError(t, json.NewDecoder(issued.Body).Decode(&tokenResponse))

	form := url.Values{}
	form.Set("token", tokenResponse.AccessToken)
	w := postForm(t, h.ServeTokenRevocation, PathRevocation, form, [2]string{"test-client-id", "test-secret"})
	testutil.AssertEqual(t, w.Code, http.StatusOK)

	if _, oauthErr := srv.ValidateBearerToken(context.Background(), tokenResponse.AccessToken); oauthErr == nil {
		t.Error("revoked token should no longer validate")
	}

	// Unknown tokens still return 200 per RFC 7009.
	form.Set("token", "no-such-token")
	w = postForm(t, h.ServeTokenRevocation, PathRevocation, form, [2]string{"test-client-id", "test-secret"})
	testutil.AssertEqual(t, w.Code, http.StatusOK)
}

func TestServeAuthorizationServerMetadata(t *testing.T) {
	h, _, _ := newTestHandler(t)

	r := httptest.NewRequest(http.MethodGet, PathMetadata, nil)
	w := httptest.NewRecorder()
	h.ServeAuthorizationServerMetadata(w, r)

	testutil.AssertEqual(t, w.Code, http.StatusOK)

	var metadata AuthorizationServerMetadata
	testutil.AssertNoError(t, json.NewDecoder(w.Body).Decode(&metadata))
	testutil.AssertEqual(t, metadata.Issuer, testIssuer)
	testutil.AssertEqual(t, metadata.AuthorizationEndpoint, testIssuer+PathAuthorization)
	testutil.AssertEqual(t, metadata.TokenEndpoint, testIssuer+PathToken)
	testutil.AssertEqual(t, metadata.RevocationEndpoint, testIssuer+PathRevocation)
	testutil.AssertEqual(t, metadata.IntrospectionEndpoint, testIssuer+PathIntrospection)
	testutil.AssertEqual(t, metadata.JWKSURI, "")

	testutil.AssertEqual(t, len(metadata.ResponseTypesSupported), 1)
	testutil.AssertEqual(t, metadata.ResponseTypesSupported[0], "code")
	testutil.AssertEqual(t, len(metadata.CodeChallengeMethodsSupported), 1)
	testutil.AssertEqual(t, metadata.CodeChallengeMethodsSupported[0], "S256")

	for _, grantType := range metadata.GrantTypesSupported {
		if grantType == "implicit" || grantType == "password" {
			t.Errorf("disabled grant %q should not be advertised", grantType)
		}
	}
}

func TestServeJWKS(t *testing.T) {
	h, _, _ := newTestHandler(t)

	r := httptest.NewRequest(http.MethodGet, PathJWKS, nil)
	w := httptest.NewRecorder()
	h.ServeJWKS(w, r)
	testutil.AssertEqual(t, w.Code, http.StatusNotFound)

	params, err := token.DeriveSigningKeyParams(testutil.TestRSAKey(t), "", "")
	testutil.AssertNoError(t, err)
	testutil.AssertNoError(t, h.SetSigningKey(params))

	w = httptest.NewRecorder()
	h.ServeJWKS(w, r)
	testutil.AssertEqual(t, w.Code, http.StatusOK)

	var doc struct {
		Keys []map[string]any `json:"keys"`
	}
	testutil.AssertNoError(t, json.NewDecoder(w.Body).Decode(&doc))
	testutil.AssertEqual(t, len(doc.Keys), 1)

	// With a published key set, metadata advertises the jwks_uri.
	mw := httptest.NewRecorder()
	h.ServeAuthorizationServerMetadata(mw, httptest.NewRequest(http.MethodGet, PathMetadata, nil))
	var metadata AuthorizationServerMetadata
	testutil.AssertNoError(t, json.NewDecoder(mw.Body).Decode(&metadata))
	testutil.AssertEqual(t, metadata.JWKSURI, testIssuer+PathJWKS)
}

func TestRateLimitReturns429(t *testing.T) {
	h, srv, _ := newTestHandler(t)

	limiter := security.NewRateLimiter(1, 1, testLogger())
	t.Cleanup(limiter.Stop)
	srv.SetRateLimiter(limiter)

	form := url.Values{}
	form.Set("grant_type", "client_credentials")

	first := postForm(t, h.ServeToken, PathToken, form, [2]string{"test-client-id", "test-secret"})
	testutil.AssertEqual(t, first.Code, http.StatusOK)

	second := postForm(t, h.ServeToken, PathToken, form, [2]string{"test-client-id", "test-secret"})
	testutil.AssertEqual(t, second.Code, http.StatusTooManyRequests)
	testutil.AssertEqual(t, second.Header().Get("Retry-After"), "60")
}

func TestRegisterRoutes(t *testing.T) {
	h, _, _ := newTestHandler(t)

	mux := http.NewServeMux()
	h.RegisterRoutes(mux)

	r := httptest.NewRequest(http.MethodGet, PathMetadata, nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, r)
	testutil.AssertEqual(t, w.Code, http.StatusOK)
}

func TestCORSHeaders(t *testing.T) {
	h, srv, _ := newTestHandler(t)
	srv.Config.CORS.AllowedOrigins = []string{"https://app.example.com"}
	srv.Config.CORS.MaxAge = 600

	t.Run("allowed origin", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, PathMetadata, nil)
		r.Header.Set("Origin", "https://app.example.com")
		w := httptest.NewRecorder()
		h.ServeAuthorizationServerMetadata(w, r)

		testutil.AssertEqual(t, w.Code, http.StatusOK)
		testutil.AssertEqual(t, w.Header().Get("Access-Control-Allow-Origin"), "https://app.example.com")
		testutil.AssertEqual(t, w.Header().Get("Access-Control-Max-Age"), "600")
		testutil.AssertEqual(t, w.Header().Get("Vary"), "Origin")
	})

	t.Run("disallowed origin gets no CORS headers", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, PathMetadata, nil)
		r.Header.Set("Origin", "https://evil.example.com")
		w := httptest.NewRecorder()
		h.ServeAuthorizationServerMetadata(w, r)

		testutil.AssertEqual(t, w.Code, http.StatusOK)
		testutil.AssertEqual(t, w.Header().Get("Access-Control-Allow-Origin"), "")
		// Vary is still set so caches keep responses per origin.
		testutil.AssertEqual(t, w.Header().Get("Vary"), "Origin")
	})

	t.Run("preflight", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodOptions, PathToken, nil)
		r.Header.Set("Origin", "https://app.example.com")
		w := httptest.NewRecorder()
		h.ServeToken(w, r)

		testutil.AssertEqual(t, w.Code, http.StatusNoContent)
		testutil.AssertEqual(t, w.Header().Get("Access-Control-Allow-Methods"), "GET, POST, OPTIONS")
		testutil.AssertEqual(t, w.Header().Get("Access-Control-Allow-Headers"), "Authorization, Content-Type")
	})

	t.Run("no origin header", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, PathMetadata, nil)
		w := httptest.NewRecorder()
		h.ServeAuthorizationServerMetadata(w, r)

		testutil.AssertEqual(t, w.Header().Get("Access-Control-Allow-Origin"), "")
	})
}

func TestCORSDisabledByDefault(t *testing.T) {
	h, _, _ := newTestHandler(t)

	r := httptest.NewRequest(http.MethodGet, PathMetadata, nil)
	r.Header.Set("Origin", "https://app.example.com")
	w := httptest.NewRecorder()
	h.ServeAuthorizationServerMetadata(w, r)

	testutil.AssertEqual(t, w.Header().Get("Access-Control-Allow-Origin"), "")
	testutil.AssertEqual(t, w.Header().Get("Vary"), "")
}
