package server

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/thephpleague/oauth2-server-sub003/storage"
)

// PKCE validation constants (RFC 7636)
const (
	MinCodeVerifierLength = 43
	MaxCodeVerifierLength = 128
	PKCEMethodS256        = "S256"
	PKCEMethodPlain       = "plain"
)

// URI scheme constants
const (
	SchemeHTTP  = "http"
	SchemeHTTPS = "https"
)

// validatePKCE validates the PKCE code verifier against the stored challenge
// per RFC 7636. Malformed verifiers are invalid_request; a well-formed
// verifier that does not match the challenge is invalid_grant.
func (s *Server) validatePKCE(challenge, method, verifier string) *OAuthError {
	if challenge == "" {
		if verifier != "" {
			return ErrInvalidRequest("code_verifier provided but no code_challenge was registered")
		}
		// No PKCE bound to this code
		return nil
	}

	if verifier == "" {
		return ErrInvalidRequest("code_verifier is required when code_challenge is present")
	}

	// RFC 7636: code_verifier must be 43-128 characters
	if len(verifier) < MinCodeVerifierLength || len(verifier) > MaxCodeVerifierLength {
		return ErrInvalidRequest(fmt.Sprintf(
			"code_verifier must be between %d and %d characters (RFC 7636)",
			MinCodeVerifierLength, MaxCodeVerifierLength))
	}

	// RFC 7636: code_verifier can only contain [A-Z] / [a-z] / [0-9] / "-" / "." / "_" / "~"
	for _, ch := range verifier {
		isValid := (ch >= 'A' && ch <= 'Z') || (ch >= 'a' && ch <= 'z') || (ch >= '0' && ch <= '9') ||
			ch == '-' || ch == '.' || ch == '_' || ch == '~'
		if !isValid {
			return ErrInvalidRequest("code_verifier contains invalid characters (must be [A-Za-z0-9-._~])")
		}
	}

	var computedChallenge string

	switch method {
	case PKCEMethodS256:
		hash := sha256.Sum256([]byte(verifier))
		computedChallenge = base64.RawURLEncoding.EncodeToString(hash[:])

	case PKCEMethodPlain:
		if !s.Config.AllowPKCEPlain {
			return ErrInvalidRequest("'plain' code_challenge_method is not allowed")
		}
		computedChallenge = verifier
		s.Logger.Warn("Using insecure 'plain' PKCE method",
			"recommendation", "Upgrade client to use S256")

	default:
		return ErrInvalidRequest(fmt.Sprintf("unsupported code_challenge_method: %s", method))
	}

	// Constant-time comparison to prevent timing attacks
	if subtle.ConstantTimeCompare([]byte(computedChallenge), []byte(challenge)) != 1 {
		return ErrInvalidGrant("code_verifier does not match code_challenge")
	}

	return nil
}

// validateCodeChallenge checks a code_challenge and method supplied on an
// authorization request, before a code is issued.
func (s *Server) validateCodeChallenge(challenge, method string) *OAuthError {
	if challenge == "" {
		if s.Config.RequirePKCE {
			return ErrInvalidRequest("code_challenge is required")
		}
		return nil
	}

	// S256 challenges are base64url(SHA-256), always 43 characters. Plain
	// challenges mirror verifier rules.
	if len(challenge) < MinCodeVerifierLength || len(challenge) > MaxCodeVerifierLength {
		return ErrInvalidRequest(fmt.Sprintf(
			"code_challenge must be between %d and %d characters",
			MinCodeVerifierLength, MaxCodeVerifierLength))
	}

	switch method {
	case PKCEMethodS256, "":
		// Empty method defaults to plain per RFC 7636, but we normalize to
		// S256 at the authorize endpoint; callers pass the resolved method.
		return nil
	case PKCEMethodPlain:
		if !s.Config.AllowPKCEPlain {
			return ErrInvalidRequest("'plain' code_challenge_method is not allowed")
		}
		return nil
	default:
		return ErrInvalidRequest(fmt.Sprintf("unsupported code_challenge_method: %s", method))
	}
}

// validateRedirectURI checks a requested redirect URI against the client's
// registered URIs. Matching is structural: scheme, host, and path must match
// a registered URI, and its query string too when the registered URI has
// one. Per RFC 8252 section 7.3, a loopback IP literal (http://127.0.0.1 or
// http://[::1]) may use any port.
func (s *Server) validateRedirectURI(client *storage.Client, redirectURI string) *OAuthError {
	if len(client.RedirectURIs) == 0 {
		return ErrInvalidRedirectURI("client has no registered redirect URIs")
	}
	if redirectURI == "" {
		// A single registered URI can be used implicitly; more than one is
		// ambiguous and the parameter becomes mandatory.
		if len(client.RedirectURIs) == 1 {
			return nil
		}
		return ErrInvalidRequest("redirect_uri is required when multiple URIs are registered")
	}

	candidate, err := url.Parse(redirectURI)
	if err != nil || candidate.Scheme == "" {
		return ErrInvalidRedirectURI("redirect_uri is not a valid absolute URI")
	}
	if candidate.Fragment != "" {
		return ErrInvalidRedirectURI("redirect_uri must not contain a fragment")
	}

	for _, registered := range client.RedirectURIs {
		if redirectURIMatches(registered, candidate) {
			return nil
		}
	}

	return ErrInvalidRedirectURI("redirect_uri is not registered for this client")
}

// redirectURIMatches reports whether candidate structurally matches the
// registered URI, honoring the loopback any-port rule.
func redirectURIMatches(registered string, candidate *url.URL) bool {
	reg, err := url.Parse(registered)
	if err != nil {
		return false
	}

	if !strings.EqualFold(reg.Scheme, candidate.Scheme) {
		return false
	}
	if reg.Path != candidate.Path {
		return false
	}
	// The query string only participates in matching when the registered
	// URI carries one.
	if reg.RawQuery != "" && reg.RawQuery != candidate.RawQuery {
		return false
	}

	regHost := strings.ToLower(reg.Hostname())
	candHost := strings.ToLower(candidate.Hostname())
	if regHost != candHost {
		return false
	}

	// RFC 8252 section 7.3: native apps bind an ephemeral port on the
	// loopback interface, so the port is excluded from the comparison for
	// http over a loopback IP literal.
	if strings.EqualFold(reg.Scheme, SchemeHTTP) && isLoopbackIPLiteral(regHost) {
		return true
	}

	return reg.Port() == candidate.Port()
}

// isLoopbackIPLiteral reports whether host is a loopback IP literal. The
// hostname "localhost" is deliberately excluded: RFC 8252 recommends against
// it because it can resolve off-host.
func isLoopbackIPLiteral(host string) bool {
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// resolveScopes expands a space-delimited scope request into the scope list
// granted to the client. An empty request falls back to the server's default
// scopes. The invalid_scope error names the offending scope; unknown scopes
// and scopes outside the client's allowlist share the same wording so the
// response does not reveal which registered scopes exist.
func (s *Server) resolveScopes(ctx context.Context, client *storage.Client, requestedScope string) ([]string, *OAuthError) {
	requested := strings.Fields(requestedScope)

	if len(requested) == 0 {
		defaults, err := s.repos.Scopes.DefaultScopes(ctx)
		if err != nil {
			s.Logger.Error("Failed to load default scopes", "error", err)
			return nil, ErrServerError("failed to resolve scopes")
		}
		for _, scope := range defaults {
			requested = append(requested, scope.ID)
		}
	}

	granted := make([]string, 0, len(requested))
	seen := make(map[string]bool, len(requested))

	for _, name := range requested {
		if seen[name] {
			continue
		}
		seen[name] = true

		if _, err := s.repos.Scopes.GetScope(ctx, name); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return nil, ErrInvalidScope(fmt.Sprintf("the requested scope %q is not available", name))
			}
			s.Logger.Error("Failed to look up scope", "scope", name, "error", err)
			return nil, ErrServerError("failed to resolve scopes")
		}

		if !clientAllowsScope(client, name) {
			return nil, ErrInvalidScope(fmt.Sprintf("the requested scope %q is not available", name))
		}

		granted = append(granted, name)
	}

	return granted, nil
}

// clientAllowsScope checks the client's scope allowlist; an empty allowlist
// permits every registered scope.
func clientAllowsScope(client *storage.Client, scope string) bool {
	if len(client.Scopes) == 0 {
		return true
	}
	for _, allowed := range client.Scopes {
		if allowed == scope {
			return true
		}
	}
	return false
}
