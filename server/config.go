package server

import (
	"log/slog"
)

// Config holds authorization server configuration
type Config struct {
	// Issuer is the server's issuer identifier (base URL)
	Issuer string

	// AuthorizationCodeTTL is how long authorization codes are valid
	AuthorizationCodeTTL int64 // seconds, default: 600 (10 minutes)

	// AccessTokenTTL is how long access tokens are valid
	AccessTokenTTL int64 // seconds, default: 3600 (1 hour)

	// RefreshTokenTTL is how long refresh tokens are valid
	RefreshTokenTTL int64 // seconds, default: 7776000 (90 days)

	// AllowRefreshTokenRotation enables refresh token rotation (OAuth 2.1)
	// Default: true (secure by default)
	AllowRefreshTokenRotation bool // default: true

	// RequirePKCE enforces PKCE for all authorization requests
	// WARNING: Disabling this significantly weakens security
	// When true, code_challenge parameter is mandatory (secure by default)
	// Default: true
	RequirePKCE bool // default: true

	// AllowPKCEPlain allows the 'plain' code_challenge_method (NOT RECOMMENDED)
	// WARNING: The 'plain' method is insecure and deprecated in OAuth 2.1
	// Only enable for backward compatibility with legacy clients
	// When false, only S256 method is accepted (secure by default)
	// Default: false
	AllowPKCEPlain bool // default: false

	// AllowImplicitGrant enables the implicit grant (response_type=token)
	// WARNING: Deprecated in OAuth 2.1; tokens leak via browser history
	// Only enable for backward compatibility with legacy single-page apps
	// Default: false
	AllowImplicitGrant bool // default: false

	// AllowPasswordGrant enables the resource owner password credentials grant
	// WARNING: Deprecated in OAuth 2.1; exposes user credentials to the client
	// Only enable for trusted first-party clients during migration
	// Default: false
	AllowPasswordGrant bool // default: false

	// TrustProxy enables trusting X-Forwarded-For and X-Real-IP headers
	// WARNING: Only enable if behind a trusted reverse proxy (nginx, HAProxy, etc.)
	// When false, uses direct connection IP (secure by default)
	// Default: false
	TrustProxy bool // default: false

	// TrustedProxyCount is the number of trusted proxies in front of this server
	// Used with TrustProxy to correctly extract client IP from X-Forwarded-For
	// Default: 1
	TrustedProxyCount int // default: 1

	// ClockSkewGracePeriod is the leeway applied to exp and nbf when decoding
	// tokens (in seconds). Zero means strict expiry checks; issuance and
	// storage-side checks are always strict.
	// Default: 0
	ClockSkewGracePeriod int64 // seconds, default: 0

	// CORS configures cross-origin access for browser-based clients.
	// Disabled unless AllowedOrigins is set.
	CORS CORSConfig
}

// CORSConfig controls the CORS headers written by the HTTP handlers.
type CORSConfig struct {
	// AllowedOrigins lists origins allowed to make cross-origin requests
	// (e.g., "https://app.example.com"). "*" allows any origin and cannot
	// be combined with AllowCredentials.
	AllowedOrigins []string

	// AllowCredentials permits cookies and Authorization headers on
	// cross-origin requests.
	AllowCredentials bool

	// MaxAge is the preflight cache lifetime in seconds. Default: 3600.
	MaxAge int
}

// applySecureDefaults applies secure-by-default configuration values
// This follows the principle: secure by default, opt-in for less secure options
func applySecureDefaults(config *Config, logger *slog.Logger) *Config {
	applyTimeDefaults(config)
	applySecurityDefaults(config, logger)
	validateCORSConfig(config, logger)
	return config
}

// validateCORSConfig rejects CORS configurations that the CORS specification
// forbids and warns about risky ones.
func validateCORSConfig(config *Config, logger *slog.Logger) {
	if len(config.CORS.AllowedOrigins) == 0 {
		return
	}
	if config.CORS.MaxAge == 0 {
		config.CORS.MaxAge = 3600
	}

	for _, origin := range config.CORS.AllowedOrigins {
		if origin != "*" {
			continue
		}
		if config.CORS.AllowCredentials {
			panic("CORS: wildcard origin '*' cannot be combined with AllowCredentials=true")
		}
		logger.Warn("⚠️  SECURITY NOTICE: CORS wildcard origin enabled",
			"risk", "Any website can call the OAuth endpoints from a browser",
			"recommendation", "List explicit origins in CORS.AllowedOrigins")
	}
}

// applyTimeDefaults sets default values for time-based configuration
func applyTimeDefaults(config *Config) {
	if config.AuthorizationCodeTTL == 0 {
		config.AuthorizationCodeTTL = 600 // 10 minutes
	}
	if config.AccessTokenTTL == 0 {
		config.AccessTokenTTL = 3600 // 1 hour
	}
	if config.RefreshTokenTTL == 0 {
		config.RefreshTokenTTL = 7776000 // 90 days
	}
	if config.TrustedProxyCount == 0 {
		config.TrustedProxyCount = 1
	}
}

// applySecurityDefaults sets secure defaults for security-related configuration
// Uses a heuristic to detect if config is new (all security bools false) vs explicitly configured
func applySecurityDefaults(config *Config, logger *slog.Logger) {
	// Heuristic: if all security bools are false, it's likely a fresh config
	isDefaultConfig := !config.AllowRefreshTokenRotation &&
		!config.RequirePKCE &&
		!config.AllowPKCEPlain &&
		!config.AllowImplicitGrant &&
		!config.AllowPasswordGrant &&
		!config.TrustProxy

	if isDefaultConfig {
		config.AllowRefreshTokenRotation = true
		config.RequirePKCE = true
		return
	}

	// User has explicitly configured security - log warnings for insecure settings
	logSecurityWarnings(config, logger)
}

// logSecurityWarnings logs warnings for insecure configuration settings
func logSecurityWarnings(config *Config, logger *slog.Logger) {
	if !config.RequirePKCE {
		logger.Warn("⚠️  SECURITY WARNING: PKCE is DISABLED",
			"risk", "Authorization code interception attacks",
			"recommendation", "Set RequirePKCE=true for OAuth 2.1 compliance",
			"learn_more", "https://datatracker.ietf.org/doc/html/draft-ietf-oauth-v2-1-10#section-7.6")
	}
	if config.AllowPKCEPlain {
		logger.Warn("⚠️  SECURITY WARNING: Plain PKCE method is ALLOWED",
			"risk", "Weak code challenge protection",
			"recommendation", "Set AllowPKCEPlain=false to require S256",
			"learn_more", "https://datatracker.ietf.org/doc/html/rfc7636#section-4.2")
	}
	if config.AllowImplicitGrant {
		logger.Warn("⚠️  SECURITY WARNING: Implicit grant is ENABLED",
			"risk", "Access tokens exposed in redirect URIs and browser history",
			"recommendation", "Migrate clients to authorization_code with PKCE")
	}
	if config.AllowPasswordGrant {
		logger.Warn("⚠️  SECURITY WARNING: Password grant is ENABLED",
			"risk", "User credentials are handled directly by clients",
			"recommendation", "Migrate clients to authorization_code with PKCE")
	}
	if !config.AllowRefreshTokenRotation {
		logger.Warn("⚠️  SECURITY WARNING: Refresh token rotation is DISABLED",
			"risk", "Stolen refresh tokens remain usable until expiry",
			"recommendation", "Set AllowRefreshTokenRotation=true for OAuth 2.1 compliance")
	}
	if config.TrustProxy {
		logger.Warn("⚠️  SECURITY NOTICE: Trusting proxy headers",
			"risk", "IP spoofing if proxy is not properly configured",
			"recommendation", "Only enable behind trusted reverse proxies",
			"config", "TrustedProxyCount should match your proxy chain length")
	}
}
