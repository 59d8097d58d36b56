package server

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/oauth2"

	"github.com/thephpleague/oauth2-server-sub003/events"
	"github.com/thephpleague/oauth2-server-sub003/instrumentation"
	"github.com/thephpleague/oauth2-server-sub003/security"
	"github.com/thephpleague/oauth2-server-sub003/storage"
	"github.com/thephpleague/oauth2-server-sub003/token"
)

// safeTruncate safely truncates a string to maxLen characters without panicking.
// Returns the original string if it's shorter than maxLen, otherwise returns
// the first maxLen characters.
func safeTruncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen]
}

// Server implements the authorization server's grant engine. It coordinates
// grant flows using the repository backends, signs access tokens through the
// codec, and publishes lifecycle events through the emitter.
type Server struct {
	repos       storage.Repositories
	codec       *token.Codec
	Emitter     *events.Emitter
	Auditor     *security.Auditor
	RateLimiter *security.RateLimiter // IP-based rate limiter
	Logger      *slog.Logger
	Config      *Config

	// Instrumentation provides OpenTelemetry metrics and tracing (optional)
	Instrumentation *instrumentation.Instrumentation
}

// New creates a new authorization server
func New(
	repos storage.Repositories,
	codec *token.Codec,
	config *Config,
	logger *slog.Logger,
) (*Server, error) {
	if repos.Clients == nil {
		return nil, fmt.Errorf("client repository is required")
	}
	if repos.AccessTokens == nil {
		return nil, fmt.Errorf("access token repository is required")
	}
	if repos.RefreshTokens == nil {
		return nil, fmt.Errorf("refresh token repository is required")
	}
	if repos.AuthCodes == nil {
		return nil, fmt.Errorf("authorization code repository is required")
	}
	if repos.Scopes == nil {
		return nil, fmt.Errorf("scope repository is required")
	}
	if codec == nil {
		return nil, fmt.Errorf("token codec is required")
	}
	if config == nil {
		config = &Config{}
	}
	if logger == nil {
		logger = slog.Default()
	}

	// Apply secure defaults
	config = applySecureDefaults(config, logger)

	srv := &Server{
		repos:   repos,
		codec:   codec,
		Emitter: events.New(),
		Config:  config,
		Logger:  logger,
	}

	return srv, nil
}

// Codec returns the access token codec used by the server.
func (s *Server) Codec() *token.Codec {
	return s.codec
}

// Repositories returns the storage backends the server was built with.
func (s *Server) Repositories() storage.Repositories {
	return s.repos
}

// SetAuditor sets the security auditor and attaches it to the server's
// event emitter.
func (s *Server) SetAuditor(aud *security.Auditor) {
	s.Auditor = aud
	if aud != nil {
		aud.Attach(s.Emitter)
	}
}

// SetRateLimiter sets the IP-based rate limiter
func (s *Server) SetRateLimiter(rl *security.RateLimiter) {
	s.RateLimiter = rl
}

// SetInstrumentation sets the OpenTelemetry instrumentation and subscribes
// a metrics listener that counts security-relevant grant events.
func (s *Server) SetInstrumentation(inst *instrumentation.Instrumentation) {
	s.Instrumentation = inst
	if inst == nil {
		return
	}

	for _, name := range []string{
		events.ClientAuthenticationFailed,
		events.UserAuthenticationFailed,
		events.CodeReuseDetected,
		events.RefreshTokenReuseDetected,
	} {
		s.Emitter.OnPriority(name, events.PriorityLow, func(ctx context.Context, event *events.Event) {
			inst.Metrics().RecordAuditEvent(ctx, event.Name)
		})
	}
}

// metrics returns the metrics recorder, or nil when instrumentation is off.
func (s *Server) metrics() *instrumentation.Metrics {
	if s.Instrumentation == nil {
		return nil
	}
	return s.Instrumentation.Metrics()
}

// generateRandomToken generates a cryptographically secure random token.
// This is an alias for oauth2.GenerateVerifier() which produces a URL-safe,
// base64-encoded random string suitable for codes, token IDs, etc.
func generateRandomToken() string {
	return oauth2.GenerateVerifier()
}
