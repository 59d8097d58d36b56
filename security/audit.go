// Package security provides security features for the authorization server:
// audit logging, rate limiting, secure randomness, client IP extraction, and
// response header management.
package security

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/thephpleague/oauth2-server-sub003/events"
)

// Audit log flood protection. A stolen code or refresh token replayed in a
// loop would otherwise produce one audit record per attempt.
const (
	auditLogRate  = 10 // records per second per event type
	auditLogBurst = 20
)

// Auditor handles security event logging with PII protection.
type Auditor struct {
	logger  *slog.Logger
	enabled bool

	mu       sync.Mutex
	limiters map[string]*rate.Limiter // keyed by event type
}

// NewAuditor creates a new security auditor.
func NewAuditor(logger *slog.Logger, enabled bool) *Auditor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Auditor{
		logger:   logger,
		enabled:  enabled,
		limiters: make(map[string]*rate.Limiter),
	}
}

// Attach subscribes the auditor to every grant-engine event at low priority,
// so auditing observes the event last and cannot suppress other listeners.
func (a *Auditor) Attach(emitter *events.Emitter) {
	names := []string{
		events.AccessTokenIssued,
		events.AccessTokenRefreshed,
		events.AccessTokenRevoked,
		events.RefreshTokenIssued,
		events.RefreshTokenRevoked,
		events.AuthorizationCodeIssued,
		events.ClientAuthenticationFailed,
		events.UserAuthenticationFailed,
		events.CodeReuseDetected,
		events.RefreshTokenReuseDetected,
	}
	for _, name := range names {
		emitter.OnPriority(name, events.PriorityLow, a.handleEvent)
	}
}

func (a *Auditor) handleEvent(_ context.Context, event *events.Event) {
	a.log(event.Name, event.UserID, event.ClientID, event.Details)
}

// LogAuthFailure logs an authentication failure outside the event pipeline
// (used by the HTTP boundary before a grant is even selected).
func (a *Auditor) LogAuthFailure(userID, clientID, ipAddress, reason string) {
	a.log("auth_failure", userID, clientID, map[string]any{
		"reason":     reason,
		"ip_address": ipAddress,
	})
}

// LogRateLimitExceeded logs a rate limit violation.
func (a *Auditor) LogRateLimitExceeded(ipAddress, endpoint string) {
	a.log("rate_limit_exceeded", "", "", map[string]any{
		"ip_address": ipAddress,
		"endpoint":   endpoint,
	})
}

// log writes a security audit record with hashed user identifiers. Records
// are rate limited per event type so replay floods cannot drown the log.
func (a *Auditor) log(eventType, userID, clientID string, details map[string]any) {
	if !a.enabled {
		return
	}
	if !a.allow(eventType) {
		return
	}

	a.logger.Info("security_audit",
		"event_type", eventType,
		"user_id_hash", hashForLogging(userID),
		"client_id", clientID,
		"details", details,
		"timestamp", time.Now(),
	)
}

func (a *Auditor) allow(eventType string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	limiter, ok := a.limiters[eventType]
	if !ok {
		limiter = rate.NewLimiter(rate.Limit(auditLogRate), auditLogBurst)
		a.limiters[eventType] = limiter
	}
	return limiter.Allow()
}

// hashForLogging hashes PII before it reaches log storage. Only a prefix of
// the digest is kept; audit correlation does not need the full hash.
func hashForLogging(value string) string {
	if value == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])[:16]
}
