// Package memory provides an in-memory implementation of all storage
// interfaces. It is suitable for development, testing, and single-instance
// deployments.
package memory

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/thephpleague/oauth2-server-sub003/storage"
)

const (
	// usedCodeRetention is how long consumed authorization codes are kept
	// around after use. Retaining them (instead of deleting on redemption)
	// is what makes reuse detection possible.
	usedCodeRetention = time.Hour
)

// Store is an in-memory implementation of every storage interface.
// All maps are guarded by a single mutex; the atomic consume operations
// perform their check-and-mark under that lock, which gives them the
// exactly-once semantics the interfaces require.
type Store struct {
	mu sync.Mutex

	clients       map[string]*storage.Client
	users         map[string]*storage.User // username -> user
	passwords     map[string][]byte        // username -> bcrypt hash
	scopes        map[string]*storage.Scope
	defaultScopes []string

	authCodes     map[string]*storage.AuthorizationCode
	accessTokens  map[string]*storage.AccessToken
	revokedTokens map[string]time.Time // access token jti -> revocation time
	refreshTokens map[string]*storage.RefreshToken

	cleanupInterval time.Duration
	stopCleanup     chan struct{}
	stopOnce        sync.Once
	logger          *slog.Logger
}

// Compile-time interface checks
var (
	_ storage.ClientRepository       = (*Store)(nil)
	_ storage.AccessTokenRepository  = (*Store)(nil)
	_ storage.RefreshTokenRepository = (*Store)(nil)
	_ storage.AuthCodeRepository     = (*Store)(nil)
	_ storage.UserRepository         = (*Store)(nil)
	_ storage.ScopeRepository        = (*Store)(nil)
)

// New creates a new in-memory store with the default cleanup interval
// (1 minute).
func New() *Store {
	return NewWithInterval(time.Minute)
}

// NewWithInterval creates a new in-memory store with a custom interval for
// the expired-entity cleanup loop. An interval of zero disables cleanup.
func NewWithInterval(cleanupInterval time.Duration) *Store {
	s := &Store{
		clients:         make(map[string]*storage.Client),
		users:           make(map[string]*storage.User),
		passwords:       make(map[string][]byte),
		scopes:          make(map[string]*storage.Scope),
		authCodes:       make(map[string]*storage.AuthorizationCode),
		accessTokens:    make(map[string]*storage.AccessToken),
		revokedTokens:   make(map[string]time.Time),
		refreshTokens:   make(map[string]*storage.RefreshToken),
		cleanupInterval: cleanupInterval,
		stopCleanup:     make(chan struct{}),
		logger:          slog.Default(),
	}

	if cleanupInterval > 0 {
		go s.cleanupLoop()
	}

	return s
}

// SetLogger sets the logger used by the cleanup loop.
func (s *Store) SetLogger(logger *slog.Logger) {
	if logger != nil {
		s.logger = logger
	}
}

// Stop gracefully stops the cleanup goroutine.
func (s *Store) Stop() {
	s.stopOnce.Do(func() { close(s.stopCleanup) })
}

// ==================== ClientRepository ====================

// AddClient registers a client directly. Test and bootstrap helper.
func (s *Store) AddClient(client *storage.Client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clients[client.ClientID] = client
}

// GetClient retrieves a client by ID.
func (s *Store) GetClient(_ context.Context, clientID string) (*storage.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	client, ok := s.clients[clientID]
	if !ok {
		return nil, fmt.Errorf("client %q: %w", clientID, storage.ErrNotFound)
	}
	cp := *client
	return &cp, nil
}

// ValidateClientSecret validates a client's secret against its bcrypt hash.
// bcrypt.CompareHashAndPassword is constant-time with respect to the secret.
func (s *Store) ValidateClientSecret(_ context.Context, clientID, clientSecret string) error {
	s.mu.Lock()
	client, ok := s.clients[clientID]
	s.mu.Unlock()

	if !ok {
		// Burn a comparison anyway so unknown and known clients take the
		// same time to reject.
		_ = bcrypt.CompareHashAndPassword([]byte("$2a$10$000000000000000000000uGyEkpT0Jb0QeIpkMDOSOs3cJA5ZRWxa"), []byte(clientSecret))
		return storage.ErrInvalidCredentials
	}

	if client.ClientSecretHash == "" {
		return fmt.Errorf("client %q is public: %w", clientID, storage.ErrInvalidCredentials)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(client.ClientSecretHash), []byte(clientSecret)); err != nil {
		return storage.ErrInvalidCredentials
	}
	return nil
}

// ==================== UserRepository ====================

// AddUser registers a resource owner with a bcrypt-hashed password.
// Test and bootstrap helper.
func (s *Store) AddUser(user *storage.User, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[user.Username] = user
	s.passwords[user.Username] = hash
	return nil
}

// AuthenticateUser verifies a username/password pair.
func (s *Store) AuthenticateUser(_ context.Context, username, password string) (*storage.User, error) {
	s.mu.Lock()
	user, ok := s.users[username]
	hash := s.passwords[username]
	s.mu.Unlock()

	if !ok {
		// Same cost for unknown usernames as for wrong passwords.
		_ = bcrypt.CompareHashAndPassword([]byte("$2a$10$000000000000000000000uGyEkpT0Jb0QeIpkMDOSOs3cJA5ZRWxa"), []byte(password))
		return nil, storage.ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword(hash, []byte(password)); err != nil {
		return nil, storage.ErrInvalidCredentials
	}

	cp := *user
	return &cp, nil
}

// ==================== ScopeRepository ====================

// AddScope registers a scope. Test and bootstrap helper.
func (s *Store) AddScope(scope *storage.Scope) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scopes[scope.ID] = scope
}

// SetDefaultScopes sets the scopes granted when a request names none.
func (s *Store) SetDefaultScopes(scopeIDs ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.defaultScopes = scopeIDs
}

// GetScope resolves a scope identifier.
func (s *Store) GetScope(_ context.Context, scopeID string) (*storage.Scope, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	scope, ok := s.scopes[scopeID]
	if !ok {
		return nil, fmt.Errorf("scope %q: %w", scopeID, storage.ErrNotFound)
	}
	cp := *scope
	return &cp, nil
}

// DefaultScopes returns the configured default scope set.
func (s *Store) DefaultScopes(_ context.Context) ([]*storage.Scope, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	defaults := make([]*storage.Scope, 0, len(s.defaultScopes))
	for _, id := range s.defaultScopes {
		if scope, ok := s.scopes[id]; ok {
			cp := *scope
			defaults = append(defaults, &cp)
		}
	}
	return defaults, nil
}

// ==================== AuthCodeRepository ====================

// SaveAuthorizationCode persists an authorization code.
func (s *Store) SaveAuthorizationCode(_ context.Context, code *storage.AuthorizationCode) error {
	if code == nil || code.Code == "" {
		return fmt.Errorf("invalid authorization code")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *code
	s.authCodes[code.Code] = &cp
	return nil
}

// AtomicConsumeAuthorizationCode atomically checks that a code is unused and
// marks it consumed. The check and the mark happen under one lock, so two
// concurrent redemptions of the same code can never both succeed.
func (s *Store) AtomicConsumeAuthorizationCode(_ context.Context, code string) (*storage.AuthorizationCode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.authCodes[code]
	if !ok {
		return nil, fmt.Errorf("authorization code: %w", storage.ErrNotFound)
	}

	if stored.Used {
		// Return the code alongside the error so the caller can revoke the
		// tokens issued from the first redemption (reuse detection).
		cp := *stored
		return &cp, storage.ErrCodeAlreadyUsed
	}

	if stored.IsExpired() {
		return nil, fmt.Errorf("authorization code: %w", storage.ErrExpired)
	}

	// Keep the code, marked as used, for reuse detection; cleanup removes
	// it after usedCodeRetention.
	stored.Used = true

	cp := *stored
	return &cp, nil
}

// ==================== AccessTokenRepository ====================

// SaveAccessToken persists an access token record keyed by jti.
func (s *Store) SaveAccessToken(_ context.Context, token *storage.AccessToken) error {
	if token == nil || token.ID == "" {
		return fmt.Errorf("invalid access token")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *token
	s.accessTokens[token.ID] = &cp
	return nil
}

// RevokeAccessToken marks a token identifier as revoked. Unknown identifiers
// are accepted silently per RFC 7009.
func (s *Store) RevokeAccessToken(_ context.Context, tokenID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.revokedTokens[tokenID] = time.Now()
	return nil
}

// IsAccessTokenRevoked reports whether a token identifier has been revoked.
func (s *Store) IsAccessTokenRevoked(_ context.Context, tokenID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, revoked := s.revokedTokens[tokenID]
	return revoked, nil
}

// RevokeAccessTokensByGrantID revokes every access token in a token family.
func (s *Store) RevokeAccessTokensByGrantID(_ context.Context, grantID string) (int, error) {
	if grantID == "" {
		return 0, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	revoked := 0
	for id, token := range s.accessTokens {
		if token.GrantID == grantID {
			s.revokedTokens[id] = time.Now()
			revoked++
		}
	}
	return revoked, nil
}

// GetAccessToken retrieves an access token record by jti. Used by revocation
// cascades and tests.
func (s *Store) GetAccessToken(_ context.Context, tokenID string) (*storage.AccessToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	token, ok := s.accessTokens[tokenID]
	if !ok {
		return nil, fmt.Errorf("access token: %w", storage.ErrNotFound)
	}
	cp := *token
	return &cp, nil
}

// ==================== RefreshTokenRepository ====================

// SaveRefreshToken persists a refresh token.
func (s *Store) SaveRefreshToken(_ context.Context, token *storage.RefreshToken) error {
	if token == nil || token.ID == "" {
		return fmt.Errorf("invalid refresh token")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *token
	s.refreshTokens[token.ID] = &cp
	return nil
}

// AtomicConsumeRefreshToken atomically retrieves and invalidates a refresh
// token. Only one concurrent caller wins: the check and the consumed mark
// happen under one lock. Consumed tokens are retained (like used codes) so a
// replay returns the record alongside ErrTokenConsumed and the engine can
// revoke the token's family.
func (s *Store) AtomicConsumeRefreshToken(_ context.Context, tokenID string) (*storage.RefreshToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.refreshTokens[tokenID]
	if !ok {
		if _, revoked := s.revokedTokens["rt:"+tokenID]; revoked {
			return nil, storage.ErrTokenConsumed
		}
		return nil, fmt.Errorf("refresh token: %w", storage.ErrNotFound)
	}

	if stored.Consumed {
		cp := *stored
		return &cp, storage.ErrTokenConsumed
	}

	if stored.IsExpired() {
		delete(s.refreshTokens, tokenID)
		return nil, fmt.Errorf("refresh token: %w", storage.ErrExpired)
	}

	stored.Consumed = true
	s.revokedTokens["rt:"+tokenID] = time.Now()

	cp := *stored
	return &cp, nil
}

// RevokeRefreshToken invalidates a refresh token. Unknown identifiers are
// accepted silently per RFC 7009.
func (s *Store) RevokeRefreshToken(_ context.Context, tokenID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.refreshTokens, tokenID)
	s.revokedTokens["rt:"+tokenID] = time.Now()
	return nil
}

// RevokeRefreshTokensByGrantID revokes every refresh token in a token family.
func (s *Store) RevokeRefreshTokensByGrantID(_ context.Context, grantID string) (int, error) {
	if grantID == "" {
		return 0, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	revoked := 0
	for id, token := range s.refreshTokens {
		if token.GrantID == grantID {
			delete(s.refreshTokens, id)
			s.revokedTokens["rt:"+id] = time.Now()
			revoked++
		}
	}
	return revoked, nil
}

// ==================== Cleanup ====================

func (s *Store) cleanupLoop() {
	ticker := time.NewTicker(s.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.cleanup()
		case <-s.stopCleanup:
			return
		}
	}
}

// cleanup removes expired codes and tokens. Used codes are retained for
// usedCodeRetention beyond their expiry so reuse attempts remain detectable.
func (s *Store) cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	removed := 0

	for code, ac := range s.authCodes {
		cutoff := ac.ExpiresAt
		if ac.Used {
			cutoff = cutoff.Add(usedCodeRetention)
		}
		if now.After(cutoff) {
			delete(s.authCodes, code)
			removed++
		}
	}

	for id, at := range s.accessTokens {
		if now.After(at.ExpiresAt) {
			delete(s.accessTokens, id)
			delete(s.revokedTokens, id)
			removed++
		}
	}

	for id, rt := range s.refreshTokens {
		cutoff := rt.ExpiresAt
		if rt.Consumed {
			// Consumed tokens only need to survive long enough for replay
			// detection.
			if consumedAt, ok := s.revokedTokens["rt:"+id]; ok {
				cutoff = consumedAt.Add(usedCodeRetention)
			}
		}
		if now.After(cutoff) {
			delete(s.refreshTokens, id)
			removed++
		}
	}

	// Refresh-token tombstones only need to outlive plausible replay
	// attempts. Access-token revocations are dropped together with the
	// token record above, never before.
	for id, revokedAt := range s.revokedTokens {
		if strings.HasPrefix(id, "rt:") && now.Sub(revokedAt) > usedCodeRetention {
			delete(s.revokedTokens, id)
		}
	}

	if removed > 0 {
		s.logger.Debug("Storage cleanup completed",
			"removed", removed,
			"auth_codes", len(s.authCodes),
			"access_tokens", len(s.accessTokens),
			"refresh_tokens", len(s.refreshTokens))
	}
}
