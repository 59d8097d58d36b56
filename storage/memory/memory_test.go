package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/thephpleague/oauth2-server-sub003/internal/testutil"
	"github.com/thephpleague/oauth2-server-sub003/storage"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	store := NewWithInterval(0)
	t.Cleanup(store.Stop)
	return store
}

func TestGetClient(t *testing.T) {
	store := newStore(t)
	store.AddClient(testutil.GenerateTestClient(t))

	client, err := store.GetClient(context.Background(), "test-client-id")
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, client.ClientID, "test-client-id")

	_, err = store.GetClient(context.Background(), "nope")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestValidateClientSecret(t *testing.T) {
	store := newStore(t)
	store.AddClient(testutil.GenerateTestClient(t))
	store.AddClient(testutil.GenerateTestPublicClient())

	tests := []struct {
		name     string
		clientID string
		secret   string
		wantErr  bool
	}{
		{"correct secret", "test-client-id", "test-secret", false},
		{"wrong secret", "test-client-id", "wrong", true},
		{"unknown client", "ghost", "test-secret", true},
		{"public client has no secret", "test-public-client", "anything", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := store.ValidateClientSecret(context.Background(), tt.clientID, tt.secret)
			if tt.wantErr {
				if !errors.Is(err, storage.ErrInvalidCredentials) {
					t.Errorf("expected ErrInvalidCredentials, got %v", err)
				}
				return
			}
			testutil.AssertNoError(t, err)
		})
	}
}

func TestAuthenticateUser(t *testing.T) {
	store := newStore(t)
	testutil.AssertNoError(t, store.AddUser(&storage.User{ID: "user-1", Username: "alice"}, "wonderland"))

	user, err := store.AuthenticateUser(context.Background(), "alice", "wonderland")
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, user.ID, "user-1")

	// Wrong password and unknown username must be indistinguishable.
	_, wrongPass := store.AuthenticateUser(context.Background(), "alice", "nope")
	_, unknownUser := store.AuthenticateUser(context.Background(), "bob", "wonderland")
	if !errors.Is(wrongPass, storage.ErrInvalidCredentials) {
		t.Errorf("wrong password: expected ErrInvalidCredentials, got %v", wrongPass)
	}
	if !errors.Is(unknownUser, storage.ErrInvalidCredentials) {
		t.Errorf("unknown user: expected ErrInvalidCredentials, got %v", unknownUser)
	}
}

func TestScopes(t *testing.T) {
	store := newStore(t)
	store.AddScope(&storage.Scope{ID: "read", Description: "read access"})
	store.AddScope(&storage.Scope{ID: "write", Description: "write access"})
	store.SetDefaultScopes("read")

	scope, err := store.GetScope(context.Background(), "read")
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, scope.ID, "read")

	if _, err := store.GetScope(context.Background(), "admin"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	defaults, err := store.DefaultScopes(context.Background())
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, len(defaults), 1)
	testutil.AssertEqual(t, defaults[0].ID, "read")
}

func TestAtomicConsumeAuthorizationCode(t *testing.T) {
	store := newStore(t)
	code := testutil.GenerateTestAuthorizationCode("some-verifier-string-that-is-long-enough")
	testutil.AssertNoError(t, store.SaveAuthorizationCode(context.Background(), code))

	t.Run("first redemption wins", func(t *testing.T) {
		got, err := store.AtomicConsumeAuthorizationCode(context.Background(), code.Code)
		testutil.AssertNoError(t, err)
		testutil.AssertEqual(t, got.ClientID, code.ClientID)
		testutil.AssertTrue(t, got.Used, "returned record should be marked used")
	})

	t.Run("reuse returns record with error", func(t *testing.T) {
		got, err := store.AtomicConsumeAuthorizationCode(context.Background(), code.Code)
		if !errors.Is(err, storage.ErrCodeAlreadyUsed) {
			t.Fatalf("expected ErrCodeAlreadyUsed, got %v", err)
		}
		if got == nil || got.UserID != code.UserID {
			t.Error("reuse must return the original record for family revocation")
		}
	})

	t.Run("unknown code", func(t *testing.T) {
		_, err := store.AtomicConsumeAuthorizationCode(context.Background(), "nope")
		if !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("expired code", func(t *testing.T) {
		expired := testutil.GenerateTestAuthorizationCode("another-verifier-string-long-enough-ok")
		expired.Code = "expired-code"
		expired.ExpiresAt = time.Now().Add(-time.Minute)
		testutil.AssertNoError(t, store.SaveAuthorizationCode(context.Background(), expired))

		_, err := store.AtomicConsumeAuthorizationCode(context.Background(), "expired-code")
		if !errors.Is(err, storage.ErrExpired) {
			t.Errorf("expected ErrExpired, got %v", err)
		}
	})
}

func TestAtomicConsumeAuthorizationCodeExactlyOnce(t *testing.T) {
	store := newStore(t)
	code := testutil.GenerateTestAuthorizationCode("concurrency-verifier-string-long-enough")
	testutil.AssertNoError(t, store.SaveAuthorizationCode(context.Background(), code))

	const workers = 16
	var wg sync.WaitGroup
	successes := make(chan struct{}, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := store.AtomicConsumeAuthorizationCode(context.Background(), code.Code); err == nil {
				successes <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(successes)

	if got := len(successes); got != 1 {
		t.Errorf("%d redemptions succeeded, want exactly 1", got)
	}
}

func TestAccessTokenRevocation(t *testing.T) {
	store := newStore(t)
	now := time.Now()
	save := func(id, grantID string) {
		t.Helper()
		testutil.AssertNoError(t, store.SaveAccessToken(context.Background(), &storage.AccessToken{
			ID:        id,
			OwnerType: storage.OwnerTypeUser,
			OwnerID:   "user-1",
			ClientID:  "test-client-id",
			GrantID:   grantID,
			CreatedAt: now,
			ExpiresAt: now.Add(time.Hour),
		}))
	}
	save("at-1", "grant-a")
	save("at-2", "grant-a")
	save("at-3", "grant-b")

	revoked, err := store.IsAccessTokenRevoked(context.Background(), "at-1")
	testutil.AssertNoError(t, err)
	testutil.AssertFalse(t, revoked, "fresh token should not be revoked")

	testutil.AssertNoError(t, store.RevokeAccessToken(context.Background(), "at-1"))
	revoked, err = store.IsAccessTokenRevoked(context.Background(), "at-1")
	testutil.AssertNoError(t, err)
	testutil.AssertTrue(t, revoked, "token should be revoked")

	count, err := store.RevokeAccessTokensByGrantID(context.Background(), "grant-a")
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, count, 2)

	revoked, err = store.IsAccessTokenRevoked(context.Background(), "at-3")
	testutil.AssertNoError(t, err)
	testutil.AssertFalse(t, revoked, "other families must be untouched")

	count, err = store.RevokeAccessTokensByGrantID(context.Background(), "")
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, count, 0)
}

func saveRefreshToken(t *testing.T, store *Store, id, grantID string, expiresIn time.Duration) {
	t.Helper()
	now := time.Now()
	testutil.AssertNoError(t, store.SaveRefreshToken(context.Background(), &storage.RefreshToken{
		ID:            id,
		AccessTokenID: "at-" + id,
		ClientID:      "test-client-id",
		OwnerID:       "user-1",
		GrantID:       grantID,
		Scopes:        []string{"read"},
		CreatedAt:     now,
		ExpiresAt:     now.Add(expiresIn),
	}))
}

func TestAtomicConsumeRefreshToken(t *testing.T) {
	store := newStore(t)
	saveRefreshToken(t, store, "rt-1", "grant-a", time.Hour)

	t.Run("first consume wins", func(t *testing.T) {
		got, err := store.AtomicConsumeRefreshToken(context.Background(), "rt-1")
		testutil.AssertNoError(t, err)
		testutil.AssertEqual(t, got.GrantID, "grant-a")
		testutil.AssertTrue(t, got.Consumed, "returned record should be marked consumed")
	})

	t.Run("replay returns record with error", func(t *testing.T) {
		got, err := store.AtomicConsumeRefreshToken(context.Background(), "rt-1")
		if !errors.Is(err, storage.ErrTokenConsumed) {
			t.Fatalf("expected ErrTokenConsumed, got %v", err)
		}
		if got == nil || got.GrantID != "grant-a" {
			t.Error("replay must return the original record for family revocation")
		}
	})

	t.Run("unknown token", func(t *testing.T) {
		_, err := store.AtomicConsumeRefreshToken(context.Background(), "nope")
		if !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("expired token", func(t *testing.T) {
		saveRefreshToken(t, store, "rt-old", "grant-b", -time.Minute)
		_, err := store.AtomicConsumeRefreshToken(context.Background(), "rt-old")
		if !errors.Is(err, storage.ErrExpired) {
			t.Errorf("expected ErrExpired, got %v", err)
		}
	})

	t.Run("explicitly revoked token reads as consumed", func(t *testing.T) {
		saveRefreshToken(t, store, "rt-revoked", "grant-c", time.Hour)
		testutil.AssertNoError(t, store.RevokeRefreshToken(context.Background(), "rt-revoked"))

		_, err := store.AtomicConsumeRefreshToken(context.Background(), "rt-revoked")
		if !errors.Is(err, storage.ErrTokenConsumed) {
			t.Errorf("expected ErrTokenConsumed, got %v", err)
		}
	})
}

func TestAtomicConsumeRefreshTokenExactlyOnce(t *testing.T) {
	store := newStore(t)
	saveRefreshToken(t, store, "rt-race", "grant-a", time.Hour)

	const workers = 16
	var wg sync.WaitGroup
	successes := make(chan struct{}, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := store.AtomicConsumeRefreshToken(context.Background(), "rt-race"); err == nil {
				successes <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(successes)

	if got := len(successes); got != 1 {
		t.Errorf("%d consumes succeeded, want exactly 1", got)
	}
}

func TestRevokeRefreshTokensByGrantID(t *testing.T) {
	store := newStore(t)
	saveRefreshToken(t, store, "rt-1", "grant-a", time.Hour)
	saveRefreshToken(t, store, "rt-2", "grant-a", time.Hour)
	saveRefreshToken(t, store, "rt-3", "grant-b", time.Hour)

	count, err := store.RevokeRefreshTokensByGrantID(context.Background(), "grant-a")
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, count, 2)

	// Family members are gone; the other family survives.
	if _, err := store.AtomicConsumeRefreshToken(context.Background(), "rt-1"); err == nil {
		t.Error("revoked family member should not be consumable")
	}
	_, err = store.AtomicConsumeRefreshToken(context.Background(), "rt-3")
	testutil.AssertNoError(t, err)
}
