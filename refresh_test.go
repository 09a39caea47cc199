package authcore

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestRefreshRotatesToken(t *testing.T) {
	up := &mockUserProvider{}
	user := up.seed(t, "alice", "correct-password-123", []string{"read"}, AccountStatusActive)
	engine, _, _ := newTestEngine(t, testEngineConfig(), up)
	ctx := context.Background()

	login, err := engine.Login(ctx, "alice", "correct-password-123")
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	refreshed, err := engine.Refresh(ctx, login.RefreshToken)
	if err != nil {
		t.Fatalf("refresh failed: %v", err)
	}
	if refreshed.RefreshToken == login.RefreshToken {
		t.Fatalf("refresh must return a new token")
	}
	if refreshed.SessionID != login.SessionID {
		t.Fatalf("refresh must keep the session id, got %q want %q", refreshed.SessionID, login.SessionID)
	}
	if refreshed.UserID != user.UserID {
		t.Fatalf("user id = %q, want %q", refreshed.UserID, user.UserID)
	}
	if len(refreshed.Scope) != 1 || refreshed.Scope[0] != "read" {
		t.Fatalf("scope = %v, want [read]", refreshed.Scope)
	}

	if _, err := engine.ValidateAccess(ctx, refreshed.AccessToken); err != nil {
		t.Fatalf("refreshed access token invalid: %v", err)
	}
}

func TestRefreshReuseRevokesAllSessions(t *testing.T) {
	up := &mockUserProvider{}
	up.seed(t, "alice", "correct-password-123", nil, AccountStatusActive)
	engine, _, _ := newTestEngine(t, testEngineConfig(), up)
	ctx := context.Background()

	// A second, independent session that should be collateral damage.
	other, err := engine.Login(ctx, "alice", "correct-password-123")
	if err != nil {
		t.Fatalf("second login failed: %v", err)
	}

	login, err := engine.Login(ctx, "alice", "correct-password-123")
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	refreshed, err := engine.Refresh(ctx, login.RefreshToken)
	if err != nil {
		t.Fatalf("refresh failed: %v", err)
	}

	// Replaying the rotated-away token signals theft.
	if _, err := engine.Refresh(ctx, login.RefreshToken); !errors.Is(err, ErrReuseDetected) {
		t.Fatalf("expected ErrReuseDetected, got %v", err)
	}

	// Every other credential of the user is now dead.
	if _, err := engine.Refresh(ctx, refreshed.RefreshToken); !errors.Is(err, ErrSessionInvalid) {
		t.Fatalf("newest token of replayed session should be dead, got %v", err)
	}
	if _, err := engine.Refresh(ctx, other.RefreshToken); !errors.Is(err, ErrSessionInvalid) {
		t.Fatalf("sibling session should be revoked, got %v", err)
	}
}

func TestRefreshConcurrencySingleWinner(t *testing.T) {
	up := &mockUserProvider{}
	up.seed(t, "alice", "correct-password-123", nil, AccountStatusActive)
	engine, _, _ := newTestEngine(t, testEngineConfig(), up)

	login, err := engine.Login(context.Background(), "alice", "correct-password-123")
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	const n = 16
	var wg sync.WaitGroup
	wg.Add(n)

	results := make(chan error, n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			_, err := engine.Refresh(context.Background(), login.RefreshToken)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	success := 0
	fail := 0
	for err := range results {
		if err == nil {
			success++
			continue
		}
		if errors.Is(err, ErrReuseDetected) || errors.Is(err, ErrSessionInvalid) {
			fail++
			continue
		}
		t.Fatalf("unexpected refresh error: %v", err)
	}

	if success != 1 {
		t.Fatalf("expected exactly one refresh success, got %d", success)
	}
	if fail != n-1 {
		t.Fatalf("expected %d refresh failures, got %d", n-1, fail)
	}
}

func TestRefreshMalformedToken(t *testing.T) {
	up := &mockUserProvider{}
	engine, _, _ := newTestEngine(t, testEngineConfig(), up)

	for _, token := range []string{"", "garbage", "!!!not-base64!!!"} {
		if _, err := engine.Refresh(context.Background(), token); !errors.Is(err, ErrSessionInvalid) {
			t.Fatalf("token %q error = %v, want ErrSessionInvalid", token, err)
		}
	}
}

func TestRefreshExpiredSession(t *testing.T) {
	cfg := testEngineConfig()
	cfg.Session.Lifetime = time.Hour
	up := &mockUserProvider{}
	up.seed(t, "alice", "correct-password-123", nil, AccountStatusActive)
	engine, clock, _ := newTestEngine(t, cfg, up)
	ctx := context.Background()

	login, err := engine.Login(ctx, "alice", "correct-password-123")
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	clock.Advance(2 * time.Hour)

	if _, err := engine.Refresh(ctx, login.RefreshToken); !errors.Is(err, ErrSessionInvalid) {
		t.Fatalf("expected ErrSessionInvalid for expired session, got %v", err)
	}
}

func TestRefreshRateLimited(t *testing.T) {
	cfg := testEngineConfig()
	cfg.Security.MaxRefreshAttempts = 2
	up := &mockUserProvider{}
	up.seed(t, "alice", "correct-password-123", nil, AccountStatusActive)
	engine, _, _ := newTestEngine(t, cfg, up)
	ctx := context.Background()

	login, err := engine.Login(ctx, "alice", "correct-password-123")
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	token := login.RefreshToken
	for i := 0; i < 2; i++ {
		next, err := engine.Refresh(ctx, token)
		if err != nil {
			t.Fatalf("refresh %d failed: %v", i+1, err)
		}
		token = next.RefreshToken
	}

	if _, err := engine.Refresh(ctx, token); !errors.Is(err, ErrRefreshRateLimited) {
		t.Fatalf("expected ErrRefreshRateLimited, got %v", err)
	}
}

func TestRefreshDoesNotExtendSessionLifetime(t *testing.T) {
	cfg := testEngineConfig()
	cfg.Session.Lifetime = time.Hour
	cfg.Security.EnableRefreshThrottle = false
	up := &mockUserProvider{}
	up.seed(t, "alice", "correct-password-123", nil, AccountStatusActive)
	engine, clock, _ := newTestEngine(t, cfg, up)
	ctx := context.Background()

	login, err := engine.Login(ctx, "alice", "correct-password-123")
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	token := login.RefreshToken
	for i := 0; i < 3; i++ {
		clock.Advance(19 * time.Minute)
		next, err := engine.Refresh(ctx, token)
		if err != nil {
			t.Fatalf("refresh %d failed: %v", i+1, err)
		}
		token = next.RefreshToken
	}

	// 57 minutes in: the session ends at the absolute deadline no
	// matter how recently it was refreshed.
	clock.Advance(4 * time.Minute)
	if _, err := engine.Refresh(ctx, token); !errors.Is(err, ErrSessionInvalid) {
		t.Fatalf("expected ErrSessionInvalid past absolute lifetime, got %v", err)
	}
}
