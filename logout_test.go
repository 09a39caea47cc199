package authcore

import (
	"context"
	"errors"
	"testing"
)

func TestLogoutIdempotent(t *testing.T) {
	up := &mockUserProvider{}
	up.seed(t, "alice", "correct-password-123", nil, AccountStatusActive)
	engine, _, _ := newTestEngine(t, testEngineConfig(), up)
	ctx := context.Background()

	login, err := engine.Login(ctx, "alice", "correct-password-123")
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	if err := engine.Logout(ctx, login.RefreshToken); err != nil {
		t.Fatalf("first logout: %v", err)
	}
	if err := engine.Logout(ctx, login.RefreshToken); err != nil {
		t.Fatalf("second logout should succeed: %v", err)
	}

	if _, err := engine.Refresh(ctx, login.RefreshToken); !errors.Is(err, ErrSessionInvalid) {
		t.Fatalf("refresh after logout error = %v, want ErrSessionInvalid", err)
	}
}

func TestLogoutMalformedToken(t *testing.T) {
	up := &mockUserProvider{}
	engine, _, _ := newTestEngine(t, testEngineConfig(), up)

	if err := engine.Logout(context.Background(), "garbage"); !errors.Is(err, ErrSessionInvalid) {
		t.Fatalf("expected ErrSessionInvalid, got %v", err)
	}
}

func TestLogoutAllRevokesEverySession(t *testing.T) {
	up := &mockUserProvider{}
	user := up.seed(t, "alice", "correct-password-123", nil, AccountStatusActive)
	engine, _, _ := newTestEngine(t, testEngineConfig(), up)
	ctx := context.Background()

	first, err := engine.Login(ctx, "alice", "correct-password-123")
	if err != nil {
		t.Fatalf("first login failed: %v", err)
	}
	second, err := engine.Login(ctx, "alice", "correct-password-123")
	if err != nil {
		t.Fatalf("second login failed: %v", err)
	}

	if err := engine.LogoutAll(ctx, user.UserID); err != nil {
		t.Fatalf("logout all: %v", err)
	}

	if _, err := engine.Refresh(ctx, first.RefreshToken); !errors.Is(err, ErrSessionInvalid) {
		t.Fatalf("first session should be revoked, got %v", err)
	}
	if _, err := engine.Refresh(ctx, second.RefreshToken); !errors.Is(err, ErrSessionInvalid) {
		t.Fatalf("second session should be revoked, got %v", err)
	}
}

func TestSessionsSurviveOtherUsersLogoutAll(t *testing.T) {
	up := &mockUserProvider{}
	up.seed(t, "alice", "correct-password-123", nil, AccountStatusActive)
	bob := up.seed(t, "bob", "another-password-456", nil, AccountStatusActive)
	engine, _, _ := newTestEngine(t, testEngineConfig(), up)
	ctx := context.Background()

	aliceLogin, err := engine.Login(ctx, "alice", "correct-password-123")
	if err != nil {
		t.Fatalf("alice login failed: %v", err)
	}

	if err := engine.LogoutAll(ctx, bob.UserID); err != nil {
		t.Fatalf("logout all bob: %v", err)
	}

	if _, err := engine.Refresh(ctx, aliceLogin.RefreshToken); err != nil {
		t.Fatalf("alice's session must be unaffected: %v", err)
	}
}

func TestAccessTokenOutlivesLogout(t *testing.T) {
	up := &mockUserProvider{}
	up.seed(t, "alice", "correct-password-123", nil, AccountStatusActive)
	engine, _, _ := newTestEngine(t, testEngineConfig(), up)
	ctx := context.Background()

	login, err := engine.Login(ctx, "alice", "correct-password-123")
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if err := engine.Logout(ctx, login.RefreshToken); err != nil {
		t.Fatalf("logout: %v", err)
	}

	// Access validation is stateless: the already-issued token stays
	// valid until its own expiry.
	if _, err := engine.ValidateAccess(ctx, login.AccessToken); err != nil {
		t.Fatalf("access token should verify until expiry: %v", err)
	}
}
