package authcore

import (
	"context"
	"errors"
	"testing"
)

func TestCreateAccountAndLogin(t *testing.T) {
	up := &mockUserProvider{}
	engine, _, _ := newTestEngine(t, testEngineConfig(), up)
	ctx := context.Background()

	res, err := engine.CreateAccount(ctx, CreateAccountRequest{
		Identifier: "alice",
		Password:   "correct-password-123",
		Scope:      []string{"user"},
	})
	if err != nil {
		t.Fatalf("create account: %v", err)
	}
	if res.UserID == "" {
		t.Fatalf("expected a user ID")
	}
	if res.AccessToken != "" || res.RefreshToken != "" {
		t.Fatalf("tokens must not be issued without auto login")
	}

	login, err := engine.Login(ctx, "alice", "correct-password-123")
	if err != nil {
		t.Fatalf("login with created account: %v", err)
	}
	if login.UserID != res.UserID {
		t.Fatalf("login user = %q, want %q", login.UserID, res.UserID)
	}
}

func TestCreateAccountDuplicateIdentifier(t *testing.T) {
	up := &mockUserProvider{}
	up.seed(t, "alice", "correct-password-123", nil, AccountStatusActive)
	engine, _, _ := newTestEngine(t, testEngineConfig(), up)

	_, err := engine.CreateAccount(context.Background(), CreateAccountRequest{
		Identifier: "alice",
		Password:   "another-password-456",
	})
	if !errors.Is(err, ErrDuplicateIdentifier) {
		t.Fatalf("expected ErrDuplicateIdentifier, got %v", err)
	}
}

func TestCreateAccountDisabled(t *testing.T) {
	up := &mockUserProvider{}
	cfg := testEngineConfig()
	cfg.Account.Enabled = false
	engine, _, _ := newTestEngine(t, cfg, up)

	_, err := engine.CreateAccount(context.Background(), CreateAccountRequest{
		Identifier: "alice",
		Password:   "correct-password-123",
	})
	if !errors.Is(err, ErrAccountCreationDisabled) {
		t.Fatalf("expected ErrAccountCreationDisabled, got %v", err)
	}
	if up.createCalls != 0 {
		t.Fatalf("provider must not be called when creation is disabled")
	}
}

func TestCreateAccountAutoLogin(t *testing.T) {
	up := &mockUserProvider{}
	cfg := testEngineConfig()
	cfg.Account.AutoLogin = true
	engine, _, _ := newTestEngine(t, cfg, up)
	ctx := context.Background()

	res, err := engine.CreateAccount(ctx, CreateAccountRequest{
		Identifier: "alice",
		Password:   "correct-password-123",
	})
	if err != nil {
		t.Fatalf("create account: %v", err)
	}
	if res.AccessToken == "" || res.RefreshToken == "" {
		t.Fatalf("auto login should issue a token pair")
	}

	auth, err := engine.ValidateAccess(ctx, res.AccessToken)
	if err != nil {
		t.Fatalf("validate auto login token: %v", err)
	}
	if auth.UserID != res.UserID {
		t.Fatalf("token subject = %q, want %q", auth.UserID, res.UserID)
	}

	if _, err := engine.Refresh(ctx, res.RefreshToken); err != nil {
		t.Fatalf("auto login refresh token should rotate: %v", err)
	}
}

func TestCreateAccountDefaultScope(t *testing.T) {
	up := &mockUserProvider{}
	cfg := testEngineConfig()
	cfg.Account.DefaultScope = []string{"user", "billing:read"}
	engine, _, _ := newTestEngine(t, cfg, up)
	ctx := context.Background()

	res, err := engine.CreateAccount(ctx, CreateAccountRequest{
		Identifier: "alice",
		Password:   "correct-password-123",
	})
	if err != nil {
		t.Fatalf("create account: %v", err)
	}

	user, err := up.GetUserByID(ctx, res.UserID)
	if err != nil {
		t.Fatalf("fetch created user: %v", err)
	}
	if len(user.Scope) != 2 || user.Scope[0] != "user" || user.Scope[1] != "billing:read" {
		t.Fatalf("scope = %v, want default scope", user.Scope)
	}
}

func TestCreateAccountEmptyPassword(t *testing.T) {
	up := &mockUserProvider{}
	engine, _, _ := newTestEngine(t, testEngineConfig(), up)

	_, err := engine.CreateAccount(context.Background(), CreateAccountRequest{
		Identifier: "alice",
	})
	if !errors.Is(err, ErrWeakSecret) {
		t.Fatalf("expected ErrWeakSecret, got %v", err)
	}
}
