package rate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newLimiterTest(t *testing.T, cfg Config) (*Limiter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return New(rdb, cfg), mr
}

func TestLoginBudgetExhaustion(t *testing.T) {
	lim, _ := newLimiterTest(t, Config{
		MaxLoginAttempts: 3,
		LoginWindow:      15 * time.Minute,
	})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := lim.RecordLoginFailure(ctx, "alice", ""); err != nil {
			t.Fatalf("failure %d should be within budget: %v", i+1, err)
		}
	}
	if err := lim.RecordLoginFailure(ctx, "alice", ""); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited after budget, got %v", err)
	}
	if err := lim.CheckLogin(ctx, "alice", ""); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("check should report rate limited, got %v", err)
	}
	if err := lim.CheckLogin(ctx, "bob", ""); err != nil {
		t.Fatalf("other identifiers must be unaffected: %v", err)
	}
}

func TestResetLoginClearsBudget(t *testing.T) {
	lim, _ := newLimiterTest(t, Config{
		ThrottleByIP:     true,
		MaxLoginAttempts: 1,
		LoginWindow:      15 * time.Minute,
	})
	ctx := context.Background()

	if err := lim.RecordLoginFailure(ctx, "alice", "10.0.0.1"); err != nil {
		t.Fatalf("record failure: %v", err)
	}
	if err := lim.ResetLogin(ctx, "alice", "10.0.0.1"); err != nil {
		t.Fatalf("reset: %v", err)
	}

	attempts, err := lim.LoginAttempts(ctx, "alice")
	if err != nil {
		t.Fatalf("login attempts: %v", err)
	}
	if attempts != 0 {
		t.Fatalf("attempts after reset = %d, want 0", attempts)
	}
}

func TestLoginWindowExpires(t *testing.T) {
	lim, mr := newLimiterTest(t, Config{
		MaxLoginAttempts: 1,
		LoginWindow:      time.Minute,
	})
	ctx := context.Background()

	if err := lim.RecordLoginFailure(ctx, "alice", ""); err != nil {
		t.Fatalf("record failure: %v", err)
	}
	if err := lim.RecordLoginFailure(ctx, "alice", ""); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}

	mr.FastForward(2 * time.Minute)

	if err := lim.RecordLoginFailure(ctx, "alice", ""); err != nil {
		t.Fatalf("new window should reset the budget: %v", err)
	}
}

func TestRefreshThrottlePerSession(t *testing.T) {
	lim, _ := newLimiterTest(t, Config{
		ThrottleRefresh:    true,
		MaxRefreshAttempts: 2,
		RefreshWindow:      time.Minute,
	})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := lim.CheckRefresh(ctx, "sid-1"); err != nil {
			t.Fatalf("refresh %d should pass: %v", i+1, err)
		}
	}
	if err := lim.CheckRefresh(ctx, "sid-1"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
	if err := lim.CheckRefresh(ctx, "sid-2"); err != nil {
		t.Fatalf("other sessions must be unaffected: %v", err)
	}
}

func TestRefreshThrottleDisabled(t *testing.T) {
	lim, _ := newLimiterTest(t, Config{MaxRefreshAttempts: 1})
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		if err := lim.CheckRefresh(ctx, "sid-1"); err != nil {
			t.Fatalf("disabled throttle must never limit: %v", err)
		}
	}
}
