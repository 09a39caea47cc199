package authcore

import (
	"errors"

	"github.com/velosta/authcore/jwt"
	"github.com/velosta/authcore/password"
)

var (
	// ErrInvalidCredentials covers unknown identifiers and wrong
	// passwords alike; callers cannot distinguish the two.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAccountDisabled is returned when the account exists and the
	// password matched but the account is administratively disabled.
	ErrAccountDisabled = errors.New("account disabled")
	// ErrAccountLocked is returned when the account exists and the
	// password matched but the account is locked.
	ErrAccountLocked = errors.New("account locked")
	// ErrLoginRateLimited is returned when the identifier or IP has
	// exhausted its login attempt budget.
	ErrLoginRateLimited = errors.New("login rate limited")
	// ErrRefreshRateLimited is returned when a session exceeds its
	// refresh attempt budget.
	ErrRefreshRateLimited = errors.New("refresh rate limited")
	// ErrSessionInvalid is returned for refresh tokens whose session is
	// missing, expired, or revoked.
	ErrSessionInvalid = errors.New("session invalid")
	// ErrReuseDetected is returned when a previously rotated refresh
	// token is presented again. All of the user's sessions are revoked
	// before this error is returned.
	ErrReuseDetected = errors.New("refresh token reuse detected")
	// ErrDuplicateIdentifier is returned by CreateAccount when the
	// identifier is already taken.
	ErrDuplicateIdentifier = errors.New("identifier already registered")
	// ErrAccountCreationDisabled is returned by CreateAccount when
	// account creation is switched off in the config.
	ErrAccountCreationDisabled = errors.New("account creation disabled")
	// ErrPasswordReuse is returned by ChangePassword when the new
	// password matches the current one.
	ErrPasswordReuse = errors.New("new password must be different from current password")
	// ErrStoreUnavailable wraps infrastructure failures (Redis, user
	// provider) so callers can distinguish them from auth decisions.
	ErrStoreUnavailable = errors.New("backend unavailable")
	// ErrEngineClosed is returned by all operations after Close.
	ErrEngineClosed = errors.New("engine closed")
)

// Token and password errors surface under the same names callers see
// from the subpackages.
var (
	ErrTokenExpired   = jwt.ErrTokenExpired
	ErrTokenInvalid   = jwt.ErrTokenInvalid
	ErrKeyUnavailable = jwt.ErrKeyUnavailable
	ErrWeakSecret     = password.ErrWeakSecret
)
