package authcore

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	internalaudit "github.com/velosta/authcore/internal/audit"

	"github.com/velosta/authcore/internal"
	"github.com/velosta/authcore/internal/rate"
	"github.com/velosta/authcore/jwt"
	"github.com/velosta/authcore/password"
	"github.com/velosta/authcore/session"
)

// Engine is the authentication core. Build one with [New]; all methods
// are safe for concurrent use.
type Engine struct {
	config       Config
	sessionStore *session.Store
	rateLimiter  *rate.Limiter
	audit        *internalaudit.Dispatcher
	metrics      *Metrics
	passwordHash *password.Hasher
	jwtManager   *jwt.Manager
	userProvider UserProvider
	clock        func() time.Time
	closed       atomic.Bool
}

func (e *Engine) now() time.Time {
	return e.clock()
}

// Close flushes the audit dispatcher. Operations invoked after Close
// return ErrEngineClosed.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	e.closed.Store(true)
	if e.audit != nil {
		e.audit.Close()
	}
}

func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

// storeUnavailable translates Redis transport failures from the
// session store and rate limiter into ErrStoreUnavailable so callers
// can tell infrastructure faults from auth decisions.
func storeUnavailable(err error) error {
	if errors.Is(err, session.ErrUnavailable) || errors.Is(err, rate.ErrRedisUnavailable) {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return err
}

// Ping reports session store availability and round-trip latency.
func (e *Engine) Ping(ctx context.Context) (time.Duration, error) {
	if e.closed.Load() {
		return 0, ErrEngineClosed
	}
	latency, err := e.sessionStore.Ping(ctx)
	if err != nil {
		return latency, storeUnavailable(err)
	}
	return latency, nil
}

func accountStatusToError(status AccountStatus) error {
	switch status {
	case AccountStatusDisabled:
		return ErrAccountDisabled
	case AccountStatusLocked:
		return ErrAccountLocked
	default:
		return nil
	}
}

// Login verifies the identifier+password pair and, on success, creates
// a session and returns an access and refresh token. Unknown
// identifiers and wrong passwords are indistinguishable to the caller.
func (e *Engine) Login(ctx context.Context, identifier, secret string) (*LoginResult, error) {
	if e.closed.Load() {
		return nil, ErrEngineClosed
	}
	ip := clientIPFromContext(ctx)

	if err := e.rateLimiter.CheckLogin(ctx, identifier, ip); err != nil {
		if errors.Is(err, rate.ErrRateLimited) {
			return nil, e.loginRateLimited(ctx, identifier, "")
		}
		return nil, storeUnavailable(err)
	}

	if identifier == "" || secret == "" {
		return nil, e.loginFailure(ctx, identifier, "", "empty_input")
	}

	user, err := e.userProvider.GetUserByIdentifier(ctx, identifier)
	if err != nil {
		if failErr := e.recordLoginFailure(ctx, identifier, ip); failErr != nil {
			return nil, failErr
		}
		return nil, e.loginFailure(ctx, identifier, "", "user_not_found")
	}

	ok, err := e.passwordHash.Verify(secret, user.PasswordHash)
	if err != nil || !ok {
		if failErr := e.recordLoginFailure(ctx, identifier, ip); failErr != nil {
			return nil, failErr
		}
		return nil, e.loginFailure(ctx, identifier, user.UserID, "password_mismatch")
	}

	if statusErr := accountStatusToError(user.Status); statusErr != nil {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, user.UserID, identifier, "", statusErr, func() map[string]string {
			return map[string]string{
				"reason": "account_status",
			}
		})
		return nil, statusErr
	}

	if e.config.Password.UpgradeOnLogin {
		if needsRehash, err := e.passwordHash.NeedsRehash(user.PasswordHash); err == nil && needsRehash {
			if upgraded, err := e.passwordHash.Hash(secret); err == nil {
				// Rehash update is best-effort and must not block successful login.
				if err := e.userProvider.UpdatePasswordHash(ctx, user.UserID, upgraded); err != nil {
					log.Print("authcore: password hash upgrade update failed")
				}
			} else {
				log.Print("authcore: password hash upgrade generation failed")
			}
		}
	}
	secret = ""

	result, err := e.createSession(ctx, user)
	if err != nil {
		err = storeUnavailable(err)
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, user.UserID, identifier, "", err, func() map[string]string {
			return map[string]string{
				"reason": "session_creation",
			}
		})
		return nil, err
	}

	// Limiter reset is best-effort; a stale counter only shortens the
	// window for subsequent failures.
	if err := e.rateLimiter.ResetLogin(ctx, identifier, ip); err != nil {
		log.Print("authcore: login limiter reset failed")
	}

	e.metricInc(MetricLoginSuccess)
	e.emitAudit(ctx, auditEventLoginSuccess, true, user.UserID, identifier, result.SessionID, nil, nil)

	return result, nil
}

func (e *Engine) loginRateLimited(ctx context.Context, identifier, userID string) error {
	e.metricInc(MetricLoginRateLimited)
	attempts, err := e.rateLimiter.LoginAttempts(ctx, identifier)
	if err != nil {
		log.Print("authcore: login attempt count read failed")
	}
	e.emitAudit(ctx, auditEventLoginRateLimited, false, userID, identifier, "", ErrLoginRateLimited, func() map[string]string {
		return map[string]string{
			"attempts": strconv.Itoa(attempts),
		}
	})
	return ErrLoginRateLimited
}

func (e *Engine) loginFailure(ctx context.Context, identifier, userID, reason string) error {
	e.metricInc(MetricLoginFailure)
	e.emitAudit(ctx, auditEventLoginFailure, false, userID, identifier, "", ErrInvalidCredentials, func() map[string]string {
		return map[string]string{
			"reason": reason,
		}
	})
	return ErrInvalidCredentials
}

func (e *Engine) recordLoginFailure(ctx context.Context, identifier, ip string) error {
	err := e.rateLimiter.RecordLoginFailure(ctx, identifier, ip)
	if errors.Is(err, rate.ErrRateLimited) {
		return e.loginRateLimited(ctx, identifier, "")
	}
	if err != nil {
		log.Print("authcore: login failure counter update failed")
	}
	return nil
}

// createSession mints a session, stores it, and issues the token pair.
func (e *Engine) createSession(ctx context.Context, user UserRecord) (*LoginResult, error) {
	sid, err := internal.NewSessionID()
	if err != nil {
		return nil, err
	}
	sessionID := sid.String()

	refreshSecret, err := internal.NewRefreshSecret()
	if err != nil {
		return nil, err
	}

	now := e.now()
	lifetime := e.sessionLifetime()

	sess := &session.Session{
		SessionID:   sessionID,
		UserID:      user.UserID,
		Scope:       cloneStrings(user.Scope),
		RefreshHash: internal.HashRefreshSecret(refreshSecret),
		CreatedAt:   now.Unix(),
		RotatedAt:   now.Unix(),
		ExpiresAt:   now.Add(lifetime).Unix(),
	}
	if fp := fingerprintFromContext(ctx); fp != "" {
		sess.FingerprintHash = internal.HashFingerprint(fp)
	}

	if err := e.sessionStore.Create(ctx, sess, lifetime); err != nil {
		return nil, storeUnavailable(err)
	}

	access, err := e.jwtManager.IssueAccess(user.UserID, sessionID, sess.Scope)
	if err != nil {
		return nil, err
	}

	refresh, err := internal.EncodeRefreshToken(sessionID, refreshSecret)
	if err != nil {
		return nil, err
	}

	e.metricInc(MetricSessionCreated)

	return &LoginResult{
		UserID:       user.UserID,
		SessionID:    sessionID,
		Scope:        cloneStrings(sess.Scope),
		AccessToken:  access,
		RefreshToken: refresh,
	}, nil
}

// Refresh rotates the presented refresh token and returns a fresh
// token pair. The presented token is invalid afterwards. Presenting an
// already-rotated token revokes every session of the owning user and
// returns ErrReuseDetected.
func (e *Engine) Refresh(ctx context.Context, refreshToken string) (*LoginResult, error) {
	if e.closed.Load() {
		return nil, ErrEngineClosed
	}

	sessionID, providedSecret, err := internal.DecodeRefreshToken(refreshToken)
	if err != nil {
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventRefreshInvalid, false, "", "", "", ErrSessionInvalid, func() map[string]string {
			return map[string]string{
				"reason": "decode_failed",
			}
		})
		return nil, ErrSessionInvalid
	}

	if err := e.rateLimiter.CheckRefresh(ctx, sessionID); err != nil {
		if errors.Is(err, rate.ErrRateLimited) {
			e.metricInc(MetricRefreshRateLimited)
			e.emitAudit(ctx, auditEventRefreshRateLimited, false, "", "", sessionID, ErrRefreshRateLimited, nil)
			return nil, ErrRefreshRateLimited
		}
		return nil, storeUnavailable(err)
	}

	nextSecret, err := internal.NewRefreshSecret()
	if err != nil {
		return nil, err
	}

	sess, err := e.sessionStore.Rotate(
		ctx,
		sessionID,
		internal.HashRefreshSecret(providedSecret),
		internal.HashRefreshSecret(nextSecret),
	)
	if err != nil {
		var reuse *session.ReuseError
		switch {
		case errors.As(err, &reuse):
			return nil, e.handleRefreshReuse(ctx, reuse.UserID, sessionID)
		case errors.Is(err, redis.Nil):
			e.metricInc(MetricRefreshFailure)
			e.emitAudit(ctx, auditEventRefreshInvalid, false, "", "", sessionID, ErrSessionInvalid, func() map[string]string {
				return map[string]string{
					"reason": "session_not_found",
				}
			})
			return nil, ErrSessionInvalid
		default:
			err = storeUnavailable(err)
			e.metricInc(MetricRefreshFailure)
			e.emitAudit(ctx, auditEventRefreshInvalid, false, "", "", sessionID, err, func() map[string]string {
				return map[string]string{
					"reason": "rotate_failed",
				}
			})
			return nil, err
		}
	}

	access, err := e.jwtManager.IssueAccess(sess.UserID, sess.SessionID, sess.Scope)
	if err != nil {
		e.metricInc(MetricRefreshFailure)
		return nil, err
	}

	refresh, err := internal.EncodeRefreshToken(sess.SessionID, nextSecret)
	if err != nil {
		e.metricInc(MetricRefreshFailure)
		return nil, err
	}

	e.metricInc(MetricRefreshSuccess)
	e.emitAudit(ctx, auditEventRefreshSuccess, true, sess.UserID, "", sess.SessionID, nil, nil)

	return &LoginResult{
		UserID:       sess.UserID,
		SessionID:    sess.SessionID,
		Scope:        cloneStrings(sess.Scope),
		AccessToken:  access,
		RefreshToken: refresh,
	}, nil
}

// handleRefreshReuse treats a replayed refresh token as evidence of
// token theft: every session of the user is revoked, not just the
// replayed one.
func (e *Engine) handleRefreshReuse(ctx context.Context, userID, sessionID string) error {
	if err := e.sessionStore.RevokeAll(ctx, userID, e.sessionLifetime()); err != nil {
		log.Print("authcore: session revocation failed after refresh reuse")
	}
	e.metricInc(MetricRefreshReuseDetected)
	e.metricInc(MetricSessionRevoked)
	e.emitAudit(ctx, auditEventRefreshReuseDetected, false, userID, "", sessionID, ErrReuseDetected, nil)
	return ErrReuseDetected
}

// ValidateAccess verifies an access token's signature and expiry and
// returns the authenticated subject. It never touches Redis.
func (e *Engine) ValidateAccess(ctx context.Context, tokenStr string) (*AuthResult, error) {
	if e.closed.Load() {
		return nil, ErrEngineClosed
	}

	start := time.Now()
	claims, err := e.jwtManager.ParseAccess(tokenStr)
	if e.metrics.LatencyEnabled() {
		e.metrics.Observe(MetricValidateLatency, time.Since(start))
	}
	if err != nil {
		return nil, err
	}

	return &AuthResult{
		UserID:    claims.Subject,
		SessionID: claims.SID,
		Scope:     cloneStrings(claims.Scope),
	}, nil
}

// Logout deletes the session named by the refresh token. Logging out
// an already-dead session succeeds; malformed tokens are rejected.
func (e *Engine) Logout(ctx context.Context, refreshToken string) error {
	if e.closed.Load() {
		return ErrEngineClosed
	}

	sessionID, _, err := internal.DecodeRefreshToken(refreshToken)
	if err != nil {
		e.emitAudit(ctx, auditEventLogoutSession, false, "", "", "", ErrSessionInvalid, func() map[string]string {
			return map[string]string{
				"reason": "decode_failed",
			}
		})
		return ErrSessionInvalid
	}

	err = storeUnavailable(e.sessionStore.Delete(ctx, sessionID))
	if err == nil {
		e.metricInc(MetricLogout)
	}
	e.emitAudit(ctx, auditEventLogoutSession, err == nil, "", "", sessionID, err, nil)
	return err
}

// LogoutAll revokes every session of userID.
func (e *Engine) LogoutAll(ctx context.Context, userID string) error {
	if e.closed.Load() {
		return ErrEngineClosed
	}

	err := storeUnavailable(e.sessionStore.RevokeAll(ctx, userID, e.sessionLifetime()))
	if err == nil {
		e.metricInc(MetricLogoutAll)
		e.metricInc(MetricSessionRevoked)
	}
	e.emitAudit(ctx, auditEventLogoutAll, err == nil, userID, "", "", err, nil)
	return err
}

// ChangePassword verifies the old password, installs the new hash, and
// revokes all of the user's sessions.
func (e *Engine) ChangePassword(ctx context.Context, identifier, oldSecret, newSecret string) error {
	if e.closed.Load() {
		return ErrEngineClosed
	}
	if identifier == "" || oldSecret == "" || newSecret == "" {
		e.metricInc(MetricPasswordChangeFailure)
		e.emitAudit(ctx, auditEventPasswordChangeFailure, false, "", identifier, "", ErrInvalidCredentials, func() map[string]string {
			return map[string]string{
				"reason": "empty_input",
			}
		})
		return ErrInvalidCredentials
	}

	user, err := e.userProvider.GetUserByIdentifier(ctx, identifier)
	if err != nil {
		e.metricInc(MetricPasswordChangeFailure)
		e.emitAudit(ctx, auditEventPasswordChangeFailure, false, "", identifier, "", ErrInvalidCredentials, func() map[string]string {
			return map[string]string{
				"reason": "user_not_found",
			}
		})
		return ErrInvalidCredentials
	}
	if statusErr := accountStatusToError(user.Status); statusErr != nil {
		e.metricInc(MetricPasswordChangeFailure)
		e.emitAudit(ctx, auditEventPasswordChangeFailure, false, user.UserID, identifier, "", statusErr, nil)
		return statusErr
	}

	oldOK, err := e.passwordHash.Verify(oldSecret, user.PasswordHash)
	if err != nil || !oldOK {
		e.metricInc(MetricPasswordChangeFailure)
		e.emitAudit(ctx, auditEventPasswordChangeFailure, false, user.UserID, identifier, "", ErrInvalidCredentials, func() map[string]string {
			return map[string]string{
				"reason": "old_password_mismatch",
			}
		})
		return ErrInvalidCredentials
	}

	if same, err := e.passwordHash.Verify(newSecret, user.PasswordHash); err == nil && same {
		e.metricInc(MetricPasswordChangeFailure)
		e.emitAudit(ctx, auditEventPasswordChangeFailure, false, user.UserID, identifier, "", ErrPasswordReuse, nil)
		return ErrPasswordReuse
	}

	newHash, err := e.passwordHash.Hash(newSecret)
	if err != nil {
		e.metricInc(MetricPasswordChangeFailure)
		e.emitAudit(ctx, auditEventPasswordChangeFailure, false, user.UserID, identifier, "", err, func() map[string]string {
			return map[string]string{
				"reason": "hash_policy",
			}
		})
		return err
	}

	if err := e.userProvider.UpdatePasswordHash(ctx, user.UserID, newHash); err != nil {
		e.metricInc(MetricPasswordChangeFailure)
		e.emitAudit(ctx, auditEventPasswordChangeFailure, false, user.UserID, identifier, "", err, func() map[string]string {
			return map[string]string{
				"reason": "update_hash_failed",
			}
		})
		return err
	}

	if err := e.LogoutAll(ctx, user.UserID); err != nil {
		log.Print("authcore: session revocation failed after password change")
		return err
	}

	// Limiter reset is best-effort and must not block the change.
	if err := e.rateLimiter.ResetLogin(ctx, identifier, clientIPFromContext(ctx)); err != nil {
		log.Print("authcore: login limiter reset failed after password change")
	}

	oldSecret = ""
	newSecret = ""
	e.metricInc(MetricPasswordChangeSuccess)
	e.emitAudit(ctx, auditEventPasswordChangeSuccess, true, user.UserID, identifier, "", nil, nil)

	return nil
}

// sessionLifetime caps sessions at the shorter of the configured
// lifetime and the refresh TTL.
func (e *Engine) sessionLifetime() time.Duration {
	lifetime := e.config.Session.Lifetime
	if e.config.JWT.RefreshTTL < lifetime {
		lifetime = e.config.JWT.RefreshTTL
	}
	return lifetime
}
