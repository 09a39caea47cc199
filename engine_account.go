package authcore

import (
	"context"
	"errors"
)

// CreateAccount registers a new user. The password is hashed before it
// reaches the provider. With AutoLogin enabled, the result carries a
// token pair for a freshly created session.
func (e *Engine) CreateAccount(ctx context.Context, req CreateAccountRequest) (*CreateAccountResult, error) {
	if e.closed.Load() {
		return nil, ErrEngineClosed
	}
	if !e.config.Account.Enabled {
		e.emitAudit(ctx, auditEventAccountCreationFailure, false, "", req.Identifier, "", ErrAccountCreationDisabled, func() map[string]string {
			return map[string]string{
				"reason": "feature_disabled",
			}
		})
		return nil, ErrAccountCreationDisabled
	}

	if req.Identifier == "" {
		e.emitAudit(ctx, auditEventAccountCreationFailure, false, "", "", "", ErrInvalidCredentials, func() map[string]string {
			return map[string]string{
				"reason": "empty_identifier",
			}
		})
		return nil, ErrInvalidCredentials
	}
	if req.Password == "" {
		e.emitAudit(ctx, auditEventAccountCreationFailure, false, "", req.Identifier, "", ErrWeakSecret, func() map[string]string {
			return map[string]string{
				"reason": "empty_password",
			}
		})
		return nil, ErrWeakSecret
	}

	scope := req.Scope
	if len(scope) == 0 {
		scope = cloneStrings(e.config.Account.DefaultScope)
	}

	passwordHash, err := e.passwordHash.Hash(req.Password)
	if err != nil {
		e.emitAudit(ctx, auditEventAccountCreationFailure, false, "", req.Identifier, "", err, func() map[string]string {
			return map[string]string{
				"reason": "hash_policy",
			}
		})
		return nil, err
	}

	created, err := e.userProvider.CreateUser(ctx, CreateUserInput{
		Identifier:   req.Identifier,
		PasswordHash: passwordHash,
		Scope:        scope,
		Status:       AccountStatusActive,
	})
	if err != nil {
		if errors.Is(err, ErrDuplicateIdentifier) {
			e.metricInc(MetricAccountDuplicate)
			e.emitAudit(ctx, auditEventAccountCreationFailure, false, "", req.Identifier, "", ErrDuplicateIdentifier, nil)
			return nil, ErrDuplicateIdentifier
		}
		e.emitAudit(ctx, auditEventAccountCreationFailure, false, "", req.Identifier, "", err, func() map[string]string {
			return map[string]string{
				"reason": "provider_failed",
			}
		})
		return nil, err
	}

	result := &CreateAccountResult{UserID: created.UserID}

	if e.config.Account.AutoLogin {
		login, err := e.createSession(ctx, created)
		if err != nil {
			// The account exists; surface the session failure without
			// rolling back the creation.
			e.emitAudit(ctx, auditEventAccountCreationFailure, false, created.UserID, req.Identifier, "", err, func() map[string]string {
				return map[string]string{
					"reason": "auto_login_failed",
				}
			})
			return nil, err
		}
		result.AccessToken = login.AccessToken
		result.RefreshToken = login.RefreshToken
	}

	e.metricInc(MetricAccountCreated)
	e.emitAudit(ctx, auditEventAccountCreationSuccess, true, created.UserID, req.Identifier, "", nil, nil)

	return result, nil
}
