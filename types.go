package authcore

import (
	"context"
	"io"
	"time"

	internalaudit "github.com/velosta/authcore/internal/audit"
)

// AccountStatus represents the lifecycle state of a user account.
type AccountStatus uint8

const (
	// AccountStatusActive accounts can log in.
	AccountStatusActive AccountStatus = iota
	// AccountStatusDisabled accounts are administratively switched off.
	AccountStatusDisabled
	// AccountStatusLocked accounts are temporarily blocked, typically
	// after a security incident.
	AccountStatusLocked
)

// UserProvider is the interface callers implement to integrate their
// user database. Lookups by identifier and ID must behave identically
// for missing users so the engine can keep its error surface uniform.
type UserProvider interface {
	GetUserByIdentifier(ctx context.Context, identifier string) (UserRecord, error)
	GetUserByID(ctx context.Context, userID string) (UserRecord, error)
	UpdatePasswordHash(ctx context.Context, userID string, newHash string) error
	CreateUser(ctx context.Context, input CreateUserInput) (UserRecord, error)
}

// UserRecord is the account record returned by [UserProvider].
type UserRecord struct {
	UserID       string
	Identifier   string
	PasswordHash string
	Scope        []string
	Status       AccountStatus
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// CreateUserInput is the input for [UserProvider.CreateUser]. The
// password arrives pre-hashed; providers never see plaintext.
type CreateUserInput struct {
	Identifier   string
	PasswordHash string
	Scope        []string
	Status       AccountStatus
}

// LoginResult is returned by [Engine.Login] and [Engine.Refresh].
// RefreshToken is single-use: each refresh invalidates the presented
// token and returns a new one.
type LoginResult struct {
	UserID       string
	SessionID    string
	Scope        []string
	AccessToken  string
	RefreshToken string
}

// AuthResult is returned by [Engine.ValidateAccess].
type AuthResult struct {
	UserID    string
	SessionID string
	Scope     []string
}

// CreateAccountRequest is the input for [Engine.CreateAccount].
type CreateAccountRequest struct {
	Identifier string
	Password   string
	Scope      []string
}

// CreateAccountResult is returned by [Engine.CreateAccount]. Tokens are
// set only when AutoLogin is enabled.
type CreateAccountResult struct {
	UserID       string
	AccessToken  string
	RefreshToken string
}

// AuditEvent is a structured audit record emitted by the engine.
type AuditEvent = internalaudit.Event

// AuditSink receives [AuditEvent] values from the engine's audit dispatcher.
type AuditSink = internalaudit.Sink

// NoOpSink is an [AuditSink] that silently discards all events.
type NoOpSink = internalaudit.NoOpSink

// ChannelSink is a buffered channel-based [AuditSink].
type ChannelSink = internalaudit.ChannelSink

// JSONWriterSink is an [AuditSink] that writes JSON-encoded events to
// an [io.Writer].
type JSONWriterSink = internalaudit.JSONWriterSink

// NewChannelSink creates a [ChannelSink] with the given buffer capacity.
func NewChannelSink(buffer int) *ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

// NewJSONWriterSink creates a [JSONWriterSink] writing to w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return internalaudit.NewJSONWriterSink(w)
}
