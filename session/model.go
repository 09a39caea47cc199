package session

// Session relates a refresh-token hash to its owning user. It is
// created on login, mutated only by atomic rotation, and destroyed on
// logout, expiry, or reuse detection. Generation records the per-user
// revocation counter the session was born under; a bumped counter
// orphans every older session at once.
type Session struct {
	SessionID       string
	UserID          string
	Scope           []string
	RefreshHash     [32]byte
	FingerprintHash [32]byte
	Generation      int64

	CreatedAt int64
	RotatedAt int64
	ExpiresAt int64
}
