package jwt

import (
	"errors"
	"sync/atomic"
)

// ErrKeyUnavailable is returned when the key source cannot supply a
// current signing key. This is a configuration fault, not a transient
// condition, and is never retried by the engine.
var ErrKeyUnavailable = errors.New("signing key unavailable")

// Key is one versioned piece of signing material. For hs256 the shared
// secret lives in Private; for ed25519 Private holds the private key
// (raw or PEM) and Public the matching public key.
type Key struct {
	ID      string
	Private []byte
	Public  []byte
}

// KeySource supplies the current signing key and, during a rotation
// grace window, the immediately previous key. Tokens are always signed
// with the current key; verification accepts either.
type KeySource interface {
	Current() (*Key, error)
	Previous() *Key
}

// StaticKeySource is an in-process KeySource with atomic rotation.
// Rotate installs a new current key and demotes the old one to
// previous, so in-flight tokens keep verifying while new ones are
// signed under the new key.
type StaticKeySource struct {
	current  atomic.Pointer[Key]
	previous atomic.Pointer[Key]
}

func NewStaticKeySource(current *Key) *StaticKeySource {
	s := &StaticKeySource{}
	if current != nil {
		s.current.Store(current)
	}
	return s
}

func (s *StaticKeySource) Current() (*Key, error) {
	k := s.current.Load()
	if k == nil || k.ID == "" {
		return nil, ErrKeyUnavailable
	}
	return k, nil
}

func (s *StaticKeySource) Previous() *Key {
	return s.previous.Load()
}

// Rotate makes next the signing key. The displaced key remains
// accepted for verification until the following rotation.
func (s *StaticKeySource) Rotate(next *Key) {
	if next == nil || next.ID == "" {
		return
	}
	old := s.current.Swap(next)
	s.previous.Store(old)
}
