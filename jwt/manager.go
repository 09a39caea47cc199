package jwt

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SigningMethod selects the token signature algorithm.
type SigningMethod string

const (
	MethodEd25519 SigningMethod = "ed25519"
	MethodHS256   SigningMethod = "hs256"
)

var (
	// ErrTokenExpired is returned for a well-formed, correctly signed
	// token whose expiry has passed.
	ErrTokenExpired = errors.New("access token expired")
	// ErrTokenInvalid is returned for any other verification failure:
	// bad signature, unknown key, malformed or tampered claims.
	ErrTokenInvalid = errors.New("access token invalid")
)

// Config for the token manager. Keys must be non-nil; Now defaults to
// time.Now and exists so expiry behavior is deterministic under test.
type Config struct {
	AccessTTL     time.Duration
	SigningMethod SigningMethod
	Keys          KeySource
	Issuer        string
	Audience      string
	Leeway        time.Duration
	Now           func() time.Time
}

// Manager issues and verifies access tokens. Verification is pure
// computation: signature first, then time claims, no I/O.
type Manager struct {
	config Config
	now    func() time.Time
}

// AccessClaims is the signed claim set of an access token. Subject
// carries the user identifier via RegisteredClaims.
type AccessClaims struct {
	SID   string   `json:"sid"`
	Scope []string `json:"scope,omitempty"`
	jwt.RegisteredClaims
}

func NewManager(cfg Config) (*Manager, error) {
	if cfg.AccessTTL <= 0 {
		return nil, errors.New("invalid TTL configuration")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}
	if cfg.Keys == nil {
		return nil, ErrKeyUnavailable
	}
	switch cfg.SigningMethod {
	case MethodHS256, MethodEd25519:
	default:
		return nil, errors.New("unsupported signing method")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Manager{config: cfg, now: cfg.Now}, nil
}

// IssueAccess signs a token for subject bound to sessionID with the
// given scope, expiring AccessTTL from the injected clock. The kid
// header names the signing key so verifiers can route across a
// rotation.
func (m *Manager) IssueAccess(subject, sessionID string, scope []string) (string, error) {
	key, err := m.config.Keys.Current()
	if err != nil {
		return "", ErrKeyUnavailable
	}

	now := m.now()
	claims := AccessClaims{
		SID:   sessionID,
		Scope: scope,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.config.AccessTTL)),
			Issuer:    m.config.Issuer,
		},
	}
	if m.config.Audience != "" {
		claims.Audience = jwt.ClaimStrings{m.config.Audience}
	}

	token := jwt.NewWithClaims(m.method(), claims)
	token.Header["kid"] = key.ID

	signKey, err := m.signKey(key)
	if err != nil {
		return "", err
	}

	return token.SignedString(signKey)
}

// ParseAccess verifies signature, issuer/audience, and expiry, and
// returns the claim set. Expiry is reported as [ErrTokenExpired]; every
// other failure collapses to [ErrTokenInvalid] so callers leak nothing
// about token structure.
func (m *Manager) ParseAccess(tokenStr string) (*AccessClaims, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{m.method().Alg()}),
		jwt.WithTimeFunc(m.now),
		jwt.WithIssuedAt(),
	}
	if m.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(m.config.Leeway))
	}
	if m.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(m.config.Issuer))
	}
	if m.config.Audience != "" {
		options = append(options, jwt.WithAudience(m.config.Audience))
	}

	parser := jwt.NewParser(options...)
	token, err := parser.ParseWithClaims(tokenStr, &AccessClaims{}, m.verifyKeyFor)
	if err != nil {
		switch {
		case errors.Is(err, ErrKeyUnavailable):
			return nil, ErrKeyUnavailable
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, ErrTokenExpired
		default:
			return nil, ErrTokenInvalid
		}
	}

	claims, ok := token.Claims.(*AccessClaims)
	if !ok || !token.Valid {
		return nil, ErrTokenInvalid
	}

	return claims, nil
}

// verifyKeyFor routes the kid header to the current or previous key.
// Accepting the previous key is what makes key rotation zero-downtime:
// tokens signed just before a rotation stay valid for their lifetime.
func (m *Manager) verifyKeyFor(t *jwt.Token) (interface{}, error) {
	kid, _ := t.Header["kid"].(string)
	if kid == "" {
		return nil, errors.New("missing kid")
	}

	current, err := m.config.Keys.Current()
	if err != nil {
		return nil, ErrKeyUnavailable
	}
	if kid == current.ID {
		return m.verifyKey(current)
	}
	if prev := m.config.Keys.Previous(); prev != nil && kid == prev.ID {
		return m.verifyKey(prev)
	}

	return nil, fmt.Errorf("unknown kid %q", kid)
}

func (m *Manager) method() jwt.SigningMethod {
	if m.config.SigningMethod == MethodHS256 {
		return jwt.SigningMethodHS256
	}
	return jwt.SigningMethodEdDSA
}

func (m *Manager) signKey(key *Key) (interface{}, error) {
	if len(key.Private) == 0 {
		return nil, ErrKeyUnavailable
	}
	if m.config.SigningMethod == MethodHS256 {
		return key.Private, nil
	}
	return parseEdPrivateKey(key.Private)
}

func (m *Manager) verifyKey(key *Key) (interface{}, error) {
	if m.config.SigningMethod == MethodHS256 {
		if len(key.Private) == 0 {
			return nil, ErrKeyUnavailable
		}
		return key.Private, nil
	}
	if len(key.Public) == 0 {
		return nil, ErrKeyUnavailable
	}
	return parseEdPublicKey(key.Public)
}

func parseEdPrivateKey(key []byte) (ed25519.PrivateKey, error) {
	if len(key) == ed25519.PrivateKeySize {
		return ed25519.PrivateKey(key), nil
	}
	parsed, err := jwt.ParseEdPrivateKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 private key")
	}
	edKey, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, errors.New("invalid ed25519 private key type")
	}
	return edKey, nil
}

func parseEdPublicKey(key []byte) (ed25519.PublicKey, error) {
	if len(key) == ed25519.PublicKeySize {
		return ed25519.PublicKey(key), nil
	}
	parsed, err := jwt.ParseEdPublicKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 public key")
	}
	edKey, ok := parsed.(ed25519.PublicKey)
	if !ok {
		return nil, errors.New("invalid ed25519 public key type")
	}
	return edKey, nil
}
