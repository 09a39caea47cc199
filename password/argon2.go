package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"
)

const (
	minMemoryKB    uint32 = 8 * 1024
	minTimeCost    uint32 = 1
	minParallelism uint8  = 1
	minSaltLength  uint32 = 16
	minKeyLength   uint32 = 16
	algorithmID           = "argon2id"
)

// ErrWeakSecret is returned when a secret fails the minimum-length
// policy before any hashing takes place.
var ErrWeakSecret = errors.New("secret rejected by password policy")

// Config tunes the argon2id cost parameters and the acceptance policy.
// MinLength is measured in bytes of the raw secret.
type Config struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
	MinLength   int
}

// Hasher performs one-way hashing and verification of raw secrets.
// Output is a self-describing PHC string; the embedded salt and cost
// parameters make records verifiable after configuration changes.
type Hasher struct {
	config Config
}

type phcRecord struct {
	memory      uint32
	time        uint32
	parallelism uint8
	salt        []byte
	hash        []byte
}

func NewHasher(cfg Config) (*Hasher, error) {
	if cfg.Memory < minMemoryKB {
		return nil, errors.New("password memory must be >= 8192 KB")
	}
	if cfg.Time < minTimeCost {
		return nil, errors.New("password time must be >= 1")
	}
	if cfg.Parallelism < minParallelism {
		return nil, errors.New("password parallelism must be >= 1")
	}
	if cfg.SaltLength < minSaltLength {
		return nil, errors.New("password salt length must be >= 16")
	}
	if cfg.KeyLength < minKeyLength {
		return nil, errors.New("password key length must be >= 16")
	}
	if cfg.MinLength <= 0 {
		return nil, errors.New("password minimum length must be > 0")
	}

	return &Hasher{config: cfg}, nil
}

// Hash derives an argon2id digest of secret under a fresh random salt.
// Secrets below the configured minimum length fail with [ErrWeakSecret].
// The raw secret is used exactly as provided (no Unicode normalization)
// and is never retained.
func (h *Hasher) Hash(secret string) (string, error) {
	if len(secret) < h.config.MinLength {
		return "", ErrWeakSecret
	}

	salt := make([]byte, h.config.SaltLength)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", err
	}

	key := argon2.IDKey(
		[]byte(secret),
		salt,
		h.config.Time,
		h.config.Memory,
		h.config.Parallelism,
		h.config.KeyLength,
	)

	return fmt.Sprintf(
		"$%s$v=%d$m=%d,t=%d,p=%d$%s$%s",
		algorithmID,
		argon2.Version,
		h.config.Memory,
		h.config.Time,
		h.config.Parallelism,
		base64.StdEncoding.EncodeToString(salt),
		base64.StdEncoding.EncodeToString(key),
	), nil
}

// Verify recomputes the digest using the parameters embedded in encoded
// and compares in constant time. A mismatch returns (false, nil); only
// an unparseable record yields an error.
func (h *Hasher) Verify(secret, encoded string) (bool, error) {
	rec, err := parsePHC(encoded)
	if err != nil {
		return false, err
	}

	computed := argon2.IDKey(
		[]byte(secret),
		rec.salt,
		rec.time,
		rec.memory,
		rec.parallelism,
		uint32(len(rec.hash)),
	)

	return subtle.ConstantTimeCompare(computed, rec.hash) == 1, nil
}

// NeedsRehash reports whether a stored record was produced under
// weaker parameters than currently configured.
func (h *Hasher) NeedsRehash(encoded string) (bool, error) {
	rec, err := parsePHC(encoded)
	if err != nil {
		return false, err
	}

	switch {
	case h.config.Memory > rec.memory:
		return true, nil
	case h.config.Time > rec.time:
		return true, nil
	case h.config.Parallelism > rec.parallelism:
		return true, nil
	case h.config.KeyLength != uint32(len(rec.hash)):
		return true, nil
	}

	return false, nil
}

func parsePHC(encoded string) (*phcRecord, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" {
		return nil, errors.New("invalid PHC format")
	}
	if parts[1] != algorithmID {
		return nil, errors.New("unsupported algorithm")
	}

	version, ok := strings.CutPrefix(parts[2], "v=")
	if !ok {
		return nil, errors.New("missing argon2 version")
	}
	v, err := strconv.Atoi(version)
	if err != nil || v != argon2.Version {
		return nil, errors.New("unsupported argon2 version")
	}

	rec := &phcRecord{}
	if err := parseCostParams(parts[3], rec); err != nil {
		return nil, err
	}

	rec.salt, err = base64.StdEncoding.DecodeString(parts[4])
	if err != nil || len(rec.salt) < int(minSaltLength) {
		return nil, errors.New("invalid salt")
	}

	rec.hash, err = base64.StdEncoding.DecodeString(parts[5])
	if err != nil || len(rec.hash) == 0 {
		return nil, errors.New("invalid hash")
	}

	return rec, nil
}

func parseCostParams(part string, rec *phcRecord) error {
	pairs := strings.Split(part, ",")
	if len(pairs) != 3 {
		return errors.New("invalid parameter format")
	}

	var haveM, haveT, haveP bool
	for _, pair := range pairs {
		k, val, ok := strings.Cut(pair, "=")
		if !ok {
			return errors.New("invalid parameter entry")
		}

		switch k {
		case "m":
			v, err := strconv.ParseUint(val, 10, 32)
			if err != nil || v < uint64(minMemoryKB) {
				return errors.New("invalid memory parameter")
			}
			rec.memory = uint32(v)
			haveM = true
		case "t":
			v, err := strconv.ParseUint(val, 10, 32)
			if err != nil || v < uint64(minTimeCost) {
				return errors.New("invalid time parameter")
			}
			rec.time = uint32(v)
			haveT = true
		case "p":
			v, err := strconv.ParseUint(val, 10, 8)
			if err != nil || v < uint64(minParallelism) {
				return errors.New("invalid parallelism parameter")
			}
			rec.parallelism = uint8(v)
			haveP = true
		default:
			return errors.New("unsupported parameter")
		}
	}

	if !haveM || !haveT || !haveP {
		return errors.New("missing parameters")
	}

	return nil
}
