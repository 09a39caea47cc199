package session

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrUnavailable wraps any Redis transport failure so callers can
// distinguish infrastructure faults from auth decisions.
var ErrUnavailable = errors.New("session store unavailable")

// ErrCorruptRecord is returned when a stored session is missing
// mandatory fields.
var ErrCorruptRecord = errors.New("session record corrupt")

// ReuseError reports a refresh-hash mismatch: the presented secret
// belongs to an already-rotated-away token. The replayed session is
// deleted inside the same atomic step; UserID identifies whose
// remaining sessions the caller should revoke.
type ReuseError struct {
	UserID string
}

func (e *ReuseError) Error() string {
	return "refresh token reuse detected"
}

const (
	rotateStatusNotFound int64 = 0
	rotateStatusExpired  int64 = 1
	rotateStatusMismatch int64 = 2
	rotateStatusRotated  int64 = 3
	rotateStatusCorrupt  int64 = 4
)

// rotateScript is the compare-and-swap at the heart of refresh
// rotation. One Lua invocation loads the session, rejects expired or
// generation-stale records, compares the presented refresh hash, and
// either installs the next hash or deletes the session. Concurrent
// rotations of the same session therefore have exactly one winner.
const rotateScript = `
local session_key = KEYS[1]
local provided = ARGV[1]
local next_hash = ARGV[2]
local now_unix = tonumber(ARGV[3])
local gen_prefix = ARGV[4]

if redis.call("EXISTS", session_key) == 0 then
  return {0}
end

local vals = redis.call("HMGET", session_key, "uid", "sc", "rh", "fp", "gen", "ca", "ea")
local uid = vals[1]
local rh = vals[3]
local gen = tonumber(vals[5])
local ca = tonumber(vals[6])
local ea = tonumber(vals[7])
if not uid or not rh or not gen or not ca or not ea then
  return {4}
end

if ea <= now_unix then
  redis.call("DEL", session_key)
  return {1}
end

local current_gen = tonumber(redis.call("GET", gen_prefix .. uid) or "0")
if gen < current_gen then
  redis.call("DEL", session_key)
  return {1}
end

if rh ~= provided then
  redis.call("DEL", session_key)
  return {2, uid}
end

redis.call("HSET", session_key, "rh", next_hash, "ra", now_unix)
return {3, uid, vals[2], vals[4], gen, ca, ea}
`

var rotateLua = redis.NewScript(rotateScript)

// stampScript reads the user's revocation generation and, when it is
// positive, extends the counter's TTL to at least the lifetime of the
// session being created. The counter must outlive every session
// stamped with a positive generation; if it expired first, the next
// revoke-all would restart it at one and a live generation-one session
// would sail past the staleness check.
const stampScript = `
local gen_key = KEYS[1]
local ttl_ms = tonumber(ARGV[1])

local gen = tonumber(redis.call("GET", gen_key) or "0")
if gen > 0 then
  local remaining = redis.call("PTTL", gen_key)
  if remaining >= 0 and remaining < ttl_ms then
    redis.call("PEXPIRE", gen_key, ttl_ms)
  end
end
return gen
`

var stampLua = redis.NewScript(stampScript)

// Store persists sessions as Redis hashes keyed by session ID, with a
// per-user generation counter for O(1) revoke-all.
type Store struct {
	redis  redis.UniversalClient
	prefix string
	now    func() time.Time
}

func NewStore(client redis.UniversalClient, prefix string, now func() time.Time) *Store {
	if now == nil {
		now = time.Now
	}
	return &Store{
		redis:  client,
		prefix: prefix,
		now:    now,
	}
}

func (s *Store) sessionKey(sessionID string) string {
	return s.prefix + ":s:" + sessionID
}

func (s *Store) genPrefix() string {
	return s.prefix + ":g:"
}

func (s *Store) genKey(userID string) string {
	return s.genPrefix() + userID
}

// Create persists sess with the given TTL, stamping it with the user's
// current revocation generation. A revoke-all racing this call can only
// invalidate the new session, never resurrect an old one.
func (s *Store) Create(ctx context.Context, sess *Session, ttl time.Duration) error {
	gen, err := s.stampGeneration(ctx, sess.UserID, ttl)
	if err != nil {
		return err
	}
	sess.Generation = gen

	key := s.sessionKey(sess.SessionID)
	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key,
			"uid", sess.UserID,
			"sc", strings.Join(sess.Scope, " "),
			"rh", string(sess.RefreshHash[:]),
			"fp", string(sess.FingerprintHash[:]),
			"gen", sess.Generation,
			"ca", sess.CreatedAt,
			"ra", sess.RotatedAt,
			"ea", sess.ExpiresAt,
		)
		pipe.PExpire(ctx, key, ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	return nil
}

// Get returns the session for sessionID, or redis.Nil when it does not
// exist, has expired, or predates the user's current generation. The
// two invalid cases are deleted on sight.
func (s *Store) Get(ctx context.Context, sessionID string) (*Session, error) {
	fields, err := s.redis.HGetAll(ctx, s.sessionKey(sessionID)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if len(fields) == 0 {
		return nil, redis.Nil
	}

	sess, err := sessionFromFields(sessionID, fields)
	if err != nil {
		return nil, err
	}

	if sess.ExpiresAt <= s.now().Unix() {
		if err := s.Delete(ctx, sessionID); err != nil {
			return nil, err
		}
		return nil, redis.Nil
	}

	gen, err := s.Generation(ctx, sess.UserID)
	if err != nil {
		return nil, err
	}
	if sess.Generation < gen {
		if err := s.Delete(ctx, sessionID); err != nil {
			return nil, err
		}
		return nil, redis.Nil
	}

	return sess, nil
}

// Rotate atomically replaces the refresh hash: it succeeds only when
// providedHash matches the stored one, and exactly one concurrent
// caller can win. A mismatch deletes the session and returns a
// [*ReuseError] carrying the owning user; missing, expired, or
// generation-stale sessions return redis.Nil.
func (s *Store) Rotate(ctx context.Context, sessionID string, providedHash, nextHash [32]byte) (*Session, error) {
	now := s.now().Unix()
	result, err := rotateLua.Run(
		ctx,
		s.redis,
		[]string{s.sessionKey(sessionID)},
		providedHash[:],
		nextHash[:],
		now,
		s.genPrefix(),
	).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	parts, ok := result.([]interface{})
	if !ok || len(parts) == 0 {
		return nil, fmt.Errorf("%w: invalid rotate script response", ErrUnavailable)
	}
	code, ok := parts[0].(int64)
	if !ok {
		return nil, fmt.Errorf("%w: invalid rotate script status", ErrUnavailable)
	}

	switch code {
	case rotateStatusNotFound, rotateStatusExpired:
		return nil, redis.Nil
	case rotateStatusMismatch:
		if len(parts) < 2 {
			return nil, fmt.Errorf("%w: missing reuse user id", ErrUnavailable)
		}
		return nil, &ReuseError{UserID: scriptString(parts[1])}
	case rotateStatusCorrupt:
		return nil, ErrCorruptRecord
	case rotateStatusRotated:
		if len(parts) < 7 {
			return nil, fmt.Errorf("%w: truncated rotate script response", ErrUnavailable)
		}
		sess := &Session{
			SessionID:   sessionID,
			UserID:      scriptString(parts[1]),
			Scope:       splitScope(scriptString(parts[2])),
			Generation:  scriptInt64(parts[4]),
			CreatedAt:   scriptInt64(parts[5]),
			RotatedAt:   now,
			ExpiresAt:   scriptInt64(parts[6]),
			RefreshHash: nextHash,
		}
		copy(sess.FingerprintHash[:], scriptString(parts[3]))
		return sess, nil
	default:
		return nil, fmt.Errorf("%w: unknown rotate script status %d", ErrUnavailable, code)
	}
}

// Delete removes a single session. Deleting a missing session is a
// no-op success, which is what makes logout idempotent.
func (s *Store) Delete(ctx context.Context, sessionID string) error {
	if err := s.redis.Del(ctx, s.sessionKey(sessionID)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// RevokeAll invalidates every session of userID in a single counter
// bump, without enumerating them. Orphaned session records are
// rejected by Get/Rotate and reaped by their own TTLs. The counter key
// lives at least as long as any session that could reference it.
func (s *Store) RevokeAll(ctx context.Context, userID string, sessionLifetime time.Duration) error {
	key := s.genKey(userID)
	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, key)
		pipe.PExpire(ctx, key, sessionLifetime)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// stampGeneration atomically reads the user's revocation counter and
// keeps it alive for at least ttl.
func (s *Store) stampGeneration(ctx context.Context, userID string, ttl time.Duration) (int64, error) {
	gen, err := stampLua.Run(
		ctx,
		s.redis,
		[]string{s.genKey(userID)},
		ttl.Milliseconds(),
	).Int64()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return gen, nil
}

// Generation returns the user's current revocation counter; users that
// have never been revoked are at generation zero.
func (s *Store) Generation(ctx context.Context, userID string) (int64, error) {
	gen, err := s.redis.Get(ctx, s.genKey(userID)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return gen, nil
}

// Ping reports point-in-time store availability and latency.
func (s *Store) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return time.Since(start), fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return time.Since(start), nil
}

func sessionFromFields(sessionID string, fields map[string]string) (*Session, error) {
	uid := fields["uid"]
	rh := fields["rh"]
	if uid == "" || len(rh) != 32 {
		return nil, ErrCorruptRecord
	}

	gen, err1 := strconv.ParseInt(fields["gen"], 10, 64)
	ca, err2 := strconv.ParseInt(fields["ca"], 10, 64)
	ra, err3 := strconv.ParseInt(fields["ra"], 10, 64)
	ea, err4 := strconv.ParseInt(fields["ea"], 10, 64)
	if err1 != nil || err2 != nil || err3 != nil || err4 != nil {
		return nil, ErrCorruptRecord
	}

	sess := &Session{
		SessionID:  sessionID,
		UserID:     uid,
		Scope:      splitScope(fields["sc"]),
		Generation: gen,
		CreatedAt:  ca,
		RotatedAt:  ra,
		ExpiresAt:  ea,
	}
	copy(sess.RefreshHash[:], rh)
	copy(sess.FingerprintHash[:], fields["fp"])

	return sess, nil
}

func splitScope(sc string) []string {
	if sc == "" {
		return nil
	}
	return strings.Fields(sc)
}

func scriptString(v interface{}) string {
	switch s := v.(type) {
	case string:
		return s
	case []byte:
		return string(s)
	default:
		return ""
	}
}

func scriptInt64(v interface{}) int64 {
	n, _ := v.(int64)
	return n
}
