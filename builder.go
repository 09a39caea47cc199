package authcore

import (
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	internalaudit "github.com/velosta/authcore/internal/audit"
	"github.com/velosta/authcore/internal/rate"
	"github.com/velosta/authcore/jwt"
	"github.com/velosta/authcore/password"
	"github.com/velosta/authcore/session"
)

// Builder assembles an [Engine]. A Builder is single-use: Build may be
// called once.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	userProvider UserProvider
	keys         jwt.KeySource
	auditSink    AuditSink
	clock        func() time.Time

	built bool
}

func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

func (b *Builder) WithUserProvider(up UserProvider) *Builder {
	b.userProvider = up
	return b
}

// WithKeySource supplies the signing keys used for access tokens.
// Rotating the source takes effect on the next issued token.
func (b *Builder) WithKeySource(ks jwt.KeySource) *Builder {
	b.keys = ks
	return b
}

func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	b.config.Audit.Enabled = true
	return b
}

// WithClock overrides the engine's time source. Intended for tests.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.clock = now
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}
	b.built = true

	cfg := cloneConfig(b.config)

	if b.redis == nil {
		return nil, errors.New("redis client required")
	}
	if b.userProvider == nil {
		return nil, errors.New("user provider required")
	}
	if b.keys == nil {
		return nil, errors.New("key source required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	now := b.clock
	if now == nil {
		now = time.Now
	}

	hasher, err := password.NewHasher(password.Config{
		Memory:      cfg.Password.Memory,
		Time:        cfg.Password.Time,
		Parallelism: cfg.Password.Parallelism,
		SaltLength:  cfg.Password.SaltLength,
		KeyLength:   cfg.Password.KeyLength,
		MinLength:   cfg.Password.MinLength,
	})
	if err != nil {
		return nil, err
	}

	method := jwt.MethodEd25519
	if cfg.JWT.SigningMethod == "hs256" {
		method = jwt.MethodHS256
	}

	jwtManager, err := jwt.NewManager(jwt.Config{
		AccessTTL:     cfg.JWT.AccessTTL,
		SigningMethod: method,
		Keys:          b.keys,
		Issuer:        cfg.JWT.Issuer,
		Audience:      cfg.JWT.Audience,
		Leeway:        cfg.JWT.Leeway,
		Now:           now,
	})
	if err != nil {
		return nil, err
	}

	sessionStore := session.NewStore(b.redis, cfg.Session.RedisPrefix, now)

	rateLimiter := rate.New(b.redis, rate.Config{
		ThrottleByIP:       cfg.Security.EnableIPThrottle,
		ThrottleRefresh:    cfg.Security.EnableRefreshThrottle,
		MaxLoginAttempts:   cfg.Security.MaxLoginAttempts,
		LoginWindow:        cfg.Security.LoginCooldownDuration,
		MaxRefreshAttempts: cfg.Security.MaxRefreshAttempts,
		RefreshWindow:      cfg.Security.RefreshCooldownDuration,
	})

	dispatcher := internalaudit.NewDispatcher(internalaudit.Config{
		Enabled:    cfg.Audit.Enabled,
		BufferSize: cfg.Audit.BufferSize,
		DropIfFull: cfg.Audit.DropIfFull,
	}, b.auditSink)

	return &Engine{
		config:       cfg,
		sessionStore: sessionStore,
		rateLimiter:  rateLimiter,
		audit:        dispatcher,
		metrics:      NewMetrics(cfg.Metrics),
		passwordHash: hasher,
		jwtManager:   jwtManager,
		userProvider: b.userProvider,
		clock:        now,
	}, nil
}
