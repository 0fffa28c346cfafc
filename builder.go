package authcore

import (
	"errors"
	"time"

	"github.com/MrEthical07/authcore/internal/audit"
	"github.com/MrEthical07/authcore/internal/limiters"
	"github.com/MrEthical07/authcore/internal/rate"
	"github.com/MrEthical07/authcore/internal/retry"
	"github.com/MrEthical07/authcore/jwt"
	"github.com/MrEthical07/authcore/password"
	"github.com/MrEthical07/authcore/permission"
	"github.com/MrEthical07/authcore/refresh"
	"github.com/MrEthical07/authcore/session"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Builder assembles an Engine. A Builder is single-use.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	userProvider UserProvider
	auditSink    AuditSink
	logger       *zap.Logger
	registerer   prometheus.Registerer
	now          func() time.Time

	built bool
}

// New returns a Builder seeded with DefaultConfig.
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis sets the session store client. Any go-redis client works,
// including cluster and failover clients.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

func (b *Builder) WithUserProvider(up UserProvider) *Builder {
	b.userProvider = up
	return b
}

func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithLogger sets the engine logger. The default discards everything.
func (b *Builder) WithLogger(log *zap.Logger) *Builder {
	b.logger = log
	return b
}

// WithMetricsRegisterer registers store retry metrics with reg.
func (b *Builder) WithMetricsRegisterer(reg prometheus.Registerer) *Builder {
	b.registerer = reg
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

// withClock is used by tests to move the engine's notion of now.
func (b *Builder) withClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// Build validates the configuration and wires every component.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}
	if b.redis == nil {
		return nil, errors.New("redis client required")
	}
	if b.userProvider == nil {
		return nil, errors.New("user provider required")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	log := b.logger
	if log == nil {
		log = zap.NewNop()
	}
	now := b.now
	if now == nil {
		now = time.Now
	}

	// -------- ROLE TABLE --------
	roles, err := permission.NewRoleTable(cfg.Authz.Roles)
	if err != nil {
		return nil, err
	}

	// -------- CODECS --------
	jm, err := jwt.NewManager(jwt.Config{
		Secret:    cloneBytes(cfg.JWT.Secret),
		AccessTTL: cfg.JWT.AccessTTL,
		Issuer:    cfg.JWT.Issuer,
		Leeway:    cfg.JWT.Leeway,
	})
	if err != nil {
		return nil, err
	}

	verifier, err := password.NewVerifier(cfg.Password.toPassword())
	if err != nil {
		return nil, err
	}

	// -------- SESSION STORE --------
	var retryMetrics *retry.Metrics
	if b.registerer != nil {
		retryMetrics = retry.NewMetrics(b.registerer)
	}
	store := session.NewStore(b.redis, session.Options{
		Namespace:     cfg.Session.Namespace,
		RetryAttempts: cfg.Session.RetryAttempts,
		RetryMetrics:  retryMetrics,
	})
	keys := store.Keys()

	engine := &Engine{
		config:       cloneConfig(cfg),
		store:        store,
		keys:         keys,
		jwtManager:   jm,
		verifier:     verifier,
		userProvider: b.userProvider,
		log:          log.Named("authcore"),
		now:          now,
	}

	protocol, err := refresh.New(store, refresh.Config{
		TTL:               cfg.Session.RefreshTTL,
		MaxActiveSessions: cfg.Session.MaxActiveSessions,
	}, refresh.WithResolver(engine.resolveSubject), refresh.WithClock(now))
	if err != nil {
		return nil, err
	}
	engine.protocol = protocol

	engine.rateLimiter = rate.New(b.redis, keys, rate.Config{
		MaxAttempts:   cfg.Throttle.MaxAttempts,
		MaxIPAttempts: cfg.Throttle.MaxIPAttempts,
		Window:        cfg.Throttle.Window,
	})
	engine.loginMetrics = limiters.NewLoginMetrics(b.redis, keys, limiters.MetricsConfig{
		Retention:             cfg.Throttle.MetricsRetention,
		FailureAlertThreshold: cfg.Throttle.FailureAlertThreshold,
	})
	engine.authz = permission.NewCache(b.redis, keys, roles, cfg.Authz.CacheTTL, log.Named("authz"))
	engine.audit = audit.NewDispatcher(audit.Config{
		Enabled:    cfg.Audit.Enabled,
		BufferSize: cfg.Audit.BufferSize,
		DropIfFull: cfg.Audit.DropIfFull,
	}, b.auditSink, audit.WithLogger(log.Named("audit")))
	engine.metrics = NewMetrics(cfg.Metrics)
	engine.initFlows()

	b.built = true

	return engine, nil
}
