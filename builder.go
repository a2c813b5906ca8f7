package goCred

import (
	"errors"
	"io"
	"time"

	"github.com/MrEthical07/goCred/internal/audit"
	"github.com/MrEthical07/goCred/internal/codes"
	"github.com/MrEthical07/goCred/internal/delivery"
	"github.com/MrEthical07/goCred/internal/limiters"
	"github.com/MrEthical07/goCred/internal/metrics"
	"github.com/MrEthical07/goCred/internal/stores"
	"github.com/MrEthical07/goCred/jwt"
	"github.com/MrEthical07/goCred/password"
	"github.com/MrEthical07/goCred/policy"
	"github.com/MrEthical07/goCred/session"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const memoryCleanupInterval = time.Minute

// Builder assembles an [Engine]. Configure it during initialization; Build
// may be called once.
type Builder struct {
	config Config
	redis  redis.UniversalClient
	memory bool

	directory Directory
	notifier  Notifier
	renderer  Renderer
	logger    *zap.Logger
	auditSink AuditSink
	now       func() time.Time
	random    io.Reader

	built bool
}

// New returns a Builder seeded with [DefaultConfig].
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

// WithConfig replaces the configuration with a copy of cfg.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis stores challenges, lockout ledgers and revocations in Redis.
// Any go-redis client works, including cluster and failover clients.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithMemoryBackend keeps all state in process memory. Use it for tests and
// single-instance deployments only; state is lost on restart and not shared.
func (b *Builder) WithMemoryBackend() *Builder {
	b.memory = true
	return b
}

func (b *Builder) WithDirectory(d Directory) *Builder {
	b.directory = d
	return b
}

func (b *Builder) WithNotifier(n Notifier) *Builder {
	b.notifier = n
	return b
}

// WithRenderer overrides the plain-text message renderer.
func (b *Builder) WithRenderer(r Renderer) *Builder {
	b.renderer = r
	return b
}

func (b *Builder) WithLogger(l *zap.Logger) *Builder {
	b.logger = l
	return b
}

// WithAuditSink sets the audit destination and enables the dispatcher.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	b.config.Audit.Enabled = sink != nil
	return b
}

// WithClock overrides the time source. Intended for tests.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// WithRandom overrides the source used to mint codes and tokens. Intended
// for tests.
func (b *Builder) WithRandom(r io.Reader) *Builder {
	b.random = r
	return b
}

// Build validates the configuration and wires the engine.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if b.directory == nil {
		return nil, errors.New("directory required")
	}
	if b.redis == nil && !b.memory {
		return nil, errors.New("redis client or memory backend required")
	}

	e := &Engine{
		config:    cfg,
		now:       b.now,
		logger:    b.logger,
		directory: b.directory,
		notifier:  b.notifier,
		renderer:  b.renderer,
		generator: codes.Generator{Reader: b.random},
		policy:    policy.Policy{RequireClasses: cfg.Policy.RequireClasses},
		totp:      newTOTPVerifier(cfg.Challenge.TOTP),
	}
	if e.now == nil {
		e.now = time.Now
	}
	if e.logger == nil {
		e.logger = zap.NewNop()
	}
	if e.renderer == nil {
		e.renderer = plainRenderer{}
	}

	if b.redis != nil {
		prefix := cfg.Redis.KeyPrefix
		e.challenges = stores.NewRedisChallengeStore(b.redis, prefix+":ch")
		e.totpSteps = stores.NewRedisStepStore(b.redis, prefix+":ts")
		e.guard = limiters.NewRedisGuard(b.redis, prefix+":lk")
		revocations := session.NewRedisRevocationStore(b.redis, prefix+":ss")
		e.revocations = revocations
		e.ping = revocations.Ping
	} else {
		e.challenges = stores.NewMemoryChallengeStore(memoryCleanupInterval)
		e.totpSteps = stores.NewMemoryStepStore(memoryCleanupInterval)
		e.guard = limiters.NewMemoryGuard(memoryCleanupInterval)
		e.revocations = session.NewMemoryRevocationStore()
	}

	hasher, err := password.NewArgon2(cfg.passwordConfig())
	if err != nil {
		return nil, err
	}
	e.hasher = hasher

	codec, err := jwt.NewCodec(jwt.Config{
		SigningMethod: cfg.Session.SigningMethod,
		PrivateKey:    cfg.Session.PrivateKey,
		PublicKey:     cfg.Session.PublicKey,
		Issuer:        cfg.Session.Issuer,
		Audience:      cfg.Session.Audience,
		Leeway:        cfg.Session.Leeway,
	}, jwt.WithClock(e.now))
	if err != nil {
		return nil, err
	}
	e.codec = codec
	e.issuer = session.NewIssuer(
		session.SubjectCheckerFunc(e.subjectExists),
		session.WithClock(e.now),
		session.WithDefaultTTL(cfg.Session.TTL),
	)

	e.metrics = metrics.New(metrics.Config{
		Enabled:       cfg.Metrics.Enabled,
		EnableLatency: cfg.Metrics.EnableLatencyHistograms,
	})

	sink := b.auditSink
	if sink == nil {
		sink = audit.NewZapSink(e.logger)
	}
	e.audit = audit.NewDispatcher(audit.Config{
		Enabled:    cfg.Audit.Enabled,
		BufferSize: cfg.Audit.BufferSize,
		DropIfFull: cfg.Audit.DropIfFull,
	}, sink)

	if cfg.Notify.Async {
		e.delivery = delivery.NewQueue(delivery.Config{
			Workers:    cfg.Notify.Workers,
			BufferSize: cfg.Notify.QueueSize,
			JobTimeout: cfg.Notify.Timeout,
		}, func(err error) {
			e.metricInc(MetricDeliveryFailure)
			e.logger.Warn("queued delivery failed", zap.Error(err))
		})
	}

	e.flows = e.buildFlows()

	b.built = true
	return e, nil
}
