package httpapi

import (
	"net/http"
	"time"

	goCred "github.com/MrEthical07/goCred"
	"github.com/MrEthical07/goCred/internal/rate"
	"github.com/MrEthical07/goCred/middleware"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Throttle buckets, one budget per endpoint family.
const (
	BucketLogin    = "login"
	BucketRecovery = "recovery"
	BucketForgot   = "forgot"
	BucketReset    = "reset"
)

// Rule is a per-address budget: at most Limit requests per Window.
type Rule struct {
	Limit  int           `yaml:"limit"`
	Window time.Duration `yaml:"window"`
}

// Config tunes the HTTP layer. Engine behavior lives in goCred.Config.
type Config struct {
	// CookieSecure marks the session cookie Secure. Disable only for local
	// development over plain HTTP.
	CookieSecure bool   `yaml:"cookie_secure" env:"COOKIE_SECURE"`
	CookieDomain string `yaml:"cookie_domain" env:"COOKIE_DOMAIN"`
	// TrustProxy takes the client address from X-Forwarded-For / X-Real-IP.
	TrustProxy bool `yaml:"trust_proxy" env:"TRUST_PROXY"`
	// Throttle maps a bucket to its per-address budget. Missing buckets
	// are not throttled.
	Throttle map[string]Rule `yaml:"throttle"`
	// MaxBodyBytes caps JSON request bodies.
	MaxBodyBytes int64 `yaml:"max_body_bytes" env:"MAX_BODY_BYTES"`
	// AllowedOrigins enables CORS with credentials for a browser client
	// served from another origin. Empty disables CORS.
	AllowedOrigins []string `yaml:"allowed_origins" env:"ALLOWED_ORIGINS" envSeparator:","`
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		CookieSecure: true,
		Throttle: map[string]Rule{
			BucketLogin:    {Limit: 20, Window: time.Minute},
			BucketRecovery: {Limit: 30, Window: time.Minute},
			BucketForgot:   {Limit: 5, Window: time.Minute},
			BucketReset:    {Limit: 10, Window: time.Minute},
		},
		MaxBodyBytes: 64 << 10,
	}
}

// Server holds the engine and HTTP collaborators.
type Server struct {
	engine  *goCred.Engine
	cfg     Config
	limiter rate.Counter
	logger  *zap.Logger
	metrics http.Handler
}

type Option func(*Server)

func WithConfig(cfg Config) Option {
	return func(s *Server) { s.cfg = cfg }
}

func WithLogger(l *zap.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithRedisThrottle counts requests in Redis so every instance shares one
// budget. The default counts in process memory.
func WithRedisThrottle(client redis.UniversalClient, prefix string) Option {
	return func(s *Server) {
		if client != nil {
			s.limiter = rate.New(client, prefix)
		}
	}
}

// WithMetrics mounts h at GET /metrics.
func WithMetrics(h http.Handler) Option {
	return func(s *Server) { s.metrics = h }
}

func New(engine *goCred.Engine, opts ...Option) *Server {
	s := &Server{
		engine:  engine,
		cfg:     DefaultConfig(),
		limiter: rate.NewMemory(),
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.cfg.MaxBodyBytes <= 0 {
		s.cfg.MaxBodyBytes = 64 << 10
	}
	return s
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	if s.cfg.TrustProxy {
		r.Use(chimw.RealIP)
	}
	r.Use(s.requestLogger)
	r.Use(chimw.Recoverer)
	if len(s.cfg.AllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   s.cfg.AllowedOrigins,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
			ExposedHeaders:   []string{"Retry-After"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}

	r.Get("/healthz", s.handleHealth)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics)
	}

	r.Route("/api", func(r chi.Router) {
		r.Route("/recovery", func(r chi.Router) {
			r.Use(s.throttle(BucketRecovery))
			r.Post("/verify", s.handleVerify)
			r.Post("/resend", s.handleResend)
			r.Get("/status", s.handleStatus)
		})

		r.Route("/auth", func(r chi.Router) {
			r.With(s.throttle(BucketForgot)).Post("/forgot-password", s.handleForgotPassword)
			r.With(s.throttle(BucketReset)).Post("/reset-password", s.handleResetPassword)
			r.With(s.throttle(BucketLogin)).Post("/login", s.handleLogin)
			r.With(s.throttle(BucketLogin)).Post("/login/verify", s.handleLoginVerify)
			r.Post("/logout", s.handleLogout)
		})

		r.Post("/session/refresh", s.handleRefresh)
		r.Post("/password/strength", s.handleStrength)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireSession(s.engine, s.rejectSession))
			r.Post("/profile/password", s.handleChangePassword)
		})
	})

	return r
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", chimw.GetReqID(r.Context())),
		)
	})
}
