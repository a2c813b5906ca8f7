package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	goCred "github.com/MrEthical07/goCred"
	"github.com/MrEthical07/goCred/directory/memdir"
	"github.com/MrEthical07/goCred/directory/postgres"
	"github.com/MrEthical07/goCred/httpapi"
	"github.com/MrEthical07/goCred/logging"
	"github.com/MrEthical07/goCred/metrics/export/prometheus"
	"github.com/MrEthical07/goCred/notify"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const readHeaderTimeout = 10 * time.Second

func newServeCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg)
		},
	}
}

// stack owns everything serve opens, so it can be closed in one place.
type stack struct {
	engine *goCred.Engine
	redis  *redis.Client
	pg     *postgres.Store
	amqp   *notify.AMQP
}

func (r *stack) Close() {
	if r.engine != nil {
		r.engine.Close()
	}
	if r.amqp != nil {
		_ = r.amqp.Close()
	}
	if r.pg != nil {
		r.pg.Close()
	}
	if r.redis != nil {
		_ = r.redis.Close()
	}
}

func serve(ctx context.Context, cfg Config) error {
	logger := logging.New(cfg.Log)
	defer func() { _ = logger.Sync() }()

	rt, err := buildStack(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer rt.Close()

	apiOpts := []httpapi.Option{
		httpapi.WithConfig(cfg.HTTP),
		httpapi.WithLogger(logger.Named("http")),
		httpapi.WithMetrics(prometheus.NewExporter(rt.engine).Handler()),
	}
	if rt.redis != nil {
		apiOpts = append(apiOpts, httpapi.WithRedisThrottle(rt.redis, cfg.Engine.Redis.KeyPrefix+":rl"))
	}
	api := httpapi.New(rt.engine, apiOpts...)

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           api.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("listening", zap.String("addr", cfg.Server.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		logger.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// buildStack opens the backends named by cfg and builds the engine.
func buildStack(ctx context.Context, cfg Config, logger *zap.Logger) (*stack, error) {
	rt := &stack{}
	fail := func(err error) (*stack, error) {
		rt.Close()
		return nil, err
	}

	b := goCred.New().WithConfig(cfg.Engine).WithLogger(logger.Named("engine"))

	if cfg.Redis.URL != "" {
		ropts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			return fail(fmt.Errorf("parse redis url: %w", err))
		}
		rt.redis = redis.NewClient(ropts)
		if err := rt.redis.Ping(ctx).Err(); err != nil {
			logger.Warn("redis ping failed", zap.Error(err))
		}
		b.WithRedis(rt.redis)
	} else {
		logger.Warn("no redis configured, using the in-memory backend")
		b.WithMemoryBackend()
	}

	if cfg.Postgres.DSN != "" {
		store, err := postgres.Open(ctx, cfg.Postgres.DSN, cfg.Postgres.Pool)
		if err != nil {
			return fail(fmt.Errorf("open postgres: %w", err))
		}
		rt.pg = store
		if err := store.Ping(ctx); err != nil {
			logger.Warn("postgres ping failed", zap.Error(err))
		}
		b.WithDirectory(store)
	} else {
		logger.Warn("no postgres configured, using an empty in-memory directory")
		b.WithDirectory(memdir.New())
	}

	notifier, err := buildNotifier(cfg.Notify, logger, rt)
	if err != nil {
		return fail(err)
	}
	b.WithNotifier(notifier)

	tpl, err := buildTemplates(cfg.Notify)
	if err != nil {
		return fail(err)
	}
	b.WithRenderer(tpl)

	engine, err := b.Build()
	if err != nil {
		return fail(fmt.Errorf("build engine: %w", err))
	}
	rt.engine = engine
	return rt, nil
}

func buildTemplates(cfg NotifyConfig) (*notify.Templates, error) {
	if cfg.TemplatesDir != "" {
		return notify.LoadTemplates(cfg.TemplatesDir, cfg.Product)
	}
	return notify.NewTemplates(cfg.Product)
}

// buildNotifier returns the configured driver. SMTP and AMQP fall back to
// the log notifier when a send fails.
func buildNotifier(cfg NotifyConfig, logger *zap.Logger, rt *stack) (goCred.Notifier, error) {
	logNotifier := notify.NewLog(logger.Named("notify"))

	switch cfg.Driver {
	case driverSMTP:
		s, err := notify.NewSMTP(cfg.SMTP, logger.Named("smtp"))
		if err != nil {
			return nil, fmt.Errorf("smtp notifier: %w", err)
		}
		return notify.Fallback{Primary: s, Secondary: logNotifier, Logger: logger}, nil
	case driverAMQP:
		p, err := notify.DialAMQP(cfg.AMQP, logger.Named("amqp"))
		if err != nil {
			return nil, fmt.Errorf("amqp notifier: %w", err)
		}
		rt.amqp = p
		return notify.Fallback{Primary: p, Secondary: logNotifier, Logger: logger}, nil
	default:
		return logNotifier, nil
	}
}
