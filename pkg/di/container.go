package di

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"quacker/backend/internal/service"
	"quacker/backend/internal/store"
	"quacker/backend/internal/ws"
	"quacker/backend/pkg/cache"
	"quacker/backend/pkg/config"
	"quacker/backend/pkg/health"
	"quacker/backend/pkg/jwt"
	"quacker/backend/pkg/logger"
	"quacker/backend/pkg/middleware"
	"quacker/backend/pkg/resilience"
	"quacker/backend/pkg/secrets"
	"quacker/backend/shared/observability"
	"quacker/backend/shared/redis"

	"github.com/rs/cors"
)

// Container holds all the dependencies for the application
type Container struct {
	Config   *config.Config
	Logger   *logger.Logger
	Log      store.Log
	Redis    *redis.RedisClient
	Cache    *cache.Cache
	Breaker  *resilience.CircuitBreaker
	Feed     *service.FeedService
	Hub      *ws.Hub
	Tokens   *jwt.Service
	Sessions *middleware.Sessions
	Health   *health.Checker
	Metrics  *observability.Metrics

	closers []func(context.Context) error
}

// Options tweaks construction; the zero value is fine
type Options struct {
	// TraceWriter receives spans when tracing is enabled; defaults to stdout
	TraceWriter io.Writer
	// SkipMetrics leaves the global meter provider alone
	SkipMetrics bool
}

// New builds every dependency from cfg. Background work (cache sweeping)
// stops when ctx is cancelled; Close releases the rest.
func New(ctx context.Context, cfg *config.Config, log *logger.Logger, opts Options) (*Container, error) {
	c := &Container{Config: cfg, Logger: log}

	if err := c.setupObservability(opts); err != nil {
		c.Close(context.Background())
		return nil, err
	}

	c.Cache = cache.New(ctx, cache.Options{
		TTL:         cfg.Cache.TTL,
		PurgeWindow: cfg.Cache.PurgeWindow,
		MaxItems:    cfg.Cache.MaxSize,
	})

	if err := c.setupSecrets(ctx); err != nil {
		c.Close(context.Background())
		return nil, err
	}

	if err := c.setupStore(); err != nil {
		c.Close(context.Background())
		return nil, err
	}

	breakerCfg := resilience.DefaultConfig("message-store")
	breakerCfg.IsFailure = service.IsStoreFailure
	c.Breaker = resilience.NewCircuitBreaker(breakerCfg, log)

	feed, err := service.NewFeedService(c.Log, service.FeedOptions{
		DefaultLimit: cfg.Feed.DefaultLimit,
		MaxLimit:     cfg.Feed.MaxLimit,
	}, c.Breaker, log)
	if err != nil {
		c.Close(context.Background())
		return nil, fmt.Errorf("create feed service: %w", err)
	}
	c.Feed = feed

	if cfg.Features.EnableWebSockets {
		c.Hub = ws.NewHub(log, originChecker(cfg.Security.AllowedOrigins))
		c.Feed.SetNotifier(c.Hub)
	}

	c.setupHealth()

	return c, nil
}

func (c *Container) setupObservability(opts Options) error {
	cfg := c.Config
	if cfg.Observability.TracingEnabled {
		w := opts.TraceWriter
		if w == nil {
			w = os.Stdout
		}
		shutdown, err := observability.SetupTracing(cfg.Observability.ServiceName, w)
		if err != nil {
			return err
		}
		c.closers = append(c.closers, shutdown)
	}

	if !opts.SkipMetrics {
		m, err := observability.SetupMetrics(cfg.Observability.ServiceName)
		if err != nil {
			return err
		}
		c.Metrics = m
		c.closers = append(c.closers, m.Shutdown)
	}
	return nil
}

// setupSecrets resolves the session signing key and builds the session gate
func (c *Container) setupSecrets(ctx context.Context) error {
	cfg := c.Config
	manager, err := secrets.NewVaultManager(secrets.VaultConfig{
		Enabled:   cfg.Vault.Enabled,
		Address:   cfg.Vault.Address,
		Token:     cfg.Vault.Token,
		Namespace: cfg.Vault.Namespace,
		Mount:     cfg.Vault.Mount,
		Path:      cfg.Vault.Path,
	}, c.Cache, c.Logger)
	if err != nil {
		return fmt.Errorf("init secrets: %w", err)
	}
	secrets.SetManager(manager)

	secret := secrets.GetSecretWithDefault(ctx, "SESSION_SECRET", cfg.Session.Secret)
	if secret == "" {
		return errors.New("session secret is empty")
	}
	if cfg.IsProduction() && secret == config.DevSessionSecret {
		c.Logger.Warn("running in production with the development session secret")
	}

	c.Tokens = jwt.NewService(secret, cfg.Session.Expiry)
	c.Sessions = middleware.NewSessions(c.Tokens, middleware.SessionOptions{
		CookieName: cfg.Session.CookieName,
		Secure:     cfg.Session.Secure,
	}, c.Logger)
	return nil
}

// setupStore opens the configured message log and wraps it with the head cache
func (c *Container) setupStore() error {
	cfg := c.Config
	storeLog := c.Logger.WithComponent("store")

	var (
		base store.Log
		err  error
	)
	switch cfg.Store.Backend {
	case config.StoreBadger:
		base, err = store.OpenBadgerLog(cfg.Store.BadgerPath, storeLog)
		if err != nil {
			return fmt.Errorf("open badger store: %w", err)
		}
	case config.StoreSQL, "":
		db, dbErr := config.NewDB(cfg)
		if dbErr != nil {
			return fmt.Errorf("open database: %w", dbErr)
		}
		base, err = store.NewGormLog(db)
		if err != nil {
			return fmt.Errorf("migrate database: %w", err)
		}
	default:
		return fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
	c.closers = append(c.closers, func(context.Context) error { return base.Close() })
	c.Log = base

	if !cfg.Cache.Enabled {
		return nil
	}

	var head store.HeadCache
	switch cfg.Cache.Backend {
	case config.CacheRedis:
		client, err := redis.NewRedisClient(cfg.Cache.RedisURL)
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		c.Redis = client
		c.closers = append(c.closers, func(context.Context) error { return client.Close() })
		head = store.NewRedisHeadCache(client, cfg.Cache.TTL)
	default:
		head = store.NewMemoryHeadCache(c.Cache)
	}
	c.Log = store.NewCachedLog(base, head, storeLog)
	return nil
}

func (c *Container) setupHealth() {
	c.Health = health.NewChecker(c.Logger.WithComponent("health"), 30*time.Second)

	c.Health.RegisterPing("database", true, c.Feed.Ping)
	if c.Redis != nil {
		c.Health.RegisterPing("cache", false, c.Redis.Ping)
	}
	c.Health.RegisterCheck("circuit_breaker", false, func(context.Context) (health.Status, string, error) {
		stats := c.Breaker.Stats()
		if stats.State != resilience.StateClosed {
			return health.StatusDegraded, "store circuit " + string(stats.State), nil
		}
		return health.StatusUp, "store circuit closed", nil
	})
	if c.Hub != nil {
		c.Health.RegisterCheck("websocket", false, func(context.Context) (health.Status, string, error) {
			return health.StatusUp, fmt.Sprintf("%d active connections", c.Hub.ActiveConnections()), nil
		})
	}
}

// Close releases resources in reverse order of acquisition
func (c *Container) Close(ctx context.Context) error {
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	c.closers = nil
	return errors.Join(errs...)
}

// originChecker applies the CORS origin list to websocket upgrades
func originChecker(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 {
		return nil
	}
	policy := cors.New(cors.Options{AllowedOrigins: allowed})
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || policy.OriginAllowed(r)
	}
}
