package factory

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/groupflight/flightgroup/internal/config"
	"github.com/groupflight/flightgroup/internal/dependencies/clock"
	"github.com/groupflight/flightgroup/internal/dependencies/random"
	"github.com/groupflight/flightgroup/internal/gateway"
	"github.com/groupflight/flightgroup/internal/handler"
	"github.com/groupflight/flightgroup/internal/services/auth"
	"github.com/groupflight/flightgroup/internal/services/delivery"
	"github.com/groupflight/flightgroup/internal/services/flightplan"
	"github.com/groupflight/flightgroup/internal/services/group"
	"github.com/groupflight/flightgroup/internal/services/identity"
	"github.com/groupflight/flightgroup/internal/services/tier"
	"github.com/groupflight/flightgroup/internal/storage"
	"github.com/groupflight/flightgroup/internal/storage/memory"
	"github.com/groupflight/flightgroup/internal/storage/postgres"
	redisstorage "github.com/groupflight/flightgroup/internal/storage/redis"
)

// Storage type constants
const (
	StorageTypeMemory   = config.StorageMemory
	StorageTypeRedis    = config.StorageRedis
	StorageTypePostgres = config.StoragePostgres
)

// App contains all wired application components
type App struct {
	// Storage
	Storage storage.Store

	// External dependencies
	Clock  clock.Clock
	Random random.Random

	// Services
	Identity   *identity.Cache
	Groups     *group.Directory
	FlightPlan *flightplan.Engine
	Delivery   *delivery.Engine
	Auth       *auth.Service
	Tiers      *tier.Table

	// Transport
	Dispatcher *handler.Dispatcher
	Registry   *gateway.Registry
	Gateway    *gateway.Server
}

// Config holds configuration for the application factory
type Config struct {
	// Logger is the application logger (optional)
	// If nil, a no-op logger is used
	Logger *slog.Logger
	// StorageType selects the storage backend ("memory", "redis" or "postgres")
	// If empty, defaults to "memory"
	StorageType string
	// RedisConfig holds Redis connection settings (required if StorageType is "redis")
	RedisConfig *redisstorage.Config
	// PostgresConfig holds Postgres settings (required if StorageType is "postgres")
	PostgresConfig *postgres.Config

	// Service configuration; zero values fall back to each DefaultConfig
	AuthConfig     auth.Config
	IdentityConfig identity.Config
	GroupConfig    group.Config
	HandlerConfig  handler.Config
	GatewayConfig  gateway.Config

	// CallbackURL routes pushes for connections this process does not hold
	// through an external websocket front
	CallbackURL string

	// TierTablePath is loaded into the tier table when set
	TierTablePath string
}

// ConfigFrom maps loaded server configuration onto factory configuration
func ConfigFrom(c *config.Config, logger *slog.Logger) Config {
	cfg := Config{
		Logger:        logger,
		StorageType:   c.Storage.Type,
		CallbackURL:   c.Gateway.CallbackURL,
		TierTablePath: c.Tiers.Path,
		AuthConfig: auth.Config{
			SessionDuration: c.Sessions.Duration,
		},
		IdentityConfig: identity.Config{
			Freshness: c.Sessions.CacheFreshness,
			PilotTTL:  c.Sessions.PilotTTL,
		},
		GroupConfig: group.Config{
			TTL: c.Sessions.GroupTTL,
		},
		HandlerConfig: handler.Config{
			Timeout: c.Sessions.InvocationTimeout,
		},
		GatewayConfig: gateway.Config{
			WriteTimeout:   c.Gateway.WriteTimeout,
			OriginPatterns: c.Gateway.OriginPatterns,
		},
	}

	switch c.Storage.Type {
	case StorageTypeRedis:
		redisCfg := redisstorage.DefaultConfig()
		redisCfg.URL = c.Storage.Redis.URL
		if c.Storage.Redis.PoolSize > 0 {
			redisCfg.PoolSize = c.Storage.Redis.PoolSize
		}
		cfg.RedisConfig = &redisCfg
	case StorageTypePostgres:
		pgCfg := postgres.DefaultConfig()
		pgCfg.DSN = c.Storage.Postgres.DSN
		if c.Storage.Postgres.Table != "" {
			pgCfg.TableName = c.Storage.Postgres.Table
		}
		cfg.PostgresConfig = &pgCfg
	}
	return cfg
}

// New creates a new application with all dependencies wired
func New(cfg Config) (*App, error) {
	// Use no-op logger if not provided
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}

	store, err := newStore(cfg)
	if err != nil {
		return nil, err
	}

	tiers := tier.New(logger)
	if cfg.TierTablePath != "" {
		if err := tiers.Load(cfg.TierTablePath); err != nil {
			_ = store.Close()
			return nil, err
		}
	}

	var remote delivery.Gateway
	if cfg.CallbackURL != "" {
		cb, err := gateway.NewCallback(cfg.CallbackURL, cfg.GatewayConfig.WriteTimeout)
		if err != nil {
			_ = store.Close()
			return nil, err
		}
		remote = cb
	}

	return newWithDependencies(store, clock.New(), random.New(), tiers, remote, cfg, logger), nil
}

func newStore(cfg Config) (storage.Store, error) {
	storageType := cfg.StorageType
	if storageType == "" {
		storageType = StorageTypeMemory
	}

	switch storageType {
	case StorageTypeMemory:
		return memory.New(), nil
	case StorageTypeRedis:
		if cfg.RedisConfig == nil {
			return nil, errors.New("RedisConfig required when StorageType is redis")
		}
		return redisstorage.New(*cfg.RedisConfig)
	case StorageTypePostgres:
		if cfg.PostgresConfig == nil {
			return nil, errors.New("PostgresConfig required when StorageType is postgres")
		}
		return postgres.New(*cfg.PostgresConfig)
	default:
		return nil, fmt.Errorf("invalid StorageType %q: must be 'memory', 'redis' or 'postgres'", storageType)
	}
}

// newWithDependencies creates an App with the given dependencies (useful for testing).
// remote may be nil when every connection is held by this process.
func newWithDependencies(
	store storage.Store,
	clk clock.Clock,
	rnd random.Random,
	tiers *tier.Table,
	remote delivery.Gateway,
	cfg Config,
	logger *slog.Logger,
) *App {
	identityCache := identity.New(store, clk, cfg.IdentityConfig, logger)
	directory := group.New(store, identityCache, clk, rnd, cfg.GroupConfig, logger)
	flightPlan := flightplan.New(directory, logger)
	authService := auth.New(identityCache, directory, tiers, clk, rnd, cfg.AuthConfig, logger)

	registry := gateway.NewRegistry(cfg.GatewayConfig.WriteTimeout, logger)
	var push delivery.Gateway = registry
	if remote != nil {
		push = &gateway.Fallback{Primary: registry, Secondary: remote}
	}
	deliveryEngine := delivery.New(push, directory, identityCache, logger)

	dispatcher := handler.New(authService, identityCache, directory, flightPlan, deliveryEngine, clk, cfg.HandlerConfig, logger)
	server := gateway.NewServer(registry, dispatcher, rnd, cfg.GatewayConfig, logger)

	return &App{
		Storage:    store,
		Clock:      clk,
		Random:     rnd,
		Identity:   identityCache,
		Groups:     directory,
		FlightPlan: flightPlan,
		Delivery:   deliveryEngine,
		Auth:       authService,
		Tiers:      tiers,
		Dispatcher: dispatcher,
		Registry:   registry,
		Gateway:    server,
	}
}

// expirer is implemented by stores that need expired rows removed
type expirer interface {
	PurgeExpired(ctx context.Context) (int64, error)
}

// RunJanitor periodically purges expired items from stores that do not
// expire them natively. It returns when ctx is cancelled.
func (a *App) RunJanitor(ctx context.Context, interval time.Duration, logger *slog.Logger) {
	purger, ok := a.Storage.(expirer)
	if !ok {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := purger.PurgeExpired(ctx)
			if err != nil {
				logger.Warn("purge expired items failed", slog.String("error", err.Error()))
				continue
			}
			if n > 0 {
				logger.Info("purged expired items", slog.Int64("count", n))
			}
		}
	}
}

// Close releases the application's resources
func (a *App) Close() error {
	return a.Storage.Close()
}
