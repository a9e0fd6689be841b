package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/kapu/astrofm-go/internal/config"
	"github.com/kapu/astrofm-go/internal/orchestrator"
	"github.com/kapu/astrofm-go/internal/service/ai"
	"github.com/kapu/astrofm-go/internal/service/backend"
	"github.com/kapu/astrofm-go/internal/service/cache"
	"github.com/kapu/astrofm-go/internal/service/profile"
	"github.com/kapu/astrofm-go/internal/service/remote"
	"github.com/kapu/astrofm-go/internal/service/spotify"
	"github.com/kapu/astrofm-go/internal/service/storage"
	"github.com/kapu/astrofm-go/internal/transport/httpapi"
	"github.com/kapu/astrofm-go/internal/util"
	"go.uber.org/zap"
)

// CacheStore is a cache backend that can also be wiped.
type CacheStore interface {
	cache.Store
	Clear(ctx context.Context) (int, error)
}

// Container bundles the assembled services shared by the server and the CLI.
type Container struct {
	Config   *config.Config
	Logger   *zap.Logger
	Defaults *config.Defaults

	KV       storage.KV
	SQL      *storage.SQLStore
	Cache    CacheStore
	Redis    *cache.RedisStore
	Profiles *profile.Resolver
	Backend  *backend.Client
	Spotify  *spotify.Client
	Narrator *ai.NarrativeGenerator
	Remote   *remote.Source

	closers []func()
}

// Build assembles every service. Heavy initialization (database, Redis, LLM
// clients) happens here so screens stay focused on orchestration.
func Build(ctx context.Context, cfg *config.Config, logger *zap.Logger) (container *Container, err error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger must not be nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	c := &Container{Config: cfg, Logger: logger}
	defer func() {
		if err != nil {
			c.Close()
		}
	}()

	c.Defaults, err = config.LoadDefaults(cfg.Defaults.File)
	if err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// Persistent storage
	switch cfg.Storage.Driver {
	case "sqlite":
		c.SQL, err = storage.NewSQLiteStore(cfg.Storage.Path, logger)
	case "postgres":
		c.SQL, err = storage.NewPostgresStore(storage.PostgresConfig{
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			Database: cfg.Postgres.Database,
		}, logger)
	default:
		c.KV = storage.NewMemoryStore()
		logger.Warn("Using in-memory storage; profiles and cache are lost on exit")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open %s storage: %w", cfg.Storage.Driver, err)
	}
	if c.SQL != nil {
		c.KV = c.SQL
		c.closers = append(c.closers, func() { _ = c.SQL.Close() })
	}

	// Cache
	clock := cache.Clock{Location: util.LoadLocation(cfg.Cache.Timezone)}
	if cfg.Cache.Backend == "redis" {
		c.Redis, err = cache.NewRedisStore(cache.RedisConfig{
			Host:     cfg.Redis.Host,
			Port:     cfg.Redis.Port,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		}, clock, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create redis cache: %w", err)
		}
		c.closers = append(c.closers, func() { _ = c.Redis.Close() })
		c.Cache = c.Redis
	} else {
		c.Cache = cache.NewKVStore(c.KV, clock, logger)
	}

	c.Profiles = profile.NewResolver(c.KV, c.Defaults, logger)

	// Remote collaborators
	c.Backend = backend.NewClient(backend.Config{
		BaseURL: cfg.Backend.BaseURL,
		APIKey:  cfg.Backend.APIKey,
		Timeout: cfg.Backend.Timeout,
		Now:     clock.Local,
	}, logger)

	c.Spotify = spotify.NewClient(spotify.Config{
		ClientID:     cfg.Spotify.ClientID,
		ClientSecret: cfg.Spotify.ClientSecret,
		RedirectURL:  cfg.Spotify.RedirectURL,
		Scopes:       cfg.Spotify.Scopes,
	}, c.KV, spotify.BrowserOpener{}, logger)
	if !cfg.Spotify.Enabled() {
		logger.Info("Spotify credentials not set; monthly playlist stays gated")
	}

	var narrator remote.Narrator
	if cfg.Narrative.Provider == "llm" {
		modelManager, mmErr := ai.NewModelManager(ctx, ai.ModelManagerConfig{
			GeminiAPIKey:       cfg.Gemini.APIKey,
			OpenAIAPIKey:       cfg.OpenAI.APIKey,
			DefaultGeminiModel: cfg.Gemini.Model,
			DefaultOpenAIModel: cfg.OpenAI.Model,
			EnableFallback:     cfg.OpenAI.EnableFallback,
		}, logger)
		if mmErr != nil {
			return nil, fmt.Errorf("failed to create model manager: %w", mmErr)
		}
		c.Narrator = ai.NewNarrativeGenerator(modelManager, logger).WithClock(clock.Local)
		narrator = c.Narrator
		logger.Info("Readings written by LLM", zap.String("model", cfg.Gemini.Model))
	}

	c.Remote = remote.NewSource(c.Backend, c.Spotify, narrator, logger)
	return c, nil
}

// ScreenDeps are the collaborators every screen shares.
func (c *Container) ScreenDeps() orchestrator.Deps {
	return orchestrator.Deps{
		Profiles: c.Profiles,
		Remote:   c.Remote,
		Cache:    c.Cache,
		Defaults: c.Defaults,
		Logger:   c.Logger,
	}
}

func (c *Container) NewScreen(name string) (orchestrator.Screen, error) {
	return orchestrator.NewScreen(name, c.ScreenDeps())
}

// NewServer builds the HTTP API on top of the container.
func (c *Container) NewServer() *httpapi.Server {
	registry := httpapi.NewRegistry(c.NewScreen, c.Logger)
	return httpapi.NewServer(c.Config.Server.Addr, registry, c.Spotify, c.HealthChecks(), c.Logger)
}

func (c *Container) HealthChecks() map[string]httpapi.HealthCheck {
	checks := map[string]httpapi.HealthCheck{
		"backend": func(ctx context.Context) error {
			if !c.Backend.Ping(ctx) {
				return errors.New("backend unreachable")
			}
			return nil
		},
	}
	if c.SQL != nil {
		checks["storage"] = c.SQL.Ping
	}
	if c.Redis != nil {
		checks["redis"] = func(ctx context.Context) error {
			if !c.Redis.IsConnected(ctx) {
				return errors.New("redis unreachable")
			}
			return nil
		}
	}
	return checks
}

// Close releases resources in reverse order of creation.
func (c *Container) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
	c.closers = nil
}
