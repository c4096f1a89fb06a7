package cli

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"commissions/internal/auth"
	"commissions/internal/backend"
	"commissions/internal/cache"
	"commissions/internal/config"
	"commissions/internal/events"
	apphttp "commissions/internal/http"
	applog "commissions/internal/log"
	"commissions/internal/services"
	"commissions/internal/worker"
)

// Options tune how NewApp wires optional collaborators.
type Options struct {
	// Factory builds the primary store. Defaults to backend.NewFactory.
	Factory backend.Factory
	// RequireEvents makes an unreachable broker fatal instead of falling
	// back to not publishing.
	RequireEvents bool
}

// App holds the collaborators shared by the server, the worker and the
// admin CLI.
type App struct {
	Config     *config.Config
	Logger     *applog.Logger
	Backend    backend.Backend
	Entries    *services.EntryService
	Dashboards cache.DashboardCache

	events       *events.Client
	redis        *redis.Client
	cacheManager *cache.Manager
}

// NewApp creates the primary store, the dashboard cache, the event publisher
// and the entry service. Close releases all of them.
func NewApp(ctx context.Context, cfg *config.Config, logger *applog.Logger, opts Options) (*App, error) {
	if logger == nil {
		logger = applog.Discard()
	}
	factory := opts.Factory
	if factory == nil {
		factory = backend.NewFactory(logger)
	}

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return nil, err
	}
	result, err := factory.CreateBackend(ctx, backendCfg)
	if err != nil {
		return nil, err
	}

	a := &App{
		Config:       cfg,
		Logger:       logger,
		Backend:      result.Backend,
		cacheManager: cache.NewManager(logger),
	}
	a.Dashboards = a.newDashboardCache(ctx)

	var publisher events.Publisher = events.Nop{}
	if cfg.AMQPURL != "" {
		client, err := events.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, logger)
		switch {
		case err == nil:
			a.events = client
			publisher = client
		case opts.RequireEvents:
			a.cacheManager.Stop()
			return nil, errors.Join(fmt.Errorf("connect to AMQP: %w", err), result.Close(), a.closeRedis())
		default:
			logger.Warn("AMQP unavailable, entry events will not be published", "error", err)
		}
	}

	a.Entries = services.NewEntryService(result.Backend, publisher, a.Dashboards, logger)
	return a, nil
}

// newDashboardCache prefers the shared Redis cache and falls back to an
// in-process LRU when Redis is not configured or unreachable.
func (a *App) newDashboardCache(ctx context.Context) cache.DashboardCache {
	if a.Config.RedisURL != "" {
		client, err := cache.NewRedisClient(ctx, a.Config.RedisURL)
		if err == nil {
			a.redis = client
			a.Logger.Info("Using shared Redis dashboard cache")
			return cache.NewRedisDashboards(client, "", a.Config.CacheTTL, a.Logger)
		}
		a.Logger.Warn("Redis unavailable, using in-process dashboard cache", "error", err)
	}

	local := cache.NewLocalDashboards(a.Config.CacheSize, a.Config.CacheTTL)
	a.cacheManager.Register(local)
	a.cacheManager.StartCleanup(a.Config.CacheTTL)
	return local
}

// NewGate builds the access gate: Google ID tokens, or trusted emails when
// authentication is disabled for local runs.
func (a *App) NewGate() *auth.Gate {
	var verifier auth.Verifier
	if a.Config.AuthDisabled {
		a.Logger.Warn("Authentication disabled: tokens are trusted as email addresses")
		verifier = auth.StaticVerifier{}
	} else {
		verifier = auth.NewGoogleVerifier(a.Config.GoogleClientID)
	}
	return auth.NewGate(verifier, a.Backend, auth.Options{
		StaticEmails: a.Config.AllowedEmails,
		CacheTTL:     a.Config.AllowListTTL,
		FetchTimeout: a.Config.AuthFetchTimeout,
	}, a.Logger)
}

// NewServer wires the HTTP API around the entry service.
func (a *App) NewServer() *apphttp.Server {
	return apphttp.NewServer(apphttp.Config{
		Addr:               ":" + a.Config.Port,
		RateLimitPerMinute: a.Config.RateLimitPerMinute,
		TrustedProxies:     a.Config.TrustedProxies,
		DebugAuth:          a.Config.AuthDisabled,
	}, a.Entries, a.NewGate(), a.Backend, a.Logger)
}

// NewMirrorWorker builds the event consumer that keeps the spreadsheet
// mirror and the shared cache current. Without a spreadsheet it only
// invalidates the cache.
func (a *App) NewMirrorWorker(ctx context.Context) (*worker.MirrorWorker, error) {
	backendCfg, err := backend.FromAppConfig(a.Config)
	if err != nil {
		return nil, err
	}
	mirror, err := backend.NewSheetsMirror(ctx, backendCfg, a.Logger)
	if err != nil {
		return nil, err
	}

	var target services.MirrorTarget
	if mirror != nil {
		target = mirror
		a.Logger.Info("Mirroring entries to Google Sheets", "sheet", a.Config.GoogleEntriesSheet)
	} else {
		a.Logger.Info("Google Sheets mirror disabled")
	}
	processor := services.NewMirrorProcessor(a.Backend, target, a.Dashboards,
		services.MirrorProcessorConfig{ReconcileInterval: a.Config.ReconcileInterval}, a.Logger)

	var consumer worker.Consumer
	if a.events != nil {
		consumer = a.events
	}
	return worker.NewMirrorWorker(consumer, processor, a.Logger), nil
}

// Describe summarizes the wiring for the startup log line.
func (a *App) Describe() []any {
	cacheKind := "local"
	if a.redis != nil {
		cacheKind = "redis"
	}
	return []any{
		applog.FieldBackend, a.Config.DataBackend,
		"cache", cacheKind,
		"events", strconv.FormatBool(a.events != nil),
		"auth_disabled", a.Config.AuthDisabled,
	}
}

// Close releases the cache, the publisher and the store.
func (a *App) Close() error {
	a.cacheManager.Stop()
	return errors.Join(a.Entries.Close(), a.closeRedis())
}

func (a *App) closeRedis() error {
	if a.redis == nil {
		return nil
	}
	return a.redis.Close()
}
