package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/MrSnakeDoc/ans/internal/config"
	"github.com/MrSnakeDoc/ans/internal/events"
	"github.com/MrSnakeDoc/ans/internal/httpserver"
	"github.com/MrSnakeDoc/ans/internal/httpserver/deps"
	"github.com/MrSnakeDoc/ans/internal/logger"
	"github.com/MrSnakeDoc/ans/internal/redis"
	"github.com/MrSnakeDoc/ans/internal/registry"
	"github.com/MrSnakeDoc/ans/internal/scheduler"
	"github.com/MrSnakeDoc/ans/internal/sources/keyring"
	"github.com/MrSnakeDoc/ans/internal/store"
	"github.com/MrSnakeDoc/ans/internal/store/memory"
	redisstore "github.com/MrSnakeDoc/ans/internal/store/redis"
	"github.com/MrSnakeDoc/ans/internal/store/sqlite"
	"github.com/MrSnakeDoc/ans/internal/tracing"
	"github.com/MrSnakeDoc/ans/internal/utils"
	"github.com/MrSnakeDoc/ans/internal/version"
)

type App struct {
	cfg      *config.Config
	logger   logger.Logger
	server   *httpserver.Server
	store    store.Store
	tracing  *tracing.Provider
	reloader *scheduler.KeyringReloader
	expiry   *scheduler.ExpiryWatcher
}

func New() (*App, error) {
	cfg := config.Load()

	loggerClient := logger.New(cfg.LogLevel, cfg.PrettyLog)
	ctx := context.Background()

	// Open the store early - fail fast if unavailable
	st, redisClient, err := openStore(ctx, cfg, loggerClient)
	if err != nil {
		return nil, err
	}
	loggerClient.Info("store initialized successfully",
		logger.String("store", cfg.Store))

	tp, err := tracing.NewProvider(ctx, tracing.Config{
		Exporter:    cfg.TraceExporter,
		Endpoint:    cfg.TraceEndpoint,
		SampleRate:  cfg.TraceSampleRate,
		ServiceName: tracing.DefaultServiceName,
	})
	if err != nil {
		utils.CloseLogged(st, "store", loggerClient)
		return nil, fmt.Errorf("failed to initialize tracing: %w", err)
	}

	sinks := []events.Sink{events.NewLogSink(loggerClient)}
	if cfg.EventStream && redisClient != nil {
		sinks = append(sinks, events.NewStreamSink(redisClient, events.DefaultStream, cfg.EventStreamMaxLen))
		loggerClient.Info("event stream enabled",
			logger.String("stream", events.DefaultStream))
	}
	bus := events.NewBus(loggerClient, sinks...)

	resolveTTL := cfg.ResolveCacheTTL
	if resolveTTL == 0 {
		resolveTTL = -1
	}
	reg := registry.New(st, registry.Options{
		Now:        time.Now,
		Events:     bus,
		Tracer:     tp.Tracer(),
		Logger:     loggerClient,
		ResolveTTL: resolveTTL,
	})

	// Create manual reload trigger channel
	reloadTrigger := make(chan struct{}, 1)

	kr := keyring.New()
	reloader := scheduler.NewKeyringReloader(
		cfg.KeyringFile,
		kr,
		st,
		loggerClient,
		cfg.ReloadInterval,
		reloadTrigger,
	)

	expiry := scheduler.NewExpiryWatcher(
		st,
		bus,
		reg.Now,
		loggerClient,
		cfg.ExpiryScanInterval,
	)

	// Dependencies passed to routes (extend as needed).
	d := deps.Deps{
		Logger:         loggerClient,
		StartTime:      time.Now(),
		Version:        version.Version,
		Commit:         version.Commit,
		BuildDate:      version.BuildDate,
		GoVersion:      version.GoVersion,
		TimeNow:        time.Now,
		AllowedHosts:   cfg.AllowedHosts,
		AllowedCIDRS:   cfg.AllowedCIDRS,
		TrustProxy:     cfg.TrustProxy,
		Registry:       reg,
		Keyring:        kr,
		Store:          st,
		StoreKind:      cfg.Store,
		Expiry:         expiry,
		TracingEnabled: tp.Enabled(),
		ReloadTrigger:  reloadTrigger,
		RateBurst:      cfg.RateBurst,
		RatePerMin:     cfg.RatePerMin,
	}

	server := httpserver.New(cfg.ListenPort, loggerClient, d)

	return &App{
		cfg:      cfg,
		logger:   loggerClient,
		server:   server,
		store:    st,
		tracing:  tp,
		reloader: reloader,
		expiry:   expiry,
	}, nil
}

// openStore builds the configured backend. The Redis client is returned as
// well so the event stream can share its connection pool.
func openStore(ctx context.Context, cfg *config.Config, log logger.Logger) (store.Store, *goredis.Client, error) {
	switch cfg.Store {
	case config.StoreRedis:
		log.Infof("Connecting to Redis at %s", cfg.RedisAddr)
		client, err := redis.New(ctx, redis.ConnectOptions{
			Addr:           cfg.RedisAddr,
			User:           cfg.RedisUser,
			Password:       cfg.RedisPassword,
			DB:             cfg.RedisDB,
			DialTimeout:    cfg.RedisDT,
			ReadTimeout:    cfg.RedisRT,
			WriteTimeout:   cfg.RedisWT,
			PoolSize:       cfg.RedisPoolSize,
			ConnectTimeout: cfg.RedisConnectTimeout,
			RetryInterval:  cfg.RedisRetryInterval,
			MaxWait:        cfg.RedisMaxWait,
			PingTimeout:    cfg.RedisPingTimeout,
			WarnThreshold:  cfg.RedisWarnThreshold,
		}, log)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		return redisstore.NewStore(client), client, nil

	case config.StoreSQLite:
		log.Info("opening sqlite database", logger.String("path", cfg.SQLitePath))
		st, err := sqlite.Open(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return st, nil, nil

	default:
		log.Warn("using in-memory store, state is lost on restart")
		return memory.New(), nil, nil
	}
}

func (a *App) Run() error {
	a.logger.Infof("🚀 Starting ans v%s on %s", version.Version, a.cfg.ListenPort)
	a.logger.Info(version.String())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load the keyring (grants opening balances) and keep it fresh
	if err := a.reloader.Start(ctx); err != nil {
		a.shutdownInfra()
		return fmt.Errorf("failed to start keyring reloader: %w", err)
	}
	a.logger.Info("keyring reloader started",
		logger.Duration("interval", a.cfg.ReloadInterval))

	if err := a.expiry.Start(ctx); err != nil {
		a.reloader.Stop()
		a.shutdownInfra()
		return fmt.Errorf("failed to start expiry watcher: %w", err)
	}
	a.logger.Info("expiry watcher started",
		logger.Duration("interval", a.cfg.ExpiryScanInterval))

	errCh := make(chan error, 1)
	go func() {
		if err := a.server.Start(); err != nil {
			errCh <- fmt.Errorf("http server error: %w", err)
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		a.logger.Info("⏳ Shutting down gracefully...")
	case runErr = <-errCh:
	}

	a.reloader.Stop()
	a.expiry.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()
	if err := a.server.Stop(shutdownCtx); err != nil && runErr == nil {
		runErr = fmt.Errorf("failed to stop server: %w", err)
	}

	if err := a.tracing.Shutdown(shutdownCtx); err != nil {
		a.logger.Warn("failed to flush traces", logger.Error(err))
	}
	a.shutdownInfra()

	if runErr != nil {
		return runErr
	}
	a.logger.Info("✅ ans stopped cleanly")
	return nil
}

func (a *App) shutdownInfra() {
	utils.CloseLogged(a.store, "store", a.logger)
	_ = a.logger.Sync()
}
