package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"

	"github.com/MrSnakeDoc/balmgr/internal/balancer"
	"github.com/MrSnakeDoc/balmgr/internal/compliance"
	"github.com/MrSnakeDoc/balmgr/internal/config"
	"github.com/MrSnakeDoc/balmgr/internal/httpserver"
	"github.com/MrSnakeDoc/balmgr/internal/httpserver/deps"
	"github.com/MrSnakeDoc/balmgr/internal/index"
	"github.com/MrSnakeDoc/balmgr/internal/logger"
	"github.com/MrSnakeDoc/balmgr/internal/metrics"
	"github.com/MrSnakeDoc/balmgr/internal/redis"
	"github.com/MrSnakeDoc/balmgr/internal/scheduler"
	redisstore "github.com/MrSnakeDoc/balmgr/internal/store/redis"
	"github.com/MrSnakeDoc/balmgr/internal/transport"
	"github.com/MrSnakeDoc/balmgr/internal/version"
)

type App struct {
	cfg         *config.Config
	logger      logger.Logger
	server      *httpserver.Server
	redisClient *goredis.Client
	fleet       *scheduler.Fleet
}

// New wires the daemon from the environment.
func New(ctx context.Context) (*App, error) {
	cfg := config.Load()
	loggerClient := logger.New(cfg.LogLevel, cfg.PrettyLog)

	var profile compliance.Profile
	if cfg.ProfileFile != "" {
		p, err := compliance.LoadProfile(cfg.ProfileFile)
		if err != nil {
			return nil, err
		}
		profile = p
		loggerClient.Info("compliance profile loaded",
			logger.String("file", cfg.ProfileFile),
			logger.Int("clusters", len(p)),
			logger.Bool("enforce", cfg.Enforce))
	}

	// Redis is optional: the memory index always receives every publish.
	var (
		redisClient *goredis.Client
		snapshots   deps.SnapshotReader
		memIndex    = index.NewMemoryIndex(cfg.ChangeHistory)
		publishers  = scheduler.Publishers{memIndex}
	)
	if cfg.RedisAddr != "" {
		c, err := redis.New(ctx, redis.ConnectOptions{
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
		}, loggerClient)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		redisClient = c
		store := redisstore.NewStore(c, cfg.RedisClusterTTL)
		publishers = append(publishers, store)
		snapshots = store
	} else {
		loggerClient.Info("redis not configured, publishing to memory only")
	}

	m := metrics.New()
	if err := m.Register(prometheus.DefaultRegisterer); err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}

	httpClient := transport.New(transport.Options{
		Username:           cfg.Client.Username,
		Password:           cfg.Client.Password,
		InsecureSkipVerify: cfg.Client.InsecureSkipVerify,
		Timeout:            cfg.Client.RequestTimeout,
		UserAgent:          version.UserAgent(),
	})

	var exec balancer.Executor = balancer.InlineExecutor{}
	if cfg.Client.ParseWorkers > 0 {
		exec = balancer.NewPoolExecutor(cfg.Client.ParseWorkers)
	}

	pollers := make([]*scheduler.Poller, 0, len(cfg.Endpoints))
	for _, ep := range cfg.Endpoints {
		client, err := balancer.New(ep.URL,
			balancer.WithName(ep.Name),
			balancer.WithDoer(httpClient),
			balancer.WithExecutor(exec),
			balancer.WithLogger(loggerClient))
		if err != nil {
			return nil, err
		}
		pollers = append(pollers, scheduler.NewPoller(client, publishers, m, loggerClient, scheduler.PollerOptions{
			Interval: cfg.PollInterval,
			Profile:  profile,
			Enforce:  cfg.Enforce,
			Force:    cfg.EnforceForce,
		}))
	}
	fleet, err := scheduler.NewFleet(loggerClient, pollers...)
	if err != nil {
		return nil, err
	}

	d := deps.Deps{
		Logger:       loggerClient,
		StartTime:    time.Now(),
		Version:      version.Version,
		Commit:       version.Commit,
		BuildDate:    version.BuildDate,
		GoVersion:    version.GoVersion,
		TimeNow:      time.Now,
		AllowedCIDRS: cfg.AllowedCIDRS,
		TrustProxy:   cfg.TrustProxy,
		Fleet:        fleet,
		Gatherer:     prometheus.DefaultGatherer,
		RedisClient:  redisClient,
		Index:        memIndex,
		Snapshots:    snapshots,
	}

	return &App{
		cfg:         cfg,
		logger:      loggerClient,
		server:      httpserver.New(cfg, loggerClient, d),
		redisClient: redisClient,
		fleet:       fleet,
	}, nil
}

// Run starts the pollers and the HTTP server, and blocks until ctx is done
// or the server fails.
func (a *App) Run(ctx context.Context) error {
	a.logger.Infof("🚀 Starting balmgr v%s on %s", version.Version, a.cfg.ListenPort)
	a.logger.Infof("balmgr %s (commit=%s, built=%s, go=%s)",
		version.Version, version.Commit, version.BuildDate, version.GoVersion)

	if err := a.fleet.Start(ctx); err != nil {
		return fmt.Errorf("failed to start pollers: %w", err)
	}
	a.logger.Info("pollers started",
		logger.Int("endpoints", len(a.cfg.Endpoints)),
		logger.Duration("interval", a.cfg.PollInterval))

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

	a.fleet.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()
	if err := a.server.Stop(shutdownCtx); err != nil && runErr == nil {
		runErr = fmt.Errorf("failed to stop server: %w", err)
	}

	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			a.logger.Warnf("failed to close redis: %v", err)
		} else {
			a.logger.Info("✅ Redis closed cleanly")
		}
	}

	_ = a.logger.Sync()
	if runErr == nil {
		a.logger.Info("✅ balmgr stopped cleanly")
	}
	return runErr
}

// Serve builds and runs the daemon until SIGINT or SIGTERM.
func Serve() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := New(ctx)
	if err != nil {
		return err
	}
	return a.Run(ctx)
}
