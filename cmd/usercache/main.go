// Command usercache serves the user API with a Redis cache-aside layer in
// front of the SQLite user store.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kengibson1111/go-user-cache/cache"
	"github.com/kengibson1111/go-user-cache/internal/config"
	"github.com/kengibson1111/go-user-cache/internal/httpapi"
	"github.com/kengibson1111/go-user-cache/internal/logging"
	"github.com/kengibson1111/go-user-cache/internal/storage/sqlite"
	"github.com/kengibson1111/go-user-cache/user"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := logging.New(cfg.Log.Level, cfg.IsProduction())
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("usercache stopped with error", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
	logger.Info("usercache stopped")
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	metrics, err := cache.NewMetrics(cfg.Cache.MetricsNamespace, reg)
	if err != nil {
		return fmt.Errorf("failed to register cache metrics: %w", err)
	}

	cacheSvc, err := cache.NewRedisService(cfg.Redis,
		cache.WithLogger(logger),
		cache.WithMetrics(metrics),
		cache.WithDefaultTTL(cfg.Cache.DefaultTTL),
		cache.WithScanCount(cfg.Cache.ScanCount),
		cache.WithBatchSize(cfg.Cache.BatchSize),
	)
	if err != nil {
		return err
	}
	defer func() {
		if err := cacheSvc.Close(); err != nil {
			logger.Warn("failed to close cache", zap.Error(err))
		}
	}()

	if !cacheSvc.IsConnected(ctx) {
		logger.Warn("Redis is unreachable, serving from the database until it recovers",
			zap.String("addr", cfg.Redis.RedisAddr))
	}

	db, err := sqlite.Open(ctx, cfg.Database.DSN, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.Warn("failed to close database", zap.Error(err))
		}
	}()

	codecOpt, err := codecOption(cfg.Cache.Codec)
	if err != nil {
		return err
	}
	repo := user.NewCachedRepository(db, cacheSvc,
		user.WithTTL(cfg.Cache.DefaultTTL),
		user.WithNegativeTTL(cfg.Cache.NegativeTTL),
		codecOpt,
	)

	router := httpapi.NewRouter(httpapi.Options{
		Service:        user.NewService(repo, logger),
		Cache:          cacheSvc,
		Logger:         logger,
		Gatherer:       reg,
		AllowedOrigins: cfg.Server.AllowedOrigins,
	})

	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      router.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Starting server",
			zap.String("address", cfg.Server.Addr),
			zap.String("environment", cfg.Environment),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func codecOption(name string) (user.CachedOption, error) {
	name = strings.ToLower(name)
	u, err := cache.NewCodec[*user.User](name)
	if err != nil {
		return nil, err
	}
	l, err := cache.NewCodec[[]user.User](name)
	if err != nil {
		return nil, err
	}
	n, err := cache.NewCodec[int64](name)
	if err != nil {
		return nil, err
	}
	return user.WithCodecs(u, l, n), nil
}
