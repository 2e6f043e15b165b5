// Package main запускает HTTP-сервер портала поставщика.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"github.com/mmeshcher/supplier-portal/internal/blob"
	"github.com/mmeshcher/supplier-portal/internal/commerce"
	"github.com/mmeshcher/supplier-portal/internal/config"
	"github.com/mmeshcher/supplier-portal/internal/handler"
	"github.com/mmeshcher/supplier-portal/internal/middleware"
	"github.com/mmeshcher/supplier-portal/internal/pubsub"
	"github.com/mmeshcher/supplier-portal/internal/repository"
	"github.com/mmeshcher/supplier-portal/internal/service"
	"github.com/mmeshcher/supplier-portal/internal/shipment"
	"github.com/mmeshcher/supplier-portal/internal/trackingkey"
)

func main() {
	cfg, err := config.Parse()
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger initialization error: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	sugar := logger.Sugar()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	repo, err := repository.NewPostgresRepository(cfg.DatabaseURI)
	if err != nil {
		sugar.Fatalw("database initialization error", "error", err.Error())
	}
	defer repo.Close()

	opts := service.Options{
		NewClient: service.CommerceClientFactory(commerce.Config{
			Timeout:   cfg.RequestTimeout,
			RateLimit: cfg.StoreRateLimit,
			RateBurst: cfg.StoreRateBurst,
			Logger:    logger.Named("commerce"),
		}),
		PollInterval:      cfg.PollInterval,
		LowStockThreshold: cfg.LowStockThreshold,
		Logger:            logger,
	}

	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer rdb.Close()

		if err := rdb.Ping(ctx).Err(); err != nil {
			sugar.Fatalw("redis connection error", "addr", cfg.RedisAddr, "error", err.Error())
		}
		opts.KeyCache = trackingkey.NewRedisCache(rdb)
		opts.Publisher = pubsub.NewPublisher(rdb)
		sugar.Infow("redis enabled", "addr", cfg.RedisAddr)
	}

	if cfg.S3Bucket != "" {
		store, err := blob.NewS3Store(ctx, blob.Config{
			Bucket:   cfg.S3Bucket,
			Region:   cfg.S3Region,
			Endpoint: cfg.S3Endpoint,
			Prefix:   cfg.S3Prefix,
		})
		if err != nil {
			sugar.Fatalw("document storage initialization error", "error", err.Error())
		}
		opts.Blobs = store
		sugar.Infow("document storage enabled", "bucket", cfg.S3Bucket)
	}

	if cfg.TrackingAPIURL != "" {
		opts.Shipments = shipment.NewClient(cfg.TrackingAPIURL, cfg.TrackingAPIKey, cfg.RequestTimeout, logger.Named("shipment"))
	}

	svc := service.NewService(repo, opts)
	defer svc.Close()

	if cfg.JWTSecret == "" {
		sugar.Warn("JWT secret is not set, tokens issued elsewhere will be rejected")
	}
	authMiddleware := middleware.NewAuthMiddleware(cfg.JWTSecret)
	h := handler.NewHandler(svc, logger, authMiddleware)

	server := &http.Server{
		Addr:              cfg.RunAddress,
		Handler:           h.SetupRouter(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)

	// Запуск HTTP-сервера
	g.Go(func() error {
		sugar.Infow("starting supplier portal", "addr", cfg.RunAddress)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// Graceful shutdown при отмене контекста (сигнал или ошибка в другой горутине)
	g.Go(func() error {
		<-ctx.Done()
		sugar.Info("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		sugar.Info("server stopped gracefully")
		return nil
	})

	if err := g.Wait(); err != nil {
		sugar.Fatalw("application terminated with error", "error", err)
	}
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("parse log level: %w", err)
	}

	zcfg := zap.NewProductionConfig()
	zcfg.Level = zap.NewAtomicLevelAt(lvl)
	return zcfg.Build()
}
