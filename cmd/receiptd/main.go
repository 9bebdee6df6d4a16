package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"receipts/internal/app"
	"receipts/internal/config"
	"receipts/internal/domain"
	"receipts/internal/infra/db"
	httpinfra "receipts/internal/infra/http"
	"receipts/internal/infra/logging"
	"receipts/internal/infra/metrics"
	"receipts/internal/infra/ratelimit"
	"receipts/internal/usecase"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "receiptd: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load("")
	if err != nil {
		return err
	}
	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()
	gin.SetMode(gin.ReleaseMode)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("init receipts: %w", err)
	}
	defer a.Close()

	m := metrics.New()
	a.SetRecorder(m)

	store, err := db.NewStore(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("init index: %w", err)
	}
	defer store.Close()
	var index usecase.ReceiptIndex
	if store.Enabled() {
		repo := db.NewReceiptRepository(store.DB)
		index = repo
		a.Generate.Index = repo
	}

	limiter, closeLimiter := buildRateLimiter(ctx, cfg, logger)
	defer closeLimiter()

	srv := httpinfra.NewServer(cfg, httpinfra.ServerDeps{
		Generate:    a.Generate,
		Verify:      a.Verify,
		Checkpoint:  a.Checkpoint,
		Log:         a.Log,
		Index:       index,
		SigningKey:  a.SigningKey,
		RateLimiter: limiter,
		Metrics:     m,
		Logger:      logger,
	})
	httpServer := srv.HTTPServer()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("listening",
			zap.String("addr", cfg.HTTPAddr),
			zap.String("log", cfg.ReceiptLogPath),
			zap.String("hash_alg", cfg.HashAlg),
			zap.Bool("signed", a.Signer != nil),
			zap.Bool("sealed", a.Sealer != nil),
			zap.String("policy_bundle", a.Policy.BundleHash()),
		)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout())
		defer cancel()
		logger.Info("shutting down")
		return httpServer.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func buildRateLimiter(ctx context.Context, cfg config.Config, logger *zap.Logger) (domain.RateLimiter, func()) {
	noop := func() {}
	if cfg.RateLimitRequests <= 0 {
		return nil, noop
	}
	if cfg.RedisAddr != "" {
		limiter, client, err := ratelimit.NewRedisLimiter(ratelimit.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err == nil {
			pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
			err = client.Ping(pingCtx).Err()
			cancel()
			if err == nil {
				return limiter, func() { _ = client.Close() }
			}
			_ = client.Close()
		}
		logger.Warn("redis rate limiter unavailable, using in-memory limiter", zap.Error(err))
	}
	return ratelimit.NewMemoryLimiter(ratelimit.MemoryLimiterConfig{MaxKeys: cfg.RateLimitMaxKeys}), noop
}
