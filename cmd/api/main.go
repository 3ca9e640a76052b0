package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/harliandi/go-avif/internal/codec"
	"github.com/harliandi/go-avif/internal/config"
	"github.com/harliandi/go-avif/internal/converter"
	"github.com/harliandi/go-avif/internal/handler"
	"github.com/harliandi/go-avif/internal/logging"
	"github.com/harliandi/go-avif/internal/middleware"
)

const shutdownTimeout = 30 * time.Second

func main() {
	cfg := config.Load()
	logger := logging.Init(os.Stdout, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
	logger.Info("server exited properly")
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	registry := codec.Default(cfg.AvifencPath, cfg.FallbackFormat)
	decoder := codec.NewAvifdec(cfg.AvifdecPath)
	conv := converter.New(registry,
		converter.WithLogger(logger),
		converter.WithCodec(cfg.Codec),
		converter.WithDecoder(decoder),
		converter.WithMaxFileSize(int64(cfg.MaxUploadMB)<<20),
		converter.WithCacheSize(cfg.CacheSize),
	)
	cd, err := conv.Codec()
	if err != nil {
		return err
	}
	logger.Info("codec selected",
		"codec", cd.Name(),
		"available", registry.Available(),
		"avif_decoder", decoder.Available(),
	)

	pool := converter.NewWorkerPool(conv, cfg.WorkerCount)
	pool.Start()
	defer pool.Stop()

	limiter := middleware.NewRateLimiter(cfg.RateLimitPerSec, cfg.RateLimitBurst,
		middleware.TrustProxyHeaders(cfg.TrustProxy))
	defer limiter.Close()

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           newRouter(cfg, pool, limiter),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      120 * time.Second, // strict searches make up to 11 encodes
		IdleTimeout:       120 * time.Second,
	}

	logger.Info("starting AVIF conversion API",
		"addr", server.Addr,
		"target_size_kb", cfg.TargetSizeKB,
		"max_upload_mb", cfg.MaxUploadMB,
		"max_concurrent", cfg.MaxConcurrent,
		"rate_limit", cfg.RateLimitPerSec,
		"workers", cfg.WorkerCount,
		"priority", cfg.DefaultPriority.String(),
		"strategy", cfg.DefaultStrategy.String(),
	)

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gCtx.Done()
		logger.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// newRouter wires the endpoints behind the middleware chain. conv is
// normally the worker pool.
func newRouter(cfg *config.Config, conv handler.Converter, limiter *middleware.RateLimiter) http.Handler {
	h := handler.New(conv, cfg.DefaultOptions(), cfg.MaxUploadMB)

	mux := http.NewServeMux()
	mux.HandleFunc("/convert", h.Convert)
	mux.HandleFunc("/info", h.Info)
	mux.HandleFunc("/decode", h.Decode)
	mux.HandleFunc("/health", h.Health)
	mux.Handle("/metrics", promhttp.Handler())

	// Outermost first: request ID and security headers are on every
	// response, rejections from the limiters included.
	return middleware.Chain(mux,
		middleware.RequestID,
		middleware.Security,
		limiter.Middleware,
		middleware.ConcurrencyLimit(cfg.MaxConcurrent),
		middleware.Recovery,
		middleware.Logger,
	)
}
