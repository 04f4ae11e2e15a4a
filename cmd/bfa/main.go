package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/boddenberg/pipeline-bfa-go/internal/config"
	"github.com/boddenberg/pipeline-bfa-go/internal/domain"
	"github.com/boddenberg/pipeline-bfa-go/internal/handler"
	"github.com/boddenberg/pipeline-bfa-go/internal/infra/cache"
	"github.com/boddenberg/pipeline-bfa-go/internal/infra/client"
	"github.com/boddenberg/pipeline-bfa-go/internal/infra/mock"
	"github.com/boddenberg/pipeline-bfa-go/internal/infra/observability"
	"github.com/boddenberg/pipeline-bfa-go/internal/infra/resilience"
	"github.com/boddenberg/pipeline-bfa-go/internal/port"
	"github.com/boddenberg/pipeline-bfa-go/internal/service"

	"go.uber.org/zap"
)

func main() {
	// --- Load .env file (for local development) ---
	_ = config.LoadDotEnv(".env")

	// --- Config ---
	cfg := config.Load()

	// --- Logger ---
	logger := observability.NewLogger(cfg.LogLevel, "pipeline-bfa")
	defer logger.Sync()

	logger.Info("configuration loaded",
		zap.Int("port", cfg.Port),
		zap.String("log_level", cfg.LogLevel),
		zap.Bool("use_mock_backend", cfg.UseMockBackend),
		zap.Duration("fetch_delay", cfg.FetchDelay),
		zap.Duration("confirm_delay", cfg.ConfirmDelay),
		zap.Duration("confirm_timeout", cfg.ConfirmTimeout),
		zap.Duration("http_timeout", cfg.HTTPTimeout),
		zap.Duration("cache_ttl", cfg.CacheTTL),
		zap.Int("max_retries", cfg.MaxRetries),
		zap.Int("max_concurrency", cfg.MaxConcurrency),
		zap.String("transition_policy", string(cfg.TransitionPolicy)),
		zap.Bool("dev_tools", cfg.DevTools),
	)

	// --- Tracing ---
	shutdown, err := observability.InitTracer(cfg.OTLPEndpoint, "pipeline-bfa")
	if err != nil {
		logger.Fatal("failed to init tracer", zap.Error(err))
	}
	defer shutdown(context.Background())

	// --- Metrics ---
	metrics := observability.NewMetrics()

	// --- Sources ---
	var (
		dealSource     port.DealSource
		signalSource   port.SignalSource
		momentumSource port.MomentumSource
		faults         handler.FaultInjector
	)

	if cfg.UseMockBackend {
		logger.Info("using simulated backend")
		backend := mock.NewBackend(cfg.FetchDelay, cfg.ConfirmDelay, logger)
		dealSource, signalSource, momentumSource = backend, backend, backend
		if cfg.DevTools {
			faults = backend
			logger.Warn("dev tools enabled: /v1/dev/faults can make backend calls fail")
		}
	} else {
		logger.Info("using HTTP pipeline backend", zap.String("backend_url", cfg.BackendURL))

		momentumCache := cache.New[*domain.MomentumSnapshot](cfg.CacheTTL)
		defer momentumCache.Close()

		resilienceCfg := resilience.Config{
			MaxRetries:     cfg.MaxRetries,
			InitialBackoff: cfg.InitialBackoff,
			MaxConcurrency: cfg.MaxConcurrency,
		}
		cb := resilience.NewCircuitBreaker("pipeline-backend")
		httpClient := &http.Client{Timeout: cfg.HTTPTimeout}

		pipelineClient := client.NewPipelineClient(httpClient, cfg.BackendURL, cb, resilienceCfg, momentumCache, metrics)
		dealSource, signalSource, momentumSource = pipelineClient, pipelineClient, pipelineClient
	}

	// --- Services ---
	deals := service.NewDealStore(dealSource, metrics, logger,
		service.WithTransitionPolicy(cfg.TransitionPolicy),
		service.WithConfirmationLimit(cfg.MaxConcurrency),
		service.WithConfirmTimeout(cfg.ConfirmTimeout),
	)
	signals := service.NewSignalStore(signalSource, metrics, logger)
	momentum := service.NewMomentumStore(momentumSource, metrics, logger)
	board := service.NewBoard(deals, logger)
	dashboard := service.NewDashboard(deals, signals, momentum, logger)

	// --- Router ---
	router := handler.NewRouter(handler.Services{
		Deals:     deals,
		Signals:   signals,
		Momentum:  momentum,
		Board:     board,
		Dashboard: dashboard,
		Faults:    faults,
	}, handler.Options{
		CORSOrigins:       cfg.CORSOrigins,
		ViewerTokenSecret: []byte(cfg.ViewerTokenSecret),
	}, metrics, logger)

	// --- Initial load ---
	appCtx, stopApp := context.WithCancel(context.Background())
	defer stopApp()
	go func() {
		state := deals.FetchAll(appCtx)
		logger.Info("initial pipeline load finished",
			zap.Int("deals", len(state.Deals)),
			zap.String("error", state.Error),
		)
	}()

	// --- Server ---
	srv := &http.Server{
		Addr:        fmt.Sprintf(":%d", cfg.Port),
		Handler:     router,
		ReadTimeout: 10 * time.Second,
		// no WriteTimeout: /v1/deals/stream is long-lived
		IdleTimeout: 60 * time.Second,
		BaseContext: func(net.Listener) context.Context { return appCtx },
	}
	// request contexts derive from appCtx, so open event streams end on shutdown
	srv.RegisterOnShutdown(stopApp)

	// --- Graceful shutdown ---
	go func() {
		logger.Info("server starting", zap.Int("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("server shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal("server forced shutdown", zap.Error(err))
	}

	logger.Info("server stopped")
}
