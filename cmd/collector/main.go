package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/FortiumPartners/devpulse/common/logging"
	natsclient "github.com/FortiumPartners/devpulse/common/messaging/nats"
	"github.com/FortiumPartners/devpulse/internal/aggregator"
	"github.com/FortiumPartners/devpulse/internal/config"
	"github.com/FortiumPartners/devpulse/internal/deadletter"
	"github.com/FortiumPartners/devpulse/internal/gate"
	"github.com/FortiumPartners/devpulse/internal/handlers"
	"github.com/FortiumPartners/devpulse/internal/quality"
	"github.com/FortiumPartners/devpulse/internal/ratelimit"
	"github.com/FortiumPartners/devpulse/internal/server"
	"github.com/FortiumPartners/devpulse/internal/service"
	"github.com/FortiumPartners/devpulse/internal/storage"
	"github.com/FortiumPartners/devpulse/internal/streams"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize structured logging
	logger := logging.New(
		logging.ParseLevel(cfg.Logging.Level),
		cfg.Logging.Format,
	).With(logging.Service("collector"))
	logging.SetDefault(logger)

	slog.Info("Starting collector service",
		slog.Int("port", cfg.Server.Port),
		slog.String("log_level", cfg.Logging.Level),
		slog.String("log_format", cfg.Logging.Format),
	)
	if *configPath != "" {
		slog.Info("Loaded configuration", slog.String("config_path", *configPath))
	}

	// Initialize rate limiter
	var rateLimiter ratelimit.Limiter
	switch {
	case !cfg.Ingestion.RateLimitEnabled:
		rateLimiter = &ratelimit.NoOpLimiter{}
		log.Println("Rate limiting disabled in configuration")
	case cfg.Redis.Enabled:
		log.Printf("Initializing Redis rate limiter: %s", cfg.Redis.URL)
		limiter, err := ratelimit.NewRedisLimiter(
			cfg.Redis.URL,
			cfg.Ingestion.RateLimitRequests,
			cfg.Ingestion.RateLimitWindow,
		)
		if err != nil {
			log.Printf("WARNING: Failed to initialize Redis rate limiter: %v", err)
			log.Println("Falling back to in-process token bucket")
			rateLimiter = ratelimit.NewTokenBucket(cfg.Ingestion.RateLimitRequests, cfg.Ingestion.RateLimitWindow)
		} else {
			rateLimiter = limiter
			log.Printf("Rate limiting enabled: %d requests per %s", cfg.Ingestion.RateLimitRequests, cfg.Ingestion.RateLimitWindow)
		}
	default:
		rateLimiter = ratelimit.NewTokenBucket(cfg.Ingestion.RateLimitRequests, cfg.Ingestion.RateLimitWindow)
		log.Printf("In-process rate limiting enabled: %d requests per %s", cfg.Ingestion.RateLimitRequests, cfg.Ingestion.RateLimitWindow)
	}
	defer rateLimiter.Close()

	// Initialize the partitioned log
	var (
		jsClient *natsclient.JetStreamClient
		logMgr   *streams.Manager
	)
	jsClient, err = natsclient.NewJetStreamClient(natsclient.Config{
		URL:  cfg.NATS.URL,
		Name: "devpulse-collector",
	})
	if err != nil {
		log.Printf("WARNING: Failed to connect to NATS at %s: %v", cfg.NATS.URL, err)
		log.Println("Running without the partitioned log; records feed the aggregator in-process")
		jsClient = nil
	} else {
		logMgr = streams.NewManager(jsClient, logger.Logger)
		reconcileCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		if err := logMgr.Reconcile(reconcileCtx); err != nil {
			log.Fatalf("Failed to reconcile stream topology: %v", err)
		}
		cancel()
		log.Printf("Partitioned log ready (nats: %s)", cfg.NATS.URL)
	}

	// Initialize rollup storage
	var rollupStore storage.RollupStore
	if cfg.Postgres.Enabled {
		storeCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		pg, err := storage.NewPostgresStore(storeCtx, cfg.Postgres.URL)
		cancel()
		if err != nil {
			log.Fatalf("Failed to connect to Postgres: %v", err)
		}
		rollupStore = pg
		log.Println("Rollup storage: postgres")
	} else {
		rollupStore = storage.NewMemoryStore()
		log.Println("Rollup storage: in-memory (postgres disabled)")
	}
	defer rollupStore.Close()

	// Assemble the pipeline
	engine := quality.NewEngine(logger.Logger)

	var dlqPub deadletter.StreamPublisher
	if logMgr != nil {
		dlqPub = logMgr
	}
	dlq := deadletter.NewHandler(
		deadletter.NewStore(cfg.DeadLetter.Capacity),
		dlqPub,
		nil,
		cfg.DeadLetter.ReplayBudget,
		logger.Logger,
	)

	var gatePub gate.StreamPublisher
	if logMgr != nil {
		gatePub = logMgr
	}
	ingestGate := gate.New(
		gate.Config{MaxBatchSize: cfg.Ingestion.MaxBatchSize},
		engine,
		rateLimiter,
		gatePub,
		logger.Logger,
	)

	var aggPub aggregator.StreamPublisher
	if logMgr != nil {
		aggPub = logMgr
	}
	agg := aggregator.New(aggregator.Config{
		Windows:       cfg.Aggregation.WindowSizes,
		FlushInterval: cfg.Aggregation.FlushInterval,
		MaxBuckets:    cfg.Aggregation.MaxBuckets,
		Workers:       cfg.Aggregation.Workers,
		FlushTimeout:  cfg.Aggregation.FlushTimeout,
		Retry: aggregator.RetryPolicy{
			MaxAttempts:    cfg.Aggregation.RetryMaxAttempts,
			InitialBackoff: cfg.Aggregation.RetryBackoff,
			MaxBackoff:     10 * time.Second,
		},
	}, rollupStore, dlq, aggPub, logger.Logger)

	opts := service.Options{
		JetStream: jsClient,
		Logger:    logger.Logger,
	}
	if logMgr != nil {
		opts.Publisher = logMgr
		opts.Health = logMgr
	}
	collector := service.New(ingestGate, agg, dlq, engine, opts)

	if err := collector.Start(context.Background()); err != nil {
		log.Fatalf("Failed to start collector pipeline: %v", err)
	}

	// Initialize HTTP handlers
	handler := handlers.NewTelemetryHandler(collector)
	router := server.NewRouter(handler)

	// Create server with config values
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start server in goroutine
	go func() {
		log.Printf("Collector service listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.WriteTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	collector.Stop()
	if jsClient != nil {
		jsClient.Close()
	}

	log.Println("Server stopped")
}
