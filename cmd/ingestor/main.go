package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/haramkhor2011-ship-it/claims-app-sub001/internal/ack"
	"github.com/haramkhor2011-ship-it/claims-app-sub001/internal/config"
	"github.com/haramkhor2011-ship-it/claims-app-sub001/internal/fetch"
	"github.com/haramkhor2011-ship-it/claims-app-sub001/internal/ingest"
	"github.com/haramkhor2011-ship-it/claims-app-sub001/internal/intake"
	"github.com/haramkhor2011-ship-it/claims-app-sub001/internal/logger"
	"github.com/haramkhor2011-ship-it/claims-app-sub001/internal/metrics"
	"github.com/haramkhor2011-ship-it/claims-app-sub001/internal/store"
)

var (
	configFile = flag.String("config", "", "Path to configuration file")
	envPath    = flag.String("env", "config/", "Path to environment files")
)

func main() {
	flag.Parse()

	// Load configuration
	config.ChdirRepoRoot()
	cfg, err := config.LoadIngestorConfig(*configFile, *envPath)
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize logger with sentry integration
	err = logger.Initialize(logger.Config{
		Debug:           cfg.Debug,
		SentryDSN:       cfg.SentryDSN,
		BreadcrumbLevel: zapcore.InfoLevel,
		Tags: map[string]string{
			"service": "ingestor",
		},
	})
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logger.Flush(2 * time.Second)
	logger.InfoCtx(ctx, "Starting Ingestor")

	// Connect to database
	db, err := gorm.Open(postgres.Open(cfg.Database.DSN()), &gorm.Config{})
	if err != nil {
		logger.FatalCtx(ctx, "Failed to connect to database", zap.Error(err))
	}

	// Configure connection pool
	if err := store.ConfigureConnectionPool(db, cfg.Database.MaxOpenConns, cfg.Database.MaxIdleConns, cfg.Database.ConnMaxLifetime, cfg.Database.ConnMaxIdleTime); err != nil {
		logger.FatalCtx(ctx, "Failed to configure connection pool", zap.Error(err))
	}
	logger.InfoCtx(ctx, "Connected to database",
		zap.Int("max_open_conns", cfg.Database.MaxOpenConns),
		zap.Int("max_idle_conns", cfg.Database.MaxIdleConns),
	)

	// Initialize store
	dataStore := store.NewPGStore(db)

	// Expose the scrape endpoint
	var metricsServer *http.Server
	if cfg.MetricsAddr != "" {
		metricsServer = metrics.Serve(cfg.MetricsAddr)
		logger.InfoCtx(ctx, "Serving metrics", zap.String("addr", cfg.MetricsAddr))
	}

	// Initialize the bounded intake queue
	queue := intake.NewQueue(cfg.Intake.Capacity, cfg.Intake.LowWaterMark)
	logger.InfoCtx(ctx, "Initialized intake queue",
		zap.Int("capacity", cfg.Intake.Capacity),
		zap.Int("low_water_mark", cfg.Intake.LowWaterMark),
	)

	// Initialize the acknowledger
	acker := ack.NewNoopAcker()
	if cfg.Ack.Enabled {
		acker, err = ack.NewJetStreamAcker(ctx, ack.Config{
			URL:            cfg.NATS.URL,
			StreamName:     cfg.NATS.StreamName,
			SubjectPrefix:  cfg.NATS.SubjectPrefix,
			MaxReconnects:  cfg.NATS.MaxReconnects,
			ReconnectWait:  cfg.NATS.ReconnectWait,
			ConnectionName: cfg.NATS.ConnectionName,
			MaxRetries:     uint64(cfg.Ack.MaxRetries),
		})
		if err != nil {
			logger.FatalCtx(ctx, "Failed to connect to NATS", zap.Error(err), zap.String("url", cfg.NATS.URL))
		}
		logger.InfoCtx(ctx, "Connected to NATS", zap.String("stream", cfg.NATS.StreamName))
	}
	defer acker.Close()

	// Initialize the ingestion pipeline
	pipeline := ingest.NewPipeline(ingest.Config{
		Workers:        cfg.Worker.Count,
		DocumentBudget: cfg.Worker.DocumentBudget,
		ArchiveDir:     cfg.Fetch.ArchiveDir,
	}, dataStore, queue, acker)

	// Select the fetch strategy. Exactly one runs per deployment.
	var fetcher fetch.Fetcher
	switch cfg.Fetch.Mode {
	case "localfs":
		fetcher = fetch.NewLocalFSFetcher(cfg.Fetch.InboxDir, dataStore, queue)
	case "poll":
		fetcher = fetch.NewPollFetcher(fetch.PollFetcherConfig{
			InboxDir:   cfg.Fetch.InboxDir,
			ArchiveDir: cfg.Fetch.ArchiveDir,
			Interval:   cfg.Fetch.PollInterval,
			Facilities: cfg.Fetch.Facilities,
			FanOut:     cfg.Fetch.FanOutLimit,
		}, dataStore, queue)
	default:
		logger.FatalCtx(ctx, "Unknown fetch mode", zap.String("mode", cfg.Fetch.Mode))
	}

	logger.InfoCtx(ctx, "Initialized ingestion pipeline",
		zap.String("fetch_mode", cfg.Fetch.Mode),
		zap.Int("workers", cfg.Worker.Count),
		zap.Duration("document_budget", cfg.Worker.DocumentBudget),
	)

	// Start the pipeline and the fetcher
	errChan := make(chan error, 2)
	go func() {
		if err := pipeline.Start(ctx); err != nil {
			errChan <- fmt.Errorf("pipeline: %w", err)
		}
	}()
	go func() {
		if err := fetcher.Start(ctx); err != nil {
			errChan <- fmt.Errorf("%s: %w", fetcher.Name(), err)
		}
	}()

	// Wait for interrupt signal or error
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.InfoCtx(ctx, "Received shutdown signal", zap.String("signal", sig.String()))
	case err := <-errChan:
		logger.ErrorCtx(ctx, err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	// Stop the fetcher first so nothing new is offered, then close the
	// queue so the workers drain what remains.
	if err := fetcher.Stop(shutdownCtx); err != nil {
		logger.ErrorCtx(shutdownCtx, err)
	}
	queue.Close()

	if err := pipeline.Stop(shutdownCtx); err != nil {
		logger.ErrorCtx(shutdownCtx, err)
	}
	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.ErrorCtx(shutdownCtx, err)
		}
	}
	cancel()

	logger.InfoCtx(shutdownCtx, "Ingestor stopped")
}
