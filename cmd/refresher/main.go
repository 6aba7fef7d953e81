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

	"github.com/haramkhor2011-ship-it/claims-app-sub001/internal/aggregate"
	"github.com/haramkhor2011-ship-it/claims-app-sub001/internal/config"
	"github.com/haramkhor2011-ship-it/claims-app-sub001/internal/logger"
	"github.com/haramkhor2011-ship-it/claims-app-sub001/internal/metrics"
	"github.com/haramkhor2011-ship-it/claims-app-sub001/internal/store"
	"github.com/haramkhor2011-ship-it/claims-app-sub001/internal/verify"
)

var (
	configFile = flag.String("config", "", "Path to configuration file")
	envPath    = flag.String("env", "config/", "Path to environment files")
)

func main() {
	flag.Parse()

	// Load configuration
	config.ChdirRepoRoot()
	cfg, err := config.LoadRefresherConfig(*configFile, *envPath)
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
			"service": "refresher",
		},
	})
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logger.Flush(2 * time.Second)
	logger.InfoCtx(ctx, "Starting Refresher")

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

	// Initialize store and verifier
	dataStore := store.NewPGStore(db)
	verifier := verify.NewVerifier(dataStore)

	// Expose the scrape endpoint
	var metricsServer *http.Server
	if cfg.MetricsAddr != "" {
		metricsServer = metrics.Serve(cfg.MetricsAddr)
		logger.InfoCtx(ctx, "Serving metrics", zap.String("addr", cfg.MetricsAddr))
	}

	// Initialize the aggregate maintainer
	maintainer := aggregate.NewMaintainer(aggregate.Config{
		Interval:   cfg.Refresh.Interval,
		CycleCap:   cfg.Refresh.CycleCap,
		MonthsBack: cfg.Refresh.MonthsBack,
		SampleSize: cfg.Refresh.SampleSize,
	}, dataStore, verifier)

	logger.InfoCtx(ctx, "Initialized aggregate maintainer",
		zap.Duration("interval", cfg.Refresh.Interval),
		zap.Int("cycle_cap", cfg.Refresh.CycleCap),
		zap.Int("months_back", cfg.Refresh.MonthsBack),
	)

	// Start the maintainer in a goroutine
	errChan := make(chan error, 1)
	go func() {
		if err := maintainer.Start(ctx); err != nil {
			errChan <- err
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

	// Cancel context to stop the maintainer
	cancel()

	// Give an in-flight refresh time to finish its run artifact
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := maintainer.Stop(shutdownCtx); err != nil {
		logger.ErrorCtx(shutdownCtx, err)
	}
	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.ErrorCtx(shutdownCtx, err)
		}
	}

	logger.InfoCtx(shutdownCtx, "Refresher stopped")
}
