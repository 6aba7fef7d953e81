package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/haramkhor2011-ship-it/claims-app-sub001/internal/aggregate"
	"github.com/haramkhor2011-ship-it/claims-app-sub001/internal/api/middleware"
	"github.com/haramkhor2011-ship-it/claims-app-sub001/internal/api/server"
	"github.com/haramkhor2011-ship-it/claims-app-sub001/internal/config"
	"github.com/haramkhor2011-ship-it/claims-app-sub001/internal/logger"
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
	cfg, err := config.LoadAPIConfig(*configFile, *envPath)
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
			"service": "api-server",
		},
	})
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logger.Flush(2 * time.Second)
	logger.InfoCtx(ctx, "Starting Claims Admin API")

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

	// The API embeds the aggregate maintainer so operator-triggered
	// refreshes run in-process. Deployments running cmd/refresher
	// separately should set a long refresh.interval here.
	maintainer := aggregate.NewMaintainer(aggregate.Config{
		Interval:   cfg.Refresh.Interval,
		CycleCap:   cfg.Refresh.CycleCap,
		MonthsBack: cfg.Refresh.MonthsBack,
		SampleSize: cfg.Refresh.SampleSize,
	}, dataStore, verifier)

	// Initialize the API server
	apiServer := server.New(server.Config{
		Debug:        cfg.Debug,
		Host:         cfg.Server.Host,
		Port:         cfg.Server.Port,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
		Auth: middleware.AuthConfig{
			JWTPublicKey:   cfg.Auth.JWTPublicKey,
			ReadAPIKeys:    cfg.Auth.ReadAPIKeys,
			OperateAPIKeys: cfg.Auth.OperateAPIKeys,
			AdminAPIKeys:   cfg.Auth.AdminAPIKeys,
		},
	}, dataStore, maintainer)

	// Start the maintainer and the server
	errChan := make(chan error, 2)
	go func() {
		if err := maintainer.Start(ctx); err != nil {
			errChan <- fmt.Errorf("maintainer: %w", err)
		}
	}()
	go func() {
		if err := apiServer.Start(); err != nil {
			errChan <- fmt.Errorf("server: %w", err)
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

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.ErrorCtx(shutdownCtx, err)
	}
	if err := maintainer.Stop(shutdownCtx); err != nil {
		logger.ErrorCtx(shutdownCtx, err)
	}

	logger.InfoCtx(shutdownCtx, "API server stopped")
}
