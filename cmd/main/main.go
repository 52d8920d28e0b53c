package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"gitlab.com/leadpilot/api/lead-status-engine/internal/config"
	"gitlab.com/leadpilot/api/lead-status-engine/internal/engine"
	"gitlab.com/leadpilot/api/lead-status-engine/internal/events"
	"gitlab.com/leadpilot/api/lead-status-engine/internal/healthcheck"
	"gitlab.com/leadpilot/api/lead-status-engine/internal/observer"
	"gitlab.com/leadpilot/api/lead-status-engine/internal/scheduler"
	"gitlab.com/leadpilot/api/lead-status-engine/internal/storage"
	"gitlab.com/leadpilot/api/lead-status-engine/pkg/logger"
	"gitlab.com/leadpilot/api/lead-status-engine/pkg/utils"
)

func main() {
	// Set timezone to UTC
	time.Local = time.UTC

	// Load configuration
	cfg, err := config.LoadConfig("")
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	if err := logger.Initialize(cfg.LogLevel); err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	metricsEnabled := cfg.Metrics.Enabled
	observer.InitMetrics(metricsEnabled)

	logger.Log.Info("Starting Lead Status Engine",
		zap.String("environment", cfg.Environment),
		zap.String("organization_id", cfg.Organization.ID),
		zap.Bool("scheduler_enabled", cfg.Scheduler.Enabled),
	)

	// Initialize repositories
	postgresRepo, err := initPostgresRepo(cfg.Database.PostgresDSN, cfg.Database.PostgresAutoMigrate)
	if err != nil {
		logger.Log.Fatal("Failed to initialize Postgres repository", zap.Error(err))
	}
	leadRepo := storage.NewLeadRepoAdapter(postgresRepo)
	auditRepo := storage.NewAuditLogRepoAdapter(postgresRepo)

	// Initialize event publisher
	var publisher events.Publisher = events.NoopPublisher{}
	if cfg.NATS.Enabled {
		jsPublisher, err := events.NewJetStreamPublisher(cfg.NATS.URL, cfg.NATS.EventsStream, cfg.NATS.SubjectPrefix)
		if err != nil {
			logger.Log.Fatal("Failed to initialize JetStream publisher", zap.Error(err))
		}
		publisher = jsPublisher
	} else {
		logger.Log.Info("NATS disabled, status change events will not be published")
	}

	// Create the transition engine
	transitionEngine := engine.NewEngine(leadRepo, auditRepo, publisher)

	// Create the due-lead scheduler
	leadScheduler, err := scheduler.NewScheduler(
		cfg.Scheduler.WorkerPool,
		cfg.Scheduler.Actor,
		cfg.Organization.ID,
		transitionEngine,
		logger.Log,
	)
	if err != nil {
		logger.Log.Fatal("Failed to initialize scheduler", zap.Error(err))
	}
	if cfg.Scheduler.Enabled {
		if err := leadScheduler.Start(cfg.Scheduler.CronSpec); err != nil {
			logger.Log.Fatal("Failed to start scheduler", zap.Error(err))
		}
	}

	// Create health check server
	healthServer := healthcheck.NewServer(strconv.Itoa(cfg.Server.Port), logger.Log)
	healthServer.RegisterReadinessCheck("postgres", func(ctx context.Context) error {
		_, err := transitionEngine.GetDueLeads(ctx, cfg.Organization.ID)
		return err
	})

	if metricsEnabled {
		healthServer.RegisterMetricsHandler(promhttp.Handler())
		logger.Log.Info("Metrics endpoint enabled", zap.String("path", "/metrics"), zap.Int("port", cfg.Server.Port))
	} else {
		logger.Log.Info("Metrics endpoint disabled for environment", zap.String("environment", cfg.Environment))
	}

	healthServer.Start()

	logger.Log.Info("Health check endpoints available",
		zap.String("health", fmt.Sprintf("http://localhost:%d/health", cfg.Server.Port)),
		zap.String("readiness", fmt.Sprintf("http://localhost:%d/ready", cfg.Server.Port)),
	)

	// Wait for termination signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	logger.Log.Info("Received termination signal", zap.String("signal", sig.String()))

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	logger.Log.Info("Starting graceful shutdown", zap.Duration("timeout", 30*time.Second))

	var wg sync.WaitGroup
	wg.Add(3)

	// Shutdown scheduler (waits for in-flight batch work)
	utils.SafeGo(func() {
		defer wg.Done()
		logger.Log.Info("[shutdown] Stopping scheduler")
		start := time.Now()
		leadScheduler.Stop()
		logger.Log.Info("[shutdown] Scheduler stopped",
			zap.Duration("duration", time.Since(start)))
	}, func(r interface{}, stack []byte) {
		logger.Log.Error("[shutdown] Panic while stopping scheduler",
			zap.Any("panic", r),
			zap.ByteString("stack", stack),
		)
		wg.Done()
	})

	// Shutdown health check server (includes metrics if enabled)
	utils.SafeGo(func() {
		defer wg.Done()
		logger.Log.Info("[shutdown] Stopping health check server")
		start := time.Now()
		if err := healthServer.Stop(shutdownCtx); err != nil {
			logger.Log.Error("[shutdown] Error stopping health check server", zap.Error(err))
		} else {
			logger.Log.Info("[shutdown] Health check server stopped",
				zap.Duration("duration", time.Since(start)))
		}
	}, func(r interface{}, stack []byte) {
		logger.Log.Error("[shutdown] Panic while stopping health check server",
			zap.Any("panic", r),
			zap.ByteString("stack", stack),
		)
		wg.Done()
	})

	// Close database and NATS connections
	utils.SafeGo(func() {
		defer wg.Done()

		logger.Log.Info("[shutdown] Closing PostgreSQL connection")
		pgStart := time.Now()
		if err := postgresRepo.Close(shutdownCtx); err != nil {
			logger.Log.Error("[shutdown] Failed to close PostgreSQL connection", zap.Error(err))
		} else {
			logger.Log.Info("[shutdown] PostgreSQL connection closed",
				zap.Duration("duration", time.Since(pgStart)))
		}

		logger.Log.Info("[shutdown] Closing event publisher")
		natsStart := time.Now()
		publisher.Close()
		logger.Log.Info("[shutdown] Event publisher closed",
			zap.Duration("duration", time.Since(natsStart)))
	}, func(r interface{}, stack []byte) {
		logger.Log.Error("[shutdown] Panic while closing connections",
			zap.Any("panic", r),
			zap.ByteString("stack", stack),
		)
		wg.Done()
	})

	// Wait with a timeout for all components to shut down
	waitCh := make(chan struct{})
	go func() {
		wg.Wait()
		close(waitCh)
	}()

	select {
	case <-waitCh:
		logger.Log.Info("[shutdown] All components stopped gracefully")
	case <-shutdownCtx.Done():
		logger.Log.Warn("[shutdown] Graceful shutdown timed out, forcing exit")
	}

	logger.Log.Info("Lead Status Engine shutdown complete")
}

// Initialize PostgreSQL repository
func initPostgresRepo(dsn string, autoMigrate bool) (*storage.PostgresRepo, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres DSN is required")
	}

	repo, err := storage.NewPostgresRepo(dsn, autoMigrate)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize postgres repository: %w", err)
	}

	logger.Log.Info("Initialized PostgreSQL repository")
	return repo, nil
}
