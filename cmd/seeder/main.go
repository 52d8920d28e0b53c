package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"gitlab.com/leadpilot/api/lead-status-engine/internal/config"
	"gitlab.com/leadpilot/api/lead-status-engine/internal/model"
	"gitlab.com/leadpilot/api/lead-status-engine/internal/storage"
	"gitlab.com/leadpilot/api/lead-status-engine/internal/tenant"
	"gitlab.com/leadpilot/api/lead-status-engine/pkg/logger"
)

// Seeds fake leads into the database for local development and load testing.
func main() {
	cfg, err := config.LoadConfig("")
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}

	count := flag.Int("count", 100, "Number of leads to create")
	organizationID := flag.String("organization-id", cfg.Organization.ID, "Tenant the leads belong to")
	dsn := flag.String("dsn", cfg.Database.PostgresDSN, "PostgreSQL DSN")
	logLevel := flag.String("log-level", cfg.LogLevel, "Log level (debug, info, warn, error)")
	flag.Parse()

	if err := logger.Initialize(*logLevel); err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if *organizationID == "" {
		logger.Log.Fatal("organization-id is required")
	}

	repo, err := storage.NewPostgresRepo(*dsn, true)
	if err != nil {
		logger.Log.Fatal("Failed to connect to postgres", zap.Error(err))
	}
	leadRepo := storage.NewLeadRepoAdapter(repo)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	ctx = tenant.WithOrganizationID(ctx, *organizationID)

	start := time.Now()
	created := 0
	for i := 0; i < *count; i++ {
		lead := model.NewLead(func(l *model.Lead) {
			l.OrganizationID = *organizationID
			l.Status = model.StatusNew
		})
		if err := leadRepo.Save(ctx, lead); err != nil {
			logger.Log.Warn("Failed to create lead", zap.Int("index", i), zap.Error(err))
			continue
		}
		created++
	}

	logger.Log.Info("Seeding complete",
		zap.Int("requested", *count),
		zap.Int("created", created),
		zap.String("organization_id", *organizationID),
		zap.Duration("duration", time.Since(start)),
	)

	if err := repo.Close(ctx); err != nil {
		logger.Log.Warn("Failed to close postgres connection", zap.Error(err))
	}
}
