// Payrisk - Payment failure prediction that deploys in 60 seconds.
// Copyright (c) 2025 opensource.finance
// Licensed under the Apache License 2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/opensource-finance/payrisk/internal/api"
	"github.com/opensource-finance/payrisk/internal/bus"
	"github.com/opensource-finance/payrisk/internal/cache"
	"github.com/opensource-finance/payrisk/internal/domain"
	"github.com/opensource-finance/payrisk/internal/feature"
	"github.com/opensource-finance/payrisk/internal/model"
	"github.com/opensource-finance/payrisk/internal/repository"
	"github.com/opensource-finance/payrisk/internal/rules"
	"github.com/opensource-finance/payrisk/internal/scoring"
	"github.com/opensource-finance/payrisk/internal/stats"
	"github.com/opensource-finance/payrisk/internal/worker"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	// Initialize structured logger
	logLevel := slog.LevelInfo
	if os.Getenv("PAYRISK_DEBUG") == "true" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	// Log startup
	slog.Info("starting payrisk",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)

	// Load configuration
	cfg := domain.DefaultConfig()

	// Check for Pro tier via environment
	if os.Getenv("PAYRISK_TIER") == "pro" {
		cfg = domain.ProConfig()
		slog.Info("running in Pro tier mode")
	}

	if path := os.Getenv("PAYRISK_MODEL_PATH"); path != "" {
		cfg.Model.ArtifactPath = path
	}

	slog.Info("configuration loaded",
		"tier", cfg.Tier,
		"repository", cfg.Repository.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
		"model_path", cfg.Model.ArtifactPath,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		slog.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Initialize Repository
	repo, err := repository.New(cfg.Repository)
	if err != nil {
		slog.Error("failed to initialize repository", "error", err)
		os.Exit(1)
	}
	defer repo.Close()
	slog.Info("repository initialized", "driver", cfg.Repository.Driver)

	// Initialize Cache
	cacheImpl, err := cache.New(cfg.Cache)
	if err != nil {
		slog.Error("failed to initialize cache", "error", err)
		os.Exit(1)
	}
	defer cacheImpl.Close()
	slog.Info("cache initialized", "type", cfg.Cache.Type)

	// Initialize EventBus
	busImpl, err := bus.New(cfg.EventBus)
	if err != nil {
		slog.Error("failed to initialize event bus", "error", err)
		os.Exit(1)
	}
	defer busImpl.Close()
	slog.Info("event bus initialized", "type", cfg.EventBus.Type)

	// Initialize Feature Pipeline
	pipeline := feature.NewPipeline()
	slog.Info("feature pipeline initialized", "columns", len(feature.Columns))

	// Initialize Model Store
	// A missing artifact is not fatal: the server starts degraded and
	// serves everything except /predict until a model is trained.
	store := model.NewStore(nil)
	if clf, lerr := model.Load(cfg.Model.ArtifactPath); lerr != nil {
		slog.Warn("no model artifact loaded - /predict unavailable until trained",
			"path", cfg.Model.ArtifactPath,
			"error", lerr,
		)
	} else {
		store.Swap(clf)
		slog.Info("model loaded",
			"path", cfg.Model.ArtifactPath,
			"version", clf.Version,
			"train_samples", clf.TrainSamples,
		)
	}

	// Initialize Label Rule Engine
	engine, err := rules.NewEngine()
	if err != nil {
		slog.Error("failed to initialize rule engine", "error", err)
		os.Exit(1)
	}

	// Load label rules from database, falling back to built-in defaults
	if err := loadRulesFromDatabase(ctx, repo, engine); err != nil {
		slog.Error("failed to load rules", "error", err)
		os.Exit(1)
	}
	slog.Info("rule engine initialized", "rules_count", engine.RulesCount())

	// Initialize Scoring Processor
	processor := scoring.NewProcessor()
	slog.Info("scoring processor initialized", "threshold", processor.Threshold)

	// Initialize Stats Service
	statsSvc := stats.NewService(repo, cacheImpl)
	slog.Info("stats service initialized")

	// Initialize async Worker (Pro tier)
	var asyncWorker *worker.Worker
	if cfg.Tier == domain.TierPro || os.Getenv("PAYRISK_ASYNC_WORKER") == "true" {
		asyncWorker = worker.NewWorker(busImpl, repo, pipeline, store, processor, statsSvc)

		// Get tenant IDs to process (from environment or default)
		tenantIDs := []string{}
		if envTenants := os.Getenv("PAYRISK_TENANTS"); envTenants != "" {
			tenantIDs = []string{envTenants}
		}

		workerCfg := worker.Config{
			TenantIDs: tenantIDs,
		}

		if err := asyncWorker.Start(workerCfg); err != nil {
			slog.Error("failed to start async worker", "error", err)
		} else {
			slog.Info("async worker started", "tenant_count", len(tenantIDs))
		}
	}

	// Initialize Server
	srv := api.NewServer(cfg.Server, repo, cacheImpl, busImpl, pipeline, store, processor, engine, statsSvc, Version, cfg.Model)

	// Start Server in goroutine
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("payrisk is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)

	printBanner(cfg, Version)

	// Wait for shutdown signal
	<-ctx.Done()
	slog.Info("shutting down...")

	// Stop async worker first
	if asyncWorker != nil {
		if err := asyncWorker.Stop(); err != nil {
			slog.Error("failed to stop async worker", "error", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("payrisk shutdown complete")
}

// GlobalTenantID is used for rules that apply to all tenants.
const GlobalTenantID = "*"

// loadRulesFromDatabase loads label rules from the database into the engine.
// If the database has none, the built-in default rules are loaded instead
// so training works out of the box.
func loadRulesFromDatabase(ctx context.Context, repo domain.Repository, engine *rules.Engine) error {
	dbRules, err := repo.ListLabelRules(ctx, GlobalTenantID)
	if err != nil {
		slog.Warn("failed to list rules from database", "error", err)
		return engine.LoadRules(rules.DefaultLabelRules())
	}

	if len(dbRules) > 0 {
		slog.Info("loading label rules from database", "count", len(dbRules))
		return engine.LoadRules(dbRules)
	}

	slog.Info("no label rules in database - loading built-in defaults")
	return engine.LoadRules(rules.DefaultLabelRules())
}

func printBanner(cfg *domain.Config, version string) {
	fmt.Println()
	fmt.Println("  ╔════════════════════════════════════════════╗")
	fmt.Println("  ║               ⚡ PAYRISK                    ║")
	fmt.Println("  ║      Payment Failure Prediction            ║")
	fmt.Println("  ║      Know before the money moves.          ║")
	fmt.Println("  ╚════════════════════════════════════════════╝")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Tier:     %s\n", cfg.Tier)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    GET  /                        - Demo dashboard")
	fmt.Println("    POST /api/predict             - Score a payment record")
	fmt.Println("    POST /api/predict/batch       - Score a batch of records")
	fmt.Println("    GET  /api/predictions/{id}    - Get prediction by ID")
	fmt.Println("    GET  /api/stats               - Prediction volume and flag rate")
	fmt.Println("    GET  /api/model               - Loaded model info")
	fmt.Println("    POST /api/model/reload        - Hot-reload model artifact")
	fmt.Println("    GET  /api/rules               - List label rules")
	fmt.Println("    POST /api/rules               - Create a label rule")
	fmt.Println("    POST /api/rules/reload        - Hot-reload rules from database")
	fmt.Println("    GET  /api/training-runs       - Training history")
	fmt.Println("    GET  /health                  - Health check")
	fmt.Println()
}
