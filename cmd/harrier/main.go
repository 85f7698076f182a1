// Harrier - Commission statement reconciliation for independent agencies.
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

	"github.com/joho/godotenv"

	"github.com/agencyops/harrier/internal/api"
	"github.com/agencyops/harrier/internal/bus"
	"github.com/agencyops/harrier/internal/cache"
	"github.com/agencyops/harrier/internal/domain"
	"github.com/agencyops/harrier/internal/exclusion"
	"github.com/agencyops/harrier/internal/history"
	"github.com/agencyops/harrier/internal/recon"
	"github.com/agencyops/harrier/internal/repository"
	"github.com/agencyops/harrier/internal/worker"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	// Load .env if present; real env vars win.
	_ = godotenv.Load()

	// Initialize structured logger
	logLevel := slog.LevelInfo
	if os.Getenv("HARRIER_DEBUG") == "true" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	// Log startup
	slog.Info("starting harrier",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)

	// Load configuration
	cfg := domain.DefaultConfig()

	// Check for Pro tier via environment
	if os.Getenv("HARRIER_TIER") == "pro" {
		cfg = domain.ProConfig()
		slog.Info("running in Pro tier mode")
	}

	slog.Info("configuration loaded",
		"tier", cfg.Tier,
		"repository", cfg.Repository.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
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

	// Initialize Custom Exclusion Engine
	custom, err := exclusion.NewCustomEngine()
	if err != nil {
		slog.Error("failed to initialize custom rule engine", "error", err)
		os.Exit(1)
	}
	defer custom.Close()

	// Load custom rules from database (no hardcoded defaults - configure via API)
	tenantID := os.Getenv("HARRIER_TENANT")
	if err := loadCustomRulesFromDatabase(ctx, repo, custom, tenantID); err != nil {
		slog.Error("failed to load custom rules", "error", err)
		os.Exit(1)
	}
	slog.Info("custom rule engine initialized", "rules_count", custom.RulesCount())

	// Initialize History Service (prior-period resolution)
	historySvc := history.NewService(repo, cacheImpl)
	slog.Info("history service initialized")

	// Initialize Validation Service
	service := recon.NewService(repo, cacheImpl, busImpl, historySvc, custom)
	slog.Info("validation service initialized", "engine_version", recon.EngineVersion)

	// Initialize async Worker (Pro tier)
	var asyncWorker *worker.Worker
	if cfg.Tier == domain.TierPro || os.Getenv("HARRIER_ASYNC_WORKER") == "true" {
		asyncWorker = worker.NewWorker(busImpl, service)

		// Get tenant IDs to process (from environment or default)
		tenantIDs := []string{}
		if tenantID != "" {
			tenantIDs = []string{tenantID}
		}

		workerCfg := worker.Config{
			TenantIDs:   tenantIDs,
			WorkerCount: 5,
		}

		if err := asyncWorker.Start(workerCfg); err != nil {
			slog.Error("failed to start async worker", "error", err)
		} else {
			slog.Info("async worker started", "tenant_count", len(tenantIDs))
		}
	}

	// Initialize Server
	srv := api.NewServer(cfg.Server, repo, cacheImpl, busImpl, service, custom, Version)

	// Start Server in goroutine
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("harrier is ready",
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

	slog.Info("harrier shutdown complete")
}

// loadCustomRulesFromDatabase loads the tenant's stored exclusion rules into
// the engine. All rules must be configured via POST /rules - no hardcoded
// defaults.
func loadCustomRulesFromDatabase(ctx context.Context, repo domain.Repository, custom *exclusion.CustomEngine, tenantID string) error {
	if tenantID == "" {
		slog.Info("no HARRIER_TENANT set - custom rules load via POST /rules/reload per tenant")
		return nil
	}

	dbRules, err := repo.ListCustomRules(ctx, tenantID)
	if err != nil {
		slog.Warn("failed to list custom rules from database", "error", err)
		return nil // Start with empty rules - they can be added via API
	}

	if len(dbRules) > 0 {
		slog.Info("loading custom rules from database", "tenant_id", tenantID, "count", len(dbRules))
		return custom.LoadRules(dbRules)
	}

	slog.Info("no custom rules in database - configure via POST /rules API")
	return nil
}

func printBanner(cfg *domain.Config, version string) {
	fmt.Println()
	fmt.Println("  ╔════════════════════════════════════════════╗")
	fmt.Println("  ║               🦅 HARRIER                   ║")
	fmt.Println("  ║   Commission Statement Reconciliation      ║")
	fmt.Println("  ║      Every basis point accounted for.      ║")
	fmt.Println("  ╚════════════════════════════════════════════╝")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Tier:     %s\n", cfg.Tier)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    POST /statements           - Upload a carrier statement CSV")
	fmt.Println("    GET  /statements/{id}      - Get statement header by ID")
	fmt.Println("    GET  /statements/{id}/runs - List validation runs for a statement")
	fmt.Println("    POST /validate             - Reconcile a stored statement or inline rows")
	fmt.Println("    GET  /runs/{id}            - Get validation run by ID")
	fmt.Println("    GET  /ratetables           - List rate tables")
	fmt.Println("    POST /ratetables           - Create a rate table")
	fmt.Println("    GET  /rules                - List loaded custom exclusion rules")
	fmt.Println("    POST /rules                - Create a custom exclusion rule")
	fmt.Println("    POST /rules/reload         - Hot-reload rules from database")
	fmt.Println("    GET  /health               - Health check")
	fmt.Println()
}
