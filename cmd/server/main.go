package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"

	"fare/internal/app"
	"fare/internal/config"
	"fare/internal/handler"
	internalRedis "fare/internal/redis"
	"fare/internal/repository/postgres"
	"fare/internal/service"
)

// Terminal simulation runs stay readable for an hour before Redis expires them.
const simulationRetention = time.Hour

func main() {
	// Load .env if present; real deployments set variables directly.
	_ = godotenv.Load()

	// Load configuration.
	cfg := config.Load()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Initialize New Relic FIRST (before database so we can instrument DB).
	var nrApp *newrelic.Application
	var err error
	if cfg.NewRelic.Enabled && cfg.NewRelic.LicenseKey != "" {
		nrApp, err = newrelic.NewApplication(
			newrelic.ConfigAppName(cfg.NewRelic.AppName),
			newrelic.ConfigLicense(cfg.NewRelic.LicenseKey),
			newrelic.ConfigDistributedTracerEnabled(true),
			newrelic.ConfigAppLogForwardingEnabled(true),
		)
		if err != nil {
			log.Printf("failed to initialize New Relic: %v", err)
		} else {
			log.Printf("New Relic enabled: app=%s (with DB instrumentation)", cfg.NewRelic.AppName)
		}
	}

	// Initialize database with New Relic instrumentation.
	db, err := app.NewDatabase(ctx, cfg.Database, nrApp)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer db.Close()
	log.Println("Connected to PostgreSQL")

	// Initialize Redis with New Relic instrumentation.
	redisClient, err := app.NewRedisClient(ctx, cfg.Redis, nrApp)
	if err != nil {
		log.Fatalf("failed to connect to redis: %v", err)
	}
	defer redisClient.Close()
	log.Println("Connected to Redis")

	// Wire dependencies.
	server, cleanup := wireServer(db, redisClient, nrApp, cfg)
	defer cleanup()

	// Start server in goroutine.
	go func() {
		log.Printf("Starting server on port %s", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	// Graceful shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("server forced to shutdown: %v", err)
	}

	log.Println("Server exited")
}

// wireServer wires all dependencies and returns the HTTP server plus a
// cleanup function that stops the background workers.
func wireServer(db *sql.DB, redisClient *redis.Client, nrApp *newrelic.Application, cfg *config.Config) (*http.Server, func()) {
	// Initialize Redis stores.
	surgeStore := internalRedis.NewSurgeStateStore(redisClient)
	activityStore := internalRedis.NewActivityStore(redisClient)
	lockStore := internalRedis.NewLockStore(redisClient)
	runStore := internalRedis.NewRunStore(redisClient, simulationRetention)

	// Initialize repositories.
	ruleRepo := postgres.NewRuleRepository(db)
	overrideRepo := postgres.NewOverrideRepository(db)
	auditRepo := postgres.NewAuditRepository(db)

	// Initialize services.
	auditor := service.NewAsyncAuditor(auditRepo)
	auditor.Start()

	notificationService := service.NewNotificationService()
	overrideService := service.NewOverrideService(overrideRepo, notificationService, auditRepo)

	var factorProvider service.FactorProvider
	if cfg.Factors.BaseURL != "" {
		factorProvider = service.NewHTTPFactorProvider(cfg.Factors.BaseURL, cfg.Factors.Timeout)
	} else {
		factorProvider = service.NewNeutralFactorProvider()
		log.Println("FACTORS_BASE_URL not set, quoting with neutral factors")
	}

	quoteEngine := service.NewQuoteEngine(ruleRepo, surgeStore, overrideService, factorProvider, auditor, service.QuoteConfig{
		Currency:       cfg.Pricing.Currency,
		QuoteTTL:       cfg.Pricing.QuoteTTL,
		CellResolution: cfg.Pricing.CellResolution,
	})

	surgeService := service.NewSurgeStateService(surgeStore, activityStore, lockStore, ruleRepo, factorProvider, overrideService, service.SurgeConfig{
		StateTTL:       cfg.Surge.StateTTL,
		ActivityWindow: cfg.Surge.ActivityWindow,
		Workers:        cfg.Surge.Workers,
	})

	simulationEngine := service.NewSimulationEngine(runStore, auditRepo)

	// Periodic surge recomputation and override expiry.
	scheduler := cron.New()
	_, err := scheduler.AddFunc("@every "+cfg.Surge.SweepInterval.String(), func() {
		sweepCtx, sweepCancel := context.WithTimeout(context.Background(), cfg.Surge.SweepInterval)
		defer sweepCancel()
		if err := surgeService.Sweep(sweepCtx); err != nil {
			log.Printf("surge sweep failed: %v", err)
		}
		overrideService.ExpireDue(sweepCtx)
	})
	if err != nil {
		log.Fatalf("failed to schedule surge sweep: %v", err)
	}
	scheduler.Start()
	log.Printf("Surge sweep scheduled every %s", cfg.Surge.SweepInterval)

	// Initialize handlers.
	quoteHandler := handler.NewQuoteHandler(quoteEngine)
	surgeHandler := handler.NewSurgeHandler(surgeService)
	overrideHandler := handler.NewOverrideHandler(overrideService, overrideRepo)
	simulationHandler := handler.NewSimulationHandler(simulationEngine)

	// Create router.
	router := app.NewRouter(app.RouterDeps{
		QuoteHandler:      quoteHandler,
		SurgeHandler:      surgeHandler,
		OverrideHandler:   overrideHandler,
		SimulationHandler: simulationHandler,
		RedisClient:       redisClient,
		NewRelicApp:       nrApp,
	})

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	cleanup := func() {
		stopCtx := scheduler.Stop()
		<-stopCtx.Done()
		simulationEngine.Close()
		auditor.Close()
	}

	return server, cleanup
}
