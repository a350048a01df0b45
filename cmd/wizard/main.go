// Wizard backend server — HTTP API, prompt scheduler, processing engine
// and the WebSocket event stream.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/Juryyy/DP-BE-Redis-sub000/pkg/api"
	"github.com/Juryyy/DP-BE-Redis-sub000/pkg/cache"
	"github.com/Juryyy/DP-BE-Redis-sub000/pkg/cleanup"
	"github.com/Juryyy/DP-BE-Redis-sub000/pkg/config"
	"github.com/Juryyy/DP-BE-Redis-sub000/pkg/database"
	"github.com/Juryyy/DP-BE-Redis-sub000/pkg/engine"
	"github.com/Juryyy/DP-BE-Redis-sub000/pkg/events"
	"github.com/Juryyy/DP-BE-Redis-sub000/pkg/llm"
	"github.com/Juryyy/DP-BE-Redis-sub000/pkg/queue"
	"github.com/Juryyy/DP-BE-Redis-sub000/pkg/services"
	"github.com/Juryyy/DP-BE-Redis-sub000/pkg/version"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	configPath := flag.String("config",
		getEnv("CONFIG_FILE", "./config.yaml"),
		"Path to the YAML configuration file")
	flag.Parse()

	// Load .env before reading any configuration from the environment.
	if err := godotenv.Load(); err != nil {
		slog.Debug("No .env file, continuing with existing environment", "error", err)
	}

	slog.Info("Starting wizard backend", "version", version.Full(), "config", *configPath)

	ctx := context.Background()

	// 1. Configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	// 2. PostgreSQL (applies embedded migrations on startup)
	dbConfig, err := database.LoadConfigFromEnv()
	if err != nil {
		slog.Error("Failed to load database config", "error", err)
		os.Exit(1)
	}

	dbClient, err := database.NewClient(ctx, dbConfig)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			slog.Error("Error closing database client", "error", err)
		}
	}()
	slog.Info("Connected to PostgreSQL database")

	// 3. Redis hot tier
	cacheClient, err := cache.New(ctx, cache.LoadConfigFromEnv())
	if err != nil {
		slog.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := cacheClient.Close(); err != nil {
			slog.Error("Error closing Redis client", "error", err)
		}
	}()
	slog.Info("Connected to Redis")

	// 4. Domain services
	db := dbClient.DB()
	sessionService := services.NewSessionService(db, cacheClient, cfg.Session.TTL)
	fileService := services.NewFileService(db, cacheClient, cfg.Session.TTL)
	promptService := services.NewPromptService(db, cacheClient, cfg.Session.TTL)
	conversationService := services.NewConversationService(db, cacheClient, cfg.Session.ConversationTTL)
	resultService := services.NewResultService(db, cacheClient, cfg.Session.TTL)
	registryService := services.NewRegistryService(db, cfg.LLM.PreferredModels)
	slog.Info("Services initialized")

	// 5. LLM providers and gateway factory
	providers, err := llm.BuildProviders(ctx, cfg.LLM)
	if err != nil {
		slog.Error("Failed to build LLM providers", "error", err)
		os.Exit(1)
	}
	factory := llm.NewFactory(providers, registryService, cfg.LLM)
	slog.Info("LLM providers initialized", "count", len(providers))

	// 6. Event streaming: publisher, catchup store, WebSocket manager and
	// the dedicated LISTEN connection
	publisher := events.NewPublisher(db)
	eventStore := events.NewStore(db)
	connManager := events.NewConnectionManager(eventStore, cfg.Server.WSWriteTimeout)

	listener := events.NewListener(dbClient.DSN(), connManager)
	if err := listener.Start(ctx); err != nil {
		slog.Error("Failed to start notification listener", "error", err)
		os.Exit(1)
	}
	defer listener.Stop()
	connManager.SetListener(listener)
	slog.Info("Event streaming initialized")

	// 7. Processing engine and scheduler
	executor := engine.NewExecutor(
		sessionService, fileService, promptService,
		conversationService, resultService,
		factory, publisher, cfg.Chunking,
	)

	priorityQueue := queue.NewPriorityQueue(cacheClient)
	scheduler := queue.NewScheduler(priorityQueue, sessionService, promptService, executor, cfg.Queue)
	scheduler.Start(ctx)
	slog.Info("Scheduler started", "capacity", cfg.Queue.MaxConcurrentProcessing)

	// 8. Retention sweep
	cleanupService := cleanup.NewService(cfg.Cleanup, sessionService, priorityQueue, eventStore)
	cleanupService.Start(ctx)
	defer cleanupService.Stop()

	// 9. HTTP server
	httpServer := api.NewServer(api.Deps{
		Config:       cfg.Server,
		DB:           dbClient,
		Cache:        cacheClient,
		Sessions:     sessionService,
		Files:        fileService,
		Prompts:      promptService,
		Conversation: conversationService,
		Results:      resultService,
		Registry:     registryService,
		Queue:        priorityQueue,
		Scheduler:    scheduler,
		Executor:     executor,
		Manager:      connManager,
	})

	errCh := make(chan error, 1)
	go func() {
		if err := httpServer.Start(); err != nil {
			slog.Error("HTTP server error", "error", err)
			errCh <- err
		}
	}()

	slog.Info("Wizard backend started", "port", cfg.Server.Port)

	// 10. Wait for shutdown signal or server error
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		slog.Info("Shutdown signal received", "signal", sig)
	case err := <-errCh:
		slog.Error("Server error triggered shutdown", "error", err)
	}

	// 11. Graceful shutdown: stop accepting requests first, then drain
	// in-flight prompts.
	httpCtx, httpCancel := context.WithTimeout(ctx, cfg.Server.ShutdownTimeout)
	defer httpCancel()
	if err := httpServer.Shutdown(httpCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	drainCtx, drainCancel := context.WithTimeout(ctx, cfg.Queue.GracefulShutdownTimeout)
	defer drainCancel()
	done := make(chan struct{})
	go func() {
		scheduler.Stop()
		close(done)
	}()
	select {
	case <-done:
		slog.Info("Scheduler drained")
	case <-drainCtx.Done():
		slog.Warn("Shutdown timeout exceeded, in-flight prompts remain PROCESSING",
			"timeout", cfg.Queue.GracefulShutdownTimeout)
	}

	slog.Info("Shutdown complete")
}
