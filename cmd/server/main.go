package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ggasparott/FastMission/internal/batch/model"
	"github.com/ggasparott/FastMission/internal/batch/router"
	"github.com/ggasparott/FastMission/internal/batch/service"
	"github.com/ggasparott/FastMission/internal/catalog"
	"github.com/ggasparott/FastMission/internal/config"
	"github.com/ggasparott/FastMission/internal/database"
	"github.com/ggasparott/FastMission/internal/logging"
	"github.com/ggasparott/FastMission/internal/pipeline"
	"github.com/ggasparott/FastMission/internal/rules"
	"github.com/ggasparott/FastMission/internal/storage"
)

func main() {
	// Load configuration from environment variables
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}
	logging.Setup(cfg.Logging)

	slog.Info("configuration loaded successfully",
		"environment", cfg.Environment,
		"db_driver", cfg.Database.Driver,
		"db_host", cfg.Database.Host,
		"db_name", cfg.Database.Name,
		"storage", cfg.Storage.Type,
		"rule_policy", cfg.Pipeline.RulePolicy,
		"item_timeout", cfg.Pipeline.ItemTimeout,
	)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize database connection
	db, err := database.New(&cfg.Database)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer func() {
		if err := database.Close(db); err != nil {
			slog.Error("failed to close database", "error", err)
		}
	}()

	if err := database.HealthCheck(db); err != nil {
		log.Fatalf("database health check failed: %v", err)
	}
	if err := database.Migrate(db, &model.Batch{}, &model.Item{}, &catalog.Entry{}); err != nil {
		log.Fatalf("failed to migrate database: %v", err)
	}

	source, err := storage.NewFromConfig(ctx, cfg.Storage)
	if err != nil {
		log.Fatalf("failed to initialize storage: %v", err)
	}

	// Catalog: stored codes first, then the configured source file if any
	catalogSvc := catalog.NewService(catalog.NewStore(db), source, catalog.ServiceConfig{
		SuggestionLimit: cfg.Pipeline.SuggestionLimit,
		MaxDistance:     cfg.Pipeline.SuggestionDistance,
	})
	if err := catalogSvc.Load(ctx); err != nil {
		log.Fatalf("failed to load catalog: %v", err)
	}
	if cfg.Pipeline.CatalogSource != "" {
		if _, err := catalogSvc.SyncFromSource(ctx, cfg.Pipeline.CatalogSource); err != nil {
			slog.Error("failed to sync catalog from source, keeping stored catalog",
				"source", cfg.Pipeline.CatalogSource,
				"error", err)
		}
	}

	policy, err := rules.ParsePolicy(cfg.Pipeline.RulePolicy)
	if err != nil {
		log.Fatalf("invalid rule policy: %v", err)
	}
	engineOpts := rules.Options{Policy: policy}
	if cfg.Pipeline.CatalogCheck {
		engineOpts.Checker = catalogSvc
	}
	engine := rules.NewEngine(engineOpts)

	batches := service.NewBatchService(db)
	orchestrator := pipeline.NewOrchestrator(
		batches,
		pipeline.NewItemClassifier(engine, batches, cfg.Pipeline.ItemTimeout),
		pipeline.RetryPolicy{MaxAttempts: cfg.Pipeline.MaxAttempts, Delay: cfg.Pipeline.RetryDelay},
	)

	queue, closeQueue, err := newQueue(ctx, cfg)
	if err != nil {
		log.Fatalf("failed to initialize batch queue: %v", err)
	}
	defer closeQueue()

	dispatcher := pipeline.NewDispatcher(queue)
	workers := pipeline.NewWorkerPool(queue, orchestrator, cfg.Worker.Concurrency)
	workers.Start(ctx)

	if cfg.Worker.ResumeOnStart {
		resumeUnfinished(ctx, batches, dispatcher)
	}

	handler := router.New(router.Dependencies{
		DB:         db,
		Batches:    batches,
		Catalog:    catalogSvc,
		Dispatcher: dispatcher,
		CORS:       &cfg.CORS,
	})

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		slog.Info("starting server", "port", cfg.Server.Port, "url", cfg.Server.ServiceURL)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("failed to start server", "error", err)
			stop()
		}
	}()

	// Wait for interrupt signal
	<-ctx.Done()
	slog.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	} else {
		slog.Info("server gracefully stopped")
	}

	slog.Info("stopping batch workers...")
	workers.Stop()

	slog.Info("server stopped")
}

// newQueue selects Redis when an address is configured and the in-process queue otherwise.
func newQueue(ctx context.Context, cfg *config.Config) (pipeline.Queue, func(), error) {
	if cfg.Redis.Addr == "" {
		slog.Info("using in-process batch queue", "size", cfg.Worker.QueueSize)
		return pipeline.NewChannelQueue(cfg.Worker.QueueSize), func() {}, nil
	}

	rdb, err := pipeline.NewRedisClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		return nil, nil, err
	}
	slog.Info("using redis batch queue", "addr", cfg.Redis.Addr, "key", cfg.Redis.QueueKey)

	closeFn := func() {
		if err := rdb.Close(); err != nil {
			slog.Error("failed to close redis client", "error", err)
		}
	}
	return pipeline.NewRedisQueue(rdb, cfg.Redis.QueueKey, pipeline.DefaultPollTimeout), closeFn, nil
}

// resumeUnfinished re-enqueues batches left PENDING or RUNNING by a previous process.
func resumeUnfinished(ctx context.Context, batches *service.BatchService, dispatcher *pipeline.Dispatcher) {
	ids, err := batches.ListUnfinishedBatchIDs(ctx)
	if err != nil {
		slog.Error("failed to list unfinished batches", "error", err)
		return
	}
	for _, id := range ids {
		if err := dispatcher.Dispatch(ctx, id); err != nil {
			slog.Warn("failed to resume batch", "batchID", id, "error", err)
		}
	}
	if len(ids) > 0 {
		slog.Info("resumed unfinished batches", "count", len(ids))
	}
}
