package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	ingestapp "github.com/erp/ingest/internal/application/ingest"
	"github.com/erp/ingest/internal/application/mapping"
	"github.com/erp/ingest/internal/domain/ingest"
	"github.com/erp/ingest/internal/infrastructure/cache"
	"github.com/erp/ingest/internal/infrastructure/config"
	"github.com/erp/ingest/internal/infrastructure/event"
	"github.com/erp/ingest/internal/infrastructure/extract"
	"github.com/erp/ingest/internal/infrastructure/llm"
	"github.com/erp/ingest/internal/infrastructure/logger"
	"github.com/erp/ingest/internal/infrastructure/persistence"
	"github.com/erp/ingest/internal/infrastructure/storage"
	"github.com/erp/ingest/internal/infrastructure/telemetry"
	"github.com/erp/ingest/internal/interfaces/http/handler"
	"github.com/erp/ingest/internal/interfaces/http/middleware"
	"github.com/erp/ingest/internal/interfaces/http/router"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

//	@title			Catalog Ingest API
//	@version		1.0
//	@description	Bulk product catalog ingestion: upload, map, validate, repair and import
//	@BasePath		/api/v1

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	log, err := logger.New(&logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
	})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() { _ = log.Sync() }()

	ctx := context.Background()
	telCfg := telemetry.ConfigFrom(cfg.Telemetry)

	tp, err := telemetry.NewTracerProvider(ctx, telCfg, log)
	if err != nil {
		log.Fatal("Failed to initialize tracer provider", zap.Error(err))
	}
	mp, err := telemetry.NewMeterProvider(ctx, telCfg, log)
	if err != nil {
		log.Fatal("Failed to initialize meter provider", zap.Error(err))
	}
	lp, err := telemetry.NewLoggerProvider(ctx, telCfg, log)
	if err != nil {
		log.Fatal("Failed to initialize logger provider", zap.Error(err))
	}
	log = lp.Bridge(log, zapcore.WarnLevel)

	profiler, err := telemetry.NewProfiler(telemetry.ProfilerConfigFrom(cfg.Telemetry), log)
	if err != nil {
		log.Fatal("Failed to start profiler", zap.Error(err))
	}
	if profiler.IsEnabled() && cfg.Telemetry.Profiling.SpanProfiles {
		tp.EnableSpanProfiles()
	}

	log.Info("Starting catalog ingest",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
		zap.String("version", version),
	)

	dbTracing := telemetry.DefaultDBTracingConfig()
	dbTracing.Enabled = cfg.Telemetry.Enabled && cfg.Telemetry.DBTraceEnabled
	dbTracing.DBName = cfg.Database.DBName
	db, err := persistence.NewDatabase(&cfg.Database,
		persistence.WithLogger(log, cfg.Log.Level),
		persistence.WithPlugin(telemetry.NewDBTracingPlugin(dbTracing, log).Register),
	)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	if err := persistence.Migrate(db, log); err != nil {
		log.Fatal("Failed to migrate database", zap.Error(err))
	}
	log.Info("Database connected successfully", zap.String("driver", cfg.Database.Driver))

	checks := map[string]handler.HealthCheck{
		"database": func(context.Context) error { return db.Ping() },
	}

	mappingCache, err := cache.NewMappingCacheFactory(cfg.Redis,
		cache.WithLogger(log),
		cache.WithDatabaseStore(persistence.NewGormMappingCache(db.DB)),
	).Create(cfg.Ingest.CacheBackend)
	if err != nil {
		log.Fatal("Failed to create mapping cache", zap.Error(err))
	}
	if redisCache, ok := mappingCache.(*cache.RedisMappingCache); ok {
		checks["redis"] = redisCache.Ping
		defer func() { _ = redisCache.Close() }()
	}

	var archive ingest.RawArchive
	if cfg.Storage.Enabled {
		s3Archive, err := storage.NewS3Archive(ctx, &cfg.Storage, storage.WithLogger(log))
		if err != nil {
			log.Fatal("Failed to initialize upload archive", zap.Error(err))
		}
		if err := s3Archive.EnsureBucket(ctx); err != nil {
			log.Fatal("Failed to prepare upload bucket", zap.Error(err))
		}
		archive = s3Archive
		log.Info("Archiving uploads to S3", zap.String("bucket", s3Archive.Bucket()))
	}

	engines, err := buildEngines(cfg, mappingCache, log)
	if err != nil {
		log.Fatal("Failed to build mapping engines", zap.Error(err))
	}

	metrics, err := telemetry.NewIngestMetrics(mp.Meter("ingest"))
	if err != nil {
		log.Fatal("Failed to register ingest metrics", zap.Error(err))
	}
	broker := event.NewProgressBroker(log)
	sink := event.NewMultiSink(log, broker, metrics, event.NewLogSink(log))

	sessions := persistence.NewGormSessionRepository(db.DB)
	orchestrator := ingestapp.NewOrchestrator(
		persistence.NewGormRecordStore(db.DB),
		sessions,
		sink,
		ingestapp.OrchestratorConfig{
			BatchSize:      cfg.Ingest.BatchSize,
			MaxConcurrency: cfg.Ingest.MaxConcurrency,
			RetryAttempts:  cfg.Ingest.RetryAttempts,
			RetryDelay:     cfg.Ingest.RetryDelay,
		},
		log,
	)
	orchestrator.SetObserver(metrics)

	svc := ingestapp.NewService(ingestapp.ServiceDeps{
		Extractor: extract.NewExtractor(
			extract.WithMaxFileSize(cfg.Ingest.MaxFileSize),
			extract.WithLogger(log),
		),
		Engines:      engines,
		Sessions:     sessions,
		Archive:      archive,
		Orchestrator: orchestrator,
		Sink:         sink,
		RecoveryTTL:  cfg.Recovery.TTL,
		Logger:       log,
	}, ingestapp.ServiceConfig{
		SampleSize:   cfg.Ingest.SampleSize,
		PreviewLimit: cfg.Ingest.PreviewLimit,
		WorkspaceTTL: cfg.Ingest.WorkspaceTTL,
	})

	cors := middleware.DefaultCORSConfig()
	cors.AllowOrigins = cfg.HTTP.CORSAllowOrigins
	engine, err := router.NewEngine(router.EngineConfig{
		Logger:         log,
		ServiceName:    telCfg.ServiceName,
		TracingEnabled: cfg.Telemetry.Enabled,
		Profiling:      profiler.IsEnabled(),
		CORS:           cors,
		TrustedProxies: cfg.HTTP.TrustedProxies,
	})
	if err != nil {
		log.Fatal("Failed to create HTTP engine", zap.Error(err))
	}

	importHandler := handler.NewImportHandler(svc, handler.WithMaxUploadSize(cfg.Ingest.MaxFileSize))
	eventsHandler := handler.NewImportEventsHandler(svc, broker, 0)
	router.RegisterHealth(engine, handler.NewSystemHandler(version, checks))
	routes := router.NewRouter(engine).
		Register(router.ImportRoutes(importHandler, eventsHandler, cfg.Ingest.MaxFileSize)).
		Register(router.SchemaRoutes(importHandler)).
		Setup()
	for _, rt := range routes {
		log.Debug("Route registered", zap.String("method", rt.Method), zap.String("path", rt.Path))
	}

	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Close event streams first so Shutdown does not wait on them
	if err := broker.Stop(shutdownCtx); err != nil {
		log.Warn("Progress broker stop", zap.Error(err))
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}
	svc.Close()

	for name, shutdown := range map[string]func(context.Context) error{
		"tracer": tp.Shutdown,
		"meter":  mp.Shutdown,
		"logger": lp.Shutdown,
	} {
		if err := shutdown(shutdownCtx); err != nil {
			log.Warn("Telemetry shutdown failed", zap.String("provider", name), zap.Error(err))
		}
	}
	if err := profiler.Stop(); err != nil {
		log.Warn("Profiler stop failed", zap.Error(err))
	}

	log.Info("Server exited gracefully")
}

// buildEngines creates one mapping engine per configured schema. The LLM
// strategy is attached only when the oracle is enabled.
func buildEngines(cfg *config.Config, mappingCache ingest.MappingCacheStore, log *zap.Logger) ([]*mapping.Engine, error) {
	schemas, err := config.LoadSchemas(cfg.Ingest.SchemaFile)
	if err != nil {
		return nil, err
	}

	opts := []mapping.EngineOption{
		mapping.WithEngineLogger(log),
		mapping.WithConfidenceFloor(cfg.Ingest.ConfidenceFloor),
	}
	if cfg.LLM.Enabled {
		oracle, err := llm.NewOracle(llm.Config{
			BaseURL:           cfg.LLM.BaseURL,
			APIKey:            cfg.LLM.APIKey,
			Model:             cfg.LLM.Model,
			Timeout:           cfg.LLM.Timeout,
			PricePer1KTokens:  cfg.LLM.PricePer1KTokens,
			RequestsPerMinute: cfg.LLM.RequestsPerMinute,
		}, llm.WithLogger(log))
		if err != nil {
			return nil, err
		}
		strategy := mapping.NewLLMStrategy(oracle, cfg.LLM.MaxFields, cfg.LLM.MaxCostUSD, cfg.LLM.PricePer1KTokens)
		opts = append(opts, mapping.WithLLM(strategy, cfg.LLM.Timeout))
		log.Info("LLM mapping enabled", zap.String("model", cfg.LLM.Model))
	}

	engines := make([]*mapping.Engine, 0, len(schemas))
	for _, schema := range schemas {
		engines = append(engines, mapping.NewEngine(schema, mappingCache, opts...))
	}
	return engines, nil
}
