package main

import (
	"time"

	"go.uber.org/zap"

	ingestapp "github.com/erp/ingest/internal/application/ingest"
	"github.com/erp/ingest/internal/application/mapping"
	"github.com/erp/ingest/internal/domain/ingest"
	"github.com/erp/ingest/internal/infrastructure/config"
	"github.com/erp/ingest/internal/infrastructure/event"
	"github.com/erp/ingest/internal/infrastructure/extract"
	"github.com/erp/ingest/internal/infrastructure/persistence"
	"github.com/erp/ingest/internal/infrastructure/storage"
)

// pipelineOptions configures a local pipeline backed by SQLite
type pipelineOptions struct {
	sqlitePath  string
	schemaFile  string
	archiveDir  string
	batchSize   int
	concurrency int
	maxFileSize int64
}

// pipeline is a fully wired service plus the resources it owns
type pipeline struct {
	svc   *ingestapp.Service
	db    *persistence.Database
	store *persistence.GormRecordStore
}

func newPipeline(opts pipelineOptions, sink ingest.ProgressSink, log *zap.Logger) (*pipeline, error) {
	schemas, err := config.LoadSchemas(opts.schemaFile)
	if err != nil {
		return nil, err
	}
	db, err := persistence.NewDatabase(
		&config.DatabaseConfig{Driver: "sqlite", Path: opts.sqlitePath},
		persistence.WithLogger(log, "warn"),
	)
	if err != nil {
		return nil, err
	}
	if err := persistence.Migrate(db, log); err != nil {
		_ = db.Close()
		return nil, err
	}

	var archive ingest.RawArchive
	if opts.archiveDir != "" {
		local, err := storage.NewLocalArchive(opts.archiveDir)
		if err != nil {
			_ = db.Close()
			return nil, err
		}
		archive = local
	}

	// learned mappings persist in the same database between runs
	cache := persistence.NewGormMappingCache(db.DB)
	engines := make([]*mapping.Engine, 0, len(schemas))
	for _, schema := range schemas {
		engines = append(engines, mapping.NewEngine(schema, cache, mapping.WithEngineLogger(log)))
	}

	sink = event.NewMultiSink(log, sink, event.NewLogSink(log))
	sessions := persistence.NewGormSessionRepository(db.DB)
	store := persistence.NewGormRecordStore(db.DB)
	orchestrator := ingestapp.NewOrchestrator(store, sessions, sink, ingestapp.OrchestratorConfig{
		BatchSize:      opts.batchSize,
		MaxConcurrency: opts.concurrency,
	}, log)

	svc := ingestapp.NewService(ingestapp.ServiceDeps{
		Extractor:    extract.NewExtractor(extract.WithMaxFileSize(opts.maxFileSize), extract.WithLogger(log)),
		Engines:      engines,
		Sessions:     sessions,
		Archive:      archive,
		Orchestrator: orchestrator,
		Sink:         sink,
		RecoveryTTL:  time.Hour,
		Logger:       log,
	}, ingestapp.ServiceConfig{})

	return &pipeline{svc: svc, db: db, store: store}, nil
}

func (p *pipeline) Close() error {
	p.svc.Close()
	return p.db.Close()
}
