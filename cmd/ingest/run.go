package main

import (
	"context"
	"fmt"
	"mime"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	ingestapp "github.com/erp/ingest/internal/application/ingest"
	"github.com/erp/ingest/internal/domain/ingest"
)

type runOptions struct {
	entityType  string
	sqlitePath  string
	archiveDir  string
	autoFix     bool
	noProgress  bool
	batchSize   int
	concurrency int
	maxFileSize int64
	maxErrors   int
}

func newRunCmd(global *globalOptions) *cobra.Command {
	opts := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run <file>",
		Short: "Import a catalog file into a local SQLite database",
		Long: `Run the full pipeline on one file: detect the format, map the columns,
validate the records, optionally apply high-confidence repairs and write
the valid records in batches.

Examples:
  ingest run products.csv
  ingest run --auto-fix --sqlite catalog.db supplier-feed.xlsx
  ingest run --entity supplier --schema schemas.yaml suppliers.json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runImport(ctx, cmd, global, opts, args[0])
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.entityType, "entity", "e", ingest.DefaultEntityType, "Target entity type")
	f.StringVar(&opts.sqlitePath, "sqlite", "ingest.db", "SQLite database file")
	f.StringVar(&opts.archiveDir, "archive-dir", "", "Keep a copy of the raw upload in this directory")
	f.BoolVar(&opts.autoFix, "auto-fix", false, "Apply repairs that need no confirmation before importing")
	f.BoolVar(&opts.noProgress, "no-progress", false, "Disable the progress bar")
	f.IntVar(&opts.batchSize, "batch-size", 0, "Records per batch (default from orchestrator)")
	f.IntVar(&opts.concurrency, "concurrency", 0, "Concurrent batches (default from orchestrator)")
	f.Int64Var(&opts.maxFileSize, "max-file-size", 0, "Reject files larger than this many bytes (default 50MB)")
	f.IntVar(&opts.maxErrors, "max-errors", 20, "Validation findings to print")
	return cmd
}

func runImport(ctx context.Context, cmd *cobra.Command, global *globalOptions, opts *runOptions, path string) error {
	log, err := global.logger()
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}

	out := cmd.OutOrStdout()
	var sink ingest.ProgressSink
	if !opts.noProgress {
		sink = newBarSink(cmd.ErrOrStderr())
	}

	p, err := newPipeline(pipelineOptions{
		sqlitePath:  opts.sqlitePath,
		schemaFile:  global.schemaFile,
		archiveDir:  opts.archiveDir,
		batchSize:   opts.batchSize,
		concurrency: opts.concurrency,
		maxFileSize: opts.maxFileSize,
	}, sink, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := p.Close(); err != nil {
			log.Warn("Closing pipeline", zap.Error(err))
		}
	}()

	start := time.Now()
	upload, err := p.svc.Upload(ctx, ingestapp.UploadRequest{
		FileName:    filepath.Base(path),
		EntityType:  opts.entityType,
		ContentType: mime.TypeByExtension(filepath.Ext(path)),
		Data:        data,
	})
	if err != nil {
		return err
	}
	printParse(out, upload.Parse)
	printMapping(out, upload.Mapping)
	printValidation(out, upload.Validation, opts.maxErrors)

	id := upload.Session.ID
	if opts.autoFix && upload.Validation != nil && upload.Validation.InvalidCount > 0 {
		analysis, err := p.svc.AnalyzeErrors(ctx, id)
		if err != nil {
			return err
		}
		var applied *ingestapp.ApplyResult
		if analysis.AutoFixable > 0 {
			if applied, err = p.svc.ApplyFixes(ctx, id, analysis.RecoveryID, nil); err != nil {
				return err
			}
		}
		printRecovery(out, analysis, applied)
	}

	session, err := p.svc.Process(ctx, id)
	if err != nil {
		return err
	}
	fmt.Fprintln(out)
	fmt.Fprintln(out, renderSummary(session, time.Since(start)))

	if session.Status == ingest.StatusFailed {
		return fmt.Errorf("import %s failed", session.ID)
	}
	return nil
}
