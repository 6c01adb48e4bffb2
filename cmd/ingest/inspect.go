package main

import (
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	ingestapp "github.com/erp/ingest/internal/application/ingest"
	"github.com/erp/ingest/internal/domain/ingest"
)

func newInspectCmd(global *globalOptions) *cobra.Command {
	var (
		entityType string
		rows       int
		maxErrors  int
	)
	cmd := &cobra.Command{
		Use:   "inspect <file>",
		Short: "Show how a file would be parsed, mapped and validated",
		Long: `Inspect analyses a file without importing anything. It prints the
detected format, the proposed column mapping, the validation findings and
the first records after transformation.

Examples:
  ingest inspect products.csv
  ingest inspect --rows 10 supplier-feed.xlsx`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			log, err := global.logger()
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			path := args[0]
			data, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("read %s: %w", path, err)
			}

			p, err := newPipeline(pipelineOptions{
				sqlitePath: ":memory:",
				schemaFile: global.schemaFile,
			}, nil, log)
			if err != nil {
				return err
			}
			defer func() { _ = p.Close() }()

			ctx := cmd.Context()
			upload, err := p.svc.Upload(ctx, ingestapp.UploadRequest{
				FileName:    filepath.Base(path),
				EntityType:  entityType,
				ContentType: mime.TypeByExtension(filepath.Ext(path)),
				Data:        data,
			})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			printParse(out, upload.Parse)
			printMapping(out, upload.Mapping)
			printValidation(out, upload.Validation, maxErrors)

			preview, err := p.svc.Preview(ctx, upload.Session.ID, rows)
			if err != nil {
				return err
			}
			printRecords(out, preview.Records)
			return nil
		},
	}
	cmd.Flags().StringVarP(&entityType, "entity", "e", ingest.DefaultEntityType, "Target entity type")
	cmd.Flags().IntVarP(&rows, "rows", "n", 5, "Records to preview")
	cmd.Flags().IntVar(&maxErrors, "max-errors", 20, "Validation findings to print")
	return cmd
}

func printRecords(w io.Writer, records []ingest.Record) {
	section(w, "preview")
	if len(records) == 0 {
		fmt.Fprintln(w, mutedStyle.Render("  no records"))
		return
	}
	for i, rec := range records {
		keys := make([]string, 0, len(rec))
		for k := range rec {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			parts = append(parts, fmt.Sprintf("%s=%v", k, rec[k]))
		}
		fmt.Fprintf(w, "  %s %s\n", mutedStyle.Render(fmt.Sprintf("#%d", i+1)), strings.Join(parts, " "))
	}
}
