// Command ingest runs catalog imports from the terminal: inspect a file,
// import it into a database, or manage the PostgreSQL schema.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/erp/ingest/internal/infrastructure/logger"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render("error: ")+err.Error())
		os.Exit(1)
	}
}

// globalOptions are shared by every subcommand
type globalOptions struct {
	logLevel   string
	schemaFile string
}

func (o *globalOptions) logger() (*zap.Logger, error) {
	return logger.New(&logger.Config{
		Level:      o.logLevel,
		Format:     "console",
		Output:     "stderr",
		TimeFormat: "15:04:05.000",
	})
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}
	root := &cobra.Command{
		Use:   "ingest",
		Short: "Import product catalogs from CSV, JSON and spreadsheet files",
		Long: `ingest detects the layout of a catalog file, maps its columns onto the
target schema, validates and repairs the records and writes them in batches.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "warn", "Log level: debug, info, warn, error")
	root.PersistentFlags().StringVar(&opts.schemaFile, "schema", "", "YAML file with target schemas (default: built-in product schema)")

	root.AddCommand(
		newRunCmd(opts),
		newInspectCmd(opts),
		newMigrateCmd(opts),
	)
	return root
}
