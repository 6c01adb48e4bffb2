package main

import (
	"database/sql"
	"fmt"
	"strconv"

	_ "github.com/lib/pq"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/erp/ingest/internal/infrastructure/config"
	"github.com/erp/ingest/internal/infrastructure/migration"
)

const defaultMigrationsDir = "internal/infrastructure/migration/sql"

func newMigrateCmd(global *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the PostgreSQL schema",
		Long: `Apply or roll back the embedded schema migrations against the database
configured through config.toml and INGEST_DATABASE_* variables.

Examples:
  ingest migrate up
  ingest migrate step -1
  ingest migrate create add_product_brand_index`,
	}

	// withMigrator opens the configured database and runs fn against it
	withMigrator := func(fn func(m *migration.Migrator, log *zap.Logger) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, _ []string) error {
			log, err := global.logger()
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load configuration: %w", err)
			}
			db, err := sql.Open("postgres", cfg.Database.DSN())
			if err != nil {
				return fmt.Errorf("open database: %w", err)
			}
			defer func() { _ = db.Close() }()
			if err := db.PingContext(cmd.Context()); err != nil {
				return fmt.Errorf("ping database: %w", err)
			}

			m, err := migration.New(db, log)
			if err != nil {
				return err
			}
			defer func() { _ = m.Close() }()
			return fn(m, log)
		}
	}

	up := &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: withMigrator(func(m *migration.Migrator, _ *zap.Logger) error {
			return m.Up()
		}),
	}
	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back every migration",
		Args:  cobra.NoArgs,
		RunE: withMigrator(func(m *migration.Migrator, _ *zap.Logger) error {
			return m.Down()
		}),
	}

	var steps int
	step := &cobra.Command{
		Use:   "step <n>",
		Short: "Apply n migrations, or roll back when n is negative",
		Args:  cobra.ExactArgs(1),
		PreRunE: func(_ *cobra.Command, args []string) error {
			n, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid step count %q", args[0])
			}
			steps = n
			return nil
		},
		RunE: withMigrator(func(m *migration.Migrator, _ *zap.Logger) error {
			return m.Steps(steps)
		}),
	}

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print the applied schema version",
		Args:  cobra.NoArgs,
	}
	versionCmd.RunE = withMigrator(func(m *migration.Migrator, _ *zap.Logger) error {
		v, dirty, err := m.Version()
		if err != nil {
			return err
		}
		out := versionCmd.OutOrStdout()
		if v == 0 {
			fmt.Fprintln(out, mutedStyle.Render("no migrations applied"))
			return nil
		}
		line := fmt.Sprintf("version %d", v)
		if dirty {
			line += " " + warningStyle.Render("(dirty)")
		}
		fmt.Fprintln(out, line)
		return nil
	})

	var forceVersion int
	force := &cobra.Command{
		Use:   "force <version>",
		Short: "Set the schema version without running migrations",
		Args:  cobra.ExactArgs(1),
		PreRunE: func(_ *cobra.Command, args []string) error {
			v, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid version %q", args[0])
			}
			forceVersion = v
			return nil
		},
		RunE: withMigrator(func(m *migration.Migrator, _ *zap.Logger) error {
			return m.Force(forceVersion)
		}),
	}

	var dir string
	create := &cobra.Command{
		Use:   "create <name>",
		Short: "Write an empty up/down migration pair",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mf, err := migration.CreateMigration(dir, args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, successStyle.Render(fmt.Sprintf("created migration %06d", mf.Version)))
			fmt.Fprintln(out, "  "+mf.UpPath)
			fmt.Fprintln(out, "  "+mf.DownPath)
			return nil
		},
	}
	create.Flags().StringVar(&dir, "dir", defaultMigrationsDir, "Migrations directory")

	list := &cobra.Command{
		Use:   "list",
		Short: "List the migrations compiled into this binary",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			versions, err := migration.EmbeddedVersions()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, v := range versions {
				fmt.Fprintf(out, "  %06d\n", v)
			}
			return nil
		},
	}

	cmd.AddCommand(up, down, step, versionCmd, force, create, list)
	return cmd
}
