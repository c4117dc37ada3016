package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/leaprest/internal/demo"
	"github.com/leapstack-labs/leaprest/pkg/adapter"
	"github.com/leapstack-labs/leaprest/pkg/adapters/sqlite"
)

// NewDemoCommand creates the demo command.
func NewDemoCommand() *cobra.Command {
	var (
		dbPath     string
		schemaPath string
		reset      bool
	)

	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Create the demo SQLite database",
		Long: `Create a SQLite database with the demo schema (clients, projects,
tasks, users and their links) and seed it. Running it again applies only
missing migrations; --reset rebuilds the data from scratch.

With --write the introspected schema is written next to it so the other
commands can compile against it right away.`,
		Example: `  leaprest demo --db demo.db --write schema.json
  leaprest --dialect sqlite --schema-file schema.json compile '/projects?select=id,clients(name)'`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cmdCtx := NewCommandContext(cmd)
			r := cmdCtx.Renderer

			adp := sqlite.New(cmdCtx.Logger)
			if err := adp.Connect(ctx, adapter.Config{Type: "sqlite", Path: dbPath}); err != nil {
				return err
			}
			defer func() { _ = adp.Close() }()

			if reset {
				if err := demo.Reset(ctx, adp.DB); err != nil {
					return err
				}
			}
			if err := demo.Migrate(ctx, adp.DB); err != nil {
				return err
			}
			version, err := demo.Version(ctx, adp.DB)
			if err != nil {
				return err
			}
			r.Success(fmt.Sprintf("Demo database %s at version %d", dbPath, version))

			if schemaPath == "" {
				return nil
			}
			doc, err := adp.Introspect(ctx, []string{cmdCtx.Cfg.DBSchema})
			if err != nil {
				return err
			}
			f, err := os.Create(schemaPath)
			if err != nil {
				return fmt.Errorf("failed to create %s: %w", schemaPath, err)
			}
			defer func() { _ = f.Close() }()
			if err := writeDocument(f, doc, formatForPath(schemaPath)); err != nil {
				return err
			}
			r.Success(fmt.Sprintf("Wrote %s (%d relations)", schemaPath, countObjects(doc)))
			return nil
		},
	}

	cmd.Flags().StringVar(&dbPath, "db", "demo.db", "Path of the SQLite database to create")
	cmd.Flags().StringVarP(&schemaPath, "write", "w", "", "Write the demo schema to this file")
	cmd.Flags().BoolVar(&reset, "reset", false, "Drop and recreate the demo data")

	return cmd
}
