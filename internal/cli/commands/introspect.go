package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/leapstack-labs/leaprest/pkg/catalog"
)

// NewIntrospectCommand creates the introspect command.
func NewIntrospectCommand() *cobra.Command {
	var (
		schemas []string
		format  string
		outPath string
	)

	cmd := &cobra.Command{
		Use:   "introspect",
		Short: "Build a schema file from a live database",
		Long: `Read tables, views, columns, primary keys and foreign keys from the
configured database and write them as a schema file the compiler loads.

The format follows the file extension of --out, or --format when writing
to stdout.`,
		Example: `  leaprest introspect --db-type postgres --dsn postgres://localhost/app --schemas api -w schema.json
  leaprest introspect --db-type sqlite --db-path app.db --format yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cmdCtx := NewCommandContext(cmd)

			if len(schemas) == 0 {
				schemas = []string{cmdCtx.Cfg.DBSchema}
			}
			if outPath != "" && !cmd.Flags().Changed("format") {
				format = formatForPath(outPath)
			}

			adp, err := cmdCtx.openAdapter(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = adp.Close() }()

			doc, err := adp.Introspect(ctx, schemas)
			if err != nil {
				return err
			}
			if adp.DialectName() != cmdCtx.Cfg.Dialect {
				cmdCtx.Logger.Debug("introspected dialect differs from configured dialect",
					slog.String("database", adp.DialectName()), slog.String("configured", cmdCtx.Cfg.Dialect))
			}

			if outPath == "" {
				return writeDocument(cmd.OutOrStdout(), doc, format)
			}
			f, err := os.Create(outPath)
			if err != nil {
				return fmt.Errorf("failed to create %s: %w", outPath, err)
			}
			defer func() { _ = f.Close() }()
			if err := writeDocument(f, doc, format); err != nil {
				return err
			}
			cmdCtx.Renderer.Success(fmt.Sprintf("Wrote %s (%d relations)", outPath, countObjects(doc)))
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&schemas, "schemas", nil, "Database schemas to read (default: db_schema)")
	cmd.Flags().StringVar(&format, "format", "json", "Output format (json|yaml)")
	cmd.Flags().StringVarP(&outPath, "write", "w", "", "Write the schema to a file instead of stdout")
	_ = cmd.RegisterFlagCompletionFunc("format", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return []string{"json", "yaml"}, cobra.ShellCompDirectiveNoFileComp
	})

	return cmd
}

func formatForPath(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return "yaml"
	default:
		return "json"
	}
}

func writeDocument(w io.Writer, doc *catalog.Document, format string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(doc)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(doc); err != nil {
			return fmt.Errorf("failed to encode schema: %w", err)
		}
		return enc.Close()
	default:
		return fmt.Errorf("unknown format %q (expected json or yaml)", format)
	}
}

func countObjects(doc *catalog.Document) int {
	n := 0
	for _, s := range doc.Schemas {
		n += len(s.Objects)
	}
	return n
}
