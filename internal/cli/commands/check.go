package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/leapstack-labs/leaprest/internal/cli/output"
	"github.com/leapstack-labs/leaprest/pkg/catalog"
	"github.com/leapstack-labs/leaprest/pkg/core"
)

// CheckOutput is the JSON form of the check command.
type CheckOutput struct {
	Dialect     string              `json:"dialect"`
	SchemaFile  string              `json:"schema_file"`
	Relations   int                 `json:"relations"`
	ForeignKeys int                 `json:"foreign_keys"`
	Schemas     []SchemaSummary     `json:"schemas"`
	License     LicenseSummary      `json:"license"`
	Demo        *catalog.DemoPolicy `json:"demo,omitempty"`
}

// SchemaSummary counts the relations of one schema.
type SchemaSummary struct {
	Name        string `json:"name"`
	Tables      int    `json:"tables"`
	Views       int    `json:"views"`
	ForeignKeys int    `json:"foreign_keys"`
}

// LicenseSummary describes the license a catalog was loaded with.
type LicenseSummary struct {
	Mode      string     `json:"mode"`
	Email     string     `json:"email,omitempty"`
	Plan      string     `json:"plan,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// NewCheckCommand creates the check command.
func NewCheckCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Validate the schema file and show a summary",
		Long: `Load the configured schema file, validate it and print a summary of its
relations, foreign keys and license status.

A schema that fails to load exits with the load error.`,
		Example: `  leaprest check
  leaprest check --schema-file api.yaml --dialect sqlite
  leaprest check -o json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmdCtx := NewCommandContext(cmd)
			cat, err := cmdCtx.loadCatalog(cmd.Context())
			if err != nil {
				return err
			}
			return renderCheck(cmdCtx.Renderer, summarize(cat, cmdCtx.Cfg.SchemaFile))
		},
	}
}

func summarize(cat *catalog.Catalog, schemaFile string) *CheckOutput {
	out := &CheckOutput{
		Dialect:     cat.Dialect().Name(),
		SchemaFile:  schemaFile,
		Relations:   cat.RelationCount(),
		ForeignKeys: cat.Graph().EdgeCount(),
		License:     LicenseSummary{Mode: "full"},
	}
	for _, s := range cat.Schemas() {
		sum := SchemaSummary{Name: s.Name}
		for _, rel := range s.Relations {
			if rel.Kind == core.KindView {
				sum.Views++
			} else {
				sum.Tables++
			}
			sum.ForeignKeys += len(rel.ForeignKeys)
		}
		out.Schemas = append(out.Schemas, sum)
	}

	if cat.IsDemo() {
		out.License.Mode = "demo"
		policy := cat.Policy()
		out.Demo = &policy
	}
	if claims := cat.Claims(); claims != nil {
		out.License.Email = claims.Email
		out.License.Plan = claims.Plan
		if exp := claims.ExpiresAt(); !exp.IsZero() {
			out.License.ExpiresAt = &exp
		}
	}
	return out
}

func renderCheck(r *output.Renderer, out *CheckOutput) error {
	switch r.EffectiveMode() {
	case output.ModeJSON:
		return r.JSON(out)
	case output.ModeMarkdown:
		return checkMarkdown(r, out)
	default:
		return checkText(r, out)
	}
}

func schemaRows(out *CheckOutput) [][]string {
	rows := make([][]string, len(out.Schemas))
	for i, s := range out.Schemas {
		rows[i] = []string{s.Name, fmt.Sprint(s.Tables), fmt.Sprint(s.Views), fmt.Sprint(s.ForeignKeys)}
	}
	return rows
}

func licenseLine(l LicenseSummary) string {
	titleCaser := cases.Title(language.English)
	line := titleCaser.String(l.Mode)
	if l.Plan != "" {
		line += fmt.Sprintf(" (%s plan", titleCaser.String(l.Plan))
		if l.Email != "" {
			line += ", " + l.Email
		}
		line += ")"
	}
	if l.ExpiresAt != nil {
		line += ", expires " + l.ExpiresAt.Format(time.DateOnly)
	}
	return line
}

func checkText(r *output.Renderer, out *CheckOutput) error {
	styles := r.Styles()

	r.Header(1, "Schema OK")
	r.KeyValue("File", out.SchemaFile)
	r.KeyValue("Dialect", out.Dialect)
	r.KeyValue("Relations", fmt.Sprint(out.Relations))
	r.KeyValue("Foreign keys", fmt.Sprint(out.ForeignKeys))
	r.Println("")
	r.Table([]string{"schema", "tables", "views", "foreign keys"}, schemaRows(out))
	r.Println("")

	license := licenseLine(out.License)
	if out.Demo != nil {
		r.Println(styles.Warning.Render("License: " + license))
		if out.Demo.MaxRows > 0 {
			r.Println(styles.Muted.Render(fmt.Sprintf("   reads are capped at %d rows", out.Demo.MaxRows)))
		}
		return nil
	}
	r.Println(styles.Success.Render("License: " + license))
	return nil
}

func checkMarkdown(r *output.Renderer, out *CheckOutput) error {
	r.Println(output.FormatHeader(1, "Schema OK"))
	r.Println("")
	r.Println(output.FormatKeyValue("File", out.SchemaFile))
	r.Println(output.FormatKeyValue("Dialect", out.Dialect))
	r.Println(output.FormatKeyValue("Relations", fmt.Sprint(out.Relations)))
	r.Println(output.FormatKeyValue("Foreign keys", fmt.Sprint(out.ForeignKeys)))
	r.Println(output.FormatKeyValue("License", licenseLine(out.License)))
	r.Println("")
	r.Table([]string{"schema", "tables", "views", "foreign keys"}, schemaRows(out))
	return nil
}
