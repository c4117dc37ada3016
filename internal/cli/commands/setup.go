package commands

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/leaprest/internal/cli/config"
	"github.com/leapstack-labs/leaprest/internal/cli/output"
	"github.com/leapstack-labs/leaprest/pkg/adapter"
	"github.com/leapstack-labs/leaprest/pkg/catalog"
	"github.com/leapstack-labs/leaprest/pkg/compiler"
	"github.com/leapstack-labs/leaprest/pkg/core"
	"github.com/leapstack-labs/leaprest/pkg/request"
)

// CommandContext holds common dependencies for CLI commands.
type CommandContext struct {
	Cfg      *config.Config
	Logger   *slog.Logger
	Renderer *output.Renderer
}

// NewCommandContext creates a CommandContext from the loaded configuration.
func NewCommandContext(cmd *cobra.Command) *CommandContext {
	cfg := getConfig()
	return &CommandContext{
		Cfg:      cfg,
		Logger:   config.GetLogger(cmd.Context()),
		Renderer: output.NewRenderer(cmd.OutOrStdout(), cmd.ErrOrStderr(), output.Mode(cfg.OutputFormat)),
	}
}

// getConfig returns the current configuration, or defaults when none was loaded.
func getConfig() *config.Config {
	if cfg := config.GetCurrentConfig(); cfg != nil {
		return cfg
	}
	return &config.Config{
		Dialect:      config.DefaultDialect,
		SchemaFile:   config.DefaultSchemaFile,
		DBSchema:     config.DefaultDBSchema,
		Root:         config.DefaultRoot,
		Role:         config.DefaultRole,
		OutputFormat: config.DefaultOutput,
	}
}

// catalogOptions returns the load options derived from configuration.
func catalogOptions(cfg *config.Config, logger *slog.Logger) []catalog.Option {
	opts := []catalog.Option{
		catalog.WithLicense(cfg.License),
		catalog.WithDemoPolicy(cfg.Demo),
		catalog.WithLogger(logger),
	}
	if cfg.LicensePublicKey != "" {
		opts = append(opts, catalog.WithPublicKey(cfg.LicensePublicKey))
	}
	return opts
}

// loadCatalog loads the configured schema file for the configured dialect.
func (c *CommandContext) loadCatalog(ctx context.Context) (*catalog.Catalog, error) {
	return c.loadCatalogAs(ctx, c.Cfg.Dialect)
}

// loadCatalogAs loads the configured schema file for dialectName.
func (c *CommandContext) loadCatalogAs(ctx context.Context, dialectName string) (*catalog.Catalog, error) {
	cat, err := catalog.LoadFile(ctx, dialectName, c.Cfg.SchemaFile, catalogOptions(c.Cfg, c.Logger)...)
	if err != nil {
		return nil, err
	}
	if cat.IsDemo() {
		c.Logger.Debug("running in demo mode", slog.String("schema_file", c.Cfg.SchemaFile))
	}
	return cat, nil
}

// openAdapter connects the configured database. The caller closes it.
func (c *CommandContext) openAdapter(ctx context.Context) (adapter.Adapter, error) {
	if c.Cfg.Database == nil || c.Cfg.Database.Type == "" {
		return nil, fmt.Errorf("no database configured\nHint: set database.type in leaprest.yaml or pass --db-type")
	}
	adp, err := adapter.NewAdapter(*c.Cfg.Database, c.Logger)
	if err != nil {
		return nil, err
	}
	if err := adp.Connect(ctx, *c.Cfg.Database); err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", c.Cfg.Database.Type, err)
	}
	return adp, nil
}

// ---------- Request flags ----------

// requestFlags are the flags describing a REST request on the command line.
type requestFlags struct {
	method  string
	headers []string
	data    string
	env     []string
	role    string
}

func (f *requestFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.method, "method", "X", http.MethodGet, "HTTP method")
	cmd.Flags().StringArrayVarP(&f.headers, "header", "H", nil, `Request header as "Name: value" (repeatable)`)
	cmd.Flags().StringVarP(&f.data, "data", "d", "", "Request body; @file reads it from a file")
	cmd.Flags().StringArrayVar(&f.env, "env", nil, "Env pair as key=value (repeatable)")
	cmd.Flags().StringVar(&f.role, "as-role", "", "Role to compile the request for (default: configured role)")
}

// input builds the parser input for uri.
func (f *requestFlags) input(cfg *config.Config, uri string) (request.Input, error) {
	headers, err := parseHeaders(f.headers)
	if err != nil {
		return request.Input{}, err
	}
	env, err := parseEnvPairs(f.env)
	if err != nil {
		return request.Input{}, err
	}
	role := f.role
	if role == "" {
		role = cfg.Role
	}
	in := request.Input{
		Method:  strings.ToUpper(f.method),
		URI:     uri,
		Root:    cfg.Root,
		Schema:  cfg.DBSchema,
		Role:    role,
		Headers: headers,
		Env:     append([]core.Pair{{Key: "role", Value: role}}, env...),
	}
	if f.data != "" {
		body := f.data
		if path, ok := strings.CutPrefix(body, "@"); ok {
			data, err := os.ReadFile(path)
			if err != nil {
				return request.Input{}, fmt.Errorf("failed to read body: %w", err)
			}
			body = string(data)
		}
		in.Body = &body
	}
	if cfg.MaxRows > 0 {
		in.MaxRows = &cfg.MaxRows
	}
	return in, nil
}

func parseHeaders(raw []string) ([]core.Pair, error) {
	pairs := make([]core.Pair, 0, len(raw))
	for _, h := range raw {
		name, value, ok := strings.Cut(h, ":")
		if !ok || strings.TrimSpace(name) == "" {
			return nil, fmt.Errorf("invalid header %q (expected \"Name: value\")", h)
		}
		pairs = append(pairs, core.Pair{Key: strings.TrimSpace(name), Value: strings.TrimSpace(value)})
	}
	return pairs, nil
}

func parseEnvPairs(raw []string) ([]core.Pair, error) {
	pairs := make([]core.Pair, 0, len(raw))
	for _, kv := range raw {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid env pair %q (expected key=value)", kv)
		}
		pairs = append(pairs, core.Pair{Key: key, Value: value})
	}
	return pairs, nil
}

// ---------- Execution ----------

// execute runs a parsed request against adp, splitting writes the dialect
// cannot express in one statement.
func execute(ctx context.Context, cat *catalog.Catalog, adp adapter.Adapter, req *core.ApiRequest) (*adapter.Result, error) {
	env, err := compiler.EnvStatement(cat.Dialect().Name(), req.Env)
	if err != nil {
		return nil, err
	}
	if req.Query.Kind.IsMutation() && !cat.Dialect().Config().SupportsMutationCTE {
		ts, err := compiler.NewTwoStage(cat, req, nil)
		if err != nil {
			return nil, err
		}
		return adp.RunTwoStage(ctx, env, ts)
	}
	main, err := compiler.MainStatement(cat, req, nil)
	if err != nil {
		return nil, err
	}
	return adp.Run(ctx, env, main)
}

// ---------- Statement output ----------

type paramOutput struct {
	Value string `json:"value"`
	Type  string `json:"type"`
}

type statementOutput struct {
	SQL    string        `json:"sql"`
	Params []paramOutput `json:"params"`
}

func newStatementOutput(s *core.Statement) *statementOutput {
	if s == nil {
		return nil
	}
	out := &statementOutput{SQL: s.SQL, Params: make([]paramOutput, len(s.Params))}
	for i, p := range s.Params {
		out.Params[i] = paramOutput{Value: p.Value, Type: p.Type}
	}
	return out
}

// renderStatement writes a titled statement and its parameters.
func renderStatement(r *output.Renderer, title string, s *core.Statement) {
	styles := r.Styles()
	sql := strings.TrimSpace(s.SQL)

	if r.EffectiveMode() == output.ModeMarkdown {
		r.Println(output.FormatHeader(2, title))
		r.Println("")
		r.Println("```sql")
		r.Println(sql)
		r.Println("```")
		r.Println("")
	} else {
		r.Println(styles.Header2.Render(title))
		r.Println(styles.SQL.Render(sql))
		r.Println("")
	}

	if len(s.Params) == 0 {
		r.Println(styles.Muted.Render("(no parameters)"))
		return
	}
	rows := make([][]string, len(s.Params))
	for i, p := range s.Params {
		rows[i] = []string{fmt.Sprintf("%d", i+1), p.Value, p.Type}
	}
	r.Table([]string{"#", "value", "type"}, rows)
}
