package commands

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/leaprest/internal/cli/config"
	"github.com/leapstack-labs/leaprest/internal/demo"
	"github.com/leapstack-labs/leaprest/internal/server"
	"github.com/leapstack-labs/leaprest/pkg/adapter"
	"github.com/leapstack-labs/leaprest/pkg/adapters/sqlite"
	"github.com/leapstack-labs/leaprest/pkg/catalog"
)

// NewServeCommand creates the serve command.
func NewServeCommand() *cobra.Command {
	var (
		addr     string
		watch    bool
		demoMode bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the REST API over HTTP",
		Long: `Start an HTTP gateway that compiles every request against the schema
file and runs the statements on the configured database.

The role of a request comes from its session (POST /_session with
{"role": "..."}) and falls back to server.anon_role. With --watch the
schema file is reloaded when it changes. With --demo an in-memory SQLite
database is created and seeded, and its schema is served without a
schema file.`,
		Example: `  leaprest serve --db-type postgres --dsn postgres://localhost/app --schema-file schema.json
  leaprest serve --demo --addr :8080
  curl 'localhost:8080/projects?select=id,name,clients(name)'`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			cmdCtx := NewCommandContext(cmd)
			srvCfg := cmdCtx.Cfg.GetServerConfig()
			if cmd.Flags().Changed("addr") {
				srvCfg.Addr = addr
			}
			if cmd.Flags().Changed("watch") {
				srvCfg.Watch = watch
			}
			return runServe(ctx, cmdCtx, srvCfg, demoMode)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default: server.addr or :3000)")
	cmd.Flags().BoolVar(&watch, "watch", false, "Reload the schema file when it changes")
	cmd.Flags().BoolVar(&demoMode, "demo", false, "Serve a seeded in-memory SQLite database")

	return cmd
}

func runServe(ctx context.Context, cmdCtx *CommandContext, srvCfg *config.ServerConfig, demoMode bool) error {
	cfg := cmdCtx.Cfg
	logger := cmdCtx.Logger
	r := cmdCtx.Renderer

	var (
		adp adapter.Adapter
		cat *catalog.Catalog
		err error
	)
	if demoMode {
		adp, cat, err = openDemo(ctx, cmdCtx)
	} else {
		adp, err = cmdCtx.openAdapter(ctx)
		if err == nil {
			cat, err = cmdCtx.loadCatalogAs(ctx, adp.DialectName())
		}
	}
	if adp != nil {
		defer func() { _ = adp.Close() }()
	}
	if err != nil {
		return err
	}

	secret := srvCfg.SessionSecret
	if secret == "" {
		key := make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			return fmt.Errorf("failed to generate session secret: %w", err)
		}
		secret = hex.EncodeToString(key)
		r.Warning("server.session_secret is not set; sessions will not survive a restart")
	}

	s := server.New(server.Config{
		Addr:          srvCfg.Addr,
		Root:          cfg.Root,
		Schema:        cfg.DBSchema,
		AnonRole:      srvCfg.AnonRole,
		SessionSecret: secret,
		MaxRows:       cfg.MaxRows,
		SchemaFile:    schemaFileFor(cfg.SchemaFile, demoMode),
		Dialect:       adp.DialectName(),
		LoadOptions:   catalogOptions(cfg, logger),
		Watch:         srvCfg.Watch && !demoMode,
		Adapter:       adp,
		Logger:        logger,
	}, cat)

	r.Success(fmt.Sprintf("Serving %d relations on %s", cat.RelationCount(), srvCfg.Addr))
	if cat.IsDemo() {
		r.Warning("no license configured, running in demo mode")
	}
	return s.Serve(ctx)
}

func schemaFileFor(path string, demoMode bool) string {
	if demoMode {
		return ""
	}
	return path
}

// openDemo creates the seeded in-memory demo database and loads its schema.
func openDemo(ctx context.Context, cmdCtx *CommandContext) (adapter.Adapter, *catalog.Catalog, error) {
	adp := sqlite.New(cmdCtx.Logger)
	if err := adp.Connect(ctx, adapter.Config{Type: "sqlite", Path: ":memory:"}); err != nil {
		return nil, nil, err
	}
	if err := demo.Migrate(ctx, adp.DB); err != nil {
		return adp, nil, err
	}
	doc, err := adp.Introspect(ctx, []string{cmdCtx.Cfg.DBSchema})
	if err != nil {
		return adp, nil, err
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return adp, nil, fmt.Errorf("failed to encode demo schema: %w", err)
	}
	cat, err := catalog.Load(ctx, adp.DialectName(), data, catalogOptions(cmdCtx.Cfg, cmdCtx.Logger)...)
	if err != nil {
		return adp, nil, err
	}
	cmdCtx.Logger.Info("demo database ready", slog.Int("relations", cat.RelationCount()))
	return adp, cat, nil
}
