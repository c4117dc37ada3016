package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/leaprest/internal/cli/output"
	"github.com/leapstack-labs/leaprest/pkg/compiler"
	"github.com/leapstack-labs/leaprest/pkg/request"
)

// NewCompileCommand creates the compile command.
func NewCompileCommand() *cobra.Command {
	var (
		flags requestFlags
		exec  bool
	)

	cmd := &cobra.Command{
		Use:   "compile <uri>",
		Short: "Compile a REST request into SQL",
		Long: `Compile a REST request into the single statement that answers it.

The request is resolved against the configured schema file. The statement
and its parameters are printed; with --exec the statement runs against the
configured database and the response body is printed instead.`,
		Example: `  # Read with an embedded parent
  leaprest compile '/projects?select=id,name,clients(name)&id=eq.1'

  # Insert, returning the new rows
  leaprest compile -X POST -d '{"name":"New"}' -H 'Prefer: return=representation' /projects

  # Run against the database
  leaprest compile --exec '/projects?select=id&order=id.desc&limit=2'`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(cmd, &flags, args[0], exec)
		},
	}

	flags.register(cmd)
	cmd.Flags().BoolVar(&exec, "exec", false, "Run the statement against the configured database")

	return cmd
}

func runCompile(cmd *cobra.Command, flags *requestFlags, uri string, exec bool) error {
	ctx := cmd.Context()
	cmdCtx := NewCommandContext(cmd)
	r := cmdCtx.Renderer

	in, err := flags.input(cmdCtx.Cfg, uri)
	if err != nil {
		return err
	}

	if exec {
		adp, err := cmdCtx.openAdapter(ctx)
		if err != nil {
			return err
		}
		defer func() { _ = adp.Close() }()

		// The database decides the SQL flavor.
		cat, err := cmdCtx.loadCatalogAs(ctx, adp.DialectName())
		if err != nil {
			return err
		}
		req, err := request.Parse(cat, in)
		if err != nil {
			return err
		}
		res, err := execute(ctx, cat, adp, req)
		if err != nil {
			return err
		}
		if r.EffectiveMode() == output.ModeJSON {
			return r.JSON(res)
		}
		if res.Body != "" {
			r.Println(res.Body)
		}
		r.Println(r.Styles().Muted.Render(fmt.Sprintf("(%d rows)", res.PageTotal)))
		return nil
	}

	cat, err := cmdCtx.loadCatalog(ctx)
	if err != nil {
		return err
	}
	req, err := request.Parse(cat, in)
	if err != nil {
		return err
	}

	main, err := compiler.MainStatement(cat, req, nil)
	if err != nil {
		return err
	}
	env, err := compiler.EnvStatement(cat.Dialect().Name(), req.Env)
	if err != nil {
		return err
	}

	if r.EffectiveMode() == output.ModeJSON {
		return r.JSON(struct {
			Main *statementOutput `json:"main"`
			Env  *statementOutput `json:"env"`
		}{newStatementOutput(main), newStatementOutput(env)})
	}
	renderStatement(r, "Main statement", main)
	r.Println("")
	renderStatement(r, "Env statement", env)
	return nil
}
