package commands

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/leaprest/internal/cli/output"
	"github.com/leapstack-labs/leaprest/pkg/compiler"
	"github.com/leapstack-labs/leaprest/pkg/request"
)

// NewTwoStageCommand creates the two-stage command.
func NewTwoStageCommand() *cobra.Command {
	var (
		flags requestFlags
		ids   []string
	)

	cmd := &cobra.Command{
		Use:   "two-stage <uri>",
		Short: "Compile a write into mutate and select stages",
		Long: `Compile a write for dialects that cannot return rows from a data-modifying
subquery. The mutate stage writes and returns the keys of the affected rows;
the select stage reads those rows back in the response shape.

The select stage is only printed when --ids supplies the keys the mutate
stage would have returned.`,
		Example: `  leaprest --dialect sqlite two-stage -X POST -d '[{"name":"a"},{"name":"b"}]' /projects
  leaprest --dialect sqlite two-stage -X POST -d '{"name":"a"}' --ids 5 '/projects?select=id,name'`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTwoStage(cmd, &flags, args[0], ids)
		},
	}

	flags.register(cmd)
	cmd.Flags().StringSliceVar(&ids, "ids", nil, "Keys returned by the mutate stage (comma separated)")

	return cmd
}

func runTwoStage(cmd *cobra.Command, flags *requestFlags, uri string, ids []string) error {
	cmdCtx := NewCommandContext(cmd)
	r := cmdCtx.Renderer

	cat, err := cmdCtx.loadCatalog(cmd.Context())
	if err != nil {
		return err
	}
	in, err := flags.input(cmdCtx.Cfg, uri)
	if err != nil {
		return err
	}
	if in.Method == "GET" || in.Method == "HEAD" {
		return errors.New("two-stage compiles writes only; pass -X POST, PATCH, PUT or DELETE")
	}
	req, err := request.Parse(cat, in)
	if err != nil {
		return err
	}
	ts, err := compiler.NewTwoStage(cat, req, nil)
	if err != nil {
		return err
	}

	mutate := ts.Mutate()
	hasIDs := cmd.Flags().Changed("ids")
	if hasIDs {
		ts.SetIDs(ids)
	}

	if r.EffectiveMode() == output.ModeJSON {
		out := struct {
			Mutate *statementOutput `json:"mutate"`
			Select *statementOutput `json:"select,omitempty"`
		}{Mutate: newStatementOutput(mutate)}
		if hasIDs {
			s, err := ts.Select()
			if err != nil {
				return err
			}
			out.Select = newStatementOutput(s)
		}
		return r.JSON(out)
	}

	renderStatement(r, "Mutate stage", mutate)
	if !hasIDs {
		r.Println("")
		r.Println(r.Styles().Muted.Render("Pass --ids to compile the select stage."))
		return nil
	}
	s, err := ts.Select()
	if err != nil {
		return err
	}
	r.Println("")
	renderStatement(r, "Select stage", s)
	return nil
}
