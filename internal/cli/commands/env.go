package commands

import (
	"github.com/spf13/cobra"

	"github.com/leapstack-labs/leaprest/internal/cli/output"
	"github.com/leapstack-labs/leaprest/pkg/compiler"
)

// NewEnvCommand creates the env command.
func NewEnvCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "env [key=value...]",
		Short: "Compile the statement exposing env pairs to the database",
		Long: `Compile the statement that exposes request env pairs (role, claims,
headers) to the database session before the main statement runs.`,
		Example: `  leaprest env role=admin request.jwt.claims='{"sub":"1"}'
  leaprest --dialect sqlite env role=admin`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmdCtx := NewCommandContext(cmd)
			r := cmdCtx.Renderer

			pairs, err := parseEnvPairs(args)
			if err != nil {
				return err
			}
			stmt, err := compiler.EnvStatement(cmdCtx.Cfg.Dialect, pairs)
			if err != nil {
				return err
			}

			if r.EffectiveMode() == output.ModeJSON {
				return r.JSON(newStatementOutput(stmt))
			}
			renderStatement(r, "Env statement", stmt)
			return nil
		},
	}
}
