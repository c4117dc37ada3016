package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/leaprest/pkg/dialect"
)

// NewVersionCommand creates the version command.
func NewVersionCommand(version string) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Long:  `Display LeapREST version and the SQL dialects it compiles to.`,
		Run: func(cmd *cobra.Command, _ []string) {
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "LeapREST v%s\n", version)
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "REST to SQL compiler for %s\n", strings.Join(dialect.List(), ", "))
		},
	}
}
