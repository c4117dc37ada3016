// Package postgres provides the PostgreSQL SQL dialect definition.
// This package is pure Go with no database driver dependencies.
package postgres

import "github.com/leapstack-labs/leaprest/pkg/core"

// Config is the PostgreSQL dialect configuration.
// The Builder reads the capability flags and auto-wires operator support.
var Config = &core.DialectConfig{
	Name:        "postgresql",
	Aliases:     []string{"postgres", "pg"},
	Placeholder: core.PlaceholderDollar,
	Identifiers: core.IdentifierConfig{
		Quote:    `"`,
		QuoteEnd: `"`,
		Escape:   `""`,
	},
	SchemaQualified: true,

	SupportsSessionVars: true,
	SupportsReturning:   true,
	SupportsMutationCTE: true,
	SupportsCSV:         true,
	SupportsRangeOps:    true,
	SupportsFullText:    true,

	ListParamType: core.UnknownType,
}
