// Package sqlite provides the SQLite SQL dialect definition.
// This package is pure Go with no database driver dependencies.
package sqlite

import "github.com/leapstack-labs/leaprest/pkg/core"

// Config is the SQLite dialect configuration.
// Relations are never schema-qualified and writes run as a separate
// statement, so mutation CTEs, range operators and full text search are off.
var Config = &core.DialectConfig{
	Name:        "sqlite",
	Aliases:     []string{"sqlite3"},
	Placeholder: core.PlaceholderQuestion,
	Identifiers: core.IdentifierConfig{
		Quote:    `"`,
		QuoteEnd: `"`,
		Escape:   `""`,
	},
	SchemaQualified: false,

	SupportsSessionVars: false,
	SupportsReturning:   true,
	SupportsMutationCTE: false,
	SupportsCSV:         false,
	SupportsRangeOps:    false,
	SupportsFullText:    false,

	ListParamType: core.UnknownType,
	ImplicitRowID: "rowid",
}
