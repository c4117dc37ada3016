package core

// DialectConfig holds the static configuration for a SQL dialect.
// It holds data only; rendering lives in pkg/dialect.
type DialectConfig struct {
	// Name is the dialect identifier (e.g., "postgresql", "sqlite")
	Name string

	// Aliases are alternative names accepted by the registry
	Aliases []string

	// Identifiers defines quoting rules
	Identifiers IdentifierConfig

	// Placeholder defines how query parameters are formatted
	Placeholder PlaceholderStyle

	// SchemaQualified renders relations as "schema"."name" when true
	SchemaQualified bool

	// Capability flags
	SupportsSessionVars bool // set_config style request context
	SupportsReturning   bool // RETURNING after INSERT/UPDATE/DELETE
	SupportsMutationCTE bool // INSERT/UPDATE/DELETE inside WITH
	SupportsCSV         bool // text/csv response bodies
	SupportsRangeOps    bool // @>, <@, &&, <<, >>, &<, &>, -|-
	SupportsFullText    bool // fts operators

	// ListParamType is the type reported for list-valued parameters
	ListParamType string

	// ImplicitRowID names the column used when a relation has no primary key
	ImplicitRowID string
}

// PlaceholderStyle defines how query parameters are formatted.
type PlaceholderStyle int

const (
	// PlaceholderQuestion uses ? for all parameters (SQLite).
	PlaceholderQuestion PlaceholderStyle = iota
	// PlaceholderDollar uses $1, $2, etc. for parameters (PostgreSQL).
	PlaceholderDollar
)

// IdentifierConfig defines how identifiers are quoted.
type IdentifierConfig struct {
	Quote    string // Quote character: ", `, [
	QuoteEnd string // End quote character (usually same as Quote, ] for [)
	Escape   string // Escape sequence: "", ``, ]]
}
