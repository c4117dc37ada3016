// Package adapter provides the database adapters the gateway and CLI use to
// execute compiled statements and to introspect live schemas.
//
// The compiler itself never touches a database; adapters are the only code
// that does. Concrete adapters live in pkg/adapters/ subdirectories and
// register themselves in init().
package adapter

import (
	"context"

	"github.com/leapstack-labs/leaprest/pkg/catalog"
	"github.com/leapstack-labs/leaprest/pkg/compiler"
	"github.com/leapstack-labs/leaprest/pkg/core"
)

// Config is the connection configuration of an adapter.
type Config = core.AdapterConfig

// Adapter defines the interface that all database adapters must implement.
type Adapter interface {
	// Connect establishes a connection to the database using the provided config.
	Connect(ctx context.Context, cfg Config) error

	// Close closes the database connection and releases resources.
	Close() error

	// Exec runs a statement that returns no rows.
	Exec(ctx context.Context, stmt *core.Statement) error

	// Run executes env and main in one transaction and returns the response row.
	Run(ctx context.Context, env, main *core.Statement) (*Result, error)

	// RunTwoStage executes env, the mutate stage, feeds the returned keys to
	// ts and executes the select stage, all in one transaction.
	RunTwoStage(ctx context.Context, env *core.Statement, ts *compiler.TwoStage) (*Result, error)

	// Introspect reads the named schemas into a schema description.
	Introspect(ctx context.Context, schemas []string) (*catalog.Document, error)

	// DialectName returns the compiler dialect matching this database.
	DialectName() string
}

// Result is the single row every main statement produces.
type Result struct {
	PageTotal            int64   `json:"page_total"`
	TotalResultSet       *int64  `json:"total_result_set"`
	Body                 string  `json:"body"`
	ResponseHeaders      *string `json:"response_headers"`
	ResponseStatus       *string `json:"response_status"`
	ConstraintsSatisfied bool    `json:"constraints_satisfied"`
}
