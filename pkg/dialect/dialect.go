// Package dialect defines the contract between the compiler and the SQL
// dialects it targets, plus the shared rendering toolkit the dialects build on.
//
// Concrete dialect implementations are registered from pkg/dialects/*/ packages.
package dialect

import (
	"github.com/leapstack-labs/leaprest/pkg/core"
	"github.com/leapstack-labs/leaprest/pkg/sqlfrag"
)

// Dialect renders resolved requests into SQL for one database family.
type Dialect interface {
	// Name returns the canonical dialect name.
	Name() string

	// Config returns the static dialect configuration.
	Config() *core.DialectConfig

	// Placeholder formats the 1-based parameter index.
	Placeholder(index int) string

	// EnvStatement renders the statement that exposes request context to SQL.
	EnvStatement(env []core.Pair) sqlfrag.Snippet

	// MainStatement renders the single statement that answers a request.
	MainStatement(req *core.ApiRequest) (sqlfrag.Snippet, error)

	// MutateStatement renders the write half of a two-stage request. Its
	// result rows carry the primary key of every affected row.
	MutateStatement(req *core.ApiRequest) (sqlfrag.Snippet, error)
}
