// Package sqlite provides the SQLite database adapter, backed by the pure Go
// modernc.org/sqlite driver.
//
// Import this package with a blank identifier to register the adapter:
//
//	import _ "github.com/leapstack-labs/leaprest/pkg/adapters/sqlite"
package sqlite

import (
	"log/slog"

	"github.com/leapstack-labs/leaprest/pkg/adapter"

	// The compiler dialect matching this adapter.
	_ "github.com/leapstack-labs/leaprest/pkg/dialects/sqlite"
)

func init() {
	adapter.Register("sqlite", func(logger *slog.Logger) adapter.Adapter { return New(logger) })
}
