package postgres

import (
	"log/slog"

	"github.com/leapstack-labs/leaprest/pkg/adapter"

	// The compiler dialect matching this adapter.
	_ "github.com/leapstack-labs/leaprest/pkg/dialects/postgres"
)

func init() {
	adapter.Register("postgres", func(logger *slog.Logger) adapter.Adapter { return New(logger) })
}
