package sqlite

import "time"

// Params holds SQLite specific configuration.
// Parsed from adapter.Config.Params using mapstructure.
type Params struct {
	// ForeignKeys toggles foreign key enforcement (default on).
	ForeignKeys *bool `mapstructure:"foreign_keys"`

	// BusyTimeout is how long a locked database is retried.
	BusyTimeout time.Duration `mapstructure:"busy_timeout"`

	// Pragmas are applied to the connection after it opens
	// (e.g. journal_mode, synchronous).
	Pragmas map[string]string `mapstructure:"pragmas"`
}
