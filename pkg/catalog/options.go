package catalog

import (
	"log/slog"
	"time"
)

// DemoPolicy bounds what a catalog without a full license may do.
// Zero values leave the corresponding dimension unrestricted.
type DemoPolicy struct {
	// MaxRelations caps the number of relations across all schemas.
	MaxRelations int `koanf:"max_relations" json:"max_relations"`
	// MaxRows clamps the page size of every read.
	MaxRows int `koanf:"max_rows" json:"max_rows"`
}

type options struct {
	license   string
	publicKey string
	policy    DemoPolicy
	logger    *slog.Logger
	now       func() time.Time
}

// Option configures Load.
type Option func(*options)

// WithLicense sets the license key. An empty key loads the catalog in demo mode.
func WithLicense(key string) Option {
	return func(o *options) {
		o.license = key
	}
}

// WithPublicKey sets the base64 ed25519 key licenses are verified against.
func WithPublicKey(key string) Option {
	return func(o *options) {
		o.publicKey = key
	}
}

// WithDemoPolicy sets the limits applied in demo mode.
func WithDemoPolicy(p DemoPolicy) Option {
	return func(o *options) {
		o.policy = p
	}
}

// WithLogger sets the logger for load diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithClock sets the time source used for license expiry.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}
