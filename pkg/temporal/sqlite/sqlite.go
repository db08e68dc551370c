// Package sqlite exposes the SQLite-backed temporal store backend.
package sqlite

import (
	"time"

	store "github.com/placelore/gazetteer/internal/store/sqlite"
	"github.com/placelore/gazetteer/pkg/gazetteer"
)

// Option is a function that configures a sqlite store
type Option func(*store.Config) error

// WithPath sets the database file path
func WithPath(path string) Option {
	return func(cfg *store.Config) error {
		cfg.Path = path
		return nil
	}
}

// WithCritical overrides the critical attribute set
func WithCritical(critical map[gazetteer.AttributeType]bool) Option {
	return func(cfg *store.Config) error {
		cfg.Critical = critical
		return nil
	}
}

// WithClock overrides the RecordedAt clock (useful in tests)
func WithClock(clock func() time.Time) Option {
	return func(cfg *store.Config) error {
		cfg.Clock = clock
		return nil
	}
}

// New opens a SQLite-backed store. The returned store also implements
// gazetteer.Registry and cursor persistence for the ingestion coordinator.
func New(opts ...Option) (*store.Store, error) {
	cfg := &store.Config{}
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}
	return store.New(*cfg)
}
