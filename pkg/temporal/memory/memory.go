// Package memory exposes the in-memory temporal store backend.
package memory

import (
	"time"

	store "github.com/placelore/gazetteer/internal/store/memory"
	"github.com/placelore/gazetteer/pkg/gazetteer"
	"github.com/placelore/gazetteer/pkg/temporal"
)

// Option is a function that configures a memory store
type Option func(*store.Config) error

// WithCritical overrides the critical attribute set
func WithCritical(critical map[gazetteer.AttributeType]bool) Option {
	return func(cfg *store.Config) error {
		cfg.Critical = critical
		return nil
	}
}

// WithRegistry attaches an entity registry for ActiveDuring summaries
func WithRegistry(registry gazetteer.Registry) Option {
	return func(cfg *store.Config) error {
		cfg.Registry = registry
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

// New creates an in-memory temporal store
func New(opts ...Option) (temporal.Store, error) {
	cfg := &store.Config{}
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}
	return store.New(*cfg), nil
}
