// Package app provides the application context and dependency management
// for the gazetteer CLI. It centralizes configuration, dependency
// injection, and lifecycle management.
package app

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/placelore/gazetteer/internal/config"
	"github.com/placelore/gazetteer/pkg/detector"
	"github.com/placelore/gazetteer/pkg/errors"
	"github.com/placelore/gazetteer/pkg/gazetteer"
	"github.com/placelore/gazetteer/pkg/ingest"
	"github.com/placelore/gazetteer/pkg/resolver"
	"github.com/placelore/gazetteer/pkg/review"
	"github.com/placelore/gazetteer/pkg/scoring"
	"github.com/placelore/gazetteer/pkg/sources"
	"github.com/placelore/gazetteer/pkg/temporal"
	tmemory "github.com/placelore/gazetteer/pkg/temporal/memory"
	tsqlite "github.com/placelore/gazetteer/pkg/temporal/sqlite"
)

// App represents the gazetteer application with all its dependencies.
type App struct {
	// Version information
	version string
	commit  string
	date    string

	// Configuration
	config *config.Config

	// Logger
	logger *zerolog.Logger

	// Pipeline components (lazy-initialized, singletons)
	mu          sync.Mutex
	store       temporal.Store
	registry    gazetteer.Registry
	cursors     ingest.CursorStore
	profiles    sources.Profiles
	queue       *review.Queue
	coordinator *ingest.Coordinator
}

// New creates a new App instance with the given version information.
func New(version, commit, date string) (*App, error) {
	app := &App{
		version: version,
		commit:  commit,
		date:    date,
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, errors.NewConfigError("app", "failed to load configuration", err)
	}
	app.config = cfg

	logger := NewLogger(cfg)
	app.logger = &logger

	return app, nil
}

// Version returns the version information.
func (a *App) Version() string {
	return a.version
}

// Config returns the application configuration.
func (a *App) Config() *config.Config {
	return a.config
}

// Logger returns the application logger.
func (a *App) Logger() *zerolog.Logger {
	return a.logger
}

// Store returns the temporal store, opening it on first use.
func (a *App) Store(ctx context.Context) (temporal.Store, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.openLocked(ctx); err != nil {
		return nil, err
	}
	return a.store, nil
}

// Registry returns the entity registry, opening the store on first use.
func (a *App) Registry(ctx context.Context) (gazetteer.Registry, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.openLocked(ctx); err != nil {
		return nil, err
	}
	return a.registry, nil
}

// Queue returns the review queue, opening the store on first use.
func (a *App) Queue(ctx context.Context) (*review.Queue, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.openLocked(ctx); err != nil {
		return nil, err
	}
	return a.queue, nil
}

// Profiles returns the source profiles, merged with any configured
// overrides.
func (a *App) Profiles() (sources.Profiles, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.profilesLocked()
}

func (a *App) profilesLocked() (sources.Profiles, error) {
	if a.profiles != nil {
		return a.profiles, nil
	}
	profiles := sources.DefaultProfiles()
	if a.config.ProfilesPath != "" {
		loaded, err := sources.LoadProfiles(a.config.ProfilesPath)
		if err != nil {
			return nil, err
		}
		profiles = loaded
	}
	a.profiles = profiles
	return profiles, nil
}

// Coordinator returns the ingestion coordinator, assembling the full
// pipeline on first use.
func (a *App) Coordinator(ctx context.Context) (*ingest.Coordinator, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.coordinator != nil {
		return a.coordinator, nil
	}
	if err := a.openLocked(ctx); err != nil {
		return nil, err
	}
	profiles, err := a.profilesLocked()
	if err != nil {
		return nil, err
	}

	var opts []ingest.Option
	if a.config.FetchRetries > 0 {
		opts = append(opts, ingest.WithFetchRetries(a.config.FetchRetries))
	}
	if a.config.RetryBackoff > 0 {
		opts = append(opts, ingest.WithRetryBackoff(a.config.RetryBackoff))
	}
	if a.config.ScoreWorkers > 0 {
		opts = append(opts, ingest.WithScoreWorkers(a.config.ScoreWorkers))
	}

	coordinator, err := ingest.New(ingest.Deps{
		Registry: a.registry,
		Store:    a.store,
		Detector: detector.New(),
		Scorer:   scoring.New(a.config.ScoringConfig(), profiles),
		Resolver: resolver.New(a.config.ResolverConfig(), profiles),
		Queue:    a.queue,
		Cursors:  a.cursors,
	}, opts...)
	if err != nil {
		return nil, err
	}
	a.coordinator = coordinator
	return coordinator, nil
}

// openLocked opens the configured store backend. Callers hold a.mu.
func (a *App) openLocked(_ context.Context) error {
	if a.store != nil {
		return nil
	}

	critical := a.config.Critical()
	queueOpts := []review.Option{review.WithCritical(critical)}
	if a.config.AutoApplyThreshold > 0 {
		queueOpts = append(queueOpts, review.WithThreshold(a.config.AutoApplyThreshold))
	}

	switch a.config.StoreBackend {
	case "sqlite":
		store, err := tsqlite.New(
			tsqlite.WithPath(a.config.StorePath),
			tsqlite.WithCritical(critical),
		)
		if err != nil {
			return err
		}
		a.store = store
		a.registry = store
		a.cursors = store
		// Pending reviews ride in the same database as everything else,
		// so items queued by one invocation survive to the next.
		queueOpts = append(queueOpts, review.WithPersistence(store))
	case "memory":
		registry := gazetteer.NewRegistry()
		store, err := tmemory.New(
			tmemory.WithCritical(critical),
			tmemory.WithRegistry(registry),
		)
		if err != nil {
			return err
		}
		a.store = store
		a.registry = registry
		a.cursors = ingest.NewMemoryCursors()
	default:
		return errors.NewConfigError("store", "unknown backend: "+a.config.StoreBackend, nil)
	}

	a.queue = review.New(queueOpts...)
	return a.queue.Restore()
}

// Shutdown closes the store if it was opened.
func (a *App) Shutdown(_ context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.store == nil {
		return nil
	}
	err := a.store.Close()
	a.store = nil
	a.coordinator = nil
	return err
}
