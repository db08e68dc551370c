// Package sources defines the source adapter interface and the profiles
// describing each feed's trustworthiness. Adapters produce uniform
// observation records; their internals (crawl parsing, API clients,
// curation tooling) live behind the Fetch boundary.
//
// New feeds are new implementations of the Source interface, never
// subclasses of an existing adapter.
package sources

import (
	"context"
	"slices"
	"sync"

	"github.com/placelore/gazetteer/pkg/gazetteer"
)

// Standard source identifiers.
const (
	OSMCrawlID       gazetteer.SourceID = "osm_crawl"
	PlacesAPIID      gazetteer.SourceID = "places_api"
	ManualCurationID gazetteer.SourceID = "manual_curation"
	StatsImportID    gazetteer.SourceID = "stats_import"
)

// IDs returns the standard source identifiers.
func IDs() []gazetteer.SourceID {
	return []gazetteer.SourceID{
		OSMCrawlID,
		PlacesAPIID,
		ManualCurationID,
		StatsImportID,
	}
}

// IsStandard returns true if the ID is one of the standard sources.
func IsStandard(id gazetteer.SourceID) bool {
	return slices.Contains(IDs(), id)
}

// Source is one external feed of candidate facts.
type Source interface {
	// ID returns the adapter's namespace identifier
	ID() gazetteer.SourceID

	// Fetch retrieves the next batch of observations after the cursor.
	// An empty cursor starts from the beginning; the returned cursor
	// resumes the feed and must be adapter-defined and resumable
	// (timestamp, changeset ID, or page token). An empty next cursor
	// means the feed is exhausted.
	Fetch(ctx context.Context, cursor string) ([]gazetteer.Observation, string, error)
}

// Sources is a thread-safe container for managing multiple source adapters.
type Sources struct {
	mu      sync.RWMutex
	sources map[gazetteer.SourceID]Source
}

// NewSources creates a new Sources instance.
func NewSources() *Sources {
	return &Sources{
		sources: make(map[gazetteer.SourceID]Source),
	}
}

// Get returns a source by ID.
func (s *Sources) Get(id gazetteer.SourceID) (Source, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	src, found := s.sources[id]
	return src, found
}

// Set sets a source by ID.
func (s *Sources) Set(id gazetteer.SourceID, src Source) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sources[id] = src
}

// Delete deletes a source by ID.
func (s *Sources) Delete(id gazetteer.SourceID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sources, id)
}

// Len returns the number of sources.
func (s *Sources) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sources)
}

// List returns a slice of all sources.
func (s *Sources) List() []Source {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sources := make([]Source, 0, len(s.sources))
	for _, src := range s.sources {
		sources = append(sources, src)
	}
	return sources
}

// IDs returns a slice of all registered source IDs.
func (s *Sources) IDs() []gazetteer.SourceID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]gazetteer.SourceID, 0, len(s.sources))
	for id := range s.sources {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}
