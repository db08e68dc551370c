package ingest

import (
	"context"
	"sync"

	"github.com/placelore/gazetteer/pkg/gazetteer"
)

// CursorStore persists per-source fetch cursors so interrupted runs
// resume where the last fully committed batch ended.
type CursorStore interface {
	// Cursor returns the saved cursor for a source, empty if none.
	Cursor(ctx context.Context, source gazetteer.SourceID) (string, error)

	// SetCursor saves the cursor for a source.
	SetCursor(ctx context.Context, source gazetteer.SourceID, cursor string) error
}

// MemoryCursors is an in-process CursorStore. Cursors do not survive a
// restart; use a persistent store for resumable ingestion.
type MemoryCursors struct {
	mu      sync.RWMutex
	cursors map[gazetteer.SourceID]string
}

// NewMemoryCursors creates an empty in-process cursor store.
func NewMemoryCursors() *MemoryCursors {
	return &MemoryCursors{
		cursors: make(map[gazetteer.SourceID]string),
	}
}

// Cursor returns the saved cursor for a source, empty if none.
func (m *MemoryCursors) Cursor(_ context.Context, source gazetteer.SourceID) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cursors[source], nil
}

// SetCursor saves the cursor for a source.
func (m *MemoryCursors) SetCursor(_ context.Context, source gazetteer.SourceID, cursor string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cursors[source] = cursor
	return nil
}
