// Package temporal defines the contract of the bitemporal attribute store.
// The store exclusively owns committed attribute versions: everything
// upstream of a resolution outcome operates on transient structures.
//
// Versions are append-only. Committing a new open version atomically closes
// the previous open version for the same entity and attribute type, so
// "current state" is always a derived read, never a separately mutated
// table.
package temporal

import (
	"context"
	"time"

	"github.com/placelore/gazetteer/pkg/gazetteer"
)

// Reader provides the query surface consumed by the visualization front end
// and by the change detector.
type Reader interface {
	// CurrentState returns, per attribute type, the single open version
	// with the highest validity-from. Unknown entities yield an empty map.
	CurrentState(ctx context.Context, id gazetteer.EntityID) (map[gazetteer.AttributeType]gazetteer.AttributeVersion, error)

	// StateAt reconstructs the entity's attributes as of the given
	// real-world time. Invariant violations found at read time are
	// surfaced as anomalies alongside the result, never as failures.
	StateAt(ctx context.Context, id gazetteer.EntityID, at time.Time) (State, error)

	// Timeline returns all versions for one entity and attribute type,
	// ordered by validity-from ascending. Finite and restartable.
	Timeline(ctx context.Context, id gazetteer.EntityID, typ gazetteer.AttributeType) ([]gazetteer.AttributeVersion, error)

	// ActiveDuring returns summaries of entities whose attribute intervals
	// intersect [start, end), optionally filtered.
	ActiveDuring(ctx context.Context, start, end time.Time, filter Filter) ([]Summary, error)
}

// Writer provides the single mutation the store supports.
type Writer interface {
	// Commit appends a version. If an open version exists for the same
	// entity and attribute type, it is closed at the new version's
	// validity-from in the same atomic operation. Re-committing an
	// identical fact is a no-op. Returns TemporalOverlapError if a
	// verified critical-attribute overlap would result.
	Commit(ctx context.Context, version gazetteer.AttributeVersion) (CommitResult, error)
}

// Store is the complete bitemporal store interface.
type Store interface {
	Reader
	Writer

	// Close releases backend resources.
	Close() error
}

// State is the result of a point-in-time reconstruction.
type State struct {
	Attributes map[gazetteer.AttributeType]gazetteer.AttributeVersion
	Anomalies  []Anomaly
}

// Anomaly is a non-fatal warning signal attached to a read: the overlap
// invariant was found violated for this entity and attribute type, usually
// from data imported before the invariant was enforced.
type Anomaly struct {
	EntityID      gazetteer.EntityID
	AttributeType gazetteer.AttributeType
	At            time.Time
	Versions      int // number of versions whose intervals contained At
}

// CommitResult describes what a commit did.
type CommitResult struct {
	Applied bool                        // false when the commit was an idempotent no-op
	Closed  *gazetteer.AttributeVersion // the previously open version, if one was closed
}

// Filter narrows ActiveDuring results. Zero value matches everything.
type Filter struct {
	// Region matches entities whose region code starts with the prefix.
	Region string

	// AttributeType restricts the interval intersection to one type.
	AttributeType gazetteer.AttributeType

	// Predicate, if set, must accept at least one intersecting version's
	// value for the entity to be included.
	Predicate func(gazetteer.Value) bool
}

// Summary is one ActiveDuring result row.
type Summary struct {
	Entity   gazetteer.Entity
	Versions []gazetteer.AttributeVersion // the versions intersecting the range, validity-from ascending
}
