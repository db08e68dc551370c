// Package detector compares observation batches against current store
// state and classifies the differences into candidate changes.
package detector

import (
	"fmt"
	"strings"
	"time"

	"github.com/placelore/gazetteer/pkg/gazetteer"
)

// Kind represents the type of detected change.
type Kind string

const (
	// KindCreate indicates a new entity or a new attribute on an existing entity.
	KindCreate Kind = "create"
	// KindUpdate indicates an existing attribute value changed.
	KindUpdate Kind = "update"
	// KindDelete indicates the source reports the place removed or closed.
	KindDelete Kind = "delete"
	// KindConflict bundles competing candidates for the same entity,
	// attribute, and overlapping interval.
	KindConflict Kind = "conflict"
)

// DetectedChange is a classified diff between an observation and current
// store state. It is transient: only a resolution outcome turns it into a
// committed attribute version.
type DetectedChange struct {
	EntityID      *gazetteer.EntityID // nil when the entity is not yet registered
	Key           gazetteer.ExternalKey
	AttributeType gazetteer.AttributeType
	Kind          Kind
	Old           *gazetteer.AttributeVersion // nil for creates
	Observation   gazetteer.Observation
	Confidence    float64 // filled in by the scorer
	DetectedAt    time.Time

	// Candidates holds the competing changes when Kind is KindConflict.
	Candidates []DetectedChange
}

// Sources returns the distinct sources behind this change, conflict
// candidates included.
func (c DetectedChange) Sources() []gazetteer.SourceID {
	if c.Kind != KindConflict {
		return []gazetteer.SourceID{c.Observation.Source}
	}
	var ids []gazetteer.SourceID
	seen := make(map[gazetteer.SourceID]bool)
	for _, candidate := range c.Candidates {
		if !seen[candidate.Observation.Source] {
			seen[candidate.Observation.Source] = true
			ids = append(ids, candidate.Observation.Source)
		}
	}
	return ids
}

// Changeset is the detector's output for one batch.
type Changeset struct {
	Changes []DetectedChange
	Summary Summary
}

// Summary provides summary statistics for a changeset.
type Summary struct {
	Creates   int
	Updates   int
	Deletes   int
	Conflicts int
	NoOps     int // observations structurally equal to current state
	Total     int
}

// HasChanges returns true if the changeset contains any changes.
func (c *Changeset) HasChanges() bool {
	return c.Summary.Total > 0
}

// String returns a human-readable summary of the changeset.
func (c *Changeset) String() string {
	if !c.HasChanges() {
		return "No changes detected"
	}
	var parts []string
	if c.Summary.Creates > 0 {
		parts = append(parts, fmt.Sprintf("%d created", c.Summary.Creates))
	}
	if c.Summary.Updates > 0 {
		parts = append(parts, fmt.Sprintf("%d updated", c.Summary.Updates))
	}
	if c.Summary.Deletes > 0 {
		parts = append(parts, fmt.Sprintf("%d deleted", c.Summary.Deletes))
	}
	if c.Summary.Conflicts > 0 {
		parts = append(parts, fmt.Sprintf("%d conflicts", c.Summary.Conflicts))
	}
	return fmt.Sprintf("Changeset: %s (Total: %d changes)", strings.Join(parts, ", "), c.Summary.Total)
}

// calculateSummary computes the summary for a set of changes.
func calculateSummary(changes []DetectedChange, noOps int) Summary {
	summary := Summary{NoOps: noOps}
	for _, change := range changes {
		switch change.Kind {
		case KindCreate:
			summary.Creates++
		case KindUpdate:
			summary.Updates++
		case KindDelete:
			summary.Deletes++
		case KindConflict:
			summary.Conflicts++
		}
	}
	summary.Total = len(changes)
	return summary
}
