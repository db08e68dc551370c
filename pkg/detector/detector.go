package detector

import (
	"context"
	"time"

	"github.com/placelore/gazetteer/pkg/errors"
	"github.com/placelore/gazetteer/pkg/gazetteer"
	"github.com/placelore/gazetteer/pkg/logging"
	"github.com/placelore/gazetteer/pkg/temporal"
)

// Snapshot is a batch-fetched view of the store state the detector
// diffs against. Building it once per batch avoids a store round-trip
// per observation.
type Snapshot struct {
	// Entities maps external keys to resolved entities.
	Entities map[string]gazetteer.Entity
	// Current maps entity ID and attribute type to the open version.
	Current map[gazetteer.EntityID]map[gazetteer.AttributeType]gazetteer.AttributeVersion
}

// Entity resolves an external key against the snapshot.
func (s *Snapshot) Entity(key gazetteer.ExternalKey) (gazetteer.Entity, bool) {
	entity, ok := s.Entities[key.String()]
	return entity, ok
}

// CurrentVersion returns the open version for an entity attribute, if any.
func (s *Snapshot) CurrentVersion(id gazetteer.EntityID, attrType gazetteer.AttributeType) (gazetteer.AttributeVersion, bool) {
	attrs, ok := s.Current[id]
	if !ok {
		return gazetteer.AttributeVersion{}, false
	}
	version, ok := attrs[attrType]
	return version, ok
}

// BuildSnapshot resolves every external key in the batch through the
// registry and fetches current state for each resolved entity.
func BuildSnapshot(ctx context.Context, registry gazetteer.Registry, reader temporal.Reader, batch []gazetteer.Observation) (*Snapshot, error) {
	snapshot := &Snapshot{
		Entities: make(map[string]gazetteer.Entity),
		Current:  make(map[gazetteer.EntityID]map[gazetteer.AttributeType]gazetteer.AttributeVersion),
	}
	for _, obs := range batch {
		keyStr := obs.Key.String()
		if _, done := snapshot.Entities[keyStr]; done {
			continue
		}
		entity, err := registry.ByExternalKey(ctx, obs.Key)
		if err != nil {
			if errors.IsNotFound(err) {
				continue
			}
			return nil, errors.WrapResource("resolve", "external key", keyStr, err)
		}
		snapshot.Entities[keyStr] = entity
		if _, done := snapshot.Current[entity.ID]; done {
			continue
		}
		attrs, err := reader.CurrentState(ctx, entity.ID)
		if err != nil {
			if errors.IsNotFound(err) {
				snapshot.Current[entity.ID] = make(map[gazetteer.AttributeType]gazetteer.AttributeVersion)
				continue
			}
			return nil, errors.WrapResource("read", "entity state", string(entity.ID), err)
		}
		snapshot.Current[entity.ID] = attrs
	}
	return snapshot, nil
}

// Detector classifies observation batches into changesets.
type Detector struct {
	clock func() time.Time
}

// Option configures a Detector.
type Option func(*Detector)

// WithClock overrides the detection timestamp source.
func WithClock(clock func() time.Time) Option {
	return func(d *Detector) {
		d.clock = clock
	}
}

// New creates a Detector.
func New(opts ...Option) *Detector {
	d := &Detector{
		clock: time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Detect diffs a batch against the snapshot and returns the resulting
// changeset. Observations structurally equal to current state produce
// no change. Two or more observations in the same batch targeting the
// same entity and attribute with overlapping validity but differing
// values collapse into a single conflict change carrying both
// candidates.
func (d *Detector) Detect(ctx context.Context, snapshot *Snapshot, batch []gazetteer.Observation) (*Changeset, error) {
	log := logging.FromContext(ctx)
	now := d.clock().UTC()

	var changes []DetectedChange
	noOps := 0
	for _, obs := range batch {
		if err := ctx.Err(); err != nil {
			return nil, errors.ErrCanceled
		}
		change, ok := d.classify(snapshot, obs, now)
		if !ok {
			noOps++
			continue
		}
		changes = append(changes, change)
	}

	changes = mergeConflicts(changes, now)

	changeset := &Changeset{
		Changes: changes,
		Summary: calculateSummary(changes, noOps),
	}
	log.Debug().
		Int("observations", len(batch)).
		Int("changes", changeset.Summary.Total).
		Int("conflicts", changeset.Summary.Conflicts).
		Int("noops", noOps).
		Msg("detection complete")
	return changeset, nil
}

// classify turns one observation into a change, or reports a no-op.
func (d *Detector) classify(snapshot *Snapshot, obs gazetteer.Observation, now time.Time) (DetectedChange, bool) {
	change := DetectedChange{
		Key:           obs.Key,
		AttributeType: obs.AttributeType,
		Observation:   obs,
		DetectedAt:    now,
	}

	entity, known := snapshot.Entity(obs.Key)
	if known {
		id := entity.ID
		change.EntityID = &id
	}

	if obs.Removed {
		change.Kind = KindDelete
		if change.AttributeType == "" {
			change.AttributeType = gazetteer.AttributeStatus
		}
		if change.Observation.Value == nil {
			change.Observation.Value = gazetteer.Value{"status": "closed"}
			change.Observation.AttributeType = change.AttributeType
		}
		if known {
			if current, ok := snapshot.CurrentVersion(entity.ID, change.AttributeType); ok {
				old := current
				change.Old = &old
			}
		}
		return change, true
	}

	if !known {
		change.Kind = KindCreate
		return change, true
	}

	current, exists := snapshot.CurrentVersion(entity.ID, obs.AttributeType)
	if !exists {
		// Known entity, first observation of this attribute.
		change.Kind = KindCreate
		return change, true
	}
	if current.Value.Equal(obs.Value) {
		return DetectedChange{}, false
	}

	old := current
	change.Kind = KindUpdate
	change.Old = &old
	return change, true
}

// mergeConflicts collapses candidates targeting the same entity and
// attribute with overlapping proposed validity into conflict changes.
// Order of first appearance is preserved.
func mergeConflicts(changes []DetectedChange, now time.Time) []DetectedChange {
	groups := make(map[string][]int)
	var order []string
	for i, change := range changes {
		key := groupKey(change)
		if _, seen := groups[key]; !seen {
			order = append(order, key)
		}
		groups[key] = append(groups[key], i)
	}

	var merged []DetectedChange
	for _, key := range order {
		indices := groups[key]
		if len(indices) == 1 {
			merged = append(merged, changes[indices[0]])
			continue
		}
		candidates := conflicting(changes, indices)
		if len(candidates) == 1 {
			merged = append(merged, candidates[0])
			continue
		}
		first := candidates[0]
		merged = append(merged, DetectedChange{
			EntityID:      first.EntityID,
			Key:           first.Key,
			AttributeType: first.AttributeType,
			Kind:          KindConflict,
			Old:           first.Old,
			Observation:   first.Observation,
			DetectedAt:    now,
			Candidates:    candidates,
		})
	}
	return merged
}

// conflicting filters a group down to candidates whose proposed
// validity overlaps and whose values actually differ. Observations
// agreeing on the same value are deduplicated to the earliest one.
func conflicting(changes []DetectedChange, indices []int) []DetectedChange {
	var out []DetectedChange
	for _, i := range indices {
		candidate := changes[i]
		duplicate := false
		for _, kept := range out {
			if kept.Observation.Value.Equal(candidate.Observation.Value) &&
				kept.Observation.ValidityFrom.Equal(candidate.Observation.ValidityFrom) {
				duplicate = true
				break
			}
		}
		if !duplicate {
			out = append(out, candidate)
		}
	}
	return out
}

// groupKey identifies the entity-attribute slot a change targets. The
// entity ID is preferred so differently-keyed observations of the same
// registered entity still correlate.
func groupKey(change DetectedChange) string {
	if change.EntityID != nil {
		return string(*change.EntityID) + "|" + string(change.AttributeType)
	}
	return change.Key.String() + "|" + string(change.AttributeType)
}
