// Package memory implements the bitemporal attribute store in process
// memory. It backs tests and ephemeral query sessions; durable deployments
// use the sqlite backend, which shares the same commit discipline.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/placelore/gazetteer/internal/store/lock"
	"github.com/placelore/gazetteer/pkg/gazetteer"
	"github.com/placelore/gazetteer/pkg/temporal"
)

// Config configures a memory store.
type Config struct {
	// Critical lists the attribute types with verified-overlap enforcement.
	// Nil selects the default critical set.
	Critical map[gazetteer.AttributeType]bool

	// Registry, if set, supplies entity records for ActiveDuring summaries.
	Registry gazetteer.Registry

	// Clock stamps RecordedAt on versions committed without one.
	Clock func() time.Time
}

// Store is the in-memory temporal store.
type Store struct {
	mu       sync.RWMutex
	locks    *lock.Partitioned
	versions map[gazetteer.EntityID]map[gazetteer.AttributeType][]gazetteer.AttributeVersion
	critical map[gazetteer.AttributeType]bool
	registry gazetteer.Registry
	clock    func() time.Time
}

// New creates an in-memory temporal store.
func New(cfg Config) *Store {
	critical := cfg.Critical
	if critical == nil {
		critical = gazetteer.DefaultCriticalAttributes()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Store{
		locks:    lock.NewPartitioned(0),
		versions: make(map[gazetteer.EntityID]map[gazetteer.AttributeType][]gazetteer.AttributeVersion),
		critical: critical,
		registry: cfg.Registry,
		clock:    clock,
	}
}

// commitKey serializes commits per (entity, attribute type).
func commitKey(id gazetteer.EntityID, typ gazetteer.AttributeType) string {
	return string(id) + "/" + string(typ)
}

// Commit appends a version, closing any superseded open version atomically.
func (s *Store) Commit(_ context.Context, version gazetteer.AttributeVersion) (temporal.CommitResult, error) {
	if err := version.Validate(); err != nil {
		return temporal.CommitResult{}, err
	}
	if version.Verification == "" {
		version.Verification = gazetteer.VerificationUnverified
	}
	if version.RecordedAt.IsZero() {
		version.RecordedAt = s.clock().UTC()
	}

	key := commitKey(version.EntityID, version.Type)
	s.locks.Lock(key)
	defer s.locks.Unlock(key)

	existing := s.timeline(version.EntityID, version.Type)

	// Idempotence: re-committing an identical fact is a no-op.
	for _, v := range existing {
		if version.SameFact(v) {
			return temporal.CommitResult{Applied: false}, nil
		}
	}

	// Close-on-new-open-write: the open predecessor, if any, ends where
	// the new version begins.
	var closed *gazetteer.AttributeVersion
	remaining := make([]gazetteer.AttributeVersion, 0, len(existing))
	for _, v := range existing {
		if version.Supersedes(v) {
			was := v
			closed = &was
			to := version.ValidityFrom
			v.ValidityTo = &to
		}
		remaining = append(remaining, v)
	}

	if err := temporal.CheckCriticalOverlap(version, remaining, s.critical); err != nil {
		return temporal.CommitResult{}, err
	}

	remaining = append(remaining, version)
	sortVersions(remaining)

	s.mu.Lock()
	byType, ok := s.versions[version.EntityID]
	if !ok {
		byType = make(map[gazetteer.AttributeType][]gazetteer.AttributeVersion)
		s.versions[version.EntityID] = byType
	}
	byType[version.Type] = remaining
	s.mu.Unlock()

	return temporal.CommitResult{Applied: true, Closed: closed}, nil
}

// timeline reads a copy of the stored versions for one entity and type.
func (s *Store) timeline(id gazetteer.EntityID, typ gazetteer.AttributeType) []gazetteer.AttributeVersion {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stored := s.versions[id][typ]
	out := make([]gazetteer.AttributeVersion, len(stored))
	copy(out, stored)
	return out
}

// Timeline returns all versions ordered by validity-from ascending.
func (s *Store) Timeline(_ context.Context, id gazetteer.EntityID, typ gazetteer.AttributeType) ([]gazetteer.AttributeVersion, error) {
	return s.timeline(id, typ), nil
}

// CurrentState derives the open version per attribute type.
func (s *Store) CurrentState(_ context.Context, id gazetteer.EntityID) (map[gazetteer.AttributeType]gazetteer.AttributeVersion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	state := make(map[gazetteer.AttributeType]gazetteer.AttributeVersion)
	for typ, versions := range s.versions[id] {
		if current, ok := currentOf(versions); ok {
			state[typ] = current
		}
	}
	return state, nil
}

// StateAt reconstructs the entity's attributes as of the given time.
func (s *Store) StateAt(_ context.Context, id gazetteer.EntityID, at time.Time) (temporal.State, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	state := temporal.State{Attributes: make(map[gazetteer.AttributeType]gazetteer.AttributeVersion)}
	for typ, versions := range s.versions[id] {
		matched := versionsAt(versions, at)
		switch {
		case len(matched) == 1:
			state.Attributes[typ] = matched[0]
		case len(matched) > 1:
			// Invariant violated, usually by pre-enforcement imports.
			// Answer with the latest-recorded version and surface the
			// anomaly; reads never fail on legacy overlaps.
			state.Attributes[typ] = latestRecorded(matched)
			state.Anomalies = append(state.Anomalies, temporal.Anomaly{
				EntityID:      id,
				AttributeType: typ,
				At:            at,
				Versions:      len(matched),
			})
		}
	}
	return state, nil
}

// ActiveDuring returns entities whose attribute intervals intersect [start, end).
func (s *Store) ActiveDuring(ctx context.Context, start, end time.Time, filter temporal.Filter) ([]temporal.Summary, error) {
	entities, err := s.entities(ctx)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var summaries []temporal.Summary
	for _, entity := range entities {
		if filter.Region != "" && !strings.HasPrefix(entity.Region, filter.Region) {
			continue
		}
		var intersecting []gazetteer.AttributeVersion
		for typ, versions := range s.versions[entity.ID] {
			if filter.AttributeType != "" && typ != filter.AttributeType {
				continue
			}
			for _, v := range versions {
				if intersects(v, start, end) {
					intersecting = append(intersecting, v)
				}
			}
		}
		if len(intersecting) == 0 {
			continue
		}
		if filter.Predicate != nil && !anyValue(intersecting, filter.Predicate) {
			continue
		}
		sortVersions(intersecting)
		summaries = append(summaries, temporal.Summary{Entity: entity, Versions: intersecting})
	}

	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].Entity.ID < summaries[j].Entity.ID
	})
	return summaries, nil
}

// Close releases backend resources. The memory backend holds none.
func (s *Store) Close() error {
	return nil
}

// entities lists candidate entities for ActiveDuring: the registry when one
// is attached, otherwise bare records synthesized from committed versions.
func (s *Store) entities(ctx context.Context) ([]gazetteer.Entity, error) {
	if s.registry != nil {
		return s.registry.List(ctx)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	entities := make([]gazetteer.Entity, 0, len(s.versions))
	for id := range s.versions {
		entities = append(entities, gazetteer.Entity{ID: id})
	}
	return entities, nil
}

// currentOf picks the open version with the highest validity-from.
func currentOf(versions []gazetteer.AttributeVersion) (gazetteer.AttributeVersion, bool) {
	var current gazetteer.AttributeVersion
	found := false
	for _, v := range versions {
		if !v.IsOpen() {
			continue
		}
		if !found || v.ValidityFrom.After(current.ValidityFrom) ||
			(v.ValidityFrom.Equal(current.ValidityFrom) && v.RecordedAt.After(current.RecordedAt)) {
			current = v
			found = true
		}
	}
	return current, found
}

// versionsAt collects the versions whose validity interval contains at.
func versionsAt(versions []gazetteer.AttributeVersion, at time.Time) []gazetteer.AttributeVersion {
	var matched []gazetteer.AttributeVersion
	for _, v := range versions {
		if v.Contains(at) {
			matched = append(matched, v)
		}
	}
	return matched
}

// latestRecorded picks the version the system learned of most recently.
func latestRecorded(versions []gazetteer.AttributeVersion) gazetteer.AttributeVersion {
	latest := versions[0]
	for _, v := range versions[1:] {
		if v.RecordedAt.After(latest.RecordedAt) {
			latest = v
		}
	}
	return latest
}

// intersects reports whether the version's interval intersects [start, end).
func intersects(v gazetteer.AttributeVersion, start, end time.Time) bool {
	if !v.ValidityFrom.Before(end) {
		return false
	}
	return v.ValidityTo == nil || v.ValidityTo.After(start)
}

// anyValue reports whether any version's value satisfies the predicate.
func anyValue(versions []gazetteer.AttributeVersion, predicate func(gazetteer.Value) bool) bool {
	for _, v := range versions {
		if predicate(v.Value) {
			return true
		}
	}
	return false
}

// sortVersions orders by validity-from ascending, recorded-at as tiebreak.
func sortVersions(versions []gazetteer.AttributeVersion) {
	sort.Slice(versions, func(i, j int) bool {
		if versions[i].ValidityFrom.Equal(versions[j].ValidityFrom) {
			return versions[i].RecordedAt.Before(versions[j].RecordedAt)
		}
		return versions[i].ValidityFrom.Before(versions[j].ValidityFrom)
	})
}
