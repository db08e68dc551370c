package detector_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/placelore/gazetteer/internal/store/memory"
	"github.com/placelore/gazetteer/pkg/detector"
	"github.com/placelore/gazetteer/pkg/gazetteer"
	"github.com/placelore/gazetteer/pkg/temporal"
)

var (
	testNow = time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	jan2020 = time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
)

func newDetector() *detector.Detector {
	return detector.New(detector.WithClock(func() time.Time { return testNow }))
}

// seed registers an entity with one committed name version and returns it.
func seed(t *testing.T, registry gazetteer.Registry, store temporal.Store) gazetteer.Entity {
	t.Helper()
	ctx := context.Background()
	entity, err := registry.Register(ctx, gazetteer.Entity{
		ExternalKeys: []gazetteer.ExternalKey{{Source: "osm_crawl", Key: "node/1"}},
	})
	require.NoError(t, err)
	_, err = store.Commit(ctx, gazetteer.AttributeVersion{
		EntityID:     entity.ID,
		Type:         gazetteer.AttributeName,
		Value:        gazetteer.Value{"name": "St. Mary"},
		Source:       "osm_crawl",
		ValidityFrom: jan2020,
		Confidence:   0.8,
	})
	require.NoError(t, err)
	return entity
}

func observation(key string, typ gazetteer.AttributeType, value gazetteer.Value) gazetteer.Observation {
	return gazetteer.Observation{
		Key:           gazetteer.ExternalKey{Source: "osm_crawl", Key: key},
		AttributeType: typ,
		Value:         value,
		ValidityFrom:  jan2020,
		Source:        "osm_crawl",
		ObservedAt:    testNow,
	}
}

func detect(t *testing.T, registry gazetteer.Registry, store temporal.Store, batch []gazetteer.Observation) *detector.Changeset {
	t.Helper()
	ctx := context.Background()
	snapshot, err := detector.BuildSnapshot(ctx, registry, store, batch)
	require.NoError(t, err)
	changeset, err := newDetector().Detect(ctx, snapshot, batch)
	require.NoError(t, err)
	return changeset
}

func TestDetectCreateForUnknownEntity(t *testing.T) {
	registry := gazetteer.NewRegistry()
	store := memory.New(memory.Config{Registry: registry})

	changeset := detect(t, registry, store, []gazetteer.Observation{
		observation("node/99", gazetteer.AttributeName, gazetteer.Value{"name": "New Place"}),
	})

	require.Len(t, changeset.Changes, 1)
	change := changeset.Changes[0]
	assert.Equal(t, detector.KindCreate, change.Kind)
	assert.Nil(t, change.EntityID, "unregistered entity carries no ID yet")
	assert.Equal(t, 1, changeset.Summary.Creates)
}

func TestDetectCreateForNewAttribute(t *testing.T) {
	registry := gazetteer.NewRegistry()
	store := memory.New(memory.Config{Registry: registry})
	entity := seed(t, registry, store)

	changeset := detect(t, registry, store, []gazetteer.Observation{
		observation("node/1", gazetteer.AttributeCapacity, gazetteer.Value{"capacity": 300}),
	})

	require.Len(t, changeset.Changes, 1)
	change := changeset.Changes[0]
	assert.Equal(t, detector.KindCreate, change.Kind)
	require.NotNil(t, change.EntityID)
	assert.Equal(t, entity.ID, *change.EntityID)
	assert.Nil(t, change.Old)
}

func TestDetectUpdate(t *testing.T) {
	registry := gazetteer.NewRegistry()
	store := memory.New(memory.Config{Registry: registry})
	seed(t, registry, store)

	changeset := detect(t, registry, store, []gazetteer.Observation{
		observation("node/1", gazetteer.AttributeName, gazetteer.Value{"name": "St. Mary Minor"}),
	})

	require.Len(t, changeset.Changes, 1)
	change := changeset.Changes[0]
	assert.Equal(t, detector.KindUpdate, change.Kind)
	require.NotNil(t, change.Old)
	oldName, _ := change.Old.Value.String("name")
	assert.Equal(t, "St. Mary", oldName)
}

func TestDetectNoOpForEqualValue(t *testing.T) {
	registry := gazetteer.NewRegistry()
	store := memory.New(memory.Config{Registry: registry})
	seed(t, registry, store)

	changeset := detect(t, registry, store, []gazetteer.Observation{
		observation("node/1", gazetteer.AttributeName, gazetteer.Value{"name": "St. Mary"}),
	})

	assert.Empty(t, changeset.Changes, "structurally equal observation produces no change")
	assert.Equal(t, 1, changeset.Summary.NoOps)
	assert.False(t, changeset.HasChanges())
}

func TestDetectDelete(t *testing.T) {
	registry := gazetteer.NewRegistry()
	store := memory.New(memory.Config{Registry: registry})
	seed(t, registry, store)

	removal := observation("node/1", "", nil)
	removal.Removed = true

	changeset := detect(t, registry, store, []gazetteer.Observation{removal})

	require.Len(t, changeset.Changes, 1)
	change := changeset.Changes[0]
	assert.Equal(t, detector.KindDelete, change.Kind)
	assert.Equal(t, gazetteer.AttributeStatus, change.AttributeType, "removal targets the status attribute")
	status, _ := change.Observation.Value.String("status")
	assert.Equal(t, "closed", status)
}

func TestDetectIntraBatchConflict(t *testing.T) {
	registry := gazetteer.NewRegistry()
	store := memory.New(memory.Config{Registry: registry})
	seed(t, registry, store)

	a := observation("node/1", gazetteer.AttributeDenomination, gazetteer.Value{"denomination": "baptist"})
	b := observation("node/1", gazetteer.AttributeDenomination, gazetteer.Value{"denomination": "methodist"})
	b.Source = "places_api"

	changeset := detect(t, registry, store, []gazetteer.Observation{a, b})

	require.Len(t, changeset.Changes, 1, "competing observations collapse into one conflict")
	change := changeset.Changes[0]
	assert.Equal(t, detector.KindConflict, change.Kind)
	require.Len(t, change.Candidates, 2)
	assert.ElementsMatch(t, []gazetteer.SourceID{"osm_crawl", "places_api"}, change.Sources())
	assert.Equal(t, 1, changeset.Summary.Conflicts)
}

func TestDetectAgreeingDuplicatesCollapse(t *testing.T) {
	registry := gazetteer.NewRegistry()
	store := memory.New(memory.Config{Registry: registry})
	seed(t, registry, store)

	a := observation("node/1", gazetteer.AttributeCapacity, gazetteer.Value{"capacity": 300})
	b := observation("node/1", gazetteer.AttributeCapacity, gazetteer.Value{"capacity": 300})

	changeset := detect(t, registry, store, []gazetteer.Observation{a, b})

	require.Len(t, changeset.Changes, 1)
	assert.Equal(t, detector.KindCreate, changeset.Changes[0].Kind, "agreeing duplicates are not a conflict")
}

func TestDetectMixedBatch(t *testing.T) {
	registry := gazetteer.NewRegistry()
	store := memory.New(memory.Config{Registry: registry})
	seed(t, registry, store)

	changeset := detect(t, registry, store, []gazetteer.Observation{
		observation("node/1", gazetteer.AttributeName, gazetteer.Value{"name": "St. Mary"}),        // no-op
		observation("node/1", gazetteer.AttributeCapacity, gazetteer.Value{"capacity": 300}),       // create
		observation("node/2", gazetteer.AttributeName, gazetteer.Value{"name": "New Congregation"}), // create
	})

	assert.Equal(t, 2, changeset.Summary.Creates)
	assert.Equal(t, 1, changeset.Summary.NoOps)
	assert.Equal(t, 2, changeset.Summary.Total)
	assert.True(t, changeset.HasChanges())
}
