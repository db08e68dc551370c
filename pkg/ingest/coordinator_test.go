package ingest_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/placelore/gazetteer/internal/store/memory"
	"github.com/placelore/gazetteer/pkg/detector"
	"github.com/placelore/gazetteer/pkg/errors"
	"github.com/placelore/gazetteer/pkg/gazetteer"
	"github.com/placelore/gazetteer/pkg/ingest"
	"github.com/placelore/gazetteer/pkg/resolver"
	"github.com/placelore/gazetteer/pkg/review"
	"github.com/placelore/gazetteer/pkg/scoring"
	"github.com/placelore/gazetteer/pkg/sources"
)

var testNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func clock() time.Time { return testNow }

// pipeline bundles a coordinator with the components tests assert against.
type pipeline struct {
	registry    gazetteer.Registry
	store       *memory.Store
	queue       *review.Queue
	cursors     *ingest.MemoryCursors
	coordinator *ingest.Coordinator
}

func newPipeline(t *testing.T, opts ...ingest.Option) *pipeline {
	t.Helper()

	registry := gazetteer.NewRegistry()
	store := memory.New(memory.Config{Registry: registry, Clock: clock})
	profiles := sources.DefaultProfiles()
	queue := review.New(review.WithClock(clock))
	cursors := ingest.NewMemoryCursors()

	opts = append([]ingest.Option{
		ingest.WithClock(clock),
		ingest.WithRetryBackoff(time.Millisecond),
		ingest.WithScoreWorkers(2),
	}, opts...)

	coordinator, err := ingest.New(ingest.Deps{
		Registry: registry,
		Store:    store,
		Detector: detector.New(detector.WithClock(clock)),
		Scorer:   scoring.New(scoring.Config{Clock: clock}, profiles),
		Resolver: resolver.New(resolver.DefaultConfig(), profiles),
		Queue:    queue,
		Cursors:  cursors,
	}, opts...)
	require.NoError(t, err)

	return &pipeline{
		registry:    registry,
		store:       store,
		queue:       queue,
		cursors:     cursors,
		coordinator: coordinator,
	}
}

func observation(source gazetteer.SourceID, key string, typ gazetteer.AttributeType, value gazetteer.Value, validityFrom time.Time) gazetteer.Observation {
	return gazetteer.Observation{
		Key:           gazetteer.ExternalKey{Source: source, Key: key},
		AttributeType: typ,
		Value:         value,
		Source:        source,
		ValidityFrom:  validityFrom,
		ObservedAt:    testNow,
	}
}

func entityFor(t *testing.T, p *pipeline, key gazetteer.ExternalKey) gazetteer.Entity {
	t.Helper()
	entity, err := p.registry.ByExternalKey(context.Background(), key)
	require.NoError(t, err)
	return entity
}

func TestRunRegistersNewEntities(t *testing.T) {
	p := newPipeline(t)
	ctx := context.Background()
	validity := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	source := sources.NewStatic(sources.StatsImportID, []gazetteer.Observation{
		observation(sources.StatsImportID, "par-001", gazetteer.AttributeName,
			gazetteer.Value{"name": "St. Mary Parish Church"}, validity),
		observation(sources.StatsImportID, "par-001", gazetteer.AttributeCapacity,
			gazetteer.Value{"capacity": 250}, validity),
	})

	report, err := p.coordinator.Run(ctx, source)
	require.NoError(t, err)
	assert.Equal(t, ingest.PhaseCompleted, report.Phase)
	assert.Equal(t, 1, report.Batches)
	assert.Equal(t, 2, report.Fetched)
	assert.Equal(t, 2, report.Detected)
	assert.Equal(t, 2, report.Applied)
	assert.Equal(t, 0, report.Queued)

	entity := entityFor(t, p, gazetteer.ExternalKey{Source: sources.StatsImportID, Key: "par-001"})
	state, err := p.store.CurrentState(ctx, entity.ID)
	require.NoError(t, err)
	require.Len(t, state, 2)

	name := state[gazetteer.AttributeName]
	got, _ := name.Value.String("name")
	assert.Equal(t, "St. Mary Parish Church", got)
	assert.Equal(t, gazetteer.VerificationUnverified, name.Verification)
	// stats reputation 0.95 times the first-observation penalty 0.8.
	assert.InDelta(t, 0.76, name.Confidence, 0.001)
}

func TestRunSupersedesOnUpdate(t *testing.T) {
	p := newPipeline(t)
	ctx := context.Background()
	earlier := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	later := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	name := gazetteer.Value{"name": "St. Mary Parish Church"}

	_, err := p.coordinator.Run(ctx, sources.NewStatic(sources.StatsImportID, []gazetteer.Observation{
		observation(sources.StatsImportID, "par-002", gazetteer.AttributeName, name, earlier),
		observation(sources.StatsImportID, "par-002", gazetteer.AttributeCapacity,
			gazetteer.Value{"capacity": 300}, earlier),
	}))
	require.NoError(t, err)

	update := observation(sources.StatsImportID, "par-002", gazetteer.AttributeCapacity,
		gazetteer.Value{"capacity": 400}, later)
	update.VersionCount = 1
	report, err := p.coordinator.Run(ctx, sources.NewStatic(sources.StatsImportID, []gazetteer.Observation{
		observation(sources.StatsImportID, "par-002", gazetteer.AttributeName, name, earlier),
		update,
	}))
	require.NoError(t, err)
	assert.Equal(t, 1, report.NoOps, "unchanged name is not re-committed")
	assert.Equal(t, 1, report.Applied)

	entity := entityFor(t, p, gazetteer.ExternalKey{Source: sources.StatsImportID, Key: "par-002"})
	timeline, err := p.store.Timeline(ctx, entity.ID, gazetteer.AttributeCapacity)
	require.NoError(t, err)
	require.Len(t, timeline, 2)
	require.NotNil(t, timeline[0].ValidityTo, "prior version closed by the update")
	assert.True(t, timeline[0].ValidityTo.Equal(later))

	state, err := p.store.CurrentState(ctx, entity.ID)
	require.NoError(t, err)
	capacity, _ := state[gazetteer.AttributeCapacity].Value.Float("capacity")
	assert.Equal(t, float64(400), capacity)

	// The historical read still sees the superseded value.
	at, err := p.store.StateAt(ctx, entity.ID, earlier.AddDate(0, 1, 0))
	require.NoError(t, err)
	capacity, _ = at.Attributes[gazetteer.AttributeCapacity].Value.Float("capacity")
	assert.Equal(t, float64(300), capacity)
}

func TestRunResolvesConflictBySourcePriority(t *testing.T) {
	p := newPipeline(t)
	ctx := context.Background()
	validity := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	key := gazetteer.ExternalKey{Source: sources.StatsImportID, Key: "par-003"}

	stats := observation(sources.StatsImportID, "par-003", gazetteer.AttributeCapacity,
		gazetteer.Value{"capacity": 500}, validity)
	stats.VersionCount = 1
	crawl := observation(sources.StatsImportID, "par-003", gazetteer.AttributeCapacity,
		gazetteer.Value{"capacity": 480}, validity)
	crawl.Source = sources.OSMCrawlID
	crawl.VersionCount = 1

	report, err := p.coordinator.Run(ctx, sources.NewStatic(sources.StatsImportID,
		[]gazetteer.Observation{stats, crawl}))
	require.NoError(t, err)
	assert.Equal(t, 1, report.Detected, "competing observations merge into one conflict")
	assert.Equal(t, 1, report.Applied)
	assert.Equal(t, 0, report.Ambiguous)

	entity := entityFor(t, p, key)
	state, err := p.store.CurrentState(ctx, entity.ID)
	require.NoError(t, err)
	version := state[gazetteer.AttributeCapacity]
	capacity, _ := version.Value.Float("capacity")
	assert.Equal(t, float64(500), capacity, "higher-priority feed wins")
	assert.Equal(t, sources.StatsImportID, version.Source)
	// stats reputation 0.95 times the conflict penalty 0.9.
	assert.InDelta(t, 0.855, version.Confidence, 0.001)
}

func TestRunAmbiguousConflictQueued(t *testing.T) {
	p := newPipeline(t)
	ctx := context.Background()
	validity := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	a := observation(sources.OSMCrawlID, "node/77", gazetteer.AttributeCapacity,
		gazetteer.Value{"capacity": 480}, validity)
	a.VersionCount = 1
	b := observation(sources.OSMCrawlID, "node/77", gazetteer.AttributeCapacity,
		gazetteer.Value{"capacity": 490}, validity)
	b.VersionCount = 1

	report, err := p.coordinator.Run(ctx, sources.NewStatic(sources.OSMCrawlID,
		[]gazetteer.Observation{a, b}))
	require.NoError(t, err, "ambiguity queues for review, it does not fail the run")
	assert.Equal(t, 1, report.Ambiguous)
	assert.Equal(t, 1, report.Queued)
	assert.Equal(t, 0, report.Applied)

	pending := p.queue.Pending()
	require.Len(t, pending, 1)
	assert.NotEmpty(t, pending[0].Outcome.Rejected, "losing candidates ride along for the reviewer")
}

func TestRunLowConfidenceQueuedThenApproved(t *testing.T) {
	p := newPipeline(t)
	ctx := context.Background()
	validity := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	report, err := p.coordinator.Run(ctx, sources.NewStatic(sources.OSMCrawlID, []gazetteer.Observation{
		observation(sources.OSMCrawlID, "node/12", gazetteer.AttributeCapacity,
			gazetteer.Value{"capacity": 200}, validity),
	}))
	require.NoError(t, err)
	assert.Equal(t, 0, report.Applied)
	assert.Equal(t, 1, report.Queued, "crawl reputation with a first observation lands below the auto-apply bar")

	item, ok := p.queue.Next()
	require.True(t, ok)
	decided, err := p.queue.Resolve(item.ID, review.DecisionApprove, review.WithReviewer("alice"))
	require.NoError(t, err)
	require.NoError(t, p.coordinator.ApplyDecision(ctx, decided))

	entity := entityFor(t, p, gazetteer.ExternalKey{Source: sources.OSMCrawlID, Key: "node/12"})
	state, err := p.store.CurrentState(ctx, entity.ID)
	require.NoError(t, err)
	version := state[gazetteer.AttributeCapacity]
	capacity, _ := version.Value.Float("capacity")
	assert.Equal(t, float64(200), capacity)
	assert.Equal(t, gazetteer.VerificationVerified, version.Verification,
		"human approval commits as verified")
}

func TestRunOverrideDecision(t *testing.T) {
	p := newPipeline(t)
	ctx := context.Background()
	validity := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	_, err := p.coordinator.Run(ctx, sources.NewStatic(sources.OSMCrawlID, []gazetteer.Observation{
		observation(sources.OSMCrawlID, "node/13", gazetteer.AttributeCapacity,
			gazetteer.Value{"capacity": 450}, validity),
	}))
	require.NoError(t, err)

	item, ok := p.queue.Next()
	require.True(t, ok)
	decided, err := p.queue.Resolve(item.ID, review.DecisionOverride,
		review.WithOverrideValue(gazetteer.Value{"capacity": 475}),
		review.WithReviewer("alice"))
	require.NoError(t, err)
	require.NoError(t, p.coordinator.ApplyDecision(ctx, decided))

	entity := entityFor(t, p, gazetteer.ExternalKey{Source: sources.OSMCrawlID, Key: "node/13"})
	state, err := p.store.CurrentState(ctx, entity.ID)
	require.NoError(t, err)
	version := state[gazetteer.AttributeCapacity]
	capacity, _ := version.Value.Float("capacity")
	assert.Equal(t, float64(475), capacity, "reviewer's value replaces the observed one")
	assert.Equal(t, gazetteer.VerificationVerified, version.Verification)
}

func TestRunDeleteRoutesToReview(t *testing.T) {
	p := newPipeline(t)
	ctx := context.Background()
	earlier := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	later := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	_, err := p.coordinator.Run(ctx, sources.NewStatic(sources.StatsImportID, []gazetteer.Observation{
		observation(sources.StatsImportID, "par-004", gazetteer.AttributeCapacity,
			gazetteer.Value{"capacity": 300}, earlier),
	}))
	require.NoError(t, err)

	removal := observation(sources.StatsImportID, "par-004", "", nil, later)
	removal.Removed = true
	removal.VersionCount = 1

	report, err := p.coordinator.Run(ctx, sources.NewStatic(sources.StatsImportID,
		[]gazetteer.Observation{removal}))
	require.NoError(t, err)
	assert.Equal(t, 0, report.Applied, "removals never auto-apply")
	assert.Equal(t, 1, report.Queued)

	item, ok := p.queue.Next()
	require.True(t, ok)
	assert.Equal(t, detector.KindDelete, item.Outcome.Change.Kind)

	decided, err := p.queue.Resolve(item.ID, review.DecisionApprove, review.WithReviewer("alice"))
	require.NoError(t, err)
	require.NoError(t, p.coordinator.ApplyDecision(ctx, decided))

	entity := entityFor(t, p, gazetteer.ExternalKey{Source: sources.StatsImportID, Key: "par-004"})
	state, err := p.store.CurrentState(ctx, entity.ID)
	require.NoError(t, err)
	status, _ := state[gazetteer.AttributeStatus].Value.String("status")
	assert.Equal(t, "closed", status)
	assert.Equal(t, gazetteer.VerificationVerified, state[gazetteer.AttributeStatus].Verification)
}

func TestRunDropsUnscorableObservations(t *testing.T) {
	p := newPipeline(t)
	ctx := context.Background()
	validity := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	report, err := p.coordinator.Run(ctx, sources.NewStatic(sources.StatsImportID, []gazetteer.Observation{
		observation(sources.StatsImportID, "par-005", gazetteer.AttributeCapacity, nil, validity),
	}))
	require.NoError(t, err, "a malformed observation never fails the batch")
	assert.Equal(t, ingest.PhaseCompleted, report.Phase)
	assert.Equal(t, 1, report.Dropped)
	assert.Equal(t, 0, report.Applied)
	assert.Equal(t, 0, report.Queued)
}

// flakySource fails its first fetches with a transient error, then
// delegates.
type flakySource struct {
	inner    sources.Source
	failures int
	calls    int
}

func (f *flakySource) ID() gazetteer.SourceID {
	return f.inner.ID()
}

func (f *flakySource) Fetch(ctx context.Context, cursor string) ([]gazetteer.Observation, string, error) {
	f.calls++
	if f.calls <= f.failures {
		return nil, "", errors.WrapFetch(string(f.ID()), cursor, errors.New("upstream returned 503"))
	}
	return f.inner.Fetch(ctx, cursor)
}

func TestRunRetriesTransientFetch(t *testing.T) {
	p := newPipeline(t, ingest.WithFetchRetries(3))
	ctx := context.Background()
	validity := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	source := &flakySource{
		inner: sources.NewStatic(sources.StatsImportID, []gazetteer.Observation{
			observation(sources.StatsImportID, "par-006", gazetteer.AttributeCapacity,
				gazetteer.Value{"capacity": 300}, validity),
		}),
		failures: 2,
	}

	report, err := p.coordinator.Run(ctx, source)
	require.NoError(t, err)
	assert.Equal(t, ingest.PhaseCompleted, report.Phase)
	assert.Equal(t, 1, report.Applied)
	assert.Equal(t, 3, source.calls)
}

func TestRunRetriesExhausted(t *testing.T) {
	p := newPipeline(t, ingest.WithFetchRetries(2))
	ctx := context.Background()

	source := &flakySource{
		inner:    sources.NewStatic(sources.StatsImportID),
		failures: 99,
	}

	report, err := p.coordinator.Run(ctx, source)
	require.Error(t, err)
	assert.True(t, errors.IsAdapterFetch(err))
	assert.Equal(t, ingest.PhaseFailed, report.Phase)
	assert.Equal(t, 3, source.calls, "initial attempt plus two retries")
}

// faultySource fails hard, once, when asked for a specific cursor.
type faultySource struct {
	inner   sources.Source
	failOn  string
	tripped bool
}

func (f *faultySource) ID() gazetteer.SourceID {
	return f.inner.ID()
}

func (f *faultySource) Fetch(ctx context.Context, cursor string) ([]gazetteer.Observation, string, error) {
	if cursor == f.failOn && !f.tripped {
		f.tripped = true
		return nil, "", errors.New("feed truncated mid-page")
	}
	return f.inner.Fetch(ctx, cursor)
}

func TestRunResumesFromCursor(t *testing.T) {
	p := newPipeline(t)
	ctx := context.Background()
	validity := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	batches := [][]gazetteer.Observation{
		{observation(sources.StatsImportID, "par-010", gazetteer.AttributeCapacity,
			gazetteer.Value{"capacity": 300}, validity)},
		{observation(sources.StatsImportID, "par-011", gazetteer.AttributeCapacity,
			gazetteer.Value{"capacity": 400}, validity)},
	}

	// First run dies fetching the second batch. The first batch is
	// already committed and the cursor points past it.
	broken := &faultySource{
		inner:  sources.NewStatic(sources.StatsImportID, batches...),
		failOn: "1",
	}
	report, err := p.coordinator.Run(ctx, broken)
	require.Error(t, err)
	assert.Equal(t, ingest.PhaseFailed, report.Phase)
	assert.Equal(t, 1, report.Applied)
	assert.Equal(t, "1", report.Cursor, "cursor marks the first unprocessed batch")

	cursor, err := p.cursors.Cursor(ctx, sources.StatsImportID)
	require.NoError(t, err)
	assert.Equal(t, "1", cursor)

	// The rerun picks up at the saved cursor and only processes what
	// the failed run never reached.
	report, err = p.coordinator.Run(ctx, sources.NewStatic(sources.StatsImportID, batches...))
	require.NoError(t, err)
	assert.Equal(t, ingest.PhaseCompleted, report.Phase)
	assert.Equal(t, 1, report.Fetched)
	assert.Equal(t, 1, report.Applied)

	first := entityFor(t, p, gazetteer.ExternalKey{Source: sources.StatsImportID, Key: "par-010"})
	timeline, err := p.store.Timeline(ctx, first.ID, gazetteer.AttributeCapacity)
	require.NoError(t, err)
	assert.Len(t, timeline, 1, "resumed run does not duplicate committed work")

	second := entityFor(t, p, gazetteer.ExternalKey{Source: sources.StatsImportID, Key: "par-011"})
	state, err := p.store.CurrentState(ctx, second.ID)
	require.NoError(t, err)
	capacity, _ := state[gazetteer.AttributeCapacity].Value.Float("capacity")
	assert.Equal(t, float64(400), capacity)
}

func TestRunAutoAppliesCriticalWhenGateLifted(t *testing.T) {
	// The default resolver config routes every critical attribute to
	// review. Deployments that trust their feeds can lift that gate, at
	// which point confidence alone decides.
	registry := gazetteer.NewRegistry()
	store := memory.New(memory.Config{Registry: registry, Clock: clock})
	profiles := sources.DefaultProfiles()
	queue := review.New(review.WithClock(clock))

	coordinator, err := ingest.New(ingest.Deps{
		Registry: registry,
		Store:    store,
		Detector: detector.New(detector.WithClock(clock)),
		Scorer:   scoring.New(scoring.Config{Clock: clock}, profiles),
		Resolver: resolver.New(resolver.Config{
			AlwaysReview: map[gazetteer.AttributeType]bool{},
		}, profiles),
		Queue: queue,
	}, ingest.WithClock(clock))
	require.NoError(t, err)

	ctx := context.Background()
	obs := observation(sources.PlacesAPIID, "pl-001", gazetteer.AttributeDenomination,
		gazetteer.Value{"denomination": "lutheran", "religion": "christian"},
		time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	obs.VersionCount = 1

	report, err := coordinator.Run(ctx, sources.NewStatic(sources.PlacesAPIID,
		[]gazetteer.Observation{obs}))
	require.NoError(t, err)
	assert.Equal(t, 1, report.Applied, "a confident denomination change clears the bar on its own")
	assert.Equal(t, 0, report.Queued)

	entity, err := registry.ByExternalKey(ctx, gazetteer.ExternalKey{Source: sources.PlacesAPIID, Key: "pl-001"})
	require.NoError(t, err)
	state, err := store.CurrentState(ctx, entity.ID)
	require.NoError(t, err)
	version := state[gazetteer.AttributeDenomination]
	denomination, _ := version.Value.String("denomination")
	assert.Equal(t, "lutheran", denomination)
	assert.InDelta(t, 0.9, version.Confidence, 0.001)
	assert.Equal(t, gazetteer.VerificationUnverified, version.Verification,
		"auto-applied changes stay unverified")
}

func TestRunKeepsCursorAfterCompletion(t *testing.T) {
	p := newPipeline(t)
	ctx := context.Background()
	validity := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	batches := [][]gazetteer.Observation{
		{observation(sources.StatsImportID, "par-020", gazetteer.AttributeCapacity,
			gazetteer.Value{"capacity": 300}, validity)},
		{observation(sources.StatsImportID, "par-021", gazetteer.AttributeCapacity,
			gazetteer.Value{"capacity": 400}, validity)},
	}

	report, err := p.coordinator.Run(ctx, sources.NewStatic(sources.StatsImportID, batches...))
	require.NoError(t, err)
	assert.Equal(t, ingest.PhaseCompleted, report.Phase)
	assert.Equal(t, 2, report.Applied)

	cursor, err := p.cursors.Cursor(ctx, sources.StatsImportID)
	require.NoError(t, err)
	assert.Equal(t, "1", cursor, "completion keeps the resume point at the final page, not the feed start")

	report, err = p.coordinator.Run(ctx, sources.NewStatic(sources.StatsImportID, batches...))
	require.NoError(t, err)
	assert.Equal(t, 1, report.Fetched, "rerun resumes at the final page")
	assert.Equal(t, 0, report.Applied)
	assert.Equal(t, 1, report.NoOps)

	first := entityFor(t, p, gazetteer.ExternalKey{Source: sources.StatsImportID, Key: "par-020"})
	timeline, err := p.store.Timeline(ctx, first.ID, gazetteer.AttributeCapacity)
	require.NoError(t, err)
	assert.Len(t, timeline, 1, "rerun does not replay earlier pages")
}

// pagedSource serves explicit pages; a page may be empty yet still
// carry the next cursor.
type pagedSource struct {
	id    gazetteer.SourceID
	pages map[string]staticPage
}

type staticPage struct {
	batch []gazetteer.Observation
	next  string
}

func (s *pagedSource) ID() gazetteer.SourceID {
	return s.id
}

func (s *pagedSource) Fetch(_ context.Context, cursor string) ([]gazetteer.Observation, string, error) {
	page, ok := s.pages[cursor]
	if !ok {
		return nil, "", nil
	}
	return page.batch, page.next, nil
}

func TestRunPersistsCursorFromEmptyPage(t *testing.T) {
	p := newPipeline(t)
	ctx := context.Background()
	validity := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	source := &pagedSource{
		id: sources.StatsImportID,
		pages: map[string]staticPage{
			"": {
				batch: []gazetteer.Observation{
					observation(sources.StatsImportID, "par-022", gazetteer.AttributeCapacity,
						gazetteer.Value{"capacity": 300}, validity),
				},
				next: "a",
			},
			// The feed tail: nothing to hand over, but the high-water
			// mark has moved.
			"a": {next: "b"},
		},
	}

	report, err := p.coordinator.Run(ctx, source)
	require.NoError(t, err)
	assert.Equal(t, ingest.PhaseCompleted, report.Phase)
	assert.Equal(t, 1, report.Applied)
	assert.Equal(t, "b", report.Cursor)

	cursor, err := p.cursors.Cursor(ctx, sources.StatsImportID)
	require.NoError(t, err)
	assert.Equal(t, "b", cursor, "an empty page still advances the saved cursor")
}

func TestRunCanceledContext(t *testing.T) {
	p := newPipeline(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := p.coordinator.Run(ctx, sources.NewStatic(sources.StatsImportID))
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCanceled))
	assert.Equal(t, ingest.PhaseFailed, report.Phase)
}
