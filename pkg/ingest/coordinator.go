// Package ingest drives the pipeline: fetch observations from a source
// adapter, detect changes against current state, score them, resolve
// conflicts, and either commit or queue for review. Runs are resumable:
// the cursor is saved only after a batch is fully committed.
package ingest

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/placelore/gazetteer/internal/metrics"
	"github.com/placelore/gazetteer/pkg/detector"
	"github.com/placelore/gazetteer/pkg/errors"
	"github.com/placelore/gazetteer/pkg/gazetteer"
	"github.com/placelore/gazetteer/pkg/logging"
	"github.com/placelore/gazetteer/pkg/resolver"
	"github.com/placelore/gazetteer/pkg/review"
	"github.com/placelore/gazetteer/pkg/scoring"
	"github.com/placelore/gazetteer/pkg/sources"
	"github.com/placelore/gazetteer/pkg/temporal"
)

// Default tuning values.
const (
	DefaultFetchRetries = 3
	DefaultRetryBackoff = 500 * time.Millisecond
	DefaultScoreWorkers = 4
)

// Deps are the pipeline components the coordinator orchestrates. All
// fields except Cursors are required.
type Deps struct {
	Registry gazetteer.Registry
	Store    temporal.Store
	Detector *detector.Detector
	Scorer   *scoring.Scorer
	Resolver *resolver.Resolver
	Queue    *review.Queue

	// Cursors defaults to an in-process store when nil.
	Cursors CursorStore
}

// Coordinator runs the ingestion pipeline for source adapters.
type Coordinator struct {
	deps Deps

	fetchRetries int
	retryBackoff time.Duration
	scoreWorkers int
	clock        func() time.Time
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithFetchRetries sets how many times a failed adapter fetch is retried.
func WithFetchRetries(n int) Option {
	return func(c *Coordinator) {
		c.fetchRetries = n
	}
}

// WithRetryBackoff sets the base backoff between fetch retries. Backoff
// doubles per attempt.
func WithRetryBackoff(d time.Duration) Option {
	return func(c *Coordinator) {
		c.retryBackoff = d
	}
}

// WithScoreWorkers sets the number of parallel scoring workers.
func WithScoreWorkers(n int) Option {
	return func(c *Coordinator) {
		c.scoreWorkers = n
	}
}

// WithClock overrides the coordinator's time source.
func WithClock(clock func() time.Time) Option {
	return func(c *Coordinator) {
		c.clock = clock
	}
}

// New creates a Coordinator.
func New(deps Deps, opts ...Option) (*Coordinator, error) {
	if deps.Registry == nil {
		return nil, errors.NewConfigError("ingest", "registry is required", nil)
	}
	if deps.Store == nil {
		return nil, errors.NewConfigError("ingest", "store is required", nil)
	}
	if deps.Detector == nil {
		return nil, errors.NewConfigError("ingest", "detector is required", nil)
	}
	if deps.Scorer == nil {
		return nil, errors.NewConfigError("ingest", "scorer is required", nil)
	}
	if deps.Resolver == nil {
		return nil, errors.NewConfigError("ingest", "resolver is required", nil)
	}
	if deps.Queue == nil {
		return nil, errors.NewConfigError("ingest", "review queue is required", nil)
	}
	if deps.Cursors == nil {
		deps.Cursors = NewMemoryCursors()
	}

	c := &Coordinator{
		deps:         deps,
		fetchRetries: DefaultFetchRetries,
		retryBackoff: DefaultRetryBackoff,
		scoreWorkers: DefaultScoreWorkers,
		clock:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Run ingests a source to exhaustion, batch by batch. The returned
// report is valid even on failure: counts cover every committed batch
// and Cursor marks the resume point.
func (c *Coordinator) Run(ctx context.Context, source sources.Source) (*Report, error) {
	report := &Report{
		RunID:     uuid.NewString(),
		Source:    source.ID(),
		Phase:     PhasePending,
		StartedAt: c.clock().UTC(),
	}
	ctx = logging.WithRun(ctx, report.RunID)
	ctx = logging.WithSource(ctx, string(source.ID()))
	log := logging.FromContext(ctx)

	cursor, err := c.deps.Cursors.Cursor(ctx, source.ID())
	if err != nil {
		return c.fail(report, errors.WrapResource("load", "cursor", string(source.ID()), err))
	}
	report.Cursor = cursor
	log.Info().Str("cursor", cursor).Msg("ingestion run started")

	for {
		if err := ctx.Err(); err != nil {
			return c.fail(report, errors.ErrCanceled)
		}

		report.Phase = PhaseFetching
		batch, next, err := c.fetch(ctx, source, cursor)
		if err != nil {
			return c.fail(report, err)
		}
		if len(batch) == 0 {
			// An empty page can still advance the cursor; persist the
			// high-water mark so the next run starts beyond it.
			if next == "" || next == cursor {
				break
			}
			if err := c.saveCursor(ctx, source, report, next); err != nil {
				return c.fail(report, err)
			}
			cursor = next
			continue
		}
		report.Batches++
		report.Fetched += len(batch)
		metrics.ObservationsFetched.WithLabelValues(string(source.ID())).Add(float64(len(batch)))

		if err := c.processBatch(ctx, report, batch); err != nil {
			return c.fail(report, err)
		}

		// The batch is fully committed; only now does the cursor move.
		// An exhausted feed reports no next cursor, and the last one is
		// kept so reruns resume at the final page, never the feed start.
		if next == "" {
			break
		}
		if err := c.saveCursor(ctx, source, report, next); err != nil {
			return c.fail(report, err)
		}
		cursor = next
	}

	report.Phase = PhaseCompleted
	report.FinishedAt = c.clock().UTC()
	metrics.RecordRun(string(source.ID()), string(PhaseCompleted), report.Duration().Seconds())
	log.Info().
		Int("batches", report.Batches).
		Int("fetched", report.Fetched).
		Int("applied", report.Applied).
		Int("queued", report.Queued).
		Int("dropped", report.Dropped).
		Msg("ingestion run completed")
	return report, nil
}

// saveCursor persists a new resume point and records it on the report.
func (c *Coordinator) saveCursor(ctx context.Context, source sources.Source, report *Report, next string) error {
	if err := c.deps.Cursors.SetCursor(ctx, source.ID(), next); err != nil {
		return errors.WrapResource("save", "cursor", string(source.ID()), err)
	}
	report.Cursor = next
	return nil
}

// fail finalizes a run report after an unrecoverable error.
func (c *Coordinator) fail(report *Report, err error) (*Report, error) {
	report.Phase = PhaseFailed
	report.Err = err
	report.FinishedAt = c.clock().UTC()
	metrics.RecordRun(string(report.Source), string(PhaseFailed), report.Duration().Seconds())
	return report, err
}

// processBatch runs one batch through detect, score, resolve, commit.
func (c *Coordinator) processBatch(ctx context.Context, report *Report, batch []gazetteer.Observation) error {
	report.Phase = PhaseDetecting
	snapshot, err := detector.BuildSnapshot(ctx, c.deps.Registry, c.deps.Store, batch)
	if err != nil {
		return err
	}
	changeset, err := c.deps.Detector.Detect(ctx, snapshot, batch)
	if err != nil {
		return err
	}
	report.NoOps += changeset.Summary.NoOps
	report.Detected += changeset.Summary.Total
	for _, change := range changeset.Changes {
		metrics.ChangesDetected.WithLabelValues(string(change.Observation.Source), string(change.Kind)).Inc()
	}

	if err := ctx.Err(); err != nil {
		return errors.ErrCanceled
	}

	report.Phase = PhaseScoring
	scored, dropped := c.score(ctx, changeset.Changes)
	report.Dropped += dropped

	if err := ctx.Err(); err != nil {
		return errors.ErrCanceled
	}

	report.Phase = PhaseResolving
	outcomes := c.resolve(ctx, report, scored)

	if err := ctx.Err(); err != nil {
		return errors.ErrCanceled
	}

	report.Phase = PhaseCommitting
	return c.commit(ctx, report, outcomes)
}

// fetch pulls one batch, retrying transient adapter failures with
// doubling backoff.
func (c *Coordinator) fetch(ctx context.Context, source sources.Source, cursor string) ([]gazetteer.Observation, string, error) {
	log := logging.FromContext(ctx)
	backoff := c.retryBackoff
	var lastErr error
	for attempt := 0; attempt <= c.fetchRetries; attempt++ {
		if attempt > 0 {
			metrics.FetchRetries.WithLabelValues(string(source.ID())).Inc()
			log.Warn().Err(lastErr).Int("attempt", attempt).Dur("backoff", backoff).Msg("retrying fetch")
			select {
			case <-ctx.Done():
				return nil, "", errors.ErrCanceled
			case <-time.After(backoff):
			}
			backoff *= 2
		}
		batch, next, err := source.Fetch(ctx, cursor)
		if err == nil {
			return batch, next, nil
		}
		if !errors.IsAdapterFetch(err) {
			return nil, "", err
		}
		lastErr = err
	}
	return nil, "", lastErr
}

// score fills in confidence on every change in parallel. Unscorable
// changes are dropped with an audit log entry rather than failing the
// batch; a conflict merely loses the bad candidate.
func (c *Coordinator) score(ctx context.Context, changes []detector.DetectedChange) ([]detector.DetectedChange, int) {
	log := logging.FromContext(ctx)

	type result struct {
		change detector.DetectedChange
		drop   bool
	}
	results := make([]result, len(changes))

	var wg sync.WaitGroup
	work := make(chan int)
	workers := c.scoreWorkers
	if workers < 1 {
		workers = 1
	}
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range work {
				change, drop := c.scoreChange(log, changes[i])
				results[i] = result{change: change, drop: drop}
			}
		}()
	}
	for i := range changes {
		work <- i
	}
	close(work)
	wg.Wait()

	scored := make([]detector.DetectedChange, 0, len(changes))
	dropped := 0
	for _, r := range results {
		if r.drop {
			dropped++
			continue
		}
		scored = append(scored, r.change)
	}
	return scored, dropped
}

// scoreChange scores one change, descending into conflict candidates.
func (c *Coordinator) scoreChange(log *zerolog.Logger, change detector.DetectedChange) (detector.DetectedChange, bool) {
	if change.Kind == detector.KindConflict {
		kept := make([]detector.DetectedChange, 0, len(change.Candidates))
		for _, candidate := range change.Candidates {
			scoredCandidate, drop := c.scoreChange(log, candidate)
			if drop {
				continue
			}
			kept = append(kept, scoredCandidate)
		}
		switch len(kept) {
		case 0:
			return change, true
		case 1:
			// The conflict dissolved: one candidate survived scoring.
			return kept[0], false
		}
		change.Candidates = kept
		change.Confidence = kept[0].Confidence
		return change, false
	}

	score, err := c.deps.Scorer.Score(change.Observation)
	if err != nil {
		metrics.ObservationsDropped.WithLabelValues(string(change.Observation.Source)).Inc()
		log.Warn().Err(err).
			Str("key", change.Key.String()).
			Str("attribute", string(change.AttributeType)).
			Msg("dropping unscorable observation")
		return change, true
	}
	change.Confidence = score
	return change, false
}

// resolve routes every change through the resolver.
func (c *Coordinator) resolve(ctx context.Context, report *Report, changes []detector.DetectedChange) []resolver.Outcome {
	log := logging.FromContext(ctx)
	outcomes := make([]resolver.Outcome, 0, len(changes))
	for _, change := range changes {
		outcome, err := c.deps.Resolver.Resolve(change)
		if err != nil {
			// Ambiguous conflict sets still produce a review outcome.
			if errors.IsResolutionAmbiguity(err) {
				report.Ambiguous++
				log.Warn().Err(err).Msg("conflict set unrankable, queued for review")
			} else {
				log.Error().Err(err).Str("key", change.Key.String()).Msg("resolution failed, queued for review")
				outcome = resolver.Outcome{
					Change:      change,
					Disposition: resolver.DispositionReview,
					Reason:      err.Error(),
				}
			}
		}
		metrics.RecordResolution(string(outcome.Disposition))
		outcomes = append(outcomes, outcome)
	}
	return outcomes
}

// commit applies auto-approved outcomes and queues the rest.
func (c *Coordinator) commit(ctx context.Context, report *Report, outcomes []resolver.Outcome) error {
	log := logging.FromContext(ctx)
	for _, outcome := range outcomes {
		switch outcome.Disposition {
		case resolver.DispositionApply:
			if err := c.apply(ctx, outcome.Change, outcome.Change.Observation.Value, gazetteer.VerificationUnverified); err != nil {
				if errors.IsTemporalOverlap(err) {
					// The invariant, not the pipeline, rejected this
					// write; a human untangles it.
					c.deps.Queue.Enqueue(resolver.Outcome{
						Change:      outcome.Change,
						Disposition: resolver.DispositionReview,
						Rejected:    outcome.Rejected,
						Reason:      err.Error(),
					})
					report.Queued++
					metrics.ReviewQueueDepth.Set(float64(c.deps.Queue.Len()))
					metrics.RecordCommit("overlap")
					log.Warn().Err(err).Msg("commit overlapped verified version, queued for review")
					continue
				}
				metrics.RecordCommit("error")
				return err
			}
			report.Applied++
			metrics.RecordCommit("applied")
		case resolver.DispositionReview:
			c.deps.Queue.Enqueue(outcome)
			report.Queued++
			metrics.ReviewQueueDepth.Set(float64(c.deps.Queue.Len()))
		case resolver.DispositionReject:
			// Resolver outcomes are never rejects; review handles those.
		}
	}
	return nil
}

// apply registers the entity if needed and commits an attribute version
// built from the change.
func (c *Coordinator) apply(ctx context.Context, change detector.DetectedChange, value gazetteer.Value, verification gazetteer.VerificationState) error {
	entityID, err := c.ensureEntity(ctx, change)
	if err != nil {
		return err
	}

	version := gazetteer.AttributeVersion{
		EntityID:     entityID,
		Type:         change.AttributeType,
		Value:        value,
		Source:       change.Observation.Source,
		SourceRef:    change.Observation.SourceRef,
		ValidityFrom: validityFrom(change),
		Confidence:   change.Confidence,
		Verification: verification,
	}
	_, err = c.deps.Store.Commit(ctx, version)
	return err
}

// ensureEntity resolves or registers the entity behind a change.
func (c *Coordinator) ensureEntity(ctx context.Context, change detector.DetectedChange) (gazetteer.EntityID, error) {
	if change.EntityID != nil {
		return *change.EntityID, nil
	}

	entity := gazetteer.Entity{
		ExternalKeys: []gazetteer.ExternalKey{change.Key},
		Region:       change.Observation.Region,
	}
	if change.Observation.Location != nil {
		entity.Location = *change.Observation.Location
	}
	registered, err := c.deps.Registry.Register(ctx, entity)
	if err != nil {
		// A concurrent commit may have registered the key first.
		if errors.Is(err, errors.ErrAlreadyExists) {
			return registered.ID, nil
		}
		return "", err
	}
	return registered.ID, nil
}

// ApplyDecision commits the result of a review decision. Approved
// changes commit with the observed value, overridden changes with the
// reviewer's replacement; both are verified since a human vouched for
// them. Rejected items commit nothing. Undecided items are an error.
func (c *Coordinator) ApplyDecision(ctx context.Context, item *review.Item) error {
	switch item.State {
	case review.StateApproved:
		change := item.Outcome.Change
		return c.apply(ctx, change, change.Observation.Value, gazetteer.VerificationVerified)
	case review.StateOverridden:
		change := item.Outcome.Change
		return c.apply(ctx, change, item.Override, gazetteer.VerificationVerified)
	case review.StateRejected:
		metrics.RecordCommit("rejected")
		return nil
	default:
		return errors.NewValidationError("state", string(item.State), "item has no decision to apply")
	}
}

// validityFrom picks the validity start for a change: the observation's
// claim when present, otherwise detection time.
func validityFrom(change detector.DetectedChange) time.Time {
	if !change.Observation.ValidityFrom.IsZero() {
		return change.Observation.ValidityFrom
	}
	return change.DetectedAt
}
