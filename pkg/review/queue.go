// Package review holds changes awaiting a human decision. The queue is
// priority-ordered: deletions and critical attributes surface before
// routine low-confidence updates.
package review

import (
	"container/heap"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/placelore/gazetteer/pkg/detector"
	"github.com/placelore/gazetteer/pkg/errors"
	"github.com/placelore/gazetteer/pkg/gazetteer"
	"github.com/placelore/gazetteer/pkg/logging"
	"github.com/placelore/gazetteer/pkg/resolver"
)

// State is the lifecycle state of a review item.
type State string

const (
	StatePending    State = "pending"
	StateApproved   State = "approved"
	StateRejected   State = "rejected"
	StateOverridden State = "overridden"
)

// Decision is a reviewer's verdict.
type Decision string

const (
	DecisionApprove  Decision = "approve"
	DecisionReject   Decision = "reject"
	DecisionOverride Decision = "override"
)

// Priority weights. Items accumulate weight per condition, so a
// low-confidence deletion of a critical attribute outranks everything.
const (
	weightDelete        = 300
	weightAmbiguous     = 250
	weightCritical      = 200
	weightLowConfidence = 100
)

// Item is a queued change plus its review metadata.
type Item struct {
	ID         string
	Outcome    resolver.Outcome
	Priority   int
	EnqueuedAt time.Time
	State      State

	// AssignedTo is the reviewer the item was handed to by NextFor.
	AssignedTo string

	// Decision metadata, populated by Resolve.
	Decision  Decision
	DecidedAt time.Time
	DecidedBy string
	Override  gazetteer.Value
	Note      string

	// Seq is the enqueue order, the FIFO tiebreak within equal priority.
	Seq uint64

	index int // heap bookkeeping
}

// Queue is a thread-safe priority queue of review items.
type Queue struct {
	mu        sync.Mutex
	pending   itemHeap
	items     map[string]*Item
	critical  map[gazetteer.AttributeType]bool
	threshold float64
	clock     func() time.Time
	persist   Persistence
	nextSeq   uint64
}

// Option configures a Queue.
type Option func(*Queue)

// WithCritical overrides the attribute set treated as critical when
// weighing items.
func WithCritical(critical map[gazetteer.AttributeType]bool) Option {
	return func(q *Queue) {
		q.critical = critical
	}
}

// WithClock overrides the queue's time source.
func WithClock(clock func() time.Time) Option {
	return func(q *Queue) {
		q.clock = clock
	}
}

// WithThreshold overrides the confidence bar below which items gain the
// low-confidence weight. It should match the resolver's auto-apply
// threshold.
func WithThreshold(threshold float64) Option {
	return func(q *Queue) {
		q.threshold = threshold
	}
}

// WithPersistence durably records items through the given backend, so
// pending reviews survive a restart. Call Restore after construction to
// reload them.
func WithPersistence(persist Persistence) Option {
	return func(q *Queue) {
		q.persist = persist
	}
}

// New creates an empty review queue.
func New(opts ...Option) *Queue {
	q := &Queue{
		items:     make(map[string]*Item),
		critical:  gazetteer.DefaultCriticalAttributes(),
		threshold: resolver.DefaultAutoApplyThreshold,
		clock:     time.Now,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Enqueue adds a resolver outcome to the queue and returns the item.
func (q *Queue) Enqueue(outcome resolver.Outcome) *Item {
	q.mu.Lock()
	defer q.mu.Unlock()

	item := &Item{
		ID:         uuid.NewString(),
		Outcome:    outcome,
		Priority:   q.weigh(outcome),
		EnqueuedAt: q.clock().UTC(),
		State:      StatePending,
		Seq:        q.nextSeq,
	}
	q.nextSeq++
	q.items[item.ID] = item
	heap.Push(&q.pending, item)
	if err := q.save(item); err != nil {
		logging.Err(err).Str("item", item.ID).Msg("persist review item")
	}
	return item
}

// Next pops the highest-priority pending item. It returns false when
// the queue has no pending items.
func (q *Queue) Next() (*Item, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.pending.Len() == 0 {
		return nil, false
	}
	return heap.Pop(&q.pending).(*Item), true
}

// NextFor pops the highest-priority pending item and records which
// reviewer it was handed to.
func (q *Queue) NextFor(reviewer string) (*Item, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.pending.Len() == 0 {
		return nil, false
	}
	item := heap.Pop(&q.pending).(*Item)
	item.AssignedTo = reviewer
	if err := q.save(item); err != nil {
		logging.Err(err).Str("item", item.ID).Msg("persist review item")
	}
	return item, true
}

// Get returns the item with the given ID.
func (q *Queue) Get(id string) (*Item, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	item, ok := q.items[id]
	if !ok {
		return nil, errors.NewNotFoundError("review item", id)
	}
	return item, nil
}

// ResolveOption customizes a review decision.
type ResolveOption func(*Item)

// WithReviewer records who made the decision.
func WithReviewer(reviewer string) ResolveOption {
	return func(item *Item) {
		item.DecidedBy = reviewer
	}
}

// WithNote attaches a free-form note to the decision.
func WithNote(note string) ResolveOption {
	return func(item *Item) {
		item.Note = note
	}
}

// WithOverrideValue supplies the replacement value for DecisionOverride.
func WithOverrideValue(value gazetteer.Value) ResolveOption {
	return func(item *Item) {
		item.Override = value
	}
}

// Resolve records a decision on an item. Approve and override verdicts
// leave the caller responsible for committing the resulting version;
// the queue only tracks state. Deciding a non-pending item is an error.
func (q *Queue) Resolve(id string, decision Decision, opts ...ResolveOption) (*Item, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	item, ok := q.items[id]
	if !ok {
		return nil, errors.NewNotFoundError("review item", id)
	}
	if item.State != StatePending {
		return nil, errors.NewValidationError("state", string(item.State), "item already decided")
	}

	for _, opt := range opts {
		opt(item)
	}
	switch decision {
	case DecisionApprove:
		item.State = StateApproved
	case DecisionReject:
		item.State = StateRejected
	case DecisionOverride:
		if item.Override == nil {
			return nil, errors.NewValidationError("override", nil, "override decision requires a value")
		}
		item.State = StateOverridden
	default:
		return nil, errors.NewValidationError("decision", string(decision), "unknown decision")
	}
	item.Decision = decision
	item.DecidedAt = q.clock().UTC()
	if item.index >= 0 {
		heap.Remove(&q.pending, item.index)
	}
	if err := q.save(item); err != nil {
		return nil, err
	}
	return item, nil
}

// Pending returns pending items in priority order without removing them.
func (q *Queue) Pending() []*Item {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]*Item, len(q.pending))
	copy(out, q.pending)
	sortHeapOrder(out)
	return out
}

// Len returns the number of pending items.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.pending.Len()
}

// weigh computes the priority for an outcome.
func (q *Queue) weigh(outcome resolver.Outcome) int {
	weight := 0
	change := outcome.Change
	if change.Kind == detector.KindDelete {
		weight += weightDelete
	}
	if change.Kind == detector.KindConflict || len(outcome.Rejected) > 0 {
		weight += weightAmbiguous
	}
	if q.critical[change.AttributeType] {
		weight += weightCritical
	}
	if change.Confidence < q.threshold {
		weight += weightLowConfidence
	}
	return weight
}

// save writes an item through to the persistence backend, if any.
func (q *Queue) save(item *Item) error {
	if q.persist == nil {
		return nil
	}
	data, err := json.Marshal(item)
	if err != nil {
		return errors.WrapResource("encode", "review item", item.ID, err)
	}
	if err := q.persist.SaveReviewItem(item.ID, string(item.State), data); err != nil {
		return errors.WrapResource("save", "review item", item.ID, err)
	}
	return nil
}

// Restore reloads persisted items. Pending items land back on the heap
// in their original order; decided items stay addressable for audit
// lookups. Restore must run before the queue takes new work.
func (q *Queue) Restore() error {
	if q.persist == nil {
		return nil
	}
	rows, err := q.persist.LoadReviewItems()
	if err != nil {
		return errors.WrapResource("load", "review items", "", err)
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	for _, data := range rows {
		var item Item
		if err := json.Unmarshal(data, &item); err != nil {
			return errors.WrapResource("decode", "review item", "", err)
		}
		item.index = -1
		restored := item
		q.items[restored.ID] = &restored
		if restored.Seq >= q.nextSeq {
			q.nextSeq = restored.Seq + 1
		}
		if restored.State == StatePending {
			heap.Push(&q.pending, &restored)
		}
	}
	return nil
}
