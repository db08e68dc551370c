package ingest

import (
	"time"

	"github.com/placelore/gazetteer/pkg/gazetteer"
)

// Phase is the lifecycle phase of an ingestion run.
type Phase string

const (
	PhasePending    Phase = "pending"
	PhaseFetching   Phase = "fetching"
	PhaseDetecting  Phase = "detecting"
	PhaseScoring    Phase = "scoring"
	PhaseResolving  Phase = "resolving"
	PhaseCommitting Phase = "committing"
	PhaseCompleted  Phase = "completed"
	PhaseFailed     Phase = "failed"
)

// Report is the accounting record of one ingestion run. A run that
// fails or is canceled mid-way still carries the counts of every batch
// that finished committing; its saved cursor points at the first
// unprocessed batch.
type Report struct {
	RunID      string
	Source     gazetteer.SourceID
	Phase      Phase
	StartedAt  time.Time
	FinishedAt time.Time

	Batches   int
	Fetched   int // observations pulled from the adapter
	NoOps     int // observations equal to current state
	Detected  int // changes classified by the detector
	Dropped   int // observations discarded as unscorable
	Applied   int // changes committed automatically
	Queued    int // changes routed to review
	Ambiguous int // conflict sets queued because candidates could not be ranked

	// Cursor is the last durably saved cursor.
	Cursor string

	Err error
}

// Duration returns the wall-clock duration of the run.
func (r *Report) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}
