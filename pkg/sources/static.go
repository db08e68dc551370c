package sources

import (
	"context"
	"strconv"

	"github.com/placelore/gazetteer/pkg/gazetteer"
)

// Static is a Source backed by pre-built observation batches. The cursor
// is the batch index, so a run can resume mid-feed. Used for manual
// curation seeds and in tests.
type Static struct {
	id      gazetteer.SourceID
	batches [][]gazetteer.Observation
}

// NewStatic creates a static source from observation batches.
func NewStatic(id gazetteer.SourceID, batches ...[]gazetteer.Observation) *Static {
	return &Static{id: id, batches: batches}
}

// ID returns the adapter's namespace identifier.
func (s *Static) ID() gazetteer.SourceID {
	return s.id
}

// Fetch returns the batch after the cursor.
func (s *Static) Fetch(_ context.Context, cursor string) ([]gazetteer.Observation, string, error) {
	index := 0
	if cursor != "" {
		parsed, err := strconv.Atoi(cursor)
		if err != nil {
			return nil, "", &InvalidCursorError{Source: s.id, Cursor: cursor}
		}
		index = parsed
	}
	if index < 0 || index >= len(s.batches) {
		return nil, "", nil
	}

	batch := s.batches[index]
	next := ""
	if index+1 < len(s.batches) {
		next = strconv.Itoa(index + 1)
	}
	return batch, next, nil
}

// InvalidCursorError reports a cursor the adapter cannot interpret.
type InvalidCursorError struct {
	Source gazetteer.SourceID
	Cursor string
}

// Error implements the error interface
func (e *InvalidCursorError) Error() string {
	return "source " + string(e.Source) + ": invalid cursor " + strconv.Quote(e.Cursor)
}
