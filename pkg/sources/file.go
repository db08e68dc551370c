package sources

import (
	"context"
	"os"
	"strconv"

	"github.com/goccy/go-yaml"

	"github.com/placelore/gazetteer/pkg/errors"
	"github.com/placelore/gazetteer/pkg/gazetteer"
)

// File is a Source backed by a YAML file of observations. It covers the
// offline feeds: crawl extraction dumps (external keys like "node/123",
// changeset IDs as source refs) and census-statistics releases. The file
// is read once per Fetch so an edited feed is picked up between runs; the
// cursor is the page offset.
type File struct {
	id       gazetteer.SourceID
	path     string
	pageSize int
}

// NewFile creates a file-backed source. A non-positive page size reads the
// whole file in one batch.
func NewFile(id gazetteer.SourceID, path string, pageSize int) *File {
	return &File{id: id, path: path, pageSize: pageSize}
}

// ID returns the adapter's namespace identifier.
func (f *File) ID() gazetteer.SourceID {
	return f.id
}

// Fetch reads the next page of observations after the cursor.
func (f *File) Fetch(_ context.Context, cursor string) ([]gazetteer.Observation, string, error) {
	offset := 0
	if cursor != "" {
		parsed, err := strconv.Atoi(cursor)
		if err != nil {
			return nil, "", &InvalidCursorError{Source: f.id, Cursor: cursor}
		}
		offset = parsed
	}

	data, err := os.ReadFile(f.path)
	if err != nil {
		// Transient by contract: the coordinator retries fetch failures.
		return nil, "", errors.WrapFetch(string(f.id), cursor, err)
	}
	var all []gazetteer.Observation
	if err := yaml.Unmarshal(data, &all); err != nil {
		return nil, "", errors.WrapFetch(string(f.id), cursor, err)
	}

	// The file omits the source column; stamp the adapter's namespace.
	for i := range all {
		if all[i].Source == "" {
			all[i].Source = f.id
		}
		if all[i].Key.Source == "" {
			all[i].Key.Source = f.id
		}
	}

	if offset >= len(all) {
		return nil, "", nil
	}
	if f.pageSize <= 0 {
		return all[offset:], "", nil
	}

	end := offset + f.pageSize
	next := ""
	if end < len(all) {
		next = strconv.Itoa(end)
	} else {
		end = len(all)
	}
	return all[offset:end], next, nil
}
