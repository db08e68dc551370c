package errors_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	pkgerrors "github.com/placelore/gazetteer/pkg/errors"
)

func TestNew(t *testing.T) {
	err := pkgerrors.New("test error")
	assert.NotNil(t, err)
	assert.Equal(t, "test error", err.Error())
}

func TestNotFoundError(t *testing.T) {
	t.Run("basic error", func(t *testing.T) {
		err := &pkgerrors.NotFoundError{
			Resource: "entity",
			ID:       "5f3a",
		}
		assert.Equal(t, "entity with ID 5f3a not found", err.Error())
		assert.True(t, errors.Is(err, pkgerrors.ErrNotFound))
	})

	t.Run("constructor", func(t *testing.T) {
		err := pkgerrors.NewNotFoundError("review item", "item-1")
		assert.Equal(t, "review item with ID item-1 not found", err.Error())
		assert.True(t, pkgerrors.IsNotFound(err))
	})

	t.Run("wrapped error", func(t *testing.T) {
		base := pkgerrors.NewNotFoundError("entity", "test")
		wrapped := errors.Join(errors.New("lookup failed"), base)
		assert.True(t, pkgerrors.IsNotFound(wrapped))
	})
}

func TestValidationError(t *testing.T) {
	t.Run("with field", func(t *testing.T) {
		err := &pkgerrors.ValidationError{
			Field:   "external_keys",
			Message: "entity must carry at least one external key",
		}
		assert.Equal(t, "validation failed for field external_keys: entity must carry at least one external key", err.Error())
		assert.True(t, errors.Is(err, pkgerrors.ErrInvalidInput))
	})

	t.Run("without field", func(t *testing.T) {
		err := &pkgerrors.ValidationError{
			Message: "invalid version",
		}
		assert.Equal(t, "validation failed: invalid version", err.Error())
		assert.True(t, pkgerrors.IsValidationError(err))
	})
}

func TestTemporalOverlapError(t *testing.T) {
	err := &pkgerrors.TemporalOverlapError{
		EntityID:      "e1",
		AttributeType: "denomination",
		ValidityFrom:  time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC),
		ConflictsWith: "osm:changeset/42",
	}
	assert.Contains(t, err.Error(), "e1")
	assert.Contains(t, err.Error(), "denomination")
	assert.Contains(t, err.Error(), "osm:changeset/42")
	assert.True(t, pkgerrors.IsTemporalOverlap(err))
}

func TestAdapterFetchError(t *testing.T) {
	t.Run("with cursor", func(t *testing.T) {
		base := errors.New("connection reset")
		err := pkgerrors.NewAdapterFetchError("osm_crawl", "page-3", base)
		assert.Contains(t, err.Error(), "osm_crawl")
		assert.Contains(t, err.Error(), "page-3")
		assert.True(t, pkgerrors.IsAdapterFetch(err))
		assert.Equal(t, base, errors.Unwrap(err))
	})

	t.Run("wrap helper returns nil on nil", func(t *testing.T) {
		assert.NoError(t, pkgerrors.WrapFetch("osm_crawl", "", nil))
	})
}

func TestScoringError(t *testing.T) {
	err := &pkgerrors.ScoringError{
		Source:        "places_api",
		ExternalKey:   "plc:123",
		AttributeType: "capacity",
		Message:       "value is not a mapping",
	}
	assert.Contains(t, err.Error(), "places_api")
	assert.Contains(t, err.Error(), "plc:123")
	assert.True(t, pkgerrors.IsScoring(err))
}

func TestResolutionAmbiguityError(t *testing.T) {
	err := &pkgerrors.ResolutionAmbiguityError{
		EntityID:      "e1",
		AttributeType: "status",
		Sources:       []string{"osm_crawl", "places_api"},
	}
	assert.Contains(t, err.Error(), "status")
	assert.True(t, pkgerrors.IsResolutionAmbiguity(err))
}

func TestWrapHelpers(t *testing.T) {
	t.Run("WrapIO", func(t *testing.T) {
		err := pkgerrors.WrapIO("read", "/tmp/obs.yaml", errors.New("permission denied"))
		assert.Contains(t, err.Error(), "/tmp/obs.yaml")
		var ioErr *pkgerrors.IOError
		assert.True(t, errors.As(err, &ioErr))
	})

	t.Run("WrapResource", func(t *testing.T) {
		err := pkgerrors.WrapResource("commit", "version", "e1/capacity", errors.New("db closed"))
		assert.Contains(t, err.Error(), "commit")
		assert.Contains(t, err.Error(), "e1/capacity")
	})

	t.Run("nil passthrough", func(t *testing.T) {
		assert.NoError(t, pkgerrors.WrapIO("read", "p", nil))
		assert.NoError(t, pkgerrors.WrapResource("commit", "version", "", nil))
		assert.NoError(t, pkgerrors.WrapValidation("field", nil))
	})
}
