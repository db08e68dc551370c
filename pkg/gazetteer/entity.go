// Package gazetteer defines the core domain types for the place-attribute
// store: entities (places), bitemporal attribute versions, and the
// observations produced by source adapters.
package gazetteer

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/placelore/gazetteer/pkg/errors"
)

// EntityID is the stable internal identifier of a place.
// Assigned once on registration, never reused.
type EntityID string

// String returns the string representation of an EntityID.
func (id EntityID) String() string {
	return string(id)
}

// NewEntityID generates a fresh entity identifier.
func NewEntityID() EntityID {
	return EntityID(uuid.NewString())
}

// SourceID identifies a source adapter's namespace.
type SourceID string

// String returns the string representation of a SourceID.
func (id SourceID) String() string {
	return string(id)
}

// ExternalKey links an entity to a record in one source's namespace.
// Keys are unique within their source namespace.
type ExternalKey struct {
	Source SourceID `json:"source" yaml:"source"`
	Key    string   `json:"key" yaml:"key"` // e.g. "node/240109189" for an OSM crawl
}

// String returns the "source:key" form used in logs and audit records.
func (k ExternalKey) String() string {
	return string(k.Source) + ":" + k.Key
}

// Location is a point location in WGS84.
type Location struct {
	Lat float64 `json:"lat" yaml:"lat"`
	Lon float64 `json:"lon" yaml:"lon"`
}

// Entity is an immutable identity record for a place. Entities are created
// on first observation from any adapter and never deleted; closure is a
// status attribute, not an identity change.
type Entity struct {
	ID           EntityID      `json:"id" yaml:"id"`
	ExternalKeys []ExternalKey `json:"external_keys" yaml:"external_keys"`
	Location     Location      `json:"location" yaml:"location"`
	Region       string        `json:"region,omitempty" yaml:"region,omitempty"` // territorial-authority style region code
}

// Key returns the entity's key in the given source namespace, if any.
func (e Entity) Key(source SourceID) (string, bool) {
	for _, k := range e.ExternalKeys {
		if k.Source == source {
			return k.Key, true
		}
	}
	return "", false
}

// HasKey reports whether the entity carries the given external key.
func (e Entity) HasKey(key ExternalKey) bool {
	for _, k := range e.ExternalKeys {
		if k == key {
			return true
		}
	}
	return false
}

// Validate checks the entity invariants. An entity must carry at least one
// external-source key, and at most one key per source namespace.
func (e Entity) Validate() error {
	if len(e.ExternalKeys) == 0 {
		return errors.NewValidationError("external_keys", nil,
			"entity must carry at least one external-source key")
	}
	seen := make(map[SourceID]bool, len(e.ExternalKeys))
	for _, k := range e.ExternalKeys {
		if strings.TrimSpace(k.Key) == "" {
			return errors.NewValidationError("external_keys", k,
				fmt.Sprintf("empty key for source %s", k.Source))
		}
		if seen[k.Source] {
			return errors.NewValidationError("external_keys", k,
				fmt.Sprintf("duplicate key for source namespace %s", k.Source))
		}
		seen[k.Source] = true
	}
	return nil
}
