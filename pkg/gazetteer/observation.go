package gazetteer

import (
	"time"
)

// Observation is an adapter-produced candidate fact, not yet committed.
// The entity is referenced by external key and may not yet resolve to a
// registered entity.
type Observation struct {
	Key           ExternalKey   `json:"key" yaml:"key"`
	AttributeType AttributeType `json:"attribute_type" yaml:"attribute_type"`
	Value         Value         `json:"value" yaml:"value"`
	ValidityFrom  time.Time     `json:"validity_from" yaml:"validity_from"`
	Source        SourceID      `json:"source" yaml:"source"`
	SourceRef     string        `json:"source_ref,omitempty" yaml:"source_ref,omitempty"`

	// Removed marks the source as reporting the entity closed or deleted.
	Removed bool `json:"removed,omitempty" yaml:"removed,omitempty"`

	// Location and Region seed the entity record when the observation
	// creates one.
	Location *Location `json:"location,omitempty" yaml:"location,omitempty"`
	Region   string    `json:"region,omitempty" yaml:"region,omitempty"`

	// Raw confidence inputs for the scorer.
	ObservedAt   time.Time `json:"observed_at" yaml:"observed_at"`                       // when the source last touched the record
	VersionCount int       `json:"version_count,omitempty" yaml:"version_count,omitempty"` // source-side revision count
	Contributor  string    `json:"contributor,omitempty" yaml:"contributor,omitempty"`   // source-side editor, if known
}
