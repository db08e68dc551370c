package gazetteer

import (
	"time"

	"github.com/placelore/gazetteer/pkg/errors"
)

// AttributeType tags one kind of fact about a place.
type AttributeType string

// String returns the string representation of an AttributeType.
func (t AttributeType) String() string {
	return string(t)
}

// Attribute types observed by the standard adapters. The set is open:
// adapters may emit new types without store changes.
const (
	AttributeName         AttributeType = "name"
	AttributeDenomination AttributeType = "denomination"
	AttributeReligion     AttributeType = "religion"
	AttributeCapacity     AttributeType = "capacity"
	AttributeStatus       AttributeType = "status"
	AttributeLocation     AttributeType = "location"
)

// DefaultCriticalAttributes are the attribute types for which overlapping
// verified versions are never permitted without conflict resolution.
func DefaultCriticalAttributes() map[AttributeType]bool {
	return map[AttributeType]bool{
		AttributeDenomination: true,
		AttributeStatus:       true,
		AttributeLocation:     true,
	}
}

// VerificationState tracks how much human or automated vetting a version
// has received.
type VerificationState string

// Verification states.
const (
	VerificationUnverified VerificationState = "unverified"
	VerificationVerified   VerificationState = "verified"
	VerificationDisputed   VerificationState = "disputed"
	VerificationDeprecated VerificationState = "deprecated"
)

// IsValid returns true if the state is one of the defined constants.
func (s VerificationState) IsValid() bool {
	switch s {
	case VerificationUnverified, VerificationVerified, VerificationDisputed, VerificationDeprecated:
		return true
	}
	return false
}

// AttributeVersion is one fact about one entity at one attribute type,
// bounded by a real-world validity interval and stamped with the system
// time the record was written (the second temporal axis). Versions are
// never mutated in place, only superseded.
type AttributeVersion struct {
	EntityID  EntityID      `json:"entity_id" yaml:"entity_id"`
	Type      AttributeType `json:"type" yaml:"type"`
	Value     Value         `json:"value" yaml:"value"`
	Source    SourceID      `json:"source" yaml:"source"`
	SourceRef string        `json:"source_ref,omitempty" yaml:"source_ref,omitempty"` // source-local reference, e.g. changeset id

	ValidityFrom time.Time  `json:"validity_from" yaml:"validity_from"`
	ValidityTo   *time.Time `json:"validity_to,omitempty" yaml:"validity_to,omitempty"` // nil means currently believed true

	Confidence   float64           `json:"confidence" yaml:"confidence"`
	Verification VerificationState `json:"verification" yaml:"verification"`
	RecordedAt   time.Time         `json:"recorded_at" yaml:"recorded_at"` // system time, immutable
	Note         string            `json:"note,omitempty" yaml:"note,omitempty"`
}

// IsOpen reports whether the version is currently believed true.
func (v AttributeVersion) IsOpen() bool {
	return v.ValidityTo == nil
}

// Contains reports whether t falls inside the half-open validity interval
// [ValidityFrom, ValidityTo).
func (v AttributeVersion) Contains(t time.Time) bool {
	if t.Before(v.ValidityFrom) {
		return false
	}
	return v.ValidityTo == nil || t.Before(*v.ValidityTo)
}

// Overlaps reports whether two validity intervals intersect.
func (v AttributeVersion) Overlaps(other AttributeVersion) bool {
	if v.ValidityTo != nil && !other.ValidityFrom.Before(*v.ValidityTo) {
		return false
	}
	if other.ValidityTo != nil && !v.ValidityFrom.Before(*other.ValidityTo) {
		return false
	}
	return true
}

// Supersedes reports whether committing v should close an existing open
// version for the same entity and attribute type.
func (v AttributeVersion) Supersedes(existing AttributeVersion) bool {
	return v.EntityID == existing.EntityID &&
		v.Type == existing.Type &&
		existing.IsOpen() &&
		existing.ValidityFrom.Before(v.ValidityFrom)
}

// SameFact reports whether two versions assert the identical fact: same
// entity, attribute type, value, validity-from, and source. Committing the
// same fact twice is an idempotent no-op.
func (v AttributeVersion) SameFact(other AttributeVersion) bool {
	return v.EntityID == other.EntityID &&
		v.Type == other.Type &&
		v.Source == other.Source &&
		v.ValidityFrom.Equal(other.ValidityFrom) &&
		v.Value.Equal(other.Value)
}

// Validate checks version invariants before commit.
func (v AttributeVersion) Validate() error {
	if v.EntityID == "" {
		return errors.NewValidationError("entity_id", nil, "version must reference an entity")
	}
	if v.Type == "" {
		return errors.NewValidationError("type", nil, "version must carry an attribute type")
	}
	if v.Source == "" {
		return errors.NewValidationError("source", nil, "version must carry a source identifier")
	}
	if v.ValidityFrom.IsZero() {
		return errors.NewValidationError("validity_from", nil, "version must carry a validity-from timestamp")
	}
	if v.ValidityTo != nil && !v.ValidityTo.After(v.ValidityFrom) {
		return errors.NewValidationError("validity_to", *v.ValidityTo,
			"validity-to must be strictly after validity-from")
	}
	if v.Confidence < 0 || v.Confidence > 1 {
		return errors.NewValidationError("confidence", v.Confidence, "confidence must be in [0,1]")
	}
	if v.Verification != "" && !v.Verification.IsValid() {
		return errors.NewValidationError("verification", v.Verification, "unknown verification state")
	}
	return nil
}
