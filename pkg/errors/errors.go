// Package errors provides custom error types for the gazetteer system.
// These errors enable programmatic error checking across the ingestion
// pipeline and the temporal store, and carry enough context for audit
// records and operator reports.
package errors

import (
	"errors"
	"fmt"
	"time"
)

// New returns an error that formats as the given text.
// It's an alias for the standard library errors.New for convenience.
var New = errors.New

// Is reports whether any error in err's tree matches target.
// It's an alias for the standard library errors.Is for convenience.
var Is = errors.Is

// As finds the first error in err's tree that matches target.
// It's an alias for the standard library errors.As for convenience.
var As = errors.As

// Unwrap returns the result of calling the Unwrap method on err.
// It's an alias for the standard library errors.Unwrap for convenience.
var Unwrap = errors.Unwrap

// Common sentinel errors for the gazetteer system
var (
	// ErrNotFound indicates that a requested resource was not found
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists indicates that a resource already exists
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidInput indicates that provided input was invalid
	ErrInvalidInput = errors.New("invalid input")

	// ErrTemporalOverlap indicates a commit would overlap a verified version
	ErrTemporalOverlap = errors.New("temporal overlap")

	// ErrAdapterFetch indicates a transient failure fetching from a source adapter
	ErrAdapterFetch = errors.New("adapter fetch failed")

	// ErrScoring indicates an observation could not be scored
	ErrScoring = errors.New("scoring failed")

	// ErrResolutionAmbiguity indicates a conflict set could not be ranked
	ErrResolutionAmbiguity = errors.New("resolution ambiguity")

	// ErrCanceled indicates that an operation was canceled
	ErrCanceled = errors.New("operation canceled")

	// ErrReadOnly indicates an attempt to modify a read-only store
	ErrReadOnly = errors.New("read only")
)

// NotFoundError represents an error when a resource is not found
type NotFoundError struct {
	Resource string
	ID       string
}

// Error implements the error interface
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s with ID %s not found", e.Resource, e.ID)
}

// Is implements errors.Is support
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// NewNotFoundError creates a new NotFoundError
func NewNotFoundError(resource, id string) *NotFoundError {
	return &NotFoundError{Resource: resource, ID: id}
}

// ValidationError represents a validation failure
type ValidationError struct {
	Field   string
	Value   any
	Message string
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation failed for field %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation failed: %s", e.Message)
}

// Is implements errors.Is support
func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidInput
}

// NewValidationError creates a new ValidationError
func NewValidationError(field string, value any, message string) *ValidationError {
	return &ValidationError{Field: field, Value: value, Message: message}
}

// TemporalOverlapError is returned by the temporal store when a commit
// would produce two verified versions of a critical attribute with
// overlapping validity intervals. The commit is rejected; the conflicting
// versions are expected to be routed to the review queue.
type TemporalOverlapError struct {
	EntityID      string
	AttributeType string
	ValidityFrom  time.Time
	ConflictsWith string // source-local reference of the existing version
}

// Error implements the error interface
func (e *TemporalOverlapError) Error() string {
	return fmt.Sprintf("verified version overlap for entity %s attribute %s at %s (conflicts with %s)",
		e.EntityID, e.AttributeType, e.ValidityFrom.Format(time.RFC3339), e.ConflictsWith)
}

// Is implements errors.Is support
func (e *TemporalOverlapError) Is(target error) bool {
	return target == ErrTemporalOverlap
}

// AdapterFetchError represents a transient failure fetching observations
// from an external source. The ingestion coordinator retries these with
// backoff before failing the run.
type AdapterFetchError struct {
	Source  string
	Cursor  string
	Message string
	Err     error
}

// Error implements the error interface
func (e *AdapterFetchError) Error() string {
	if e.Cursor != "" {
		return fmt.Sprintf("fetch from source %s at cursor %q failed: %s", e.Source, e.Cursor, e.Message)
	}
	return fmt.Sprintf("fetch from source %s failed: %s", e.Source, e.Message)
}

// Unwrap implements errors.Unwrap
func (e *AdapterFetchError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is support
func (e *AdapterFetchError) Is(target error) bool {
	return target == ErrAdapterFetch
}

// NewAdapterFetchError creates a new AdapterFetchError
func NewAdapterFetchError(source, cursor string, err error) *AdapterFetchError {
	message := ""
	if err != nil {
		message = err.Error()
	}
	return &AdapterFetchError{
		Source:  source,
		Cursor:  cursor,
		Message: message,
		Err:     err,
	}
}

// ScoringError indicates an observation whose value payload could not be
// scored. One bad record must not abort a batch: callers drop the
// observation with an audit record instead of propagating this as fatal.
type ScoringError struct {
	Source        string
	ExternalKey   string
	AttributeType string
	Message       string
}

// Error implements the error interface
func (e *ScoringError) Error() string {
	return fmt.Sprintf("cannot score %s observation for %s (%s): %s",
		e.Source, e.ExternalKey, e.AttributeType, e.Message)
}

// Is implements errors.Is support
func (e *ScoringError) Is(target error) bool {
	return target == ErrScoring
}

// NewScoringError creates a new ScoringError
func NewScoringError(source, externalKey, attributeType, message string) *ScoringError {
	return &ScoringError{
		Source:        source,
		ExternalKey:   externalKey,
		AttributeType: attributeType,
		Message:       message,
	}
}

// ResolutionAmbiguityError indicates a conflict set whose candidates are
// indistinguishable by source priority, confidence, and detection time.
// Such sets always route to manual review; the resolver never guesses.
type ResolutionAmbiguityError struct {
	EntityID      string
	AttributeType string
	Sources       []string
}

// Error implements the error interface
func (e *ResolutionAmbiguityError) Error() string {
	return fmt.Sprintf("cannot rank conflict set for entity %s attribute %s (sources: %v)",
		e.EntityID, e.AttributeType, e.Sources)
}

// Is implements errors.Is support
func (e *ResolutionAmbiguityError) Is(target error) bool {
	return target == ErrResolutionAmbiguity
}

// NewResolutionAmbiguityError creates a new ResolutionAmbiguityError
func NewResolutionAmbiguityError(entityID, attributeType string, sources []string) *ResolutionAmbiguityError {
	return &ResolutionAmbiguityError{
		EntityID:      entityID,
		AttributeType: attributeType,
		Sources:       sources,
	}
}

// ConfigError represents a configuration error
type ConfigError struct {
	Component string
	Message   string
	Err       error
}

// Error implements the error interface
func (e *ConfigError) Error() string {
	if e.Component != "" {
		return fmt.Sprintf("configuration error in %s: %s", e.Component, e.Message)
	}
	return fmt.Sprintf("configuration error: %s", e.Message)
}

// Unwrap implements errors.Unwrap
func (e *ConfigError) Unwrap() error {
	return e.Err
}

// NewConfigError creates a new ConfigError
func NewConfigError(component, message string, err error) *ConfigError {
	return &ConfigError{
		Component: component,
		Message:   message,
		Err:       err,
	}
}

// IOError represents an error during I/O operations
type IOError struct {
	Operation string // "read", "write", "open", "close"
	Path      string
	Message   string
	Err       error
}

// Error implements the error interface
func (e *IOError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("IO error during %s of %s: %s", e.Operation, e.Path, e.Message)
	}
	return fmt.Sprintf("IO error during %s: %s", e.Operation, e.Message)
}

// Unwrap implements errors.Unwrap
func (e *IOError) Unwrap() error {
	return e.Err
}

// NewIOError creates a new IOError
func NewIOError(operation, path string, err error) *IOError {
	message := ""
	if err != nil {
		message = err.Error()
	}
	return &IOError{
		Operation: operation,
		Path:      path,
		Message:   message,
		Err:       err,
	}
}

// ResourceError represents an error during resource operations
type ResourceError struct {
	Operation string // "register", "commit", "enqueue", "resolve"
	Resource  string // "entity", "version", "review item", "cursor"
	ID        string
	Message   string
	Err       error
}

// Error implements the error interface
func (e *ResourceError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("failed to %s %s %s: %s", e.Operation, e.Resource, e.ID, e.Message)
	}
	return fmt.Sprintf("failed to %s %s: %s", e.Operation, e.Resource, e.Message)
}

// Unwrap implements errors.Unwrap
func (e *ResourceError) Unwrap() error {
	return e.Err
}

// NewResourceError creates a new ResourceError
func NewResourceError(operation, resource, id string, err error) *ResourceError {
	message := ""
	if err != nil {
		message = err.Error()
	}
	return &ResourceError{
		Operation: operation,
		Resource:  resource,
		ID:        id,
		Message:   message,
		Err:       err,
	}
}

// Helper functions for error checking

// IsNotFound checks if an error is a not found error
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsValidationError checks if an error is a validation error
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidInput)
}

// IsTemporalOverlap checks if an error is a temporal overlap violation
func IsTemporalOverlap(err error) bool {
	return errors.Is(err, ErrTemporalOverlap)
}

// IsAdapterFetch checks if an error is a transient adapter fetch failure
func IsAdapterFetch(err error) bool {
	return errors.Is(err, ErrAdapterFetch)
}

// IsScoring checks if an error is a scoring failure
func IsScoring(err error) bool {
	return errors.Is(err, ErrScoring)
}

// IsResolutionAmbiguity checks if an error is an unrankable conflict set
func IsResolutionAmbiguity(err error) bool {
	return errors.Is(err, ErrResolutionAmbiguity)
}

// IsCanceled checks if an error is a cancellation error
func IsCanceled(err error) bool {
	return errors.Is(err, ErrCanceled)
}

// Helper wrapping functions for common patterns

// WrapValidation wraps an error as a ValidationError
func WrapValidation(field string, err error) error {
	if err == nil {
		return nil
	}
	return &ValidationError{Field: field, Message: err.Error()}
}

// WrapIO wraps an error as an IOError
func WrapIO(operation, path string, err error) error {
	if err == nil {
		return nil
	}
	return NewIOError(operation, path, err)
}

// WrapResource wraps an error as a ResourceError
func WrapResource(operation, resource, id string, err error) error {
	if err == nil {
		return nil
	}
	return NewResourceError(operation, resource, id, err)
}

// WrapFetch wraps an error as an AdapterFetchError
func WrapFetch(source, cursor string, err error) error {
	if err == nil {
		return nil
	}
	return NewAdapterFetchError(source, cursor, err)
}
