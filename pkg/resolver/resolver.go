// Package resolver ranks competing detected changes and decides whether
// the winner may be applied automatically or must be reviewed.
package resolver

import (
	"fmt"
	"sort"

	"github.com/placelore/gazetteer/pkg/detector"
	"github.com/placelore/gazetteer/pkg/errors"
	"github.com/placelore/gazetteer/pkg/gazetteer"
	"github.com/placelore/gazetteer/pkg/sources"
)

// Disposition is the resolver's verdict for a change.
type Disposition string

const (
	// DispositionApply means the change may be committed automatically.
	DispositionApply Disposition = "apply"
	// DispositionReview means the change needs a human decision.
	DispositionReview Disposition = "review"
	// DispositionReject means the change is discarded. The resolver
	// never rejects on its own; this verdict comes from review.
	DispositionReject Disposition = "reject"
)

// Default tuning values.
const (
	// DefaultConflictPenalty is applied to the winner of a contested
	// conflict set.
	DefaultConflictPenalty = 0.9
	// DefaultAutoApplyThreshold is the minimum confidence for
	// automatic application.
	DefaultAutoApplyThreshold = 0.7
)

// Config tunes the resolver.
type Config struct {
	// Priorities overrides per-source priority. Sources absent here
	// fall back to their profile priority.
	Priorities map[gazetteer.SourceID]int

	// ConflictPenalty multiplies the winner's confidence when it beat
	// at least one competing candidate.
	ConflictPenalty float64

	// AutoApplyThreshold is the minimum confidence for DispositionApply.
	AutoApplyThreshold float64

	// AlwaysReview lists attribute types that never auto-apply.
	AlwaysReview map[gazetteer.AttributeType]bool
}

// DefaultConfig returns a Config with standard tuning and the default
// critical attribute set.
func DefaultConfig() Config {
	return Config{
		ConflictPenalty:    DefaultConflictPenalty,
		AutoApplyThreshold: DefaultAutoApplyThreshold,
		AlwaysReview:       gazetteer.DefaultCriticalAttributes(),
	}
}

// Outcome is the result of resolving one change.
type Outcome struct {
	// Change is the winning change, with any conflict penalty already
	// folded into its confidence.
	Change detector.DetectedChange

	Disposition Disposition

	// Rejected holds the losing candidates of a conflict set. They are
	// retained for provenance, never committed.
	Rejected []detector.DetectedChange

	// Reason explains the disposition.
	Reason string
}

// Resolver decides the fate of detected changes.
type Resolver struct {
	cfg      Config
	profiles sources.Profiles
}

// New creates a Resolver. Zero-valued config fields fall back to defaults.
func New(cfg Config, profiles sources.Profiles) *Resolver {
	defaults := DefaultConfig()
	if cfg.ConflictPenalty == 0 {
		cfg.ConflictPenalty = defaults.ConflictPenalty
	}
	if cfg.AutoApplyThreshold == 0 {
		cfg.AutoApplyThreshold = defaults.AutoApplyThreshold
	}
	if cfg.AlwaysReview == nil {
		cfg.AlwaysReview = defaults.AlwaysReview
	}
	return &Resolver{cfg: cfg, profiles: profiles}
}

// Resolve ranks a change and routes it. When the change is a conflict
// whose candidates cannot be ordered by priority, confidence, or
// observation time, Resolve returns a valid review outcome together
// with a ResolutionAmbiguityError describing the tie.
func (r *Resolver) Resolve(change detector.DetectedChange) (Outcome, error) {
	if change.Kind == detector.KindConflict {
		return r.resolveConflict(change)
	}
	return r.route(change, nil, false), nil
}

// resolveConflict picks the winner of a contested set. Precedence:
// source priority, then confidence, then latest observation.
func (r *Resolver) resolveConflict(change detector.DetectedChange) (Outcome, error) {
	candidates := make([]detector.DetectedChange, len(change.Candidates))
	copy(candidates, change.Candidates)
	sort.SliceStable(candidates, func(i, j int) bool {
		return r.ranks(candidates[i], candidates[j])
	})

	winner := candidates[0]
	rejected := candidates[1:]
	if len(rejected) > 0 && r.tied(winner, rejected[0]) {
		outcome := Outcome{
			Change:      winner,
			Disposition: DispositionReview,
			Rejected:    rejected,
			Reason:      "conflict candidates indistinguishable",
		}
		return outcome, errors.NewResolutionAmbiguityError(
			entityOf(change), string(change.AttributeType), sourceNames(candidates))
	}

	winner.Confidence *= r.cfg.ConflictPenalty
	return r.route(winner, rejected, true), nil
}

// route applies the auto-apply gate to an already-ranked change.
func (r *Resolver) route(change detector.DetectedChange, rejected []detector.DetectedChange, contested bool) Outcome {
	outcome := Outcome{
		Change:      change,
		Disposition: DispositionApply,
		Rejected:    rejected,
	}
	switch {
	case change.Kind == detector.KindDelete:
		outcome.Disposition = DispositionReview
		outcome.Reason = "deletions require review"
	case r.cfg.AlwaysReview[change.AttributeType]:
		outcome.Disposition = DispositionReview
		outcome.Reason = fmt.Sprintf("attribute %s always reviewed", change.AttributeType)
	case change.Confidence < r.cfg.AutoApplyThreshold:
		outcome.Disposition = DispositionReview
		outcome.Reason = fmt.Sprintf("confidence %.2f below threshold %.2f",
			change.Confidence, r.cfg.AutoApplyThreshold)
	case contested:
		outcome.Reason = "won contested conflict set"
	default:
		outcome.Reason = "uncontested above threshold"
	}
	return outcome
}

// ranks reports whether a should win over b.
func (r *Resolver) ranks(a, b detector.DetectedChange) bool {
	pa, pb := r.priority(a.Observation.Source), r.priority(b.Observation.Source)
	if pa != pb {
		return pa > pb
	}
	if a.Confidence != b.Confidence {
		return a.Confidence > b.Confidence
	}
	return a.Observation.ObservedAt.After(b.Observation.ObservedAt)
}

// tied reports whether two candidates are indistinguishable on every
// precedence dimension.
func (r *Resolver) tied(a, b detector.DetectedChange) bool {
	return r.priority(a.Observation.Source) == r.priority(b.Observation.Source) &&
		a.Confidence == b.Confidence &&
		a.Observation.ObservedAt.Equal(b.Observation.ObservedAt)
}

func (r *Resolver) priority(source gazetteer.SourceID) int {
	if p, ok := r.cfg.Priorities[source]; ok {
		return p
	}
	return r.profiles.Get(source).Priority
}

func entityOf(change detector.DetectedChange) string {
	if change.EntityID != nil {
		return string(*change.EntityID)
	}
	return change.Key.String()
}

func sourceNames(candidates []detector.DetectedChange) []string {
	var names []string
	seen := make(map[string]bool)
	for _, candidate := range candidates {
		name := string(candidate.Observation.Source)
		if !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}
	return names
}
