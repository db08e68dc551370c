// Package scoring computes confidence scores for observations. Scoring
// is pure: the same observation, source profile, and clock always
// produce the same score.
package scoring

import (
	"time"

	"github.com/placelore/gazetteer/pkg/errors"
	"github.com/placelore/gazetteer/pkg/gazetteer"
	"github.com/placelore/gazetteer/pkg/sources"
)

// Default tuning values. All are overridable through Config.
const (
	// DefaultCompletenessFloor is the score share retained by an
	// observation carrying none of its expected fields.
	DefaultCompletenessFloor = 0.5
	// DefaultNewRecordPenalty applies to records never seen before.
	DefaultNewRecordPenalty = 0.8
	// DefaultChurnThreshold is the version count past which an
	// attribute is considered unstable.
	DefaultChurnThreshold = 5
	// DefaultChurnPenalty applies to attributes above the churn threshold.
	DefaultChurnPenalty = 0.85
	// DefaultStalenessHorizon is the age at which recency decay bottoms out.
	DefaultStalenessHorizon = 2 * 365 * 24 * time.Hour
	// DefaultRecencyFloor is the minimum multiplier recency decay reaches.
	DefaultRecencyFloor = 0.7
)

// Config tunes the scorer.
type Config struct {
	// ExpectedFields lists the fields a complete observation of each
	// attribute type carries. Missing entries mean completeness is not
	// assessed for that type.
	ExpectedFields map[gazetteer.AttributeType][]string

	// CompletenessFloor bounds how far missing fields can drag a score.
	CompletenessFloor float64

	// NewRecordPenalty applies when the observation is the first ever
	// for its entity attribute.
	NewRecordPenalty float64

	// ChurnThreshold and ChurnPenalty punish attributes that have
	// flapped through many versions.
	ChurnThreshold int
	ChurnPenalty   float64

	// StalenessHorizon and RecencyFloor shape the linear decay applied
	// to observation age.
	StalenessHorizon time.Duration
	RecencyFloor     float64

	// Clock supplies the reference time for recency decay.
	Clock func() time.Time
}

// DefaultExpectedFields returns the field vocabulary per attribute type.
func DefaultExpectedFields() map[gazetteer.AttributeType][]string {
	return map[gazetteer.AttributeType][]string{
		gazetteer.AttributeName:         {"name"},
		gazetteer.AttributeDenomination: {"denomination", "religion"},
		gazetteer.AttributeReligion:     {"religion"},
		gazetteer.AttributeCapacity:     {"capacity"},
		gazetteer.AttributeStatus:       {"status"},
		gazetteer.AttributeLocation:     {"lat", "lon"},
	}
}

// DefaultConfig returns a Config with the standard tuning.
func DefaultConfig() Config {
	return Config{
		ExpectedFields:    DefaultExpectedFields(),
		CompletenessFloor: DefaultCompletenessFloor,
		NewRecordPenalty:  DefaultNewRecordPenalty,
		ChurnThreshold:    DefaultChurnThreshold,
		ChurnPenalty:      DefaultChurnPenalty,
		StalenessHorizon:  DefaultStalenessHorizon,
		RecencyFloor:      DefaultRecencyFloor,
		Clock:             time.Now,
	}
}

// Scorer assigns confidence scores to observations.
type Scorer struct {
	cfg      Config
	profiles sources.Profiles
}

// New creates a Scorer. Zero-valued config fields fall back to defaults.
func New(cfg Config, profiles sources.Profiles) *Scorer {
	defaults := DefaultConfig()
	if cfg.ExpectedFields == nil {
		cfg.ExpectedFields = defaults.ExpectedFields
	}
	if cfg.CompletenessFloor == 0 {
		cfg.CompletenessFloor = defaults.CompletenessFloor
	}
	if cfg.NewRecordPenalty == 0 {
		cfg.NewRecordPenalty = defaults.NewRecordPenalty
	}
	if cfg.ChurnThreshold == 0 {
		cfg.ChurnThreshold = defaults.ChurnThreshold
	}
	if cfg.ChurnPenalty == 0 {
		cfg.ChurnPenalty = defaults.ChurnPenalty
	}
	if cfg.StalenessHorizon == 0 {
		cfg.StalenessHorizon = defaults.StalenessHorizon
	}
	if cfg.RecencyFloor == 0 {
		cfg.RecencyFloor = defaults.RecencyFloor
	}
	if cfg.Clock == nil {
		cfg.Clock = defaults.Clock
	}
	return &Scorer{cfg: cfg, profiles: profiles}
}

// Score computes the confidence for one observation. The result is
// always within [0, 1]. Malformed observations return a ScoringError.
func (s *Scorer) Score(obs gazetteer.Observation) (float64, error) {
	if obs.AttributeType == "" {
		return 0, errors.NewScoringError(string(obs.Source), obs.Key.Key, string(obs.AttributeType), "missing attribute type")
	}
	if obs.Value == nil && !obs.Removed {
		return 0, errors.NewScoringError(string(obs.Source), obs.Key.Key, string(obs.AttributeType), "missing value")
	}

	profile := s.profiles.Get(obs.Source)

	// An unset reputation means neutral, not untrusted.
	score := profile.Reputation
	if score == 0 {
		score = 1.0
	}
	score *= s.completeness(obs)
	score *= s.stability(obs)
	score *= s.recency(obs)
	if profile.Kind == sources.KindManual {
		score *= profile.TrustFor(obs.Contributor)
	}

	return clamp(score), nil
}

// completeness rewards observations carrying their expected fields.
// The factor lies in [CompletenessFloor, 1].
func (s *Scorer) completeness(obs gazetteer.Observation) float64 {
	expected := s.cfg.ExpectedFields[obs.AttributeType]
	if len(expected) == 0 || obs.Removed {
		return 1.0
	}
	present := 0
	for _, field := range expected {
		if value, ok := obs.Value[field]; ok && value != nil {
			present++
		}
	}
	ratio := float64(present) / float64(len(expected))
	return s.cfg.CompletenessFloor + (1.0-s.cfg.CompletenessFloor)*ratio
}

// stability penalizes never-seen records and attributes with high
// version churn.
func (s *Scorer) stability(obs gazetteer.Observation) float64 {
	if obs.VersionCount == 0 {
		return s.cfg.NewRecordPenalty
	}
	if obs.VersionCount > s.cfg.ChurnThreshold {
		return s.cfg.ChurnPenalty
	}
	return 1.0
}

// recency decays linearly with observation age down to RecencyFloor at
// the staleness horizon.
func (s *Scorer) recency(obs gazetteer.Observation) float64 {
	if obs.ObservedAt.IsZero() {
		return 1.0
	}
	age := s.cfg.Clock().UTC().Sub(obs.ObservedAt.UTC())
	if age <= 0 {
		return 1.0
	}
	if age >= s.cfg.StalenessHorizon {
		return s.cfg.RecencyFloor
	}
	fraction := float64(age) / float64(s.cfg.StalenessHorizon)
	return 1.0 - (1.0-s.cfg.RecencyFloor)*fraction
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
