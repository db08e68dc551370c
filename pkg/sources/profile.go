package sources

import (
	"os"

	"github.com/goccy/go-yaml"

	"github.com/placelore/gazetteer/pkg/errors"
	"github.com/placelore/gazetteer/pkg/gazetteer"
)

// Kind classifies how a feed produces its data.
type Kind string

// Feed kinds.
const (
	KindCrawl       Kind = "crawl"       // crawl-style geodata extraction
	KindCommercial  Kind = "commercial"  // commercial place API
	KindManual      Kind = "manual"      // manual or academic curation
	KindStatistical Kind = "statistical" // census-statistics import
)

// Profile describes one source's trustworthiness for scoring and conflict
// resolution. Reputation and priority are externally configurable; source
// behavior varies too much to hardcode.
type Profile struct {
	ID   gazetteer.SourceID `json:"id" yaml:"id"`
	Name string             `json:"name" yaml:"name"`
	Kind Kind               `json:"kind" yaml:"kind"`

	// Priority ranks the source for conflict resolution (higher wins).
	Priority int `json:"priority" yaml:"priority"`

	// Reputation multiplies confidence scores, defaulting to 1.0.
	Reputation float64 `json:"reputation" yaml:"reputation"`

	// ContributorTrust optionally refines reputation per contributor.
	ContributorTrust map[string]float64 `json:"contributor_trust,omitempty" yaml:"contributor_trust,omitempty"`
}

// TrustFor returns the trust weight for an observation's contributor.
// Contributors without a configured entry are neutral; reputation is a
// separate multiplier and is never folded in here.
func (p Profile) TrustFor(contributor string) float64 {
	if contributor != "" {
		if trust, ok := p.ContributorTrust[contributor]; ok {
			return trust
		}
	}
	return 1.0
}

// Profiles maps source IDs to their profiles.
type Profiles map[gazetteer.SourceID]Profile

// Get returns the profile for a source, falling back to a neutral profile
// for unknown sources.
func (p Profiles) Get(id gazetteer.SourceID) Profile {
	if profile, ok := p[id]; ok {
		return profile
	}
	return Profile{ID: id, Reputation: 1.0}
}

// DefaultProfiles returns the standard feed profiles: manual curation is
// trusted most, then the statistics import, the commercial API, and the
// crawl.
func DefaultProfiles() Profiles {
	return Profiles{
		ManualCurationID: {
			ID:         ManualCurationID,
			Name:       "Manual Curation",
			Kind:       KindManual,
			Priority:   100,
			Reputation: 1.0,
		},
		StatsImportID: {
			ID:         StatsImportID,
			Name:       "Statistics Import",
			Kind:       KindStatistical,
			Priority:   90,
			Reputation: 0.95,
		},
		PlacesAPIID: {
			ID:         PlacesAPIID,
			Name:       "Commercial Places API",
			Kind:       KindCommercial,
			Priority:   80,
			Reputation: 0.9,
		},
		OSMCrawlID: {
			ID:         OSMCrawlID,
			Name:       "OSM Crawl",
			Kind:       KindCrawl,
			Priority:   70,
			Reputation: 0.85,
		},
	}
}

// LoadProfiles reads source profiles from a YAML file. Entries merge over
// the defaults so a deployment only lists its overrides.
func LoadProfiles(path string) (Profiles, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WrapIO("read", path, err)
	}
	var listed []Profile
	if err := yaml.Unmarshal(data, &listed); err != nil {
		return nil, errors.NewConfigError("sources", "cannot parse profiles", err)
	}

	profiles := DefaultProfiles()
	for _, profile := range listed {
		if profile.ID == "" {
			return nil, errors.NewValidationError("id", profile, "profile must carry a source id")
		}
		profiles[profile.ID] = profile
	}
	return profiles, nil
}

// PriorityOrder returns source IDs ordered highest priority first, for
// resolver configuration.
func (p Profiles) PriorityOrder() []gazetteer.SourceID {
	ids := make([]gazetteer.SourceID, 0, len(p))
	for id := range p {
		ids = append(ids, id)
	}
	// Stable order: priority descending, ID ascending among ties.
	for i := 0; i < len(ids)-1; i++ {
		for j := i + 1; j < len(ids); j++ {
			pi, pj := p[ids[i]], p[ids[j]]
			if pj.Priority > pi.Priority || (pj.Priority == pi.Priority && ids[j] < ids[i]) {
				ids[i], ids[j] = ids[j], ids[i]
			}
		}
	}
	return ids
}
