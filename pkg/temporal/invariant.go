package temporal

import (
	"github.com/placelore/gazetteer/pkg/errors"
	"github.com/placelore/gazetteer/pkg/gazetteer"
)

// CheckCriticalOverlap rejects a verified version of a critical attribute
// whose validity interval would overlap another verified version. The
// caller passes the versions that will remain after the commit closes any
// open predecessor; transient overlap with unverified versions is allowed
// until the conflict resolver has run.
func CheckCriticalOverlap(version gazetteer.AttributeVersion, remaining []gazetteer.AttributeVersion, critical map[gazetteer.AttributeType]bool) error {
	if version.Verification != gazetteer.VerificationVerified {
		return nil
	}
	if !critical[version.Type] {
		return nil
	}
	for _, existing := range remaining {
		if existing.Verification != gazetteer.VerificationVerified {
			continue
		}
		if version.Overlaps(existing) {
			return &errors.TemporalOverlapError{
				EntityID:      string(version.EntityID),
				AttributeType: string(version.Type),
				ValidityFrom:  version.ValidityFrom,
				ConflictsWith: existing.SourceRef,
			}
		}
	}
	return nil
}
