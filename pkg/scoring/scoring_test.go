package scoring_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/placelore/gazetteer/pkg/errors"
	"github.com/placelore/gazetteer/pkg/gazetteer"
	"github.com/placelore/gazetteer/pkg/scoring"
	"github.com/placelore/gazetteer/pkg/sources"
)

var testNow = time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

func newScorer(t *testing.T) *scoring.Scorer {
	t.Helper()
	cfg := scoring.DefaultConfig()
	cfg.Clock = func() time.Time { return testNow }
	return scoring.New(cfg, sources.DefaultProfiles())
}

func observation(typ gazetteer.AttributeType, value gazetteer.Value) gazetteer.Observation {
	return gazetteer.Observation{
		Key:           gazetteer.ExternalKey{Source: "osm_crawl", Key: "node/1"},
		AttributeType: typ,
		Value:         value,
		Source:        sources.OSMCrawlID,
		ObservedAt:    testNow,
		VersionCount:  3,
	}
}

func TestScoreDeterministic(t *testing.T) {
	scorer := newScorer(t)
	obs := observation(gazetteer.AttributeName, gazetteer.Value{"name": "St. Mary"})

	first, err := scorer.Score(obs)
	require.NoError(t, err)
	for range 10 {
		again, err := scorer.Score(obs)
		require.NoError(t, err)
		assert.Equal(t, first, again, "scoring is pure")
	}
	assert.Greater(t, first, 0.0)
	assert.LessOrEqual(t, first, 1.0)
}

func TestScoreCompleteness(t *testing.T) {
	scorer := newScorer(t)

	full := observation(gazetteer.AttributeLocation, gazetteer.Value{"lat": 52.5, "lon": 13.4})
	partial := observation(gazetteer.AttributeLocation, gazetteer.Value{"lat": 52.5})

	fullScore, err := scorer.Score(full)
	require.NoError(t, err)
	partialScore, err := scorer.Score(partial)
	require.NoError(t, err)

	assert.Greater(t, fullScore, partialScore, "missing expected fields lower the score")

	// Even an empty payload keeps at least the completeness floor.
	empty := observation(gazetteer.AttributeLocation, gazetteer.Value{})
	emptyScore, err := scorer.Score(empty)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, emptyScore, fullScore*scoring.DefaultCompletenessFloor)
}

func TestScoreStability(t *testing.T) {
	scorer := newScorer(t)

	settled := observation(gazetteer.AttributeName, gazetteer.Value{"name": "St. Mary"})
	settledScore, err := scorer.Score(settled)
	require.NoError(t, err)

	t.Run("new record penalized", func(t *testing.T) {
		fresh := settled
		fresh.VersionCount = 0
		freshScore, err := scorer.Score(fresh)
		require.NoError(t, err)
		assert.InDelta(t, settledScore*scoring.DefaultNewRecordPenalty, freshScore, 1e-9)
	})

	t.Run("churny record penalized", func(t *testing.T) {
		churny := settled
		churny.VersionCount = 20
		churnyScore, err := scorer.Score(churny)
		require.NoError(t, err)
		assert.InDelta(t, settledScore*scoring.DefaultChurnPenalty, churnyScore, 1e-9)
	})
}

func TestScoreRecency(t *testing.T) {
	scorer := newScorer(t)

	fresh := observation(gazetteer.AttributeName, gazetteer.Value{"name": "St. Mary"})
	freshScore, err := scorer.Score(fresh)
	require.NoError(t, err)

	aging := fresh
	aging.ObservedAt = testNow.Add(-200 * 24 * time.Hour)
	agingScore, err := scorer.Score(aging)
	require.NoError(t, err)
	assert.Less(t, agingScore, freshScore, "older observations decay")

	ancient := fresh
	ancient.ObservedAt = testNow.Add(-10 * 365 * 24 * time.Hour)
	ancientScore, err := scorer.Score(ancient)
	require.NoError(t, err)
	assert.InDelta(t, freshScore*scoring.DefaultRecencyFloor, ancientScore, 1e-9,
		"decay bottoms out at the floor")
}

func TestScoreSourceReputation(t *testing.T) {
	scorer := newScorer(t)

	crawl := observation(gazetteer.AttributeName, gazetteer.Value{"name": "St. Mary"})
	manual := crawl
	manual.Source = sources.ManualCurationID

	crawlScore, err := scorer.Score(crawl)
	require.NoError(t, err)
	manualScore, err := scorer.Score(manual)
	require.NoError(t, err)
	assert.Greater(t, manualScore, crawlScore, "manual curation outranks the crawl")
}

func TestScoreContributorTrust(t *testing.T) {
	profiles := sources.DefaultProfiles()
	profile := profiles[sources.ManualCurationID]
	profile.ContributorTrust = map[string]float64{"intern": 0.6}
	profiles[sources.ManualCurationID] = profile

	cfg := scoring.DefaultConfig()
	cfg.Clock = func() time.Time { return testNow }
	scorer := scoring.New(cfg, profiles)

	trusted := observation(gazetteer.AttributeName, gazetteer.Value{"name": "St. Mary"})
	trusted.Source = sources.ManualCurationID

	intern := trusted
	intern.Contributor = "intern"

	trustedScore, err := scorer.Score(trusted)
	require.NoError(t, err)
	internScore, err := scorer.Score(intern)
	require.NoError(t, err)
	assert.Less(t, internScore, trustedScore)
}

func TestScoreOmittedReputationIsNeutral(t *testing.T) {
	profiles := sources.DefaultProfiles()
	profiles["custom_feed"] = sources.Profile{ID: "custom_feed", Priority: 50}

	cfg := scoring.DefaultConfig()
	cfg.Clock = func() time.Time { return testNow }
	scorer := scoring.New(cfg, profiles)

	obs := observation(gazetteer.AttributeName, gazetteer.Value{"name": "St. Mary"})
	obs.Source = "custom_feed"

	score, err := scorer.Score(obs)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, score, 0.001, "a profile without a reputation scores as neutral")
}

func TestScoreManualReputationAppliedOnce(t *testing.T) {
	profiles := sources.DefaultProfiles()
	profile := profiles[sources.ManualCurationID]
	profile.Reputation = 0.9
	profiles[sources.ManualCurationID] = profile

	cfg := scoring.DefaultConfig()
	cfg.Clock = func() time.Time { return testNow }
	scorer := scoring.New(cfg, profiles)

	obs := observation(gazetteer.AttributeName, gazetteer.Value{"name": "St. Mary"})
	obs.Source = sources.ManualCurationID

	score, err := scorer.Score(obs)
	require.NoError(t, err)
	assert.InDelta(t, 0.9, score, 0.001, "reputation is a single multiplier, not squared via contributor trust")
}

func TestScoreMalformed(t *testing.T) {
	scorer := newScorer(t)

	t.Run("missing attribute type", func(t *testing.T) {
		obs := observation("", gazetteer.Value{"name": "x"})
		_, err := scorer.Score(obs)
		assert.True(t, errors.IsScoring(err))
	})

	t.Run("missing value", func(t *testing.T) {
		obs := observation(gazetteer.AttributeName, nil)
		_, err := scorer.Score(obs)
		assert.True(t, errors.IsScoring(err))
	})

	t.Run("removal carries no value", func(t *testing.T) {
		obs := observation(gazetteer.AttributeStatus, nil)
		obs.Removed = true
		_, err := scorer.Score(obs)
		assert.NoError(t, err)
	})
}
