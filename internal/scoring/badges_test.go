package scoring

import (
	"testing"

	"bwsrank/ingestion/internal/models"

	"github.com/stretchr/testify/assert"
)

func badge(awardedAt, description string) models.BadgeInput {
	return models.BadgeInput{AwardedAt: awardedAt, Description: description}
}

func TestNewExclusionPattern(t *testing.T) {
	p := NewExclusionPattern([]string{"Ignored badges", "", "Mapping Contest", "  ", "Beatmap Nominator"})

	assert.Equal(t, []string{"Mapping Contest", "Beatmap Nominator"}, p.Terms(), "header and empty cells are dropped")
	assert.True(t, p.Matches("Winner of the osu! Mapping Contest #44"))
	assert.True(t, p.Matches("BEATMAP NOMINATOR"))
	assert.False(t, p.Matches("osu! World Cup 2023 Winner"))
}

func TestNewExclusionPattern_HeaderOnlyExcludesNothing(t *testing.T) {
	for _, cells := range [][]string{nil, {}, {"Ignored badges"}, {"", "Ignored badges", ""}} {
		p := NewExclusionPattern(cells)
		assert.Empty(t, p.Terms())
		assert.False(t, p.Matches("anything at all"))
	}
}

func TestExclusionPattern_CaseInsensitiveEitherSide(t *testing.T) {
	p := NewExclusionPattern([]string{"header", "FANART"})

	assert.True(t, p.Matches("fanart contest winner"))
	assert.True(t, p.Matches("Fanart Contest Winner"))

	p = NewExclusionPattern([]string{"header", "fanart"})
	assert.True(t, p.Matches("FANART CONTEST WINNER"))
}

func TestExclusionPattern_LiteralSubstrings(t *testing.T) {
	p := NewExclusionPattern([]string{"header", "osu!mania (4K)", "a.b"})

	assert.True(t, p.Matches("Winner: osu!mania (4K) World Cup"))
	assert.False(t, p.Matches("osu!mania 4K World Cup"), "parentheses are literal")
	assert.False(t, p.Matches("axb"), "dot is literal")
}

func TestBadgeScorer_Count(t *testing.T) {
	scorer := BadgeScorer{
		Exclusions: NewExclusionPattern([]string{"header", "mapping contest", "nominator"}),
		MinYear:    DefaultBadgeMinYear,
	}

	badges := []models.BadgeInput{
		badge("2022-01-01", "Tournament Winner"),
		badge("2021-01-01T00:00:00+00:00", "osu! World Cup 2021 Winner"),
		badge("2020-12-31T12:00:00+00:00", "osu! World Cup 2020 Winner"),
		badge("2023-05-05T00:00:00+00:00", "Mapping Contest winner"),
		badge("2024-02-02T00:00:00+00:00", "Outstanding contribution as a Beatmap Nominator"),
		badge("garbage", "Tournament Winner"),
	}

	assert.Equal(t, 2, scorer.Count(badges))
}

func TestBadgeScorer_ExcludesOldBadgesRegardlessOfDescription(t *testing.T) {
	scorer := BadgeScorer{MinYear: DefaultBadgeMinYear}

	badges := []models.BadgeInput{
		badge("2015-01-01", "Tournament Winner"),
		badge("2018-07-07T00:00:00+00:00", "Anything"),
		badge("2020-12-31", ""),
	}

	assert.Equal(t, 0, scorer.Count(badges))
}

func TestBadgeScorer_EmptyList(t *testing.T) {
	scorer := BadgeScorer{MinYear: DefaultBadgeMinYear}
	assert.Equal(t, 0, scorer.Count(nil))
}
