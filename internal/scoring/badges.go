// Package scoring holds the badge-weighted ranking policy: which badges count
// and how they soften a player's global rank.
package scoring

import (
	"regexp"
	"strings"

	"bwsrank/ingestion/internal/models"

	"github.com/rs/zerolog/log"
)

// DefaultBadgeMinYear is the first award year that still counts
const DefaultBadgeMinYear = 2021

// ExclusionPattern matches badge descriptions that never count.
// The zero value excludes nothing.
type ExclusionPattern struct {
	re    *regexp.Regexp
	terms []string
}

// NewExclusionPattern builds the pattern from the filter sheet cells.
// Empty cells are dropped and the first remaining cell is the header.
// Each entry is a literal substring; matching is case-insensitive.
func NewExclusionPattern(cells []string) ExclusionPattern {
	var terms []string
	for _, c := range cells {
		if c = strings.TrimSpace(c); c != "" {
			terms = append(terms, c)
		}
	}
	if len(terms) <= 1 {
		return ExclusionPattern{}
	}
	terms = terms[1:]

	quoted := make([]string, len(terms))
	for i, t := range terms {
		quoted[i] = regexp.QuoteMeta(t)
	}

	return ExclusionPattern{
		re:    regexp.MustCompile("(?i)(" + strings.Join(quoted, "|") + ")"),
		terms: terms,
	}
}

// Matches reports whether the description contains any excluded substring
func (p ExclusionPattern) Matches(description string) bool {
	if p.re == nil {
		return false
	}
	return p.re.MatchString(strings.ToLower(description))
}

// Terms returns the exclusion substrings in sheet order
func (p ExclusionPattern) Terms() []string {
	return p.terms
}

// BadgeScorer counts the badges that feed the BWS formula
type BadgeScorer struct {
	Exclusions ExclusionPattern
	MinYear    int
}

// Count returns the number of badges awarded in MinYear or later whose
// description is not excluded. Badges with unparseable timestamps never count.
func (s BadgeScorer) Count(badges []models.BadgeInput) int {
	count := 0
	for _, b := range badges {
		awardedAt, err := b.AwardedTime()
		if err != nil {
			log.Debug().
				Err(err).
				Str("description", b.Description).
				Msg("Skipping badge with unparseable award time")
			continue
		}
		if awardedAt.Year() < s.MinYear {
			continue
		}
		if s.Exclusions.Matches(b.Description) {
			continue
		}
		count++
	}
	return count
}
