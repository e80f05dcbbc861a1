package scoring

import (
	"math"

	"bwsrank/ingestion/internal/models"
)

// Policy constants. They are tuning knobs, not derived values.
const (
	DefaultBadgeBase      = 0.9937
	DefaultBadgeExponent  = 1.7
	DefaultFallbackRating = 0.001
	rankBandWidth         = 1000
)

// DuelRatingByRank maps a rank band's lower bound to its fallback duel rating
var DuelRatingByRank = map[int]float64{
	1000:  6.75,
	2000:  6.7,
	3000:  6.65,
	4000:  6.6,
	5000:  6.55,
	6000:  6.453,
	7000:  6.413,
	8000:  6.375,
	9000:  6.339,
	10000: 6.303,
	11000: 6.269,
	12000: 6.236,
	13000: 6.205,
	14000: 6.175,
	15000: 6.146,
	16000: 6.118,
	17000: 6.092,
	18000: 6.067,
	19000: 6.043,
	20000: 6.02,
	21000: 5.999,
	22000: 5.979,
	23000: 5.96,
	24000: 5.943,
	25000: 5.927,
	26000: 5.912,
	27000: 5.898,
	28000: 5.886,
	29000: 5.875,
}

// Policy is the rank adjustment policy
type Policy struct {
	BadgeBase     float64
	BadgeExponent float64
	// FallbackRating is assigned when a flagged player's band is not in the table
	FallbackRating float64
}

// DefaultPolicy returns the production constants
func DefaultPolicy() Policy {
	return Policy{
		BadgeBase:      DefaultBadgeBase,
		BadgeExponent:  DefaultBadgeExponent,
		FallbackRating: DefaultFallbackRating,
	}
}

// Adjustment is the derived ranking output for one player.
// DuelRating is nil when the player is neither provisional nor outdated.
type Adjustment struct {
	BWSRank    *float64
	DuelRating *float64
}

// BWSRank computes rank ^ (base ^ (badges ^ exponent))
func (p Policy) BWSRank(rank, badges int) float64 {
	return math.Pow(float64(rank), math.Pow(p.BadgeBase, math.Pow(float64(badges), p.BadgeExponent)))
}

// RankBand returns floor(rank/1000)*1000
func RankBand(rank int) int {
	return int(math.Floor(float64(rank)/rankBandWidth)) * rankBandWidth
}

// DuelRatingForRank looks up the rating for floor(rank/1000)*1000
func (p Policy) DuelRatingForRank(rank *int) float64 {
	if rank == nil {
		return p.FallbackRating
	}
	if rating, ok := DuelRatingByRank[RankBand(*rank)]; ok {
		return rating
	}
	return p.FallbackRating
}

// AdjustRank derives the BWS rank and, for flagged players, the fallback duel rating
func (p Policy) AdjustRank(player *models.Player) Adjustment {
	var adj Adjustment

	if player.Rank != nil {
		bws := p.BWSRank(*player.Rank, player.Badges)
		adj.BWSRank = &bws
	}

	if player.NeedsFallbackRating() {
		rating := p.DuelRatingForRank(player.Rank)
		adj.DuelRating = &rating
	}

	return adj
}

// Apply writes the adjustment onto the player, leaving DuelRating alone when unset
func (a Adjustment) Apply(player *models.Player) {
	player.BWSRank = a.BWSRank
	if a.DuelRating != nil {
		player.DuelRating = a.DuelRating
	}
}
