// Package ranker runs the resumable badge-weighted ranking batch.
package ranker

import (
	"context"
	"fmt"
	"time"

	"bwsrank/ingestion/internal/metrics"
	"bwsrank/ingestion/internal/models"
	"bwsrank/ingestion/internal/scoring"

	"github.com/itbasis/go-clock"
	"github.com/rs/zerolog/log"
)

// DefaultTimeBudget is how long one invocation may run before pausing
const DefaultTimeBudget = 5 * time.Minute

// Fetcher looks up a player's osu! profile
type Fetcher interface {
	FetchUser(ctx context.Context, userID int) (*models.UserResponse, error)
}

// Checkpointer persists the resume offset after every record
type Checkpointer interface {
	SaveCheckpoint(ctx context.Context, s models.RunState) error
}

// Status is how a processor run ended
type Status string

const (
	StatusCompleted Status = "completed"
	StatusPaused    Status = "paused"
	StatusFailed    Status = "failed"
)

// Outcome is the result of one processor run. Processed holds only the
// players handled in this invocation, in processing order.
type Outcome struct {
	State     models.RunState
	Status    Status
	Processed []*models.Player
}

// Processor enriches and scores players one at a time
type Processor struct {
	fetcher     Fetcher
	checkpoints Checkpointer
	policy      scoring.Policy
	minYear     int
	budget      time.Duration
	clock       clock.Clock
}

// ProcessorConfig holds the tuning knobs of a Processor
type ProcessorConfig struct {
	Policy       scoring.Policy
	BadgeMinYear int
	TimeBudget   time.Duration
}

// NewProcessor creates a processor. Zero config values take the defaults.
func NewProcessor(fetcher Fetcher, checkpoints Checkpointer, clk clock.Clock, cfg ProcessorConfig) *Processor {
	if cfg.Policy == (scoring.Policy{}) {
		cfg.Policy = scoring.DefaultPolicy()
	}
	if cfg.BadgeMinYear == 0 {
		cfg.BadgeMinYear = scoring.DefaultBadgeMinYear
	}
	if cfg.TimeBudget <= 0 {
		cfg.TimeBudget = DefaultTimeBudget
	}

	return &Processor{
		fetcher:     fetcher,
		checkpoints: checkpoints,
		policy:      cfg.Policy,
		minYear:     cfg.BadgeMinYear,
		budget:      cfg.TimeBudget,
		clock:       clk,
	}
}

// Run processes players[state.Offset:]. After every record it pauses once
// the time since state.StartedAt exceeds the budget or ctx is cancelled.
// A fetch or checkpoint error aborts the run; the returned outcome then
// carries the failing index as its offset.
func (p *Processor) Run(ctx context.Context, state models.RunState, players []*models.Player, exclusions scoring.ExclusionPattern) (*Outcome, error) {
	scorer := scoring.BadgeScorer{Exclusions: exclusions, MinYear: p.minYear}
	out := &Outcome{State: state, Status: StatusCompleted}

	if state.Offset > len(players) {
		log.Warn().
			Str("run_id", state.RunID).
			Int("offset", state.Offset).
			Int("players", len(players)).
			Msg("Checkpoint is past the end of the import sheet")
	}

	for i := state.Offset; i < len(players); i++ {
		player := players[i]

		user, err := p.fetcher.FetchUser(ctx, player.UserID)
		if err != nil {
			metrics.RecordError("processor", "fetch")
			out.Status = StatusFailed
			out.State.Offset = i
			return out, fmt.Errorf("failed to process player %d at index %d: %w", player.UserID, i, err)
		}

		player.Enrich(user)
		player.Badges = scorer.Count(user.Badges)
		p.policy.AdjustRank(player).Apply(player)

		// A player only joins the outcome once its checkpoint is stored
		next := out.State.Advance(i)
		if err := p.checkpoints.SaveCheckpoint(ctx, next); err != nil {
			metrics.RecordError("processor", "checkpoint")
			out.Status = StatusFailed
			out.State.Offset = i
			return out, fmt.Errorf("failed to checkpoint player %d at index %d: %w", player.UserID, i, err)
		}
		out.State = next
		out.Processed = append(out.Processed, player)

		metrics.RecordPlayer(player.Badges, fallbackSource(player))
		log.Info().
			Str("run_id", state.RunID).
			Int("index", i).
			Int("user_id", player.UserID).
			Str("username", player.Username).
			Int("badges", player.Badges).
			Msg("Processed player")

		if elapsed := p.clock.Now().Sub(state.StartedAt); elapsed > p.budget {
			log.Info().
				Str("run_id", state.RunID).
				Int("next_offset", out.State.Offset).
				Dur("elapsed", elapsed).
				Msg("Time budget reached, pausing")
			out.Status = StatusPaused
			return out, nil
		}
		if ctx.Err() != nil {
			log.Info().
				Str("run_id", state.RunID).
				Int("next_offset", out.State.Offset).
				Msg("Context cancelled, pausing")
			out.Status = StatusPaused
			return out, nil
		}
	}

	return out, nil
}

func fallbackSource(p *models.Player) string {
	if !p.NeedsFallbackRating() {
		return ""
	}
	if p.Rank == nil {
		return "no_rank"
	}
	if _, ok := scoring.DuelRatingByRank[scoring.RankBand(*p.Rank)]; ok {
		return "table"
	}
	return "sentinel"
}
