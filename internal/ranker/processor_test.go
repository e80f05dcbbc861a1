package ranker

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"bwsrank/ingestion/internal/client/mockclient"
	"bwsrank/ingestion/internal/models"
	"bwsrank/ingestion/internal/scoring"
	"bwsrank/ingestion/internal/state"

	"github.com/itbasis/go-clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func intPtr(v int) *int { return &v }

func floatPtr(v float64) *float64 { return &v }

func newPlayers(ids ...int) []*models.Player {
	players := make([]*models.Player, len(ids))
	for i, id := range ids {
		players[i] = &models.Player{UserID: id}
	}
	return players
}

func userWithRank(id, rank int) *models.UserResponse {
	return &models.UserResponse{
		ID:          id,
		Username:    "player",
		CountryCode: "US",
		Statistics:  models.UserStatistics{GlobalRank: intPtr(rank)},
	}
}

type processorFixture struct {
	clock       *clock.Mock
	store       *state.MemoryStore
	checkpoints *state.Checkpoints
	fetcher     *mockclient.Client
	processor   *Processor
}

func newProcessorFixture(budget time.Duration) *processorFixture {
	clk := clock.NewMock()
	store := state.NewMemoryStore(clk)
	checkpoints := state.NewCheckpoints(store)
	fetcher := &mockclient.Client{}

	return &processorFixture{
		clock:       clk,
		store:       store,
		checkpoints: checkpoints,
		fetcher:     fetcher,
		processor: NewProcessor(fetcher, checkpoints, clk, ProcessorConfig{
			TimeBudget: budget,
		}),
	}
}

func (f *processorFixture) runState(offset int) models.RunState {
	return models.RunState{RunID: "test-run", Offset: offset, StartedAt: f.clock.Now()}
}

func TestProcessor_EndToEndExample(t *testing.T) {
	ctx := context.Background()
	f := newProcessorFixture(0)

	f.fetcher.On("FetchUser", mock.Anything, 100).Return(&models.UserResponse{
		ID:          100,
		Username:    "WhiteCat",
		CountryCode: "DE",
		Statistics:  models.UserStatistics{GlobalRank: intPtr(15500)},
		Badges: []models.BadgeInput{
			{AwardedAt: "2022-01-01", Description: "Tournament Winner"},
		},
	}, nil)

	players := []*models.Player{{UserID: 100, DuelRating: floatPtr(5.0), Provisional: true}}
	exclusions := scoring.NewExclusionPattern([]string{"pattern", "contributor"})

	out, err := f.processor.Run(ctx, f.runState(0), players, exclusions)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, out.Status)
	require.Len(t, out.Processed, 1)

	p := out.Processed[0]
	assert.Equal(t, "WhiteCat", p.Username)
	assert.Equal(t, "DE", p.Country)
	assert.Equal(t, 15500, *p.Rank)
	assert.Equal(t, 1, p.Badges)
	require.NotNil(t, p.BWSRank)
	assert.InDelta(t, math.Pow(15500, 0.9937), *p.BWSRank, 1e-9)
	require.NotNil(t, p.DuelRating)
	assert.Equal(t, 6.146, *p.DuelRating)

	assert.Equal(t, 1, out.State.Offset)
	f.fetcher.AssertExpectations(t)
}

func TestProcessor_UnflaggedPlayerKeepsDuelRating(t *testing.T) {
	f := newProcessorFixture(0)
	f.fetcher.On("FetchUser", mock.Anything, 1).Return(userWithRank(1, 30500), nil)

	players := []*models.Player{{UserID: 1, DuelRating: floatPtr(5.5)}}
	out, err := f.processor.Run(context.Background(), f.runState(0), players, scoring.ExclusionPattern{})
	require.NoError(t, err)

	assert.Equal(t, 5.5, *out.Processed[0].DuelRating)
}

func TestProcessor_ResumeSkipsProcessedIndices(t *testing.T) {
	ctx := context.Background()
	f := newProcessorFixture(0)

	for _, id := range []int{3, 4, 5} {
		f.fetcher.On("FetchUser", mock.Anything, id).Return(userWithRank(id, 2500), nil).Once()
	}

	players := newPlayers(1, 2, 3, 4, 5)
	out, err := f.processor.Run(ctx, f.runState(2), players, scoring.ExclusionPattern{})
	require.NoError(t, err)

	assert.Equal(t, StatusCompleted, out.Status)
	require.Len(t, out.Processed, 3)
	assert.Equal(t, []int{3, 4, 5}, []int{out.Processed[0].UserID, out.Processed[1].UserID, out.Processed[2].UserID})
	assert.Equal(t, 5, out.State.Offset)

	f.fetcher.AssertNotCalled(t, "FetchUser", mock.Anything, 1)
	f.fetcher.AssertNotCalled(t, "FetchUser", mock.Anything, 2)
	assert.Empty(t, players[0].Username, "indices before the offset are never touched")
	assert.Nil(t, players[1].BWSRank)
	f.fetcher.AssertExpectations(t)
}

func TestProcessor_PausesWhenBudgetExceeded(t *testing.T) {
	ctx := context.Background()
	f := newProcessorFixture(5 * time.Minute)

	f.fetcher.On("FetchUser", mock.Anything, mock.AnythingOfType("int")).
		Run(func(mock.Arguments) { f.clock.Add(2 * time.Minute) }).
		Return(userWithRank(1, 1500), nil)

	players := newPlayers(10, 11, 12, 13, 14)
	out, err := f.processor.Run(ctx, f.runState(0), players, scoring.ExclusionPattern{})
	require.NoError(t, err, "a pause is not an error")

	assert.Equal(t, StatusPaused, out.Status)
	assert.Len(t, out.Processed, 3, "elapsed is 6m after the third record")
	assert.Equal(t, 3, out.State.Offset)

	offset, err := f.checkpoints.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, offset)
	f.fetcher.AssertNumberOfCalls(t, "FetchUser", 3)
}

func TestProcessor_BudgetCheckedAfterLastRecord(t *testing.T) {
	ctx := context.Background()
	f := newProcessorFixture(time.Minute)

	f.fetcher.On("FetchUser", mock.Anything, mock.AnythingOfType("int")).
		Run(func(mock.Arguments) { f.clock.Add(2 * time.Minute) }).
		Return(userWithRank(1, 1500), nil)

	players := newPlayers(1)
	out, err := f.processor.Run(ctx, f.runState(0), players, scoring.ExclusionPattern{})
	require.NoError(t, err)
	assert.Equal(t, StatusPaused, out.Status)
	assert.Equal(t, 1, out.State.Offset)
	assert.Len(t, out.Processed, 1)

	resumed, err := f.processor.Run(ctx, f.runState(1), players, scoring.ExclusionPattern{})
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, resumed.Status)
	assert.Empty(t, resumed.Processed)
	f.fetcher.AssertNumberOfCalls(t, "FetchUser", 1)
}

func TestProcessor_FetchErrorLeavesCheckpointAtFailingIndex(t *testing.T) {
	ctx := context.Background()
	f := newProcessorFixture(0)

	upstream := errors.New("rate limited")
	f.fetcher.On("FetchUser", mock.Anything, 1).Return(userWithRank(1, 1500), nil)
	f.fetcher.On("FetchUser", mock.Anything, 2).Return(nil, upstream)

	out, err := f.processor.Run(ctx, f.runState(0), newPlayers(1, 2, 3), scoring.ExclusionPattern{})
	require.Error(t, err)
	assert.ErrorIs(t, err, upstream)

	assert.Equal(t, StatusFailed, out.Status)
	assert.Equal(t, 1, out.State.Offset)
	assert.Len(t, out.Processed, 1)

	offset, err := f.checkpoints.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, offset, "next run retries the failing player")
	f.fetcher.AssertNotCalled(t, "FetchUser", mock.Anything, 3)
}

// failingCheckpointer stores checkpoints until the failAt-th save
type failingCheckpointer struct {
	inner  Checkpointer
	saves  int
	failAt int
}

func (c *failingCheckpointer) SaveCheckpoint(ctx context.Context, s models.RunState) error {
	c.saves++
	if c.saves == c.failAt {
		return errors.New("state store unavailable")
	}
	return c.inner.SaveCheckpoint(ctx, s)
}

func TestProcessor_CheckpointErrorLeavesPlayerOutOfOutcome(t *testing.T) {
	ctx := context.Background()
	f := newProcessorFixture(0)
	f.fetcher.On("FetchUser", mock.Anything, mock.AnythingOfType("int")).Return(userWithRank(1, 1500), nil)

	checkpoints := &failingCheckpointer{inner: f.checkpoints, failAt: 2}
	processor := NewProcessor(f.fetcher, checkpoints, f.clock, ProcessorConfig{})

	out, err := processor.Run(ctx, f.runState(0), newPlayers(1, 2, 3), scoring.ExclusionPattern{})
	require.Error(t, err)
	assert.Equal(t, StatusFailed, out.Status)
	assert.Equal(t, 1, out.State.Offset, "outcome offset matches the stored checkpoint")
	require.Len(t, out.Processed, 1)
	assert.Equal(t, 1, out.Processed[0].UserID)

	offset, err := f.checkpoints.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, offset)
}

func TestProcessor_CancelledContextPauses(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f := newProcessorFixture(0)

	f.fetcher.On("FetchUser", mock.Anything, 1).
		Run(func(mock.Arguments) { cancel() }).
		Return(userWithRank(1, 1500), nil)

	out, err := f.processor.Run(ctx, f.runState(0), newPlayers(1, 2), scoring.ExclusionPattern{})
	require.NoError(t, err)
	assert.Equal(t, StatusPaused, out.Status)
	assert.Equal(t, 1, out.State.Offset)
	f.fetcher.AssertNotCalled(t, "FetchUser", mock.Anything, 2)
}

func TestProcessor_OffsetPastEnd(t *testing.T) {
	f := newProcessorFixture(0)

	out, err := f.processor.Run(context.Background(), f.runState(9), newPlayers(1, 2), scoring.ExclusionPattern{})
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, out.Status)
	assert.Empty(t, out.Processed)
	f.fetcher.AssertNotCalled(t, "FetchUser", mock.Anything, mock.Anything)
}

func TestProcessor_ExcludedAndOldBadges(t *testing.T) {
	f := newProcessorFixture(0)

	f.fetcher.On("FetchUser", mock.Anything, 1).Return(&models.UserResponse{
		ID:         1,
		Statistics: models.UserStatistics{GlobalRank: intPtr(40000)},
		Badges: []models.BadgeInput{
			{AwardedAt: "2020-12-31T23:59:59+00:00", Description: "Old Winner"},
			{AwardedAt: "2023-05-01T00:00:00+00:00", Description: "osu! Beatmap Nominator"},
			{AwardedAt: "2023-05-01T00:00:00+00:00", Description: "OWC 2023 Winner"},
		},
	}, nil)

	exclusions := scoring.NewExclusionPattern([]string{"Excluded", "nominator"})
	players := []*models.Player{{UserID: 1, Outdated: true}}

	out, err := f.processor.Run(context.Background(), f.runState(0), players, exclusions)
	require.NoError(t, err)

	p := out.Processed[0]
	assert.Equal(t, 1, p.Badges)
	assert.Equal(t, scoring.DefaultFallbackRating, *p.DuelRating, "band 40000 is outside the table")
}
