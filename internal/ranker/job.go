package ranker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bwsrank/ingestion/internal/metrics"
	"bwsrank/ingestion/internal/models"
	"bwsrank/ingestion/internal/repository"
	"bwsrank/ingestion/internal/scoring"
	"bwsrank/ingestion/internal/state"

	"github.com/google/uuid"
	"github.com/itbasis/go-clock"
	"github.com/rs/zerolog/log"
)

// ErrRunInProgress is returned when another invocation holds the run lease
var ErrRunInProgress = errors.New("another run holds the run lease")

// DefaultLeaseTTL bounds how long a crashed run blocks the next one
const DefaultLeaseTTL = 10 * time.Minute

// Sheets is the tabular store the job reads from and writes to
type Sheets interface {
	// Rows returns repository.ErrSheetNotFound for unknown sheets.
	Rows(ctx context.Context, name string) ([][]string, error)
	Replace(ctx context.Context, name string, rows [][]string) error
	Delete(ctx context.Context, name string) error
}

// JobConfig names the sheets and the output mode of a Job
type JobConfig struct {
	ImportSheet  string
	ExportSheet  string
	FilterSheet  string
	StagingSheet string
	// Accumulate merges the rows of paused or failed segments into the
	// final output instead of writing only the last segment.
	Accumulate bool
	LeaseTTL   time.Duration
}

// Job is one invocation of the ranking batch
type Job struct {
	processor   *Processor
	sheets      Sheets
	store       state.Store
	checkpoints *state.Checkpoints
	clock       clock.Clock
	cfg         JobConfig
}

// NewJob wires a job. The processor should checkpoint into the same store.
func NewJob(processor *Processor, sheets Sheets, store state.Store, clk clock.Clock, cfg JobConfig) *Job {
	if cfg.LeaseTTL <= 0 {
		cfg.LeaseTTL = DefaultLeaseTTL
	}
	if cfg.StagingSheet == "" {
		cfg.StagingSheet = cfg.ExportSheet + "_partial"
	}

	return &Job{
		processor:   processor,
		sheets:      sheets,
		store:       store,
		checkpoints: state.NewCheckpoints(store),
		clock:       clk,
		cfg:         cfg,
	}
}

// Run reads the import and filter sheets, processes from the persisted
// checkpoint and, on completion, clears the checkpoint and writes the
// export sheet. A paused run leaves the checkpoint for the next invocation.
func (j *Job) Run(ctx context.Context) (*Outcome, error) {
	runState := models.RunState{
		RunID:     uuid.NewString(),
		StartedAt: j.clock.Now(),
	}

	acquired, err := j.store.AcquireLease(ctx, state.KeyRunLease, runState.RunID, j.cfg.LeaseTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire run lease: %w", err)
	}
	if !acquired {
		return nil, ErrRunInProgress
	}
	defer func() {
		if err := j.store.ReleaseLease(context.WithoutCancel(ctx), state.KeyRunLease, runState.RunID); err != nil {
			log.Warn().Err(err).Str("run_id", runState.RunID).Msg("Failed to release run lease")
		}
	}()

	outcome, err := j.run(ctx, runState)

	status := "error"
	if outcome != nil {
		status = string(outcome.Status)
	}
	metrics.RecordRun(status, j.clock.Now().Sub(runState.StartedAt).Seconds())

	return outcome, err
}

func (j *Job) run(ctx context.Context, runState models.RunState) (*Outcome, error) {
	offset, err := j.checkpoints.Load(ctx)
	if err != nil {
		return nil, err
	}
	runState.Offset = offset

	players, exclusions, err := j.loadInputs(ctx)
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("run_id", runState.RunID).
		Int("offset", runState.Offset).
		Int("players", len(players)).
		Int("exclusions", len(exclusions.Terms())).
		Bool("accumulate", j.cfg.Accumulate).
		Msg("Starting ranking run")

	if j.cfg.Accumulate && runState.Offset == 0 {
		if err := j.sheets.Delete(ctx, j.cfg.StagingSheet); err != nil {
			return nil, fmt.Errorf("failed to clear staging sheet: %w", err)
		}
	}

	outcome, runErr := j.processor.Run(ctx, runState, players, exclusions)

	if outcome.Status != StatusCompleted {
		if j.cfg.Accumulate {
			if err := j.stage(ctx, outcome.Processed); err != nil {
				return outcome, errors.Join(runErr, err)
			}
		}

		event := log.Info()
		if runErr != nil {
			event = log.Error().Err(runErr)
		}
		event.
			Str("run_id", runState.RunID).
			Str("status", string(outcome.Status)).
			Int("processed", len(outcome.Processed)).
			Int("next_offset", outcome.State.Offset).
			Msg("Ranking run stopped before the end of the import sheet")
		return outcome, runErr
	}

	if err := j.checkpoints.Clear(ctx); err != nil {
		return outcome, err
	}

	results := outcome.Processed
	if j.cfg.Accumulate {
		staged, err := j.readStaged(ctx)
		if err != nil {
			return outcome, err
		}
		results = append(staged, results...)
	}

	if err := j.sheets.Replace(ctx, j.cfg.ExportSheet, BuildExportRows(results)); err != nil {
		return outcome, fmt.Errorf("failed to write export sheet: %w", err)
	}

	if j.cfg.Accumulate {
		if err := j.sheets.Delete(ctx, j.cfg.StagingSheet); err != nil {
			return outcome, fmt.Errorf("failed to clear staging sheet: %w", err)
		}
	}

	log.Info().
		Str("run_id", runState.RunID).
		Int("processed", len(outcome.Processed)).
		Int("written", len(results)).
		Str("sheet", j.cfg.ExportSheet).
		Msg("Ranking run completed")

	return outcome, nil
}

func (j *Job) loadInputs(ctx context.Context) ([]*models.Player, scoring.ExclusionPattern, error) {
	importRows, err := j.sheets.Rows(ctx, j.cfg.ImportSheet)
	if err != nil {
		return nil, scoring.ExclusionPattern{}, fmt.Errorf("failed to read import sheet %q: %w", j.cfg.ImportSheet, err)
	}
	players, err := models.ParseImportRows(importRows)
	if err != nil {
		return nil, scoring.ExclusionPattern{}, fmt.Errorf("failed to parse import sheet %q: %w", j.cfg.ImportSheet, err)
	}

	filterRows, err := j.sheets.Rows(ctx, j.cfg.FilterSheet)
	if err != nil {
		return nil, scoring.ExclusionPattern{}, fmt.Errorf("failed to read filter sheet %q: %w", j.cfg.FilterSheet, err)
	}

	var cells []string
	for _, row := range filterRows {
		cells = append(cells, row...)
	}

	return players, scoring.NewExclusionPattern(cells), nil
}

// stage appends processed players to the staging sheet in processing order
func (j *Job) stage(ctx context.Context, processed []*models.Player) error {
	if len(processed) == 0 {
		return nil
	}

	staged, err := j.readStaged(ctx)
	if err != nil {
		return err
	}

	rows := [][]string{append([]string(nil), models.ExportHeader...)}
	for _, p := range append(staged, processed...) {
		rows = append(rows, p.ExportRow())
	}

	if err := j.sheets.Replace(ctx, j.cfg.StagingSheet, rows); err != nil {
		return fmt.Errorf("failed to write staging sheet: %w", err)
	}
	return nil
}

func (j *Job) readStaged(ctx context.Context) ([]*models.Player, error) {
	rows, err := j.sheets.Rows(ctx, j.cfg.StagingSheet)
	if errors.Is(err, repository.ErrSheetNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read staging sheet: %w", err)
	}
	return parseExportRows(rows)
}
