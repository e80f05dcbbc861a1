package state

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"bwsrank/ingestion/internal/metrics"
	"bwsrank/ingestion/internal/models"

	"github.com/rs/zerolog/log"
)

// Checkpoints persists the resume offset under KeyCheckpoint
type Checkpoints struct {
	store Store
}

// NewCheckpoints wraps a store
func NewCheckpoints(store Store) *Checkpoints {
	return &Checkpoints{store: store}
}

// Load returns the persisted offset, or 0 when absent or unreadable
func (c *Checkpoints) Load(ctx context.Context) (int, error) {
	raw, err := c.store.Get(ctx, KeyCheckpoint)
	if errors.Is(err, ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to load checkpoint: %w", err)
	}

	offset, err := strconv.Atoi(raw)
	if err != nil || offset < 0 {
		log.Warn().Str("value", raw).Msg("Ignoring unreadable checkpoint, starting from 0")
		return 0, nil
	}

	return offset, nil
}

// SaveCheckpoint persists s.Offset
func (c *Checkpoints) SaveCheckpoint(ctx context.Context, s models.RunState) error {
	if err := c.store.Set(ctx, KeyCheckpoint, strconv.Itoa(s.Offset)); err != nil {
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}
	metrics.CheckpointOffset.Set(float64(s.Offset))
	return nil
}

// Clear removes the checkpoint so the next run starts at 0
func (c *Checkpoints) Clear(ctx context.Context) error {
	if err := c.store.Delete(ctx, KeyCheckpoint); err != nil {
		return fmt.Errorf("failed to clear checkpoint: %w", err)
	}
	metrics.CheckpointOffset.Set(0)
	return nil
}
