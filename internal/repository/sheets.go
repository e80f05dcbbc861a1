package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bwsrank/ingestion/internal/metrics"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog/log"
)

// ErrSheetNotFound is returned when reading a sheet that was never written
var ErrSheetNotFound = errors.New("sheet not found")

// SheetRepository stores named sheets of string rows in PostgreSQL
type SheetRepository struct {
	db *Database
}

// Rows returns the sheet's rows in order
func (r *SheetRepository) Rows(ctx context.Context, name string) ([][]string, error) {
	start := time.Now()
	rows, err := r.rows(ctx, name)
	recordQuery("rows", name, err, start)
	r.db.RecordPoolStats()
	return rows, err
}

func (r *SheetRepository) rows(ctx context.Context, name string) ([][]string, error) {
	var exists bool
	err := r.db.Pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM sheets WHERE name = $1)`, name).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("failed to look up sheet %q: %w", name, err)
	}
	if !exists {
		return nil, ErrSheetNotFound
	}

	query := `
		SELECT cells
		FROM sheet_rows
		WHERE sheet = $1
		ORDER BY row_idx
	`

	pgRows, err := r.db.Pool.Query(ctx, query, name)
	if err != nil {
		return nil, fmt.Errorf("failed to query sheet %q: %w", name, err)
	}
	defer pgRows.Close()

	result := [][]string{}
	for pgRows.Next() {
		var cells []string
		if err := pgRows.Scan(&cells); err != nil {
			return nil, fmt.Errorf("failed to scan sheet row: %w", err)
		}
		result = append(result, cells)
	}

	if err := pgRows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sheet rows: %w", err)
	}

	return result, nil
}

// Replace creates the sheet or overwrites all of its rows
func (r *SheetRepository) Replace(ctx context.Context, name string, rows [][]string) error {
	start := time.Now()
	err := r.replace(ctx, name, rows)
	recordQuery("replace", name, err, start)
	r.db.RecordPoolStats()
	return err
}

func (r *SheetRepository) replace(ctx context.Context, name string, rows [][]string) error {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	upsert := `
		INSERT INTO sheets (name) VALUES ($1)
		ON CONFLICT (name) DO UPDATE SET updated_at = NOW()
	`
	if _, err := tx.Exec(ctx, upsert, name); err != nil {
		return fmt.Errorf("failed to upsert sheet %q: %w", name, err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM sheet_rows WHERE sheet = $1`, name); err != nil {
		return fmt.Errorf("failed to clear sheet %q: %w", name, err)
	}

	copied, err := tx.CopyFrom(
		ctx,
		pgx.Identifier{"sheet_rows"},
		[]string{"sheet", "row_idx", "cells"},
		pgx.CopyFromSlice(len(rows), func(i int) ([]any, error) {
			cells := rows[i]
			if cells == nil {
				cells = []string{}
			}
			return []any{name, i, cells}, nil
		}),
	)
	if err != nil {
		return fmt.Errorf("failed to copy rows into sheet %q: %w", name, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit sheet %q: %w", name, err)
	}

	log.Debug().
		Str("sheet", name).
		Int64("rows", copied).
		Msg("Sheet replaced")

	return nil
}

// Delete drops the sheet and its rows. Unknown sheets are ignored.
func (r *SheetRepository) Delete(ctx context.Context, name string) error {
	start := time.Now()
	_, err := r.db.Pool.Exec(ctx, `DELETE FROM sheets WHERE name = $1`, name)
	if err != nil {
		err = fmt.Errorf("failed to delete sheet %q: %w", name, err)
	}
	recordQuery("delete", name, err, start)
	r.db.RecordPoolStats()
	return err
}

func recordQuery(operation, sheet string, err error, start time.Time) {
	status := "success"
	if err != nil && !errors.Is(err, ErrSheetNotFound) {
		status = "error"
	}
	metrics.RecordDBQuery(operation, sheet, status, time.Since(start).Seconds())
}
