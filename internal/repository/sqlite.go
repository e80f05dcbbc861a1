package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"
)

// SQLiteSheets stores named sheets in a local SQLite file. Cells are kept as
// a JSON array per row.
type SQLiteSheets struct {
	db *sql.DB
}

// NewSQLiteSheets opens (or creates) the database at path and migrates it.
// Use ":memory:" for a throwaway store.
func NewSQLiteSheets(path string) (*SQLiteSheets, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)", path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite: %w", err)
	}

	// SQLite only supports 1 writer; a single connection also keeps
	// ":memory:" databases alive across calls
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := runMigrations(db, "sqlite3", "migrations/sqlite"); err != nil {
		db.Close()
		return nil, err
	}

	log.Info().Str("path", path).Msg("SQLite sheet store ready")
	return &SQLiteSheets{db: db}, nil
}

// Close closes the database
func (s *SQLiteSheets) Close() error {
	return s.db.Close()
}

// Rows returns the sheet's rows in order
func (s *SQLiteSheets) Rows(ctx context.Context, name string) ([][]string, error) {
	start := time.Now()
	rows, err := s.rows(ctx, name)
	recordQuery("rows", name, err, start)
	return rows, err
}

func (s *SQLiteSheets) rows(ctx context.Context, name string) ([][]string, error) {
	var found string
	err := s.db.QueryRowContext(ctx, `SELECT name FROM sheets WHERE name = ?`, name).Scan(&found)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSheetNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up sheet %q: %w", name, err)
	}

	sqlRows, err := s.db.QueryContext(ctx, `SELECT cells FROM sheet_rows WHERE sheet = ? ORDER BY row_idx`, name)
	if err != nil {
		return nil, fmt.Errorf("failed to query sheet %q: %w", name, err)
	}
	defer sqlRows.Close()

	result := [][]string{}
	for sqlRows.Next() {
		var raw string
		if err := sqlRows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("failed to scan sheet row: %w", err)
		}

		var cells []string
		if err := json.Unmarshal([]byte(raw), &cells); err != nil {
			return nil, fmt.Errorf("failed to decode sheet row: %w", err)
		}
		if cells == nil {
			cells = []string{}
		}
		result = append(result, cells)
	}

	if err := sqlRows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sheet rows: %w", err)
	}

	return result, nil
}

// Replace creates the sheet or overwrites all of its rows
func (s *SQLiteSheets) Replace(ctx context.Context, name string, rows [][]string) error {
	start := time.Now()
	err := s.replace(ctx, name, rows)
	recordQuery("replace", name, err, start)
	return err
}

func (s *SQLiteSheets) replace(ctx context.Context, name string, rows [][]string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	upsert := `
		INSERT INTO sheets (name, updated_at) VALUES (?, CURRENT_TIMESTAMP)
		ON CONFLICT(name) DO UPDATE SET updated_at = CURRENT_TIMESTAMP`
	if _, err := tx.ExecContext(ctx, upsert, name); err != nil {
		return fmt.Errorf("failed to upsert sheet %q: %w", name, err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM sheet_rows WHERE sheet = ?`, name); err != nil {
		return fmt.Errorf("failed to clear sheet %q: %w", name, err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO sheet_rows (sheet, row_idx, cells) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare row insert: %w", err)
	}
	defer stmt.Close()

	for i, row := range rows {
		if row == nil {
			row = []string{}
		}
		raw, err := json.Marshal(row)
		if err != nil {
			return fmt.Errorf("failed to encode sheet row %d: %w", i, err)
		}
		if _, err := stmt.ExecContext(ctx, name, i, string(raw)); err != nil {
			return fmt.Errorf("failed to insert sheet row %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit sheet %q: %w", name, err)
	}

	log.Debug().
		Str("sheet", name).
		Int("rows", len(rows)).
		Msg("Sheet replaced")

	return nil
}

// Delete drops the sheet and its rows. Unknown sheets are ignored.
func (s *SQLiteSheets) Delete(ctx context.Context, name string) error {
	start := time.Now()
	_, err := s.db.ExecContext(ctx, `DELETE FROM sheets WHERE name = ?`, name)
	if err != nil {
		err = fmt.Errorf("failed to delete sheet %q: %w", name, err)
	}
	recordQuery("delete", name, err, start)
	return err
}
