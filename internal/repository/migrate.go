package repository

import (
	"database/sql"
	"embed"
	"fmt"

	"github.com/pressly/goose/v3"
	"github.com/rs/zerolog/log"
)

//go:embed migrations/postgres/*.sql migrations/sqlite/*.sql
var embedMigrations embed.FS

func runMigrations(db *sql.DB, dialect, dir string) error {
	goose.SetBaseFS(embedMigrations)
	goose.SetLogger(goose.NopLogger())

	if err := goose.SetDialect(dialect); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}

	if err := goose.Up(db, dir); err != nil {
		return fmt.Errorf("failed to run goose migrations: %w", err)
	}

	log.Info().Str("dialect", dialect).Msg("Migrations completed successfully")
	return nil
}
