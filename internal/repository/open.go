package repository

import (
	"context"
	"fmt"
)

// SheetStore is a tabular store of named sheets
type SheetStore interface {
	Rows(ctx context.Context, name string) ([][]string, error)
	Replace(ctx context.Context, name string, rows [][]string) error
	Delete(ctx context.Context, name string) error
}

// Backends
const (
	BackendPostgres = "postgres"
	BackendSQLite   = "sqlite"
)

// OpenSheets opens the sheet store for backend. The returned func releases it.
func OpenSheets(ctx context.Context, backend string, pg Config, sqlitePath string) (SheetStore, func(), error) {
	switch backend {
	case BackendPostgres:
		db, err := NewDatabase(ctx, pg)
		if err != nil {
			return nil, nil, err
		}
		if err := db.Health(ctx); err != nil {
			db.Close()
			return nil, nil, err
		}
		db.RecordPoolStats()
		return db.Sheets, db.Close, nil

	case BackendSQLite:
		sheets, err := NewSQLiteSheets(sqlitePath)
		if err != nil {
			return nil, nil, err
		}
		return sheets, func() { sheets.Close() }, nil
	}

	return nil, nil, fmt.Errorf("unknown table backend %q", backend)
}
