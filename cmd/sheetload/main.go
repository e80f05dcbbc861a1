// Command sheetload moves sheets between CSV files and the sheet store, so
// the import and filter sheets can be prepared and the export inspected.
//
//	sheetload load -sheet _import -file players.csv
//	sheetload dump -sheet _export > export.csv
package main

import (
	"context"
	"encoding/csv"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"

	"bwsrank/ingestion/internal/config"
	"bwsrank/ingestion/internal/repository"

	"github.com/rs/zerolog/log"
)

func main() {
	if len(os.Args) < 2 {
		usage()
	}

	fs := flag.NewFlagSet(os.Args[1], flag.ExitOnError)
	sheet := fs.String("sheet", "", "sheet name")
	file := fs.String("file", "", "CSV file (load: required, dump: defaults to stdout)")
	fs.Parse(os.Args[2:])

	if *sheet == "" {
		usage()
	}

	ctx := context.Background()
	cfg := config.MustLoad()

	sheets, closeSheets, err := repository.OpenSheets(ctx, cfg.TableBackend, repository.Config{
		Host:     cfg.DatabaseHost,
		Port:     strconv.Itoa(cfg.DatabasePort),
		User:     cfg.DatabaseUser,
		Password: cfg.DatabasePassword,
		Database: cfg.DatabaseName,
		SSLMode:  cfg.DatabaseSSLMode,
	}, cfg.SQLitePath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open sheet store")
	}
	defer closeSheets()

	switch os.Args[1] {
	case "load":
		if *file == "" {
			usage()
		}
		n, err := load(ctx, sheets, *sheet, *file)
		if err != nil {
			log.Fatal().Err(err).Str("sheet", *sheet).Msg("Failed to load sheet")
		}
		log.Info().Str("sheet", *sheet).Int("rows", n).Msg("Sheet loaded")

	case "dump":
		out := io.Writer(os.Stdout)
		if *file != "" {
			f, err := os.Create(*file)
			if err != nil {
				log.Fatal().Err(err).Msg("Failed to create output file")
			}
			defer f.Close()
			out = f
		}
		if err := dump(ctx, sheets, *sheet, out); err != nil {
			log.Fatal().Err(err).Str("sheet", *sheet).Msg("Failed to dump sheet")
		}

	default:
		usage()
	}
}

func load(ctx context.Context, sheets repository.SheetStore, name, path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	rows, err := r.ReadAll()
	if err != nil {
		return 0, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	if err := sheets.Replace(ctx, name, rows); err != nil {
		return 0, err
	}
	return len(rows), nil
}

func dump(ctx context.Context, sheets repository.SheetStore, name string, out io.Writer) error {
	rows, err := sheets.Rows(ctx, name)
	if err != nil {
		return err
	}

	w := csv.NewWriter(out)
	if err := w.WriteAll(rows); err != nil {
		return fmt.Errorf("failed to write CSV: %w", err)
	}
	return nil
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: sheetload load|dump -sheet NAME [-file PATH]")
	os.Exit(2)
}
