package ranker

import (
	"fmt"
	"sort"

	"bwsrank/ingestion/internal/models"
)

// SortByDuelRating orders players by duel rating, highest first. Players
// without a rating go last and ties keep their processing order.
func SortByDuelRating(players []*models.Player) []*models.Player {
	sorted := append([]*models.Player(nil), players...)
	sort.SliceStable(sorted, func(a, b int) bool {
		ra, rb := sorted[a].DuelRating, sorted[b].DuelRating
		if ra == nil {
			return false
		}
		if rb == nil {
			return true
		}
		return *ra > *rb
	})
	return sorted
}

// BuildExportRows renders the export sheet: the fixed header followed by
// one sorted row per player
func BuildExportRows(players []*models.Player) [][]string {
	rows := make([][]string, 0, len(players)+1)
	rows = append(rows, append([]string(nil), models.ExportHeader...))
	for _, p := range SortByDuelRating(players) {
		rows = append(rows, p.ExportRow())
	}
	return rows
}

// parseExportRows reads players back from an export-shaped sheet, skipping
// the header and blank rows
func parseExportRows(rows [][]string) ([]*models.Player, error) {
	if len(rows) == 0 {
		return nil, nil
	}

	players := make([]*models.Player, 0, len(rows)-1)
	for i, row := range rows[1:] {
		if isBlank(row) {
			continue
		}
		p, err := models.ParseExportRow(row)
		if err != nil {
			return nil, fmt.Errorf("invalid staged row %d: %w", i+2, err)
		}
		players = append(players, p)
	}
	return players, nil
}

func isBlank(row []string) bool {
	for _, c := range row {
		if c != "" {
			return false
		}
	}
	return true
}
