package models

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ExportHeader is the fixed header row of the output sheet
var ExportHeader = []string{
	"userId",
	"username",
	"country",
	"rank",
	"badges",
	"bwsRank",
	"duelRating",
	"provisional",
	"outdated",
}

// Player is one row of the run: read from the import sheet, enriched from
// the osu! API and the scoring policy, then written to the export sheet.
type Player struct {
	UserID      int
	Username    string
	Country     string
	Rank        *int
	Badges      int
	BWSRank     *float64
	DuelRating  *float64
	Provisional bool
	Outdated    bool
}

// NeedsFallbackRating reports whether the duel rating must come from the rank band table
func (p *Player) NeedsFallbackRating() bool {
	return p.Provisional || p.Outdated
}

// Enrich copies the API identity and rank fields onto the player
func (p *Player) Enrich(u *UserResponse) {
	p.Username = u.Username
	p.Country = u.CountryCode
	p.Rank = u.Statistics.GlobalRank
}

// ParseImportRows converts import sheet rows into players.
// The first row is a header. Columns by position: userId, duelRating,
// provisional, outdated. Fully blank rows are skipped.
func ParseImportRows(rows [][]string) ([]*Player, error) {
	if len(rows) == 0 {
		return nil, nil
	}

	players := make([]*Player, 0, len(rows)-1)
	for i, row := range rows[1:] {
		if isBlankRow(row) {
			continue
		}

		// i+2: one for the header, one for 1-based sheet rows
		p, err := parseImportRow(row)
		if err != nil {
			return nil, fmt.Errorf("invalid import row %d: %w", i+2, err)
		}
		players = append(players, p)
	}

	return players, nil
}

func parseImportRow(row []string) (*Player, error) {
	userID, err := parseInt(cell(row, 0))
	if err != nil {
		return nil, fmt.Errorf("userId: %w", err)
	}
	duelRating, err := parseOptionalFloat(cell(row, 1))
	if err != nil {
		return nil, fmt.Errorf("duelRating: %w", err)
	}
	provisional, err := parseBool(cell(row, 2))
	if err != nil {
		return nil, fmt.Errorf("provisional: %w", err)
	}
	outdated, err := parseBool(cell(row, 3))
	if err != nil {
		return nil, fmt.Errorf("outdated: %w", err)
	}

	return &Player{
		UserID:      userID,
		DuelRating:  duelRating,
		Provisional: provisional,
		Outdated:    outdated,
	}, nil
}

// ExportRow renders the player in ExportHeader column order
func (p *Player) ExportRow() []string {
	return []string{
		strconv.Itoa(p.UserID),
		p.Username,
		p.Country,
		formatOptionalInt(p.Rank),
		strconv.Itoa(p.Badges),
		formatOptionalFloat(p.BWSRank),
		formatOptionalFloat(p.DuelRating),
		strconv.FormatBool(p.Provisional),
		strconv.FormatBool(p.Outdated),
	}
}

// ParseExportRow is the inverse of ExportRow
func ParseExportRow(row []string) (*Player, error) {
	if len(row) < len(ExportHeader) {
		return nil, fmt.Errorf("expected %d columns, got %d", len(ExportHeader), len(row))
	}

	var (
		p   = &Player{Username: row[1], Country: row[2]}
		err error
	)
	if p.UserID, err = parseInt(row[0]); err != nil {
		return nil, fmt.Errorf("userId: %w", err)
	}
	if p.Rank, err = parseOptionalInt(row[3]); err != nil {
		return nil, fmt.Errorf("rank: %w", err)
	}
	if p.Badges, err = parseInt(row[4]); err != nil {
		return nil, fmt.Errorf("badges: %w", err)
	}
	if p.BWSRank, err = parseOptionalFloat(row[5]); err != nil {
		return nil, fmt.Errorf("bwsRank: %w", err)
	}
	if p.DuelRating, err = parseOptionalFloat(row[6]); err != nil {
		return nil, fmt.Errorf("duelRating: %w", err)
	}
	if p.Provisional, err = parseBool(row[7]); err != nil {
		return nil, fmt.Errorf("provisional: %w", err)
	}
	if p.Outdated, err = parseBool(row[8]); err != nil {
		return nil, fmt.Errorf("outdated: %w", err)
	}

	return p, nil
}

func cell(row []string, i int) string {
	if i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func isBlankRow(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// parseInt accepts "123" and integral floats such as "123.0"
func parseInt(s string) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty value")
	}
	if v, err := strconv.Atoi(s); err == nil {
		return v, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("not an integer: %q", s)
	}
	return int(math.Trunc(f)), nil
}

func parseOptionalInt(s string) (*int, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	v, err := parseInt(s)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func parseOptionalFloat(s string) (*float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, fmt.Errorf("not a number: %q", s)
	}
	if math.IsNaN(f) {
		return nil, nil
	}
	return &f, nil
}

// parseBool treats an empty cell as false
func parseBool(s string) (bool, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return false, nil
	}
	return strconv.ParseBool(s)
}

func formatOptionalInt(v *int) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(*v)
}

func formatOptionalFloat(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}
