package models

import (
	"fmt"
	"time"
)

// UserResponse is the subset of GET /users/{id}/osu the ranker reads
type UserResponse struct {
	ID          int            `json:"id"`
	Username    string         `json:"username"`
	CountryCode string         `json:"country_code"`
	Statistics  UserStatistics `json:"statistics"`
	Badges      []BadgeInput   `json:"badges"`
}

// UserStatistics holds ruleset statistics; GlobalRank is null for inactive players
type UserStatistics struct {
	GlobalRank *int     `json:"global_rank"`
	PP         *float64 `json:"pp,omitempty"`
}

// BadgeInput is a profile badge as returned by the API
type BadgeInput struct {
	AwardedAt   string `json:"awarded_at"`
	Description string `json:"description"`
	ImageURL    string `json:"image_url,omitempty"`
	URL         string `json:"url,omitempty"`
}

// badgeTimeLayouts are tried in order when parsing awarded_at
var badgeTimeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// AwardedTime parses AwardedAt; the result is in UTC
func (b BadgeInput) AwardedTime() (time.Time, error) {
	for _, layout := range badgeTimeLayouts {
		if t, err := time.Parse(layout, b.AwardedAt); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised awarded_at %q", b.AwardedAt)
}
