package models

// wpmFactor converts characters per second into 5-character words per minute (60 / 5)
const wpmFactor = 12.0

// PlayerSpan holds the independent min/max of each cumulative counter observed for one
// (user, username, team) group across all stored captures
type PlayerSpan struct {
	UserID   int64  `db:"user_id"`
	Username string `db:"username"`
	TeamName string `db:"team_name"`
	Captures int64  `db:"captures"`

	MinRacesPlayed int64 `db:"min_races_played"`
	MaxRacesPlayed int64 `db:"max_races_played"`
	MinTyped       int64 `db:"min_typed"`
	MaxTyped       int64 `db:"max_typed"`
	MinErrs        int64 `db:"min_errs"`
	MaxErrs        int64 `db:"max_errs"`
	MinSecs        int64 `db:"min_secs"`
	MaxSecs        int64 `db:"max_secs"`
}

// PlayerRate is the derived performance over the observation window.
// AvgWPM and Accuracy are nil when their denominator spans zero.
type PlayerRate struct {
	UserID      int64    `json:"userID"`
	Username    string   `json:"username"`
	Team        string   `json:"team"`
	RacesPlayed int64    `json:"racesPlayed"`
	AvgWPM      *float64 `json:"avgWPM"`
	Accuracy    *float64 `json:"accuracy"`
}

// ComputeRate derives races, WPM and accuracy from a counter span
func ComputeRate(span PlayerSpan) PlayerRate {
	rate := PlayerRate{
		UserID:      span.UserID,
		Username:    span.Username,
		Team:        span.TeamName,
		RacesPlayed: span.MaxRacesPlayed - span.MinRacesPlayed,
	}

	typed := float64(span.MaxTyped - span.MinTyped)
	secs := float64(span.MaxSecs - span.MinSecs)
	errs := float64(span.MaxErrs - span.MinErrs)

	if secs > 0 {
		wpm := typed / secs * wpmFactor
		rate.AvgWPM = &wpm
	}

	if typed > 0 {
		accuracy := 100 - (errs/typed)*100
		rate.Accuracy = &accuracy
	}

	return rate
}
