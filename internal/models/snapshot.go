package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/go-playground/validator/v10"
)

// ErrRejectedPayload marks upstream payloads whose shape cannot be turned into a snapshot.
// Rejections are not transient and are never retried.
var ErrRejectedPayload = errors.New("rejected upstream payload")

// PlayerSnapshot is one captured observation of a player's team membership
type PlayerSnapshot struct {
	UserID   int64  `db:"user_id"`
	TeamID   int64  `db:"team_id"`
	TeamName string `db:"team_name"`

	// Cumulative counters
	RacesPlayed  int64   `db:"races_played"`
	Played       int64   `db:"played"`
	Secs         int64   `db:"secs"`
	Typed        int64   `db:"typed"`
	Errs         int64   `db:"errs"`
	AvgSpeed     float64 `db:"avg_speed"`
	HighestSpeed float64 `db:"highest_speed"`

	// Profile
	Username     string `db:"username"`
	DisplayName  string `db:"display_name"`
	Membership   string `db:"membership"`
	Title        string `db:"title"`
	Role         string `db:"role"`
	CarID        int64  `db:"car_id"`
	CarHueAngle  int64  `db:"car_hue_angle"`
	Status       string `db:"status"`
	LastLogin    int64  `db:"last_login"`
	LastActivity int64  `db:"last_activity"`
	JoinStamp    int64  `db:"join_stamp"`

	CapturedAt time.Time `db:"captured_at"`
}

// TeamSnapshot is the normalized result of one upstream team read
type TeamSnapshot struct {
	TeamID   int64
	TeamTag  string
	TeamName string
	Members  []PlayerSnapshot
}

// TeamResponse is the envelope returned by GET /teams/{teamID}
type TeamResponse struct {
	Status  string       `json:"status"`
	Results *TeamResults `json:"results"`
}

// TeamResults holds team metadata and the member list
type TeamResults struct {
	Info    *TeamInfoInput `json:"info"`
	Members []PlayerInput  `json:"members"`
}

// TeamInfoInput is the team metadata from the API
type TeamInfoInput struct {
	TeamID float64 `json:"teamID" validate:"gt=0,finite,integral"`
	Tag    string  `json:"tag"`
	Name   string  `json:"name"`
}

// PlayerInput is one member object from the API.
// Numbers arrive as JSON numbers of unstable type, so they are decoded as float64 and
// checked before conversion.
type PlayerInput struct {
	UserID       float64 `json:"userID" validate:"gt=0,finite,integral"`
	RacesPlayed  float64 `json:"racesPlayed" validate:"gte=0,finite,integral"`
	Played       float64 `json:"played" validate:"gte=0,finite,integral"`
	Secs         float64 `json:"secs" validate:"gte=0,finite,integral"`
	Typed        float64 `json:"typed" validate:"gte=0,finite,integral"`
	Errs         float64 `json:"errs" validate:"gte=0,finite,integral"`
	AvgSpeed     float64 `json:"avgSpeed" validate:"gte=0,finite"`
	HighestSpeed float64 `json:"highestSpeed" validate:"gte=0,finite"`

	Username     string  `json:"username" validate:"required"`
	DisplayName  string  `json:"displayName"`
	Membership   string  `json:"membership"`
	Title        string  `json:"title"`
	Role         string  `json:"role"`
	CarID        float64 `json:"carID" validate:"finite,integral"`
	CarHueAngle  float64 `json:"carHueAngle" validate:"finite,integral"`
	Status       string  `json:"status"`
	LastLogin    float64 `json:"lastLogin" validate:"finite"`
	LastActivity float64 `json:"lastActivity" validate:"finite"`
	JoinStamp    float64 `json:"joinStamp" validate:"finite"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("finite", func(fl validator.FieldLevel) bool {
		f := fl.Field().Float()
		return !math.IsNaN(f) && !math.IsInf(f, 0)
	})
	_ = v.RegisterValidation("integral", func(fl validator.FieldLevel) bool {
		f := fl.Field().Float()
		return f == math.Trunc(f) && math.Abs(f) <= math.MaxInt64/2
	})
	return v
}

// ToSnapshot converts PlayerInput (from API) to a PlayerSnapshot for one team
func (pi *PlayerInput) ToSnapshot(teamID int64, teamName string, capturedAt time.Time) PlayerSnapshot {
	return PlayerSnapshot{
		UserID:       int64(pi.UserID),
		TeamID:       teamID,
		TeamName:     teamName,
		RacesPlayed:  int64(pi.RacesPlayed),
		Played:       int64(pi.Played),
		Secs:         int64(pi.Secs),
		Typed:        int64(pi.Typed),
		Errs:         int64(pi.Errs),
		AvgSpeed:     pi.AvgSpeed,
		HighestSpeed: pi.HighestSpeed,
		Username:     pi.Username,
		DisplayName:  pi.DisplayName,
		Membership:   pi.Membership,
		Title:        pi.Title,
		Role:         pi.Role,
		CarID:        int64(pi.CarID),
		CarHueAngle:  int64(pi.CarHueAngle),
		Status:       pi.Status,
		LastLogin:    int64(pi.LastLogin),
		LastActivity: int64(pi.LastActivity),
		JoinStamp:    int64(pi.JoinStamp),
		CapturedAt:   capturedAt,
	}
}

// NormalizeTeam maps a raw team payload into a TeamSnapshot.
// Any member that fails validation rejects the whole payload so that a corrupt
// response never produces a partial team batch. Repeated userIDs keep the last entry.
func NormalizeTeam(payload []byte, capturedAt time.Time) (*TeamSnapshot, error) {
	var resp TeamResponse
	if err := json.Unmarshal(payload, &resp); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrRejectedPayload, err)
	}

	if resp.Results == nil {
		return nil, fmt.Errorf("%w: no 'results' in response", ErrRejectedPayload)
	}
	if resp.Results.Info == nil {
		return nil, fmt.Errorf("%w: no 'results.info' in response", ErrRejectedPayload)
	}
	if resp.Results.Members == nil {
		return nil, fmt.Errorf("%w: no 'results.members' in response", ErrRejectedPayload)
	}

	info := resp.Results.Info
	if err := validate.Struct(info); err != nil {
		return nil, fmt.Errorf("%w: invalid team info: %v", ErrRejectedPayload, err)
	}

	team := &TeamSnapshot{
		TeamID:   int64(info.TeamID),
		TeamTag:  info.Tag,
		TeamName: info.Name,
		Members:  make([]PlayerSnapshot, 0, len(resp.Results.Members)),
	}

	position := make(map[int64]int, len(resp.Results.Members))
	for i := range resp.Results.Members {
		member := &resp.Results.Members[i]
		if err := validate.Struct(member); err != nil {
			return nil, fmt.Errorf("%w: invalid member at index %d: %v", ErrRejectedPayload, i, err)
		}

		snapshot := member.ToSnapshot(team.TeamID, team.TeamName, capturedAt)
		if idx, dup := position[snapshot.UserID]; dup {
			team.Members[idx] = snapshot
			continue
		}
		position[snapshot.UserID] = len(team.Members)
		team.Members = append(team.Members, snapshot)
	}

	return team, nil
}
