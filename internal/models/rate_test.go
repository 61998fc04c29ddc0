package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeRate(t *testing.T) {
	// captures (10, 500, 10, 60) then (25, 1400, 28, 180)
	span := PlayerSpan{
		UserID:         1,
		Username:       "p",
		TeamName:       "Team P",
		Captures:       2,
		MinRacesPlayed: 10, MaxRacesPlayed: 25,
		MinTyped: 500, MaxTyped: 1400,
		MinErrs: 10, MaxErrs: 28,
		MinSecs: 60, MaxSecs: 180,
	}

	rate := ComputeRate(span)

	assert.Equal(t, int64(1), rate.UserID)
	assert.Equal(t, "p", rate.Username)
	assert.Equal(t, "Team P", rate.Team)
	assert.Equal(t, int64(15), rate.RacesPlayed)
	require.NotNil(t, rate.AvgWPM)
	assert.InDelta(t, 90.0, *rate.AvgWPM, 1e-9)
	require.NotNil(t, rate.Accuracy)
	assert.InDelta(t, 98.0, *rate.Accuracy, 1e-9)
}

func TestComputeRate_SingleCapture(t *testing.T) {
	span := PlayerSpan{
		UserID:         2,
		Username:       "once",
		TeamName:       "Team",
		Captures:       1,
		MinRacesPlayed: 40, MaxRacesPlayed: 40,
		MinTyped: 900, MaxTyped: 900,
		MinErrs: 4, MaxErrs: 4,
		MinSecs: 100, MaxSecs: 100,
	}

	rate := ComputeRate(span)

	assert.Equal(t, int64(0), rate.RacesPlayed)
	assert.Nil(t, rate.AvgWPM)
	assert.Nil(t, rate.Accuracy)

	body, err := json.Marshal(rate)
	require.NoError(t, err)
	assert.JSONEq(t, `{"userID":2,"username":"once","team":"Team","racesPlayed":0,"avgWPM":null,"accuracy":null}`, string(body))
}

func TestComputeRate_TimeWithoutTyping(t *testing.T) {
	span := PlayerSpan{
		MinTyped: 100, MaxTyped: 100,
		MinSecs: 10, MaxSecs: 70,
	}

	rate := ComputeRate(span)

	require.NotNil(t, rate.AvgWPM)
	assert.Equal(t, 0.0, *rate.AvgWPM)
	assert.Nil(t, rate.Accuracy)
}

func TestComputeRate_TypingWithoutTime(t *testing.T) {
	span := PlayerSpan{
		MinTyped: 100, MaxTyped: 600,
		MinErrs: 0, MaxErrs: 50,
		MinSecs: 30, MaxSecs: 30,
	}

	rate := ComputeRate(span)

	assert.Nil(t, rate.AvgWPM)
	require.NotNil(t, rate.Accuracy)
	assert.InDelta(t, 90.0, *rate.Accuracy, 1e-9)
}
