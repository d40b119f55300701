package service

import (
	"testing"
	"time"

	"edu_portal_backend/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scheduled(date, start, end string) *model.Assessment {
	return &model.Assessment{Date: date, StartTime: start, EndTime: end, TotalMarks: 10}
}

func at(hour, minute int) time.Time {
	return time.Date(2024, 6, 1, hour, minute, 0, 0, time.UTC)
}

func TestResolveStateOngoingTwelveHour(t *testing.T) {
	a := scheduled("2024-06-01", "10:00 AM", "11:00 AM")

	w := ResolveState(a, at(10, 30), time.UTC)

	assert.Equal(t, StateOngoing, w.State)
	assert.Equal(t, 30*time.Minute, w.Remaining)
	assert.Equal(t, at(10, 0), w.Start)
	assert.Equal(t, at(11, 0), w.End)
}

func TestResolveStateTransitions(t *testing.T) {
	a := scheduled("2024-06-01", "13:00", "14:30")

	tests := []struct {
		name      string
		now       time.Time
		state     WindowState
		remaining time.Duration
	}{
		{"before start", at(12, 15), StateUpcoming, 45 * time.Minute},
		{"at start", at(13, 0), StateOngoing, 90 * time.Minute},
		{"at end", at(14, 30), StateOngoing, 0},
		{"after end", at(14, 31), StateExpired, 0},
		{"next day", at(14, 30).Add(24 * time.Hour), StateExpired, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := ResolveState(a, tt.now, time.UTC)
			assert.Equal(t, tt.state, w.State)
			assert.Equal(t, tt.remaining, w.Remaining)
		})
	}
}

func TestResolveStateUnknown(t *testing.T) {
	tests := []struct {
		name string
		a    *model.Assessment
	}{
		{"nil", nil},
		{"bad date", scheduled("01/06/2024", "10:00 AM", "11:00 AM")},
		{"bad start", scheduled("2024-06-01", "ten", "11:00 AM")},
		{"bad end", scheduled("2024-06-01", "10:00 AM", "25:00")},
		{"empty", scheduled("", "", "")},
		{"end before start", scheduled("2024-06-01", "2:00 PM", "1:00 PM")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := ResolveState(tt.a, at(10, 30), time.UTC)
			assert.Equal(t, StateUnknown, w.State)
			assert.Zero(t, w.Remaining)
		})
	}
}

func TestResolveStateUsesLocation(t *testing.T) {
	loc := time.FixedZone("UTC+3", 3*3600)
	a := scheduled("2024-06-01", "10:00 AM", "11:00 AM")

	// 07:30 UTC is 10:30 in UTC+3
	w := ResolveState(a, at(7, 30), loc)
	assert.Equal(t, StateOngoing, w.State)
	assert.Equal(t, 30*time.Minute, w.Remaining)

	w = ResolveState(a, at(10, 30), loc)
	assert.Equal(t, StateExpired, w.State)
}

func TestResolveStateExactlyOneState(t *testing.T) {
	a := scheduled("2024-06-01", "9:15 am", "9:45 PM")
	for m := 0; m < 24*60; m += 7 {
		w := ResolveState(a, at(0, 0).Add(time.Duration(m)*time.Minute), time.UTC)
		assert.Contains(t, []WindowState{StateUpcoming, StateOngoing, StateExpired}, w.State)
	}
}

func TestParseClock(t *testing.T) {
	tests := []struct {
		in           string
		hour, minute int
	}{
		{"10:00 AM", 10, 0},
		{"1:05 pm", 13, 5},
		{"12:00 AM", 0, 0},
		{"12:30 PM", 12, 30},
		{"07:45PM", 19, 45},
		{"13:30", 13, 30},
		{"9:05", 9, 5},
		{" 00:00 ", 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			h, m, err := ParseClock(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.hour, h)
			assert.Equal(t, tt.minute, m)
		})
	}

	for _, bad := range []string{"", "noon", "25:00", "13:00 PM", "10:60"} {
		_, _, err := ParseClock(bad)
		assert.Error(t, err, bad)
	}
}

func TestHumanizeRemaining(t *testing.T) {
	assert.Equal(t, "1h 5m", HumanizeRemaining(time.Hour+5*time.Minute+30*time.Second))
	assert.Equal(t, "5m 3s", HumanizeRemaining(5*time.Minute+3*time.Second))
	assert.Equal(t, "12s", HumanizeRemaining(12*time.Second))
	assert.Equal(t, "0s", HumanizeRemaining(-time.Minute))
	assert.Equal(t, "26h 0m", HumanizeRemaining(26*time.Hour))
}
