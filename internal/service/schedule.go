package service

import (
	"fmt"
	"strings"
	"time"

	"edu_portal_backend/internal/model"
	"edu_portal_backend/internal/util"
)

type WindowState string

const (
	StateUpcoming WindowState = "upcoming"
	StateOngoing  WindowState = "ongoing"
	StateExpired  WindowState = "expired"
	StateUnknown  WindowState = "unknown"
)

// Window is the resolved schedule of an assessment at one instant.
// Remaining is set for upcoming (until start) and ongoing (until end).
type Window struct {
	State     WindowState
	Start     time.Time
	End       time.Time
	Remaining time.Duration
}

var clockLayouts = []string{"3:04 PM", "3:04PM", "15:04"}

// ParseClock reads "10:00 AM", "1:05pm" or "13:30".
func ParseClock(s string) (hour, minute int, err error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	for _, layout := range clockLayouts {
		t, perr := time.Parse(layout, s)
		if perr == nil {
			return t.Hour(), t.Minute(), nil
		}
	}
	return 0, 0, fmt.Errorf("unrecognised time %q", s)
}

// ParseDate reads the YYYY-MM-DD assessment date.
func ParseDate(s string) (time.Time, error) {
	return time.Parse(util.DateFormat, strings.TrimSpace(s))
}

// ScheduleBounds turns the stored wall-clock strings into instants in loc.
func ScheduleBounds(a *model.Assessment, loc *time.Location) (start, end time.Time, err error) {
	if loc == nil {
		loc = time.Local
	}
	day, err := ParseDate(a.Date)
	if err != nil {
		return start, end, err
	}
	sh, sm, err := ParseClock(a.StartTime)
	if err != nil {
		return start, end, err
	}
	eh, em, err := ParseClock(a.EndTime)
	if err != nil {
		return start, end, err
	}
	start = time.Date(day.Year(), day.Month(), day.Day(), sh, sm, 0, 0, loc)
	end = time.Date(day.Year(), day.Month(), day.Day(), eh, em, 0, 0, loc)
	if !start.Before(end) {
		return start, end, fmt.Errorf("start %s is not before end %s", a.StartTime, a.EndTime)
	}
	return start, end, nil
}

// ResolveState evaluates the assessment window at now. Nothing is cached;
// unparseable or inverted schedules resolve to StateUnknown.
func ResolveState(a *model.Assessment, now time.Time, loc *time.Location) Window {
	if a == nil {
		return Window{State: StateUnknown}
	}
	start, end, err := ScheduleBounds(a, loc)
	if err != nil {
		return Window{State: StateUnknown}
	}
	w := Window{Start: start, End: end}
	switch {
	case now.Before(start):
		w.State = StateUpcoming
		w.Remaining = start.Sub(now)
	case !now.After(end):
		w.State = StateOngoing
		w.Remaining = end.Sub(now)
	default:
		w.State = StateExpired
	}
	return w
}

// HumanizeRemaining renders "1h 5m", "5m 3s" or "12s".
func HumanizeRemaining(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int64(d / time.Second)
	h := total / 3600
	m := (total % 3600) / 60
	s := total % 60
	switch {
	case h > 0:
		return fmt.Sprintf("%dh %dm", h, m)
	case m > 0:
		return fmt.Sprintf("%dm %ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}
