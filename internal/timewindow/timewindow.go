// Package timewindow implements the working-hours gate: enabled ∧ day ∈
// days ∧ start_time ≤ t ≤ end_time, evaluated in UTC.
package timewindow

import (
	"strings"
	"time"
)

var dayNames = [...]string{"mon", "tue", "wed", "thu", "fri", "sat", "sun"}

// Gate is the subset of a chat's pinger config the working-hours check
// needs.
type Gate struct {
	Enabled   bool
	StartTime string // "HH:MM:SS"; the time-of-day check applies only when both bounds are set
	EndTime   string // "HH:MM:SS"; if either bound is empty, any time of day passes
	Days      []string
}

// ShouldProcessByTime gates an inbound event on the working-hours window:
// messageDate is the event's ISO-8601 timestamp (space or "T" separator,
// UTC).
func ShouldProcessByTime(messageDate string, gate Gate) (bool, error) {
	if !gate.Enabled {
		return false, nil
	}

	msgTime, err := parseISO(messageDate)
	if err != nil {
		return false, err
	}
	return ShouldProcessByTimeAt(msgTime, gate), nil
}

// ShouldProcessByTimeAt is the ShouldProcessByTime check against an
// already-parsed instant, used by the escalation monitor which gates on the
// wall clock rather than an incoming event's timestamp.
func ShouldProcessByTimeAt(at time.Time, gate Gate) bool {
	if !gate.Enabled {
		return false
	}
	msgTime := at.UTC()

	if gate.StartTime != "" && gate.EndTime != "" {
		start, errStart := parseClock(gate.StartTime)
		end, errEnd := parseClock(gate.EndTime)
		if errStart != nil || errEnd != nil {
			return false
		}
		clock := msgTime.Hour()*3600 + msgTime.Minute()*60 + msgTime.Second()
		if clock < start || clock > end {
			return false
		}
	}

	if len(gate.Days) > 0 {
		today := dayNames[int(msgTime.Weekday()+6)%7] // time.Sunday==0 -> "sun"
		found := false
		for _, d := range gate.Days {
			if strings.EqualFold(d, today) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	return true
}

// parseISO replaces a space separator with "T" before parsing, so both
// "2025-01-17 10:00:00" and "2025-01-17T10:00:00" are accepted.
func parseISO(s string) (time.Time, error) {
	normalized := strings.Replace(s, " ", "T", 1)
	layouts := []string{
		"2006-01-02T15:04:05.000000",
		"2006-01-02T15:04:05.000000Z07:00",
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02T15:04:05",
	}
	var lastErr error
	for _, layout := range layouts {
		if t, err := time.Parse(layout, normalized); err == nil {
			return t, nil
		} else {
			lastErr = err
		}
	}
	return time.Time{}, lastErr
}

func parseClock(s string) (int, error) {
	t, err := time.Parse("15:04:05", s)
	if err != nil {
		if t, err = time.Parse("15:04", s); err != nil {
			return 0, err
		}
	}
	return t.Hour()*3600 + t.Minute()*60 + t.Second(), nil
}
