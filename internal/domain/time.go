package domain

import (
	"errors"
	"strconv"
	"strings"
	"time"
)

var instantLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseInstant accepts RFC 3339 timestamps, bare dates and unix milliseconds.
// The result is UTC and always falls within years 0000 to 9999.
func ParseInstant(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, errors.New("empty timestamp")
	}
	for _, layout := range instantLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return inRange(s, t.UTC())
		}
	}
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return inRange(s, time.UnixMilli(ms).UTC())
	}
	return time.Time{}, errors.New("invalid timestamp " + strconv.Quote(s))
}

// Stored timestamps use a four-digit year.
func inRange(raw string, t time.Time) (time.Time, error) {
	if y := t.Year(); y < 0 || y > 9999 {
		return time.Time{}, errors.New("timestamp " + strconv.Quote(raw) + " is outside years 0000-9999")
	}
	return t, nil
}
