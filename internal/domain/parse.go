package domain

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var (
	ErrEmptyName    = errors.New("empty name")
	ErrNameTokens   = errors.New("expected first and last name")
	ErrInvalidClock = errors.New("invalid clock")
	ErrUnknownDay   = errors.New("unknown weekday")
)

// ParseFullName splits "First Last" into its two tokens.
// Anything other than exactly two whitespace-separated tokens is rejected.
func ParseFullName(s string) (first, last string, err error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", "", &ValidationError{Field: "name", Reason: ErrEmptyName.Error()}
	}
	parts := strings.Fields(s)
	if len(parts) != 2 {
		return "", "", &ValidationError{Field: "name", Reason: ErrNameTokens.Error()}
	}
	return parts[0], parts[1], nil
}

// ParseClock parses "HH:MM" (or "H:MM") into hour and minute.
func ParseClock(s string) (h, m int, err error) {
	s = strings.TrimSpace(s)
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("%w: expected HH:MM, got %q", ErrInvalidClock, s)
	}
	h, err = strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, 0, fmt.Errorf("%w: hour %q", ErrInvalidClock, parts[0])
	}
	if len(parts[1]) != 2 {
		return 0, 0, fmt.Errorf("%w: minute %q", ErrInvalidClock, parts[1])
	}
	m, err = strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, 0, fmt.Errorf("%w: minute %q", ErrInvalidClock, parts[1])
	}
	return h, m, nil
}

// FormatSlot renders a slot label the way bookings store it: "9:00", "13:30".
func FormatSlot(h, m int) string {
	return fmt.Sprintf("%d:%02d", h, m)
}

// ParseWeekday accepts English weekday names in any case ("Monday", "mon").
func ParseWeekday(s string) (time.Weekday, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if len(s) >= 3 {
		for wd := time.Sunday; wd <= time.Saturday; wd++ {
			name := strings.ToLower(wd.String())
			if s == name || s == name[:3] {
				return wd, nil
			}
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownDay, s)
}

// DayLabel is the stored label of a weekday, e.g. "monday".
func DayLabel(wd time.Weekday) string {
	return strings.ToLower(wd.String())
}

// DateKey formats the calendar date of t (in t's location) as YYYY-MM-DD.
func DateKey(t time.Time) string {
	return t.Format(time.DateOnly)
}
