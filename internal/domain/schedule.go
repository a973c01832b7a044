package domain

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

// WorkWeekLen is the number of working weekdays a window must list.
const WorkWeekLen = 5

// ScheduleWindow is the immutable work-week configuration the slot grid is built from.
type ScheduleWindow struct {
	Days      []time.Weekday // ordered working weekdays
	Hours     []int          // work hours, 0..23
	Minutes   []int          // work minutes, 0..59
	Excluded  map[string]struct{}
	Providers []Provider
}

// NewScheduleWindow validates its inputs and returns a window with sorted hours/minutes.
// Excluded entries are "H:MM"/"HH:MM" labels; unknown ones are rejected.
func NewScheduleWindow(days []time.Weekday, hours, minutes []int, excluded []string, providers []Provider) (ScheduleWindow, error) {
	if len(days) != WorkWeekLen {
		return ScheduleWindow{}, fmt.Errorf("expected %d working days, got %d", WorkWeekLen, len(days))
	}
	seen := make(map[time.Weekday]bool, len(days))
	for _, d := range days {
		if d == time.Saturday || d == time.Sunday {
			return ScheduleWindow{}, fmt.Errorf("%s cannot be a working day", d)
		}
		if seen[d] {
			return ScheduleWindow{}, fmt.Errorf("duplicate working day %s", d)
		}
		seen[d] = true
	}
	if len(hours) == 0 || len(minutes) == 0 {
		return ScheduleWindow{}, errors.New("work hours and minutes must not be empty")
	}
	hs := uniqueSorted(hours)
	ms := uniqueSorted(minutes)
	if hs[0] < 0 || hs[len(hs)-1] > 23 {
		return ScheduleWindow{}, fmt.Errorf("work hour out of range: %v", hours)
	}
	if ms[0] < 0 || ms[len(ms)-1] > 59 {
		return ScheduleWindow{}, fmt.Errorf("work minute out of range: %v", minutes)
	}
	if len(providers) == 0 {
		return ScheduleWindow{}, errors.New("at least one provider is required")
	}

	ex := make(map[string]struct{}, len(excluded))
	for _, e := range excluded {
		h, m, err := ParseClock(e)
		if err != nil {
			return ScheduleWindow{}, fmt.Errorf("excluded slot: %w", err)
		}
		ex[FormatSlot(h, m)] = struct{}{}
	}

	return ScheduleWindow{
		Days:      append([]time.Weekday(nil), days...),
		Hours:     hs,
		Minutes:   ms,
		Excluded:  ex,
		Providers: append([]Provider(nil), providers...),
	}, nil
}

// Slots returns the ordered slot labels of a working day: hours x minutes,
// ascending, with excluded sub-slots removed.
func (w ScheduleWindow) Slots() []string {
	out := make([]string, 0, len(w.Hours)*len(w.Minutes))
	for _, h := range w.Hours {
		for _, m := range w.Minutes {
			label := FormatSlot(h, m)
			if _, skip := w.Excluded[label]; skip {
				continue
			}
			out = append(out, label)
		}
	}
	return out
}

// HourlySlots is the coarse grid used when occupancy cannot be read.
// Excluded labels are left out, like in Slots.
func (w ScheduleWindow) HourlySlots() []string {
	out := make([]string, 0, len(w.Hours))
	for _, h := range w.Hours {
		label := FormatSlot(h, 0)
		if _, skip := w.Excluded[label]; skip {
			continue
		}
		out = append(out, label)
	}
	return out
}

// HasSlot reports whether label is part of the full grid.
func (w ScheduleWindow) HasSlot(label string) bool {
	for _, s := range w.Slots() {
		if s == label {
			return true
		}
	}
	return false
}

// DayByLabel resolves a stored day label to a working weekday.
func (w ScheduleWindow) DayByLabel(label string) (time.Weekday, bool) {
	for _, d := range w.Days {
		if DayLabel(d) == label {
			return d, true
		}
	}
	return 0, false
}

// HasProvider reports whether p is in the provider enumeration.
func (w ScheduleWindow) HasProvider(p Provider) bool {
	for _, q := range w.Providers {
		if q == p {
			return true
		}
	}
	return false
}

// DayAvailable applies the booking-week rule at instant now:
// on Saturday and Sunday the whole next week is open; on a working day,
// days at or after today's position in Days stay bookable while earlier
// ones are closed. Days outside the window are never available.
func (w ScheduleWindow) DayAvailable(day time.Weekday, now time.Time) bool {
	idx := w.dayIndex(day)
	if idx < 0 {
		return false
	}
	today := w.dayIndex(now.Weekday())
	if today < 0 {
		// weekend: the next week is open
		return true
	}
	return idx >= today
}

// dayIndex is the position of wd in the working-week ordering, or -1.
func (w ScheduleWindow) dayIndex(wd time.Weekday) int {
	for i, d := range w.Days {
		if d == wd {
			return i
		}
	}
	return -1
}

func uniqueSorted(in []int) []int {
	set := make(map[int]struct{}, len(in))
	out := make([]int, 0, len(in))
	for _, v := range in {
		if _, ok := set[v]; ok {
			continue
		}
		set[v] = struct{}{}
		out = append(out, v)
	}
	sort.Ints(out)
	return out
}
