package reconcile

import (
	"sort"
	"strings"
	"time"
)

// Schedule describes when a student has class: a weekly pattern plus explicit one-off sessions.
type Schedule struct {
	WeeklyDays   []time.Weekday `json:"weekly_days"`
	OneTimeDates []Date         `json:"one_time_dates"`
	// StartDate bounds the weekly pattern only; one-off sessions are always kept.
	StartDate *Date `json:"start_date,omitempty"`
}

var weekdayNames = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

// ParseWeekday resolves a full English weekday name, case-insensitively.
func ParseWeekday(name string) (time.Weekday, bool) {
	wd, ok := weekdayNames[strings.ToLower(strings.TrimSpace(name))]
	return wd, ok
}

// NewSchedule builds a Schedule from weekday names. Unknown names are ignored.
func NewSchedule(dayNames []string, oneTime []Date, start *Date) Schedule {
	s := Schedule{OneTimeDates: oneTime, StartDate: start}
	for _, name := range dayNames {
		if wd, ok := ParseWeekday(name); ok {
			s.WeeklyDays = append(s.WeeklyDays, wd)
		}
	}
	return s
}

// IsEmpty reports whether the schedule can never produce a class date.
func (s Schedule) IsEmpty() bool {
	return len(s.WeeklyDays) == 0 && len(s.OneTimeDates) == 0
}

// HasClassOn reports whether d is a class date.
func (s Schedule) HasClassOn(d Date) bool {
	if s.recurringOn(d) {
		return true
	}
	for _, one := range s.OneTimeDates {
		if one == d {
			return true
		}
	}
	return false
}

func (s Schedule) recurringOn(d Date) bool {
	if s.StartDate != nil && d.Before(*s.StartDate) {
		return false
	}
	wd := d.Weekday()
	for _, day := range s.WeeklyDays {
		if day == wd {
			return true
		}
	}
	return false
}

// ExpandMonth returns the sorted, de-duplicated class dates of the given month.
func ExpandMonth(s Schedule, year int, month time.Month) []Date {
	return ExpandRange(s, FirstOfMonth(year, month), LastOfMonth(year, month))
}

// ExpandRange returns the sorted, de-duplicated class dates in [from, to].
func ExpandRange(s Schedule, from, to Date) []Date {
	if s.IsEmpty() || from.After(to) {
		return []Date{}
	}

	seen := make(DateSet)
	dates := make([]Date, 0)
	add := func(d Date) {
		if seen.Has(d) {
			return
		}
		seen[d] = struct{}{}
		dates = append(dates, d)
	}

	if len(s.WeeklyDays) > 0 {
		for d := from; !d.After(to); d = d.AddDays(1) {
			if s.recurringOn(d) {
				add(d)
			}
		}
	}
	for _, one := range s.OneTimeDates {
		if one.IsZero() || one.Before(from) || one.After(to) {
			continue
		}
		add(one)
	}

	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
	return dates
}
