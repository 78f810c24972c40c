package ingest

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"
)

// Session is one weekly slot of a student or group timetable.
type Session struct {
	Day  time.Weekday `json:"day"`
	Time string       `json:"time"`
}

var dayAliases = map[string]time.Weekday{
	"sun": time.Sunday, "sunday": time.Sunday,
	"mon": time.Monday, "monday": time.Monday,
	"tue": time.Tuesday, "tues": time.Tuesday, "tuesday": time.Tuesday,
	"wed": time.Wednesday, "weds": time.Wednesday, "wednesday": time.Wednesday,
	"thu": time.Thursday, "thur": time.Thursday, "thurs": time.Thursday, "thursday": time.Thursday,
	"fri": time.Friday, "friday": time.Friday,
	"sat": time.Saturday, "saturday": time.Saturday,
}

// NormalizeDay resolves full or abbreviated English weekday names.
func NormalizeDay(raw string) (time.Weekday, bool) {
	wd, ok := dayAliases[strings.ToLower(strings.TrimSpace(raw))]
	return wd, ok
}

var sessionPattern = regexp.MustCompile(`^([A-Za-z/]+)\s+(.+)$`)

// ParseSessions accepts the shapes stored in the schedule column:
// "Mon/Wed 7:00 PM, Fri 5 PM", a JSON array string of such entries,
// []string or []any. Unknown days are dropped.
func ParseSessions(raw any) []Session {
	switch v := raw.(type) {
	case nil:
		return []Session{}
	case []string:
		out := []Session{}
		for _, item := range v {
			out = append(out, ParseSessions(item)...)
		}
		return out
	case []any:
		out := []Session{}
		for _, item := range v {
			out = append(out, ParseSessions(item)...)
		}
		return out
	case []byte:
		return ParseSessions(string(v))
	case string:
		return parseSessionString(v)
	default:
		return ParseSessions(fmt.Sprint(v))
	}
}

func parseSessionString(raw string) []Session {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return []Session{}
	}
	if strings.HasPrefix(trimmed, "[") {
		var items []any
		if err := json.Unmarshal([]byte(trimmed), &items); err == nil {
			return ParseSessions(items)
		}
	}

	sessions := []Session{}
	for _, part := range strings.Split(trimmed, ",") {
		m := sessionPattern.FindStringSubmatch(strings.TrimSpace(part))
		if m == nil {
			continue
		}
		for _, day := range strings.Split(m[1], "/") {
			if wd, ok := NormalizeDay(day); ok {
				sessions = append(sessions, Session{Day: wd, Time: strings.TrimSpace(m[2])})
			}
		}
	}
	return sessions
}

// WeeklyDays returns the distinct weekdays of the sessions, Sunday first.
func WeeklyDays(sessions []Session) []time.Weekday {
	seen := make(map[time.Weekday]struct{}, len(sessions))
	days := make([]time.Weekday, 0, len(sessions))
	for _, s := range sessions {
		if _, ok := seen[s.Day]; ok {
			continue
		}
		seen[s.Day] = struct{}{}
		days = append(days, s.Day)
	}
	sort.Slice(days, func(i, j int) bool { return days[i] < days[j] })
	return days
}

// ParseGroupSchedule reads the group timetable object {"Monday": ["17:00"], "Tuesday": []}
// and returns the weekdays that have at least one time slot.
func ParseGroupSchedule(raw []byte) ([]time.Weekday, error) {
	if len(strings.TrimSpace(string(raw))) == 0 {
		return []time.Weekday{}, nil
	}
	var byDay map[string][]string
	if err := json.Unmarshal(raw, &byDay); err != nil {
		return nil, fmt.Errorf("decode group schedule: %w", err)
	}
	sessions := make([]Session, 0, len(byDay))
	for day, times := range byDay {
		wd, ok := NormalizeDay(day)
		if !ok || len(times) == 0 {
			continue
		}
		sessions = append(sessions, Session{Day: wd, Time: times[0]})
	}
	return WeeklyDays(sessions), nil
}

var (
	minutesZero = regexp.MustCompile(`:00\b`)
	spacing     = regexp.MustCompile(`\s+`)
)

// FormatSessions renders sessions for display: "Mon 7 PM, Wed 7 PM". It returns "-" when empty.
func FormatSessions(sessions []Session) string {
	if len(sessions) == 0 {
		return "-"
	}
	parts := make([]string, len(sessions))
	for i, s := range sessions {
		t := spacing.ReplaceAllString(minutesZero.ReplaceAllString(s.Time, ""), " ")
		parts[i] = fmt.Sprintf("%s %s", s.Day.String()[:3], strings.TrimSpace(t))
	}
	return strings.Join(parts, ", ")
}
