package ingest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSessionsShapes(t *testing.T) {
	want := []Session{
		{Day: time.Monday, Time: "7:00 PM"},
		{Day: time.Wednesday, Time: "7:00 PM"},
		{Day: time.Friday, Time: "5 PM"},
	}

	assert.Equal(t, want, ParseSessions("Mon/Wed 7:00 PM, Fri 5 PM"))
	assert.Equal(t, want, ParseSessions(`["Mon/Wed 7:00 PM", "Fri 5 PM"]`))
	assert.Equal(t, want, ParseSessions([]string{"Mon/Wed 7:00 PM", "Fri 5 PM"}))
	assert.Equal(t, want, ParseSessions([]any{"Mon/Wed 7:00 PM", "Fri 5 PM"}))
}

func TestParseSessionsDropsUnknown(t *testing.T) {
	got := ParseSessions("Funday 5 PM, Thurs 6 PM, nonsense")
	assert.Equal(t, []Session{{Day: time.Thursday, Time: "6 PM"}}, got)
	assert.Empty(t, ParseSessions(nil))
	assert.Empty(t, ParseSessions("   "))
}

func TestWeeklyDays(t *testing.T) {
	got := WeeklyDays(ParseSessions("Wed 5 PM, Mon 5 PM, Wednesday 7 PM"))
	assert.Equal(t, []time.Weekday{time.Monday, time.Wednesday}, got)
}

func TestParseGroupSchedule(t *testing.T) {
	got, err := ParseGroupSchedule([]byte(`{"Sunday":[],"Monday":["17:00:00"],"Friday":["18:00"],"Someday":["1"]}`))
	require.NoError(t, err)
	assert.Equal(t, []time.Weekday{time.Monday, time.Friday}, got)

	empty, err := ParseGroupSchedule(nil)
	require.NoError(t, err)
	assert.Empty(t, empty)

	_, err = ParseGroupSchedule([]byte(`not json`))
	assert.Error(t, err)
}

func TestFormatSessions(t *testing.T) {
	assert.Equal(t, "Mon 7 PM, Wed 7:30 PM", FormatSessions(ParseSessions("Mon 7:00 PM, Wed 7:30 PM")))
	assert.Equal(t, "-", FormatSessions(nil))
}

func TestNormalizeDay(t *testing.T) {
	for raw, want := range map[string]time.Weekday{"mon": time.Monday, "Tues": time.Tuesday, "THURS": time.Thursday, " saturday ": time.Saturday} {
		got, ok := NormalizeDay(raw)
		require.True(t, ok, raw)
		assert.Equal(t, want, got)
	}
	_, ok := NormalizeDay("moon")
	assert.False(t, ok)
}

func TestCanonicalizeGroupCode(t *testing.T) {
	assert.Equal(t, "A", CanonicalizeGroupCode("group a"))
	assert.Equal(t, "B2", CanonicalizeGroupCode(" b-2 "))
	assert.Equal(t, "C", CanonicalizeGroupCode("Group   C"))
	assert.Equal(t, "", CanonicalizeGroupCode("  "))
}

func TestParseAliases(t *testing.T) {
	assert.Equal(t, []string{"Bobby", "Rob"}, ParseAliases(`["Bobby", " Rob "]`))
	assert.Equal(t, []string{"Bobby", "Rob"}, ParseAliases("Bobby, Rob,"))
	assert.Equal(t, []string{"Bobby"}, ParseAliases([]any{"Bobby", 3}))
	assert.Equal(t, []string{"[broken"}, ParseAliases("[broken"))
	assert.Empty(t, ParseAliases(nil))
}

func TestNormalizePayerName(t *testing.T) {
	assert.Equal(t, "anahit", NormalizePayerName("ANAHIT, Consulting LLC."))
	assert.Equal(t, "smith", NormalizePayerName("J. Smith & Co"))
	assert.Equal(t, "", NormalizePayerName(""))
}

func TestNamesMatch(t *testing.T) {
	assert.True(t, NamesMatch("Anahit Management Inc", "Anahit Petrosyan"))
	assert.True(t, NamesMatch("Alexandra K", "Alex"))
	assert.False(t, NamesMatch("Mariam", "Narek"))
	assert.False(t, NamesMatch("", ""))
}
