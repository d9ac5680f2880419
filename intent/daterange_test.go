package intent

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustLoad(t *testing.T, name string) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation(name)
	require.NoError(t, err)
	return loc
}

func TestFindPhrasePriority(t *testing.T) {
	cases := []struct {
		text string
		want Phrase
		ok   bool
	}{
		{"what did I do today", PhraseToday, true},
		{"Yesterday and today", PhraseToday, true},
		{"last week or this month?", PhraseThisMonth, true},
		{"LAST MONTH", PhraseLastMonth, true},
		{"entries from last week", PhraseLastWeek, true},
		{"this week and last week", PhraseThisWeek, true},
		{"whenever", "", false},
	}
	for _, tc := range cases {
		got, ok := FindPhrase(tc.text)
		assert.Equal(t, tc.ok, ok, tc.text)
		assert.Equal(t, tc.want, got, tc.text)
	}
}

func TestResolveYesterdayIsOneLocalDay(t *testing.T) {
	loc := mustLoad(t, "Europe/London")
	base := time.Date(2025, 5, 14, 0, 0, 0, 0, loc)

	for minutes := 0; minutes < 24*60; minutes += 37 {
		now := base.Add(time.Duration(minutes) * time.Minute)
		r, err := Resolve(PhraseYesterday, now, loc)
		require.NoError(t, err)
		assert.Equal(t, time.Date(2025, 5, 13, 0, 0, 0, 0, loc), r.From, now)
		assert.Equal(t, 24*time.Hour-time.Millisecond, r.To.Sub(r.From), now)
		assert.Equal(t, 999*time.Millisecond, time.Duration(r.To.Nanosecond()))
	}
}

func TestResolveYesterdayAcrossMonthStart(t *testing.T) {
	r, err := Resolve(PhraseYesterday, time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC), time.UTC)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC), r.From)
}

func TestResolveToday(t *testing.T) {
	loc := mustLoad(t, "Europe/London")
	// 23:30 UTC on 30 June is already 1 July in London.
	r, err := Resolve(PhraseToday, time.Date(2025, 6, 30, 23, 30, 0, 0, time.UTC), loc)
	require.NoError(t, err)
	from, to := r.Format()
	assert.Equal(t, "2025-06-30T23:00:00.000Z", from)
	assert.Equal(t, "2025-07-01T22:59:59.999Z", to)
}

func TestResolveMonths(t *testing.T) {
	cases := []struct {
		phrase   Phrase
		now      time.Time
		from, to string
	}{
		{PhraseThisMonth, time.Date(2024, 2, 10, 12, 0, 0, 0, time.UTC), "2024-02-01T00:00:00.000Z", "2024-02-29T23:59:59.999Z"},
		{PhraseThisMonth, time.Date(2025, 2, 28, 23, 0, 0, 0, time.UTC), "2025-02-01T00:00:00.000Z", "2025-02-28T23:59:59.999Z"},
		{PhraseLastMonth, time.Date(2024, 3, 31, 9, 0, 0, 0, time.UTC), "2024-02-01T00:00:00.000Z", "2024-02-29T23:59:59.999Z"},
		{PhraseLastMonth, time.Date(2025, 1, 10, 9, 0, 0, 0, time.UTC), "2024-12-01T00:00:00.000Z", "2024-12-31T23:59:59.999Z"},
		{PhraseLastMonth, time.Date(2025, 5, 31, 9, 0, 0, 0, time.UTC), "2025-04-01T00:00:00.000Z", "2025-04-30T23:59:59.999Z"},
	}
	for _, tc := range cases {
		r, err := Resolve(tc.phrase, tc.now, time.UTC)
		require.NoError(t, err)
		from, to := r.Format()
		assert.Equal(t, tc.from, from, "%s at %s", tc.phrase, tc.now)
		assert.Equal(t, tc.to, to, "%s at %s", tc.phrase, tc.now)
	}
}

func TestResolveWeeksStartOnMonday(t *testing.T) {
	cases := []struct {
		phrase   Phrase
		now      time.Time
		from, to string
	}{
		// Wednesday
		{PhraseThisWeek, time.Date(2025, 3, 12, 10, 0, 0, 0, time.UTC), "2025-03-10T00:00:00.000Z", "2025-03-16T23:59:59.999Z"},
		{PhraseLastWeek, time.Date(2025, 3, 12, 10, 0, 0, 0, time.UTC), "2025-03-03T00:00:00.000Z", "2025-03-09T23:59:59.999Z"},
		// Sunday belongs to the week that started six days earlier.
		{PhraseThisWeek, time.Date(2025, 3, 16, 22, 0, 0, 0, time.UTC), "2025-03-10T00:00:00.000Z", "2025-03-16T23:59:59.999Z"},
		// Monday
		{PhraseThisWeek, time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC), "2025-03-10T00:00:00.000Z", "2025-03-16T23:59:59.999Z"},
		// Across a year boundary.
		{PhraseLastWeek, time.Date(2025, 1, 2, 12, 0, 0, 0, time.UTC), "2024-12-23T00:00:00.000Z", "2024-12-29T23:59:59.999Z"},
	}
	for _, tc := range cases {
		r, err := Resolve(tc.phrase, tc.now, time.UTC)
		require.NoError(t, err)
		from, to := r.Format()
		assert.Equal(t, tc.from, from, "%s at %s", tc.phrase, tc.now)
		assert.Equal(t, tc.to, to, "%s at %s", tc.phrase, tc.now)
	}
}

func TestResolveUnknownPhrase(t *testing.T) {
	_, err := Resolve("next fortnight", time.Now(), time.UTC)
	assert.Error(t, err)
}
