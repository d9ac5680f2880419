package actions

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDate(t *testing.T) {
	loc := london(t)
	cases := []struct{ in, want string }{
		{"2026-03-01", "2026-03-01"},
		{"2026", "2026-12-31"},
		{"2024-02", "2024-02-29"},
		{"2025-06-30T23:30:00Z", "2025-07-01"},
		{"2025-01-15T08:00", "2025-01-15"},
		{"2025-01-15T08:00:00.000Z", "2025-01-15"},
	}
	for _, tc := range cases {
		got, err := ParseDate(tc.in, loc)
		require.NoError(t, err, tc.in)
		require.NotNil(t, got, tc.in)
		assert.Equal(t, tc.want, got.Format("2006-01-02"), tc.in)
	}

	got, err := ParseDate("  ", loc)
	assert.NoError(t, err)
	assert.Nil(t, got)

	_, err = ParseDate("next spring", loc)
	assert.Error(t, err)
}

func TestParseInstant(t *testing.T) {
	loc := london(t)

	start, err := ParseInstant("2025-07-01", loc, false)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 6, 30, 23, 0, 0, 0, time.UTC), start.UTC())

	end, err := ParseInstant("2025-07-01", loc, true)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 7, 1, 22, 59, 59, int(999*time.Millisecond), time.UTC), end.UTC())

	local, err := ParseInstant("2025-01-10T18:00", loc, false)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 1, 10, 18, 0, 0, 0, time.UTC), local.UTC())

	utc, err := ParseInstant("2025-01-10T18:00:00+01:00", loc, false)
	require.NoError(t, err)
	assert.Equal(t, 17, utc.UTC().Hour())
}
