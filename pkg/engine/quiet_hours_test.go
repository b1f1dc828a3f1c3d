package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func at(hour, minute int) time.Time {
	return time.Date(2026, 3, 10, hour, minute, 0, 0, time.UTC)
}

func TestQuietHoursContains(t *testing.T) {
	tests := []struct {
		name       string
		start, end string
		t          time.Time
		want       bool
	}{
		{"wrapping late evening", "22:00", "06:00", at(23, 30), true},
		{"wrapping early morning", "22:00", "06:00", at(2, 0), true},
		{"wrapping midday", "22:00", "06:00", at(12, 0), false},
		{"wrapping start inclusive", "22:00", "06:00", at(22, 0), true},
		{"wrapping end exclusive", "22:00", "06:00", at(6, 0), false},
		{"daytime inside", "09:00", "17:00", at(10, 0), true},
		{"daytime outside", "09:00", "17:00", at(20, 0), false},
		{"daytime last minute", "09:00", "17:00", at(16, 59), true},
		{"empty window", "08:00", "08:00", at(8, 0), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, err := ParseQuietHours(tt.start, tt.end)
			require.NoError(t, err)
			assert.Equal(t, tt.want, q.Contains(tt.t))
		})
	}
}

func TestQuietHoursDeferUntil(t *testing.T) {
	q, err := ParseQuietHours("22:00", "06:00")
	require.NoError(t, err)

	assert.Equal(t, at(6, 1), q.DeferUntil(at(2, 0)))
	assert.Equal(t, at(6, 1).AddDate(0, 0, 1), q.DeferUntil(at(23, 30)))

	q, err = ParseQuietHours("09:00", "17:30")
	require.NoError(t, err)
	assert.Equal(t, at(17, 31), q.DeferUntil(at(10, 0)))
}

func TestParseClock(t *testing.T) {
	m, err := ParseClock("07:45")
	require.NoError(t, err)
	assert.Equal(t, 7*60+45, m)

	for _, bad := range []string{"", "25:00", "7pm", "12:60"} {
		_, err := ParseClock(bad)
		assert.Error(t, err, bad)
	}

	_, err = ParseQuietHours("22:00", "bogus")
	assert.Error(t, err)
}
