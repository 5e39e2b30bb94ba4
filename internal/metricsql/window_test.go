package metricsql

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2024, time.March, 15, 10, 30, 0, 0, time.UTC)

func TestResolveWindow_Presets(t *testing.T) {
	tests := []struct {
		preset    WindowPreset
		wantStart *time.Time
	}{
		{WindowLast7Days, timePtr(time.Date(2024, time.March, 8, 10, 30, 0, 0, time.UTC))},
		{WindowLast30Days, timePtr(time.Date(2024, time.February, 14, 10, 30, 0, 0, time.UTC))},
		{WindowMonthToDate, timePtr(time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC))},
		{WindowYearToDate, timePtr(time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC))},
		{WindowAllTime, nil},
	}

	for _, tt := range tests {
		t.Run(string(tt.preset), func(t *testing.T) {
			start, end, err := ResolveWindow(tt.preset, testNow)
			require.NoError(t, err)
			assert.Equal(t, testNow, end)
			if tt.wantStart == nil {
				assert.Nil(t, start)
			} else {
				require.NotNil(t, start)
				assert.Equal(t, *tt.wantStart, *start)
			}
		})
	}
}

func TestResolveWindow_UnknownPreset(t *testing.T) {
	_, _, err := ResolveWindow("last_fortnight", testNow)
	assert.Error(t, err)
}

func TestNextBucketStart(t *testing.T) {
	day := time.Date(2024, time.January, 31, 0, 0, 0, 0, time.UTC)

	next, err := NextBucketStart(day, BucketHour)
	require.NoError(t, err)
	assert.Equal(t, day.Add(time.Hour), next)

	next, err = NextBucketStart(day, BucketDay)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, time.February, 1, 0, 0, 0, 0, time.UTC), next)

	next, err = NextBucketStart(day, BucketWeek)
	require.NoError(t, err)
	assert.Equal(t, day.AddDate(0, 0, 7), next)

	// Month buckets add a calendar month, not 30 days.
	next, err = NextBucketStart(time.Date(2024, time.February, 1, 0, 0, 0, 0, time.UTC), BucketMonth)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC), next)

	_, err = NextBucketStart(day, BucketNone)
	assert.Error(t, err)
}

func TestParseBucketTime(t *testing.T) {
	want := time.Date(2024, time.January, 2, 15, 0, 0, 0, time.UTC)

	got, err := ParseBucketTime("2024-01-02T15:00:00Z")
	require.NoError(t, err)
	assert.Equal(t, want, got)

	got, err = ParseBucketTime("2024-01-02 15:00:00")
	require.NoError(t, err)
	assert.Equal(t, want, got)

	got, err = ParseBucketTime("2024-01-02")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, time.January, 2, 0, 0, 0, 0, time.UTC), got)

	_, err = ParseBucketTime("yesterday")
	assert.Error(t, err)
}

func timePtr(t time.Time) *time.Time { return &t }
