package conflict

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ukydev/fleet-scheduler/internal/models"
)

func day(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := time.Parse(DateLayout, s)
	require.NoError(t, err)
	return d
}

func dayPtr(t *testing.T, s string) *time.Time {
	d := day(t, s)
	return &d
}

func period(t *testing.T, start, end string) Period {
	t.Helper()
	if end == "" {
		return Period{Start: day(t, start)}
	}
	return Period{Start: day(t, start), End: dayPtr(t, end)}
}

func TestPeriod_Overlaps(t *testing.T) {
	tests := []struct {
		name     string
		existing Period
		cand     Period
		expected bool
	}{
		{"candidate overlaps tail", period(t, "2024-01-01", "2024-01-10"), period(t, "2024-01-05", "2024-01-20"), true},
		{"adjacent next day does not overlap", period(t, "2024-01-01", "2024-01-10"), period(t, "2024-01-11", "2024-01-15"), false},
		{"same last day overlaps", period(t, "2024-01-01", "2024-01-10"), period(t, "2024-01-10", "2024-01-15"), true},
		{"candidate contains existing", period(t, "2024-01-05", "2024-01-06"), period(t, "2024-01-01", "2024-01-31"), true},
		{"candidate entirely before", period(t, "2024-01-10", "2024-01-20"), period(t, "2024-01-01", "2024-01-09"), false},
		{"open record, candidate ends before it starts", period(t, "2024-02-01", ""), period(t, "2024-01-01", "2024-01-31"), false},
		{"open record, candidate after start", period(t, "2024-02-01", ""), period(t, "2024-02-15", "2024-03-01"), true},
		{"open record, candidate ends on its start", period(t, "2024-02-01", ""), period(t, "2024-01-15", "2024-02-01"), true},
		{"open candidate after closed record", period(t, "2024-01-01", "2024-01-10"), period(t, "2024-01-11", ""), false},
		{"open candidate before closed record ends", period(t, "2024-01-01", "2024-01-10"), period(t, "2023-12-01", ""), true},
		{"both open", period(t, "2024-05-01", ""), period(t, "2030-01-01", ""), true},
		{"single day ranges on same day", period(t, "2024-01-01", "2024-01-01"), period(t, "2024-01-01", "2024-01-01"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.existing.Overlaps(tt.cand))
			assert.Equal(t, tt.expected, Overlaps(tt.cand, tt.existing), "overlap must be symmetric")
		})
	}
}

func TestNewPeriod(t *testing.T) {
	start := time.Date(2024, 1, 5, 17, 30, 0, 0, time.UTC)
	end := time.Date(2024, 1, 5, 8, 0, 0, 0, time.UTC)

	p, err := NewPeriod(start, &end)
	require.NoError(t, err, "same calendar day is a valid one-day range")
	assert.Equal(t, day(t, "2024-01-05"), p.Start)
	assert.Equal(t, day(t, "2024-01-05"), *p.End)

	before := day(t, "2024-01-04")
	_, err = NewPeriod(start, &before)
	assert.ErrorIs(t, err, ErrEndBeforeStart)

	p, err = NewPeriod(start, nil)
	require.NoError(t, err)
	assert.True(t, p.OpenEnded())
}

func TestDay_NormalisesToUTC(t *testing.T) {
	loc := time.FixedZone("UTC+10", 10*60*60)
	local := time.Date(2024, 3, 1, 5, 0, 0, 0, loc) // 2024-02-29 19:00 UTC
	assert.Equal(t, day(t, "2024-02-29"), Day(local))
	assert.Nil(t, DayPtr(nil))
}

func TestPeriod_String(t *testing.T) {
	assert.Equal(t, "from 2024-01-01 to 2024-01-10", period(t, "2024-01-01", "2024-01-10").String())
	assert.Equal(t, "from 2024-02-01 (open-ended)", period(t, "2024-02-01", "").String())
}

func TestMaintenancePeriod_OpenWindowBlocksLaterStart(t *testing.T) {
	m := models.Maintenance{MaintenanceDate: day(t, "2024-03-01")}
	window := MaintenancePeriod(&m)
	assert.True(t, window.OpenEnded())
	assert.True(t, window.Overlaps(Period{Start: day(t, "2024-03-10")}))
	assert.True(t, window.Overlaps(period(t, "2024-03-10", "2024-03-12")))
	assert.False(t, window.Overlaps(period(t, "2024-02-20", "2024-02-28")))
}
