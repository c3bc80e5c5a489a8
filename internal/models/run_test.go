package models

import (
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPeriodTypes(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for _, tc := range []struct {
		days int
		want string
	}{
		{1, PeriodDaily},
		{3, PeriodCustom},
		{7, PeriodWeekly},
		{30, PeriodMonthly},
		{45, PeriodCustom},
	} {
		p := NewPeriod(start, start.AddDate(0, 0, tc.days-1), "")
		assert.Equal(t, tc.days, p.Days)
		assert.Equal(t, tc.want, p.PeriodType, tc.days)
	}
}

func TestNewPeriodAcrossDSTChange(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	// 2026-03-08 is the spring-forward day; the window has a 23 hour day in it.
	start := time.Date(2026, 3, 5, 0, 0, 0, 0, ny)
	end := time.Date(2026, 3, 11, 0, 0, 0, 0, ny)
	require.Less(t, end.Sub(start), 6*24*time.Hour)

	p := NewPeriod(start, end, "")
	assert.Equal(t, 7, p.Days)
	assert.Equal(t, PeriodWeekly, p.PeriodType)

	// fall back, 25 hour day
	start = time.Date(2026, 11, 1, 0, 0, 0, 0, ny)
	p = NewPeriod(start, start.AddDate(0, 0, 2), "")
	assert.Equal(t, 3, p.Days)
}
