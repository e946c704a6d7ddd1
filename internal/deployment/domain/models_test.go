package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestUsageWindow(t *testing.T) {
	periodStart := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	periodEnd := periodStart.Add(time.Hour)

	full := Deployment{CreatedAt: periodStart.Add(-time.Hour)}
	start, end, ok := full.UsageWindow(periodStart, periodEnd)
	assert.True(t, ok)
	assert.Equal(t, periodStart, start)
	assert.Equal(t, periodEnd, end)

	stoppedAt := periodStart.Add(45 * time.Minute)
	partial := Deployment{CreatedAt: periodStart.Add(15 * time.Minute), StoppedAt: &stoppedAt}
	start, end, ok = partial.UsageWindow(periodStart, periodEnd)
	assert.True(t, ok)
	assert.Equal(t, 30*time.Minute, end.Sub(start))

	before := periodStart.Add(-time.Minute)
	gone := Deployment{CreatedAt: periodStart.Add(-time.Hour), StoppedAt: &before}
	_, _, ok = gone.UsageWindow(periodStart, periodEnd)
	assert.False(t, ok)
}
