package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFakeClockAdvance(t *testing.T) {
	start := time.Date(2025, 1, 1, 10, 0, 0, 0, time.FixedZone("UTC+5", 5*3600))
	c := NewFakeClock(start)

	assert.Equal(t, time.UTC, c.Now().Location())
	next := c.Advance(90 * time.Minute)
	assert.True(t, next.Equal(start.Add(90*time.Minute)))
	assert.Equal(t, next, c.Now())
}

func TestSystemClockIsUTC(t *testing.T) {
	var c Clock = SystemClock{}
	assert.Equal(t, time.UTC, c.Now().Location())
}
