package snapshot

import (
	"time"
)

// Period is a half-open billing interval [Start, End).
type Period struct {
	Start time.Time
	End   time.Time
}

func (p Period) LeaseKey() string {
	return "snapshot:" + p.Start.UTC().Format(time.RFC3339)
}

// ClosedPeriods returns the last lookback periods that ended at or before
// now, oldest first. Periods are aligned to multiples of period in UTC.
func ClosedPeriods(now time.Time, period time.Duration, lookback int) []Period {
	if period <= 0 || lookback <= 0 {
		return nil
	}
	current := now.UTC().Truncate(period)
	out := make([]Period, 0, lookback)
	for k := lookback; k >= 1; k-- {
		start := current.Add(-time.Duration(k) * period)
		out = append(out, Period{Start: start, End: start.Add(period)})
	}
	return out
}
