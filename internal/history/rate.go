package history

import (
	"sort"
	"time"

	"github.com/samber/lo"

	"github.com/janekbaraniewski/usagewatch/internal/core"
)

// minRateResolution is the smallest time span between the first and last
// snapshot for which a rate is meaningful.
const minRateResolution = time.Minute

// Rate computes a windowed consumption rate in units per hour from the
// snapshot series. It returns nil when fewer than two snapshots fall inside
// the trailing window, when they span less than a minute, or when consumption
// went down (a drop means the billing cycle reset, not negative usage).
// A rate of 0 is a legitimate result.
func Rate(snapshots []core.Snapshot, window time.Duration, now time.Time) *float64 {
	cutoff := now.Add(-window)
	inWindow := lo.Filter(snapshots, func(s core.Snapshot, _ int) bool {
		return !s.Timestamp.Before(cutoff)
	})
	if len(inWindow) < 2 {
		return nil
	}

	sort.Slice(inWindow, func(i, j int) bool {
		return inWindow[i].Timestamp.Before(inWindow[j].Timestamp)
	})
	earliest := inWindow[0]
	latest := inWindow[len(inWindow)-1]

	deltaTime := latest.Timestamp.Sub(earliest.Timestamp)
	if deltaTime < minRateResolution {
		return nil
	}
	deltaConsumed := latest.Consumed - earliest.Consumed
	if deltaConsumed < 0 {
		return nil
	}

	rate := deltaConsumed / deltaTime.Hours()
	return &rate
}

// ProjectedDays estimates days until exhaustion from the remaining units and
// an hourly consumption rate. A nil or non-positive rate cannot support a
// projection; zero or negative remaining units means exhaustion already.
func ProjectedDays(remainingUnits float64, ratePerHour *float64) *float64 {
	if ratePerHour == nil || *ratePerHour <= 0 {
		return nil
	}
	if remainingUnits <= 0 {
		zero := 0.0
		return &zero
	}
	days := remainingUnits / (*ratePerHour * 24)
	return &days
}
