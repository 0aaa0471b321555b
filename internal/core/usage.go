package core

import "time"

// UsageRecord is the single canonical shape every upstream response variant
// is normalized into.
type UsageRecord struct {
	ConsumedUnits float64    `json:"consumed_units"`
	UnitLimit     float64    `json:"unit_limit"` // 0 means "unknown, not yet resolved"
	DailyUnits    *float64   `json:"daily_units,omitempty"`
	MonthlyUnits  *float64   `json:"monthly_units,omitempty"`
	LastUpdate    time.Time  `json:"last_update"`
	PlanName      string     `json:"plan_name,omitempty"`
	RenewalDate   string     `json:"renewal_date,omitempty"`
}

// Percent returns consumed units as a percentage of the limit, or -1 when the
// limit is still unknown.
func (r UsageRecord) Percent() float64 {
	if r.UnitLimit <= 0 {
		return -1
	}
	return (r.ConsumedUnits / r.UnitLimit) * 100
}

// Remaining returns the units left in the current cycle, clamped at 0.
func (r UsageRecord) Remaining() float64 {
	if r.UnitLimit <= 0 {
		return 0
	}
	left := r.UnitLimit - r.ConsumedUnits
	if left < 0 {
		return 0
	}
	return left
}

// Snapshot is one timestamped consumption reading. The series is append-only
// and pruned to the retention window; snapshots are never rewritten.
type Snapshot struct {
	Timestamp time.Time `json:"timestamp"`
	Consumed  float64   `json:"consumed"`
}

// SnapshotRetention bounds how long consumption snapshots are kept for rate
// computation.
const SnapshotRetention = 48 * time.Hour
