package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/janekbaraniewski/usagewatch/internal/core"
)

// Store persists the consumption snapshot series, the aggregated usage
// record, and the threshold-notification state in a local sqlite database.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

func OpenStore(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("history: creating DB dir: %w", err)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("history: opening DB: %w", err)
	}

	store := NewStore(db)
	if err := store.Init(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db, now: time.Now}
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) Init(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS usage_snapshots (
			taken_at TEXT NOT NULL,
			consumed REAL NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_usage_snapshots_taken_at ON usage_snapshots(taken_at);`,
		`CREATE TABLE IF NOT EXISTS usage_state (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			total_usage REAL NOT NULL,
			daily_usage TEXT NOT NULL,
			last_reset_date TEXT NOT NULL,
			last_update_date TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS threshold_state (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			last_notified INTEGER NOT NULL DEFAULT 0
		);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("history: init schema: %w", err)
		}
	}
	return nil
}

// RecordSnapshot appends one consumption reading and prunes entries that fell
// out of the retention window. Snapshots are append-only; nothing rewrites
// past readings.
func (s *Store) RecordSnapshot(ctx context.Context, consumed float64) error {
	now := s.now().UTC()
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO usage_snapshots (taken_at, consumed) VALUES (?, ?)`,
		now.Format(time.RFC3339Nano), consumed); err != nil {
		return core.WrapError(core.KindStorage, "recording snapshot", err)
	}
	return s.Prune(ctx)
}

// Prune drops snapshots older than the retention window.
func (s *Store) Prune(ctx context.Context) error {
	cutoff := s.now().UTC().Add(-core.SnapshotRetention)
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM usage_snapshots WHERE taken_at < ?`,
		cutoff.Format(time.RFC3339Nano)); err != nil {
		return core.WrapError(core.KindStorage, "pruning snapshots", err)
	}
	return nil
}

// Snapshots returns the retained series ordered oldest first.
func (s *Store) Snapshots(ctx context.Context) ([]core.Snapshot, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT taken_at, consumed FROM usage_snapshots ORDER BY taken_at ASC`)
	if err != nil {
		return nil, core.WrapError(core.KindStorage, "loading snapshots", err)
	}
	defer rows.Close()

	var out []core.Snapshot
	for rows.Next() {
		var ts string
		var consumed float64
		if err := rows.Scan(&ts, &consumed); err != nil {
			return nil, core.WrapError(core.KindStorage, "scanning snapshot row", err)
		}
		t, err := time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			continue
		}
		out = append(out, core.Snapshot{Timestamp: t, Consumed: consumed})
	}
	return out, rows.Err()
}

// PersistedUsage is the aggregated usage record kept across restarts.
type PersistedUsage struct {
	TotalUsage     float64            `json:"totalUsage"`
	DailyUsage     map[string]float64 `json:"dailyUsage"`
	LastResetDate  string             `json:"lastResetDate"`
	LastUpdateDate string             `json:"lastUpdateDate"`
}

func (s *Store) SaveUsage(ctx context.Context, u PersistedUsage) error {
	if u.DailyUsage == nil {
		u.DailyUsage = map[string]float64{}
	}
	daily, err := json.Marshal(u.DailyUsage)
	if err != nil {
		return core.WrapError(core.KindStorage, "encoding daily usage", err)
	}
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO usage_state (id, total_usage, daily_usage, last_reset_date, last_update_date)
		VALUES (1, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			total_usage = excluded.total_usage,
			daily_usage = excluded.daily_usage,
			last_reset_date = excluded.last_reset_date,
			last_update_date = excluded.last_update_date`,
		u.TotalUsage, string(daily), u.LastResetDate, u.LastUpdateDate); err != nil {
		return core.WrapError(core.KindStorage, "saving usage state", err)
	}
	return nil
}

func (s *Store) LoadUsage(ctx context.Context) (PersistedUsage, error) {
	var u PersistedUsage
	var daily string
	err := s.db.QueryRowContext(ctx,
		`SELECT total_usage, daily_usage, last_reset_date, last_update_date FROM usage_state WHERE id = 1`).
		Scan(&u.TotalUsage, &daily, &u.LastResetDate, &u.LastUpdateDate)
	if err == sql.ErrNoRows {
		return PersistedUsage{DailyUsage: map[string]float64{}}, nil
	}
	if err != nil {
		return u, core.WrapError(core.KindStorage, "loading usage state", err)
	}
	if err := json.Unmarshal([]byte(daily), &u.DailyUsage); err != nil || u.DailyUsage == nil {
		u.DailyUsage = map[string]float64{}
	}
	return u, nil
}

// LastNotified returns the highest usage percentage already announced,
// defaulting to 0.
func (s *Store) LastNotified(ctx context.Context) (int, error) {
	var v int
	err := s.db.QueryRowContext(ctx,
		`SELECT last_notified FROM threshold_state WHERE id = 1`).Scan(&v)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, core.WrapError(core.KindStorage, "loading threshold state", err)
	}
	return v, nil
}

func (s *Store) SetLastNotified(ctx context.Context, v int) error {
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO threshold_state (id, last_notified) VALUES (1, ?)
		ON CONFLICT(id) DO UPDATE SET last_notified = excluded.last_notified`, v); err != nil {
		return core.WrapError(core.KindStorage, "saving threshold state", err)
	}
	return nil
}
