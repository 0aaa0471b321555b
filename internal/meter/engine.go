// Package meter ties the gateway, history store and threshold notifier into
// one fetch cycle and exposes the latest derived state to whatever front end
// is attached.
package meter

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/janekbaraniewski/usagewatch/internal/core"
	"github.com/janekbaraniewski/usagewatch/internal/gateway"
	"github.com/janekbaraniewski/usagewatch/internal/history"
	"github.com/janekbaraniewski/usagewatch/internal/notify"
	"github.com/janekbaraniewski/usagewatch/internal/poller"
)

// rateWindow is the trailing span snapshots are drawn from when computing the
// consumption rate. Long enough to smooth bursts, short enough to track the
// current working pace.
const rateWindow = 24 * time.Hour

// State is the derived view one fetch cycle produces.
type State struct {
	Record        *core.UsageRecord
	RatePerHour   *float64
	ProjectedDays *float64
	Authenticated bool
	LastError     string
	LastSource    poller.Source
	FetchedAt     time.Time
}

type Engine struct {
	mu       sync.RWMutex
	gw       *gateway.Gateway
	store    *history.Store
	notifier *notify.Notifier

	state     State
	observers []func(State)

	now func() time.Time
}

func New(gw *gateway.Gateway, store *history.Store, notifier *notify.Notifier) *Engine {
	e := &Engine{
		gw:       gw,
		store:    store,
		notifier: notifier,
		now:      time.Now,
	}
	// The gateway may already hold a restored credential.
	e.state.Authenticated = gw.Authenticated()
	gw.OnAuthChange(func(authenticated bool) {
		if !authenticated {
			// Sign-out also clears the announced-threshold state so the next
			// session starts a fresh notification cycle.
			e.notifier.Reset(context.Background())
		}
		e.mu.Lock()
		e.state.Authenticated = authenticated
		if !authenticated {
			e.state.Record = nil
			e.state.RatePerHour = nil
			e.state.ProjectedDays = nil
		}
		snapshot := e.state
		e.mu.Unlock()
		e.notify(snapshot)
	})
	return e
}

// OnUpdate registers an observer fired synchronously after every state
// mutation.
func (e *Engine) OnUpdate(fn func(State)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.observers = append(e.observers, fn)
}

func (e *Engine) notify(s State) {
	e.mu.RLock()
	observers := make([]func(State), len(e.observers))
	copy(observers, e.observers)
	e.mu.RUnlock()
	for _, fn := range observers {
		fn(s)
	}
}

func (e *Engine) State() State {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state
}

// Refresh runs one fetch cycle: fetch, normalize, record the snapshot,
// derive rate and projection, then evaluate notification thresholds. Within
// a cycle the snapshot is recorded after a successful parse and before the
// threshold check. Background failures are logged, never surfaced to the
// user; the poller keeps going either way.
func (e *Engine) Refresh(ctx context.Context, src poller.Source) {
	now := e.now()
	next := State{
		Authenticated: e.gw.Authenticated(),
		LastSource:    src,
		FetchedAt:     now,
	}

	rec, err := e.gw.UsageRecord(ctx)
	switch {
	case err != nil:
		next.LastError = err.Error()
		if core.IsAuthentication(err) {
			next.Authenticated = false
		}
		log.Printf("[meter] fetch (%s) failed: %v", src, err)
		// Keep showing the last good record; stale data beats a blank.
		prev := e.State()
		next.Record = prev.Record
		next.RatePerHour = prev.RatePerHour
		next.ProjectedDays = prev.ProjectedDays
	case rec == nil:
		log.Printf("[meter] fetch (%s) returned no usable usage data", src)
		prev := e.State()
		next.Record = prev.Record
	default:
		next.Record = rec
		e.recordCycle(ctx, rec, &next)
	}

	e.mu.Lock()
	e.state = next
	e.mu.Unlock()
	e.notify(next)
}

// recordCycle persists the snapshot and aggregates, then derives rate,
// projection and threshold notifications from it.
func (e *Engine) recordCycle(ctx context.Context, rec *core.UsageRecord, next *State) {
	if err := e.store.RecordSnapshot(ctx, rec.ConsumedUnits); err != nil {
		log.Printf("[meter] recording snapshot: %v", err)
	}
	e.updatePersistedUsage(ctx, rec)

	snaps, err := e.store.Snapshots(ctx)
	if err != nil {
		log.Printf("[meter] loading snapshots: %v", err)
	} else {
		next.RatePerHour = history.Rate(snaps, rateWindow, e.now())
		next.ProjectedDays = history.ProjectedDays(rec.Remaining(), next.RatePerHour)
	}

	if pct := rec.Percent(); pct >= 0 {
		e.notifier.Check(ctx, pct)
	}
}

// updatePersistedUsage maintains the aggregated usage record: running total,
// per-day deltas, and cycle-reset bookkeeping. A consumption drop means the
// billing cycle rolled over, which also re-arms threshold notifications.
func (e *Engine) updatePersistedUsage(ctx context.Context, rec *core.UsageRecord) {
	u, err := e.store.LoadUsage(ctx)
	if err != nil {
		log.Printf("[meter] loading usage state: %v", err)
		return
	}

	now := e.now()
	if rec.ConsumedUnits < u.TotalUsage {
		u.LastResetDate = now.Format(time.RFC3339)
		u.DailyUsage = map[string]float64{}
		e.notifier.Reset(ctx)
	} else {
		day := now.Format("2006-01-02")
		u.DailyUsage[day] += rec.ConsumedUnits - u.TotalUsage
	}
	u.TotalUsage = rec.ConsumedUnits
	u.LastUpdateDate = now.Format(time.RFC3339)

	if err := e.store.SaveUsage(ctx, u); err != nil {
		log.Printf("[meter] saving usage state: %v", err)
	}
}

// Cleanup is wired to the poller's daily maintenance timer.
func (e *Engine) Cleanup(ctx context.Context) {
	if err := e.store.Prune(ctx); err != nil {
		log.Printf("[meter] pruning history: %v", err)
	}
}
