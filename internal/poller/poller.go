// Package poller drives the background fetch loop. It deliberately uses
// self-rescheduling one-shot timers instead of a ticker so one-off triggers
// (manual refresh, window focus, config changes) can preempt the pending
// fetch without ever double-firing.
package poller

import (
	"context"
	"log"
	"math/rand"
	"sync"
	"time"
)

// Source tags where a fetch request came from, for logging and debugging.
type Source string

const (
	SourceStartup      Source = "startup"
	SourcePoller       Source = "poller"
	SourceManual       Source = "manual"
	SourceFocus        Source = "focus"
	SourceConfigChange Source = "config-change"
	SourceAuthChange   Source = "auth-change"
)

// focusThrottle caps how often window-focus events may force a refresh.
const focusThrottle = 30 * time.Second

// cleanupInterval spaces out history pruning, independent of the fetch timer.
const cleanupInterval = 24 * time.Hour

// Handle cancels a scheduled callback.
type Handle interface {
	Stop() bool
}

// Scheduler abstracts timer creation so tests can drive the loop with a
// virtual clock.
type Scheduler interface {
	Schedule(d time.Duration, fn func()) Handle
}

type timerScheduler struct{}

type timerHandle struct{ t *time.Timer }

func (h timerHandle) Stop() bool { return h.t.Stop() }

func (timerScheduler) Schedule(d time.Duration, fn func()) Handle {
	return timerHandle{t: time.AfterFunc(d, fn)}
}

// NewTimerScheduler returns the production Scheduler backed by time.AfterFunc.
func NewTimerScheduler() Scheduler { return timerScheduler{} }

// Poller owns the pending fetch timer and the daily cleanup timer. The fetch
// function itself is wired once and survives Stop/Start cycles.
type Poller struct {
	mu         sync.Mutex
	sched      Scheduler
	fetch      func(ctx context.Context, src Source)
	cleanup    func(ctx context.Context)
	interval   time.Duration
	jitterFrac float64

	timer        Handle
	timerGen     uint64
	cleanupTimer Handle
	running      bool
	nextSource   Source
	lastFocus    time.Time

	now       func() time.Time
	randFloat func() float64
}

// New builds a poller around a fetch function and an optional cleanup
// function invoked on the daily maintenance timer.
func New(sched Scheduler, interval time.Duration, fetch func(ctx context.Context, src Source), cleanup func(ctx context.Context)) *Poller {
	if sched == nil {
		sched = NewTimerScheduler()
	}
	return &Poller{
		sched:      sched,
		fetch:      fetch,
		cleanup:    cleanup,
		interval:   interval,
		jitterFrac: 0.2,
		now:        time.Now,
		randFloat:  rand.Float64,
	}
}

// SetInterval adjusts the steady-state polling interval. It takes effect at
// the next reschedule; callers reacting to a config change usually follow up
// with TriggerRefreshSoon.
func (p *Poller) SetInterval(d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if d > 0 {
		p.interval = d
	}
}

// Start schedules an immediate fetch tagged "startup" and arms the daily
// cleanup timer. Any pending timer from a previous run is cancelled first.
func (p *Poller) Start(ctx context.Context) {
	p.mu.Lock()
	if p.timer != nil {
		p.timer.Stop()
	}
	p.running = true
	p.nextSource = SourceStartup
	p.timerGen++
	gen := p.timerGen
	p.timer = p.sched.Schedule(0, func() { p.fire(ctx, gen) })
	if p.cleanup != nil && p.cleanupTimer == nil {
		p.cleanupTimer = p.sched.Schedule(cleanupInterval, func() { p.runCleanup(ctx) })
	}
	p.mu.Unlock()
}

// Stop cancels pending timers. The fetch function stays wired, so a later
// Start resumes polling without reconfiguration.
func (p *Poller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.running = false
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
	if p.cleanupTimer != nil {
		p.cleanupTimer.Stop()
		p.cleanupTimer = nil
	}
}

// TriggerRefreshSoon cancels the pending fetch and reschedules it minDelay
// from now, tagged with the given source. Focus-driven refreshes are
// throttled to one per 30 seconds; throttled calls leave the pending timer
// untouched.
func (p *Poller) TriggerRefreshSoon(ctx context.Context, minDelay time.Duration, src Source) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.running {
		return
	}
	if src == SourceFocus {
		now := p.now()
		if now.Sub(p.lastFocus) < focusThrottle {
			return
		}
		p.lastFocus = now
	}
	if p.timer != nil {
		p.timer.Stop()
	}
	p.nextSource = src
	p.timerGen++
	gen := p.timerGen
	p.timer = p.sched.Schedule(minDelay, func() { p.fire(ctx, gen) })
	log.Printf("[poller] refresh rescheduled in %v (source=%s)", minDelay, src)
}

// fire runs one fetch and, success or failure, reschedules the steady-state
// jittered poll. gen identifies the timer this invocation came from: if a
// trigger armed a newer timer while the fetch ran, that timer owns the loop
// and this invocation must not reschedule.
func (p *Poller) fire(ctx context.Context, gen uint64) {
	p.mu.Lock()
	if !p.running || gen != p.timerGen {
		p.mu.Unlock()
		return
	}
	src := p.nextSource
	p.mu.Unlock()

	p.fetch(ctx, src)

	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.running || gen != p.timerGen {
		return
	}
	delay := p.jitteredInterval()
	p.nextSource = SourcePoller
	p.timerGen++
	next := p.timerGen
	p.timer = p.sched.Schedule(delay, func() { p.fire(ctx, next) })
}

func (p *Poller) runCleanup(ctx context.Context) {
	p.cleanup(ctx)

	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.running {
		return
	}
	p.cleanupTimer = p.sched.Schedule(cleanupInterval, func() { p.runCleanup(ctx) })
}

// jitteredInterval spreads polls uniformly across interval ± 20% so a fleet
// of clients does not hit the vendor in lockstep.
func (p *Poller) jitteredInterval() time.Duration {
	spread := (p.randFloat()*2 - 1) * p.jitterFrac // [-0.2, +0.2)
	return time.Duration(float64(p.interval) * (1 + spread))
}
