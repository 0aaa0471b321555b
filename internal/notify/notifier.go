// Package notify tracks usage-percentage thresholds and announces each one at
// most once per billing cycle.
package notify

import (
	"context"
	"log"
	"sort"
)

// DefaultThresholds are the usage percentages announced to the user, checked
// highest first.
var DefaultThresholds = []int{95, 90, 75}

// Sink receives threshold-crossing notifications. The UI collaborator that
// renders them lives outside this module.
type Sink interface {
	NotifyThreshold(threshold int, percent float64)
}

// SinkFunc adapts a plain function to the Sink interface.
type SinkFunc func(threshold int, percent float64)

func (f SinkFunc) NotifyThreshold(threshold int, percent float64) { f(threshold, percent) }

// StateStore persists the highest threshold already announced.
type StateStore interface {
	LastNotified(ctx context.Context) (int, error)
	SetLastNotified(ctx context.Context, v int) error
}

type Notifier struct {
	thresholds []int // descending
	store      StateStore
	sink       Sink
}

func New(thresholds []int, store StateStore, sink Sink) *Notifier {
	if len(thresholds) == 0 {
		thresholds = DefaultThresholds
	}
	sorted := make([]int, len(thresholds))
	copy(sorted, thresholds)
	sort.Sort(sort.Reverse(sort.IntSlice(sorted)))
	return &Notifier{thresholds: sorted, store: store, sink: sink}
}

// Check fires at most one notification per call: the highest threshold that
// the current percentage has newly crossed. The persisted last-notified value
// only ever grows until Reset. Returns the threshold announced, or 0.
func (n *Notifier) Check(ctx context.Context, percent float64) int {
	last, err := n.store.LastNotified(ctx)
	if err != nil {
		log.Printf("[notify] reading threshold state: %v", err)
		return 0
	}

	for _, threshold := range n.thresholds {
		if percent < float64(threshold) || last >= threshold {
			continue
		}
		if err := n.store.SetLastNotified(ctx, threshold); err != nil {
			log.Printf("[notify] persisting threshold state: %v", err)
		}
		if n.sink != nil {
			n.sink.NotifyThreshold(threshold, percent)
		}
		return threshold
	}
	return 0
}

// Reset clears the announced state, e.g. on sign-out or when the usage cycle
// rolls over.
func (n *Notifier) Reset(ctx context.Context) {
	if err := n.store.SetLastNotified(ctx, 0); err != nil {
		log.Printf("[notify] resetting threshold state: %v", err)
	}
}
