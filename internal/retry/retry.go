package retry

import (
	"context"
	"errors"
	"log"
	"math"
	"math/rand"
	"net/http"
	"time"

	"github.com/janekbaraniewski/usagewatch/internal/core"
	"github.com/janekbaraniewski/usagewatch/internal/transport"
)

// Config is immutable per executor. Call sites needing different knobs build
// their own executor.
type Config struct {
	MaxAttempts   int
	BaseDelay     time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
	Jitter        bool
}

func DefaultConfig() Config {
	return Config{
		MaxAttempts:   3,
		BaseDelay:     500 * time.Millisecond,
		MaxDelay:      30 * time.Second,
		BackoffFactor: 2,
		Jitter:        true,
	}
}

// Executor wraps operations with bounded attempts, exponential backoff with
// full jitter, and retry/no-retry classification.
type Executor struct {
	cfg Config

	// sleep and randFloat are swapped out in tests for a virtual clock.
	sleep     func(ctx context.Context, d time.Duration) error
	randFloat func() float64
}

func New(cfg Config) *Executor {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	if cfg.BackoffFactor <= 0 {
		cfg.BackoffFactor = 2
	}
	return &Executor{
		cfg:       cfg,
		sleep:     sleepCtx,
		randFloat: rand.Float64,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Do runs a throwing operation with retries. Validation and authentication
// failures are surfaced immediately; everything else, including timeouts and
// unclassified errors, is retried (fail safe toward resilience; timeouts are
// retriable on both execution paths, see DESIGN.md).
func (e *Executor) Do(ctx context.Context, label string, op func(ctx context.Context) error) error {
	var lastErr error
	for attempt := 1; attempt <= e.cfg.MaxAttempts; attempt++ {
		err := op(ctx)
		if err == nil {
			if attempt > 1 {
				log.Printf("[retry] %s: succeeded on attempt %d/%d", label, attempt, e.cfg.MaxAttempts)
			}
			return nil
		}
		lastErr = err

		if !retriableError(err) {
			log.Printf("[retry] %s: non-retriable %s error, giving up: %v", label, core.KindOf(err), err)
			return err
		}
		if attempt == e.cfg.MaxAttempts {
			break
		}

		delay := e.delay(attempt)
		log.Printf("[retry] %s: attempt %d/%d failed (%v), retrying in %v",
			label, attempt, e.cfg.MaxAttempts, err, delay)
		if serr := e.sleep(ctx, delay); serr != nil {
			return core.WrapError(core.KindNetwork, label+" cancelled while waiting to retry", serr)
		}
	}

	log.Printf("[retry] %s: all %d attempts failed: %v", label, e.cfg.MaxAttempts, lastErr)
	return core.WrapError(core.KindNetwork, label+" failed after retries", lastErr)
}

// DoEnvelope runs an HTTP operation whose failures are data, not errors. On
// exhaustion it returns the last failed envelope rather than an error; an
// error is returned only when the transport itself never produced a response.
func (e *Executor) DoEnvelope(ctx context.Context, label string, op func(ctx context.Context) (*transport.Envelope, error)) (*transport.Envelope, error) {
	var lastEnv *transport.Envelope
	var lastErr error

	for attempt := 1; attempt <= e.cfg.MaxAttempts; attempt++ {
		env, err := op(ctx)
		if err == nil && env.Success {
			if attempt > 1 {
				log.Printf("[retry] %s: succeeded on attempt %d/%d", label, attempt, e.cfg.MaxAttempts)
			}
			return env, nil
		}

		if err != nil {
			lastErr = err
			if !retriableError(err) {
				log.Printf("[retry] %s: non-retriable %s error, giving up: %v", label, core.KindOf(err), err)
				return nil, err
			}
		} else {
			lastEnv = env
			lastErr = nil
			if !RetriableStatus(env.Status) {
				log.Printf("[retry] %s: HTTP %d is not retriable, giving up", label, env.Status)
				return env, nil
			}
		}

		if attempt == e.cfg.MaxAttempts {
			break
		}
		delay := e.delay(attempt)
		log.Printf("[retry] %s: attempt %d/%d failed, retrying in %v", label, attempt, e.cfg.MaxAttempts, delay)
		if serr := e.sleep(ctx, delay); serr != nil {
			return nil, core.WrapError(core.KindNetwork, label+" cancelled while waiting to retry", serr)
		}
	}

	log.Printf("[retry] %s: all %d attempts exhausted", label, e.cfg.MaxAttempts)
	if lastEnv != nil {
		return lastEnv, nil
	}
	return nil, core.WrapError(core.KindNetwork, label+" failed after retries", lastErr)
}

// delay computes the backoff before the next attempt. With jitter enabled the
// delay is uniform in [0, capped) ("full jitter") so many clients retrying at
// once do not synchronize into a retry storm.
func (e *Executor) delay(attempt int) time.Duration {
	capped := float64(e.cfg.BaseDelay) * math.Pow(e.cfg.BackoffFactor, float64(attempt-1))
	if max := float64(e.cfg.MaxDelay); e.cfg.MaxDelay > 0 && capped > max {
		capped = max
	}
	if e.cfg.Jitter {
		return time.Duration(e.randFloat() * capped)
	}
	return time.Duration(capped)
}

// RetriableStatus reports whether an HTTP status is worth another attempt:
// 5xx, 429 and 408. Every other 4xx means the caller got the request wrong.
func RetriableStatus(status int) bool {
	switch {
	case status >= 500:
		return true
	case status == http.StatusTooManyRequests, status == http.StatusRequestTimeout:
		return true
	default:
		return false
	}
}

func retriableError(err error) bool {
	switch core.KindOf(err) {
	case core.KindValidation, core.KindAuthentication, core.KindConfiguration:
		return false
	case core.KindNetwork:
		// DNS failures will not fix themselves within a retry window.
		return core.ReasonOf(err) != core.ReasonDNS
	case core.KindAPI:
		var e *core.Error
		if errors.As(err, &e) {
			return RetriableStatus(e.Status)
		}
		return true
	default:
		// Unknown errors default to retry.
		return true
	}
}
