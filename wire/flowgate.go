package wire

import (
	"context"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"
)

// DefaultCheckInterval is how long a single wait on a limiter lasts before the
// cancellation checks run again.
const DefaultCheckInterval = 100 * time.Millisecond

// AcquireResult is the outcome of a blocking acquire.
type AcquireResult int

const (
	Granted AcquireResult = iota
	TimedOut
	Canceled
)

func (r AcquireResult) String() string {
	switch r {
	case Granted:
		return "granted"
	case TimedOut:
		return "timed-out"
	case Canceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// CancelCriterion is polled while waiting for capacity. A non-nil error aborts the
// wait with that error, typically because the server is shutting down.
type CancelCriterion func() error

// FlowGateConfig sizes a FlowGate. A zero capacity disables that limiter.
type FlowGateConfig struct {
	// MaxMessages bounds the number of messages being received and processed at once.
	MaxMessages int64

	// MaxBytes bounds the sum of payload lengths of those messages.
	MaxBytes int64

	// CheckInterval bounds one wait-loop iteration. Defaults to DefaultCheckInterval.
	CheckInterval time.Duration
}

// FlowGate is the admission control shared by every connection of a server:
// one limiter on concurrently processed messages and one on their aggregate size.
type FlowGate struct {
	messages      *semaphore.Weighted
	data          *semaphore.Weighted
	maxMessages   int64
	maxBytes      int64
	checkInterval time.Duration
}

// NewFlowGate creates a FlowGate. A nil *FlowGate admits everything.
func NewFlowGate(cfg FlowGateConfig) *FlowGate {
	g := &FlowGate{
		maxMessages:   cfg.MaxMessages,
		maxBytes:      cfg.MaxBytes,
		checkInterval: cfg.CheckInterval,
	}
	if g.checkInterval <= 0 {
		g.checkInterval = DefaultCheckInterval
	}
	if cfg.MaxMessages > 0 {
		g.messages = semaphore.NewWeighted(cfg.MaxMessages)
	}
	if cfg.MaxBytes > 0 {
		g.data = semaphore.NewWeighted(cfg.MaxBytes)
	}
	return g
}

// Acquire obtains one message slot and payloadLength bytes, waiting at most timeout
// for both together (zero waits indefinitely). It is all-or-nothing: on failure
// nothing stays acquired.
//
// A payload larger than the whole byte capacity is clamped to the capacity, so such
// a message is admitted once it can run alone.
//
// Timing out returns a *ResourceExhaustedError. Cancellation (ctx or cancel) returns
// the cancellation error.
func (g *FlowGate) Acquire(ctx context.Context, payloadLength int, timeout time.Duration, cancel CancelCriterion) (*Permit, error) {
	p := &Permit{gate: g}
	if g == nil {
		return p, nil
	}

	start := time.Now()

	if g.messages != nil {
		res, err := g.acquire(ctx, g.messages, 1, timeout, cancel)
		switch res {
		case TimedOut:
			return nil, &ResourceExhaustedError{Limiter: "message", Waited: time.Since(start).Milliseconds()}
		case Canceled:
			return nil, err
		}
		p.messages = 1
	}

	if payloadLength > 0 && g.data != nil {
		n := min(int64(payloadLength), g.maxBytes)

		budget := timeout
		if timeout > 0 {
			// the message limiter wait came out of the same budget
			budget = timeout - time.Since(start)
			if budget <= 0 {
				p.Release()
				return nil, &ResourceExhaustedError{Limiter: "data", Waited: time.Since(start).Milliseconds()}
			}
		}

		res, err := g.acquire(ctx, g.data, n, budget, cancel)
		switch res {
		case TimedOut:
			p.Release()
			return nil, &ResourceExhaustedError{Limiter: "data", Waited: time.Since(start).Milliseconds()}
		case Canceled:
			p.Release()
			return nil, err
		}
		p.bytes = n
	}

	return p, nil
}

// acquire is the blocking-with-deadline primitive. The wait is sliced into
// checkInterval pieces; ctx and cancel are checked before every slice.
func (g *FlowGate) acquire(ctx context.Context, sem *semaphore.Weighted, n int64, timeout time.Duration, cancel CancelCriterion) (AcquireResult, error) {
	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}

	for {
		if cancel != nil {
			if err := cancel(); err != nil {
				return Canceled, err
			}
		}
		if err := ctx.Err(); err != nil {
			return Canceled, err
		}

		if sem.TryAcquire(n) {
			return Granted, nil
		}

		wait := g.checkInterval
		if !deadline.IsZero() {
			left := time.Until(deadline)
			if left <= 0 {
				return TimedOut, nil
			}
			wait = min(wait, left)
		}

		waitCtx, stop := context.WithTimeout(ctx, wait)
		err := sem.Acquire(waitCtx, n)
		stop()
		if err == nil {
			return Granted, nil
		}
	}
}

// Limits returns the configured capacities.
func (g *FlowGate) Limits() (maxMessages, maxBytes int64) {
	return g.maxMessages, g.maxBytes
}

// Permit is what a receive holds on the FlowGate. Release returns it exactly once;
// later calls are no-ops.
type Permit struct {
	gate     *FlowGate
	messages int64
	bytes    int64
	released atomic.Bool
}

// Release gives the slots back to the gate.
func (p *Permit) Release() {
	if p == nil || !p.released.CompareAndSwap(false, true) {
		return
	}
	if p.messages > 0 {
		p.gate.messages.Release(p.messages)
	}
	if p.bytes > 0 {
		p.gate.data.Release(p.bytes)
	}
}

// Bytes returns the number of payload bytes held.
func (p *Permit) Bytes() int64 {
	return p.bytes
}

// Messages returns the number of message slots held (0 or 1).
func (p *Permit) Messages() int64 {
	return p.messages
}
