package trips

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/yodusanwo/ai-trip-planner/internal/shared/telemetry"
)

// ErrDispatcherClosed is returned by Go after Close.
var ErrDispatcherClosed = errors.New("dispatcher closed")

// Dispatcher runs detached units of work with bounded concurrency. Work that
// cannot start immediately waits for a slot in its own goroutine, so Go never
// blocks the caller.
type Dispatcher struct {
	slots   chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	closed  bool
	running atomic.Int64
	queued  atomic.Int64
}

// NewDispatcher constructs a Dispatcher; maxConcurrent <= 0 means unbounded.
func NewDispatcher(maxConcurrent int) *Dispatcher {
	d := &Dispatcher{}
	if maxConcurrent > 0 {
		d.slots = make(chan struct{}, maxConcurrent)
	}
	return d
}

// Go schedules fn. onQueued, if non-nil, is called synchronously when no slot
// is free so the caller can report the wait. Panics in fn are recovered and
// logged.
func (d *Dispatcher) Go(ctx context.Context, name string, fn func(context.Context), onQueued func()) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return ErrDispatcherClosed
	}
	d.wg.Add(1)
	d.mu.Unlock()

	acquired := d.tryAcquire()
	if !acquired {
		d.queued.Add(1)
		if onQueued != nil {
			onQueued()
		}
	}

	go func() {
		defer d.wg.Done()
		if !acquired {
			d.slots <- struct{}{}
			d.queued.Add(-1)
		}
		if d.slots != nil {
			defer func() { <-d.slots }()
		}
		d.running.Add(1)
		defer d.running.Add(-1)
		defer func() {
			if r := recover(); r != nil {
				telemetry.Error("trip.fault", map[string]any{
					"request_id": requestIDFromContext(ctx),
					"work":       name,
					"err":        fmt.Sprintf("panic: %v", r),
				})
			}
		}()
		fn(ctx)
	}()
	return nil
}

func (d *Dispatcher) tryAcquire() bool {
	if d.slots == nil {
		return true
	}
	select {
	case d.slots <- struct{}{}:
		return true
	default:
		return false
	}
}

// Running is the number of units currently executing.
func (d *Dispatcher) Running() int { return int(d.running.Load()) }

// Queued is the number of units waiting for a slot.
func (d *Dispatcher) Queued() int { return int(d.queued.Load()) }

// Close stops accepting new work. Work already scheduled still runs.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
}

// Wait blocks until all scheduled work finished or ctx is done.
func (d *Dispatcher) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
