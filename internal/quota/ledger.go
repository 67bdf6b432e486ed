package quota

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"
)

// costEpsilon absorbs float drift from summing per-request estimates.
const costEpsilon = 1e-9

// Limits are the caps enforced per client. A cap <= 0 disables that check.
type Limits struct {
	Hourly         int
	Daily          int
	Weekly         int
	CostCap        float64
	CostPerRequest float64
	CostWindow     Window
	WarnRatio      float64
}

// Ledger enforces request-count and spend caps per client identity.
type Ledger struct {
	store  Store
	limits Limits
	now    func() time.Time
}

// Option customizes a Ledger.
type Option func(*Ledger)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) {
		if now != nil {
			l.now = now
		}
	}
}

// NewLedger constructs a Ledger over store.
func NewLedger(store Store, limits Limits, opts ...Option) *Ledger {
	if store == nil {
		store = NewMemoryStore()
	}
	if limits.CostWindow == "" {
		limits.CostWindow = WindowDay
	}
	l := &Ledger{store: store, limits: limits, now: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Limits returns the configured caps.
func (l *Ledger) Limits() Limits {
	return l.limits
}

// EstimatedCost is the per-request estimate charged by Reserve callers.
func (l *Ledger) EstimatedCost() float64 {
	return l.limits.CostPerRequest
}

// Reserve atomically checks every cap for clientID and, when all pass,
// records one request and adds estimatedCost. Caps are checked in the order
// hourly, daily, weekly, cost; the first failure is returned as *ExceededError
// and nothing is recorded.
func (l *Ledger) Reserve(ctx context.Context, clientID string, estimatedCost float64) (Usage, error) {
	if strings.TrimSpace(clientID) == "" {
		return Usage{}, fmt.Errorf("client id is required")
	}
	if estimatedCost < 0 || math.IsNaN(estimatedCost) || math.IsInf(estimatedCost, 0) {
		return Usage{}, fmt.Errorf("invalid cost estimate %v", estimatedCost)
	}
	now := l.now()
	var at time.Time
	rec, err := l.store.Apply(ctx, clientID, func(r *Record) error {
		at = r.roll(now, l.limits.CostWindow)
		if exceeded := l.check(*r, at, estimatedCost); exceeded != nil {
			return exceeded
		}
		r.Timestamps = append(r.Timestamps, at)
		r.Cost += estimatedCost
		return nil
	})
	if err != nil {
		return Usage{}, err
	}
	return l.usage(clientID, rec, at), nil
}

// Usage reports the client's current standing without recording anything.
// Windows that have elapsed read as zero.
func (l *Ledger) Usage(ctx context.Context, clientID string) (Usage, error) {
	if strings.TrimSpace(clientID) == "" {
		return Usage{}, fmt.Errorf("client id is required")
	}
	rec, err := l.store.Load(ctx, clientID)
	if err != nil {
		return Usage{}, err
	}
	at := rec.roll(l.now(), l.limits.CostWindow)
	return l.usage(clientID, rec, at), nil
}

func (l *Ledger) check(r Record, now time.Time, estimatedCost float64) *ExceededError {
	if l.limits.Hourly > 0 {
		if used := r.hourCount(now); used >= l.limits.Hourly {
			// Admission reopens once enough of the trailing hour ages out to
			// leave one slot under the cap.
			frees := r.Timestamps[len(r.Timestamps)-l.limits.Hourly].Add(time.Hour)
			return &ExceededError{Limit: LimitHourly, Cap: float64(l.limits.Hourly), Used: float64(used), RetryAfter: frees.Sub(now)}
		}
	}
	if l.limits.Daily > 0 {
		if used := r.dayCount(); used >= l.limits.Daily {
			return &ExceededError{Limit: LimitDaily, Cap: float64(l.limits.Daily), Used: float64(used), RetryAfter: r.DayStart.AddDate(0, 0, 1).Sub(now)}
		}
	}
	if l.limits.Weekly > 0 {
		if used := r.weekCount(); used >= l.limits.Weekly {
			return &ExceededError{Limit: LimitWeekly, Cap: float64(l.limits.Weekly), Used: float64(used), RetryAfter: r.WeekStart.AddDate(0, 0, 7).Sub(now)}
		}
	}
	if l.limits.CostCap > 0 && r.Cost+estimatedCost > l.limits.CostCap+costEpsilon {
		return &ExceededError{Limit: LimitCost, Cap: l.limits.CostCap, Used: r.Cost, RetryAfter: r.costEnd(l.limits.CostWindow).Sub(now)}
	}
	return nil
}
