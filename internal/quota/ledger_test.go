package quota

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(t time.Time) *fakeClock { return &fakeClock{now: t} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// Wednesday, mid-hour.
var baseTime = time.Date(2026, time.March, 11, 10, 15, 0, 0, time.UTC)

func newTestLedger(limits Limits, clock *fakeClock) *Ledger {
	return NewLedger(NewMemoryStore(), limits, WithClock(clock.Now))
}

func requireExceeded(t *testing.T, err error, limit string) *ExceededError {
	t.Helper()
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrQuotaExceeded))
	var exceeded *ExceededError
	require.True(t, errors.As(err, &exceeded))
	require.Equal(t, limit, exceeded.Limit)
	return exceeded
}

func TestHourlyCapRejectsNextRequest(t *testing.T) {
	clock := newFakeClock(baseTime)
	ledger := newTestLedger(Limits{Hourly: 5, Daily: 20, Weekly: 100, CostCap: 10, CostPerRequest: 0.03}, clock)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := ledger.Reserve(ctx, "c1", 0.03)
		require.NoError(t, err)
	}
	_, err := ledger.Reserve(ctx, "c1", 0.03)
	exceeded := requireExceeded(t, err, LimitHourly)
	assert.Equal(t, time.Hour, exceeded.RetryAfter)
	assert.Equal(t, 3600, exceeded.RetryAfterSeconds())
	assert.Contains(t, exceeded.Message(), "5 trips per hour")

	u, err := ledger.Usage(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, 5, u.Hourly.Used)
	assert.InDelta(t, 0.15, u.Cost.SpentUSD, 1e-9)
}

func TestHourlyCapIndependentOfOtherHeadroom(t *testing.T) {
	clock := newFakeClock(baseTime)
	ledger := newTestLedger(Limits{Hourly: 2}, clock)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := ledger.Reserve(ctx, "c1", 0)
		require.NoError(t, err)
	}
	_, err := ledger.Reserve(ctx, "c1", 0)
	requireExceeded(t, err, LimitHourly)

	_, err = ledger.Reserve(ctx, "c2", 0)
	require.NoError(t, err, "other clients keep their own quota")
}

func TestCheckOrderDailyBeforeCost(t *testing.T) {
	clock := newFakeClock(baseTime)
	ledger := newTestLedger(Limits{Daily: 1, CostCap: 0.01}, clock)
	ctx := context.Background()

	_, err := ledger.Reserve(ctx, "c1", 0.01)
	require.NoError(t, err)
	_, err = ledger.Reserve(ctx, "c1", 0.01)
	requireExceeded(t, err, LimitDaily)
}

func TestCostCapRejectsBeforeExceeding(t *testing.T) {
	clock := newFakeClock(baseTime)
	ledger := newTestLedger(Limits{Hourly: 10, Daily: 10, Weekly: 10, CostCap: 0.30}, clock)
	ctx := context.Background()

	_, err := ledger.Reserve(ctx, "c1", 0.15)
	require.NoError(t, err)
	_, err = ledger.Reserve(ctx, "c1", 0.15)
	require.NoError(t, err, "landing exactly on the cap is allowed")
	_, err = ledger.Reserve(ctx, "c1", 0.15)
	exceeded := requireExceeded(t, err, LimitCost)
	assert.InDelta(t, 0.30, exceeded.Used, 1e-9)

	u, err := ledger.Usage(ctx, "c1")
	require.NoError(t, err)
	assert.InDelta(t, 0.30, u.Cost.SpentUSD, 1e-9)
	assert.Equal(t, 2, u.Hourly.Used, "rejected request is not recorded")
}

func TestManySmallCostsStayWithinCap(t *testing.T) {
	clock := newFakeClock(baseTime)
	ledger := newTestLedger(Limits{CostCap: 0.30}, clock)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		_, err := ledger.Reserve(ctx, "c1", 0.03)
		require.NoError(t, err, "reservation %d", i+1)
	}
	_, err := ledger.Reserve(ctx, "c1", 0.03)
	requireExceeded(t, err, LimitCost)
}

func TestHourlyCapIsTrailingAcrossHourBoundary(t *testing.T) {
	clock := newFakeClock(time.Date(2026, time.March, 11, 10, 59, 30, 0, time.UTC))
	ledger := newTestLedger(Limits{Hourly: 5}, clock)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := ledger.Reserve(ctx, "c1", 0)
		require.NoError(t, err)
	}
	clock.Advance(time.Minute) // 11:00:30, new calendar hour

	_, err := ledger.Reserve(ctx, "c1", 0)
	exceeded := requireExceeded(t, err, LimitHourly)
	assert.Equal(t, 59*time.Minute, exceeded.RetryAfter)

	u, err := ledger.Usage(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, 5, u.Hourly.Used)
	assert.False(t, u.CanSubmit)
	assert.Equal(t, 59*60, u.Hourly.ResetsInSeconds)

	clock.Set(time.Date(2026, time.March, 11, 11, 59, 30, 0, time.UTC))
	_, err = ledger.Reserve(ctx, "c1", 0)
	require.NoError(t, err)
}

func TestHourlyRetryAfterFollowsOldestInWindow(t *testing.T) {
	clock := newFakeClock(baseTime)
	ledger := newTestLedger(Limits{Hourly: 2}, clock)
	ctx := context.Background()

	_, err := ledger.Reserve(ctx, "c1", 0)
	require.NoError(t, err)
	clock.Advance(20 * time.Minute)
	_, err = ledger.Reserve(ctx, "c1", 0)
	require.NoError(t, err)
	clock.Advance(10 * time.Minute) // 10:45

	_, err = ledger.Reserve(ctx, "c1", 0)
	exceeded := requireExceeded(t, err, LimitHourly)
	assert.Equal(t, 30*time.Minute, exceeded.RetryAfter)

	clock.Advance(30 * time.Minute) // 11:15, first request aged out
	u, err := ledger.Usage(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, 1, u.Hourly.Used)
	assert.True(t, u.CanSubmit)
}

func TestHourlyRolloverWithoutDayRollover(t *testing.T) {
	clock := newFakeClock(baseTime)
	ledger := newTestLedger(Limits{Hourly: 2, Daily: 10}, clock)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := ledger.Reserve(ctx, "c1", 0)
		require.NoError(t, err)
	}
	clock.Advance(61 * time.Minute) // 11:16, same day

	u, err := ledger.Usage(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, 0, u.Hourly.Used)
	assert.Equal(t, 2, u.Daily.Used)
	assert.True(t, u.CanSubmit)

	_, err = ledger.Reserve(ctx, "c1", 0)
	require.NoError(t, err)
}

func TestHourlyRolloverAlongsideDayRollover(t *testing.T) {
	clock := newFakeClock(time.Date(2026, time.March, 11, 23, 50, 0, 0, time.UTC))
	ledger := newTestLedger(Limits{Hourly: 1, Daily: 1, Weekly: 10}, clock)
	ctx := context.Background()

	_, err := ledger.Reserve(ctx, "c1", 0)
	require.NoError(t, err)
	clock.Advance(61 * time.Minute) // next day 00:51

	u, err := ledger.Usage(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, 0, u.Hourly.Used)
	assert.Equal(t, 0, u.Daily.Used)
	assert.Equal(t, 1, u.Weekly.Used)
}

func TestWeeklyWindowStartsMonday(t *testing.T) {
	sunday := time.Date(2026, time.March, 15, 22, 0, 0, 0, time.UTC)
	clock := newFakeClock(sunday)
	ledger := newTestLedger(Limits{Weekly: 1}, clock)
	ctx := context.Background()

	_, err := ledger.Reserve(ctx, "c1", 0)
	require.NoError(t, err)
	_, err = ledger.Reserve(ctx, "c1", 0)
	exceeded := requireExceeded(t, err, LimitWeekly)
	assert.Equal(t, 2*time.Hour, exceeded.RetryAfter)

	clock.Advance(2 * time.Hour) // Monday 00:00
	_, err = ledger.Reserve(ctx, "c1", 0)
	require.NoError(t, err)
}

func TestCostWindowWeekSurvivesDayRollover(t *testing.T) {
	clock := newFakeClock(baseTime)
	ledger := newTestLedger(Limits{CostCap: 1, CostWindow: WindowWeek}, clock)
	ctx := context.Background()

	_, err := ledger.Reserve(ctx, "c1", 0.75)
	require.NoError(t, err)
	clock.Advance(24 * time.Hour)
	_, err = ledger.Reserve(ctx, "c1", 0.5)
	requireExceeded(t, err, LimitCost)

	clock.Set(time.Date(2026, time.March, 16, 0, 0, 1, 0, time.UTC))
	_, err = ledger.Reserve(ctx, "c1", 0.5)
	require.NoError(t, err)
}

func TestCostWindowDayResets(t *testing.T) {
	clock := newFakeClock(baseTime)
	ledger := newTestLedger(Limits{CostCap: 1}, clock)
	ctx := context.Background()

	_, err := ledger.Reserve(ctx, "c1", 1)
	require.NoError(t, err)
	_, err = ledger.Reserve(ctx, "c1", 0.1)
	requireExceeded(t, err, LimitCost)

	clock.Advance(14 * time.Hour)
	_, err = ledger.Reserve(ctx, "c1", 0.1)
	require.NoError(t, err)
}

func TestClockStepBackDoesNotRewindAnchors(t *testing.T) {
	clock := newFakeClock(baseTime)
	store := NewMemoryStore()
	ledger := NewLedger(store, Limits{Hourly: 2}, WithClock(clock.Now))
	ctx := context.Background()

	_, err := ledger.Reserve(ctx, "c1", 0)
	require.NoError(t, err)
	clock.Advance(-2 * time.Hour)
	_, err = ledger.Reserve(ctx, "c1", 0)
	require.NoError(t, err)
	_, err = ledger.Reserve(ctx, "c1", 0)
	requireExceeded(t, err, LimitHourly)

	rec, err := store.Load(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, hourStart(baseTime), rec.HourStart)
}

func TestFirstSeenClientIsZero(t *testing.T) {
	clock := newFakeClock(baseTime)
	ledger := newTestLedger(Limits{Hourly: 5, Daily: 20, Weekly: 50, CostCap: 10, CostPerRequest: 0.03}, clock)

	u, err := ledger.Usage(context.Background(), "never-seen")
	require.NoError(t, err)
	assert.Equal(t, 0, u.Hourly.Used)
	assert.Equal(t, 5, u.Hourly.Remaining)
	assert.Equal(t, 20, u.Daily.Remaining)
	assert.InDelta(t, 10.0, u.Cost.RemainingUSD, 1e-9)
	assert.True(t, u.CanSubmit)
	assert.Empty(t, u.BlockedBy)
	assert.Equal(t, 0, u.Hourly.ResetsInSeconds)
}

func TestUsageCanSubmitMirrorsReserve(t *testing.T) {
	clock := newFakeClock(baseTime)
	ledger := newTestLedger(Limits{Hourly: 1, CostPerRequest: 0.03}, clock)
	ctx := context.Background()

	_, err := ledger.Reserve(ctx, "c1", 0.03)
	require.NoError(t, err)
	u, err := ledger.Usage(ctx, "c1")
	require.NoError(t, err)
	assert.False(t, u.CanSubmit)
	assert.Equal(t, LimitHourly, u.BlockedBy)
	assert.Equal(t, 3600, u.RetryAfterSeconds)

	again, err := ledger.Usage(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, u.Hourly.Used, again.Hourly.Used, "usage does not reserve")
}

func TestDisabledCapsAreUnlimited(t *testing.T) {
	clock := newFakeClock(baseTime)
	ledger := newTestLedger(Limits{}, clock)
	ctx := context.Background()

	for i := 0; i < 50; i++ {
		_, err := ledger.Reserve(ctx, "c1", 1)
		require.NoError(t, err)
	}
	u, err := ledger.Usage(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, Unlimited, u.Hourly.Remaining)
	assert.Equal(t, float64(Unlimited), u.Cost.RemainingUSD)
	assert.True(t, u.CanSubmit)
}

func TestWarningsAtRatio(t *testing.T) {
	clock := newFakeClock(baseTime)
	ledger := newTestLedger(Limits{Hourly: 5, CostCap: 1, WarnRatio: 0.8}, clock)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := ledger.Reserve(ctx, "c1", 0.1)
		require.NoError(t, err)
	}
	u, err := ledger.Usage(ctx, "c1")
	require.NoError(t, err)
	assert.Empty(t, u.Warnings)

	_, err = ledger.Reserve(ctx, "c1", 0.6)
	require.NoError(t, err)
	u, err = ledger.Usage(ctx, "c1")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"hourly_limit_near", "cost_cap_near"}, u.Warnings)
}

func TestReserveRejectsBadArguments(t *testing.T) {
	ledger := newTestLedger(Limits{}, newFakeClock(baseTime))
	_, err := ledger.Reserve(context.Background(), " ", 0)
	assert.Error(t, err)
	_, err = ledger.Reserve(context.Background(), "c1", -1)
	assert.Error(t, err)
}

func TestConcurrentReservationsNeverOverAdmit(t *testing.T) {
	clock := newFakeClock(baseTime)
	ledger := newTestLedger(Limits{Hourly: 5, Daily: 20}, clock)
	ctx := context.Background()

	_, err := ledger.Reserve(ctx, "c1", 0)
	require.NoError(t, err)

	const attempts = 50
	var admitted, rejected int32
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := ledger.Reserve(ctx, "c1", 0)
			switch {
			case err == nil:
				atomic.AddInt32(&admitted, 1)
			case errors.Is(err, ErrQuotaExceeded):
				atomic.AddInt32(&rejected, 1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.EqualValues(t, 4, admitted)
	assert.EqualValues(t, attempts-4, rejected)
}
