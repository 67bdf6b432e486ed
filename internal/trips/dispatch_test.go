package trips

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispatcherBoundsConcurrency(t *testing.T) {
	d := NewDispatcher(2)
	release := make(chan struct{})
	var peak, current int32
	var queued int32

	for i := 0; i < 5; i++ {
		err := d.Go(context.Background(), "work", func(context.Context) {
			n := atomic.AddInt32(&current, 1)
			for {
				p := atomic.LoadInt32(&peak)
				if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
					break
				}
			}
			<-release
			atomic.AddInt32(&current, -1)
		}, func() { atomic.AddInt32(&queued, 1) })
		require.NoError(t, err)
	}

	assert.Eventually(t, func() bool { return d.Running() == 2 }, time.Second, time.Millisecond)
	assert.EqualValues(t, 3, atomic.LoadInt32(&queued))
	assert.Equal(t, 3, d.Queued())

	close(release)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, d.Wait(ctx))
	assert.EqualValues(t, 2, atomic.LoadInt32(&peak))
	assert.Equal(t, 0, d.Running())
}

func TestDispatcherRecoversPanics(t *testing.T) {
	d := NewDispatcher(1)
	var ran sync.WaitGroup
	ran.Add(1)
	require.NoError(t, d.Go(context.Background(), "bad", func(context.Context) { panic("boom") }, nil))
	require.NoError(t, d.Go(context.Background(), "good", func(context.Context) { ran.Done() }, nil))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, d.Wait(ctx))
	ran.Wait()
}

func TestDispatcherClosedRejectsWork(t *testing.T) {
	d := NewDispatcher(0)
	d.Close()
	err := d.Go(context.Background(), "late", func(context.Context) {}, nil)
	require.ErrorIs(t, err, ErrDispatcherClosed)
}

func TestDispatcherWaitHonoursContext(t *testing.T) {
	d := NewDispatcher(1)
	block := make(chan struct{})
	defer close(block)
	require.NoError(t, d.Go(context.Background(), "slow", func(context.Context) { <-block }, nil))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, d.Wait(ctx), context.DeadlineExceeded)
}
