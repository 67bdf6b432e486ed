package jobs

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReapPrunesExpiredJobs(t *testing.T) {
	reg := NewRegistry()
	_, err := reg.Create("old", "c1", "", 1)
	require.NoError(t, err)
	_, err = reg.Fail("old", "boom")
	require.NoError(t, err)
	_, err = reg.Create("live", "c1", "", 1)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go reg.Reap(ctx, time.Millisecond, 5*time.Millisecond)

	assert.Eventually(t, func() bool { return reg.Len() == 1 }, 2*time.Second, 10*time.Millisecond)
	_, err = reg.Get("live")
	require.NoError(t, err)
}

func TestReapDisabled(t *testing.T) {
	reg := NewRegistry()
	done := make(chan struct{})
	go func() {
		reg.Reap(context.Background(), 0, time.Millisecond)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Reap with zero retention should return immediately")
	}
}
