package autonomy

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/LuisChen1Q84/agentkernel/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoolRunsSubmittedJobs(t *testing.T) {
	p := NewPool(WithWorkerCount(2), WithQueueSize(4))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.Start(ctx)

	var mu sync.Mutex
	var ran int
	var wg sync.WaitGroup
	wg.Add(3)

	for i := 0; i < 3; i++ {
		err := p.Submit(ctx, func(context.Context) {
			defer wg.Done()
			mu.Lock()
			ran++
			mu.Unlock()
		})
		require.NoError(t, err)
	}

	wg.Wait()
	mu.Lock()
	assert.Equal(t, 3, ran)
	mu.Unlock()
	p.Stop()
}

func TestPoolRejectsWithBackpressureWhenQueueFull(t *testing.T) {
	p := NewPool(WithWorkerCount(1), WithQueueSize(1))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.Start(ctx)

	block := make(chan struct{})
	require.NoError(t, p.Submit(ctx, func(context.Context) { <-block }))

	var lastErr error
	for i := 0; i < 8; i++ {
		if err := p.Submit(ctx, func(context.Context) {}); err != nil {
			lastErr = err
			break
		}
	}
	require.Error(t, lastErr)
	var kerr *core.KernelError
	require.ErrorAs(t, lastErr, &kerr)
	assert.Equal(t, core.ErrorKindBackpressure, kerr.Kind)

	close(block)
	p.Stop()
}

func TestPoolRecoversFromJobPanic(t *testing.T) {
	p := NewPool(WithWorkerCount(1), WithQueueSize(2))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.Start(ctx)

	done := make(chan struct{})
	require.NoError(t, p.Submit(ctx, func(context.Context) { panic("boom") }))
	require.NoError(t, p.Submit(ctx, func(context.Context) { close(done) }))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("pool stalled after a panicking job")
	}
	p.Stop()
}
