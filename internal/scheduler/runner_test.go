package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunnerExecutesTasks(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	r := NewRunner(2)
	r.Start(ctx)

	var ran atomic.Int32
	done := make(chan struct{})
	r.Enqueue(Task{Name: "once", Run: func(ctx context.Context) error {
		ran.Add(1)
		close(done)
		return nil
	}})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("task never ran")
	}
	assert.Equal(t, int32(1), ran.Load())

	cancel()
	r.Stop()
}

func TestRunnerConcurrentTasks(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	r := NewRunner(4)
	r.Start(ctx)

	var ran atomic.Int32
	for i := 0; i < 10; i++ {
		r.Enqueue(Task{Name: "work", Run: func(ctx context.Context) error {
			ran.Add(1)
			return nil
		}})
	}

	require.Eventually(t, func() bool { return ran.Load() == 10 }, 2*time.Second, 10*time.Millisecond)

	cancel()
	r.Stop()
}

func TestRunnerEnqueueAfterDelays(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	r := NewRunner(1)
	r.Start(ctx)

	start := time.Now()
	done := make(chan time.Time, 1)
	r.EnqueueAfter(50*time.Millisecond, Task{Name: "later", Run: func(ctx context.Context) error {
		done <- time.Now()
		return nil
	}})

	select {
	case at := <-done:
		assert.GreaterOrEqual(t, at.Sub(start), 50*time.Millisecond)
	case <-time.After(2 * time.Second):
		t.Fatal("delayed task never ran")
	}

	cancel()
	r.Stop()
}

func TestRunnerStopCancelsPendingTimers(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	r := NewRunner(1)
	r.Start(ctx)

	var ran atomic.Int32
	r.EnqueueAfter(time.Hour, Task{Name: "never", Run: func(ctx context.Context) error {
		ran.Add(1)
		return nil
	}})

	cancel()
	r.Stop()
	assert.Equal(t, int32(0), ran.Load())
}

func TestRunnerTaskErrorDoesNotKillWorker(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	r := NewRunner(1)
	r.Start(ctx)

	r.Enqueue(Task{Name: "boom", Run: func(ctx context.Context) error {
		return assert.AnError
	}})

	done := make(chan struct{})
	r.Enqueue(Task{Name: "after", Run: func(ctx context.Context) error {
		close(done)
		return nil
	}})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker stopped after a failing task")
	}

	cancel()
	r.Stop()
}
