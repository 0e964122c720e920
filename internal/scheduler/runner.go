package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Task is one unit of asynchronous work.
type Task struct {
	Name string
	Run  func(ctx context.Context) error
}

// Runner is a fixed-size worker pool. Backups for different scopes are
// independent by construction (disjoint backup ids and storage keys), so
// workers execute tasks concurrently with no cross-task locking.
type Runner struct {
	workers int

	mu      sync.Mutex
	queue   chan Task
	timers  map[*time.Timer]struct{}
	started bool

	wg sync.WaitGroup
}

func NewRunner(workers int) *Runner {
	if workers < 1 {
		workers = 1
	}
	return &Runner{
		workers: workers,
		queue:   make(chan Task, 64),
		timers:  make(map[*time.Timer]struct{}),
	}
}

// Start launches the worker pool. Workers drain the queue until ctx is done.
func (r *Runner) Start(ctx context.Context) {
	r.mu.Lock()
	if r.started {
		r.mu.Unlock()
		return
	}
	r.started = true
	r.mu.Unlock()

	for i := 0; i < r.workers; i++ {
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case task := <-r.queue:
					r.execute(ctx, task)
				}
			}
		}()
	}
}

func (r *Runner) execute(ctx context.Context, task Task) {
	log.Debug().Str("task", task.Name).Msg("task started")
	if err := task.Run(ctx); err != nil {
		log.Error().Str("task", task.Name).Err(err).Msg("task failed")
		return
	}
	log.Debug().Str("task", task.Name).Msg("task finished")
}

// Enqueue queues a task for the next free worker.
func (r *Runner) Enqueue(task Task) {
	r.queue <- task
}

// EnqueueAfter queues a task no earlier than delay from now. There is no
// exact-time guarantee; the task runs when a worker picks it up.
func (r *Runner) EnqueueAfter(delay time.Duration, task Task) {
	if delay <= 0 {
		r.Enqueue(task)
		return
	}
	var timer *time.Timer
	timer = time.AfterFunc(delay, func() {
		r.mu.Lock()
		delete(r.timers, timer)
		r.mu.Unlock()
		r.Enqueue(task)
	})
	r.mu.Lock()
	r.timers[timer] = struct{}{}
	r.mu.Unlock()
}

// Stop cancels pending delayed tasks and waits for workers to drain. The
// context passed to Start must be cancelled first.
func (r *Runner) Stop() {
	r.mu.Lock()
	for timer := range r.timers {
		timer.Stop()
	}
	r.timers = map[*time.Timer]struct{}{}
	r.mu.Unlock()

	r.wg.Wait()
}
