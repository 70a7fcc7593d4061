package worker

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/imobflow/imobflow/internal/telemetry"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// ErrStopped is returned by Submit once Stop has been called.
var ErrStopped = errors.New("worker pool is stopped")

// Task is a unit of background work. The context is cancelled when the pool
// is stopped and its deadline passes.
type Task func(ctx context.Context) error

// SubmitOption customises a single submitted task.
type SubmitOption func(*submission)

type submission struct {
	onDrop func(ctx context.Context)
}

// OnDrop registers fn to run when the task is discarded before it started
// because the pool stopped. fn receives a context that is never cancelled.
func OnDrop(fn func(ctx context.Context)) SubmitOption {
	return func(s *submission) { s.onDrop = fn }
}

// Pool runs fire-and-forget tasks on goroutines detached from the request
// that submitted them, bounded by a concurrency limit.
type Pool struct {
	mu      sync.Mutex
	stopped bool

	ctx    context.Context
	cancel context.CancelFunc
	sem    chan struct{}
	wg     sync.WaitGroup
}

// NewPool creates a pool running at most size tasks at once. Tasks beyond
// the limit wait for a free slot on their own goroutine.
func NewPool(size int) *Pool {
	if size <= 0 {
		size = 16
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		ctx:    ctx,
		cancel: cancel,
		sem:    make(chan struct{}, size),
	}
}

// Submit schedules task under name. logger fields from parent (request id,
// tenant id) are carried into the task context; cancellation of parent is not.
func (p *Pool) Submit(parent context.Context, name string, task Task, opts ...SubmitOption) error {
	var sub submission
	for _, opt := range opts {
		opt(&sub)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stopped {
		return ErrStopped
	}

	logger := zerolog.Ctx(parent).With().Str("task", name).Logger()
	ctx := logger.WithContext(p.ctx)

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()

		select {
		case p.sem <- struct{}{}:
			defer func() { <-p.sem }()
		case <-ctx.Done():
		}

		// a slot freed by the cancellation itself does not count
		if ctx.Err() != nil {
			logger.Warn().Msg("Task dropped, pool stopping")
			if sub.onDrop != nil {
				sub.onDrop(context.WithoutCancel(ctx))
			}
			return
		}

		p.run(ctx, logger, task)
	}()

	return nil
}

func (p *Pool) run(ctx context.Context, logger zerolog.Logger, task Task) {
	metrics := telemetry.GetMetrics()
	metrics.ActiveTasks.Add(ctx, 1)
	defer metrics.ActiveTasks.Add(ctx, -1)

	started := time.Now()
	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic: %v", r)
				logger.Error().Str("stack", string(debug.Stack())).Msg("Task panicked")
			}
		}()
		return task(ctx)
	}()

	if err != nil {
		logger.Error().Err(err).Dur("duration", time.Since(started)).Msg("Task failed")
		return
	}
	logger.Debug().Dur("duration", time.Since(started)).Msg("Task finished")
}

// Stop rejects new tasks and waits for running ones. If ctx expires first,
// running tasks are cancelled and Stop returns ctx.Err().
func (p *Pool) Stop(ctx context.Context) error {
	p.mu.Lock()
	p.stopped = true
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.cancel()
		log.Info().Msg("Worker pool drained")
		return nil
	case <-ctx.Done():
		p.cancel()
		<-done
		return ctx.Err()
	}
}

// Wait blocks until every submitted task has finished. Intended for tests.
func (p *Pool) Wait() {
	p.wg.Wait()
}
