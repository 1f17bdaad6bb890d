package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ErrPoolTimeout is returned by RunWithTimeout when the deadline elapses
// before the callable finishes. The callable itself is not terminated.
var ErrPoolTimeout = errors.New("worker pool call timed out")

// Fn is a unit of work executed by the runtime. Cooperative callables are
// expected to watch ctx; blocking callables may ignore it.
type Fn func(ctx context.Context) (any, error)

// PoolStats is a snapshot of worker pool counters for observability.
type PoolStats struct {
	Active     int64
	Completed  int64
	Failed     int64
	MinLatency time.Duration
	MaxLatency time.Duration
	AvgLatency time.Duration
}

// WorkerPool runs blocking callables on a bounded set of worker slots so
// they never stall the caller's goroutine beyond the wait for a slot.
// Queuing beyond the pool bound is the caller's responsibility.
type WorkerPool struct {
	sem    chan struct{}
	logger *slog.Logger

	mu         sync.Mutex
	active     int64
	completed  int64
	failed     int64
	minLatency time.Duration
	maxLatency time.Duration
	sumLatency time.Duration
}

// NewWorkerPool creates a pool with the given number of worker slots.
// A size of zero or less falls back to one slot.
func NewWorkerPool(size int, logger *slog.Logger) *WorkerPool {
	if size <= 0 {
		logger.Warn("invalid worker pool size, using default",
			"specified_size", size,
			"default_size", 1)
		size = 1
	}

	return &WorkerPool{
		sem:    make(chan struct{}, size),
		logger: logger,
	}
}

type outcome struct {
	result any
	err    error
}

// Run offloads fn to a worker slot and blocks until it finishes or ctx is
// done. When ctx is cancelled after dispatch, Run returns ctx.Err() but the
// callable continues to completion detached; its worker slot is released
// only when it actually returns. This is a known resource-leak risk for
// callables that never return.
func (p *WorkerPool) Run(ctx context.Context, fn Fn) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	select {
	case p.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	p.mu.Lock()
	p.active++
	p.mu.Unlock()
	poolActive.Inc()

	resCh := make(chan outcome, 1)

	// The callable gets a context detached from the caller's so an
	// abandoned call is not cancelled mid-flight.
	workCtx := context.WithoutCancel(ctx)

	go func() {
		start := time.Now()
		result, err := invoke(workCtx, fn)
		p.record(time.Since(start), err)
		resCh <- outcome{result: result, err: err}
	}()

	select {
	case out := <-resCh:
		return out.result, out.err
	case <-ctx.Done():
		p.logger.Warn("abandoning worker pool call, callable continues detached",
			"reason", ctx.Err())
		return nil, ctx.Err()
	}
}

// RunWithTimeout races fn against the given deadline. On expiry it returns
// ErrPoolTimeout to the caller without terminating the underlying worker.
func (p *WorkerPool) RunWithTimeout(ctx context.Context, timeout time.Duration, fn Fn) (any, error) {
	tctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	result, err := p.Run(tctx, fn)
	if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		return nil, fmt.Errorf("%w: deadline %s exceeded", ErrPoolTimeout, timeout)
	}
	return result, err
}

// Stats returns a snapshot of the pool's counters.
func (p *WorkerPool) Stats() PoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()

	stats := PoolStats{
		Active:     p.active,
		Completed:  p.completed,
		Failed:     p.failed,
		MinLatency: p.minLatency,
		MaxLatency: p.maxLatency,
	}
	if total := p.completed + p.failed; total > 0 {
		stats.AvgLatency = p.sumLatency / time.Duration(total)
	}
	return stats
}

// record updates counters after a callable returns. Calls abandoned by
// their waiter are still recorded here when they eventually finish.
func (p *WorkerPool) record(latency time.Duration, err error) {
	<-p.sem
	poolActive.Dec()
	poolLatency.Observe(latency.Seconds())

	p.mu.Lock()
	defer p.mu.Unlock()

	p.active--
	if err != nil {
		p.failed++
		poolCompleted.WithLabelValues("failed").Inc()
	} else {
		p.completed++
		poolCompleted.WithLabelValues("completed").Inc()
	}

	if p.minLatency == 0 || latency < p.minLatency {
		p.minLatency = latency
	}
	if latency > p.maxLatency {
		p.maxLatency = latency
	}
	p.sumLatency += latency
}

// invoke runs fn, converting a panic into an error so one misbehaving
// callable cannot take down a worker.
func invoke(ctx context.Context, fn Fn) (result any, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("callable panicked: %v", p)
		}
	}()
	return fn(ctx)
}
