// Package executor drains a task queue with a fixed pool of workers.
//
// Every worker retries its own task independently and keeps a private list
// of terminal failures. Failures never stop the other workers; the lists are
// merged only after every worker has returned.
package executor

import (
	"context"
	"io"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/input-output-hk/catalyst-forge-libs/objfs/internal/metrics"
	"github.com/input-output-hk/catalyst-forge-libs/objfs/internal/retry"
	"github.com/input-output-hk/catalyst-forge-libs/objfs/internal/sync/report"
	"github.com/input-output-hk/catalyst-forge-libs/objfs/internal/sync/task"
)

// DefaultWorkers is the pool size used when none is given.
const DefaultWorkers = 10

// Runner performs a single attempt of a task.
type Runner interface {
	Run(ctx context.Context, t task.Task) error
}

// RunnerFunc adapts a function to the Runner interface.
type RunnerFunc func(ctx context.Context, t task.Task) error

// Run calls f(ctx, t).
func (f RunnerFunc) Run(ctx context.Context, t task.Task) error {
	return f(ctx, t)
}

// Executor runs queued tasks with bounded concurrency.
type Executor struct {
	workers int
	policy  retry.Policy
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewExecutor creates an executor with the given pool size and retry policy.
func NewExecutor(workers int, policy retry.Policy, logger *slog.Logger, m *metrics.Metrics) *Executor {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Executor{
		workers: workers,
		policy:  policy,
		logger:  logger,
		metrics: m,
	}
}

// Workers returns the pool size.
func (e *Executor) Workers() int {
	return e.workers
}

// Result contains the outcome of one Execute call.
type Result struct {
	// Succeeded is the number of tasks that eventually succeeded
	Succeeded int

	// Failures lists terminal failures in worker-index, then append order
	Failures []report.Failure

	// Duration is how long the pool ran
	Duration time.Duration
}

// Total returns the number of tasks the pool dequeued.
func (r *Result) Total() int {
	return r.Succeeded + len(r.Failures)
}

// Execute starts the workers and blocks until the queue is exhausted.
// The queue should be fully populated and closed before Execute is called.
// A cancelled ctx stops workers from taking new tasks; the task in flight
// finishes and Execute returns the partial result with ctx's error.
func (e *Executor) Execute(ctx context.Context, q *task.Queue, runner Runner) (*Result, error) {
	startTime := time.Now()

	failures := make([][]report.Failure, e.workers)
	succeeded := make([]int, e.workers)

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < e.workers; i++ {
		g.Go(func() error {
			return e.work(gctx, i, q, runner, &failures[i], &succeeded[i])
		})
	}
	err := g.Wait()

	result := &Result{
		Failures: report.Merge(failures),
		Duration: time.Since(startTime),
	}
	for _, n := range succeeded {
		result.Succeeded += n
	}
	return result, err
}

// work is the loop of one worker. failed and succeeded are owned by this
// worker until Execute reads them after the barrier.
func (e *Executor) work(
	ctx context.Context,
	id int,
	q *task.Queue,
	runner Runner,
	failed *[]report.Failure,
	succeeded *int,
) error {
	e.logger.DebugContext(ctx, "worker starts", "worker", id)
	defer e.logger.DebugContext(ctx, "worker ends", "worker", id)

	policy := e.policy
	policy.OnRetry = func(op string, _ int, _ error) {
		e.metrics.RecordRetry(op)
	}

	for {
		t, ok, err := q.Get(ctx)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}

		start := time.Now()
		err = policy.Do(ctx, t.Op.String(), func(ctx context.Context) error {
			return runner.Run(ctx, t)
		})
		e.metrics.RecordTask(t.Op.String(), err == nil, time.Since(start))

		if err != nil {
			e.logger.ErrorContext(ctx, "task failed",
				"worker", id,
				"task", t.String(),
				"error", err,
			)
			*failed = append(*failed, report.Failure{Worker: id, Task: t, Err: err})
			continue
		}
		*succeeded++
	}
}
