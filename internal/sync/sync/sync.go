// Package sync provides the main sync orchestration logic.
//
// Every directory operation runs in three phases:
//  1. Enumeration: one sequential walk fills a task queue
//  2. Execution: a worker pool drains the queue with per-task retries
//  3. Aggregation: failures are listed and returned as one error
//
// Enumeration errors abort the operation before any task runs. Task
// failures never stop sibling tasks and completed tasks are never undone.
package sync

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/input-output-hk/catalyst-forge-libs/objfs/errors"
	"github.com/input-output-hk/catalyst-forge-libs/objfs/internal/sync/executor"
	"github.com/input-output-hk/catalyst-forge-libs/objfs/internal/sync/report"
	"github.com/input-output-hk/catalyst-forge-libs/objfs/internal/sync/resolver"
	"github.com/input-output-hk/catalyst-forge-libs/objfs/internal/sync/scanner"
	"github.com/input-output-hk/catalyst-forge-libs/objfs/internal/sync/task"
	"github.com/input-output-hk/catalyst-forge-libs/objfs/objtypes"
	"github.com/input-output-hk/catalyst-forge-libs/objfs/store"
)

// Manager coordinates enumeration, execution and aggregation.
type Manager struct {
	store    store.Store
	scanner  *scanner.Scanner
	executor *executor.Executor
	fetcher  resolver.Fetcher
	opts     Options
}

// NewManager creates a new sync manager with the provided components.
func NewManager(
	s store.Store,
	sc *scanner.Scanner,
	ex *executor.Executor,
	fetcher resolver.Fetcher,
	opts Options,
) *Manager {
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if opts.Diagnostics == nil {
		opts.Diagnostics = os.Stderr
	}
	return &Manager{
		store:    s,
		scanner:  sc,
		executor: ex,
		fetcher:  fetcher,
		opts:     opts,
	}
}

// UploadDir copies the local directory localDir into the remote directory
// remoteDir. remoteDir is created inline before enumeration.
func (m *Manager) UploadDir(ctx context.Context, localDir, remoteDir string, cfg *Config) (*objtypes.SyncReport, error) {
	startTime := time.Now()

	if !cfg.DryRun && remoteDir != "" {
		err := m.opts.Bulk.Do(ctx, "mkdir", func(ctx context.Context) error {
			return m.store.CreatePrefix(ctx, remoteDir)
		})
		if err != nil {
			return nil, errors.NewError("uploadDir", err).WithKey(remoteDir)
		}
	}

	q := task.NewQueue(m.opts.PollTimeout)
	n, err := m.scanner.ScanUpload(ctx, localDir, remoteDir, cfg.Filter, q)
	q.Close()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate %s: %w", localDir, err)
	}

	return m.run(ctx, "uploadDir", q, n, cfg, startTime)
}

// DownloadDir copies the remote directory remoteDir into the local directory
// localDir, creating local directories as they are discovered.
func (m *Manager) DownloadDir(ctx context.Context, remoteDir, localDir string, cfg *Config) (*objtypes.SyncReport, error) {
	startTime := time.Now()

	q := task.NewQueue(m.opts.PollTimeout)
	n, err := m.scanner.ScanDownload(ctx, remoteDir, localDir, cfg.Filter, q)
	q.Close()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate %s: %w", remoteDir, err)
	}

	return m.run(ctx, "downloadDir", q, n, cfg, startTime)
}

// RemoveTree deletes every object under remoteDir through the worker pool,
// then removes the prefixes one by one, deepest first. Prefix removal runs
// even when some file deletions failed; those prefixes then fail as well and
// are listed in the same aggregate error.
func (m *Manager) RemoveTree(ctx context.Context, remoteDir string, cfg *Config) (*objtypes.SyncReport, error) {
	startTime := time.Now()

	q := task.NewQueue(m.opts.PollTimeout)
	dirs, n, err := m.scanner.ScanDelete(ctx, remoteDir, q)
	q.Close()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate %s: %w", remoteDir, err)
	}

	if cfg.DryRun {
		rep := plan(q, n, startTime)
		for i := len(dirs) - 1; i >= 0; i-- {
			rep.Planned = append(rep.Planned, task.Rmdir(dirs[i]).String())
		}
		return rep, nil
	}

	counts := &tally{}
	result, execErr := m.executor.Execute(ctx, q, m.runner(nil, counts))

	rep := &objtypes.SyncReport{
		Tasks:     n,
		Succeeded: result.Succeeded,
		Failed:    len(result.Failures),
	}
	failures := result.Failures

	if execErr == nil {
		for i := len(dirs) - 1; i >= 0; i-- {
			if dirs[i] == "" {
				continue
			}
			t := task.Rmdir(dirs[i])
			rep.Tasks++
			err := m.opts.Bulk.Do(ctx, t.Op.String(), func(ctx context.Context) error {
				return m.store.DeletePrefix(ctx, t.Source)
			})
			if err != nil {
				m.opts.Logger.ErrorContext(ctx, "task failed", "task", t.String(), "error", err)
				failures = append(failures, report.Failure{Worker: -1, Task: t, Err: err})
				rep.Failed++
				continue
			}
			counts.deleted.Add(1)
			rep.Succeeded++
		}
	}

	counts.fill(rep)
	rep.Duration = time.Since(startTime)
	return rep, m.finish(ctx, "rmdir", rep, failures, execErr)
}

// run executes a populated queue and aggregates the outcome.
func (m *Manager) run(
	ctx context.Context,
	op string,
	q *task.Queue,
	n int,
	cfg *Config,
	startTime time.Time,
) (*objtypes.SyncReport, error) {
	if cfg.DryRun {
		return plan(q, n, startTime), nil
	}

	res := resolver.New(m.store, m.fetcher, m.opts.Filesystem, cfg.Policy, m.opts.Silent, m.opts.Logger)
	counts := &tally{}
	result, execErr := m.executor.Execute(ctx, q, m.runner(res, counts))

	rep := &objtypes.SyncReport{
		Tasks:     n,
		Succeeded: result.Succeeded,
		Failed:    len(result.Failures),
		Duration:  time.Since(startTime),
	}
	counts.fill(rep)
	return rep, m.finish(ctx, op, rep, result.Failures, execErr)
}

// finish logs the summary and turns failures into one aggregate error.
// Cancellation takes precedence over the aggregate.
func (m *Manager) finish(
	ctx context.Context,
	op string,
	rep *objtypes.SyncReport,
	failures []report.Failure,
	execErr error,
) error {
	m.opts.Logger.InfoContext(ctx, op+" finished",
		"tasks", rep.Tasks,
		"succeeded", rep.Succeeded,
		"failed", rep.Failed,
		"skipped", rep.Skipped,
		"duration", rep.Duration,
	)

	aggErr := report.Aggregate(m.opts.Diagnostics, op, failures)
	if aggErr != nil {
		m.opts.Metrics.RecordBatchFailure(op)
	}
	if execErr != nil {
		return fmt.Errorf("%s interrupted: %w", op, execErr)
	}
	return aggErr
}

// runner dispatches a task to the call that performs it. Outcomes are
// counted only for the attempt that succeeds.
func (m *Manager) runner(res *resolver.Resolver, counts *tally) executor.Runner {
	return executor.RunnerFunc(func(ctx context.Context, t task.Task) error {
		switch t.Op {
		case task.OpUpload:
			outcome, err := res.Upload(ctx, t.Source, t.Target)
			if err == nil {
				counts.add(outcome)
			}
			return err

		case task.OpDownload:
			outcome, err := res.Download(ctx, t.Source, t.Target)
			if err == nil {
				counts.add(outcome)
			}
			return err

		case task.OpMkdir:
			return m.store.CreatePrefix(ctx, t.Source)

		case task.OpDelete:
			err := m.store.DeleteObject(ctx, t.Source)
			if errors.KindOf(err) == errors.KindNotFound {
				err = nil
			}
			if err == nil {
				counts.deleted.Add(1)
			}
			return err
		}
		return fmt.Errorf("unsupported task %s", t)
	})
}

// plan drains q into a dry-run report.
func plan(q *task.Queue, n int, startTime time.Time) *objtypes.SyncReport {
	rep := &objtypes.SyncReport{Tasks: n}
	for {
		t, ok, err := q.Get(context.Background())
		if err != nil || !ok {
			break
		}
		rep.Planned = append(rep.Planned, t.String())
	}
	rep.Duration = time.Since(startTime)
	return rep
}
