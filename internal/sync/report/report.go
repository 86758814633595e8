// Package report merges per-worker failures into one aggregate result.
package report

import (
	"fmt"
	"io"

	"github.com/input-output-hk/catalyst-forge-libs/objfs/errors"
	"github.com/input-output-hk/catalyst-forge-libs/objfs/internal/sync/task"
)

// Failure records a task that did not succeed after all of its attempts.
type Failure struct {
	// Worker is the index of the worker that ran the task
	Worker int

	// Task is the failed task
	Task task.Task

	// Err is the error of the last attempt
	Err error
}

// Merge concatenates per-worker failure lists in worker-index order,
// preserving append order within each list.
func Merge(perWorker [][]Failure) []Failure {
	total := 0
	for _, list := range perWorker {
		total += len(list)
	}
	if total == 0 {
		return nil
	}

	merged := make([]Failure, 0, total)
	for _, list := range perWorker {
		merged = append(merged, list...)
	}
	return merged
}

// Aggregate writes a listing of every failure to w and returns a single
// *errors.AggregateError carrying them. It returns nil when there are none.
// Completed tasks are never undone.
func Aggregate(w io.Writer, op string, failures []Failure) error {
	if len(failures) == 0 {
		return nil
	}

	if w != nil {
		fmt.Fprintln(w, "=== FAILED LIST ===")
		for _, f := range failures {
			fmt.Fprintf(w, " %s => %v\n", f.Task, f.Err)
		}
	}

	errs := make([]error, len(failures))
	for i, f := range failures {
		errs[i] = errors.NewError(f.Task.Op.String(), f.Err).WithKey(f.Task.Source)
	}
	return &errors.AggregateError{Op: op, Errs: errs}
}
