package errors

import "fmt"

// AggregateError summarizes the independent failures of one batch operation.
type AggregateError struct {
	// Op is the batch operation (e.g., "uploadDir")
	Op string

	// Errs holds the last error of every failed task, in report order
	Errs []error
}

// Error implements the error interface.
func (e *AggregateError) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("objfs.%s: %d entries failed", e.Op, len(e.Errs))
	}
	return fmt.Sprintf("%d entries failed", len(e.Errs))
}

// Count returns the number of failed tasks.
func (e *AggregateError) Count() int {
	return len(e.Errs)
}

// Unwrap exposes the member errors to errors.Is and errors.As.
func (e *AggregateError) Unwrap() []error {
	return e.Errs
}
