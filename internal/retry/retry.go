// Package retry provides bounded, fixed-interval retries for store calls and tasks.
//
// There is no backoff or jitter: every attempt is separated by
// the same interval, and the final error is returned unchanged.
package retry

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/input-output-hk/catalyst-forge-libs/objfs/errors"
)

// Policy executes a callable with a fixed number of attempts.
type Policy struct {
	// Attempts is the total number of calls, including the first
	Attempts int

	// Interval is the delay between two attempts
	Interval time.Duration

	// Logger receives one warning per failed attempt
	Logger *slog.Logger

	// Retryable reports whether a failed attempt may be repeated.
	// Nil defaults to errors.IsRetryable.
	Retryable func(error) bool

	// OnRetry is called before sleeping after a failed attempt
	OnRetry func(op string, attempt int, err error)
}

// New creates a Policy with the given attempt ceiling and interval.
func New(attempts int, interval time.Duration, logger *slog.Logger) Policy {
	if attempts < 1 {
		attempts = 1
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return Policy{
		Attempts: attempts,
		Interval: interval,
		Logger:   logger,
	}
}

// Do calls fn until it succeeds, returns a non-retryable error, or the
// attempt ceiling is reached. op names the call in log records.
func (p Policy) Do(ctx context.Context, op string, fn func(context.Context) error) error {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}
	retryable := p.Retryable
	if retryable == nil {
		retryable = errors.IsRetryable
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = fn(ctx)
		if err == nil {
			return nil
		}

		if p.Logger != nil {
			p.Logger.WarnContext(ctx, "attempt failed",
				"op", op,
				"attempt", attempt,
				"max_attempts", attempts,
				"error", err,
			)
		}

		if attempt == attempts || !retryable(err) {
			return err
		}

		if p.OnRetry != nil {
			p.OnRetry(op, attempt, err)
		}

		if p.Interval <= 0 {
			continue
		}
		timer := time.NewTimer(p.Interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("context cancelled during retry: %w", ctx.Err())
		case <-timer.C:
		}
	}

	return err
}
