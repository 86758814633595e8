// Package sync provides shared types for the sync functionality.
package sync

import (
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/go-git/go-billy/v5"

	"github.com/input-output-hk/catalyst-forge-libs/objfs/internal/metrics"
	"github.com/input-output-hk/catalyst-forge-libs/objfs/internal/retry"
	"github.com/input-output-hk/catalyst-forge-libs/objfs/internal/sync/resolver"
	"github.com/input-output-hk/catalyst-forge-libs/objfs/internal/sync/scanner"
	"github.com/input-output-hk/catalyst-forge-libs/objfs/objtypes"
)

// Config holds configuration for one directory operation.
type Config struct {
	// Policy decides what happens to existing targets
	Policy objtypes.ConflictPolicy

	// Filter selects the files that are enumerated
	Filter scanner.Filter

	// DryRun enumerates without executing
	DryRun bool
}

// Options holds the settings shared by every operation of a Manager.
type Options struct {
	// Filesystem is the local side of transfers
	Filesystem billy.Filesystem

	// Bulk is the retry policy of inline root prefix calls
	Bulk retry.Policy

	// PollTimeout bounds each wait of an idle worker on the queue
	PollTimeout time.Duration

	// Silent suppresses logs of byte-identical skips
	Silent bool

	// Diagnostics receives the failure listing of a failed batch
	Diagnostics io.Writer

	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

// tally counts successful outcomes across workers.
type tally struct {
	uploaded    atomic.Int64
	downloaded  atomic.Int64
	overwritten atomic.Int64
	skipped     atomic.Int64
	deleted     atomic.Int64
}

func (t *tally) add(o resolver.Outcome) {
	switch o {
	case resolver.Uploaded:
		t.uploaded.Add(1)
	case resolver.Downloaded:
		t.downloaded.Add(1)
	case resolver.Overwritten:
		t.overwritten.Add(1)
	case resolver.SkippedSame, resolver.SkippedExists:
		t.skipped.Add(1)
	}
}

// fill copies the counters into r.
func (t *tally) fill(r *objtypes.SyncReport) {
	r.Uploaded = int(t.uploaded.Load())
	r.Downloaded = int(t.downloaded.Load())
	r.Overwritten = int(t.overwritten.Load())
	r.Skipped = int(t.skipped.Load())
	r.Deleted = int(t.deleted.Load())
}
