// Package objfs provides functional options for configuring client behavior.
// These options follow the functional options pattern for clean, composable configuration.
package objfs

import (
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/input-output-hk/catalyst-forge-libs/objfs/objtypes"
)

// WithConcurrency sets the number of workers of directory operations.
// Default is 10 workers.
func WithConcurrency(concurrency int) objtypes.Option {
	return func(c *objtypes.ClientConfig) {
		if concurrency > 0 {
			c.Concurrency = concurrency
		}
	}
}

// WithRetryCount sets the number of attempts per task of directory
// operations, and of single-object transfers. Default is 6 attempts.
func WithRetryCount(attempts int) objtypes.Option {
	return func(c *objtypes.ClientConfig) {
		if attempts > 0 {
			c.RetryCount = attempts
		}
	}
}

// WithStatRetryCount sets the number of attempts of stat and list calls.
// Default is 3 attempts.
func WithStatRetryCount(attempts int) objtypes.Option {
	return func(c *objtypes.ClientConfig) {
		if attempts > 0 {
			c.StatRetryCount = attempts
		}
	}
}

// WithRetryInterval sets the fixed delay between two attempts.
// Default is one second. Zero retries immediately.
func WithRetryInterval(interval time.Duration) objtypes.Option {
	return func(c *objtypes.ClientConfig) {
		if interval >= 0 {
			c.RetryInterval = interval
		}
	}
}

// WithPollTimeout bounds each wait of an idle worker on the task queue.
func WithPollTimeout(timeout time.Duration) objtypes.Option {
	return func(c *objtypes.ClientConfig) {
		if timeout > 0 {
			c.PollTimeout = timeout
		}
	}
}

// WithSignExpiry sets how long signed download URLs stay valid.
// Default is 86400 seconds.
func WithSignExpiry(expiry time.Duration) objtypes.Option {
	return func(c *objtypes.ClientConfig) {
		if expiry > 0 {
			c.SignExpiry = expiry
		}
	}
}

// WithPageSize sets the listing page limit. Zero leaves it to the backend.
func WithPageSize(size int) objtypes.Option {
	return func(c *objtypes.ClientConfig) {
		if size >= 0 {
			c.PageSize = size
		}
	}
}

// WithSilent suppresses the log record of byte-identical upload skips.
func WithSilent(silent bool) objtypes.Option {
	return func(c *objtypes.ClientConfig) {
		c.Silent = silent
	}
}

// WithFilesystem sets the local filesystem used for transfers.
// If not specified, the OS filesystem is used and relative local paths are
// resolved against the working directory.
func WithFilesystem(filesystem billy.Filesystem) objtypes.Option {
	return func(c *objtypes.ClientConfig) {
		c.Filesystem = filesystem
	}
}

// WithLogger sets the structured logger. Nil discards all records.
func WithLogger(logger *slog.Logger) objtypes.Option {
	return func(c *objtypes.ClientConfig) {
		c.Logger = logger
	}
}

// WithHTTPClient sets the client used to fetch signed download URLs.
func WithHTTPClient(client *http.Client) objtypes.Option {
	return func(c *objtypes.ClientConfig) {
		c.HTTPClient = client
	}
}

// WithDiagnostics sets the writer that receives the failure listing of a
// failed directory operation. Default is os.Stderr; pass io.Discard to
// silence it.
func WithDiagnostics(w io.Writer) objtypes.Option {
	return func(c *objtypes.ClientConfig) {
		c.Diagnostics = w
	}
}

// WithMetricsRegisterer registers the client's Prometheus collectors on reg.
func WithMetricsRegisterer(reg prometheus.Registerer) objtypes.Option {
	return func(c *objtypes.ClientConfig) {
		c.MetricsRegisterer = reg
	}
}

// WithInclude keeps only the files matching one of patterns.
// Patterns are globs with "/" as separator: "*" and "?" match within one
// segment, "**" matches across segments, "[...]" and "{a,b}" are supported.
// A leading "**/" also matches at the root, and a pattern without "/" is
// matched against the file's base name.
func WithInclude(patterns ...string) objtypes.DirOption {
	return func(c *objtypes.DirConfig) {
		c.Include = append(c.Include, patterns...)
	}
}

// WithExclude drops the files matching one of patterns, using the syntax of
// WithInclude. A pattern ending in "/" prunes every directory it matches.
func WithExclude(patterns ...string) objtypes.DirOption {
	return func(c *objtypes.DirConfig) {
		c.Exclude = append(c.Exclude, patterns...)
	}
}

// WithDryRun enumerates the operation and reports the planned tasks without
// executing any of them.
func WithDryRun() objtypes.DirOption {
	return func(c *objtypes.DirConfig) {
		c.DryRun = true
	}
}
