// Package objtypes provides shared type definitions for the objfs module.
package objtypes

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/prometheus/client_golang/prometheus"
)

// Defaults applied by the client when an option is not set.
const (
	// DefaultConcurrency is the number of workers draining a task queue
	DefaultConcurrency = 10

	// DefaultRetryCount is the attempt ceiling for bulk transfer tasks
	DefaultRetryCount = 6

	// DefaultStatRetryCount is the attempt ceiling for single stat and list calls
	DefaultStatRetryCount = 3

	// DefaultRetryInterval is the fixed delay between attempts
	DefaultRetryInterval = time.Second

	// DefaultPollTimeout bounds how long an idle worker waits on the queue
	DefaultPollTimeout = time.Second

	// DefaultSignExpiry is the validity window of signed download URLs
	DefaultSignExpiry = 86400 * time.Second

	// DefaultPageSize is the number of entries requested per listing call
	DefaultPageSize = 1000
)

// ConflictPolicy decides what happens when a transfer target already exists.
// It is fixed for the lifetime of one directory operation.
type ConflictPolicy int

const (
	// ConflictError fails the task (default)
	ConflictError ConflictPolicy = iota

	// ConflictSkip leaves the existing target untouched and counts the task as done
	ConflictSkip

	// ConflictOverwrite replaces the existing target
	ConflictOverwrite
)

// String returns the lowercase name of the policy.
func (p ConflictPolicy) String() string {
	switch p {
	case ConflictSkip:
		return "skip"
	case ConflictOverwrite:
		return "overwrite"
	default:
		return "error"
	}
}

// ParseConflictPolicy parses "error", "skip" or "overwrite".
func ParseConflictPolicy(s string) (ConflictPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "error":
		return ConflictError, nil
	case "skip":
		return ConflictSkip, nil
	case "overwrite":
		return ConflictOverwrite, nil
	}
	return ConflictError, fmt.Errorf("unknown conflict policy %q", s)
}

// EntryType tags a listing entry as a file or a directory.
type EntryType int

const (
	// EntryFile is an object with content
	EntryFile EntryType = iota

	// EntryDirectory is a prefix
	EntryDirectory
)

// String returns "file" or "directory".
func (t EntryType) String() string {
	if t == EntryDirectory {
		return "directory"
	}
	return "file"
}

// Entry is one item of a directory listing.
type Entry struct {
	// Type is EntryFile or EntryDirectory
	Type EntryType

	// Name is the last path segment, without a trailing separator
	Name string

	// Key is the full remote key as reported by the store
	Key string

	// Size is the object size in bytes (0 for directories)
	Size int64

	// Created is the object creation time, zero when unknown
	Created time.Time

	// Hash is the content hash (empty for directories)
	Hash string
}

// IsFile reports whether the entry is a file.
func (e Entry) IsFile() bool {
	return e.Type == EntryFile
}

// NewEntry builds an Entry from a raw store item. The presence of a content
// hash is the only file/directory discriminator; store adapters must not
// tag entries any other way.
func NewEntry(key, hash string, size int64, created time.Time) Entry {
	entry := Entry{
		Name:    path.Base(strings.TrimSuffix(key, "/")),
		Key:     key,
		Created: created,
		Hash:    hash,
	}
	if hash == "" {
		entry.Type = EntryDirectory
		return entry
	}
	entry.Type = EntryFile
	entry.Size = size
	return entry
}

// DirectoryContents is the concatenation of every listing page for one prefix.
type DirectoryContents struct {
	// Path is the listed directory, with a trailing separator
	Path string

	// FileCount is the number of file entries
	FileCount int

	// DirCount is the number of directory entries
	DirCount int

	// Entries keeps page order, then within-page order
	Entries []Entry
}

// ObjectInfo contains metadata about a single remote object.
type ObjectInfo struct {
	// Key is the remote key
	Key string

	// Size is the object size in bytes
	Size int64

	// Created is when the object was created or last written
	Created time.Time

	// Hash is the content hash reported by the store
	Hash string

	// ContentType is the stored MIME type, if any
	ContentType string

	// SourceURL is the unsigned download URL
	SourceURL string

	// SignedURL is the time-limited download URL, set by Client.Stat
	SignedURL string
}

// SyncReport summarizes one directory operation.
type SyncReport struct {
	// Tasks is the number of tasks enumerated
	Tasks int

	// Succeeded is the number of tasks that eventually succeeded
	Succeeded int

	// Failed is the number of tasks that exhausted their attempts
	Failed int

	// Uploaded is the number of files written to the store
	Uploaded int

	// Downloaded is the number of files written locally
	Downloaded int

	// Deleted is the number of remote files and prefixes removed
	Deleted int

	// Skipped is the number of files left alone by policy or because they were identical
	Skipped int

	// Overwritten is the number of existing targets replaced
	Overwritten int

	// Duration is how long the operation took
	Duration time.Duration

	// Planned lists the enumerated tasks when the operation was a dry run
	Planned []string
}

// DirConfig holds per-call settings of a directory operation.
type DirConfig struct {
	// Include keeps only files matching one of these globs, when non-empty
	Include []string

	// Exclude drops files matching these globs; a trailing "/" prunes a directory
	Exclude []string

	// DryRun enumerates without transferring anything
	DryRun bool
}

// DirOption configures a single directory operation.
type DirOption func(*DirConfig)

// LsOptions controls the output of Client.Ls.
type LsOptions struct {
	// Detail prints size and creation time per entry
	Detail bool

	// Recursive descends into every subdirectory
	Recursive bool
}

// Configuration types for functional options

// ClientConfig holds configuration for the objfs client.
type ClientConfig struct {
	Concurrency       int
	RetryCount        int
	StatRetryCount    int
	RetryInterval     time.Duration
	PollTimeout       time.Duration
	SignExpiry        time.Duration
	PageSize          int
	Silent            bool
	Filesystem        billy.Filesystem // Local filesystem abstraction
	Logger            *slog.Logger
	HTTPClient        *http.Client
	Diagnostics       io.Writer // Receives failure listings of batch operations
	MetricsRegisterer prometheus.Registerer
}

// Option is a functional option for configuring the objfs client.
type Option func(*ClientConfig)
