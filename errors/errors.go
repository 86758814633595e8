// Package errors defines the error values returned by objfs and its stores.
package errors

import (
	"errors"
	"fmt"
)

// Error records which operation failed and on which bucket or key.
type Error struct {
	// Op is the operation that failed (e.g., "upload", "download", "rmdir")
	Op string

	// Bucket is the bucket name (if applicable)
	Bucket string

	// Key is the remote key or local path (if applicable)
	Key string

	// Err is the underlying error
	Err error
}

func (e *Error) Error() string {
	if e.Bucket != "" && e.Key != "" {
		return fmt.Sprintf("objfs.%s %s/%s: %v", e.Op, e.Bucket, e.Key, e.Err)
	}
	if e.Bucket != "" {
		return fmt.Sprintf("objfs.%s bucket %s: %v", e.Op, e.Bucket, e.Err)
	}
	if e.Key != "" {
		return fmt.Sprintf("objfs.%s %s: %v", e.Op, e.Key, e.Err)
	}
	return fmt.Sprintf("objfs.%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// WithBucket sets the bucket and returns e.
func (e *Error) WithBucket(bucket string) *Error {
	e.Bucket = bucket
	return e
}

// WithKey sets the remote key or local path and returns e.
func (e *Error) WithKey(key string) *Error {
	e.Key = key
	return e
}

// WithMessage prefixes the wrapped error with message.
func (e *Error) WithMessage(message string) *Error {
	e.Err = fmt.Errorf("%s: %w", message, e.Err)
	return e
}

// NewError wraps err for op.
func NewError(op string, err error) *Error {
	return &Error{
		Op:  op,
		Err: err,
	}
}

// NewObjectError wraps err for op on bucket/key.
func NewObjectError(op, bucket, key string, err error) *Error {
	return &Error{
		Op:     op,
		Bucket: bucket,
		Key:    key,
		Err:    err,
	}
}

// Sentinels matched with errors.Is.
var (
	ErrObjectNotFound    = errors.New("objfs: object not found")
	ErrAccessDenied      = errors.New("objfs: access denied")
	ErrInvalidInput      = errors.New("objfs: invalid input")
	ErrInvalidObjectKey  = errors.New("objfs: invalid object key")
	ErrInvalidBucketName = errors.New("objfs: invalid bucket name")

	// ErrLocalExists is returned when a download would replace a local file.
	ErrLocalExists = errors.New("objfs: local file exists")

	// ErrNotDirectory is returned when a directory source is a plain file.
	ErrNotDirectory = errors.New("objfs: not a directory")

	// ErrUnsupported is returned for remote to remote transfers.
	ErrUnsupported = errors.New("objfs: not supported")

	// ErrQueueClosed is returned by Put on a closed task queue.
	ErrQueueClosed = errors.New("objfs: task queue closed")
)

// IsObjectNotFound matches both the sentinel and a KindNotFound status.
func IsObjectNotFound(err error) bool {
	return errors.Is(err, ErrObjectNotFound) || KindOf(err) == KindNotFound
}

// IsInvalidInput reports whether err rejects a caller-supplied argument.
func IsInvalidInput(err error) bool {
	return errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrInvalidObjectKey) ||
		errors.Is(err, ErrInvalidBucketName)
}

// IsLocalExists reports whether a local destination was in the way.
func IsLocalExists(err error) bool {
	return errors.Is(err, ErrLocalExists)
}
