package errors

import (
	"context"
	"errors"
	"fmt"
)

// Kind classifies a failure so callers can switch on it instead of
// inspecting error messages or raw status codes.
type Kind int

const (
	// KindOK means no failure.
	KindOK Kind = iota

	// KindSameFile means the upload matched the stored object byte for byte.
	KindSameFile

	// KindExists means an insert-only write hit an existing object.
	KindExists

	// KindOffsetRollback is the backend's transient corruption on overwrite.
	// The object must be deleted before the write can succeed.
	KindOffsetRollback

	// KindNotFound means the object or prefix does not exist.
	KindNotFound

	// KindAccessDenied means the credentials lack permission.
	KindAccessDenied

	// KindInvalid means the request was rejected as malformed.
	KindInvalid

	// KindLocal means a local precondition failed (destination exists,
	// source is not a directory, unsupported direction).
	KindLocal

	// KindProtocol covers every other store or transport failure.
	KindProtocol
)

// String returns the lowercase name of the kind.
func (k Kind) String() string {
	switch k {
	case KindOK:
		return "ok"
	case KindSameFile:
		return "same_file"
	case KindExists:
		return "exists"
	case KindOffsetRollback:
		return "offset_rollback"
	case KindNotFound:
		return "not_found"
	case KindAccessDenied:
		return "access_denied"
	case KindInvalid:
		return "invalid"
	case KindLocal:
		return "local"
	default:
		return "protocol"
	}
}

// Status codes reported by COS-style backends.
const (
	// CodeOK is a successful call.
	CodeOK = 0

	// CodeExists is returned by an insert-only upload when the key exists.
	CodeExists = -177

	// CodePrefixExists is returned when creating a prefix that exists.
	CodePrefixExists = -178

	// CodePrefixNotFound is returned when deleting a prefix that does not exist.
	CodePrefixNotFound = -197

	// CodeSameFile is returned when the upload is identical to the stored object.
	CodeSameFile = -4018

	// CodeOffsetRollback is the offset rollback corruption on overwrite.
	CodeOffsetRollback = -4024
)

// StatusError is a non-zero status returned by a store call.
type StatusError struct {
	// Kind is the classification of the status
	Kind Kind

	// Code is the numeric status code, or 0 when the backend has none
	Code int

	// Message is the backend message
	Message string
}

// Error implements the error interface.
func (e *StatusError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("status %d (%s): %s", e.Code, e.Kind, e.Message)
	}
	return fmt.Sprintf("status %s: %s", e.Kind, e.Message)
}

// Is matches the sentinel that corresponds to the status kind.
func (e *StatusError) Is(target error) bool {
	switch target {
	case ErrObjectNotFound:
		return e.Kind == KindNotFound
	case ErrAccessDenied:
		return e.Kind == KindAccessDenied
	case ErrInvalidInput:
		return e.Kind == KindInvalid
	}
	return false
}

// NewStatusError creates a StatusError of the given kind.
func NewStatusError(kind Kind, code int, message string) *StatusError {
	return &StatusError{Kind: kind, Code: code, Message: message}
}

// FromCode maps a COS-style numeric status to a StatusError.
// It returns nil for CodeOK.
func FromCode(code int, message string) error {
	var kind Kind
	switch code {
	case CodeOK:
		return nil
	case CodeSameFile:
		kind = KindSameFile
	case CodeExists, CodePrefixExists:
		kind = KindExists
	case CodeOffsetRollback:
		kind = KindOffsetRollback
	case CodePrefixNotFound:
		kind = KindNotFound
	default:
		kind = KindProtocol
	}
	return NewStatusError(kind, code, message)
}

// KindOf classifies err. A nil error is KindOK. Local precondition
// sentinels are KindLocal. Anything unrecognized is KindProtocol.
func KindOf(err error) Kind {
	if err == nil {
		return KindOK
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Kind
	}

	switch {
	case errors.Is(err, ErrLocalExists),
		errors.Is(err, ErrNotDirectory),
		errors.Is(err, ErrUnsupported):
		return KindLocal
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrInvalidObjectKey), errors.Is(err, ErrInvalidBucketName):
		return KindInvalid
	case errors.Is(err, ErrObjectNotFound):
		return KindNotFound
	case errors.Is(err, ErrAccessDenied):
		return KindAccessDenied
	}
	return KindProtocol
}

// IsRetryable reports whether another attempt could change the outcome of err.
// Local preconditions, invalid input, existing objects, and cancellation are final.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	switch KindOf(err) {
	case KindLocal, KindInvalid, KindExists, KindSameFile:
		return false
	}
	return true
}
