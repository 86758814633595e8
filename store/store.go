// Package store defines the remote object store collaborator used by objfs.
//
// Every method performs exactly one remote call. Failures carry an
// *errors.StatusError so callers can switch on errors.KindOf instead of
// parsing messages. Entries returned by List are already tagged as files or
// directories by the adapter.
package store

import (
	"context"
	"time"

	"github.com/input-output-hk/catalyst-forge-libs/objfs/objtypes"
)

// Store is a hierarchical object store with prefix-style directories.
type Store interface {
	Lister

	// PutObject uploads the local file at req.LocalPath to req.Key.
	// With InsertOnly set, an existing key yields KindExists, or KindSameFile
	// when the stored content is identical.
	PutObject(ctx context.Context, req PutRequest) error

	// StatObject returns metadata about a single object.
	StatObject(ctx context.Context, key string) (*objtypes.ObjectInfo, error)

	// SignURL returns a download URL for key that stays valid for expiry.
	SignURL(ctx context.Context, key string, expiry time.Duration) (string, error)

	// DeleteObject removes a single object.
	DeleteObject(ctx context.Context, key string) error

	// CreatePrefix creates a directory marker. An existing prefix is not an error.
	CreatePrefix(ctx context.Context, key string) error

	// DeletePrefix removes a directory marker. A missing prefix is not an error.
	DeletePrefix(ctx context.Context, key string) error
}

// Lister performs one listing call.
type Lister interface {
	// List returns one page of the direct children of req.Prefix.
	List(ctx context.Context, req ListRequest) (*Page, error)
}

// ListRequest describes one listing call.
type ListRequest struct {
	// Prefix is the directory to list, with a trailing separator
	Prefix string

	// Filter restricts results to names starting with it
	Filter string

	// Cursor is the continuation token of the previous page, empty for the first
	Cursor string

	// Limit is the maximum number of entries to return, 0 for the backend default
	Limit int
}

// Page is one page of a listing call. Backends report continuation in one of
// two shapes: HasMore with Context, or ListOver with the cursor derived from
// the page itself. Exactly one of HasMore and ListOver is set.
type Page struct {
	// Entries is the page content in store order
	Entries []objtypes.Entry

	// FileCount and DirCount are nil when the backend does not report them
	FileCount *int
	DirCount  *int

	// HasMore is set by backends that report has_more/context
	HasMore *bool

	// ListOver is set by backends that report listover
	ListOver *bool

	// Context is the continuation token, possibly empty for ListOver backends
	Context string
}

// PutRequest describes one upload call.
type PutRequest struct {
	// Key is the destination key
	Key string

	// LocalPath is the source file on the client's filesystem
	LocalPath string

	// InsertOnly fails the call when Key already exists
	InsertOnly bool
}
