// Package resolver applies a conflict policy to single file transfers.
//
// Uploads run a small state machine keyed on the error kind of an
// insert-only put. Downloads apply the same policy to the local target.
package resolver

import (
	"context"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/go-git/go-billy/v5"

	"github.com/input-output-hk/catalyst-forge-libs/objfs/errors"
	"github.com/input-output-hk/catalyst-forge-libs/objfs/objtypes"
	"github.com/input-output-hk/catalyst-forge-libs/objfs/store"
)

// Outcome is what a successful transfer attempt did.
type Outcome int

const (
	// Failed means the attempt returned an error
	Failed Outcome = iota

	// Uploaded wrote a new remote object
	Uploaded

	// Overwritten replaced an existing target
	Overwritten

	// SkippedSame found a byte-identical remote object
	SkippedSame

	// SkippedExists left an existing target alone under ConflictSkip
	SkippedExists

	// Downloaded wrote a new local file
	Downloaded
)

// String returns the lowercase name of the outcome.
func (o Outcome) String() string {
	switch o {
	case Uploaded:
		return "uploaded"
	case Overwritten:
		return "overwritten"
	case SkippedSame:
		return "skipped_same"
	case SkippedExists:
		return "skipped_exists"
	case Downloaded:
		return "downloaded"
	default:
		return "failed"
	}
}

// Skipped reports whether the outcome left the target untouched.
func (o Outcome) Skipped() bool {
	return o == SkippedSame || o == SkippedExists
}

// Fetcher downloads one object to a local path.
type Fetcher interface {
	Fetch(ctx context.Context, key, localPath string) error
}

// Resolver runs single transfer attempts under one conflict policy.
type Resolver struct {
	store   store.Store
	fetcher Fetcher
	fs      billy.Filesystem
	policy  objtypes.ConflictPolicy
	silent  bool
	logger  *slog.Logger

	// replaced holds local paths removed by an overwrite whose fetch has
	// not succeeded yet; a later attempt on them is still an overwrite.
	replaced sync.Map
}

// New creates a Resolver. With silent set, byte-identical skips are not logged.
func New(
	s store.Store,
	fetcher Fetcher,
	fs billy.Filesystem,
	policy objtypes.ConflictPolicy,
	silent bool,
	logger *slog.Logger,
) *Resolver {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Resolver{
		store:   s,
		fetcher: fetcher,
		fs:      fs,
		policy:  policy,
		silent:  silent,
		logger:  logger,
	}
}

// Policy returns the conflict policy of the resolver.
func (r *Resolver) Policy() objtypes.ConflictPolicy {
	return r.policy
}

// Upload makes one attempt to copy localPath to key:
//
//  1. put insert-only
//  2. a byte-identical object is a successful no-op
//  3. an existing object is skipped under ConflictSkip, replaced under
//     ConflictOverwrite, and a failure under ConflictError
//
// Any other error is returned as is.
func (r *Resolver) Upload(ctx context.Context, localPath, key string) (Outcome, error) {
	err := r.store.PutObject(ctx, store.PutRequest{Key: key, LocalPath: localPath, InsertOnly: true})

	switch errors.KindOf(err) {
	case errors.KindOK:
		r.logger.InfoContext(ctx, "uploaded", "path", localPath, "key", key)
		return Uploaded, nil

	case errors.KindSameFile:
		if !r.silent {
			r.logger.InfoContext(ctx, "skipped: same file on remote", "key", key)
		}
		return SkippedSame, nil

	case errors.KindExists:
		switch r.policy {
		case objtypes.ConflictSkip:
			r.logger.InfoContext(ctx, "skipped: exists", "key", key)
			return SkippedExists, nil
		case objtypes.ConflictOverwrite:
			if err := r.overwrite(ctx, localPath, key); err != nil {
				return Failed, err
			}
			r.logger.InfoContext(ctx, "overwritten", "path", localPath, "key", key)
			return Overwritten, nil
		}
	}

	return Failed, err
}

// overwrite puts localPath over key. On an offset rollback the remote object
// is deleted and the original error returned, so the next attempt writes to
// an empty target.
func (r *Resolver) overwrite(ctx context.Context, localPath, key string) error {
	err := r.store.PutObject(ctx, store.PutRequest{Key: key, LocalPath: localPath})

	switch errors.KindOf(err) {
	case errors.KindOK, errors.KindSameFile:
		return nil
	case errors.KindOffsetRollback:
		r.logger.WarnContext(ctx, "offset rollback on overwrite, removing remote object", "key", key)
		if derr := r.store.DeleteObject(ctx, key); derr != nil {
			r.logger.WarnContext(ctx, "failed to remove remote object", "key", key, "error", derr)
		}
	}
	return err
}

// Download makes one attempt to copy key to localPath. An existing local file
// fails the attempt with ErrLocalExists under ConflictError, is kept under
// ConflictSkip, and is removed first under ConflictOverwrite.
func (r *Resolver) Download(ctx context.Context, key, localPath string) (Outcome, error) {
	outcome := Downloaded

	if _, err := r.fs.Stat(localPath); err == nil {
		switch r.policy {
		case objtypes.ConflictSkip:
			r.logger.InfoContext(ctx, "skipped: local file exists", "path", localPath)
			return SkippedExists, nil
		case objtypes.ConflictOverwrite:
			if err := r.fs.Remove(localPath); err != nil {
				return Failed, errors.NewError("download", err).WithKey(localPath)
			}
			r.replaced.Store(localPath, struct{}{})
			outcome = Overwritten
		default:
			return Failed, errors.NewError("download", errors.ErrLocalExists).WithKey(localPath)
		}
	} else if !os.IsNotExist(err) {
		return Failed, errors.NewError("download", err).WithKey(localPath)
	} else if _, ok := r.replaced.Load(localPath); ok {
		outcome = Overwritten
	}

	if err := r.fetcher.Fetch(ctx, key, localPath); err != nil {
		return Failed, err
	}
	r.replaced.Delete(localPath)
	r.logger.InfoContext(ctx, "downloaded", "key", key, "path", localPath)
	return outcome, nil
}
