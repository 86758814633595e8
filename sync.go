// Package objfs provides the public API for directory operations.
package objfs

import (
	"context"
	"path"
	"strings"

	"github.com/input-output-hk/catalyst-forge-libs/objfs/errors"
	"github.com/input-output-hk/catalyst-forge-libs/objfs/internal/sync/scanner"
	syncpkg "github.com/input-output-hk/catalyst-forge-libs/objfs/internal/sync/sync"
	"github.com/input-output-hk/catalyst-forge-libs/objfs/internal/validation"
	"github.com/input-output-hk/catalyst-forge-libs/objfs/objtypes"
)

// CopyDir copies a directory tree between the local filesystem and the
// store. The side prefixed with "remote:" names the remote directory; the
// direction follows from which side carries it.
//
// Example:
//
//	report, err := client.CopyDir(ctx, "./site", "remote:www/", objtypes.ConflictSkip)
//	if err != nil {
//	    return fmt.Errorf("publish failed: %w", err)
//	}
//	fmt.Printf("uploaded %d, skipped %d\n", report.Uploaded, report.Skipped)
func (c *Client) CopyDir(
	ctx context.Context,
	src, dst string,
	policy objtypes.ConflictPolicy,
	opts ...objtypes.DirOption,
) (*objtypes.SyncReport, error) {
	src, srcRemote := splitRemote(src)
	dst, dstRemote := splitRemote(dst)

	switch {
	case srcRemote && dstRemote:
		return nil, errors.NewError("copyDir", errors.ErrUnsupported).
			WithMessage("remote to remote copy is not supported")
	case srcRemote:
		return c.DownloadDir(ctx, src, dst, policy, opts...)
	case dstRemote:
		return c.UploadDir(ctx, src, dst, policy, opts...)
	}
	return nil, errors.NewError("copyDir", errors.ErrInvalidInput).
		WithMessage("one of source and destination must start with " + RemotePrefix)
}

// UploadDir copies the local directory local into the remote directory
// remote.
//
// Like rsync, a local path without a trailing "/" copies the directory
// itself: "site" into "www/" lands in "www/site/". With a trailing "/" only
// its contents are copied. Symbolic links are skipped.
//
// The whole tree is enumerated before any transfer starts. Every file and
// directory becomes one task, executed by the worker pool with per-task
// retries. Failed tasks never stop their siblings; when any task fails the
// returned error is an *errors.AggregateError and the report counts what did
// succeed.
func (c *Client) UploadDir(
	ctx context.Context,
	local, remote string,
	policy objtypes.ConflictPolicy,
	opts ...objtypes.DirOption,
) (*objtypes.SyncReport, error) {
	cfg, err := dirConfig(policy, opts)
	if err != nil {
		return nil, errors.NewError("uploadDir", err)
	}

	copyRoot := !strings.HasSuffix(local, "/")
	localDir := c.localPath(local)

	info, err := c.fs.Stat(localDir)
	if err != nil {
		return nil, errors.NewError("uploadDir", err).WithKey(localDir)
	}
	if !info.IsDir() {
		return nil, errors.NewError("uploadDir", errors.ErrNotDirectory).WithKey(localDir)
	}

	remoteDir := dirKey(remote)
	if copyRoot {
		if base := path.Base(local); base != "." && base != ".." && base != "/" {
			remoteDir += base + "/"
		}
	}
	if err := validation.ValidateDirKey(remoteDir); err != nil {
		return nil, errors.NewError("uploadDir", errors.ErrInvalidObjectKey).
			WithKey(remoteDir).
			WithMessage(err.Error())
	}

	c.logger.InfoContext(ctx, "uploading directory", "source", localDir, "target", remoteDir, "policy", policy.String())
	return c.manager.UploadDir(ctx, localDir, remoteDir, cfg)
}

// DownloadDir copies the contents of the remote directory remote into the
// local directory local, creating it and every subdirectory as needed.
// Failures are reported the same way as UploadDir.
func (c *Client) DownloadDir(
	ctx context.Context,
	remote, local string,
	policy objtypes.ConflictPolicy,
	opts ...objtypes.DirOption,
) (*objtypes.SyncReport, error) {
	cfg, err := dirConfig(policy, opts)
	if err != nil {
		return nil, errors.NewError("downloadDir", err)
	}

	remoteDir := dirKey(remote)
	if err := validation.ValidateDirKey(remoteDir); err != nil {
		return nil, errors.NewError("downloadDir", errors.ErrInvalidObjectKey).
			WithKey(remoteDir).
			WithMessage(err.Error())
	}
	if local == "" {
		local = "."
	}
	localDir := c.localPath(local)

	c.logger.InfoContext(ctx, "downloading directory", "source", remoteDir, "target", localDir, "policy", policy.String())
	return c.manager.DownloadDir(ctx, remoteDir, localDir, cfg)
}

// dirConfig applies opts and converts them to the settings of one operation.
func dirConfig(policy objtypes.ConflictPolicy, opts []objtypes.DirOption) (*syncpkg.Config, error) {
	dc := &objtypes.DirConfig{}
	for _, opt := range opts {
		opt(dc)
	}

	filter := scanner.Filter{Include: dc.Include, Exclude: dc.Exclude}
	if err := filter.Validate(); err != nil {
		return nil, errors.NewError("filter", errors.ErrInvalidInput).WithMessage(err.Error())
	}

	return &syncpkg.Config{
		Policy: policy,
		Filter: filter,
		DryRun: dc.DryRun,
	}, nil
}
