// Package objfs provides the main client and single-object operations.
package objfs

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/input-output-hk/catalyst-forge-libs/objfs/errors"
	"github.com/input-output-hk/catalyst-forge-libs/objfs/internal/listing"
	"github.com/input-output-hk/catalyst-forge-libs/objfs/internal/sync/resolver"
	"github.com/input-output-hk/catalyst-forge-libs/objfs/internal/validation"
	"github.com/input-output-hk/catalyst-forge-libs/objfs/objtypes"
)

// lsTimeFormat is the creation time layout of detailed listings.
const lsTimeFormat = "2006-01-02 15:04:05"

// ListDir returns every entry of the remote directory p, following listing
// cursors until the store reports the last page.
//
// A path ending in "*" lists its parent and keeps only the names starting
// with the basename before the star:
//
//	contents, err := client.ListDir(ctx, "backup/db/10.6*")
func (c *Client) ListDir(ctx context.Context, p string) (*objtypes.DirectoryContents, error) {
	dir, filter := listing.SplitPattern(p)
	key := dirKey(dir)
	if err := validation.ValidateDirKey(key); err != nil {
		return nil, errors.NewError("list", errors.ErrInvalidObjectKey).
			WithKey(key).
			WithMessage(err.Error())
	}
	return c.lister.List(ctx, key, filter)
}

// lsItem is one pending unit of a recursive listing: a directory to print,
// or the blank line that follows a printed subtree.
type lsItem struct {
	path  string
	blank bool
}

// Ls writes the listing of the remote directory p to w.
//
// Each entry is one line: its name, with a trailing "/" for directories.
// With Detail set a line reads "./name: [size:N] [created_at:YYYY-MM-DD HH:MM:SS]"
// in local time. With Recursive set every directory is introduced by a
// "path:" header and subdirectories follow their parent, separated by blank
// lines. Directories are visited depth-first in listing order.
func (c *Client) Ls(ctx context.Context, w io.Writer, p string, opts objtypes.LsOptions) error {
	if p == "" {
		p = "/"
	}

	stack := []lsItem{{path: p}}
	for len(stack) > 0 {
		item := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if item.blank {
			if _, err := fmt.Fprintln(w); err != nil {
				return err
			}
			continue
		}

		contents, err := c.ListDir(ctx, item.path)
		if err != nil {
			return err
		}

		if opts.Recursive {
			if _, err := fmt.Fprintf(w, "%s:\n", item.path); err != nil {
				return err
			}
		}
		for _, entry := range contents.Entries {
			if err := writeEntry(w, entry, opts.Detail); err != nil {
				return err
			}
		}

		if !opts.Recursive || contents.DirCount == 0 {
			continue
		}
		if _, err := fmt.Fprintln(w); err != nil {
			return err
		}
		parent := strings.TrimRight(item.path, "/")
		for i := len(contents.Entries) - 1; i >= 0; i-- {
			entry := contents.Entries[i]
			if entry.IsFile() {
				continue
			}
			stack = append(stack, lsItem{blank: true}, lsItem{path: parent + "/" + entry.Name})
		}
	}
	return nil
}

func writeEntry(w io.Writer, entry objtypes.Entry, detail bool) error {
	suffix := ""
	if !entry.IsFile() {
		suffix = "/"
	}
	var err error
	if detail {
		_, err = fmt.Fprintf(w, "./%s%s: [size:%d] [created_at:%s]\n",
			entry.Name, suffix, entry.Size, entry.Created.Local().Format(lsTimeFormat))
	} else {
		_, err = fmt.Fprintln(w, entry.Name+suffix)
	}
	return err
}

// Stat returns metadata about the remote object p, including a download URL
// signed for the configured expiry. Both store calls go through the stat
// retry policy.
func (c *Client) Stat(ctx context.Context, p string) (*objtypes.ObjectInfo, error) {
	key := objectKey(p)
	if err := validation.ValidateObjectKey(key); err != nil {
		return nil, errors.NewError("stat", errors.ErrInvalidObjectKey).
			WithKey(key).
			WithMessage(err.Error())
	}

	var info *objtypes.ObjectInfo
	err := c.stat.Do(ctx, "stat", func(ctx context.Context) error {
		var err error
		info, err = c.store.StatObject(ctx, key)
		return err
	})
	if err != nil {
		return nil, errors.NewError("stat", err).WithKey(key)
	}

	err = c.stat.Do(ctx, "sign", func(ctx context.Context) error {
		var err error
		info.SignedURL, err = c.store.SignURL(ctx, key, c.config.SignExpiry)
		return err
	})
	if err != nil {
		return nil, errors.NewError("stat", err).WithKey(key)
	}
	return info, nil
}

// Download copies the remote object remote to the local path local.
//
// A local path of "." or one ending in "/" names a directory and receives
// the object under its own basename. An existing local file is an
// ErrLocalExists error unless overwrite is set, in which case it is replaced.
func (c *Client) Download(ctx context.Context, remote, local string, overwrite bool) error {
	key := objectKey(remote)
	if err := validation.ValidateObjectKey(key); err != nil {
		return errors.NewError("download", errors.ErrInvalidObjectKey).
			WithKey(key).
			WithMessage(err.Error())
	}

	if local == "." {
		local += "/"
	}
	if strings.HasSuffix(local, "/") {
		name := path.Base(key)
		if err := validation.ValidateEntryName(name); err != nil {
			return errors.NewError("download", err).WithKey(key)
		}
		if !validation.WithinRoot(local, local+name) {
			return errors.NewError("download", errors.ErrInvalidObjectKey).
				WithKey(key).
				WithMessage("object name escapes the target directory")
		}
		local += name
	}
	local = c.localPath(local)

	res := resolver.New(c.store, c.downloader, c.fs, policyFor(overwrite), c.config.Silent, c.logger)
	err := c.bulk.Do(ctx, "download", func(ctx context.Context) error {
		_, err := res.Download(ctx, key, local)
		return err
	})
	if err != nil {
		return errors.NewError("download", err).WithKey(key)
	}
	return nil
}

// Cat writes the content of the remote object remote to w and returns the
// number of bytes written. It is not retried, since w may already hold part
// of the content.
func (c *Client) Cat(ctx context.Context, w io.Writer, remote string) (int64, error) {
	key := objectKey(remote)
	if err := validation.ValidateObjectKey(key); err != nil {
		return 0, errors.NewError("cat", errors.ErrInvalidObjectKey).
			WithKey(key).
			WithMessage(err.Error())
	}
	return c.downloader.Stream(ctx, key, w)
}

// Upload copies the local file local to the remote path remote.
//
// A remote path ending in "/" names a directory and receives the file under
// its own basename. The upload is insert-only unless overwrite is set; a
// byte-identical remote object is a successful no-op either way.
func (c *Client) Upload(ctx context.Context, local, remote string, overwrite bool) error {
	if strings.HasSuffix(remote, "/") {
		remote += path.Base(strings.TrimRight(local, "/"))
	}
	key := objectKey(remote)
	if err := validation.ValidateObjectKey(key); err != nil {
		return errors.NewError("upload", errors.ErrInvalidObjectKey).
			WithKey(key).
			WithMessage(err.Error())
	}

	local = c.localPath(local)
	info, err := c.fs.Stat(local)
	if err != nil {
		return errors.NewError("upload", err).WithKey(local)
	}
	if info.IsDir() {
		return errors.NewError("upload", errors.ErrInvalidInput).
			WithKey(local).
			WithMessage("source is a directory, use UploadDir")
	}

	res := resolver.New(c.store, c.downloader, c.fs, policyFor(overwrite), c.config.Silent, c.logger)
	var outcome resolver.Outcome
	err = c.bulk.Do(ctx, "upload", func(ctx context.Context) error {
		var err error
		outcome, err = res.Upload(ctx, local, key)
		return err
	})
	if err != nil {
		return errors.NewError("upload", err).WithKey(key)
	}
	c.logger.DebugContext(ctx, "upload finished", "key", key, "outcome", outcome.String())
	return nil
}

// Copy copies one file between the local filesystem and the store. The side
// prefixed with "remote:" names the remote path:
//
//	err := client.Copy(ctx, "remote:reports/q3.csv", "./", false) // download
//	err := client.Copy(ctx, "q3.csv", "remote:reports/", true)     // upload
func (c *Client) Copy(ctx context.Context, src, dst string, overwrite bool) error {
	src, srcRemote := splitRemote(src)
	dst, dstRemote := splitRemote(dst)

	switch {
	case srcRemote && dstRemote:
		return errors.NewError("copy", errors.ErrUnsupported).
			WithMessage("remote to remote copy is not supported")
	case srcRemote:
		return c.Download(ctx, src, dst, overwrite)
	case dstRemote:
		return c.Upload(ctx, src, dst, overwrite)
	}
	return errors.NewError("copy", errors.ErrInvalidInput).
		WithMessage("one of source and destination must start with " + RemotePrefix)
}

// Mkdir creates the remote directory p. An existing directory is not an error.
func (c *Client) Mkdir(ctx context.Context, p string) error {
	key := dirKey(p)
	if key == "" {
		return nil
	}
	if err := validation.ValidateDirKey(key); err != nil {
		return errors.NewError("mkdir", errors.ErrInvalidObjectKey).
			WithKey(key).
			WithMessage(err.Error())
	}

	err := c.bulk.Do(ctx, "mkdir", func(ctx context.Context) error {
		return c.store.CreatePrefix(ctx, key)
	})
	if err != nil {
		return errors.NewError("mkdir", err).WithKey(key)
	}
	return nil
}

// Remove deletes the remote object p.
func (c *Client) Remove(ctx context.Context, p string) error {
	key := objectKey(p)
	if err := validation.ValidateObjectKey(key); err != nil {
		return errors.NewError("rm", errors.ErrInvalidObjectKey).
			WithKey(key).
			WithMessage(err.Error())
	}

	err := c.bulk.Do(ctx, "rm", func(ctx context.Context) error {
		return c.store.DeleteObject(ctx, key)
	})
	if err != nil {
		return errors.NewError("rm", err).WithKey(key)
	}
	return nil
}

// RemoveDir deletes the remote directory p.
//
// Without recursive, p must be empty. With recursive, every file under p is
// deleted through the worker pool, then every directory is removed, children
// before parents. A missing directory is not an error. The root cannot be
// removed.
func (c *Client) RemoveDir(
	ctx context.Context,
	p string,
	recursive bool,
	opts ...objtypes.DirOption,
) (*objtypes.SyncReport, error) {
	key := dirKey(p)
	if key == "" {
		return nil, errors.NewError("rmdir", errors.ErrInvalidInput).
			WithMessage("refusing to remove the root directory")
	}
	if err := validation.ValidateDirKey(key); err != nil {
		return nil, errors.NewError("rmdir", errors.ErrInvalidObjectKey).
			WithKey(key).
			WithMessage(err.Error())
	}

	if recursive {
		cfg, err := dirConfig(objtypes.ConflictError, opts)
		if err != nil {
			return nil, errors.NewError("rmdir", err).WithKey(key)
		}
		return c.manager.RemoveTree(ctx, key, cfg)
	}

	err := c.bulk.Do(ctx, "rmdir", func(ctx context.Context) error {
		return c.store.DeletePrefix(ctx, key)
	})
	if err != nil {
		return nil, errors.NewError("rmdir", err).WithKey(key)
	}
	c.logger.InfoContext(ctx, "removed directory", "key", key)
	return &objtypes.SyncReport{Tasks: 1, Succeeded: 1, Deleted: 1}, nil
}

// policyFor maps the overwrite flag of single-file transfers to a policy.
func policyFor(overwrite bool) objtypes.ConflictPolicy {
	if overwrite {
		return objtypes.ConflictOverwrite
	}
	return objtypes.ConflictError
}
