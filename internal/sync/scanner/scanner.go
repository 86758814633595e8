// Package scanner enumerates local and remote trees into sync tasks.
//
// Every scan is a single sequential pre-pass that completes before any
// worker starts. Walks are depth-first with the parent visited before its
// children, driven by an explicit stack of pending directories so tree depth
// is not bounded by the goroutine stack.
package scanner

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"sort"

	"github.com/go-git/go-billy/v5"

	"github.com/input-output-hk/catalyst-forge-libs/objfs/errors"
	"github.com/input-output-hk/catalyst-forge-libs/objfs/internal/listing"
	"github.com/input-output-hk/catalyst-forge-libs/objfs/internal/metrics"
	"github.com/input-output-hk/catalyst-forge-libs/objfs/internal/sync/task"
	"github.com/input-output-hk/catalyst-forge-libs/objfs/internal/validation"
	"github.com/input-output-hk/catalyst-forge-libs/objfs/objtypes"
)

// Scanner walks trees and fills task queues.
type Scanner struct {
	fs      billy.Filesystem
	lister  *listing.Lister
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewScanner creates a scanner over the local filesystem fs and the remote
// lister.
func NewScanner(fs billy.Filesystem, lister *listing.Lister, logger *slog.Logger, m *metrics.Metrics) *Scanner {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Scanner{
		fs:      fs,
		lister:  lister,
		logger:  logger,
		metrics: m,
	}
}

// frame is one pending directory of a walk.
type frame struct {
	local  string
	remote string
	rel    string
}

// ScanUpload enqueues the tasks that copy localRoot to the remote directory
// remoteRoot: one Mkdir per subdirectory, then one Upload per regular file in
// name order. remoteRoot itself is not enqueued. Symlinks are skipped and
// never followed. It returns the number of tasks enqueued.
func (s *Scanner) ScanUpload(ctx context.Context, localRoot, remoteRoot string, filter Filter, q *task.Queue) (int, error) {
	filter, err := filter.Compile()
	if err != nil {
		return 0, err
	}
	count := 0
	stack := []frame{{local: localRoot, remote: listing.DirKey(remoteRoot)}}

	for len(stack) > 0 {
		if err := ctx.Err(); err != nil {
			return count, err
		}

		dir := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if dir.rel != "" {
			if err := s.put(q, task.Mkdir(dir.remote)); err != nil {
				return count, err
			}
			count++
		}

		infos, err := s.readDir(dir.local)
		if err != nil {
			return count, errors.NewError("scan", err).WithKey(dir.local)
		}

		var subdirs []frame
		for _, info := range infos {
			local := s.fs.Join(dir.local, info.Name())
			rel := path.Join(dir.rel, info.Name())

			switch {
			case info.Mode()&os.ModeSymlink != 0:
				s.logger.InfoContext(ctx, "skipping symlink", "path", local)
			case info.IsDir():
				if filter.PrunesDir(rel) {
					continue
				}
				subdirs = append(subdirs, frame{
					local:  local,
					remote: dir.remote + info.Name() + "/",
					rel:    rel,
				})
			case info.Mode().IsRegular():
				if !filter.IncludesFile(rel) {
					continue
				}
				if err := s.put(q, task.Upload(local, dir.remote+info.Name())); err != nil {
					return count, err
				}
				count++
			}
		}

		for i := len(subdirs) - 1; i >= 0; i-- {
			stack = append(stack, subdirs[i])
		}
	}

	s.logger.InfoContext(ctx, "enumerated upload", "source", localRoot, "target", remoteRoot, "tasks", count)
	return count, nil
}

// ScanDownload enqueues one Download per remote file under remoteRoot.
// Each local directory is created inline before its remote directory is
// listed. Entries whose key or name cannot be mapped below localRoot are
// skipped with a warning. It returns the number of tasks enqueued.
func (s *Scanner) ScanDownload(ctx context.Context, remoteRoot, localRoot string, filter Filter, q *task.Queue) (int, error) {
	filter, err := filter.Compile()
	if err != nil {
		return 0, err
	}
	count := 0
	stack := []frame{{local: localRoot, remote: listing.DirKey(remoteRoot)}}

	for len(stack) > 0 {
		if err := ctx.Err(); err != nil {
			return count, err
		}

		dir := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if err := s.fs.MkdirAll(dir.local, 0o755); err != nil {
			return count, errors.NewError("scan", err).WithKey(dir.local)
		}

		contents, err := s.lister.List(ctx, dir.remote, "")
		if err != nil {
			return count, err
		}

		var subdirs []frame
		for _, entry := range contents.Entries {
			if err := checkEntry(entry); err != nil {
				s.logger.WarnContext(ctx, "skipping remote entry", "key", entry.Key, "error", err)
				continue
			}
			rel := path.Join(dir.rel, entry.Name)
			local := s.fs.Join(dir.local, entry.Name)
			if !validation.WithinRoot(localRoot, local) {
				s.logger.WarnContext(ctx, "skipping remote entry outside the target", "key", entry.Key, "path", local)
				continue
			}

			if entry.Type == objtypes.EntryDirectory {
				if filter.PrunesDir(rel) {
					continue
				}
				subdirs = append(subdirs, frame{local: local, remote: entry.Key, rel: rel})
				continue
			}

			if !filter.IncludesFile(rel) {
				continue
			}
			if err := s.put(q, task.Download(entry.Key, local)); err != nil {
				return count, err
			}
			count++
		}

		for i := len(subdirs) - 1; i >= 0; i-- {
			stack = append(stack, subdirs[i])
		}
	}

	s.logger.InfoContext(ctx, "enumerated download", "source", remoteRoot, "target", localRoot, "tasks", count)
	return count, nil
}

// ScanDelete enqueues one Delete per remote file under remoteRoot and
// returns every directory key in discovery order, remoteRoot first.
// Callers remove the directories in reverse order once the files are gone.
func (s *Scanner) ScanDelete(ctx context.Context, remoteRoot string, q *task.Queue) ([]string, int, error) {
	count := 0
	var dirs []string
	stack := []string{listing.DirKey(remoteRoot)}

	for len(stack) > 0 {
		if err := ctx.Err(); err != nil {
			return dirs, count, err
		}

		dir := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		dirs = append(dirs, dir)

		contents, err := s.lister.List(ctx, dir, "")
		if err != nil {
			return dirs, count, err
		}

		var subdirs []string
		for _, entry := range contents.Entries {
			if err := checkEntry(entry); err != nil {
				s.logger.WarnContext(ctx, "skipping remote entry", "key", entry.Key, "error", err)
				continue
			}
			if entry.Type == objtypes.EntryDirectory {
				subdirs = append(subdirs, entry.Key)
				continue
			}
			if err := s.put(q, task.Delete(entry.Key)); err != nil {
				return dirs, count, err
			}
			count++
		}

		for i := len(subdirs) - 1; i >= 0; i-- {
			stack = append(stack, subdirs[i])
		}
	}

	s.logger.InfoContext(ctx, "enumerated delete", "prefix", remoteRoot, "tasks", count, "directories", len(dirs))
	return dirs, count, nil
}

// checkEntry rejects listed entries whose key has "." or ".." segments or
// whose name is not a single path segment.
func checkEntry(entry objtypes.Entry) error {
	if err := validation.ValidateEntryName(entry.Name); err != nil {
		return err
	}
	if entry.Type == objtypes.EntryDirectory {
		return validation.ValidateDirKey(entry.Key)
	}
	return validation.ValidateObjectKey(entry.Key)
}

func (s *Scanner) put(q *task.Queue, t task.Task) error {
	if err := q.Put(t); err != nil {
		return fmt.Errorf("enqueue %s: %w", t, err)
	}
	s.metrics.RecordEnumerated(t.Op.String())
	return nil
}

// readDir returns the entries of dir sorted by name. Symlinks are reported
// with their own mode, not their target's.
func (s *Scanner) readDir(dir string) ([]os.FileInfo, error) {
	infos, err := s.fs.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	if lfs, ok := s.fs.(billy.Symlink); ok {
		for i, info := range infos {
			linfo, err := lfs.Lstat(s.fs.Join(dir, info.Name()))
			if err != nil {
				return nil, err
			}
			infos[i] = linfo
		}
	}

	sort.Slice(infos, func(i, j int) bool { return infos[i].Name() < infos[j].Name() })
	return infos, nil
}
