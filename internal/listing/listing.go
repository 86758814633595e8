// Package listing folds paginated store listings into complete directory contents.
//
// Two page shapes are accepted: has_more with a context token, and listover
// (negated) where the cursor may be derived from the page itself. Both are
// normalized to a canonical (more, cursor) pair before the next call.
package listing

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"

	"github.com/input-output-hk/catalyst-forge-libs/objfs/errors"
	"github.com/input-output-hk/catalyst-forge-libs/objfs/internal/metrics"
	"github.com/input-output-hk/catalyst-forge-libs/objfs/internal/retry"
	"github.com/input-output-hk/catalyst-forge-libs/objfs/objtypes"
	"github.com/input-output-hk/catalyst-forge-libs/objfs/store"
)

// Lister lists whole directories through a paginated store.
type Lister struct {
	store    store.Lister
	policy   retry.Policy
	pageSize int
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

// New creates a Lister. Every page call goes through policy.
func New(s store.Lister, policy retry.Policy, pageSize int, logger *slog.Logger, m *metrics.Metrics) *Lister {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Lister{
		store:    s,
		policy:   policy,
		pageSize: pageSize,
		logger:   logger,
		metrics:  m,
	}
}

// SplitPattern splits a listing path into its directory and name filter.
// A path ending in "*" lists its parent, keeping only names that start with
// the basename before the star.
func SplitPattern(p string) (dir, filter string) {
	if !strings.HasSuffix(p, "*") {
		return p, ""
	}
	filter = strings.TrimSuffix(path.Base(p), "*")
	dir = path.Dir(p)
	if dir == "." || dir == "/" {
		dir = ""
	}
	return dir, filter
}

// DirKey returns the directory key of p: no leading separator and exactly
// one trailing separator. The root is the empty key.
func DirKey(p string) string {
	p = strings.Trim(p, "/")
	if p == "" {
		return ""
	}
	return p + "/"
}

// Normalize converts a page of either shape to (more, cursor).
// When a listover page has no context, the cursor is the key of its last
// entry.
func Normalize(page *store.Page) (more bool, cursor string) {
	if page == nil {
		return false, ""
	}

	cursor = page.Context
	if page.HasMore != nil {
		more = *page.HasMore
	}
	if page.ListOver != nil {
		more = !*page.ListOver
		if cursor == "" && len(page.Entries) > 0 {
			cursor = page.Entries[len(page.Entries)-1].Key
		}
	}
	if !more {
		cursor = ""
	}
	return more, cursor
}

// ListDir lists every entry under p, following cursors until the store
// reports no more pages. Entries keep page order, then within-page order.
func (l *Lister) ListDir(ctx context.Context, p string) (*objtypes.DirectoryContents, error) {
	dir, filter := SplitPattern(p)
	return l.List(ctx, DirKey(dir), filter)
}

// List lists every entry under the directory key dir whose name starts with
// filter. Unlike ListDir, dir is used as given.
func (l *Lister) List(ctx context.Context, dir, filter string) (*objtypes.DirectoryContents, error) {
	contents := &objtypes.DirectoryContents{Path: dir}
	cursor := ""
	for pageNum := 1; ; pageNum++ {
		req := store.ListRequest{
			Prefix: dir,
			Filter: filter,
			Cursor: cursor,
			Limit:  l.pageSize,
		}

		var page *store.Page
		err := l.policy.Do(ctx, "list", func(ctx context.Context) error {
			var err error
			page, err = l.store.List(ctx, req)
			return err
		})
		if err != nil {
			return nil, errors.NewError("list", err).WithKey(dir)
		}
		l.metrics.RecordListPage()

		fold(contents, page)

		more, next := Normalize(page)
		l.logger.DebugContext(ctx, "listed page",
			"prefix", dir,
			"page", pageNum,
			"entries", len(page.Entries),
			"more", more,
		)
		if !more {
			return contents, nil
		}
		if next == "" || next == cursor {
			return nil, errors.NewError("list", errors.NewStatusError(errors.KindProtocol, 0,
				fmt.Sprintf("page %d reports more entries without a new cursor", pageNum))).WithKey(dir)
		}
		cursor = next
	}
}

// fold appends one page to contents, computing counts when the page omits them.
func fold(contents *objtypes.DirectoryContents, page *store.Page) {
	files, dirs := 0, 0
	for _, entry := range page.Entries {
		if entry.IsFile() {
			files++
		} else {
			entry.Name = strings.TrimRight(entry.Name, "/")
			dirs++
		}
		contents.Entries = append(contents.Entries, entry)
	}

	if page.FileCount != nil && page.DirCount != nil {
		files, dirs = *page.FileCount, *page.DirCount
	}
	contents.FileCount += files
	contents.DirCount += dirs
}
