package sync

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/input-output-hk/catalyst-forge-libs/objfs/errors"
	"github.com/input-output-hk/catalyst-forge-libs/objfs/internal/listing"
	"github.com/input-output-hk/catalyst-forge-libs/objfs/internal/retry"
	"github.com/input-output-hk/catalyst-forge-libs/objfs/internal/sync/executor"
	"github.com/input-output-hk/catalyst-forge-libs/objfs/internal/sync/scanner"
	"github.com/input-output-hk/catalyst-forge-libs/objfs/internal/testutil"
	"github.com/input-output-hk/catalyst-forge-libs/objfs/internal/transfer"
	"github.com/input-output-hk/catalyst-forge-libs/objfs/objtypes"
)

type fixture struct {
	fs      billy.Filesystem
	mem     *testutil.MemoryStore
	manager *Manager
	diag    *bytes.Buffer
}

func newFixture(t *testing.T, files map[string]string) *fixture {
	t.Helper()
	fs := testutil.NewFS(t, files)
	mem := testutil.NewMemoryStore(t, fs)
	mem.PageSize = 3

	lister := listing.New(mem, retry.New(3, 0, nil), 0, nil, nil)
	sc := scanner.NewScanner(fs, lister, nil, nil)
	ex := executor.NewExecutor(4, retry.New(6, 0, nil), nil, nil)
	dl := transfer.NewDownloader(mem, fs, nil, time.Hour, nil, nil)

	diag := &bytes.Buffer{}
	m := NewManager(mem, sc, ex, dl, Options{
		Filesystem:  fs,
		Bulk:        retry.New(6, 0, nil),
		PollTimeout: time.Millisecond,
		Diagnostics: diag,
	})
	return &fixture{fs: fs, mem: mem, manager: m, diag: diag}
}

func tree() map[string]string {
	files := map[string]string{}
	for d := 0; d < 3; d++ {
		for f := 0; f < 4; f++ {
			files[fmt.Sprintf("src/d%d/f%d.txt", d, f)] = fmt.Sprintf("content %d/%d", d, f)
		}
	}
	files["src/top.txt"] = "top"
	files["src/d0/deeper/x.bin"] = "x"
	return files
}

func remoteFiles(t *testing.T, mem *testutil.MemoryStore, prefix string) map[string]string {
	t.Helper()
	out := map[string]string{}
	for _, k := range mem.Keys() {
		if !strings.HasPrefix(k, prefix) {
			continue
		}
		data, _ := mem.Object(k)
		out[strings.TrimPrefix(k, prefix)] = string(data)
	}
	return out
}

func TestManager_UploadThenListMatchesLocal(t *testing.T) {
	fx := newFixture(t, tree())
	testutil.Symlink(t, fx.fs, "/src/top.txt", "src/link.txt")

	rep, err := fx.manager.UploadDir(context.Background(), "src", "dst/", &Config{})
	require.NoError(t, err)

	assert.Equal(t, testutil.ReadTree(t, fx.fs, "src"), remoteFiles(t, fx.mem, "dst/"))
	assert.Equal(t, 14, rep.Uploaded)
	assert.Equal(t, 0, rep.Failed)
	assert.Equal(t, rep.Tasks, rep.Succeeded)
	assert.True(t, fx.mem.HasPrefix("dst/"))
	assert.True(t, fx.mem.HasPrefix("dst/d0/deeper/"))
	assert.Empty(t, fx.diag.String())
}

func TestManager_ReuploadSkip(t *testing.T) {
	fx := newFixture(t, tree())
	_, err := fx.manager.UploadDir(context.Background(), "src", "dst", &Config{})
	require.NoError(t, err)

	// Change one local file so it differs from the remote copy
	require.NoError(t, util.WriteFile(fx.fs, "src/top.txt", []byte("changed"), 0o644))
	before := remoteFiles(t, fx.mem, "dst/")

	rep, err := fx.manager.UploadDir(context.Background(), "src", "dst", &Config{Policy: objtypes.ConflictSkip})
	require.NoError(t, err)
	assert.Equal(t, 0, rep.Failed)
	assert.Equal(t, 14, rep.Skipped)
	assert.Equal(t, before, remoteFiles(t, fx.mem, "dst/"))
}

func TestManager_ReuploadErrorCountsExisting(t *testing.T) {
	fx := newFixture(t, tree())
	_, err := fx.manager.UploadDir(context.Background(), "src", "dst", &Config{})
	require.NoError(t, err)

	// Every file differs from its remote copy now
	for name := range testutil.ReadTree(t, fx.fs, "src") {
		require.NoError(t, util.WriteFile(fx.fs, "src/"+name, []byte("v2 "+name), 0o644))
	}
	require.NoError(t, util.WriteFile(fx.fs, "src/new.txt", []byte("new"), 0o644))

	rep, err := fx.manager.UploadDir(context.Background(), "src", "dst", &Config{})
	require.Error(t, err)

	var agg *errors.AggregateError
	require.ErrorAs(t, err, &agg)
	assert.Equal(t, 14, agg.Count())
	assert.Equal(t, 14, rep.Failed)
	assert.Equal(t, 1, rep.Uploaded)
	assert.Equal(t, errors.KindExists, errors.KindOf(agg.Errs[0]))

	assert.Contains(t, fx.diag.String(), "=== FAILED LIST ===")
	assert.Equal(t, 15, strings.Count(fx.diag.String(), "\n"))
}

func TestManager_ReuploadOverwrite(t *testing.T) {
	fx := newFixture(t, tree())
	_, err := fx.manager.UploadDir(context.Background(), "src", "dst", &Config{})
	require.NoError(t, err)

	require.NoError(t, util.WriteFile(fx.fs, "src/top.txt", []byte("changed"), 0o644))

	rep, err := fx.manager.UploadDir(context.Background(), "src", "dst", &Config{Policy: objtypes.ConflictOverwrite})
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Overwritten)
	assert.Equal(t, 13, rep.Skipped)

	got, _ := fx.mem.Object("dst/top.txt")
	assert.Equal(t, "changed", string(got))
}

func TestManager_TransientFailuresRetried(t *testing.T) {
	fx := newFixture(t, map[string]string{"src/a": "a", "src/b": "b"})
	fx.mem.FailCode("put", "dst/a", -1, -1, -1, -1, -1)
	fx.mem.FailCode("put", "dst/b", -1, -1, -1, -1, -1, -1)

	rep, err := fx.manager.UploadDir(context.Background(), "src", "dst", &Config{})
	require.Error(t, err)
	assert.Equal(t, 1, rep.Uploaded)
	assert.Equal(t, 1, rep.Failed)
	assert.Contains(t, fx.diag.String(), "upload(src/b, dst/b)")
	assert.NotContains(t, fx.diag.String(), "upload(src/a, dst/a)")
}

func TestManager_UploadDirFilterAndDryRun(t *testing.T) {
	fx := newFixture(t, map[string]string{"src/a.go": "a", "src/b.txt": "b", "src/vendor/c.go": "c"})

	rep, err := fx.manager.UploadDir(context.Background(), "src", "dst", &Config{
		DryRun: true,
		Filter: scanner.Filter{Include: []string{"*.go"}, Exclude: []string{"vendor/"}},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"upload(src/a.go, dst/a.go)"}, rep.Planned)
	assert.Empty(t, fx.mem.Keys())
	assert.Empty(t, fx.mem.Calls())
}

func TestManager_DownloadDir(t *testing.T) {
	fx := newFixture(t, nil)
	for i := 0; i < 7; i++ {
		fx.mem.Put(fmt.Sprintf("r/f%d", i), []byte(fmt.Sprintf("v%d", i)))
		fx.mem.Put(fmt.Sprintf("r/sub/g%d", i), []byte(fmt.Sprintf("w%d", i)))
	}

	rep, err := fx.manager.DownloadDir(context.Background(), "r", "out", &Config{})
	require.NoError(t, err)
	assert.Equal(t, 14, rep.Downloaded)
	assert.Equal(t, remoteFiles(t, fx.mem, "r/"), testutil.ReadTree(t, fx.fs, "out"))
}

func TestManager_DownloadDirConflicts(t *testing.T) {
	fx := newFixture(t, map[string]string{"out/a": "local"})
	fx.mem.Put("r/a", []byte("remote"))
	fx.mem.Put("r/b", []byte("remote"))

	rep, err := fx.manager.DownloadDir(context.Background(), "r", "out", &Config{})
	require.Error(t, err)
	assert.True(t, errors.IsLocalExists(err))
	assert.Equal(t, 1, rep.Downloaded)
	assert.Equal(t, 1, rep.Failed)

	rep, err = fx.manager.DownloadDir(context.Background(), "r", "out", &Config{Policy: objtypes.ConflictOverwrite})
	require.NoError(t, err)
	assert.Equal(t, 2, rep.Overwritten)

	got, err := util.ReadFile(fx.fs, "out/a")
	require.NoError(t, err)
	assert.Equal(t, "remote", string(got))
}

func TestManager_RemoveTreeFilesBeforeDirectories(t *testing.T) {
	fx := newFixture(t, tree())
	_, err := fx.manager.UploadDir(context.Background(), "src", "dst", &Config{})
	require.NoError(t, err)
	fx.mem.Put("other/keep", []byte("k"))

	rep, err := fx.manager.RemoveTree(context.Background(), "dst", &Config{})
	require.NoError(t, err)
	assert.Equal(t, 0, rep.Failed)
	assert.Equal(t, []string{"other/keep"}, fx.mem.Keys())
	assert.False(t, fx.mem.HasPrefix("dst/"))
	assert.False(t, fx.mem.HasPrefix("dst/d0/deeper/"))

	// Every rmdir comes after every delete of a file below it
	calls := fx.mem.Calls()
	lastDelete := map[string]int{}
	for i, c := range calls {
		if c.Op == "delete" {
			for dir := c.Key; strings.Contains(dir, "/"); {
				dir = dir[:strings.LastIndex(strings.TrimSuffix(dir, "/"), "/")+1]
				if dir == "" {
					break
				}
				lastDelete[dir] = i
			}
		}
	}
	for i, c := range calls {
		if c.Op == "rmdir" {
			assert.Greater(t, i, lastDelete[c.Key], "rmdir %s after its files", c.Key)
		}
	}
	assert.Equal(t, 14+5, rep.Deleted)
}

func TestManager_RemoveTreeMissingPrefix(t *testing.T) {
	fx := newFixture(t, nil)
	rep, err := fx.manager.RemoveTree(context.Background(), "nothing/here", &Config{})
	require.NoError(t, err)
	assert.Equal(t, 0, rep.Failed)
}

func TestManager_RemoveTreeFailedFileKeepsParent(t *testing.T) {
	fx := newFixture(t, nil)
	fx.mem.Put("r/a", []byte("a"))
	fx.mem.Put("r/s/b", []byte("b"))
	fx.mem.FailCode("delete", "r/s/b", -1, -1, -1, -1, -1, -1)

	rep, err := fx.manager.RemoveTree(context.Background(), "r", &Config{})
	require.Error(t, err)

	var agg *errors.AggregateError
	require.ErrorAs(t, err, &agg)
	assert.Equal(t, 3, agg.Count(), "file, its directory and the root")
	assert.Equal(t, 3, rep.Failed)
	assert.Equal(t, []string{"r/s/b"}, fx.mem.Keys())
}

func TestManager_RemoveTreeDryRun(t *testing.T) {
	fx := newFixture(t, nil)
	fx.mem.Put("r/a", []byte("a"))
	fx.mem.Put("r/s/b", []byte("b"))

	rep, err := fx.manager.RemoveTree(context.Background(), "r", &Config{DryRun: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"delete(r/a)", "delete(r/s/b)", "rmdir(r/s/)", "rmdir(r/)"}, rep.Planned)
	assert.Len(t, fx.mem.Keys(), 2)
}

func TestManager_DownloadDirStaysInsideTarget(t *testing.T) {
	fx := newFixture(t, nil)
	fx.mem.Put("remote/a.txt", []byte("a"))
	fx.mem.Put("remote/../evil.txt", []byte("pwned"))
	fx.mem.Put("remote/sub/../../up.txt", []byte("up"))

	rep, err := fx.manager.DownloadDir(context.Background(), "remote/", "out/inner", &Config{})
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Downloaded)
	assert.Equal(t, map[string]string{"inner/a.txt": "a"}, testutil.ReadTree(t, fx.fs, "out"))
}

func TestManager_RemoveTreeKeepsDotSegmentKeys(t *testing.T) {
	fx := newFixture(t, nil)
	fx.mem.Put("r/a", []byte("a"))
	fx.mem.Put("r/../evil.txt", []byte("x"))

	rep, err := fx.manager.RemoveTree(context.Background(), "r", &Config{})
	require.Error(t, err)

	var agg *errors.AggregateError
	require.ErrorAs(t, err, &agg)
	assert.Equal(t, 1, agg.Count(), "the root prefix is not empty")
	assert.Equal(t, 1, rep.Deleted)
	assert.Equal(t, []string{"r/../evil.txt"}, fx.mem.Keys())
}
