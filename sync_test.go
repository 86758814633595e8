package objfs

import (
	"context"
	stderrors "errors"
	"testing"

	"github.com/go-git/go-billy/v5/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/input-output-hk/catalyst-forge-libs/objfs/errors"
	"github.com/input-output-hk/catalyst-forge-libs/objfs/internal/testutil"
	"github.com/input-output-hk/catalyst-forge-libs/objfs/objtypes"
)

func site() map[string]string {
	return map[string]string{
		"site/index.html":     "<h1>hi</h1>",
		"site/css/site.css":   "body{}",
		"site/js/app.js":      "run()",
		"site/js/vendor/x.js": "x",
	}
}

func TestClient_UploadDir(t *testing.T) {
	tests := []struct {
		name     string
		local    string
		remote   string
		wantKeys []string
	}{
		{
			name:   "directory itself",
			local:  "site",
			remote: "www/",
			wantKeys: []string{
				"www/site/css/site.css",
				"www/site/index.html",
				"www/site/js/app.js",
				"www/site/js/vendor/x.js",
			},
		},
		{
			name:   "contents only",
			local:  "site/",
			remote: "www",
			wantKeys: []string{
				"www/css/site.css",
				"www/index.html",
				"www/js/app.js",
				"www/js/vendor/x.js",
			},
		},
		{
			name:   "into the root",
			local:  "site/",
			remote: "/",
			wantKeys: []string{
				"css/site.css",
				"index.html",
				"js/app.js",
				"js/vendor/x.js",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fx := newFixture(t, site())
			testutil.Symlink(t, fx.fs, "index.html", "site/link.html")

			rep, err := fx.client.UploadDir(context.Background(), tt.local, tt.remote, objtypes.ConflictError)
			require.NoError(t, err)
			assert.Equal(t, tt.wantKeys, fx.mem.Keys())
			assert.Equal(t, 4, rep.Uploaded)
			assert.Equal(t, 0, rep.Failed)
			assert.Equal(t, rep.Tasks, rep.Succeeded)
			assert.Empty(t, fx.diag.String())
		})
	}
}

func TestClient_UploadDir_CreatesDirectories(t *testing.T) {
	fx := newFixture(t, site())

	_, err := fx.client.UploadDir(context.Background(), "site", "www", objtypes.ConflictError)
	require.NoError(t, err)
	for _, dir := range []string{"www/site/", "www/site/css/", "www/site/js/", "www/site/js/vendor/"} {
		assert.True(t, fx.mem.HasPrefix(dir), dir)
	}
}

func TestClient_UploadDir_Conflicts(t *testing.T) {
	ctx := context.Background()

	t.Run("skip leaves the remote unchanged", func(t *testing.T) {
		fx := newFixture(t, site())
		_, err := fx.client.UploadDir(ctx, "site/", "www", objtypes.ConflictError)
		require.NoError(t, err)

		require.NoError(t, util.WriteFile(fx.fs, "site/index.html", []byte("changed"), 0o644))
		rep, err := fx.client.UploadDir(ctx, "site/", "www", objtypes.ConflictSkip)
		require.NoError(t, err)
		assert.Equal(t, 4, rep.Skipped)
		assert.Equal(t, 0, rep.Uploaded)
		assert.Equal(t, 0, rep.Failed)

		data, _ := fx.mem.Object("www/index.html")
		assert.Equal(t, "<h1>hi</h1>", string(data))
	})

	t.Run("error fails once per existing file", func(t *testing.T) {
		fx := newFixture(t, site())
		_, err := fx.client.UploadDir(ctx, "site/", "www", objtypes.ConflictError)
		require.NoError(t, err)

		for name := range site() {
			require.NoError(t, util.WriteFile(fx.fs, name, []byte("changed"), 0o644))
		}
		rep, err := fx.client.UploadDir(ctx, "site/", "www", objtypes.ConflictError)
		require.Error(t, err)

		var agg *errors.AggregateError
		require.True(t, stderrors.As(err, &agg))
		assert.Equal(t, 4, agg.Count())
		assert.Equal(t, "uploadDir", agg.Op)
		require.NotNil(t, rep)
		assert.Equal(t, 4, rep.Failed)
		assert.Contains(t, fx.diag.String(), "=== FAILED LIST ===")
	})

	t.Run("identical files are skipped under error", func(t *testing.T) {
		fx := newFixture(t, site())
		_, err := fx.client.UploadDir(ctx, "site/", "www", objtypes.ConflictError)
		require.NoError(t, err)

		rep, err := fx.client.UploadDir(ctx, "site/", "www", objtypes.ConflictError)
		require.NoError(t, err)
		assert.Equal(t, 4, rep.Skipped)
	})

	t.Run("overwrite replaces changed files", func(t *testing.T) {
		fx := newFixture(t, site())
		_, err := fx.client.UploadDir(ctx, "site/", "www", objtypes.ConflictError)
		require.NoError(t, err)

		require.NoError(t, util.WriteFile(fx.fs, "site/index.html", []byte("changed"), 0o644))
		rep, err := fx.client.UploadDir(ctx, "site/", "www", objtypes.ConflictOverwrite)
		require.NoError(t, err)
		assert.Equal(t, 1, rep.Overwritten)
		assert.Equal(t, 3, rep.Skipped)

		data, _ := fx.mem.Object("www/index.html")
		assert.Equal(t, "changed", string(data))
	})
}

func TestClient_UploadDir_PartialFailure(t *testing.T) {
	fx := newFixture(t, site(), WithRetryCount(3))
	fx.mem.FailCode("put", "www/index.html", -1, -1, -1)
	fx.mem.FailCode("put", "www/js/app.js", -1, -1)

	rep, err := fx.client.UploadDir(context.Background(), "site/", "www", objtypes.ConflictError)
	require.Error(t, err)

	var agg *errors.AggregateError
	require.True(t, stderrors.As(err, &agg))
	assert.Equal(t, 1, agg.Count())
	assert.Equal(t, 3, rep.Uploaded)
	assert.Equal(t, rep.Tasks, rep.Succeeded+rep.Failed)
	assert.Equal(t, []string{"www/css/site.css", "www/js/app.js", "www/js/vendor/x.js"}, fx.mem.Keys())
}

func TestClient_UploadDir_Filters(t *testing.T) {
	fx := newFixture(t, site())

	_, err := fx.client.UploadDir(context.Background(), "site/", "www", objtypes.ConflictError,
		WithInclude("**/*.js", "*.html"),
		WithExclude("js/vendor/"),
	)
	require.NoError(t, err)
	assert.Equal(t, []string{"www/index.html", "www/js/app.js"}, fx.mem.Keys())
}

func TestClient_UploadDir_DryRun(t *testing.T) {
	fx := newFixture(t, site())

	rep, err := fx.client.UploadDir(context.Background(), "site", "www", objtypes.ConflictError, WithDryRun())
	require.NoError(t, err)
	assert.Equal(t, rep.Tasks, len(rep.Planned))
	assert.Empty(t, fx.mem.Keys())
	assert.Empty(t, fx.mem.Calls())
}

func TestClient_UploadDir_Errors(t *testing.T) {
	fx := newFixture(t, site())
	ctx := context.Background()

	_, err := fx.client.UploadDir(ctx, "site/index.html", "www", objtypes.ConflictError)
	assert.ErrorIs(t, err, errors.ErrNotDirectory)

	_, err = fx.client.UploadDir(ctx, "missing", "www", objtypes.ConflictError)
	assert.Error(t, err)

	_, err = fx.client.UploadDir(ctx, "site", "www", objtypes.ConflictError, WithInclude("[a-"))
	assert.ErrorIs(t, err, errors.ErrInvalidInput)

	assert.Empty(t, fx.mem.Calls())
}

func TestClient_DownloadDir(t *testing.T) {
	fx := newFixture(t, site())
	ctx := context.Background()

	_, err := fx.client.UploadDir(ctx, "site/", "www", objtypes.ConflictError)
	require.NoError(t, err)

	rep, err := fx.client.DownloadDir(ctx, "www", "mirror", objtypes.ConflictError)
	require.NoError(t, err)
	assert.Equal(t, 4, rep.Downloaded)

	assert.Equal(t, map[string]string{
		"index.html":     "<h1>hi</h1>",
		"css/site.css":   "body{}",
		"js/app.js":      "run()",
		"js/vendor/x.js": "x",
	}, testutil.ReadTree(t, fx.fs, "mirror"))

	rep, err = fx.client.DownloadDir(ctx, "www", "mirror", objtypes.ConflictSkip)
	require.NoError(t, err)
	assert.Equal(t, 4, rep.Skipped)

	_, err = fx.client.DownloadDir(ctx, "www", "mirror", objtypes.ConflictError)
	var agg *errors.AggregateError
	require.True(t, stderrors.As(err, &agg))
	assert.Equal(t, 4, agg.Count())
	assert.ErrorIs(t, err, errors.ErrLocalExists)
}

func TestClient_CopyDir(t *testing.T) {
	fx := newFixture(t, site())
	ctx := context.Background()

	_, err := fx.client.CopyDir(ctx, "site", "remote:www/", objtypes.ConflictError)
	require.NoError(t, err)
	assert.Len(t, fx.mem.Keys(), 4)

	_, err = fx.client.CopyDir(ctx, "remote:www/site", "copy", objtypes.ConflictError)
	require.NoError(t, err)
	assert.Len(t, testutil.ReadTree(t, fx.fs, "copy"), 4)

	_, err = fx.client.CopyDir(ctx, "remote:a", "remote:b", objtypes.ConflictError)
	assert.ErrorIs(t, err, errors.ErrUnsupported)

	_, err = fx.client.CopyDir(ctx, "site", "copy", objtypes.ConflictError)
	assert.ErrorIs(t, err, errors.ErrInvalidInput)
}

func TestClient_UploadThenRemoveDir(t *testing.T) {
	fx := newFixture(t, site())
	ctx := context.Background()

	_, err := fx.client.UploadDir(ctx, "site", "www", objtypes.ConflictError)
	require.NoError(t, err)

	rep, err := fx.client.RemoveDir(ctx, "www", true)
	require.NoError(t, err)
	assert.Equal(t, 0, rep.Failed)
	assert.Empty(t, fx.mem.Keys())
	assert.False(t, fx.mem.HasPrefix("www/"))
	assert.False(t, fx.mem.HasPrefix("www/site/js/vendor/"))
}

func TestClient_DownloadDir_IgnoresKeysEscapingTarget(t *testing.T) {
	fx := newFixture(t, nil)
	fx.mem.Put("remote/ok.txt", []byte("ok"))
	fx.mem.Put("remote/../evil.txt", []byte("pwned"))

	rep, err := fx.client.DownloadDir(context.Background(), "remote/", "out/inner", objtypes.ConflictError)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Downloaded)
	assert.Equal(t, map[string]string{"inner/ok.txt": "ok"}, testutil.ReadTree(t, fx.fs, "out"))
}
