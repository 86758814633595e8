package resolver

import (
	"context"
	"testing"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/input-output-hk/catalyst-forge-libs/objfs/errors"
	"github.com/input-output-hk/catalyst-forge-libs/objfs/internal/testutil"
	"github.com/input-output-hk/catalyst-forge-libs/objfs/internal/transfer"
	"github.com/input-output-hk/catalyst-forge-libs/objfs/objtypes"
	"github.com/input-output-hk/catalyst-forge-libs/objfs/store"
)

func TestOutcome_String(t *testing.T) {
	assert.Equal(t, "uploaded", Uploaded.String())
	assert.Equal(t, "skipped_same", SkippedSame.String())
	assert.Equal(t, "failed", Failed.String())
	assert.True(t, SkippedExists.Skipped())
	assert.False(t, Overwritten.Skipped())
}

func TestResolver_Upload(t *testing.T) {
	tests := []struct {
		name        string
		remote      string // existing remote content, empty for none
		policy      objtypes.ConflictPolicy
		wantOutcome Outcome
		wantKind    errors.Kind
		wantContent string
	}{
		{"new object", "", objtypes.ConflictError, Uploaded, errors.KindOK, "local"},
		{"same file is a no-op", "local", objtypes.ConflictError, SkippedSame, errors.KindOK, "local"},
		{"exists with error policy", "remote", objtypes.ConflictError, Failed, errors.KindExists, "remote"},
		{"exists with skip policy", "remote", objtypes.ConflictSkip, SkippedExists, errors.KindOK, "remote"},
		{"exists with overwrite policy", "remote", objtypes.ConflictOverwrite, Overwritten, errors.KindOK, "local"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := testutil.NewFS(t, map[string]string{"f.txt": "local"})
			mem := testutil.NewMemoryStore(t, fs)
			if tt.remote != "" {
				mem.Put("k/f.txt", []byte(tt.remote))
			}

			r := New(mem, nil, fs, tt.policy, false, nil)
			outcome, err := r.Upload(context.Background(), "f.txt", "k/f.txt")

			assert.Equal(t, tt.wantOutcome, outcome)
			assert.Equal(t, tt.wantKind, errors.KindOf(err))
			got, ok := mem.Object("k/f.txt")
			require.True(t, ok)
			assert.Equal(t, tt.wantContent, string(got))
		})
	}
}

func TestResolver_UploadOtherErrorPropagates(t *testing.T) {
	fs := testutil.NewFS(t, map[string]string{"f": "x"})
	mem := testutil.NewMemoryStore(t, fs)
	mem.FailCode("put", "k", -5000)

	r := New(mem, nil, fs, objtypes.ConflictOverwrite, false, nil)
	outcome, err := r.Upload(context.Background(), "f", "k")
	assert.Equal(t, Failed, outcome)
	assert.Equal(t, errors.KindProtocol, errors.KindOf(err))
	assert.Empty(t, mem.Keys())
}

func TestResolver_OffsetRollbackDeletesThenFails(t *testing.T) {
	fs := testutil.NewFS(t, map[string]string{"f": "new"})
	mem := testutil.NewMemoryStore(t, fs)
	mem.Put("k", []byte("old"))
	// insert-only put reports exists, overwrite put hits the rollback
	mem.Fail("put", "k",
		errors.FromCode(errors.CodeExists, "exists"),
		errors.FromCode(errors.CodeOffsetRollback, "offset go back"),
	)

	r := New(mem, nil, fs, objtypes.ConflictOverwrite, true, nil)
	outcome, err := r.Upload(context.Background(), "f", "k")
	assert.Equal(t, Failed, outcome)
	assert.Equal(t, errors.KindOffsetRollback, errors.KindOf(err))
	assert.Empty(t, mem.Keys(), "remote object removed after rollback")

	// The next attempt starts against an empty target
	outcome, err = r.Upload(context.Background(), "f", "k")
	require.NoError(t, err)
	assert.Equal(t, Uploaded, outcome)
	got, _ := mem.Object("k")
	assert.Equal(t, "new", string(got))
}

func TestResolver_OffsetRollbackOnlyOnOverwrite(t *testing.T) {
	fs := testutil.NewFS(t, map[string]string{"f": "new"})
	mem := testutil.NewMemoryStore(t, fs)
	mem.Put("k", []byte("old"))
	mem.FailCode("put", "k", errors.CodeOffsetRollback)

	r := New(mem, nil, fs, objtypes.ConflictOverwrite, false, nil)
	_, err := r.Upload(context.Background(), "f", "k")
	assert.Equal(t, errors.KindOffsetRollback, errors.KindOf(err))
	assert.Equal(t, []string{"k"}, mem.Keys(), "insert-only rollback never deletes")
}

func TestResolver_UploadRequestSequence(t *testing.T) {
	fs := testutil.NewFS(t, map[string]string{"f": "x"})
	var requests []store.PutRequest
	mock := &testutil.MockStore{
		PutObjectFunc: func(_ context.Context, req store.PutRequest) error {
			requests = append(requests, req)
			if req.InsertOnly {
				return errors.FromCode(errors.CodeExists, "exists")
			}
			return nil
		},
	}

	r := New(mock, nil, fs, objtypes.ConflictOverwrite, false, nil)
	outcome, err := r.Upload(context.Background(), "f", "k")
	require.NoError(t, err)
	assert.Equal(t, Overwritten, outcome)
	require.Len(t, requests, 2)
	assert.True(t, requests[0].InsertOnly)
	assert.False(t, requests[1].InsertOnly)
}

func TestResolver_Download(t *testing.T) {
	tests := []struct {
		name        string
		local       string // existing local content, empty for none
		policy      objtypes.ConflictPolicy
		wantOutcome Outcome
		wantErr     error
		wantContent string
	}{
		{"new file", "", objtypes.ConflictError, Downloaded, nil, "remote"},
		{"exists with error policy", "local", objtypes.ConflictError, Failed, errors.ErrLocalExists, "local"},
		{"exists with skip policy", "local", objtypes.ConflictSkip, SkippedExists, nil, "local"},
		{"exists with overwrite policy", "local", objtypes.ConflictOverwrite, Overwritten, nil, "remote"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			files := map[string]string{}
			if tt.local != "" {
				files["out/f"] = tt.local
			}
			fs := testutil.NewFS(t, files)
			mem := testutil.NewMemoryStore(t, fs)
			mem.Put("k", []byte("remote"))

			fetcher := transfer.NewDownloader(mem, fs, nil, time.Hour, nil, nil)
			r := New(mem, fetcher, fs, tt.policy, false, nil)
			outcome, err := r.Download(context.Background(), "k", "out/f")

			assert.Equal(t, tt.wantOutcome, outcome)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Equal(t, errors.KindLocal, errors.KindOf(err))
				assert.False(t, errors.IsRetryable(err))
			} else {
				assert.NoError(t, err)
			}

			got, err := util.ReadFile(fs, "out/f")
			require.NoError(t, err)
			assert.Equal(t, tt.wantContent, string(got))
		})
	}
}

// flakyFetcher fails the first failures calls and then writes content.
type flakyFetcher struct {
	fs       billy.Filesystem
	failures int
	content  string
}

func (f *flakyFetcher) Fetch(_ context.Context, _, localPath string) error {
	if f.failures > 0 {
		f.failures--
		return errors.FromCode(-1, "connection reset")
	}
	return util.WriteFile(f.fs, localPath, []byte(f.content), 0o644)
}

func TestResolver_DownloadOverwriteSurvivesFailedFetch(t *testing.T) {
	fs := testutil.NewFS(t, map[string]string{"out/f": "local"})
	fetcher := &flakyFetcher{fs: fs, failures: 1, content: "remote"}
	r := New(testutil.NewMemoryStore(t, fs), fetcher, fs, objtypes.ConflictOverwrite, false, nil)

	outcome, err := r.Download(context.Background(), "k", "out/f")
	require.Error(t, err)
	assert.Equal(t, Failed, outcome)

	// The retried attempt finds no local file but still replaces one
	outcome, err = r.Download(context.Background(), "k", "out/f")
	require.NoError(t, err)
	assert.Equal(t, Overwritten, outcome)

	// Later attempts on the same path are plain downloads again
	require.NoError(t, fs.Remove("out/f"))
	outcome, err = r.Download(context.Background(), "k", "out/f")
	require.NoError(t, err)
	assert.Equal(t, Downloaded, outcome)
}
