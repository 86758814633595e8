package testutil

import (
	"io"
	"log/slog"
	"os"
	"path"
	"sort"
	"testing"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/stretchr/testify/require"
)

// NewFS returns an in-memory filesystem populated with files.
// Keys are slash-separated paths, values are file contents.
func NewFS(t testing.TB, files map[string]string) billy.Filesystem {
	t.Helper()
	fs := memfs.New()
	WriteTree(t, fs, files)
	return fs
}

// WriteTree writes every file in files to fs, creating parent directories.
func WriteTree(t testing.TB, fs billy.Filesystem, files map[string]string) {
	t.Helper()
	for name, content := range files {
		require.NoError(t, fs.MkdirAll(path.Dir(name), 0o755))
		require.NoError(t, util.WriteFile(fs, name, []byte(content), 0o644))
	}
}

// Symlink creates a symbolic link at link pointing to target.
func Symlink(t testing.TB, fs billy.Filesystem, target, link string) {
	t.Helper()
	require.NoError(t, fs.MkdirAll(path.Dir(link), 0o755))
	require.NoError(t, fs.Symlink(target, link))
}

// ReadTree returns every regular file under root, keyed by its path relative
// to root.
func ReadTree(t testing.TB, fs billy.Filesystem, root string) map[string]string {
	t.Helper()
	files := make(map[string]string)
	err := util.Walk(fs, root, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.Mode().IsRegular() {
			return nil
		}
		data, err := util.ReadFile(fs, p)
		if err != nil {
			return err
		}
		rel := p
		if root != "" && root != "/" {
			rel = p[len(root):]
		}
		files[trimSlash(rel)] = string(data)
		return nil
	})
	require.NoError(t, err)
	return files
}

// SortedKeys returns the keys of m in sorted order.
func SortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Logger returns a logger that discards all records.
func Logger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func trimSlash(p string) string {
	for len(p) > 0 && p[0] == '/' {
		p = p[1:]
	}
	return p
}
