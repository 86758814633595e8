package testutil

import (
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"

	"github.com/input-output-hk/catalyst-forge-libs/objfs/errors"
	"github.com/input-output-hk/catalyst-forge-libs/objfs/objtypes"
	"github.com/input-output-hk/catalyst-forge-libs/objfs/store"
)

// PageShape selects how MemoryStore reports pagination.
type PageShape int

const (
	// ShapeHasMore reports has_more with a context token
	ShapeHasMore PageShape = iota

	// ShapeListOver reports listover and no context token
	ShapeListOver
)

// CodeDirNotEmpty is returned when deleting a prefix that still has children.
const CodeDirNotEmpty = -173

// Call is one recorded store call.
type Call struct {
	Op  string
	Key string
}

type memObject struct {
	data    []byte
	hash    string
	created time.Time
}

// MemoryStore is an in-memory store.Store with COS-style status codes.
// Signed URLs point at an httptest server that serves object content and
// rejects bad or expired signatures.
type MemoryStore struct {
	// Shape selects the pagination shape of List
	Shape PageShape

	// ReportCounts sets FileCount and DirCount on every page
	ReportCounts bool

	// PageSize is used when a request has no limit
	PageSize int

	mu       sync.Mutex
	fs       billy.Filesystem
	objects  map[string]*memObject
	prefixes map[string]bool
	faults   map[string][]error
	calls    []Call
	lists    []store.ListRequest
	server   *httptest.Server
	secret   []byte
	now      func() time.Time
}

var _ store.Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty store that reads upload sources from fs.
// The signing server is closed when the test ends.
func NewMemoryStore(t testing.TB, fs billy.Filesystem) *MemoryStore {
	t.Helper()

	m := &MemoryStore{
		PageSize: 100,
		fs:       fs,
		objects:  make(map[string]*memObject),
		prefixes: make(map[string]bool),
		faults:   make(map[string][]error),
		secret:   []byte("memory-store-secret"),
		now:      time.Now,
	}
	m.server = httptest.NewServer(http.HandlerFunc(m.serveSigned))
	t.Cleanup(m.server.Close)
	return m
}

// Fail makes the next calls of op on key return errs, one per call, before
// normal behavior resumes. op is one of list, put, stat, sign, delete,
// mkdir and rmdir. For list, key is the listed prefix.
func (m *MemoryStore) Fail(op, key string, errs ...error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := op + "\x00" + key
	m.faults[id] = append(m.faults[id], errs...)
}

// FailCode is Fail with COS-style status codes.
func (m *MemoryStore) FailCode(op, key string, codes ...int) {
	errs := make([]error, len(codes))
	for i, code := range codes {
		errs[i] = errors.FromCode(code, fmt.Sprintf("injected status %d", code))
	}
	m.Fail(op, key, errs...)
}

// SetNow replaces the clock used for creation times and signature expiry.
func (m *MemoryStore) SetNow(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

// Put stores data under key directly, bypassing PutObject.
func (m *MemoryStore) Put(key string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = &memObject{data: append([]byte(nil), data...), hash: contentHash(data), created: m.now()}
}

// AddPrefix creates a directory marker directly.
func (m *MemoryStore) AddPrefix(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prefixes[strings.TrimSuffix(key, "/")+"/"] = true
}

// Object returns the content stored under key.
func (m *MemoryStore) Object(key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	obj, ok := m.objects[key]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), obj.data...), true
}

// Keys returns every object key in sorted order.
func (m *MemoryStore) Keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]string, 0, len(m.objects))
	for k := range m.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// HasPrefix reports whether a directory marker exists for key.
func (m *MemoryStore) HasPrefix(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.prefixes[strings.TrimSuffix(key, "/")+"/"]
}

// Calls returns every recorded mutating call in order.
func (m *MemoryStore) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Call(nil), m.calls...)
}

// ListRequests returns every listing request in order.
func (m *MemoryStore) ListRequests() []store.ListRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]store.ListRequest(nil), m.lists...)
}

// URL returns the base URL of the signing server.
func (m *MemoryStore) URL() string {
	return m.server.URL
}

// fault pops an injected error. The caller must hold m.mu.
func (m *MemoryStore) fault(op, key string) error {
	id := op + "\x00" + key
	errs := m.faults[id]
	if len(errs) == 0 {
		return nil
	}
	m.faults[id] = errs[1:]
	return errs[0]
}

// List implements store.Store.
func (m *MemoryStore) List(_ context.Context, req store.ListRequest) (*store.Page, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.lists = append(m.lists, req)
	if err := m.fault("list", req.Prefix); err != nil {
		return nil, err
	}

	children := m.children(req.Prefix, req.Filter)
	start := 0
	if req.Cursor != "" {
		start = sort.Search(len(children), func(i int) bool { return children[i].Key > req.Cursor })
	}

	limit := req.Limit
	if limit <= 0 {
		limit = m.PageSize
	}
	end := start + limit
	if end > len(children) {
		end = len(children)
	}
	entries := children[start:end]
	more := end < len(children)

	page := &store.Page{Entries: entries}
	switch m.Shape {
	case ShapeListOver:
		over := !more
		page.ListOver = &over
	default:
		page.HasMore = &more
		if more {
			page.Context = entries[len(entries)-1].Key
		}
	}

	if m.ReportCounts {
		files, dirs := 0, 0
		for _, e := range entries {
			if e.IsFile() {
				files++
			} else {
				dirs++
			}
		}
		page.FileCount = &files
		page.DirCount = &dirs
	}
	return page, nil
}

// children returns the direct children of prefix sorted by key. The caller
// must hold m.mu.
func (m *MemoryStore) children(prefix, filter string) []objtypes.Entry {
	seen := make(map[string]objtypes.Entry)

	addDir := func(rest string) {
		idx := strings.Index(rest, "/")
		key := prefix + rest[:idx+1]
		if _, ok := seen[key]; !ok {
			seen[key] = objtypes.NewEntry(key, "", 0, time.Time{})
		}
	}

	for key, obj := range m.objects {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		rest := key[len(prefix):]
		if rest == "" || !strings.HasPrefix(rest, filter) {
			continue
		}
		if strings.Contains(rest, "/") {
			addDir(rest)
			continue
		}
		seen[key] = objtypes.NewEntry(key, obj.hash, int64(len(obj.data)), obj.created)
	}
	for key := range m.prefixes {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		rest := key[len(prefix):]
		if rest == "" || !strings.HasPrefix(rest, filter) {
			continue
		}
		addDir(rest)
	}

	entries := make([]objtypes.Entry, 0, len(seen))
	for _, e := range seen {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Key < entries[j].Key })
	return entries
}

// PutObject implements store.Store.
func (m *MemoryStore) PutObject(_ context.Context, req store.PutRequest) error {
	data, err := util.ReadFile(m.fs, req.LocalPath)
	if err != nil {
		return errors.NewError("put", err).WithKey(req.LocalPath)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls = append(m.calls, Call{Op: "put", Key: req.Key})
	if err := m.fault("put", req.Key); err != nil {
		return err
	}

	hash := contentHash(data)
	if existing, ok := m.objects[req.Key]; ok && req.InsertOnly {
		if existing.hash == hash {
			return errors.FromCode(errors.CodeSameFile, "same file exists")
		}
		return errors.FromCode(errors.CodeExists, "file already exists")
	}

	m.objects[req.Key] = &memObject{data: data, hash: hash, created: m.now()}
	return nil
}

// StatObject implements store.Store.
func (m *MemoryStore) StatObject(_ context.Context, key string) (*objtypes.ObjectInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.fault("stat", key); err != nil {
		return nil, err
	}
	obj, ok := m.objects[key]
	if !ok {
		return nil, errors.NewStatusError(errors.KindNotFound, 0, "object not found: "+key)
	}
	return &objtypes.ObjectInfo{
		Key:       key,
		Size:      int64(len(obj.data)),
		Created:   obj.created,
		Hash:      obj.hash,
		SourceURL: m.sourceURL(key),
	}, nil
}

// SignURL implements store.Store.
func (m *MemoryStore) SignURL(_ context.Context, key string, expiry time.Duration) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.fault("sign", key); err != nil {
		return "", err
	}
	expires := m.now().Add(expiry).Unix()
	return m.sourceURL(key) + "?sign=" + m.sign(key, expires), nil
}

// DeleteObject implements store.Store.
func (m *MemoryStore) DeleteObject(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls = append(m.calls, Call{Op: "delete", Key: key})
	if err := m.fault("delete", key); err != nil {
		return err
	}
	if _, ok := m.objects[key]; !ok {
		return errors.NewStatusError(errors.KindNotFound, 0, "object not found: "+key)
	}
	delete(m.objects, key)
	return nil
}

// CreatePrefix implements store.Store.
func (m *MemoryStore) CreatePrefix(_ context.Context, key string) error {
	key = strings.TrimSuffix(key, "/") + "/"

	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls = append(m.calls, Call{Op: "mkdir", Key: key})
	if err := m.fault("mkdir", key); err != nil {
		return err
	}
	m.prefixes[key] = true
	return nil
}

// DeletePrefix implements store.Store.
func (m *MemoryStore) DeletePrefix(_ context.Context, key string) error {
	key = strings.TrimSuffix(key, "/") + "/"

	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls = append(m.calls, Call{Op: "rmdir", Key: key})
	if err := m.fault("rmdir", key); err != nil {
		return err
	}
	for k := range m.objects {
		if strings.HasPrefix(k, key) {
			return errors.FromCode(CodeDirNotEmpty, "directory not empty: "+key)
		}
	}
	for k := range m.prefixes {
		if k != key && strings.HasPrefix(k, key) {
			return errors.FromCode(CodeDirNotEmpty, "directory not empty: "+key)
		}
	}
	delete(m.prefixes, key)
	return nil
}

func (m *MemoryStore) sourceURL(key string) string {
	return m.server.URL + (&url.URL{Path: "/" + key}).EscapedPath()
}

func (m *MemoryStore) sign(key string, expires int64) string {
	mac := hmac.New(sha256.New, m.secret)
	fmt.Fprintf(mac, "%s|%d", key, expires)
	return strconv.FormatInt(expires, 10) + "." + hex.EncodeToString(mac.Sum(nil))
}

// serveSigned serves object content for requests carrying a valid signature.
func (m *MemoryStore) serveSigned(w http.ResponseWriter, r *http.Request) {
	key := strings.TrimPrefix(r.URL.Path, "/")
	sig := r.URL.Query().Get("sign")

	expiresStr, _, ok := strings.Cut(sig, ".")
	expires, err := strconv.ParseInt(expiresStr, 10, 64)
	if !ok || err != nil {
		http.Error(w, "missing signature", http.StatusForbidden)
		return
	}

	m.mu.Lock()
	valid := hmac.Equal([]byte(sig), []byte(m.sign(key, expires))) && m.now().Unix() <= expires
	obj, found := m.objects[key]
	var data []byte
	if found {
		data = append([]byte(nil), obj.data...)
	}
	m.mu.Unlock()

	if !valid {
		http.Error(w, "invalid signature", http.StatusForbidden)
		return
	}
	if !found {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	_, _ = w.Write(data)
}

func contentHash(data []byte) string {
	sum := sha1.Sum(data)
	return hex.EncodeToString(sum[:])
}
