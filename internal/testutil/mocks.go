// Package testutil provides test utilities and mocks for objfs.
// This package is internal and should only be used for testing within the module.
package testutil

import (
	"context"
	"time"

	"github.com/input-output-hk/catalyst-forge-libs/objfs/objtypes"
	"github.com/input-output-hk/catalyst-forge-libs/objfs/store"
)

// MockStore is a mock implementation of the store.Store interface for testing.
// It allows customization of each store operation through function fields.
type MockStore struct {
	ListFunc         func(context.Context, store.ListRequest) (*store.Page, error)
	PutObjectFunc    func(context.Context, store.PutRequest) error
	StatObjectFunc   func(context.Context, string) (*objtypes.ObjectInfo, error)
	SignURLFunc      func(context.Context, string, time.Duration) (string, error)
	DeleteObjectFunc func(context.Context, string) error
	CreatePrefixFunc func(context.Context, string) error
	DeletePrefixFunc func(context.Context, string) error
}

var _ store.Store = (*MockStore)(nil)

// List mocks the store List operation.
func (m *MockStore) List(ctx context.Context, req store.ListRequest) (*store.Page, error) {
	if m.ListFunc != nil {
		return m.ListFunc(ctx, req)
	}
	done := false
	return &store.Page{HasMore: &done}, nil
}

// PutObject mocks the store PutObject operation.
func (m *MockStore) PutObject(ctx context.Context, req store.PutRequest) error {
	if m.PutObjectFunc != nil {
		return m.PutObjectFunc(ctx, req)
	}
	return nil
}

// StatObject mocks the store StatObject operation.
func (m *MockStore) StatObject(ctx context.Context, key string) (*objtypes.ObjectInfo, error) {
	if m.StatObjectFunc != nil {
		return m.StatObjectFunc(ctx, key)
	}
	return &objtypes.ObjectInfo{Key: key}, nil
}

// SignURL mocks the store SignURL operation.
func (m *MockStore) SignURL(ctx context.Context, key string, expiry time.Duration) (string, error) {
	if m.SignURLFunc != nil {
		return m.SignURLFunc(ctx, key, expiry)
	}
	return "http://localhost/" + key, nil
}

// DeleteObject mocks the store DeleteObject operation.
func (m *MockStore) DeleteObject(ctx context.Context, key string) error {
	if m.DeleteObjectFunc != nil {
		return m.DeleteObjectFunc(ctx, key)
	}
	return nil
}

// CreatePrefix mocks the store CreatePrefix operation.
func (m *MockStore) CreatePrefix(ctx context.Context, key string) error {
	if m.CreatePrefixFunc != nil {
		return m.CreatePrefixFunc(ctx, key)
	}
	return nil
}

// DeletePrefix mocks the store DeletePrefix operation.
func (m *MockStore) DeletePrefix(ctx context.Context, key string) error {
	if m.DeletePrefixFunc != nil {
		return m.DeletePrefixFunc(ctx, key)
	}
	return nil
}

// Pages returns a ListFunc that serves the given pages in order and records
// every request it receives.
func Pages(requests *[]store.ListRequest, pages ...*store.Page) func(context.Context, store.ListRequest) (*store.Page, error) {
	next := 0
	return func(_ context.Context, req store.ListRequest) (*store.Page, error) {
		if requests != nil {
			*requests = append(*requests, req)
		}
		if next >= len(pages) {
			done := true
			return &store.Page{ListOver: &done}, nil
		}
		page := pages[next]
		next++
		return page, nil
	}
}

// HasMorePage builds a has_more/context shaped page.
func HasMorePage(more bool, context string, entries ...objtypes.Entry) *store.Page {
	return &store.Page{Entries: entries, HasMore: &more, Context: context}
}

// ListOverPage builds a listover shaped page without a context token.
func ListOverPage(over bool, entries ...objtypes.Entry) *store.Page {
	return &store.Page{Entries: entries, ListOver: &over}
}

// FileEntry builds a file entry for key with a fixed hash.
func FileEntry(key string, size int64) objtypes.Entry {
	return objtypes.NewEntry(key, "sha-"+key, size, time.Unix(1700000000, 0))
}

// DirEntry builds a directory entry for key, which should end with "/".
func DirEntry(key string) objtypes.Entry {
	return objtypes.NewEntry(key, "", 0, time.Time{})
}
