// Package miniostore implements store.Store on MinIO and other S3-compatible
// services through minio-go.
//
// Listings report the listover shape. minio-go hides continuation tokens
// behind a channel, so each page is read from a listing that starts after the
// previous cursor and is cut at the page limit; the cursor of the next page
// is the key of the last entry.
package miniostore

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	objerrors "github.com/input-output-hk/catalyst-forge-libs/objfs/errors"
	"github.com/input-output-hk/catalyst-forge-libs/objfs/objtypes"
	"github.com/input-output-hk/catalyst-forge-libs/objfs/store"
)

// DefaultPageSize is the page limit used when a request has none.
const DefaultPageSize = 1000

// API is the subset of *minio.Client used by Store.
type API interface {
	ListObjects(ctx context.Context, bucket string, opts minio.ListObjectsOptions) <-chan minio.ObjectInfo
	PutObject(
		ctx context.Context,
		bucket, key string,
		reader io.Reader,
		size int64,
		opts minio.PutObjectOptions,
	) (minio.UploadInfo, error)
	StatObject(ctx context.Context, bucket, key string, opts minio.StatObjectOptions) (minio.ObjectInfo, error)
	RemoveObject(ctx context.Context, bucket, key string, opts minio.RemoveObjectOptions) error
	PresignedGetObject(
		ctx context.Context,
		bucket, key string,
		expires time.Duration,
		reqParams url.Values,
	) (*url.URL, error)
}

// Config holds the connection settings of a MinIO server.
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Bucket    string
}

func (c Config) validate() error {
	if c.Endpoint == "" {
		return errors.New("endpoint is required")
	}
	if c.Bucket == "" {
		return errors.New("bucket is required")
	}
	return nil
}

// Store is a store.Store backed by one MinIO bucket.
type Store struct {
	api    API
	bucket string
	fs     billy.Filesystem
}

var _ store.Store = (*Store)(nil)

// New creates a Store over api. Upload sources are read from fs.
func New(api API, bucket string, fs billy.Filesystem) *Store {
	return &Store{api: api, bucket: bucket, fs: fs}
}

// Dial connects to the server described by cfg.
func Dial(cfg Config, fs billy.Filesystem) (*Store, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}
	return New(client, cfg.Bucket, fs), nil
}

// List implements store.Store.
func (s *Store) List(ctx context.Context, req store.ListRequest) (*store.Page, error) {
	limit := req.Limit
	if limit <= 0 {
		limit = DefaultPageSize
	}

	// Stops the listing goroutine once the page is full
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	opts := minio.ListObjectsOptions{
		Prefix:    req.Prefix + req.Filter,
		Recursive: false,
		MaxKeys:   limit,
	}
	if req.Cursor != "" {
		opts.StartAfter = req.Cursor
	}

	entries := make([]objtypes.Entry, 0, limit)
	more := false
	for obj := range s.api.ListObjects(ctx, s.bucket, opts) {
		if obj.Err != nil {
			return nil, classify(obj.Err)
		}
		// Rolled-up prefixes may repeat the cursor
		if obj.Key == req.Prefix || (req.Cursor != "" && obj.Key <= req.Cursor) {
			continue
		}
		if len(entries) == limit {
			more = true
			break
		}
		entries = append(entries, entryOf(obj))
	}

	over := !more
	return &store.Page{Entries: entries, ListOver: &over}, nil
}

func entryOf(obj minio.ObjectInfo) objtypes.Entry {
	if strings.HasSuffix(obj.Key, "/") {
		return objtypes.NewEntry(obj.Key, "", 0, time.Time{})
	}
	hash := strings.Trim(obj.ETag, `"`)
	if hash == "" {
		hash = "-"
	}
	return objtypes.NewEntry(obj.Key, hash, obj.Size, obj.LastModified)
}

// PutObject implements store.Store. Insert-only uploads stat the key first;
// an existing object is compared with the local MD5.
func (s *Store) PutObject(ctx context.Context, req store.PutRequest) error {
	info, err := s.fs.Stat(req.LocalPath)
	if err != nil {
		return objerrors.NewError("put", err).WithKey(req.LocalPath)
	}
	if info.IsDir() {
		return objerrors.NewError("put", objerrors.ErrInvalidInput).
			WithKey(req.LocalPath).
			WithMessage("source is a directory")
	}

	if req.InsertOnly {
		existing, err := s.api.StatObject(ctx, s.bucket, req.Key, minio.StatObjectOptions{})
		switch {
		case err == nil:
			return s.conflict(req, existing.ETag)
		case objerrors.KindOf(classify(err)) != objerrors.KindNotFound:
			return classify(err)
		}
	}

	contentType := store.DetectContentType(s.fs, req.LocalPath)
	file, err := s.fs.Open(req.LocalPath)
	if err != nil {
		return objerrors.NewError("put", err).WithKey(req.LocalPath)
	}
	defer file.Close()

	_, err = s.api.PutObject(ctx, s.bucket, req.Key, file, info.Size(), minio.PutObjectOptions{
		ContentType: contentType,
	})
	return classify(err)
}

func (s *Store) conflict(req store.PutRequest, etag string) error {
	f, err := s.fs.Open(req.LocalPath)
	if err != nil {
		return objerrors.NewError("put", err).WithKey(req.LocalPath)
	}
	defer f.Close()

	h := md5.New()
	if _, err := io.Copy(h, f); err != nil {
		return objerrors.NewError("put", err).WithKey(req.LocalPath)
	}
	if strings.Trim(etag, `"`) == hex.EncodeToString(h.Sum(nil)) {
		return objerrors.FromCode(objerrors.CodeSameFile, "same file exists: "+req.Key)
	}
	return objerrors.FromCode(objerrors.CodeExists, "object already exists: "+req.Key)
}

// StatObject implements store.Store.
func (s *Store) StatObject(ctx context.Context, key string) (*objtypes.ObjectInfo, error) {
	obj, err := s.api.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{})
	if err != nil {
		return nil, classify(err)
	}

	info := &objtypes.ObjectInfo{
		Key:         key,
		Size:        obj.Size,
		Created:     obj.LastModified,
		Hash:        strings.Trim(obj.ETag, `"`),
		ContentType: obj.ContentType,
	}
	if u, err := s.api.PresignedGetObject(ctx, s.bucket, key, time.Minute, nil); err == nil {
		u.RawQuery = ""
		info.SourceURL = u.String()
	}
	return info, nil
}

// SignURL implements store.Store.
func (s *Store) SignURL(ctx context.Context, key string, expiry time.Duration) (string, error) {
	u, err := s.api.PresignedGetObject(ctx, s.bucket, key, expiry, nil)
	if err != nil {
		return "", classify(err)
	}
	return u.String(), nil
}

// DeleteObject implements store.Store.
func (s *Store) DeleteObject(ctx context.Context, key string) error {
	return classify(s.api.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}))
}

// CreatePrefix implements store.Store by writing an empty marker object.
func (s *Store) CreatePrefix(ctx context.Context, key string) error {
	_, err := s.api.PutObject(ctx, s.bucket, store.MarkerKey(key), strings.NewReader(""), 0, minio.PutObjectOptions{})
	return classify(err)
}

// DeletePrefix implements store.Store. The prefix must hold nothing but its
// own marker.
func (s *Store) DeletePrefix(ctx context.Context, key string) error {
	marker := store.MarkerKey(key)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	for obj := range s.api.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
		Prefix:    marker,
		Recursive: true,
		MaxKeys:   2,
	}) {
		if obj.Err != nil {
			return classify(obj.Err)
		}
		if obj.Key != marker {
			return objerrors.NewStatusError(objerrors.KindProtocol, 0, "directory not empty: "+marker)
		}
	}

	err := classify(s.api.RemoveObject(ctx, s.bucket, marker, minio.RemoveObjectOptions{}))
	if objerrors.KindOf(err) == objerrors.KindNotFound {
		return nil
	}
	return err
}

// classify converts a minio-go error to a *errors.StatusError.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	resp := minio.ToErrorResponse(err)
	if resp.Code == "" {
		return objerrors.NewStatusError(objerrors.KindProtocol, 0, err.Error())
	}

	kind := objerrors.KindProtocol
	switch resp.Code {
	case "NoSuchKey", "NoSuchBucket", "NotFound":
		kind = objerrors.KindNotFound
	case "PreconditionFailed":
		kind = objerrors.KindExists
	case "AccessDenied", "InvalidAccessKeyId", "SignatureDoesNotMatch":
		kind = objerrors.KindAccessDenied
	case "IncompleteBody", "BadDigest":
		kind = objerrors.KindOffsetRollback
	case "InvalidArgument", "InvalidRequest", "XMinioInvalidObjectName", "InvalidBucketName":
		kind = objerrors.KindInvalid
	}
	return objerrors.NewStatusError(kind, 0, fmt.Sprintf("%s: %s", resp.Code, resp.Message))
}
