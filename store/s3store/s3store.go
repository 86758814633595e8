// Package s3store implements store.Store on Amazon S3 and S3-compatible services.
//
// Listings use ListObjectsV2 with a "/" delimiter and report the has_more
// shape: IsTruncated with NextContinuationToken as the context. Insert-only
// uploads use a conditional put (If-None-Match: *); when it is rejected the
// stored ETag is compared with the local MD5 to tell a byte-identical object
// from a conflicting one.
package s3store

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"github.com/go-git/go-billy/v5"

	objerrors "github.com/input-output-hk/catalyst-forge-libs/objfs/errors"
	"github.com/input-output-hk/catalyst-forge-libs/objfs/objtypes"
	"github.com/input-output-hk/catalyst-forge-libs/objfs/store"
)

// API is the subset of the S3 client used by Store.
type API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	DeleteObject(
		ctx context.Context,
		params *s3.DeleteObjectInput,
		optFns ...func(*s3.Options),
	) (*s3.DeleteObjectOutput, error)
	ListObjectsV2(
		ctx context.Context,
		params *s3.ListObjectsV2Input,
		optFns ...func(*s3.Options),
	) (*s3.ListObjectsV2Output, error)
}

// Presigner signs GetObject requests.
type Presigner interface {
	PresignGetObject(
		ctx context.Context,
		params *s3.GetObjectInput,
		optFns ...func(*s3.PresignOptions),
	) (*v4.PresignedHTTPRequest, error)
}

// Store is a store.Store backed by one S3 bucket.
type Store struct {
	api       API
	presigner Presigner
	bucket    string
	fs        billy.Filesystem
}

var _ store.Store = (*Store)(nil)

// New creates a Store over api. Upload sources are read from fs.
func New(api API, presigner Presigner, bucket string, fs billy.Filesystem) *Store {
	return &Store{
		api:       api,
		presigner: presigner,
		bucket:    bucket,
		fs:        fs,
	}
}

// NewFromClient creates a Store from an SDK client.
func NewFromClient(client *s3.Client, bucket string, fs billy.Filesystem) *Store {
	return New(client, s3.NewPresignClient(client), bucket, fs)
}

// Bucket returns the bucket name.
func (s *Store) Bucket() string {
	return s.bucket
}

// List implements store.Store.
func (s *Store) List(ctx context.Context, req store.ListRequest) (*store.Page, error) {
	input := &s3.ListObjectsV2Input{
		Bucket:    aws.String(s.bucket),
		Prefix:    aws.String(req.Prefix + req.Filter),
		Delimiter: aws.String("/"),
	}
	if req.Cursor != "" {
		input.ContinuationToken = aws.String(req.Cursor)
	}
	if req.Limit > 0 {
		input.MaxKeys = aws.Int32(int32(req.Limit))
	}

	out, err := s.api.ListObjectsV2(ctx, input)
	if err != nil {
		return nil, classify(err)
	}

	entries := make([]objtypes.Entry, 0, len(out.Contents)+len(out.CommonPrefixes))
	for _, p := range out.CommonPrefixes {
		entries = append(entries, objtypes.NewEntry(aws.ToString(p.Prefix), "", 0, time.Time{}))
	}
	for _, obj := range out.Contents {
		key := aws.ToString(obj.Key)
		// The directory marker of the listed prefix
		if key == req.Prefix {
			continue
		}
		entries = append(entries, objtypes.NewEntry(
			key,
			etagOrPlaceholder(obj.ETag),
			aws.ToInt64(obj.Size),
			aws.ToTime(obj.LastModified),
		))
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Key < entries[j].Key })

	more := aws.ToBool(out.IsTruncated)
	return &store.Page{
		Entries: entries,
		HasMore: &more,
		Context: aws.ToString(out.NextContinuationToken),
	}, nil
}

// PutObject implements store.Store.
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

	contentType := store.DetectContentType(s.fs, req.LocalPath)

	file, err := s.fs.Open(req.LocalPath)
	if err != nil {
		return objerrors.NewError("put", err).WithKey(req.LocalPath)
	}
	defer file.Close()

	input := &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(req.Key),
		Body:          file,
		ContentLength: aws.Int64(info.Size()),
		ContentType:   aws.String(contentType),
	}
	if req.InsertOnly {
		input.IfNoneMatch = aws.String("*")
	}

	_, err = s.api.PutObject(ctx, input)
	if err == nil {
		return nil
	}

	classified := classify(err)
	if req.InsertOnly && objerrors.KindOf(classified) == objerrors.KindExists {
		return s.conflict(ctx, req)
	}
	return classified
}

// conflict distinguishes a byte-identical object from a different one after
// an insert-only put was rejected.
func (s *Store) conflict(ctx context.Context, req store.PutRequest) error {
	head, err := s.api.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(req.Key),
	})
	if err != nil {
		return classify(err)
	}

	sum, err := s.localMD5(req.LocalPath)
	if err != nil {
		return objerrors.NewError("put", err).WithKey(req.LocalPath)
	}
	if strings.Trim(aws.ToString(head.ETag), `"`) == sum {
		return objerrors.FromCode(objerrors.CodeSameFile, "same file exists: "+req.Key)
	}
	return objerrors.FromCode(objerrors.CodeExists, "object already exists: "+req.Key)
}

func (s *Store) localMD5(p string) (string, error) {
	f, err := s.fs.Open(p)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := md5.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// StatObject implements store.Store.
func (s *Store) StatObject(ctx context.Context, key string) (*objtypes.ObjectInfo, error) {
	out, err := s.api.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, classify(err)
	}

	info := &objtypes.ObjectInfo{
		Key:         key,
		Size:        aws.ToInt64(out.ContentLength),
		Created:     aws.ToTime(out.LastModified),
		Hash:        strings.Trim(aws.ToString(out.ETag), `"`),
		ContentType: aws.ToString(out.ContentType),
	}

	// The unsigned URL is the presigned one without its query
	if signed, err := s.SignURL(ctx, key, time.Minute); err == nil {
		if u, err := url.Parse(signed); err == nil {
			u.RawQuery = ""
			info.SourceURL = u.String()
		}
	}
	return info, nil
}

// SignURL implements store.Store.
func (s *Store) SignURL(ctx context.Context, key string, expiry time.Duration) (string, error) {
	req, err := s.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(expiry))
	if err != nil {
		return "", classify(err)
	}
	return req.URL, nil
}

// DeleteObject implements store.Store.
func (s *Store) DeleteObject(ctx context.Context, key string) error {
	_, err := s.api.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	return classify(err)
}

// CreatePrefix implements store.Store by writing an empty marker object.
func (s *Store) CreatePrefix(ctx context.Context, key string) error {
	_, err := s.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(store.MarkerKey(key)),
		Body:          strings.NewReader(""),
		ContentLength: aws.Int64(0),
	})
	return classify(err)
}

// DeletePrefix implements store.Store. The prefix must hold nothing but its
// own marker.
func (s *Store) DeletePrefix(ctx context.Context, key string) error {
	marker := store.MarkerKey(key)

	out, err := s.api.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket:  aws.String(s.bucket),
		Prefix:  aws.String(marker),
		MaxKeys: aws.Int32(2),
	})
	if err != nil {
		return classify(err)
	}
	for _, obj := range out.Contents {
		if aws.ToString(obj.Key) != marker {
			return objerrors.NewStatusError(objerrors.KindProtocol, 0, "directory not empty: "+marker)
		}
	}

	_, err = s.api.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(marker),
	})
	if objerrors.KindOf(classify(err)) == objerrors.KindNotFound {
		return nil
	}
	return classify(err)
}

// etagOrPlaceholder keeps every listed object tagged as a file even when the
// backend omits its ETag.
func etagOrPlaceholder(etag *string) string {
	if v := strings.Trim(aws.ToString(etag), `"`); v != "" {
		return v
	}
	return "-"
}

// classify converts an SDK error to a *errors.StatusError.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return objerrors.NewStatusError(objerrors.KindProtocol, 0, err.Error())
	}

	kind := objerrors.KindProtocol
	switch apiErr.ErrorCode() {
	case "NoSuchKey", "NotFound", "NoSuchBucket":
		kind = objerrors.KindNotFound
	case "PreconditionFailed", "ConditionalRequestConflict":
		kind = objerrors.KindExists
	case "AccessDenied", "Forbidden", "InvalidAccessKeyId", "SignatureDoesNotMatch":
		kind = objerrors.KindAccessDenied
	case "IncompleteBody", "BadDigest":
		kind = objerrors.KindOffsetRollback
	case "InvalidArgument", "InvalidRequest", "KeyTooLongError", "InvalidBucketName":
		kind = objerrors.KindInvalid
	}
	return objerrors.NewStatusError(kind, 0, fmt.Sprintf("%s: %s", apiErr.ErrorCode(), apiErr.ErrorMessage()))
}
