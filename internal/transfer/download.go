// Package transfer streams object content through signed download URLs.
package transfer

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/go-git/go-billy/v5"

	"github.com/input-output-hk/catalyst-forge-libs/objfs/errors"
	"github.com/input-output-hk/catalyst-forge-libs/objfs/internal/metrics"
	"github.com/input-output-hk/catalyst-forge-libs/objfs/internal/pool"
)

// Signer produces time-limited download URLs.
type Signer interface {
	SignURL(ctx context.Context, key string, expiry time.Duration) (string, error)
}

// Downloader fetches objects over HTTP and writes them in fixed-size chunks.
type Downloader struct {
	signer  Signer
	client  *http.Client
	fs      billy.Filesystem
	expiry  time.Duration
	buffers *pool.BufferPool
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewDownloader creates a Downloader writing to fs. A nil client uses
// http.DefaultClient.
func NewDownloader(
	signer Signer,
	fs billy.Filesystem,
	client *http.Client,
	expiry time.Duration,
	logger *slog.Logger,
	m *metrics.Metrics,
) *Downloader {
	if client == nil {
		client = http.DefaultClient
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Downloader{
		signer:  signer,
		client:  client,
		fs:      fs,
		expiry:  expiry,
		buffers: pool.Chunks(),
		logger:  logger,
		metrics: m,
	}
}

// Fetch downloads key to the local file at localPath, truncating it if it
// exists. A failed transfer removes the partial file so the next attempt
// starts from scratch.
func (d *Downloader) Fetch(ctx context.Context, key, localPath string) error {
	body, err := d.open(ctx, key)
	if err != nil {
		return err
	}
	defer func() { _ = body.Close() }()

	f, err := d.fs.OpenFile(localPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return errors.NewError("download", err).WithKey(localPath)
	}

	n, copyErr := d.copy(f, body)
	closeErr := f.Close()
	if copyErr == nil {
		copyErr = closeErr
	}
	if copyErr != nil {
		if rmErr := d.fs.Remove(localPath); rmErr != nil {
			d.logger.WarnContext(ctx, "failed to remove partial download", "path", localPath, "error", rmErr)
		}
		return errors.NewError("download", copyErr).WithKey(key)
	}

	d.logger.DebugContext(ctx, "downloaded object", "key", key, "path", localPath, "bytes", n)
	return nil
}

// Stream writes the content of key to w and returns the number of bytes written.
func (d *Downloader) Stream(ctx context.Context, key string, w io.Writer) (int64, error) {
	body, err := d.open(ctx, key)
	if err != nil {
		return 0, err
	}
	defer func() { _ = body.Close() }()

	n, err := d.copy(w, body)
	if err != nil {
		return n, errors.NewError("cat", err).WithKey(key)
	}
	return n, nil
}

// open signs key and starts the GET request.
func (d *Downloader) open(ctx context.Context, key string) (io.ReadCloser, error) {
	url, err := d.signer.SignURL(ctx, key, d.expiry)
	if err != nil {
		return nil, errors.NewError("sign", err).WithKey(key)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.NewError("download", err).WithKey(key)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, errors.NewError("download", err).WithKey(key)
	}

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		_ = resp.Body.Close()
		return nil, errors.NewError("download", statusError(resp)).WithKey(key)
	}
	return resp.Body, nil
}

// copy moves r to w one chunk at a time. Empty reads are skipped.
func (d *Downloader) copy(w io.Writer, r io.Reader) (int64, error) {
	buf := d.buffers.Get()
	defer d.buffers.Put(buf)

	var total int64
	for {
		n, err := r.Read(buf)
		if n > 0 {
			written, werr := w.Write(buf[:n])
			total += int64(written)
			d.metrics.RecordBytesDownloaded(int64(written))
			if werr != nil {
				return total, werr
			}
			if written != n {
				return total, io.ErrShortWrite
			}
		}
		if err == io.EOF {
			return total, nil
		}
		if err != nil {
			return total, err
		}
	}
}

func statusError(resp *http.Response) error {
	msg := fmt.Sprintf("GET returned %s", resp.Status)
	switch resp.StatusCode {
	case http.StatusNotFound:
		return errors.NewStatusError(errors.KindNotFound, 0, msg)
	case http.StatusForbidden, http.StatusUnauthorized:
		return errors.NewStatusError(errors.KindAccessDenied, 0, msg)
	}
	return errors.NewStatusError(errors.KindProtocol, 0, msg)
}
