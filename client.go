// Package objfs provides client initialization and configuration.
package objfs

import (
	"io"
	"log/slog"
	"os"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"

	"github.com/input-output-hk/catalyst-forge-libs/objfs/internal/listing"
	"github.com/input-output-hk/catalyst-forge-libs/objfs/internal/metrics"
	"github.com/input-output-hk/catalyst-forge-libs/objfs/internal/retry"
	"github.com/input-output-hk/catalyst-forge-libs/objfs/internal/sync/executor"
	"github.com/input-output-hk/catalyst-forge-libs/objfs/internal/sync/scanner"
	syncpkg "github.com/input-output-hk/catalyst-forge-libs/objfs/internal/sync/sync"
	"github.com/input-output-hk/catalyst-forge-libs/objfs/internal/transfer"
	"github.com/input-output-hk/catalyst-forge-libs/objfs/objtypes"
	"github.com/input-output-hk/catalyst-forge-libs/objfs/store"
)

// Defaults of a Client.
const (
	DefaultConcurrency    = objtypes.DefaultConcurrency
	DefaultRetryCount     = objtypes.DefaultRetryCount
	DefaultStatRetryCount = objtypes.DefaultStatRetryCount
	DefaultRetryInterval  = objtypes.DefaultRetryInterval
	DefaultPollTimeout    = objtypes.DefaultPollTimeout
	DefaultSignExpiry     = objtypes.DefaultSignExpiry
)

// Client is a filesystem-like view of a remote object store.
// It is safe for concurrent use; each directory operation owns its own task
// queue and worker pool.
type Client struct {
	store   store.Store
	fs      billy.Filesystem
	config  objtypes.ClientConfig
	logger  *slog.Logger
	metrics *metrics.Metrics

	// diagnostics receives the failure listing of failed directory operations
	diagnostics io.Writer

	// osRooted is set when fs is the default OS filesystem rooted at "/"
	osRooted bool

	bulk       retry.Policy
	stat       retry.Policy
	lister     *listing.Lister
	downloader *transfer.Downloader
	manager    *syncpkg.Manager
}

// New creates a client over s with the provided options.
//
// Example:
//
//	client := objfs.New(s3store.NewFromClient(s3Client, "bucket", nil),
//	    objfs.WithConcurrency(4),
//	    objfs.WithLogger(slog.Default()),
//	)
func New(s store.Store, opts ...objtypes.Option) *Client {
	cfg := objtypes.ClientConfig{
		Concurrency:    DefaultConcurrency,
		RetryCount:     DefaultRetryCount,
		StatRetryCount: DefaultStatRetryCount,
		RetryInterval:  DefaultRetryInterval,
		PollTimeout:    DefaultPollTimeout,
		SignExpiry:     DefaultSignExpiry,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	osRooted := false
	filesystem := cfg.Filesystem
	if filesystem == nil {
		filesystem = osfs.New("/")
		osRooted = true
	}

	diagnostics := cfg.Diagnostics
	if diagnostics == nil {
		diagnostics = os.Stderr
	}

	m := metrics.New(cfg.MetricsRegisterer)

	bulk := retry.New(cfg.RetryCount, cfg.RetryInterval, logger)
	bulk.OnRetry = func(op string, _ int, _ error) { m.RecordRetry(op) }
	stat := retry.New(cfg.StatRetryCount, cfg.RetryInterval, logger)
	stat.OnRetry = bulk.OnRetry

	lister := listing.New(s, stat, cfg.PageSize, logger, m)
	downloader := transfer.NewDownloader(s, filesystem, cfg.HTTPClient, cfg.SignExpiry, logger, m)
	manager := syncpkg.NewManager(
		s,
		scanner.NewScanner(filesystem, lister, logger, m),
		executor.NewExecutor(cfg.Concurrency, bulk, logger, m),
		downloader,
		syncpkg.Options{
			Filesystem:  filesystem,
			Bulk:        bulk,
			PollTimeout: cfg.PollTimeout,
			Silent:      cfg.Silent,
			Diagnostics: diagnostics,
			Logger:      logger,
			Metrics:     m,
		},
	)

	return &Client{
		store:       s,
		fs:          filesystem,
		config:      cfg,
		logger:      logger,
		metrics:     m,
		osRooted:    osRooted,
		diagnostics: diagnostics,
		bulk:        bulk,
		stat:        stat,
		lister:      lister,
		downloader:  downloader,
		manager:     manager,
	}
}

// Store returns the store the client operates on.
func (c *Client) Store() store.Store {
	return c.store
}

// Filesystem returns the local filesystem used for transfers.
func (c *Client) Filesystem() billy.Filesystem {
	return c.fs
}

// Config returns a copy of the effective configuration.
func (c *Client) Config() objtypes.ClientConfig {
	return c.config
}

// localPath resolves p against the working directory when the client runs on
// the default OS filesystem. Paths on an injected filesystem are used as is.
func (c *Client) localPath(p string) string {
	if !c.osRooted || p == "" || p[0] == '/' {
		return p
	}
	wd, err := os.Getwd()
	if err != nil {
		return p
	}
	return c.fs.Join(wd, p)
}
