package objfs

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awscredentials "github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"

	"github.com/input-output-hk/catalyst-forge-libs/objfs/errors"
	"github.com/input-output-hk/catalyst-forge-libs/objfs/internal/credentials"
	"github.com/input-output-hk/catalyst-forge-libs/objfs/internal/validation"
	"github.com/input-output-hk/catalyst-forge-libs/objfs/objtypes"
	"github.com/input-output-hk/catalyst-forge-libs/objfs/store"
	"github.com/input-output-hk/catalyst-forge-libs/objfs/store/miniostore"
	"github.com/input-output-hk/catalyst-forge-libs/objfs/store/s3store"
)

// Supported store backends.
const (
	BackendS3    = "s3"
	BackendMinio = "minio"
)

// DefaultRegion is used when no region is configured.
const DefaultRegion = "us-east-1"

// Config describes the store backend and the client settings of a Client
// built by NewFromConfig.
type Config struct {
	// Backend is "s3" or "minio"
	Backend string

	// Store
	Bucket         string
	Region         string
	Endpoint       string
	UseSSL         bool
	ForcePathStyle bool

	// Static keys; both or neither must be set
	AccessKey string
	SecretKey string

	// CredentialsSecret names a Secrets Manager secret holding the access
	// keys. It takes precedence over the static keys.
	CredentialsSecret string

	// Client
	Concurrency    int
	RetryCount     int
	StatRetryCount int
	RetryInterval  time.Duration
	SignExpiry     time.Duration

	// retryIntervalSet keeps an explicit zero interval from the environment
	retryIntervalSet bool
}

// LoadConfigFromEnv reads a Config from OBJFS_* environment variables.
// Unset or unparsable values fall back to the client defaults.
func LoadConfigFromEnv() (*Config, error) {
	cfg := &Config{
		Backend:           envOr("OBJFS_BACKEND", BackendS3),
		Bucket:            envOr("OBJFS_BUCKET", ""),
		Region:            envOr("OBJFS_REGION", DefaultRegion),
		Endpoint:          envOr("OBJFS_ENDPOINT", ""),
		UseSSL:            envBool("OBJFS_USE_SSL", true),
		ForcePathStyle:    envBool("OBJFS_FORCE_PATH_STYLE", false),
		AccessKey:         envOr("OBJFS_ACCESS_KEY", ""),
		SecretKey:         envOr("OBJFS_SECRET_KEY", ""),
		CredentialsSecret: envOr("OBJFS_CREDENTIALS_SECRET", ""),
		Concurrency:       envInt("OBJFS_CONCURRENCY", DefaultConcurrency),
		RetryCount:        envInt("OBJFS_RETRY_COUNT", DefaultRetryCount),
		StatRetryCount:    envInt("OBJFS_STAT_RETRY_COUNT", DefaultStatRetryCount),
		RetryInterval:     envDuration("OBJFS_RETRY_INTERVAL", DefaultRetryInterval),
		SignExpiry:        envDuration("OBJFS_SIGN_EXPIRY", DefaultSignExpiry),
	}
	_, cfg.retryIntervalSet = os.LookupEnv("OBJFS_RETRY_INTERVAL")

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if err := validation.ValidateBucketName(c.Bucket); err != nil {
		return errors.NewError("config", errors.ErrInvalidBucketName).
			WithBucket(c.Bucket).
			WithMessage(err.Error())
	}

	switch c.Backend {
	case BackendS3:
	case BackendMinio:
		if c.Endpoint == "" {
			return errors.NewError("config", errors.ErrInvalidInput).
				WithMessage("endpoint is required for the minio backend")
		}
		if c.CredentialsSecret != "" {
			return errors.NewError("config", errors.ErrInvalidInput).
				WithMessage("credentials secret is only supported by the s3 backend")
		}
	default:
		return errors.NewError("config", errors.ErrInvalidInput).
			WithMessage(fmt.Sprintf("unknown backend %q", c.Backend))
	}

	if (c.AccessKey == "") != (c.SecretKey == "") {
		return errors.NewError("config", errors.ErrInvalidInput).
			WithMessage("access key and secret key must be set together")
	}
	return nil
}

// options converts the client settings of c to options. Zero values keep
// the defaults, except a retry interval read from the environment.
func (c *Config) options() []objtypes.Option {
	opts := []objtypes.Option{
		WithConcurrency(c.Concurrency),
		WithRetryCount(c.RetryCount),
		WithStatRetryCount(c.StatRetryCount),
		WithSignExpiry(c.SignExpiry),
	}
	if c.RetryInterval > 0 || c.retryIntervalSet {
		opts = append(opts, WithRetryInterval(c.RetryInterval))
	}
	return opts
}

// NewFromConfig creates a Client over the backend described by cfg.
// Options in opts are applied after the settings of cfg.
//
// Example:
//
//	cfg, err := objfs.LoadConfigFromEnv()
//	if err != nil {
//	    return err
//	}
//	client, err := objfs.NewFromConfig(ctx, cfg, objfs.WithLogger(logger))
func NewFromConfig(ctx context.Context, cfg *Config, opts ...objtypes.Option) (*Client, error) {
	if cfg == nil {
		return nil, errors.NewError("client initialization", errors.ErrInvalidInput).
			WithMessage("config cannot be nil")
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	opts = append(cfg.options(), opts...)

	// The store reads upload sources from the same filesystem as the client
	applied := objtypes.ClientConfig{}
	for _, opt := range opts {
		opt(&applied)
	}
	filesystem := applied.Filesystem
	if filesystem == nil {
		filesystem = osfs.New("/")
	}

	var (
		s   store.Store
		err error
	)
	switch cfg.Backend {
	case BackendMinio:
		s, err = miniostore.Dial(miniostore.Config{
			Endpoint:  cfg.Endpoint,
			AccessKey: cfg.AccessKey,
			SecretKey: cfg.SecretKey,
			UseSSL:    cfg.UseSSL,
			Bucket:    cfg.Bucket,
		}, filesystem)
	default:
		s, err = newS3Store(ctx, cfg, filesystem, applied.Logger)
	}
	if err != nil {
		return nil, errors.NewError("client initialization", err).WithBucket(cfg.Bucket)
	}

	return New(s, opts...), nil
}

func newS3Store(ctx context.Context, cfg *Config, filesystem billy.Filesystem, logger *slog.Logger) (*s3store.Store, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, err
	}
	if awsCfg.Region == "" {
		awsCfg.Region = DefaultRegion
	}

	switch {
	case cfg.CredentialsSecret != "":
		// The secret itself is read with the default credential chain
		resolver := credentials.NewResolverFromConfig(awsCfg, credentials.DefaultTTL, logger)
		awsCfg.Credentials = aws.NewCredentialsCache(resolver.Provider(cfg.CredentialsSecret))
	case cfg.AccessKey != "":
		awsCfg.Credentials = awscredentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(endpointURL(cfg.Endpoint, cfg.UseSSL))
		}
		o.UsePathStyle = cfg.ForcePathStyle
	})
	return s3store.NewFromClient(client, cfg.Bucket, filesystem), nil
}

// endpointURL adds a scheme to a bare host:port endpoint.
func endpointURL(endpoint string, useSSL bool) string {
	if strings.HasPrefix(endpoint, "http://") || strings.HasPrefix(endpoint, "https://") {
		return endpoint
	}
	if useSSL {
		return "https://" + endpoint
	}
	return "http://" + endpoint
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return i
}

// envDuration accepts a Go duration ("1500ms") or a number of seconds.
func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if secs, err := strconv.ParseFloat(v, 64); err == nil {
		return time.Duration(secs * float64(time.Second))
	}
	return fallback
}
