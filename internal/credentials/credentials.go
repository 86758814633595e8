// Package credentials resolves store access keys kept in AWS Secrets Manager.
//
// A secret holds a JSON document with the access key pair:
//
//	{"access_key_id": "...", "secret_access_key": "...", "session_token": "..."}
//
// Resolved keys are cached for a fixed TTL. Secret values are never logged.
package credentials

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/smithy-go"
)

// AWS error code constants
const (
	ResourceNotFoundException = "ResourceNotFoundException"
	AccessDeniedException     = "AccessDeniedException"
)

// DefaultTTL is how long resolved keys are reused.
const DefaultTTL = 15 * time.Minute

var (
	// ErrSecretNotFound is returned when the named secret does not exist.
	ErrSecretNotFound = errors.New("secret not found")

	// ErrSecretEmpty is returned when the secret has no value.
	ErrSecretEmpty = errors.New("secret value is empty")

	// ErrAccessDenied is returned when the caller may not read the secret.
	ErrAccessDenied = errors.New("access denied to secret")

	// ErrMalformedSecret is returned when the secret is not a key pair document.
	ErrMalformedSecret = errors.New("secret is not an access key document")
)

// ManagerAPI is the subset of the Secrets Manager client used by Resolver.
type ManagerAPI interface {
	GetSecretValue(
		ctx context.Context,
		params *secretsmanager.GetSecretValueInput,
		optFns ...func(*secretsmanager.Options),
	) (*secretsmanager.GetSecretValueOutput, error)
}

// Keys is an access key pair.
type Keys struct {
	AccessKeyID     string `json:"access_key_id"`
	SecretAccessKey string `json:"secret_access_key"`
	SessionToken    string `json:"session_token,omitempty"`
}

type cached struct {
	keys       Keys
	expiration time.Time
}

// Resolver reads access keys from named secrets.
type Resolver struct {
	api    ManagerAPI
	logger *slog.Logger
	ttl    time.Duration
	now    func() time.Time

	mu      sync.Mutex
	entries map[string]cached
}

// NewResolver creates a Resolver. A ttl of 0 uses DefaultTTL.
func NewResolver(api ManagerAPI, ttl time.Duration, logger *slog.Logger) *Resolver {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Resolver{
		api:     api,
		logger:  logger,
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]cached),
	}
}

// NewResolverFromConfig creates a Resolver from an AWS configuration.
func NewResolverFromConfig(cfg aws.Config, ttl time.Duration, logger *slog.Logger) *Resolver {
	return NewResolver(secretsmanager.NewFromConfig(cfg), ttl, logger)
}

// Resolve returns the keys stored in secretName.
func (r *Resolver) Resolve(ctx context.Context, secretName string) (Keys, error) {
	if secretName == "" {
		return Keys{}, fmt.Errorf("secret name cannot be empty")
	}

	r.mu.Lock()
	entry, ok := r.entries[secretName]
	r.mu.Unlock()
	if ok && r.now().Before(entry.expiration) {
		return entry.keys, nil
	}

	r.logger.InfoContext(ctx, "retrieving secret", "secret_name", secretName)

	output, err := r.api.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(secretName),
	})
	if err != nil {
		return Keys{}, r.handleError(ctx, secretName, err)
	}

	var raw []byte
	switch {
	case output.SecretString != nil:
		raw = []byte(*output.SecretString)
	case output.SecretBinary != nil:
		raw = output.SecretBinary
	default:
		return Keys{}, fmt.Errorf("GetSecret operation failed: %w", ErrSecretEmpty)
	}

	var keys Keys
	if err := json.Unmarshal(raw, &keys); err != nil || keys.AccessKeyID == "" || keys.SecretAccessKey == "" {
		return Keys{}, fmt.Errorf("GetSecret operation failed: %w", ErrMalformedSecret)
	}

	r.mu.Lock()
	r.entries[secretName] = cached{keys: keys, expiration: r.now().Add(r.ttl)}
	r.mu.Unlock()

	r.logger.InfoContext(ctx, "secret retrieved successfully", "secret_name", secretName)
	return keys, nil
}

// Provider adapts the keys of secretName to an aws.CredentialsProvider.
// Keys are resolved on every Retrieve and served from the cache until the
// TTL runs out.
func (r *Resolver) Provider(secretName string) aws.CredentialsProvider {
	return aws.CredentialsProviderFunc(func(ctx context.Context) (aws.Credentials, error) {
		keys, err := r.Resolve(ctx, secretName)
		if err != nil {
			return aws.Credentials{}, err
		}
		return aws.Credentials{
			AccessKeyID:     keys.AccessKeyID,
			SecretAccessKey: keys.SecretAccessKey,
			SessionToken:    keys.SessionToken,
			Source:          "objfs-secretsmanager",
		}, nil
	})
}

func (r *Resolver) handleError(ctx context.Context, secretName string, err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case ResourceNotFoundException:
			return fmt.Errorf("GetSecret operation failed: %w", ErrSecretNotFound)
		case AccessDeniedException:
			return fmt.Errorf("GetSecret operation failed: %w", ErrAccessDenied)
		}
		r.logger.ErrorContext(ctx, "failed to retrieve secret", "secret_name", secretName, "error", err)
		return fmt.Errorf("GetSecret operation failed: %s: %s", apiErr.ErrorCode(), apiErr.ErrorMessage())
	}

	r.logger.ErrorContext(ctx, "failed to retrieve secret", "secret_name", secretName, "error", err)
	return fmt.Errorf("GetSecret operation failed: %w", err)
}
