package credentials

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockManagerAPI implements ManagerAPI for testing
type mockManagerAPI struct {
	calls              int
	getSecretValueFunc func(ctx context.Context, params *secretsmanager.GetSecretValueInput) (*secretsmanager.GetSecretValueOutput, error)
}

func (m *mockManagerAPI) GetSecretValue(
	ctx context.Context,
	params *secretsmanager.GetSecretValueInput,
	_ ...func(*secretsmanager.Options),
) (*secretsmanager.GetSecretValueOutput, error) {
	m.calls++
	if m.getSecretValueFunc != nil {
		return m.getSecretValueFunc(ctx, params)
	}
	return nil, fmt.Errorf("GetSecretValue not implemented")
}

func secretString(s string) func(context.Context, *secretsmanager.GetSecretValueInput) (*secretsmanager.GetSecretValueOutput, error) {
	return func(context.Context, *secretsmanager.GetSecretValueInput) (*secretsmanager.GetSecretValueOutput, error) {
		return &secretsmanager.GetSecretValueOutput{SecretString: aws.String(s)}, nil
	}
}

const keyDoc = `{"access_key_id": "AKIDEXAMPLE", "secret_access_key": "wJalrXUtnFEMI", "session_token": "tok"}`

func TestResolver_Resolve(t *testing.T) {
	api := &mockManagerAPI{getSecretValueFunc: secretString(keyDoc)}
	r := NewResolver(api, time.Minute, nil)

	keys, err := r.Resolve(context.Background(), "objfs/keys")
	require.NoError(t, err)
	assert.Equal(t, Keys{AccessKeyID: "AKIDEXAMPLE", SecretAccessKey: "wJalrXUtnFEMI", SessionToken: "tok"}, keys)
}

func TestResolver_Cache(t *testing.T) {
	api := &mockManagerAPI{getSecretValueFunc: secretString(keyDoc)}
	r := NewResolver(api, time.Minute, nil)
	now := time.Unix(1700000000, 0)
	r.now = func() time.Time { return now }

	_, err := r.Resolve(context.Background(), "s")
	require.NoError(t, err)
	_, err = r.Resolve(context.Background(), "s")
	require.NoError(t, err)
	assert.Equal(t, 1, api.calls)

	now = now.Add(2 * time.Minute)
	_, err = r.Resolve(context.Background(), "s")
	require.NoError(t, err)
	assert.Equal(t, 2, api.calls, "expired entry is fetched again")
}

func TestResolver_Errors(t *testing.T) {
	tests := []struct {
		name    string
		fn      func(context.Context, *secretsmanager.GetSecretValueInput) (*secretsmanager.GetSecretValueOutput, error)
		wantErr error
		wantMsg string
	}{
		{
			name: "not found",
			fn: func(context.Context, *secretsmanager.GetSecretValueInput) (*secretsmanager.GetSecretValueOutput, error) {
				return nil, &smithy.GenericAPIError{Code: ResourceNotFoundException}
			},
			wantErr: ErrSecretNotFound,
		},
		{
			name: "access denied",
			fn: func(context.Context, *secretsmanager.GetSecretValueInput) (*secretsmanager.GetSecretValueOutput, error) {
				return nil, &smithy.GenericAPIError{Code: AccessDeniedException}
			},
			wantErr: ErrAccessDenied,
		},
		{
			name: "other api error",
			fn: func(context.Context, *secretsmanager.GetSecretValueInput) (*secretsmanager.GetSecretValueOutput, error) {
				return nil, &smithy.GenericAPIError{Code: "InternalServiceError", Message: "boom"}
			},
			wantMsg: "InternalServiceError: boom",
		},
		{
			name: "empty",
			fn: func(context.Context, *secretsmanager.GetSecretValueInput) (*secretsmanager.GetSecretValueOutput, error) {
				return &secretsmanager.GetSecretValueOutput{}, nil
			},
			wantErr: ErrSecretEmpty,
		},
		{
			name:    "not json",
			fn:      secretString("plain"),
			wantErr: ErrMalformedSecret,
		},
		{
			name:    "missing secret key",
			fn:      secretString(`{"access_key_id": "a"}`),
			wantErr: ErrMalformedSecret,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewResolver(&mockManagerAPI{getSecretValueFunc: tt.fn}, 0, nil)
			_, err := r.Resolve(context.Background(), "s")
			require.Error(t, err)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}
			if tt.wantMsg != "" {
				assert.ErrorContains(t, err, tt.wantMsg)
			}
		})
	}
}

func TestResolver_EmptyName(t *testing.T) {
	api := &mockManagerAPI{}
	_, err := NewResolver(api, 0, nil).Resolve(context.Background(), "")
	assert.Error(t, err)
	assert.Zero(t, api.calls)
}

func TestResolver_NeverLogsSecretValues(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	r := NewResolver(&mockManagerAPI{getSecretValueFunc: secretString(keyDoc)}, 0, logger)

	_, err := r.Resolve(context.Background(), "objfs/keys")
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "objfs/keys")
	assert.NotContains(t, buf.String(), "wJalrXUtnFEMI")
}

func TestResolver_Provider(t *testing.T) {
	r := NewResolver(&mockManagerAPI{getSecretValueFunc: secretString(keyDoc)}, 0, nil)

	creds, err := r.Provider("s").Retrieve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "AKIDEXAMPLE", creds.AccessKeyID)
	assert.Equal(t, "wJalrXUtnFEMI", creds.SecretAccessKey)
	assert.Equal(t, "tok", creds.SessionToken)
}
