package config

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/secretsmanager"
	"github.com/aws/aws-sdk-go/service/secretsmanager/secretsmanageriface"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSecretsManager struct {
	secretsmanageriface.SecretsManagerAPI
	value *string
	err   error
	asked string
}

func (f *fakeSecretsManager) GetSecretValueWithContext(_ aws.Context, in *secretsmanager.GetSecretValueInput, _ ...request.Option) (*secretsmanager.GetSecretValueOutput, error) {
	f.asked = aws.StringValue(in.SecretId)
	if f.err != nil {
		return nil, f.err
	}
	return &secretsmanager.GetSecretValueOutput{SecretString: f.value}, nil
}

func TestEnvSecrets(t *testing.T) {
	t.Setenv("REQTRACE_BACKEND_TOKEN", "from-env")

	v, err := envSecrets{}.Secret(context.Background(), "backend_token")
	require.NoError(t, err)
	assert.Equal(t, "from-env", v)

	_, err = envSecrets{}.Secret(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrSecretNotFound)
	assert.Contains(t, err.Error(), "REQTRACE_MISSING")
}

func TestAWSSecrets(t *testing.T) {
	tests := []struct {
		name     string
		fake     *fakeSecretsManager
		want     string
		notFound bool
		wantErr  string
	}{
		{"json key", &fakeSecretsManager{value: aws.String(`{"token":"pat"}`)}, "pat", false, ""},
		{"plain value", &fakeSecretsManager{value: aws.String(" pat\n")}, "pat", false, ""},
		{"missing key", &fakeSecretsManager{value: aws.String(`{"other":"x"}`)}, "", true, "key token"},
		{"broken json", &fakeSecretsManager{value: aws.String(`{"token":`)}, "", false, "failed to parse AWS secret"},
		{"binary secret", &fakeSecretsManager{}, "", true, "no string value"},
		{"api error", &fakeSecretsManager{err: errors.New("denied")}, "", false, "failed to read AWS secret"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := newAWSSecrets("reqtrace/test", tt.fake).Secret(context.Background(), "token")
			assert.Equal(t, "reqtrace/test", tt.fake.asked)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				assert.Equal(t, tt.notFound, errors.Is(err, ErrSecretNotFound))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLoadSecrets(t *testing.T) {
	ctx := context.Background()

	t.Run("token already set", func(t *testing.T) {
		cfg := &Config{}
		cfg.Backend.Token = "explicit"
		require.NoError(t, LoadSecrets(ctx, cfg))
		assert.Equal(t, "explicit", cfg.Backend.Token)
	})

	t.Run("offline skips", func(t *testing.T) {
		cfg := &Config{}
		cfg.Backend.Snapshot = "plan.json"
		require.NoError(t, LoadSecrets(ctx, cfg))
		assert.Empty(t, cfg.Backend.Token)
	})

	t.Run("env provider", func(t *testing.T) {
		t.Setenv("REQTRACE_BACKEND_TOKEN", "from-env")
		cfg := &Config{}
		cfg.Secrets.Provider = SecretProviderEnv
		require.NoError(t, LoadSecrets(ctx, cfg))
		assert.Equal(t, "from-env", cfg.Backend.Token)
	})

	t.Run("aws provider key", func(t *testing.T) {
		cfg := &Config{}
		cfg.Secrets.Provider = SecretProviderAWS
		cfg.Secrets.AWS.Key = "pat"
		fake := &fakeSecretsManager{value: aws.String(`{"pat":"from-aws"}`)}
		require.NoError(t, resolveToken(ctx, cfg, newAWSSecrets("", fake)))
		assert.Equal(t, "from-aws", cfg.Backend.Token)
		assert.Equal(t, "reqtrace/backend", fake.asked)
	})

	t.Run("unsupported provider", func(t *testing.T) {
		cfg := &Config{}
		cfg.Secrets.Provider = "vault"
		err := LoadSecrets(ctx, cfg)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unsupported secret provider")
	})
}
