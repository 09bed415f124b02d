package config

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/secretsmanager"
	"github.com/aws/aws-sdk-go/service/secretsmanager/secretsmanageriface"
)

// Secret providers
const (
	SecretProviderEnv = "env"
	SecretProviderAWS = "aws"
)

// ErrSecretNotFound is returned when a provider has no value for a key.
var ErrSecretNotFound = errors.New("secret not found")

// SecretProvider resolves a named secret.
type SecretProvider interface {
	Secret(ctx context.Context, key string) (string, error)
}

// envSecrets reads REQTRACE_<KEY> from the environment.
type envSecrets struct{}

func (envSecrets) Secret(_ context.Context, key string) (string, error) {
	name := EnvPrefix + "_" + strings.ToUpper(key)
	if v := os.Getenv(name); v != "" {
		return v, nil
	}
	return "", fmt.Errorf("%w: environment variable %s not set", ErrSecretNotFound, name)
}

// awsSecrets reads one AWS Secrets Manager secret. A JSON object secret is
// looked up by key; any other string value is the secret itself.
type awsSecrets struct {
	secretID string
	client   secretsmanageriface.SecretsManagerAPI
}

func newAWSSecrets(secretID string, client secretsmanageriface.SecretsManagerAPI) *awsSecrets {
	if secretID == "" {
		secretID = "reqtrace/backend"
	}
	return &awsSecrets{secretID: secretID, client: client}
}

func (a *awsSecrets) Secret(ctx context.Context, key string) (string, error) {
	out, err := a.client.GetSecretValueWithContext(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(a.secretID),
	})
	if err != nil {
		return "", fmt.Errorf("failed to read AWS secret %s: %w", a.secretID, err)
	}
	raw := strings.TrimSpace(aws.StringValue(out.SecretString))
	if raw == "" {
		return "", fmt.Errorf("%w: AWS secret %s has no string value", ErrSecretNotFound, a.secretID)
	}
	if !strings.HasPrefix(raw, "{") {
		return raw, nil
	}

	var values map[string]string
	if err := json.Unmarshal([]byte(raw), &values); err != nil {
		return "", fmt.Errorf("failed to parse AWS secret %s: %w", a.secretID, err)
	}
	v, ok := values[key]
	if !ok || v == "" {
		return "", fmt.Errorf("%w: key %s in AWS secret %s", ErrSecretNotFound, key, a.secretID)
	}
	return v, nil
}

// NewSecretProvider returns the provider selected by secrets.provider.
func NewSecretProvider(cfg *Config) (SecretProvider, error) {
	switch cfg.Secrets.Provider {
	case "", SecretProviderEnv:
		return envSecrets{}, nil
	case SecretProviderAWS:
		sess, err := session.NewSession(&aws.Config{Region: aws.String(cfg.Secrets.AWS.Region)})
		if err != nil {
			return nil, fmt.Errorf("failed to create AWS session: %w", err)
		}
		return newAWSSecrets(cfg.Secrets.AWS.SecretID, secretsmanager.New(sess)), nil
	default:
		return nil, fmt.Errorf("unsupported secret provider: %s", cfg.Secrets.Provider)
	}
}

// LoadSecrets fills the backend token from the configured provider when the
// config does not already carry one. Snapshot runs need no token.
func LoadSecrets(ctx context.Context, cfg *Config) error {
	if cfg.Offline() || cfg.Backend.Token != "" {
		return nil
	}
	provider, err := NewSecretProvider(cfg)
	if err != nil {
		return err
	}
	return resolveToken(ctx, cfg, provider)
}

func resolveToken(ctx context.Context, cfg *Config, provider SecretProvider) error {
	key := "backend_token"
	if cfg.Secrets.Provider == SecretProviderAWS {
		key = cfg.Secrets.AWS.Key
	}
	token, err := provider.Secret(ctx, key)
	if err != nil {
		return fmt.Errorf("failed to load backend token: %w", err)
	}
	cfg.Backend.Token = token
	return nil
}
