// Package secret resolves the Coinalyze API key.
package secret

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"

	appconfig "activeoi/config"
	"activeoi/logger"
)

// ErrEmptySecret is returned when the secret exists but holds no key.
var ErrEmptySecret = errors.New("api key is empty")

// Provider returns the API key used for upstream requests.
type Provider interface {
	APIKey(ctx context.Context) (string, error)
}

// New builds the provider selected by cfg.Source.
func New(ctx context.Context, cfg appconfig.SecretConfig) (Provider, error) {
	switch cfg.Source {
	case "env", "":
		return EnvProvider{Var: cfg.EnvVar}, nil
	case "aws":
		return NewAWSProvider(ctx, cfg.Region, cfg.SecretID)
	default:
		return nil, fmt.Errorf("unknown secret source %q", cfg.Source)
	}
}

// EnvProvider reads the key from an environment variable. main loads .env
// before the provider is used.
type EnvProvider struct {
	Var string
}

func (p EnvProvider) APIKey(context.Context) (string, error) {
	v := strings.TrimSpace(os.Getenv(p.Var))
	if v == "" {
		return "", fmt.Errorf("%s: %w", p.Var, ErrEmptySecret)
	}
	return v, nil
}

type getSecretValueAPI interface {
	GetSecretValue(ctx context.Context, in *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// AWSProvider reads the key from AWS Secrets Manager. The secret may be the
// bare key or a JSON object with an "api_key" field.
type AWSProvider struct {
	client   getSecretValueAPI
	secretID string
}

// NewAWSProvider loads the default AWS configuration for region.
func NewAWSProvider(ctx context.Context, region, secretID string) (*AWSProvider, error) {
	if region == "" {
		region = os.Getenv("AWS_REGION")
	}
	opts := []func(*awsconfig.LoadOptions) error{}
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	return &AWSProvider{client: secretsmanager.NewFromConfig(cfg), secretID: secretID}, nil
}

func (p *AWSProvider) APIKey(ctx context.Context) (string, error) {
	out, err := p.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(p.secretID),
	})
	if err != nil {
		return "", fmt.Errorf("get secret %s: %w", p.secretID, err)
	}

	raw := strings.TrimSpace(aws.ToString(out.SecretString))
	if raw == "" && len(out.SecretBinary) > 0 {
		raw = strings.TrimSpace(string(out.SecretBinary))
	}
	key := extractKey(raw)
	if key == "" {
		return "", fmt.Errorf("secret %s: %w", p.secretID, ErrEmptySecret)
	}

	logger.GetLogger().WithComponent("secret").WithFields(logger.Fields{
		"secret_id": p.secretID,
		"version":   aws.ToString(out.VersionId),
	}).Debug("loaded api key from secrets manager")
	return key, nil
}

func extractKey(raw string) string {
	if !strings.HasPrefix(raw, "{") {
		return raw
	}
	var doc map[string]string
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return raw
	}
	for _, k := range []string{"api_key", "apiKey", "COINALYZE_API_KEY"} {
		if v := strings.TrimSpace(doc[k]); v != "" {
			return v
		}
	}
	return ""
}
