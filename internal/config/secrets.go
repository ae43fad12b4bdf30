package config

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"

	"github.com/dwsmith1983/dispatchwait/pkg/types"
)

// SecretPrefix marks a token value to be fetched from AWS Secrets Manager.
const SecretPrefix = "secretsmanager:"

// SecretsAPI is the subset of the Secrets Manager client used here.
type SecretsAPI interface {
	GetSecretValue(ctx context.Context, input *secretsmanager.GetSecretValueInput, opts ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// ResolveSecrets replaces token values of the form "secretsmanager:<id>"
// with the secret string. client may be nil; it is created on first use.
func ResolveSecrets(ctx context.Context, cfg *types.Config, client SecretsAPI) error {
	fields := []struct {
		name string
		dst  *string
	}{
		{"github_token", &cfg.GitHubToken},
		{"comment_github_token", &cfg.CommentGitHubToken},
	}

	for _, f := range fields {
		if !strings.HasPrefix(*f.dst, SecretPrefix) {
			continue
		}
		if client == nil {
			awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
			if err != nil {
				return fmt.Errorf("loading AWS config: %w", err)
			}
			client = secretsmanager.NewFromConfig(awsCfg)
		}

		id := strings.TrimPrefix(*f.dst, SecretPrefix)
		out, err := client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{SecretId: aws.String(id)})
		if err != nil {
			return fmt.Errorf("resolving %s from secret %s: %w", f.name, id, err)
		}
		if out.SecretString == nil || *out.SecretString == "" {
			return &ValidationError{Field: f.name, Reason: "secret " + id + " has no string value"}
		}
		*f.dst = strings.TrimSpace(*out.SecretString)
	}
	return nil
}
