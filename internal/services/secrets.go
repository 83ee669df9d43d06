package services

import (
	"context"
	stderrors "errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager/types"
	"github.com/pwilliams272/kaya-deployer/internal/errors"
)

// SecretsService preflights the runtime secret: the data-update function
// loads its API tokens from Secrets Manager at startup, so deploying against
// a missing secret produces a function that fails on every invocation.
type SecretsService struct {
	client *secretsmanager.Client
}

// NewSecretsService creates a new SecretsService
func NewSecretsService(client *secretsmanager.Client) *SecretsService {
	return &SecretsService{client: client}
}

// VerifyExists checks that the named secret exists and has a readable value.
func (s *SecretsService) VerifyExists(ctx context.Context, name string) error {
	if name == "" {
		return nil // no runtime secret configured, nothing to check
	}

	out, err := s.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(name),
	})
	if err != nil {
		var notFound *types.ResourceNotFoundException
		if stderrors.As(err, &notFound) {
			return fmt.Errorf("%w: %s", errors.ErrSecretNotFound, name)
		}
		return fmt.Errorf("failed to read secret %s: %w", name, err)
	}

	if out.SecretString == nil && len(out.SecretBinary) == 0 {
		return fmt.Errorf("%w: %s has no value", errors.ErrSecretNotFound, name)
	}
	return nil
}
