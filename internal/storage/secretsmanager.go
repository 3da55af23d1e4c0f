package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager/types"
)

// SecretsManagerAPI defines the Secrets Manager operations used by the token store.
type SecretsManagerAPI interface {
	// CreateSecret creates a secret with its first value.
	CreateSecret(
		ctx context.Context,
		params *secretsmanager.CreateSecretInput,
		optFns ...func(*secretsmanager.Options),
	) (*secretsmanager.CreateSecretOutput, error)

	// GetSecretValue retrieves a secret value.
	GetSecretValue(
		ctx context.Context,
		params *secretsmanager.GetSecretValueInput,
		optFns ...func(*secretsmanager.Options),
	) (*secretsmanager.GetSecretValueOutput, error)

	// PutSecretValue stores a secret value.
	PutSecretValue(
		ctx context.Context,
		params *secretsmanager.PutSecretValueInput,
		optFns ...func(*secretsmanager.Options),
	) (*secretsmanager.PutSecretValueOutput, error)
}

// SecretTokenStore manages OAuth refresh tokens in AWS Secrets Manager.
type SecretTokenStore struct {
	// client is the Secrets Manager API client.
	client SecretsManagerAPI

	// now returns the current time.
	now func() time.Time

	// secretID is the name or ARN of the secret storing the refresh token.
	secretID string

	// slug is the nation the token belongs to.
	slug string
}

// RefreshToken returns the current refresh token from Secrets Manager.
func (t *SecretTokenStore) RefreshToken(ctx context.Context) (string, error) {
	output, err := t.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(t.secretID),
	})
	if err != nil {
		var notFound *types.ResourceNotFoundException
		if errors.As(err, &notFound) {
			return "", fmt.Errorf("secret %s not found: %w", t.secretID, ErrNoToken)
		}
		return "", fmt.Errorf("getting secret from Secrets Manager: %w", err)
	}

	if output.SecretString == nil {
		return "", errors.New("secret has no string value")
	}

	return decodeTokenRecord([]byte(*output.SecretString), t.slug, "secret "+t.secretID)
}

// SaveRefreshToken stores a new refresh token in Secrets Manager, creating the secret on
// first use.
func (t *SecretTokenStore) SaveRefreshToken(ctx context.Context, token string) error {
	data, err := encodeTokenRecord(t.slug, token, t.now())
	if err != nil {
		return err
	}

	_, err = t.client.PutSecretValue(ctx, &secretsmanager.PutSecretValueInput{
		SecretId:     aws.String(t.secretID),
		SecretString: aws.String(string(data)),
	})
	var notFound *types.ResourceNotFoundException
	if errors.As(err, &notFound) {
		_, err = t.client.CreateSecret(ctx, &secretsmanager.CreateSecretInput{
			Description:  aws.String("cdflow NationBuilder refresh token"),
			Name:         aws.String(t.secretID),
			SecretString: aws.String(string(data)),
		})
		if err != nil {
			return fmt.Errorf("creating secret in Secrets Manager: %w", err)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("putting secret to Secrets Manager: %w", err)
	}

	return nil
}

// NewSecretTokenStore creates a new Secrets Manager-backed token store for the nation slug.
func NewSecretTokenStore(client SecretsManagerAPI, secretID string, slug string) (*SecretTokenStore, error) {
	if client == nil {
		return nil, errors.New("secrets manager client is required")
	}
	if secretID == "" {
		return nil, errors.New("secret ID is required")
	}
	if slug == "" {
		return nil, errors.New("nation slug is required")
	}

	return &SecretTokenStore{
		client:   client,
		now:      time.Now,
		secretID: secretID,
		slug:     slug,
	}, nil
}
