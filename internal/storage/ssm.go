package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/aws/aws-sdk-go-v2/service/ssm/types"
)

const (
	clientIDParameter     = "client_id"
	clientSecretParameter = "client_secret"
)

// SSMAPI defines the SSM operations used by the credential source.
type SSMAPI interface {
	// GetParameter retrieves a parameter from SSM.
	GetParameter(
		ctx context.Context,
		params *ssm.GetParameterInput,
		optFns ...func(*ssm.Options),
	) (*ssm.GetParameterOutput, error)
}

// ParameterCredentials reads the NationBuilder OAuth client credentials from SSM Parameter
// Store, as <prefix>/client_id and <prefix>/client_secret.
type ParameterCredentials struct {
	// client is the SSM API client.
	client SSMAPI

	// prefix is the parameter path prefix.
	prefix string
}

// Credentials returns the OAuth client id and secret.
func (p *ParameterCredentials) Credentials(ctx context.Context) (string, string, error) {
	clientID, err := p.parameter(ctx, clientIDParameter)
	if err != nil {
		return "", "", err
	}
	clientSecret, err := p.parameter(ctx, clientSecretParameter)
	if err != nil {
		return "", "", err
	}
	return clientID, clientSecret, nil
}

func (p *ParameterCredentials) parameter(ctx context.Context, name string) (string, error) {
	path := p.prefix + "/" + name

	output, err := p.client.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(path),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		var notFoundErr *types.ParameterNotFound
		if errors.As(err, &notFoundErr) {
			return "", fmt.Errorf("parameter %s not found", path)
		}
		return "", fmt.Errorf("getting parameter %s from SSM: %w", path, err)
	}

	if output.Parameter == nil || output.Parameter.Value == nil || strings.TrimSpace(*output.Parameter.Value) == "" {
		return "", fmt.Errorf("parameter %s is empty", path)
	}

	return strings.TrimSpace(*output.Parameter.Value), nil
}

// NewParameterCredentials creates a new SSM-backed credential source.
func NewParameterCredentials(client SSMAPI, prefix string) (*ParameterCredentials, error) {
	if client == nil {
		return nil, errors.New("ssm client is required")
	}
	prefix = strings.TrimRight(strings.TrimSpace(prefix), "/")
	if prefix == "" {
		return nil, errors.New("parameter prefix is required")
	}

	return &ParameterCredentials{
		client: client,
		prefix: prefix,
	}, nil
}
