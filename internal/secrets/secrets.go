// Package secrets resolves secret values for external API credentials.
// Providers are constructed once and injected; nothing here is a
// package-level singleton.
package secrets

import (
	"context"
	"fmt"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
)

// Provider resolves a secret by its identifier.
type Provider interface {
	Get(ctx context.Context, id string) (string, error)
}

// ManagerAPI is the slice of the Secrets Manager API the provider needs.
type ManagerAPI interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// NewManagerClient builds a Secrets Manager client from resolved AWS
// config, optionally pointed at a custom endpoint (LocalStack).
func NewManagerClient(cfg aws.Config, endpointURL string) *secretsmanager.Client {
	return secretsmanager.NewFromConfig(cfg, func(o *secretsmanager.Options) {
		if endpointURL != "" {
			o.BaseEndpoint = aws.String(endpointURL)
		}
	})
}

// Manager fetches secrets from AWS Secrets Manager, caching each value for
// the life of the process. Secrets here rotate rarely; a restart picks up a
// rotation.
type Manager struct {
	client ManagerAPI

	mu    sync.Mutex
	cache map[string]string
}

var _ Provider = (*Manager)(nil)

func NewManager(client ManagerAPI) *Manager {
	return &Manager{client: client, cache: make(map[string]string)}
}

func (m *Manager) Get(ctx context.Context, id string) (string, error) {
	m.mu.Lock()
	if v, ok := m.cache[id]; ok {
		m.mu.Unlock()
		return v, nil
	}
	m.mu.Unlock()

	res, err := m.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(id),
	})
	if err != nil {
		return "", fmt.Errorf("get secret %s: %w", id, err)
	}
	if res.SecretString == nil {
		return "", fmt.Errorf("secret %s has no string value", id)
	}

	m.mu.Lock()
	m.cache[id] = *res.SecretString
	m.mu.Unlock()
	return *res.SecretString, nil
}

// Static serves secrets from a fixed map, for local development.
type Static map[string]string

var _ Provider = Static{}

func (s Static) Get(_ context.Context, id string) (string, error) {
	v, ok := s[id]
	if !ok {
		return "", fmt.Errorf("secret %s not configured", id)
	}
	return v, nil
}
