package credentials

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"adminpanel/internal/domain"
	"adminpanel/internal/infra"
	"adminpanel/internal/sqlinline"
)

const (
	ProviderReplicate = "replicate"
)

// Store keeps third-party API tokens in integration_tokens so a deployment
// can rotate them without touching the environment.
type Store struct {
	sql infra.SQLExecutor
}

func NewStore(sql infra.SQLExecutor) *Store {
	return &Store{sql: sql}
}

func (s *Store) ReplicateToken(ctx context.Context) (string, error) {
	return s.Token(ctx, ProviderReplicate)
}

// Token returns "" without error when no row exists for provider.
func (s *Store) Token(ctx context.Context, provider string) (string, error) {
	row := s.sql.QueryRow(ctx, sqlinline.QSelectIntegrationToken, provider)
	var token string
	if err := row.Scan(&token); err != nil {
		if infra.IsNoRows(err) {
			return "", nil
		}
		return "", fmt.Errorf("load %s token: %w", provider, domain.ErrPersistence)
	}
	return strings.TrimSpace(token), nil
}

func (s *Store) SetReplicateToken(ctx context.Context, token string) error {
	return s.SetToken(ctx, ProviderReplicate, token, nil)
}

func (s *Store) SetToken(ctx context.Context, provider, token string, props map[string]any) error {
	provider = strings.TrimSpace(strings.ToLower(provider))
	if provider == "" {
		return fmt.Errorf("provider is required: %w", domain.ErrInvalidInput)
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return fmt.Errorf("%s token is required: %w", provider, domain.ErrInvalidInput)
	}
	payload := props
	if payload == nil {
		payload = map[string]any{}
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if _, err := s.sql.Exec(ctx, sqlinline.QUpsertIntegrationToken, provider, token, raw); err != nil {
		return fmt.Errorf("store %s token: %w", provider, err)
	}
	return nil
}

// Resolve prefers the configured value and falls back to the stored token.
func (s *Store) Resolve(ctx context.Context, provider, configured string) (string, error) {
	if v := strings.TrimSpace(configured); v != "" {
		return v, nil
	}
	return s.Token(ctx, provider)
}
