package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/rickgao/quote-relay/internal/auth"
)

// CredentialStore persists the broker credential as a single row.
type CredentialStore struct {
	db DBTX
}

var _ auth.Store = (*CredentialStore)(nil)

// NewCredentialStore creates a CredentialStore.
func NewCredentialStore(db DBTX) *CredentialStore {
	return &CredentialStore{db: db}
}

// LoadCredential returns the stored credential, if any.
func (s *CredentialStore) LoadCredential(ctx context.Context) (auth.Credential, bool, error) {
	var (
		cred      auth.Credential
		expiresAt time.Time
	)
	err := s.db.QueryRow(ctx, `
		SELECT token, account_id, expires_at
		FROM credentials
		WHERE id = $1
	`, CredentialKey).Scan(&cred.Token, &cred.AccountID, &expiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return auth.Credential{}, false, nil
	}
	if err != nil {
		return auth.Credential{}, false, fmt.Errorf("load credential: %w", err)
	}

	cred.ExpiresAt = expiresAt
	return cred, true, nil
}

// SaveCredential overwrites the stored credential. Concurrent writers
// resolve last-writer-wins.
func (s *CredentialStore) SaveCredential(ctx context.Context, cred auth.Credential) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO credentials (id, token, account_id, expires_at, updated_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (id) DO UPDATE SET
			token      = EXCLUDED.token,
			account_id = EXCLUDED.account_id,
			expires_at = EXCLUDED.expires_at,
			updated_at = EXCLUDED.updated_at
	`, CredentialKey, cred.Token, cred.AccountID, cred.ExpiresAt)
	if err != nil {
		return fmt.Errorf("save credential: %w", err)
	}
	return nil
}
