package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/operion-engine/pkg/models"
	"github.com/dukex/operion-engine/pkg/persistence"
	"github.com/google/uuid"
	"github.com/lib/pq"
)

// AccountRepository reads and writes auth providers and connected accounts.
type AccountRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewAccountRepository creates a new account repository.
func NewAccountRepository(db *sql.DB, logger *slog.Logger) *AccountRepository {
	return &AccountRepository{db: db, logger: logger}
}

// AuthAccounts lists the accounts connected to accountID.
func (r *AccountRepository) AuthAccounts(ctx context.Context, accountID string) ([]*models.AuthAccount, error) {
	query := `
		SELECT
			account_auth_provider_account_id
		  , account_id
		  , auth_provider_id
		  , account_auth_provider_account_slug
		  , access_token
		  , refresh_token
		  , token_type
		  , access_token_expires_at
		  , account_details
		  , updated_at
		FROM account_auth_provider_accounts
		WHERE account_id = $1
		ORDER BY account_auth_provider_account_slug ASC
	`

	rows, err := r.db.QueryContext(ctx, query, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to query auth accounts: %w", err)
	}

	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", closeErr)
		}
	}()

	accounts := make([]*models.AuthAccount, 0)

	for rows.Next() {
		var (
			account   models.AuthAccount
			expiresAt sql.NullTime
			details   []byte
		)

		err := rows.Scan(
			&account.ID,
			&account.AccountID,
			&account.ProviderID,
			&account.Slug,
			&account.AccessToken,
			&account.RefreshToken,
			&account.TokenType,
			&expiresAt,
			&details,
			&account.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan auth account: %w", err)
		}

		if expiresAt.Valid {
			account.ExpiresAt = &expiresAt.Time
		}

		if len(details) > 0 {
			err = json.Unmarshal(details, &account.AccountDetails)
			if err != nil {
				return nil, fmt.Errorf("failed to unmarshal account details: %w", err)
			}
		}

		accounts = append(accounts, &account)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating auth accounts: %w", err)
	}

	return accounts, nil
}

func (r *AccountRepository) AuthProvider(ctx context.Context, providerID string) (*models.AuthProvider, error) {
	query := `
		SELECT auth_provider_id, client_id, client_secret, token_url, scopes
		FROM auth_providers
		WHERE auth_provider_id = $1
	`

	var provider models.AuthProvider

	err := r.db.QueryRowContext(ctx, query, providerID).Scan(
		&provider.ID,
		&provider.ClientID,
		&provider.ClientSecret,
		&provider.TokenURL,
		pq.Array(&provider.Scopes),
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("auth provider %s: %w", providerID, persistence.ErrAuthProviderNotFound)
		}

		return nil, fmt.Errorf("failed to scan auth provider: %w", err)
	}

	return &provider, nil
}

// SaveAuthAccount upserts an auth account, keyed by (account_id, slug).
func (r *AccountRepository) SaveAuthAccount(ctx context.Context, account *models.AuthAccount) error {
	if account.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate auth account ID: %w", err)
		}

		account.ID = id.String()
	}

	account.UpdatedAt = time.Now().UTC()

	var details []byte

	if account.AccountDetails != nil {
		var err error

		details, err = json.Marshal(account.AccountDetails)
		if err != nil {
			return fmt.Errorf("failed to marshal account details: %w", err)
		}
	}

	query := `
		INSERT INTO account_auth_provider_accounts (
			account_auth_provider_account_id, account_id, auth_provider_id, account_auth_provider_account_slug,
			access_token, refresh_token, token_type, access_token_expires_at, account_details, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (account_id, account_auth_provider_account_slug) DO UPDATE SET
			auth_provider_id = EXCLUDED.auth_provider_id,
			access_token = EXCLUDED.access_token,
			refresh_token = EXCLUDED.refresh_token,
			token_type = EXCLUDED.token_type,
			access_token_expires_at = EXCLUDED.access_token_expires_at,
			account_details = EXCLUDED.account_details,
			updated_at = EXCLUDED.updated_at
	`

	_, err := r.db.ExecContext(ctx, query,
		account.ID,
		account.AccountID,
		account.ProviderID,
		account.Slug,
		account.AccessToken,
		account.RefreshToken,
		account.TokenType,
		account.ExpiresAt,
		nullableJSON(details),
		account.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save auth account: %w", err)
	}

	return nil
}

func (r *AccountRepository) SaveAuthProvider(ctx context.Context, provider *models.AuthProvider) error {
	scopes := provider.Scopes
	if scopes == nil {
		scopes = []string{}
	}

	query := `
		INSERT INTO auth_providers (auth_provider_id, client_id, client_secret, token_url, scopes)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (auth_provider_id) DO UPDATE SET
			client_id = EXCLUDED.client_id,
			client_secret = EXCLUDED.client_secret,
			token_url = EXCLUDED.token_url,
			scopes = EXCLUDED.scopes
	`

	_, err := r.db.ExecContext(ctx, query,
		provider.ID,
		provider.ClientID,
		provider.ClientSecret,
		provider.TokenURL,
		pq.Array(scopes),
	)
	if err != nil {
		return fmt.Errorf("failed to save auth provider: %w", err)
	}

	return nil
}
