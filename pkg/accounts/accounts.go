// Package accounts lists the auth provider accounts of an account, refreshing expired
// OAuth access tokens and persisting the refreshed credentials.
package accounts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/dukex/operion-engine/pkg/models"
	"github.com/dukex/operion-engine/pkg/persistence"
	"golang.org/x/oauth2"
)

const DefaultLeeway = time.Minute

var ErrNoRefreshToken = errors.New("account has no refresh token")

// Provider returns usable auth accounts for an account.
type Provider interface {
	Accounts(ctx context.Context, accountID string) ([]*models.AuthAccount, error)
}

// Option configures a RefreshingProvider.
type Option func(*RefreshingProvider)

// WithLeeway treats tokens expiring within leeway as expired.
func WithLeeway(leeway time.Duration) Option {
	return func(p *RefreshingProvider) {
		p.leeway = leeway
	}
}

// WithHTTPClient sets the client used for token endpoint calls.
func WithHTTPClient(client *http.Client) Option {
	return func(p *RefreshingProvider) {
		p.httpClient = client
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(p *RefreshingProvider) {
		p.now = now
	}
}

// RefreshingProvider reads accounts from the repository and refreshes expired tokens
// through the provider's OAuth token endpoint. A failed refresh is logged and the
// stored account is returned unchanged.
type RefreshingProvider struct {
	logger     *slog.Logger
	repository persistence.AccountRepository
	leeway     time.Duration
	httpClient *http.Client
	now        func() time.Time
}

func NewRefreshingProvider(
	logger *slog.Logger,
	repository persistence.AccountRepository,
	opts ...Option,
) *RefreshingProvider {
	provider := &RefreshingProvider{
		logger:     logger.With("module", "accounts"),
		repository: repository,
		leeway:     DefaultLeeway,
		now:        time.Now,
	}

	for _, opt := range opts {
		opt(provider)
	}

	return provider
}

func (p *RefreshingProvider) Accounts(ctx context.Context, accountID string) ([]*models.AuthAccount, error) {
	accounts, err := p.repository.AuthAccounts(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to list auth accounts: %w", err)
	}

	now := p.now()

	for i, account := range accounts {
		if !account.Expired(now, p.leeway) {
			continue
		}

		refreshed, err := p.refresh(ctx, account)
		if err != nil {
			p.logger.ErrorContext(ctx, "failed to refresh auth account",
				"account_id", accountID,
				"slug", account.Slug,
				"error", err)

			continue
		}

		accounts[i] = refreshed
	}

	return accounts, nil
}

func (p *RefreshingProvider) refresh(ctx context.Context, account *models.AuthAccount) (*models.AuthAccount, error) {
	if account.RefreshToken == "" {
		return nil, ErrNoRefreshToken
	}

	provider, err := p.repository.AuthProvider(ctx, account.ProviderID)
	if err != nil {
		return nil, err
	}

	config := &oauth2.Config{
		ClientID:     provider.ClientID,
		ClientSecret: provider.ClientSecret,
		Endpoint:     oauth2.Endpoint{TokenURL: provider.TokenURL},
		Scopes:       provider.Scopes,
	}

	if p.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)
	}

	token, err := config.TokenSource(ctx, &oauth2.Token{RefreshToken: account.RefreshToken}).Token()
	if err != nil {
		return nil, fmt.Errorf("token refresh failed for %s: %w", account.Slug, err)
	}

	refreshed := *account
	refreshed.AccessToken = token.AccessToken
	refreshed.TokenType = token.TokenType

	if token.RefreshToken != "" {
		refreshed.RefreshToken = token.RefreshToken
	}

	if !token.Expiry.IsZero() {
		expiry := token.Expiry.UTC()
		refreshed.ExpiresAt = &expiry
	} else {
		refreshed.ExpiresAt = nil
	}

	err = p.repository.SaveAuthAccount(ctx, &refreshed)
	if err != nil {
		return nil, fmt.Errorf("failed to persist refreshed account %s: %w", account.Slug, err)
	}

	p.logger.InfoContext(ctx, "auth account refreshed", "account_id", account.AccountID, "slug", account.Slug)

	return &refreshed, nil
}
