package accounts_test

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dukex/operion-engine/pkg/accounts"
	"github.com/dukex/operion-engine/pkg/models"
	"github.com/dukex/operion-engine/pkg/persistence/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tokenServer(t *testing.T, calls *atomic.Int32) *httptest.Server {
	t.Helper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)

		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "refresh_token", r.Form.Get("grant_type"))
		assert.Equal(t, "old-refresh", r.Form.Get("refresh_token"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"fresh","token_type":"Bearer","expires_in":3600,"refresh_token":"new-refresh"}`))
	}))

	t.Cleanup(server.Close)

	return server
}

func TestRefreshingProvider_RefreshesExpiredTokens(t *testing.T) {
	ctx := context.Background()
	store := memory.NewPersistence()
	repo := store.AccountRepository()

	var calls atomic.Int32

	server := tokenServer(t, &calls)

	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	expired := now.Add(-time.Hour)
	valid := now.Add(time.Hour)

	require.NoError(t, repo.SaveAuthProvider(ctx, &models.AuthProvider{
		ID:       "slack",
		ClientID: "client",
		TokenURL: server.URL,
	}))
	require.NoError(t, repo.SaveAuthAccount(ctx, &models.AuthAccount{
		AccountID:    "account-1",
		ProviderID:   "slack",
		Slug:         "slack",
		AccessToken:  "stale",
		RefreshToken: "old-refresh",
		ExpiresAt:    &expired,
	}))
	require.NoError(t, repo.SaveAuthAccount(ctx, &models.AuthAccount{
		AccountID:   "account-1",
		ProviderID:  "github",
		Slug:        "github",
		AccessToken: "still-good",
		ExpiresAt:   &valid,
	}))

	provider := accounts.NewRefreshingProvider(slog.New(slog.DiscardHandler), repo,
		accounts.WithClock(func() time.Time { return now }),
		accounts.WithHTTPClient(server.Client()))

	list, err := provider.Accounts(ctx, "account-1")
	require.NoError(t, err)
	require.Len(t, list, 2)

	bySlug := map[string]*models.AuthAccount{}
	for _, account := range list {
		bySlug[account.Slug] = account
	}

	assert.Equal(t, "fresh", bySlug["slack"].AccessToken)
	assert.Equal(t, "new-refresh", bySlug["slack"].RefreshToken)
	assert.Equal(t, "still-good", bySlug["github"].AccessToken)
	assert.Equal(t, int32(1), calls.Load())

	persisted, err := repo.AuthAccounts(ctx, "account-1")
	require.NoError(t, err)

	for _, account := range persisted {
		if account.Slug == "slack" {
			assert.Equal(t, "fresh", account.AccessToken)
		}
	}
}

func TestRefreshingProvider_KeepsAccountWhenRefreshFails(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewPersistence().AccountRepository()

	expired := time.Now().Add(-time.Hour)

	require.NoError(t, repo.SaveAuthAccount(ctx, &models.AuthAccount{
		AccountID:   "account-1",
		ProviderID:  "unknown",
		Slug:        "slack",
		AccessToken: "stale",
		ExpiresAt:   &expired,
	}))

	provider := accounts.NewRefreshingProvider(slog.New(slog.DiscardHandler), repo)

	list, err := provider.Accounts(ctx, "account-1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "stale", list[0].AccessToken)
}
