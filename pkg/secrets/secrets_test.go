package secrets_test

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/dukex/operion-engine/pkg/secrets"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func exerciseStore(t *testing.T, store secrets.Store) {
	t.Helper()

	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "account-1", "api_key", "s3cr3t"))
	require.NoError(t, store.Set(ctx, "account-1", "other", "value"))
	require.NoError(t, store.Set(ctx, "account-2", "api_key", "different"))
	require.ErrorIs(t, store.Set(ctx, "account-1", "", "x"), secrets.ErrEmptySecretName)

	values, err := store.Secrets(ctx, "account-1")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"api_key": "s3cr3t", "other": "value"}, values)

	values, err = store.Secrets(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, values)
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, secrets.NewMemoryStore())
}

func TestRedisStore(t *testing.T) {
	server, err := miniredis.Run()
	require.NoError(t, err)

	defer server.Close()

	store, err := secrets.NewRedisStore(context.Background(), "redis://"+server.Addr())
	require.NoError(t, err)

	defer func() {
		require.NoError(t, store.Close())
	}()

	exerciseStore(t, store)

	assert.Equal(t, "s3cr3t", server.HGet("operion:secrets:account-1", "api_key"))
}

func TestNewRedisStore_InvalidURL(t *testing.T) {
	_, err := secrets.NewRedisStore(context.Background(), "not-a-url://")
	require.Error(t, err)
}
