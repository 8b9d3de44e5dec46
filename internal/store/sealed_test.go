package store_test

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/devpulse/internal/domain/repository"
	"github.com/dropDatabas3/devpulse/internal/domain/types"
	"github.com/dropDatabas3/devpulse/internal/security/secretbox"
	"github.com/dropDatabas3/devpulse/internal/store"
	"github.com/dropDatabas3/devpulse/internal/store/adapters/memory"
	"github.com/dropDatabas3/devpulse/internal/store/storetest"
)

func newBox(t *testing.T) *secretbox.Box {
	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i * 7)
	}
	box, err := secretbox.New(key, "connection-tokens")
	require.NoError(t, err)
	return box
}

func TestSealedStore_Conformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) repository.Store {
		return store.Seal(memory.New(), newBox(t))
	})
}

func TestSealedStore_TokensEncryptedAtRest(t *testing.T) {
	ctx := context.Background()
	inner := memory.New()
	sealed := store.Seal(inner, newBox(t))

	c := storetest.NewConnection("u1", types.ProviderJira, "jira_access_1", "jira_refresh_1", nil)
	require.NoError(t, sealed.Connections().Upsert(ctx, c))

	raw, err := inner.Connections().Get(ctx, "u1", types.ProviderJira)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(raw.AccessToken, "sb1:"))
	require.NotContains(t, raw.AccessToken, "jira_access_1")
	require.NotContains(t, raw.RefreshToken, "jira_refresh_1")

	got, err := sealed.Connections().Get(ctx, "u1", types.ProviderJira)
	require.NoError(t, err)
	require.Equal(t, "jira_access_1", got.AccessToken)
	require.Equal(t, "jira_refresh_1", got.RefreshToken)
}

func TestSealedStore_ReadsLegacyPlaintext(t *testing.T) {
	ctx := context.Background()
	inner := memory.New()
	require.NoError(t, inner.Connections().Upsert(ctx, storetest.NewConnection("u1", types.ProviderGitHub, "gho_plain", "", nil)))

	got, err := store.Seal(inner, newBox(t)).Connections().Get(ctx, "u1", types.ProviderGitHub)
	require.NoError(t, err)
	require.Equal(t, "gho_plain", got.AccessToken)
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, err := store.Open(context.Background(), store.Config{Driver: "mongo"})
	require.ErrorIs(t, err, store.ErrUnknownDriver)
}
