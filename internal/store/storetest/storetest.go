// Package storetest contiene la suite de conformidad que todo adapter de
// repository.Store debe pasar.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/devpulse/internal/domain/repository"
	"github.com/dropDatabas3/devpulse/internal/domain/types"
)

// Run ejecuta la suite contra stores frescos creados por newStore.
func Run(t *testing.T, newStore func(t *testing.T) repository.Store) {
	t.Run("UserEnsureMerges", func(t *testing.T) { userEnsureMerges(t, newStore(t)) })
	t.Run("UpsertKeepsOtherProviders", func(t *testing.T) { upsertKeepsOtherProviders(t, newStore(t)) })
	t.Run("UpsertReplacesSameProvider", func(t *testing.T) { upsertReplacesSameProvider(t, newStore(t)) })
	t.Run("UpdateTokensRotates", func(t *testing.T) { updateTokensRotates(t, newStore(t)) })
	t.Run("UpdateTokensPrecondition", func(t *testing.T) { updateTokensPrecondition(t, newStore(t)) })
	t.Run("MarkNeedsReconnect", func(t *testing.T) { markNeedsReconnect(t, newStore(t)) })
	t.Run("DeleteIsIdempotent", func(t *testing.T) { deleteIsIdempotent(t, newStore(t)) })
	t.Run("ConcurrentUpdatesDoNotMix", func(t *testing.T) { concurrentUpdatesDoNotMix(t, newStore(t)) })
}

// NewConnection arma una conexión válida para tests.
func NewConnection(uid string, kind types.ProviderKind, access, refresh string, expiresAt *time.Time) *repository.Connection {
	return &repository.Connection{
		UserID:       uid,
		Provider:     kind,
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "Bearer",
		ExpiresAt:    expiresAt,
		Profile:      repository.Profile{AccountID: "acc-" + uid, Login: uid + "-login"},
	}
}

func userEnsureMerges(t *testing.T, st repository.Store) {
	ctx := context.Background()
	_, err := st.Users().Get(ctx, "u1")
	require.ErrorIs(t, err, repository.ErrNotFound)

	require.NoError(t, st.Users().Ensure(ctx, repository.User{UID: "u1", Email: "a@b.c", DisplayName: "Ada"}))
	require.NoError(t, st.Users().Ensure(ctx, repository.User{UID: "u1", PhotoURL: "https://img/1"}))

	u, err := st.Users().Get(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, "a@b.c", u.Email)
	require.Equal(t, "Ada", u.DisplayName)
	require.Equal(t, "https://img/1", u.PhotoURL)
}

func upsertKeepsOtherProviders(t *testing.T, st repository.Store) {
	ctx := context.Background()
	conns := st.Connections()
	require.NoError(t, conns.Upsert(ctx, NewConnection("u1", types.ProviderGitHub, "gho_1", "", nil)))
	exp := time.Now().Add(time.Hour).UTC().Truncate(time.Millisecond)
	require.NoError(t, conns.Upsert(ctx, NewConnection("u1", types.ProviderJira, "jira_a1", "jira_r1", &exp)))

	list, err := conns.List(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, types.ProviderGitHub, list[0].Provider)
	require.Equal(t, types.ProviderJira, list[1].Provider)

	gh, err := conns.Get(ctx, "u1", types.ProviderGitHub)
	require.NoError(t, err)
	require.Equal(t, "gho_1", gh.AccessToken)
	require.Nil(t, gh.ExpiresAt)
	require.Equal(t, repository.ConnectionActive, gh.Status)

	jr, err := conns.Get(ctx, "u1", types.ProviderJira)
	require.NoError(t, err)
	require.NotNil(t, jr.ExpiresAt)
	require.WithinDuration(t, exp, *jr.ExpiresAt, time.Millisecond)

	// La conexión crea el documento de usuario implícitamente.
	_, err = st.Users().Get(ctx, "u1")
	require.NoError(t, err)
}

func upsertReplacesSameProvider(t *testing.T, st repository.Store) {
	ctx := context.Background()
	conns := st.Connections()
	first := NewConnection("u1", types.ProviderGitHub, "gho_1", "", nil)
	require.NoError(t, conns.Upsert(ctx, first))
	second := NewConnection("u1", types.ProviderGitHub, "gho_2", "", nil)
	require.NoError(t, conns.Upsert(ctx, second))

	require.Equal(t, first.ID, second.ID)
	list, err := conns.List(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, "gho_2", list[0].AccessToken)
}

func updateTokensRotates(t *testing.T, st repository.Store) {
	ctx := context.Background()
	conns := st.Connections()
	require.NoError(t, conns.Upsert(ctx, NewConnection("u1", types.ProviderJira, "a1", "r1", nil)))

	exp := time.Now().Add(time.Hour).UTC().Truncate(time.Millisecond)
	require.NoError(t, conns.UpdateTokens(ctx, "u1", types.ProviderJira, repository.TokenUpdate{
		AccessToken: "a2", RefreshToken: "r2", TokenType: "Bearer", ExpiresAt: &exp, ExpectedRefreshToken: "r1",
	}))

	c, err := conns.Get(ctx, "u1", types.ProviderJira)
	require.NoError(t, err)
	require.Equal(t, "a2", c.AccessToken)
	require.Equal(t, "r2", c.RefreshToken)
	require.NotNil(t, c.ExpiresAt)

	err = conns.UpdateTokens(ctx, "nobody", types.ProviderJira, repository.TokenUpdate{AccessToken: "x", TokenType: "Bearer"})
	require.ErrorIs(t, err, repository.ErrNotFound)
}

func updateTokensPrecondition(t *testing.T, st repository.Store) {
	ctx := context.Background()
	conns := st.Connections()
	require.NoError(t, conns.Upsert(ctx, NewConnection("u1", types.ProviderJira, "a1", "r1", nil)))

	err := conns.UpdateTokens(ctx, "u1", types.ProviderJira, repository.TokenUpdate{
		AccessToken: "a2", RefreshToken: "r2", TokenType: "Bearer", ExpectedRefreshToken: "stale",
	})
	require.ErrorIs(t, err, repository.ErrPreconditionFailed)

	c, err := conns.Get(ctx, "u1", types.ProviderJira)
	require.NoError(t, err)
	require.Equal(t, "a1", c.AccessToken)
	require.Equal(t, "r1", c.RefreshToken)
}

func markNeedsReconnect(t *testing.T, st repository.Store) {
	ctx := context.Background()
	conns := st.Connections()
	require.NoError(t, conns.Upsert(ctx, NewConnection("u1", types.ProviderJira, "a1", "r1", nil)))
	require.NoError(t, conns.MarkNeedsReconnect(ctx, "u1", types.ProviderJira, "invalid_grant"))

	c, err := conns.Get(ctx, "u1", types.ProviderJira)
	require.NoError(t, err)
	require.Equal(t, repository.ConnectionNeedsReconnect, c.Status)
	require.Equal(t, "invalid_grant", c.StatusReason)
	require.Equal(t, "a1", c.AccessToken)

	require.ErrorIs(t, conns.MarkNeedsReconnect(ctx, "u1", types.ProviderGitHub, "x"), repository.ErrNotFound)
}

func deleteIsIdempotent(t *testing.T, st repository.Store) {
	ctx := context.Background()
	conns := st.Connections()
	require.NoError(t, conns.Upsert(ctx, NewConnection("u1", types.ProviderGitHub, "gho_1", "", nil)))
	require.NoError(t, conns.Upsert(ctx, NewConnection("u1", types.ProviderJira, "a1", "r1", nil)))

	require.NoError(t, conns.Delete(ctx, "u1", types.ProviderGitHub))
	require.NoError(t, conns.Delete(ctx, "u1", types.ProviderGitHub))

	_, err := conns.Get(ctx, "u1", types.ProviderGitHub)
	require.ErrorIs(t, err, repository.ErrNotFound)
	_, err = conns.Get(ctx, "u1", types.ProviderJira)
	require.NoError(t, err)
	_, err = st.Users().Get(ctx, "u1")
	require.NoError(t, err)
}

// Cada update escribe un set coherente (aN, rN); el estado final debe ser uno de ellos.
func concurrentUpdatesDoNotMix(t *testing.T, st repository.Store) {
	ctx := context.Background()
	conns := st.Connections()
	require.NoError(t, conns.Upsert(ctx, NewConnection("u1", types.ProviderJira, "a0", "r0", nil)))

	var wg sync.WaitGroup
	for i := 1; i <= 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := conns.UpdateTokens(ctx, "u1", types.ProviderJira, repository.TokenUpdate{
				AccessToken:  fmt.Sprintf("a%d", i),
				RefreshToken: fmt.Sprintf("r%d", i),
				TokenType:    "Bearer",
			})
			if err != nil && !errors.Is(err, repository.ErrPreconditionFailed) {
				t.Errorf("UpdateTokens: %v", err)
			}
		}(i)
	}
	wg.Wait()

	c, err := conns.Get(ctx, "u1", types.ProviderJira)
	require.NoError(t, err)
	require.Equal(t, c.AccessToken[1:], c.RefreshToken[1:], "access/refresh from different refreshes: %s/%s", c.AccessToken, c.RefreshToken)
}
