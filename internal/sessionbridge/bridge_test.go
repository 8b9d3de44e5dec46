package sessionbridge

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/devpulse/internal/cache"
	"github.com/dropDatabas3/devpulse/internal/domain/types"
	"github.com/dropDatabas3/devpulse/internal/store/adapters/memory"
	"github.com/dropDatabas3/devpulse/internal/store/storetest"
)

func TestRestoreIsIdempotent(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	require.NoError(t, st.Connections().Upsert(ctx, storetest.NewConnection("U1", types.ProviderGitHub, "gho_abcdefgh12", "", nil)))
	b := New(st.Connections(), cache.NewMemory("t"), time.Hour)

	v1, sid, err := b.Restore(ctx, "U1", "")
	require.NoError(t, err)
	require.NotEmpty(t, sid)
	require.Len(t, v1.Providers, 1)
	require.Equal(t, "gho_ab…12", v1.Providers[0].TokenPreview)

	v2, sid2, err := b.Restore(ctx, "U1", sid)
	require.NoError(t, err)
	require.Equal(t, sid, sid2)
	require.Equal(t, v1.Providers, v2.Providers)

	got, err := b.Lookup(ctx, sid)
	require.NoError(t, err)
	require.Equal(t, "U1", got.UID)
	p, ok := got.Provider(types.ProviderGitHub)
	require.True(t, ok)
	require.Equal(t, "U1-login", p.Profile.Login)
}

func TestRestoreWithoutConnections(t *testing.T) {
	b := New(memory.New().Connections(), cache.NewMemory("t"), 0)
	v, sid, err := b.Restore(context.Background(), "nobody", "")
	require.NoError(t, err)
	require.NotEmpty(t, sid)
	require.Empty(t, v.Providers)
}

func TestRestoreDoesNotReuseForeignSession(t *testing.T) {
	ctx := context.Background()
	b := New(memory.New().Connections(), cache.NewMemory("t"), 0)
	_, sidA, err := b.Restore(ctx, "A", "")
	require.NoError(t, err)
	_, sidB, err := b.Restore(ctx, "B", sidA)
	require.NoError(t, err)
	require.NotEqual(t, sidA, sidB)

	a, err := b.Lookup(ctx, sidA)
	require.NoError(t, err)
	require.Equal(t, "A", a.UID)
}

func TestClear(t *testing.T) {
	ctx := context.Background()
	b := New(memory.New().Connections(), cache.NewMemory("t"), 0)
	_, sid, err := b.Restore(ctx, "U1", "")
	require.NoError(t, err)

	require.NoError(t, b.Clear(ctx, sid))
	require.NoError(t, b.Clear(ctx, sid))
	_, err = b.Lookup(ctx, sid)
	require.ErrorIs(t, err, ErrNoSession)
}

func TestSyncDropsDeletedConnection(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	require.NoError(t, st.Connections().Upsert(ctx, storetest.NewConnection("U3", types.ProviderGitHub, "gho_1", "", nil)))
	require.NoError(t, st.Connections().Upsert(ctx, storetest.NewConnection("U3", types.ProviderJira, "j_1", "r1", nil)))
	b := New(st.Connections(), cache.NewMemory("t"), time.Hour)

	_, sid, err := b.Restore(ctx, "U3", "")
	require.NoError(t, err)
	_, sidOther, err := b.Restore(ctx, "U4", "")
	require.NoError(t, err)

	require.NoError(t, st.Connections().Delete(ctx, "U3", types.ProviderGitHub))
	require.NoError(t, b.Sync(ctx, "U3", sid))

	got, err := b.Lookup(ctx, sid)
	require.NoError(t, err)
	_, ok := got.Provider(types.ProviderGitHub)
	require.False(t, ok)
	_, ok = got.Provider(types.ProviderJira)
	require.True(t, ok)

	// sesiones ajenas o inexistentes no se tocan
	require.NoError(t, b.Sync(ctx, "U3", sidOther))
	other, err := b.Lookup(ctx, sidOther)
	require.NoError(t, err)
	require.Equal(t, "U4", other.UID)
	require.NoError(t, b.Sync(ctx, "U3", ""))
	require.NoError(t, b.Sync(ctx, "U3", "missing"))
}
