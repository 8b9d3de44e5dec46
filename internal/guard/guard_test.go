package guard

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/devpulse/internal/cache"
	"github.com/dropDatabas3/devpulse/internal/domain/repository"
	"github.com/dropDatabas3/devpulse/internal/domain/types"
	"github.com/dropDatabas3/devpulse/internal/oauth"
	"github.com/dropDatabas3/devpulse/internal/store/adapters/memory"
	"github.com/dropDatabas3/devpulse/internal/store/storetest"
)

// fakeRefresher emite bundles numerados; gate (si no es nil) bloquea hasta cerrarse.
type fakeRefresher struct {
	calls atomic.Int32
	gate  chan struct{}
	err   error
	// sinRotar: el proveedor no devuelve refresh token nuevo
	sinRotar bool
}

func (f *fakeRefresher) ExchangeRefreshToken(ctx context.Context, kind types.ProviderKind, rt string) (types.TokenBundle, error) {
	n := f.calls.Add(1)
	if f.gate != nil {
		<-f.gate
	}
	if f.err != nil {
		return types.TokenBundle{}, f.err
	}
	b := types.TokenBundle{AccessToken: fmt.Sprintf("j_t%d", n+1), ExpiresIn: 3600, TokenType: "Bearer"}
	if !f.sinRotar {
		b.RefreshToken = fmt.Sprintf("r%d", n+1)
	}
	return b, nil
}

func ptr(t time.Time) *time.Time { return &t }

func seed(t *testing.T, st *memory.Store, c *repository.Connection) {
	t.Helper()
	require.NoError(t, st.Connections().Upsert(context.Background(), c))
}

func TestEvaluate(t *testing.T) {
	now := time.Now()
	m := DefaultSafetyMargin
	cases := []struct {
		name string
		c    *repository.Connection
		want State
	}{
		{"sin expiración", &repository.Connection{AccessToken: "a"}, Fresh},
		{"lejos de vencer", &repository.Connection{AccessToken: "a", ExpiresAt: ptr(now.Add(time.Hour))}, Fresh},
		{"dentro del margen", &repository.Connection{AccessToken: "a", RefreshToken: "r", ExpiresAt: ptr(now.Add(299 * time.Second))}, Stale},
		{"vencido con refresh", &repository.Connection{AccessToken: "a", RefreshToken: "r", ExpiresAt: ptr(now.Add(-10 * time.Second))}, Stale},
		{"vencido sin refresh", &repository.Connection{AccessToken: "a", ExpiresAt: ptr(now.Add(-10 * time.Second))}, Unrecoverable},
		{"needs reconnect", &repository.Connection{AccessToken: "a", Status: repository.ConnectionNeedsReconnect}, Unrecoverable},
		{"nil", nil, Unrecoverable},
	}
	for _, tc := range cases {
		if got := Evaluate(tc.c, now, m); got != tc.want {
			t.Fatalf("%s: got %s want %s", tc.name, got, tc.want)
		}
	}
}

func TestAcquireFreshDoesNotRefresh(t *testing.T) {
	st := memory.New()
	seed(t, st, storetest.NewConnection("U1", types.ProviderGitHub, "gh_t1", "", nil))
	r := &fakeRefresher{}
	g := New(st.Connections(), r, nil, Config{})

	for i := 0; i < 3; i++ {
		tok, err := g.Acquire(context.Background(), "U1", types.ProviderGitHub)
		require.NoError(t, err)
		require.Equal(t, "gh_t1", tok.AccessToken)
		require.False(t, tok.Refreshed)
	}
	require.Zero(t, r.calls.Load())
}

func TestAcquireStaleRefreshesOnceAndRotates(t *testing.T) {
	st := memory.New()
	seed(t, st, storetest.NewConnection("U2", types.ProviderJira, "j_t1", "r1", ptr(time.Now().Add(-10*time.Second))))
	r := &fakeRefresher{}
	g := New(st.Connections(), r, nil, Config{})

	tok, err := g.Acquire(context.Background(), "U2", types.ProviderJira)
	require.NoError(t, err)
	require.Equal(t, "j_t2", tok.AccessToken)
	require.True(t, tok.Refreshed)
	require.EqualValues(t, 1, r.calls.Load())

	c, err := st.Connections().Get(context.Background(), "U2", types.ProviderJira)
	require.NoError(t, err)
	require.Equal(t, "j_t2", c.AccessToken)
	require.Equal(t, "r2", c.RefreshToken)
	require.WithinDuration(t, time.Now().Add(time.Hour), *c.ExpiresAt, 5*time.Second)

	// r1 no debe quedar en ningún lado
	list, err := st.Connections().List(context.Background(), "U2")
	require.NoError(t, err)
	for _, lc := range list {
		require.NotEqual(t, "r1", lc.RefreshToken)
	}

	// ya fresco: no hay segundo refresh
	_, err = g.Acquire(context.Background(), "U2", types.ProviderJira)
	require.NoError(t, err)
	require.EqualValues(t, 1, r.calls.Load())
}

func TestAcquireKeepsRefreshTokenWhenNotRotated(t *testing.T) {
	st := memory.New()
	seed(t, st, storetest.NewConnection("U2", types.ProviderJira, "j_t1", "r1", ptr(time.Now().Add(-time.Minute))))
	g := New(st.Connections(), &fakeRefresher{sinRotar: true}, nil, Config{})

	_, err := g.Acquire(context.Background(), "U2", types.ProviderJira)
	require.NoError(t, err)
	c, _ := st.Connections().Get(context.Background(), "U2", types.ProviderJira)
	require.Equal(t, "r1", c.RefreshToken)
	require.Equal(t, "j_t2", c.AccessToken)
}

func TestAcquireUnrecoverable(t *testing.T) {
	st := memory.New()
	seed(t, st, storetest.NewConnection("U3", types.ProviderJira, "j_t1", "", ptr(time.Now().Add(-time.Minute))))
	r := &fakeRefresher{}
	g := New(st.Connections(), r, nil, Config{})

	_, err := g.Acquire(context.Background(), "U3", types.ProviderJira)
	require.ErrorIs(t, err, ErrAuthExpired)
	require.Zero(t, r.calls.Load())

	// la conexión queda en el store sin marcar
	c, err := st.Connections().Get(context.Background(), "U3", types.ProviderJira)
	require.NoError(t, err)
	require.Equal(t, repository.ConnectionActive, c.Status)

	_, err = g.Acquire(context.Background(), "nobody", types.ProviderJira)
	require.ErrorIs(t, err, ErrNotConnected)
}

func TestAcquireRejectedMarksNeedsReconnect(t *testing.T) {
	st := memory.New()
	seed(t, st, storetest.NewConnection("U4", types.ProviderJira, "j_t1", "r1", ptr(time.Now().Add(-time.Minute))))
	r := &fakeRefresher{err: &oauth.ExchangeError{Provider: types.ProviderJira, ProviderStatus: 403, ProviderCode: "invalid_grant"}}
	g := New(st.Connections(), r, nil, Config{})

	_, err := g.Acquire(context.Background(), "U4", types.ProviderJira)
	require.ErrorIs(t, err, ErrAuthExpired)

	c, err := st.Connections().Get(context.Background(), "U4", types.ProviderJira)
	require.NoError(t, err)
	require.Equal(t, repository.ConnectionNeedsReconnect, c.Status)
	require.Equal(t, "r1", c.RefreshToken)

	// marcada: no se vuelve a intentar
	_, err = g.Acquire(context.Background(), "U4", types.ProviderJira)
	require.ErrorIs(t, err, ErrAuthExpired)
	require.EqualValues(t, 1, r.calls.Load())
}

func TestAcquireNetworkFailureKeepsConnection(t *testing.T) {
	st := memory.New()
	exp := time.Now().Add(-time.Minute)
	seed(t, st, storetest.NewConnection("U5", types.ProviderJira, "j_t1", "r1", &exp))
	r := &fakeRefresher{err: fmt.Errorf("%w: dial tcp: timeout", oauth.ErrProviderUnavailable)}
	g := New(st.Connections(), r, nil, Config{})

	_, err := g.Acquire(context.Background(), "U5", types.ProviderJira)
	require.ErrorIs(t, err, oauth.ErrProviderUnavailable)
	require.False(t, errors.Is(err, ErrAuthExpired))

	c, err := st.Connections().Get(context.Background(), "U5", types.ProviderJira)
	require.NoError(t, err)
	require.Equal(t, repository.ConnectionActive, c.Status)
	require.Equal(t, "j_t1", c.AccessToken)
	require.Equal(t, "r1", c.RefreshToken)
}

func TestAcquireConcurrentSingleFlight(t *testing.T) {
	st := memory.New()
	seed(t, st, storetest.NewConnection("U6", types.ProviderJira, "j_t1", "r1", ptr(time.Now().Add(-time.Minute))))
	r := &fakeRefresher{gate: make(chan struct{})}
	g := New(st.Connections(), r, nil, Config{})

	const n = 8
	var wg sync.WaitGroup
	results := make([]*Token, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = g.Acquire(context.Background(), "U6", types.ProviderJira)
		}(i)
	}
	require.Eventually(t, func() bool { return r.calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(r.gate)
	wg.Wait()

	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		require.Equal(t, "j_t2", results[i].AccessToken)
	}
	require.EqualValues(t, 1, r.calls.Load())
}

func TestAcquireCallerCancelDoesNotAbortRefresh(t *testing.T) {
	st := memory.New()
	seed(t, st, storetest.NewConnection("U7", types.ProviderJira, "j_t1", "r1", ptr(time.Now().Add(-time.Minute))))
	r := &fakeRefresher{gate: make(chan struct{})}
	g := New(st.Connections(), r, nil, Config{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := g.Acquire(ctx, "U7", types.ProviderJira)
		done <- err
	}()
	require.Eventually(t, func() bool { return r.calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	cancel()
	require.ErrorIs(t, <-done, context.Canceled)

	close(r.gate)
	require.Eventually(t, func() bool {
		c, err := st.Connections().Get(context.Background(), "U7", types.ProviderJira)
		return err == nil && c.AccessToken == "j_t2" && c.RefreshToken == "r2"
	}, time.Second, 5*time.Millisecond)
}

// Dos réplicas (guards distintos) sobre el mismo store y cache: un solo refresh.
func TestAcquireLeaseAcrossReplicas(t *testing.T) {
	st := memory.New()
	seed(t, st, storetest.NewConnection("U8", types.ProviderJira, "j_t1", "r1", ptr(time.Now().Add(-time.Minute))))
	leases := cache.NewMemory("test")
	r := &fakeRefresher{gate: make(chan struct{})}
	g1 := New(st.Connections(), r, leases, Config{})
	g2 := New(st.Connections(), r, leases, Config{})
	g2.pollInterval = 5 * time.Millisecond

	var wg sync.WaitGroup
	var t1, t2 *Token
	var e1, e2 error
	wg.Add(1)
	go func() { defer wg.Done(); t1, e1 = g1.Acquire(context.Background(), "U8", types.ProviderJira) }()
	require.Eventually(t, func() bool { return r.calls.Load() == 1 }, time.Second, 5*time.Millisecond)

	wg.Add(1)
	go func() { defer wg.Done(); t2, e2 = g2.Acquire(context.Background(), "U8", types.ProviderJira) }()
	time.Sleep(30 * time.Millisecond)
	close(r.gate)
	wg.Wait()

	require.NoError(t, e1)
	require.NoError(t, e2)
	require.Equal(t, t1.AccessToken, t2.AccessToken)
	require.EqualValues(t, 1, r.calls.Load())
}

// Sin lease compartido ambos refrescan; el estado final es uno de los dos bundles completo.
func TestAcquireConcurrentReplicasNoFieldMixing(t *testing.T) {
	st := memory.New()
	seed(t, st, storetest.NewConnection("U9", types.ProviderJira, "j_t1", "r1", ptr(time.Now().Add(-time.Minute))))
	r := &fakeRefresher{gate: make(chan struct{})}
	g1 := New(st.Connections(), r, nil, Config{})
	g2 := New(st.Connections(), r, nil, Config{})

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, g := range []*Guard{g1, g2} {
		wg.Add(1)
		go func(i int, g *Guard) {
			defer wg.Done()
			_, errs[i] = g.Acquire(context.Background(), "U9", types.ProviderJira)
		}(i, g)
	}
	require.Eventually(t, func() bool { return r.calls.Load() == 2 }, time.Second, 5*time.Millisecond)
	close(r.gate)
	wg.Wait()
	require.NoError(t, errs[0])
	require.NoError(t, errs[1])

	c, err := st.Connections().Get(context.Background(), "U9", types.ProviderJira)
	require.NoError(t, err)
	// j_tN siempre va con rN
	require.Equal(t, "r"+c.AccessToken[len("j_t"):], c.RefreshToken)
}
