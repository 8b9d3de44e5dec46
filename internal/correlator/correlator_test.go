package correlator

import (
	"context"
	"errors"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/devpulse/internal/cache"
	"github.com/dropDatabas3/devpulse/internal/domain/repository"
	"github.com/dropDatabas3/devpulse/internal/domain/types"
	"github.com/dropDatabas3/devpulse/internal/identity"
	"github.com/dropDatabas3/devpulse/internal/oauth"
	"github.com/dropDatabas3/devpulse/internal/store/adapters/memory"
)

type fakeExchanger struct {
	exchanges atomic.Int32
	bundle    types.TokenBundle
	err       error
}

func (f *fakeExchanger) AuthCodeURL(kind types.ProviderKind, state string) (string, error) {
	return "https://provider.test/" + string(kind) + "/authorize?" + url.Values{"state": {state}}.Encode(), nil
}

func (f *fakeExchanger) ExchangeCode(_ context.Context, _ types.ProviderKind, code string) (types.TokenBundle, error) {
	f.exchanges.Add(1)
	if f.err != nil {
		return types.TokenBundle{}, f.err
	}
	return f.bundle, nil
}

func (f *fakeExchanger) FetchProfile(_ context.Context, kind types.ProviderKind, _ string) (repository.Profile, error) {
	return repository.Profile{AccountID: "acc-1", Login: "octo"}, nil
}

type fixture struct {
	c      *Correlator
	x      *fakeExchanger
	st     *memory.Store
	signer *identity.HMACVerifier
}

func newFixture(t *testing.T, mode Mode) *fixture {
	t.Helper()
	v := identity.NewHMACVerifier([]byte("test-secret-test-secret-32bytes!"), "", "")
	x := &fakeExchanger{bundle: types.TokenBundle{AccessToken: "gh_t1"}}
	st := memory.New()
	return &fixture{
		c:      New(v, x, st, cache.NewMemory("t"), Config{Mode: mode}),
		x:      x,
		st:     st,
		signer: v,
	}
}

func (f *fixture) idToken(t *testing.T, uid string, ttl time.Duration) string {
	t.Helper()
	tok, err := f.signer.Sign(identity.Identity{UID: uid, Email: uid + "@devpulse.test"}, ttl)
	require.NoError(t, err)
	return tok
}

func stateOf(t *testing.T, redirect string) string {
	t.Helper()
	u, err := url.Parse(redirect)
	require.NoError(t, err)
	return u.Query().Get("state")
}

// Scenario A: GitHub sin refresh ni expiración.
func TestCompleteStoresConnection(t *testing.T) {
	f := newFixture(t, ModeServerState)
	ctx := context.Background()
	idTok := f.idToken(t, "U1", time.Hour)

	redirect, err := f.c.Initiate(ctx, types.ProviderGitHub, idTok)
	require.NoError(t, err)
	state := stateOf(t, redirect)
	require.NotEmpty(t, state)
	require.NotEqual(t, idTok, state, "identity token must not travel as state")

	res, err := f.c.Complete(ctx, types.ProviderGitHub, CallbackParams{Code: "abc", State: state})
	require.NoError(t, err)
	require.Equal(t, "U1", res.UID)

	c, err := f.st.Connections().Get(ctx, "U1", types.ProviderGitHub)
	require.NoError(t, err)
	require.Equal(t, "gh_t1", c.AccessToken)
	require.Nil(t, c.ExpiresAt)
	require.Equal(t, "octo", c.Profile.Login)

	u, err := f.st.Users().Get(ctx, "U1")
	require.NoError(t, err)
	require.Equal(t, "U1@devpulse.test", u.Email)
}

// Scenario C: error del proveedor, sin escrituras.
func TestCompleteProviderDenied(t *testing.T) {
	f := newFixture(t, ModeServerState)
	ctx := context.Background()
	redirect, err := f.c.Initiate(ctx, types.ProviderGitHub, f.idToken(t, "U1", time.Hour))
	require.NoError(t, err)
	state := stateOf(t, redirect)

	_, err = f.c.Complete(ctx, types.ProviderGitHub, CallbackParams{State: state, Error: "access_denied"})
	var denied *ProviderDeniedError
	require.ErrorAs(t, err, &denied)
	require.Equal(t, "access_denied", denied.Code)
	require.Zero(t, f.x.exchanges.Load())

	_, err = f.st.Connections().Get(ctx, "U1", types.ProviderGitHub)
	require.ErrorIs(t, err, repository.ErrNotFound)

	// el state quedó consumido
	_, err = f.c.Complete(ctx, types.ProviderGitHub, CallbackParams{Code: "abc", State: state})
	require.ErrorIs(t, err, ErrCorrelationFailed)
}

func TestCompleteStateIsSingleUse(t *testing.T) {
	f := newFixture(t, ModeServerState)
	ctx := context.Background()
	redirect, err := f.c.Initiate(ctx, types.ProviderJira, f.idToken(t, "U2", time.Hour))
	require.NoError(t, err)
	state := stateOf(t, redirect)

	_, err = f.c.Complete(ctx, types.ProviderJira, CallbackParams{Code: "c1", State: state})
	require.NoError(t, err)
	_, err = f.c.Complete(ctx, types.ProviderJira, CallbackParams{Code: "c1", State: state})
	require.ErrorIs(t, err, ErrCorrelationFailed)
	require.EqualValues(t, 1, f.x.exchanges.Load())
}

func TestCompleteRejectsBadCorrelation(t *testing.T) {
	f := newFixture(t, ModeServerState)
	ctx := context.Background()
	redirect, err := f.c.Initiate(ctx, types.ProviderJira, f.idToken(t, "U3", time.Hour))
	require.NoError(t, err)
	state := stateOf(t, redirect)

	cases := []CallbackParams{
		{Code: "c1"},
		{Code: "c1", State: "forged"},
		{Code: "c1", State: state}, // emitido para jira, llega por github
	}
	for _, p := range cases {
		_, err := f.c.Complete(ctx, types.ProviderGitHub, p)
		require.ErrorIs(t, err, ErrCorrelationFailed)
	}
	require.Zero(t, f.x.exchanges.Load())
	list, err := f.st.Connections().List(ctx, "U3")
	require.NoError(t, err)
	require.Empty(t, list)
}

func TestInitiateRejectsInvalidIdentity(t *testing.T) {
	f := newFixture(t, ModeServerState)
	_, err := f.c.Initiate(context.Background(), types.ProviderGitHub, "not-a-jwt")
	require.ErrorIs(t, err, identity.ErrInvalidIdentity)

	_, err = f.c.Initiate(context.Background(), "gitlab", f.idToken(t, "U1", time.Hour))
	require.ErrorIs(t, err, types.ErrUnknownProvider)
}

func TestCompleteMergesProviders(t *testing.T) {
	f := newFixture(t, ModeServerState)
	ctx := context.Background()
	idTok := f.idToken(t, "U4", time.Hour)

	for _, kind := range []types.ProviderKind{types.ProviderGitHub, types.ProviderJira} {
		redirect, err := f.c.Initiate(ctx, kind, idTok)
		require.NoError(t, err)
		_, err = f.c.Complete(ctx, kind, CallbackParams{Code: "c", State: stateOf(t, redirect)})
		require.NoError(t, err)
	}
	list, err := f.st.Connections().List(ctx, "U4")
	require.NoError(t, err)
	require.Len(t, list, 2)
}

func TestCompleteExchangeFailureWritesNothing(t *testing.T) {
	f := newFixture(t, ModeServerState)
	f.x.err = &oauth.ExchangeError{Provider: types.ProviderGitHub, ProviderStatus: 400, ProviderCode: "bad_verification_code"}
	ctx := context.Background()
	redirect, err := f.c.Initiate(ctx, types.ProviderGitHub, f.idToken(t, "U5", time.Hour))
	require.NoError(t, err)

	_, err = f.c.Complete(ctx, types.ProviderGitHub, CallbackParams{Code: "c", State: stateOf(t, redirect)})
	require.ErrorIs(t, err, oauth.ErrExchangeFailed)
	_, err = f.st.Connections().Get(ctx, "U5", types.ProviderGitHub)
	require.True(t, errors.Is(err, repository.ErrNotFound))
}

func TestLegacyIdentityTokenMode(t *testing.T) {
	f := newFixture(t, ModeIdentityToken)
	ctx := context.Background()
	idTok := f.idToken(t, "U6", time.Hour)

	redirect, err := f.c.Initiate(ctx, types.ProviderGitHub, idTok)
	require.NoError(t, err)
	require.Equal(t, idTok, stateOf(t, redirect))

	res, err := f.c.Complete(ctx, types.ProviderGitHub, CallbackParams{Code: "c", State: idTok})
	require.NoError(t, err)
	require.Equal(t, "U6", res.UID)

	// identity token vencido en el callback: fail closed
	expired := f.idToken(t, "U7", -time.Minute)
	_, err = f.c.Complete(ctx, types.ProviderGitHub, CallbackParams{Code: "c", State: expired})
	require.ErrorIs(t, err, ErrCorrelationFailed)
	_, err = f.st.Connections().Get(ctx, "U7", types.ProviderGitHub)
	require.ErrorIs(t, err, repository.ErrNotFound)
}
