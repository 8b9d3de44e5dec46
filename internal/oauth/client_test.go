package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dropDatabas3/devpulse/internal/domain/types"
)

// fakeProvider simula token endpoint y API de perfil.
type fakeProvider struct {
	srv      *httptest.Server
	calls    atomic.Int32
	lastForm atomic.Value
	token    func(w http.ResponseWriter, form url.Values)
}

func newFakeProvider(t *testing.T, token func(w http.ResponseWriter, form url.Values)) *fakeProvider {
	t.Helper()
	f := &fakeProvider{token: token}
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		f.calls.Add(1)
		_ = r.ParseForm()
		f.lastForm.Store(r.PostForm)
		f.token(w, r.PostForm)
	})
	mux.HandleFunc("/user", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer at-1" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"message":"Bad credentials"}`))
			return
		}
		_, _ = w.Write([]byte(`{"id":42,"login":"octo","name":"","email":null,"avatar_url":"https://a/x.png","html_url":"https://github.com/octo"}`))
	})
	mux.HandleFunc("/user/emails", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"email":"other@x.io","primary":false,"verified":true},{"email":"octo@x.io","primary":true,"verified":true}]`))
	})
	mux.HandleFunc("/me", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"account_id":"557058:abc","name":"Ada","nickname":"ada","email":"ada@x.io","picture":"https://p"}`))
	})
	mux.HandleFunc("/oauth/token/accessible-resources", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"id":"cloud-1","url":"https://acme.atlassian.net","name":"acme"}]`))
	})
	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)
	return f
}

func jsonReply(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func newTestClient(t *testing.T, f *fakeProvider, kind types.ProviderKind) *Client {
	t.Helper()
	c := New(2 * time.Second)
	err := c.Register(kind, Options{
		ClientID:     "cid",
		ClientSecret: "secret",
		RedirectURL:  "http://localhost:5000/auth/" + string(kind) + "/callback",
		Scopes:       []string{"a", "b"},
		AuthURL:      f.srv.URL + "/authorize",
		TokenURL:     f.srv.URL + "/token",
		APIBaseURL:   f.srv.URL,
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	return c
}

func TestAuthCodeURL(t *testing.T) {
	f := newFakeProvider(t, nil)

	gh := newTestClient(t, f, types.ProviderGitHub)
	raw, err := gh.AuthCodeURL(types.ProviderGitHub, "st-1")
	if err != nil {
		t.Fatalf("auth url: %v", err)
	}
	u, _ := url.Parse(raw)
	q := u.Query()
	if q.Get("state") != "st-1" || q.Get("client_id") != "cid" || q.Get("scope") != "a b" {
		t.Fatalf("unexpected query: %v", q)
	}
	if q.Get("audience") != "" {
		t.Fatalf("github must not carry audience")
	}

	jr := newTestClient(t, f, types.ProviderJira)
	raw, _ = jr.AuthCodeURL(types.ProviderJira, "st-2")
	u, _ = url.Parse(raw)
	if u.Query().Get("audience") != "api.atlassian.com" || u.Query().Get("prompt") != "consent" {
		t.Fatalf("jira params missing: %v", u.Query())
	}

	if _, err := jr.AuthCodeURL(types.ProviderGitHub, "x"); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("want ErrNotConfigured, got %v", err)
	}
	if _, err := jr.AuthCodeURL("gitlab", "x"); !errors.Is(err, types.ErrUnknownProvider) {
		t.Fatalf("want ErrUnknownProvider, got %v", err)
	}
}

func TestRegisterRequiresCredentials(t *testing.T) {
	c := New(0)
	if err := c.Register(types.ProviderGitHub, Options{ClientID: "x"}); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("want ErrNotConfigured, got %v", err)
	}
	if c.Enabled(types.ProviderGitHub) {
		t.Fatalf("provider should stay disabled")
	}
}

func TestExchangeCode(t *testing.T) {
	f := newFakeProvider(t, func(w http.ResponseWriter, form url.Values) {
		if form.Get("grant_type") != "authorization_code" || form.Get("code") != "c1" {
			jsonReply(w, 400, map[string]string{"error": "invalid_request"})
			return
		}
		jsonReply(w, 200, map[string]any{
			"access_token": "a1", "refresh_token": "r1", "token_type": "bearer",
			"expires_in": 3600, "scope": "read:jira-work",
		})
	})
	c := newTestClient(t, f, types.ProviderJira)

	b, err := c.ExchangeCode(context.Background(), types.ProviderJira, "c1")
	if err != nil {
		t.Fatalf("exchange: %v", err)
	}
	if b.AccessToken != "a1" || b.RefreshToken != "r1" || b.Scope != "read:jira-work" {
		t.Fatalf("unexpected bundle: %+v", b)
	}
	if b.ExpiresIn < 3590 || b.ExpiresIn > 3600 {
		t.Fatalf("expires_in = %d", b.ExpiresIn)
	}
	form := f.lastForm.Load().(url.Values)
	if form.Get("client_secret") != "secret" {
		t.Fatalf("client credentials must travel in params")
	}
}

func TestExchangeCodeRejected(t *testing.T) {
	f := newFakeProvider(t, func(w http.ResponseWriter, _ url.Values) {
		jsonReply(w, 400, map[string]string{"error": "invalid_grant", "error_description": "code expired"})
	})
	c := newTestClient(t, f, types.ProviderGitHub)

	_, err := c.ExchangeCode(context.Background(), types.ProviderGitHub, "old")
	if !errors.Is(err, ErrExchangeFailed) {
		t.Fatalf("want ErrExchangeFailed, got %v", err)
	}
	var xe *ExchangeError
	if !errors.As(err, &xe) {
		t.Fatalf("want *ExchangeError, got %T", err)
	}
	if xe.ProviderStatus != 400 || xe.ProviderCode != "invalid_grant" || xe.ProviderMessage != "code expired" {
		t.Fatalf("unexpected: %+v", xe)
	}
	if !xe.Authoritative() {
		t.Fatalf("invalid_grant must be authoritative")
	}
	if f.calls.Load() != 1 {
		t.Fatalf("code must not be retried, calls=%d", f.calls.Load())
	}
}

func TestExchangeErrorIn200(t *testing.T) {
	// GitHub responde 200 con error en el body.
	f := newFakeProvider(t, func(w http.ResponseWriter, _ url.Values) {
		jsonReply(w, 200, map[string]string{"error": "bad_verification_code", "error_description": "The code passed is incorrect or expired."})
	})
	c := newTestClient(t, f, types.ProviderGitHub)

	_, err := c.ExchangeCode(context.Background(), types.ProviderGitHub, "bad")
	var xe *ExchangeError
	if !errors.As(err, &xe) || xe.ProviderCode != "bad_verification_code" {
		t.Fatalf("want bad_verification_code, got %v", err)
	}
}

func TestRefreshRotatesAndKeeps(t *testing.T) {
	var rotate atomic.Bool
	rotate.Store(true)
	f := newFakeProvider(t, func(w http.ResponseWriter, form url.Values) {
		if form.Get("grant_type") != "refresh_token" {
			jsonReply(w, 400, map[string]string{"error": "unsupported_grant_type"})
			return
		}
		resp := map[string]any{"access_token": "a2", "token_type": "Bearer", "expires_in": 3600}
		if rotate.Load() {
			resp["refresh_token"] = "r2"
		}
		jsonReply(w, 200, resp)
	})
	c := newTestClient(t, f, types.ProviderJira)

	b, err := c.ExchangeRefreshToken(context.Background(), types.ProviderJira, "r1")
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if b.AccessToken != "a2" || b.RefreshToken != "r2" {
		t.Fatalf("unexpected bundle: %+v", b)
	}
	if got := f.lastForm.Load().(url.Values).Get("refresh_token"); got != "r1" {
		t.Fatalf("sent refresh_token = %q", got)
	}

	rotate.Store(false)
	b, err = c.ExchangeRefreshToken(context.Background(), types.ProviderJira, "r1")
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if b.RefreshToken != "" {
		t.Fatalf("non-rotating provider must yield empty refresh token, got %q", b.RefreshToken)
	}
}

func TestRefreshProviderUnavailable(t *testing.T) {
	f := newFakeProvider(t, func(w http.ResponseWriter, _ url.Values) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("upstream down"))
	})
	c := newTestClient(t, f, types.ProviderJira)

	_, err := c.ExchangeRefreshToken(context.Background(), types.ProviderJira, "r1")
	if !errors.Is(err, ErrProviderUnavailable) {
		t.Fatalf("5xx must map to ErrProviderUnavailable, got %v", err)
	}
	if IsAuthoritativeRejection(err) {
		t.Fatalf("5xx is not an authoritative rejection")
	}

	// servidor caído: error de red
	f.srv.Close()
	_, err = c.ExchangeRefreshToken(context.Background(), types.ProviderJira, "r1")
	if !errors.Is(err, ErrProviderUnavailable) {
		t.Fatalf("network error must map to ErrProviderUnavailable, got %v", err)
	}
}

func TestFetchProfileGitHubEmailFallback(t *testing.T) {
	f := newFakeProvider(t, nil)
	c := newTestClient(t, f, types.ProviderGitHub)

	p, err := c.FetchProfile(context.Background(), types.ProviderGitHub, "at-1")
	if err != nil {
		t.Fatalf("profile: %v", err)
	}
	if p.AccountID != "42" || p.Login != "octo" || p.DisplayName != "octo" || p.Email != "octo@x.io" {
		t.Fatalf("unexpected profile: %+v", p)
	}

	if _, err := c.FetchProfile(context.Background(), types.ProviderGitHub, "wrong"); err == nil || !strings.Contains(err.Error(), "401") {
		t.Fatalf("want 401 error, got %v", err)
	}
}

func TestFetchProfileJira(t *testing.T) {
	f := newFakeProvider(t, nil)
	c := newTestClient(t, f, types.ProviderJira)

	p, err := c.FetchProfile(context.Background(), types.ProviderJira, "any")
	if err != nil {
		t.Fatalf("profile: %v", err)
	}
	if p.AccountID != "557058:abc" || p.CloudID != "cloud-1" || p.SiteURL != "https://acme.atlassian.net" {
		t.Fatalf("unexpected profile: %+v", p)
	}
}

func TestRefreshRejectedIn200IsAuthoritative(t *testing.T) {
	f := newFakeProvider(t, func(w http.ResponseWriter, _ url.Values) {
		jsonReply(w, 200, map[string]string{"error": "bad_refresh_token", "error_description": "The refresh token passed is incorrect or expired."})
	})
	c := newTestClient(t, f, types.ProviderGitHub)

	_, err := c.ExchangeRefreshToken(context.Background(), types.ProviderGitHub, "ghr_old")
	if errors.Is(err, ErrProviderUnavailable) {
		t.Fatalf("bad_refresh_token must not be unavailable: %v", err)
	}
	if !IsAuthoritativeRejection(err) {
		t.Fatalf("bad_refresh_token must be authoritative, got %v", err)
	}
}

func TestRefreshTransientStatusIsUnavailable(t *testing.T) {
	for _, status := range []int{http.StatusTooManyRequests, http.StatusRequestTimeout, http.StatusTooEarly, http.StatusNotFound} {
		f := newFakeProvider(t, func(w http.ResponseWriter, _ url.Values) {
			w.WriteHeader(status)
		})
		c := newTestClient(t, f, types.ProviderJira)

		_, err := c.ExchangeRefreshToken(context.Background(), types.ProviderJira, "r1")
		if !errors.Is(err, ErrProviderUnavailable) || IsAuthoritativeRejection(err) {
			t.Fatalf("status %d: want ErrProviderUnavailable, got %v", status, err)
		}
	}
}

func TestExchangeErrorAuthoritative(t *testing.T) {
	cases := []struct {
		status int
		code   string
		want   bool
	}{
		{400, "invalid_grant", true},
		{200, "bad_refresh_token", true},
		{200, "bad_verification_code", true},
		{400, "temporarily_unavailable", false},
		{503, "server_error", false},
		{400, "", true},
		{401, "", true},
		{403, "", true},
		{404, "", false},
		{408, "", false},
		{429, "", false},
		{0, "", false},
	}
	for _, tc := range cases {
		xe := &ExchangeError{Provider: types.ProviderJira, ProviderStatus: tc.status, ProviderCode: tc.code}
		if got := xe.Authoritative(); got != tc.want {
			t.Fatalf("status=%d code=%q: got %v want %v", tc.status, tc.code, got, tc.want)
		}
	}
}
