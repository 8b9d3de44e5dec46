package providerapi

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newAPIServer(t *testing.T, h http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return srv
}

func TestStatusErrorMapping(t *testing.T) {
	cases := []struct {
		status int
		want   error
	}{
		{401, ErrUnauthorized},
		{403, ErrForbidden},
		{404, ErrNotFound},
		{429, ErrUnavailable},
		{503, ErrUnavailable},
		{422, ErrInvalidResponse},
	}
	for _, tc := range cases {
		srv := newAPIServer(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tc.status)
			_, _ = w.Write([]byte(`{"errorMessages":["nope"]}`))
		})
		_, err := NewJira(srv.URL, nil).Projects(context.Background(), "tok", "c1")
		if !errors.Is(err, tc.want) {
			t.Fatalf("status %d: want %v, got %v", tc.status, tc.want, err)
		}
		var se *StatusError
		if !errors.As(err, &se) || se.Message != "nope" {
			t.Fatalf("status %d: message not extracted: %v", tc.status, err)
		}
	}
}

func TestNetworkErrorIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()
	_, err := NewGitHub(srv.URL, nil).Repos(context.Background(), "tok", 1)
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("want ErrUnavailable, got %v", err)
	}
}

func TestGitHubIssues(t *testing.T) {
	srv := newAPIServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/repos/octo/hello/issues" || r.URL.Query().Get("state") != "open" {
			t.Errorf("unexpected request %s", r.URL)
		}
		if r.Header.Get("Authorization") != "Bearer tok" || r.Header.Get("X-GitHub-Api-Version") == "" {
			t.Errorf("missing headers")
		}
		_, _ = w.Write([]byte(`[
			{"id":1,"number":7,"title":"bug","state":"open","user":{"login":"a"},"labels":[{"name":"p1"}],"secret_field":"x"},
			{"id":2,"number":8,"title":"pr","state":"open","pull_request":{"url":"u"}}
		]`))
	})
	issues, err := NewGitHub(srv.URL, nil).Issues(context.Background(), "tok", "octo", "hello", "")
	if err != nil {
		t.Fatalf("issues: %v", err)
	}
	if len(issues) != 2 || issues[0].Number != 7 || issues[0].Labels[0].Name != "p1" {
		t.Fatalf("unexpected: %+v", issues)
	}
	if issues[0].PullRequest != nil || issues[1].PullRequest == nil {
		t.Fatalf("pull_request marker not decoded")
	}
}

func TestGitHubUserValidation(t *testing.T) {
	srv := newAPIServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"login":""}`))
	})
	if _, err := NewGitHub(srv.URL, nil).User(context.Background(), "tok"); !errors.Is(err, ErrInvalidResponse) {
		t.Fatalf("want ErrInvalidResponse, got %v", err)
	}
}

func TestJiraSearch(t *testing.T) {
	srv := newAPIServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/ex/jira/cloud-1/rest/api/3/search/jql" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.URL.Query().Get("jql") != "assignee=currentUser()" || r.URL.Query().Get("maxResults") != "50" {
			t.Errorf("unexpected query %s", r.URL.RawQuery)
		}
		_, _ = w.Write([]byte(`{"issues":[{"id":"10","key":"DP-1","fields":{"summary":"s","status":{"name":"To Do"},"issuetype":{"name":"Story"}}}],"isLast":true}`))
	})
	res, err := NewJira(srv.URL, nil).Search(context.Background(), "tok", "cloud-1", "assignee=currentUser()", 0)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(res.Issues) != 1 || res.Issues[0].Key != "DP-1" || res.Issues[0].Fields.IssueType.Name != "Story" {
		t.Fatalf("unexpected: %+v", res)
	}
}
