package validation

import (
	"strings"
	"testing"
)

func TestScope(t *testing.T) {
	for _, s := range []string{"repo", "user:email", "read:jira-work", "offline_access", "read:issue-details:jira", "a", strings.Repeat("a", 64)} {
		if !Scope(s) {
			t.Fatalf("expected valid: %q", s)
		}
	}
	for _, s := range []string{"", ":lead", "trail:", "bad space", "UPPER", "semi;colon", strings.Repeat("a", 65)} {
		if Scope(s) {
			t.Fatalf("expected invalid: %q", s)
		}
	}
}

func TestScopes(t *testing.T) {
	if err := Scopes([]string{"offline_access", "read:jira-user"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	err := Scopes([]string{"repo", "user email"})
	if err == nil || !strings.Contains(err.Error(), "user email") {
		t.Fatalf("want error naming the bad scope, got %v", err)
	}
}

func TestProjectKey(t *testing.T) {
	for _, s := range []string{"DEV", "OPS_2", "A"} {
		if !ProjectKey(s) {
			t.Fatalf("expected valid: %q", s)
		}
	}
	// todo lo que permitiría inyectar JQL queda afuera
	for _, s := range []string{"", "dev", "2DEV", "DEV OR 1=1", "DEV\"", strings.Repeat("A", 21)} {
		if ProjectKey(s) {
			t.Fatalf("expected invalid: %q", s)
		}
	}
}

func TestGitHubName(t *testing.T) {
	for _, s := range []string{"octo", "my-repo.js", "a_b"} {
		if !GitHubName(s) {
			t.Fatalf("expected valid: %q", s)
		}
	}
	for _, s := range []string{"", ".", "..", "a/b", "a b", "a?b"} {
		if GitHubName(s) {
			t.Fatalf("expected invalid: %q", s)
		}
	}
}
