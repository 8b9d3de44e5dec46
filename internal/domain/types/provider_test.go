package types

import (
	"errors"
	"testing"
)

func TestParseProviderKind(t *testing.T) {
	for _, k := range ProviderKinds() {
		got, err := ParseProviderKind(" " + string(k) + " ")
		if err != nil || got != k {
			t.Fatalf("%s: got %q, %v", k, got, err)
		}
	}
	if got, err := ParseProviderKind("GitHub"); err != nil || got != ProviderGitHub {
		t.Fatalf("GitHub: got %q, %v", got, err)
	}
	for _, s := range []string{"", "gitlab", "jira2"} {
		if _, err := ParseProviderKind(s); !errors.Is(err, ErrUnknownProvider) {
			t.Fatalf("%q: want ErrUnknownProvider, got %v", s, err)
		}
	}
	if ProviderKind("gitlab").Valid() {
		t.Fatalf("gitlab must not be valid")
	}
}
