package tokens

import "testing"

func TestGenerateOpaqueToken_Unique(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 64; i++ {
		tok, err := GenerateOpaqueToken(32)
		if err != nil {
			t.Fatalf("GenerateOpaqueToken err: %v", err)
		}
		if len(tok) != 43 {
			t.Fatalf("unexpected length %d for 32 bytes", len(tok))
		}
		if seen[tok] {
			t.Fatalf("duplicate token %q", tok)
		}
		seen[tok] = true
	}
}

func TestSHA256Base64URL_Stable(t *testing.T) {
	if SHA256Base64URL("abc") != SHA256Base64URL("abc") {
		t.Fatalf("hash not deterministic")
	}
	if SHA256Base64URL("abc") == SHA256Base64URL("abd") {
		t.Fatalf("hash collision on different input")
	}
	if !Equal("x", "x") || Equal("x", "y") {
		t.Fatalf("Equal mismatch")
	}
}
