package tokens

import "testing"

func TestGenerateOpaqueToken_LengthAndUniqueness(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		tk, err := GenerateOpaqueToken(32)
		if err != nil {
			t.Fatalf("GenerateOpaqueToken err: %v", err)
		}
		// 32 bytes => 43 chars base64url sin padding
		if len(tk) != 43 {
			t.Fatalf("token length = %d, want 43", len(tk))
		}
		if seen[tk] {
			t.Fatal("duplicate token generated")
		}
		seen[tk] = true
	}
}

func TestSHA256Base64URL_Stable(t *testing.T) {
	a := SHA256Base64URL("session-1")
	b := SHA256Base64URL("session-1")
	if a != b {
		t.Fatal("hash should be deterministic")
	}
	if a == SHA256Base64URL("session-2") {
		t.Fatal("different inputs should not collide")
	}
}
