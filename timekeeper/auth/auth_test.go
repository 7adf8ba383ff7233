package auth

import (
	"strings"
	"testing"
)

func TestHashAndVerifyPasscode(t *testing.T) {
	hash, err := HashPasscode("correct horse")
	if err != nil {
		t.Fatalf("HashPasscode: %v", err)
	}
	if !strings.HasPrefix(hash, "pbkdf2_sha256$390000$") {
		t.Errorf("unexpected hash format: %s", hash)
	}
	if !VerifyPasscode("correct horse", hash) {
		t.Error("correct passcode did not verify")
	}
	if VerifyPasscode("wrong horse", hash) {
		t.Error("wrong passcode verified")
	}
}

func TestHashPasscodeEmpty(t *testing.T) {
	if _, err := HashPasscode(""); err == nil {
		t.Error("expected error for empty passcode")
	}
}

func TestHashPasscodeSaltsDiffer(t *testing.T) {
	a, err := HashPasscode("same")
	if err != nil {
		t.Fatal(err)
	}
	b, err := HashPasscode("same")
	if err != nil {
		t.Fatal(err)
	}
	if a == b {
		t.Error("two hashes of the same passcode should use different salts")
	}
}

func TestVerifyPasscodeMalformed(t *testing.T) {
	tests := []struct {
		name   string
		stored string
	}{
		{"empty", ""},
		{"wrong algo", "bcrypt$12$aa$bb"},
		{"missing parts", "pbkdf2_sha256$390000$deadbeef"},
		{"bad iterations", "pbkdf2_sha256$abc$deadbeef$deadbeef"},
		{"bad salt hex", "pbkdf2_sha256$390000$zz$deadbeef"},
		{"bad hash hex", "pbkdf2_sha256$390000$deadbeef$zz"},
		{"empty hash", "pbkdf2_sha256$390000$deadbeef$"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if VerifyPasscode("anything", tt.stored) {
				t.Errorf("malformed stored value %q verified", tt.stored)
			}
		})
	}
}
