package identity

import (
	"errors"
	"strings"
	"testing"
)

func TestHashPassword(t *testing.T) {
	password := "agent-password-123"

	hash, err := HashPassword(password)
	if err != nil {
		t.Fatalf("HashPassword() error = %v", err)
	}

	// Check hash format (bcrypt hashes start with $2a$ or $2b$)
	if !strings.HasPrefix(hash, "$2a$") && !strings.HasPrefix(hash, "$2b$") {
		t.Errorf("HashPassword() hash = %q, want bcrypt format", hash)
	}

	if !VerifyPassword(password, hash) {
		t.Error("VerifyPassword() returned false for correct password")
	}
}

func TestHashPassword_DifferentHashes(t *testing.T) {
	password := "same-password"

	hash1, _ := HashPassword(password)
	hash2, _ := HashPassword(password)

	// Bcrypt generates a fresh salt each time
	if hash1 == hash2 {
		t.Error("HashPassword() generated same hash twice, expected different due to salt")
	}

	if !VerifyPassword(password, hash1) {
		t.Error("VerifyPassword() failed for hash1")
	}
	if !VerifyPassword(password, hash2) {
		t.Error("VerifyPassword() failed for hash2")
	}
}

func TestVerifyPassword(t *testing.T) {
	password := "my-secure-password"
	hash, _ := HashPassword(password)

	if !VerifyPassword(password, hash) {
		t.Error("VerifyPassword() should return true for matching password")
	}

	if VerifyPassword("wrong-password", hash) {
		t.Error("VerifyPassword() should return false for wrong password")
	}

	if VerifyPassword("", hash) {
		t.Error("VerifyPassword() should return false for empty password")
	}

	if VerifyPassword(password, "not-a-valid-hash") {
		t.Error("VerifyPassword() should return false for malformed hash")
	}
}

func TestValidatePassword(t *testing.T) {
	tests := []struct {
		name     string
		password string
		wantErr  error
	}{
		{
			name:     "valid password",
			password: "securepassword123",
			wantErr:  nil,
		},
		{
			name:     "minimum length",
			password: "12345678",
			wantErr:  nil,
		},
		{
			name:     "too short",
			password: "short",
			wantErr:  ErrPasswordTooShort,
		},
		{
			name:     "empty",
			password: "",
			wantErr:  ErrPasswordTooShort,
		},
		{
			name:     "too long",
			password: strings.Repeat("x", 73),
			wantErr:  ErrPasswordTooLong,
		},
		{
			name:     "maximum length",
			password: strings.Repeat("x", 72),
			wantErr:  nil,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidatePassword(tc.password)
			if !errors.Is(err, tc.wantErr) {
				t.Errorf("ValidatePassword(%q) = %v, want %v", tc.password, err, tc.wantErr)
			}
		})
	}
}

func TestNeedsRehash(t *testing.T) {
	hash, err := HashPassword("a-fine-password")
	if err != nil {
		t.Fatalf("HashPassword() error = %v", err)
	}

	if NeedsRehash(hash) {
		t.Error("NeedsRehash() = true for hash at default cost")
	}

	weak, err := HashPasswordWithCost("a-fine-password", 4)
	if err != nil {
		t.Fatalf("HashPasswordWithCost() error = %v", err)
	}

	if !NeedsRehash(weak) {
		t.Error("NeedsRehash() = false for hash below default cost")
	}

	if !NeedsRehash("garbage") {
		t.Error("NeedsRehash() = false for malformed hash")
	}
}
