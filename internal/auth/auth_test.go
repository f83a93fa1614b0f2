package auth

import (
	"testing"
	"time"
)

func TestHashAndCheckPassword(t *testing.T) {
	hash, err := HashPassword("hunter2")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if hash == "hunter2" {
		t.Fatal("hash must not equal the plaintext")
	}

	if !CheckPassword("hunter2", hash) {
		t.Error("expected matching password to verify")
	}
	if CheckPassword("wrong", hash) {
		t.Error("expected mismatched password to fail")
	}
}

func TestLoadConfigFromEnvHashesPlaintext(t *testing.T) {
	t.Setenv("OPERATOR_PASSWORD", "sekrit")
	t.Setenv("OPERATOR_PASSWORD_HASH", "")

	cfg := LoadConfigFromEnv()
	if cfg.OperatorPasswordHash == "sekrit" {
		t.Fatal("config must not carry the plaintext password")
	}
	if !CheckPassword("sekrit", cfg.OperatorPasswordHash) {
		t.Error("expected hash to verify against the configured password")
	}
}

func TestLoadConfigFromEnvPrefersHash(t *testing.T) {
	precomputed, err := HashPassword("from-hash-env")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	t.Setenv("OPERATOR_PASSWORD_HASH", precomputed)
	t.Setenv("OPERATOR_PASSWORD", "ignored")

	cfg := LoadConfigFromEnv()
	if cfg.OperatorPasswordHash != precomputed {
		t.Error("expected the hash env var to take precedence")
	}
}

func TestTokenRoundTrip(t *testing.T) {
	token, err := GenerateToken("operator", "test-secret", time.Hour)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	operator, err := ValidateToken(token, "test-secret")
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if operator != "operator" {
		t.Errorf("expected operator claim, got %q", operator)
	}

	if _, err := ValidateToken(token, "other-secret"); err == nil {
		t.Error("expected validation to fail with the wrong secret")
	}
}
