package jwt

import (
	"strings"
	"testing"
	"time"
)

func TestGenerateAndParse(t *testing.T) {
	token, err := GenerateToken("abc123", "secret", time.Hour)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	claims, err := Parse(token, "secret")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.SessionID != "abc123" {
		t.Fatalf("unexpected session id %q", claims.SessionID)
	}
	if claims.Issuer != issuer {
		t.Fatalf("unexpected issuer %q", claims.Issuer)
	}
}

func TestParseRejectsWrongSecret(t *testing.T) {
	token, err := GenerateToken("abc123", "secret", time.Hour)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if _, err := Parse(token, "other"); err == nil {
		t.Fatalf("expected signature error")
	}
}

func TestParseRejectsExpired(t *testing.T) {
	token, err := GenerateToken("abc123", "secret", -time.Minute)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if _, err := Parse(token, "secret"); err == nil {
		t.Fatalf("expected expiry error")
	}
}

func TestParseRejectsTampered(t *testing.T) {
	token, err := GenerateToken("abc123", "secret", time.Hour)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	parts := strings.Split(token, ".")
	suffix := "AA"
	if strings.HasSuffix(parts[1], suffix) {
		suffix = "BB"
	}
	parts[1] = parts[1][:len(parts[1])-2] + suffix
	if _, err := Parse(strings.Join(parts, "."), "secret"); err == nil {
		t.Fatalf("expected tampered token to fail")
	}
}

func TestGenerateRejectsEmptySession(t *testing.T) {
	if _, err := GenerateToken("", "secret", time.Hour); err != ErrEmptySession {
		t.Fatalf("expected ErrEmptySession, got %v", err)
	}
}
