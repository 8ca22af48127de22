package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bera-tech-ai/gramX/internal/domain"
)

func TestVerifyRoundTrip(t *testing.T) {
	v := NewJWTVerifier("test-secret", "gramx")

	token, err := v.Generate("alice", "Alice", []string{"user"}, time.Hour)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	identity, err := v.Verify(context.Background(), token)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if identity.UserID != "alice" || identity.DisplayName != "Alice" {
		t.Errorf("identity = %+v", identity)
	}
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	signer := NewJWTVerifier("secret-a", "gramx")
	verifier := NewJWTVerifier("secret-b", "gramx")

	token, _ := signer.Generate("alice", "Alice", nil, time.Hour)
	if _, err := verifier.Verify(context.Background(), token); !errors.Is(err, domain.ErrAuth) {
		t.Errorf("expected ErrAuth, got %v", err)
	}
}

func TestVerifyRejectsExpired(t *testing.T) {
	v := NewJWTVerifier("test-secret", "gramx")

	token, _ := v.Generate("alice", "Alice", nil, -time.Minute)
	if _, err := v.Verify(context.Background(), token); !errors.Is(err, domain.ErrAuth) {
		t.Errorf("expected ErrAuth for expired token, got %v", err)
	}
}

func TestVerifyRejectsWrongIssuer(t *testing.T) {
	signer := NewJWTVerifier("test-secret", "someone-else")
	verifier := NewJWTVerifier("test-secret", "gramx")

	token, _ := signer.Generate("alice", "Alice", nil, time.Hour)
	if _, err := verifier.Verify(context.Background(), token); !errors.Is(err, domain.ErrAuth) {
		t.Errorf("expected ErrAuth for wrong issuer, got %v", err)
	}
}

func TestVerifyRejectsGarbage(t *testing.T) {
	v := NewJWTVerifier("test-secret", "gramx")
	if _, err := v.Verify(context.Background(), "not-a-token"); !errors.Is(err, domain.ErrAuth) {
		t.Errorf("expected ErrAuth, got %v", err)
	}
}
