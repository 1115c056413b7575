package auth

import (
	"errors"
	"testing"
	"time"
)

func TestVerifyToken_RoundTrip(t *testing.T) {
	v := NewVerifier("test-secret")

	token, err := v.IssueToken(Principal{UserID: "user-1", Role: RoleAuthority}, time.Hour)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}

	p, err := v.VerifyToken(token)
	if err != nil {
		t.Fatalf("verify token: %v", err)
	}
	if p.UserID != "user-1" || p.Role != RoleAuthority {
		t.Fatalf("unexpected principal: %+v", p)
	}
}

func TestVerifyToken_WrongSecret(t *testing.T) {
	issuer := NewVerifier("secret-a")
	verifier := NewVerifier("secret-b")

	token, err := issuer.IssueToken(Principal{UserID: "user-1", Role: RoleReporter}, time.Hour)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}

	if _, err := verifier.VerifyToken(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestVerifyToken_Expired(t *testing.T) {
	v := NewVerifier("test-secret")

	token, err := v.IssueToken(Principal{UserID: "user-1", Role: RoleReporter}, -time.Minute)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}

	if _, err := v.VerifyToken(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for expired token, got %v", err)
	}
}

func TestVerifyToken_UnknownRole(t *testing.T) {
	v := NewVerifier("test-secret")

	token, err := v.IssueToken(Principal{UserID: "user-1", Role: Role("admin")}, time.Hour)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}

	if _, err := v.VerifyToken(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for unknown role, got %v", err)
	}
}

func TestVerifyToken_Garbage(t *testing.T) {
	v := NewVerifier("test-secret")
	if _, err := v.VerifyToken("not-a-token"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}
