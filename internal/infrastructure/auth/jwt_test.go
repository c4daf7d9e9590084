package auth

import (
	"errors"
	"testing"
	"time"
)

func TestGenerateAndVerify(t *testing.T) {
	m := NewJWTManager("test-secret", time.Hour)

	token, err := m.Generate("ops-1", RoleAdmin)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	claims, err := m.Verify(token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.Subject != "ops-1" {
		t.Errorf("expected subject ops-1, got %s", claims.Subject)
	}
	if claims.Role != RoleAdmin {
		t.Errorf("expected role admin, got %s", claims.Role)
	}
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	token, err := NewJWTManager("secret-a", time.Hour).Generate("ops-1", RoleAdmin)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	_, err = NewJWTManager("secret-b", time.Hour).Verify(token)
	if !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	m := NewJWTManager("test-secret", -time.Minute)

	token, err := m.Generate("ops-1", RoleAdmin)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	_, err = m.Verify(token)
	if !errors.Is(err, ErrExpiredToken) {
		t.Fatalf("expected ErrExpiredToken, got %v", err)
	}
}

func TestVerifyRejectsGarbage(t *testing.T) {
	m := NewJWTManager("test-secret", time.Hour)

	if _, err := m.Verify("not.a.token"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}
