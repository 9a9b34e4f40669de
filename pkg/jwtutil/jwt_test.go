package jwtutil

import (
	"testing"

	"github.com/repeatableai/Container-app-workflow-voice-sub001/pkg/config"
)

func TestGenerateAndValidate(t *testing.T) {
	util := NewJWTUtil(&config.JWTConfig{SigningKey: "k1", ExpirationHours: 1})

	token, err := util.GenerateToken("a@example.com", "user-1")
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	claims, err := util.ValidateToken(token)
	if err != nil {
		t.Fatalf("ValidateToken: %v", err)
	}
	if claims.UserID != "user-1" || claims.Email != "a@example.com" {
		t.Errorf("claims = %+v", claims)
	}
}

func TestValidateRejectsForeignKey(t *testing.T) {
	issuer := NewJWTUtil(&config.JWTConfig{SigningKey: "k1", ExpirationHours: 1})
	verifier := NewJWTUtil(&config.JWTConfig{SigningKey: "k2", ExpirationHours: 1})

	token, err := issuer.GenerateToken("", "user-1")
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	if _, err := verifier.ValidateToken(token); err == nil {
		t.Fatal("expected signature error")
	}
}

func TestValidateRejectsExpired(t *testing.T) {
	util := NewJWTUtil(&config.JWTConfig{SigningKey: "k1", ExpirationHours: -1})
	token, err := util.GenerateToken("", "user-1")
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	if _, err := util.ValidateToken(token); err == nil {
		t.Fatal("expected expiry error")
	}
}

func TestGenerateRequiresUserID(t *testing.T) {
	util := NewJWTUtil(&config.JWTConfig{SigningKey: "k1", ExpirationHours: 1})
	if _, err := util.GenerateToken("a@example.com", ""); err == nil {
		t.Fatal("expected error for empty user id")
	}
}
