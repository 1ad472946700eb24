package auth

import (
	"testing"
	"time"
)

func TestAccessTokenRoundTrip(t *testing.T) {
	m := NewManager("test-secret-key", 15*time.Minute)

	raw, err := m.GenerateAccessToken("user-1", "sam@pulsehq.com", "analyst")

	if err != nil {
		t.Fatalf("GenerateAccessToken failed: %v", err)
	}

	claims, err := m.VerifyAccessToken(raw)

	if err != nil {
		t.Fatalf("VerifyAccessToken failed: %v", err)
	}

	if claims.UserID != "user-1" || claims.Email != "sam@pulsehq.com" || claims.Role != "analyst" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestVerifyAccessTokenRejectsWrongSecret(t *testing.T) {
	m1 := NewManager("secret-one", 15*time.Minute)
	m2 := NewManager("secret-two", 15*time.Minute)

	raw, err := m1.GenerateAccessToken("user-1", "sam@pulsehq.com", "analyst")

	if err != nil {
		t.Fatalf("GenerateAccessToken failed: %v", err)
	}

	if _, err := m2.VerifyAccessToken(raw); err == nil {
		t.Fatalf("expected verification to fail with a different secret")
	}
}

func TestVerifyAccessTokenRejectsExpired(t *testing.T) {
	m := NewManager("test-secret-key", -1*time.Minute)

	raw, err := m.GenerateAccessToken("user-1", "sam@pulsehq.com", "analyst")

	if err != nil {
		t.Fatalf("GenerateAccessToken failed: %v", err)
	}

	if _, err := m.VerifyAccessToken(raw); err == nil {
		t.Fatalf("expected expired token to be rejected")
	}
}
