package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestNewAuthenticator(t *testing.T) {
	if _, err := NewAuthenticator("", "shared", time.Hour); err == nil {
		t.Error("Expected error when JWT secret is empty")
	}
	if _, err := NewAuthenticator("jwt", "", time.Hour); err == nil {
		t.Error("Expected error when shared secret is empty")
	}

	a, err := NewAuthenticator("jwt", "shared", 0)
	if err != nil {
		t.Fatalf("NewAuthenticator failed: %v", err)
	}
	if a.ttl != defaultTokenTTL {
		t.Errorf("Expected default ttl %v, got %v", defaultTokenTTL, a.ttl)
	}
}

func TestLoginAndValidate(t *testing.T) {
	a, err := NewAuthenticator("jwt-secret", "shared-secret", time.Hour)
	if err != nil {
		t.Fatalf("NewAuthenticator failed: %v", err)
	}

	token, expiresAt, err := a.Login("bridge-1", "shared-secret")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if time.Until(expiresAt) > time.Hour || time.Until(expiresAt) < 59*time.Minute {
		t.Errorf("Unexpected expiry %v", expiresAt)
	}

	claims, err := a.ValidateToken(token)
	if err != nil {
		t.Fatalf("ValidateToken failed: %v", err)
	}
	if claims.BridgeID != "bridge-1" {
		t.Errorf("Expected bridge ID bridge-1, got %s", claims.BridgeID)
	}
	if claims.Role != RoleBridge {
		t.Errorf("Expected role %s, got %s", RoleBridge, claims.Role)
	}
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	a, _ := NewAuthenticator("jwt-secret", "shared-secret", time.Hour)

	if _, _, err := a.Login("bridge-1", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("Expected ErrInvalidCredentials, got %v", err)
	}
	if _, _, err := a.Login("", "shared-secret"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("Expected ErrInvalidCredentials for empty bridge id, got %v", err)
	}
}

func TestValidateTokenRejects(t *testing.T) {
	a, _ := NewAuthenticator("jwt-secret", "shared-secret", time.Hour)
	other, _ := NewAuthenticator("other-secret", "shared-secret", time.Hour)

	foreign, _, err := other.GenerateBridgeToken("bridge-1")
	if err != nil {
		t.Fatalf("GenerateBridgeToken failed: %v", err)
	}
	if _, err := a.ValidateToken(foreign); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("Expected ErrInvalidToken for foreign signature, got %v", err)
	}

	a.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	expired, _, err := a.GenerateBridgeToken("bridge-1")
	if err != nil {
		t.Fatalf("GenerateBridgeToken failed: %v", err)
	}
	a.now = time.Now
	if _, err := a.ValidateToken(expired); !errors.Is(err, jwt.ErrTokenExpired) {
		t.Errorf("Expected expired token error, got %v", err)
	}

	none := jwt.NewWithClaims(jwt.SigningMethodNone, &JWTClaims{BridgeID: "bridge-1", Role: RoleBridge})
	unsigned, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("Failed to build unsigned token: %v", err)
	}
	if _, err := a.ValidateToken(unsigned); err == nil {
		t.Error("Expected unsigned token to be rejected")
	}

	if _, err := a.ValidateToken("not-a-token"); err == nil {
		t.Error("Expected malformed token to be rejected")
	}
}
