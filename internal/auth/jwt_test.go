package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestSessionTokenRoundTrip(t *testing.T) {
	issuer, err := NewTokenIssuer("test-secret", time.Hour)
	if err != nil {
		t.Fatalf("NewTokenIssuer() error = %v", err)
	}

	token, expiresAt, err := issuer.GenerateSessionToken("session-1")
	if err != nil {
		t.Fatalf("GenerateSessionToken() error = %v", err)
	}
	if time.Until(expiresAt) <= 0 {
		t.Errorf("expiresAt %v is not in the future", expiresAt)
	}

	claims, err := issuer.Authorize(token, "session-1")
	if err != nil {
		t.Fatalf("Authorize() error = %v", err)
	}
	if claims.SessionID != "session-1" {
		t.Errorf("SessionID = %q, want session-1", claims.SessionID)
	}
	if claims.Role != RoleSession {
		t.Errorf("Role = %q, want %q", claims.Role, RoleSession)
	}
}

func TestAuthorizeOtherSession(t *testing.T) {
	issuer, _ := NewTokenIssuer("test-secret", time.Hour)
	token, _, _ := issuer.GenerateSessionToken("session-1")

	if _, err := issuer.Authorize(token, "session-2"); !errors.Is(err, ErrWrongSession) {
		t.Errorf("Authorize() error = %v, want ErrWrongSession", err)
	}
}

func TestValidateTokenRejects(t *testing.T) {
	issuer, _ := NewTokenIssuer("test-secret", time.Hour)
	other, _ := NewTokenIssuer("other-secret", time.Hour)
	foreign, _, _ := other.GenerateSessionToken("session-1")

	expired, _ := NewTokenIssuer("test-secret", time.Minute)
	expired.now = func() time.Time { return time.Now().Add(-time.Hour) }
	stale, _, _ := expired.GenerateSessionToken("session-1")

	none := jwt.NewWithClaims(jwt.SigningMethodNone, &SessionClaims{SessionID: "session-1", Role: RoleSession})
	unsigned, _ := none.SignedString(jwt.UnsafeAllowNoneSignatureType)

	tests := map[string]string{
		"garbage":        "not-a-token",
		"foreign secret": foreign,
		"expired":        stale,
		"unsigned":       unsigned,
	}
	for name, token := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := issuer.ValidateToken(token); !errors.Is(err, ErrInvalidToken) {
				t.Errorf("ValidateToken() error = %v, want ErrInvalidToken", err)
			}
		})
	}
}

func TestNewTokenIssuerRequiresSecret(t *testing.T) {
	if _, err := NewTokenIssuer("", 0); err == nil {
		t.Error("NewTokenIssuer(\"\") should fail")
	}
	issuer, err := NewTokenIssuer("s", 0)
	if err != nil {
		t.Fatal(err)
	}
	if issuer.TTL() != defaultTokenTTL {
		t.Errorf("TTL() = %v, want %v", issuer.TTL(), defaultTokenTTL)
	}
}
