package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestIssueAndValidate(t *testing.T) {
	issuer := NewTokenIssuer("test-secret", time.Hour)

	token, expiresAt, err := issuer.Issue("session-1")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if time.Until(expiresAt) <= 59*time.Minute {
		t.Errorf("Expected expiry about an hour away, got %s", expiresAt)
	}

	claims, err := issuer.Validate(token)
	if err != nil {
		t.Fatalf("Expected valid token, got %v", err)
	}
	if claims.SessionID != "session-1" {
		t.Errorf("Expected session-1, got %s", claims.SessionID)
	}
	if claims.ID == "" {
		t.Error("Expected a token id")
	}
}

func TestValidateRejects(t *testing.T) {
	issuer := NewTokenIssuer("test-secret", time.Hour)
	valid, _, err := issuer.Issue("session-1")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	expiredIssuer := NewTokenIssuer("test-secret", time.Hour)
	expiredIssuer.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	expired, _, _ := expiredIssuer.Issue("session-1")

	otherSecret, _, _ := NewTokenIssuer("another-secret", time.Hour).Issue("session-1")

	none := jwt.NewWithClaims(jwt.SigningMethodNone, &SessionClaims{SessionID: "session-1"})
	unsigned, _ := none.SignedString(jwt.UnsafeAllowNoneSignatureType)

	tests := []struct {
		name  string
		token string
	}{
		{"garbage", "not-a-token"},
		{"expired", expired},
		{"wrong secret", otherSecret},
		{"unsigned", unsigned},
		{"tampered", valid + "x"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := issuer.Validate(tt.token)
			if !errors.Is(err, ErrInvalidToken) {
				t.Errorf("Expected ErrInvalidToken, got %v", err)
			}
		})
	}
}
