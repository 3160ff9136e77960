package service

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestAuthService_RoundTrip(t *testing.T) {
	auth := NewAuthService("secret")

	token, err := auth.GenerateToken("user-1", time.Hour)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	got, err := auth.ValidateToken(token)
	if err != nil {
		t.Fatalf("ValidateToken: %v", err)
	}
	if got != "user-1" {
		t.Errorf("user = %q, want user-1", got)
	}
}

func TestAuthService_Rejects(t *testing.T) {
	auth := NewAuthService("secret")

	expired, _ := auth.GenerateToken("user-1", -time.Minute)
	otherKey, _ := NewAuthService("other").GenerateToken("user-1", time.Hour)
	noSubject, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte("secret"))

	tests := []struct {
		name  string
		token string
	}{
		{"garbage", "not-a-token"},
		{"expired", expired},
		{"wrong key", otherKey},
		{"missing subject", noSubject},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := auth.ValidateToken(tt.token); err == nil {
				t.Error("expected error")
			}
		})
	}
}
