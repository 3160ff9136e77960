package middleware

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/windfall/engapp_service/internal/logger"
)

type staticValidator map[string]string

func (v staticValidator) ValidateToken(token string) (string, error) {
	if id, ok := v[token]; ok {
		return id, nil
	}
	return "", fmt.Errorf("invalid token")
}

func TestAuth(t *testing.T) {
	validator := staticValidator{"good": "user-1"}

	tests := []struct {
		name       string
		queryAuth  bool
		header     string
		target     string
		wantStatus int
		wantUser   string
	}{
		{"bearer", false, "Bearer good", "/", http.StatusOK, "user-1"},
		{"lowercase scheme", false, "bearer good", "/", http.StatusOK, "user-1"},
		{"missing", false, "", "/", http.StatusUnauthorized, ""},
		{"wrong scheme", false, "Basic good", "/", http.StatusUnauthorized, ""},
		{"bad token", false, "Bearer bad", "/", http.StatusUnauthorized, ""},
		{"query ignored", false, "", "/?token=good", http.StatusUnauthorized, ""},
		{"query accepted", true, "", "/?token=good", http.StatusOK, "user-1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotUser string
			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotUser = GetUserID(r.Context())
			})

			mw := Auth(validator)
			if tt.queryAuth {
				mw = AuthWithQueryToken(validator)
			}

			req := httptest.NewRequest(http.MethodGet, tt.target, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			mw(next).ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if gotUser != tt.wantUser {
				t.Errorf("user = %q, want %q", gotUser, tt.wantUser)
			}
		})
	}
}

func TestRecovery(t *testing.T) {
	h := Recovery(logger.NewNop())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}
