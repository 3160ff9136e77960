package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/windfall/engapp_service/pkg/response"
)

type contextKey string

const UserIDKey contextKey = "user_id"

// TokenValidator resolves a bearer token to a user ID.
type TokenValidator interface {
	ValidateToken(token string) (string, error)
}

// Auth returns a middleware that validates JWT tokens from the Authorization header.
func Auth(validator TokenValidator) func(http.Handler) http.Handler {
	return authenticate(validator, false)
}

// AuthWithQueryToken also accepts the token in the "token" query parameter,
// for clients like browsers opening a websocket that cannot set headers.
func AuthWithQueryToken(validator TokenValidator) func(http.Handler) http.Handler {
	return authenticate(validator, true)
}

func authenticate(validator TokenValidator, allowQuery bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := ""
			authHeader := r.Header.Get("Authorization")
			switch {
			case authHeader != "":
				parts := strings.SplitN(authHeader, " ", 2)
				if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
					response.Unauthorized(w, "invalid authorization format")
					return
				}
				token = parts[1]
			case allowQuery:
				token = r.URL.Query().Get("token")
			}
			if token == "" {
				response.Unauthorized(w, "missing authorization header")
				return
			}

			userID, err := validator.ValidateToken(token)
			if err != nil {
				response.Unauthorized(w, "invalid or expired token")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), userID)))
		})
	}
}

// WithUserID stores the authenticated user ID in ctx.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, UserIDKey, userID)
}

// GetUserID extracts the user ID from the request context.
func GetUserID(ctx context.Context) string {
	if id, ok := ctx.Value(UserIDKey).(string); ok {
		return id
	}
	return ""
}
