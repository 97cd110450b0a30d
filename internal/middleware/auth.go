package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

type contextKey string

const ctxCallerKey contextKey = "caller"

// TokenValidator turns a bearer token into the caller's user ID.
type TokenValidator interface {
	ValidateToken(ctx context.Context, token string) (uuid.UUID, error)
}

// BearerAuth authenticates requests with a JWT in the Authorization header and
// puts the caller's user ID into the request context.
func BearerAuth(v TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := extractBearer(r)
			if raw == "" {
				raw = r.URL.Query().Get("access_token")
			}
			if raw == "" {
				http.Error(w, `{"error":"missing or malformed Authorization header"}`, http.StatusUnauthorized)
				return
			}
			userID, err := v.ValidateToken(r.Context(), raw)
			if err != nil {
				http.Error(w, `{"error":"invalid token"}`, http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithCaller(r.Context(), userID)))
		})
	}
}

// CallerID returns the authenticated user ID.
func CallerID(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(ctxCallerKey).(uuid.UUID)
	return id, ok && id != uuid.Nil
}

// CallerFromRequest is CallerID for handlers that only see the request.
func CallerFromRequest(r *http.Request) (uuid.UUID, bool) {
	return CallerID(r.Context())
}

// WithCaller returns a context carrying the given user ID.
func WithCaller(ctx context.Context, userID uuid.UUID) context.Context {
	return context.WithValue(ctx, ctxCallerKey, userID)
}

func extractBearer(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}
