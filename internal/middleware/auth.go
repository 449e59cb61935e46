// Package middleware provides HTTP middleware for the API server.
package middleware

import (
	"context"
	"net/http"
	"strings"
)

// ContextKey is a type for context keys.
type ContextKey string

// UserHandleKey is the context key for the authenticated user handle.
const UserHandleKey ContextKey = "user_handle"

// IdentityResolver validates an opaque bearer credential into a user handle.
type IdentityResolver interface {
	ResolveIdentity(credential string) (string, error)
}

// Auth creates bearer-token authentication middleware. The resolved handle
// is placed on the request context.
func Auth(resolver IdentityResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				http.Error(w, `{"error":"missing authorization header"}`, http.StatusUnauthorized)
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
				http.Error(w, `{"error":"invalid authorization header format"}`, http.StatusUnauthorized)
				return
			}

			handle, err := resolver.ResolveIdentity(parts[1])
			if err != nil {
				http.Error(w, `{"error":"invalid token"}`, http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), UserHandleKey, handle)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetUserHandle gets the authenticated user handle from the context.
func GetUserHandle(ctx context.Context) string {
	if v := ctx.Value(UserHandleKey); v != nil {
		return v.(string)
	}
	return ""
}
