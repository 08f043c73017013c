// internal/auth/middleware.go
package auth

import (
	"context"
	"net/http"
	"strings"
)

type contextKey string

const OperatorIDKey contextKey = "operator_id"

func JWTAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		if !strings.HasPrefix(auth, "Bearer ") {
			http.Error(w, "missing or invalid Authorization header", http.StatusUnauthorized)
			return
		}

		tokenStr := strings.TrimPrefix(auth, "Bearer ")
		claims, err := ValidateToken(tokenStr)
		if err != nil {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		// Inject operator_id into context
		ctx := context.WithValue(r.Context(), OperatorIDKey, claims.OperatorID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetOperatorID extracts operator_id from context
func GetOperatorID(r *http.Request) (int64, bool) {
	id, ok := r.Context().Value(OperatorIDKey).(int64)
	return id, ok
}
