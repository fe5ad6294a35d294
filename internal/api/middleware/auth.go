package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/cloo-solutions/datalens/internal/api"
)

type contextKey string

const TenantIDKey contextKey = "tenant_id"

// AuthValidator resolves an API key to the tenant it belongs to.
type AuthValidator interface {
	ValidateAPIKey(ctx context.Context, key string) (string, error)
}

// APIKeyAuth authenticates requests by API key, accepting either an
// X-API-Key header or a Bearer token, and puts the tenant on the context.
func APIKeyAuth(validator AuthValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-API-Key")
			if key == "" {
				authHeader := r.Header.Get("Authorization")
				if authHeader == "" {
					api.Error(w, http.StatusUnauthorized, "missing api key")
					return
				}
				if !strings.HasPrefix(authHeader, "Bearer ") {
					api.Error(w, http.StatusUnauthorized, "invalid authorization format")
					return
				}
				key = strings.TrimPrefix(authHeader, "Bearer ")
			}

			tenantID, err := validator.ValidateAPIKey(r.Context(), key)
			if err != nil {
				api.Error(w, http.StatusUnauthorized, "invalid api key")
				return
			}

			ctx := context.WithValue(r.Context(), TenantIDKey, tenantID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetTenantID returns the authenticated tenant from context.
func GetTenantID(ctx context.Context) string {
	tenantID, _ := ctx.Value(TenantIDKey).(string)
	return tenantID
}
