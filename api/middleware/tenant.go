package middleware

import (
	"context"
	"net/http"

	"github.com/tecnogrow/paybridge/internal/tenants"
	"github.com/tecnogrow/paybridge/pkg/logger"
)

type tenantCtxKey struct{}

// ResolveTenant attaches the tenant matching the request's Origin (falling
// back to Referer, then the default tenant) to the context. Controllers may
// still override it with an explicit tenant id from the body.
func ResolveTenant(registry *tenants.Registry, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin == "" {
				origin = r.Header.Get("Referer")
			}

			ctx := r.Context()
			tenant := registry.ResolveOrDefault(ctx, origin)
			ctx = context.WithValue(ctx, tenantCtxKey{}, tenant)
			if logg != nil {
				ctx = logg.WithTenantID(ctx, tenant.ID)
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// TenantFromContext returns the tenant resolved by ResolveTenant.
func TenantFromContext(ctx context.Context) (*tenants.Tenant, bool) {
	tenant, ok := ctx.Value(tenantCtxKey{}).(*tenants.Tenant)
	return tenant, ok
}
