package controllers

import (
	"net/http"

	"github.com/tecnogrow/paybridge/api/responses"
	"github.com/tecnogrow/paybridge/internal/tenants"
	"github.com/tecnogrow/paybridge/pkg/config"
	pkgerrors "github.com/tecnogrow/paybridge/pkg/errors"
	"github.com/tecnogrow/paybridge/pkg/logger"
	"github.com/tecnogrow/paybridge/pkg/redis"
)

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-PayBridge-Env", cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

// HealthReady reports readiness: the tenant registry is loaded and, when a
// redis backend is configured, it answers pings.
func HealthReady(cfg *config.Config, registry *tenants.Registry, cache redis.Pinger, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-PayBridge-Env", cfg.App.Env)

		if cache != nil {
			if err := cache.Ping(r.Context()); err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "redis unreachable"))
				return
			}
		}

		responses.WriteSuccess(w, map[string]any{
			"status":  "ready",
			"tenants": len(registry.Tenants()),
		})
	}
}
