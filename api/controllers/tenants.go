package controllers

import (
	"net/http"

	"github.com/tecnogrow/paybridge/api/responses"
	"github.com/tecnogrow/paybridge/internal/tenants"
)

type tenantSummary struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Origins     int    `json:"origins"`
	Gateway     bool   `json:"gateway_configured"`
	Environment string `json:"gateway_environment,omitempty"`
}

// ListTenants is a protected diagnostic listing of the loaded tenant set.
// Credentials never leave the server.
func ListTenants(registry *tenants.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		all := registry.Tenants()
		summaries := make([]tenantSummary, 0, len(all))
		for _, tenant := range all {
			summary := tenantSummary{
				ID:      tenant.ID,
				Name:    tenant.Name,
				Origins: len(tenant.Origins),
			}
			if tenant.Webpay != nil {
				summary.Gateway = true
				summary.Environment = tenant.Webpay.Environment
			}
			summaries = append(summaries, summary)
		}
		responses.WriteSuccess(w, map[string]any{
			"tenants": summaries,
			"default": registry.DefaultTenant().ID,
		})
	}
}
