package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tecnogrow/paybridge/api/controllers"
	"github.com/tecnogrow/paybridge/api/middleware"
	"github.com/tecnogrow/paybridge/internal/tenants"
	"github.com/tecnogrow/paybridge/pkg/config"
	"github.com/tecnogrow/paybridge/pkg/logger"
	"github.com/tecnogrow/paybridge/pkg/redis"
)

// RouterParams carry everything the HTTP surface depends on.
type RouterParams struct {
	Config    *config.Config
	Logger    *logger.Logger
	Registry  *tenants.Registry
	Initiator controllers.PaymentInitiator
	Processor controllers.CallbackProcessor
	Cache     redis.Pinger
	Gatherer  prometheus.Gatherer
}

func NewRouter(params RouterParams) http.Handler {
	cfg := params.Config
	logg := params.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)

	allowedOrigins := append(params.Registry.AllowedOrigins(), cfg.Security.ExtraOrigins...)
	r.Use(middleware.CORS(allowedOrigins))

	payments := controllers.NewPaymentsController(controllers.PaymentsControllerParams{
		Initiator: params.Initiator,
		Processor: params.Processor,
		Registry:  params.Registry,
		ReturnURL: cfg.Webpay.ReturnURL,
		Logger:    logg,
	})

	r.Get("/health/live", controllers.HealthLive(cfg))
	r.Get("/health/ready", controllers.HealthReady(cfg, params.Registry, params.Cache, logg))

	if params.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(params.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(
				middleware.APIKey(cfg.Security, logg),
				middleware.HMACSignature(cfg.Security, logg),
				middleware.ResolveTenant(params.Registry, logg),
			)
			r.Post("/payments/init", payments.Init)
		})

		// The gateway itself calls back here; it carries no API key.
		r.Get("/payments/commit", payments.CommitJSON)
		r.Post("/payments/commit", payments.CommitRedirect)

		r.With(middleware.APIKey(cfg.Security, logg)).
			Get("/tenants", controllers.ListTenants(params.Registry))
	})

	return r
}
