package main

import (
	"context"
	"net/http"
	"os"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/tecnogrow/paybridge/api/routes"
	"github.com/tecnogrow/paybridge/internal/odoo"
	"github.com/tecnogrow/paybridge/internal/reconcile"
	"github.com/tecnogrow/paybridge/internal/tenants"
	"github.com/tecnogrow/paybridge/internal/webpay"
	"github.com/tecnogrow/paybridge/pkg/config"
	"github.com/tecnogrow/paybridge/pkg/logger"
	"github.com/tecnogrow/paybridge/pkg/metrics"
	"github.com/tecnogrow/paybridge/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "paybridge"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "paybridge",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	defs, err := cfg.Tenants.Definitions()
	if err != nil {
		logg.Error(context.Background(), "failed to resolve tenant definitions", err)
		os.Exit(1)
	}
	registry, err := tenants.NewRegistry(defs, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to build tenant registry", err)
		os.Exit(1)
	}

	var tokenCache webpay.TokenCache = webpay.NewMemoryTokenCache()
	var redisClient *redis.Client
	if cfg.Redis.Configured() {
		redisClient, err = redis.New(context.Background(), cfg.Redis, logg)
		if err != nil {
			logg.Error(context.Background(), "failed to bootstrap redis", err)
			os.Exit(1)
		}
		defer func() {
			if err := redisClient.Close(); err != nil {
				logg.Error(context.Background(), "error closing redis", err)
			}
		}()
		tokenCache = webpay.NewRedisTokenCache(redisClient)
	} else {
		logg.Warn(context.Background(), "redis not configured, token routing uses an in-process cache")
	}

	promRegistry := prometheus.NewRegistry()
	txMetrics := metrics.NewTransactionMetrics(promRegistry)

	gateway, err := webpay.NewAdapter(webpay.AdapterParams{
		Registry:  registry,
		Cache:     tokenCache,
		ReturnURL: cfg.Webpay.ReturnURL,
		TokenTTL:  cfg.Webpay.TokenTTL,
		Logger:    logg,
		Metrics:   txMetrics,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create gateway adapter", err)
		os.Exit(1)
	}

	storeFactory := func(tenant *tenants.Tenant) (reconcile.OrderStore, error) {
		rpc, err := odoo.NewClient(odoo.ClientParams{
			Credentials: tenant.Odoo,
			Logger:      logg,
		})
		if err != nil {
			return nil, err
		}
		return odoo.NewSalesService(rpc, logg), nil
	}

	engine := reconcile.NewEngine(reconcile.EngineParams{
		Gateway:  gateway,
		Registry: registry,
		Syncer:   reconcile.NewSyncer(storeFactory, logg),
		Logger:   logg,
		Metrics:  txMetrics,
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":     cfg.App.Env,
		"addr":    addr,
		"tenants": len(registry.Tenants()),
	})
	logg.Info(ctx, "starting paybridge server")

	var pinger redis.Pinger
	if redisClient != nil {
		pinger = redisClient
	}

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(routes.RouterParams{
			Config:    cfg,
			Logger:    logg,
			Registry:  registry,
			Initiator: gateway,
			Processor: engine,
			Cache:     pinger,
			Gatherer:  promRegistry,
		}),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "paybridge server stopped unexpectedly", err)
		os.Exit(1)
	}
}
