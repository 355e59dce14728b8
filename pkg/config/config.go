package config

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

type Config struct {
	App      AppConfig
	Security SecurityConfig
	Redis    RedisConfig
	Webpay   WebpayConfig
	Tenants  TenantsConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("paybridge", &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if _, err := cfg.Tenants.Definitions(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"PAYBRIDGE_APP_ENV" required:"true"`
	Port         string `envconfig:"PAYBRIDGE_APP_PORT" default:"8080"`
	LogLevel     string `envconfig:"PAYBRIDGE_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"PAYBRIDGE_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type SecurityConfig struct {
	APIKey             string        `envconfig:"PAYBRIDGE_API_KEY"`
	HMACSecret         string        `envconfig:"PAYBRIDGE_HMAC_SECRET"`
	TimestampTolerance time.Duration `envconfig:"PAYBRIDGE_TIMESTAMP_TOLERANCE" default:"5m"`
	ExtraOrigins       []string      `envconfig:"PAYBRIDGE_EXTRA_ORIGINS"`
}

type RedisConfig struct {
	URL          string        `envconfig:"PAYBRIDGE_REDIS_URL"`
	Address      string        `envconfig:"PAYBRIDGE_REDIS_ADDR"`
	Password     string        `envconfig:"PAYBRIDGE_REDIS_PASSWORD"`
	DB           int           `envconfig:"PAYBRIDGE_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"PAYBRIDGE_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"PAYBRIDGE_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"PAYBRIDGE_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"PAYBRIDGE_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"PAYBRIDGE_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// Configured reports whether a redis backend was supplied at all. The token
// cache degrades to an in-process map when it was not.
func (r RedisConfig) Configured() bool {
	return r.URL != "" || r.Address != ""
}

type WebpayConfig struct {
	ReturnURL string        `envconfig:"PAYBRIDGE_WEBPAY_RETURN_URL" required:"true"`
	TokenTTL  time.Duration `envconfig:"PAYBRIDGE_WEBPAY_TOKEN_TTL" default:"30m"`
}

// TenantsConfig carries the multi-tenant definition blob plus the classic
// single-tenant variables used before TENANT_CONFIGS existed.
type TenantsConfig struct {
	ConfigJSON string `envconfig:"PAYBRIDGE_TENANT_CONFIGS"`

	LegacyOdooURL      string `envconfig:"PAYBRIDGE_ODOO_URL"`
	LegacyOdooDatabase string `envconfig:"PAYBRIDGE_ODOO_DATABASE"`
	LegacyOdooUsername string `envconfig:"PAYBRIDGE_ODOO_USERNAME"`
	LegacyOdooPassword string `envconfig:"PAYBRIDGE_ODOO_PASSWORD"`

	DefaultOrigins []string `envconfig:"PAYBRIDGE_DEFAULT_ORIGINS"`

	LegacyCommerceCode     string `envconfig:"PAYBRIDGE_WEBPAY_COMMERCE_CODE"`
	LegacyAPIKey           string `envconfig:"PAYBRIDGE_WEBPAY_API_KEY"`
	LegacyEnvironment      string `envconfig:"PAYBRIDGE_WEBPAY_ENVIRONMENT" default:"TEST"`
	LegacyProviderRef      int64  `envconfig:"PAYBRIDGE_WEBPAY_PROVIDER_ID"`
	LegacyPaymentMethodRef int64  `envconfig:"PAYBRIDGE_WEBPAY_PAYMENT_METHOD_ID"`
}

// TenantDefinition is one entry of the PAYBRIDGE_TENANT_CONFIGS JSON array.
type TenantDefinition struct {
	ID      string            `json:"id"`
	Name    string            `json:"name"`
	Origins []string          `json:"origins"`
	Odoo    OdooDefinition    `json:"odoo"`
	Webpay  *WebpayDefinition `json:"webpay,omitempty"`
}

type OdooDefinition struct {
	URL      string `json:"url"`
	Database string `json:"database"`
	Username string `json:"username"`
	Password string `json:"password"`
}

type WebpayDefinition struct {
	CommerceCode    string `json:"commerce_code"`
	APIKey          string `json:"api_key"`
	Environment     string `json:"environment"`
	ProviderID      int64  `json:"provider_id"`
	PaymentMethodID int64  `json:"payment_method_id"`
}

// Definitions resolves the tenant set: the JSON blob when present,
// otherwise a single default tenant assembled from the legacy variables.
func (t TenantsConfig) Definitions() ([]TenantDefinition, error) {
	raw := strings.TrimSpace(t.ConfigJSON)
	if raw != "" {
		var defs []TenantDefinition
		if err := json.Unmarshal([]byte(raw), &defs); err != nil {
			return nil, fmt.Errorf("parsing PAYBRIDGE_TENANT_CONFIGS: %w", err)
		}
		if len(defs) == 0 {
			return nil, fmt.Errorf("PAYBRIDGE_TENANT_CONFIGS is empty")
		}
		return defs, nil
	}
	return []TenantDefinition{t.legacyDefinition()}, nil
}

func (t TenantsConfig) legacyDefinition() TenantDefinition {
	baseURL := strings.TrimRight(t.LegacyOdooURL, "/")

	origins := make([]string, 0, len(t.DefaultOrigins)+2)
	if baseURL != "" {
		origins = append(origins, baseURL)
	}
	origins = append(origins, "http://localhost:8000")
	for _, origin := range t.DefaultOrigins {
		if trimmed := strings.TrimSpace(origin); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}

	def := TenantDefinition{
		ID:      "default",
		Name:    "Default",
		Origins: origins,
		Odoo: OdooDefinition{
			URL:      baseURL,
			Database: t.LegacyOdooDatabase,
			Username: t.LegacyOdooUsername,
			Password: t.LegacyOdooPassword,
		},
	}

	if t.LegacyCommerceCode != "" && t.LegacyAPIKey != "" {
		def.Webpay = &WebpayDefinition{
			CommerceCode:    t.LegacyCommerceCode,
			APIKey:          t.LegacyAPIKey,
			Environment:     strings.ToUpper(strings.TrimSpace(t.LegacyEnvironment)),
			ProviderID:      t.LegacyProviderRef,
			PaymentMethodID: t.LegacyPaymentMethodRef,
		}
	}

	return def
}
