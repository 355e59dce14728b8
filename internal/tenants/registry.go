package tenants

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/tecnogrow/paybridge/pkg/config"
	pkgerrors "github.com/tecnogrow/paybridge/pkg/errors"
	"github.com/tecnogrow/paybridge/pkg/logger"
)

// SessionSeparator joins the tenant id and the raw session token inside a
// session identifier. The tenant id is always the first segment, which is what
// lets a bare gateway callback be routed back to its tenant.
const SessionSeparator = "__"

const sessionMaxLen = 60

var sessionStrip = regexp.MustCompile(`[^0-9a-zA-Z-]+`)

// Registry holds the immutable tenant set loaded at startup. The first tenant
// in load order is the default used when origin or session resolution fails.
type Registry struct {
	tenants []*Tenant
	byID    map[string]*Tenant
	logg    *logger.Logger
}

// NewRegistry builds the registry from resolved tenant definitions.
func NewRegistry(defs []config.TenantDefinition, logg *logger.Logger) (*Registry, error) {
	if len(defs) == 0 {
		return nil, fmt.Errorf("at least one tenant is required")
	}

	r := &Registry{
		tenants: make([]*Tenant, 0, len(defs)),
		byID:    make(map[string]*Tenant, len(defs)),
		logg:    logg,
	}

	for _, def := range defs {
		tenant, err := newTenant(def)
		if err != nil {
			return nil, err
		}
		if _, exists := r.byID[tenant.ID]; exists {
			return nil, fmt.Errorf("duplicate tenant id %q", tenant.ID)
		}
		r.tenants = append(r.tenants, tenant)
		r.byID[tenant.ID] = tenant
	}

	return r, nil
}

func newTenant(def config.TenantDefinition) (*Tenant, error) {
	id := def.ID
	if id == "" {
		id = def.Name
	}

	origins := make([]string, 0, len(def.Origins))
	for _, origin := range def.Origins {
		if trimmed := strings.TrimRight(strings.TrimSpace(origin), "/"); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}

	name := def.Name
	if name == "" {
		name = def.ID
	}

	tenant := &Tenant{
		ID:      sanitizeSlug(id),
		Name:    name,
		Origins: origins,
		Odoo: OdooCredentials{
			BaseURL:  strings.TrimRight(def.Odoo.URL, "/"),
			Database: def.Odoo.Database,
			Username: def.Odoo.Username,
			Password: def.Odoo.Password,
		},
	}

	if def.Webpay != nil {
		if def.Webpay.CommerceCode == "" || def.Webpay.APIKey == "" {
			return nil, fmt.Errorf("tenant %q: webpay commerce_code and api_key are both required", tenant.ID)
		}
		tenant.Webpay = &WebpayCredentials{
			CommerceCode:     def.Webpay.CommerceCode,
			APIKey:           def.Webpay.APIKey,
			Environment:      strings.ToUpper(strings.TrimSpace(def.Webpay.Environment)),
			ProviderRef:      def.Webpay.ProviderID,
			PaymentMethodRef: def.Webpay.PaymentMethodID,
		}
		if tenant.Webpay.Environment == "" {
			tenant.Webpay.Environment = EnvTest
		}
	}

	return tenant, nil
}

// Tenants returns the tenant set in load order.
func (r *Registry) Tenants() []*Tenant {
	return r.tenants
}

// DefaultTenant returns the first tenant in load order.
func (r *Registry) DefaultTenant() *Tenant {
	return r.tenants[0]
}

// ResolveByOrigin returns the first tenant whose origin patterns match, in
// load order.
func (r *Registry) ResolveByOrigin(origin string) (*Tenant, bool) {
	for _, tenant := range r.tenants {
		if tenant.MatchesOrigin(origin) {
			return tenant, true
		}
	}
	return nil, false
}

// ResolveByID looks a tenant up by its sanitized id.
func (r *Registry) ResolveByID(id string) (*Tenant, bool) {
	if id == "" {
		return nil, false
	}
	tenant, ok := r.byID[sanitizeSlug(id)]
	return tenant, ok
}

// ResolveBySession recovers the tenant encoded in a session identifier.
func (r *Registry) ResolveBySession(sessionID string) (*Tenant, bool) {
	if sessionID == "" {
		return nil, false
	}
	prefix, _, _ := strings.Cut(sessionID, SessionSeparator)
	return r.ResolveByID(prefix)
}

// RequireByID resolves an explicitly requested tenant id; unlike origin and
// session resolution this is a hard client error when the id is unknown.
func (r *Registry) RequireByID(id string) (*Tenant, error) {
	tenant, ok := r.ResolveByID(id)
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, fmt.Sprintf("tenant %q is not configured", id))
	}
	return tenant, nil
}

// ResolveOrDefault resolves by origin first, then explicit id, falling back to
// the default tenant. Fallbacks are logged as degradations, never failures.
func (r *Registry) ResolveOrDefault(ctx context.Context, origin string) *Tenant {
	if tenant, ok := r.ResolveByOrigin(origin); ok {
		return tenant
	}
	if r.logg != nil && origin != "" {
		r.logg.Warn(r.logg.WithField(ctx, "origin", origin), "origin did not match any tenant, using default")
	}
	return r.DefaultTenant()
}

// EncodeSession builds a session identifier carrying the tenant id.
func (r *Registry) EncodeSession(tenant *Tenant, rawSession string) string {
	safe := sessionStrip.ReplaceAllString(rawSession, "")
	session := tenant.ID + SessionSeparator + safe
	if len(session) > sessionMaxLen {
		session = session[:sessionMaxLen]
	}
	return session
}

// AllowedOrigins returns the sorted union of every tenant's origin patterns,
// which feeds the CORS allow-list.
func (r *Registry) AllowedOrigins() []string {
	seen := map[string]struct{}{}
	origins := []string{}
	for _, tenant := range r.tenants {
		for _, origin := range tenant.Origins {
			if _, ok := seen[origin]; ok {
				continue
			}
			seen[origin] = struct{}{}
			origins = append(origins, origin)
		}
	}
	sort.Strings(origins)
	return origins
}
