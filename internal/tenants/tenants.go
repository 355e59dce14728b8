package tenants

import (
	"fmt"
	"regexp"
	"strings"
)

// Gateway environments a tenant may run against.
const (
	EnvTest          = "TEST"
	EnvCertification = "CERTIFICATION"
	EnvProduction    = "PRODUCTION"
)

var slugStrip = regexp.MustCompile(`[^0-9a-z-]+`)

// OdooCredentials identify one tenant's Odoo instance.
type OdooCredentials struct {
	BaseURL  string
	Database string
	Username string
	Password string
}

func (c OdooCredentials) successURL() string {
	return c.BaseURL + "/shop/confirmation"
}

func (c OdooCredentials) paymentURL() string {
	return c.BaseURL + "/shop/payment"
}

// WebpayCredentials identify one tenant's gateway commerce account.
type WebpayCredentials struct {
	CommerceCode     string
	APIKey           string
	Environment      string
	ProviderRef      int64
	PaymentMethodRef int64
}

// IsProduction reports whether the credentials target the live gateway.
func (w WebpayCredentials) IsProduction() bool {
	switch strings.ToUpper(strings.TrimSpace(w.Environment)) {
	case "PROD", EnvProduction, "LIVE":
		return true
	}
	return false
}

// Tenant is one storefront sharing the bridge. Immutable after load.
type Tenant struct {
	ID      string
	Name    string
	Origins []string
	Odoo    OdooCredentials
	Webpay  *WebpayCredentials
}

// MatchesOrigin reports whether the normalized origin belongs to this tenant.
// Patterns containing "*" match any run of characters; plain patterns require
// exact equality.
func (t *Tenant) MatchesOrigin(origin string) bool {
	normalized := normalizeOrigin(origin)
	if normalized == "" {
		return false
	}
	for _, pattern := range t.Origins {
		pattern = normalizeOrigin(pattern)
		if pattern == "" {
			continue
		}
		if strings.Contains(pattern, "*") {
			if wildcardMatch(pattern, normalized) {
				return true
			}
			continue
		}
		if pattern == normalized {
			return true
		}
	}
	return false
}

// SuccessURL builds the storefront confirmation redirect for a paid order.
func (t *Tenant) SuccessURL(buyOrder string) string {
	return fmt.Sprintf("%s?status=success&order=%s", t.Odoo.successURL(), buyOrder)
}

// PaymentStatusURL builds the storefront redirect for non-success outcomes.
func (t *Tenant) PaymentStatusURL(status string) string {
	return fmt.Sprintf("%s?status=%s", t.Odoo.paymentURL(), status)
}

func sanitizeSlug(raw string) string {
	slug := slugStrip.ReplaceAllString(strings.ToLower(strings.TrimSpace(raw)), "")
	if slug == "" {
		return "tenant"
	}
	return slug
}

func normalizeOrigin(origin string) string {
	return strings.ToLower(strings.TrimRight(strings.TrimSpace(origin), "/"))
}

// wildcardMatch applies fnmatch-style globbing: "*" matches any run of
// characters, including dots and slashes.
func wildcardMatch(pattern, value string) bool {
	var sb strings.Builder
	sb.WriteString("^")
	for i, segment := range strings.Split(pattern, "*") {
		if i > 0 {
			sb.WriteString(".*")
		}
		sb.WriteString(regexp.QuoteMeta(segment))
	}
	sb.WriteString("$")
	re, err := regexp.Compile(sb.String())
	if err != nil {
		return false
	}
	return re.MatchString(value)
}
