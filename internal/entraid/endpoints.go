package entraid

import (
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/microsoft"
)

// Entra ID hosts and well-known values.
const (
	// DefaultLoginBaseURL is the public cloud authority host.
	DefaultLoginBaseURL = "https://login.microsoftonline.com"

	// DefaultGraphBaseURL is the Microsoft Graph v1.0 root.
	DefaultGraphBaseURL = "https://graph.microsoft.com/v1.0"

	// IssuerHost identifies accounts linked to Entra ID by their stored issuer.
	IssuerHost = "login.microsoftonline.com"

	// DefaultTenant is used when no tenant is configured.
	DefaultTenant = "common"
)

var tenantPattern = regexp.MustCompile(`com/([^/]+)/oauth2/v2`)

// Endpoints holds the tenant-specific OAuth2 endpoints.
type Endpoints struct {
	Authorization string
	Token         string
	Logout        string
}

// OAuth2 returns the endpoints in the form expected by x/oauth2.
func (e Endpoints) OAuth2() oauth2.Endpoint {
	return oauth2.Endpoint{
		AuthURL:   e.Authorization,
		TokenURL:  e.Token,
		AuthStyle: oauth2.AuthStyleInParams,
	}
}

// EndpointsFor derives the v2.0 endpoints of a tenant.
func EndpointsFor(loginBaseURL, tenant string) Endpoints {
	if tenant == "" {
		tenant = DefaultTenant
	}
	base := strings.TrimSuffix(loginBaseURL, "/")
	if base == "" || base == DefaultLoginBaseURL {
		ep := microsoft.AzureADEndpoint(tenant)
		return Endpoints{
			Authorization: ep.AuthURL,
			Token:         ep.TokenURL,
			Logout:        fmt.Sprintf("%s/%s/oauth2/v2.0/logout", DefaultLoginBaseURL, tenant),
		}
	}
	return Endpoints{
		Authorization: fmt.Sprintf("%s/%s/oauth2/v2.0/authorize", base, tenant),
		Token:         fmt.Sprintf("%s/%s/oauth2/v2.0/token", base, tenant),
		Logout:        fmt.Sprintf("%s/%s/oauth2/v2.0/logout", base, tenant),
	}
}

// IssuerFor returns the v2.0 issuer URL of a tenant.
func IssuerFor(tenant string) string {
	return fmt.Sprintf("%s/%s/v2.0", DefaultLoginBaseURL, tenant)
}

// IsEntraIssuer reports whether an issuer belongs to Entra ID.
func IsEntraIssuer(issuer string) bool {
	return strings.Contains(issuer, IssuerHost)
}

// FixIssuerVersion rewrites issuers stored with a trailing "/2.0" to "/v2.0".
// Other issuers are returned unchanged.
func FixIssuerVersion(issuer string) string {
	if strings.HasSuffix(issuer, "/2.0") && !strings.HasSuffix(issuer, "/v2.0") {
		return strings.TrimSuffix(issuer, "/2.0") + "/v2.0"
	}
	return issuer
}

// TenantFromAuthorizationEndpoint extracts the tenant from an authorization endpoint URL.
func TenantFromAuthorizationEndpoint(endpoint string) (string, bool) {
	m := tenantPattern.FindStringSubmatch(endpoint)
	if len(m) != 2 {
		return "", false
	}
	return m[1], true
}
