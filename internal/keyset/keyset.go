package keyset

import (
	"context"
	"fmt"
	"net/url"

	"github.com/auth0/go-jwt-middleware/v2/jwks"
)

// CertsPath is where Cloudflare Access publishes the signing keys for a team.
const CertsPath = "/cdn-cgi/access/certs"

// Resolver supplies the key set used to check token signatures. The returned
// value is handed to the validator as-is, matching the validator's key func.
type Resolver func(ctx context.Context) (any, error)

// CertsURL returns the certificate endpoint for the given team domain. The
// suffix is appended verbatim so that the issuer (the team domain) and the
// endpoint are always derived from the same string.
func CertsURL(teamDomain string) (*url.URL, error) {
	u, err := url.Parse(teamDomain + CertsPath)
	if err != nil {
		return nil, fmt.Errorf("invalid team domain %q: %w", teamDomain, err)
	}

	if !u.IsAbs() || u.Host == "" {
		return nil, fmt.Errorf("team domain must be an absolute URL: %q", teamDomain)
	}

	if u.Scheme != "https" && u.Scheme != "http" {
		return nil, fmt.Errorf("team domain must use http(s): %q", teamDomain)
	}

	return u, nil
}

// Remote fetches the key set from the certs endpoint on every call. Access
// does not publish an OIDC discovery document at the team domain, so the JWKS
// URI is supplied directly rather than discovered from the issuer.
func Remote(issuer, certs *url.URL) Resolver {
	provider := jwks.NewProvider(issuer, jwks.WithCustomJWKSURI(certs))

	return provider.KeyFunc
}
