package access

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	jwtmiddleware "github.com/auth0/go-jwt-middleware/v2"
	"github.com/auth0/go-jwt-middleware/v2/validator"
	"github.com/jamestelfer/cfaccess-gate/internal/audit"
	"github.com/jamestelfer/cfaccess-gate/internal/config"
	"github.com/jamestelfer/cfaccess-gate/internal/keyset"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// TokenHeader carries the token Cloudflare Access adds to every request it
// forwards to the origin.
const TokenHeader = "Cf-Access-Jwt-Assertion"

type options struct {
	keys          keyset.Resolver
	validate      jwtmiddleware.ValidateToken
	meterProvider metric.MeterProvider
}

// Option configures the gate.
type Option func(*options)

// WithKeyResolver replaces the remote, cached certs lookup.
func WithKeyResolver(keys keyset.Resolver) Option {
	return func(o *options) {
		o.keys = keys
	}
}

// WithValidator replaces signature and claim verification entirely. When set,
// no key resolver is constructed.
func WithValidator(validate jwtmiddleware.ValidateToken) Option {
	return func(o *options) {
		o.validate = validate
	}
}

// WithMeterProvider sets the destination for gate decision metrics. The global
// provider is used by default.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(o *options) {
		o.meterProvider = mp
	}
}

type gate struct {
	decisions decisions
}

// Middleware returns HTTP middleware that admits only requests carrying a
// valid Cloudflare Access token. The verified payload is set on the request
// context and can be retrieved with PayloadFromContext(ctx).
//
// If the configuration is incomplete, the returned middleware rejects every
// request with a server error instead of failing here.
func Middleware(cfg config.AccessConfig, opts ...Option) (func(http.Handler) http.Handler, error) {
	o := options{
		meterProvider: otel.GetMeterProvider(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	d, err := newDecisions(o.meterProvider)
	if err != nil {
		return nil, fmt.Errorf("failed to set up decision metrics: %w", err)
	}

	g := &gate{decisions: d}

	if !cfg.Complete() {
		log.Error().Err(ErrMisconfigured).
			Msg("access: CF_ACCESS_TEAM_DOMAIN and CF_ACCESS_AUD must be set; all requests will be rejected")

		return g.misconfigured, nil
	}

	validate := o.validate
	if validate == nil {
		keys, refresh := o.keys, keyset.Refresher(nil)
		if keys == nil {
			keys, refresh, err = remoteKeys(cfg)
			if err != nil {
				return nil, err
			}
		}

		validate, err = newValidator(cfg, keys)
		if err != nil {
			return nil, err
		}

		if refresh != nil {
			validate = retryAfterRefresh(validate, refresh)
		}
	}

	checker := jwtmiddleware.New(
		validate,
		jwtmiddleware.WithTokenExtractor(HeaderTokenExtractor(TokenHeader)),
		jwtmiddleware.WithErrorHandler(g.errorHandler),
	)

	return func(next http.Handler) http.Handler {
		return checker.CheckJWT(g.admitted(next))
	}, nil
}

// HeaderTokenExtractor reads the token from the named header. An absent
// header yields an empty token, which the middleware reports as missing.
func HeaderTokenExtractor(name string) jwtmiddleware.TokenExtractor {
	return func(r *http.Request) (string, error) {
		return r.Header.Get(name), nil
	}
}

func newValidator(cfg config.AccessConfig, keys keyset.Resolver) (jwtmiddleware.ValidateToken, error) {
	jwtValidator, err := validator.New(
		keys,
		// Access signs with RSA only
		validator.RS256,
		cfg.TeamDomain,
		[]string{cfg.Audience},
		validator.WithAllowedClockSkew(time.Duration(cfg.ClockSkewSeconds)*time.Second),
		validator.WithCustomClaims(payloadClaims),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to set up the validator: %w", err)
	}

	return jwtValidator.ValidateToken, nil
}

// retryAfterRefresh verifies a failed token once more against a freshly
// fetched key set. Tokens signed with a key published after the cached set
// was fetched are admitted without waiting for the cache to expire.
func retryAfterRefresh(validate jwtmiddleware.ValidateToken, refresh keyset.Refresher) jwtmiddleware.ValidateToken {
	return func(ctx context.Context, token string) (any, error) {
		claims, err := validate(ctx, token)
		if err == nil || ctx.Err() != nil {
			return claims, err
		}

		if !refresh(ctx) {
			return claims, err
		}

		return validate(ctx, token)
	}
}

// remoteKeys resolves the key set from the certs endpoint of the team domain.
// The refresher is nil when caching is disabled, as every verification
// fetches the current key set anyway.
func remoteKeys(cfg config.AccessConfig) (keyset.Resolver, keyset.Refresher, error) {
	issuerURL, err := url.Parse(cfg.TeamDomain)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse the team domain: %w", err)
	}

	certsURL, err := keyset.CertsURL(cfg.TeamDomain)
	if err != nil {
		return nil, nil, err
	}

	keys := keyset.Remote(issuerURL, certsURL)

	ttl := time.Duration(cfg.CertsCacheTTLSeconds) * time.Second
	if ttl <= 0 {
		log.Warn().Msg("access: certs cache disabled, keys will be fetched for every request")
		return keys, nil, nil
	}

	cooldown := time.Duration(cfg.CertsRefreshCooldownSeconds) * time.Second

	cached, err := keyset.Cached(ttl, cooldown)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to set up the certs cache: %w", err)
	}

	resolve, refresh := cached(certsURL.String(), keys)

	return resolve, refresh, nil
}

func (g *gate) misconfigured(_ http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		g.errorHandler(w, r, ErrMisconfigured)
	})
}

// admitted runs after successful verification: it records the identity on the
// audit entry before handing over to the application.
func (g *gate) admitted(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		entry := audit.Log(ctx)
		entry.Authorized = true

		if claims := ClaimsFromContext(ctx); claims != nil {
			entry.AuthSubject = claims.RegisteredClaims.Subject
			entry.AuthIssuer = claims.RegisteredClaims.Issuer
			entry.AuthAudience = claims.RegisteredClaims.Audience
			entry.AuthExpirySecs = claims.RegisteredClaims.Expiry
		}

		if payload, ok := PayloadFromContext(ctx); ok {
			entry.AuthEmail = payload.Email()
		}

		g.decisions.record(ctx, outcomeAdmitted)

		next.ServeHTTP(w, r)
	})
}
