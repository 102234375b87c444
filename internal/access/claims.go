package access

import (
	"context"

	jwtmiddleware "github.com/auth0/go-jwt-middleware/v2"
	"github.com/auth0/go-jwt-middleware/v2/validator"
)

// Payload is the complete decoded payload of a verified Access token,
// registered claims included. Decoding into a map keeps every claim Access
// sends (email, identity_nonce, country, custom SAML/OIDC attributes) without
// the gate needing to know about them.
type Payload map[string]any

// Validate implements validator.CustomClaims. Issuer, audience and validity
// period are enforced by the validator itself; there is nothing further to
// check on the raw payload.
func (p *Payload) Validate(_ context.Context) error {
	return nil
}

// String returns the named claim if it is present and is a string.
func (p Payload) String(name string) string {
	s, _ := p[name].(string)
	return s
}

// Email returns the identity's email address. It is empty for service token
// authentication, which carries no user identity.
func (p Payload) Email() string {
	return p.String("email")
}

func payloadClaims() validator.CustomClaims {
	return &Payload{}
}

// ContextWithClaims stores the validated claims in the context in the same
// way the middleware does.
func ContextWithClaims(ctx context.Context, claims *validator.ValidatedClaims) context.Context {
	return context.WithValue(ctx, jwtmiddleware.ContextKey{}, claims)
}

// ClaimsFromContext returns the validated claims from the context as set by
// the gate. This will return nil if the request was not admitted by the gate.
func ClaimsFromContext(ctx context.Context) *validator.ValidatedClaims {
	claims, _ := ctx.Value(jwtmiddleware.ContextKey{}).(*validator.ValidatedClaims)
	return claims
}

// PayloadFromContext returns the verified token payload, if present.
func PayloadFromContext(ctx context.Context) (Payload, bool) {
	claims := ClaimsFromContext(ctx)
	if claims == nil {
		return nil, false
	}

	payload, ok := claims.CustomClaims.(*Payload)
	if !ok || payload == nil {
		return nil, false
	}

	return *payload, true
}

// RequirePayloadFromContext returns the verified token payload, panicking if
// it is absent. Handlers behind the gate are never invoked without it, so a
// panic here indicates a routing mistake rather than a client error.
func RequirePayloadFromContext(ctx context.Context) Payload {
	payload, ok := PayloadFromContext(ctx)
	if !ok {
		panic("Access payload not present in context, likely used outside of the access gate")
	}

	return payload
}
