package access_test

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"
	"github.com/jamestelfer/cfaccess-gate/internal/keyset"
	"github.com/stretchr/testify/require"
)

const testAudience = "4714c1358e65fe4b408ad6d432a5f878f08194bdb4752441fd56faefa9b2b6f2"

// teamDomain stands in for https://<team>.cloudflareaccess.com: it serves the
// public half of its signing keys at the certs path.
type teamDomain struct {
	server *httptest.Server
	key    *jose.JSONWebKey

	published     atomic.Pointer[jose.JSONWebKeySet]
	certsRequests atomic.Int32
	failCerts     atomic.Bool
}

func newTeamDomain(t *testing.T) *teamDomain {
	t.Helper()

	td := &teamDomain{key: generateJWK(t, "kid")}
	td.publish(td.key)

	td.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != keyset.CertsPath {
			t.Errorf("was not expecting to handle the following url: %s", r.URL.String())
			w.WriteHeader(http.StatusNotFound)
			return
		}

		td.certsRequests.Add(1)

		if td.failCerts.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		err := json.NewEncoder(w).Encode(td.published.Load())
		require.NoError(t, err)
	}))
	t.Cleanup(td.server.Close)

	return td
}

// publish replaces the keys served at the certs path, as Access does when it
// rotates its signing keys.
func (td *teamDomain) publish(keys ...*jose.JSONWebKey) {
	set := &jose.JSONWebKeySet{}
	for _, k := range keys {
		set.Keys = append(set.Keys, k.Public())
	}
	td.published.Store(set)
}

func (td *teamDomain) URL() string {
	return td.server.URL
}

// validClaims are the registered claims Access would issue for this team and
// application.
func (td *teamDomain) validClaims() jwt.Claims {
	return valid(jwt.Claims{
		Issuer:   td.URL(),
		Audience: jwt.Audience{testAudience},
		Subject:  "7335d417-61da-459d-899c-0a01c76a2f94",
	})
}

func valid(claims jwt.Claims) jwt.Claims {
	now := time.Now().UTC()

	claims.IssuedAt = jwt.NewNumericDate(now)
	claims.NotBefore = jwt.NewNumericDate(now.Add(-1 * time.Minute))
	claims.Expiry = jwt.NewNumericDate(now.Add(1 * time.Minute))

	return claims
}

func identity(email string) map[string]any {
	return map[string]any{
		"email":          email,
		"type":           "app",
		"identity_nonce": "6ei69kawdKzMIAPF",
		"country":        "AU",
	}
}

func generateJWK(t *testing.T, kid string) *jose.JSONWebKey {
	t.Helper()

	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err, "failed to generate private key")

	return &jose.JSONWebKey{
		Key:       privateKey,
		KeyID:     kid,
		Algorithm: string(jose.RS256),
		Use:       "sig",
	}
}

func sign(t *testing.T, jwk *jose.JSONWebKey, claims ...any) string {
	t.Helper()

	return signWith(t, jose.SigningKey{
		Algorithm: jose.SignatureAlgorithm(jwk.Algorithm),
		Key:       jwk,
	}, claims...)
}

func signWith(t *testing.T, key jose.SigningKey, claims ...any) string {
	t.Helper()

	signer, err := jose.NewSigner(key, (&jose.SignerOptions{}).WithType("JWT"))
	require.NoError(t, err)

	builder := jwt.Signed(signer)
	for _, claim := range claims {
		builder = builder.Claims(claim)
	}

	token, err := builder.Serialize()
	require.NoError(t, err)

	return token
}

// rawPayload returns the JSON payload segment of a compact token.
func rawPayload(t *testing.T, token string) string {
	t.Helper()

	parts := strings.Split(token, ".")
	require.Len(t, parts, 3)

	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	require.NoError(t, err)

	return string(payload)
}
