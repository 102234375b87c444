// Command mint prints a token shaped like the ones Cloudflare Access issues,
// signed with a local private key. Serve the public half of the key set at
// <team-domain>/cdn-cgi/access/certs to exercise the gate locally.
//
// Usage:
//
//	mint <private-jwks.json> <team-domain> <aud> <email>
package main

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"
	"github.com/google/uuid"
)

const validity = 24 * time.Hour

// accessIdentity holds the application claims Access adds beside the
// registered ones.
type accessIdentity struct {
	Email         string `json:"email"`
	Type          string `json:"type"`
	IdentityNonce string `json:"identity_nonce"`
}

func main() {
	if len(os.Args) != 5 {
		fmt.Fprintln(os.Stderr, "usage: mint <private-jwks.json> <team-domain> <aud> <email>")
		os.Exit(2)
	}

	jwksPath, teamDomain, audience, email := os.Args[1], os.Args[2], os.Args[3], os.Args[4]

	key, err := loadSigningKey(jwksPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error loading jwks: %v\n", err)
		os.Exit(1)
	}

	token, err := mint(key, strings.TrimSuffix(teamDomain, "/"), audience, email, time.Now())
	if err != nil {
		fmt.Fprintf(os.Stderr, "error creating JWT: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("%s", token)
}

func loadSigningKey(path string) (*jose.JSONWebKey, error) {
	jwksBytes, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	jwks := jose.JSONWebKeySet{}
	if err := json.Unmarshal(jwksBytes, &jwks); err != nil {
		return nil, err
	}

	for _, k := range jwks.Keys {
		if !k.IsPublic() {
			return &k, nil
		}
	}

	return nil, fmt.Errorf("no private key found in %s", path)
}

func mint(jwk *jose.JSONWebKey, issuer, audience, email string, now time.Time) (string, error) {
	alg := jwk.Algorithm
	if alg == "" {
		alg = string(jose.RS256)
	}

	signer, err := jose.NewSigner(
		jose.SigningKey{Algorithm: jose.SignatureAlgorithm(alg), Key: jwk},
		(&jose.SignerOptions{}).WithType("JWT"),
	)
	if err != nil {
		return "", fmt.Errorf("signer: %w", err)
	}

	nonce := make([]byte, 8)
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}

	registered := jwt.Claims{
		Issuer:    issuer,
		Audience:  jwt.Audience{audience},
		Subject:   uuid.NewString(),
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		Expiry:    jwt.NewNumericDate(now.Add(validity)),
	}

	return jwt.Signed(signer).
		Claims(registered).
		Claims(accessIdentity{
			Email:         email,
			Type:          "app",
			IdentityNonce: hex.EncodeToString(nonce),
		}).
		Serialize()
}
