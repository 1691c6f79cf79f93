// Package auth produces bearer tokens for GraphQL requests: locally minted
// Hasura JWTs or OAuth2 client-credentials tokens.
package auth

import (
	"context"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// ClaimsNamespace is the claim key Hasura reads session variables from.
const ClaimsNamespace = "https://hasura.io/jwt/claims"

var (
	ErrNoSigningKey = errors.New("no signing key configured")
	ErrDefaultRole  = errors.New("default role must be one of the allowed roles")
)

// Claims describes one token.
type Claims struct {
	Issuer       string
	Subject      string
	Audience     []string
	DefaultRole  string
	AllowedRoles []string
	// Extra session variables. Keys are prefixed with x-hasura- when missing.
	Extra map[string]string
	TTL   time.Duration
	KeyID string
}

func (c Claims) mapClaims(now time.Time) (jwt.MapClaims, error) {
	roles := c.AllowedRoles
	if len(roles) == 0 && c.DefaultRole != "" {
		roles = []string{c.DefaultRole}
	}
	if c.DefaultRole != "" && !contains(roles, c.DefaultRole) {
		return nil, ErrDefaultRole
	}
	ttl := c.TTL
	if ttl <= 0 {
		ttl = time.Hour
	}

	session := map[string]any{
		"x-hasura-allowed-roles": roles,
		"x-hasura-default-role":  c.DefaultRole,
	}
	if c.Subject != "" {
		session["x-hasura-user-id"] = c.Subject
	}
	for k, v := range c.Extra {
		if !strings.HasPrefix(k, "x-hasura-") {
			k = "x-hasura-" + k
		}
		session[k] = v
	}

	claims := jwt.MapClaims{
		"iat":           now.Unix(),
		"exp":           now.Add(ttl).Unix(),
		"nbf":           now.Add(-1 * time.Minute).Unix(),
		ClaimsNamespace: session,
	}
	if c.Issuer != "" {
		claims["iss"] = c.Issuer
	}
	if c.Subject != "" {
		claims["sub"] = c.Subject
	}
	if len(c.Audience) > 0 {
		claims["aud"] = c.Audience
	}
	return claims, nil
}

// SignRS256 mints an RS256 token.
func SignRS256(key *rsa.PrivateKey, c Claims) (string, error) {
	if key == nil {
		return "", ErrNoSigningKey
	}
	return sign(jwt.SigningMethodRS256, key, c)
}

// SignHS256 mints an HS256 token with a shared secret.
func SignHS256(secret []byte, c Claims) (string, error) {
	if len(secret) == 0 {
		return "", ErrNoSigningKey
	}
	return sign(jwt.SigningMethodHS256, secret, c)
}

func sign(method jwt.SigningMethod, key any, c Claims) (string, error) {
	claims, err := c.mapClaims(time.Now())
	if err != nil {
		return "", err
	}
	token := jwt.NewWithClaims(method, claims)
	if c.KeyID != "" {
		token.Header["kid"] = c.KeyID
	}
	signed, err := token.SignedString(key)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// LoadRSAPrivateKey reads a PKCS1 or PKCS8 PEM encoded RSA key.
func LoadRSAPrivateKey(path string) (*rsa.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read private key: %w", err)
	}
	return ParseRSAPrivateKey(data)
}

// ParseRSAPrivateKey decodes a PKCS1 or PKCS8 PEM encoded RSA key.
func ParseRSAPrivateKey(data []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("failed to decode private key pem")
	}

	key, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err == nil {
		return key, nil
	}

	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}
	rsaKey, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("unsupported private key type")
	}
	return rsaKey, nil
}

// ClientCredentials configures an OAuth2 client-credentials flow.
type ClientCredentials struct {
	TokenURL     string
	ClientID     string
	ClientSecret string
	Scopes       []string
	Audience     string
}

// TokenSource returns a cached, auto-refreshing source for cc.
func (cc ClientCredentials) TokenSource(ctx context.Context) oauth2.TokenSource {
	cfg := clientcredentials.Config{
		ClientID:     cc.ClientID,
		ClientSecret: cc.ClientSecret,
		TokenURL:     cc.TokenURL,
		Scopes:       cc.Scopes,
	}
	if cc.Audience != "" {
		cfg.EndpointParams = map[string][]string{"audience": {cc.Audience}}
	}
	return cfg.TokenSource(ctx)
}

// MintedSource returns a token source that re-mints an RS256 token shortly
// before the previous one expires.
func MintedSource(key *rsa.PrivateKey, c Claims) oauth2.TokenSource {
	return oauth2.ReuseTokenSource(nil, &mintSource{
		claims: c,
		sign:   func(c Claims) (string, error) { return SignRS256(key, c) },
	})
}

// MintedHMACSource is MintedSource for HS256 shared secrets.
func MintedHMACSource(secret []byte, c Claims) oauth2.TokenSource {
	return oauth2.ReuseTokenSource(nil, &mintSource{
		claims: c,
		sign:   func(c Claims) (string, error) { return SignHS256(secret, c) },
	})
}

// StaticSource wraps a fixed bearer token.
func StaticSource(token string) oauth2.TokenSource {
	return oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"})
}

type mintSource struct {
	claims Claims
	sign   func(Claims) (string, error)
}

func (m *mintSource) Token() (*oauth2.Token, error) {
	signed, err := m.sign(m.claims)
	if err != nil {
		return nil, err
	}
	ttl := m.claims.TTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &oauth2.Token{
		AccessToken: signed,
		TokenType:   "Bearer",
		Expiry:      time.Now().Add(ttl),
	}, nil
}

// BearerHeader fetches a token and formats it as an Authorization value.
func BearerHeader(src oauth2.TokenSource) (string, error) {
	tok, err := src.Token()
	if err != nil {
		return "", fmt.Errorf("fetch token: %w", err)
	}
	return tok.Type() + " " + tok.AccessToken, nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
