// Package auth verifies bearer tokens and extracts tenant/role claims.
package auth

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	ModeDev  = "dev"
	ModeHMAC = "hmac"
	ModeJWKS = "jwks"
)

var (
	ErrInvalidToken = errors.New("auth: invalid token")
	ErrMissingClaim = errors.New("auth: missing tenant claim")
)

// Verifier validates bearer tokens.
// Supports modes: dev (tenant:role, no verification), hmac (HS256), jwks
// (RS256 keys fetched from a JWKS URL).
type Verifier struct {
	Mode        string
	HMACSecret  []byte
	JWKSURL     string
	Issuer      string
	TenantClaim string
	RoleClaim   string
	http        *http.Client
	mu          sync.RWMutex
	keys        map[string]*rsa.PublicKey
	lastFetch   time.Time
	cacheTTL    time.Duration
}

type Principal struct {
	Tenant  string
	Role    string
	Subject string
}

// Options configures NewVerifier. Empty claim names default to "tenant"
// and "role".
type Options struct {
	Mode        string
	HMACSecret  string
	JWKSURL     string
	Issuer      string
	TenantClaim string
	RoleClaim   string
}

func NewVerifier(o Options) *Verifier {
	mode := strings.ToLower(strings.TrimSpace(o.Mode))
	if mode == "" {
		mode = ModeDev
	}
	return &Verifier{
		Mode:        mode,
		HMACSecret:  []byte(o.HMACSecret),
		JWKSURL:     o.JWKSURL,
		Issuer:      o.Issuer,
		TenantClaim: or(o.TenantClaim, "tenant"),
		RoleClaim:   or(o.RoleClaim, "role"),
		http:        &http.Client{Timeout: 5 * time.Second},
		cacheTTL:    10 * time.Minute,
	}
}

func or(v, d string) string {
	if v != "" {
		return v
	}
	return d
}

func (v *Verifier) Verify(token string) (Principal, error) {
	if v.Mode == ModeDev {
		// token format: tenant:role
		parts := strings.Split(token, ":")
		if len(parts) >= 2 && parts[0] != "" {
			return Principal{Tenant: parts[0], Role: strings.ToLower(parts[1])}, nil
		}
		return Principal{}, fmt.Errorf("%w: expected tenant:role", ErrInvalidToken)
	}

	var (
		keyFunc jwt.Keyfunc
		method  string
	)
	switch v.Mode {
	case ModeHMAC:
		if len(v.HMACSecret) == 0 {
			return Principal{}, errors.New("auth: hmac secret not configured")
		}
		method = jwt.SigningMethodHS256.Alg()
		keyFunc = func(*jwt.Token) (any, error) { return v.HMACSecret, nil }
	case ModeJWKS:
		method = jwt.SigningMethodRS256.Alg()
		keyFunc = func(t *jwt.Token) (any, error) {
			kid, _ := t.Header["kid"].(string)
			return v.rsaKey(kid)
		}
	default:
		return Principal{}, fmt.Errorf("auth: unsupported mode %q", v.Mode)
	}

	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{method}), jwt.WithLeeway(30 * time.Second)}
	if v.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.Issuer))
	}
	claims := jwt.MapClaims{}
	if _, err := jwt.ParseWithClaims(token, claims, keyFunc, opts...); err != nil {
		return Principal{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	tenant, _ := claims[v.TenantClaim].(string)
	role, _ := claims[v.RoleClaim].(string)
	sub, _ := claims.GetSubject()
	if tenant == "" {
		return Principal{}, ErrMissingClaim
	}
	if role == "" {
		role = "viewer"
	}
	return Principal{Tenant: tenant, Role: strings.ToLower(role), Subject: sub}, nil
}

// rsaKey returns the JWKS key for kid, refreshing the cache when stale.
func (v *Verifier) rsaKey(kid string) (*rsa.PublicKey, error) {
	v.mu.RLock()
	k, ok := v.keys[kid]
	stale := time.Since(v.lastFetch) > v.cacheTTL
	v.mu.RUnlock()
	if ok && !stale {
		return k, nil
	}
	if err := v.fetchJWKS(context.Background()); err != nil {
		return nil, err
	}
	v.mu.RLock()
	defer v.mu.RUnlock()
	if k, ok := v.keys[kid]; ok {
		return k, nil
	}
	return nil, errors.New("auth: kid not found in JWKS")
}

type jwk struct {
	Kty string `json:"kty"`
	Kid string `json:"kid"`
	N   string `json:"n"`
	E   string `json:"e"`
}

func (v *Verifier) fetchJWKS(ctx context.Context) error {
	if v.JWKSURL == "" {
		return errors.New("auth: JWKS URL not set")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.JWKSURL, nil)
	if err != nil {
		return err
	}
	resp, err := v.http.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	var set struct {
		Keys []jwk `json:"keys"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&set); err != nil {
		return err
	}
	keys := make(map[string]*rsa.PublicKey, len(set.Keys))
	for _, k := range set.Keys {
		if !strings.EqualFold(k.Kty, "RSA") {
			continue
		}
		n, err := base64.RawURLEncoding.DecodeString(k.N)
		if err != nil {
			return err
		}
		e, err := base64.RawURLEncoding.DecodeString(k.E)
		if err != nil {
			return err
		}
		keys[k.Kid] = &rsa.PublicKey{N: new(big.Int).SetBytes(n), E: int(new(big.Int).SetBytes(e).Int64())}
	}
	v.mu.Lock()
	v.keys = keys
	v.lastFetch = time.Now()
	v.mu.Unlock()
	return nil
}
