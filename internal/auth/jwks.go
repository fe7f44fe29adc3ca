package auth

import (
	"context"
	"crypto"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"sync"
	"time"

	"github.com/vaultgraph/vaultd/internal/vaultobserve"
)

// ErrKeyNotFound is returned when the JWKS document holds no key for the
// requested kid, even after a refresh.
var ErrKeyNotFound = errors.New("jwks: key not found")

// refreshCooldown bounds how often an unknown kid can force a re-fetch, so
// a flood of tokens with bogus kids cannot hammer the issuer.
const refreshCooldown = 10 * time.Second

// JWKSCache holds the issuer's RSA verification keys, re-fetching the JWKS
// document when the TTL lapses or an unknown kid is requested. A failed
// refresh keeps serving the previously fetched keys.
type JWKSCache struct {
	url    string
	ttl    time.Duration
	client *http.Client

	mu          sync.Mutex
	keys        map[string]*rsa.PublicKey
	fetchedAt   time.Time
	lastAttempt time.Time
}

func NewJWKSCache(jwksURL string, ttl time.Duration) *JWKSCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &JWKSCache{
		url:    jwksURL,
		ttl:    ttl,
		client: &http.Client{Timeout: 5 * time.Second},
		keys:   make(map[string]*rsa.PublicKey),
	}
}

// GetKey returns the verification key for kid. A stale cache or a cache
// miss triggers a synchronous refresh, rate-limited by refreshCooldown.
func (j *JWKSCache) GetKey(kid string) (crypto.PublicKey, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if k, ok := j.keys[kid]; ok && time.Since(j.fetchedAt) <= j.ttl {
		return k, nil
	}
	if time.Since(j.lastAttempt) >= refreshCooldown {
		j.lastAttempt = time.Now()
		if err := j.refreshLocked(); err != nil {
			vaultobserve.Logf("jwks", "refresh failed, serving cached keys: %v", err)
		}
	}
	if k, ok := j.keys[kid]; ok {
		return k, nil
	}
	return nil, ErrKeyNotFound
}

// Refresh forces a reload of the JWKS document.
func (j *JWKSCache) Refresh() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.lastAttempt = time.Now()
	return j.refreshLocked()
}

func (j *JWKSCache) refreshLocked() error {
	if j.url == "" {
		return errors.New("jwks: url empty")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, j.url, nil)
	if err != nil {
		return fmt.Errorf("jwks: build request: %w", err)
	}
	req.Header.Set("User-Agent", "vaultd-jwks/1.0")

	resp, err := j.client.Do(req)
	if err != nil {
		return fmt.Errorf("jwks: fetch: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("jwks: fetch returned %s", resp.Status)
	}

	var doc struct {
		Keys []struct {
			Kty string `json:"kty"`
			Kid string `json:"kid"`
			N   string `json:"n"`
			E   string `json:"e"`
		} `json:"keys"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return fmt.Errorf("jwks: decode document: %w", err)
	}

	keys := make(map[string]*rsa.PublicKey, len(doc.Keys))
	for _, k := range doc.Keys {
		if k.Kty != "RSA" || k.Kid == "" {
			continue
		}
		pub, err := rsaKeyFromJWK(k.N, k.E)
		if err != nil {
			vaultobserve.Logf("jwks", "skipping kid=%s: %v", k.Kid, err)
			continue
		}
		keys[k.Kid] = pub
	}
	if len(keys) == 0 {
		return errors.New("jwks: document held no usable RSA keys")
	}

	j.keys = keys
	j.fetchedAt = time.Now().UTC()
	vaultobserve.Logf("jwks", "loaded %d keys from %s", len(keys), j.url)
	return nil
}

func rsaKeyFromJWK(n64, e64 string) (*rsa.PublicKey, error) {
	nBytes, err := base64.RawURLEncoding.DecodeString(n64)
	if err != nil {
		return nil, fmt.Errorf("modulus: %w", err)
	}
	eBytes, err := base64.RawURLEncoding.DecodeString(e64)
	if err != nil {
		return nil, fmt.Errorf("exponent: %w", err)
	}
	e := 0
	for _, b := range eBytes {
		e = e<<8 + int(b)
	}
	if e == 0 {
		return nil, errors.New("exponent is zero")
	}
	return &rsa.PublicKey{N: new(big.Int).SetBytes(nBytes), E: e}, nil
}
