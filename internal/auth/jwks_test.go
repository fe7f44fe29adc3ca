package auth

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func newJWKSServer(t *testing.T, kid string, pub *rsa.PublicKey) *httptest.Server {
	t.Helper()
	doc := map[string]interface{}{
		"keys": []map[string]string{{
			"kty": "RSA",
			"kid": kid,
			"n":   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
			"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
		}},
	}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(doc)
	}))
}

func TestJWKSCacheServesPublishedKey(t *testing.T) {
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	srv := newJWKSServer(t, "key-1", &priv.PublicKey)
	defer srv.Close()

	cache := NewJWKSCache(srv.URL, time.Minute)
	got, err := cache.GetKey("key-1")
	require.NoError(t, err)
	require.Equal(t, &priv.PublicKey, got)
}

func TestJWKSCacheUnknownKid(t *testing.T) {
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	srv := newJWKSServer(t, "key-1", &priv.PublicKey)
	defer srv.Close()

	cache := NewJWKSCache(srv.URL, time.Minute)
	_, err = cache.GetKey("no-such-kid")
	require.ErrorIs(t, err, ErrKeyNotFound)
}

func TestJWKSCacheKeepsKeysWhenRefreshFails(t *testing.T) {
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	srv := newJWKSServer(t, "key-1", &priv.PublicKey)
	cache := NewJWKSCache(srv.URL, time.Minute)
	require.NoError(t, cache.Refresh())
	srv.Close()

	// Force staleness so the next lookup attempts (and fails) a refresh.
	cache.mu.Lock()
	cache.fetchedAt = time.Time{}
	cache.lastAttempt = time.Time{}
	cache.mu.Unlock()

	got, err := cache.GetKey("key-1")
	require.NoError(t, err)
	require.Equal(t, &priv.PublicKey, got)
}

func TestResolveJWTAgainstJWKS(t *testing.T) {
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	srv := newJWKSServer(t, "key-1", &priv.PublicKey)
	defer srv.Close()

	account := uuid.New()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.MapClaims{
		"sub": account.String(),
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	token.Header["kid"] = "key-1"
	signed, err := token.SignedString(priv)
	require.NoError(t, err)

	resolver := NewResolver(Config{JWKS: NewJWKSCache(srv.URL, time.Minute)})
	got, err := resolver.Resolve(newRequestWithBearer(signed))
	require.NoError(t, err)
	require.Equal(t, account, got)
}

func TestResolveJWTRejectsWrongKey(t *testing.T) {
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	otherPriv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	srv := newJWKSServer(t, "key-1", &priv.PublicKey)
	defer srv.Close()

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.MapClaims{
		"sub": uuid.New().String(),
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	token.Header["kid"] = "key-1"
	signed, err := token.SignedString(otherPriv)
	require.NoError(t, err)

	resolver := NewResolver(Config{JWKS: NewJWKSCache(srv.URL, time.Minute)})
	_, err = resolver.Resolve(newRequestWithBearer(signed))
	require.ErrorIs(t, err, ErrUnauthenticated)
}
