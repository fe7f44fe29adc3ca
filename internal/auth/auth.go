// Package auth resolves a bearer token carried on an inbound request to
// an authenticated account UUID.
package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ErrUnauthenticated is returned when no recognized credential resolves
// the request to an account.
var ErrUnauthenticated = errors.New("auth: unauthenticated")

// Config configures a Resolver. StaticUsers and StaticSystem implement
// the token:uuid bootstrap/test bypass; InsecureAuthStub treats the
// bearer token itself as a bare account UUID (test only); JWKS enables
// verification of Kernel-signed JWTs when non-empty.
type Config struct {
	StaticUsers      map[string]uuid.UUID
	StaticSystem     map[string]uuid.UUID
	InsecureAuthStub bool
	JWKS             *JWKSCache
}

// Resolver extracts and verifies the bearer token from a request.
type Resolver struct {
	cfg Config
}

func NewResolver(cfg Config) *Resolver {
	return &Resolver{cfg: cfg}
}

// Resolve returns the authenticated account UUID for r, or
// ErrUnauthenticated if no configured mechanism accepts the request's
// Authorization header.
func (res *Resolver) Resolve(r *http.Request) (uuid.UUID, error) {
	token, ok := bearerToken(r)
	if !ok {
		return uuid.UUID{}, ErrUnauthenticated
	}

	if account, ok := res.cfg.StaticUsers[token]; ok {
		return account, nil
	}
	if account, ok := res.cfg.StaticSystem[token]; ok {
		return account, nil
	}
	if res.cfg.InsecureAuthStub {
		if account, err := uuid.Parse(token); err == nil {
			return account, nil
		}
	}
	if res.cfg.JWKS != nil {
		if account, err := res.resolveJWT(token); err == nil {
			return account, nil
		}
	}
	return uuid.UUID{}, ErrUnauthenticated
}

func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(h, prefix) {
		return "", false
	}
	token := strings.TrimPrefix(h, prefix)
	if token == "" {
		return "", false
	}
	return token, true
}

func (res *Resolver) resolveJWT(tokenStr string) (uuid.UUID, error) {
	token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (interface{}, error) {
		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			return nil, fmt.Errorf("auth: token has no kid")
		}
		return res.cfg.JWKS.GetKey(kid)
	}, jwt.WithValidMethods([]string{"RS256", "RS384", "RS512"}))
	if err != nil {
		return uuid.UUID{}, fmt.Errorf("auth: token parse: %w", err)
	}
	if !token.Valid {
		return uuid.UUID{}, fmt.Errorf("auth: token invalid")
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return uuid.UUID{}, fmt.Errorf("auth: invalid claims")
	}
	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return uuid.UUID{}, fmt.Errorf("auth: missing subject claim")
	}
	account, err := uuid.Parse(sub)
	if err != nil {
		return uuid.UUID{}, fmt.Errorf("auth: subject claim is not a uuid: %w", err)
	}
	return account, nil
}

// ParseStaticPairs parses a comma-separated list of "token:uuid" pairs,
// the wire format for the static_user/static_system configuration
// options.
func ParseStaticPairs(s string) (map[string]uuid.UUID, error) {
	out := make(map[string]uuid.UUID)
	if strings.TrimSpace(s) == "" {
		return out, nil
	}
	for _, pair := range strings.Split(s, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		parts := strings.SplitN(pair, ":", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("auth: malformed static pair %q", pair)
		}
		account, err := uuid.Parse(parts[1])
		if err != nil {
			return nil, fmt.Errorf("auth: malformed static pair %q: %w", pair, err)
		}
		out[parts[0]] = account
	}
	return out, nil
}
