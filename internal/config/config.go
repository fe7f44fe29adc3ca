// Package config loads the service's runtime settings from environment
// variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/vaultgraph/vaultd/internal/auth"
)

// Config captures runtime settings for the vault service.
type Config struct {
	Addr         string
	DatabaseURL  string
	JWKSURL      string
	IPFSEndpoint string

	StaticUsers      map[string]uuid.UUID
	StaticSystems    map[string]uuid.UUID
	InsecureAuthStub bool

	ObjectStoreBackend string
	S3Bucket           string

	KafkaBrokers []string
}

const (
	defaultAddr               = ":8443"
	defaultObjectStoreBackend = "ipfs"
)

// Load reads environment variables and returns a Config.
func Load() (Config, error) {
	staticUsers, err := auth.ParseStaticPairs(os.Getenv("VAULTD_STATIC_USER"))
	if err != nil {
		return Config{}, fmt.Errorf("config: static_user: %w", err)
	}
	staticSystems, err := auth.ParseStaticPairs(os.Getenv("VAULTD_STATIC_SYSTEM"))
	if err != nil {
		return Config{}, fmt.Errorf("config: static_system: %w", err)
	}

	cfg := Config{
		Addr:         getEnv("VAULTD_LISTEN", defaultAddr),
		DatabaseURL:  firstNonEmpty(os.Getenv("VAULTD_DATABASE"), os.Getenv("DATABASE_URL")),
		JWKSURL:      os.Getenv("VAULTD_JWKS"),
		IPFSEndpoint: os.Getenv("VAULTD_IPFS"),

		StaticUsers:      staticUsers,
		StaticSystems:    staticSystems,
		InsecureAuthStub: getBool("VAULTD_INSECURE_AUTH_STUB", false),

		ObjectStoreBackend: getEnv("VAULTD_OBJECT_STORE_BACKEND", defaultObjectStoreBackend),
		S3Bucket:           os.Getenv("VAULTD_S3_BUCKET"),

		KafkaBrokers: splitNonEmpty(os.Getenv("VAULTD_KAFKA_BROKERS")),
	}

	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("config: VAULTD_DATABASE or DATABASE_URL is required")
	}
	if cfg.ObjectStoreBackend != "ipfs" && cfg.ObjectStoreBackend != "s3" {
		return Config{}, fmt.Errorf("config: unknown object store backend %q", cfg.ObjectStoreBackend)
	}
	if cfg.ObjectStoreBackend == "s3" && cfg.S3Bucket == "" {
		return Config{}, fmt.Errorf("config: VAULTD_S3_BUCKET is required when backend is s3")
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		ok, err := strconv.ParseBool(v)
		if err == nil {
			return ok
		}
	}
	return fallback
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func splitNonEmpty(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
