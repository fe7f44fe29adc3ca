package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	keys := []string{
		"VAULTD_LISTEN", "VAULTD_DATABASE", "DATABASE_URL", "VAULTD_JWKS",
		"VAULTD_IPFS", "VAULTD_STATIC_USER", "VAULTD_STATIC_SYSTEM",
		"VAULTD_INSECURE_AUTH_STUB", "VAULTD_OBJECT_STORE_BACKEND",
		"VAULTD_S3_BUCKET", "VAULTD_KAFKA_BROKERS",
	}
	for _, k := range keys {
		t.Setenv(k, "")
	}
}

func TestLoadRequiresDatabaseURL(t *testing.T) {
	clearEnv(t)
	_, err := Load()
	require.Error(t, err)
}

func TestLoadAppliesDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("VAULTD_DATABASE", "postgres://localhost/vaultd")
	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, defaultAddr, cfg.Addr)
	require.Equal(t, "ipfs", cfg.ObjectStoreBackend)
}

func TestLoadS3BackendRequiresBucket(t *testing.T) {
	clearEnv(t)
	t.Setenv("VAULTD_DATABASE", "postgres://localhost/vaultd")
	t.Setenv("VAULTD_OBJECT_STORE_BACKEND", "s3")
	_, err := Load()
	require.Error(t, err)

	t.Setenv("VAULTD_S3_BUCKET", "vault-bucket")
	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "vault-bucket", cfg.S3Bucket)
}

func TestLoadParsesStaticPairsAndBrokers(t *testing.T) {
	clearEnv(t)
	t.Setenv("VAULTD_DATABASE", "postgres://localhost/vaultd")
	t.Setenv("VAULTD_STATIC_USER", "tok:6ba7b810-9dad-11d1-80b4-00c04fd430c8")
	t.Setenv("VAULTD_KAFKA_BROKERS", "broker-a:9092, broker-b:9092")

	cfg, err := Load()
	require.NoError(t, err)
	require.Len(t, cfg.StaticUsers, 1)
	require.Equal(t, []string{"broker-a:9092", "broker-b:9092"}, cfg.KafkaBrokers)
}
