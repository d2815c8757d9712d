package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/nfse-emissor/pkg/config"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, "nfse-emissor", cfg.App.Name)
	assert.Equal(t, 60*time.Second, cfg.NFSe.Timeout)
	assert.Equal(t, "sha1", cfg.NFSe.Digest)
	assert.False(t, cfg.NFSe.InsecureSkipVerify)
	assert.Equal(t, "3550308", cfg.NFSe.FallbackMunicipalCode)
	assert.False(t, cfg.Aggregator.Enabled())
	assert.Equal(t, "db", cfg.Cert.Store)
	assert.Equal(t, time.Hour, cfg.JWT.Expiration)
}

func TestLoad_Env(t *testing.T) {
	t.Setenv("NFSE_TIMEOUT", "90")
	t.Setenv("NFSE_INSECURE_SKIP_VERIFY", "true")
	t.Setenv("NFSE_SIGNATURE_DIGEST", "sha256")
	t.Setenv("AGGREGATOR_BASE_URL", "https://adn.example/api")
	t.Setenv("AGGREGATOR_SCOPES", "dps.write, dps.read")
	t.Setenv("JWT_EXPIRATION", "15m")
	t.Setenv("DB_PORT", "6543")
	t.Setenv("CERT_STORE", "file")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, 90*time.Second, cfg.NFSe.Timeout)
	assert.True(t, cfg.NFSe.InsecureSkipVerify)
	assert.Equal(t, "sha256", cfg.NFSe.Digest)
	assert.True(t, cfg.Aggregator.Enabled())
	assert.Equal(t, []string{"dps.write", "dps.read"}, cfg.Aggregator.Scopes)
	assert.Equal(t, 15*time.Minute, cfg.JWT.Expiration)
	assert.Equal(t, 6543, cfg.DB.Port)
	assert.Equal(t, "file", cfg.Cert.Store)
}

func TestLoad_CertStoreInvalido(t *testing.T) {
	t.Setenv("CERT_STORE", "s3")
	_, err := config.Load()
	assert.Error(t, err)
}

func TestDBConfig_DSN(t *testing.T) {
	c := config.DBConfig{Host: "db", Port: 5432, User: "nfse", Password: "p@ss:w/rd", DBName: "nfse", SSLMode: "disable"}
	assert.Equal(t, "postgres://nfse:p%40ss%3Aw%2Frd@db:5432/nfse?sslmode=disable", c.DSN())

	c.DatabaseURL = "postgres://x@y/z"
	assert.Equal(t, "postgres://x@y/z", c.ConnectionString())
}
