package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "gemini", cfg.LLM.Provider)
	assert.Equal(t, "gemini-2.5-flash", cfg.LLM.Model)
	assert.Equal(t, 5, cfg.Retry.MaxAttempts)
	assert.Equal(t, time.Second, cfg.Retry.BaseDelay)
	assert.Equal(t, "sqlite", cfg.Storage.Driver)
	assert.Equal(t, 10, cfg.History.Capacity)
	assert.Equal(t, "qq.com", cfg.Discovery.HostSuffix)
	assert.Equal(t, 2*time.Hour, cfg.Session.TTL)
}

func TestLoadFileAndEnv(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
llm:
  provider: openai
  apiKey: from-file
retry:
  maxAttempts: 3
  baseDelay: 500ms
storage:
  driver: postgres
database:
  host: db
  user: app
  password: secret
  name: adguard
auth:
  keys:
    k1: acme
`)
	t.Setenv("ADGUARD_LLM_API_KEY", "from-env")
	t.Setenv("ADGUARD_DB_PASSWORD", "p@ss")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "gpt-4o-mini", cfg.LLM.Model)
	assert.Equal(t, "from-env", cfg.LLM.APIKey)
	assert.Equal(t, 3, cfg.Retry.MaxAttempts)
	assert.Equal(t, 500*time.Millisecond, cfg.Retry.BaseDelay)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, "acme", cfg.Auth.Keys["k1"])
	assert.Equal(t, "postgres://app:p%40ss@db:5432/adguard?sslmode=disable", cfg.PostgresDSN())
}

func TestValidate(t *testing.T) {
	_, err := Load(writeConfig(t, "storage:\n  driver: mongo\n"))
	assert.ErrorContains(t, err, "storage.driver")

	_, err = Load(writeConfig(t, "llm:\n  provider: claude\n"))
	assert.ErrorContains(t, err, "llm.provider")

	_, err = Load(writeConfig(t, "minio:\n  enabled: true\n"))
	assert.ErrorContains(t, err, "minio.endpoint")
}

func TestMySQLDSN(t *testing.T) {
	var cfg Config
	cfg.Database.User = "root"
	cfg.Database.Password = "pw"
	cfg.Database.Host = "localhost"
	cfg.Database.Port = 3306
	cfg.Database.Name = "adguard"
	assert.Equal(t, "root:pw@tcp(localhost:3306)/adguard?parseTime=true&charset=utf8mb4&loc=UTC", cfg.MySQLDSN())
}
