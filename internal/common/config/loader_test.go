package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleConfig = `
app:
  name: registration-workers
camunda:
  broker_address: localhost:26500
database:
  postgres:
    host: localhost
    port: 5432
    database: tourism
    user: ${TEST_DB_USER}
  redis:
    address: localhost:6379
workflow:
  serial_seed: 500
  district_codes:
    shimla: SML
    kullu: KLU
workers:
  create-application-record:
    enabled: true
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadFromFile_ExpandsEnvAndAppliesDefaults(t *testing.T) {
	t.Setenv("TEST_DB_USER", "registrar")

	cfg, err := LoadFromFile(writeConfig(t, sampleConfig))
	require.NoError(t, err)

	assert.Equal(t, "registrar", cfg.Database.Postgres.User)
	assert.Equal(t, int64(500), cfg.Workflow.SerialSeed)
	assert.Equal(t, int64(1), cfg.Workflow.CertificateSerialSeed)
	assert.Equal(t, 5, cfg.Workflow.AllocationMaxAttempts)
	assert.Equal(t, 5, cfg.Workflow.MinPhotos)
	assert.Equal(t, 3, cfg.Workflow.CertificateValidity)
	assert.Equal(t, "SML", cfg.Workflow.DistrictCodes["shimla"])
	assert.Equal(t, "disable", cfg.Database.Postgres.SSLMode)
	assert.Equal(t, "applications", cfg.Search.Index)
	assert.Equal(t, "certificates", cfg.Archive.Prefix)

	wc := cfg.Workers["create-application-record"]
	assert.True(t, wc.Enabled)
	assert.Equal(t, 5, wc.MaxJobsActive)
	assert.Equal(t, 30000, wc.Timeout)
	assert.Equal(t, 3, wc.MaxRetries)
}

func TestLoadFromFile_MissingBroker(t *testing.T) {
	_, err := LoadFromFile(writeConfig(t, `
database:
  postgres:
    host: localhost
    database: tourism
    user: x
  redis:
    address: localhost:6379
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "camunda.broker_address is required")
}

func TestLoadFromFile_SearchRequiresElasticsearch(t *testing.T) {
	_, err := LoadFromFile(writeConfig(t, sampleConfig+`
search:
  enabled: true
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "elasticsearch")
}

func TestLoadFromFile_ArchiveRequiresBucket(t *testing.T) {
	_, err := LoadFromFile(writeConfig(t, sampleConfig+`
archive:
  enabled: true
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "archive.bucket")
}

func TestGetWorkerConfig_Fallback(t *testing.T) {
	cfg := &Config{Workers: map[string]WorkerConfig{}}
	wc := GetWorkerConfig(cfg, "unknown")
	assert.True(t, wc.Enabled)
	assert.Equal(t, 5, wc.MaxJobsActive)
	assert.True(t, IsWorkerEnabled(cfg, "unknown"))
}
