package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.True(t, cfg.DQM.FailOnEmptySource)
	assert.Equal(t, 10, cfg.DQM.PrintBatchSize)
	assert.Equal(t, 1000, cfg.DQM.TableBatchSize)
	assert.Equal(t, "value", cfg.DQM.UnwrapField)
	assert.Equal(t, "sqlite", cfg.DQM.SourceBackend)
	assert.Equal(t, "0.0.0.0:8080", cfg.GetServerAddr())
}

func TestDecodeFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := []byte(`
server:
  port: 9090
dqm:
  version_id: ${DQM_TEST_VERSION}
  concurrency: 0
  source_backend: " Postgres "
  fail_on_empty_source: false
storage:
  postgres:
    host: db
    username: dqm
    password: secret
    database: warehouse
`)
	require.NoError(t, os.WriteFile(path, body, 0o644))
	t.Setenv("DQM_TEST_VERSION", "v1.2.3")

	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(path)
	require.NoError(t, v.ReadInConfig())

	cfg, err := Decode(v)
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "v1.2.3", cfg.DQM.VersionID)
	assert.Equal(t, 1, cfg.DQM.Concurrency)
	assert.Equal(t, "postgres", cfg.DQM.SourceBackend)
	assert.False(t, cfg.DQM.FailOnEmptySource)
	assert.Equal(t, "postgres://dqm:secret@db:5432/warehouse?sslmode=disable", cfg.Storage.Postgres.DSN())
}
