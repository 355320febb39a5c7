package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoad_RequiresDatabaseDSN(t *testing.T) {
	os.Clearenv()
	t.Setenv("EMBEDDING_BASE_URL", "http://localhost:9000")
	_, err := Load()
	require.Error(t, err)
}

func TestLoad_Defaults(t *testing.T) {
	os.Clearenv()
	t.Setenv("DATABASE_DSN", "postgres://localhost/kb")
	t.Setenv("EMBEDDING_BASE_URL", "http://localhost:9000")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, 20, cfg.Embedding.BatchSize)
	require.Equal(t, 1024, cfg.Embedding.Dimensions)
	require.Equal(t, "/api/embed", cfg.Embedding.Path)
	require.Equal(t, 4, cfg.Worker.Concurrency)
	require.Equal(t, "kb", cfg.Queue.Prefix)
}

func TestLoad_EnvOverrides(t *testing.T) {
	os.Clearenv()
	t.Setenv("DATABASE_DSN", "postgres://localhost/kb")
	t.Setenv("EMBEDDING_BASE_URL", "http://localhost:9000")
	t.Setenv("EMBEDDING_BATCH_SIZE", "5")
	t.Setenv("WORKER_CONCURRENCY", "16")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, 5, cfg.Embedding.BatchSize)
	require.Equal(t, 16, cfg.Worker.Concurrency)
}
