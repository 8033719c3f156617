package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearRaglineEnv(t *testing.T) {
	t.Helper()
	keys := []string{
		"LISTEN_ADDR", "LOG_LEVEL", "EMBEDDINGS_MODEL", "EMBEDDINGS_BASE_URL",
		"EMBEDDINGS_DIMENSION", "LLM_MODEL", "LLM_BASE_URL", "RERANKER_MODEL",
		"RERANKER_BASE_URL", "CHUNKER_WINDOW_TOKENS", "CHUNKER_OVERLAP_TOKENS",
		"WEAVIATE_URL", "WEAVIATE_COLLECTION", "GRAPH_ENABLED", "NEO4J_URI",
		"NEO4J_USER", "NEO4J_PASSWORD", "REDIS_ADDR", "REDIS_PASSWORD", "REDIS_DB",
		"REDIS_QUEUE", "REDIS_PROGRESS_CHANNEL", "PROGRESS_SNAPSHOT_TTL_SECONDS",
		"RAG_META_DB", "RAG_DATA_DIR", "WORKER_CONCURRENCY", "REMOTE_CALL_TIMEOUT_SECONDS",
		"REMOTE_RETRY_ATTEMPTS", "ADMIN_USER", "ADMIN_PASSWORD", "RAG_TENANTS_JSON",
	}
	for _, k := range keys {
		orig, had := os.LookupEnv(k)
		os.Unsetenv(k)
		t.Cleanup(func() {
			if had {
				os.Setenv(k, orig)
			}
		})
	}
}

func TestLoadDefaults(t *testing.T) {
	clearRaglineEnv(t)
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.ListenAddr)
	assert.Equal(t, 4, cfg.WorkerConcurrency)
	assert.Equal(t, 768, cfg.Embedder.Dimension)
	assert.True(t, cfg.GraphEnabled)
	assert.Empty(t, cfg.Tenants)
}

func TestLoadWorkerConcurrencyOutOfRange(t *testing.T) {
	clearRaglineEnv(t)
	os.Setenv("WORKER_CONCURRENCY", "64")
	_, err := Load()
	require.Error(t, err)
}

func TestLoadTenantsJSON(t *testing.T) {
	clearRaglineEnv(t)
	os.Setenv("RAG_TENANTS_JSON", `{"secret-token":"tenant-a"}`)
	cfg, err := Load()
	require.NoError(t, err)

	tenantID, ok := cfg.ResolveTenant("secret-token")
	require.True(t, ok)
	assert.Equal(t, "tenant-a", tenantID)

	_, ok = cfg.ResolveTenant("unknown")
	assert.False(t, ok)
}

func TestLoadInvalidTenantsJSON(t *testing.T) {
	clearRaglineEnv(t)
	os.Setenv("RAG_TENANTS_JSON", `not json`)
	_, err := Load()
	require.Error(t, err)
}

func TestLoadOverridesFromEnv(t *testing.T) {
	clearRaglineEnv(t)
	os.Setenv("LISTEN_ADDR", ":9090")
	os.Setenv("GRAPH_ENABLED", "false")
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.ListenAddr)
	assert.False(t, cfg.GraphEnabled)
}
