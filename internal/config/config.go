// Package config loads ragline's configuration from a .env file (local
// dev convenience, mirroring the vasic-digital-SuperAgent pack's use of
// joho/godotenv) and then the process environment, which always wins.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config is every recognized option from spec.md §6 plus the ambient
// knobs (listen address, timeouts, retry budgets, log level) a
// production Go service needs.
type Config struct {
	// HTTP surface
	ListenAddr string
	LogLevel   string

	// Remote models
	Embedder ModelCard
	LLM      ModelCard
	Reranker ModelCard

	// Chunker
	Chunker ChunkerConfig

	// Vector store
	VectorBaseURL string
	VectorCollection string

	// Graph store
	GraphEnabled bool
	Neo4jURI     string
	Neo4jUser    string
	Neo4jPass    string

	// Queue / pub-sub
	RedisAddr             string
	RedisPassword         string
	RedisDB               int
	QueueName             string
	ProgressChannel       string
	ProgressSnapshotTTL   time.Duration

	// Meta store
	MetaDBPath string

	// Multi-tenancy
	Tenants map[string]string // bearer token -> tenant_id

	// Filesystem
	DataDir string

	// Worker
	WorkerConcurrency int

	// Remote-call behavior
	CallTimeout   time.Duration
	RetryAttempts int

	// Admin (session-gated; out of scope to implement auth, hooks only)
	AdminUser string
	AdminPass string
}

// Load reads .env (if present) then the environment, applying the
// defaults a fresh deployment would want.
func Load() (*Config, error) {
	_ = godotenv.Load() // local dev convenience; ignored if absent

	cfg := &Config{
		ListenAddr: getEnv("LISTEN_ADDR", ":8080"),
		LogLevel:   getEnv("LOG_LEVEL", "info"),

		Embedder: ModelCard{
			ID:        getEnv("EMBEDDINGS_MODEL", "text-embedding-3-small"),
			BaseURL:   getEnv("EMBEDDINGS_BASE_URL", "http://localhost:11434/v1"),
			Dimension: getEnvInt("EMBEDDINGS_DIMENSION", 768),
		},
		LLM: ModelCard{
			ID:      getEnv("LLM_MODEL", "llama3.1"),
			BaseURL: getEnv("LLM_BASE_URL", "http://localhost:11434/v1"),
		},
		Reranker: ModelCard{
			ID:      getEnv("RERANKER_MODEL", "cross-encoder/ms-marco-MiniLM-L-6-v2"),
			BaseURL: getEnv("RERANKER_BASE_URL", ""),
		},

		Chunker: ChunkerConfig{
			WindowTokens:  getEnvInt("CHUNKER_WINDOW_TOKENS", 1800),
			OverlapTokens: getEnvInt("CHUNKER_OVERLAP_TOKENS", 200),
		},

		VectorBaseURL:    getEnv("WEAVIATE_URL", "http://localhost:8081"),
		VectorCollection: getEnv("WEAVIATE_COLLECTION", "RaglineChunk"),

		GraphEnabled: getEnvBool("GRAPH_ENABLED", true),
		Neo4jURI:     getEnv("NEO4J_URI", "bolt://localhost:7687"),
		Neo4jUser:    getEnv("NEO4J_USER", "neo4j"),
		Neo4jPass:    getEnv("NEO4J_PASSWORD", ""),

		RedisAddr:           getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:       getEnv("REDIS_PASSWORD", ""),
		RedisDB:             getEnvInt("REDIS_DB", 0),
		QueueName:           getEnv("REDIS_QUEUE", "ragline:ingest:jobs"),
		ProgressChannel:     getEnv("REDIS_PROGRESS_CHANNEL", "ragline:ingest:progress"),
		ProgressSnapshotTTL: time.Duration(getEnvInt("PROGRESS_SNAPSHOT_TTL_SECONDS", 3600)) * time.Second,

		MetaDBPath: getEnv("RAG_META_DB", "./ragline-meta.db"),

		DataDir: getEnv("RAG_DATA_DIR", "./data"),

		WorkerConcurrency: getEnvInt("WORKER_CONCURRENCY", 4),

		CallTimeout:   time.Duration(getEnvInt("REMOTE_CALL_TIMEOUT_SECONDS", 30)) * time.Second,
		RetryAttempts: getEnvInt("REMOTE_RETRY_ATTEMPTS", 3),

		AdminUser: getEnv("ADMIN_USER", ""),
		AdminPass: getEnv("ADMIN_PASSWORD", ""),
	}

	tenants, err := loadTenants(getEnv("RAG_TENANTS_JSON", ""))
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	cfg.Tenants = tenants

	if cfg.WorkerConcurrency < 1 || cfg.WorkerConcurrency > 32 {
		return nil, fmt.Errorf("config: WORKER_CONCURRENCY must be in [1,32], got %d", cfg.WorkerConcurrency)
	}

	return cfg, nil
}

// ResolveTenant maps a bearer token to a tenant_id, per spec.md §6's
// "token → tenant_id resolution via a static configuration map".
func (c *Config) ResolveTenant(token string) (string, bool) {
	tenantID, ok := c.Tenants[token]
	return tenantID, ok
}

func loadTenants(raw string) (map[string]string, error) {
	if raw == "" {
		return map[string]string{}, nil
	}
	var m map[string]string
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return nil, fmt.Errorf("RAG_TENANTS_JSON: %w", err)
	}
	return m, nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func getEnvBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}
