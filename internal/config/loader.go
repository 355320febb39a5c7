package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	yaml "gopkg.in/yaml.v3"
)

// Load reads configuration from environment variables (optionally overridden
// by a .env file), applies defaults, then overlays config.yaml if present at
// the path named by CONFIG_FILE (defaults to "config.yaml" when that file
// exists in the working directory).
func Load() (Config, error) {
	_ = godotenv.Overload()

	cfg := Config{
		LogLevel: firstNonEmpty(strings.TrimSpace(os.Getenv("LOG_LEVEL")), "info"),
		Database: DatabaseConfig{
			DSN:             strings.TrimSpace(os.Getenv("DATABASE_DSN")),
			MaxConns:        int32(envInt("DATABASE_MAX_CONNS", 8)),
			MaxConnLifetime: envDuration("DATABASE_MAX_CONN_LIFETIME", time.Hour),
			MaxConnIdleTime: envDuration("DATABASE_MAX_CONN_IDLE_TIME", 5*time.Minute),
		},
		ObjectStore: ObjectStoreConfig{
			Bucket:          strings.TrimSpace(os.Getenv("OBJECT_STORE_BUCKET")),
			Region:          firstNonEmpty(strings.TrimSpace(os.Getenv("OBJECT_STORE_REGION")), "us-east-1"),
			Endpoint:        strings.TrimSpace(os.Getenv("OBJECT_STORE_ENDPOINT")),
			AccessKeyID:     strings.TrimSpace(os.Getenv("OBJECT_STORE_ACCESS_KEY_ID")),
			SecretAccessKey: strings.TrimSpace(os.Getenv("OBJECT_STORE_SECRET_ACCESS_KEY")),
			UsePathStyle:    envBool("OBJECT_STORE_USE_PATH_STYLE", false),
			KeyPrefix:       strings.TrimSpace(os.Getenv("OBJECT_STORE_KEY_PREFIX")),
		},
		Queue: QueueConfig{
			Addr:     firstNonEmpty(strings.TrimSpace(os.Getenv("QUEUE_REDIS_ADDR")), "localhost:6379"),
			Password: strings.TrimSpace(os.Getenv("QUEUE_REDIS_PASSWORD")),
			DB:       envInt("QUEUE_REDIS_DB", 0),
			Prefix:   firstNonEmpty(strings.TrimSpace(os.Getenv("QUEUE_PREFIX")), "kb"),
		},
		Embedding: EmbeddingConfig{
			BaseURL:    strings.TrimSpace(os.Getenv("EMBEDDING_BASE_URL")),
			Path:       firstNonEmpty(strings.TrimSpace(os.Getenv("EMBEDDING_PATH")), "/api/embed"),
			Model:      strings.TrimSpace(os.Getenv("EMBEDDING_MODEL")),
			APIHeader:  firstNonEmpty(strings.TrimSpace(os.Getenv("EMBEDDING_API_HEADER")), "Authorization"),
			APIKey:     strings.TrimSpace(os.Getenv("EMBEDDING_API_KEY")),
			Dimensions: envInt("EMBEDDING_DIMENSIONS", 1024),
			BatchSize:  envInt("EMBEDDING_BATCH_SIZE", 20),
			Timeout:    envDuration("EMBEDDING_TIMEOUT", 30*time.Second),
			MaxRetries: envInt("EMBEDDING_MAX_RETRIES", 3),
		},
		Chunk: ChunkConfig{
			TargetTokens:  envInt("CHUNK_TARGET_TOKENS", 400),
			OverlapTokens: envInt("CHUNK_OVERLAP_TOKENS", 40),
			MaxTokens:     envInt("CHUNK_MAX_TOKENS", 600),
		},
		Worker: WorkerConfig{
			Concurrency:     envInt("WORKER_CONCURRENCY", 4),
			LeaseDuration:   envDuration("WORKER_LEASE_DURATION", 30*time.Second),
			ShutdownTimeout: envDuration("WORKER_SHUTDOWN_TIMEOUT", 20*time.Second),
		},
	}

	yamlPath := firstNonEmpty(strings.TrimSpace(os.Getenv("CONFIG_FILE")), "config.yaml")
	if data, err := os.ReadFile(yamlPath); err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", yamlPath, err)
		}
		log.Info().Str("path", yamlPath).Msg("config_yaml_overlay_applied")
	}

	if cfg.Database.DSN == "" {
		return Config{}, fmt.Errorf("config: DATABASE_DSN is required")
	}
	if cfg.Embedding.BaseURL == "" {
		return Config{}, fmt.Errorf("config: EMBEDDING_BASE_URL is required")
	}

	return cfg, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func envInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return strings.EqualFold(v, "true") || v == "1" || strings.EqualFold(v, "yes")
}

func envDuration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
