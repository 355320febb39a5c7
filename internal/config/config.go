// Package config assembles runtime configuration for the campaign knowledge
// service from environment variables, with an optional .env overlay and an
// optional YAML overlay for values awkward to express as env vars. There is
// no package-level global: callers call Load once at process start-up and
// pass the result down through constructors.
package config

import "time"

// DatabaseConfig points at the relational store backing the chunk store and
// lexical/vector search.
type DatabaseConfig struct {
	DSN             string `yaml:"dsn"`
	MaxConns        int32  `yaml:"max_conns"`
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// ObjectStoreConfig configures the S3-compatible blob facade.
type ObjectStoreConfig struct {
	Bucket          string `yaml:"bucket"`
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint,omitempty"`
	AccessKeyID     string `yaml:"access_key_id,omitempty"`
	SecretAccessKey string `yaml:"secret_access_key,omitempty"`
	UsePathStyle    bool   `yaml:"use_path_style,omitempty"`
	KeyPrefix       string `yaml:"key_prefix,omitempty"`
}

// QueueConfig points the job queue at its Redis transport.
type QueueConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password,omitempty"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

// EmbeddingConfig configures the outbound embedding endpoint.
type EmbeddingConfig struct {
	BaseURL    string        `yaml:"base_url"`
	Path       string        `yaml:"path"`
	Model      string        `yaml:"model"`
	APIHeader  string        `yaml:"api_header,omitempty"`
	APIKey     string        `yaml:"api_key,omitempty"`
	Dimensions int           `yaml:"dimensions"`
	BatchSize  int           `yaml:"batch_size"`
	Timeout    time.Duration `yaml:"timeout"`
	MaxRetries int           `yaml:"max_retries"`
}

// ChunkConfig carries the chunker's defaults.
type ChunkConfig struct {
	TargetTokens  int `yaml:"target_tokens"`
	OverlapTokens int `yaml:"overlap_tokens"`
	MaxTokens     int `yaml:"max_tokens"`
}

// WorkerConfig bounds the worker pool's concurrency.
type WorkerConfig struct {
	Concurrency     int           `yaml:"concurrency"`
	LeaseDuration   time.Duration `yaml:"lease_duration"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// Config is the fully resolved, immutable runtime configuration. It is built
// once by Load and threaded through constructors; nothing reads environment
// variables again afterward.
type Config struct {
	LogLevel string `yaml:"log_level"`

	Database    DatabaseConfig    `yaml:"database"`
	ObjectStore ObjectStoreConfig `yaml:"object_store"`
	Queue       QueueConfig       `yaml:"queue"`
	Embedding   EmbeddingConfig   `yaml:"embedding"`
	Chunk       ChunkConfig       `yaml:"chunk"`
	Worker      WorkerConfig      `yaml:"worker"`
}
