package storage

import "time"

// Config for storage backends
type Config struct {
	// PostgreSQL config
	PostgresURL         string
	PostgresMaxConns    int
	PostgresMinConns    int
	PostgresTimeout     time.Duration
	PostgresMaxLifetime time.Duration

	// S3 config, used for the invoice archive. An empty bucket disables archiving.
	S3Endpoint     string
	S3Region       string
	S3Bucket       string
	S3AccessKey    string
	S3SecretKey    string
	S3UsePathStyle bool

	// Redis config. An empty URL disables the usage cache.
	RedisURL        string
	RedisMaxRetries int
	RedisPoolSize   int
	UsageCacheTTL   time.Duration
}

// DefaultConfig returns sensible default configuration
func DefaultConfig() Config {
	return Config{
		PostgresMaxConns:    20,
		PostgresMinConns:    2,
		PostgresTimeout:     10 * time.Second,
		PostgresMaxLifetime: 30 * time.Minute,
		S3Region:            "us-east-1",
		RedisMaxRetries:     3,
		RedisPoolSize:       10,
		UsageCacheTTL:       5 * time.Minute,
	}
}

// ArchiveEnabled reports whether an invoice archive bucket is configured
func (c Config) ArchiveEnabled() bool {
	return c.S3Bucket != ""
}

// CacheEnabled reports whether a Redis URL is configured
func (c Config) CacheEnabled() bool {
	return c.RedisURL != ""
}
