package config

import (
	"context"
	"strings"
	"time"
)

// ListenerConfig holds the network/TLS settings for a single listener (main or management).
type ListenerConfig struct {
	Port              int
	EnablePlainText   bool
	EnableTLS         bool
	TLSCertFile       string
	TLSKeyFile        string
	ReadHeaderTimeout time.Duration
}

type contextKey struct{}

// WithContext returns a new context carrying the given Config.
func WithContext(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, contextKey{}, cfg)
}

// FromContext retrieves the Config from the context.
func FromContext(ctx context.Context) *Config {
	cfg, _ := ctx.Value(contextKey{}).(*Config)
	return cfg
}

const (
	ModeProd    = "prod"
	ModeTesting = "testing"
)

// Config holds all configuration for the chat service.
type Config struct {
	// Mode controls security behavior: "prod" (default) or "testing".
	// In testing mode bearer tokens that are not JWTs are trusted as user ids.
	Mode     string
	LogLevel string

	// Datastore backend type: "mongo", "postgres" or "memory".
	DatastoreType string
	DBURL         string
	// MongoDatabase overrides the database named in a Mongo DBURL.
	MongoDatabase string

	// Run datastore migrations on startup.
	DatastoreMigrateAtStart bool

	// DB pool
	DBMaxOpenConns int
	DBMaxIdleConns int

	// Fanout transport: "local", "nats", "redis", "kafka" or "none".
	FanoutType string
	// FanoutQueueSize bounds the dispatcher queue; zero publishes inline.
	FanoutQueueSize int

	// NATS
	NATSURL           string
	NATSSubjectPrefix string

	// Redis, shared by the redis fanout and the redis profile cache.
	RedisURL           string
	RedisChannelPrefix string

	// Kafka
	KafkaBrokers string // comma separated host:port list
	KafkaTopic   string

	// Media store type: "s3" or "none".
	MediaType string

	// S3
	S3Bucket           string
	S3Prefix           string
	S3ExternalEndpoint string
	S3UsePathStyle     bool

	// Upload limits.
	MaxUploadSize int64
	ThumbWidth    int

	// Directory backend for user profiles: "mongo", "postgres" or "static".
	DirectoryType string

	// Profile cache: "local", "redis" or "none".
	CacheType        string
	CacheTTL         time.Duration
	CacheMaxProfiles int64

	// OIDC
	OIDCIssuer       string
	OIDCDiscoveryURL string // Internal URL for OIDC discovery (when issuer URL is not reachable)

	// MetricsLabels is a comma-separated list of key=value pairs added as
	// constant labels to all Prometheus metrics. Values support ${VAR} expansion.
	MetricsLabels string

	// Server
	Listener           ListenerConfig
	ManagementListener ListenerConfig
	// ManagementListenerEnabled is true when --management-port was explicitly
	// provided. When false, management endpoints are served on the main port.
	ManagementListenerEnabled bool
	// ManagementAccessLog enables HTTP access logging for /health, /ready and /metrics.
	ManagementAccessLog bool
	CORSEnabled         bool
	CORSOrigins         string

	// Body size limit (bytes)
	MaxBodySize int64

	// Graceful shutdown drain timeout (seconds)
	DrainTimeout int

	// History paging.
	MessagePageSize    int
	MessageMaxPageSize int
	AroundRange        int
	SearchPageSize     int
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Mode:                    ModeProd,
		LogLevel:                "info",
		DatastoreType:           "mongo",
		DatastoreMigrateAtStart: true,
		DBMaxOpenConns:          25,
		DBMaxIdleConns:          5,
		FanoutType:              "local",
		FanoutQueueSize:         1024,
		NATSSubjectPrefix:       "agora",
		RedisChannelPrefix:      "agora",
		KafkaTopic:              "agora-events",
		MediaType:               "none",
		S3Prefix:                "agora",
		MaxUploadSize:           10 * 1024 * 1024, // 10 MB
		ThumbWidth:              320,
		DirectoryType:           "static",
		CacheType:               "local",
		CacheTTL:                10 * time.Minute,
		CacheMaxProfiles:        100_000,
		Listener: ListenerConfig{
			Port:              8080,
			EnablePlainText:   true,
			ReadHeaderTimeout: 5 * time.Second,
		},
		ManagementListener: ListenerConfig{
			EnablePlainText: true,
		},
		MaxBodySize:        60 * 1024 * 1024, // 5 chat images plus form overhead
		DrainTimeout:       30,
		MessagePageSize:    10,
		MessageMaxPageSize: 100,
		AroundRange:        10,
		SearchPageSize:     20,
	}
}

// KafkaBrokerList splits KafkaBrokers into addresses.
func (c *Config) KafkaBrokerList() []string {
	if c == nil {
		return nil
	}
	var out []string
	for _, part := range strings.Split(c.KafkaBrokers, ",") {
		if v := strings.TrimSpace(part); v != "" {
			out = append(out, v)
		}
	}
	return out
}
