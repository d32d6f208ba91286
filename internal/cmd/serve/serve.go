package serve

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/TruongKhoiNguyen/Agora-api/internal/config"
	registrycache "github.com/TruongKhoiNguyen/Agora-api/internal/registry/cache"
	registrydirectory "github.com/TruongKhoiNguyen/Agora-api/internal/registry/directory"
	registryfanout "github.com/TruongKhoiNguyen/Agora-api/internal/registry/fanout"
	registrymedia "github.com/TruongKhoiNguyen/Agora-api/internal/registry/media"
	registrystore "github.com/TruongKhoiNguyen/Agora-api/internal/registry/store"
	"github.com/gin-gonic/gin"
	"github.com/urfave/cli/v3"

	// Import all plugins to trigger init() registration
	_ "github.com/TruongKhoiNguyen/Agora-api/internal/plugin/cache/local"
	_ "github.com/TruongKhoiNguyen/Agora-api/internal/plugin/cache/noop"
	_ "github.com/TruongKhoiNguyen/Agora-api/internal/plugin/cache/redis"
	_ "github.com/TruongKhoiNguyen/Agora-api/internal/plugin/directory/mongo"
	_ "github.com/TruongKhoiNguyen/Agora-api/internal/plugin/directory/postgres"
	_ "github.com/TruongKhoiNguyen/Agora-api/internal/plugin/directory/static"
	_ "github.com/TruongKhoiNguyen/Agora-api/internal/plugin/fanout/kafka"
	_ "github.com/TruongKhoiNguyen/Agora-api/internal/plugin/fanout/local"
	_ "github.com/TruongKhoiNguyen/Agora-api/internal/plugin/fanout/nats"
	_ "github.com/TruongKhoiNguyen/Agora-api/internal/plugin/fanout/none"
	_ "github.com/TruongKhoiNguyen/Agora-api/internal/plugin/fanout/redis"
	_ "github.com/TruongKhoiNguyen/Agora-api/internal/plugin/media/none"
	_ "github.com/TruongKhoiNguyen/Agora-api/internal/plugin/media/s3"
	_ "github.com/TruongKhoiNguyen/Agora-api/internal/plugin/route/conversations"
	_ "github.com/TruongKhoiNguyen/Agora-api/internal/plugin/route/events"
	_ "github.com/TruongKhoiNguyen/Agora-api/internal/plugin/route/messages"
	_ "github.com/TruongKhoiNguyen/Agora-api/internal/plugin/route/system"
	_ "github.com/TruongKhoiNguyen/Agora-api/internal/plugin/store/memory"
	_ "github.com/TruongKhoiNguyen/Agora-api/internal/plugin/store/mongo"
	_ "github.com/TruongKhoiNguyen/Agora-api/internal/plugin/store/postgres"
)

// Command returns the serve sub-command.
func Command() *cli.Command {
	cfg := config.DefaultConfig()
	var readHeaderTimeoutSecs int = 5
	return &cli.Command{
		Name:  "serve",
		Usage: "Start the chat API server",
		Flags: flags(&cfg, &readHeaderTimeoutSecs),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if err := cfg.ApplyEnv(); err != nil {
				return err
			}
			if err := applyLogLevel(cfg.LogLevel); err != nil {
				return err
			}
			cfg.Listener.ReadHeaderTimeout = time.Duration(readHeaderTimeoutSecs) * time.Second
			cfg.ManagementListener.ReadHeaderTimeout = cfg.Listener.ReadHeaderTimeout
			cfg.ManagementListenerEnabled = cmd.IsSet("management-port")
			return run(config.WithContext(ctx, &cfg), cfg)
		},
	}
}

func applyLogLevel(level string) error {
	lvl, err := log.ParseLevel(level)
	if err != nil {
		return err
	}
	log.SetLevel(lvl)
	return nil
}

func flags(cfg *config.Config, readHeaderTimeoutSecs *int) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "mode",
			Sources:     cli.EnvVars("AGORA_MODE"),
			Destination: &cfg.Mode,
			Value:       cfg.Mode,
			Usage:       "Security mode (prod|testing); testing trusts plain bearer tokens as user ids",
		},
		&cli.StringFlag{
			Name:        "log-level",
			Sources:     cli.EnvVars("AGORA_LOG_LEVEL"),
			Destination: &cfg.LogLevel,
			Value:       cfg.LogLevel,
			Usage:       "Log level (debug|info|warn|error)",
		},

		// ── Server ────────────────────────────────────────────────
		&cli.StringFlag{
			Name:        "tls-cert-file",
			Category:    "Server:",
			Sources:     cli.EnvVars("AGORA_TLS_CERT_FILE"),
			Destination: &cfg.Listener.TLSCertFile,
			Usage:       "TLS certificate file for single-port TLS mode",
		},
		&cli.StringFlag{
			Name:        "tls-key-file",
			Category:    "Server:",
			Sources:     cli.EnvVars("AGORA_TLS_KEY_FILE"),
			Destination: &cfg.Listener.TLSKeyFile,
			Usage:       "TLS private key file for single-port TLS mode",
		},
		&cli.IntFlag{
			Name:        "read-header-timeout-seconds",
			Category:    "Server:",
			Sources:     cli.EnvVars("AGORA_READ_HEADER_TIMEOUT_SECONDS"),
			Destination: readHeaderTimeoutSecs,
			Value:       *readHeaderTimeoutSecs,
			Usage:       "HTTP read header timeout in seconds",
		},
		&cli.IntFlag{
			Name:        "drain-timeout-seconds",
			Category:    "Server:",
			Sources:     cli.EnvVars("AGORA_DRAIN_TIMEOUT_SECONDS"),
			Destination: &cfg.DrainTimeout,
			Value:       cfg.DrainTimeout,
			Usage:       "Graceful shutdown drain timeout in seconds",
		},
		&cli.BoolFlag{
			Name:        "management-access-log",
			Category:    "Server:",
			Sources:     cli.EnvVars("AGORA_MANAGEMENT_ACCESS_LOG"),
			Destination: &cfg.ManagementAccessLog,
			Usage:       "Enable HTTP access logging for management endpoints (/health, /ready, /metrics)",
		},
		&cli.BoolFlag{
			Name:        "cors",
			Category:    "Server:",
			Sources:     cli.EnvVars("AGORA_CORS_ENABLED"),
			Destination: &cfg.CORSEnabled,
			Usage:       "Enable CORS headers",
		},
		&cli.StringFlag{
			Name:        "cors-origins",
			Category:    "Server:",
			Sources:     cli.EnvVars("AGORA_CORS_ORIGINS"),
			Destination: &cfg.CORSOrigins,
			Usage:       "Comma-separated allowed origins; empty allows any",
		},

		// ── Network Listener ──────────────────────────────────────
		&cli.IntFlag{
			Name:        "port",
			Category:    "Network Listener:",
			Sources:     cli.EnvVars("AGORA_PORT", "PORT"),
			Destination: &cfg.Listener.Port,
			Value:       cfg.Listener.Port,
			Usage:       "HTTP server port",
		},
		&cli.BoolFlag{
			Name:        "plain-text",
			Category:    "Network Listener:",
			Sources:     cli.EnvVars("AGORA_PLAIN_TEXT"),
			Destination: &cfg.Listener.EnablePlainText,
			Value:       cfg.Listener.EnablePlainText,
			Usage:       "Enable plaintext HTTP/1.1 + h2c",
		},
		&cli.BoolFlag{
			Name:        "tls",
			Category:    "Network Listener:",
			Sources:     cli.EnvVars("AGORA_TLS"),
			Destination: &cfg.Listener.EnableTLS,
			Value:       cfg.Listener.EnableTLS,
			Usage:       "Enable TLS HTTP/1.1 + HTTP/2",
		},

		// ── Management Network Listener ───────────────────────────
		&cli.IntFlag{
			Name:        "management-port",
			Category:    "Management Network Listener:",
			Sources:     cli.EnvVars("AGORA_MANAGEMENT_PORT"),
			Destination: &cfg.ManagementListener.Port,
			Value:       cfg.ManagementListener.Port,
			Usage:       "Dedicated port for health and metrics (0 = OS-assigned random port); when unset, served on the main port",
		},
		&cli.BoolFlag{
			Name:        "management-plain-text",
			Category:    "Management Network Listener:",
			Sources:     cli.EnvVars("AGORA_MANAGEMENT_PLAIN_TEXT"),
			Destination: &cfg.ManagementListener.EnablePlainText,
			Value:       cfg.ManagementListener.EnablePlainText,
			Usage:       "Enable plaintext HTTP for management server",
		},
		&cli.BoolFlag{
			Name:        "management-tls",
			Category:    "Management Network Listener:",
			Sources:     cli.EnvVars("AGORA_MANAGEMENT_TLS"),
			Destination: &cfg.ManagementListener.EnableTLS,
			Value:       cfg.ManagementListener.EnableTLS,
			Usage:       "Enable TLS for management server",
		},

		// ── Database ───────────────────────────────────────────────
		&cli.StringFlag{
			Name:        "db-kind",
			Category:    "Database:",
			Sources:     cli.EnvVars("AGORA_DB_KIND"),
			Destination: &cfg.DatastoreType,
			Value:       cfg.DatastoreType,
			Usage:       "Backend store (" + strings.Join(registrystore.Names(), "|") + ")",
		},
		&cli.StringFlag{
			Name:        "db-url",
			Category:    "Database:",
			Sources:     cli.EnvVars("AGORA_DB_URL", "MONGODB_URI"),
			Destination: &cfg.DBURL,
			Usage:       "Database connection URL",
		},
		&cli.BoolFlag{
			Name:        "db-migrate-at-start",
			Category:    "Database:",
			Sources:     cli.EnvVars("AGORA_DB_MIGRATE_AT_START"),
			Destination: &cfg.DatastoreMigrateAtStart,
			Value:       cfg.DatastoreMigrateAtStart,
			Usage:       "Create tables and indexes on startup",
		},

		// ── Fanout ────────────────────────────────────────────────
		&cli.StringFlag{
			Name:        "fanout-kind",
			Category:    "Fanout:",
			Sources:     cli.EnvVars("AGORA_FANOUT_KIND"),
			Destination: &cfg.FanoutType,
			Value:       cfg.FanoutType,
			Usage:       "Event fanout bridge (" + strings.Join(registryfanout.Names(), "|") + ")",
		},
		&cli.IntFlag{
			Name:        "fanout-queue-size",
			Category:    "Fanout:",
			Sources:     cli.EnvVars("AGORA_FANOUT_QUEUE_SIZE"),
			Destination: &cfg.FanoutQueueSize,
			Value:       cfg.FanoutQueueSize,
			Usage:       "Dispatcher queue size; 0 publishes inline",
		},
		&cli.StringFlag{
			Name:        "nats-url",
			Category:    "Fanout:",
			Sources:     cli.EnvVars("AGORA_NATS_URL"),
			Destination: &cfg.NATSURL,
			Usage:       "NATS server URL",
		},
		&cli.StringFlag{
			Name:        "kafka-brokers",
			Category:    "Fanout:",
			Sources:     cli.EnvVars("AGORA_KAFKA_BROKERS"),
			Destination: &cfg.KafkaBrokers,
			Usage:       "Comma-separated Kafka broker addresses",
		},
		&cli.StringFlag{
			Name:        "kafka-topic",
			Category:    "Fanout:",
			Sources:     cli.EnvVars("AGORA_KAFKA_TOPIC"),
			Destination: &cfg.KafkaTopic,
			Value:       cfg.KafkaTopic,
			Usage:       "Kafka topic carrying events",
		},
		&cli.StringFlag{
			Name:        "redis-url",
			Category:    "Fanout:",
			Sources:     cli.EnvVars("AGORA_REDIS_URL"),
			Destination: &cfg.RedisURL,
			Usage:       "Redis connection URL, shared with the redis profile cache",
		},

		// ── Media ─────────────────────────────────────────────────
		&cli.StringFlag{
			Name:        "media-kind",
			Category:    "Media:",
			Sources:     cli.EnvVars("AGORA_MEDIA_KIND"),
			Destination: &cfg.MediaType,
			Value:       cfg.MediaType,
			Usage:       "Media store (" + strings.Join(registrymedia.Names(), "|") + ")",
		},
		&cli.StringFlag{
			Name:        "s3-bucket",
			Category:    "Media:",
			Sources:     cli.EnvVars("AGORA_S3_BUCKET"),
			Destination: &cfg.S3Bucket,
			Usage:       "S3 bucket for uploaded images",
		},
		&cli.StringFlag{
			Name:        "s3-prefix",
			Category:    "Media:",
			Sources:     cli.EnvVars("AGORA_S3_PREFIX"),
			Destination: &cfg.S3Prefix,
			Value:       cfg.S3Prefix,
			Usage:       "Key prefix for uploaded images",
		},
		&cli.StringFlag{
			Name:        "s3-external-endpoint",
			Category:    "Media:",
			Sources:     cli.EnvVars("AGORA_S3_EXTERNAL_ENDPOINT"),
			Destination: &cfg.S3ExternalEndpoint,
			Usage:       "Public base URL for uploaded objects (CDN or bucket endpoint)",
		},

		// ── Directory ─────────────────────────────────────────────
		&cli.StringFlag{
			Name:        "directory-kind",
			Category:    "Directory:",
			Sources:     cli.EnvVars("AGORA_DIRECTORY_KIND"),
			Destination: &cfg.DirectoryType,
			Value:       cfg.DirectoryType,
			Usage:       "User profile directory (" + strings.Join(registrydirectory.Names(), "|") + ")",
		},
		&cli.StringFlag{
			Name:        "cache-kind",
			Category:    "Directory:",
			Sources:     cli.EnvVars("AGORA_CACHE_KIND"),
			Destination: &cfg.CacheType,
			Value:       cfg.CacheType,
			Usage:       "Profile cache (" + strings.Join(registrycache.Names(), "|") + ")",
		},

		// ── Authorization ─────────────────────────────────────────
		&cli.StringFlag{
			Name:        "oidc-issuer",
			Category:    "Authorization:",
			Sources:     cli.EnvVars("AGORA_OIDC_ISSUER"),
			Destination: &cfg.OIDCIssuer,
			Usage:       "OIDC issuer URL (enables OIDC auth)",
		},
		&cli.StringFlag{
			Name:        "oidc-discovery-url",
			Category:    "Authorization:",
			Sources:     cli.EnvVars("AGORA_OIDC_DISCOVERY_URL"),
			Destination: &cfg.OIDCDiscoveryURL,
			Usage:       "OIDC discovery URL (internal URL when issuer is not directly reachable)",
		},

		// ── Monitoring ────────────────────────────────────────────
		&cli.StringFlag{
			Name:        "metrics-labels",
			Category:    "Monitoring:",
			Sources:     cli.EnvVars("AGORA_METRICS_LABELS"),
			Destination: &cfg.MetricsLabels,
			Value:       "service=agora-api",
			Usage:       "Comma-separated key=value pairs added as constant labels to all Prometheus metrics. Supports ${VAR} expansion.",
		},
	}
}

func run(ctx context.Context, cfg config.Config) error {
	srv, err := StartServer(ctx, &cfg)
	if err != nil {
		return err
	}

	<-ctx.Done()
	log.Info("Shutting down...")

	drainCtx, drainCancel := context.WithTimeout(context.Background(), time.Duration(cfg.DrainTimeout)*time.Second)
	defer drainCancel()
	if err := srv.Shutdown(drainCtx); err != nil {
		log.Error("Shutdown error", "err", err)
	}
	log.Info("Server stopped")
	return nil
}

func maxBodySizeMiddleware(maxBodySize int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if isEventStream(c.Request) || maxBodySize <= 0 {
			c.Next()
			return
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBodySize)
		c.Next()
	}
}

func isEventStream(req *http.Request) bool {
	if req == nil || req.URL == nil {
		return false
	}
	return req.Method == http.MethodGet && req.URL.Path == "/v1/events"
}
