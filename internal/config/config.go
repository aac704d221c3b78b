package config

import (
	"context"
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

// Config holds all configuration for the collection service.
type Config struct {
	// Mode controls security behavior: "prod" (default) or "testing".
	// In testing mode, X-Client-ID header is accepted.
	Mode string

	// Database
	DBURL string

	// Datastore backend type: "postgres", "sqlite" or "mongo".
	DatastoreType string

	// Run datastore migrations on startup.
	DatastoreMigrateAtStart bool

	// Mongo database name (mongo store only).
	MongoDatabase string

	// Cache backend type: "redis" or "none".
	CacheType string
	RedisURL  string

	// How long a collection's owner stays cached.
	CacheOwnerTTL time.Duration

	// Relation graph mirror: "neo4j" or "none".
	GraphType     string
	Neo4jURL      string
	Neo4jUsername string
	Neo4jPassword string
	Neo4jDatabase string

	// Tracing exporter: "otlp", "stdout" or "none".
	TracingExporter    string
	TracingEndpoint    string
	TracingInsecure    bool
	TracingSampleRatio float64

	// OIDC
	OIDCIssuer       string
	OIDCDiscoveryURL string

	// APIKeys maps API key values to client IDs (COLLECTION_SERVICE_API_KEYS_<CLIENT_ID>=<key>).
	APIKeys map[string]string

	// MetricsLabels is a comma-separated list of key=value pairs added as
	// constant labels to all Prometheus metrics. Values support ${VAR} expansion.
	MetricsLabels string

	// Server
	Listener           ListenerConfig
	ManagementListener ListenerConfig
	// ManagementListenerEnabled is true when --management-port was explicitly provided.
	// When false, management endpoints are served on the main port.
	ManagementListenerEnabled bool
	// ManagementAccessLog enables HTTP access logging for /health, /ready and /metrics.
	ManagementAccessLog bool
	CORSEnabled         bool
	CORSOrigins         string

	// Body size limit (bytes)
	MaxBodySize int64

	// Chat history paging.
	HistoryDefaultPageSize int
	HistoryMaxPageSize     int

	// Directory holding prompt templates. Empty uses the embedded catalog.
	PromptsDir string

	// Graceful shutdown drain timeout (seconds)
	DrainTimeout int

	// DB pool
	DBMaxOpenConns int
	DBMaxIdleConns int
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Mode:                    ModeProd,
		DatastoreType:           "postgres",
		DatastoreMigrateAtStart: true,
		MongoDatabase:           "collection_service",
		CacheType:               "none",
		CacheOwnerTTL:           time.Hour,
		GraphType:               "none",
		Neo4jDatabase:           "neo4j",
		TracingExporter:         "none",
		TracingSampleRatio:      0.1,
		MetricsLabels:           "service=collection-service",
		Listener: ListenerConfig{
			Port:              8080,
			EnablePlainText:   true,
			EnableTLS:         true,
			ReadHeaderTimeout: 5 * time.Second,
		},
		ManagementListener: ListenerConfig{
			EnablePlainText: true,
			EnableTLS:       true,
		},
		MaxBodySize:            4 * 1024 * 1024,
		HistoryDefaultPageSize: 100,
		HistoryMaxPageSize:     1000,
		DrainTimeout:           30,
		DBMaxOpenConns:         25,
		DBMaxIdleConns:         5,
	}
}
