package serve

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/chirino/collection-service/internal/config"
	registrycache "github.com/chirino/collection-service/internal/registry/cache"
	registrygraph "github.com/chirino/collection-service/internal/registry/graph"
	registrystore "github.com/chirino/collection-service/internal/registry/store"
	"github.com/gin-gonic/gin"
	"github.com/urfave/cli/v3"

	// Import all plugins to trigger init() registration
	_ "github.com/chirino/collection-service/internal/plugin/cache/noop"
	_ "github.com/chirino/collection-service/internal/plugin/cache/redis"
	_ "github.com/chirino/collection-service/internal/plugin/graph/neo4j"
	_ "github.com/chirino/collection-service/internal/plugin/graph/noop"
	_ "github.com/chirino/collection-service/internal/plugin/route/chats"
	_ "github.com/chirino/collection-service/internal/plugin/route/collections"
	_ "github.com/chirino/collection-service/internal/plugin/route/history"
	_ "github.com/chirino/collection-service/internal/plugin/route/permissions"
	_ "github.com/chirino/collection-service/internal/plugin/route/prompts"
	_ "github.com/chirino/collection-service/internal/plugin/route/relations"
	_ "github.com/chirino/collection-service/internal/plugin/route/system"
	_ "github.com/chirino/collection-service/internal/plugin/store/mongo"
	_ "github.com/chirino/collection-service/internal/plugin/store/postgres"
	_ "github.com/chirino/collection-service/internal/plugin/store/sqlite"
)

// Command returns the serve sub-command.
func Command() *cli.Command {
	cfg := config.DefaultConfig()
	var readHeaderTimeoutSecs int = 5
	return &cli.Command{
		Name:  "serve",
		Usage: "Start the collection service HTTP server",
		Flags: flags(&cfg, &readHeaderTimeoutSecs),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if err := cfg.ApplyEnv(); err != nil {
				return err
			}
			cfg.Listener.ReadHeaderTimeout = time.Duration(readHeaderTimeoutSecs) * time.Second
			cfg.ManagementListener.ReadHeaderTimeout = cfg.Listener.ReadHeaderTimeout
			cfg.ManagementListenerEnabled = cmd.IsSet("management-port")
			return run(config.WithContext(ctx, &cfg), cfg)
		},
	}
}

func env(name string) cli.ValueSourceChain {
	return cli.EnvVars(config.EnvPrefix + name)
}

func flags(cfg *config.Config, readHeaderTimeoutSecs *int) []cli.Flag {
	return []cli.Flag{

		// ── Server ────────────────────────────────────────────────
		&cli.StringFlag{
			Name:        "mode",
			Category:    "Server:",
			Sources:     env("MODE"),
			Destination: &cfg.Mode,
			Value:       cfg.Mode,
			Usage:       "Security mode (" + config.ModeProd + "|" + config.ModeTesting + "); testing trusts the X-Client-ID header",
		},
		&cli.StringFlag{
			Name:        "tls-cert-file",
			Category:    "Server:",
			Sources:     env("TLS_CERT_FILE"),
			Destination: &cfg.Listener.TLSCertFile,
			Usage:       "TLS certificate file for single-port TLS mode",
		},
		&cli.StringFlag{
			Name:        "tls-key-file",
			Category:    "Server:",
			Sources:     env("TLS_KEY_FILE"),
			Destination: &cfg.Listener.TLSKeyFile,
			Usage:       "TLS private key file for single-port TLS mode",
		},
		&cli.IntFlag{
			Name:        "read-header-timeout-seconds",
			Category:    "Server:",
			Sources:     env("READ_HEADER_TIMEOUT_SECONDS"),
			Destination: readHeaderTimeoutSecs,
			Value:       *readHeaderTimeoutSecs,
			Usage:       "HTTP read header timeout in seconds",
		},
		&cli.IntFlag{
			Name:        "drain-timeout-seconds",
			Category:    "Server:",
			Sources:     env("DRAIN_TIMEOUT_SECONDS"),
			Destination: &cfg.DrainTimeout,
			Value:       cfg.DrainTimeout,
			Usage:       "Seconds to wait for in-flight requests on shutdown",
		},
		&cli.BoolFlag{
			Name:        "management-access-log",
			Category:    "Server:",
			Sources:     env("MANAGEMENT_ACCESS_LOG"),
			Destination: &cfg.ManagementAccessLog,
			Usage:       "Enable HTTP access logging for management endpoints (/health, /ready, /metrics)",
		},

		// ── Network Listener ──────────────────────────────────────
		&cli.IntFlag{
			Name:        "port",
			Category:    "Network Listener:",
			Sources:     env("PORT"),
			Destination: &cfg.Listener.Port,
			Value:       cfg.Listener.Port,
			Usage:       "HTTP server port",
		},
		&cli.BoolFlag{
			Name:        "plain-text",
			Category:    "Network Listener:",
			Sources:     env("PLAIN_TEXT"),
			Destination: &cfg.Listener.EnablePlainText,
			Value:       cfg.Listener.EnablePlainText,
			Usage:       "Enable plaintext HTTP/1.1 + h2c",
		},
		&cli.BoolFlag{
			Name:        "tls",
			Category:    "Network Listener:",
			Sources:     env("TLS"),
			Destination: &cfg.Listener.EnableTLS,
			Value:       cfg.Listener.EnableTLS,
			Usage:       "Enable TLS HTTP/1.1 + HTTP/2",
		},

		// ── Management Network Listener ───────────────────────────
		&cli.IntFlag{
			Name:        "management-port",
			Category:    "Management Network Listener:",
			Sources:     env("MANAGEMENT_PORT"),
			Destination: &cfg.ManagementListener.Port,
			Value:       cfg.ManagementListener.Port,
			Usage:       "Dedicated port for health and metrics (0 = OS-assigned random port); when unset, served on the main port",
		},
		&cli.BoolFlag{
			Name:        "management-plain-text",
			Category:    "Management Network Listener:",
			Sources:     env("MANAGEMENT_PLAIN_TEXT"),
			Destination: &cfg.ManagementListener.EnablePlainText,
			Value:       cfg.ManagementListener.EnablePlainText,
			Usage:       "Enable plaintext HTTP for management server",
		},
		&cli.BoolFlag{
			Name:        "management-tls",
			Category:    "Management Network Listener:",
			Sources:     env("MANAGEMENT_TLS"),
			Destination: &cfg.ManagementListener.EnableTLS,
			Value:       cfg.ManagementListener.EnableTLS,
			Usage:       "Enable TLS for management server",
		},

		// ── Database ───────────────────────────────────────────────
		&cli.StringFlag{
			Name:        "db-kind",
			Category:    "Database:",
			Sources:     env("DB_KIND"),
			Destination: &cfg.DatastoreType,
			Value:       cfg.DatastoreType,
			Usage:       "Backend store (" + strings.Join(registrystore.Names(), "|") + ")",
		},
		&cli.StringFlag{
			Name:        "db-url",
			Category:    "Database:",
			Sources:     env("DB_URL"),
			Destination: &cfg.DBURL,
			Usage:       "Database connection URL (a file path or file: DSN for sqlite)",
			Required:    true,
		},
		&cli.IntFlag{
			Name:        "db-max-open-conns",
			Category:    "Database:",
			Sources:     env("DB_MAX_OPEN_CONNS"),
			Destination: &cfg.DBMaxOpenConns,
			Value:       cfg.DBMaxOpenConns,
			Usage:       "Maximum number of open database connections",
		},
		&cli.IntFlag{
			Name:        "db-max-idle-conns",
			Category:    "Database:",
			Sources:     env("DB_MAX_IDLE_CONNS"),
			Destination: &cfg.DBMaxIdleConns,
			Value:       cfg.DBMaxIdleConns,
			Usage:       "Maximum number of idle database connections",
		},

		// ── Cache ─────────────────────────────────────────────────
		&cli.StringFlag{
			Name:        "cache-kind",
			Category:    "Cache:",
			Sources:     env("CACHE_KIND"),
			Destination: &cfg.CacheType,
			Value:       cfg.CacheType,
			Usage:       "Collection owner cache (" + strings.Join(registrycache.Names(), "|") + ")",
		},
		&cli.StringFlag{
			Name:        "redis-hosts",
			Category:    "Cache:",
			Sources:     env("REDIS_HOSTS"),
			Destination: &cfg.RedisURL,
			Usage:       "Redis connection URL",
		},

		// ── Relation Graph ────────────────────────────────────────
		&cli.StringFlag{
			Name:        "graph-kind",
			Category:    "Relation Graph:",
			Sources:     env("GRAPH_KIND"),
			Destination: &cfg.GraphType,
			Value:       cfg.GraphType,
			Usage:       "Relation graph mirror (" + strings.Join(registrygraph.Names(), "|") + ")",
		},
		&cli.StringFlag{
			Name:        "neo4j-url",
			Category:    "Relation Graph:",
			Sources:     env("NEO4J_URL"),
			Destination: &cfg.Neo4jURL,
			Usage:       "Neo4j bolt URL (e.g. neo4j://localhost:7687)",
		},
		&cli.StringFlag{
			Name:        "neo4j-username",
			Category:    "Relation Graph:",
			Sources:     env("NEO4J_USERNAME"),
			Destination: &cfg.Neo4jUsername,
			Usage:       "Neo4j username",
		},
		&cli.StringFlag{
			Name:        "neo4j-password",
			Category:    "Relation Graph:",
			Sources:     env("NEO4J_PASSWORD"),
			Destination: &cfg.Neo4jPassword,
			Usage:       "Neo4j password",
		},
		&cli.StringFlag{
			Name:        "neo4j-database",
			Category:    "Relation Graph:",
			Sources:     env("NEO4J_DATABASE"),
			Destination: &cfg.Neo4jDatabase,
			Value:       cfg.Neo4jDatabase,
			Usage:       "Neo4j database name",
		},

		// ── Prompts ───────────────────────────────────────────────
		&cli.StringFlag{
			Name:        "prompts-dir",
			Category:    "Prompts:",
			Sources:     env("PROMPTS_DIR"),
			Destination: &cfg.PromptsDir,
			Usage:       "Directory with catalog.yaml and prompt templates; defaults to the built-in catalog",
		},

		// ── Authorization ─────────────────────────────────────────
		&cli.StringFlag{
			Name:        "oidc-issuer",
			Category:    "Authorization:",
			Sources:     env("OIDC_ISSUER"),
			Destination: &cfg.OIDCIssuer,
			Usage:       "OIDC issuer URL (enables OIDC auth)",
		},
		&cli.StringFlag{
			Name:        "oidc-discovery-url",
			Category:    "Authorization:",
			Sources:     env("OIDC_DISCOVERY_URL"),
			Destination: &cfg.OIDCDiscoveryURL,
			Usage:       "OIDC discovery URL (internal URL when issuer is not directly reachable)",
		},

		// ── Monitoring ────────────────────────────────────────────
		&cli.StringFlag{
			Name:        "metrics-labels",
			Category:    "Monitoring:",
			Sources:     env("METRICS_LABELS"),
			Destination: &cfg.MetricsLabels,
			Value:       cfg.MetricsLabels,
			Usage:       "Comma-separated key=value pairs added as constant labels to all Prometheus metrics. Supports ${VAR} expansion.",
		},
		&cli.StringFlag{
			Name:        "tracing-exporter",
			Category:    "Monitoring:",
			Sources:     env("TRACING_EXPORTER"),
			Destination: &cfg.TracingExporter,
			Value:       cfg.TracingExporter,
			Usage:       "OpenTelemetry span exporter (otlp|stdout|none)",
		},
		&cli.StringFlag{
			Name:        "tracing-endpoint",
			Category:    "Monitoring:",
			Sources:     env("TRACING_ENDPOINT"),
			Destination: &cfg.TracingEndpoint,
			Usage:       "OTLP/HTTP collector endpoint (host:port)",
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
		if maxBodySize > 0 && c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBodySize)
		}
		c.Next()
	}
}
