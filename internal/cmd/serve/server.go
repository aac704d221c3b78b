package serve

import (
	"context"
	"errors"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/chirino/collection-service/internal/config"
	"github.com/chirino/collection-service/internal/plugin/cache/noop"
	graphnoop "github.com/chirino/collection-service/internal/plugin/graph/noop"
	routesystem "github.com/chirino/collection-service/internal/plugin/route/system"
	storemetrics "github.com/chirino/collection-service/internal/plugin/store/metrics"
	"github.com/chirino/collection-service/internal/prompt"
	registrycache "github.com/chirino/collection-service/internal/registry/cache"
	registrygraph "github.com/chirino/collection-service/internal/registry/graph"
	registrymigrate "github.com/chirino/collection-service/internal/registry/migrate"
	registryroute "github.com/chirino/collection-service/internal/registry/route"
	registrystore "github.com/chirino/collection-service/internal/registry/store"
	"github.com/chirino/collection-service/internal/security"
	"github.com/chirino/collection-service/internal/service"
	"github.com/chirino/collection-service/internal/tracing"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

// Server holds the running server and its subsystems.
type Server struct {
	Config          *config.Config
	Store           registrystore.CollectionStore
	Services        *service.Services
	Router          *gin.Engine
	Running         *RunningServers
	closeManagement func(context.Context) error
	closeMirror     func(context.Context) error
	closeTracing    func(context.Context) error
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	routesystem.MarkDraining()
	if s.closeManagement != nil {
		_ = s.closeManagement(ctx)
	}
	err := s.Running.Close(ctx)
	if s.closeMirror != nil {
		err = errors.Join(err, s.closeMirror(ctx))
	}
	err = errors.Join(err, s.Store.Close())
	if s.closeTracing != nil {
		err = errors.Join(err, s.closeTracing(ctx))
	}
	return err
}

// StartServer initializes all subsystems and starts HTTP on a single port.
// Use cfg.Listener.Port=0 for a random port. Actual port: Server.Running.Port.
func StartServer(ctx context.Context, cfg *config.Config) (*Server, error) {
	log.Info("Starting collection service",
		"httpPort", cfg.Listener.Port,
		"db", cfg.DatastoreType,
		"cache", cfg.CacheType,
		"graph", cfg.GraphType,
		"tracing", cfg.TracingExporter,
	)

	// Initialize Prometheus metrics with configured constant labels.
	metricsLabels, err := security.ParseMetricsLabels(cfg.MetricsLabels)
	if err != nil {
		return nil, fmt.Errorf("invalid --metrics-labels: %w", err)
	}
	security.InitMetrics(metricsLabels)

	closeTracing, err := tracing.Init(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracing: %w", err)
	}

	if cfg.DatastoreMigrateAtStart {
		if err := registrymigrate.RunAll(ctx); err != nil {
			return nil, fmt.Errorf("migrations failed: %w", err)
		}
	}

	// The owner cache and graph mirror are optional; fall back to no-ops.
	var owners registrycache.OwnerCache = noop.New()
	if cacheLoader, err := registrycache.Select(cfg.CacheType); err != nil {
		log.Warn("Cache not available", "cache", cfg.CacheType, "err", err)
	} else if loaded, err := cacheLoader(ctx); err != nil {
		log.Warn("Failed to initialize cache", "cache", cfg.CacheType, "err", err)
	} else {
		owners = loaded
	}

	var mirror registrygraph.Mirror = graphnoop.New()
	if graphLoader, err := registrygraph.Select(cfg.GraphType); err != nil {
		log.Warn("Graph mirror not available", "graph", cfg.GraphType, "err", err)
	} else if loaded, err := graphLoader(ctx); err != nil {
		log.Warn("Failed to initialize graph mirror", "graph", cfg.GraphType, "err", err)
	} else {
		mirror = loaded
	}

	storeLoader, err := registrystore.Select(cfg.DatastoreType)
	if err != nil {
		return nil, err
	}
	store, err := storeLoader(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize store: %w", err)
	}
	store = storemetrics.Wrap(store)

	prompts, err := prompt.Load(cfg.PromptsDir)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to load prompt templates: %w", err)
	}

	svc := service.New(store, service.OptionsFromConfig(cfg, owners, mirror))

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(tracing.ServiceName))
	if cfg.ManagementAccessLog {
		router.Use(security.AccessLogMiddleware())
	} else {
		router.Use(security.AccessLogMiddleware("/health", "/ready", "/metrics"))
	}
	router.Use(security.MetricsMiddleware())
	router.Use(maxBodySizeMiddleware(cfg.MaxBodySize))
	if cfg.CORSEnabled {
		router.Use(corsMiddleware(cfg.CORSOrigins, router.Routes))
	}

	deps := &registryroute.Deps{
		Services: svc,
		Prompts:  prompts,
		Auth:     security.AuthMiddleware(security.NewTokenResolver(cfg)),
	}
	if err := registryroute.MountMain(router, deps); err != nil {
		return nil, fmt.Errorf("failed to load routes: %w", err)
	}
	log.Info("API routes mounted", "plugins", registryroute.Names(registryroute.RouteTypeMain))

	// Management routes get their own engine when a dedicated port is
	// configured; otherwise they share the main router.
	var closeManagement func(context.Context) error
	if cfg.ManagementListenerEnabled {
		mgmtRouter := gin.New()
		mgmtRouter.Use(gin.Recovery())
		if cfg.ManagementAccessLog {
			mgmtRouter.Use(security.AccessLogMiddleware())
		}
		if err := registryroute.MountManagement(mgmtRouter); err != nil {
			return nil, fmt.Errorf("failed to load management routes: %w", err)
		}
		// Management listener shares TLS cert/key with the main listener.
		mgmtCfg := cfg.ManagementListener
		mgmtCfg.TLSCertFile = cfg.Listener.TLSCertFile
		mgmtCfg.TLSKeyFile = cfg.Listener.TLSKeyFile
		_, closeManagement, err = startManagementServer(mgmtCfg, mgmtRouter)
		if err != nil {
			return nil, fmt.Errorf("failed to start management server: %w", err)
		}
	} else {
		if err := registryroute.MountManagement(router); err != nil {
			return nil, fmt.Errorf("failed to load management routes: %w", err)
		}
	}

	running, err := StartSinglePortHTTP(ctx, cfg.Listener, router)
	if err != nil {
		return nil, err
	}

	log.Info("Server listening",
		"port", running.Port,
		"plaintext", cfg.Listener.EnablePlainText,
		"tls", cfg.Listener.EnableTLS,
	)

	routesystem.MarkReady()
	return &Server{
		Config:          cfg,
		Store:           store,
		Services:        svc,
		Router:          router,
		Running:         running,
		closeManagement: closeManagement,
		closeMirror:     mirror.Close,
		closeTracing:    closeTracing,
	}, nil
}
