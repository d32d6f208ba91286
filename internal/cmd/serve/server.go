package serve

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/TruongKhoiNguyen/Agora-api/internal/config"
	"github.com/TruongKhoiNguyen/Agora-api/internal/messaging"
	routesystem "github.com/TruongKhoiNguyen/Agora-api/internal/plugin/route/system"
	storemetrics "github.com/TruongKhoiNguyen/Agora-api/internal/plugin/store/metrics"
	registrycache "github.com/TruongKhoiNguyen/Agora-api/internal/registry/cache"
	registrydirectory "github.com/TruongKhoiNguyen/Agora-api/internal/registry/directory"
	registryfanout "github.com/TruongKhoiNguyen/Agora-api/internal/registry/fanout"
	registrymedia "github.com/TruongKhoiNguyen/Agora-api/internal/registry/media"
	registrymigrate "github.com/TruongKhoiNguyen/Agora-api/internal/registry/migrate"
	registryroute "github.com/TruongKhoiNguyen/Agora-api/internal/registry/route"
	registrystore "github.com/TruongKhoiNguyen/Agora-api/internal/registry/store"
	"github.com/TruongKhoiNguyen/Agora-api/internal/security"
	"github.com/TruongKhoiNguyen/Agora-api/internal/service"
	"github.com/gin-gonic/gin"
)

// Server holds the running server and its subsystems.
type Server struct {
	Config          *config.Config
	Store           registrystore.Store
	Messaging       *messaging.Service
	Router          *gin.Engine
	Running         *RunningServers
	dispatcher      *service.Dispatcher
	closeManagement func(context.Context) error
}

// Shutdown stops accepting requests, drains queued events and closes the
// bridge and the store.
func (s *Server) Shutdown(ctx context.Context) error {
	routesystem.MarkDraining()
	if s.closeManagement != nil {
		_ = s.closeManagement(ctx)
	}
	err := s.Running.Close(ctx)
	if derr := s.dispatcher.Close(ctx); derr != nil {
		log.Warn("Fanout backlog not drained", "err", derr)
	}
	if berr := s.dispatcher.Bridge().Close(); berr != nil {
		log.Warn("Fanout bridge close failed", "err", berr)
	}
	if serr := s.Store.Close(ctx); serr != nil && err == nil {
		err = serr
	}
	return err
}

// StartServer initializes all subsystems and starts HTTP on a single port.
// Use cfg.Listener.Port=0 for a random port. Actual port: Server.Running.Port.
func StartServer(ctx context.Context, cfg *config.Config) (*Server, error) {
	log.Info("Starting chat service",
		"httpPort", cfg.Listener.Port,
		"db", cfg.DatastoreType,
		"fanout", cfg.FanoutType,
		"media", cfg.MediaType,
		"directory", cfg.DirectoryType,
		"cache", cfg.CacheType,
	)

	// Initialize Prometheus metrics with configured constant labels.
	metricsLabels, err := security.ParseMetricsLabels(cfg.MetricsLabels)
	if err != nil {
		return nil, fmt.Errorf("invalid --metrics-labels: %w", err)
	}
	security.InitMetrics(metricsLabels)

	if err := registrymigrate.RunAll(ctx); err != nil {
		return nil, fmt.Errorf("migrations failed: %w", err)
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

	directory, err := loadDirectory(ctx, cfg)
	if err != nil {
		return nil, err
	}

	mediaLoader, err := registrymedia.Select(cfg.MediaType)
	if err != nil {
		return nil, err
	}
	media, err := mediaLoader(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize media store: %w", err)
	}

	fanoutLoader, err := registryfanout.Select(cfg.FanoutType)
	if err != nil {
		return nil, err
	}
	bridge, err := fanoutLoader(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize fanout %q: %w", cfg.FanoutType, err)
	}
	dispatcher := service.NewDispatcher(bridge, cfg.FanoutQueueSize)
	subscriber, _ := bridge.(registryfanout.Subscriber)

	svc := messaging.New(store, directory, media, dispatcher, messaging.OptionsFromConfig(cfg))

	// Set up gin
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	if cfg.ManagementAccessLog {
		router.Use(security.AccessLogMiddleware())
	} else {
		router.Use(security.AccessLogMiddleware("/health", "/ready", "/metrics"))
	}
	router.Use(security.MetricsMiddleware())
	router.Use(maxBodySizeMiddleware(cfg.MaxBodySize))
	if cfg.CORSEnabled {
		router.Use(corsMiddleware(cfg.CORSOrigins))
	}

	mount := registryroute.Mount{
		Router:     router,
		Messaging:  svc,
		Subscriber: subscriber,
		Auth:       security.AuthMiddleware(security.NewTokenResolver(ctx, cfg)),
	}
	if err := registryroute.Load(registryroute.RouteTypeMain, mount); err != nil {
		return nil, fmt.Errorf("failed to load routes: %w", err)
	}

	// Mount management route plugins. If a dedicated management port is configured,
	// run them on a bare gin engine served by the management server. Otherwise,
	// mount them on the main router.
	var closeManagement func(context.Context) error
	if cfg.ManagementListenerEnabled {
		mgmtRouter := gin.New()
		mgmtRouter.Use(gin.Recovery())
		if cfg.ManagementAccessLog {
			mgmtRouter.Use(security.AccessLogMiddleware())
		}
		if err := registryroute.Load(registryroute.RouteTypeManagement, registryroute.Mount{Router: mgmtRouter}); err != nil {
			return nil, fmt.Errorf("failed to load management routes: %w", err)
		}
		// Management listener shares TLS cert/key with the main listener.
		mgmtCfg := cfg.ManagementListener
		mgmtCfg.TLSCertFile = cfg.Listener.TLSCertFile
		mgmtCfg.TLSKeyFile = cfg.Listener.TLSKeyFile
		mgmt, err := listen("management", mgmtCfg, mgmtRouter)
		if err != nil {
			return nil, fmt.Errorf("failed to start management server: %w", err)
		}
		closeManagement = mgmt.Close
	} else {
		if err := registryroute.Load(registryroute.RouteTypeManagement, registryroute.Mount{Router: router}); err != nil {
			return nil, fmt.Errorf("failed to load management routes: %w", err)
		}
	}

	running, err := listen("main", cfg.Listener, router)
	if err != nil {
		if closeManagement != nil {
			_ = closeManagement(ctx)
		}
		return nil, err
	}

	log.Info("Server listening",
		"port", running.Port,
		"plaintext", cfg.Listener.EnablePlainText,
		"tls", cfg.Listener.EnableTLS,
		"streaming", subscriber != nil,
		"routes", registryroute.Names(registryroute.RouteTypeMain),
	)

	routesystem.MarkReady()
	return &Server{
		Config:          cfg,
		Store:           store,
		Messaging:       svc,
		Router:          router,
		Running:         running,
		dispatcher:      dispatcher,
		closeManagement: closeManagement,
	}, nil
}

// loadDirectory selects the profile directory and wraps it with the
// configured cache. A cache that fails to start is logged and skipped.
func loadDirectory(ctx context.Context, cfg *config.Config) (registrydirectory.Directory, error) {
	dirLoader, err := registrydirectory.Select(cfg.DirectoryType)
	if err != nil {
		return nil, err
	}
	dir, err := dirLoader(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize directory: %w", err)
	}

	cacheLoader, err := registrycache.Select(cfg.CacheType)
	if err != nil {
		log.Warn("Cache not available", "cache", cfg.CacheType, "err", err)
		return dir, nil
	}
	cache, err := cacheLoader(ctx)
	if err != nil {
		log.Warn("Failed to initialize cache", "cache", cfg.CacheType, "err", err)
		return dir, nil
	}
	if !cache.Available() {
		return dir, nil
	}
	return registrydirectory.Cached(dir, cache), nil
}
