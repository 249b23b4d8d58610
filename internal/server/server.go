/*
 * Copyright 2025 Cong Wang
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/storeforge/storefront/internal/cache"
	"github.com/storeforge/storefront/internal/config"
	"github.com/storeforge/storefront/internal/dnscheck"
	"github.com/storeforge/storefront/internal/engine"
	"github.com/storeforge/storefront/internal/loader"
	"github.com/storeforge/storefront/internal/logging"
	"github.com/storeforge/storefront/internal/metrics"
	"github.com/storeforge/storefront/internal/middleware"
	"github.com/storeforge/storefront/internal/render"
	"github.com/storeforge/storefront/internal/resolver"
	"github.com/storeforge/storefront/internal/storage"
	"github.com/storeforge/storefront/internal/themes"
	"github.com/storeforge/storefront/internal/validation"
)

// Version is reported by the health endpoints
const Version = "1.0"

// Dependencies are the backends a server is built on
type Dependencies struct {
	Storage storage.Storage
	Cache   cache.Cache
	Themes  themes.Storage
	Metrics metrics.MetricsProvider
	// DNS overrides the resolver used for custom domain checks
	DNS dnscheck.Lookuper
}

// Server represents the storefront HTTP server
type Server struct {
	config     *config.Config
	httpServer *http.Server
	router     *gin.Engine
	engine     *engine.Engine
	resolver   *resolver.Resolver
	dns        *dnscheck.Checker
	validator  *validation.Validator
	storage    storage.Storage
	cache      cache.Cache
	themes     themes.Storage
	renderers  *render.Manager
	limiter    *middleware.ClientLimiter
	watcher    *themes.Watcher
	logger     *logging.Logger
	metrics    metrics.MetricsProvider
}

// New creates a storefront server with backends built from cfg
func New(ctx context.Context, cfg *config.Config) (*Server, error) {
	var metricsInstance metrics.MetricsProvider
	if cfg.Metrics.Enabled {
		metricsInstance = metrics.NewMetricsProvider(cfg.Metrics)
	}

	store, err := storage.NewStorage(ctx, cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage: %w", err)
	}

	var recorder cache.Recorder
	if metricsInstance != nil {
		recorder = metricsInstance
	}
	c, err := cache.New(ctx, cfg.Cache, recorder)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to create cache: %w", err)
	}

	return NewWithDependencies(cfg, Dependencies{
		Storage: store,
		Cache:   c,
		Themes:  themes.NewFSStorage(cfg.Themes.RootDir),
		Metrics: metricsInstance,
	})
}

// NewWithDependencies creates a server on the given backends
func NewWithDependencies(cfg *config.Config, deps Dependencies) (*Server, error) {
	if deps.Storage == nil || deps.Cache == nil || deps.Themes == nil {
		return nil, errors.New("storage, cache and theme storage are required")
	}

	logger := logging.NewLogger(cfg.Logging)

	res, err := resolver.New(deps.Storage, deps.Cache, cfg.Cache, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create domain resolver: %w", err)
	}

	dns, err := dnscheck.New(cfg.DNS, cfg.Server.PlatformDomain, deps.DNS, deps.Cache, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create DNS checker: %w", err)
	}

	renderers := render.NewManager(deps.Themes)
	engineDeps := engine.Dependencies{
		Resolver:  res,
		Storage:   deps.Storage,
		Themes:    deps.Themes,
		Loader:    loader.New(deps.Storage, deps.Cache, cfg.Render, cfg.Cache, logger),
		Renderers: renderers,
		Logger:    logger,
	}
	if deps.Metrics != nil {
		engineDeps.Recorder = deps.Metrics
	}
	eng, err := engine.New(cfg, engineDeps)
	if err != nil {
		return nil, fmt.Errorf("failed to create render engine: %w", err)
	}

	validator, err := validation.New(cfg.Validation, cfg.Render, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create theme validator: %w", err)
	}

	// Set Gin mode based on environment
	if cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	server := &Server{
		config:    cfg,
		router:    gin.New(),
		engine:    eng,
		resolver:  res,
		dns:       dns,
		validator: validator,
		storage:   deps.Storage,
		cache:     deps.Cache,
		themes:    deps.Themes,
		renderers: renderers,
		logger:    logger.WithComponent("server"),
		metrics:   deps.Metrics,
	}
	if cfg.RateLimit.Enabled {
		server.limiter = middleware.NewClientLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst, 10*time.Minute)
	}

	server.setupMiddleware()
	server.setupRoutes()

	server.httpServer = &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      server.router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	return server, nil
}

// Start starts background workers and the HTTP server. It blocks until the
// server stops.
func (s *Server) Start(ctx context.Context) error {
	if err := s.startWatcher(ctx); err != nil {
		return err
	}
	if s.limiter != nil {
		go s.pruneLimiter(ctx)
	}
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server and releases its backends
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)
	if s.watcher != nil {
		s.watcher.Close()
	}
	if cerr := cache.Close(s.cache); cerr != nil {
		s.logger.Error("Failed to close cache", cerr)
	}
	if cerr := s.storage.Close(); cerr != nil {
		s.logger.Error("Failed to close storage", cerr)
	}
	return err
}

// GetRouter returns the Gin router for testing purposes
func (s *Server) GetRouter() *gin.Engine {
	return s.router
}

// startWatcher invalidates compiled templates when theme files change on disk
func (s *Server) startWatcher(ctx context.Context) error {
	if !s.config.Themes.Watch {
		return nil
	}
	fs, ok := s.themes.(*themes.FSStorage)
	if !ok {
		s.logger.Warn("Theme watching requires filesystem theme storage, skipping")
		return nil
	}

	w, err := themes.NewWatcher(fs.Root(), 250*time.Millisecond, func(themeID, filePath string) {
		s.logger.WithFields(map[string]interface{}{"theme_id": themeID, "file": filePath}).Info("Theme file changed, invalidating templates")
		s.renderers.Invalidate(themeID)
	}, s.logger)
	if err != nil {
		return fmt.Errorf("failed to watch themes: %w", err)
	}
	s.watcher = w
	go w.Run(ctx)
	return nil
}

func (s *Server) pruneLimiter(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.limiter.Prune()
		}
	}
}

// setupMiddleware configures middleware for the server
func (s *Server) setupMiddleware() {
	s.router.Use(gin.Recovery())
	s.router.Use(middleware.Logger(s.config.Logging))
	s.router.Use(middleware.RequestID())
	s.router.Use(middleware.StoreDomain())

	if s.limiter != nil {
		s.router.Use(middleware.RateLimit(s.limiter))
	}

	s.router.Use(middleware.RequestSizeLimit(s.config.Server.MaxRequestSize))
	s.router.Use(middleware.SecurityHeaders())
}

// setupRoutes configures routes for the server
func (s *Server) setupRoutes() {
	server := s

	// Health check endpoints
	server.router.GET("/health", func(c *gin.Context) { server.handleHealth(c) })
	server.router.GET("/ready", func(c *gin.Context) { server.handleReady(c) })

	if server.metrics != nil {
		path := server.config.Metrics.Path
		if path == "" {
			path = "/metrics"
		}
		server.router.GET(path, gin.WrapH(server.metrics.Handler()))
	}

	admin := server.router.Group("/admin")
	admin.Use(middleware.CORS(), middleware.AdminAuth(server.config.Admin))
	{
		admin.GET("/domains/:domain", server.withRequestMetrics(func(c *gin.Context) { server.handleResolveDomain(c) }))
		admin.GET("/domains/:domain/dns", server.withRequestMetrics(func(c *gin.Context) { server.handleCheckDomainDNS(c) }))
		admin.POST("/domains/:domain/invalidate", server.withRequestMetrics(func(c *gin.Context) { server.handleInvalidateDomain(c) }))
		admin.POST("/themes/:id/validate", server.withRequestMetrics(func(c *gin.Context) { server.handleValidateTheme(c) }))
		admin.GET("/themes/:id/analyze", server.withRequestMetrics(func(c *gin.Context) { server.handleAnalyzeTheme(c) }))
	}

	// Every other path is a storefront page of the store serving the host
	server.router.NoRoute(server.withRequestMetrics(func(c *gin.Context) { server.handleStorefront(c) }))
}

// handleHealth handles health check requests (liveness probe)
func (s *Server) handleHealth(c *gin.Context) {
	health := s.checkHealth()

	statusCode := http.StatusOK
	if !health.Healthy {
		statusCode = http.StatusServiceUnavailable
	}

	c.JSON(statusCode, health)
}

// handleReady handles readiness check requests (readiness probe)
func (s *Server) handleReady(c *gin.Context) {
	readiness := s.checkReadiness(c.Request.Context())

	statusCode := http.StatusOK
	if !readiness.Ready {
		statusCode = http.StatusServiceUnavailable
	}

	c.JSON(statusCode, readiness)
}

// HealthStatus represents the health status of the server
type HealthStatus struct {
	Status     string            `json:"status"`
	Healthy    bool              `json:"healthy"`
	Timestamp  time.Time         `json:"timestamp"`
	Version    string            `json:"version"`
	Components map[string]string `json:"components"`
}

// ReadinessStatus represents the readiness status of the server
type ReadinessStatus struct {
	Status       string            `json:"status"`
	Ready        bool              `json:"ready"`
	Timestamp    time.Time         `json:"timestamp"`
	Version      string            `json:"version"`
	Dependencies map[string]string `json:"dependencies"`
}

// checkHealth performs basic health checks (liveness)
func (s *Server) checkHealth() HealthStatus {
	healthy := true
	components := make(map[string]string)

	check := func(name string, ok bool) {
		if ok {
			components[name] = "healthy"
			return
		}
		healthy = false
		components[name] = "not_initialized"
	}
	check("router", s.router != nil)
	check("render_engine", s.engine != nil)
	check("domain_resolver", s.resolver != nil)
	check("theme_validator", s.validator != nil)

	if s.metrics != nil {
		components["metrics"] = "healthy"
	} else {
		components["metrics"] = "not_configured"
	}

	status := "healthy"
	if !healthy {
		status = "unhealthy"
	}

	return HealthStatus{
		Status:     status,
		Healthy:    healthy,
		Timestamp:  time.Now().UTC(),
		Version:    Version,
		Components: components,
	}
}

// checkReadiness checks that the backends answer
func (s *Server) checkReadiness(ctx context.Context) ReadinessStatus {
	ready := true
	dependencies := make(map[string]string)

	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := s.storage.HealthCheck(ctx); err != nil {
		ready = false
		dependencies["storage"] = "unavailable"
		s.logger.Warnf("Storage health check failed: %v", err)
	} else {
		dependencies["storage"] = "ready"
	}

	if pinger, ok := s.cache.(interface{ Ping(context.Context) error }); ok {
		if err := pinger.Ping(ctx); err != nil {
			ready = false
			dependencies["cache"] = "unavailable"
			s.logger.Warnf("Cache health check failed: %v", err)
		} else {
			dependencies["cache"] = "ready"
		}
	} else {
		dependencies["cache"] = "ready"
	}

	status := "ready"
	if !ready {
		status = "not_ready"
	}

	return ReadinessStatus{
		Status:       status,
		Ready:        ready,
		Timestamp:    time.Now().UTC(),
		Version:      Version,
		Dependencies: dependencies,
	}
}
