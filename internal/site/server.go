// Package site wires the catalog, visitor selections, company settings and
// media URL checks into the HTTP surface of the showcase site: HTML pages, a
// JSON API and embedded static assets.
package site

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/cors"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/theroutercompany/devdirect_website/internal/catalog"
	"github.com/theroutercompany/devdirect_website/internal/config"
	"github.com/theroutercompany/devdirect_website/internal/openapi"
	"github.com/theroutercompany/devdirect_website/internal/paths"
	"github.com/theroutercompany/devdirect_website/internal/platform/health"
	"github.com/theroutercompany/devdirect_website/internal/selection"
	"github.com/theroutercompany/devdirect_website/internal/settings"
	"github.com/theroutercompany/devdirect_website/internal/site/middleware"
	pkglog "github.com/theroutercompany/devdirect_website/pkg/log"
	"github.com/theroutercompany/devdirect_website/pkg/metrics"
	"github.com/theroutercompany/devdirect_website/pkg/problem"
)

const maxRequestBodyBytes int64 = 64 << 10

type readinessReporter interface {
	Readiness(ctx context.Context) health.Report
}

// Option configures optional server dependencies.
type Option func(*Server)

// WithLogger overrides the logger used by the server.
func WithLogger(logger pkglog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithCatalog replaces the embedded service catalog.
func WithCatalog(c *catalog.Catalog) Option {
	return func(s *Server) {
		if c != nil {
			s.catalog = c
		}
	}
}

// WithSettingsStorage sets the store company settings are read from.
func WithSettingsStorage(storage settings.Storage) Option {
	return func(s *Server) {
		s.settingsStorage = storage
	}
}

// WithOpenAPIProvider overrides the default OpenAPI document provider.
func WithOpenAPIProvider(provider openapi.DocumentProvider) Option {
	return func(s *Server) {
		s.openapiProvider = provider
	}
}

// WithClock overrides the time source used for sessions and rate limiting.
func WithClock(now func() time.Time) Option {
	return func(s *Server) {
		if now != nil {
			s.now = now
		}
	}
}

// Server coordinates HTTP routes and lifecycle hooks.
type Server struct {
	cfg             config.Config
	router          *http.ServeMux
	handler         http.Handler
	httpServer      *http.Server
	healthChecker   readinessReporter
	bootTime        time.Time
	now             func() time.Time
	logger          pkglog.Logger
	metricsHandler  http.Handler
	metrics         *siteMetrics
	rateLimiter     *rateLimiter
	cors            *cors.Cors
	catalog         *catalog.Catalog
	sessions        *selection.Store
	settingsStorage settings.Storage
	settings        *settings.Loader
	mediaValidator  paths.StorageURLValidator
	openapiProvider openapi.DocumentProvider
	pages           *pageRenderer
}

// New constructs a server with baseline dependencies configured.
func New(cfg config.Config, checker readinessReporter, registry *metrics.Registry, opts ...Option) (*Server, error) {
	s := &Server{
		cfg:            cfg,
		router:         http.NewServeMux(),
		healthChecker:  checker,
		bootTime:       time.Now().UTC(),
		now:            time.Now,
		logger:         pkglog.Shared(),
		rateLimiter:    newRateLimiter(cfg.RateLimit.Window.AsDuration(), cfg.RateLimit.Max),
		cors:           buildCORS(cfg.CORS.AllowedOrigins),
		catalog:        catalog.Default(),
		mediaValidator: paths.NewStorageURLValidator(cfg.Storage.BaseURL, cfg.Storage.TrustedSuffix),
	}

	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}

	if registry != nil && cfg.Metrics.Enabled {
		s.metricsHandler = registry.Handler()
		s.metrics = newSiteMetrics(registry)
	}

	s.sessions = selection.NewStore(s.catalog, cfg.Sessions.TTL.AsDuration())
	s.settings = settings.NewLoader(s.settingsStorage,
		settings.WithLogger(s.logger),
		settings.WithFallbackRecorder(s.metrics.settingsFallback),
	)

	if s.openapiProvider == nil {
		s.openapiProvider = openapi.NewService(openapi.WithVersion(cfg.Version), openapi.WithBasePath(cfg.HTTP.BasePath))
	}

	pages, err := newPageRenderer()
	if err != nil {
		return nil, fmt.Errorf("parse page templates: %w", err)
	}
	s.pages = pages

	s.mountRoutes()

	var router http.Handler = s.router
	if base := cfg.HTTP.BasePath; base != "" {
		root := http.NewServeMux()
		root.Handle("/", s.router)
		root.Handle(base, http.RedirectHandler(base+"/", http.StatusMovedPermanently))
		root.Handle(base+"/", http.StripPrefix(base, s.router))
		router = root
	}

	var imgSources []string
	if s.mediaValidator.Host != "" {
		imgSources = append(imgSources, "https://"+s.mediaValidator.Host)
	}
	if suffix := strings.TrimPrefix(cfg.Storage.TrustedSuffix, "."); suffix != "" {
		imgSources = append(imgSources, "https://*."+suffix)
	}

	var rateLimit func(http.Handler) http.Handler
	if s.rateLimiter != nil {
		rateLimit = middleware.RateLimit(s.rateLimiter.allow, clientKey, s.now, traceIDFromContext, problem.Write)
	}

	s.handler = middleware.Chain(router,
		middleware.RequestMetadata(ensureRequestIDs),
		middleware.SecurityHeaders(imgSources...),
		middleware.Logging(s.logger, requestIDFromContext, traceIDFromContext, clientAddress),
		middleware.CORS(s.cors, traceIDFromContext, problem.Write),
		rateLimit,
		middleware.BodyLimit(maxRequestBodyBytes, traceIDFromContext, problem.Write),
	)

	http2Server := &http2.Server{}
	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           h2c.NewHandler(s.handler, http2Server),
		ReadHeaderTimeout: 10 * time.Second,
	}
	if err := http2.ConfigureServer(s.httpServer, http2Server); err != nil {
		s.logger.Errorw("failed to configure http2 server", "error", err)
	}

	return s, nil
}

// Handler returns the fully wrapped request handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start begins serving HTTP requests until the context is cancelled or an error occurs.
func (s *Server) Start(ctx context.Context) error {
	if s.httpServer == nil {
		return errors.New("http server not initialised")
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Infow("http server listening", "addr", s.httpServer.Addr, "basePath", s.cfg.HTTP.BasePath)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.HTTP.ShutdownTimeout.AsDuration())
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Errorw("http server shutdown failed", "error", err)
			return err
		}
		return ctx.Err()
	case err := <-errCh:
		if err != nil {
			s.logger.Errorw("http server stopped with error", "error", err)
		}
		return err
	}
}

// Shutdown gracefully stops the HTTP server using the provided context.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) mountRoutes() {
	s.handle("GET /health", "health", s.handleHealth)
	s.handle("GET /readyz", "readyz", s.handleReadiness)
	s.handle("GET /openapi.json", "openapi", s.handleOpenAPI)
	if s.metricsHandler != nil {
		s.router.Handle("GET /metrics", s.metricsHandler)
	}

	s.handle("GET /api/services", "api.services.list", s.handleListServices)
	s.handle("GET /api/services/{id}", "api.services.get", s.handleGetService)
	s.handle("GET /api/selection", "api.selection.get", s.handleGetSelection)
	s.handle("POST /api/selection", "api.selection.select", s.handleSelect)
	s.handle("DELETE /api/selection", "api.selection.reset", s.handleResetSelection)
	s.handle("GET /api/settings", "api.settings", s.handleSettings)
	s.handle("GET /api/media/validate", "api.media.validate", s.handleValidateMedia)

	s.handle("GET /{$}", "page.home", s.handleHomePage)
	s.handle("GET /services/{id}", "page.service", s.handleServicePage)
	s.handle("GET /contact", "page.contact", s.handleContactPage)
	s.handle("POST /selection", "page.selection", s.handleSelectionForm)

	assets := assetHandler()
	s.router.Handle("GET /static/", assets)
	s.router.Handle("GET /img/", assets)
	s.router.Handle("GET "+paths.DeploymentPrefix+"/img/", assets)
	s.router.Handle("GET /favicon.ico", http.RedirectHandler(paths.GetPath("/img/logo.svg"), http.StatusMovedPermanently))

	s.router.HandleFunc("/", s.handleNotFound)
}

func (s *Server) handle(pattern, route string, fn http.HandlerFunc) {
	s.router.Handle(pattern, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := middleware.NewStatusRecorder(w)
		fn(rec, r)
		s.metrics.observe(route, rec.Status(), time.Since(start))
	}))
}

func buildCORS(origins []string) *cors.Cors {
	allowAll := len(origins) == 0
	allowed := make(map[string]struct{}, len(origins))
	for _, origin := range origins {
		o := strings.TrimSpace(origin)
		if o == "*" {
			allowAll = true
		}
		if o != "" {
			allowed[o] = struct{}{}
		}
	}

	return cors.New(cors.Options{
		AllowedMethods:       []string{http.MethodGet, http.MethodHead, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:       []string{"*"},
		ExposedHeaders:       []string{"X-Request-Id", "X-Trace-Id"},
		AllowCredentials:     !allowAll,
		OptionsSuccessStatus: http.StatusNoContent,
		AllowOriginRequestFunc: func(_ *http.Request, origin string) bool {
			if origin == "" || allowAll {
				return true
			}
			_, ok := allowed[origin]
			return ok
		},
	})
}
