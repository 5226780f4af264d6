package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"

	"tabtweak/internal/config"
	apierrors "tabtweak/internal/errors"
	"tabtweak/internal/exporter"
	"tabtweak/internal/infrastructure"
	customMiddleware "tabtweak/internal/middleware"
	"tabtweak/internal/services"
	handlers "tabtweak/internal/transport/http"
	ws "tabtweak/internal/websocket"
)

// cleanupInterval is how often finished operations are pruned
const cleanupInterval = 10 * time.Minute

// Application represents the main application container
type Application struct {
	Config        *config.Config
	Paths         *config.Paths
	Logger        *slog.Logger
	Router        *chi.Mux
	Server        *http.Server
	OTelProviders *infrastructure.OTelProviders
	Metrics       *infrastructure.TweakMetrics

	WebSocketHub     *ws.Hub
	DataService      *services.DataService
	OperationService *services.OperationService
	HealthService    *services.HealthService

	ErrorHandler *apierrors.ErrorHandler
	Validation   *customMiddleware.ValidationMiddleware

	stopCleanup chan struct{}
}

// NewApplication loads the configuration and wires every component
func NewApplication() (*Application, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	paths, err := cfg.ResolvePaths()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve paths: %w", err)
	}
	if err := paths.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("failed to create directories: %w", err)
	}
	if cfg.Logging.FilePath == "" {
		cfg.Logging.FilePath = paths.GetLogPath(config.AppName + ".log")
	}

	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	paths.LogPathResolution(logger)

	return NewWithConfig(cfg, paths, logger)
}

// NewWithConfig wires the application from an already loaded configuration
func NewWithConfig(cfg *config.Config, paths *config.Paths, logger *slog.Logger) (*Application, error) {
	if logger == nil {
		logger = infrastructure.GetLogger()
	}
	app := &Application{
		Config: cfg,
		Paths:  paths,
		Logger: logger,
	}

	providers, err := infrastructure.InitializeOTel(infrastructure.NewOTelConfig(cfg.Tracing), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize OpenTelemetry: %w", err)
	}
	app.OTelProviders = providers

	metrics, err := infrastructure.CreateTweakMetrics(providers.Meter)
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics: %w", err)
	}
	app.Metrics = metrics

	if err := app.initializeServices(); err != nil {
		return nil, err
	}

	app.ErrorHandler = apierrors.NewErrorHandler(logger, false)
	app.Validation = customMiddleware.NewValidationMiddleware(logger, app.ErrorHandler, 0)

	app.setupRouter()
	app.createServer()
	return app, nil
}

// initializeServices creates the hub and the services in dependency order
func (a *Application) initializeServices() error {
	a.WebSocketHub = ws.NewHub(a.Logger)

	ds, err := services.NewDataService(a.Config, a.Paths, a.Logger)
	if err != nil {
		return fmt.Errorf("failed to create data service: %w", err)
	}
	ds.SetMetrics(a.Metrics)
	ds.SetPublisher(a.WebSocketHub)
	a.DataService = ds

	exp := exporter.NewExporter(a.Paths, a.Logger)
	opsvc, err := services.NewOperationService(a.WebSocketHub, ds, exp, a.Config.Data.Workers, a.Logger)
	if err != nil {
		ds.Close()
		return fmt.Errorf("failed to create operation service: %w", err)
	}
	opsvc.SetMetrics(a.Metrics)
	a.OperationService = opsvc

	a.HealthService = services.NewHealthService(a.Paths, a.WebSocketHub, opsvc, a.Logger)

	a.Logger.Info("services initialized",
		slog.Int("workers", a.Config.Data.Workers),
		slog.String("cache_size", a.Config.Data.CacheSize.HumanReadable()))
	return nil
}

// setupRouter configures the HTTP router with all routes
func (a *Application) setupRouter() {
	r := chi.NewRouter()

	// These don't wrap the ResponseWriter, so the websocket upgrade stays intact
	r.Use(customMiddleware.RequestID)
	r.Use(customMiddleware.RealIP)

	// set before any mount so subrouters inherit them
	r.NotFound(a.ErrorHandler.NotFound)
	r.MethodNotAllowed(a.ErrorHandler.MethodNotAllowed)

	upgrader := ws.NewUpgrader(a.allowedOrigins(), a.Logger)
	if a.Config.WebSocket.ReadBufferSize > 0 {
		upgrader.ReadBufferSize = a.Config.WebSocket.ReadBufferSize
	}
	if a.Config.WebSocket.WriteBufferSize > 0 {
		upgrader.WriteBufferSize = a.Config.WebSocket.WriteBufferSize
	}
	r.HandleFunc(config.WebSocketEndpoint, func(w http.ResponseWriter, r *http.Request) {
		ws.ServeWS(a.WebSocketHub, upgrader, w, r)
	})

	r.Group(func(r chi.Router) {
		otelMiddleware, err := customMiddleware.NewOTelMiddleware(a.OTelProviders, a.Metrics)
		if err != nil {
			a.Logger.Error("Failed to create OpenTelemetry middleware", slog.String("error", err.Error()))
		} else {
			r.Use(otelMiddleware.Handler)
		}

		r.Use(customMiddleware.StructuredLogger(a.Logger))
		r.Use(a.ErrorHandler.Recoverer)
		r.Use(customMiddleware.SecurityHeaders)
		r.Use(customMiddleware.StripSlashes)
		r.Use(customMiddleware.Compress(5))

		if a.Config.Security.EnableCORS {
			r.Use(customMiddleware.CORS(a.corsConfig()))
		}

		if a.Config.Security.RateLimit.Enabled {
			r.Use(customMiddleware.NewRateLimiter(
				a.Config.Security.RateLimit.RPS,
				a.Config.Security.RateLimit.Burst,
				a.Logger,
			).Handler)
		}

		a.setupAPIRoutes(r)
	})

	if a.OTelProviders.PrometheusHTTP != nil {
		r.Handle(config.MetricsEndpoint, a.OTelProviders.PrometheusHTTP)
	}

	a.Router = r
}

// setupAPIRoutes configures API endpoints
func (a *Application) setupAPIRoutes(r chi.Router) {
	healthHandler := handlers.NewHealthHandler(a.HealthService, a.Logger)
	r.Get(config.HealthEndpoint, healthHandler.HealthCheck)

	r.Route(config.APIBasePath, func(r chi.Router) {
		r.Use(render.SetContentType(render.ContentTypeJSON))

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(a.Config.Server.ReadTimeout))

			r.Get("/health", healthHandler.HealthCheck)
			r.Get("/health/ready", healthHandler.ReadinessCheck)
			r.Get("/health/live", healthHandler.LivenessCheck)
			r.Get("/health/stats", healthHandler.Stats)
			r.Get("/version", healthHandler.Version)
		})

		// tweaking a large file on a cold cache outlasts the read timeout
		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(a.Config.Server.OperationTimeout))

			dataHandler := handlers.NewDataHandler(a.DataService, a.Validation, a.ErrorHandler, a.Logger)
			r.Mount("/datasets", dataHandler.Routes())

			opsHandler := handlers.NewOperationsHandler(a.OperationService, a.Validation, a.ErrorHandler, a.Logger)
			r.Mount("/operations", opsHandler.Routes())
		})
	})
}

func (a *Application) allowedOrigins() []string {
	if !a.Config.Security.EnableCORS {
		return nil
	}
	return a.Config.Security.AllowedOrigins
}

func (a *Application) corsConfig() customMiddleware.CORSConfig {
	return customMiddleware.CORSConfig{
		AllowedOrigins: a.Config.Security.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{
			"Accept",
			"Content-Type",
			customMiddleware.RequestIDHeader,
		},
		MaxAge: 300,
		Logger: a.Logger,
	}
}

// createServer creates the HTTP server
func (a *Application) createServer() {
	a.Server = &http.Server{
		Addr:           fmt.Sprintf(":%d", a.Config.Server.Port),
		Handler:        a.Router,
		ReadTimeout:    a.Config.Server.ReadTimeout,
		WriteTimeout:   a.Config.Server.WriteTimeout,
		IdleTimeout:    a.Config.Server.IdleTimeout,
		MaxHeaderBytes: a.Config.Server.MaxHeaderBytes,
	}
	// operations can run past the write timeout
	if a.Config.Server.OperationTimeout > a.Server.WriteTimeout {
		a.Server.WriteTimeout = a.Config.Server.OperationTimeout
	}
}

// Start starts the background services and the HTTP server. A listen
// failure calls cancel.
func (a *Application) Start(ctx context.Context, cancel context.CancelFunc) error {
	a.Logger.InfoContext(ctx, "Starting application",
		slog.String("name", config.AppName),
		slog.String("version", config.AppVersion),
		slog.Int("port", a.Config.Server.Port),
		slog.String("level", a.Config.Logging.Level))

	a.Logger.InfoContext(ctx, "Application paths",
		slog.String("base_dir", a.Paths.BaseDir),
		slog.String("input_dir", a.Paths.InputDir),
		slog.String("reports_dir", a.Paths.ReportsDir),
		slog.String("logs_dir", a.Paths.LogsDir))

	a.WebSocketHub.Start()
	a.OperationService.Start(ctx)
	a.startCleanup(ctx)

	go func() {
		if err := a.Server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.Logger.ErrorContext(ctx, "Server error", slog.String("error", err.Error()))
			cancel()
		}
	}()

	if err := a.performStartupHealthCheck(ctx); err != nil {
		a.Logger.WarnContext(ctx, "Startup health check warnings", slog.String("warnings", err.Error()))
	}

	a.Logger.InfoContext(ctx, "Application started successfully",
		slog.String("address", fmt.Sprintf("http://localhost:%d", a.Config.Server.Port)))
	return nil
}

// startCleanup prunes finished operations until Stop or ctx ends
func (a *Application) startCleanup(ctx context.Context) {
	a.stopCleanup = make(chan struct{})
	stop := a.stopCleanup
	go func() {
		ticker := time.NewTicker(cleanupInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-stop:
				return
			case <-ticker.C:
				if n := a.OperationService.Cleanup(time.Hour); n > 0 {
					a.Logger.DebugContext(ctx, "pruned finished operations", slog.Int("count", n))
				}
			}
		}
	}()
}

// Stop gracefully stops the application
func (a *Application) Stop(ctx context.Context) error {
	a.Logger.InfoContext(ctx, "Shutting down application")

	shutdownCtx, cancel := context.WithTimeout(ctx, a.Config.Server.ShutdownTimeout)
	defer cancel()

	var errs []error
	if err := a.Server.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("server shutdown error: %w", err))
	}

	if a.stopCleanup != nil {
		close(a.stopCleanup)
		a.stopCleanup = nil
	}

	a.Logger.InfoContext(ctx, "Stopping job queue")
	if err := a.OperationService.Stop(a.Config.Server.ShutdownTimeout); err != nil {
		a.Logger.ErrorContext(ctx, "Failed to stop job queue gracefully", slog.String("error", err.Error()))
	}

	a.WebSocketHub.Stop()
	a.DataService.Close()

	if a.OTelProviders != nil {
		if err := a.OTelProviders.Shutdown(shutdownCtx); err != nil {
			a.Logger.ErrorContext(ctx, "Error shutting down OpenTelemetry", slog.String("error", err.Error()))
		}
	}

	a.Logger.InfoContext(ctx, "Application shutdown complete")
	if err := infrastructure.CloseLogFile(); err != nil {
		errs = append(errs, fmt.Errorf("close log file: %w", err))
	}
	return errors.Join(errs...)
}

// Run runs the application until interrupted
func (a *Application) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	if err := a.Start(ctx, cancel); err != nil {
		return err
	}

	select {
	case <-sigChan:
		a.Logger.InfoContext(ctx, "Received interrupt signal")
	case <-ctx.Done():
		a.Logger.InfoContext(ctx, "Server stopped unexpectedly")
	}

	return a.Stop(context.Background())
}

// performStartupHealthCheck verifies the data directories are usable
func (a *Application) performStartupHealthCheck(ctx context.Context) error {
	var warnings []string

	directories := map[string]string{
		"Reports": a.Paths.ReportsDir,
		"Logs":    a.Paths.LogsDir,
	}
	for name, dir := range directories {
		testFile := filepath.Join(dir, ".write_test")
		if err := os.WriteFile(testFile, []byte("test"), 0644); err != nil {
			warnings = append(warnings, fmt.Sprintf("%s directory not writable: %s", name, dir))
		} else {
			os.Remove(testFile)
		}
	}

	if !config.FileExists(a.Paths.InputDir) {
		warnings = append(warnings, fmt.Sprintf("Input directory not found: %s", a.Paths.InputDir))
	}

	for _, info := range a.DataService.Datasets(ctx) {
		if !info.Available {
			a.Logger.InfoContext(ctx, "Dataset input not found",
				slog.String("dataset", info.Name),
				slog.String("source", info.Source))
		}
	}

	if len(warnings) > 0 {
		return fmt.Errorf("startup health check warnings: %s", strings.Join(warnings, "; "))
	}

	a.Logger.InfoContext(ctx, "Startup health check passed")
	return nil
}
