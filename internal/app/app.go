package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"

	"asyncops/internal/config"
	apierrors "asyncops/internal/errors"
	"asyncops/internal/exporter"
	"asyncops/internal/infrastructure"
	customMiddleware "asyncops/internal/middleware"
	"asyncops/internal/operations"
	"asyncops/internal/services"
	handlers "asyncops/internal/transport/http"
	ws "asyncops/internal/websocket"
	"asyncops/pkg/contracts"
)

// AppName is reported in startup logs and version strings
const AppName = "asyncopsd"

// Application represents the main application container
type Application struct {
	Config        *config.Config
	Router        *chi.Mux
	Server        *http.Server
	Logger        *slog.Logger
	OTelProviders *infrastructure.OTelProviders

	Manager    *operations.Manager
	Hub        *ws.Hub
	Bridge     *ws.EventBridge
	History    *exporter.History
	Operations *services.OperationService
	Batches    *services.BatchService

	errors    *apierrors.ErrorHandler
	validator *customMiddleware.Validator
	logCloser io.Closer
	stopOnce  sync.Once
	stopErr   error
}

// New loads the configuration from configPath (or the default locations)
// and builds the application
func New(configPath string) (*Application, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, closer, err := infrastructure.NewLogger(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	a, err := NewApplication(cfg, logger)
	if err != nil {
		_ = closer.Close()
		return nil, err
	}
	a.logCloser = closer
	return a, nil
}

// NewApplication wires every component from an already loaded config
func NewApplication(cfg *config.Config, logger *slog.Logger) (*Application, error) {
	logger.Info("Application starting",
		slog.String("name", AppName),
		slog.String("version", contracts.Version),
		slog.String("address", cfg.Server.Addr()))

	providers, err := infrastructure.InitializeOTel(cfg.Telemetry, contracts.Version, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize OpenTelemetry: %w", err)
	}

	a := &Application{
		Config:        cfg,
		Logger:        logger,
		OTelProviders: providers,
		errors:        apierrors.NewErrorHandler(logger, cfg.Telemetry.Environment == "development"),
		validator:     customMiddleware.NewValidator(logger),
	}

	if err := a.initializeServices(); err != nil {
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	a.setupRouter()
	a.createServer()
	return a, nil
}

// initializeServices builds the orchestrator and everything observing it.
// The bridge must exist before the manager so it can serve as create hook.
func (a *Application) initializeServices() error {
	cfg := a.Config

	hub, err := ws.NewHub(
		ws.OptionsFromConfig(cfg.WebSocket, cfg.Security.AllowedOrigins),
		infrastructure.WithComponent(a.Logger, "websocket"),
		a.OTelProviders.Meter,
	)
	if err != nil {
		return fmt.Errorf("failed to create websocket hub: %w", err)
	}
	a.Hub = hub
	a.Bridge = ws.NewEventBridge(hub, infrastructure.WithComponent(a.Logger, "event_bridge"))

	instr, err := operations.NewInstrumentation(a.OTelProviders.TracerProvider, a.OTelProviders.MeterProvider)
	if err != nil {
		return fmt.Errorf("failed to create operation instrumentation: %w", err)
	}

	a.Manager = operations.NewManager(
		operations.WithLogger(infrastructure.WithComponent(a.Logger, "operations")),
		operations.WithGracePeriod(cfg.Orchestrator.GracePeriod),
		operations.WithCreateHook(a.Bridge.ProgressStarted),
		operations.WithInstrumentation(instr, a.OTelProviders.MeterProvider),
	)
	a.Bridge.Attach(a.Manager.Events())

	a.History = exporter.NewHistory(cfg.History.Capacity)
	a.History.Attach(a.Manager.Events())

	// outbound probe and batch requests carry the caller's trace
	client := &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}

	svcLogger := infrastructure.WithComponent(a.Logger, "services")
	a.Operations = services.NewOperationService(a.Manager, cfg.Orchestrator, client, svcLogger)
	a.Batches = services.NewBatchService(a.Manager, cfg.Orchestrator, client, svcLogger)
	return nil
}

// setupRouter configures routes and middleware.
// Order: RequestID → RealIP → OTel → Logger → Recoverer → headers → CORS → rate limit.
func (a *Application) setupRouter() {
	r := chi.NewRouter()

	r.Use(customMiddleware.RequestID)
	r.Use(customMiddleware.RealIP)

	httpMetrics, err := infrastructure.CreateHTTPMetrics(a.OTelProviders.Meter)
	if err != nil {
		a.Logger.Error("Failed to create OpenTelemetry middleware", slog.String("error", err.Error()))
	} else {
		r.Use(customMiddleware.NewOTelMiddleware(a.OTelProviders.Tracer, httpMetrics, a.Logger).Handler)
	}
	r.Use(customMiddleware.StructuredLogger(a.Logger))
	r.Use(customMiddleware.Recoverer(a.errors))
	r.Use(customMiddleware.SecurityHeaders)

	if a.Config.Security.EnableCORS {
		r.Use(customMiddleware.CORS(customMiddleware.CORSConfig{
			AllowedOrigins: a.Config.Security.AllowedOrigins,
			Logger:         a.Logger,
		}))
	}
	if rl := a.Config.Security.RateLimit; rl.Enabled {
		r.Use(customMiddleware.NewRateLimiter(rl.RPS, rl.Burst, a.errors, a.Logger).Handler)
	}

	r.NotFound(a.errors.NotFound)
	r.MethodNotAllowed(a.errors.MethodNotAllowed)

	// long-lived: no request timeout
	r.Get("/ws", a.Hub.ServeWS)

	if a.OTelProviders.PrometheusHTTP != nil {
		r.Handle("/metrics", a.OTelProviders.PrometheusHTTP)
	}

	a.setupAPIRoutes(r)
	a.Router = r
}

// setupAPIRoutes configures API endpoints
func (a *Application) setupAPIRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Use(render.SetContentType(render.ContentTypeJSON))
		r.Use(customMiddleware.Timeout(a.Config.Server.RequestTimeout, a.errors))

		health := handlers.NewHealthHandler(contracts.GetVersionInfo(), a.Operations, a.Hub)
		r.Get("/health", health.HealthCheck)
		r.Get("/version", health.Version)

		r.Group(func(r chi.Router) {
			r.Use(customMiddleware.ContentTypeValidator(a.errors, "application/json"))

			opsLogger := infrastructure.WithComponent(a.Logger, "operations_handler")
			r.Mount("/operations", handlers.NewOperationsHandler(a.Operations, a.validator, a.errors, opsLogger).Routes())

			batchLogger := infrastructure.WithComponent(a.Logger, "batch_handler")
			r.Mount("/batches", handlers.NewBatchHandler(a.Batches, a.validator, a.errors, batchLogger).Routes())
		})

		historyLogger := infrastructure.WithComponent(a.Logger, "history_handler")
		r.Mount("/history", handlers.NewHistoryHandler(a.History, a.errors, historyLogger).Routes())
	})
}

// createServer creates the HTTP server
func (a *Application) createServer() {
	a.Server = &http.Server{
		Addr:           a.Config.Server.Addr(),
		Handler:        a.Router,
		ReadTimeout:    a.Config.Server.ReadTimeout,
		WriteTimeout:   a.Config.Server.WriteTimeout,
		IdleTimeout:    a.Config.Server.IdleTimeout,
		MaxHeaderBytes: a.Config.Server.MaxHeaderBytes,
	}
}

// Run listens on the configured address and serves until ctx is cancelled
func (a *Application) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.Server.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", a.Server.Addr, err)
	}
	return a.Serve(ctx, ln)
}

// Serve runs the websocket hub and the HTTP server on ln until ctx is
// cancelled or either fails, then shuts everything down
func (a *Application) Serve(ctx context.Context, ln net.Listener) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.Hub.Run(gctx)
	})

	g.Go(func() error {
		a.Logger.InfoContext(gctx, "HTTP server listening", slog.String("address", ln.Addr().String()))
		if err := a.Server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		return a.Stop(context.WithoutCancel(ctx))
	})

	return g.Wait()
}

// Stop gracefully stops the application. It is safe to call more than once.
func (a *Application) Stop(ctx context.Context) error {
	a.stopOnce.Do(func() {
		a.stopErr = a.stop(ctx)
	})
	return a.stopErr
}

func (a *Application) stop(ctx context.Context) error {
	a.Logger.InfoContext(ctx, "Shutting down application")

	shutdownCtx, cancel := context.WithTimeout(ctx, a.Config.Server.ShutdownTimeout)
	defer cancel()

	var errs []error
	if err := a.Server.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("server shutdown error: %w", err))
	}

	a.Batches.Close()
	a.Bridge.Stop()
	a.History.Stop()

	if n := a.Manager.ClearAll(shutdownCtx); n > 0 {
		a.Logger.InfoContext(ctx, "Dropped operations at shutdown", slog.Int("count", n))
	}

	if a.OTelProviders != nil {
		if err := a.OTelProviders.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("telemetry shutdown error: %w", err))
		}
	}

	a.Logger.InfoContext(ctx, "Application shutdown complete")

	if a.logCloser != nil {
		if err := a.logCloser.Close(); err != nil {
			errs = append(errs, fmt.Errorf("log file close error: %w", err))
		}
	}
	return errors.Join(errs...)
}
