package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/compose-network/reqcoord/coordinator-app/config"
	"github.com/compose-network/reqcoord/metrics"
	apisrv "github.com/compose-network/reqcoord/server/api"
	apimw "github.com/compose-network/reqcoord/server/api/middleware"
	"github.com/compose-network/reqcoord/x/coordinator"
	coordhttp "github.com/compose-network/reqcoord/x/coordinator/http"
)

// App wires the coordinator, the HTTP API, and metrics together.
type App struct {
	cfg *config.Config
	log zerolog.Logger

	coord      *coordinator.Coordinator[FetchResult]
	apiServer  *apisrv.Server
	httpClient *http.Client

	cancel context.CancelFunc
}

// NewApp creates a new application instance.
func NewApp(cfg *config.Config, log zerolog.Logger) (*App, error) {
	app := &App{
		cfg: cfg,
		log: log.With().Str("component", "app").Logger(),
		httpClient: &http.Client{
			// Per-request deadlines come from the coordinator's scope;
			// this only guards dial-level pathologies.
			Timeout: 5 * time.Minute,
		},
	}

	if err := app.initialize(log); err != nil {
		return nil, fmt.Errorf("failed to initialize app: %w", err)
	}

	return app, nil
}

// initialize sets up the coordinator and the HTTP API server.
func (a *App) initialize(log zerolog.Logger) error {
	coordCfg := coordinator.DefaultConfig(log)
	coordCfg.MaxConcurrentRequests = a.cfg.Coordinator.MaxConcurrentRequests
	coordCfg.DefaultTimeout = a.cfg.Coordinator.DefaultTimeout
	coordCfg.DefaultCacheTTL = a.cfg.Coordinator.DefaultCacheTTL
	coordCfg.SweepInterval = a.cfg.Coordinator.SweepInterval
	coordCfg.StaleThreshold = a.cfg.Coordinator.StaleThreshold
	coordCfg.EnableMetrics = a.cfg.Metrics.Enabled

	coord, err := coordinator.New[FetchResult](coordCfg)
	if err != nil {
		return fmt.Errorf("failed to create coordinator: %w", err)
	}
	a.coord = coord

	s := apisrv.NewServer(a.cfg.API, log)
	s.Use(apimw.Recover(a.log))
	s.Use(apimw.RequestID())
	s.Use(apimw.Logger(a.log))

	s.Router.HandleFunc("/health", a.handleHealth).Methods(http.MethodGet)
	s.Router.HandleFunc("/v1/fetch", a.handleFetch).Methods(http.MethodPost)

	coordhttp.NewHandler(coord, log).RegisterMux(s.Router)

	if a.cfg.Metrics.Enabled {
		s.Router.Handle(a.cfg.Metrics.Path,
			promhttp.HandlerFor(metrics.Registry(), promhttp.HandlerOpts{})).
			Methods(http.MethodGet)
	}

	a.apiServer = s
	return nil
}

// Run starts the application and blocks until shutdown.
func (a *App) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- a.apiServer.Start(runCtx)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	a.log.Info().Msg("Request coordinator started successfully")

	select {
	case <-runCtx.Done():
		a.log.Info().Msg("Context canceled, initiating shutdown")
	case sig := <-sigCh:
		a.log.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
	case err := <-serverErr:
		if err != nil {
			a.log.Error().Err(err).Msg("API server error")
		}
		a.shutdown()
		return err
	}

	a.shutdown()
	return nil
}

// shutdown aborts in-flight work and stops the HTTP server.
func (a *App) shutdown() {
	a.log.Info().Msg("Initiating graceful shutdown")

	a.coord.Cleanup()
	if a.cancel != nil {
		a.cancel()
	}

	a.log.Info().Msg("Graceful shutdown complete")
}

// handleHealth responds to health check requests.
func (a *App) handleHealth(w http.ResponseWriter, _ *http.Request) {
	apisrv.WriteJSON(w, http.StatusOK, map[string]string{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
