package app

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"meeting-protocol-service/internal/config"
	"meeting-protocol-service/internal/observability/logging"
	"meeting-protocol-service/internal/observability/metrics"
	"meeting-protocol-service/internal/service/jobs"
)

// Application holds process-wide state for the service.
type Application struct {
	StartupTime time.Time
	Logger      zerolog.Logger
	Cfg         *config.Configuration
	Jobs        *jobs.Service
	Metrics     *metrics.Metrics
}

// New constructs a new Application from the provided configuration and the
// jobs service the serving layers share.
func New(cfg *config.Configuration, svc *jobs.Service, m *metrics.Metrics) *Application {
	if m == nil {
		m = metrics.DefaultMetrics
	}
	a := &Application{
		Cfg:     cfg,
		Jobs:    svc,
		Metrics: m,
		Logger:  logging.WithComponent("application"),
	}

	appLogger := a.Logger.With().
		Str("method", "New").
		Logger()

	if cfg.Service.APIKey == "" {
		appLogger.Warn().Msg("MICROSERVICE_API_KEY is not set, /v1 endpoints are unauthenticated")
	}
	appLogger.Info().Msg("Meeting protocol service application created")
	return a
}

// Ready reports whether the service can take requests.
func (a *Application) Ready(ctx context.Context) error {
	return a.Jobs.Ping(ctx)
}

// Start performs any startup work required before serving traffic.
func (a *Application) Start() error {
	startLogger := a.Logger.With().
		Str("method", "Start").
		Logger()

	a.StartupTime = time.Now().UTC()
	startLogger.Info().
		Time("startupTime", a.StartupTime).
		Str("storeBackend", a.Cfg.Store.Backend).
		Str("sttProvider", a.Cfg.STT.Provider).
		Str("diarizationProvider", a.Cfg.Diarization.Provider).
		Int("maxConcurrentJobs", a.Cfg.Worker.MaxConcurrentJobs).
		Msg("Meeting protocol service starting")

	return nil
}

// Shutdown performs a best-effort cleanup before process exit.
func (a *Application) Shutdown() {
	shutdownLogger := a.Logger.With().
		Str("method", "Shutdown").
		Logger()

	shutdownLogger.Info().
		Dur("uptime", time.Since(a.StartupTime)).
		Msg("Meeting protocol service shutting down")
}
