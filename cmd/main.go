package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	grpcapi "meeting-protocol-service/internal/api/grpc"
	"meeting-protocol-service/internal/app"
	"meeting-protocol-service/internal/config"
	"meeting-protocol-service/internal/events"
	"meeting-protocol-service/internal/executor"
	httpapi "meeting-protocol-service/internal/http"
	"meeting-protocol-service/internal/observability"
	"meeting-protocol-service/internal/observability/logging"
	"meeting-protocol-service/internal/observability/metrics"
	"meeting-protocol-service/internal/service/jobs"
	"meeting-protocol-service/internal/service/pipeline"
	"meeting-protocol-service/internal/service/summarize"
	"meeting-protocol-service/internal/service/worker"
	"meeting-protocol-service/internal/store"
	"meeting-protocol-service/internal/watcher"
)

const shutdownTimeout = 30 * time.Second

func main() {
	cfg := config.Load()

	logCfg := logging.DefaultConfig()
	logCfg.Level = cfg.Observability.LogLevel
	logCfg.Format = cfg.Observability.LogFormat
	logging.Init(logCfg)
	logger := logging.Logger()

	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	m := metrics.DefaultMetrics

	st, err := store.Open(cfg.Store.Backend, cfg.Store.Path, logger)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open job store")
	}
	defer st.Close()

	// Create Kafka publisher with separate topics for status and summaries
	publisher := events.New(&events.Config{
		Enabled:      cfg.Kafka.Enabled,
		Brokers:      cfg.Kafka.Brokers,
		TopicStatus:  cfg.Kafka.TopicStatus,
		TopicSummary: cfg.Kafka.TopicSummary,
		Principal:    cfg.Kafka.Principal,
	})
	defer publisher.Close()

	exec := executor.New()
	transcriber, closeTranscriber, err := newTranscriber(ctx, cfg, exec)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create transcriber")
	}
	defer closeTranscriber()

	orchestrator := pipeline.New(pipeline.Deps{
		Normalizer:  newNormalizer(cfg, exec),
		Diarizer:    newDiarizer(cfg),
		Transcriber: transcriber,
		Store:       st,
		Events:      publisher,
		Metrics:     m,
		Logger:      logger,
	})

	dispatcher, err := summarize.New(summarizeConfig(cfg), m, logger)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create summarization dispatcher")
	}

	svc := jobs.New(jobs.Config{
		WorkDir:          cfg.Service.WorkDir,
		MaxUploadBytes:   cfg.Service.MaxUploadBytes,
		DefaultModelSize: cfg.STT.DefaultModelSize,
	}, jobs.Deps{
		Store:      st,
		Summarizer: dispatcher,
		Events:     publisher,
		Metrics:    m,
	})
	queue := worker.New(worker.Config{
		MaxConcurrentJobs: cfg.Worker.MaxConcurrentJobs,
		QueueSize:         cfg.Worker.QueueSize,
		OnDropped:         svc.Dropped,
	}, logger)
	svc.SetQueue(queue)

	application := app.New(cfg, svc, m)
	if err := application.Start(); err != nil {
		log.Fatal().Err(err).Msg("Failed to start application")
	}

	httpServer := &http.Server{
		Addr:              ":" + cfg.Service.HTTPPort,
		Handler:           httpapi.NewRouter(application),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	grpcServer := grpcapi.New(m, application.Ready)
	lis, err := net.Listen("tcp", ":"+cfg.Service.GRPCPort)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to listen for gRPC")
	}

	// Start observability server (metrics, health, readiness)
	obsServer := observability.NewServer(cfg.Observability.MetricsAddr, application.Ready)
	obsServer.Start()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return queue.Run(gctx, orchestrator.Run)
	})
	g.Go(func() error {
		log.Info().Str("addr", httpServer.Addr).Msg("HTTP API started")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return grpcServer.Serve(lis)
	})
	g.Go(func() error {
		grpcServer.MonitorReadiness(gctx, 10*time.Second)
		return nil
	})
	if cfg.Inbox.Dir != "" {
		w, err := watcher.New(watcher.Config{Dir: cfg.Inbox.Dir, ModelSize: cfg.STT.DefaultModelSize}, svc, logger)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to start inbox watcher")
		}
		g.Go(func() error {
			return w.Run(gctx)
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
		defer cancel()

		grpcServer.Shutdown(shutdownCtx)
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("HTTP shutdown failed")
		}
		if err := obsServer.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Observability server shutdown failed")
		}
		return nil
	})

	err = g.Wait()
	application.Shutdown()
	if err != nil {
		log.Error().Err(err).Msg("Service stopped with error")
		os.Exit(1)
	}
}
