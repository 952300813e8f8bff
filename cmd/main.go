package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/falabot/server/adapters/audio"
	"github.com/falabot/server/internal/api"
	"github.com/falabot/server/internal/auth"
	"github.com/falabot/server/internal/config"
	"github.com/falabot/server/internal/conversation"
	"github.com/falabot/server/internal/dispatcher"
	"github.com/falabot/server/internal/logger"
	"github.com/falabot/server/internal/orchestrator"
	"github.com/falabot/server/internal/persistence"
	"github.com/falabot/server/internal/provider"
	"github.com/falabot/server/internal/stats"
	"github.com/falabot/server/internal/websocket"
)

func main() {
	envFile := pflag.String("env-file", ".env", "path to a .env file, ignored when missing")
	pflag.Parse()

	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "failed to load %s: %v\n", *envFile, err)
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{Level: cfg.LogLevel, Format: cfg.LogFormat, FilePath: cfg.LogFile})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	runCtx, cancelRun := context.WithCancel(context.Background())
	defer cancelRun()

	// Initialize adapters
	catalog, closeProviders := buildCatalog(runCtx, cfg, log)
	defer closeProviders()

	providers, err := provider.Build(cfg.ProviderMode, catalog, cfg.Language, log)
	if err != nil {
		log.Fatal("Failed to resolve providers", zap.Error(err))
	}

	storage, err := buildStorage(runCtx, cfg, log)
	if err != nil {
		log.Fatal("Failed to initialize storage", zap.Error(err))
	}

	inflightSet, closeInflight := buildInflight(runCtx, cfg, log)
	defer closeInflight()

	converter := audio.NewConverter(cfg.Audio.FFmpegPath, cfg.Audio.FFprobePath, log)
	if err := converter.Available(); err != nil {
		log.Warn("Audio tools unavailable, voice notes will fail to convert", zap.Error(err))
	}

	// Operational bridge
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	sink := stats.NewSink(registry, string(cfg.ProviderMode), log)
	reporter := stats.NewReporter(sink, cfg.StatsReportInterval, log)
	reporter.Start()

	// Pipeline
	contexts := conversation.NewStore(conversation.DefaultCapacity, log)
	orch := orchestrator.New(orchestrator.CapabilitiesFrom(providers), contexts, orchestrator.Options{
		EnableAudioReply: cfg.EnableAudioReply,
		ContextWindow:    orchestrator.DefaultContextWindow,
	}, log)
	go sink.ConsumeEvents(runCtx, orch.Runner().EventChannel())

	gateway := persistence.NewGateway(storage.users, storage.records, storage.objects, log)

	hub := websocket.NewHub(log)
	messageDispatcher := dispatcher.New(dispatcher.Deps{
		Inflight:     inflightSet,
		Orchestrator: orch,
		Persistence:  gateway,
		Contexts:     contexts,
		Converter:    converter,
		Sender:       hub,
		Ops:          sink,
	}, dispatcher.Options{
		MaxAudioDurationSeconds: cfg.MaxAudioDurationSeconds,
		EnableAudioReply:        cfg.EnableAudioReply,
		ProbeTimeout:            cfg.ProbeTimeout,
		ConvertTimeout:          cfg.ConvertTimeout,
		DefaultDurationSeconds:  cfg.DefaultDurationSeconds,
	}, log)
	hub.SetHandler(messageDispatcher)

	hubCtx, stopHub := context.WithCancel(runCtx)
	go hub.Run(hubCtx)

	authenticator, err := auth.NewAuthenticator(cfg.Bridge.JWTSecret, cfg.Bridge.SharedSecret, cfg.Bridge.TokenTTL)
	if err != nil {
		log.Fatal("Failed to initialize bridge authentication", zap.Error(err))
	}

	// Create Echo instance
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:    true,
		LogStatus: true,
		LogMethod: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			log.Debug("Request",
				zap.String("method", v.Method),
				zap.String("uri", v.URI),
				zap.Int("status", v.Status))
			return nil
		},
	}))

	api.InitRoutes(e, api.Deps{
		Hub:           hub,
		Auth:          authenticator,
		Stats:         sink,
		Runs:          orch.Runner(),
		Conversations: contexts,
		Inflight:      inflightSet,
		Gatherer:      registry,
	}, log)

	go func() {
		if err := e.Start(":" + cfg.Port); err != nil && err != http.ErrServerClosed {
			log.Fatal("shutting down the server", zap.Error(err))
		}
	}()

	log.Info("Server started",
		zap.String("port", cfg.Port),
		zap.String("mode", string(cfg.ProviderMode)),
		zap.Int("maxAudioDurationSeconds", cfg.MaxAudioDurationSeconds),
		zap.Bool("audioReply", cfg.EnableAudioReply))

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Info("Server is shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(ctx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}
	// bridges stay up until in-flight messages have replied
	if err := hub.Shutdown(ctx); err != nil {
		log.Warn("In-flight messages abandoned", zap.Error(err))
	}
	stopHub()
	reporter.Stop()
	storage.close(ctx)

	log.Info("Server exited")
}
