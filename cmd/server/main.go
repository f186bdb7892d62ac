package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/voicelayer/switchboard/internal/admission"
	"github.com/voicelayer/switchboard/internal/alerts"
	"github.com/voicelayer/switchboard/internal/api"
	"github.com/voicelayer/switchboard/internal/audit"
	"github.com/voicelayer/switchboard/internal/auth"
	"github.com/voicelayer/switchboard/internal/config"
	"github.com/voicelayer/switchboard/internal/directory"
	"github.com/voicelayer/switchboard/internal/lifecycle"
	"github.com/voicelayer/switchboard/internal/livecalls"
	"github.com/voicelayer/switchboard/internal/metrics"
	"github.com/voicelayer/switchboard/internal/rollup"
	"github.com/voicelayer/switchboard/internal/storage"
	"github.com/voicelayer/switchboard/internal/ticker"
	"github.com/voicelayer/switchboard/internal/voice"
	"github.com/voicelayer/switchboard/internal/waitqueue"
	"github.com/voicelayer/switchboard/internal/websocket"
	"github.com/voicelayer/switchboard/pkg/middleware"
)

func main() {
	// Configure logger
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	// Set log level
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.Warn().Str("level", cfg.LogLevel).Msg("invalid log level, using info")
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	log.Info().
		Str("port", cfg.Port).
		Strs("allowed_origins", cfg.AllowedOrigins).
		Str("log_level", cfg.LogLevel).
		Str("store_mode", cfg.StoreMode).
		Msg("starting switchboard server")

	// Create context for background services
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Metrics registry
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(cfg.MetricsNamespace, reg)

	// Operational store
	store, err := storage.NewStore(ctx, cfg.StoreMode, cfg.DatabaseURL, log.Logger)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize store")
	}

	// Hydrate the agent directory so capacity accounting survives restarts.
	// Open session counts restore each agent's live load.
	agents, err := store.ListAgents(ctx, "")
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load agents for directory hydration")
	}
	loads, err := store.OpenSessionCounts(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load open session counts")
	}
	registry := directory.NewRegistry()
	registry.Hydrate(agents, loads)
	log.Info().Int("agents", len(agents)).Msg("agent directory hydrated")

	// Wait queue service
	queue := waitqueue.NewService(store, cfg.SLThresholdSecs, log.Logger)

	// WebSocket hub for dashboard broadcasts
	hub := websocket.NewHub(m, log.Logger)
	go hub.Run()

	// Alert envelopes also fan out to Slack when a webhook is configured
	notifier := alerts.NewNotifier(cfg.SlackWebhookURL, log.Logger)
	publisher := alerts.NewRelay(hub, notifier)

	// Voice provider client for bridging calls to agent endpoints
	var bridger voice.Bridger
	if cfg.VoiceProviderURL != "" {
		bridger = voice.NewClient(cfg.VoiceProviderURL, cfg.TransferTimeout, log.Logger)
	} else {
		log.Warn().Msg("VOICE_PROVIDER_URL not set, bridging disabled")
		bridger = &voice.NoopBridger{Logger: log.Logger}
	}

	// Analytics sink (DynamoDB or noop per DYNAMO_MODE)
	sink, err := audit.NewSink(ctx, log.Logger)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize audit sink")
	}

	// Admission controller and queue drainer
	controller := admission.NewController(registry, queue, store, sink, bridger, publisher, m, log.Logger)
	drainer := admission.NewDrainer(controller, cfg.DrainInterval, log.Logger)
	go drainer.Run(ctx)

	// Call lifecycle ingestion from the voice pipeline
	processor := lifecycle.NewProcessor(store, registry, queue, publisher, m, log.Logger)
	receiver := lifecycle.NewReceiver(processor, log.Logger)

	// Live call reads
	liveSvc := livecalls.NewService(store, log.Logger)

	// Periodic queue stats and roster broadcasts
	statsTicker := ticker.NewTicker(queue, registry, hub, m, cfg.StatsInterval, log.Logger)
	go statsTicker.Start(ctx)

	// Queue health alerting
	checker := alerts.NewChecker(queue, publisher, alerts.Thresholds{
		QueueDepthWarning:  cfg.QueueDepthWarning,
		QueueDepthCritical: cfg.QueueDepthCritical,
		QueueWaitWarning:   cfg.QueueWaitWarning,
		QueueWaitCritical:  cfg.QueueWaitCritical,
		Cooldown:           cfg.AlertCooldown,
	}, cfg.AlertInterval, log.Logger)
	go checker.Run(ctx)

	// Nightly per-agent rollup into the analytics sink
	roller := rollup.NewRoller(store, sink, cfg.RollupSchedule, log.Logger)
	go roller.Run(ctx)

	// WebSocket handler
	wsHandler := websocket.NewHandler(hub, cfg, log.Logger)

	// REST handlers
	transferHandler := api.NewTransferHandler(controller, store, log.Logger)
	queueHandler := api.NewQueueHandler(queue, controller, publisher, log.Logger)
	liveCallsHandler := api.NewLiveCallsHandler(liveSvc, log.Logger)
	rosterHandler := api.NewRosterHandler(registry, store, publisher, log.Logger)
	agentActions := api.NewAgentActionsHandler(registry, store, publisher, log.Logger)
	agentHistory := api.NewAgentHistoryHandler(sink, log.Logger)
	adminHandler := api.NewAdminHandler(controller, sink, log.Logger)

	// Create router
	r := chi.NewRouter()

	// Add middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logger(log.Logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(cfg.AllowedOrigins))

	// Public routes (no auth required)
	r.Get("/health", healthHandler)
	r.Method(http.MethodGet, "/metrics", metrics.Handler(reg))

	// Internal routes (no auth - called by the voice pipeline and bot)
	r.Route("/internal", func(r chi.Router) {
		r.Route("/calls", func(r chi.Router) {
			r.Post("/started", receiver.HandleCallStarted)
			r.Post("/ended", receiver.HandleCallEnded)
			r.Post("/status", receiver.HandleStatusChanged)
			r.Post("/transcript", receiver.HandleTranscript)
			r.Post("/analytics", receiver.HandleAnalytics)
			r.Get("/stats", receiver.GetStats)
		})
		r.Post("/agents/roster", rosterHandler.HandleRoster)
		r.Post("/transfers", transferHandler.HandleTransfer)
	})

	// Protected routes
	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware)
		r.Get("/ws", wsHandler.ServeHTTP)

		r.Route("/api", func(r chi.Router) {
			r.Post("/transfers", transferHandler.HandleTransfer)
			r.Get("/calls/{callId}/transfers", transferHandler.GetTransferLog)

			r.Route("/queue", func(r chi.Router) {
				r.Get("/", queueHandler.GetQueue)
				r.Get("/stats", queueHandler.GetStats)
				r.Put("/{entryId}/status", queueHandler.UpdateEntry)
			})

			r.Route("/live-calls", func(r chi.Router) {
				r.Get("/", liveCallsHandler.List)
				r.Get("/{callId}", liveCallsHandler.Get)
				r.Get("/{callId}/metrics", liveCallsHandler.GetMetrics)
				r.Get("/{callId}/transcript", liveCallsHandler.GetTranscript)
			})

			r.Route("/agents", func(r chi.Router) {
				r.Get("/", rosterHandler.ListAgents)
				r.Get("/{agentId}", rosterHandler.GetAgent)
				r.Put("/{agentId}/status", agentActions.SetStatus)
				r.Get("/{agentId}/history", agentHistory.GetHistory)
				r.Get("/{agentId}/transfers", agentHistory.GetTransfers)
			})

			r.Route("/admin", func(r chi.Router) {
				r.Use(api.RequireSupervisorOrAdmin)
				r.Post("/queue/drain", adminHandler.TriggerDrain)
				r.With(api.RequireAdmin).Delete("/audit", adminHandler.WipeAudit)
			})
		})
	})

	// Create HTTP server
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		log.Info().Msgf("server listening on :%s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	// Wait for interrupt signal to gracefully shut down the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server...")

	// Stop background loops
	cancel()

	// Create shutdown context with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	// Attempt graceful shutdown
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("server forced to shutdown")
	}

	if err := store.Close(); err != nil {
		log.Error().Err(err).Msg("failed to close store")
	}

	log.Info().Msg("server stopped")
}

// healthHandler handles health check requests
func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{"status":"ok","service":"switchboard"}`)
}
