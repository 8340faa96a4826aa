package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"sosalert/internal/config"
	"sosalert/internal/events"
	handlers "sosalert/internal/handlers/shared"
	"sosalert/internal/middleware"
	"sosalert/internal/models"
	"sosalert/internal/services"
	"sosalert/pkg/logger"
	"sosalert/pkg/messaging"
	"sosalert/pkg/metrics"
	"sosalert/pkg/websocket"
	"sosalert/routes"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const shutdownTimeout = 15 * time.Second

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	appLogger, err := logger.NewLogger(&logger.Config{
		Level:   logger.LogLevel(cfg.App.LogLevel),
		Format:  cfg.App.LogFormat,
		Output:  cfg.App.LogOutput,
		Caller:  cfg.App.Debug,
		AppName: cfg.App.Name,
		Version: cfg.App.Version,
	})
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}

	if err := run(cfg, appLogger); err != nil {
		appLogger.WithError(err).Fatal("Server stopped with error")
	}
}

func run(cfg *config.Config, appLogger *logger.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	audit := logger.NewAuditLoggerFrom(appLogger)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	appMetrics := metrics.NewMetrics(registry)

	store, err := openStorage(ctx, cfg, appLogger)
	if err != nil {
		return err
	}

	// Event fan-out. With Redis every instance relays the shared channel to
	// its own websocket hub; without it the hub is fed directly.
	busCtx, stopBus := context.WithCancel(context.Background())
	defer stopBus()

	hub := websocket.NewHub(appLogger)
	go hub.Run(busCtx)
	wsSink := events.NewWebSocketSink(hub)

	bus := events.NewBus(appLogger, cfg.Emergency.DispatchQueueSize)
	if store.redis != nil {
		bus.AddSink(events.NewRedisSink(store.redis, cfg.Emergency.EventChannel))
		relay := events.NewRedisRelay(store.redis, cfg.Emergency.EventChannel, wsSink, appLogger)
		go relay.Run(busCtx)
	} else {
		bus.AddSink(wsSink)
	}

	var producer *messaging.KafkaProducer
	if cfg.Kafka.Enabled {
		producer = messaging.NewKafkaProducer(&messaging.KafkaConfig{
			Brokers:      cfg.Kafka.Brokers,
			Topic:        cfg.Kafka.Topic,
			ClientID:     cfg.Kafka.ClientID,
			BatchTimeout: cfg.Kafka.BatchTimeout,
			WriteTimeout: cfg.Kafka.WriteTimeout,
			RequiredAcks: cfg.Kafka.RequiredAcks,
		})
		bus.AddSink(events.NewKafkaSink(producer))
		appLogger.WithField("topic", producer.Topic()).Info("Kafka event sink enabled")
	}
	go bus.Run(busCtx)

	sender, err := newChannelSender(ctx, cfg, appLogger)
	if err != nil {
		return err
	}

	// Services
	ec := cfg.Emergency
	timers := services.NewTimerRegistry(appMetrics)
	countdown := services.NewCountdownController(timers, appLogger)
	emergencyService := services.NewEmergencyService(store.emergencies, bus, audit, appMetrics, appLogger)
	ackService := services.NewAcknowledgmentService(store.acknowledgments, store.emergencies, bus, audit, appLogger)
	notificationService := services.NewNotificationService(
		services.NotificationConfig{Workers: ec.DispatchWorkers, QueueSize: ec.DispatchQueueSize},
		store.notifications,
		store.emergencies,
		services.NewBatchTracker(store.batches),
		sender,
		timers,
		appMetrics,
		appLogger,
	)
	escalationService := services.NewEscalationService(
		services.EscalationConfig{
			Timeout:          ec.EscalationTimeout,
			FollowUpInterval: ec.FollowUpInterval,
			MaxFollowUps:     ec.MaxFollowUps,
		},
		store.escalations,
		store.emergencies,
		store.acknowledgments,
		store.contacts,
		notificationService,
		timers,
		bus,
		appMetrics,
		appLogger,
	)
	bus.Subscribe(models.EventContactAcknowledged, escalationService.HandleAcknowledged)

	orchestrator := services.NewOrchestrator(
		services.OrchestratorConfig{
			DefaultCountdown:     ec.DefaultCountdown,
			AutoTriggerCountdown: ec.AutoTriggerCountdown,
		},
		emergencyService,
		countdown,
		notificationService,
		escalationService,
		ackService,
		store.contacts,
		timers,
		newAddressResolver(cfg, store, appLogger),
		appLogger,
	)

	archiver, err := newIncidentArchiver(ctx, cfg, orchestrator, appLogger)
	if err != nil {
		return err
	}
	if archiver != nil {
		bus.Subscribe(models.EventEmergencyResolved, archiver.HandleClosed)
		bus.Subscribe(models.EventEmergencyCancelled, archiver.HandleClosed)
	}

	notificationService.Start(busCtx)

	reconciler := services.NewReconciler(emergencyService, orchestrator, countdown, escalationService, ec.ReconcileInterval, appLogger)
	if err := reconciler.Start(ctx); err != nil {
		return fmt.Errorf("failed to start reconciler: %w", err)
	}

	// Initialize handlers
	emergencyHandler := handlers.NewEmergencyHandler(orchestrator)
	webhookHandler := handlers.NewWebhookHandler(orchestrator, appLogger)
	wsHandler := websocket.NewHandler(hub, websocket.HandlerConfig{
		ReadBufferSize:    cfg.WebSocket.ReadBufferSize,
		WriteBufferSize:   cfg.WebSocket.WriteBufferSize,
		HandshakeTimeout:  cfg.WebSocket.HandshakeTimeout,
		PingInterval:      cfg.WebSocket.PingInterval,
		PongTimeout:       cfg.WebSocket.PongTimeout,
		EnableCompression: cfg.WebSocket.EnableCompression,
		AllowedOrigins:    cfg.WebSocket.AllowedOrigins,
	})

	if !cfg.App.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	// Initialize Gin router
	router := gin.New()
	if err := router.SetTrustedProxies(cfg.Security.TrustedProxies); err != nil {
		return fmt.Errorf("invalid trusted proxies: %w", err)
	}

	// Global middleware
	router.Use(middleware.RecoveryMiddleware(appLogger))
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.LoggingMiddleware(appLogger, appMetrics))
	router.Use(middleware.CORSMiddleware(cfg.Security.CORSAllowedOrigins))

	// API routes
	v1 := router.Group("/api/v1")
	{
		routes.SetupEmergencyRoutes(v1, emergencyHandler, webhookHandler, routes.SecurityOptions{
			AuthEnabled:     cfg.Security.AuthEnabled,
			JWTSecret:       cfg.Security.JWTSecret,
			WebhookToken:    cfg.Security.WebhookToken,
			TwilioAuthToken: cfg.SMS.Twilio.AuthToken,
			PublicBaseURL:   cfg.App.BaseURL,
		})
	}

	router.GET(cfg.WebSocket.Path, middleware.AuthRequired(cfg.Security.AuthEnabled, cfg.Security.JWTSecret), wsHandler.HandleWebSocket)
	router.GET("/metrics", gin.WrapH(appMetrics.Handler()))

	// Health check
	router.GET("/health", func(c *gin.Context) {
		checkCtx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		status, code := "healthy", http.StatusOK
		if err := store.ping(checkCtx); err != nil {
			status, code = "degraded", http.StatusServiceUnavailable
		}
		c.JSON(code, gin.H{
			"status":  status,
			"version": cfg.App.Version,
			"storage": ec.StorageDriver,
		})
	})

	// Start server
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.App.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		appLogger.WithField("addr", srv.Addr).Info("Starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case <-ctx.Done():
		appLogger.Info("Shutdown signal received")
	case err := <-serverErr:
		if err != nil {
			appLogger.WithError(err).Error("HTTP server failed")
		}
	}

	// Stop intake first, then timers so nothing new is queued, then drain the
	// dispatcher and flush events before closing connections.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.WithError(err).Warn("HTTP server shutdown incomplete")
	}
	reconciler.Stop()
	timers.Stop()
	notificationService.Stop()
	if archiver != nil {
		archiver.Stop()
	}

	stopBus()
	select {
	case <-bus.Done():
	case <-shutdownCtx.Done():
		appLogger.Warn("Event bus did not drain before shutdown timeout")
	}

	if producer != nil {
		if err := producer.Close(); err != nil {
			appLogger.WithError(err).Warn("Failed to close Kafka producer")
		}
	}
	store.close(shutdownCtx, appLogger)

	appLogger.Info("Server stopped")
	return nil
}
