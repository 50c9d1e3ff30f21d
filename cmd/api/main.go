// Package main is the entry point for the API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/capitalize-ai/player-messaging/internal/config"
	"github.com/capitalize-ai/player-messaging/internal/handler"
	natsclient "github.com/capitalize-ai/player-messaging/internal/nats"
	"github.com/capitalize-ai/player-messaging/internal/service"
	"github.com/capitalize-ai/player-messaging/internal/storage/backend"
	"github.com/capitalize-ai/player-messaging/pkg/logger"
	"github.com/capitalize-ai/player-messaging/pkg/tracing"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()
	logger.SetGlobal(log)

	if err := run(cfg, log); err != nil {
		log.Error("api server failed", zap.Error(err))
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *logger.Logger) error {
	log.Info("starting API server")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize tracing if enabled
	if cfg.TracingEnabled {
		tp, err := tracing.InitTracer(ctx, "player-messaging-api", cfg.TracingEndpoint)
		if err != nil {
			log.Warn("failed to initialize tracing", zap.Error(err))
		} else {
			defer func() { _ = tracing.Shutdown(context.Background(), tp) }()
		}
	}

	store, err := backend.Open(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	// Connect to NATS
	natsClient, err := natsclient.Connect(ctx, natsclient.Config{
		Name:     "player-messaging-api",
		URL:      cfg.NATSURL,
		CAFile:   cfg.NATSCAFile,
		CertFile: cfg.NATSCertFile,
		KeyFile:  cfg.NATSKeyFile,
		Token:    cfg.NATSToken,
	}, log)
	if err != nil {
		return fmt.Errorf("connect to NATS: %w", err)
	}
	defer natsClient.Close()

	// Initialize services
	deps := service.Dependencies{
		Store:    store,
		Notifier: natsclient.NewHubPublisher(natsClient.Conn()),
		Reports:  natsclient.NewReportPublisher(natsClient.Conn()),
	}
	opts := []service.Option{
		service.WithMaxMessageLength(cfg.MaxMessageLength),
		service.WithDefaultLocale(cfg.DefaultLocale),
	}
	conversationSvc := service.NewConversationService(deps, log, opts...)
	messageSvc := service.NewMessageService(deps, log, opts...)
	systemSvc := service.NewSystemMessageService(deps, log, opts...)
	blockSvc := service.NewBlockService(store, log, opts...)

	listings := natsclient.NewListingSubscriber(natsClient.Conn(), systemSvc, 0, log)
	if err := listings.Subscribe(); err != nil {
		return fmt.Errorf("subscribe to listing events: %w", err)
	}
	defer listings.Unsubscribe()

	router := handler.NewRouter(handler.RouterConfig{
		JWTSecret:         cfg.JWTSecret,
		RateLimitRequests: cfg.RateLimitRequests,
		RateLimitWindow:   cfg.RateLimitWindow,
		AllowedOrigins:    cfg.CORSAllowedOrigins,
		Health:            handler.NewHealthHandler(store, natsClient),
		Conversations:     handler.NewConversationHandler(conversationSvc, log),
		Messages:          handler.NewMessageHandler(messageSvc, log),
		Blocks:            handler.NewBlockHandler(blockSvc, log),
		Internal:          handler.NewInternalHandler(systemSvc, store, log),
		Logger:            log,
	})

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  cfg.ServerReadTimeout,
		WriteTimeout: cfg.ServerWriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info("server listening", zap.String("port", cfg.ServerPort))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("serve: %w", err)
		}
	case <-ctx.Done():
	}

	log.Info("shutting down server")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}
	if err := natsClient.Drain(); err != nil {
		log.Warn("NATS drain failed", zap.Error(err))
	}

	log.Info("server stopped")
	return nil
}
