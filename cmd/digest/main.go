// Package main runs the unread message digest batch.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/capitalize-ai/player-messaging/internal/config"
	"github.com/capitalize-ai/player-messaging/internal/digest"
	natsclient "github.com/capitalize-ai/player-messaging/internal/nats"
	"github.com/capitalize-ai/player-messaging/internal/storage/backend"
	"github.com/capitalize-ai/player-messaging/pkg/logger"
	"github.com/capitalize-ai/player-messaging/pkg/tracing"
)

func main() {
	once := flag.Bool("once", false, "run a single batch and exit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()
	logger.SetGlobal(log)

	if err := run(cfg, log, *once); err != nil {
		log.Error("digest worker failed", zap.Error(err))
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *logger.Logger, once bool) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.TracingEnabled {
		tp, err := tracing.InitTracer(ctx, "player-messaging-digest", cfg.TracingEndpoint)
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

	natsClient, err := natsclient.Connect(ctx, natsclient.Config{
		Name:     "player-messaging-digest",
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

	streams := natsclient.NewStreamManager(natsClient.JetStream())
	if err := streams.EnsureStream(ctx); err != nil {
		return err
	}

	opts := []digest.Option{
		digest.WithNotificationCounter(natsclient.NewNotificationCounter(natsClient.Conn(), cfg.NATSRequestTimeout)),
	}
	if cfg.ValkeyAddr != "" {
		client, err := digest.DialValkey(cfg.ValkeyAddr, cfg.ValkeyPassword)
		if err != nil {
			return fmt.Errorf("connect to valkey: %w", err)
		}
		defer client.Close()
		opts = append(opts, digest.WithLocker(digest.NewValkeyLocker(client, "player-messaging:")))
		log.Info("using valkey digest locks", zap.String("addr", cfg.ValkeyAddr))
	}

	batcher := digest.NewBatcher(store, streams, digest.Config{
		Threshold:       cfg.DigestThreshold,
		LockTTL:         cfg.DigestLockTTL,
		MaxEmailsPerRun: cfg.DigestMaxEmailsPerRun,
		DefaultLocale:   cfg.DefaultLocale,
	}, log, opts...)

	if once {
		report, err := batcher.Run(ctx)
		if err != nil {
			return err
		}
		log.Info("digest batch finished",
			zap.Int("candidates", report.Candidates),
			zap.Int("sent", report.Sent),
			zap.Int("failed", report.Failed),
		)
		return nil
	}

	log.Info("digest worker started", zap.Duration("interval", cfg.DigestInterval))
	batcher.Start(ctx, cfg.DigestInterval)
	log.Info("digest worker stopped")
	return nil
}
