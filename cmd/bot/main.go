package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"access_share_bot/internal/config"
	"access_share_bot/internal/domain"
	"access_share_bot/internal/drive"
	"access_share_bot/internal/feature/admin"
	"access_share_bot/internal/health"
	"access_share_bot/internal/logging"
	"access_share_bot/internal/session"
	"access_share_bot/internal/store"
	"access_share_bot/internal/tables"
	"access_share_bot/internal/telegram"
	"access_share_bot/internal/workflow"
)

const (
	mongoConnectTimeout     = 10 * time.Second
	mongoIndexTimeout       = 5 * time.Second
	mongoSchemaTimeout      = 5 * time.Second
	mongoDisconnectTimeout  = 5 * time.Second
	adminBootstrapTimeout   = 5 * time.Second
	driveInitTimeout        = 10 * time.Second
	healthShutdownTimeout   = 5 * time.Second
	telegramShutdownTimeout = 10 * time.Second
)

func main() {
	configOnly := flag.Bool("config-only", false, "load and print configuration then exit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logging.Error("configuration error", logging.Fields{"error": err})
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.Setup(cfg)
	if err != nil {
		logging.Error("logger setup error", logging.Fields{"error": err})
		fmt.Fprintf(os.Stderr, "logger setup error: %v\n", err)
		os.Exit(1)
	}

	if *configOnly {
		logging.Info("configuration check", logging.Fields{"event": "config_only"})
		fmt.Println("configuration check: ok")
		fmt.Println(config.FormatRedacted(cfg))
		return
	}

	logger.WithFields(logging.Fields{
		"event":    "startup",
		"mongo_db": cfg.MongoDB,
	}).Info("configuration loaded")

	connectCtx, cancel := context.WithTimeout(context.Background(), mongoConnectTimeout)
	mongoManager, err := store.NewManager(connectCtx, cfg)
	cancel()
	if err != nil {
		logger.WithError(err).Error("mongo connection error")
		fmt.Fprintf(os.Stderr, "mongo connection error: %v\n", err)
		os.Exit(1)
	}

	logger.WithField("event", "mongo_connect").Info("connected to mongo")

	indexCtx, cancelIndexes := context.WithTimeout(context.Background(), mongoIndexTimeout)
	if err := mongoManager.EnsureBaseIndexes(indexCtx); err != nil {
		cancelIndexes()
		logger.WithError(err).Error("mongo index setup error")
		fmt.Fprintf(os.Stderr, "mongo index setup error: %v\n", err)
		os.Exit(1)
	}
	cancelIndexes()

	schemaCtx, cancelSchema := context.WithTimeout(context.Background(), mongoSchemaTimeout)
	if err := mongoManager.EnsureSchema(schemaCtx); err != nil {
		cancelSchema()
		logger.WithError(err).Error("mongo schema setup error")
		fmt.Fprintf(os.Stderr, "mongo schema setup error: %v\n", err)
		os.Exit(1)
	}
	cancelSchema()

	logger.WithField("event", "mongo_ready").Info("ensured mongo indexes and schema")

	bootstrapper := admin.NewBootstrapper(mongoManager.Users(), logger)
	adminCtx, cancelAdmin := context.WithTimeout(context.Background(), adminBootstrapTimeout)
	if err := bootstrapper.EnsureAdmin(adminCtx, cfg.AdminChatID); err != nil {
		cancelAdmin()
		logger.WithError(err).Error("admin bootstrap error")
		fmt.Fprintf(os.Stderr, "admin bootstrap error: %v\n", err)
		os.Exit(1)
	}
	cancelAdmin()

	driveCtx, cancelDrive := context.WithTimeout(context.Background(), driveInitTimeout)
	driveClient, err := drive.NewClient(driveCtx, cfg.GoogleCredentials, logger)
	cancelDrive()
	if err != nil {
		logger.WithError(err).Error("drive client setup error")
		fmt.Fprintf(os.Stderr, "drive client setup error: %v\n", err)
		os.Exit(1)
	}

	userRepository := domain.NewUserRepository(mongoManager.Users())
	statsProvider := store.NewStatsProvider(mongoManager.Users())
	registry := tables.NewRegistry(cfg.TableLinks)
	emails := drive.NewEmailValidator(cfg.AllowedDomains)
	sessions := session.NewStore()
	messenger := telegram.NewMessenger(logger)

	workflows := telegram.Workflows{
		Registration: workflow.NewRegistration(userRepository, messenger, sessions, emails,
			cfg.AdminChatID, cfg.GroupChatID, logger),
		Deletion: workflow.NewDeletion(userRepository, messenger, sessions, driveClient,
			registry, cfg.GroupChatID, logger),
		Access: workflow.NewAccess(userRepository, messenger, sessions, driveClient, logger),
		Links:  workflow.NewLinks(userRepository, messenger, sessions, registry, logger),
	}

	tgClient, err := telegram.NewClient(cfg, messenger, sessions, workflows, logger)
	if err != nil {
		logger.WithError(err).Error("telegram client setup error")
		fmt.Fprintf(os.Stderr, "telegram client setup error: %v\n", err)
		os.Exit(1)
	}

	logger.WithField("event", "telegram_ready").Info("telegram client initialized")

	healthServer := health.NewServer(cfg.HTTPPort, mongoManager, statsProvider, logger)
	go func() {
		if err := healthServer.ListenAndServe(); err != nil {
			logger.WithError(err).Error("health server error")
		}
	}()

	signalCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	telegramCtx, cancelTelegram := context.WithCancel(context.Background())
	tgDone := make(chan struct{})

	go func() {
		tgClient.Start(telegramCtx)
		close(tgDone)
	}()

	select {
	case <-signalCtx.Done():
		logger.WithField("event", "shutdown_signal").Info("received termination signal, stopping telegram polling")
	case <-tgDone:
		logger.WithField("event", "telegram_stopped_early").Warn("telegram client stopped before shutdown signal")
	}

	cancelTelegram()

	waitCtx, cancelWait := context.WithTimeout(context.Background(), telegramShutdownTimeout)
	select {
	case <-tgDone:
	case <-waitCtx.Done():
		logger.WithField("event", "telegram_shutdown_timeout").Warn("timed out waiting for telegram client to stop")
	}
	cancelWait()

	healthCtx, cancelHealth := context.WithTimeout(context.Background(), healthShutdownTimeout)
	if err := healthServer.Shutdown(healthCtx); err != nil {
		logger.WithError(err).Error("health server shutdown error")
	}
	cancelHealth()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), mongoDisconnectTimeout)
	if err := mongoManager.Close(shutdownCtx); err != nil {
		logger.WithError(err).Error("mongo disconnect error")
	} else {
		logger.WithField("event", "mongo_disconnect").Info("mongo client disconnected")
	}
	cancelShutdown()

	logger.WithField("event", "shutdown_complete").Info("shutdown complete")
}
