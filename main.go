package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"pushbridge/service/actions"
	"pushbridge/service/activity"
	"pushbridge/service/bridge"
	"pushbridge/service/config"
	"pushbridge/service/credentials"
	"pushbridge/service/delivery"
	"pushbridge/service/integration/telegram"
	"pushbridge/service/integration/webpush"
	"pushbridge/service/iterable"
	"pushbridge/service/server"
	"pushbridge/service/storage"
	"pushbridge/service/subscription"
	"pushbridge/service/telemetry"
	"pushbridge/service/util"

	"github.com/joho/godotenv"
)

var (
	version = "dev"
)

const (
	dialTimeout   = 10 * time.Second
	pruneInterval = time.Hour
)

func init() {
	_ = godotenv.Load() //nolint:errcheck
}

func main() {
	if len(os.Args) > 1 && os.Args[1] == "version" {
		fmt.Printf("Pushbridge %s\n", version)
		return
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := util.NewLogger(cfg.VerboseLogging)
	logger.Info("Starting Pushbridge", "version", version)

	if err := run(cfg, logger); err != nil {
		logger.Error("Fatal error", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.TracingEnabled {
		shutdown, err := telemetry.InitTracer("pushbridge", version, nil, logger)
		if err != nil {
			return fmt.Errorf("failed to init tracing: %w", err)
		}
		defer func() {
			if err := shutdown(context.Background()); err != nil {
				logger.Warn("Failed to flush traces", "error", err)
			}
		}()
	}

	db, err := storage.Open(cfg.StoragePath)
	if err != nil {
		return err
	}
	defer db.Close()

	feed := activity.NewFeed(logger)
	activityStore, err := activity.NewStore(db, feed)
	if err != nil {
		return err
	}
	secrets, err := credentials.NewCipher(cfg.APIKey)
	if err != nil {
		return err
	}
	subStore, err := subscription.NewStore(db, secrets, logger)
	if err != nil {
		return err
	}

	publisher := delivery.NewPublisher(subStore, logger)
	publisher.RegisterSender(subscription.ChannelWebPush, webpush.NewSender(nil, logger))
	if err := registerTelegram(ctx, cfg, publisher, logger); err != nil {
		return err
	}

	handler := actions.NewHandler(cfg.HandledURLPrefixes, activityStore, publisher, logger)
	defer handler.Wait()

	dialCtx, cancelDial := context.WithTimeout(ctx, dialTimeout)
	bridgeClient, err := bridge.Dial(dialCtx, cfg.BridgeSocketPath, nil, logger)
	cancelDial()
	if err != nil {
		return err
	}
	defer bridgeClient.Close()
	logger.Info("Connected to native bridge", "socket", cfg.BridgeSocketPath)

	sdk := iterable.New(bridgeClient, bridgeClient.Events(), logger)
	defer sdk.Close()

	sdkCfg := cfg.SDKConfig()
	sdkCfg.URLDelegate = handler.HandleURL
	sdkCfg.CustomActionDelegate = handler.HandleCustomAction

	initCtx, cancelInit := context.WithTimeout(ctx, cfg.BridgeCallTimeout)
	err = sdk.Initialize(initCtx, cfg.IterableAPIKey, sdkCfg)
	cancelInit()
	if err != nil {
		return fmt.Errorf("failed to initialize native SDK: %w", err)
	}

	go func() {
		select {
		case <-bridgeClient.Done():
			logger.Error("Native bridge disconnected, shutting down")
			stop()
		case <-ctx.Done():
		}
	}()

	go pruneActivity(ctx, activityStore, cfg.ActivityRetention, logger)

	srv := server.New(cfg, server.Deps{
		SDK:           sdk,
		Bridge:        bridgeClient,
		Activity:      activityStore,
		Feed:          feed,
		Subscriptions: subStore,
		Publisher:     publisher,
		Version:       version,
	}, logger)

	return srv.Start(ctx)
}

func registerTelegram(ctx context.Context, cfg *config.Config, publisher *delivery.Publisher, logger *slog.Logger) error {
	if !cfg.IsTelegramEnabled() {
		return nil
	}

	client, err := telegram.NewClient(cfg.TelegramBotToken)
	if err != nil {
		return err
	}

	if name, err := client.BotName(ctx); err != nil {
		logger.Warn("Telegram bot unreachable", "error", err)
	} else {
		logger.Info("Telegram enabled", "bot", name)
	}

	publisher.RegisterSender(subscription.ChannelTelegram, telegram.NewSender(client, logger))
	return nil
}

func pruneActivity(ctx context.Context, store *activity.Store, retention time.Duration, logger *slog.Logger) {
	if retention <= 0 {
		return
	}

	ticker := time.NewTicker(pruneInterval)
	defer ticker.Stop()

	for {
		n, err := store.Prune(ctx, time.Now().Add(-retention))
		if err != nil {
			logger.Warn("Failed to prune activity", "error", err)
		} else if n > 0 {
			logger.Debug("Pruned activity", "removed", n)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
