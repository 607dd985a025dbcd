package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/smukkama/home-monitor/internal/logging"
	"github.com/smukkama/home-monitor/internal/notification"
	"github.com/smukkama/home-monitor/internal/queue"
	"github.com/smukkama/home-monitor/pkg/config"
	"go.uber.org/zap"
)

// The notification service delivers what cmd/monitor publishes with
// NOTIFY_TRANSPORT=kafka. It sends through ntfy when a topic is configured
// and by email otherwise.
func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format, "home-monitor-notification")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	dispatcher, err := newDispatcher(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to create dispatcher", zap.Error(err))
	}

	if err := queue.CreateTopic(cfg.Kafka.Brokers, cfg.Kafka.TopicNotifications, cfg.Kafka.NumPartitions, 1); err != nil {
		logger.Warn("Failed to create notification topic", zap.Error(err))
	}

	// Create consumer for notifications
	consumer := queue.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicNotifications, cfg.Kafka.GroupID)
	defer consumer.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("Notification service running",
		zap.Strings("brokers", cfg.Kafka.Brokers),
		zap.String("topic", cfg.Kafka.TopicNotifications),
	)

	err = queue.NewForwarder(consumer, dispatcher, logger).Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Forwarder stopped", zap.Error(err))
	}

	stats := consumer.Stats()
	logger.Info("Shutting down gracefully",
		zap.Int64("messages", stats.Messages),
		zap.Int64("errors", stats.Errors),
	)
}

func newDispatcher(cfg *config.Config, logger *zap.Logger) (notification.Dispatcher, error) {
	if cfg.Ntfy.Topic != "" {
		return notification.NewNtfyDispatcher(notification.NtfyConfig{
			Server: cfg.Ntfy.Server,
			Topic:  cfg.Ntfy.Topic,
			Token:  cfg.Ntfy.Token,
		})
	}

	notifier := notification.NewEmailNotifier(notification.SMTPConfig{
		Host:     cfg.SMTP.Host,
		Port:     cfg.SMTP.Port,
		Username: cfg.SMTP.Username,
		Password: cfg.SMTP.Password,
		From:     cfg.SMTP.From,
		To:       cfg.SMTP.To,
	}, logger)

	// Test SMTP connection (optional, will skip if not configured)
	if err := notifier.TestConnection(); err != nil {
		logger.Warn("Email delivery unavailable, notifications will be logged only", zap.Error(err))
	}
	return notifier, nil
}
