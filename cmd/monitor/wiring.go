package main

import (
	"context"
	"fmt"
	"os"

	"github.com/redis/go-redis/v9"
	"github.com/smukkama/home-monitor/internal/aggregation"
	"github.com/smukkama/home-monitor/internal/airthings"
	"github.com/smukkama/home-monitor/internal/database"
	"github.com/smukkama/home-monitor/internal/inventory"
	"github.com/smukkama/home-monitor/internal/monitor"
	"github.com/smukkama/home-monitor/internal/normalizer"
	"github.com/smukkama/home-monitor/internal/notification"
	"github.com/smukkama/home-monitor/internal/queue"
	"github.com/smukkama/home-monitor/internal/state"
	"github.com/smukkama/home-monitor/pkg/config"
	"go.uber.org/zap"
)

func buildSource(cfg *config.Config, inv *inventory.Inventory, readings string, logger *zap.Logger) monitor.ReadingSource {
	if readings != "" {
		logger.Info("Reading batch source", zap.String("path", readings))
		return normalizer.NewBatchSource(readings, os.Stdin)
	}
	client := airthings.NewClient(airthings.Config{
		TokenURL:     cfg.Airthings.TokenURL,
		BaseURL:      cfg.Airthings.BaseURL,
		ClientID:     cfg.Airthings.ClientID,
		ClientSecret: cfg.Airthings.ClientSecret,
		Timeout:      cfg.Airthings.Timeout,
		RetryCount:   cfg.Airthings.RetryCount,
	}, logger)
	return normalizer.NewAPISource(client, inv)
}

type backend struct {
	store    monitor.Store
	locker   monitor.Locker
	eventLog monitor.EventLog
}

func buildBackend(ctx context.Context, cfg *config.Config, logger *zap.Logger, closers *closeList) (backend, error) {
	if cfg.State.Backend == config.BackendFile {
		return backend{
			store:  state.NewFileStore(cfg.State.FilePath),
			locker: state.NewFileLocker(cfg.State.LockPath, cfg.State.LockTTL),
		}, nil
	}

	// Both remaining backends take the run lock in Redis.
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	closers.add(redisClient.Close)
	if err := redisClient.Ping(ctx).Err(); err != nil {
		return backend{}, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	logger.Info("Connected to Redis", zap.String("addr", cfg.Redis.Addr))

	b := backend{locker: state.NewRedisLocker(redisClient, cfg.Redis.LockKey, cfg.State.LockTTL)}
	if cfg.State.Backend == config.BackendRedis {
		b.store = state.NewRedisStore(redisClient, cfg.Redis.StateKey)
		return b, nil
	}

	db, err := database.Connect(ctx, cfg.Database.ConnectionString())
	if err != nil {
		return backend{}, err
	}
	closers.add(db.Close)
	applied, err := db.RunMigrations(ctx, cfg.State.MigrationsDir)
	if err != nil {
		return backend{}, err
	}
	logger.Info("Connected to database", zap.Strings("migrations", applied))

	store := database.NewPostgresStore(db)
	b.store = store
	b.eventLog = store
	return b, nil
}

func buildExporter(cfg *config.Config, inv *inventory.Inventory) monitor.DigestExporter {
	if cfg.Monitor.DigestExportDir == "" {
		return nil
	}
	return aggregation.NewWorkbookExporter(cfg.Monitor.DigestExportDir, inv.TemperatureUnit)
}

func buildDispatcher(cfg *config.Config, logger *zap.Logger, closers *closeList, dryRun bool) (notification.Dispatcher, error) {
	if dryRun {
		return notification.NewLogDispatcher(logger), nil
	}

	switch cfg.Notify.Transport {
	case config.TransportNtfy:
		return notification.NewNtfyDispatcher(notification.NtfyConfig{
			Server: cfg.Ntfy.Server,
			Topic:  cfg.Ntfy.Topic,
			Token:  cfg.Ntfy.Token,
		})
	case config.TransportKafka:
		producer := queue.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicNotifications)
		closers.add(producer.Close)
		return notification.NewKafkaDispatcher(producer), nil
	case config.TransportMQTT:
		d, err := notification.NewMQTTDispatcher(notification.MQTTConfig{
			Broker:   cfg.MQTT.Broker,
			ClientID: cfg.MQTT.ClientID,
			Topic:    cfg.MQTT.Topic,
			Username: cfg.MQTT.Username,
			Password: cfg.MQTT.Password,
			QoS:      byte(cfg.MQTT.QoS),
		})
		if err != nil {
			return nil, err
		}
		closers.add(d.Close)
		return d, nil
	case config.TransportEmail:
		return notification.NewEmailNotifier(smtpConfig(cfg.SMTP), logger), nil
	default:
		return notification.NewLogDispatcher(logger), nil
	}
}

func smtpConfig(c config.SMTPConfig) notification.SMTPConfig {
	return notification.SMTPConfig{
		Host:     c.Host,
		Port:     c.Port,
		Username: c.Username,
		Password: c.Password,
		From:     c.From,
		To:       c.To,
	}
}
