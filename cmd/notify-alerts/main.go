package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sapliy/staff-notify/internal/config"
	"github.com/sapliy/staff-notify/pkg/messaging"
	"github.com/sapliy/staff-notify/pkg/monitoring"
	"github.com/sapliy/staff-notify/pkg/observability"
	"go.uber.org/zap"
)

// notify-alerts watches the notification event stream and raises an alert
// when a channel fails repeatedly.
func main() {
	cfg, err := config.Load(os.Getenv("NOTIFY_CONFIG"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := observability.MustLogger("notify-alerts", cfg.Debug)
	defer logger.Sync()

	if len(cfg.Kafka.Brokers) == 0 {
		logger.Fatal("kafka.brokers is required for the alert watcher")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	consumer := messaging.NewKafkaConsumer(cfg.Kafka.Brokers, cfg.Kafka.Topic, cfg.Alerts.Group, logger)
	defer consumer.Close()

	// Alerts go to RabbitMQ for whoever handles operational follow-up.
	var rabbitClient *messaging.RabbitMQClient
	if cfg.RabbitMQURL != "" {
		rmq := messaging.DefaultConfig()
		rmq.URL = cfg.RabbitMQURL
		rmq.Logger = logger
		rabbitClient, err = messaging.NewRabbitMQClient(rmq)
		if err != nil {
			logger.Warn("RabbitMQ unavailable, alerts will only be logged", zap.Error(err))
			rabbitClient = nil
		} else {
			defer rabbitClient.Close()
			if _, err := rabbitClient.DeclareQueue(cfg.Alerts.Queue); err != nil {
				logger.Warn("failed to declare alert queue", zap.Error(err))
			}
		}
	}

	metricsServer := monitoring.StartMetricsServer(cfg.MetricsAddr, logger)

	tracker := NewFailureTracker(cfg.Alerts.Window, cfg.Alerts.Threshold)

	logger.Info("notify-alerts started", zap.String("topic", cfg.Kafka.Topic))

	consumer.Consume(ctx, func(key string, value []byte) error {
		alerts, err := tracker.Observe(value)
		if err != nil {
			return err
		}
		for _, a := range alerts {
			logger.Warn("channel failing repeatedly",
				zap.String("channel", string(a.Channel)),
				zap.Int("failures", a.Failures),
				zap.String("window", a.Window),
				zap.String("last_notification_id", a.NotificationID),
			)
			if rabbitClient == nil {
				continue
			}
			body, err := json.Marshal(a)
			if err != nil {
				return err
			}
			if err := rabbitClient.Publish(ctx, cfg.Alerts.Queue, body); err != nil {
				logger.Error("failed to publish alert", zap.Error(err))
			}
		}
		return nil
	})

	logger.Info("shutting down notify-alerts")
	if metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}
}
