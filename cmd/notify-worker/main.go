package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sapliy/staff-notify/internal/config"
	"github.com/sapliy/staff-notify/internal/notification"
	"github.com/sapliy/staff-notify/pkg/database"
	"github.com/sapliy/staff-notify/pkg/messaging"
	"github.com/sapliy/staff-notify/pkg/monitoring"
	"github.com/sapliy/staff-notify/pkg/observability"
	"go.uber.org/zap"
)

// notify-worker consumes per-channel delivery queues and hands each task to
// the matching driver.
func main() {
	cfg, err := config.Load(os.Getenv("NOTIFY_CONFIG"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := observability.MustLogger("notify-worker", cfg.Debug)
	defer logger.Sync()

	if cfg.RabbitMQURL == "" {
		logger.Fatal("rabbitmq_url is required for the worker")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rmq := messaging.DefaultConfig()
	rmq.URL = cfg.RabbitMQURL
	rmq.Logger = logger
	client, err := messaging.NewRabbitMQClient(rmq)
	if err != nil {
		logger.Fatal("failed to connect to RabbitMQ", zap.Error(err))
	}
	defer client.Close()

	var rdb *redis.Client
	if cfg.RedisURL != "" {
		rdb, err = database.ConnectRedis(ctx, cfg.RedisURL)
		if err != nil {
			logger.Warn("redis unavailable, running without idempotency or portal delivery", zap.Error(err))
			rdb = nil
		} else {
			defer rdb.Close()
		}
	}

	var email *notification.EmailService
	if cfg.Resend.APIKey != "" {
		email = notification.NewEmailService(cfg.Resend.APIKey, cfg.Resend.From, cfg.Resend.RedirectTo)
	}
	var (
		portalPub notification.PortalPublisher
		idem      notification.IdempotencyStore
	)
	if rdb != nil {
		portalPub = rdb
		idem = rdb
	}
	registry := notification.NewRegistry(email, portalPub, logger)

	metricsServer := monitoring.StartMetricsServer(cfg.MetricsAddr, logger)

	var wg sync.WaitGroup
	for _, c := range notification.Channels {
		driver, err := registry.Get(c)
		if err != nil {
			logger.Warn("no driver configured, queue left unconsumed", zap.String("channel", string(c)))
			continue
		}

		queue := notification.QueueFor(c)
		if _, err := client.DeclareQueueWithDLQ(queue); err != nil {
			logger.Fatal("failed to declare queue", zap.String("queue", queue), zap.Error(err))
		}

		worker := notification.NewWorker(driver, idem, client, logger)
		wg.Add(1)
		go func() {
			defer wg.Done()
			logger.Info("consuming", zap.String("queue", queue))
			if err := client.ConsumeWithContext(ctx, queue, func(body []byte) error {
				return worker.ProcessTask(ctx, body)
			}); err != nil {
				logger.Error("consumer stopped", zap.String("queue", queue), zap.Error(err))
			}
		}()
	}

	logger.Info("notify-worker started, waiting for tasks")
	<-ctx.Done()
	logger.Info("shutting down notify-worker")
	wg.Wait()

	if metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}
}
