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

	"github.com/redis/go-redis/v9"
	"github.com/sapliy/staff-notify/internal/auth"
	"github.com/sapliy/staff-notify/internal/config"
	"github.com/sapliy/staff-notify/internal/directory"
	"github.com/sapliy/staff-notify/internal/draft"
	"github.com/sapliy/staff-notify/internal/notification"
	"github.com/sapliy/staff-notify/internal/policy"
	"github.com/sapliy/staff-notify/internal/portal"
	"github.com/sapliy/staff-notify/pkg/database"
	"github.com/sapliy/staff-notify/pkg/messaging"
	"github.com/sapliy/staff-notify/pkg/monitoring"
	"github.com/sapliy/staff-notify/pkg/observability"
	"github.com/sapliy/staff-notify/pkg/secrets"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load(os.Getenv("NOTIFY_CONFIG"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := observability.MustLogger("notifyd", cfg.Debug)
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.AWS.SecretID != "" {
		sm, err := secrets.NewClient(ctx, cfg.AWS.Region)
		if err != nil {
			logger.Fatal("failed to create secrets client", zap.Error(err))
		}
		if err := cfg.ApplySecrets(ctx, sm); err != nil {
			logger.Fatal("failed to load secrets", zap.Error(err))
		}
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal("invalid configuration", zap.Error(err))
	}
	loc, _ := cfg.Location()

	shutdownTracer, err := observability.InitTracer(ctx, observability.Config{
		ServiceName:    "notifyd",
		ServiceVersion: "0.1.0",
		Endpoint:       cfg.Tracing.Endpoint,
		Environment:    cfg.Tracing.Environment,
		SampleRatio:    cfg.Tracing.SampleRatio,
	}, logger)
	if err != nil {
		logger.Warn("failed to init tracer", zap.Error(err))
	} else {
		defer shutdownTracer(context.Background())
	}

	store, closeStore := openStore(ctx, cfg, logger)
	defer closeStore()

	var rdb *redis.Client
	if cfg.RedisURL != "" {
		rdb, err = database.ConnectRedis(ctx, cfg.RedisURL)
		if err != nil {
			logger.Warn("redis unavailable, using in-memory drafts and no portal push", zap.Error(err))
			rdb = nil
		} else {
			defer rdb.Close()
		}
	}

	var events notification.EventPublisher
	if len(cfg.Kafka.Brokers) > 0 {
		producer := messaging.NewKafkaProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		defer producer.Close()
		events = producer
	}

	dispatcher, closeDispatcher := openDispatcher(cfg, rdb, logger)
	defer closeDispatcher()

	dirCfg := directory.Config{
		Endpoint: cfg.Directory.URL,
		Timeout:  cfg.Directory.Timeout,
		CacheTTL: cfg.Directory.CacheTTL,
		Logger:   logger,
	}
	if rdb != nil {
		dirCfg.Cache = rdb
	}
	dir := directory.NewClient(dirCfg)

	svc := notification.NewService(notification.ServiceConfig{
		Store:      store,
		Directory:  dir,
		Dispatcher: dispatcher,
		Events:     events,
		Logger:     logger,
		PortalURL:  cfg.PortalURL,
	})

	var kv draft.KV = draft.NewMemoryKV()
	if rdb != nil {
		kv = draft.NewRedisKV(rdb)
	}

	engine, err := newPolicyEngine(ctx, cfg)
	if err != nil {
		logger.Fatal("failed to initialise policy engine", zap.Error(err))
	}

	hub := portal.NewHub(logger)
	if rdb != nil {
		go func() {
			if err := hub.Run(ctx, rdb); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("portal subscriber stopped", zap.Error(err))
			}
		}()
	}

	scheduler := notification.NewScheduler(svc, cfg.Scheduler.Interval, logger)
	scheduler.Start(ctx)
	defer scheduler.Stop()

	metricsServer := monitoring.StartMetricsServer(cfg.MetricsAddr, logger)

	server := &NotifyServer{
		svc:       svc,
		directory: dir,
		drafts:    draft.NewStore(kv, logger),
		policy:    policy.NewPolicyMiddleware(engine, logger),
		auth:      auth.NewAuthenticator(cfg.JWT.Secret, cfg.JWT.Issuer),
		hub:       hub,
		loc:       loc,
		logger:    logger,
		healthy: func() map[string]bool {
			return map[string]bool{
				"redis":    rdb != nil,
				"kafka":    events != nil,
				"database": cfg.DatabaseURL != "",
			}
		},
	}
	router := setupRoutes(server, metricsServer == nil)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           otelhttp.NewHandler(router, "notifyd-request"),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("notifyd starting", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down notifyd")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", zap.Error(err))
	}
	if metricsServer != nil {
		_ = metricsServer.Shutdown(shutdownCtx)
	}
}

// openStore connects to PostgreSQL and applies migrations, falling back to an
// in-memory store seeded with demo data when no database is configured.
func openStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (notification.Store, func()) {
	if cfg.DatabaseURL == "" {
		logger.Info("no database configured, using in-memory store with demo data")
		return notification.NewMemoryStore(notification.DemoNotifications(time.Now())...), func() {}
	}

	db, err := database.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("database connection failed", zap.Error(err))
	}
	version, err := database.Migrate(db, notification.Migrations, "migrations")
	if err != nil {
		logger.Fatal("migration failed", zap.Error(err))
	}
	logger.Info("database ready", zap.Uint("schema_version", version))

	return notification.NewRepository(db), func() { db.Close() }
}

// openDispatcher publishes to RabbitMQ when configured and otherwise sends
// inline through the local drivers.
func openDispatcher(cfg *config.Config, rdb *redis.Client, logger *zap.Logger) (notification.Dispatcher, func()) {
	if cfg.RabbitMQURL != "" {
		rmq := messaging.DefaultConfig()
		rmq.URL = cfg.RabbitMQURL
		rmq.Logger = logger
		client, err := messaging.NewRabbitMQClient(rmq)
		if err != nil {
			logger.Warn("failed to connect to RabbitMQ, sending inline", zap.Error(err))
		} else {
			for _, c := range notification.Channels {
				if _, err := client.DeclareQueueWithDLQ(notification.QueueFor(c)); err != nil {
					logger.Warn("failed to declare queue", zap.String("queue", notification.QueueFor(c)), zap.Error(err))
				}
			}
			return notification.NewRouter(client, logger), client.Close
		}
	}

	var email *notification.EmailService
	if cfg.Resend.APIKey != "" {
		email = notification.NewEmailService(cfg.Resend.APIKey, cfg.Resend.From, cfg.Resend.RedirectTo)
	}
	var portalPub notification.PortalPublisher
	if rdb != nil {
		portalPub = rdb
	}
	registry := notification.NewRegistry(email, portalPub, logger)
	return notification.NewInlineDispatcher(registry, logger), func() {}
}

func newPolicyEngine(ctx context.Context, cfg *config.Config) (policy.PolicyEngine, error) {
	if cfg.Policy.Engine != "opa" {
		return policy.NewHardcodedPolicyEngine(), nil
	}
	var module string
	if cfg.Policy.File != "" {
		raw, err := os.ReadFile(cfg.Policy.File)
		if err != nil {
			return nil, fmt.Errorf("reading policy file: %w", err)
		}
		module = string(raw)
	}
	return policy.NewOPAPolicyEngine(ctx, module)
}
