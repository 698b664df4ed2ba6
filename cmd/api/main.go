package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	httptransport "github.com/SP23-BSE-106/grain/internal/api/http"
	"github.com/SP23-BSE-106/grain/internal/api/http/handlers"
	"github.com/SP23-BSE-106/grain/internal/auth"
	"github.com/SP23-BSE-106/grain/internal/config"
	"github.com/SP23-BSE-106/grain/internal/events"
	"github.com/SP23-BSE-106/grain/internal/observability"
	"github.com/SP23-BSE-106/grain/internal/persistence"
	"github.com/SP23-BSE-106/grain/internal/repository"
	"github.com/SP23-BSE-106/grain/internal/service"
	"github.com/SP23-BSE-106/grain/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger, cfg.App.Env)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	keys, err := auth.NewKeyring(cfg.Auth.AccessSecret, cfg.Auth.RefreshSecret, cfg.AccessTTL(), cfg.RefreshTTL(),
		auth.WithIssuer(cfg.Auth.Issuer),
		auth.WithLogger(logger.Named("tokens")),
	)
	if err != nil {
		logger.Fatal("invalid signing configuration", zap.Error(err))
	}

	var (
		userRepo    repository.UserRepository
		sessionRepo repository.SessionRepository
		probes      = map[string]handlers.Pinger{}
	)
	if cfg.Postgres.DSN == "" {
		if cfg.App.Env != config.EnvDevelopment {
			logger.Fatal("POSTGRES_DSN is required outside development")
		}
		logger.Warn("POSTGRES_DSN not provided; using in-memory accounts and sessions")
		userRepo = repository.NewMemoryUserRepository()
		sessionRepo = repository.NewMemorySessionRepository(nil)
	} else {
		pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
		if err != nil {
			logger.Fatal("failed to connect postgres", zap.Error(err))
		}
		defer pg.Close()

		if cfg.Postgres.RunMigrations {
			if err := persistence.RunMigrations(ctx, pg.PoolHandle(), logger); err != nil {
				logger.Fatal("failed to run migrations", zap.Error(err))
			}
		}

		redis := persistence.NewRedis(ctx, cfg.Redis, logger)
		defer redis.Close()

		userRepo = repository.NewUserRepository(pg.PoolHandle())
		sessionRepo = repository.NewSessionRepository(redis.Client, cfg.Redis.KeyPrefix)
		probes["postgres"] = pg
		probes["redis"] = redis
	}

	metrics := observability.NewMetrics()
	dispatcher := events.NewInMemoryDispatcher(logger)

	notificationService := service.NewNotificationService(dispatcher, logger, cfg.Notification, metrics)
	worker.StartNotificationWorker(notificationService)

	var forwarder *worker.EventForwarder
	if len(cfg.Kafka.Brokers) > 0 {
		publisher := events.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic, logger)
		defer publisher.Close() //nolint:errcheck

		forwarder = worker.NewEventForwarder(publisher, 0, logger)
		forwarder.Register(dispatcher)
		forwarder.Start(ctx)
		logger.Info("auth events forwarded to kafka", zap.Strings("brokers", cfg.Kafka.Brokers), zap.String("topic", cfg.Kafka.Topic))
	}

	authService := service.NewAuthService(service.AuthDependencies{
		UserRepo:    userRepo,
		SessionRepo: sessionRepo,
		Keyring:     keys,
		Hasher:      auth.NewHasher(cfg.Auth.BcryptCost),
		Dispatcher:  dispatcher,
		Logger:      logger,
	})

	guard, err := auth.NewGuard(auth.GuardConfig{
		Verifier: keys.Access,
		Policy:   auth.DefaultRoutePolicy(),
		Source:   cfg.Auth.PrincipalSource,
		Users:    userRepo,
		Metrics:  metrics,
		Logger:   logger,
	})
	if err != nil {
		logger.Fatal("failed to build route guard", zap.Error(err))
	}

	app := httptransport.NewApp(httptransport.AppConfig{
		Name:    cfg.App.Name,
		Logger:  logger,
		Metrics: metrics,
		Middlewares: httptransport.MiddlewareConfig{
			Timeout:     cfg.App.RequestTimeout(),
			CORSOrigins: cfg.App.CORSOrigins,
		},
		Routes: httptransport.RouteConfig{
			Health: handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, probes),
			Auth:   handlers.NewAuthHandler(authService, auth.NewCookieEnv(cfg)),
			Users:  handlers.NewUsersHandler(authService),
			Pages:  handlers.NewPagesHandler(),
			Guard:  guard,
		},
	})

	go func() {
		logger.Info("http listening",
			zap.String("addr", cfg.App.Addr()),
			zap.String("env", string(cfg.App.Env)),
			zap.String("principal_source", string(cfg.Auth.PrincipalSource)))
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	if forwarder != nil {
		forwarder.Stop()
	}
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
