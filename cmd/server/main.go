package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/iho/payflow/internal/adapter/gateway"
	httpAdapter "github.com/iho/payflow/internal/adapter/http"
	"github.com/iho/payflow/internal/adapter/http/handler"
	"github.com/iho/payflow/internal/adapter/http/middleware"
	postgresRepo "github.com/iho/payflow/internal/adapter/repository/postgres"
	redisRepo "github.com/iho/payflow/internal/adapter/repository/redis"
	"github.com/iho/payflow/internal/domain"
	"github.com/iho/payflow/internal/infrastructure/auth"
	"github.com/iho/payflow/internal/infrastructure/broker"
	"github.com/iho/payflow/internal/infrastructure/config"
	"github.com/iho/payflow/internal/infrastructure/logger"
	"github.com/iho/payflow/internal/infrastructure/metrics"
	"github.com/iho/payflow/internal/infrastructure/outbox"
	"github.com/iho/payflow/internal/infrastructure/postgres"
	"github.com/iho/payflow/internal/infrastructure/redis"
	"github.com/iho/payflow/internal/infrastructure/retry"
	"github.com/iho/payflow/internal/usecase"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
	})

	ctx := context.Background()

	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL, cfg.DatabaseMaxConns, cfg.DatabaseMinConns)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to postgres")
	}
	defer pool.Close()
	log.Info().Msg("connected to postgres")

	if err := postgres.RunMigrations(cfg.DatabaseURL, cfg.MigrationsPath, log); err != nil {
		log.Fatal().Err(err).Msg("failed to run migrations")
	}

	redisClient, err := redis.NewClient(ctx, cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to redis")
	}
	defer redisClient.Close()
	log.Info().Msg("connected to redis")

	m := metrics.New()

	// Repositories
	txManager := postgresRepo.NewTxManager(pool)
	intentRepo := postgresRepo.NewPaymentIntentRepository(pool)
	orderRepo := postgresRepo.NewPaymentOrderRepository(pool)
	ledgerRepo := postgresRepo.NewLedgerRepository(pool)
	outboxRepo := postgresRepo.NewOutboxRepository(pool)
	idGen := postgresRepo.NewULIDGenerator()

	retryQueue := redisRepo.NewRetryQueue(redisClient)
	retryCounter := redisRepo.NewRetryCounter(redisClient)
	balanceCache := redisRepo.NewBalanceCache(redisClient, cfg.BalanceCacheTTL)
	idempotencyStore := redisRepo.NewIdempotencyStore(redisClient)

	psp := gateway.NewPSPClient(cfg.PSPBaseURL, cfg.PSPAPIKey, cfg.PSPHTTPTimeout, log)

	// Use cases
	paymentUC := usecase.NewPaymentUseCase(
		txManager, intentRepo, orderRepo, outboxRepo, retryQueue, psp, idGen, log,
		usecase.PaymentConfig{
			GatewayPoolSize:    cfg.GatewayPoolSize,
			GatewayCallTimeout: cfg.GatewayCallTimeout,
			MaxAuthRetries:     cfg.MaxCaptureRetries,
		},
	)
	captureUC := usecase.NewCaptureUseCase(
		txManager, orderRepo, intentRepo, outboxRepo, retryQueue, retryCounter, psp, idGen, log,
		usecase.CaptureConfig{
			GatewayPoolSize:    cfg.GatewayPoolSize,
			GatewayCallTimeout: cfg.GatewayCallTimeout,
			MaxRetries:         cfg.MaxCaptureRetries,
		},
	)
	ledgerUC := usecase.NewLedgerUseCase(txManager, ledgerRepo, outboxRepo, balanceCache, idGen, log)

	// Event plumbing: outbox rows flow through the broker; the ledger
	// engine consumes recording commands emitted by the capture flow.
	bus := broker.NewLogBroker(log)
	publisher := broker.NewPublisher(bus)

	ledgerConsumer := broker.NewConsumer(broker.ConsumerConfig{
		Broker: bus,
		Topic:  "payflow." + domain.AggregateTypePaymentOrder,
		Group:  "ledger-engine",
		Handlers: map[string]broker.Handler{
			domain.EventTypeLedgerRecordingCmd: func(ctx context.Context, env domain.Envelope) error {
				var cmd domain.LedgerRecordingCommand
				if err := json.Unmarshal(env.Data, &cmd); err != nil {
					return err
				}
				_, err := ledgerUC.RecordFromCommand(ctx, cmd)
				return err
			},
		},
		Retrier: postgresRepo.NewRetrier(log),
		Logger:  log,
		Metrics: m,
	})

	dispatcher := outbox.NewDispatcher(outbox.Config{
		OutboxRepo:      outboxRepo,
		Publisher:       publisher,
		Logger:          log,
		Metrics:         m,
		WorkerID:        idGen.Generate(),
		BatchSize:       cfg.OutboxBatchSize,
		Interval:        cfg.OutboxDispatchInterval,
		ReclaimAge:      cfg.OutboxReclaimAge,
		ReclaimInterval: cfg.OutboxReclaimInterval,
	})

	retryWorker := retry.NewWorker(retry.Config{
		Queue:           retryQueue,
		Authorize:       paymentUC,
		Capture:         captureUC,
		Logger:          log,
		Metrics:         m,
		PollInterval:    cfg.RetryPollInterval,
		PollBatch:       cfg.RetryPollBatch,
		ReclaimAge:      cfg.RetryReclaimAge,
		ReclaimInterval: cfg.RetryReclaimInterval,
	})

	// Handlers
	paymentHandler := handler.NewPaymentHandler(paymentUC)
	ledgerHandler := handler.NewLedgerHandler(ledgerUC)
	adminHandler := handler.NewAdminHandler(outboxRepo, retryQueue)
	healthHandler := handler.NewHealthHandler(pool, redisClient)

	var jwtManager *auth.JWTManager
	if cfg.AuthEnabled && cfg.JWTSecret != "" {
		jwtManager = auth.NewJWTManager(cfg.JWTSecret, cfg.JWTExpiration)
	}

	router := httpAdapter.NewRouter(httpAdapter.RouterConfig{
		PaymentHandler:   paymentHandler,
		LedgerHandler:    ledgerHandler,
		AdminHandler:     adminHandler,
		HealthHandler:    healthHandler,
		IdempotencyStore: idempotencyStore,
		JWTManager:       jwtManager,
		Metrics:          m,
		RateLimiter:      middleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst),
		Logger:           log,
	})

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.HTTPPort),
		Handler:      router,
		ReadTimeout:  cfg.HTTPReadTimeout,
		WriteTimeout: cfg.HTTPWriteTimeout,
		IdleTimeout:  cfg.HTTPIdleTimeout,
	}

	workerCtx, stopWorkers := context.WithCancel(ctx)
	go func() {
		if err := ledgerConsumer.Start(workerCtx); err != nil && workerCtx.Err() == nil {
			log.Error().Err(err).Msg("ledger consumer stopped")
		}
	}()
	go func() {
		if err := dispatcher.Start(workerCtx); err != nil && workerCtx.Err() == nil {
			log.Error().Err(err).Msg("outbox dispatcher stopped")
		}
	}()
	go func() {
		if err := retryWorker.Start(workerCtx); err != nil && workerCtx.Err() == nil {
			log.Error().Err(err).Msg("retry worker stopped")
		}
	}()

	go func() {
		log.Info().Str("port", cfg.HTTPPort).Msg("starting server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down...")

	// Stop the HTTP surface first so in-flight requests can still enqueue
	// outbox rows, then stop the background workers.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	stopWorkers()
	bus.Close()

	log.Info().Msg("server stopped")
}
