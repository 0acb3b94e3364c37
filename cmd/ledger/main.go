package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"ledger/internal/app/accounts"
	"ledger/internal/app/transfers"
	"ledger/internal/cache"
	"ledger/internal/config"
	ledger_http "ledger/internal/handler/http/ledger"
	kafka_handler "ledger/internal/handler/kafka"
	"ledger/internal/infrastructure/database"
	kafka_infra "ledger/internal/infrastructure/kafka"
	"ledger/internal/outbox"
	"ledger/internal/repository"
	"ledger/internal/repository/memory"
	"ledger/internal/util"
)

func newLogger(level string) (*zap.Logger, error) {
	zapConfig := zap.NewProductionConfig()
	zapConfig.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	zapConfig.EncoderConfig.TimeKey = "timestamp"

	atomicLevel, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid LOG_LEVEL %q: %w", level, err)
	}
	zapConfig.Level = atomicLevel
	return zapConfig.Build()
}

func connectDB(cfg *config.Config, logger *zap.Logger) (*sql.DB, error) {
	dbConfig := database.DBConfig{
		Host:     cfg.DBConfig.Host,
		Port:     cfg.DBConfig.Port,
		User:     cfg.DBConfig.User,
		Password: cfg.DBConfig.Password,
		DBName:   cfg.DBConfig.Name,
		SSLMode:  cfg.DBConfig.SSLMode,
	}

	const maxRetries = 10
	const retryDelay = 5 * time.Second

	var err error
	for i := 0; i < maxRetries; i++ {
		var db *sql.DB
		db, err = database.NewPostgresDB(dbConfig)
		if err == nil {
			logger.Info("Successfully connected to PostgreSQL database!")
			return db, nil
		}
		logger.Warn("Failed to connect to database, retrying",
			zap.Int("attempt", i+1),
			zap.Int("max_attempts", maxRetries),
			zap.Duration("retry_delay", retryDelay),
			zap.Error(err))
		time.Sleep(retryDelay)
	}
	return nil, err
}

func runMigrations(cfg *config.Config, logger *zap.Logger) error {
	logger.Info("Running database migrations...", zap.String("source", cfg.MigrationsPath))
	m, err := migrate.New(cfg.MigrationsPath, cfg.GetDBMigrationConnectionString())
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run database migrations: %w", err)
	}
	logger.Info("Database migrations completed successfully (or no new migrations).")
	return nil
}

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	appLogger, err := newLogger(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create zap logger: %v\n", err)
		os.Exit(1)
	}
	defer appLogger.Sync()
	appLogger.Info("Ledger service starting...", zap.String("storage", cfg.Storage))

	var uow repository.UnitOfWork
	switch cfg.Storage {
	case config.StorageMemory:
		appLogger.Warn("Using in-memory storage, state is lost on restart.")
		if cfg.KafkaEnabled {
			uow = memory.NewStore()
		} else {
			appLogger.Warn("Kafka disabled with in-memory storage, outbox messages are discarded.")
			uow = memory.NewStore(memory.WithoutOutbox())
		}
	default:
		appLogger.Info("Waiting for database to be available...")
		db, err := connectDB(cfg, appLogger)
		if err != nil {
			appLogger.Fatal("Could not connect to database after multiple retries. Exiting.", zap.Error(err))
		}
		defer func() {
			if err := db.Close(); err != nil {
				appLogger.Error("Error closing database connection", zap.Error(err))
			} else {
				appLogger.Info("Database connection closed.")
			}
		}()
		if err := runMigrations(cfg, appLogger); err != nil {
			appLogger.Fatal("Failed to migrate database", zap.Error(err))
		}
		uow = repository.NewPostgresUnitOfWork(db, appLogger.With(zap.String("component", "UnitOfWork")))
	}

	var transferCache cache.TransferCache = cache.NopTransferCache{}
	if cfg.RedisAddr != "" {
		redisClient, err := cache.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			appLogger.Warn("Redis unavailable, transfer cache disabled", zap.Error(err))
		} else {
			defer redisClient.Close()
			transferCache = cache.NewRedisTransferCache(redisClient, cfg.TransferCacheTTL, appLogger)
			appLogger.Info("Redis transfer cache enabled.", zap.String("addr", cfg.RedisAddr))
		}
	}

	idGenerator, err := util.NewIDGenerator(cfg.NodeID)
	if err != nil {
		appLogger.Fatal("Failed to create transfer id generator", zap.Error(err))
	}

	accountService := accounts.NewAccountService(
		uow,
		accounts.GeneratorFunc(util.GenerateAccountNumber),
		cfg.AccountMaxRetries,
		cfg.KafkaLedgerEventsTopic,
		appLogger.With(zap.String("component", "AccountService")),
	)
	transferService := transfers.NewTransferService(
		uow,
		idGenerator,
		transferCache,
		cfg.TransferMaxRetries,
		cfg.KafkaLedgerEventsTopic,
		appLogger.With(zap.String("component", "TransferService")),
	)
	reconciler := transfers.NewReconciler(
		uow,
		transferCache,
		cfg.KafkaLedgerEventsTopic,
		cfg.ReconcileInterval,
		cfg.ReconcileStaleAfter,
		appLogger.With(zap.String("component", "TransferReconciler")),
	)
	appLogger.Info("Ledger services initialized.")

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           ledger_http.NewRouter(accountService, transferService, cfg.CORSAllowedOrigins, appLogger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctxMain, cancelMain := context.WithCancel(context.Background())
	defer cancelMain()
	var wg sync.WaitGroup

	go func() {
		appLogger.Info("Starting HTTP server", zap.String("address", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		reconciler.Start(ctxMain)
	}()

	var lifecycleConsumer kafka_infra.Consumer
	if cfg.KafkaEnabled {
		kafkaBrokers := cfg.GetKafkaBrokers()
		topicsCtx, cancelTopics := context.WithTimeout(ctxMain, 10*time.Second)
		err := kafka_infra.EnsureTopics(topicsCtx, kafkaBrokers,
			[]string{cfg.KafkaLedgerEventsTopic, cfg.KafkaAccountLifecycleTopic},
			appLogger.With(zap.String("component", "KafkaAdmin")))
		cancelTopics()
		if err != nil {
			appLogger.Fatal("Failed to ensure Kafka topics", zap.Error(err))
		}

		kafkaProducer := kafka_infra.NewProducer(kafkaBrokers, appLogger.With(zap.String("component", "KafkaProducer")))
		defer func() {
			if err := kafkaProducer.Close(); err != nil {
				appLogger.Error("Error closing Kafka producer", zap.Error(err))
			} else {
				appLogger.Info("Kafka producer closed.")
			}
		}()

		outboxProcessor := outbox.NewProcessor(
			uow,
			kafkaProducer,
			cfg.OutboxPollInterval,
			cfg.OutboxPollTimeout,
			cfg.OutboxBatchSize,
			appLogger.With(zap.String("component", "OutboxProcessor")),
		)
		wg.Add(1)
		go func() {
			defer wg.Done()
			outboxProcessor.Start(ctxMain)
		}()

		lifecycleConsumer = kafka_infra.NewConsumer(
			kafkaBrokers,
			cfg.KafkaConsumerGroup,
			cfg.KafkaAccountLifecycleTopic,
			appLogger.With(zap.String("component", "AccountLifecycleConsumer")),
		)
		lifecycleHandler := kafka_handler.AccountLifecycleMessageHandler(
			accountService,
			appLogger.With(zap.String("component", "AccountLifecycleHandler")),
		)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := lifecycleConsumer.Consume(ctxMain, lifecycleHandler); err != nil {
				appLogger.Error("Account lifecycle consumer failed", zap.Error(err))
			}
		}()
	} else {
		appLogger.Warn("Kafka disabled, outbox messages are not published and lifecycle events are not consumed.")
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	appLogger.Info("Shutting down application...")

	cancelMain()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("HTTP server graceful shutdown failed", zap.Error(err))
	} else {
		appLogger.Info("HTTP server gracefully shut down.")
	}

	workersDone := make(chan struct{})
	go func() {
		wg.Wait()
		close(workersDone)
	}()
	select {
	case <-workersDone:
		appLogger.Info("Background workers stopped.")
	case <-shutdownCtx.Done():
		appLogger.Warn("Background workers did not stop before the shutdown deadline.")
	}

	if lifecycleConsumer != nil {
		if err := lifecycleConsumer.Close(); err != nil {
			appLogger.Error("Error closing account lifecycle consumer", zap.Error(err))
		} else {
			appLogger.Info("Account lifecycle consumer closed.")
		}
	}

	appLogger.Info("Application gracefully shut down.")
}
