package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/anshtyagi9/Banking-API-Project/internal/app/auth"
	"github.com/anshtyagi9/Banking-API-Project/internal/app/ledger"
	"github.com/anshtyagi9/Banking-API-Project/internal/app/query"
	"github.com/anshtyagi9/Banking-API-Project/internal/config"
	banking_http "github.com/anshtyagi9/Banking-API-Project/internal/handler/http/banking"
	"github.com/anshtyagi9/Banking-API-Project/internal/infrastructure/database"
	kafka_infra "github.com/anshtyagi9/Banking-API-Project/internal/infrastructure/kafka"
	"github.com/anshtyagi9/Banking-API-Project/internal/outbox"
	"github.com/anshtyagi9/Banking-API-Project/internal/repository"
	"github.com/anshtyagi9/Banking-API-Project/internal/repository/memory"
	"github.com/anshtyagi9/Banking-API-Project/internal/repository/postgres"
)

func newLogger(level string) (*zap.Logger, error) {
	zapConfig := zap.NewProductionConfig()
	zapConfig.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	zapConfig.EncoderConfig.TimeKey = "timestamp"

	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid LOG_LEVEL %q: %w", level, err)
	}
	zapConfig.Level = zap.NewAtomicLevelAt(lvl)
	return zapConfig.Build()
}

func connectPostgres(cfg *config.Config, logger *zap.Logger) (*sql.DB, error) {
	dbConfig := database.DBConfig{
		Host:            cfg.DBConfig.Host,
		Port:            cfg.DBConfig.Port,
		User:            cfg.DBConfig.User,
		Password:        cfg.DBConfig.Password,
		DBName:          cfg.DBConfig.Name,
		SSLMode:         cfg.DBConfig.SSLMode,
		MaxOpenConns:    cfg.DBConfig.MaxOpenConns,
		MaxIdleConns:    cfg.DBConfig.MaxOpenConns / 2,
		ConnMaxLifetime: cfg.DBConfig.ConnMaxLifetime,
	}

	var (
		db  *sql.DB
		err error
	)
	maxRetries := 10
	retryDelay := 5 * time.Second
	for i := 0; i < maxRetries; i++ {
		db, err = database.NewPostgresDB(dbConfig)
		if err == nil {
			logger.Info("Successfully connected to PostgreSQL database!")
			return db, nil
		}
		logger.Warn("Failed to connect to database, retrying",
			zap.Int("attempt", i+1),
			zap.Int("max_attempts", maxRetries),
			zap.Duration("retry_in", retryDelay),
			zap.Error(err))
		time.Sleep(retryDelay)
	}
	return nil, fmt.Errorf("could not connect to database after %d attempts: %w", maxRetries, err)
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
	appLogger.Info("Banking service starting...", zap.String("storage_backend", cfg.StorageBackend))

	var txManager repository.TxManager
	switch cfg.StorageBackend {
	case config.BackendPostgres:
		appLogger.Info("Waiting for database to be available...")
		db, err := connectPostgres(cfg, appLogger)
		if err != nil {
			appLogger.Fatal("Database unavailable. Exiting.", zap.Error(err))
		}
		defer func() {
			if err := db.Close(); err != nil {
				appLogger.Error("Error closing database connection", zap.Error(err))
			} else {
				appLogger.Info("Database connection closed.")
			}
		}()
		if err := runMigrations(cfg, appLogger); err != nil {
			appLogger.Fatal("Migrations failed", zap.Error(err))
		}
		txManager = postgres.NewTxManager(db, appLogger.With(zap.String("component", "TxManager")))
	case config.BackendMemory:
		appLogger.Warn("Using in-memory storage, all data is lost on shutdown.")
		txManager = memory.NewStore()
	}

	ctxMain, cancelMain := context.WithCancel(context.Background())
	defer cancelMain()

	var processorDone chan struct{}
	if cfg.KafkaEnabled {
		ctx, cancel := context.WithTimeout(ctxMain, 10*time.Second)
		err := kafka_infra.EnsureTopics(ctx, cfg.GetKafkaBrokers(), []kafka_infra.TopicSpec{{
			Name:              cfg.KafkaLedgerEventsTopic,
			Partitions:        cfg.KafkaTopicPartitions,
			ReplicationFactor: 1,
		}}, appLogger.With(zap.String("component", "KafkaAdmin")))
		cancel()
		if err != nil {
			appLogger.Fatal("Failed to ensure Kafka topics", zap.Error(err))
		}

		kafkaPublisher := kafka_infra.NewPublisher(
			cfg.GetKafkaBrokers(),
			appLogger.With(zap.String("component", "KafkaPublisher")),
		)
		defer func() {
			if err := kafkaPublisher.Close(); err != nil {
				appLogger.Error("Error closing Kafka publisher", zap.Error(err))
			} else {
				appLogger.Info("Kafka publisher closed.")
			}
		}()

		outboxProcessor := outbox.NewProcessor(
			txManager,
			kafkaPublisher,
			cfg.OutboxPollInterval,
			cfg.OutboxPollTimeout,
			cfg.OutboxBatchSize,
			appLogger.With(zap.String("component", "OutboxProcessor")),
		)
		processorDone = make(chan struct{})
		go func() {
			defer close(processorDone)
			outboxProcessor.Start(ctxMain)
		}()
	} else {
		appLogger.Info("Kafka disabled, ledger events are not published.")
	}

	engine := ledger.NewEngine(txManager, ledger.Config{
		MaxRetries:     cfg.LedgerMaxRetries,
		RetryBackoff:   cfg.LedgerRetryBackoff,
		RecordRejected: cfg.LedgerRecordRejected,
		EventsTopic:    cfg.LedgerEventsTopic(),
	}, appLogger.With(zap.String("component", "LedgerEngine")))
	queries := query.NewService(txManager, appLogger.With(zap.String("component", "QueryService")))
	authService := auth.NewService(
		txManager,
		auth.NewTokenIssuer(cfg.JWTSecret, cfg.JWTTTL),
		0,
		appLogger.With(zap.String("component", "AuthService")),
	)
	appLogger.Info("Services initialized.")

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(30 * time.Second))
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	banking_http.RegisterRoutes(router, authService, engine, queries, appLogger)

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		appLogger.Info("Starting HTTP server", zap.String("address", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	appLogger.Info("Shutting down application...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("HTTP server graceful shutdown failed", zap.Error(err))
	} else {
		appLogger.Info("HTTP server gracefully shut down.")
	}

	cancelMain()
	if processorDone != nil {
		select {
		case <-processorDone:
		case <-time.After(5 * time.Second):
			appLogger.Warn("Outbox Processor did not stop cleanly within 5 seconds.")
		}
	}

	appLogger.Info("Application gracefully shut down.")
}
