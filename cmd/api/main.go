package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.temporal.io/sdk/client"

	apihttp "github.com/shipstream-platform/batch-shipping-service/internal/api/http"
	"github.com/shipstream-platform/batch-shipping-service/internal/application"
	"github.com/shipstream-platform/batch-shipping-service/internal/infrastructure/events"
	"github.com/shipstream-platform/batch-shipping-service/internal/infrastructure/export"
	"github.com/shipstream-platform/batch-shipping-service/internal/infrastructure/labels"
	mongoRepo "github.com/shipstream-platform/batch-shipping-service/internal/infrastructure/mongodb"
	"github.com/shipstream-platform/batch-shipping-service/internal/infrastructure/shiprocket"
	"github.com/shipstream-platform/batch-shipping-service/internal/infrastructure/temporalclient"
	"github.com/shipstream-platform/batch-shipping-service/pkg/kafka"
	"github.com/shipstream-platform/batch-shipping-service/pkg/logging"
	"github.com/shipstream-platform/batch-shipping-service/pkg/metrics"
	"github.com/shipstream-platform/batch-shipping-service/pkg/middleware"
	"github.com/shipstream-platform/batch-shipping-service/pkg/mongodb"
	"github.com/shipstream-platform/batch-shipping-service/pkg/resilience"
)

const serviceName = "batch-shipping-service"

type config struct {
	ServerAddr       string
	MongoDB          *mongodb.Config
	Kafka            *kafka.Config
	KafkaEnabled     bool
	TemporalHostPort string
	TemporalEnabled  bool
	Shiprocket       shiprocket.Config
	Runner           application.Config
	CallsPerSecond   float64
}

func loadConfig() *config {
	mongoConfig := mongodb.DefaultConfig()
	mongoConfig.URI = getEnv("MONGODB_URI", "mongodb://localhost:27017")
	mongoConfig.Database = getEnv("MONGODB_DATABASE", "batch_shipping")

	kafkaConfig := kafka.DefaultConfig()
	kafkaConfig.Brokers = []string{getEnv("KAFKA_BROKERS", "localhost:9092")}

	srConfig := shiprocket.DefaultConfig()
	srConfig.BaseURL = getEnv("SHIPROCKET_BASE_URL", srConfig.BaseURL)
	srConfig.Email = getEnv("SHIPROCKET_EMAIL", "")
	srConfig.Password = getEnv("SHIPROCKET_PASSWORD", "")
	srConfig.APIKey = getEnv("SHIPROCKET_API_KEY", "")

	runnerConfig := application.DefaultConfig()
	runnerConfig.LookbackDays = getEnvInt("ORDER_LOOKBACK_DAYS", runnerConfig.LookbackDays)
	runnerConfig.OutputDir = getEnv("OUTPUT_DIR", runnerConfig.OutputDir)

	return &config{
		ServerAddr:       getEnv("SERVER_ADDR", ":8080"),
		MongoDB:          mongoConfig,
		Kafka:            kafkaConfig,
		KafkaEnabled:     getEnv("KAFKA_ENABLED", "true") == "true",
		TemporalHostPort: getEnv("TEMPORAL_HOST_PORT", "localhost:7233"),
		TemporalEnabled:  getEnv("TEMPORAL_ENABLED", "false") == "true",
		Shiprocket:       srConfig,
		Runner:           runnerConfig,
		CallsPerSecond:   getEnvFloat("UPSTREAM_CALLS_PER_SECOND", resilience.DefaultCallsPerSecond),
	}
}

func main() {
	logConfig := logging.DefaultConfig(serviceName)
	logConfig.Level = logging.LogLevel(getEnv("LOG_LEVEL", "info"))
	logger := logging.New(logConfig)
	logger.SetDefault()

	logger.Info("Starting batch shipping service API")

	cfg := loadConfig()
	ctx := context.Background()

	m := metrics.New(metrics.DefaultConfig(serviceName))
	logger.Info("Metrics initialized")

	mongoClient, err := mongodb.NewClient(ctx, cfg.MongoDB)
	if err != nil {
		logger.WithError(err).Error("Failed to connect to MongoDB")
		os.Exit(1)
	}
	defer mongoClient.Close(ctx)
	logger.Info("Connected to MongoDB", "database", cfg.MongoDB.Database)

	runRepo, err := mongoRepo.NewRunRepository(ctx, mongoClient)
	if err != nil {
		logger.WithError(err).Error("Failed to initialize run repository")
		os.Exit(1)
	}
	statusRepo := mongoRepo.NewStatusRepository(mongoClient)

	var publisher application.EventPublisher
	if cfg.KafkaEnabled {
		kafkaProducer := kafka.NewProducer(cfg.Kafka)
		kafkaPublisher := events.NewKafkaPublisher(kafkaProducer)
		defer kafkaPublisher.Close()
		publisher = kafkaPublisher
		logger.Info("Kafka producer initialized", "brokers", cfg.Kafka.Brokers)
	}

	pacer := resilience.NewTokenBucketPacer(cfg.CallsPerSecond, resilience.DefaultBurst)
	breaker := resilience.NewCircuitBreaker(
		resilience.DefaultCircuitBreakerConfig("shiprocket"), logger.Logger)
	gateway := shiprocket.NewClient(cfg.Shiprocket, pacer, breaker, logger, m)

	labelProcessor := labels.NewProcessor(
		labels.NewPDFTextExtractor(),
		labels.NewPDFCPUSplitter(),
		labels.NewTextClassifier(),
		logger,
	)
	exporter := export.NewExcelExporter(cfg.Runner.OutputDir)

	runner := application.NewBatchRunner(
		cfg.Runner, gateway, labelProcessor, exporter,
		runRepo, statusRepo, publisher, logger, m,
	)
	queries := application.NewQueryService(runRepo, statusRepo)

	var trigger apihttp.RunTrigger
	if cfg.TemporalEnabled {
		temporalClient, err := client.Dial(client.Options{HostPort: cfg.TemporalHostPort})
		if err != nil {
			logger.WithError(err).Error("Failed to connect to Temporal")
			os.Exit(1)
		}
		defer temporalClient.Close()
		trigger = temporalclient.NewWorkflowTrigger(temporalClient, logger)
		logger.Info("Temporal client initialized", "hostPort", cfg.TemporalHostPort)
	} else {
		trigger = application.NewLocalTrigger(runner, logger)
		logger.Info("Running batch runs in-process")
	}

	handlers := apihttp.NewHandlers(trigger, queries, logger)

	gin.SetMode(getEnv("GIN_MODE", gin.ReleaseMode))
	router := gin.New()
	middleware.Setup(router, logger, m)

	router.NoRoute(middleware.NoRoute())
	router.GET("/health", middleware.HealthCheck(serviceName))
	router.GET("/ready", middleware.ReadinessCheck(serviceName, func() error {
		return mongoClient.HealthCheck(ctx)
	}))
	router.GET("/metrics", gin.WrapH(m.Handler()))

	apihttp.SetupRoutes(router, handlers)

	srv := &http.Server{
		Addr:         cfg.ServerAddr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("Server error")
		}
	}()
	logger.Info("Server started", "addr", cfg.ServerAddr)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Server forced to shutdown")
	}
	logger.Info("Server exited")
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}
