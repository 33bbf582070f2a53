package main

import (
	"context"
	"os"
	"strconv"

	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"

	"github.com/shipstream-platform/batch-shipping-service/internal/activities"
	"github.com/shipstream-platform/batch-shipping-service/internal/application"
	"github.com/shipstream-platform/batch-shipping-service/internal/infrastructure/events"
	"github.com/shipstream-platform/batch-shipping-service/internal/infrastructure/export"
	"github.com/shipstream-platform/batch-shipping-service/internal/infrastructure/labels"
	mongoRepo "github.com/shipstream-platform/batch-shipping-service/internal/infrastructure/mongodb"
	"github.com/shipstream-platform/batch-shipping-service/internal/infrastructure/shiprocket"
	"github.com/shipstream-platform/batch-shipping-service/internal/workflows"
	"github.com/shipstream-platform/batch-shipping-service/pkg/kafka"
	"github.com/shipstream-platform/batch-shipping-service/pkg/logging"
	"github.com/shipstream-platform/batch-shipping-service/pkg/metrics"
	"github.com/shipstream-platform/batch-shipping-service/pkg/mongodb"
	"github.com/shipstream-platform/batch-shipping-service/pkg/resilience"
)

const serviceName = "batch-shipping-worker"

func main() {
	logConfig := logging.DefaultConfig(serviceName)
	logConfig.Level = logging.LogLevel(getEnv("LOG_LEVEL", "info"))
	logger := logging.New(logConfig)
	logger.SetDefault()

	logger.Info("Starting batch shipping worker")

	ctx := context.Background()

	m := metrics.New(metrics.DefaultConfig(serviceName))

	mongoConfig := mongodb.DefaultConfig()
	mongoConfig.URI = getEnv("MONGODB_URI", "mongodb://localhost:27017")
	mongoConfig.Database = getEnv("MONGODB_DATABASE", "batch_shipping")

	mongoClient, err := mongodb.NewClient(ctx, mongoConfig)
	if err != nil {
		logger.WithError(err).Error("Failed to connect to MongoDB")
		os.Exit(1)
	}
	defer mongoClient.Close(ctx)
	logger.Info("Connected to MongoDB", "database", mongoConfig.Database)

	runRepo, err := mongoRepo.NewRunRepository(ctx, mongoClient)
	if err != nil {
		logger.WithError(err).Error("Failed to initialize run repository")
		os.Exit(1)
	}
	statusRepo := mongoRepo.NewStatusRepository(mongoClient)

	var publisher application.EventPublisher
	if getEnv("KAFKA_ENABLED", "true") == "true" {
		kafkaConfig := kafka.DefaultConfig()
		kafkaConfig.Brokers = []string{getEnv("KAFKA_BROKERS", "localhost:9092")}
		kafkaPublisher := events.NewKafkaPublisher(kafka.NewProducer(kafkaConfig))
		defer kafkaPublisher.Close()
		publisher = kafkaPublisher
		logger.Info("Kafka producer initialized", "brokers", kafkaConfig.Brokers)
	}

	srConfig := shiprocket.DefaultConfig()
	srConfig.BaseURL = getEnv("SHIPROCKET_BASE_URL", srConfig.BaseURL)
	srConfig.Email = getEnv("SHIPROCKET_EMAIL", "")
	srConfig.Password = getEnv("SHIPROCKET_PASSWORD", "")
	srConfig.APIKey = getEnv("SHIPROCKET_API_KEY", "")

	pacer := resilience.NewTokenBucketPacer(
		getEnvFloat("UPSTREAM_CALLS_PER_SECOND", resilience.DefaultCallsPerSecond),
		resilience.DefaultBurst,
	)
	breaker := resilience.NewCircuitBreaker(
		resilience.DefaultCircuitBreakerConfig("shiprocket"), logger.Logger)
	gateway := shiprocket.NewClient(srConfig, pacer, breaker, logger, m)

	labelProcessor := labels.NewProcessor(
		labels.NewPDFTextExtractor(),
		labels.NewPDFCPUSplitter(),
		labels.NewTextClassifier(),
		logger,
	)

	runnerConfig := application.DefaultConfig()
	runnerConfig.LookbackDays = getEnvInt("ORDER_LOOKBACK_DAYS", runnerConfig.LookbackDays)
	runnerConfig.OutputDir = getEnv("OUTPUT_DIR", runnerConfig.OutputDir)

	runner := application.NewBatchRunner(
		runnerConfig, gateway, labelProcessor,
		export.NewExcelExporter(runnerConfig.OutputDir),
		runRepo, statusRepo, publisher, logger, m,
	)

	temporalClient, err := client.Dial(client.Options{
		HostPort:  getEnv("TEMPORAL_HOST_PORT", "localhost:7233"),
		Namespace: getEnv("TEMPORAL_NAMESPACE", "default"),
	})
	if err != nil {
		logger.WithError(err).Error("Failed to connect to Temporal")
		os.Exit(1)
	}
	defer temporalClient.Close()
	logger.Info("Connected to Temporal")

	w := worker.New(temporalClient, workflows.TaskQueue, worker.Options{
		// runs mutate external systems; one at a time per worker
		MaxConcurrentActivityExecutionSize: 1,
	})

	w.RegisterWorkflow(workflows.BatchShippingWorkflow)

	batchActivities := activities.NewBatchActivities(runner)
	w.RegisterActivity(batchActivities.ExecuteBatchRun)
	logger.Info("Registered workflow and activities", "taskQueue", workflows.TaskQueue)

	logger.Info("Worker started")
	if err := w.Run(worker.InterruptCh()); err != nil {
		logger.WithError(err).Error("Worker failed")
		os.Exit(1)
	}
	logger.Info("Worker stopped")
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
