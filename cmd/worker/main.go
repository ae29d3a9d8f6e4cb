/**
 * Juxtapose Worker - Main Entry Point
 *
 * Queue worker for handwriting comparison jobs.
 *
 * Architecture:
 * - Redis LIST consumer (default) or asynq consumer for the job queue
 * - Registry of (engine, granularity) extractor/composer pairs
 * - Tesseract (CLI or linked library) and EasyOCR engines
 * - One juxtaposed collage written per job
 */

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/adverant/nexus/juxtapose-worker/internal/config"
	"github.com/adverant/nexus/juxtapose-worker/internal/logging"
	"github.com/adverant/nexus/juxtapose-worker/internal/processor"
	"github.com/adverant/nexus/juxtapose-worker/internal/queue"
)

func main() {
	logger := logging.NewLogger("worker")

	if err := godotenv.Load(); err != nil {
		logger.Warn(".env not found, using system environment variables")
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Error("Failed to load configuration", "error", err.Error())
		os.Exit(1)
	}
	if err := logging.Configure(cfg.LogLevel, cfg.LogFormat); err != nil {
		logger.Error("Invalid logging configuration", "error", err.Error())
		os.Exit(1)
	}

	logger.Info("Juxtapose worker starting",
		"redis", cfg.RedisURL,
		"queue", cfg.QueueName,
		"backend", cfg.QueueBackend,
		"workers", cfg.WorkerConcurrency)

	registry := processor.NewDefaultRegistry(cfg)
	proc, err := processor.NewComparisonProcessor(&processor.ProcessorConfig{
		Registry:          registry,
		ExtractionTimeout: cfg.ExtractionTimeout,
	})
	if err != nil {
		logger.Error("Failed to initialize comparison processor", "error", err.Error())
		os.Exit(1)
	}
	logger.Info("Comparison processor initialized", "engines", registry.Engines())

	stop, err := startConsumer(cfg, proc)
	if err != nil {
		logger.Error("Failed to start queue consumer", "error", err.Error())
		os.Exit(1)
	}
	logger.Info("Juxtapose worker is ready, waiting for jobs")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	sig := <-sigChan
	logger.Info("Received signal, initiating graceful shutdown", "signal", sig.String())

	if err := stop(); err != nil {
		logger.Error("Error stopping queue consumer", "error", err.Error())
	}
	logger.Info("Shutdown complete")
}

// startConsumer starts the configured backend and returns its stop function.
func startConsumer(cfg *config.Config, proc processor.ComparisonProcessorInterface) (func() error, error) {
	if cfg.QueueBackend == "asynq" {
		consumer, err := queue.NewConsumer(&queue.ConsumerConfig{
			RedisURL:          cfg.RedisURL,
			QueueName:         cfg.QueueName,
			Concurrency:       cfg.WorkerConcurrency,
			Processor:         proc,
			ProcessingTimeout: cfg.ProcessingTimeout,
			OutputDir:         cfg.OutputDir,
			TempDir:           cfg.TempDir,
			MaxRetry:          cfg.JobMaxRetries,
		})
		if err != nil {
			return nil, err
		}
		if err := consumer.Start(context.Background()); err != nil {
			return nil, err
		}
		return func() error { return consumer.Stop(context.Background()) }, nil
	}

	consumer, err := queue.NewRedisConsumer(&queue.RedisConsumerConfig{
		RedisURL:          cfg.RedisURL,
		QueueName:         cfg.QueueName,
		Concurrency:       cfg.WorkerConcurrency,
		Processor:         proc,
		ProcessingTimeout: cfg.ProcessingTimeout,
		OutputDir:         cfg.OutputDir,
		TempDir:           cfg.TempDir,
		MaxRetries:        cfg.JobMaxRetries,
	})
	if err != nil {
		return nil, err
	}
	if err := consumer.Start(); err != nil {
		return nil, err
	}
	return consumer.Stop, nil
}
