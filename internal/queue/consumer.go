/**
 * Queue Consumer for the Juxtapose Worker
 *
 * Consumes comparison tasks from Redis through asynq. Permanent failures
 * (bad input, missing engine) skip asynq's retries; everything else is
 * retried with capped exponential backoff.
 */

package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/adverant/nexus/juxtapose-worker/internal/logging"
	"github.com/adverant/nexus/juxtapose-worker/internal/processor"
)

// How long asynq keeps a finished task and its result.
const resultRetention = 24 * time.Hour

// Consumer handles job consumption from Redis queue
type Consumer struct {
	client *asynq.Client
	server *asynq.Server
	mux    *asynq.ServeMux
	runner *jobRunner
	config *ConsumerConfig
	logger *logging.Logger
}

// ConsumerConfig holds consumer configuration
type ConsumerConfig struct {
	RedisURL          string
	QueueName         string
	Concurrency       int
	Processor         processor.ComparisonProcessorInterface
	ProcessingTimeout time.Duration
	OutputDir         string
	TempDir           string
	// MaxRetry is the number of retries after the first attempt; 0 disables retries.
	MaxRetry int
}

// NewConsumer creates a new queue consumer
func NewConsumer(cfg *ConsumerConfig) (*Consumer, error) {
	if cfg.RedisURL == "" {
		return nil, fmt.Errorf("RedisURL is required")
	}

	if cfg.QueueName == "" {
		return nil, fmt.Errorf("QueueName is required")
	}

	if cfg.Processor == nil {
		return nil, fmt.Errorf("Processor is required")
	}

	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}

	redisOpt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	logger := logging.NewLogger("asynq-consumer")
	client := asynq.NewClient(redisOpt)

	server := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency: cfg.Concurrency,
			Queues: map[string]int{
				cfg.QueueName: 10,
				"default":     1,
			},
			// Exponential backoff: 5s, 10s, 20s ... capped at 60s
			RetryDelayFunc: func(n int, err error, task *asynq.Task) time.Duration {
				delay := time.Duration(5*(1<<uint(n))) * time.Second
				if delay > 60*time.Second {
					delay = 60 * time.Second
				}
				return delay
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				logger.Error("Task processing error", "type", task.Type(), "error", err.Error())
			}),
			Logger: logger.Entry(),
		},
	)

	mux := asynq.NewServeMux()

	consumer := &Consumer{
		client: client,
		server: server,
		mux:    mux,
		runner: newJobRunner(cfg.Processor, cfg.OutputDir, cfg.TempDir, cfg.ProcessingTimeout, "asynq-consumer"),
		config: cfg,
		logger: logger,
	}

	mux.HandleFunc(TaskTypeCompare, consumer.handleCompare)

	return consumer, nil
}

// Start starts the queue consumer
func (c *Consumer) Start(ctx context.Context) error {
	c.logger.Info("Starting queue consumer",
		"concurrency", c.config.Concurrency,
		"queue", c.config.QueueName)

	if err := c.server.Start(c.mux); err != nil {
		return fmt.Errorf("failed to start asynq server: %w", err)
	}
	return nil
}

// Stop stops the queue consumer gracefully
func (c *Consumer) Stop(ctx context.Context) error {
	c.logger.Info("Stopping queue consumer")

	c.server.Shutdown()

	if err := c.client.Close(); err != nil {
		return fmt.Errorf("failed to close client: %w", err)
	}

	c.logger.Info("Queue consumer stopped")
	return nil
}

// Enqueue submits a comparison task. A missing job id is generated; the
// job id doubles as the asynq task id so duplicates are rejected.
func (c *Consumer) Enqueue(ctx context.Context, payload *JobPayload) (string, error) {
	task, opts, err := newCompareTask(payload, c.config.QueueName, c.config.MaxRetry)
	if err != nil {
		return "", err
	}
	info, err := c.client.EnqueueContext(ctx, task, opts...)
	if err != nil {
		return "", fmt.Errorf("failed to enqueue job %s: %w", payload.JobID, err)
	}
	c.logger.Info("Job enqueued", "job_id", payload.JobID, "queue", info.Queue)
	return payload.JobID, nil
}

func newCompareTask(payload *JobPayload, queue string, maxRetry int) (*asynq.Task, []asynq.Option, error) {
	if payload.JobID == "" {
		payload.JobID = uuid.New().String()
	}
	if err := payload.Validate(); err != nil {
		return nil, nil, err
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal job payload: %w", err)
	}
	// MaxRetry is always set: without it asynq falls back to its own default.
	opts := []asynq.Option{
		asynq.Queue(queue),
		asynq.TaskID(payload.JobID),
		asynq.Retention(resultRetention),
		asynq.MaxRetry(max(maxRetry, 0)),
	}
	return asynq.NewTask(TaskTypeCompare, data), opts, nil
}

// handleCompare processes one comparison task
func (c *Consumer) handleCompare(ctx context.Context, task *asynq.Task) error {
	startTime := time.Now()

	var payload JobPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal job data: %v: %w", err, asynq.SkipRetry)
	}

	result, err := c.runner.run(ctx, &payload)
	duration := time.Since(startTime)

	if err != nil {
		c.logger.Error("Comparison failed",
			"job_id", payload.JobID,
			"duration", duration,
			"error", err.Error())
		c.writeResult(task, errorMap(payload.JobID, err))

		if permanent(err) {
			return fmt.Errorf("comparison failed: %w: %w", err, asynq.SkipRetry)
		}
		return fmt.Errorf("comparison failed: %w", err)
	}

	c.logger.Info("Comparison completed",
		"job_id", payload.JobID,
		"duration", duration,
		"collage", result.Artifact.Path)
	c.writeResult(task, resultMap(result))
	return nil
}

// writeResult stores the status payload with the task. Tasks built outside
// a server (tests) have no result writer.
func (c *Consumer) writeResult(task *asynq.Task, status map[string]interface{}) {
	w := task.ResultWriter()
	if w == nil {
		return
	}
	data, err := json.Marshal(status)
	if err != nil {
		c.logger.Warn("Failed to marshal task result", "error", err.Error())
		return
	}
	if _, err := w.Write(data); err != nil {
		c.logger.Warn("Failed to write task result", "task_id", w.TaskID(), "error", err.Error())
	}
}

// GetStatistics returns consumer statistics
func (c *Consumer) GetStatistics() map[string]interface{} {
	return map[string]interface{}{
		"concurrency": c.config.Concurrency,
		"queue":       c.config.QueueName,
		"redisURL":    c.config.RedisURL,
	}
}
