/**
 * Direct Redis Queue Consumer for the Juxtapose Worker
 *
 * Plain Redis LIST queue shared with non-Go producers:
 * - <queue>            list of job ids (LPUSH by producers, BRPOP here)
 * - <queue>:data       hash id -> RedisJobData JSON
 * - <queue>:processing / :completed / :failed   status sets
 * - <queue>:results / :errors                    hash id -> status JSON
 * - <queue>:events     pub/sub channel for job:<status> events
 */

package queue

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/adverant/nexus/juxtapose-worker/internal/logging"
	"github.com/adverant/nexus/juxtapose-worker/internal/processor"
)

var errNoJobs = stderrors.New("no jobs available")

// RedisJobData represents a job from the Redis queue
type RedisJobData struct {
	ID         string     `json:"id"`
	Type       string     `json:"type"`
	Payload    JobPayload `json:"payload"`
	CreatedAt  time.Time  `json:"createdAt"`
	Attempts   int        `json:"attempts"`
	MaxRetries int        `json:"maxRetries"`
}

// RedisConsumer handles job consumption from Redis queue
type RedisConsumer struct {
	client *redis.Client
	runner *jobRunner
	config *RedisConsumerConfig
	logger *logging.Logger
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// RedisConsumerConfig holds consumer configuration
type RedisConsumerConfig struct {
	RedisURL          string
	QueueName         string
	Concurrency       int
	Processor         processor.ComparisonProcessorInterface
	ProcessingTimeout time.Duration
	OutputDir         string
	TempDir           string
	// MaxRetries is the number of retries after the first attempt.
	MaxRetries int
}

// NewRedisConsumer creates a new Redis-based queue consumer
func NewRedisConsumer(cfg *RedisConsumerConfig) (*RedisConsumer, error) {
	if cfg.RedisURL == "" {
		return nil, fmt.Errorf("RedisURL is required")
	}

	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opt)
	if err := client.Ping(context.Background()).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return newRedisConsumerWithClient(client, cfg)
}

func newRedisConsumerWithClient(client *redis.Client, cfg *RedisConsumerConfig) (*RedisConsumer, error) {
	if cfg.QueueName == "" {
		cfg.QueueName = "juxtapose:jobs"
	}

	if cfg.Processor == nil {
		return nil, fmt.Errorf("Processor is required")
	}

	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}

	consumerCtx, cancel := context.WithCancel(context.Background())

	return &RedisConsumer{
		client: client,
		runner: newJobRunner(cfg.Processor, cfg.OutputDir, cfg.TempDir, cfg.ProcessingTimeout, "redis-consumer"),
		config: cfg,
		logger: logging.NewLogger("redis-consumer").With("queue", cfg.QueueName),
		ctx:    consumerCtx,
		cancel: cancel,
	}, nil
}

func (c *RedisConsumer) key(suffix string) string {
	return fmt.Sprintf("%s:%s", c.config.QueueName, suffix)
}

// Start begins processing jobs from the queue
func (c *RedisConsumer) Start() error {
	c.logger.Info("Starting Redis queue consumer", "concurrency", c.config.Concurrency)

	for i := 0; i < c.config.Concurrency; i++ {
		c.wg.Add(1)
		go c.worker(i)
	}

	return nil
}

// Stop gracefully stops the consumer
func (c *RedisConsumer) Stop() error {
	c.logger.Info("Stopping queue consumer")
	c.cancel()
	c.wg.Wait()
	return c.client.Close()
}

// Enqueue stores the job and pushes its id, in one transaction.
func (c *RedisConsumer) Enqueue(ctx context.Context, payload *JobPayload) (string, error) {
	if payload.JobID == "" {
		payload.JobID = uuid.New().String()
	}
	if err := payload.Validate(); err != nil {
		return "", err
	}

	job := RedisJobData{
		ID:         payload.JobID,
		Type:       TaskTypeCompare,
		Payload:    *payload,
		CreatedAt:  time.Now().UTC(),
		MaxRetries: c.config.MaxRetries,
	}
	data, err := json.Marshal(job)
	if err != nil {
		return "", fmt.Errorf("failed to marshal job: %w", err)
	}

	_, err = c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, c.key("data"), job.ID, data)
		pipe.LPush(ctx, c.config.QueueName, job.ID)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to enqueue job %s: %w", job.ID, err)
	}
	c.logger.Info("Job enqueued", "job_id", job.ID)
	return job.ID, nil
}

// worker is a goroutine that processes jobs
func (c *RedisConsumer) worker(id int) {
	defer c.wg.Done()
	logger := c.logger.With("worker", id)
	logger.Debug("Worker started")

	for {
		select {
		case <-c.ctx.Done():
			logger.Debug("Worker stopping")
			return
		default:
			if err := c.processNextJob(); err != nil {
				if err == errNoJobs {
					continue
				}
				if c.ctx.Err() != nil {
					return
				}
				logger.Error("Worker error", "error", err.Error())
				time.Sleep(1 * time.Second)
			}
		}
	}
}

// processNextJob fetches and processes the next job from the queue
func (c *RedisConsumer) processNextJob() error {
	// Block for up to 5 seconds waiting for a job
	result, err := c.client.BRPop(c.ctx, 5*time.Second, c.config.QueueName).Result()
	if err != nil {
		if err == redis.Nil {
			return errNoJobs
		}
		return fmt.Errorf("failed to fetch job: %w", err)
	}

	if len(result) < 2 {
		return fmt.Errorf("invalid job result")
	}

	return c.handleJob(c.ctx, result[1])
}

// handleJob loads, runs and records one job. Failures are retried by
// pushing the id back until MaxRetries retries have been made; permanent
// errors fail immediately. A job interrupted by Stop is pushed back without
// counting the attempt.
func (c *RedisConsumer) handleJob(ctx context.Context, id string) error {
	raw, err := c.client.HGet(ctx, c.key("data"), id).Result()
	if err != nil {
		return fmt.Errorf("failed to get job data: %w", err)
	}

	var job RedisJobData
	if err := json.Unmarshal([]byte(raw), &job); err != nil {
		c.updateJobStatus(ctx, id, "failed", errorMap(id, err))
		return fmt.Errorf("failed to unmarshal job: %w", err)
	}
	if job.Payload.JobID == "" {
		job.Payload.JobID = job.ID
	}

	c.updateJobStatus(ctx, job.ID, "processing", nil)

	startTime := time.Now()
	compareResult, err := c.runner.run(ctx, &job.Payload)
	duration := time.Since(startTime)

	if err != nil {
		c.logger.Error("Job failed", "job_id", job.ID, "duration", duration, "error", err.Error())

		interrupted := ctx.Err() != nil && !permanent(err)
		if !interrupted {
			job.Attempts++
		}
		if interrupted || retryable(err, job.Attempts, job.MaxRetries) {
			requeueErr := c.requeue(ctx, &job)
			if requeueErr == nil {
				c.logger.Info("Job re-queued",
					"job_id", job.ID,
					"attempt", job.Attempts,
					"max_retries", job.MaxRetries,
					"interrupted", interrupted)
				return nil
			}
			c.logger.Error("Failed to re-queue job", "job_id", job.ID, "error", requeueErr.Error())
			err = fmt.Errorf("%w (re-queue failed: %v)", err, requeueErr)
		}

		status := errorMap(job.ID, err)
		status["attempts"] = job.Attempts
		c.updateJobStatus(ctx, job.ID, "failed", status)
		return nil
	}

	c.updateJobStatus(ctx, job.ID, "completed", resultMap(compareResult))
	c.logger.Info("Job completed", "job_id", job.ID, "duration", duration)
	return nil
}

// requeue stores the updated job and pushes its id back in one transaction.
// It runs even when ctx is cancelled so a stopping consumer does not lose jobs.
func (c *RedisConsumer) requeue(ctx context.Context, job *RedisJobData) error {
	ctx = context.WithoutCancel(ctx)
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}
	_, err = c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, c.key("data"), job.ID, data)
		pipe.SRem(ctx, c.key("processing"), job.ID)
		pipe.LPush(ctx, c.config.QueueName, job.ID)
		return nil
	})
	return err
}

// updateJobStatus moves the job between status sets, stores the result or
// error payload and publishes an event. Redis errors are logged, not returned.
func (c *RedisConsumer) updateJobStatus(ctx context.Context, jobID string, status string, payload map[string]interface{}) {
	// A stopping consumer still records the outcome of the job it was running.
	ctx = context.WithoutCancel(ctx)

	pipe := c.client.TxPipeline()
	switch status {
	case "processing":
		pipe.SAdd(ctx, c.key("processing"), jobID)
	case "completed":
		pipe.SRem(ctx, c.key("processing"), jobID)
		pipe.SAdd(ctx, c.key("completed"), jobID)
		if payload != nil {
			data, _ := json.Marshal(payload)
			pipe.HSet(ctx, c.key("results"), jobID, data)
		}
	case "failed":
		pipe.SRem(ctx, c.key("processing"), jobID)
		pipe.SAdd(ctx, c.key("failed"), jobID)
		if payload != nil {
			data, _ := json.Marshal(payload)
			pipe.HSet(ctx, c.key("errors"), jobID, data)
		}
	}

	// Publish event for WebSocket streaming
	event := map[string]interface{}{
		"event":     fmt.Sprintf("job:%s", status),
		"jobId":     jobID,
		"timestamp": time.Now().Format(time.RFC3339),
	}
	eventData, _ := json.Marshal(event)
	pipe.Publish(ctx, c.key("events"), eventData)

	if _, err := pipe.Exec(ctx); err != nil {
		c.logger.Warn("Failed to update job status", "job_id", jobID, "status", status, "error", err.Error())
	}
}

// GetStats returns queue statistics
func (c *RedisConsumer) GetStats(ctx context.Context) (map[string]int64, error) {
	pipe := c.client.Pipeline()
	waiting := pipe.LLen(ctx, c.config.QueueName)
	processing := pipe.SCard(ctx, c.key("processing"))
	completed := pipe.SCard(ctx, c.key("completed"))
	failed := pipe.SCard(ctx, c.key("failed"))
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("failed to read queue stats: %w", err)
	}

	return map[string]int64{
		"waiting":    waiting.Val(),
		"processing": processing.Val(),
		"completed":  completed.Val(),
		"failed":     failed.Val(),
	}, nil
}
