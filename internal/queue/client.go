package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/nikhilbhutani/docpipeline/internal/config"
	"github.com/nikhilbhutani/docpipeline/internal/lifecycle"
	"github.com/redis/go-redis/v9"
)

type enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
	Close() error
}

// Client publishes pipeline messages. It is created once by Connect and shared
// by the API and worker processes.
type Client struct {
	client  enqueuer
	rdb     *redis.Client
	timeout time.Duration
	logger  *slog.Logger
}

func RedisOpt(cfg config.RedisConfig) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	}
}

// Connect pings the broker until it answers or the configured attempts run
// out. Exhaustion returns an error wrapping ErrQueueUnavailable.
func Connect(ctx context.Context, redisCfg config.RedisConfig, cfg config.QueueConfig, logger *slog.Logger) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     redisCfg.Addr,
		Password: redisCfg.Password,
		DB:       redisCfg.DB,
	})

	err := lifecycle.Retry(ctx, logger, "queue broker", cfg.ConnectAttempts, cfg.ConnectDelayDuration(), func(ctx context.Context) error {
		return rdb.Ping(ctx).Err()
	})
	if err != nil {
		rdb.Close()
		return nil, fmt.Errorf("%w: %w", ErrQueueUnavailable, err)
	}

	logger.Info("connected to queue broker", "addr", redisCfg.Addr)

	return &Client{
		client:  asynq.NewClient(RedisOpt(redisCfg)),
		rdb:     rdb,
		timeout: cfg.TaskTimeoutDuration(),
		logger:  logger,
	}, nil
}

// Redis exposes the broker connection for claim bookkeeping.
func (c *Client) Redis() *redis.Client {
	return c.rdb
}

func (c *Client) Ping(ctx context.Context) error {
	if err := c.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrQueueUnavailable, err)
	}
	return nil
}

func (c *Client) Close() error {
	err := c.client.Close()
	if c.rdb != nil {
		if rerr := c.rdb.Close(); err == nil {
			err = rerr
		}
	}
	return err
}

func (c *Client) PublishUpload(ctx context.Context, documentID int64, blobKey string) error {
	msg := NewUploadMessage(documentID, blobKey)
	return c.publish(ctx, QueueDocuments, TypeDocumentUploaded, msg.MessageID, msg)
}

func (c *Client) PublishResult(ctx context.Context, documentID int64, text string) error {
	msg := NewResultMessage(documentID, text)
	return c.publish(ctx, QueueResults, TypeOCRCompleted, msg.MessageID, msg)
}

func (c *Client) publish(ctx context.Context, queueName, taskType, messageID string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("%w: marshal %s: %v", ErrPublish, taskType, err)
	}

	opts := []asynq.Option{
		asynq.Queue(queueName),
		asynq.TaskID(messageID),
		asynq.MaxRetry(0),
	}
	if c.timeout > 0 {
		opts = append(opts, asynq.Timeout(c.timeout))
	}

	task := asynq.NewTask(taskType, data)
	if _, err := c.client.EnqueueContext(ctx, task, opts...); err != nil {
		return fmt.Errorf("%w: enqueue %s: %v", ErrPublish, taskType, err)
	}

	c.logger.Debug("message published", "queue", queueName, "task_type", taskType, "message_id", messageID)
	return nil
}
