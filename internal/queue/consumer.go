package queue

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/nikhilbhutani/docpipeline/internal/config"
)

// HandlerFunc processes one delivered message payload.
type HandlerFunc func(ctx context.Context, payload []byte) error

// Consumer dispatches delivered messages to registered handlers on a bounded
// worker pool. Messages are never redelivered: a failure is either dropped or
// archived, depending on the dead letter setting.
type Consumer struct {
	server     *asynq.Server
	mux        *asynq.ServeMux
	deadLetter bool
	logger     *slog.Logger
}

func NewConsumer(redisCfg config.RedisConfig, cfg config.QueueConfig, logger *slog.Logger) *Consumer {
	logger = logger.With("component", "consumer")

	srv := asynq.NewServer(RedisOpt(redisCfg), asynq.Config{
		Concurrency: cfg.Concurrency,
		Queues: map[string]int{
			QueueDocuments: 1,
			QueueResults:   2,
		},
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			logger.Warn("message archived", "task_type", task.Type(), "error", err)
		}),
	})

	return newConsumer(srv, cfg.DeadLetter, logger)
}

func newConsumer(srv *asynq.Server, deadLetter bool, logger *slog.Logger) *Consumer {
	return &Consumer{
		server:     srv,
		mux:        asynq.NewServeMux(),
		deadLetter: deadLetter,
		logger:     logger,
	}
}

// Consume registers handler for a task type. Must be called before Start.
func (c *Consumer) Consume(taskType string, handler HandlerFunc) {
	c.mux.Handle(taskType, c.Guard(taskType, handler))
}

// Guard wraps handler so that panics and errors are logged and never escape
// into the consumer loop.
func (c *Consumer) Guard(taskType string, handler HandlerFunc) asynq.Handler {
	return asynq.HandlerFunc(func(ctx context.Context, t *asynq.Task) (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = c.fail(taskType, fmt.Errorf("handler panic: %v", r))
			}
		}()

		if herr := handler(ctx, t.Payload()); herr != nil {
			return c.fail(taskType, herr)
		}
		return nil
	})
}

func (c *Consumer) fail(taskType string, err error) error {
	c.logger.Error("message handling failed", "task_type", taskType, "error", err)
	if !c.deadLetter {
		return nil
	}
	return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
}

// Start begins processing in the background.
func (c *Consumer) Start() error {
	if err := c.server.Start(c.mux); err != nil {
		return fmt.Errorf("start consumer: %w", err)
	}
	c.logger.Info("consumer started", "queues", []string{QueueDocuments, QueueResults})
	return nil
}

// Shutdown stops fetching and waits for in-flight handlers.
func (c *Consumer) Shutdown() {
	c.server.Shutdown()
	c.logger.Info("consumer stopped")
}
