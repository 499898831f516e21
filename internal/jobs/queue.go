package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"
)

// Queue enqueues indexing work.
type Queue struct {
	client *asynq.Client
	name   string
}

// NewQueue connects to the redis instance at redisURL, e.g.
// redis://localhost:6379/0.
func NewQueue(redisURL, queue string) (*Queue, error) {
	opt, err := asynq.ParseRedisURI(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	if queue == "" {
		queue = DefaultQueue
	}
	return &Queue{client: asynq.NewClient(opt), name: queue}, nil
}

// EnqueueIndex schedules indexing of one transaction. Enqueuing a
// transaction that already has a pending task is a no-op.
func (q *Queue) EnqueueIndex(ctx context.Context, tenant, transactionID string) error {
	task, err := NewIndexTransactionTask(tenant, transactionID)
	if err != nil {
		return err
	}
	id := taskID(IndexPayload{Tenant: tenant, TransactionID: transactionID})

	info, err := q.client.EnqueueContext(ctx, task,
		asynq.Queue(q.name),
		asynq.TaskID(id),
		asynq.MaxRetry(5))
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		slog.Debug("Index task already queued", "task_id", id)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to enqueue index task: %w", err)
	}

	slog.Debug("Enqueued index task", "task_id", info.ID, "queue", info.Queue)
	return nil
}

// EnqueueReindex schedules a full rebuild for tenant. Reindexing is never
// retried automatically.
func (q *Queue) EnqueueReindex(ctx context.Context, tenant string, limit int) error {
	task, err := NewReindexTask(tenant, limit)
	if err != nil {
		return err
	}
	if _, err := q.client.EnqueueContext(ctx, task, asynq.Queue(q.name), asynq.MaxRetry(0)); err != nil {
		return fmt.Errorf("failed to enqueue reindex task: %w", err)
	}
	return nil
}

// Close releases the redis connection.
func (q *Queue) Close() error {
	return q.client.Close()
}

func decode(task *asynq.Task, v any) error {
	if err := json.Unmarshal(task.Payload(), v); err != nil {
		return fmt.Errorf("malformed %s payload: %v: %w", task.Type(), err, asynq.SkipRetry)
	}
	return nil
}
