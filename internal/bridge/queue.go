// internal/bridge/queue.go
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/javajoker/broadcast-backend/internal/models"
)

const TypeBridgeDeliver = "bridge:event:deliver"

func NewClient(rdb *redis.Client) *asynq.Client {
	opts := rdb.Options()
	return asynq.NewClient(asynq.RedisClientOpt{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
}

// Enqueuer is the part of *asynq.Client the queue publisher uses.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// QueuePublisher hands events to a Redis-backed queue. The task id is the
// event id, so re-publishing an event that is still queued is a no-op.
type QueuePublisher struct {
	client     Enqueuer
	queue      string
	maxRetries int
}

func NewQueuePublisher(client Enqueuer, queue string, maxRetries int) *QueuePublisher {
	return &QueuePublisher{client: client, queue: queue, maxRetries: maxRetries}
}

func (p *QueuePublisher) Publish(ctx context.Context, event models.BridgeEvent) error {
	task, err := NewDeliverTask(event)
	if err != nil {
		return Permanent(err)
	}

	_, err = p.client.EnqueueContext(ctx, task,
		asynq.TaskID(event.ID.String()),
		asynq.Queue(p.queue),
		asynq.MaxRetry(p.maxRetries),
	)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to enqueue event: %w", err)
	}
	return nil
}

func NewDeliverTask(event models.BridgeEvent) (*asynq.Task, error) {
	payload, err := json.Marshal(NewEnvelope(event))
	if err != nil {
		return nil, fmt.Errorf("failed to encode event: %w", err)
	}
	return asynq.NewTask(TypeBridgeDeliver, payload), nil
}
