// internal/bridge/worker.go
package bridge

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/javajoker/broadcast-backend/internal/metrics"
	"github.com/javajoker/broadcast-backend/internal/models"
)

// Worker delivers queued events through a synchronous publisher.
type Worker struct {
	publisher Publisher
	metrics   *metrics.Metrics
	log       *logrus.Logger
}

func NewWorker(publisher Publisher, m *metrics.Metrics, log *logrus.Logger) *Worker {
	return &Worker{publisher: publisher, metrics: m, log: log}
}

func (w *Worker) HandleDeliverTask(ctx context.Context, t *asynq.Task) error {
	var env Envelope
	if err := json.Unmarshal(t.Payload(), &env); err != nil {
		return fmt.Errorf("failed to unmarshal bridge task payload: %v: %w", err, asynq.SkipRetry)
	}

	entry := w.log.WithFields(logrus.Fields{
		"event_id":   env.ID,
		"event_type": env.Type,
		"request_id": env.RequestID,
	})

	err := w.publisher.Publish(ctx, env.Event())
	switch {
	case err == nil:
		w.metrics.BridgeDeliveries.WithLabelValues(string(env.Type), "delivered").Inc()
		entry.Debug("Bridge event delivered")
		return nil
	case IsPermanent(err) && env.Type != models.BridgeEventDraftOrderRequested:
		// Queued tasks are not ordered. The draft for this reference may still
		// be retrying, so a rejected follow-up goes back to the queue until
		// asynq runs out of retries.
		w.metrics.BridgeDeliveries.WithLabelValues(string(env.Type), "retry").Inc()
		entry.WithError(err).Warn("Bridge follow-up rejected, will retry after the draft")
		return err
	case IsPermanent(err):
		w.metrics.BridgeDeliveries.WithLabelValues(string(env.Type), "rejected").Inc()
		w.metrics.BridgeFailures.Inc()
		entry.WithError(err).Error("Bridge event rejected by order system")
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	default:
		w.metrics.BridgeDeliveries.WithLabelValues(string(env.Type), "retry").Inc()
		entry.WithError(err).Warn("Bridge event delivery failed, will retry")
		return err
	}
}

func NewServeMux(w *Worker) *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeBridgeDeliver, w.HandleDeliverTask)
	return mux
}

// SetupServer configures the asynq server that consumes the bridge queue.
func SetupServer(rdb *redis.Client, queue string, concurrency int, log *logrus.Logger) *asynq.Server {
	opts := rdb.Options()
	return asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:     opts.Addr,
			Password: opts.Password,
			DB:       opts.DB,
		},
		asynq.Config{
			Concurrency: concurrency,
			Queues: map[string]int{
				queue: 1,
			},
			Logger: log,
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				log.WithError(err).WithField("task_type", task.Type()).Error("Bridge task failed")
			}),
		},
	)
}
