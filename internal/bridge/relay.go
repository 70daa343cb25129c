// internal/bridge/relay.go
package bridge

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/cenkalti/backoff"
	"github.com/sirupsen/logrus"

	"github.com/javajoker/broadcast-backend/internal/metrics"
	"github.com/javajoker/broadcast-backend/internal/repository"
	"github.com/javajoker/broadcast-backend/internal/scheduler"
)

type RelayConfig struct {
	Interval       time.Duration
	BatchSize      int
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// Relay moves pending outbox rows to a Publisher. A single relay instance is
// expected per database; rows are not claimed before publishing.
type Relay struct {
	repo      repository.Repository
	publisher Publisher
	clk       clock.Clock
	cfg       RelayConfig
	metrics   *metrics.Metrics
	log       *logrus.Logger
	loop      *scheduler.Loop
}

func NewRelay(repo repository.Repository, publisher Publisher, clk clock.Clock, cfg RelayConfig, m *metrics.Metrics, log *logrus.Logger) *Relay {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 10
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = 5 * time.Second
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 30 * time.Minute
	}
	return &Relay{
		repo:      repo,
		publisher: publisher,
		clk:       clk,
		cfg:       cfg,
		metrics:   m,
		log:       log,
		loop:      scheduler.NewLoop(clk, cfg.Interval),
	}
}

func (r *Relay) Start(ctx context.Context) {
	r.log.WithField("interval", r.cfg.Interval).Info("Starting bridge relay")
	r.loop.Start(ctx, func(ctx context.Context, _ time.Time) {
		if _, err := r.RelayOnce(ctx); err != nil && ctx.Err() == nil {
			r.log.WithError(err).Error("Bridge relay pass failed")
		}
	})
}

func (r *Relay) Stop() {
	r.loop.Stop()
}

// RelayOnce publishes one batch of due events and returns how many were
// delivered.
func (r *Relay) RelayOnce(ctx context.Context) (int, error) {
	events, err := r.repo.ListDueEvents(ctx, r.clk.Now(), r.cfg.BatchSize)
	if err != nil {
		return 0, err
	}

	delivered := 0
	for _, event := range events {
		if ctx.Err() != nil {
			return delivered, ctx.Err()
		}

		entry := r.log.WithFields(logrus.Fields{
			"event_id":   event.ID,
			"event_type": event.EventType,
			"request_id": event.RequestID,
		})

		pubErr := r.publisher.Publish(ctx, event)
		if pubErr == nil {
			if err := r.repo.MarkEventDispatched(ctx, event.ID, r.clk.Now()); err != nil {
				return delivered, err
			}
			r.metrics.BridgeDeliveries.WithLabelValues(string(event.EventType), "delivered").Inc()
			delivered++
			continue
		}

		attempts := event.Attempts + 1
		final := IsPermanent(pubErr) || attempts >= r.cfg.MaxAttempts
		failure := repository.EventFailure{
			Attempts:      attempts,
			LastError:     pubErr.Error(),
			NextAttemptAt: r.clk.Now().Add(r.retryDelay(attempts)),
			Final:         final,
		}
		if err := r.repo.RecordEventFailure(ctx, event.ID, failure); err != nil {
			return delivered, err
		}

		if final {
			r.metrics.BridgeDeliveries.WithLabelValues(string(event.EventType), "failed").Inc()
			r.metrics.BridgeFailures.Inc()
			entry.WithError(pubErr).WithField("attempts", attempts).Error("Bridge event marked failed")
		} else {
			r.metrics.BridgeDeliveries.WithLabelValues(string(event.EventType), "retry").Inc()
			entry.WithError(pubErr).WithField("next_attempt_at", failure.NextAttemptAt).Warn("Bridge event delivery failed")
		}
	}

	return delivered, nil
}

// retryDelay doubles from InitialBackoff per attempt, capped at MaxBackoff.
func (r *Relay) retryDelay(attempts int) time.Duration {
	b := &backoff.ExponentialBackOff{
		InitialInterval:     r.cfg.InitialBackoff,
		RandomizationFactor: 0,
		Multiplier:          2,
		MaxInterval:         r.cfg.MaxBackoff,
		Clock:               r.clk,
	}
	b.Reset()

	delay := b.NextBackOff()
	for i := 1; i < attempts; i++ {
		delay = b.NextBackOff()
	}
	return delay
}
