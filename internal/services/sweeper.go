// internal/services/sweeper.go
package services

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/javajoker/broadcast-backend/internal/bridge"
	"github.com/javajoker/broadcast-backend/internal/config"
	"github.com/javajoker/broadcast-backend/internal/metrics"
	"github.com/javajoker/broadcast-backend/internal/models"
	"github.com/javajoker/broadcast-backend/internal/repository"
	"github.com/javajoker/broadcast-backend/internal/scheduler"
)

// Sweeper moves time-expired requests and broadcasts to their expired state.
// Each pass handles at most one batch per category.
type Sweeper struct {
	repo       repository.Repository
	broadcasts *BroadcastService
	clk        clock.Clock
	cfg        config.SweeperConfig
	metrics    *metrics.Metrics
	log        *logrus.Logger
	loop       *scheduler.Loop
}

type SweepResult struct {
	ExpiredRequests   int `json:"expired_requests"`
	ExpiredQuotes     int `json:"expired_quotes"`
	ExpiredBroadcasts int `json:"expired_broadcasts"`
	Failed            int `json:"failed"`
}

func NewSweeper(repo repository.Repository, broadcasts *BroadcastService, clk clock.Clock, cfg config.SweeperConfig, m *metrics.Metrics, log *logrus.Logger) *Sweeper {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 200
	}
	return &Sweeper{
		repo:       repo,
		broadcasts: broadcasts,
		clk:        clk,
		cfg:        cfg,
		metrics:    m,
		log:        log,
		loop:       scheduler.NewLoop(clk, cfg.Interval),
	}
}

func (s *Sweeper) Start(ctx context.Context) {
	s.log.WithField("interval", s.cfg.Interval).Info("Starting deadline sweeper")
	s.loop.Start(ctx, func(ctx context.Context, _ time.Time) {
		if _, err := s.SweepOnce(ctx); err != nil && ctx.Err() == nil {
			s.log.WithError(err).Error("Sweeper pass failed")
		}
	})
}

func (s *Sweeper) Stop() {
	s.loop.Stop()
}

// SweepOnce runs one pass. Entities that another writer closed first are
// skipped without error.
func (s *Sweeper) SweepOnce(ctx context.Context) (SweepResult, error) {
	start := time.Now()
	defer func() { s.metrics.SweepDuration.Observe(time.Since(start).Seconds()) }()

	var result SweepResult
	now := s.clk.Now().UTC()

	pending, err := s.repo.ListPendingPastDeadline(ctx, now, s.cfg.BatchSize)
	if err != nil {
		return result, err
	}
	for _, r := range pending {
		ok, err := s.repo.TransitionRequest(ctx, r.ID, []models.RequestStatus{models.RequestStatusPending}, repository.RequestChanges{
			Status: models.RequestStatusExpired,
		})
		if err != nil {
			result.Failed++
			s.log.WithError(err).WithField("request_id", r.ID).Error("Failed to expire request")
			continue
		}
		if ok {
			result.ExpiredRequests++
		}
	}

	if s.cfg.RelabelStaleQuotes {
		stale, err := s.repo.ListStaleQuotes(ctx, now, s.cfg.BatchSize)
		if err != nil {
			return result, err
		}
		for _, r := range stale {
			ok, err := s.expireQuote(ctx, r.BroadcastID, r.ID, now)
			if err != nil {
				result.Failed++
				s.log.WithError(err).WithField("request_id", r.ID).Error("Failed to expire quote")
				continue
			}
			if ok {
				result.ExpiredQuotes++
			}
		}
	}

	broadcasts, err := s.repo.ListBroadcastsPastExpiry(ctx, now, s.cfg.BatchSize)
	if err != nil {
		return result, err
	}
	for _, b := range broadcasts {
		ok, err := s.broadcasts.MarkExpired(ctx, b.ID)
		if err != nil {
			result.Failed++
			s.log.WithError(err).WithField("broadcast_id", b.ID).Error("Failed to expire broadcast")
			continue
		}
		if ok {
			result.ExpiredBroadcasts++
		}
	}

	s.metrics.SweepTransitions.WithLabelValues("request").Add(float64(result.ExpiredRequests))
	s.metrics.SweepTransitions.WithLabelValues("quote").Add(float64(result.ExpiredQuotes))
	s.metrics.SweepTransitions.WithLabelValues("broadcast").Add(float64(result.ExpiredBroadcasts))

	if result != (SweepResult{}) {
		s.log.WithFields(logrus.Fields{
			"expired_requests":   result.ExpiredRequests,
			"expired_quotes":     result.ExpiredQuotes,
			"expired_broadcasts": result.ExpiredBroadcasts,
			"failed":             result.Failed,
		}).Info("Sweeper pass completed")
	}
	return result, nil
}

// expireQuote relabels a stale priced quote while its broadcast is still
// open and voids the draft it held.
func (s *Sweeper) expireQuote(ctx context.Context, broadcastID, requestID uuid.UUID, now time.Time) (bool, error) {
	var expired bool
	err := s.repo.WithTx(ctx, func(tx repository.Repository) error {
		b, err := tx.LockBroadcast(ctx, broadcastID)
		if err != nil {
			return err
		}
		if b.Status != models.BroadcastStatusActive {
			return nil
		}

		r, err := tx.GetRequest(ctx, requestID)
		if err != nil {
			return err
		}
		if r.Status != models.RequestStatusPriced || r.QuoteFresh(now) {
			return nil
		}

		ok, err := tx.TransitionRequest(ctx, r.ID, []models.RequestStatus{models.RequestStatusPriced}, repository.RequestChanges{
			Status: models.RequestStatusExpired,
		})
		if err != nil || !ok {
			return err
		}
		expired = true
		if !r.HasDraftOrder() {
			return nil
		}
		return tx.AppendEvents(ctx, bridge.OrderCancelled(r, "quote expired", now))
	})
	return expired, err
}
