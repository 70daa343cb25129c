// internal/services/resolution_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/javajoker/broadcast-backend/internal/bridge"
	"github.com/javajoker/broadcast-backend/internal/metrics"
	"github.com/javajoker/broadcast-backend/internal/models"
	"github.com/javajoker/broadcast-backend/internal/repository"
)

// ResolutionService commits the customer's choice of winning quote.
type ResolutionService struct {
	repo    repository.Repository
	clk     clock.Clock
	metrics *metrics.Metrics
	log     *logrus.Logger
}

type Resolution struct {
	Broadcast *models.Broadcast `json:"broadcast"`
	Winner    *models.Request   `json:"winner"`
}

const siblingCancelReason = "another quote was approved"

func NewResolutionService(repo repository.Repository, clk clock.Clock, m *metrics.Metrics, log *logrus.Logger) *ResolutionService {
	return &ResolutionService{
		repo:    repo,
		clk:     clk,
		metrics: m,
		log:     log,
	}
}

// Approve makes requestID the single winner of broadcastID. The broadcast row
// is locked before any request is touched, and the final active to completed
// step is compare-and-set, so at most one approval commits.
func (s *ResolutionService) Approve(ctx context.Context, actor Actor, broadcastID, requestID uuid.UUID) (*Resolution, error) {
	var result *Resolution
	err := s.repo.WithTx(ctx, func(tx repository.Repository) error {
		b, err := tx.LockBroadcast(ctx, broadcastID)
		if err != nil {
			return err
		}
		if b.CustomerID != actor.ID {
			return ErrForbidden
		}

		req, err := tx.GetRequest(ctx, requestID)
		if err != nil {
			return err
		}
		if req.BroadcastID != broadcastID {
			return ErrNotFound
		}

		now := s.clk.Now().UTC()
		if req.Status != models.RequestStatusPriced {
			if b.Status == models.BroadcastStatusCompleted {
				return ErrRaceLost
			}
			// the sweeper may already have relabelled a lapsed quote
			if b.Status == models.BroadcastStatusActive && quoteLapsed(req, now) {
				return ErrStaleQuote
			}
			return fmt.Errorf("%w: request is %s", ErrInvalidState, req.Status)
		}
		if !req.QuoteFresh(now) {
			return ErrStaleQuote
		}
		switch b.Status {
		case models.BroadcastStatusActive:
		case models.BroadcastStatusCompleted:
			return ErrRaceLost
		default:
			return fmt.Errorf("%w: broadcast is %s", ErrInvalidState, b.Status)
		}

		ok, err := tx.TransitionRequest(ctx, req.ID, []models.RequestStatus{models.RequestStatusPriced}, repository.RequestChanges{
			Status:      models.RequestStatusCustomerApproved,
			RespondedAt: &now,
		})
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: request is no longer priced", ErrInvalidState)
		}
		if err := tx.AppendEvents(ctx, bridge.OrderConfirmed(req, now)); err != nil {
			return err
		}

		if err := closeSiblings(ctx, tx, broadcastID, req.ID, models.RequestStatusCancelled, siblingCancelReason, now); err != nil {
			return err
		}

		ok, err = tx.TransitionBroadcast(ctx, broadcastID, models.BroadcastStatusActive, repository.BroadcastChanges{
			Status:           models.BroadcastStatusCompleted,
			CompletedAt:      &now,
			WinningRequestID: &req.ID,
		})
		if err != nil {
			return err
		}
		if !ok {
			return ErrRaceLost
		}

		b.Status = models.BroadcastStatusCompleted
		b.CompletedAt = &now
		b.WinningRequestID = &req.ID
		req.Status = models.RequestStatusCustomerApproved
		req.RespondedAt = &now
		req.Broadcast = nil
		result = &Resolution{Broadcast: b, Winner: req}
		return nil
	})

	s.metrics.Approvals.WithLabelValues(approvalOutcome(err)).Inc()
	entry := s.log.WithFields(logrus.Fields{
		"broadcast_id": broadcastID,
		"request_id":   requestID,
	})
	if err != nil {
		entry.WithError(err).Info("Approval not committed")
		return nil, err
	}

	s.metrics.BroadcastsClosed.WithLabelValues(string(models.BroadcastStatusCompleted)).Inc()
	entry.Info("Broadcast resolved")
	return result, nil
}

// quoteLapsed reports whether r was priced and expired because its validity
// window passed, as opposed to a pending request that missed the deadline.
func quoteLapsed(r *models.Request, now time.Time) bool {
	return r.Status == models.RequestStatusExpired && r.PricingExpiresAt != nil && now.After(*r.PricingExpiresAt)
}

func approvalOutcome(err error) string {
	switch {
	case err == nil:
		return "won"
	case errors.Is(err, ErrRaceLost):
		return "race_lost"
	case errors.Is(err, ErrStaleQuote):
		return "stale_quote"
	case errors.Is(err, ErrInvalidState):
		return "invalid_state"
	default:
		return "error"
	}
}
