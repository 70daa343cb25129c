// internal/services/broadcast_service.go
package services

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/sirupsen/logrus"

	"github.com/javajoker/broadcast-backend/internal/bridge"
	"github.com/javajoker/broadcast-backend/internal/config"
	"github.com/javajoker/broadcast-backend/internal/metrics"
	"github.com/javajoker/broadcast-backend/internal/models"
	"github.com/javajoker/broadcast-backend/internal/repository"
	"github.com/javajoker/broadcast-backend/internal/utils"
)

type BroadcastService struct {
	repo    repository.Repository
	clk     clock.Clock
	cfg     config.BroadcastConfig
	metrics *metrics.Metrics
	log     *logrus.Logger
}

type CreateBroadcastRequest struct {
	MerchantIDs     []uuid.UUID            `json:"merchant_ids" validate:"required,min=1,dive,required"`
	InputType       models.InputType       `json:"input_type" validate:"required,oneof=text voice image mixed"`
	OriginalText    string                 `json:"original_text,omitempty" validate:"max=5000"`
	VoiceURL        string                 `json:"voice_url,omitempty" validate:"omitempty,media_ref"`
	ImageURLs       []string               `json:"image_urls,omitempty" validate:"omitempty,dive,media_ref"`
	TranscribedText string                 `json:"transcribed_text,omitempty" validate:"max=5000"`
	CustomerNotes   string                 `json:"customer_notes,omitempty" validate:"max=1000"`
	OrderType       models.OrderType       `json:"order_type,omitempty" validate:"omitempty,oneof=delivery pickup"`
	DeliveryAddress map[string]interface{} `json:"delivery_address,omitempty"`
	PricingDeadline *time.Time             `json:"pricing_deadline,omitempty"`
	ExpiresAt       *time.Time             `json:"expires_at,omitempty"`
}

type CancelBroadcastRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

type BroadcastSearchParams struct {
	utils.PaginationParams
	Status *models.BroadcastStatus `json:"status,omitempty"`
}

// RequestView is a request as shown to the customer comparing quotes.
type RequestView struct {
	models.Request
	SecondsRemaining int64 `json:"seconds_remaining"`
}

type BroadcastView struct {
	Broadcast *models.Broadcast `json:"broadcast"`
	Requests  []RequestView     `json:"requests"`
}

func NewBroadcastService(repo repository.Repository, clk clock.Clock, cfg config.BroadcastConfig, m *metrics.Metrics, log *logrus.Logger) *BroadcastService {
	return &BroadcastService{
		repo:    repo,
		clk:     clk,
		cfg:     cfg,
		metrics: m,
		log:     log,
	}
}

// Create fans a customer's order out to every candidate merchant.
func (s *BroadcastService) Create(ctx context.Context, actor Actor, req *CreateBroadcastRequest) (*BroadcastView, error) {
	if !actor.IsCustomer() {
		return nil, ErrForbidden
	}

	// Validate request
	if err := utils.ValidateStruct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPrecondition, err)
	}

	if len(req.MerchantIDs) > s.cfg.MaxMerchants {
		return nil, precondition("at most %d merchants per broadcast", s.cfg.MaxMerchants)
	}
	seen := make(map[uuid.UUID]bool, len(req.MerchantIDs))
	for _, id := range req.MerchantIDs {
		if seen[id] {
			return nil, precondition("merchant %s listed more than once", id)
		}
		seen[id] = true
	}

	if req.OriginalText == "" && req.TranscribedText == "" && req.VoiceURL == "" && len(req.ImageURLs) == 0 {
		return nil, precondition("order needs text, a voice note or images")
	}
	if len(req.ImageURLs) > s.cfg.MaxImages {
		return nil, precondition("at most %d images per broadcast", s.cfg.MaxImages)
	}

	now := s.clk.Now().UTC()
	pricingDeadline := now.Add(s.cfg.PricingTimeout)
	if req.PricingDeadline != nil {
		pricingDeadline = req.PricingDeadline.UTC()
	}
	expiresAt := now.Add(s.cfg.AutoCancelAfter)
	if req.ExpiresAt != nil {
		expiresAt = req.ExpiresAt.UTC()
	}
	if !pricingDeadline.After(now) {
		return nil, precondition("pricing deadline must be in the future")
	}
	if !pricingDeadline.Before(expiresAt) {
		return nil, precondition("pricing deadline must be before expiry")
	}

	orderType := req.OrderType
	if orderType == "" {
		orderType = models.OrderTypeDelivery
	}

	broadcast := &models.Broadcast{
		BaseModel:       models.BaseModel{ID: uuid.New(), CreatedAt: now, UpdatedAt: now},
		CustomerID:      actor.ID,
		InputType:       req.InputType,
		OriginalText:    req.OriginalText,
		VoiceURL:        req.VoiceURL,
		ImageURLs:       pq.StringArray(req.ImageURLs),
		TranscribedText: req.TranscribedText,
		CustomerNotes:   req.CustomerNotes,
		OrderType:       orderType,
		DeliveryAddress: models.JSONB(req.DeliveryAddress),
		Status:          models.BroadcastStatusActive,
		PricingDeadline: pricingDeadline,
		ExpiresAt:       expiresAt,
	}

	requests := make([]models.Request, len(req.MerchantIDs))
	for i, merchantID := range req.MerchantIDs {
		broadcast.MerchantIDs = append(broadcast.MerchantIDs, merchantID.String())
		requests[i] = models.Request{
			BaseModel:   models.BaseModel{ID: uuid.New(), CreatedAt: now, UpdatedAt: now},
			BroadcastID: broadcast.ID,
			MerchantID:  merchantID,
			Status:      models.RequestStatusPending,
		}
	}

	if err := s.repo.CreateBroadcast(ctx, broadcast, requests); err != nil {
		return nil, fmt.Errorf("failed to create broadcast: %w", err)
	}

	s.metrics.BroadcastsCreated.Inc()
	s.log.WithFields(logrus.Fields{
		"broadcast_id": broadcast.ID,
		"customer_id":  actor.ID,
		"merchants":    len(requests),
	}).Info("Broadcast created")

	views := make([]RequestView, len(requests))
	for i := range requests {
		views[i] = RequestView{Request: requests[i]}
	}
	return &BroadcastView{Broadcast: broadcast, Requests: views}, nil
}

// Cancel withdraws an active broadcast and every request still running.
func (s *BroadcastService) Cancel(ctx context.Context, actor Actor, id uuid.UUID, reason string) (*models.Broadcast, error) {
	if reason == "" {
		reason = "cancelled by customer"
	}

	var result *models.Broadcast
	err := s.repo.WithTx(ctx, func(tx repository.Repository) error {
		b, err := tx.LockBroadcast(ctx, id)
		if err != nil {
			return err
		}
		if b.CustomerID != actor.ID && !actor.IsAdmin() {
			return ErrForbidden
		}
		if b.Status != models.BroadcastStatusActive {
			return fmt.Errorf("%w: broadcast is %s", ErrInvalidState, b.Status)
		}

		now := s.clk.Now().UTC()
		if err := closeRunningRequests(ctx, tx, b.ID, models.RequestStatusCancelled, reason, now); err != nil {
			return err
		}

		changes := repository.BroadcastChanges{
			Status:             models.BroadcastStatusCancelled,
			CancelledAt:        &now,
			CancellationReason: reason,
		}
		ok, err := tx.TransitionBroadcast(ctx, b.ID, models.BroadcastStatusActive, changes)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: broadcast is no longer active", ErrInvalidState)
		}

		b.Status = models.BroadcastStatusCancelled
		b.CancelledAt = &now
		b.CancellationReason = reason
		result = b
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.BroadcastsClosed.WithLabelValues(string(models.BroadcastStatusCancelled)).Inc()
	s.log.WithFields(logrus.Fields{"broadcast_id": id, "reason": reason}).Info("Broadcast cancelled")
	return result, nil
}

// MarkExpired closes an active broadcast whose window has run out. It reports
// false, without error, when the broadcast is already terminal.
func (s *BroadcastService) MarkExpired(ctx context.Context, id uuid.UUID) (bool, error) {
	var expired bool
	err := s.repo.WithTx(ctx, func(tx repository.Repository) error {
		b, err := tx.LockBroadcast(ctx, id)
		if err != nil {
			return err
		}
		if b.Status.IsTerminal() {
			return nil
		}

		now := s.clk.Now().UTC()
		if err := closeRunningRequests(ctx, tx, b.ID, models.RequestStatusExpired, "broadcast expired", now); err != nil {
			return err
		}

		ok, err := tx.TransitionBroadcast(ctx, b.ID, models.BroadcastStatusActive, repository.BroadcastChanges{
			Status:    models.BroadcastStatusExpired,
			ExpiredAt: &now,
		})
		if err != nil {
			return err
		}
		expired = ok
		return nil
	})
	if err != nil {
		return false, err
	}

	if expired {
		s.metrics.BroadcastsClosed.WithLabelValues(string(models.BroadcastStatusExpired)).Inc()
		s.log.WithField("broadcast_id", id).Info("Broadcast expired")
	}
	return expired, nil
}

// Get returns the broadcast with its requests ordered by total, unpriced last.
func (s *BroadcastService) Get(ctx context.Context, actor Actor, id uuid.UUID) (*BroadcastView, error) {
	b, err := s.repo.GetBroadcast(ctx, id)
	if err != nil {
		return nil, err
	}
	if b.CustomerID != actor.ID && !actor.IsAdmin() {
		return nil, ErrForbidden
	}

	requests, err := s.repo.ListRequests(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load requests: %w", err)
	}

	return &BroadcastView{Broadcast: b, Requests: rankRequests(requests, s.clk.Now())}, nil
}

func (s *BroadcastService) List(ctx context.Context, actor Actor, params BroadcastSearchParams) ([]models.Broadcast, int64, error) {
	filter := repository.BroadcastFilter{
		Status: params.Status,
		Offset: params.Offset(),
		Limit:  params.Limit,
	}
	if !actor.IsAdmin() {
		filter.CustomerID = &actor.ID
	}
	return s.repo.ListBroadcasts(ctx, filter)
}

func (s *BroadcastService) CountActive(ctx context.Context, actor Actor) (int64, error) {
	status := models.BroadcastStatusActive
	filter := repository.BroadcastFilter{Status: &status}
	if !actor.IsAdmin() {
		filter.CustomerID = &actor.ID
	}
	return s.repo.CountBroadcasts(ctx, filter)
}

// closeRunningRequests moves every pending or priced request of a broadcast
// to status and voids the drafts they held.
func closeRunningRequests(ctx context.Context, tx repository.Repository, broadcastID uuid.UUID, status models.RequestStatus, reason string, now time.Time) error {
	return closeSiblings(ctx, tx, broadcastID, uuid.Nil, status, reason, now)
}

func closeSiblings(ctx context.Context, tx repository.Repository, broadcastID, keep uuid.UUID, status models.RequestStatus, reason string, now time.Time) error {
	requests, err := tx.ListRequests(ctx, broadcastID)
	if err != nil {
		return fmt.Errorf("failed to load requests: %w", err)
	}

	var events []models.BridgeEvent
	for i := range requests {
		req := &requests[i]
		if req.ID == keep || req.Status.IsTerminal() {
			continue
		}
		changes := repository.RequestChanges{Status: status}
		if status == models.RequestStatusCancelled {
			changes.CancellationReason = reason
		}
		ok, err := tx.TransitionRequest(ctx, req.ID, models.InRunningStatuses, changes)
		if err != nil {
			return fmt.Errorf("failed to close request %s: %w", req.ID, err)
		}
		if ok && req.HasDraftOrder() {
			events = append(events, bridge.OrderCancelled(req, reason, now))
		}
	}

	return tx.AppendEvents(ctx, events...)
}

func rankRequests(requests []models.Request, now time.Time) []RequestView {
	sort.SliceStable(requests, func(i, j int) bool {
		pi, pj := requests[i].PricedAt != nil, requests[j].PricedAt != nil
		if pi != pj {
			return pi
		}
		if !pi {
			return false
		}
		return requests[i].Total < requests[j].Total
	})

	views := make([]RequestView, len(requests))
	for i := range requests {
		views[i] = RequestView{Request: requests[i]}
		if requests[i].Status == models.RequestStatusPriced {
			views[i].SecondsRemaining = requests[i].SecondsRemaining(now)
		}
	}
	return views
}
