// internal/services/quote_service.go
package services

import (
	"context"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/javajoker/broadcast-backend/internal/bridge"
	"github.com/javajoker/broadcast-backend/internal/config"
	"github.com/javajoker/broadcast-backend/internal/metrics"
	"github.com/javajoker/broadcast-backend/internal/models"
	"github.com/javajoker/broadcast-backend/internal/repository"
	"github.com/javajoker/broadcast-backend/internal/utils"
)

type QuoteService struct {
	repo    repository.Repository
	clk     clock.Clock
	cfg     config.BroadcastConfig
	metrics *metrics.Metrics
	log     *logrus.Logger
}

type LineItemInput struct {
	OriginalCustomerText string                    `json:"original_customer_text" validate:"max=500"`
	ItemName             string                    `json:"item_name" validate:"required,max=255"`
	UnitType             string                    `json:"unit_type,omitempty" validate:"omitempty,unit_type"`
	Quantity             float64                   `json:"quantity" validate:"gt=0"`
	UnitPrice            float64                   `json:"unit_price" validate:"gte=0"`
	AvailabilityStatus   models.AvailabilityStatus `json:"availability_status,omitempty" validate:"omitempty,oneof=available unavailable partial substituted"`
	SubstituteName       string                    `json:"substitute_name,omitempty" validate:"required_if=AvailabilityStatus substituted,max=255"`
	SubstituteQuantity   *float64                  `json:"substitute_quantity,omitempty" validate:"omitempty,gt=0"`
	SubstituteUnitPrice  *float64                  `json:"substitute_unit_price,omitempty" validate:"omitempty,gte=0"`
	MerchantNotes        string                    `json:"merchant_notes,omitempty" validate:"max=500"`
}

type SubmitQuoteRequest struct {
	Items         []LineItemInput `json:"items" validate:"dive"`
	DeliveryFee   float64         `json:"delivery_fee" validate:"gte=0"`
	MerchantNotes string          `json:"merchant_notes,omitempty" validate:"max=1000"`
	// ValidityMinutes overrides the default quote validity window.
	ValidityMinutes int `json:"validity_minutes,omitempty" validate:"omitempty,min=1"`
}

type RejectQuoteRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

type DeclineRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

type MerchantRequestSearchParams struct {
	utils.PaginationParams
	Statuses []models.RequestStatus `json:"statuses,omitempty"`
}

func NewQuoteService(repo repository.Repository, clk clock.Clock, cfg config.BroadcastConfig, m *metrics.Metrics, log *logrus.Logger) *QuoteService {
	return &QuoteService{
		repo:    repo,
		clk:     clk,
		cfg:     cfg,
		metrics: m,
		log:     log,
	}
}

// SubmitQuote prices a pending request and asks the order system for a draft.
func (s *QuoteService) SubmitQuote(ctx context.Context, actor Actor, requestID uuid.UUID, req *SubmitQuoteRequest) (*models.Request, error) {
	if len(req.Items) == 0 {
		return nil, fmt.Errorf("%w: a quote needs at least one line item", ErrInvalidState)
	}
	if err := utils.ValidateStruct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPrecondition, err)
	}
	if limit := s.cfg.MaxItemsPerQuote; limit > 0 && len(req.Items) > limit {
		return nil, precondition("a quote may list at most %d items", limit)
	}

	window := s.cfg.QuoteValidityWindow
	if req.ValidityMinutes > 0 {
		window = time.Duration(req.ValidityMinutes) * time.Minute
	}
	if window > s.cfg.MaxQuoteValidity {
		return nil, precondition("quote validity may not exceed %s", s.cfg.MaxQuoteValidity)
	}

	items, subtotal, err := priceItems(req.Items)
	if err != nil {
		return nil, err
	}
	fee := models.RoundCents(req.DeliveryFee)
	total := models.RoundCents(subtotal + fee)

	err = s.repo.WithTx(ctx, func(tx repository.Repository) error {
		r, err := tx.GetRequest(ctx, requestID)
		if err != nil {
			return err
		}
		if r.MerchantID != actor.ID {
			return ErrForbidden
		}
		if r.Status != models.RequestStatusPending {
			return fmt.Errorf("%w: request is %s", ErrInvalidState, r.Status)
		}

		// serializes with Approve and the sweeper, which lock the same row
		// before closing siblings
		b, err := tx.LockBroadcast(ctx, r.BroadcastID)
		if err != nil {
			return err
		}
		now := s.clk.Now().UTC()
		if b.Status != models.BroadcastStatusActive {
			return fmt.Errorf("%w: broadcast is %s", ErrInvalidState, b.Status)
		}
		if !now.Before(b.PricingDeadline) {
			return ErrTooLateToQuote
		}

		quote := repository.Quote{
			RequestID:        r.ID,
			Items:            items,
			Subtotal:         subtotal,
			DeliveryFee:      fee,
			Total:            total,
			MerchantNotes:    req.MerchantNotes,
			PricedAt:         now,
			PricingExpiresAt: now.Add(window),
			OrderReference:   uuid.New(),
		}
		saved, err := tx.SaveQuote(ctx, quote)
		if err != nil {
			return fmt.Errorf("failed to save quote: %w", err)
		}
		if !saved {
			return fmt.Errorf("%w: request is no longer pending", ErrInvalidState)
		}

		r.Status = models.RequestStatusPriced
		r.Subtotal, r.DeliveryFee, r.Total = quote.Subtotal, quote.DeliveryFee, quote.Total
		r.OrderReference = &quote.OrderReference
		return tx.AppendEvents(ctx, bridge.DraftOrderRequested(r, items, now))
	})
	if err != nil {
		return nil, err
	}

	s.metrics.QuotesSubmitted.Inc()
	s.log.WithFields(logrus.Fields{
		"request_id":  requestID,
		"merchant_id": actor.ID,
		"total":       total,
	}).Info("Quote submitted")

	return s.repo.GetRequest(ctx, requestID)
}

// Reject lets the customer turn down one priced quote. The broadcast stays
// open for the other merchants.
func (s *QuoteService) Reject(ctx context.Context, actor Actor, requestID uuid.UUID, reason string) (*models.Request, error) {
	if reason == "" {
		reason = "rejected by customer"
	}

	err := s.repo.WithTx(ctx, func(tx repository.Repository) error {
		r, err := tx.GetRequest(ctx, requestID)
		if err != nil {
			return err
		}
		if r.Broadcast == nil || r.Broadcast.CustomerID != actor.ID {
			return ErrForbidden
		}
		if r.Status != models.RequestStatusPriced {
			return fmt.Errorf("%w: request is %s", ErrInvalidState, r.Status)
		}
		if _, err := tx.LockBroadcast(ctx, r.BroadcastID); err != nil {
			return err
		}

		now := s.clk.Now().UTC()
		ok, err := tx.TransitionRequest(ctx, r.ID, []models.RequestStatus{models.RequestStatusPriced}, repository.RequestChanges{
			Status:          models.RequestStatusCustomerRejected,
			RespondedAt:     &now,
			RejectionReason: reason,
		})
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: request is no longer priced", ErrInvalidState)
		}
		if !r.HasDraftOrder() {
			return nil
		}
		return tx.AppendEvents(ctx, bridge.OrderCancelled(r, reason, now))
	})
	if err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{"request_id": requestID, "reason": reason}).Info("Quote rejected")
	return s.repo.GetRequest(ctx, requestID)
}

// Decline lets a merchant pass on a request it has not priced.
func (s *QuoteService) Decline(ctx context.Context, actor Actor, requestID uuid.UUID, reason string) (*models.Request, error) {
	if reason == "" {
		reason = "declined by merchant"
	}

	r, err := s.repo.GetRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if r.MerchantID != actor.ID {
		return nil, ErrForbidden
	}
	if r.Status != models.RequestStatusPending {
		return nil, fmt.Errorf("%w: request is %s", ErrInvalidState, r.Status)
	}

	ok, err := s.repo.TransitionRequest(ctx, r.ID, []models.RequestStatus{models.RequestStatusPending}, repository.RequestChanges{
		Status:             models.RequestStatusCancelled,
		CancellationReason: reason,
	})
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: request is no longer pending", ErrInvalidState)
	}

	s.log.WithFields(logrus.Fields{"request_id": requestID, "merchant_id": actor.ID}).Info("Request declined")
	return s.repo.GetRequest(ctx, requestID)
}

func (s *QuoteService) ListMerchantRequests(ctx context.Context, actor Actor, params MerchantRequestSearchParams) ([]RequestView, int64, error) {
	if !actor.IsMerchant() {
		return nil, 0, ErrForbidden
	}
	requests, total, err := s.repo.ListMerchantRequests(ctx, repository.RequestFilter{
		MerchantID: actor.ID,
		Statuses:   params.Statuses,
		Offset:     params.Offset(),
		Limit:      params.Limit,
	})
	if err != nil {
		return nil, 0, err
	}

	now := s.clk.Now()
	views := make([]RequestView, len(requests))
	for i := range requests {
		views[i] = merchantView(requests[i], now)
	}
	return views, total, nil
}

func (s *QuoteService) CountPending(ctx context.Context, actor Actor) (int64, error) {
	if !actor.IsMerchant() {
		return 0, ErrForbidden
	}
	return s.repo.CountMerchantRequests(ctx, actor.ID, []models.RequestStatus{models.RequestStatusPending})
}

func (s *QuoteService) GetMerchantRequest(ctx context.Context, actor Actor, requestID uuid.UUID) (*RequestView, error) {
	r, err := s.repo.GetRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if r.MerchantID != actor.ID && !actor.IsAdmin() {
		return nil, ErrForbidden
	}
	view := merchantView(*r, s.clk.Now())
	return &view, nil
}

// merchantView drops the candidate list so merchants cannot see who else was
// asked.
func merchantView(r models.Request, now time.Time) RequestView {
	if r.Broadcast != nil {
		b := *r.Broadcast
		b.MerchantIDs = nil
		r.Broadcast = &b
	}
	view := RequestView{Request: r}
	if r.Status == models.RequestStatusPriced {
		view.SecondsRemaining = r.SecondsRemaining(now)
	}
	return view
}

// priceItems turns merchant input into line items and returns their subtotal.
func priceItems(inputs []LineItemInput) ([]models.LineItem, float64, error) {
	items := make([]models.LineItem, len(inputs))
	var subtotal float64
	for i, in := range inputs {
		status := in.AvailabilityStatus
		if status == "" {
			status = models.AvailabilityAvailable
		}
		if status == models.AvailabilitySubstituted && in.SubstituteUnitPrice == nil {
			return nil, 0, precondition("item %d: substituted lines need a substitute unit price", i+1)
		}

		item := models.LineItem{
			BaseModel:            models.BaseModel{ID: uuid.New()},
			OriginalCustomerText: in.OriginalCustomerText,
			ItemName:             in.ItemName,
			UnitType:             in.UnitType,
			Quantity:             in.Quantity,
			UnitPrice:            in.UnitPrice,
			AvailabilityStatus:   status,
			MerchantNotes:        in.MerchantNotes,
			DisplayOrder:         i,
		}
		if status == models.AvailabilitySubstituted {
			item.SubstituteName = in.SubstituteName
			item.SubstituteQuantity = in.SubstituteQuantity
			item.SubstituteUnitPrice = in.SubstituteUnitPrice
		}

		line := item.BillableTotal()
		if status == models.AvailabilitySubstituted {
			// TotalPrice keeps the price of the item as asked; the substitute is billed.
			item.SubstituteTotalPrice = &line
			item.TotalPrice = models.RoundCents(item.Quantity * item.UnitPrice)
		} else {
			item.TotalPrice = line
		}
		subtotal += line
		items[i] = item
	}
	return items, models.RoundCents(subtotal), nil
}
