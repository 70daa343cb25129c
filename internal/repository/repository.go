// internal/repository/repository.go
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/javajoker/broadcast-backend/internal/models"
)

var ErrNotFound = errors.New("record not found")

// Repository is the storage contract of the broadcast and request ledgers.
//
// WithTx runs fn against a repository bound to a single transaction. Changes
// made through it become visible together when fn returns nil and are
// discarded otherwise. Calling WithTx on a transaction-bound repository runs
// fn in the same transaction.
//
// Transition methods are compare-and-set: they apply changes only when the
// row is still in one of the expected statuses and report whether a row was
// updated.
type Repository interface {
	WithTx(ctx context.Context, fn func(tx Repository) error) error
	Ping(ctx context.Context) error

	// Broadcasts
	CreateBroadcast(ctx context.Context, b *models.Broadcast, requests []models.Request) error
	GetBroadcast(ctx context.Context, id uuid.UUID) (*models.Broadcast, error)
	LockBroadcast(ctx context.Context, id uuid.UUID) (*models.Broadcast, error)
	ListBroadcasts(ctx context.Context, filter BroadcastFilter) ([]models.Broadcast, int64, error)
	CountBroadcasts(ctx context.Context, filter BroadcastFilter) (int64, error)
	TransitionBroadcast(ctx context.Context, id uuid.UUID, from models.BroadcastStatus, changes BroadcastChanges) (bool, error)
	ListBroadcastsPastExpiry(ctx context.Context, now time.Time, limit int) ([]models.Broadcast, error)

	// Requests
	GetRequest(ctx context.Context, id uuid.UUID) (*models.Request, error)
	ListRequests(ctx context.Context, broadcastID uuid.UUID) ([]models.Request, error)
	ListMerchantRequests(ctx context.Context, filter RequestFilter) ([]models.Request, int64, error)
	CountMerchantRequests(ctx context.Context, merchantID uuid.UUID, statuses []models.RequestStatus) (int64, error)
	TransitionRequest(ctx context.Context, id uuid.UUID, from []models.RequestStatus, changes RequestChanges) (bool, error)
	SaveQuote(ctx context.Context, quote Quote) (bool, error)
	ListPendingPastDeadline(ctx context.Context, now time.Time, limit int) ([]models.Request, error)
	ListStaleQuotes(ctx context.Context, now time.Time, limit int) ([]models.Request, error)

	// Bridge outbox
	AppendEvents(ctx context.Context, events ...models.BridgeEvent) error
	ListDueEvents(ctx context.Context, now time.Time, limit int) ([]models.BridgeEvent, error)
	MarkEventDispatched(ctx context.Context, id uuid.UUID, at time.Time) error
	RecordEventFailure(ctx context.Context, id uuid.UUID, failure EventFailure) error

	CreateAuditLog(ctx context.Context, entry *models.AuditLog) error
}

type BroadcastFilter struct {
	CustomerID *uuid.UUID
	Status     *models.BroadcastStatus
	Offset     int
	Limit      int
}

type RequestFilter struct {
	MerchantID uuid.UUID
	Statuses   []models.RequestStatus
	Offset     int
	Limit      int
}

// BroadcastChanges lists the columns a broadcast transition writes. Nil
// pointers and empty strings leave the column untouched.
type BroadcastChanges struct {
	Status             models.BroadcastStatus
	CompletedAt        *time.Time
	WinningRequestID   *uuid.UUID
	CancelledAt        *time.Time
	CancellationReason string
	ExpiredAt          *time.Time
}

type RequestChanges struct {
	Status             models.RequestStatus
	RespondedAt        *time.Time
	RejectionReason    string
	CancellationReason string
}

// Quote is a priced answer for a pending request.
type Quote struct {
	RequestID        uuid.UUID
	Items            []models.LineItem
	Subtotal         float64
	DeliveryFee      float64
	Total            float64
	MerchantNotes    string
	PricedAt         time.Time
	PricingExpiresAt time.Time
	OrderReference   uuid.UUID
}

type EventFailure struct {
	Attempts      int
	LastError     string
	NextAttemptAt time.Time
	// Final marks the event failed; the relay stops picking it up.
	Final bool
}

func (c BroadcastChanges) columns() map[string]interface{} {
	cols := map[string]interface{}{"status": c.Status}
	if c.CompletedAt != nil {
		cols["completed_at"] = *c.CompletedAt
	}
	if c.WinningRequestID != nil {
		cols["winning_request_id"] = *c.WinningRequestID
	}
	if c.CancelledAt != nil {
		cols["cancelled_at"] = *c.CancelledAt
	}
	if c.CancellationReason != "" {
		cols["cancellation_reason"] = c.CancellationReason
	}
	if c.ExpiredAt != nil {
		cols["expired_at"] = *c.ExpiredAt
	}
	return cols
}

func (c RequestChanges) columns() map[string]interface{} {
	cols := map[string]interface{}{"status": c.Status}
	if c.RespondedAt != nil {
		cols["responded_at"] = *c.RespondedAt
	}
	if c.RejectionReason != "" {
		cols["rejection_reason"] = c.RejectionReason
	}
	if c.CancellationReason != "" {
		cols["cancellation_reason"] = c.CancellationReason
	}
	return cols
}

func (c BroadcastChanges) apply(b *models.Broadcast) {
	b.Status = c.Status
	if c.CompletedAt != nil {
		t := *c.CompletedAt
		b.CompletedAt = &t
	}
	if c.WinningRequestID != nil {
		id := *c.WinningRequestID
		b.WinningRequestID = &id
	}
	if c.CancelledAt != nil {
		t := *c.CancelledAt
		b.CancelledAt = &t
	}
	if c.CancellationReason != "" {
		b.CancellationReason = c.CancellationReason
	}
	if c.ExpiredAt != nil {
		t := *c.ExpiredAt
		b.ExpiredAt = &t
	}
}

func (c RequestChanges) apply(r *models.Request) {
	r.Status = c.Status
	if c.RespondedAt != nil {
		t := *c.RespondedAt
		r.RespondedAt = &t
	}
	if c.RejectionReason != "" {
		r.RejectionReason = c.RejectionReason
	}
	if c.CancellationReason != "" {
		r.CancellationReason = c.CancellationReason
	}
}

func containsStatus(statuses []models.RequestStatus, s models.RequestStatus) bool {
	for _, st := range statuses {
		if st == s {
			return true
		}
	}
	return false
}
