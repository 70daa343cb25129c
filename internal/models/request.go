// internal/models/request.go
package models

import (
	"time"

	"github.com/google/uuid"
)

// Request is one merchant's slot in a broadcast.
type Request struct {
	BaseModel
	BroadcastID uuid.UUID     `json:"broadcast_id" gorm:"type:uuid;not null;uniqueIndex:idx_request_broadcast_merchant"`
	MerchantID  uuid.UUID     `json:"merchant_id" gorm:"type:uuid;not null;uniqueIndex:idx_request_broadcast_merchant;index"`
	Status      RequestStatus `json:"status" gorm:"type:varchar(20);default:'pending';index"`

	Subtotal    float64 `json:"subtotal" gorm:"type:decimal(12,2);default:0"`
	DeliveryFee float64 `json:"delivery_fee" gorm:"type:decimal(12,2);default:0"`
	Total       float64 `json:"total" gorm:"type:decimal(12,2);default:0"`
	ItemsCount  int     `json:"items_count" gorm:"default:0"`

	PricedAt         *time.Time `json:"priced_at"`
	PricingExpiresAt *time.Time `json:"pricing_expires_at"`
	RespondedAt      *time.Time `json:"responded_at"`

	// OrderReference identifies the draft order held by the order system.
	OrderReference *uuid.UUID `json:"order_reference" gorm:"type:uuid"`

	MerchantNotes      string `json:"merchant_notes,omitempty" gorm:"type:text"`
	RejectionReason    string `json:"rejection_reason,omitempty" gorm:"type:text"`
	CancellationReason string `json:"cancellation_reason,omitempty" gorm:"type:text"`

	// Relationships
	Broadcast *Broadcast `json:"broadcast,omitempty" gorm:"foreignKey:BroadcastID"`
	Items     []LineItem `json:"items,omitempty" gorm:"foreignKey:RequestID"`
}

func (Request) TableName() string {
	return "custom_order_requests"
}

// QuoteFresh reports whether a priced quote can still be approved at now.
func (r *Request) QuoteFresh(now time.Time) bool {
	return r.Status == RequestStatusPriced && r.PricingExpiresAt != nil && !now.After(*r.PricingExpiresAt)
}

// SecondsRemaining is the time left on the quote, floored at zero. Requests
// without a quote report zero.
func (r *Request) SecondsRemaining(now time.Time) int64 {
	if r.PricingExpiresAt == nil {
		return 0
	}
	left := r.PricingExpiresAt.Sub(now)
	if left <= 0 {
		return 0
	}
	return int64(left / time.Second)
}

// HasDraftOrder reports whether the order system holds a draft for r.
func (r *Request) HasDraftOrder() bool {
	return r.OrderReference != nil
}
