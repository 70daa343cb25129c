// internal/models/broadcast.go
package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// Broadcast is one customer's competitive-pricing request sent to several
// merchants at once. WinningRequestID is set exactly when Status is completed.
type Broadcast struct {
	BaseModel
	CustomerID  uuid.UUID      `json:"customer_id" gorm:"type:uuid;not null;index"`
	MerchantIDs pq.StringArray `json:"merchant_ids" gorm:"type:text[];not null"`

	// Original input, opaque to the ledger
	InputType       InputType      `json:"input_type" gorm:"type:varchar(10);not null"`
	OriginalText    string         `json:"original_text,omitempty" gorm:"type:text"`
	VoiceURL        string         `json:"voice_url,omitempty" gorm:"size:1024"`
	ImageURLs       pq.StringArray `json:"image_urls,omitempty" gorm:"type:text[]"`
	TranscribedText string         `json:"transcribed_text,omitempty" gorm:"type:text"`
	CustomerNotes   string         `json:"customer_notes,omitempty" gorm:"type:text"`

	OrderType       OrderType `json:"order_type" gorm:"type:varchar(10);default:'delivery'"`
	DeliveryAddress JSONB     `json:"delivery_address,omitempty" gorm:"type:jsonb"`

	Status           BroadcastStatus `json:"status" gorm:"type:varchar(20);default:'active';index"`
	PricingDeadline  time.Time       `json:"pricing_deadline" gorm:"not null"`
	ExpiresAt        time.Time       `json:"expires_at" gorm:"not null;index"`
	CompletedAt      *time.Time      `json:"completed_at"`
	WinningRequestID *uuid.UUID      `json:"winning_request_id" gorm:"type:uuid"`

	CancelledAt        *time.Time `json:"cancelled_at,omitempty"`
	CancellationReason string     `json:"cancellation_reason,omitempty" gorm:"type:text"`
	ExpiredAt          *time.Time `json:"expired_at,omitempty"`
}

func (Broadcast) TableName() string {
	return "custom_order_broadcasts"
}

// HasMerchant reports whether merchantID is one of the candidates.
func (b *Broadcast) HasMerchant(merchantID uuid.UUID) bool {
	id := merchantID.String()
	for _, m := range b.MerchantIDs {
		if m == id {
			return true
		}
	}
	return false
}

// MediaRefs returns the voice reference followed by the image references.
func (b *Broadcast) MediaRefs() []string {
	refs := make([]string, 0, len(b.ImageURLs)+1)
	if b.VoiceURL != "" {
		refs = append(refs, b.VoiceURL)
	}
	return append(refs, b.ImageURLs...)
}
