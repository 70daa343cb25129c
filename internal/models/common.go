// internal/models/common.go
package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Base model with common fields. Ledger rows are never deleted, so there is
// no soft-delete column.
type BaseModel struct {
	ID        uuid.UUID `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// JSONB type for PostgreSQL
type JSONB map[string]interface{}

func (j JSONB) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}

	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return nil
	}

	return json.Unmarshal(bytes, j)
}

// Clone returns a shallow copy of the top-level map.
func (j JSONB) Clone() JSONB {
	if j == nil {
		return nil
	}
	out := make(JSONB, len(j))
	for k, v := range j {
		out[k] = v
	}
	return out
}

// Enums
type UserType string

const (
	UserTypeCustomer UserType = "customer"
	UserTypeMerchant UserType = "merchant"
	UserTypeAdmin    UserType = "admin"
)

type InputType string

const (
	InputTypeText  InputType = "text"
	InputTypeVoice InputType = "voice"
	InputTypeImage InputType = "image"
	InputTypeMixed InputType = "mixed"
)

type OrderType string

const (
	OrderTypeDelivery OrderType = "delivery"
	OrderTypePickup   OrderType = "pickup"
)

type BroadcastStatus string

const (
	BroadcastStatusActive    BroadcastStatus = "active"
	BroadcastStatusCompleted BroadcastStatus = "completed"
	BroadcastStatusExpired   BroadcastStatus = "expired"
	BroadcastStatusCancelled BroadcastStatus = "cancelled"
)

// IsTerminal reports whether no further transition may leave s.
func (s BroadcastStatus) IsTerminal() bool {
	return s != BroadcastStatusActive
}

type RequestStatus string

const (
	RequestStatusPending          RequestStatus = "pending"
	RequestStatusPriced           RequestStatus = "priced"
	RequestStatusCustomerApproved RequestStatus = "customer_approved"
	RequestStatusCustomerRejected RequestStatus = "customer_rejected"
	RequestStatusExpired          RequestStatus = "expired"
	RequestStatusCancelled        RequestStatus = "cancelled"
)

// InRunningStatuses are the request states that can still win a broadcast.
var InRunningStatuses = []RequestStatus{RequestStatusPending, RequestStatusPriced}

// IsTerminal reports whether the request can no longer change.
func (s RequestStatus) IsTerminal() bool {
	return s != RequestStatusPending && s != RequestStatusPriced
}

type AvailabilityStatus string

const (
	AvailabilityAvailable   AvailabilityStatus = "available"
	AvailabilityUnavailable AvailabilityStatus = "unavailable"
	AvailabilityPartial     AvailabilityStatus = "partial"
	AvailabilitySubstituted AvailabilityStatus = "substituted"
)

type BridgeEventType string

const (
	BridgeEventDraftOrderRequested BridgeEventType = "draft_order_requested"
	BridgeEventOrderConfirmed      BridgeEventType = "order_confirmed"
	BridgeEventOrderCancelled      BridgeEventType = "order_cancelled"
)

type BridgeEventStatus string

const (
	BridgeEventStatusPending    BridgeEventStatus = "pending"
	BridgeEventStatusDispatched BridgeEventStatus = "dispatched"
	BridgeEventStatusFailed     BridgeEventStatus = "failed"
)
