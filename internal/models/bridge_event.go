// internal/models/bridge_event.go
package models

import (
	"time"

	"github.com/google/uuid"
)

// BridgeEvent is an outbox row for the order system. It is written in the same
// transaction as the ledger change it reports.
type BridgeEvent struct {
	BaseModel
	EventType      BridgeEventType   `json:"event_type" gorm:"type:varchar(40);not null"`
	RequestID      uuid.UUID         `json:"request_id" gorm:"type:uuid;not null;index"`
	OrderReference uuid.UUID         `json:"order_reference" gorm:"type:uuid;not null"`
	Payload        JSONB             `json:"payload" gorm:"type:jsonb"`
	Status         BridgeEventStatus `json:"status" gorm:"type:varchar(20);default:'pending'"`
	Attempts       int               `json:"attempts" gorm:"default:0"`
	LastError      string            `json:"last_error,omitempty" gorm:"type:text"`
	NextAttemptAt  time.Time         `json:"next_attempt_at" gorm:"not null"`
	DispatchedAt   *time.Time        `json:"dispatched_at,omitempty"`
}

func (BridgeEvent) TableName() string {
	return "bridge_events"
}
