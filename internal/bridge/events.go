// internal/bridge/events.go
package bridge

import (
	"time"

	"github.com/google/uuid"

	"github.com/javajoker/broadcast-backend/internal/models"
)

// Envelope is the wire form of an outbox event.
type Envelope struct {
	ID             uuid.UUID              `json:"id"`
	Type           models.BridgeEventType `json:"type"`
	RequestID      uuid.UUID              `json:"request_id"`
	OrderReference uuid.UUID              `json:"order_reference"`
	OccurredAt     time.Time              `json:"occurred_at"`
	Payload        models.JSONB           `json:"payload,omitempty"`
}

func NewEnvelope(event models.BridgeEvent) Envelope {
	return Envelope{
		ID:             event.ID,
		Type:           event.EventType,
		RequestID:      event.RequestID,
		OrderReference: event.OrderReference,
		OccurredAt:     event.CreatedAt,
		Payload:        event.Payload,
	}
}

// DraftOrderRequested asks the order system to hold a draft for a fresh quote.
func DraftOrderRequested(req *models.Request, items []models.LineItem, now time.Time) models.BridgeEvent {
	lines := make([]interface{}, 0, len(items))
	for _, item := range items {
		line := map[string]interface{}{
			"item_name":           item.ItemName,
			"unit_type":           item.UnitType,
			"quantity":            item.Quantity,
			"unit_price":          item.UnitPrice,
			"total_price":         item.TotalPrice,
			"availability_status": item.AvailabilityStatus,
		}
		if item.AvailabilityStatus == models.AvailabilitySubstituted {
			line["substitute_name"] = item.SubstituteName
			line["substitute_total_price"] = item.SubstituteTotalPrice
		}
		lines = append(lines, line)
	}

	return newEvent(models.BridgeEventDraftOrderRequested, req, now, models.JSONB{
		"broadcast_id": req.BroadcastID,
		"merchant_id":  req.MerchantID,
		"line_items":   lines,
		"subtotal":     req.Subtotal,
		"delivery_fee": req.DeliveryFee,
		"total":        req.Total,
	})
}

// OrderConfirmed promotes the draft of the winning request.
func OrderConfirmed(req *models.Request, now time.Time) models.BridgeEvent {
	return newEvent(models.BridgeEventOrderConfirmed, req, now, models.JSONB{
		"broadcast_id": req.BroadcastID,
		"merchant_id":  req.MerchantID,
		"total":        req.Total,
	})
}

// OrderCancelled voids a draft. The caller checks req.HasDraftOrder first.
func OrderCancelled(req *models.Request, reason string, now time.Time) models.BridgeEvent {
	return newEvent(models.BridgeEventOrderCancelled, req, now, models.JSONB{
		"broadcast_id": req.BroadcastID,
		"merchant_id":  req.MerchantID,
		"reason":       reason,
	})
}

func newEvent(eventType models.BridgeEventType, req *models.Request, now time.Time, payload models.JSONB) models.BridgeEvent {
	var ref uuid.UUID
	if req.OrderReference != nil {
		ref = *req.OrderReference
	}
	return models.BridgeEvent{
		BaseModel:      models.BaseModel{ID: uuid.New(), CreatedAt: now, UpdatedAt: now},
		EventType:      eventType,
		RequestID:      req.ID,
		OrderReference: ref,
		Payload:        payload,
		Status:         models.BridgeEventStatusPending,
		NextAttemptAt:  now,
	}
}

// Event rebuilds the outbox row an envelope was made from.
func (e Envelope) Event() models.BridgeEvent {
	return models.BridgeEvent{
		BaseModel:      models.BaseModel{ID: e.ID, CreatedAt: e.OccurredAt},
		EventType:      e.Type,
		RequestID:      e.RequestID,
		OrderReference: e.OrderReference,
		Payload:        e.Payload,
	}
}
