// internal/models/line_item.go
package models

import (
	"math"

	"github.com/google/uuid"
)

// LineItem is a merchant's interpretation of one part of the customer's
// free-form order. Rows are written once, with the quote.
type LineItem struct {
	BaseModel
	RequestID            uuid.UUID          `json:"request_id" gorm:"type:uuid;not null;index"`
	OriginalCustomerText string             `json:"original_customer_text" gorm:"type:text"`
	ItemName             string             `json:"item_name" gorm:"size:255;not null"`
	UnitType             string             `json:"unit_type" gorm:"size:20"`
	Quantity             float64            `json:"quantity" gorm:"type:decimal(12,3);not null"`
	UnitPrice            float64            `json:"unit_price" gorm:"type:decimal(12,2);not null"`
	TotalPrice           float64            `json:"total_price" gorm:"type:decimal(12,2);not null"`
	AvailabilityStatus   AvailabilityStatus `json:"availability_status" gorm:"type:varchar(20);default:'available'"`

	SubstituteName       string   `json:"substitute_name,omitempty" gorm:"size:255"`
	SubstituteQuantity   *float64 `json:"substitute_quantity,omitempty" gorm:"type:decimal(12,3)"`
	SubstituteUnitPrice  *float64 `json:"substitute_unit_price,omitempty" gorm:"type:decimal(12,2)"`
	SubstituteTotalPrice *float64 `json:"substitute_total_price,omitempty" gorm:"type:decimal(12,2)"`

	MerchantNotes string `json:"merchant_notes,omitempty" gorm:"type:text"`
	DisplayOrder  int    `json:"display_order" gorm:"default:0"`
}

func (LineItem) TableName() string {
	return "custom_order_items"
}

// BillableTotal is what the line contributes to the quote subtotal.
func (li *LineItem) BillableTotal() float64 {
	switch li.AvailabilityStatus {
	case AvailabilityUnavailable:
		return 0
	case AvailabilitySubstituted:
		qty := li.Quantity
		if li.SubstituteQuantity != nil {
			qty = *li.SubstituteQuantity
		}
		var price float64
		if li.SubstituteUnitPrice != nil {
			price = *li.SubstituteUnitPrice
		}
		return RoundCents(qty * price)
	default:
		return RoundCents(li.Quantity * li.UnitPrice)
	}
}

// RoundCents rounds an amount half away from zero to two decimals.
func RoundCents(v float64) float64 {
	return math.Round(v*100) / 100
}
