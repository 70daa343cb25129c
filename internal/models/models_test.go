package models

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func float(v float64) *float64 { return &v }

func TestBillableTotal(t *testing.T) {
	tests := []struct {
		name string
		item LineItem
		want float64
	}{
		{"available", LineItem{Quantity: 2, UnitPrice: 3.5, AvailabilityStatus: AvailabilityAvailable}, 7},
		{"partial priced like available", LineItem{Quantity: 1.5, UnitPrice: 2, AvailabilityStatus: AvailabilityPartial}, 3},
		{"unavailable", LineItem{Quantity: 4, UnitPrice: 10, AvailabilityStatus: AvailabilityUnavailable}, 0},
		{"substituted with quantity", LineItem{Quantity: 2, UnitPrice: 5, AvailabilityStatus: AvailabilitySubstituted,
			SubstituteQuantity: float(3), SubstituteUnitPrice: float(1.25)}, 3.75},
		{"substituted defaults to quantity", LineItem{Quantity: 2, UnitPrice: 5, AvailabilityStatus: AvailabilitySubstituted,
			SubstituteUnitPrice: float(4)}, 8},
		{"rounded to cents", LineItem{Quantity: 3, UnitPrice: 0.333, AvailabilityStatus: AvailabilityAvailable}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.item.BillableTotal())
		})
	}
}

func TestBillableTotalNeverNegative(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		status := rapid.SampledFrom([]AvailabilityStatus{
			AvailabilityAvailable, AvailabilityPartial, AvailabilityUnavailable, AvailabilitySubstituted,
		}).Draw(t, "status")
		item := LineItem{
			Quantity:            rapid.Float64Range(0, 1000).Draw(t, "qty"),
			UnitPrice:           rapid.Float64Range(0, 1000).Draw(t, "price"),
			AvailabilityStatus:  status,
			SubstituteUnitPrice: float(rapid.Float64Range(0, 1000).Draw(t, "subPrice")),
		}
		total := item.BillableTotal()
		if total < 0 {
			t.Fatalf("negative total %v", total)
		}
		if status == AvailabilityUnavailable && total != 0 {
			t.Fatalf("unavailable line billed %v", total)
		}
	})
}

func TestRequestQuoteWindow(t *testing.T) {
	now := time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC)
	expires := now.Add(90 * time.Second)

	r := Request{Status: RequestStatusPriced, PricingExpiresAt: &expires}
	assert.True(t, r.QuoteFresh(now))
	assert.True(t, r.QuoteFresh(expires))
	assert.False(t, r.QuoteFresh(expires.Add(time.Nanosecond)))
	assert.Equal(t, int64(90), r.SecondsRemaining(now))
	assert.Equal(t, int64(0), r.SecondsRemaining(expires.Add(time.Hour)))

	pending := Request{Status: RequestStatusPending}
	assert.False(t, pending.QuoteFresh(now))
	assert.Equal(t, int64(0), pending.SecondsRemaining(now))
}

func TestStatusTerminal(t *testing.T) {
	assert.False(t, BroadcastStatusActive.IsTerminal())
	assert.True(t, BroadcastStatusCompleted.IsTerminal())
	assert.True(t, BroadcastStatusExpired.IsTerminal())

	assert.False(t, RequestStatusPending.IsTerminal())
	assert.False(t, RequestStatusPriced.IsTerminal())
	assert.True(t, RequestStatusCustomerRejected.IsTerminal())
	assert.True(t, RequestStatusCancelled.IsTerminal())
}

func TestBroadcastHelpers(t *testing.T) {
	m1, m2 := uuid.New(), uuid.New()
	b := Broadcast{
		MerchantIDs: pq.StringArray{m1.String()},
		VoiceURL:    "voice/1.m4a",
		ImageURLs:   pq.StringArray{"img/1.jpg", "img/2.jpg"},
	}
	assert.True(t, b.HasMerchant(m1))
	assert.False(t, b.HasMerchant(m2))
	assert.Equal(t, []string{"voice/1.m4a", "img/1.jpg", "img/2.jpg"}, b.MediaRefs())
}

func TestJSONBRoundTrip(t *testing.T) {
	in := JSONB{"city": "Riyadh"}
	v, err := in.Value()
	require.NoError(t, err)

	var out JSONB
	require.NoError(t, out.Scan(v))
	assert.Equal(t, "Riyadh", out["city"])

	var empty JSONB
	require.NoError(t, empty.Scan(nil))
	assert.Nil(t, empty)
}
