package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/javajoker/broadcast-backend/internal/models"
)

// runContract exercises the behavior every Repository implementation shares.
func runContract(t *testing.T, newRepo func(t *testing.T) Repository) {
	t.Run("create and read back", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		b, reqs := seedBroadcast(t, repo, time.Now().Add(time.Hour), time.Now().Add(2*time.Hour), 3)

		got, err := repo.GetBroadcast(ctx, b.ID)
		require.NoError(t, err)
		assert.Equal(t, models.BroadcastStatusActive, got.Status)
		assert.Len(t, got.MerchantIDs, 3)

		listed, err := repo.ListRequests(ctx, b.ID)
		require.NoError(t, err)
		require.Len(t, listed, 3)
		for _, r := range listed {
			assert.Equal(t, models.RequestStatusPending, r.Status)
		}

		req, err := repo.GetRequest(ctx, reqs[0].ID)
		require.NoError(t, err)
		require.NotNil(t, req.Broadcast)
		assert.Equal(t, b.ID, req.Broadcast.ID)

		_, err = repo.GetBroadcast(ctx, uuid.New())
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("broadcast transition is compare-and-set", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		b, reqs := seedBroadcast(t, repo, time.Now().Add(time.Hour), time.Now().Add(2*time.Hour), 2)

		now := time.Now().UTC()
		ok, err := repo.TransitionBroadcast(ctx, b.ID, models.BroadcastStatusActive, BroadcastChanges{
			Status:           models.BroadcastStatusCompleted,
			CompletedAt:      &now,
			WinningRequestID: &reqs[0].ID,
		})
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = repo.TransitionBroadcast(ctx, b.ID, models.BroadcastStatusActive, BroadcastChanges{
			Status:    models.BroadcastStatusExpired,
			ExpiredAt: &now,
		})
		require.NoError(t, err)
		assert.False(t, ok)

		got, err := repo.GetBroadcast(ctx, b.ID)
		require.NoError(t, err)
		assert.Equal(t, models.BroadcastStatusCompleted, got.Status)
		require.NotNil(t, got.WinningRequestID)
		assert.Equal(t, reqs[0].ID, *got.WinningRequestID)
		assert.Nil(t, got.ExpiredAt)
	})

	t.Run("failed transaction leaves no trace", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		b, reqs := seedBroadcast(t, repo, time.Now().Add(time.Hour), time.Now().Add(2*time.Hour), 1)

		boom := errors.New("boom")
		err := repo.WithTx(ctx, func(tx Repository) error {
			ok, err := tx.TransitionRequest(ctx, reqs[0].ID, models.InRunningStatuses, RequestChanges{
				Status:             models.RequestStatusCancelled,
				CancellationReason: "test",
			})
			require.NoError(t, err)
			require.True(t, ok)
			require.NoError(t, tx.AppendEvents(ctx, models.BridgeEvent{
				EventType:      models.BridgeEventOrderCancelled,
				RequestID:      reqs[0].ID,
				OrderReference: uuid.New(),
				NextAttemptAt:  time.Now(),
			}))
			return boom
		})
		assert.ErrorIs(t, err, boom)

		req, err := repo.GetRequest(ctx, reqs[0].ID)
		require.NoError(t, err)
		assert.Equal(t, models.RequestStatusPending, req.Status)

		due, err := repo.ListDueEvents(ctx, time.Now().Add(time.Minute), 10)
		require.NoError(t, err)
		assert.Empty(t, due)

		got, err := repo.LockBroadcast(ctx, b.ID)
		require.NoError(t, err)
		assert.Equal(t, models.BroadcastStatusActive, got.Status)
	})

	t.Run("quote is saved once", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		_, reqs := seedBroadcast(t, repo, time.Now().Add(time.Hour), time.Now().Add(2*time.Hour), 1)

		now := time.Now().UTC().Truncate(time.Microsecond)
		quote := Quote{
			RequestID: reqs[0].ID,
			Items: []models.LineItem{
				{ItemName: "Rice", Quantity: 2, UnitPrice: 4.5, TotalPrice: 9, AvailabilityStatus: models.AvailabilityAvailable, DisplayOrder: 0},
				{ItemName: "Oil", Quantity: 1, UnitPrice: 3, TotalPrice: 0, AvailabilityStatus: models.AvailabilityUnavailable, DisplayOrder: 1},
			},
			Subtotal:         9,
			DeliveryFee:      2,
			Total:            11,
			PricedAt:         now,
			PricingExpiresAt: now.Add(2 * time.Hour),
			OrderReference:   uuid.New(),
		}

		saved, err := repo.SaveQuote(ctx, quote)
		require.NoError(t, err)
		assert.True(t, saved)

		saved, err = repo.SaveQuote(ctx, quote)
		require.NoError(t, err)
		assert.False(t, saved)

		req, err := repo.GetRequest(ctx, reqs[0].ID)
		require.NoError(t, err)
		assert.Equal(t, models.RequestStatusPriced, req.Status)
		assert.Equal(t, 11.0, req.Total)
		assert.Equal(t, 2, req.ItemsCount)
		require.Len(t, req.Items, 2)
		assert.Equal(t, "Rice", req.Items[0].ItemName)
		require.NotNil(t, req.OrderReference)
		assert.Equal(t, quote.OrderReference, *req.OrderReference)
	})

	t.Run("sweeper queries", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		now := time.Now().UTC()

		late, lateReqs := seedBroadcast(t, repo, now.Add(-time.Hour), now.Add(-time.Minute), 2)
		_, freshReqs := seedBroadcast(t, repo, now.Add(time.Hour), now.Add(2*time.Hour), 1)

		saved, err := repo.SaveQuote(ctx, Quote{
			RequestID:        freshReqs[0].ID,
			Items:            []models.LineItem{{ItemName: "Milk", Quantity: 1, UnitPrice: 1, TotalPrice: 1}},
			Subtotal:         1,
			Total:            1,
			PricedAt:         now.Add(-3 * time.Hour),
			PricingExpiresAt: now.Add(-time.Hour),
			OrderReference:   uuid.New(),
		})
		require.NoError(t, err)
		require.True(t, saved)

		pending, err := repo.ListPendingPastDeadline(ctx, now, 10)
		require.NoError(t, err)
		assert.ElementsMatch(t, []uuid.UUID{lateReqs[0].ID, lateReqs[1].ID}, requestIDs(pending))

		limited, err := repo.ListPendingPastDeadline(ctx, now, 1)
		require.NoError(t, err)
		assert.Len(t, limited, 1)

		stale, err := repo.ListStaleQuotes(ctx, now, 10)
		require.NoError(t, err)
		assert.Equal(t, []uuid.UUID{freshReqs[0].ID}, requestIDs(stale))

		expired, err := repo.ListBroadcastsPastExpiry(ctx, now, 10)
		require.NoError(t, err)
		require.Len(t, expired, 1)
		assert.Equal(t, late.ID, expired[0].ID)
	})

	t.Run("merchant inbox", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		merchant := uuid.New()
		for i := 0; i < 3; i++ {
			b := &models.Broadcast{
				BaseModel:       models.BaseModel{ID: uuid.New()},
				CustomerID:      uuid.New(),
				MerchantIDs:     pq.StringArray{merchant.String()},
				InputType:       models.InputTypeText,
				OriginalText:    "bread",
				OrderType:       models.OrderTypeDelivery,
				Status:          models.BroadcastStatusActive,
				PricingDeadline: time.Now().Add(time.Hour),
				ExpiresAt:       time.Now().Add(2 * time.Hour),
			}
			require.NoError(t, repo.CreateBroadcast(ctx, b, []models.Request{{
				BaseModel:  models.BaseModel{ID: uuid.New()},
				MerchantID: merchant,
				Status:     models.RequestStatusPending,
			}}))
		}

		list, total, err := repo.ListMerchantRequests(ctx, RequestFilter{
			MerchantID: merchant,
			Statuses:   []models.RequestStatus{models.RequestStatusPending},
			Limit:      2,
		})
		require.NoError(t, err)
		assert.Equal(t, int64(3), total)
		assert.Len(t, list, 2)
		require.NotNil(t, list[0].Broadcast)
		assert.Equal(t, "bread", list[0].Broadcast.OriginalText)

		count, err := repo.CountMerchantRequests(ctx, merchant, []models.RequestStatus{models.RequestStatusPending})
		require.NoError(t, err)
		assert.Equal(t, int64(3), count)

		count, err = repo.CountMerchantRequests(ctx, uuid.New(), nil)
		require.NoError(t, err)
		assert.Zero(t, count)
	})

	t.Run("outbox lifecycle", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		now := time.Now().UTC()

		first := models.BridgeEvent{
			BaseModel:      models.BaseModel{ID: uuid.New()},
			EventType:      models.BridgeEventOrderConfirmed,
			RequestID:      uuid.New(),
			OrderReference: uuid.New(),
			NextAttemptAt:  now.Add(-time.Second),
		}
		later := models.BridgeEvent{
			BaseModel:      models.BaseModel{ID: uuid.New()},
			EventType:      models.BridgeEventOrderCancelled,
			RequestID:      uuid.New(),
			OrderReference: uuid.New(),
			NextAttemptAt:  now.Add(time.Hour),
		}
		require.NoError(t, repo.AppendEvents(ctx, first, later))

		due, err := repo.ListDueEvents(ctx, now, 10)
		require.NoError(t, err)
		require.Len(t, due, 1)
		assert.Equal(t, first.ID, due[0].ID)
		assert.Equal(t, models.BridgeEventStatusPending, due[0].Status)

		require.NoError(t, repo.RecordEventFailure(ctx, later.ID, EventFailure{
			Attempts: 1, LastError: "503", NextAttemptAt: now.Add(-time.Second),
		}))
		require.NoError(t, repo.MarkEventDispatched(ctx, first.ID, now))

		due, err = repo.ListDueEvents(ctx, now, 10)
		require.NoError(t, err)
		require.Len(t, due, 1)
		assert.Equal(t, later.ID, due[0].ID)
		assert.Equal(t, 1, due[0].Attempts)

		require.NoError(t, repo.RecordEventFailure(ctx, later.ID, EventFailure{
			Attempts: 2, LastError: "gone", NextAttemptAt: now, Final: true,
		}))
		due, err = repo.ListDueEvents(ctx, now.Add(time.Hour), 10)
		require.NoError(t, err)
		assert.Empty(t, due)

		assert.ErrorIs(t, repo.MarkEventDispatched(ctx, uuid.New(), now), ErrNotFound)
	})
}

func seedBroadcast(t *testing.T, repo Repository, pricingDeadline, expiresAt time.Time, merchants int) (*models.Broadcast, []models.Request) {
	t.Helper()

	b := &models.Broadcast{
		BaseModel:       models.BaseModel{ID: uuid.New()},
		CustomerID:      uuid.New(),
		InputType:       models.InputTypeText,
		OriginalText:    "2kg rice, 1 bottle oil",
		OrderType:       models.OrderTypeDelivery,
		Status:          models.BroadcastStatusActive,
		PricingDeadline: pricingDeadline.UTC(),
		ExpiresAt:       expiresAt.UTC(),
	}
	reqs := make([]models.Request, merchants)
	for i := range reqs {
		merchant := uuid.New()
		b.MerchantIDs = append(b.MerchantIDs, merchant.String())
		reqs[i] = models.Request{
			BaseModel:  models.BaseModel{ID: uuid.New()},
			MerchantID: merchant,
			Status:     models.RequestStatusPending,
		}
	}
	require.NoError(t, repo.CreateBroadcast(context.Background(), b, reqs))
	return b, reqs
}

func requestIDs(reqs []models.Request) []uuid.UUID {
	ids := make([]uuid.UUID, len(reqs))
	for i, r := range reqs {
		ids[i] = r.ID
	}
	return ids
}
