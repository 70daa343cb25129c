package services

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/javajoker/broadcast-backend/internal/config"
	"github.com/javajoker/broadcast-backend/internal/metrics"
	"github.com/javajoker/broadcast-backend/internal/models"
	"github.com/javajoker/broadcast-backend/internal/repository"
)

var testStart = time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC)

func testBroadcastConfig() config.BroadcastConfig {
	return config.BroadcastConfig{
		MaxMerchants:        3,
		MaxImages:           5,
		PricingTimeout:      24 * time.Hour,
		AutoCancelAfter:     48 * time.Hour,
		QuoteValidityWindow: 2 * time.Hour,
		MaxQuoteValidity:    24 * time.Hour,
		MaxItemsPerQuote:    50,
	}
}

type fixture struct {
	repo        *repository.MemoryRepository
	clk         *clock.Mock
	broadcasts  *BroadcastService
	quotes      *QuoteService
	resolutions *ResolutionService
	sweeper     *Sweeper
	customer    Actor
	merchants   []Actor
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clk := clock.NewMock()
	clk.Set(testStart)
	return newFixtureWithRepo(t, clk, repository.NewMemoryRepository(clk))
}

func newFixtureWithRepo(t *testing.T, clk *clock.Mock, repo *repository.MemoryRepository) *fixture {
	t.Helper()

	log := logrus.New()
	log.SetOutput(io.Discard)
	m := metrics.NopMetrics()

	broadcasts := NewBroadcastService(repo, clk, testBroadcastConfig(), m, log)
	f := &fixture{
		repo:        repo,
		clk:         clk,
		broadcasts:  broadcasts,
		quotes:      NewQuoteService(repo, clk, testBroadcastConfig(), m, log),
		resolutions: NewResolutionService(repo, clk, m, log),
		sweeper: NewSweeper(repo, broadcasts, clk, config.SweeperConfig{
			Interval:           time.Minute,
			BatchSize:          50,
			RelabelStaleQuotes: true,
		}, m, log),
		customer: Actor{ID: uuid.New(), Type: models.UserTypeCustomer},
	}
	for i := 0; i < 3; i++ {
		f.merchants = append(f.merchants, Actor{ID: uuid.New(), Type: models.UserTypeMerchant})
	}
	return f
}

func (f *fixture) merchantIDs() []uuid.UUID {
	ids := make([]uuid.UUID, len(f.merchants))
	for i, m := range f.merchants {
		ids[i] = m.ID
	}
	return ids
}

// createBroadcast opens a broadcast to every fixture merchant and returns the
// request id of each merchant, in merchant order.
func (f *fixture) createBroadcast(t *testing.T) (*models.Broadcast, []uuid.UUID) {
	t.Helper()
	view, err := f.broadcasts.Create(context.Background(), f.customer, &CreateBroadcastRequest{
		MerchantIDs:  f.merchantIDs(),
		InputType:    models.InputTypeText,
		OriginalText: "2 kg tomatoes, 1 bottle olive oil",
	})
	require.NoError(t, err)

	byMerchant := make(map[uuid.UUID]uuid.UUID)
	for _, r := range view.Requests {
		byMerchant[r.MerchantID] = r.ID
	}
	ids := make([]uuid.UUID, len(f.merchants))
	for i, m := range f.merchants {
		ids[i] = byMerchant[m.ID]
	}
	return view.Broadcast, ids
}

func (f *fixture) quote(t *testing.T, merchant int, requestID uuid.UUID, unitPrice float64) *models.Request {
	t.Helper()
	req, err := f.quotes.SubmitQuote(context.Background(), f.merchants[merchant], requestID, simpleQuote(unitPrice))
	require.NoError(t, err)
	return req
}

func simpleQuote(unitPrice float64) *SubmitQuoteRequest {
	return &SubmitQuoteRequest{
		Items: []LineItemInput{
			{ItemName: "Tomatoes", UnitType: "kg", Quantity: 2, UnitPrice: unitPrice},
		},
		DeliveryFee: 5,
	}
}

func (f *fixture) request(t *testing.T, id uuid.UUID) *models.Request {
	t.Helper()
	r, err := f.repo.GetRequest(context.Background(), id)
	require.NoError(t, err)
	return r
}

func (f *fixture) broadcast(t *testing.T, id uuid.UUID) *models.Broadcast {
	t.Helper()
	b, err := f.repo.GetBroadcast(context.Background(), id)
	require.NoError(t, err)
	return b
}

func (f *fixture) eventsOfType(eventType models.BridgeEventType) []models.BridgeEvent {
	var out []models.BridgeEvent
	for _, e := range f.repo.Events() {
		if e.EventType == eventType {
			out = append(out, e)
		}
	}
	return out
}
