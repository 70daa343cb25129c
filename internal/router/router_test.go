package router

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/suite"

	"github.com/javajoker/broadcast-backend/internal/config"
	"github.com/javajoker/broadcast-backend/internal/i18n"
	"github.com/javajoker/broadcast-backend/internal/metrics"
	"github.com/javajoker/broadcast-backend/internal/models"
	"github.com/javajoker/broadcast-backend/internal/repository"
	"github.com/javajoker/broadcast-backend/internal/services"
	"github.com/javajoker/broadcast-backend/internal/utils"
)

const cronSecret = "sweep-token"

type APITestSuite struct {
	suite.Suite
	cronHash  string
	router    *gin.Engine
	repo      *repository.MemoryRepository
	clk       *clock.Mock
	customer  string
	merchants []uuid.UUID
	tokens    map[uuid.UUID]string
	admin     string
}

type apiResponse struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *utils.APIError `json:"error"`
	Meta    json.RawMessage `json:"meta"`
}

func (s *APITestSuite) SetupSuite() {
	gin.SetMode(gin.TestMode)
	s.Require().NoError(i18n.Initialize())

	hash, err := utils.HashSecret(cronSecret)
	s.Require().NoError(err)
	s.cronHash = hash
}

func (s *APITestSuite) SetupTest() {
	cfg := &config.Config{
		Environment: "test",
		Server:      config.ServerConfig{RequestTimeout: 5, AllowedOrigins: []string{"http://localhost:3000"}},
		JWT:         config.JWTConfig{SecretKey: "api-test-secret", AccessTokenTTL: 1},
		AWS:         config.AWSConfig{PresignTTL: time.Minute},
		Broadcast: config.BroadcastConfig{
			MaxMerchants:        3,
			MaxImages:           5,
			PricingTimeout:      24 * time.Hour,
			AutoCancelAfter:     48 * time.Hour,
			QuoteValidityWindow: 2 * time.Hour,
			MaxQuoteValidity:    24 * time.Hour,
			MaxItemsPerQuote:    50,
		},
		Sweeper: config.SweeperConfig{Interval: time.Minute, BatchSize: 50, RelabelStaleQuotes: true},
		Cron:    config.CronConfig{SecretHash: s.cronHash},
	}

	log := logrus.New()
	log.SetOutput(io.Discard)
	reg := prometheus.NewRegistry()
	m := metrics.PrometheusMetrics("custom_orders", reg)

	s.clk = clock.NewMock()
	s.clk.Set(time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC))
	s.repo = repository.NewMemoryRepository(s.clk)

	broadcasts := services.NewBroadcastService(s.repo, s.clk, cfg.Broadcast, m, log)
	media, err := services.NewMediaService(cfg.AWS, s.repo, s.clk)
	s.Require().NoError(err)

	s.router = Initialize(Dependencies{
		Config:      cfg,
		Repo:        s.repo,
		Clock:       s.clk,
		Metrics:     m,
		Gatherer:    reg,
		Log:         log,
		Broadcasts:  broadcasts,
		Quotes:      services.NewQuoteService(s.repo, s.clk, cfg.Broadcast, m, log),
		Resolutions: services.NewResolutionService(s.repo, s.clk, m, log),
		Sweeper:     services.NewSweeper(s.repo, broadcasts, s.clk, cfg.Sweeper, m, log),
		Media:       media,
	})

	s.customer = s.token(uuid.New(), models.UserTypeCustomer)
	s.admin = s.token(uuid.New(), models.UserTypeAdmin)
	s.merchants = nil
	s.tokens = make(map[uuid.UUID]string)
	for i := 0; i < 3; i++ {
		id := uuid.New()
		s.merchants = append(s.merchants, id)
		s.tokens[id] = s.token(id, models.UserTypeMerchant)
	}
}

func (s *APITestSuite) token(id uuid.UUID, userType models.UserType) string {
	token, err := utils.GenerateJWT(id, string(userType), 1)
	s.Require().NoError(err)
	return token
}

func (s *APITestSuite) call(method, path, token string, body interface{}, headers ...string) (int, apiResponse) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		s.Require().NoError(err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	var resp apiResponse
	if w.Body.Len() > 0 && w.Header().Get("Content-Type") == "application/json; charset=utf-8" {
		s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &resp))
	}
	return w.Code, resp
}

func (s *APITestSuite) decode(raw json.RawMessage, out interface{}) {
	s.Require().NoError(json.Unmarshal(raw, out))
}

type createdBroadcast struct {
	Broadcast models.Broadcast      `json:"broadcast"`
	Requests  []services.RequestView `json:"requests"`
}

// createBroadcast returns the broadcast id and the request id per merchant.
func (s *APITestSuite) createBroadcast() (uuid.UUID, map[uuid.UUID]uuid.UUID) {
	code, resp := s.call(http.MethodPost, "/v1/broadcasts", s.customer, map[string]interface{}{
		"merchant_ids":  s.merchants,
		"input_type":    "text",
		"original_text": "1 kg rice, 2 bottles of milk",
	})
	s.Require().Equal(http.StatusCreated, code)

	var created createdBroadcast
	s.decode(resp.Data, &created)
	ids := make(map[uuid.UUID]uuid.UUID)
	for _, r := range created.Requests {
		ids[r.MerchantID] = r.ID
	}
	s.Require().Len(ids, 3)
	return created.Broadcast.ID, ids
}

func quoteBody(unitPrice float64) map[string]interface{} {
	return map[string]interface{}{
		"items": []map[string]interface{}{
			{"item_name": "Rice", "unit_type": "kg", "quantity": 1, "unit_price": unitPrice},
		},
		"delivery_fee": 4,
	}
}

func (s *APITestSuite) quote(merchant, requestID uuid.UUID, unitPrice float64) {
	code, resp := s.call(http.MethodPost, "/v1/merchant/requests/"+requestID.String()+"/quote", s.tokens[merchant], quoteBody(unitPrice))
	s.Require().Equal(http.StatusCreated, code, resp.Error)
}

func (s *APITestSuite) approvePath(broadcastID, requestID uuid.UUID) string {
	return "/v1/broadcasts/" + broadcastID.String() + "/requests/" + requestID.String() + "/approve"
}

func (s *APITestSuite) TestHealthAndMetrics() {
	code, _ := s.call(http.MethodGet, "/health", "", nil)
	s.Equal(http.StatusOK, code)

	s.createBroadcast()

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	s.Equal(http.StatusOK, w.Code)
	s.Contains(w.Body.String(), "custom_orders_broadcast_created_total 1")
}

func (s *APITestSuite) TestHappyPath() {
	broadcastID, ids := s.createBroadcast()
	cheap, dear := s.merchants[0], s.merchants[1]

	code, resp := s.call(http.MethodGet, "/v1/merchant/requests?status=pending", s.tokens[cheap], nil)
	s.Require().Equal(http.StatusOK, code)
	var inbox []services.RequestView
	s.decode(resp.Data, &inbox)
	s.Require().Len(inbox, 1)
	s.Equal(ids[cheap], inbox[0].ID)

	s.quote(cheap, ids[cheap], 10)
	s.quote(dear, ids[dear], 30)

	code, resp = s.call(http.MethodGet, "/v1/broadcasts/"+broadcastID.String(), s.customer, nil)
	s.Require().Equal(http.StatusOK, code)
	var view services.BroadcastView
	s.decode(resp.Data, &view)
	s.Require().Len(view.Requests, 3)
	s.Equal(ids[cheap], view.Requests[0].ID)
	s.Equal(14.0, view.Requests[0].Total)
	s.Equal(int64(2*60*60), view.Requests[0].SecondsRemaining)
	s.Equal(ids[dear], view.Requests[1].ID)
	s.Equal(models.RequestStatusPending, view.Requests[2].Status)

	code, resp = s.call(http.MethodPost, s.approvePath(broadcastID, ids[cheap]), s.customer, nil)
	s.Require().Equal(http.StatusOK, code, resp.Error)
	var resolution services.Resolution
	s.decode(resp.Data, &resolution)
	s.Equal(models.BroadcastStatusCompleted, resolution.Broadcast.Status)
	s.Equal(ids[cheap], resolution.Winner.ID)

	code, resp = s.call(http.MethodPost, s.approvePath(broadcastID, ids[dear]), s.customer, nil)
	s.Equal(http.StatusConflict, code)
	s.Equal("ALREADY_RESOLVED", resp.Error.Code)

	events := s.repo.Events()
	var confirmed, cancelled int
	for _, e := range events {
		switch e.EventType {
		case models.BridgeEventOrderConfirmed:
			confirmed++
		case models.BridgeEventOrderCancelled:
			cancelled++
		}
	}
	s.Equal(1, confirmed)
	s.Equal(1, cancelled)
}

func (s *APITestSuite) TestQuoteErrors() {
	_, ids := s.createBroadcast()
	merchant := s.merchants[0]
	path := "/v1/merchant/requests/" + ids[merchant].String() + "/quote"

	code, resp := s.call(http.MethodPost, path, s.tokens[merchant], map[string]interface{}{"items": []interface{}{}})
	s.Equal(http.StatusConflict, code)
	s.Equal("INVALID_STATE", resp.Error.Code)

	code, resp = s.call(http.MethodPost, path, s.tokens[merchant], map[string]interface{}{
		"items": []map[string]interface{}{{"item_name": "Rice", "quantity": 0, "unit_price": 1}},
	})
	s.Equal(http.StatusBadRequest, code)
	s.Equal("VALIDATION_ERROR", resp.Error.Code)

	code, resp = s.call(http.MethodPost, path, s.tokens[s.merchants[1]], quoteBody(1))
	s.Equal(http.StatusForbidden, code)
	s.Equal("FORBIDDEN", resp.Error.Code)

	code, _ = s.call(http.MethodPost, path, s.customer, quoteBody(1))
	s.Equal(http.StatusForbidden, code)

	code, resp = s.call(http.MethodPost, "/v1/merchant/requests/not-an-id/quote", s.tokens[merchant], quoteBody(1))
	s.Equal(http.StatusBadRequest, code)
	s.Equal("BAD_REQUEST", resp.Error.Code)

	code, resp = s.call(http.MethodPost, "/v1/merchant/requests/"+uuid.NewString()+"/quote", s.tokens[merchant], quoteBody(1))
	s.Equal(http.StatusNotFound, code)
	s.Equal("NOT_FOUND", resp.Error.Code)

	s.clk.Add(25 * time.Hour)
	code, resp = s.call(http.MethodPost, path, s.tokens[merchant], quoteBody(1))
	s.Equal(http.StatusConflict, code)
	s.Equal("TOO_LATE_TO_QUOTE", resp.Error.Code)
}

func (s *APITestSuite) TestStaleQuote() {
	broadcastID, ids := s.createBroadcast()
	merchant := s.merchants[2]
	s.quote(merchant, ids[merchant], 5)

	s.clk.Add(3 * time.Hour)
	code, resp := s.call(http.MethodPost, s.approvePath(broadcastID, ids[merchant]), s.customer, nil)
	s.Equal(http.StatusConflict, code)
	s.Equal("STALE_QUOTE", resp.Error.Code)
}

func (s *APITestSuite) TestRejectAndDecline() {
	_, ids := s.createBroadcast()
	s.quote(s.merchants[0], ids[s.merchants[0]], 5)

	code, resp := s.call(http.MethodPost, "/v1/requests/"+ids[s.merchants[0]].String()+"/reject", s.customer,
		map[string]string{"reason": "too far"})
	s.Require().Equal(http.StatusOK, code, resp.Error)

	code, _ = s.call(http.MethodPost, "/v1/merchant/requests/"+ids[s.merchants[1]].String()+"/decline", s.tokens[s.merchants[1]], nil)
	s.Equal(http.StatusOK, code)

	code, resp = s.call(http.MethodGet, "/v1/merchant/requests/count", s.tokens[s.merchants[1]], nil)
	s.Require().Equal(http.StatusOK, code)
	var count struct {
		Pending int64 `json:"pending"`
	}
	s.decode(resp.Data, &count)
	s.Zero(count.Pending)

	code, resp = s.call(http.MethodGet, "/v1/merchant/requests/"+ids[s.merchants[2]].String(), s.tokens[s.merchants[2]], nil)
	s.Require().Equal(http.StatusOK, code)
	var view services.RequestView
	s.decode(resp.Data, &view)
	s.Require().NotNil(view.Broadcast)
	s.Empty(view.Broadcast.MerchantIDs)
}

func (s *APITestSuite) TestCreateValidationAndRoles() {
	code, resp := s.call(http.MethodPost, "/v1/broadcasts", s.customer, map[string]interface{}{
		"merchant_ids": []string{},
		"input_type":   "text",
	})
	s.Equal(http.StatusBadRequest, code)
	s.Equal("VALIDATION_ERROR", resp.Error.Code)

	dup := s.merchants[0]
	code, resp = s.call(http.MethodPost, "/v1/broadcasts", s.customer, map[string]interface{}{
		"merchant_ids":  []uuid.UUID{dup, dup},
		"input_type":    "text",
		"original_text": "eggs",
	})
	s.Equal(http.StatusBadRequest, code)
	s.Equal("VALIDATION_ERROR", resp.Error.Code)

	code, _ = s.call(http.MethodPost, "/v1/broadcasts", s.tokens[dup], map[string]interface{}{
		"merchant_ids":  s.merchants[1:],
		"input_type":    "text",
		"original_text": "eggs",
	})
	s.Equal(http.StatusForbidden, code)

	code, resp = s.call(http.MethodGet, "/v1/broadcasts", "", nil)
	s.Equal(http.StatusUnauthorized, code)
	s.Equal("UNAUTHORIZED", resp.Error.Code)
}

func (s *APITestSuite) TestCancelAndList() {
	broadcastID, _ := s.createBroadcast()
	s.createBroadcast()

	code, resp := s.call(http.MethodPost, "/v1/broadcasts/"+broadcastID.String()+"/cancel", s.customer,
		map[string]string{"reason": "ordered elsewhere"})
	s.Require().Equal(http.StatusOK, code, resp.Error)

	code, resp = s.call(http.MethodPost, "/v1/broadcasts/"+broadcastID.String()+"/cancel", s.customer, nil)
	s.Equal(http.StatusConflict, code)
	s.Equal("INVALID_STATE", resp.Error.Code)

	code, resp = s.call(http.MethodGet, "/v1/broadcasts?status=active", s.customer, nil)
	s.Require().Equal(http.StatusOK, code)
	var list []models.Broadcast
	s.decode(resp.Data, &list)
	s.Len(list, 1)

	code, resp = s.call(http.MethodGet, "/v1/broadcasts/count", s.customer, nil)
	s.Require().Equal(http.StatusOK, code)
	var count struct {
		Count int64 `json:"count"`
	}
	s.decode(resp.Data, &count)
	s.Equal(int64(1), count.Count)

	code, _ = s.call(http.MethodGet, "/v1/broadcasts/"+broadcastID.String(), s.admin, nil)
	s.Equal(http.StatusOK, code)
}

func (s *APITestSuite) TestMedia() {
	broadcastID, _ := s.createBroadcast()

	code, resp := s.call(http.MethodGet, "/v1/broadcasts/"+broadcastID.String()+"/media", s.tokens[s.merchants[0]], nil)
	s.Require().Equal(http.StatusOK, code)
	var urls services.MediaURLs
	s.decode(resp.Data, &urls)
	s.Empty(urls.VoiceURL)

	outsider := s.token(uuid.New(), models.UserTypeMerchant)
	code, _ = s.call(http.MethodGet, "/v1/broadcasts/"+broadcastID.String()+"/media", outsider, nil)
	s.Equal(http.StatusForbidden, code)
}

func (s *APITestSuite) TestLocalizedErrors() {
	code, resp := s.call(http.MethodGet, "/v1/broadcasts/"+uuid.NewString(), s.customer, nil, "Accept-Language", "ar-EG,ar;q=0.9")
	s.Equal(http.StatusNotFound, code)
	s.Equal(i18n.T("ar", i18n.KeyBroadcastNotFound), resp.Error.Message)

	code, resp = s.call(http.MethodGet, "/v1/broadcasts/"+uuid.NewString(), s.customer, nil)
	s.Equal(http.StatusNotFound, code)
	s.Equal("Broadcast not found", resp.Error.Message)
}

func (s *APITestSuite) TestInternalSweep() {
	_, ids := s.createBroadcast()
	s.clk.Add(25 * time.Hour)

	code, _ := s.call(http.MethodPost, "/v1/internal/sweep", "wrong", nil)
	s.Equal(http.StatusUnauthorized, code)

	code, resp := s.call(http.MethodPost, "/v1/internal/sweep", cronSecret, nil)
	s.Require().Equal(http.StatusOK, code)
	var body struct {
		Result services.SweepResult `json:"result"`
	}
	s.decode(resp.Data, &body)
	s.Equal(3, body.Result.ExpiredRequests)

	for _, id := range ids {
		r, err := s.repo.GetRequest(context.Background(), id)
		s.Require().NoError(err)
		s.Equal(models.RequestStatusExpired, r.Status)
	}
}

func TestAPISuite(t *testing.T) {
	suite.Run(t, new(APITestSuite))
}
