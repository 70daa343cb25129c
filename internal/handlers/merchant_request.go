// internal/handlers/merchant_request.go
package handlers

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/javajoker/broadcast-backend/internal/i18n"
	"github.com/javajoker/broadcast-backend/internal/models"
	"github.com/javajoker/broadcast-backend/internal/services"
	"github.com/javajoker/broadcast-backend/internal/utils"
)

// MerchantRequestHandler serves the merchant inbox and quoting.
type MerchantRequestHandler struct {
	quoteService *services.QuoteService
	log          *logrus.Logger
}

func NewMerchantRequestHandler(quoteService *services.QuoteService, log *logrus.Logger) *MerchantRequestHandler {
	return &MerchantRequestHandler{
		quoteService: quoteService,
		log:          log,
	}
}

// GET /merchant/requests
func (h *MerchantRequestHandler) GetRequests(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}

	params := services.MerchantRequestSearchParams{
		PaginationParams: utils.GetPaginationParams(c),
	}
	// status=pending,priced
	if status := c.Query("status"); status != "" {
		for _, s := range strings.Split(status, ",") {
			if s = strings.TrimSpace(s); s != "" {
				params.Statuses = append(params.Statuses, models.RequestStatus(s))
			}
		}
	}

	requests, total, err := h.quoteService.ListMerchantRequests(c.Request.Context(), actor, params)
	if err != nil {
		respondError(c, h.log, "request", err)
		return
	}

	result := utils.CreatePaginationResult(requests, total, params.PaginationParams)
	utils.PaginatedResponse(c, result)
}

// GET /merchant/requests/count
func (h *MerchantRequestHandler) CountPending(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}

	count, err := h.quoteService.CountPending(c.Request.Context(), actor)
	if err != nil {
		respondError(c, h.log, "request", err)
		return
	}

	utils.SuccessResponse(c, gin.H{"pending": count})
}

// GET /merchant/requests/:id
func (h *MerchantRequestHandler) GetRequest(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	id, ok := parseID(c, "id", "request")
	if !ok {
		return
	}

	view, err := h.quoteService.GetMerchantRequest(c.Request.Context(), actor, id)
	if err != nil {
		respondError(c, h.log, "request", err)
		return
	}

	utils.SuccessResponse(c, view)
}

// POST /merchant/requests/:id/quote
func (h *MerchantRequestHandler) SubmitQuote(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	id, ok := parseID(c, "id", "request")
	if !ok {
		return
	}

	var req services.SubmitQuoteRequest
	if !bindJSON(c, &req, false) {
		return
	}

	request, err := h.quoteService.SubmitQuote(c.Request.Context(), actor, id, &req)
	if err != nil {
		respondError(c, h.log, "request", err)
		return
	}

	lang := utils.GetLangFromContext(c)
	utils.CreatedResponse(c, gin.H{
		"message": i18n.T(lang, i18n.KeyQuoteSubmitted),
		"request": request,
	})
}

// POST /merchant/requests/:id/decline
func (h *MerchantRequestHandler) DeclineRequest(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	id, ok := parseID(c, "id", "request")
	if !ok {
		return
	}

	var req services.DeclineRequest
	if !bindJSON(c, &req, true) {
		return
	}

	request, err := h.quoteService.Decline(c.Request.Context(), actor, id, req.Reason)
	if err != nil {
		respondError(c, h.log, "request", err)
		return
	}

	lang := utils.GetLangFromContext(c)
	utils.SuccessResponse(c, gin.H{
		"message": i18n.T(lang, i18n.KeyRequestDeclined),
		"request": request,
	})
}
