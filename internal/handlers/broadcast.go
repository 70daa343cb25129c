// internal/handlers/broadcast.go
package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/javajoker/broadcast-backend/internal/i18n"
	"github.com/javajoker/broadcast-backend/internal/models"
	"github.com/javajoker/broadcast-backend/internal/services"
	"github.com/javajoker/broadcast-backend/internal/utils"
)

// BroadcastHandler serves the customer side of a broadcast.
type BroadcastHandler struct {
	broadcastService  *services.BroadcastService
	quoteService      *services.QuoteService
	resolutionService *services.ResolutionService
	mediaService      *services.MediaService
	log               *logrus.Logger
}

func NewBroadcastHandler(
	broadcastService *services.BroadcastService,
	quoteService *services.QuoteService,
	resolutionService *services.ResolutionService,
	mediaService *services.MediaService,
	log *logrus.Logger,
) *BroadcastHandler {
	return &BroadcastHandler{
		broadcastService:  broadcastService,
		quoteService:      quoteService,
		resolutionService: resolutionService,
		mediaService:      mediaService,
		log:               log,
	}
}

// POST /broadcasts
func (h *BroadcastHandler) CreateBroadcast(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}

	var req services.CreateBroadcastRequest
	if !bindJSON(c, &req, false) {
		return
	}

	view, err := h.broadcastService.Create(c.Request.Context(), actor, &req)
	if err != nil {
		respondError(c, h.log, "broadcast", err)
		return
	}

	lang := utils.GetLangFromContext(c)
	utils.CreatedResponse(c, gin.H{
		"message":   i18n.T(lang, i18n.KeyBroadcastCreated),
		"broadcast": view.Broadcast,
		"requests":  view.Requests,
	})
}

// GET /broadcasts
func (h *BroadcastHandler) GetBroadcasts(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}

	params := services.BroadcastSearchParams{
		PaginationParams: utils.GetPaginationParams(c),
	}
	if status := c.Query("status"); status != "" {
		broadcastStatus := models.BroadcastStatus(status)
		params.Status = &broadcastStatus
	}

	broadcasts, total, err := h.broadcastService.List(c.Request.Context(), actor, params)
	if err != nil {
		respondError(c, h.log, "broadcast", err)
		return
	}

	result := utils.CreatePaginationResult(broadcasts, total, params.PaginationParams)
	utils.PaginatedResponse(c, result)
}

// GET /broadcasts/count
func (h *BroadcastHandler) CountActive(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}

	count, err := h.broadcastService.CountActive(c.Request.Context(), actor)
	if err != nil {
		respondError(c, h.log, "broadcast", err)
		return
	}

	utils.SuccessResponse(c, gin.H{"count": count})
}

// GET /broadcasts/:id
func (h *BroadcastHandler) GetBroadcast(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	id, ok := parseID(c, "id", "broadcast")
	if !ok {
		return
	}

	view, err := h.broadcastService.Get(c.Request.Context(), actor, id)
	if err != nil {
		respondError(c, h.log, "broadcast", err)
		return
	}

	utils.SuccessResponse(c, view)
}

// GET /broadcasts/:id/media
func (h *BroadcastHandler) GetMedia(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	id, ok := parseID(c, "id", "broadcast")
	if !ok {
		return
	}

	urls, err := h.mediaService.MediaURLs(c.Request.Context(), actor, id)
	if err != nil {
		respondError(c, h.log, "broadcast", err)
		return
	}

	utils.SuccessResponse(c, urls)
}

// POST /broadcasts/:id/cancel
func (h *BroadcastHandler) CancelBroadcast(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	id, ok := parseID(c, "id", "broadcast")
	if !ok {
		return
	}

	var req services.CancelBroadcastRequest
	if !bindJSON(c, &req, true) {
		return
	}

	broadcast, err := h.broadcastService.Cancel(c.Request.Context(), actor, id, req.Reason)
	if err != nil {
		respondError(c, h.log, "broadcast", err)
		return
	}

	lang := utils.GetLangFromContext(c)
	utils.SuccessResponse(c, gin.H{
		"message":   i18n.T(lang, i18n.KeyBroadcastCancelled),
		"broadcast": broadcast,
	})
}

// POST /broadcasts/:id/requests/:requestId/approve
func (h *BroadcastHandler) ApproveQuote(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	broadcastID, ok := parseID(c, "id", "broadcast")
	if !ok {
		return
	}
	requestID, ok := parseID(c, "requestId", "request")
	if !ok {
		return
	}

	resolution, err := h.resolutionService.Approve(c.Request.Context(), actor, broadcastID, requestID)
	if err != nil {
		respondError(c, h.log, "request", err)
		return
	}

	lang := utils.GetLangFromContext(c)
	utils.SuccessResponse(c, gin.H{
		"message":   i18n.T(lang, i18n.KeyBroadcastResolved),
		"broadcast": resolution.Broadcast,
		"winner":    resolution.Winner,
	})
}

// POST /requests/:id/reject
func (h *BroadcastHandler) RejectQuote(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	id, ok := parseID(c, "id", "request")
	if !ok {
		return
	}

	var req services.RejectQuoteRequest
	if !bindJSON(c, &req, true) {
		return
	}

	request, err := h.quoteService.Reject(c.Request.Context(), actor, id, req.Reason)
	if err != nil {
		respondError(c, h.log, "request", err)
		return
	}

	lang := utils.GetLangFromContext(c)
	utils.SuccessResponse(c, gin.H{
		"message": i18n.T(lang, i18n.KeyQuoteRejected),
		"request": request,
	})
}
