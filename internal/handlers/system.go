// internal/handlers/system.go
package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/javajoker/broadcast-backend/internal/i18n"
	"github.com/javajoker/broadcast-backend/internal/services"
	"github.com/javajoker/broadcast-backend/internal/utils"
)

// Pinger reports whether a backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type SystemHandler struct {
	sweeper *services.Sweeper
	db      Pinger
	version string
	log     *logrus.Logger
}

func NewSystemHandler(sweeper *services.Sweeper, db Pinger, version string, log *logrus.Logger) *SystemHandler {
	return &SystemHandler{
		sweeper: sweeper,
		db:      db,
		version: version,
		log:     log,
	}
}

// GET /health
func (h *SystemHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	if err := h.db.Ping(ctx); err != nil {
		h.log.WithError(err).Warn("Health check failed")
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":  "unhealthy",
			"version": h.version,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"version": h.version,
	})
}

// POST /internal/sweep runs one sweeper pass for an external scheduler.
func (h *SystemHandler) Sweep(c *gin.Context) {
	result, err := h.sweeper.SweepOnce(c.Request.Context())
	if err != nil {
		respondError(c, h.log, "broadcast", err)
		return
	}

	lang := utils.GetLangFromContext(c)
	utils.SuccessResponse(c, gin.H{
		"message": i18n.T(lang, i18n.KeySweepComplete),
		"result":  result,
	})
}
