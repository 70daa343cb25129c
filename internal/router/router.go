// internal/router/router.go
package router

import (
	"time"

	"github.com/benbjohnson/clock"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/javajoker/broadcast-backend/internal/config"
	"github.com/javajoker/broadcast-backend/internal/handlers"
	"github.com/javajoker/broadcast-backend/internal/metrics"
	"github.com/javajoker/broadcast-backend/internal/middleware"
	"github.com/javajoker/broadcast-backend/internal/models"
	"github.com/javajoker/broadcast-backend/internal/repository"
	"github.com/javajoker/broadcast-backend/internal/services"
	"github.com/javajoker/broadcast-backend/internal/utils"
)

const Version = "1.0.0"

// Dependencies are the wired services the HTTP surface exposes.
type Dependencies struct {
	Config      *config.Config
	Repo        repository.Repository
	Clock       clock.Clock
	Metrics     *metrics.Metrics
	Gatherer    prometheus.Gatherer
	Log         *logrus.Logger
	Broadcasts  *services.BroadcastService
	Quotes      *services.QuoteService
	Resolutions *services.ResolutionService
	Sweeper     *services.Sweeper
	Media       *services.MediaService
}

func Initialize(deps Dependencies) *gin.Engine {
	cfg := deps.Config

	// Initialize handlers
	broadcastHandler := handlers.NewBroadcastHandler(deps.Broadcasts, deps.Quotes, deps.Resolutions, deps.Media, deps.Log)
	merchantHandler := handlers.NewMerchantRequestHandler(deps.Quotes, deps.Log)
	systemHandler := handlers.NewSystemHandler(deps.Sweeper, deps.Repo, Version, deps.Log)

	// Set JWT secret
	utils.SetJWTSecret(cfg.JWT.SecretKey)

	// Initialize Gin router
	r := gin.New()

	// Global middleware
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger(deps.Log))
	r.Use(middleware.Metrics(deps.Metrics))
	r.Use(middleware.CORS(cfg.Server.AllowedOrigins))
	r.Use(middleware.I18nMiddleware())
	r.Use(middleware.RequestTimeout(time.Duration(cfg.Server.RequestTimeout) * time.Second))

	// Health check
	r.GET("/health", systemHandler.Health)
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{})))

	customer := middleware.RoleRequired(models.UserTypeCustomer)
	customerOrAdmin := middleware.RoleRequired(models.UserTypeCustomer, models.UserTypeAdmin)
	anyRole := middleware.RoleRequired(models.UserTypeCustomer, models.UserTypeMerchant, models.UserTypeAdmin)
	var quoteLimit gin.HandlerFunc = func(c *gin.Context) { c.Next() }

	// API v1 routes
	v1 := r.Group("/v1")
	if cfg.Server.RateLimitRPS > 0 {
		v1.Use(middleware.GeneralRateLimit(deps.Clock, cfg.Server.RateLimitRPS, cfg.Server.RateLimitBurst))
		quoteLimit = middleware.QuoteRateLimit(deps.Clock)
	}
	v1.Use(middleware.AuditLogMiddleware(deps.Repo, deps.Log))
	{
		// Customer broadcasts
		broadcasts := v1.Group("/broadcasts")
		broadcasts.Use(middleware.AuthRequired())
		{
			broadcasts.POST("", customer, broadcastHandler.CreateBroadcast)
			broadcasts.GET("", customerOrAdmin, broadcastHandler.GetBroadcasts)
			broadcasts.GET("/count", customerOrAdmin, broadcastHandler.CountActive)
			broadcasts.GET("/:id", customerOrAdmin, broadcastHandler.GetBroadcast)
			broadcasts.GET("/:id/media", anyRole, broadcastHandler.GetMedia)
			broadcasts.POST("/:id/cancel", customerOrAdmin, broadcastHandler.CancelBroadcast)
			broadcasts.POST("/:id/requests/:requestId/approve", customer, quoteLimit, broadcastHandler.ApproveQuote)
		}

		requests := v1.Group("/requests")
		requests.Use(middleware.AuthRequired(), customer)
		{
			requests.POST("/:id/reject", broadcastHandler.RejectQuote)
		}

		// Merchant inbox
		merchant := v1.Group("/merchant")
		merchant.Use(middleware.AuthRequired(), middleware.RoleRequired(models.UserTypeMerchant))
		{
			merchant.GET("/requests", merchantHandler.GetRequests)
			merchant.GET("/requests/count", merchantHandler.CountPending)
			merchant.GET("/requests/:id", merchantHandler.GetRequest)
			merchant.POST("/requests/:id/quote", quoteLimit, merchantHandler.SubmitQuote)
			merchant.POST("/requests/:id/decline", merchantHandler.DeclineRequest)
		}

		// Scheduler hooks
		internal := v1.Group("/internal")
		internal.Use(middleware.CronSecretRequired(cfg.Cron.SecretHash))
		{
			internal.POST("/sweep", systemHandler.Sweep)
		}
	}

	return r
}
