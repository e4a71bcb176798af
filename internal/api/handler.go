package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"barter-service/internal/auth"
	"barter-service/internal/models"
	"barter-service/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Pinger reports whether a dependency is reachable
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler contains HTTP handlers
type Handler struct {
	engine        *service.TradeEngine
	items         *service.ItemService
	history       *service.TradeHistory
	authenticator *auth.Authenticator
	limiter       *RateLimiter
	dependencies  map[string]Pinger
}

// NewHandler creates a new HTTP handler. limiter may be nil to disable rate limiting.
func NewHandler(
	engine *service.TradeEngine,
	items *service.ItemService,
	history *service.TradeHistory,
	authenticator *auth.Authenticator,
	limiter *RateLimiter,
	dependencies map[string]Pinger,
) *Handler {
	return &Handler{
		engine:        engine,
		items:         items,
		history:       history,
		authenticator: authenticator,
		limiter:       limiter,
		dependencies:  dependencies,
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(gin.Logger())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/v1")
	v1.Use(authMiddleware(h.authenticator))
	if h.limiter != nil {
		v1.Use(h.limiter.Middleware())
	}

	// listings are public; the principal only narrows the results
	v1.GET("/items", h.listItems)
	v1.GET("/items/:id", h.getItem)

	private := v1.Group("")
	private.Use(requirePrincipal())
	{
		private.POST("/items", h.createItem)
		private.PATCH("/items/:id", h.updateItem)

		private.POST("/trades", h.createTrade)
		private.GET("/trades/:id", h.getTrade)
		private.PATCH("/trades/:id/accept", h.acceptTrade)
		private.PATCH("/trades/:id/decline", h.declineTrade)
		private.GET("/trades/:id/events", h.getTradeEvents)

		private.GET("/users/me/items", h.listOwnItems)
		private.GET("/users/me/trades", h.listOwnTrades)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck pings every dependency
func (h *Handler) readinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	failed := gin.H{}
	for name, dep := range h.dependencies {
		if err := dep.Ping(ctx); err != nil {
			failed[name] = "unreachable"
		}
	}
	if len(failed) > 0 {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":       "not ready",
			"dependencies": failed,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

// createTrade handles trade creation
func (h *Handler) createTrade(c *gin.Context) {
	var req service.CreateTradeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	trade, replayed, err := h.engine.CreateTradeIdempotent(
		c.Request.Context(), c.GetHeader("Idempotency-Key"), &req, principalFrom(c))
	if err != nil {
		respondError(c, err)
		return
	}

	c.Header("Location", fmt.Sprintf("/v1/trades/%d", trade.ID))
	if replayed {
		c.JSON(http.StatusOK, trade)
		return
	}
	c.JSON(http.StatusCreated, trade)
}

// getTrade handles get trade by ID
func (h *Handler) getTrade(c *gin.Context) {
	tradeID, ok := pathID(c)
	if !ok {
		return
	}

	trade, err := h.engine.ShowTrade(c.Request.Context(), tradeID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, trade)
}

func (h *Handler) acceptTrade(c *gin.Context) {
	h.respond(c, h.engine.AcceptTrade)
}

func (h *Handler) declineTrade(c *gin.Context) {
	h.respond(c, h.engine.DeclineTrade)
}

func (h *Handler) respond(c *gin.Context, decide func(context.Context, int64, models.Principal) (*models.Trade, error)) {
	tradeID, ok := pathID(c)
	if !ok {
		return
	}

	trade, err := decide(c.Request.Context(), tradeID, principalFrom(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, trade)
}

// getTradeEvents returns a trade's audit trail
func (h *Handler) getTradeEvents(c *gin.Context) {
	tradeID, ok := pathID(c)
	if !ok {
		return
	}

	events, err := h.history.ListEvents(c.Request.Context(), tradeID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events})
}

// listOwnTrades lists the caller's trades, newest first
func (h *Handler) listOwnTrades(c *gin.Context) {
	trades, err := h.engine.ListTrades(c.Request.Context(), principalFrom(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"trades": trades})
}

func pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id < 1 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid ID",
		})
		return 0, false
	}
	return id, true
}
