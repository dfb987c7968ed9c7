package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/aromelle/cartsync/internal/api/middleware"
	"github.com/aromelle/cartsync/internal/cart"
	"github.com/aromelle/cartsync/internal/domain"
	"github.com/aromelle/cartsync/internal/metrics"
	"github.com/aromelle/cartsync/pkg/errors"
)

// CartResponse is the cart representation returned to the storefronts.
// Totals are derived from the items on every response, never cached.
type CartResponse struct {
	Items      []domain.CartItem `json:"items"`
	TotalCount int               `json:"total_count"`
	TotalPrice float64           `json:"total_price"`
	State      domain.SyncState  `json:"state"`
	Message    string            `json:"message,omitempty"`
	Error      string            `json:"error,omitempty"`
}

// AddItemRequest is the add-to-cart payload
type AddItemRequest struct {
	ProductID string `json:"product_id" binding:"required"`
	Quantity  int    `json:"quantity" binding:"required,min=1"`
	Size      string `json:"size"`
}

// UpdateItemRequest sets a line's quantity. Values below 1 are clamped to 1
// by the synchronizer, so a decrement past 1 is a no-op rather than a
// removal.
type UpdateItemRequest struct {
	Quantity int `json:"quantity"`
}

func newCartResponse(c domain.Cart, state domain.SyncState, message string) CartResponse {
	items := c.Items
	if items == nil {
		items = []domain.CartItem{}
	}
	return CartResponse{
		Items:      items,
		TotalCount: c.TotalCount(),
		TotalPrice: c.TotalPrice(),
		State:      state,
		Message:    message,
	}
}

// HandleGetCart handles GET /v1/cart. An unauthenticated viewer gets an
// empty cart; a load failure also resolves to an empty cart with a flagged
// error rather than an error status, so the storefront always has something
// to render.
func HandleGetCart(collector *metrics.Collector, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		sync, ok := middleware.GetSyncFromContext(c)
		if !ok {
			c.JSON(http.StatusOK, newCartResponse(domain.Cart{}, domain.SyncStateReady, ""))
			return
		}

		loaded, err := sync.Load(c.Request.Context())
		if err != nil {
			collector.ObserveCartOperation("load", "failure")
			logger.Warn("Cart load failed", zap.Error(err))
			resp := newCartResponse(domain.Cart{}, sync.State(), "")
			resp.Error = "cart temporarily unavailable"
			c.JSON(http.StatusOK, resp)
			return
		}

		collector.ObserveCartOperation("load", "success")
		c.JSON(http.StatusOK, newCartResponse(loaded, sync.State(), ""))
	}
}

// HandleAddItem handles POST /v1/cart/items
func HandleAddItem(collector *metrics.Collector, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		sync, ok := middleware.GetSyncFromContext(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			return
		}

		var req AddItemRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusUnprocessableEntity, gin.H{
				"error":   "validation failed",
				"details": err.Error(),
			})
			return
		}

		if !ensureReady(c, sync, collector, logger) {
			return
		}

		updated, err := sync.AddItem(c.Request.Context(), req.ProductID, req.Quantity, req.Size)
		if err != nil {
			collector.ObserveCartOperation("add_item", "failure")
			respondCartError(c, logger, err)
			return
		}

		collector.ObserveCartOperation("add_item", "success")
		c.JSON(http.StatusOK, newCartResponse(updated, sync.State(), "Added to cart"))
	}
}

// HandleUpdateItem handles PATCH /v1/cart/items/:id
func HandleUpdateItem(collector *metrics.Collector, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		sync, ok := middleware.GetSyncFromContext(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			return
		}

		itemID := c.Param("id")

		var req UpdateItemRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusUnprocessableEntity, gin.H{
				"error":   "validation failed",
				"details": err.Error(),
			})
			return
		}

		if !ensureReady(c, sync, collector, logger) {
			return
		}

		updated, err := sync.UpdateQuantity(c.Request.Context(), itemID, req.Quantity)
		if err != nil {
			collector.ObserveCartOperation("update_item", "failure")
			respondCartError(c, logger, err)
			return
		}

		collector.ObserveCartOperation("update_item", "success")
		c.JSON(http.StatusOK, newCartResponse(updated, sync.State(), "Cart updated"))
	}
}

// HandleRemoveItem handles DELETE /v1/cart/items/:id
func HandleRemoveItem(collector *metrics.Collector, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		sync, ok := middleware.GetSyncFromContext(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			return
		}

		itemID := c.Param("id")

		if !ensureReady(c, sync, collector, logger) {
			return
		}

		updated, err := sync.RemoveItem(c.Request.Context(), itemID)
		if err != nil {
			collector.ObserveCartOperation("remove_item", "failure")
			respondCartError(c, logger, err)
			return
		}

		collector.ObserveCartOperation("remove_item", "success")
		c.JSON(http.StatusOK, newCartResponse(updated, sync.State(), "Removed from cart"))
	}
}

// ensureReady loads the cart first if this synchronizer has not synced yet
// (or its last load failed), so mutations always start from a server-known
// state. Returns false after writing an error response.
func ensureReady(c *gin.Context, sync *cart.Synchronizer, collector *metrics.Collector, logger *zap.Logger) bool {
	state := sync.State()
	if state != domain.SyncStateUninitialized && state != domain.SyncStateError {
		return true
	}

	if _, err := sync.Load(c.Request.Context()); err != nil {
		collector.ObserveCartOperation("load", "failure")
		respondCartError(c, logger, err)
		return false
	}
	return true
}

// respondCartError maps synchronizer errors to HTTP responses. Validation
// messages pass through verbatim; transport failures collapse to one
// user-facing message.
func respondCartError(c *gin.Context, logger *zap.Logger, err error) {
	switch e := err.(type) {
	case *errors.ErrNoSession:
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
	case *errors.ErrUnauthorized:
		c.JSON(http.StatusUnauthorized, gin.H{"error": e.Error()})
	case *errors.ErrValidation:
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": e.Message})
	case *errors.ErrNotFound:
		c.JSON(http.StatusNotFound, gin.H{"error": "cart item not found"})
	case *errors.ErrSyncClosed:
		c.JSON(http.StatusUnauthorized, gin.H{"error": "session ended"})
	case *errors.ErrInvalidStateTransition:
		c.JSON(http.StatusConflict, gin.H{"error": "cart is busy, try again"})
	case *errors.ErrBackend:
		logger.Error("Cart backend unavailable", zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "cart service unavailable"})
	default:
		logger.Error("Unexpected cart error", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
