package api

import (
	"fmt"
	"net/http"

	"barter-service/internal/service"

	"github.com/gin-gonic/gin"
)

func (h *Handler) createItem(c *gin.Context) {
	var req service.CreateItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	item, err := h.items.CreateItem(c.Request.Context(), &req, principalFrom(c))
	if err != nil {
		respondError(c, err)
		return
	}

	c.Header("Location", fmt.Sprintf("/v1/items/%d", item.ID))
	c.JSON(http.StatusCreated, item)
}

func (h *Handler) getItem(c *gin.Context) {
	itemID, ok := pathID(c)
	if !ok {
		return
	}

	item, err := h.items.GetItem(c.Request.Context(), itemID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, item)
}

// listItems lists available items, hiding the caller's own when authenticated
func (h *Handler) listItems(c *gin.Context) {
	items, err := h.items.ListAvailable(c.Request.Context(), optionalPrincipal(c), c.Query("category"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

func (h *Handler) updateItem(c *gin.Context) {
	itemID, ok := pathID(c)
	if !ok {
		return
	}

	var req service.UpdateItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	item, err := h.items.UpdateItem(c.Request.Context(), itemID, &req, principalFrom(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, item)
}

func (h *Handler) listOwnItems(c *gin.Context) {
	items, err := h.items.ListOwn(c.Request.Context(), principalFrom(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}
