package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Lejs5034/LegionOfBrothers-sub000/internal/services"
)

type PinHandler struct {
	pins *services.PinService
}

func NewPinHandler(pins *services.PinService) *PinHandler {
	return &PinHandler{pins: pins}
}

func (h *PinHandler) List(c *gin.Context) {
	ids, err := h.pins.List(c.Request.Context(), currentUserID(c), c.Param("channel_id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message_ids": ids})
}

func (h *PinHandler) Pin(c *gin.Context) {
	var req struct {
		MessageID string `json:"message_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if err := h.pins.Pin(c.Request.Context(), currentUserID(c), c.Param("channel_id"), req.MessageID); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *PinHandler) Unpin(c *gin.Context) {
	if err := h.pins.Unpin(c.Request.Context(), currentUserID(c), c.Param("channel_id"), c.Param("message_id")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
