package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Lejs5034/LegionOfBrothers-sub000/internal/prefs"
)

type PrefsHandler struct {
	store *prefs.Store
}

func NewPrefsHandler(store *prefs.Store) *PrefsHandler {
	return &PrefsHandler{store: store}
}

func (h *PrefsHandler) Get(c *gin.Context) {
	p, err := h.store.Get(c.Request.Context(), currentUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *PrefsHandler) Update(c *gin.Context) {
	var req struct {
		ShowMemberList *bool `json:"show_member_list" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	ctx, uid := c.Request.Context(), currentUserID(c)
	if err := h.store.SetShowMemberList(ctx, uid, *req.ShowMemberList); err != nil {
		respondError(c, err)
		return
	}
	p, err := h.store.Get(ctx, uid)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}
