package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Lejs5034/LegionOfBrothers-sub000/internal/services"
)

// RPCHandler exposes the privileged procedures. Every call answers 200 with
// {success, error}; the error text is meant to be shown as is.
type RPCHandler struct {
	moderation *services.ModerationService
}

func NewRPCHandler(moderation *services.ModerationService) *RPCHandler {
	return &RPCHandler{moderation: moderation}
}

type targetRequest struct {
	UserID string `json:"user_id" binding:"required"`
}

type rankRequest struct {
	UserID string `json:"user_id" binding:"required"`
	Rank   string `json:"rank" binding:"required"`
}

type serverRoleRequest struct {
	ServerID string `json:"server_id" binding:"required"`
	UserID   string `json:"user_id" binding:"required"`
	RoleID   string `json:"role_id"`
}

type courseRequest struct {
	ServerID string `json:"server_id" binding:"required"`
}

func (h *RPCHandler) BanUser(c *gin.Context) {
	var req targetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	c.JSON(http.StatusOK, h.moderation.BanUser(c.Request.Context(), currentUserID(c), req.UserID))
}

func (h *RPCHandler) UnbanUser(c *gin.Context) {
	var req targetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	c.JSON(http.StatusOK, h.moderation.UnbanUser(c.Request.Context(), currentUserID(c), req.UserID))
}

func (h *RPCHandler) ChangeUserRank(c *gin.Context) {
	var req rankRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	c.JSON(http.StatusOK, h.moderation.ChangeUserRank(c.Request.Context(), currentUserID(c), req.UserID, req.Rank))
}

func (h *RPCHandler) PromoteToHead(c *gin.Context) {
	var req targetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	c.JSON(http.StatusOK, h.moderation.PromoteToHead(c.Request.Context(), currentUserID(c), req.UserID))
}

// AssignServerRole sets the target's role in a server; an empty role_id clears it.
func (h *RPCHandler) AssignServerRole(c *gin.Context) {
	var req serverRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	c.JSON(http.StatusOK, h.moderation.AssignServerRole(c.Request.Context(), currentUserID(c), req.ServerID, req.UserID, req.RoleID))
}

func (h *RPCHandler) CheckCourseUpload(c *gin.Context) {
	var req courseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	c.JSON(http.StatusOK, h.moderation.CheckCourseUpload(c.Request.Context(), currentUserID(c), req.ServerID))
}
