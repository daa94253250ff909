package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Lejs5034/LegionOfBrothers-sub000/internal/services"
)

// ServerHandler 服务器处理器
type ServerHandler struct {
	servers *services.ServerService
}

func NewServerHandler(servers *services.ServerService) *ServerHandler {
	return &ServerHandler{servers: servers}
}

func (h *ServerHandler) Create(c *gin.Context) {
	var req services.CreateServerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	server, err := h.servers.CreateServer(c.Request.Context(), currentUserID(c), &req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, server)
}

func (h *ServerHandler) List(c *gin.Context) {
	servers, err := h.servers.ListServers(c.Request.Context(), currentUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"servers": servers})
}

func (h *ServerHandler) Join(c *gin.Context) {
	if err := h.servers.Join(c.Request.Context(), currentUserID(c), c.Param("server_id")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *ServerHandler) CreateChannel(c *gin.Context) {
	var req services.CreateChannelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	channel, err := h.servers.CreateChannel(c.Request.Context(), currentUserID(c), c.Param("server_id"), &req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, channel)
}

func (h *ServerHandler) CreateRole(c *gin.Context) {
	var req services.CreateRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	role, err := h.servers.CreateRole(c.Request.Context(), currentUserID(c), c.Param("server_id"), &req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, role)
}
