package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Lejs5034/LegionOfBrothers-sub000/internal/middlewares"
	"github.com/Lejs5034/LegionOfBrothers-sub000/internal/prefs"
	"github.com/Lejs5034/LegionOfBrothers-sub000/internal/services"
)

type AuthHandler struct {
	auth     *services.AuthService
	prefs    *prefs.Store
	tokenTTL time.Duration
}

func NewAuthHandler(auth *services.AuthService, store *prefs.Store, tokenTTL time.Duration) *AuthHandler {
	return &AuthHandler{auth: auth, prefs: store, tokenTTL: tokenTTL}
}

func (h *AuthHandler) Register(c *gin.Context) {
	var req services.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	resp, err := h.auth.Register(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err)
		return
	}
	h.remember(c, resp)
	c.JSON(http.StatusCreated, resp)
}

func (h *AuthHandler) Login(c *gin.Context) {
	var req services.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	resp, err := h.auth.Login(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err)
		return
	}
	h.remember(c, resp)
	c.JSON(http.StatusOK, resp)
}

// remember stores the issued token under the session key. A failure only
// costs the server-side copy, so it is recorded and the sign-in still succeeds.
func (h *AuthHandler) remember(c *gin.Context, resp *services.AuthResponse) {
	if h.prefs == nil {
		return
	}
	if err := h.prefs.SaveSessionToken(c.Request.Context(), resp.User.ID, resp.Token, h.tokenTTL); err != nil {
		_ = c.Error(err)
	}
}

func (h *AuthHandler) Logout(c *gin.Context) {
	if h.prefs != nil {
		if err := h.prefs.ClearSessionToken(c.Request.Context(), currentUserID(c)); err != nil {
			respondError(c, err)
			return
		}
	}
	c.Status(http.StatusNoContent)
}

func (h *AuthHandler) Refresh(c *gin.Context) {
	token, err := h.auth.Refresh(middlewares.BearerToken(c))
	if err != nil {
		respondError(c, err)
		return
	}
	if h.prefs != nil {
		if err := h.prefs.SaveSessionToken(c.Request.Context(), currentUserID(c), token, h.tokenTTL); err != nil {
			_ = c.Error(err)
		}
	}
	c.JSON(http.StatusOK, gin.H{"token": token})
}

func (h *AuthHandler) Me(c *gin.Context) {
	user, err := h.auth.Me(c.Request.Context(), currentUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}
