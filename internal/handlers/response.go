package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Lejs5034/LegionOfBrothers-sub000/internal/middlewares"
	"github.com/Lejs5034/LegionOfBrothers-sub000/internal/services"
	"github.com/Lejs5034/LegionOfBrothers-sub000/internal/upload"
	"github.com/Lejs5034/LegionOfBrothers-sub000/middleware/jwt"
)

func currentUserID(c *gin.Context) string {
	return c.GetString(middlewares.ContextUserID)
}

// statusOf maps service errors onto HTTP status codes.
func statusOf(err error) int {
	var verr *services.ValidationError
	switch {
	case errors.As(err, &verr),
		errors.Is(err, services.ErrInvalidParent),
		errors.Is(err, services.ErrSelfMessage),
		errors.Is(err, upload.ErrDeniedExtension),
		errors.Is(err, upload.ErrFileTooLarge):
		return http.StatusBadRequest
	case errors.Is(err, services.ErrInvalidCredentials),
		errors.Is(err, jwt.ErrInvalidToken),
		errors.Is(err, jwt.ErrExpiredToken),
		errors.Is(err, jwt.ErrTokenNotYetValid),
		errors.Is(err, jwt.ErrNotRefreshable):
		return http.StatusUnauthorized
	case errors.Is(err, services.ErrForbidden),
		errors.Is(err, services.ErrNotMember),
		errors.Is(err, services.ErrCannotWrite),
		errors.Is(err, services.ErrNotOwner),
		errors.Is(err, services.ErrBanned):
		return http.StatusForbidden
	case errors.Is(err, services.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, services.ErrAlreadyPinned),
		errors.Is(err, services.ErrNotPinned),
		errors.Is(err, services.ErrUserNameTaken),
		errors.Is(err, services.ErrEmailTaken):
		return http.StatusConflict
	case errors.Is(err, services.ErrRateLimited):
		return http.StatusTooManyRequests
	}
	return http.StatusInternalServerError
}

// respondError writes err as {"error": ...}. Internal errors are recorded on
// the gin context for the access log and hidden from the client.
func respondError(c *gin.Context, err error) {
	status := statusOf(err)
	if status == http.StatusInternalServerError {
		_ = c.Error(err)
		c.JSON(status, gin.H{"error": "internal server error"})
		return
	}

	body := gin.H{"error": err.Error()}
	var verr *services.ValidationError
	if errors.As(err, &verr) {
		body["fields"] = verr.Fields
	}
	c.JSON(status, body)
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": "malformed request: " + err.Error()})
}
