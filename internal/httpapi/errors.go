package httpapi

import (
	"errors"
	"net/http"

	"identity-audit/internal/audit"
	"identity-audit/internal/session"
	"identity-audit/internal/store"
	"identity-audit/internal/user"

	"github.com/gin-gonic/gin"
)

// writeError maps a domain error to a status and a client-safe message.
// Unexpected errors are attached to the gin context for the request log.
func writeError(c *gin.Context, err error) {
	status, msg := classify(err)
	if status >= http.StatusInternalServerError {
		_ = c.Error(err)
	}
	c.AbortWithStatusJSON(status, gin.H{"message": msg})
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, session.ErrInvalidCredentials):
		return http.StatusUnauthorized, "Invalid username or password"
	case errors.Is(err, session.ErrInvalidToken):
		return http.StatusUnauthorized, "Unauthorized"
	case errors.Is(err, store.ErrUnavailable):
		return http.StatusServiceUnavailable, "Service temporarily unavailable, retry later"
	case errors.Is(err, user.ErrNotFound):
		return http.StatusNotFound, "User not found"
	case errors.Is(err, user.ErrConflict):
		return http.StatusConflict, "Username already taken"
	case errors.Is(err, user.ErrForbidden):
		return http.StatusForbidden, "Forbidden"
	case errors.Is(err, user.ErrValidation), errors.Is(err, audit.ErrInvalidQuery), errors.Is(err, errBadRequest):
		return http.StatusBadRequest, err.Error()
	default:
		return http.StatusInternalServerError, "Internal server error"
	}
}

var errBadRequest = errors.New("bad request")
