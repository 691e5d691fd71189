package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/wfunc/lobbyserver/auth"
	"github.com/wfunc/lobbyserver/lobby"
	"github.com/wfunc/lobbyserver/logger"
	"github.com/wfunc/lobbyserver/persistence"
)

const identityKey = "identity"

type errorResponse struct {
	Error string `json:"error"`
}

func bearerAuth(a *auth.Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := auth.BearerToken(c.GetHeader("Authorization"))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse{Error: err.Error()})
			return
		}
		id, err := a.Verify(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse{Error: err.Error()})
			return
		}
		c.Set(identityKey, id)
		c.Next()
	}
}

func identity(c *gin.Context) auth.Identity {
	return c.MustGet(identityKey).(auth.Identity)
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Log.Debugw("http request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"latency", time.Since(start),
			"remote", c.ClientIP(),
		)
	}
}

// statusFor maps an error kind onto an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, lobby.ErrInvalidNumber),
		errors.Is(err, persistence.ErrInvalidUsername):
		return http.StatusBadRequest
	case errors.Is(err, auth.ErrMissingToken),
		errors.Is(err, auth.ErrInvalidToken):
		return http.StatusUnauthorized
	case errors.Is(err, lobby.ErrSessionFull):
		return http.StatusForbidden
	case errors.Is(err, lobby.ErrNoActiveSession),
		errors.Is(err, persistence.ErrRecordNotFound):
		return http.StatusNotFound
	case errors.Is(err, lobby.ErrSessionAlreadyActive),
		errors.Is(err, lobby.ErrCoolingDown),
		errors.Is(err, lobby.ErrAlreadyJoined),
		errors.Is(err, lobby.ErrNotInSession):
		return http.StatusConflict
	case errors.Is(err, lobby.ErrLedgerUnavailable):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func abortWithError(c *gin.Context, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status >= http.StatusInternalServerError {
		logger.Log.Errorw("request failed", "path", c.FullPath(), "error", err)
		if status == http.StatusServiceUnavailable {
			msg = lobby.ErrLedgerUnavailable.Error()
		} else {
			msg = "internal error"
		}
	}
	c.AbortWithStatusJSON(status, errorResponse{Error: msg})
}
