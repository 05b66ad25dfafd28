package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"detective_game/internal/domain"
	"detective_game/internal/http/middleware"
	"detective_game/internal/logger"
	"detective_game/internal/service"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	Game  *service.GameService
	Audit *service.AuditService
}

func NewHandler(game *service.GameService, audit *service.AuditService) *Handler {
	return &Handler{Game: game, Audit: audit}
}

// getFID извлекает fid из контекста Gin
func getFID(c *gin.Context) (int64, bool) {
	fid, ok := middleware.FID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
	}
	return fid, ok
}

// respondError maps service errors to HTTP statuses.
func respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrInvalidPhase),
		errors.Is(err, domain.ErrAlreadyLocked),
		errors.Is(err, domain.ErrCapacityExceeded),
		errors.Is(err, domain.ErrMatchEnded):
		status = http.StatusConflict
	case errors.Is(err, domain.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrForbidden):
		status = http.StatusForbidden
	case errors.Is(err, domain.ErrInvalidVote), errors.Is(err, domain.ErrInvalidMessage):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrBusy):
		c.Header("Retry-After", "1")
		status = http.StatusServiceUnavailable
	case errors.Is(err, domain.ErrStoreUnavailable):
		status = http.StatusServiceUnavailable
	}

	if status >= http.StatusInternalServerError && !errors.Is(err, domain.ErrBusy) {
		logger.Error("request failed", "path", c.FullPath(), "error", err)
	}
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "internal error"
	} else if errors.Is(err, domain.ErrBusy) {
		msg = domain.ErrBusy.Error()
	} else if status == http.StatusServiceUnavailable {
		msg = domain.ErrStoreUnavailable.Error()
	}
	c.JSON(status, gin.H{"error": msg})
}

func queryLimit(c *gin.Context, def, ceiling int) int {
	n, err := strconv.Atoi(c.Query("limit"))
	if err != nil || n <= 0 {
		return def
	}
	if n > ceiling {
		return ceiling
	}
	return n
}
