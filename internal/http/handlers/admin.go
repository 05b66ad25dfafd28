package handlers

import (
	"net/http"
	"strings"

	"detective_game/internal/domain"

	"github.com/gin-gonic/gin"
)

// ForcePhase moves the cycle forward immediately
func (h *Handler) ForcePhase(c *gin.Context) {
	fid, ok := getFID(c)
	if !ok {
		return
	}
	var req struct {
		Phase string `json:"phase" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad request"})
		return
	}

	st, err := h.Game.ForcePhase(c.Request.Context(), fid, domain.Phase(strings.ToUpper(req.Phase)))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

// ResetCycle discards the current cycle and opens a new registration
func (h *Handler) ResetCycle(c *gin.Context) {
	fid, ok := getFID(c)
	if !ok {
		return
	}
	st, err := h.Game.ResetCycle(c.Request.Context(), fid)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

// AuditLogs returns recent admin actions, optionally for one cycle
func (h *Handler) AuditLogs(c *gin.Context) {
	limit := queryLimit(c, 50, 500)
	var (
		logs []*domain.AuditLog
		err  error
	)
	if cycleID := c.Query("cycle_id"); cycleID != "" {
		logs, err = h.Audit.GetCycleLogs(c.Request.Context(), cycleID, limit)
	} else {
		logs, err = h.Audit.GetRecentLogs(c.Request.Context(), limit)
	}
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"logs": logs})
}
