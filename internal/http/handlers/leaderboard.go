package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// GetLeaderboard returns the live ranking, or the frozen one once the cycle
// is finished
func (h *Handler) GetLeaderboard(c *gin.Context) {
	lb, err := h.Game.GetLeaderboard(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, lb)
}

// LeaderboardHistory lists archived cycles
func (h *Handler) LeaderboardHistory(c *gin.Context) {
	cycles, err := h.Game.ListArchivedCycles(c.Request.Context(), queryLimit(c, 20, 100))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"cycles": cycles})
}

// ArchivedLeaderboard returns the frozen leaderboard of a past cycle
func (h *Handler) ArchivedLeaderboard(c *gin.Context) {
	lb, err := h.Game.GetArchivedLeaderboard(c.Request.Context(), c.Param("cycleId"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, lb)
}
