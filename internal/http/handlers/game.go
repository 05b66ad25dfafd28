package handlers

import (
	"net/http"

	"detective_game/internal/domain"
	"detective_game/internal/service"

	"github.com/gin-gonic/gin"
)

// GameState returns the current cycle
func (h *Handler) GameState(c *gin.Context) {
	st, err := h.Game.GetGameState(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

type registerRequest struct {
	Username        string              `json:"username" binding:"required"`
	DisplayName     string              `json:"display_name"`
	PfpURL          string              `json:"pfp_url"`
	Bio             string              `json:"bio"`
	Corpus          []string            `json:"corpus"`
	StyleDescriptor string              `json:"style_descriptor"`
	Personality     *domain.Personality `json:"personality"`
}

// Register joins the caller to the current cycle
func (h *Handler) Register(c *gin.Context) {
	fid, ok := getFID(c)
	if !ok {
		return
	}

	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad request"})
		return
	}

	p, err := h.Game.RegisterPlayer(c.Request.Context(), service.RegisterRequest{
		Profile: domain.Profile{
			FID:         fid,
			Username:    req.Username,
			DisplayName: req.DisplayName,
			PfpURL:      req.PfpURL,
			Bio:         req.Bio,
		},
		Corpus:          req.Corpus,
		StyleDescriptor: req.StyleDescriptor,
		Personality:     req.Personality,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"fid":           p.FID,
		"profile":       p.Profile,
		"registered_at": p.RegisteredAt,
	})
}
