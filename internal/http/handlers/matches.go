package handlers

import (
	"net/http"
	"strings"

	"detective_game/internal/domain"

	"github.com/gin-gonic/gin"
)

// ActiveMatches returns the caller's matches of the current round
func (h *Handler) ActiveMatches(c *gin.Context) {
	fid, ok := getFID(c)
	if !ok {
		return
	}
	matches, err := h.Game.GetActiveMatches(c.Request.Context(), fid)
	if err != nil {
		respondError(c, err)
		return
	}
	views := make([]MatchView, 0, len(matches))
	for _, m := range matches {
		views = append(views, ownerView(m))
	}
	c.JSON(http.StatusOK, gin.H{"matches": views})
}

// InboundMatches returns the REAL matches in which the caller is the opponent
func (h *Handler) InboundMatches(c *gin.Context) {
	fid, ok := getFID(c)
	if !ok {
		return
	}
	matches, err := h.Game.GetInboundMatches(c.Request.Context(), fid)
	if err != nil {
		respondError(c, err)
		return
	}
	views := make([]InboundView, 0, len(matches))
	for _, m := range matches {
		views = append(views, inboundView(m))
	}
	c.JSON(http.StatusOK, gin.H{"matches": views})
}

// SendMessage appends a chat message to a match
func (h *Handler) SendMessage(c *gin.Context) {
	fid, ok := getFID(c)
	if !ok {
		return
	}
	var req struct {
		Text string `json:"text"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad request"})
		return
	}

	msg, err := h.Game.AppendMessage(c.Request.Context(), fid, c.Param("id"), req.Text)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, msg)
}

// Vote records the caller's current guess
func (h *Handler) Vote(c *gin.Context) {
	fid, ok := getFID(c)
	if !ok {
		return
	}
	var req struct {
		Vote string `json:"vote"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad request"})
		return
	}

	vote := domain.OpponentKind(strings.ToUpper(strings.TrimSpace(req.Vote)))
	m, err := h.Game.SubmitVote(c.Request.Context(), fid, c.Param("id"), vote)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, ownerView(m))
}

// LockVote finalizes the caller's vote
func (h *Handler) LockVote(c *gin.Context) {
	fid, ok := getFID(c)
	if !ok {
		return
	}
	correct, err := h.Game.LockVote(c.Request.Context(), fid, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"match_id": c.Param("id"), "correct": correct})
}
