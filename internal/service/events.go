package service

import (
	"context"
	"strconv"
	"time"

	"detective_game/internal/domain"
	"detective_game/internal/logger"
)

// Event types published to clients.
const (
	EventRoundStart  = "round_start"
	EventRoundEnd    = "round_end"
	EventMatchStart  = "match_start"
	EventMatchEnd    = "match_end"
	EventVoteLocked  = "vote_locked"
	EventPhaseChange = "phase_change"
	EventMessage     = "message"
)

// ChannelGame carries cycle-wide events.
const ChannelGame = "game"

// PlayerChannel carries the events of one player.
func PlayerChannel(fid int64) string {
	return "player:" + strconv.FormatInt(fid, 10)
}

type RoundStartPayload struct {
	Round     int       `json:"round"`
	MaxRounds int       `json:"max_rounds"`
	MatchIDs  []string  `json:"match_ids"`
	EndsAt    time.Time `json:"ends_at"`
}

type RoundEndPayload struct {
	Round     int  `json:"round"`
	Completed bool `json:"completed"`
}

type MatchPayload struct {
	MatchID     string    `json:"match_id"`
	Round       int       `json:"round"`
	Slot        int       `json:"slot"`
	OpponentFID int64     `json:"opponent_fid"`
	EndsAt      time.Time `json:"ends_at"`
}

type VoteLockedPayload struct {
	MatchID string              `json:"match_id"`
	Vote    domain.OpponentKind `json:"vote"`
	Correct bool                `json:"correct"`
	Forfeit bool                `json:"forfeit"`
}

type PhaseChangePayload struct {
	CycleID      string       `json:"cycle_id"`
	Phase        domain.Phase `json:"phase"`
	StateVersion int64        `json:"state_version"`
}

type MessagePayload struct {
	MatchID string             `json:"match_id"`
	Message domain.ChatMessage `json:"message"`
}

// publish never fails the caller; delivery is best effort.
func (s *GameService) publish(ctx context.Context, channel, eventType string, payload any) {
	if s.pub == nil {
		return
	}
	if err := s.pub.Publish(ctx, channel, eventType, payload); err != nil {
		logger.Warn("publish failed", "channel", channel, "event", eventType, "error", err)
	}
}
