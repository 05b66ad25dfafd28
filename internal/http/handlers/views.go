package handlers

import (
	"time"

	"detective_game/internal/domain"
)

// MatchView is a match as its owner sees it. The opponent's kind is only
// revealed once the vote is locked.
type MatchView struct {
	ID           string               `json:"id"`
	OpponentFID  int64                `json:"opponent_fid"`
	OpponentKind domain.OpponentKind  `json:"opponent_kind,omitempty"`
	StartTime    time.Time            `json:"start_time"`
	EndTime      time.Time            `json:"end_time"`
	SlotNumber   int                  `json:"slot_number"`
	RoundNumber  int                  `json:"round_number"`
	Messages     []domain.ChatMessage `json:"messages"`
	CurrentVote  *domain.OpponentKind `json:"current_vote,omitempty"`
	VoteHistory  []domain.VoteChange  `json:"vote_history"`
	VoteLocked   bool                 `json:"vote_locked"`
	Correct      *bool                `json:"correct,omitempty"`
}

func ownerView(m *domain.Match) MatchView {
	v := MatchView{
		ID:          m.ID,
		OpponentFID: m.OpponentFID,
		StartTime:   m.StartTime,
		EndTime:     m.EndTime,
		SlotNumber:  m.SlotNumber,
		RoundNumber: m.RoundNumber,
		Messages:    nonNilMessages(m.Messages),
		CurrentVote: m.CurrentVote,
		VoteHistory: m.VoteHistory,
		VoteLocked:  m.VoteLocked,
	}
	if v.VoteHistory == nil {
		v.VoteHistory = []domain.VoteChange{}
	}
	if m.VoteLocked {
		v.OpponentKind = m.OpponentKind
		if m.CurrentVote != nil {
			correct := *m.CurrentVote == m.OpponentKind
			v.Correct = &correct
		}
	}
	return v
}

// InboundView is a REAL match seen from the human being judged. The
// owner's votes are not shown.
type InboundView struct {
	ID        string               `json:"id"`
	PlayerFID int64                `json:"player_fid"`
	StartTime time.Time            `json:"start_time"`
	EndTime   time.Time            `json:"end_time"`
	Messages  []domain.ChatMessage `json:"messages"`
	Ended     bool                 `json:"ended"`
}

func inboundView(m *domain.Match) InboundView {
	return InboundView{
		ID:        m.ID,
		PlayerFID: m.PlayerFID,
		StartTime: m.StartTime,
		EndTime:   m.EndTime,
		Messages:  nonNilMessages(m.Messages),
		Ended:     m.VoteLocked,
	}
}

func nonNilMessages(ms []domain.ChatMessage) []domain.ChatMessage {
	if ms == nil {
		return []domain.ChatMessage{}
	}
	return ms
}
