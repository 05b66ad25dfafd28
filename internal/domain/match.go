package domain

import "time"

// OpponentKind is the true nature of an opponent. Votes use the same values.
type OpponentKind string

const (
	KindReal OpponentKind = "REAL"
	KindBot  OpponentKind = "BOT"
)

// Valid reports whether k is REAL or BOT.
func (k OpponentKind) Valid() bool {
	return k == KindReal || k == KindBot
}

// ChatMessage - сообщение внутри матча
type ChatMessage struct {
	ID        string    `json:"id"`
	SenderFID int64     `json:"sender_fid"`
	Text      string    `json:"text"`
	SentAt    time.Time `json:"sent_at"`
}

// VoteChange - одна отправка голоса
type VoteChange struct {
	Vote OpponentKind `json:"vote"`
	At   time.Time    `json:"at"`
}

// Match - одна переписка игрока с соперником внутри раунда
type Match struct {
	ID           string        `json:"id"`
	CycleID      string        `json:"cycle_id"`
	PlayerFID    int64         `json:"player_fid"`
	OpponentFID  int64         `json:"opponent_fid"`
	OpponentKind OpponentKind  `json:"opponent_kind"`
	StartTime    time.Time     `json:"start_time"`
	EndTime      time.Time     `json:"end_time"`
	SlotNumber   int           `json:"slot_number"`
	RoundNumber  int           `json:"round_number"`
	Messages     []ChatMessage `json:"messages"`
	CurrentVote  *OpponentKind `json:"current_vote,omitempty"`
	VoteHistory  []VoteChange  `json:"vote_history"`
	VoteLocked   bool          `json:"vote_locked"`
	IsFinished   bool          `json:"is_finished"`
	LockedAt     *time.Time    `json:"locked_at,omitempty"`
}

// Ended reports whether the match window is over at now.
func (m *Match) Ended(now time.Time) bool {
	return now.After(m.EndTime)
}

// Participant reports whether fid may chat in the match.
func (m *Match) Participant(fid int64) bool {
	if fid == m.PlayerFID {
		return true
	}
	return m.OpponentKind == KindReal && fid == m.OpponentFID
}

// VoteRecord - итог матча, добавляется игроку при блокировке голоса
type VoteRecord struct {
	MatchID        string       `json:"match_id"`
	OpponentFID    int64        `json:"opponent_fid"`
	OpponentKind   OpponentKind `json:"opponent_kind"`
	Vote           OpponentKind `json:"vote"`
	Correct        bool         `json:"correct"`
	SpeedMs        int64        `json:"speed_ms"`
	VoteChanges    int          `json:"vote_changes"`
	Forfeit        bool         `json:"forfeit,omitempty"`
	PayoutEligible bool         `json:"payout_eligible,omitempty"`
	LockedAt       time.Time    `json:"locked_at"`
}
