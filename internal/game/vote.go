package game

import (
	"time"

	"detective_game/internal/domain"
)

// ResolveVote returns the vote used at lock time: the most recent submitted
// one, or def when nothing was submitted (a forfeit).
func ResolveVote(m *domain.Match, def domain.OpponentKind) (domain.OpponentKind, bool) {
	if n := len(m.VoteHistory); n > 0 {
		return m.VoteHistory[n-1].Vote, false
	}
	if m.CurrentVote != nil {
		return *m.CurrentVote, false
	}
	return def, true
}

// BuildVoteRecord computes the immutable outcome of m locked at now.
func BuildVoteRecord(m *domain.Match, def domain.OpponentKind, now time.Time) domain.VoteRecord {
	vote, forfeit := ResolveVote(m, def)

	speed := m.EndTime.Sub(m.StartTime)
	if n := len(m.VoteHistory); n > 0 {
		speed = m.VoteHistory[n-1].At.Sub(m.StartTime)
	}
	if speed < 0 {
		speed = 0
	}

	return domain.VoteRecord{
		MatchID:      m.ID,
		OpponentFID:  m.OpponentFID,
		OpponentKind: m.OpponentKind,
		Vote:         vote,
		Correct:      vote == m.OpponentKind,
		SpeedMs:      speed.Milliseconds(),
		VoteChanges:  len(m.VoteHistory),
		Forfeit:      forfeit,
		LockedAt:     now,
	}
}
