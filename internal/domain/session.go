package domain

import (
	"fmt"
	"time"
)

// OpponentKey identifies one candidate of the opponent pool. A player and
// their bot share a fid, so the kind is part of the key.
func OpponentKey(fid int64, kind OpponentKind) string {
	return fmt.Sprintf("%d:%s", fid, kind)
}

// PlayerSession - состояние игрока по раундам внутри цикла
type PlayerSession struct {
	FID               int64
	ActiveMatches     map[int]string
	RoundMatches      map[int]string
	CompletedMatchIDs map[string]struct{}
	FacedOpponents    map[string]int
	CurrentRound      int
	MaxRounds         int
	NextRoundStartAt  time.Time
}

// NewPlayerSession creates an empty session for fid.
func NewPlayerSession(fid int64, maxRounds int) *PlayerSession {
	return &PlayerSession{
		FID:               fid,
		ActiveMatches:     make(map[int]string),
		RoundMatches:      make(map[int]string),
		CompletedMatchIDs: make(map[string]struct{}),
		FacedOpponents:    make(map[string]int),
		MaxRounds:         maxRounds,
	}
}

// Completed reports whether the player has played every round available to them.
func (s *PlayerSession) Completed() bool {
	return s.CurrentRound > s.MaxRounds
}

// Assigned returns the number of matches ever assigned in this session.
func (s *PlayerSession) Assigned() int {
	n := 0
	for _, c := range s.FacedOpponents {
		n += c
	}
	return n
}

// Complete moves a match out of the active slots.
func (s *PlayerSession) Complete(matchID string) {
	for slot, id := range s.ActiveMatches {
		if id == matchID {
			delete(s.ActiveMatches, slot)
		}
	}
	s.CompletedMatchIDs[matchID] = struct{}{}
}
