package repository

import (
	"fmt"
	"sort"
	"time"

	"detective_game/internal/domain"
)

type slotEntry struct {
	Slot    int    `json:"slot"`
	MatchID string `json:"match_id"`
}

type facedEntry struct {
	Key   string `json:"key"`
	Count int    `json:"count"`
}

// sessionRecord is the stored form of a PlayerSession. Maps are flattened into
// sorted lists so equal sessions encode to equal bytes.
type sessionRecord struct {
	FID               int64        `json:"fid"`
	ActiveMatches     []slotEntry  `json:"active_matches"`
	RoundMatches      []slotEntry  `json:"round_matches"`
	CompletedMatchIDs []string     `json:"completed_match_ids"`
	FacedOpponents    []facedEntry `json:"faced_opponents"`
	CurrentRound      int          `json:"current_round"`
	MaxRounds         int          `json:"max_rounds"`
	NextRoundStartAt  time.Time    `json:"next_round_start_at"`
}

func slotsOf(m map[int]string) []slotEntry {
	res := make([]slotEntry, 0, len(m))
	for slot, id := range m {
		res = append(res, slotEntry{Slot: slot, MatchID: id})
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Slot < res[j].Slot })
	return res
}

func encodeSession(s *domain.PlayerSession) sessionRecord {
	rec := sessionRecord{
		FID:               s.FID,
		ActiveMatches:     slotsOf(s.ActiveMatches),
		RoundMatches:      slotsOf(s.RoundMatches),
		CompletedMatchIDs: make([]string, 0, len(s.CompletedMatchIDs)),
		FacedOpponents:    make([]facedEntry, 0, len(s.FacedOpponents)),
		CurrentRound:      s.CurrentRound,
		MaxRounds:         s.MaxRounds,
		NextRoundStartAt:  s.NextRoundStartAt,
	}
	for id := range s.CompletedMatchIDs {
		rec.CompletedMatchIDs = append(rec.CompletedMatchIDs, id)
	}
	sort.Strings(rec.CompletedMatchIDs)
	for k, n := range s.FacedOpponents {
		rec.FacedOpponents = append(rec.FacedOpponents, facedEntry{Key: k, Count: n})
	}
	sort.Slice(rec.FacedOpponents, func(i, j int) bool {
		return rec.FacedOpponents[i].Key < rec.FacedOpponents[j].Key
	})
	return rec
}

func decodeSession(rec *sessionRecord) (*domain.PlayerSession, error) {
	if rec.CurrentRound < 0 || rec.MaxRounds < 0 {
		return nil, fmt.Errorf("negative round counters")
	}
	s := domain.NewPlayerSession(rec.FID, rec.MaxRounds)
	s.CurrentRound = rec.CurrentRound
	s.NextRoundStartAt = rec.NextRoundStartAt
	for _, e := range rec.ActiveMatches {
		if e.MatchID == "" || e.Slot < 0 {
			return nil, fmt.Errorf("bad active slot %d", e.Slot)
		}
		s.ActiveMatches[e.Slot] = e.MatchID
	}
	for _, e := range rec.RoundMatches {
		if e.MatchID == "" || e.Slot < 0 {
			return nil, fmt.Errorf("bad round slot %d", e.Slot)
		}
		s.RoundMatches[e.Slot] = e.MatchID
	}
	for _, id := range rec.CompletedMatchIDs {
		s.CompletedMatchIDs[id] = struct{}{}
	}
	for _, e := range rec.FacedOpponents {
		if e.Count < 0 {
			return nil, fmt.Errorf("negative faced count for %s", e.Key)
		}
		s.FacedOpponents[e.Key] = e.Count
	}
	return s, nil
}
