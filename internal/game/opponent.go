package game

import (
	"math/rand"
	"sort"

	"detective_game/internal/domain"
)

// target share of bot opponents
const (
	botShareLow  = 0.4
	botShareHigh = 0.6
)

// Candidate is one possible opponent: a real player or a bot.
type Candidate struct {
	FID  int64
	Kind domain.OpponentKind
}

// Key is the facedOpponents key of the candidate.
func (c Candidate) Key() string {
	return domain.OpponentKey(c.FID, c.Kind)
}

// Candidates builds the pool for fid: every other player and every other bot.
// The requester and their own bot share fid and are both left out.
func Candidates(fid int64, playerFIDs, botFIDs []int64) []Candidate {
	pool := make([]Candidate, 0, len(playerFIDs)+len(botFIDs))
	for _, p := range playerFIDs {
		if p != fid {
			pool = append(pool, Candidate{FID: p, Kind: domain.KindReal})
		}
	}
	for _, b := range botFIDs {
		if b != fid {
			pool = append(pool, Candidate{FID: b, Kind: domain.KindBot})
		}
	}
	sort.Slice(pool, func(i, j int) bool {
		if pool[i].FID != pool[j].FID {
			return pool[i].FID < pool[j].FID
		}
		return pool[i].Kind < pool[j].Kind
	})
	return pool
}

// SelectOpponents picks up to n distinct opponents for the next round.
//
// Nobody is repeated until every candidate has been faced; after that each
// candidate may be faced assigned/len(pool)+1 times. Among the least-faced
// candidates it prefers people not already picked this round, then the kind
// that is under-represented against the 40-60% bot target.
func SelectOpponents(faced map[string]int, pool []Candidate, n int, rng *rand.Rand) []Candidate {
	if n <= 0 || len(pool) == 0 {
		return nil
	}

	counts := make(map[string]int, len(pool))
	assigned := 0
	for _, c := range pool {
		counts[c.Key()] = faced[c.Key()]
		assigned += faced[c.Key()]
	}

	order := make([]Candidate, len(pool))
	for i, j := range rng.Perm(len(pool)) {
		order[i] = pool[j]
	}

	picked := make([]Candidate, 0, n)
	usedKey := make(map[string]bool, n)
	usedFID := make(map[int64]bool, n)

	for len(picked) < n {
		allowance := assigned/len(pool) + 1

		var eligible []Candidate
		for _, c := range order {
			if !usedKey[c.Key()] && counts[c.Key()] < allowance {
				eligible = append(eligible, c)
			}
		}
		if len(eligible) == 0 {
			break
		}

		tier := leastFaced(eligible, counts)
		if fresh := filter(tier, func(c Candidate) bool { return !usedFID[c.FID] }); len(fresh) > 0 {
			tier = fresh
		}
		if want, ok := preferredKind(pool, counts); ok {
			if pref := filter(tier, func(c Candidate) bool { return c.Kind == want }); len(pref) > 0 {
				tier = pref
			}
		}

		choice := tier[0]
		picked = append(picked, choice)
		usedKey[choice.Key()] = true
		usedFID[choice.FID] = true
		counts[choice.Key()]++
		assigned++
	}

	return picked
}

func leastFaced(cands []Candidate, counts map[string]int) []Candidate {
	lowest := -1
	for _, c := range cands {
		if n := counts[c.Key()]; lowest < 0 || n < lowest {
			lowest = n
		}
	}
	return filter(cands, func(c Candidate) bool { return counts[c.Key()] == lowest })
}

func preferredKind(pool []Candidate, counts map[string]int) (domain.OpponentKind, bool) {
	bots, total := 0, 0
	for _, c := range pool {
		n := counts[c.Key()]
		total += n
		if c.Kind == domain.KindBot {
			bots += n
		}
	}
	if total == 0 {
		return "", false
	}
	share := float64(bots) / float64(total)
	switch {
	case share < botShareLow:
		return domain.KindBot, true
	case share > botShareHigh:
		return domain.KindReal, true
	}
	return "", false
}

func filter(cands []Candidate, keep func(Candidate) bool) []Candidate {
	var out []Candidate
	for _, c := range cands {
		if keep(c) {
			out = append(out, c)
		}
	}
	return out
}
