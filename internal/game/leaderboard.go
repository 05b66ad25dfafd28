package game

import (
	"sort"

	"detective_game/internal/domain"
)

// ComputeLeaderboard ranks players by accuracy (desc), then by the average
// speed of their correct votes (asc), and rates every bot that was faced.
func ComputeLeaderboard(cycleID string, players []*domain.Player, final bool) domain.Leaderboard {
	entries := make([]domain.LeaderboardEntry, 0, len(players))
	names := make(map[int64]string, len(players))

	for _, p := range players {
		names[p.FID] = p.Profile.Username

		e := domain.LeaderboardEntry{
			FID:              p.FID,
			Username:         p.Profile.Username,
			Total:            len(p.VoteHistory),
			HumanityVerified: PlayerHumanity(p),
		}
		var correctMs int64
		for _, r := range p.VoteHistory {
			if r.Correct {
				e.Correct++
				correctMs += r.SpeedMs
			}
		}
		if e.Total > 0 {
			e.Accuracy = float64(e.Correct) / float64(e.Total)
		}
		if e.Correct > 0 {
			e.AvgSpeedMs = correctMs / int64(e.Correct)
		}
		entries = append(entries, e)
	}

	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.Accuracy != b.Accuracy {
			return a.Accuracy > b.Accuracy
		}
		if a.AvgSpeedMs != b.AvgSpeedMs {
			return a.AvgSpeedMs < b.AvgSpeedMs
		}
		return a.FID < b.FID
	})
	for i := range entries {
		entries[i].Rank = i + 1
	}

	return domain.Leaderboard{
		CycleID: cycleID,
		Final:   final,
		Players: entries,
		Bots:    botStandings(players, names),
	}
}

func botStandings(players []*domain.Player, names map[int64]string) []domain.BotStanding {
	byFID := make(map[int64]*domain.BotStanding)
	for _, p := range players {
		for _, r := range p.VoteHistory {
			if r.OpponentKind != domain.KindBot {
				continue
			}
			st, ok := byFID[r.OpponentFID]
			if !ok {
				st = &domain.BotStanding{FID: r.OpponentFID, Username: names[r.OpponentFID]}
				byFID[r.OpponentFID] = st
			}
			st.Interactions++
			if r.Vote == domain.KindReal {
				st.Fooled++
			}
		}
	}

	res := make([]domain.BotStanding, 0, len(byFID))
	for _, st := range byFID {
		st.DeceptionRating = DeceptionRating(st.Fooled, st.Interactions)
		res = append(res, *st)
	}
	sort.Slice(res, func(i, j int) bool {
		if res[i].DeceptionRating != res[j].DeceptionRating {
			return res[i].DeceptionRating > res[j].DeceptionRating
		}
		if res[i].Interactions != res[j].Interactions {
			return res[i].Interactions > res[j].Interactions
		}
		return res[i].FID < res[j].FID
	})
	return res
}
