package game

import "detective_game/internal/domain"

const (
	humanityMinAccuracy = 60
	minHumanLatencyMs   = 500
	maxHumanLatencyMs   = 240_000
)

// VerifyHumanity checks the humanity threshold: better than 60% accuracy and
// an average response time that is neither scripted-fast nor abandoned-slow.
func VerifyHumanity(correct, total int, avgResponseMs int64) bool {
	if total == 0 {
		return false
	}
	accuracy := correct * 100 / total
	return accuracy > humanityMinAccuracy &&
		avgResponseMs > minHumanLatencyMs &&
		avgResponseMs < maxHumanLatencyMs
}

// DeceptionRating is the percentage of interactions in which a bot was taken for a human.
func DeceptionRating(fooled, total int) int {
	if total == 0 {
		return 0
	}
	return fooled * 100 / total
}

// PlayerHumanity applies VerifyHumanity to a player's history. Forfeits
// count against accuracy but not towards response time.
func PlayerHumanity(p *domain.Player) bool {
	correct, answered := 0, 0
	var totalMs int64
	for _, r := range p.VoteHistory {
		if r.Correct {
			correct++
		}
		if !r.Forfeit {
			answered++
			totalMs += r.SpeedMs
		}
	}
	if answered == 0 {
		return false
	}
	return VerifyHumanity(correct, len(p.VoteHistory), totalMs/int64(answered))
}
