package game

// SlotsPerRound is the number of concurrent matches a player gets per round.
func SlotsPerRound(pool int, s Settings) int {
	n := s.SimultaneousMatches
	if n < 1 {
		n = 1
	}
	if pool < n {
		return pool
	}
	return n
}

// MaxRounds returns how many rounds a player with pool candidates may play.
// It is bounded by the game clock and by how often each candidate may repeat.
func MaxRounds(pool int, s Settings) int {
	if pool < 1 {
		return 0
	}

	byTime := 1
	if roundLen := s.MatchDuration + s.RoundGrace; roundLen > 0 {
		byTime = int(s.GameDuration / roundLen)
	}
	if byTime < 1 {
		byTime = 1
	}

	repeats := s.MaxRepeats
	if repeats < 1 {
		repeats = 1
	}
	perRound := SlotsPerRound(pool, s)
	byPool := (pool*repeats + perRound - 1) / perRound

	return min(byTime, byPool)
}
