package game

import (
	"time"

	"detective_game/internal/domain"
)

// Settings holds the timing and sizing knobs of a cycle.
type Settings struct {
	RegistrationDuration  time.Duration
	GameDuration          time.Duration
	MatchDuration         time.Duration
	SimultaneousMatches   int
	MaxPlayers            int
	RegistrationExtension time.Duration
	GameExtension         time.Duration
	MaxOverrun            time.Duration
	RoundGrace            time.Duration
	VoteRetention         time.Duration
	MaxRepeats            int
	DefaultVote           domain.OpponentKind
}

// DefaultSettings returns the values used when nothing is configured.
func DefaultSettings() Settings {
	return Settings{
		RegistrationDuration:  10 * time.Minute,
		GameDuration:          30 * time.Minute,
		MatchDuration:         time.Minute,
		SimultaneousMatches:   2,
		MaxPlayers:            50,
		RegistrationExtension: 30 * time.Second,
		GameExtension:         30 * time.Second,
		MaxOverrun:            5 * time.Minute,
		RoundGrace:            5 * time.Second,
		VoteRetention:         30 * time.Second,
		MaxRepeats:            2,
		DefaultVote:           domain.KindReal,
	}
}
