package domain

import "time"

// Phase - фаза игрового цикла
type Phase string

const (
	PhaseRegistration Phase = "REGISTRATION"
	PhaseLive         Phase = "LIVE"
	PhaseFinished     Phase = "FINISHED"
)

// Order returns the position of the phase in the cycle. Unknown phases return -1.
func (p Phase) Order() int {
	switch p {
	case PhaseRegistration:
		return 0
	case PhaseLive:
		return 1
	case PhaseFinished:
		return 2
	}
	return -1
}

// Valid reports whether p is one of the known phases.
func (p Phase) Valid() bool {
	return p.Order() >= 0
}

// GameCycle - один полный цикл игры: регистрация → игра → финиш
type GameCycle struct {
	CycleID            string     `json:"cycle_id"`
	Phase              Phase      `json:"phase"`
	RegistrationEndsAt time.Time  `json:"registration_ends_at"`
	GameEndsAt         time.Time  `json:"game_ends_at"`
	CreatedAt          time.Time  `json:"created_at"`
	LiveAt             *time.Time `json:"live_at,omitempty"`
	FinishedAt         *time.Time `json:"finished_at,omitempty"`

	// ScheduledGameEndsAt is the end of the game before any extension. The
	// overrun ceiling is measured from it.
	ScheduledGameEndsAt time.Time `json:"scheduled_game_ends_at"`

	// StateVersion is the shared state version claimed by the last phase change.
	StateVersion int64 `json:"state_version"`
}

// GameState is the public snapshot of the running cycle.
type GameState struct {
	CycleID            string    `json:"cycle_id"`
	Phase              Phase     `json:"phase"`
	RegistrationEndsAt time.Time `json:"registration_ends_at"`
	GameEndsAt         time.Time `json:"game_ends_at"`
	PlayerCount        int       `json:"player_count"`
	StateVersion       int64     `json:"state_version"`
}
