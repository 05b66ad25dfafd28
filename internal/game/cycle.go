package game

import (
	"time"

	"detective_game/internal/domain"
)

// Transition describes what Advance did to a cycle.
type Transition int

const (
	TransitionNone Transition = iota
	TransitionRegistrationExtended
	TransitionToLive
	TransitionGameExtended
	TransitionToFinished
)

func (t Transition) String() string {
	switch t {
	case TransitionRegistrationExtended:
		return "registration_extended"
	case TransitionToLive:
		return "to_live"
	case TransitionGameExtended:
		return "game_extended"
	case TransitionToFinished:
		return "to_finished"
	}
	return "none"
}

// PhaseChange reports whether the transition moves the cycle to another phase.
func (t Transition) PhaseChange() bool {
	return t == TransitionToLive || t == TransitionToFinished
}

// CycleStats is what Advance needs to know about the pool and the sessions.
type CycleStats struct {
	Players int
	Bots    int
	// SessionsComplete is true when every existing session is past its max rounds.
	SessionsComplete bool
}

// AvailableOpponents excludes a player and their own bot from the pool.
func AvailableOpponents(players, bots int) int {
	return players + bots - 2
}

// NewCycle opens registration at now.
func NewCycle(id string, now time.Time, s Settings) domain.GameCycle {
	regEnd := now.Add(s.RegistrationDuration)
	gameEnd := regEnd.Add(s.GameDuration)
	return domain.GameCycle{
		CycleID:             id,
		Phase:               domain.PhaseRegistration,
		RegistrationEndsAt:  regEnd,
		GameEndsAt:          gameEnd,
		ScheduledGameEndsAt: gameEnd,
		CreatedAt:           now,
	}
}

// Due reports whether the cycle's current deadline has passed, i.e. whether
// Advance would do anything at now.
func Due(now time.Time, c domain.GameCycle) bool {
	switch c.Phase {
	case domain.PhaseRegistration:
		return now.After(c.RegistrationEndsAt)
	case domain.PhaseLive:
		return now.After(c.GameEndsAt)
	}
	return false
}

// Advance applies the deadline rules to c. An unsatisfied transition is not
// an error: the deadline is re-armed and the phase stays.
func Advance(now time.Time, c domain.GameCycle, stats CycleStats, s Settings) (domain.GameCycle, Transition) {
	if !Due(now, c) {
		return c, TransitionNone
	}

	switch c.Phase {
	case domain.PhaseRegistration:
		if AvailableOpponents(stats.Players, stats.Bots) < 1 {
			c.RegistrationEndsAt = now.Add(s.RegistrationExtension)
			return c, TransitionRegistrationExtended
		}
		return StartLive(now, c, s), TransitionToLive

	case domain.PhaseLive:
		overrun := now.After(c.ScheduledGameEndsAt.Add(s.MaxOverrun))
		if stats.SessionsComplete || overrun {
			return Finish(now, c), TransitionToFinished
		}
		c.GameEndsAt = now.Add(s.GameExtension)
		return c, TransitionGameExtended
	}

	return c, TransitionNone
}

// StartLive moves c to LIVE at now; the game clock starts from now.
func StartLive(now time.Time, c domain.GameCycle, s Settings) domain.GameCycle {
	c.Phase = domain.PhaseLive
	liveAt := now
	c.LiveAt = &liveAt
	if c.RegistrationEndsAt.After(now) {
		c.RegistrationEndsAt = now
	}
	c.GameEndsAt = now.Add(s.GameDuration)
	c.ScheduledGameEndsAt = c.GameEndsAt
	return c
}

// Finish moves c to FINISHED at now.
func Finish(now time.Time, c domain.GameCycle) domain.GameCycle {
	c.Phase = domain.PhaseFinished
	finishedAt := now
	c.FinishedAt = &finishedAt
	if c.GameEndsAt.After(now) {
		c.GameEndsAt = now
	}
	return c
}

// CanTransition reports whether from → to moves forward. Phases never go back.
func CanTransition(from, to domain.Phase) bool {
	return from.Valid() && to.Valid() && to.Order() > from.Order()
}

// Force moves c directly to phase, running the intermediate steps.
func Force(now time.Time, c domain.GameCycle, phase domain.Phase, s Settings) (domain.GameCycle, bool) {
	if !CanTransition(c.Phase, phase) {
		return c, false
	}
	if c.Phase == domain.PhaseRegistration {
		c = StartLive(now, c, s)
	}
	if phase == domain.PhaseFinished {
		c = Finish(now, c)
	}
	return c, true
}
