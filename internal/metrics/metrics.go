package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	PhaseTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "detective_phase_transitions_total",
			Help: "Cycle transitions applied by this instance",
		},
		[]string{"transition"},
	)
	MatchesCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "detective_matches_created_total",
			Help: "Matches created, by opponent kind",
		},
		[]string{"kind"},
	)
	VotesLocked = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "detective_votes_locked_total",
			Help: "Votes locked, by outcome",
		},
		[]string{"outcome"},
	)
	LockContention = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "detective_lock_contention_total",
			Help: "Match lock acquisitions that found the lock held",
		},
		[]string{"operation"},
	)
	VersionConflicts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "detective_version_conflicts_total",
			Help: "State version increments lost to another instance",
		},
	)
	OrphanedClaims = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "detective_orphaned_claims_total",
			Help: "Claimed state versions whose cycle write was taken over",
		},
	)
	CacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "detective_cache_lookups_total",
			Help: "Cache lookups by collection and result",
		},
		[]string{"collection", "result"},
	)
)

func init() {
	prometheus.MustRegister(PhaseTransitions)
	prometheus.MustRegister(MatchesCreated)
	prometheus.MustRegister(VotesLocked)
	prometheus.MustRegister(LockContention)
	prometheus.MustRegister(VersionConflicts)
	prometheus.MustRegister(OrphanedClaims)
	prometheus.MustRegister(CacheLookups)
}
