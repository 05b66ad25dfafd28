package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"detective_game/internal/cache"
	"detective_game/internal/consistency"
	"detective_game/internal/domain"
	"detective_game/internal/game"
	"detective_game/internal/kv"
	"detective_game/internal/logger"
	"detective_game/internal/metrics"
	"detective_game/internal/repository"

	"github.com/google/uuid"
)

const (
	lockAttempts   = 5
	lockRetryDelay = 25 * time.Millisecond
	casAttempts    = 3
)

// Deps wires a GameService. Publisher, Replies, Stake, Archive and Audit are
// optional.
type Deps struct {
	Store     kv.Store
	Repos     *repository.Repositories
	Tracker   *consistency.VersionTracker
	Cache     *cache.Cache
	Publisher Publisher
	Replies   ReplyGenerator
	Stake     StakeVerifier
	Archive   Archive
	Audit     *AuditService
	Settings  game.Settings
	LockTTL   time.Duration
	Now       func() time.Time
	Rand      *rand.Rand
}

// GameService runs one game cycle on top of the shared store. Any number of
// instances may run against the same store.
type GameService struct {
	store    kv.Store
	repos    *repository.Repositories
	tracker  *consistency.VersionTracker
	cache    *cache.Cache
	pub      Publisher
	replies  ReplyGenerator
	stake    StakeVerifier
	archive  Archive
	audit    *AuditService
	settings game.Settings
	lockTTL  time.Duration
	now      func() time.Time

	rngMu sync.Mutex
	rng   *rand.Rand

	bg sync.WaitGroup
}

// NewGameService creates a new game service
func NewGameService(d Deps) *GameService {
	s := &GameService{
		store:    d.Store,
		repos:    d.Repos,
		tracker:  d.Tracker,
		cache:    d.Cache,
		pub:      d.Publisher,
		replies:  d.Replies,
		stake:    d.Stake,
		archive:  d.Archive,
		audit:    d.Audit,
		settings: d.Settings,
		lockTTL:  d.LockTTL,
		now:      d.Now,
		rng:      d.Rand,
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.rng == nil {
		s.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if s.lockTTL <= 0 {
		s.lockTTL = 5 * time.Second
	}
	if s.cache == nil {
		s.cache = cache.New(0)
	}
	c := s.cache
	s.tracker.OnChange(func(int64) { c.InvalidateAll() })
	return s
}

// Settings returns the cycle settings in use.
func (s *GameService) Settings() game.Settings {
	return s.settings
}

// Close waits for background bot replies to finish.
func (s *GameService) Close() {
	s.bg.Wait()
}

func (s *GameService) selectOpponents(faced map[string]int, pool []game.Candidate, n int) []game.Candidate {
	s.rngMu.Lock()
	defer s.rngMu.Unlock()
	return game.SelectOpponents(faced, pool, n, s.rng)
}

// unavailable maps store failures, including lock store failures, to
// ErrStoreUnavailable.
func unavailable(err error) error {
	if err != nil && errors.Is(err, kv.ErrUnavailable) && !errors.Is(err, domain.ErrStoreUnavailable) {
		return fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}
	return err
}

func (s *GameService) loadPlayers(ctx context.Context) ([]*domain.Player, error) {
	return cache.Load(ctx, s.cache, cache.Players, s.tracker.LastSeen(), s.repos.Players.All)
}

func (s *GameService) loadBots(ctx context.Context) ([]*domain.Bot, error) {
	return cache.Load(ctx, s.cache, cache.Bots, s.tracker.LastSeen(), s.repos.Bots.All)
}

func (s *GameService) loadSessions(ctx context.Context) ([]*domain.PlayerSession, error) {
	return cache.Load(ctx, s.cache, cache.Sessions, s.tracker.LastSeen(), s.repos.Sessions.All)
}

func (s *GameService) loadMatches(ctx context.Context) ([]*domain.Match, error) {
	return cache.Load(ctx, s.cache, cache.Matches, s.tracker.LastSeen(), s.repos.Matches.All)
}

// currentCycle returns the cycle after applying any due transition, creating
// the first cycle when none exists.
func (s *GameService) currentCycle(ctx context.Context) (repository.CycleSnapshot, error) {
	if _, _, err := s.tracker.Sync(ctx); err != nil {
		logger.Warn("state version sync failed", "error", err)
	}

	snap, err := s.repos.Cycles.Load(ctx)
	if err != nil {
		return snap, err
	}
	if snap.Cycle == nil {
		return s.createCycle(ctx, snap)
	}
	return s.advance(ctx, snap)
}

// createCycle opens the first cycle. Leftovers of an expired cycle are wiped
// by the holder of the cycle lock, and only while there is still no cycle,
// so a cycle another instance just opened keeps its players.
func (s *GameService) createCycle(ctx context.Context, prev repository.CycleSnapshot) (repository.CycleSnapshot, error) {
	res := prev
	err := kv.WithLockRetry(ctx, s.store, repository.CycleLockKey, s.lockTTL, lockAttempts, lockRetryDelay, func() error {
		cur, err := s.repos.Cycles.Load(ctx)
		if err != nil {
			return err
		}
		if cur.Cycle != nil {
			res = cur
			return nil
		}
		if err := s.repos.Wipe(ctx); err != nil {
			return err
		}
		v, err := s.tracker.Current(ctx)
		if err != nil {
			return err
		}
		c := game.NewCycle(uuid.NewString(), s.now(), s.settings)
		c.StateVersion = v

		next, ok, err := s.repos.Cycles.Swap(ctx, cur, &c)
		if err != nil {
			return err
		}
		s.cache.InvalidateAll()
		if !ok {
			res, err = s.repos.Cycles.Load(ctx)
			return err
		}
		logger.Info("cycle created", "cycle_id", c.CycleID, "registration_ends_at", c.RegistrationEndsAt)
		res = next
		return nil
	})
	if errors.Is(err, kv.ErrLockNotAcquired) {
		return prev, domain.ErrBusy
	}
	if err != nil {
		return prev, unavailable(err)
	}
	return res, nil
}

// claim moves the shared version from expected to expected+1. The claim
// marker goes in first, so anyone who sees the new version also sees that
// its cycle write is in flight until the marker expires. Callers that are
// already behind leave the marker alone; it must expire on its own.
func (s *GameService) claim(ctx context.Context, expected int64) (int64, bool, error) {
	cur, err := s.tracker.Current(ctx)
	if err != nil {
		return 0, false, err
	}
	if cur == expected {
		if _, err := s.store.SetNX(ctx, repository.ClaimKey(expected+1), s.tracker.InstanceID(), s.lockTTL); err != nil {
			return 0, false, unavailable(err)
		}
	}
	return s.tracker.TryIncrementVersion(ctx, expected)
}

// claimBase returns the version a phase change of c claims from. A shared
// version ahead of c without a live claim marker was taken by an instance
// that never wrote the cycle; it is taken over so the cycle keeps moving.
func (s *GameService) claimBase(ctx context.Context, c *domain.GameCycle) int64 {
	cur, err := s.tracker.Current(ctx)
	if err != nil || cur <= c.StateVersion {
		return c.StateVersion
	}
	if _, err := s.store.Get(ctx, repository.ClaimKey(cur)); !errors.Is(err, kv.ErrNil) {
		return c.StateVersion
	}
	logger.Warn("taking over unwritten version claim",
		"cycle_id", c.CycleID,
		"cycle_version", c.StateVersion,
		"state_version", cur,
	)
	metrics.OrphanedClaims.Inc()
	return cur
}

func (s *GameService) stats(ctx context.Context) (game.CycleStats, error) {
	players, err := s.loadPlayers(ctx)
	if err != nil {
		return game.CycleStats{}, err
	}
	bots, err := s.loadBots(ctx)
	if err != nil {
		return game.CycleStats{}, err
	}
	sessions, err := s.loadSessions(ctx)
	if err != nil {
		return game.CycleStats{}, err
	}

	done := make(map[int64]bool, len(sessions))
	for _, sess := range sessions {
		done[sess.FID] = sess.Completed()
	}
	complete := len(players) > 0
	for _, p := range players {
		if !done[p.FID] {
			complete = false
			break
		}
	}
	return game.CycleStats{Players: len(players), Bots: len(bots), SessionsComplete: complete}, nil
}

// advance applies a due deadline. Extensions are plain record swaps; phase
// changes are first claimed through the state version so that only one
// instance runs their side effects.
func (s *GameService) advance(ctx context.Context, snap repository.CycleSnapshot) (repository.CycleSnapshot, error) {
	now := s.now()
	if !game.Due(now, *snap.Cycle) {
		return snap, nil
	}
	st, err := s.stats(ctx)
	if err != nil {
		// deadline stays armed; the next caller retries
		logger.Warn("cycle stats unavailable", "error", err)
		return snap, nil
	}
	next, tr := game.Advance(now, *snap.Cycle, st, s.settings)
	if tr == game.TransitionNone {
		return snap, nil
	}
	expected := snap.Cycle.StateVersion
	if tr.PhaseChange() {
		expected = s.claimBase(ctx, snap.Cycle)
	}
	res, _, err := s.apply(ctx, snap, next, tr, expected)
	return res, err
}

// apply writes next over snap. Phase changes claim expected+1 first; only
// the instance that wins the claim writes the new phase and runs its side
// effects. It reports false when another instance changed the cycle first,
// in which case the fresh cycle is returned.
func (s *GameService) apply(ctx context.Context, snap repository.CycleSnapshot, next domain.GameCycle, tr game.Transition, expected int64) (repository.CycleSnapshot, bool, error) {
	if !tr.PhaseChange() {
		res, ok, err := s.repos.Cycles.Swap(ctx, snap, &next)
		if err != nil {
			return snap, false, err
		}
		if !ok {
			fresh, err := s.repos.Cycles.Load(ctx)
			return fresh, false, err
		}
		metrics.PhaseTransitions.WithLabelValues(tr.String()).Inc()
		logger.Debug("cycle deadline extended", "cycle_id", next.CycleID, "transition", tr.String())
		return res, true, nil
	}

	v, won, err := s.claim(ctx, expected)
	if err != nil {
		return snap, false, err
	}
	if !won {
		fresh, err := s.repos.Cycles.Load(ctx)
		return fresh, false, err
	}
	next.StateVersion = v

	// the claim is ours; keep trying to land it over whatever the record
	// became meanwhile
	cur := snap
	for i := 0; ; i++ {
		res, ok, err := s.repos.Cycles.Swap(ctx, cur, &next)
		if err != nil {
			if i+1 < casAttempts {
				continue
			}
			// claimBase hands the claim to the next caller once the marker expires
			logger.Error("claimed phase change not written",
				"cycle_id", next.CycleID,
				"state_version", v,
				"error", err,
			)
			return cur, false, err
		}
		if ok {
			metrics.PhaseTransitions.WithLabelValues(tr.String()).Inc()
			logger.Info("cycle phase changed",
				"cycle_id", next.CycleID,
				"transition", tr.String(),
				"phase", next.Phase,
				"state_version", next.StateVersion,
			)
			s.cache.InvalidateAll()
			s.onPhaseChange(ctx, res.Cycle)
			return res, true, nil
		}
		fresh, err := s.repos.Cycles.Load(ctx)
		if err != nil {
			return cur, false, err
		}
		if i+1 >= casAttempts || fresh.Cycle == nil || fresh.Cycle.CycleID != next.CycleID || fresh.Cycle.StateVersion >= v {
			return fresh, false, nil
		}
		forced, ok := game.Force(s.now(), *fresh.Cycle, next.Phase, s.settings)
		if !ok {
			return fresh, false, nil
		}
		forced.StateVersion = v
		cur, next = fresh, forced
	}
}

func (s *GameService) onPhaseChange(ctx context.Context, c *domain.GameCycle) {
	if c.Phase == domain.PhaseFinished {
		s.sweepMatches(ctx, true)
		if _, err := s.freezeLeaderboard(ctx, c); err != nil {
			logger.Error("failed to freeze leaderboard", "cycle_id", c.CycleID, "error", err)
		}
	}
	s.publish(ctx, ChannelGame, EventPhaseChange, PhaseChangePayload{
		CycleID:      c.CycleID,
		Phase:        c.Phase,
		StateVersion: c.StateVersion,
	})
}

func (s *GameService) freezeLeaderboard(ctx context.Context, c *domain.GameCycle) (*domain.Leaderboard, error) {
	players, err := s.repos.Players.All(ctx)
	if err != nil {
		return nil, err
	}
	lb := game.ComputeLeaderboard(c.CycleID, players, true)
	written, err := s.repos.Leaderboard.Freeze(ctx, &lb)
	if err != nil {
		return nil, err
	}
	if !written {
		return s.repos.Leaderboard.Get(ctx)
	}
	logger.Info("leaderboard frozen", "cycle_id", c.CycleID, "players", len(lb.Players))
	if s.archive != nil {
		if err := s.archive.SaveLeaderboard(ctx, &lb); err != nil {
			logger.Error("failed to archive leaderboard", "cycle_id", c.CycleID, "error", err)
		} else {
			s.audit.Log(ctx, 0, domain.AuditActionCycleArchived, c.CycleID, map[string]interface{}{
				"players": len(lb.Players),
				"bots":    len(lb.Bots),
			})
		}
	}
	return &lb, nil
}

// GetGameState returns the public view of the current cycle.
func (s *GameService) GetGameState(ctx context.Context) (*domain.GameState, error) {
	snap, err := s.currentCycle(ctx)
	if err != nil {
		return nil, err
	}
	if snap.Cycle == nil {
		return nil, domain.ErrStoreUnavailable
	}
	count, err := s.repos.Players.Count(ctx)
	if err != nil {
		logger.Warn("player count unavailable", "error", err)
	}
	c := snap.Cycle
	return &domain.GameState{
		CycleID:            c.CycleID,
		Phase:              c.Phase,
		RegistrationEndsAt: c.RegistrationEndsAt,
		GameEndsAt:         c.GameEndsAt,
		PlayerCount:        count,
		StateVersion:       c.StateVersion,
	}, nil
}

// RegisterRequest is what a human submits to join the current cycle.
type RegisterRequest struct {
	Profile         domain.Profile
	Corpus          []string
	StyleDescriptor string
	Personality     *domain.Personality
}

// RegisterPlayer adds a player and their bot to the current cycle.
// Registering twice returns the existing player.
func (s *GameService) RegisterPlayer(ctx context.Context, req RegisterRequest) (*domain.Player, error) {
	snap, err := s.currentCycle(ctx)
	if err != nil {
		return nil, err
	}
	if snap.Cycle == nil || snap.Cycle.Phase != domain.PhaseRegistration {
		return nil, domain.ErrInvalidPhase
	}

	fid := req.Profile.FID
	existing, err := s.repos.Players.Get(ctx, fid)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	count, err := s.repos.Players.Count(ctx)
	if err != nil {
		return nil, err
	}
	if s.settings.MaxPlayers > 0 && count >= s.settings.MaxPlayers {
		return nil, domain.ErrCapacityExceeded
	}

	now := s.now()
	p := &domain.Player{
		FID:          fid,
		Profile:      req.Profile,
		IsRegistered: true,
		VoteHistory:  []domain.VoteRecord{},
		LastActiveAt: now,
		RegisteredAt: now,
	}
	created, err := s.repos.Players.Create(ctx, p)
	if err != nil {
		return nil, err
	}
	if !created {
		return s.repos.Players.Get(ctx, fid)
	}

	corpus := req.Corpus
	if len(corpus) == 0 && req.Profile.Bio != "" {
		corpus = []string{req.Profile.Bio}
	}
	bot := &domain.Bot{
		FID:             fid,
		OriginalAuthor:  req.Profile,
		Corpus:          corpus,
		StyleDescriptor: req.StyleDescriptor,
		Personality:     req.Personality,
		CreatedAt:       now,
	}
	if _, err := s.repos.Bots.Create(ctx, bot); err != nil {
		return nil, fmt.Errorf("create bot for %d: %w", fid, err)
	}

	s.cache.Invalidate(cache.Players)
	s.cache.Invalidate(cache.Bots)
	logger.Info("player registered", "fid", fid, "cycle_id", snap.Cycle.CycleID, "players", count+1)
	return p, nil
}

// GetLeaderboard returns the frozen leaderboard once the cycle is finished
// and a live ranking before that.
func (s *GameService) GetLeaderboard(ctx context.Context) (*domain.Leaderboard, error) {
	snap, err := s.currentCycle(ctx)
	if err != nil {
		return nil, err
	}
	if snap.Cycle == nil {
		return &domain.Leaderboard{}, nil
	}
	if snap.Cycle.Phase == domain.PhaseFinished {
		lb, err := s.repos.Leaderboard.Get(ctx)
		if err != nil {
			return nil, err
		}
		if lb != nil {
			return lb, nil
		}
		return s.freezeLeaderboard(ctx, snap.Cycle)
	}

	players, err := s.loadPlayers(ctx)
	if err != nil {
		logger.Warn("leaderboard players unavailable", "error", err)
		players = nil
	}
	lb := game.ComputeLeaderboard(snap.Cycle.CycleID, players, false)
	return &lb, nil
}

// ListArchivedCycles returns finished cycles kept in the archive.
func (s *GameService) ListArchivedCycles(ctx context.Context, limit int) ([]*domain.CycleSummary, error) {
	if s.archive == nil {
		return []*domain.CycleSummary{}, nil
	}
	return s.archive.ListCycles(ctx, limit)
}

// GetArchivedLeaderboard returns the leaderboard of a finished cycle.
func (s *GameService) GetArchivedLeaderboard(ctx context.Context, cycleID string) (*domain.Leaderboard, error) {
	if s.archive == nil {
		return nil, domain.ErrNotFound
	}
	lb, err := s.archive.GetLeaderboard(ctx, cycleID)
	if err != nil {
		return nil, err
	}
	if lb == nil {
		return nil, domain.ErrNotFound
	}
	return lb, nil
}

// ForcePhase moves the cycle forward to phase immediately. Moving backwards
// or staying put is ErrInvalidPhase.
func (s *GameService) ForcePhase(ctx context.Context, adminFID int64, phase domain.Phase) (*domain.GameState, error) {
	if !phase.Valid() {
		return nil, domain.ErrInvalidPhase
	}
	for i := 0; i < casAttempts; i++ {
		snap, err := s.currentCycle(ctx)
		if err != nil {
			return nil, err
		}
		if snap.Cycle == nil {
			return nil, domain.ErrStoreUnavailable
		}
		from := snap.Cycle.Phase
		next, ok := game.Force(s.now(), *snap.Cycle, phase, s.settings)
		if !ok {
			return nil, domain.ErrInvalidPhase
		}
		tr := game.TransitionToLive
		if phase == domain.PhaseFinished {
			tr = game.TransitionToFinished
		}
		// an admin claims the shared version rather than the cycle's, which
		// also repairs a claim whose owner died before writing the cycle
		expected, err := s.tracker.Current(ctx)
		if err != nil {
			return nil, err
		}
		if _, applied, err := s.apply(ctx, snap, next, tr, expected); err != nil {
			return nil, err
		} else if applied {
			s.audit.Log(ctx, adminFID, domain.AuditActionForcePhase, next.CycleID, map[string]interface{}{
				"from": string(from),
				"to":   string(phase),
			})
			return s.GetGameState(ctx)
		}
	}
	return nil, domain.ErrInvalidPhase
}

// ResetCycle discards the current cycle and everything in it and opens a new
// registration.
func (s *GameService) ResetCycle(ctx context.Context, adminFID int64) (*domain.GameState, error) {
	var version int64
	claimed := false
	for i := 0; i < casAttempts && !claimed; i++ {
		cur, err := s.tracker.Current(ctx)
		if err != nil {
			return nil, err
		}
		version, claimed, err = s.claim(ctx, cur)
		if err != nil {
			return nil, err
		}
	}
	if !claimed {
		return nil, fmt.Errorf("reset: %w", domain.ErrStoreUnavailable)
	}

	if err := s.repos.Wipe(ctx); err != nil {
		return nil, err
	}
	s.cache.InvalidateAll()

	var created *domain.GameCycle
	for i := 0; i < casAttempts && created == nil; i++ {
		prev, err := s.repos.Cycles.Load(ctx)
		if err != nil {
			return nil, err
		}
		c := game.NewCycle(uuid.NewString(), s.now(), s.settings)
		c.StateVersion = version
		next, ok, err := s.repos.Cycles.Swap(ctx, prev, &c)
		if err != nil {
			return nil, err
		}
		if ok {
			created = next.Cycle
		}
	}
	if created == nil {
		return nil, fmt.Errorf("reset: %w", domain.ErrStoreUnavailable)
	}

	logger.Info("cycle reset", "cycle_id", created.CycleID, "admin_fid", adminFID, "state_version", version)
	s.audit.Log(ctx, adminFID, domain.AuditActionResetCycle, created.CycleID, nil)
	s.publish(ctx, ChannelGame, EventPhaseChange, PhaseChangePayload{
		CycleID:      created.CycleID,
		Phase:        created.Phase,
		StateVersion: created.StateVersion,
	})
	return s.GetGameState(ctx)
}
