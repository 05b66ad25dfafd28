package service

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"detective_game/internal/cache"
	"detective_game/internal/consistency"
	"detective_game/internal/domain"
	"detective_game/internal/game"
	"detective_game/internal/kv"
	"detective_game/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 5, 1, 18, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type event struct {
	channel string
	kind    string
	payload any
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []event
}

func (p *recordingPublisher) Publish(_ context.Context, channel, eventType string, payload any) error {
	p.mu.Lock()
	p.events = append(p.events, event{channel: channel, kind: eventType, payload: payload})
	p.mu.Unlock()
	return nil
}

func (p *recordingPublisher) on(channel, kind string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, e := range p.events {
		if e.channel == channel && e.kind == kind {
			n++
		}
	}
	return n
}

func (p *recordingPublisher) count(kind string, match func(any) bool) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, e := range p.events {
		if e.kind == kind && (match == nil || match(e.payload)) {
			n++
		}
	}
	return n
}

type fakeReplies struct {
	calls atomic.Int32
}

func (f *fakeReplies) GenerateOpponentReply(_ context.Context, bot *domain.Bot, history []domain.ChatMessage) (string, error) {
	f.calls.Add(1)
	return "lol same", nil
}

func testSettings() game.Settings {
	s := game.DefaultSettings()
	s.RegistrationDuration = time.Minute
	s.GameDuration = 10 * time.Minute
	s.MatchDuration = time.Minute
	s.SimultaneousMatches = 2
	s.MaxPlayers = 10
	s.RegistrationExtension = 30 * time.Second
	s.GameExtension = 30 * time.Second
	s.MaxOverrun = 2 * time.Minute
	s.RoundGrace = 5 * time.Second
	s.VoteRetention = 30 * time.Second
	s.MaxRepeats = 2
	s.DefaultVote = domain.KindReal
	return s
}

type harness struct {
	store *kv.MemoryStore
	clock *fakeClock
}

func newHarness() *harness {
	h := &harness{store: kv.NewMemoryStore(), clock: newFakeClock()}
	h.store.SetClock(h.clock.Now)
	return h
}

func (h *harness) service(t *testing.T, settings game.Settings, pub Publisher) *GameService {
	t.Helper()
	return h.serviceOn(t, h.store, settings, pub)
}

// serviceOn builds a service over store, which usually wraps h.store.
func (h *harness) serviceOn(t *testing.T, store kv.Store, settings game.Settings, pub Publisher) *GameService {
	t.Helper()
	c := cache.New(time.Second)
	c.SetClock(h.clock.Now)
	return NewGameService(Deps{
		Store:     store,
		Repos:     repository.New(store, time.Hour, settings.VoteRetention),
		Tracker:   consistency.NewVersionTracker(store, time.Minute),
		Cache:     c,
		Publisher: pub,
		Stake:     HumanityGate{},
		Settings:  settings,
		LockTTL:   2 * time.Second,
		Now:       h.clock.Now,
		Rand:      rand.New(rand.NewSource(7)),
	})
}

// faultStore fails or interleaves calls on chosen keys.
type faultStore struct {
	kv.Store

	mu       sync.Mutex
	casFails map[string]int
	beforeNX map[string]func()
}

func newFaultStore(store kv.Store) *faultStore {
	return &faultStore{Store: store, casFails: map[string]int{}, beforeNX: map[string]func(){}}
}

// failCAS makes the next n compare-and-swaps on key fail.
func (f *faultStore) failCAS(key string, n int) {
	f.mu.Lock()
	f.casFails[key] = n
	f.mu.Unlock()
}

// beforeSetNX runs fn once, right before the next SetNX on key.
func (f *faultStore) beforeSetNX(key string, fn func()) {
	f.mu.Lock()
	f.beforeNX[key] = fn
	f.mu.Unlock()
}

func (f *faultStore) CompareAndSwap(ctx context.Context, key, old, value string, ttl time.Duration) (bool, error) {
	f.mu.Lock()
	if f.casFails[key] > 0 {
		f.casFails[key]--
		f.mu.Unlock()
		return false, kv.ErrUnavailable
	}
	f.mu.Unlock()
	return f.Store.CompareAndSwap(ctx, key, old, value, ttl)
}

func (f *faultStore) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	f.mu.Lock()
	fn := f.beforeNX[key]
	delete(f.beforeNX, key)
	f.mu.Unlock()
	if fn != nil {
		fn()
	}
	return f.Store.SetNX(ctx, key, value, ttl)
}

func register(t *testing.T, s *GameService, fids ...int64) {
	t.Helper()
	for _, fid := range fids {
		_, err := s.RegisterPlayer(context.Background(), RegisterRequest{
			Profile: domain.Profile{FID: fid, Username: "user" + string(rune('a'+fid))},
			Corpus:  []string{"gm", "wen token"},
		})
		require.NoError(t, err)
	}
}

// startLive registers fids and lets the registration deadline pass.
func startLive(t *testing.T, h *harness, s *GameService, fids ...int64) *domain.GameState {
	t.Helper()
	register(t, s, fids...)
	h.clock.Advance(s.Settings().RegistrationDuration + time.Second)
	st, err := s.GetGameState(context.Background())
	require.NoError(t, err)
	require.Equal(t, domain.PhaseLive, st.Phase)
	return st
}

func TestRegisterPlayer_Idempotent(t *testing.T) {
	ctx := context.Background()
	h := newHarness()
	s := h.service(t, testSettings(), nil)

	p1, err := s.RegisterPlayer(ctx, RegisterRequest{Profile: domain.Profile{FID: 42, Username: "alice"}})
	require.NoError(t, err)
	p2, err := s.RegisterPlayer(ctx, RegisterRequest{Profile: domain.Profile{FID: 42, Username: "alice-again"}})
	require.NoError(t, err)

	assert.Equal(t, p1.FID, p2.FID)
	assert.Equal(t, "alice", p2.Profile.Username)

	st, err := s.GetGameState(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, st.PlayerCount)
	assert.Equal(t, domain.PhaseRegistration, st.Phase)

	bot, err := s.repos.Bots.Get(ctx, 42)
	require.NoError(t, err)
	require.NotNil(t, bot)
	assert.Equal(t, "alice", bot.OriginalAuthor.Username)
}

func TestRegisterPlayer_Capacity(t *testing.T) {
	settings := testSettings()
	settings.MaxPlayers = 2
	h := newHarness()
	s := h.service(t, settings, nil)

	register(t, s, 1, 2)
	_, err := s.RegisterPlayer(context.Background(), RegisterRequest{Profile: domain.Profile{FID: 3}})
	assert.ErrorIs(t, err, domain.ErrCapacityExceeded)

	// already registered players are still welcome
	p, err := s.RegisterPlayer(context.Background(), RegisterRequest{Profile: domain.Profile{FID: 2}})
	require.NoError(t, err)
	assert.Equal(t, int64(2), p.FID)
}

func TestRegisterPlayer_OutsideRegistration(t *testing.T) {
	h := newHarness()
	s := h.service(t, testSettings(), nil)
	startLive(t, h, s, 1, 2)

	_, err := s.RegisterPlayer(context.Background(), RegisterRequest{Profile: domain.Profile{FID: 9}})
	assert.ErrorIs(t, err, domain.ErrInvalidPhase)
}

func TestCycle_EmptyRegistrationExtends(t *testing.T) {
	ctx := context.Background()
	h := newHarness()
	pub := &recordingPublisher{}
	s := h.service(t, testSettings(), pub)

	st, err := s.GetGameState(ctx)
	require.NoError(t, err)
	require.Equal(t, domain.PhaseRegistration, st.Phase)

	h.clock.Advance(time.Minute + time.Second)
	st, err = s.GetGameState(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.PhaseRegistration, st.Phase)
	assert.True(t, st.RegistrationEndsAt.Equal(h.clock.Now().Add(30*time.Second)))
	assert.Equal(t, int64(0), st.StateVersion)

	// one player is not enough either: their only candidates are themselves
	register(t, s, 1)
	h.clock.Advance(31 * time.Second)
	st, err = s.GetGameState(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.PhaseRegistration, st.Phase)
	assert.Zero(t, pub.count(EventPhaseChange, nil))
}

func TestScenario_ThreePlayersFirstRound(t *testing.T) {
	ctx := context.Background()
	h := newHarness()
	pub := &recordingPublisher{}
	s := h.service(t, testSettings(), pub)

	st := startLive(t, h, s, 1, 2, 3)
	assert.Equal(t, int64(1), st.StateVersion)
	assert.Equal(t, 1, pub.count(EventPhaseChange, nil))

	matches, err := s.GetActiveMatches(ctx, 1)
	require.NoError(t, err)
	require.Len(t, matches, 2)

	seen := map[string]bool{}
	for _, m := range matches {
		assert.Equal(t, int64(1), m.PlayerFID)
		assert.Equal(t, 1, m.RoundNumber)
		assert.NotEqual(t, int64(1), m.OpponentFID, "never matched with self or own bot")
		key := domain.OpponentKey(m.OpponentFID, m.OpponentKind)
		assert.False(t, seen[key])
		seen[key] = true
	}

	// calling again returns the same round
	again, err := s.GetActiveMatches(ctx, 1)
	require.NoError(t, err)
	require.Len(t, again, 2)
	assert.ElementsMatch(t, []string{matches[0].ID, matches[1].ID}, []string{again[0].ID, again[1].ID})

	sess, err := s.repos.Sessions.Get(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, sess)
	assert.Equal(t, 1, sess.CurrentRound)
	assert.Equal(t, game.MaxRounds(4, s.Settings()), sess.MaxRounds)
	assert.Equal(t, 1, pub.on(PlayerChannel(1), EventRoundStart))
	assert.Equal(t, 2, pub.on(PlayerChannel(1), EventMatchStart))
	for _, m := range matches {
		if m.OpponentKind == domain.KindReal {
			assert.Equal(t, 1, pub.count(EventMatchStart, func(p any) bool {
				mp := p.(MatchPayload)
				return mp.MatchID == m.ID && mp.OpponentFID == 1
			}), "the human opponent hears about the match too")
		}
	}
}

func TestGetActiveMatches_EmptyOutsideLive(t *testing.T) {
	ctx := context.Background()
	h := newHarness()
	s := h.service(t, testSettings(), nil)
	register(t, s, 1, 2)

	matches, err := s.GetActiveMatches(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, matches)

	h.clock.Advance(61 * time.Second)
	matches, err = s.GetActiveMatches(ctx, 99)
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestScenario_AutoLockWithDefaultVote(t *testing.T) {
	ctx := context.Background()
	h := newHarness()
	pub := &recordingPublisher{}
	s := h.service(t, testSettings(), pub)
	startLive(t, h, s, 1, 2, 3)

	matches, err := s.GetActiveMatches(ctx, 1)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	kinds := map[string]domain.OpponentKind{}
	for _, m := range matches {
		kinds[m.ID] = m.OpponentKind
	}

	h.clock.Advance(time.Minute + time.Second)
	locked, err := s.GetActiveMatches(ctx, 1)
	require.NoError(t, err)
	require.Len(t, locked, 2, "locked matches stay visible during the grace window")
	for _, m := range locked {
		assert.True(t, m.VoteLocked)
		require.NotNil(t, m.CurrentVote)
		assert.Equal(t, domain.KindReal, *m.CurrentVote)
	}

	p, err := s.repos.Players.Get(ctx, 1)
	require.NoError(t, err)
	require.Len(t, p.VoteHistory, 2)
	for _, r := range p.VoteHistory {
		assert.True(t, r.Forfeit)
		assert.Equal(t, domain.KindReal, r.Vote)
		assert.Equal(t, kinds[r.MatchID] == domain.KindReal, r.Correct)
		assert.Equal(t, time.Minute.Milliseconds(), r.SpeedMs)
	}
	assert.Equal(t, 2, p.InactivityStrikes)
	assert.Equal(t, 2, pub.count(EventVoteLocked, nil))

	// after the grace window the next round starts
	h.clock.Advance(5 * time.Second)
	next, err := s.GetActiveMatches(ctx, 1)
	require.NoError(t, err)
	require.Len(t, next, 2)
	for _, m := range next {
		assert.Equal(t, 2, m.RoundNumber)
		assert.False(t, m.VoteLocked)
	}
}

func TestVoting(t *testing.T) {
	ctx := context.Background()
	h := newHarness()
	s := h.service(t, testSettings(), &recordingPublisher{})
	startLive(t, h, s, 1, 2, 3)

	matches, err := s.GetActiveMatches(ctx, 1)
	require.NoError(t, err)
	m := matches[0]

	_, err = s.SubmitVote(ctx, 1, m.ID, "HUMAN")
	assert.ErrorIs(t, err, domain.ErrInvalidVote)
	_, err = s.SubmitVote(ctx, 2, m.ID, domain.KindBot)
	assert.ErrorIs(t, err, domain.ErrForbidden)
	_, err = s.SubmitVote(ctx, 1, "missing", domain.KindBot)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	h.clock.Advance(10 * time.Second)
	_, err = s.SubmitVote(ctx, 1, m.ID, domain.KindReal)
	require.NoError(t, err)
	h.clock.Advance(10 * time.Second)
	updated, err := s.SubmitVote(ctx, 1, m.ID, domain.KindBot)
	require.NoError(t, err)
	require.NotNil(t, updated.CurrentVote)
	assert.Equal(t, domain.KindBot, *updated.CurrentVote)
	assert.Len(t, updated.VoteHistory, 2)
	assert.False(t, updated.VoteLocked)

	correct, err := s.LockVote(ctx, 1, m.ID)
	require.NoError(t, err)
	assert.Equal(t, m.OpponentKind == domain.KindBot, correct)

	_, err = s.LockVote(ctx, 1, m.ID)
	assert.ErrorIs(t, err, domain.ErrAlreadyLocked)
	_, err = s.SubmitVote(ctx, 1, m.ID, domain.KindReal)
	assert.ErrorIs(t, err, domain.ErrAlreadyLocked)

	p, err := s.repos.Players.Get(ctx, 1)
	require.NoError(t, err)
	require.Len(t, p.VoteHistory, 1)
	rec := p.VoteHistory[0]
	assert.Equal(t, m.ID, rec.MatchID)
	assert.Equal(t, 2, rec.VoteChanges)
	assert.Equal(t, int64(20_000), rec.SpeedMs)
	assert.False(t, rec.Forfeit)

	sess, err := s.repos.Sessions.Get(ctx, 1)
	require.NoError(t, err)
	assert.NotContains(t, sess.ActiveMatches, m.SlotNumber)
	assert.Contains(t, sess.CompletedMatchIDs, m.ID)
}

func TestSubmitVote_AfterEndLocks(t *testing.T) {
	ctx := context.Background()
	h := newHarness()
	s := h.service(t, testSettings(), nil)
	startLive(t, h, s, 1, 2, 3)

	matches, err := s.GetActiveMatches(ctx, 1)
	require.NoError(t, err)
	m := matches[0]

	h.clock.Advance(time.Minute + 2*time.Second)
	res, err := s.SubmitVote(ctx, 1, m.ID, domain.KindBot)
	require.NoError(t, err)
	assert.True(t, res.VoteLocked)

	p, err := s.repos.Players.Get(ctx, 1)
	require.NoError(t, err)
	require.Len(t, p.VoteHistory, 1)
	assert.Equal(t, domain.KindBot, p.VoteHistory[0].Vote)
	assert.False(t, p.VoteHistory[0].Forfeit)
}

func TestLockVote_ConcurrentExactlyOnce(t *testing.T) {
	ctx := context.Background()
	h := newHarness()
	s := h.service(t, testSettings(), nil)
	startLive(t, h, s, 1, 2, 3)

	matches, err := s.GetActiveMatches(ctx, 1)
	require.NoError(t, err)
	id := matches[0].ID

	const callers = 20
	var (
		wg      sync.WaitGroup
		winners atomic.Int32
		losers  atomic.Int32
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.LockVote(ctx, 1, id)
			switch {
			case err == nil:
				winners.Add(1)
			case errors.Is(err, domain.ErrAlreadyLocked):
				losers.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), winners.Load())
	assert.Equal(t, int32(callers-1), losers.Load())

	m, err := s.repos.Matches.Get(ctx, id)
	require.NoError(t, err)
	assert.True(t, m.VoteLocked)
	p, err := s.repos.Players.Get(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, p.VoteHistory, 1)
}

func TestScenario_TwoInstancesRaceToFinish(t *testing.T) {
	ctx := context.Background()
	h := newHarness()
	pubA, pubB := &recordingPublisher{}, &recordingPublisher{}
	a := h.service(t, testSettings(), pubA)
	b := h.service(t, testSettings(), pubB)

	startLive(t, h, a, 1, 2, 3)
	_, err := b.GetGameState(ctx)
	require.NoError(t, err)

	h.clock.Advance(10*time.Minute + 2*time.Minute + time.Second)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		for _, s := range []*GameService{a, b} {
			wg.Add(1)
			go func(s *GameService) {
				defer wg.Done()
				_, err := s.GetGameState(ctx)
				assert.NoError(t, err)
			}(s)
		}
	}
	wg.Wait()

	_, err = b.GetGameState(ctx)
	require.NoError(t, err)
	st, err := a.GetGameState(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.PhaseFinished, st.Phase)
	assert.Equal(t, int64(2), st.StateVersion)

	finished := func(p any) bool { return p.(PhaseChangePayload).Phase == domain.PhaseFinished }
	assert.Equal(t, 1, pubA.count(EventPhaseChange, finished)+pubB.count(EventPhaseChange, finished))

	v, err := a.tracker.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), v)
	assert.Equal(t, int64(2), a.tracker.LastSeen())
	assert.Equal(t, int64(2), b.tracker.LastSeen())

	lb, err := b.GetLeaderboard(ctx)
	require.NoError(t, err)
	assert.True(t, lb.Final)
	assert.Len(t, lb.Players, 3)
}

func TestCycle_FinishesWhenAllSessionsComplete(t *testing.T) {
	ctx := context.Background()
	settings := testSettings()
	settings.GameDuration = 3 * time.Minute
	settings.MaxRepeats = 1
	h := newHarness()
	s := h.service(t, settings, nil)
	startLive(t, h, s, 1, 2)

	// two candidates each, two slots, no repeats: a single round
	for _, fid := range []int64{1, 2} {
		matches, err := s.GetActiveMatches(ctx, fid)
		require.NoError(t, err)
		require.Len(t, matches, 2)
	}
	h.clock.Advance(time.Minute + settings.RoundGrace + time.Second)
	for _, fid := range []int64{1, 2} {
		_, err := s.GetActiveMatches(ctx, fid)
		require.NoError(t, err)
		sess, err := s.repos.Sessions.Get(ctx, fid)
		require.NoError(t, err)
		assert.True(t, sess.Completed())
	}

	h.clock.Advance(2 * time.Minute)
	st, err := s.GetGameState(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.PhaseFinished, st.Phase)
}

func TestForcePhaseAndReset(t *testing.T) {
	ctx := context.Background()
	h := newHarness()
	pub := &recordingPublisher{}
	s := h.service(t, testSettings(), pub)
	register(t, s, 1, 2)

	st, err := s.ForcePhase(ctx, 100, domain.PhaseLive)
	require.NoError(t, err)
	assert.Equal(t, domain.PhaseLive, st.Phase)
	assert.Equal(t, int64(1), st.StateVersion)

	_, err = s.ForcePhase(ctx, 100, domain.PhaseRegistration)
	assert.ErrorIs(t, err, domain.ErrInvalidPhase)
	_, err = s.ForcePhase(ctx, 100, domain.PhaseLive)
	assert.ErrorIs(t, err, domain.ErrInvalidPhase)

	_, err = s.GetActiveMatches(ctx, 1)
	require.NoError(t, err)

	st, err = s.ForcePhase(ctx, 100, domain.PhaseFinished)
	require.NoError(t, err)
	assert.Equal(t, domain.PhaseFinished, st.Phase)

	lb, err := s.GetLeaderboard(ctx)
	require.NoError(t, err)
	assert.True(t, lb.Final)
	require.Len(t, lb.Players, 2)
	// open matches were locked with the default vote when the cycle finished
	var total int
	for _, e := range lb.Players {
		total += e.Total
	}
	assert.Equal(t, 2, total)

	old := st.CycleID
	st, err = s.ResetCycle(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, domain.PhaseRegistration, st.Phase)
	assert.NotEqual(t, old, st.CycleID)
	assert.Equal(t, 0, st.PlayerCount)
	assert.Equal(t, int64(3), st.StateVersion)

	lb, err = s.GetLeaderboard(ctx)
	require.NoError(t, err)
	assert.False(t, lb.Final)
	assert.Empty(t, lb.Players)
}

func TestChat(t *testing.T) {
	ctx := context.Background()
	h := newHarness()
	replies := &fakeReplies{}
	s := h.service(t, testSettings(), &recordingPublisher{})
	s.replies = replies
	startLive(t, h, s, 1, 2, 3)

	matches, err := s.GetActiveMatches(ctx, 1)
	require.NoError(t, err)

	for _, m := range matches {
		_, err := s.AppendMessage(ctx, 1, m.ID, "   ")
		assert.ErrorIs(t, err, domain.ErrInvalidMessage)

		msg, err := s.AppendMessage(ctx, 1, m.ID, "hey, who are you?")
		require.NoError(t, err)
		assert.Equal(t, int64(1), msg.SenderFID)

		if m.OpponentKind == domain.KindReal {
			inbound, err := s.GetInboundMatches(ctx, m.OpponentFID)
			require.NoError(t, err)
			ids := make([]string, 0, len(inbound))
			for _, in := range inbound {
				ids = append(ids, in.ID)
			}
			assert.Contains(t, ids, m.ID)

			_, err = s.AppendMessage(ctx, m.OpponentFID, m.ID, "a person, obviously")
			require.NoError(t, err)
		} else {
			_, err = s.AppendMessage(ctx, m.OpponentFID, m.ID, "i am the bot's author")
			assert.ErrorIs(t, err, domain.ErrForbidden)
		}
	}
	s.Close()

	for _, m := range matches {
		stored, err := s.repos.Matches.Get(ctx, m.ID)
		require.NoError(t, err)
		assert.Len(t, stored.Messages, 2)
	}

	h.clock.Advance(time.Minute + time.Second)
	_, err = s.AppendMessage(ctx, 1, matches[0].ID, "too late")
	assert.ErrorIs(t, err, domain.ErrMatchEnded)
}

func TestTick_LocksExpiredMatches(t *testing.T) {
	ctx := context.Background()
	h := newHarness()
	pub := &recordingPublisher{}
	s := h.service(t, testSettings(), pub)
	startLive(t, h, s, 1, 2, 3)

	matches, err := s.GetActiveMatches(ctx, 2)
	require.NoError(t, err)
	require.Len(t, matches, 2)

	require.NoError(t, s.Tick(ctx))
	assert.Zero(t, pub.count(EventVoteLocked, nil))

	h.clock.Advance(time.Minute + time.Second)
	require.NoError(t, s.Tick(ctx))
	assert.Equal(t, 2, pub.on(PlayerChannel(2), EventVoteLocked))

	for _, m := range matches {
		stored, err := s.repos.Matches.Get(ctx, m.ID)
		require.NoError(t, err)
		assert.True(t, stored.VoteLocked)
	}

	ok, err := h.store.Get(ctx, repository.InstanceKey(s.tracker.InstanceID()))
	require.NoError(t, err)
	assert.NotEmpty(t, ok)
}

func TestGetActiveMatches_AutoLockKeepsConcurrentVote(t *testing.T) {
	ctx := context.Background()
	h := newHarness()
	fs := newFaultStore(h.store)
	s := h.serviceOn(t, fs, testSettings(), nil)
	startLive(t, h, s, 1, 2, 3)

	matches, err := s.GetActiveMatches(ctx, 1)
	require.NoError(t, err)
	require.Len(t, matches, 2)

	h.clock.Advance(time.Minute + time.Second)
	// another request locks the first match after the poll has read the
	// player but before it holds the player lock
	fs.beforeSetNX(repository.PlayerLockKey(1), func() {
		_, err := s.LockVote(ctx, 1, matches[0].ID)
		assert.NoError(t, err)
	})
	_, err = s.GetActiveMatches(ctx, 1)
	require.NoError(t, err)

	for _, m := range matches {
		stored, err := s.repos.Matches.Get(ctx, m.ID)
		require.NoError(t, err)
		assert.True(t, stored.VoteLocked)
	}
	p, err := s.repos.Players.Get(ctx, 1)
	require.NoError(t, err)
	require.Len(t, p.VoteHistory, 2)
	assert.ElementsMatch(t,
		[]string{matches[0].ID, matches[1].ID},
		[]string{p.VoteHistory[0].MatchID, p.VoteHistory[1].MatchID})
}

func TestSubmitVote_BusyPlayerLock(t *testing.T) {
	ctx := context.Background()
	h := newHarness()
	s := h.service(t, testSettings(), nil)
	startLive(t, h, s, 1, 2, 3)

	matches, err := s.GetActiveMatches(ctx, 1)
	require.NoError(t, err)
	m := matches[0]

	ok, err := h.store.SetNX(ctx, repository.PlayerLockKey(1), "elsewhere", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	_, err = s.SubmitVote(ctx, 1, m.ID, domain.KindBot)
	assert.ErrorIs(t, err, domain.ErrBusy)
	assert.NotErrorIs(t, err, domain.ErrAlreadyLocked)

	stored, err := s.repos.Matches.Get(ctx, m.ID)
	require.NoError(t, err)
	assert.False(t, stored.VoteLocked)
	assert.Empty(t, stored.VoteHistory)

	// the same call goes through once the lock is released
	require.NoError(t, h.store.Del(ctx, repository.PlayerLockKey(1)))
	res, err := s.SubmitVote(ctx, 1, m.ID, domain.KindBot)
	require.NoError(t, err)
	assert.Len(t, res.VoteHistory, 1)
}

func TestCycle_RetriesFailedCycleWrite(t *testing.T) {
	ctx := context.Background()
	h := newHarness()
	pub := &recordingPublisher{}
	fs := newFaultStore(h.store)
	s := h.serviceOn(t, fs, testSettings(), pub)
	startLive(t, h, s, 1, 2, 3)

	h.clock.Advance(10*time.Minute + 2*time.Minute + time.Second)
	fs.failCAS("detective:cycle", 1)

	st, err := s.GetGameState(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.PhaseFinished, st.Phase)
	assert.Equal(t, int64(2), st.StateVersion)
}

func TestCycle_UnwrittenClaimIsTakenOver(t *testing.T) {
	ctx := context.Background()
	h := newHarness()
	pub := &recordingPublisher{}
	fs := newFaultStore(h.store)
	s := h.serviceOn(t, fs, testSettings(), pub)
	startLive(t, h, s, 1, 2, 3)

	h.clock.Advance(10*time.Minute + 2*time.Minute + time.Second)
	fs.failCAS("detective:cycle", casAttempts)

	_, err := s.GetGameState(ctx)
	require.Error(t, err)
	v, err := s.tracker.Current(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(2), v, "version claimed, cycle not written")

	// while the claim marker lives the writer may still be finishing
	st, err := s.GetGameState(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.PhaseLive, st.Phase)
	assert.Equal(t, int64(1), st.StateVersion)

	h.clock.Advance(3 * time.Second)
	st, err = s.GetGameState(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.PhaseFinished, st.Phase)
	assert.Equal(t, int64(3), st.StateVersion)

	v, err = s.tracker.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), v)

	finished := func(p any) bool { return p.(PhaseChangePayload).Phase == domain.PhaseFinished }
	assert.Equal(t, 1, pub.count(EventPhaseChange, finished))

	lb, err := s.GetLeaderboard(ctx)
	require.NoError(t, err)
	assert.True(t, lb.Final)
}

func TestCreateCycle_KeepsCycleOpenedMeanwhile(t *testing.T) {
	ctx := context.Background()
	h := newHarness()
	a := h.service(t, testSettings(), nil)
	b := h.service(t, testSettings(), nil)

	register(t, a, 1)
	st, err := a.GetGameState(ctx)
	require.NoError(t, err)

	// b read the cycle key before a created it
	snap, err := b.createCycle(ctx, repository.CycleSnapshot{})
	require.NoError(t, err)
	require.NotNil(t, snap.Cycle)
	assert.Equal(t, st.CycleID, snap.Cycle.CycleID)

	p, err := a.repos.Players.Get(ctx, 1)
	require.NoError(t, err)
	assert.NotNil(t, p)
	st, err = a.GetGameState(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, st.PlayerCount)
}
