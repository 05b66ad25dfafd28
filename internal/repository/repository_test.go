package repository

import (
	"context"
	"sync"
	"testing"
	"time"

	"detective_game/internal/domain"
	"detective_game/internal/kv"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newTestRepos(t *testing.T) (*Repositories, *kv.MemoryStore, *testClock) {
	t.Helper()
	clock := &testClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	store := kv.NewMemoryStore()
	store.SetClock(clock.Now)
	return New(store, time.Hour, 30*time.Second), store, clock
}

func TestCycleRepository_SwapRejectsStaleSnapshot(t *testing.T) {
	ctx := context.Background()
	repos, _, _ := newTestRepos(t)

	empty, err := repos.Cycles.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, empty.Cycle)

	c := &domain.GameCycle{CycleID: "c1", Phase: domain.PhaseRegistration}
	first, ok, err := repos.Cycles.Swap(ctx, empty, c)
	require.NoError(t, err)
	require.True(t, ok)

	// a second creator still holding the empty snapshot loses
	_, ok, err = repos.Cycles.Swap(ctx, empty, &domain.GameCycle{CycleID: "c2", Phase: domain.PhaseRegistration})
	require.NoError(t, err)
	assert.False(t, ok)

	live := *first.Cycle
	live.Phase = domain.PhaseLive
	_, ok, err = repos.Cycles.Swap(ctx, first, &live)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = repos.Cycles.Swap(ctx, first, &domain.GameCycle{CycleID: "c1", Phase: domain.PhaseRegistration})
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := repos.Cycles.Load(ctx)
	require.NoError(t, err)
	require.NotNil(t, got.Cycle)
	assert.Equal(t, domain.PhaseLive, got.Cycle.Phase)
	assert.Equal(t, "c1", got.Cycle.CycleID)
}

func TestPlayerRepository_CreateIsIdempotent(t *testing.T) {
	ctx := context.Background()
	repos, _, _ := newTestRepos(t)

	ok, err := repos.Players.Create(ctx, &domain.Player{FID: 7, Profile: domain.Profile{FID: 7, Username: "first"}})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repos.Players.Create(ctx, &domain.Player{FID: 7, Profile: domain.Profile{FID: 7, Username: "second"}})
	require.NoError(t, err)
	assert.False(t, ok)

	p, err := repos.Players.Get(ctx, 7)
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, "first", p.Profile.Username)

	n, err := repos.Players.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestHashCollection_SkipsCorruptRecords(t *testing.T) {
	ctx := context.Background()
	repos, store, _ := newTestRepos(t)

	require.NoError(t, repos.Players.Save(ctx, &domain.Player{FID: 1}))
	require.NoError(t, store.HSet(ctx, keyPlayers, "2", "{not json"))
	require.NoError(t, store.HSet(ctx, keyPlayers, "3", `{"fid":4}`))

	all, err := repos.Players.All(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, int64(1), all[0].FID)

	p, err := repos.Players.Get(ctx, 2)
	require.NoError(t, err)
	assert.Nil(t, p)

	require.NoError(t, store.HSet(ctx, keySessions, "5", `{"fid":5,"current_round":-1}`))
	s, err := repos.Sessions.Get(ctx, 5)
	require.NoError(t, err)
	assert.Nil(t, s)
}

func TestSessionRepository_PreservesMapsAndSets(t *testing.T) {
	ctx := context.Background()
	repos, _, _ := newTestRepos(t)

	s := domain.NewPlayerSession(9, 4)
	s.CurrentRound = 2
	s.ActiveMatches[1] = "m-b"
	s.RoundMatches[0] = "m-a"
	s.RoundMatches[1] = "m-b"
	s.CompletedMatchIDs["m-a"] = struct{}{}
	s.FacedOpponents[domain.OpponentKey(3, domain.KindBot)] = 2
	s.FacedOpponents[domain.OpponentKey(3, domain.KindReal)] = 1
	s.NextRoundStartAt = time.Date(2026, 3, 1, 12, 5, 0, 0, time.UTC)

	require.NoError(t, repos.Sessions.Save(ctx, s))

	got, err := repos.Sessions.Get(ctx, 9)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, s.ActiveMatches, got.ActiveMatches)
	assert.Equal(t, s.RoundMatches, got.RoundMatches)
	assert.Equal(t, s.CompletedMatchIDs, got.CompletedMatchIDs)
	assert.Equal(t, s.FacedOpponents, got.FacedOpponents)
	assert.Equal(t, 2, got.CurrentRound)
	assert.Equal(t, 4, got.MaxRounds)
	assert.True(t, s.NextRoundStartAt.Equal(got.NextRoundStartAt))
}

func TestSessionCodec_IsDeterministic(t *testing.T) {
	s := domain.NewPlayerSession(1, 3)
	for i, id := range []string{"z", "y", "x", "w"} {
		s.ActiveMatches[i] = id
		s.CompletedMatchIDs[id] = struct{}{}
		s.FacedOpponents[id] = i
	}
	a := encodeSession(s)
	b := encodeSession(s)
	assert.Equal(t, a, b)
	assert.Equal(t, []string{"w", "x", "y", "z"}, a.CompletedMatchIDs)
	assert.Equal(t, 0, a.ActiveMatches[0].Slot)
	assert.Equal(t, "w", a.FacedOpponents[0].Key)
}

func TestMatchRepository_RetentionAndInbound(t *testing.T) {
	ctx := context.Background()
	repos, _, clock := newTestRepos(t)

	realMatch := &domain.Match{ID: "m1", PlayerFID: 1, OpponentFID: 2, OpponentKind: domain.KindReal}
	botMatch := &domain.Match{ID: "m2", PlayerFID: 1, OpponentFID: 3, OpponentKind: domain.KindBot}
	require.NoError(t, repos.Matches.Save(ctx, realMatch))
	require.NoError(t, repos.Matches.Save(ctx, botMatch))

	inbound, err := repos.Matches.Inbound(ctx, 2)
	require.NoError(t, err)
	require.Len(t, inbound, 1)
	assert.Equal(t, "m1", inbound[0].ID)

	inbound, err = repos.Matches.Inbound(ctx, 3)
	require.NoError(t, err)
	assert.Empty(t, inbound)

	realMatch.VoteLocked = true
	require.NoError(t, repos.Matches.Save(ctx, realMatch))

	clock.Advance(31 * time.Second)

	m, err := repos.Matches.Get(ctx, "m1")
	require.NoError(t, err)
	assert.Nil(t, m, "locked match should expire after retention")

	all, err := repos.Matches.All(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "m2", all[0].ID)

	inbound, err = repos.Matches.Inbound(ctx, 2)
	require.NoError(t, err)
	assert.Empty(t, inbound)
}

func TestLeaderboardRepository_FreezeOnce(t *testing.T) {
	ctx := context.Background()
	repos, _, _ := newTestRepos(t)

	ok, err := repos.Leaderboard.Freeze(ctx, &domain.Leaderboard{CycleID: "c1", Final: true})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repos.Leaderboard.Freeze(ctx, &domain.Leaderboard{CycleID: "c2", Final: true})
	require.NoError(t, err)
	assert.False(t, ok)

	lb, err := repos.Leaderboard.Get(ctx)
	require.NoError(t, err)
	require.NotNil(t, lb)
	assert.Equal(t, "c1", lb.CycleID)
}

func TestRepositories_Wipe(t *testing.T) {
	ctx := context.Background()
	repos, _, _ := newTestRepos(t)

	_, _, err := repos.Cycles.Swap(ctx, CycleSnapshot{}, &domain.GameCycle{CycleID: "c1", Phase: domain.PhaseLive})
	require.NoError(t, err)
	require.NoError(t, repos.Players.Save(ctx, &domain.Player{FID: 1}))
	require.NoError(t, repos.Players.Save(ctx, &domain.Player{FID: 2}))
	require.NoError(t, repos.Bots.Save(ctx, &domain.Bot{FID: 1}))
	require.NoError(t, repos.Sessions.Save(ctx, domain.NewPlayerSession(1, 2)))
	require.NoError(t, repos.Matches.Save(ctx, &domain.Match{ID: "m1", PlayerFID: 1, OpponentFID: 2, OpponentKind: domain.KindReal}))

	require.NoError(t, repos.Wipe(ctx))

	n, err := repos.Players.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	bots, err := repos.Bots.All(ctx)
	require.NoError(t, err)
	assert.Empty(t, bots)
	m, err := repos.Matches.Get(ctx, "m1")
	require.NoError(t, err)
	assert.Nil(t, m)
	inbound, err := repos.Matches.Inbound(ctx, 2)
	require.NoError(t, err)
	assert.Empty(t, inbound)

	snap, err := repos.Cycles.Load(ctx)
	require.NoError(t, err)
	require.NotNil(t, snap.Cycle)
	assert.Equal(t, "c1", snap.Cycle.CycleID)
}
