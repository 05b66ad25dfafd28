package service

import (
	"context"
	"errors"
	"sort"
	"time"

	"detective_game/internal/cache"
	"detective_game/internal/domain"
	"detective_game/internal/game"
	"detective_game/internal/kv"
	"detective_game/internal/logger"
	"detective_game/internal/metrics"
	"detective_game/internal/repository"

	"github.com/google/uuid"
)

// GetActiveMatches returns the matches of fid's current round, advancing the
// session as deadlines pass: ended matches are locked, finished rounds are
// replaced by new ones and the session is marked complete after its last
// round. Locked matches stay visible until their end plus the round grace.
func (s *GameService) GetActiveMatches(ctx context.Context, fid int64) ([]*domain.Match, error) {
	snap, err := s.currentCycle(ctx)
	if err != nil {
		return nil, err
	}
	if snap.Cycle == nil || snap.Cycle.Phase != domain.PhaseLive {
		return []*domain.Match{}, nil
	}
	p, err := s.repos.Players.Get(ctx, fid)
	if err != nil {
		return nil, err
	}
	if p == nil || !p.IsRegistered {
		return []*domain.Match{}, nil
	}

	var sess *domain.PlayerSession
	err = s.withPlayerLock(ctx, fid, true, func() error {
		var err error
		sess, err = s.progressSession(ctx, snap.Cycle, fid)
		return err
	})
	if errors.Is(err, kv.ErrLockNotAcquired) {
		// another request is moving this session; show what is stored
		sess, err = s.repos.Sessions.Get(ctx, fid)
	}
	if err != nil {
		return nil, unavailable(err)
	}
	if sess == nil {
		return []*domain.Match{}, nil
	}
	return s.visibleMatches(ctx, sess)
}

func (s *GameService) withPlayerLock(ctx context.Context, fid int64, retry bool, fn func() error) error {
	key := repository.PlayerLockKey(fid)
	var err error
	if retry {
		err = kv.WithLockRetry(ctx, s.store, key, s.lockTTL, lockAttempts, lockRetryDelay, fn)
	} else {
		err = kv.WithLock(ctx, s.store, key, s.lockTTL, fn)
	}
	if errors.Is(err, kv.ErrLockNotAcquired) {
		metrics.LockContention.WithLabelValues("player").Inc()
	}
	return err
}

// progressSession runs with the player lock held. The player is read under
// the lock since auto-locking a match writes it back.
func (s *GameService) progressSession(ctx context.Context, c *domain.GameCycle, fid int64) (*domain.PlayerSession, error) {
	now := s.now()
	p, sess, err := s.playerState(ctx, fid)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	changed := false
	if sess == nil {
		pool, err := s.pool(ctx, p.FID)
		if err != nil {
			return nil, err
		}
		sess = domain.NewPlayerSession(p.FID, game.MaxRounds(len(pool), s.settings))
		sess.NextRoundStartAt = now
		changed = true
	}

	if len(sess.ActiveMatches) > 0 {
		ids := make([]string, 0, len(sess.ActiveMatches))
		for _, id := range sess.ActiveMatches {
			ids = append(ids, id)
		}
		found, err := s.repos.Matches.GetMany(ctx, ids)
		if err != nil {
			return nil, err
		}
		for _, id := range ids {
			m := found[id]
			switch {
			case m == nil:
				sess.Complete(id)
				changed = true
			case m.VoteLocked:
				sess.Complete(id)
				changed = true
			case m.Ended(now):
				if _, err := s.lockHeld(ctx, id, p, sess); err != nil && !errors.Is(err, domain.ErrAlreadyLocked) && !errors.Is(err, domain.ErrNotFound) {
					return nil, err
				}
				changed = true
			}
		}
	}

	if len(sess.ActiveMatches) == 0 && !sess.Completed() && !now.Before(sess.NextRoundStartAt) {
		if err := s.startRound(ctx, c, p.FID, sess, now); err != nil {
			return nil, err
		}
		changed = true
	}

	if changed {
		if err := s.repos.Sessions.Save(ctx, sess); err != nil {
			return nil, err
		}
		s.cache.Invalidate(cache.Sessions)
	}
	return sess, nil
}

// pool lists fid's possible opponents: every other player and bot.
func (s *GameService) pool(ctx context.Context, fid int64) ([]game.Candidate, error) {
	players, err := s.loadPlayers(ctx)
	if err != nil {
		return nil, err
	}
	bots, err := s.loadBots(ctx)
	if err != nil {
		return nil, err
	}
	playerFIDs := make([]int64, 0, len(players))
	for _, p := range players {
		if p.IsRegistered {
			playerFIDs = append(playerFIDs, p.FID)
		}
	}
	botFIDs := make([]int64, 0, len(bots))
	for _, b := range bots {
		botFIDs = append(botFIDs, b.FID)
	}
	return game.Candidates(fid, playerFIDs, botFIDs), nil
}

func (s *GameService) startRound(ctx context.Context, c *domain.GameCycle, fid int64, sess *domain.PlayerSession, now time.Time) error {
	prev := sess.CurrentRound
	finish := func() {
		sess.CurrentRound = sess.MaxRounds + 1
		sess.RoundMatches = make(map[int]string)
		s.publish(ctx, PlayerChannel(fid), EventRoundEnd, RoundEndPayload{Round: prev, Completed: true})
		logger.Debug("session complete", "fid", fid, "rounds", prev)
	}

	if sess.CurrentRound >= sess.MaxRounds {
		finish()
		return nil
	}
	pool, err := s.pool(ctx, fid)
	if err != nil {
		return err
	}
	picks := s.selectOpponents(sess.FacedOpponents, pool, game.SlotsPerRound(len(pool), s.settings))
	if len(picks) == 0 {
		finish()
		return nil
	}
	if prev > 0 {
		s.publish(ctx, PlayerChannel(fid), EventRoundEnd, RoundEndPayload{Round: prev})
	}

	round := prev + 1
	end := now.Add(s.settings.MatchDuration)
	matches := make([]*domain.Match, 0, len(picks))
	for slot, opp := range picks {
		matches = append(matches, &domain.Match{
			ID:           uuid.NewString(),
			CycleID:      c.CycleID,
			PlayerFID:    fid,
			OpponentFID:  opp.FID,
			OpponentKind: opp.Kind,
			StartTime:    now,
			EndTime:      end,
			SlotNumber:   slot,
			RoundNumber:  round,
			Messages:     []domain.ChatMessage{},
			VoteHistory:  []domain.VoteChange{},
		})
	}

	// matches are written before the session points at them
	for _, m := range matches {
		if err := s.repos.Matches.Save(ctx, m); err != nil {
			return err
		}
	}
	s.cache.Invalidate(cache.Matches)

	sess.RoundMatches = make(map[int]string, len(matches))
	ids := make([]string, 0, len(matches))
	for _, m := range matches {
		sess.ActiveMatches[m.SlotNumber] = m.ID
		sess.RoundMatches[m.SlotNumber] = m.ID
		sess.FacedOpponents[domain.OpponentKey(m.OpponentFID, m.OpponentKind)]++
		ids = append(ids, m.ID)
		metrics.MatchesCreated.WithLabelValues(string(m.OpponentKind)).Inc()
	}
	sess.CurrentRound = round
	sess.NextRoundStartAt = end.Add(s.settings.RoundGrace)

	logger.Debug("round started", "fid", fid, "round", round, "max_rounds", sess.MaxRounds, "matches", len(matches))
	s.publish(ctx, PlayerChannel(fid), EventRoundStart, RoundStartPayload{
		Round:     round,
		MaxRounds: sess.MaxRounds,
		MatchIDs:  ids,
		EndsAt:    end,
	})
	for _, m := range matches {
		payload := MatchPayload{
			MatchID:     m.ID,
			Round:       m.RoundNumber,
			Slot:        m.SlotNumber,
			OpponentFID: m.OpponentFID,
			EndsAt:      m.EndTime,
		}
		s.publish(ctx, PlayerChannel(fid), EventMatchStart, payload)
		if m.OpponentKind == domain.KindReal {
			payload.OpponentFID = fid
			s.publish(ctx, PlayerChannel(m.OpponentFID), EventMatchStart, payload)
		}
	}
	return nil
}

func (s *GameService) visibleMatches(ctx context.Context, sess *domain.PlayerSession) ([]*domain.Match, error) {
	ids := make([]string, 0, len(sess.RoundMatches))
	for _, id := range sess.RoundMatches {
		ids = append(ids, id)
	}
	found, err := s.repos.Matches.GetMany(ctx, ids)
	if err != nil {
		return nil, err
	}
	now := s.now()
	res := make([]*domain.Match, 0, len(found))
	for _, m := range found {
		if m.VoteLocked && now.After(m.EndTime.Add(s.settings.RoundGrace)) {
			continue
		}
		res = append(res, m)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].SlotNumber < res[j].SlotNumber })
	return res, nil
}

// GetInboundMatches lists the live REAL matches in which fid is the human
// opponent, so they can answer the chat.
func (s *GameService) GetInboundMatches(ctx context.Context, fid int64) ([]*domain.Match, error) {
	snap, err := s.currentCycle(ctx)
	if err != nil {
		return nil, err
	}
	if snap.Cycle == nil || snap.Cycle.Phase != domain.PhaseLive {
		return []*domain.Match{}, nil
	}
	all, err := s.repos.Matches.Inbound(ctx, fid)
	if err != nil {
		logger.Warn("inbound matches unavailable", "fid", fid, "error", err)
		return []*domain.Match{}, nil
	}
	now := s.now()
	res := make([]*domain.Match, 0, len(all))
	for _, m := range all {
		if m.OpponentKind != domain.KindReal || m.OpponentFID != fid || m.CycleID != snap.Cycle.CycleID {
			continue
		}
		if now.After(m.EndTime.Add(s.settings.RoundGrace)) {
			continue
		}
		res = append(res, m)
	}
	sort.Slice(res, func(i, j int) bool {
		if !res[i].StartTime.Equal(res[j].StartTime) {
			return res[i].StartTime.Before(res[j].StartTime)
		}
		return res[i].ID < res[j].ID
	})
	return res, nil
}
