package service

import (
	"context"
	"errors"
	"time"

	"detective_game/internal/cache"
	"detective_game/internal/domain"
	"detective_game/internal/game"
	"detective_game/internal/kv"
	"detective_game/internal/logger"
	"detective_game/internal/metrics"
	"detective_game/internal/repository"
)

// Lock order everywhere: player lock, then match lock.

// SubmitVote records fid's current guess for a match. A vote that lands after
// the match ended is recorded and the match is locked right away.
func (s *GameService) SubmitVote(ctx context.Context, fid int64, matchID string, vote domain.OpponentKind) (*domain.Match, error) {
	if !vote.Valid() {
		return nil, domain.ErrInvalidVote
	}
	m, err := s.ownedMatch(ctx, fid, matchID)
	if err != nil {
		return nil, err
	}
	if m.VoteLocked {
		return nil, domain.ErrAlreadyLocked
	}

	var (
		res *domain.Match
		rec *domain.VoteRecord
	)
	err = s.withPlayerLock(ctx, fid, true, func() error {
		p, sess, err := s.playerState(ctx, fid)
		if err != nil {
			return err
		}
		return s.withMatchLock(ctx, matchID, "vote", true, func() error {
			m, err := s.repos.Matches.Get(ctx, matchID)
			if err != nil {
				return err
			}
			if m == nil {
				return domain.ErrNotFound
			}
			if m.VoteLocked {
				return domain.ErrAlreadyLocked
			}

			now := s.now()
			v := vote
			m.VoteHistory = append(m.VoteHistory, domain.VoteChange{Vote: vote, At: now})
			m.CurrentVote = &v

			if m.Ended(now) {
				r, err := s.settle(ctx, m, p, sess, now)
				if err != nil {
					return err
				}
				rec = &r
				if sess != nil {
					if err := s.repos.Sessions.Save(ctx, sess); err != nil {
						return err
					}
					s.cache.Invalidate(cache.Sessions)
				}
			} else if err := s.repos.Matches.Save(ctx, m); err != nil {
				return err
			}
			res = m
			return nil
		})
	})
	if errors.Is(err, kv.ErrLockNotAcquired) {
		// nothing was recorded; the match may well still be open
		return nil, domain.ErrBusy
	}
	if err != nil {
		return nil, unavailable(err)
	}
	s.cache.Invalidate(cache.Matches)
	if rec != nil {
		s.afterLock(ctx, res, *rec)
	}
	return res, nil
}

// LockVote finalizes fid's vote on a match and reports whether it was right.
// Exactly one caller wins; every other caller gets ErrAlreadyLocked.
func (s *GameService) LockVote(ctx context.Context, fid int64, matchID string) (bool, error) {
	m, err := s.ownedMatch(ctx, fid, matchID)
	if err != nil {
		return false, err
	}
	if m.VoteLocked {
		return false, domain.ErrAlreadyLocked
	}

	var rec domain.VoteRecord
	err = s.withPlayerLock(ctx, fid, true, func() error {
		p, sess, err := s.playerState(ctx, fid)
		if err != nil {
			return err
		}
		rec, err = s.lockHeld(ctx, matchID, p, sess)
		return err
	})
	if errors.Is(err, kv.ErrLockNotAcquired) {
		return false, domain.ErrAlreadyLocked
	}
	if err != nil {
		return false, unavailable(err)
	}
	return rec.Correct, nil
}

func (s *GameService) ownedMatch(ctx context.Context, fid int64, matchID string) (*domain.Match, error) {
	m, err := s.repos.Matches.Get(ctx, matchID)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, domain.ErrNotFound
	}
	if m.PlayerFID != fid {
		return nil, domain.ErrForbidden
	}
	return m, nil
}

// playerState loads the records a vote lock updates. The session may be nil.
func (s *GameService) playerState(ctx context.Context, fid int64) (*domain.Player, *domain.PlayerSession, error) {
	p, err := s.repos.Players.Get(ctx, fid)
	if err != nil {
		return nil, nil, err
	}
	if p == nil {
		return nil, nil, domain.ErrNotFound
	}
	sess, err := s.repos.Sessions.Get(ctx, fid)
	if err != nil {
		return nil, nil, err
	}
	return p, sess, nil
}

func (s *GameService) withMatchLock(ctx context.Context, matchID, op string, retry bool, fn func() error) error {
	key := repository.MatchLockKey(matchID)
	var err error
	if retry {
		err = kv.WithLockRetry(ctx, s.store, key, s.lockTTL, lockAttempts, lockRetryDelay, fn)
	} else {
		err = kv.WithLock(ctx, s.store, key, s.lockTTL, fn)
	}
	if errors.Is(err, kv.ErrLockNotAcquired) {
		metrics.LockContention.WithLabelValues(op).Inc()
	}
	return err
}

// lockHeld locks one match of p. The caller holds p's player lock and saves
// sess afterwards when it is not nil.
func (s *GameService) lockHeld(ctx context.Context, matchID string, p *domain.Player, sess *domain.PlayerSession) (domain.VoteRecord, error) {
	var (
		rec    domain.VoteRecord
		locked *domain.Match
	)
	err := s.withMatchLock(ctx, matchID, "lock", false, func() error {
		m, err := s.repos.Matches.Get(ctx, matchID)
		if err != nil {
			return err
		}
		if m == nil {
			return domain.ErrNotFound
		}
		if m.VoteLocked {
			return domain.ErrAlreadyLocked
		}
		rec, err = s.settle(ctx, m, p, sess, s.now())
		locked = m
		return err
	})
	if errors.Is(err, kv.ErrLockNotAcquired) {
		return rec, domain.ErrAlreadyLocked
	}
	if err != nil {
		return rec, err
	}
	if sess != nil {
		if err := s.repos.Sessions.Save(ctx, sess); err != nil {
			return rec, err
		}
		s.cache.Invalidate(cache.Sessions)
	}
	s.cache.Invalidate(cache.Matches)
	s.afterLock(ctx, locked, rec)
	return rec, nil
}

// settle turns m into a locked match and credits p. Both locks are held.
// The player is written first and skips records it already has, so a retry
// after a failed match write cannot count a vote twice.
func (s *GameService) settle(ctx context.Context, m *domain.Match, p *domain.Player, sess *domain.PlayerSession, now time.Time) (domain.VoteRecord, error) {
	rec := game.BuildVoteRecord(m, s.settings.DefaultVote, now)

	recorded := false
	for _, r := range p.VoteHistory {
		if r.MatchID == m.ID {
			rec = r
			recorded = true
			break
		}
	}
	if !recorded {
		p.VoteHistory = append(p.VoteHistory, rec)
		if s.stake != nil {
			ok, err := s.stake.Eligible(ctx, p)
			if err != nil {
				logger.Warn("stake verifier failed", "fid", p.FID, "match_id", m.ID, "error", err)
			}
			rec.PayoutEligible = ok && err == nil
			p.VoteHistory[len(p.VoteHistory)-1] = rec
		}
		if rec.Correct {
			p.Score++
		}
		if rec.Forfeit {
			p.InactivityStrikes++
		} else {
			p.LastActiveAt = now
		}
		if err := s.repos.Players.Save(ctx, p); err != nil {
			return rec, err
		}
		s.cache.Invalidate(cache.Players)
	}

	vote := rec.Vote
	m.CurrentVote = &vote
	m.VoteLocked = true
	m.IsFinished = true
	lockedAt := now
	m.LockedAt = &lockedAt
	if err := s.repos.Matches.Save(ctx, m); err != nil {
		return rec, err
	}
	if sess != nil {
		sess.Complete(m.ID)
	}

	outcome := "incorrect"
	switch {
	case rec.Forfeit:
		outcome = "forfeit"
	case rec.Correct:
		outcome = "correct"
	}
	metrics.VotesLocked.WithLabelValues(outcome).Inc()
	return rec, nil
}

func (s *GameService) afterLock(ctx context.Context, m *domain.Match, rec domain.VoteRecord) {
	if m == nil {
		return
	}
	logger.Debug("vote locked",
		"match_id", m.ID,
		"fid", m.PlayerFID,
		"vote", rec.Vote,
		"correct", rec.Correct,
		"forfeit", rec.Forfeit,
	)
	s.publish(ctx, PlayerChannel(m.PlayerFID), EventVoteLocked, VoteLockedPayload{
		MatchID: m.ID,
		Vote:    rec.Vote,
		Correct: rec.Correct,
		Forfeit: rec.Forfeit,
	})
	end := MatchPayload{MatchID: m.ID, Round: m.RoundNumber, Slot: m.SlotNumber, OpponentFID: m.OpponentFID, EndsAt: m.EndTime}
	s.publish(ctx, PlayerChannel(m.PlayerFID), EventMatchEnd, end)
	if m.OpponentKind == domain.KindReal {
		end.OpponentFID = m.PlayerFID
		s.publish(ctx, PlayerChannel(m.OpponentFID), EventMatchEnd, end)
	}
}

// sweepMatches locks unlocked matches whose time is up, or every unlocked
// match when all is set. Busy players are skipped and picked up next time.
func (s *GameService) sweepMatches(ctx context.Context, all bool) int {
	// the periodic sweep may work from a slightly stale list; each lock
	// re-reads its match
	load := s.loadMatches
	if all {
		load = s.repos.Matches.All
	}
	matches, err := load(ctx)
	if err != nil {
		logger.Warn("match sweep skipped", "error", err)
		return 0
	}
	now := s.now()
	byPlayer := make(map[int64][]string)
	for _, m := range matches {
		if m.VoteLocked || (!all && !m.Ended(now)) {
			continue
		}
		byPlayer[m.PlayerFID] = append(byPlayer[m.PlayerFID], m.ID)
	}

	locked := 0
	for fid, ids := range byPlayer {
		err := s.withPlayerLock(ctx, fid, false, func() error {
			p, sess, err := s.playerState(ctx, fid)
			if err != nil {
				return err
			}
			for _, id := range ids {
				if _, err := s.lockHeld(ctx, id, p, sess); err == nil {
					locked++
				} else if !errors.Is(err, domain.ErrAlreadyLocked) && !errors.Is(err, domain.ErrNotFound) {
					return err
				}
			}
			return nil
		})
		if err != nil && !errors.Is(err, kv.ErrLockNotAcquired) {
			logger.Warn("match sweep failed", "fid", fid, "error", err)
		}
	}
	if locked > 0 {
		logger.Info("matches auto-locked", "count", locked)
	}
	return locked
}
