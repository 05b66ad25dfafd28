package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"detective_game/internal/domain"
	"detective_game/internal/kv"
	"detective_game/internal/logger"

	"github.com/google/uuid"
)

const (
	maxMessageLen = 1000
	replyTimeout  = 20 * time.Second
)

// AppendMessage adds a chat message from senderFID. The match owner may always
// write; in REAL matches so may the opponent.
func (s *GameService) AppendMessage(ctx context.Context, senderFID int64, matchID, text string) (*domain.ChatMessage, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, domain.ErrInvalidMessage
	}
	text = truncate(text, maxMessageLen)

	m, err := s.repos.Matches.Get(ctx, matchID)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, domain.ErrNotFound
	}
	if !m.Participant(senderFID) {
		return nil, domain.ErrForbidden
	}

	msg, m, err := s.appendLocked(ctx, matchID, senderFID, text)
	if err != nil {
		return nil, err
	}

	s.notifyMessage(ctx, m, msg)
	if m.OpponentKind == domain.KindBot && senderFID == m.PlayerFID && s.replies != nil {
		s.replyAsync(matchID)
	}
	return msg, nil
}

func (s *GameService) appendLocked(ctx context.Context, matchID string, senderFID int64, text string) (*domain.ChatMessage, *domain.Match, error) {
	var (
		msg   *domain.ChatMessage
		saved *domain.Match
	)
	err := s.withMatchLock(ctx, matchID, "chat", true, func() error {
		m, err := s.repos.Matches.Get(ctx, matchID)
		if err != nil {
			return err
		}
		if m == nil {
			return domain.ErrNotFound
		}
		now := s.now()
		if m.VoteLocked || m.Ended(now) {
			return domain.ErrMatchEnded
		}
		msg = &domain.ChatMessage{
			ID:        uuid.NewString(),
			SenderFID: senderFID,
			Text:      text,
			SentAt:    now,
		}
		m.Messages = append(m.Messages, *msg)
		saved = m
		return s.repos.Matches.Save(ctx, m)
	})
	if errors.Is(err, kv.ErrLockNotAcquired) {
		return nil, nil, domain.ErrBusy
	}
	if err != nil {
		return nil, nil, unavailable(err)
	}
	return msg, saved, nil
}

func (s *GameService) notifyMessage(ctx context.Context, m *domain.Match, msg *domain.ChatMessage) {
	payload := MessagePayload{MatchID: m.ID, Message: *msg}
	if msg.SenderFID != m.PlayerFID {
		s.publish(ctx, PlayerChannel(m.PlayerFID), EventMessage, payload)
		return
	}
	if m.OpponentKind == domain.KindReal {
		s.publish(ctx, PlayerChannel(m.OpponentFID), EventMessage, payload)
	}
}

func (s *GameService) replyAsync(matchID string) {
	s.bg.Add(1)
	go func() {
		defer s.bg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), replyTimeout)
		defer cancel()
		if _, err := s.ReplyAsBot(ctx, matchID); err != nil && !errors.Is(err, domain.ErrMatchEnded) {
			logger.Warn("bot reply failed", "match_id", matchID, "error", err)
		}
	}()
}

// ReplyAsBot asks the reply generator for the bot's next message in a BOT
// match and appends it.
func (s *GameService) ReplyAsBot(ctx context.Context, matchID string) (*domain.ChatMessage, error) {
	if s.replies == nil {
		return nil, domain.ErrNotFound
	}
	m, err := s.repos.Matches.Get(ctx, matchID)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, domain.ErrNotFound
	}
	if m.OpponentKind != domain.KindBot {
		return nil, domain.ErrForbidden
	}
	if m.VoteLocked || m.Ended(s.now()) {
		return nil, domain.ErrMatchEnded
	}
	bot, err := s.repos.Bots.Get(ctx, m.OpponentFID)
	if err != nil {
		return nil, err
	}
	if bot == nil {
		return nil, domain.ErrNotFound
	}

	text, err := s.replies.GenerateOpponentReply(ctx, bot, m.Messages)
	if err != nil {
		return nil, err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, domain.ErrInvalidMessage
	}
	text = truncate(text, maxMessageLen)

	msg, saved, err := s.appendLocked(ctx, matchID, bot.FID, text)
	if err != nil {
		return nil, err
	}
	s.notifyMessage(ctx, saved, msg)
	return msg, nil
}

func truncate(text string, n int) string {
	r := []rune(text)
	if len(r) <= n {
		return text
	}
	return string(r[:n])
}
