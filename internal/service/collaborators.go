package service

import (
	"context"

	"detective_game/internal/domain"
	"detective_game/internal/game"
)

// Publisher delivers events to connected clients.
type Publisher interface {
	Publish(ctx context.Context, channel, eventType string, payload any) error
}

// ReplyGenerator writes the bot's side of a conversation.
type ReplyGenerator interface {
	GenerateOpponentReply(ctx context.Context, bot *domain.Bot, history []domain.ChatMessage) (string, error)
}

// StakeVerifier decides whether a locked vote may take part in payout
// settlement.
type StakeVerifier interface {
	Eligible(ctx context.Context, p *domain.Player) (bool, error)
}

// Archive stores frozen leaderboards beyond the life of a cycle.
type Archive interface {
	SaveLeaderboard(ctx context.Context, lb *domain.Leaderboard) error
	ListCycles(ctx context.Context, limit int) ([]*domain.CycleSummary, error)
	GetLeaderboard(ctx context.Context, cycleID string) (*domain.Leaderboard, error)
}

// HumanityGate admits players whose voting looks human: accuracy above 60%
// and a plausible average response time.
type HumanityGate struct{}

func (HumanityGate) Eligible(_ context.Context, p *domain.Player) (bool, error) {
	return game.PlayerHumanity(p), nil
}
