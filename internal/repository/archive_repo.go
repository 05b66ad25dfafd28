package repository

import (
	"context"
	"encoding/json"
	"errors"

	"detective_game/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ArchiveRepository keeps the frozen leaderboard of every finished cycle in
// Postgres, outliving the store TTLs.
type ArchiveRepository struct {
	db *pgxpool.Pool
}

func NewArchiveRepository(db *pgxpool.Pool) *ArchiveRepository {
	return &ArchiveRepository{db: db}
}

// SaveLeaderboard archives lb. Archiving the same cycle twice is a no-op.
func (r *ArchiveRepository) SaveLeaderboard(ctx context.Context, lb *domain.Leaderboard) error {
	boardJSON, err := json.Marshal(lb)
	if err != nil {
		return err
	}

	_, err = r.db.Exec(ctx,
		`INSERT INTO cycle_results (cycle_id, player_count, bot_count, leaderboard)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (cycle_id) DO NOTHING`,
		lb.CycleID, len(lb.Players), len(lb.Bots), boardJSON,
	)
	return err
}

// ListCycles returns archived cycles, newest first.
func (r *ArchiveRepository) ListCycles(ctx context.Context, limit int) ([]*domain.CycleSummary, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := r.db.Query(ctx,
		`SELECT cycle_id, player_count, bot_count, finished_at
		 FROM cycle_results
		 ORDER BY finished_at DESC
		 LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*domain.CycleSummary
	for rows.Next() {
		var cs domain.CycleSummary
		if err := rows.Scan(&cs.CycleID, &cs.PlayerCount, &cs.BotCount, &cs.FinishedAt); err != nil {
			return nil, err
		}
		result = append(result, &cs)
	}
	return result, rows.Err()
}

// GetLeaderboard returns nil, nil for an unknown cycle.
func (r *ArchiveRepository) GetLeaderboard(ctx context.Context, cycleID string) (*domain.Leaderboard, error) {
	var boardJSON []byte
	err := r.db.QueryRow(ctx,
		`SELECT leaderboard FROM cycle_results WHERE cycle_id = $1`,
		cycleID,
	).Scan(&boardJSON)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var lb domain.Leaderboard
	if err := json.Unmarshal(boardJSON, &lb); err != nil {
		return nil, err
	}
	return &lb, nil
}
