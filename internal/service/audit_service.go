package service

import (
	"context"

	"detective_game/internal/domain"
	"detective_game/internal/logger"
	"detective_game/internal/repository"

	"github.com/jackc/pgx/v5/pgxpool"
)

// AuditService records admin actions. A nil *AuditService only logs.
type AuditService struct {
	repo *repository.AuditRepository
}

// NewAuditService creates a new audit service
func NewAuditService(db *pgxpool.Pool) *AuditService {
	return &AuditService{
		repo: repository.NewAuditRepository(db),
	}
}

// Log creates a new audit log entry
func (s *AuditService) Log(ctx context.Context, fid int64, action, cycleID string, details map[string]interface{}) {
	logger.Info("audit", "fid", fid, "action", action, "cycle_id", cycleID)
	if s == nil || s.repo == nil {
		return
	}

	log := &domain.AuditLog{
		FID:     fid,
		Action:  action,
		CycleID: cycleID,
		Details: details,
	}

	if err := s.repo.Create(ctx, log); err != nil {
		logger.Error("failed to create audit log", "error", err, "action", action, "fid", fid)
	}
}

// GetRecentLogs returns recent audit logs
func (s *AuditService) GetRecentLogs(ctx context.Context, limit int) ([]*domain.AuditLog, error) {
	if s == nil || s.repo == nil {
		return []*domain.AuditLog{}, nil
	}
	return s.repo.GetRecent(ctx, limit)
}

// GetCycleLogs returns the admin actions taken on one cycle
func (s *AuditService) GetCycleLogs(ctx context.Context, cycleID string, limit int) ([]*domain.AuditLog, error) {
	if s == nil || s.repo == nil {
		return []*domain.AuditLog{}, nil
	}
	return s.repo.GetByCycle(ctx, cycleID, limit)
}
