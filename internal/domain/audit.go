package domain

import "time"

// AuditLog records an administrative action on the game.
type AuditLog struct {
	ID        int64                  `db:"id" json:"id"`
	FID       int64                  `db:"fid" json:"fid"`
	Action    string                 `db:"action" json:"action"`
	CycleID   string                 `db:"cycle_id" json:"cycle_id"`
	Details   map[string]interface{} `db:"details" json:"details"`
	IP        string                 `db:"ip" json:"ip,omitempty"`
	CreatedAt time.Time              `db:"created_at" json:"created_at"`
}

// Audit actions
const (
	AuditActionForcePhase    = "force_phase"
	AuditActionResetCycle    = "reset_cycle"
	AuditActionCycleArchived = "cycle_archived"
)
