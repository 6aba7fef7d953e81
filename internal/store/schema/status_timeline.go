package schema

import (
	"time"

	"github.com/haramkhor2011-ship-it/claims-app-sub001/internal/domain"
)

// ClaimStatusTimeline is a derived row: one status transition per claim,
// produced solely by the status projector and regenerable at any time from
// the event ledger.
type ClaimStatusTimeline struct {
	ID         int64              `gorm:"column:id;primaryKey;autoIncrement"`
	ClaimKeyID int64              `gorm:"column:claim_key_id;not null;index:idx_cst_claim_key_time,priority:1"`
	Status     domain.ClaimStatus `gorm:"column:status;not null;type:smallint"`
	StatusTime time.Time          `gorm:"column:status_time;not null;type:timestamptz;index:idx_cst_claim_key_time,priority:2"`
	// ClaimEventID references the ledger event that caused the transition
	ClaimEventID *int64    `gorm:"column:claim_event_id"`
	CreatedAt    time.Time `gorm:"column:created_at;not null;default:now();type:timestamptz"`
}

// TableName specifies the table name for the ClaimStatusTimeline model
func (ClaimStatusTimeline) TableName() string {
	return "claim_status_timeline"
}
