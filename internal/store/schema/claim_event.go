package schema

import (
	"time"

	"github.com/haramkhor2011-ship-it/claims-app-sub001/internal/domain"
)

// ClaimEvent is one row of the append-only lifecycle ledger. Rows are never
// updated or deleted. Dedup is enforced by the (claim_key_id, kind,
// event_time) unique index; the partial index additionally guarantees at
// most one submission event per claim.
type ClaimEvent struct {
	// ID is the internal database primary key
	ID int64 `gorm:"column:id;primaryKey;autoIncrement"`
	// ClaimKeyID references the claim this event belongs to
	ClaimKeyID int64 `gorm:"column:claim_key_id;not null;uniqueIndex:idx_claim_event_dedup,priority:1;uniqueIndex:idx_one_submission_per_claim,where:kind = 1"`
	// Kind is the lifecycle event kind (1=submission, 2=resubmission, 3=remittance)
	Kind domain.EventKind `gorm:"column:kind;not null;type:smallint;uniqueIndex:idx_claim_event_dedup,priority:2"`
	// EventTime is the business timestamp of the event
	EventTime time.Time `gorm:"column:event_time;not null;type:timestamptz;uniqueIndex:idx_claim_event_dedup,priority:3"`
	// IngestionFileID references the source document that produced this event
	IngestionFileID int64 `gorm:"column:ingestion_file_id;not null;index"`
	// CreatedAt is the timestamp when this event was persisted
	CreatedAt time.Time `gorm:"column:created_at;not null;default:now();type:timestamptz"`

	// Associations
	ClaimKey ClaimKey `gorm:"foreignKey:ClaimKeyID;constraint:OnDelete:RESTRICT"`
}

// TableName specifies the table name for the ClaimEvent model
func (ClaimEvent) TableName() string {
	return "claim_events"
}
