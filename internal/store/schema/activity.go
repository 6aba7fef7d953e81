package schema

import (
	"time"

	"github.com/shopspring/decimal"
)

// Activity is the canonical line-item row for a claim. The business
// activity id is stable across the claim's lifecycle: later remittances
// reference the same id. Event-scoped state lives in EventActivity
// snapshots; this row is never mutated by later events.
type Activity struct {
	ID         int64 `gorm:"column:id;primaryKey;autoIncrement"`
	ClaimKeyID int64 `gorm:"column:claim_key_id;not null;uniqueIndex:idx_activity_natural,priority:1"`
	// ActivityID is the business line-item identifier
	ActivityID string `gorm:"column:activity_id;not null;type:text;uniqueIndex:idx_activity_natural,priority:2"`

	StartAt       time.Time       `gorm:"column:start_at;not null;type:timestamptz"`
	Type          string          `gorm:"column:type;type:text"`
	Code          string          `gorm:"column:code;not null;type:text"`
	Quantity      decimal.Decimal `gorm:"column:quantity;not null;type:numeric(10,2)"`
	Net           decimal.Decimal `gorm:"column:net;not null;type:numeric(14,2)"`
	ClinicianCode string          `gorm:"column:clinician_code;type:text;index"`
	PriorAuthID   string          `gorm:"column:prior_auth_id;type:text"`

	CodeRefID      *int64 `gorm:"column:code_ref_id"`
	ClinicianRefID *int64 `gorm:"column:clinician_ref_id"`

	CreatedAt time.Time `gorm:"column:created_at;not null;default:now();type:timestamptz"`
}

// TableName specifies the table name for the Activity model
func (Activity) TableName() string {
	return "activities"
}
