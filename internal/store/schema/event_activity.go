package schema

import (
	"time"

	"github.com/shopspring/decimal"
)

// EventActivity is an immutable snapshot of an activity's state at one
// ledger event. History is preserved here instead of mutating the canonical
// Activity row.
type EventActivity struct {
	ID           int64  `gorm:"column:id;primaryKey;autoIncrement"`
	ClaimEventID int64  `gorm:"column:claim_event_id;not null;uniqueIndex:idx_event_activity_natural,priority:1"`
	ActivityID   string `gorm:"column:activity_id;not null;type:text;uniqueIndex:idx_event_activity_natural,priority:2"`

	StartAt       time.Time       `gorm:"column:start_at;not null;type:timestamptz"`
	Type          string          `gorm:"column:type;type:text"`
	Code          string          `gorm:"column:code;not null;type:text"`
	Quantity      decimal.Decimal `gorm:"column:quantity;not null;type:numeric(10,2)"`
	Net           decimal.Decimal `gorm:"column:net;not null;type:numeric(14,2)"`
	ClinicianCode string          `gorm:"column:clinician_code;type:text"`

	CreatedAt time.Time `gorm:"column:created_at;not null;default:now();type:timestamptz"`

	// Associations
	Observations []EventObservation `gorm:"foreignKey:EventActivityID;constraint:OnDelete:CASCADE"`
}

// TableName specifies the table name for the EventActivity model
func (EventActivity) TableName() string {
	return "claim_event_activities"
}
