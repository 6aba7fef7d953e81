package schema

import (
	"time"

	"github.com/shopspring/decimal"
)

// RemittanceActivity is one activity-level payment line inside a
// remittance record. DenialCode is nil when the line was paid.
type RemittanceActivity struct {
	ID           int64  `gorm:"column:id;primaryKey;autoIncrement"`
	RemittanceID int64  `gorm:"column:remittance_id;not null;uniqueIndex:idx_remittance_activity_natural,priority:1"`
	ActivityID   string `gorm:"column:activity_id;not null;type:text;uniqueIndex:idx_remittance_activity_natural,priority:2"`

	StartAt       time.Time       `gorm:"column:start_at;type:timestamptz"`
	Code          string          `gorm:"column:code;type:text"`
	Quantity      decimal.Decimal `gorm:"column:quantity;not null;type:numeric(10,2)"`
	Net           decimal.Decimal `gorm:"column:net;not null;type:numeric(14,2)"`
	PaymentAmount decimal.Decimal `gorm:"column:payment_amount;not null;type:numeric(14,2)"`
	DenialCode    *string         `gorm:"column:denial_code;type:text;index"`
	ClinicianCode string          `gorm:"column:clinician_code;type:text"`

	DenialRefID *int64 `gorm:"column:denial_ref_id"`

	CreatedAt time.Time `gorm:"column:created_at;not null;default:now();type:timestamptz"`
}

// TableName specifies the table name for the RemittanceActivity model
func (RemittanceActivity) TableName() string {
	return "remittance_activities"
}
