package schema

import (
	"time"

	"github.com/shopspring/decimal"
)

// ClinicianDenialSummary is the clinician×facility×month denial rollup.
// One row per grouping key; fully replaced per month partition on refresh.
type ClinicianDenialSummary struct {
	ID            int64  `gorm:"column:id;primaryKey;autoIncrement"`
	ClinicianCode string `gorm:"column:clinician_code;not null;type:text;uniqueIndex:idx_clinician_denial_natural,priority:1"`
	FacilityCode  string `gorm:"column:facility_code;not null;type:text;uniqueIndex:idx_clinician_denial_natural,priority:2"`
	MonthYear     string `gorm:"column:month_year;not null;type:text;uniqueIndex:idx_clinician_denial_natural,priority:3;index"`

	ActivityCount int             `gorm:"column:activity_count;not null;default:0"`
	DenialCount   int             `gorm:"column:denial_count;not null;default:0"`
	DeniedAmount  decimal.Decimal `gorm:"column:denied_amount;not null;type:numeric(16,2)"`
	PaidAmount    decimal.Decimal `gorm:"column:paid_amount;not null;type:numeric(16,2)"`
	// TopDenialCode is the most frequent denial code in the group, ties
	// broken lexicographically so refreshes stay deterministic
	TopDenialCode *string `gorm:"column:top_denial_code;type:text"`

	RefreshID string    `gorm:"column:refresh_id;not null;type:text"`
	CreatedAt time.Time `gorm:"column:created_at;not null;default:now();type:timestamptz"`
}

// TableName specifies the table name for the ClinicianDenialSummary model
func (ClinicianDenialSummary) TableName() string {
	return "clinician_denial_summary"
}
