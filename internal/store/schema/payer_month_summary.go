package schema

import (
	"time"

	"github.com/shopspring/decimal"
)

// PayerMonthSummary is the payer×month rollup. One row per (payer_key,
// month_year); fully replaced per month partition on each refresh.
type PayerMonthSummary struct {
	ID        int64  `gorm:"column:id;primaryKey;autoIncrement"`
	PayerKey  string `gorm:"column:payer_key;not null;type:text;uniqueIndex:idx_payer_month_natural,priority:1"`
	MonthYear string `gorm:"column:month_year;not null;type:text;uniqueIndex:idx_payer_month_natural,priority:2;index"`

	ClaimCount        int `gorm:"column:claim_count;not null;default:0"`
	RemittanceCount   int `gorm:"column:remittance_count;not null;default:0"`
	ResubmissionCount int `gorm:"column:resubmission_count;not null;default:0"`

	Billed      decimal.Decimal `gorm:"column:billed;not null;type:numeric(16,2)"`
	TotalPaid   decimal.Decimal `gorm:"column:total_paid;not null;type:numeric(16,2)"`
	TotalDenied decimal.Decimal `gorm:"column:total_denied;not null;type:numeric(16,2)"`

	PaidCount          int `gorm:"column:paid_count;not null;default:0"`
	PartiallyPaidCount int `gorm:"column:partially_paid_count;not null;default:0"`
	RejectedCount      int `gorm:"column:rejected_count;not null;default:0"`
	PendingCount       int `gorm:"column:pending_count;not null;default:0"`

	RefreshID string    `gorm:"column:refresh_id;not null;type:text"`
	CreatedAt time.Time `gorm:"column:created_at;not null;default:now();type:timestamptz"`
}

// TableName specifies the table name for the PayerMonthSummary model
func (PayerMonthSummary) TableName() string {
	return "payer_month_summary"
}
