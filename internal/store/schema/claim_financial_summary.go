package schema

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/haramkhor2011-ship-it/claims-app-sub001/internal/domain"
)

// MaxItemizedCycles is the fixed number of per-cycle slots on an aggregate
// row. Cycles beyond the configured cap are counted and summed but not
// itemized, which bounds row width for claims with unboundedly repeating
// resubmission/remittance rounds.
const MaxItemizedCycles = 5

// ClaimFinancialSummary is the claim-level denormalized rollup: exactly one
// row per claim regardless of how many remittances and activities the claim
// has accumulated. Owned by the aggregate maintainer, fully replaced on each
// refresh.
type ClaimFinancialSummary struct {
	ID         int64 `gorm:"column:id;primaryKey;autoIncrement"`
	ClaimKeyID int64 `gorm:"column:claim_key_id;not null;uniqueIndex"`
	// ClaimID is denormalized for direct lookup by natural id
	ClaimID string `gorm:"column:claim_id;not null;type:text;index"`
	// MonthYear is the submission month partition, formatted YYYY-MM
	MonthYear string `gorm:"column:month_year;not null;type:text;index"`
	// PayerKey is the NULL-safe payer grouping key ("most recent event
	// wins" across submission and remittance payer identifiers)
	PayerKey     string `gorm:"column:payer_key;not null;type:text;index"`
	ProviderCode string `gorm:"column:provider_code;type:text"`
	FacilityCode string `gorm:"column:facility_code;type:text"`

	Billed      decimal.Decimal `gorm:"column:billed;not null;type:numeric(14,2)"`
	TotalPaid   decimal.Decimal `gorm:"column:total_paid;not null;type:numeric(14,2)"`
	TotalDenied decimal.Decimal `gorm:"column:total_denied;not null;type:numeric(14,2)"`
	Outstanding decimal.Decimal `gorm:"column:outstanding;not null;type:numeric(14,2)"`

	ActivityCount     int `gorm:"column:activity_count;not null;default:0"`
	RemittanceCount   int `gorm:"column:remittance_count;not null;default:0"`
	ResubmissionCount int `gorm:"column:resubmission_count;not null;default:0"`

	PaymentStatus    domain.ClaimStatus `gorm:"column:payment_status;not null;type:smallint"`
	FirstEventAt     time.Time          `gorm:"column:first_event_at;not null;type:timestamptz"`
	LastEventAt      time.Time          `gorm:"column:last_event_at;not null;type:timestamptz"`
	LastRemittanceAt *time.Time         `gorm:"column:last_remittance_at;type:timestamptz"`

	// Itemized resubmission cycles, bounded at MaxItemizedCycles slots.
	// Slots beyond the claim's cycle count stay nil.
	Resub1At     *time.Time       `gorm:"column:resub_1_at;type:timestamptz"`
	Resub1Amount *decimal.Decimal `gorm:"column:resub_1_amount;type:numeric(14,2)"`
	Resub2At     *time.Time       `gorm:"column:resub_2_at;type:timestamptz"`
	Resub2Amount *decimal.Decimal `gorm:"column:resub_2_amount;type:numeric(14,2)"`
	Resub3At     *time.Time       `gorm:"column:resub_3_at;type:timestamptz"`
	Resub3Amount *decimal.Decimal `gorm:"column:resub_3_amount;type:numeric(14,2)"`
	Resub4At     *time.Time       `gorm:"column:resub_4_at;type:timestamptz"`
	Resub4Amount *decimal.Decimal `gorm:"column:resub_4_amount;type:numeric(14,2)"`
	Resub5At     *time.Time       `gorm:"column:resub_5_at;type:timestamptz"`
	Resub5Amount *decimal.Decimal `gorm:"column:resub_5_amount;type:numeric(14,2)"`

	// RefreshID ties the row to the refresh run that produced it
	RefreshID string    `gorm:"column:refresh_id;not null;type:text"`
	CreatedAt time.Time `gorm:"column:created_at;not null;default:now();type:timestamptz"`
}

// TableName specifies the table name for the ClaimFinancialSummary model
func (ClaimFinancialSummary) TableName() string {
	return "claim_financial_summary"
}
