package schema

import (
	"time"

	"github.com/shopspring/decimal"
)

// Claim holds the header detail associated 1:1 with a claim's submission
// event. Immutable after creation except for the reference-id backfill
// columns, which are filled once codes resolve against the reference tables.
type Claim struct {
	ID int64 `gorm:"column:id;primaryKey;autoIncrement"`
	// ClaimKeyID is unique: one header per claim
	ClaimKeyID int64 `gorm:"column:claim_key_id;not null;uniqueIndex"`
	// SubmissionEventID references the submission ledger event
	SubmissionEventID int64 `gorm:"column:submission_event_id;not null"`

	MemberID   string `gorm:"column:member_id;type:text"`
	EmiratesID string `gorm:"column:emirates_id;type:text"`
	// PayerCode is nil for self-pay claims; PayerFallback then carries the
	// per-claim-unique grouping token
	PayerCode     *string `gorm:"column:payer_code;type:text;index"`
	PayerFallback string  `gorm:"column:payer_fallback;not null;type:text"`
	ProviderCode  string  `gorm:"column:provider_code;not null;type:text"`
	// ContractPackage is the optional insurance contract package name
	ContractPackage *string `gorm:"column:contract_package;type:text"`

	Gross        decimal.Decimal `gorm:"column:gross;not null;type:numeric(14,2)"`
	PatientShare decimal.Decimal `gorm:"column:patient_share;not null;type:numeric(14,2)"`
	Net          decimal.Decimal `gorm:"column:net;not null;type:numeric(14,2)"`

	// Reference-id backfill (idempotent enrichment, not a semantic mutation)
	PayerRefID    *int64 `gorm:"column:payer_ref_id"`
	ProviderRefID *int64 `gorm:"column:provider_ref_id"`

	CreatedAt time.Time `gorm:"column:created_at;not null;default:now();type:timestamptz"`

	// Associations
	ClaimKey   ClaimKey    `gorm:"foreignKey:ClaimKeyID;constraint:OnDelete:RESTRICT"`
	Encounters []Encounter `gorm:"foreignKey:ClaimID;constraint:OnDelete:CASCADE"`
}

// TableName specifies the table name for the Claim model
func (Claim) TableName() string {
	return "claims"
}
