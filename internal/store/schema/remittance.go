package schema

import "time"

// Remittance is one payer adjudication record for a claim. A claim
// accumulates many of these over its payment cycles; each is tied 1:1 to
// its remittance ledger event.
type Remittance struct {
	ID         int64 `gorm:"column:id;primaryKey;autoIncrement"`
	ClaimKeyID int64 `gorm:"column:claim_key_id;not null;index"`
	// ClaimEventID is unique: one remittance record per remittance event
	ClaimEventID int64 `gorm:"column:claim_event_id;not null;uniqueIndex"`

	// IDPayer is the payer-side claim reference; the remittance-side payer
	// identifier used by "most recent event wins" aggregation
	IDPayer          string     `gorm:"column:id_payer;type:text"`
	PayerCode        string     `gorm:"column:payer_code;type:text;index"`
	ProviderCode     string     `gorm:"column:provider_code;type:text"`
	PaymentReference string     `gorm:"column:payment_reference;type:text"`
	DateSettlement   *time.Time `gorm:"column:date_settlement;type:timestamptz"`

	IngestionFileID int64 `gorm:"column:ingestion_file_id;not null;index"`

	CreatedAt time.Time `gorm:"column:created_at;not null;default:now();type:timestamptz"`

	// Associations
	Activities []RemittanceActivity `gorm:"foreignKey:RemittanceID;constraint:OnDelete:CASCADE"`
}

// TableName specifies the table name for the Remittance model
func (Remittance) TableName() string {
	return "remittances"
}
