package schema

import "time"

// RefKind partitions the reference-code table
type RefKind string

const (
	RefKindPayer     RefKind = "payer"
	RefKindProvider  RefKind = "provider"
	RefKindFacility  RefKind = "facility"
	RefKindClinician RefKind = "clinician"
	RefKindDenial    RefKind = "denial"
)

// RefCode maps a business code (payer, provider, facility, clinician,
// denial) to an internal reference id. Rows are created on first sight by
// the get-or-create resolver.
type RefCode struct {
	ID   int64   `gorm:"column:id;primaryKey;autoIncrement"`
	Kind RefKind `gorm:"column:kind;not null;type:text;uniqueIndex:idx_ref_code_natural,priority:1"`
	Code string  `gorm:"column:code;not null;type:text;uniqueIndex:idx_ref_code_natural,priority:2"`
	Name *string `gorm:"column:name;type:text"`

	CreatedAt time.Time `gorm:"column:created_at;not null;default:now();type:timestamptz"`
}

// TableName specifies the table name for the RefCode model
func (RefCode) TableName() string {
	return "ref_codes"
}
