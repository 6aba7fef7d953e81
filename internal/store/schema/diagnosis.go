package schema

import "time"

// Diagnosis is one diagnosis code attached to an encounter. The natural key
// keeps replayed documents from duplicating codes.
type Diagnosis struct {
	ID          int64  `gorm:"column:id;primaryKey;autoIncrement"`
	EncounterID int64  `gorm:"column:encounter_id;not null;uniqueIndex:idx_diagnosis_natural,priority:1"`
	DiagType    string `gorm:"column:diag_type;not null;type:text;uniqueIndex:idx_diagnosis_natural,priority:2"`
	Code        string `gorm:"column:code;not null;type:text;uniqueIndex:idx_diagnosis_natural,priority:3"`

	CodeRefID *int64 `gorm:"column:code_ref_id"`

	CreatedAt time.Time `gorm:"column:created_at;not null;default:now();type:timestamptz"`
}

// TableName specifies the table name for the Diagnosis model
func (Diagnosis) TableName() string {
	return "diagnoses"
}
