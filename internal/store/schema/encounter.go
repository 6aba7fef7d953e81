package schema

import "time"

// Encounter is a patient encounter belonging to a claim header
type Encounter struct {
	ID      int64 `gorm:"column:id;primaryKey;autoIncrement"`
	ClaimID int64 `gorm:"column:claim_id;not null;uniqueIndex:idx_encounter_natural,priority:1"`

	FacilityCode string     `gorm:"column:facility_code;not null;type:text;uniqueIndex:idx_encounter_natural,priority:2;index"`
	Type         string     `gorm:"column:type;type:text"`
	PatientID    string     `gorm:"column:patient_id;type:text"`
	StartAt      time.Time  `gorm:"column:start_at;not null;type:timestamptz;uniqueIndex:idx_encounter_natural,priority:3"`
	EndAt        *time.Time `gorm:"column:end_at;type:timestamptz"`
	StartType    string     `gorm:"column:start_type;type:text"`
	EndType      string     `gorm:"column:end_type;type:text"`
	TransferTo   string     `gorm:"column:transfer_to;type:text"`

	FacilityRefID *int64 `gorm:"column:facility_ref_id"`

	CreatedAt time.Time `gorm:"column:created_at;not null;default:now();type:timestamptz"`

	// Associations
	Diagnoses []Diagnosis `gorm:"foreignKey:EncounterID;constraint:OnDelete:CASCADE"`
}

// TableName specifies the table name for the Encounter model
func (Encounter) TableName() string {
	return "encounters"
}
