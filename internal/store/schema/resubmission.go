package schema

import "time"

// ClaimResubmission carries the resubmission block of a claim record,
// tied 1:1 to its resubmission ledger event.
type ClaimResubmission struct {
	ID           int64  `gorm:"column:id;primaryKey;autoIncrement"`
	ClaimEventID int64  `gorm:"column:claim_event_id;not null;uniqueIndex"`
	Type         string `gorm:"column:type;type:text"`
	Comment      string `gorm:"column:comment;type:text"`
	Attachment   string `gorm:"column:attachment;type:text"`

	CreatedAt time.Time `gorm:"column:created_at;not null;default:now();type:timestamptz"`
}

// TableName specifies the table name for the ClaimResubmission model
func (ClaimResubmission) TableName() string {
	return "claim_resubmissions"
}
