package schema

import (
	"time"

	"gorm.io/datatypes"
)

// FileStatus tracks a document through the ingestion pipeline
type FileStatus string

const (
	// FileStatusPending means the document is queued or mid-pipeline
	FileStatusPending FileStatus = "PENDING"
	// FileStatusProcessed means persistence and verification both passed
	FileStatusProcessed FileStatus = "PROCESSED"
	// FileStatusFailed means the document failed and is operator-visible
	FileStatusFailed FileStatus = "FAILED"
	// FileStatusRequeued means an operator sent the document back through
	// the pipeline
	FileStatusRequeued FileStatus = "REQUEUED"
)

// RootType identifies which of the two document shapes a file carried
type RootType string

const (
	RootTypeSubmission RootType = "submission"
	RootTypeRemittance RootType = "remittance"
)

// IngestionFile is the per-document processing record. Its unique FileID is
// also the fetch-progress marker: a fetcher never re-enqueues a file whose
// id is already recorded as processed.
type IngestionFile struct {
	ID int64 `gorm:"column:id;primaryKey;autoIncrement"`
	// FileID is the source document's natural identifier
	FileID   string   `gorm:"column:file_id;not null;uniqueIndex;type:text"`
	RootType RootType `gorm:"column:root_type;not null;type:text"`
	// Header envelope fields
	SenderID        string    `gorm:"column:sender_id;not null;type:text"`
	ReceiverID      string    `gorm:"column:receiver_id;not null;type:text"`
	TransactionDate time.Time `gorm:"column:tx_at;not null;type:timestamptz"`
	RecordCount     int       `gorm:"column:record_count;not null"`
	Disposition     string    `gorm:"column:disposition;not null;type:text"`
	// Processing outcome
	Status        FileStatus `gorm:"column:status;not null;type:text;index"`
	FailureClass  *string    `gorm:"column:failure_class;type:text"`
	FailureDetail *string    `gorm:"column:failure_detail;type:text"`
	// Parsed vs persisted parity counters used by the verifier
	ParsedClaims        int `gorm:"column:parsed_claims;not null;default:0"`
	ParsedActivities    int `gorm:"column:parsed_activities;not null;default:0"`
	PersistedClaims     int `gorm:"column:persisted_claims;not null;default:0"`
	PersistedActivities int `gorm:"column:persisted_activities;not null;default:0"`
	// VerificationDetail records the individual check results as JSON
	VerificationDetail datatypes.JSON `gorm:"column:verification_detail;type:jsonb"`
	VerifiedAt         *time.Time     `gorm:"column:verified_at;type:timestamptz"`
	AckedAt            *time.Time     `gorm:"column:acked_at;type:timestamptz"`

	ReceivedAt time.Time `gorm:"column:received_at;not null;default:now();type:timestamptz"`
	UpdatedAt  time.Time `gorm:"column:updated_at;not null;default:now();type:timestamptz"`
}

// TableName specifies the table name for the IngestionFile model
func (IngestionFile) TableName() string {
	return "ingestion_files"
}
