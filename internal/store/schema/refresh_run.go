package schema

import "time"

// RefreshStatus tracks an aggregate refresh run
type RefreshStatus string

const (
	RefreshStatusRunning   RefreshStatus = "RUNNING"
	RefreshStatusSucceeded RefreshStatus = "SUCCEEDED"
	RefreshStatusFailed    RefreshStatus = "FAILED"
)

// RefreshRun is the operator-visible artifact of one aggregate refresh.
// The ulid primary key makes listings sort by start time.
type RefreshRun struct {
	ID     string `gorm:"column:id;primaryKey;type:text"`
	Target string `gorm:"column:target;not null;type:text;index"`
	// Partition is the month window the refresh covered, e.g. "2026-05..2026-08"
	Partition string        `gorm:"column:partition;not null;type:text"`
	Status    RefreshStatus `gorm:"column:status;not null;type:text"`
	RowCount  int           `gorm:"column:row_count;not null;default:0"`

	FailureDetail *string `gorm:"column:failure_detail;type:text"`

	StartedAt  time.Time  `gorm:"column:started_at;not null;type:timestamptz"`
	FinishedAt *time.Time `gorm:"column:finished_at;type:timestamptz"`
}

// TableName specifies the table name for the RefreshRun model
func (RefreshRun) TableName() string {
	return "refresh_runs"
}
