package schema

import "time"

// EventObservation is supplementary clinical data attached to an event
// activity snapshot. ValueHash is part of the natural key so that a
// replayed document with identical observation values never duplicates
// rows, while genuinely different values for the same type/code are kept.
type EventObservation struct {
	ID              int64  `gorm:"column:id;primaryKey;autoIncrement"`
	EventActivityID int64  `gorm:"column:claim_event_activity_id;not null;uniqueIndex:idx_event_observation_natural,priority:1"`
	ObsType         string `gorm:"column:obs_type;not null;type:text;uniqueIndex:idx_event_observation_natural,priority:2"`
	ObsCode         string `gorm:"column:obs_code;not null;type:text;uniqueIndex:idx_event_observation_natural,priority:3"`
	ValueHash       string `gorm:"column:value_hash;not null;type:text;uniqueIndex:idx_event_observation_natural,priority:4"`

	Value     string `gorm:"column:value;type:text"`
	ValueType string `gorm:"column:value_type;type:text"`

	CreatedAt time.Time `gorm:"column:created_at;not null;default:now();type:timestamptz"`
}

// TableName specifies the table name for the EventObservation model
func (EventObservation) TableName() string {
	return "event_observations"
}
