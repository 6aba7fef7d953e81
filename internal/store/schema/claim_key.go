package schema

import "time"

// ClaimKey maps a natural claim id to its internal surrogate key.
// Created on first sight ("get-or-create"), immutable, never deleted.
type ClaimKey struct {
	// ID is the internal database primary key
	ID int64 `gorm:"column:id;primaryKey;autoIncrement"`
	// ClaimID is the payer-facing natural claim identifier
	ClaimID string `gorm:"column:claim_id;not null;uniqueIndex;type:text"`
	// CreatedAt is the timestamp when this claim was first seen
	CreatedAt time.Time `gorm:"column:created_at;not null;default:now();type:timestamptz"`
}

// TableName specifies the table name for the ClaimKey model
func (ClaimKey) TableName() string {
	return "claim_keys"
}
