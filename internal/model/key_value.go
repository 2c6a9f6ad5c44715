package model

import "time"

// KeyValue is a single entry of the persistent key-value store.
type KeyValue struct {
	Key       string `gorm:"primaryKey;size:128"`
	Value     string `gorm:"not null"`
	UpdatedAt time.Time
}
