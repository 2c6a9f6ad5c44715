package model

import "time"

// User is an operator known to the relay, identified by their Mattermost account.
type User struct {
	ID           int64   `gorm:"primaryKey"`
	MattermostID string  `gorm:"uniqueIndex;size:64"`
	Username     string  `gorm:"uniqueIndex;size:255;not null"`
	Authorized   bool    `gorm:"not null"`
	Admin        bool    `gorm:"not null"`
	Doorkey      *string `gorm:"uniqueIndex;size:64"`
	CreatedAt    time.Time
	UpdatedAt    time.Time

	// Associations
	Fingerprints []Fingerprint `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE"`
}
