package model

import "time"

// Fingerprint maps a sensor slot to the user whose template is stored in it.
// ID is the sensor's own slot number, never generated by the database.
type Fingerprint struct {
	ID         int       `gorm:"primaryKey;autoIncrement:false"`
	UserID     int64     `gorm:"not null;uniqueIndex:idx_fingerprint_owner_note"`
	Note       string    `gorm:"size:32;not null;uniqueIndex:idx_fingerprint_owner_note"`
	EnrolledOn time.Time `gorm:"type:date;not null"`
	Active     bool      `gorm:"not null"`

	// Associations
	User User `gorm:"constraint:OnDelete:CASCADE"`
}
