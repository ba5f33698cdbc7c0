package models

import (
	"time"

	"gorm.io/gorm"
)

// Email status values recorded during ingestion/verification.
const (
	EmailStatusVerified   = "verified"
	EmailStatusInvalid    = "invalid"
	EmailStatusBounced    = "bounced"
	EmailStatusRisky      = "risky"
	EmailStatusDisposable = "disposable"
	EmailStatusRole       = "role"
)

// Contact is an email address owned by exactly one prospect.
type Contact struct {
	gorm.Model
	ProspectID uint `gorm:"not null;index" json:"prospect_id"`

	Email           string `gorm:"not null" json:"email"`
	EmailNormalized string `gorm:"uniqueIndex;not null" json:"email_normalized"`
	Name            string `json:"name"`
	Role            string `json:"role"`

	EmailStatus string `gorm:"default:'verified'" json:"email_status"`

	// OptedOut is monotonic: once set it is never cleared automatically.
	OptedOut   bool       `gorm:"default:false;index" json:"opted_out"`
	OptedOutAt *time.Time `json:"opted_out_at"`

	// Relations
	Prospect    Prospect     `json:"-"`
	Enrollments []Enrollment `gorm:"foreignKey:ContactID" json:"enrollments,omitempty"`
}

// Contactable reports whether the contact may receive outreach at all.
func (c *Contact) Contactable() bool {
	if c.OptedOut {
		return false
	}
	switch c.EmailStatus {
	case EmailStatusInvalid, EmailStatusBounced, EmailStatusDisposable:
		return false
	}
	return true
}
