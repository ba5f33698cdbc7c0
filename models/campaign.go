package models

import (
	"time"

	"gorm.io/gorm"
)

// Campaign is a named outreach sequence configuration for one language.
type Campaign struct {
	gorm.Model
	Name        string `gorm:"not null" json:"name"`
	Language    string `gorm:"not null;index" json:"language"`
	Description string `json:"description"`

	// ListUID overrides the per-language default mail-provider list.
	ListUID string `json:"list_uid"`

	// Targeting filters
	MinScore int    `gorm:"default:0" json:"min_score"`
	Tier     string `json:"tier"`

	// Sequence stop conditions
	StopOnReply       bool `gorm:"default:true" json:"stop_on_reply"`
	StopOnUnsubscribe bool `gorm:"default:true" json:"stop_on_unsubscribe"`
	StopOnBounce      bool `gorm:"default:true" json:"stop_on_bounce"`

	IsActive bool `gorm:"default:true" json:"is_active"`

	// Statistics (denormalized for performance)
	TotalEnrolled int `gorm:"default:0" json:"total_enrolled"`
	TotalReplied  int `gorm:"default:0" json:"total_replied"`
	TotalBounced  int `gorm:"default:0" json:"total_bounced"`
	TotalStopped  int `gorm:"default:0" json:"total_stopped"`

	// Relations
	Enrollments []Enrollment `gorm:"foreignKey:CampaignID" json:"enrollments,omitempty"`
}

// Enrollment statuses.
const (
	EnrollmentActive    = "active"
	EnrollmentPaused    = "paused"
	EnrollmentStopped   = "stopped"
	EnrollmentCompleted = "completed"
)

// Enrollment records one contact's participation in one campaign's
// send sequence. At most one exists per (contact, campaign) pair.
type Enrollment struct {
	gorm.Model
	ProspectID uint `gorm:"not null;index" json:"prospect_id"`
	ContactID  uint `gorm:"not null;index;uniqueIndex:idx_contact_campaign" json:"contact_id"`
	CampaignID uint `gorm:"not null;index;uniqueIndex:idx_contact_campaign" json:"campaign_id"`

	Status        string `gorm:"default:'active';index" json:"status"`
	StoppedReason string `json:"stopped_reason"`

	// CampaignRef is the correlation token embedded in outbound mail
	// custom fields; webhook and IMAP events are matched against it.
	CampaignRef   string `gorm:"uniqueIndex" json:"campaign_ref"`
	SubscriberUID string `gorm:"index" json:"subscriber_uid"`

	CurrentStep int        `gorm:"default:0" json:"current_step"`
	EnrolledAt  time.Time  `json:"enrolled_at"`
	LastSentAt  *time.Time `json:"last_sent_at"`
	CompletedAt *time.Time `json:"completed_at"`

	// Relations
	Prospect Prospect `json:"-"`
	Contact  Contact  `json:"-"`
	Campaign Campaign `json:"-"`
}

// Active reports whether the sequence is still running.
func (e *Enrollment) Active() bool {
	return e.Status == EnrollmentActive || e.Status == EnrollmentPaused
}
