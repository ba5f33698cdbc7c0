package models

import (
	"time"

	"gorm.io/gorm"
)

// ProspectStatus describes where a prospect is in the outreach lifecycle.
type ProspectStatus string

const (
	StatusNew             ProspectStatus = "NEW"
	StatusEnriching       ProspectStatus = "ENRICHING"
	StatusReadyToContact  ProspectStatus = "READY_TO_CONTACT"
	StatusContactedEmail  ProspectStatus = "CONTACTED_EMAIL"
	StatusContactedManual ProspectStatus = "CONTACTED_MANUAL"
	StatusFollowupDue     ProspectStatus = "FOLLOWUP_DUE"
	StatusReplied         ProspectStatus = "REPLIED"
	StatusNegotiating     ProspectStatus = "NEGOTIATING"
	StatusWon             ProspectStatus = "WON"
	StatusLinkPending     ProspectStatus = "LINK_PENDING"
	StatusLinkVerified    ProspectStatus = "LINK_VERIFIED"
	StatusLinkLost        ProspectStatus = "LINK_LOST"
	StatusReContacted     ProspectStatus = "RE_CONTACTED"
	StatusLost            ProspectStatus = "LOST"
	StatusDoNotContact    ProspectStatus = "DO_NOT_CONTACT"
)

// IsTerminal reports whether the status is absorbing.
func (s ProspectStatus) IsTerminal() bool {
	return s == StatusLost || s == StatusDoNotContact
}

// CanTransition reports whether a prospect may move from s to target.
// DO_NOT_CONTACT is never exited; LOST may only be exited toward
// DO_NOT_CONTACT (a suppression hit outranks everything else).
func (s ProspectStatus) CanTransition(target ProspectStatus) bool {
	if s == target {
		return false
	}
	if s == StatusDoNotContact {
		return false
	}
	if s == StatusLost {
		return target == StatusDoNotContact
	}
	return true
}

// Prospect is a candidate website being pursued for a backlink.
type Prospect struct {
	gorm.Model
	Domain        string `gorm:"uniqueIndex;not null" json:"domain"`
	URL           string `json:"url"`
	NormalizedURL string `gorm:"uniqueIndex" json:"normalized_url"`

	Status ProspectStatus `gorm:"default:'NEW';index" json:"status"`
	Score  int            `gorm:"default:0" json:"score"`
	Tier   string         `json:"tier"` // A, B, C
	DA     int            `gorm:"default:0" json:"da"`

	Language string `gorm:"index" json:"language"`
	Country  string `json:"country"`

	FirstContactedAt *time.Time `json:"first_contacted_at"`
	LastContactedAt  *time.Time `json:"last_contacted_at"`
	NextFollowupAt   *time.Time `json:"next_followup_at"`

	// Relations
	Contacts    []Contact    `gorm:"foreignKey:ProspectID" json:"contacts,omitempty"`
	Backlinks   []Backlink   `gorm:"foreignKey:ProspectID" json:"backlinks,omitempty"`
	Enrollments []Enrollment `gorm:"foreignKey:ProspectID" json:"enrollments,omitempty"`
}
