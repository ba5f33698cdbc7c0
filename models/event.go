package models

import (
	"time"

	"gorm.io/gorm"
)

// Event types appended by the lifecycle engines.
const (
	EventEnrolled          = "ENROLLED"
	EventEnrollmentBlocked = "ENROLLMENT_BLOCKED"
	EventEmailSent         = "EMAIL_SENT"
	EventEmailBounced      = "EMAIL_BOUNCED"
	EventEmailOpened       = "EMAIL_OPENED"
	EventEmailClicked      = "EMAIL_CLICKED"
	EventUnsubscribed      = "UNSUBSCRIBED"
	EventComplaint         = "COMPLAINT"
	EventReplyClassified   = "REPLY_CLASSIFIED"
	EventSuppressed        = "SUPPRESSED"
	EventStatusChanged     = "STATUS_CHANGED"
	EventBacklinkVerified  = "BACKLINK_VERIFIED"
	EventLinkLost          = "LINK_LOST"
	EventWebhookFailed     = "WEBHOOK_FAILED"
)

// Event sources.
const (
	SourceWebhook    = "webhook"
	SourceIMAP       = "imap"
	SourceClassifier = "classifier"
	SourceVerifier   = "verifier"
	SourceOutreach   = "outreach"
	SourceOperator   = "operator"
	SourceSystem     = "system"
)

// Event is an immutable audit record. Every state transition in the
// lifecycle engines appends exactly one.
type Event struct {
	gorm.Model
	ProspectID   uint  `gorm:"not null;index" json:"prospect_id"`
	ContactID    *uint `gorm:"index" json:"contact_id,omitempty"`
	EnrollmentID *uint `gorm:"index" json:"enrollment_id,omitempty"`

	EventType   string         `gorm:"not null;index" json:"event_type"`
	EventSource string         `gorm:"not null" json:"event_source"`
	Data        map[string]any `gorm:"type:jsonb;serializer:json" json:"data"`

	OccurredAt time.Time `gorm:"not null" json:"occurred_at"`
}

// AppendEvent writes one audit record using tx, which may be a
// transaction handle so the event commits with the mutation it records.
func AppendEvent(tx *gorm.DB, ev *Event) error {
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now().UTC()
	}
	return tx.Create(ev).Error
}
