package models

import "gorm.io/gorm"

// Suppression sources.
const (
	SuppressionSourceWebhook    = "webhook"
	SuppressionSourceReply      = "reply"
	SuppressionSourceManual     = "manual"
	SuppressionSourceClassifier = "classifier"
)

// SuppressionEntry is a permanent do-not-contact registration for a
// normalized email. Presence is an absolute gate on any send.
type SuppressionEntry struct {
	gorm.Model
	EmailNormalized string `gorm:"uniqueIndex;not null" json:"email_normalized"`
	Reason          string `gorm:"not null" json:"reason"`
	Source          string `gorm:"not null" json:"source"`
}
