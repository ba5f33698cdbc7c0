package utils

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"linkreach/models"
)

// SuppressionChecker is the narrow read side consumed by the outreach
// engine before any send.
type SuppressionChecker interface {
	IsSuppressed(email string) (bool, error)
}

// SuppressionGuard is the authoritative do-not-contact registry. Every
// outbound path consults it synchronously; adding an entry cascades to
// contacts and their active enrollments.
type SuppressionGuard struct {
	DB     *gorm.DB
	Logger *logrus.Logger
}

func NewSuppressionGuard(db *gorm.DB, logger *logrus.Logger) *SuppressionGuard {
	return &SuppressionGuard{DB: db, Logger: logger}
}

// IsSuppressed reports whether the normalized address is registered.
func (sg *SuppressionGuard) IsSuppressed(email string) (bool, error) {
	var count int64
	err := sg.DB.Model(&models.SuppressionEntry{}).
		Where("email_normalized = ?", NormalizeEmail(email)).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("suppression lookup: %w", err)
	}
	return count > 0, nil
}

// Add registers an email, idempotently, and cascades in one
// transaction: contacts sharing the address are opted out and every
// active enrollment of theirs is stopped with reason
// "suppressed:<reason>". Re-adding an existing entry is a no-op.
func (sg *SuppressionGuard) Add(email, reason, source string) error {
	return sg.DB.Transaction(func(tx *gorm.DB) error {
		return sg.AddTx(tx, email, reason, source)
	})
}

// AddTx is Add running inside the caller's transaction, so cross-engine
// cascades (reply classification that also suppresses) commit
// atomically with the rest of the operation.
func (sg *SuppressionGuard) AddTx(tx *gorm.DB, email, reason, source string) error {
	normalized := NormalizeEmail(email)
	if normalized == "" {
		return fmt.Errorf("suppression: empty email")
	}

	entry := models.SuppressionEntry{
		EmailNormalized: normalized,
		Reason:          reason,
		Source:          source,
	}
	if err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "email_normalized"}},
		DoNothing: true,
	}).Create(&entry).Error; err != nil {
		return fmt.Errorf("suppression upsert: %w", err)
	}

	var contacts []models.Contact
	if err := tx.Where("email_normalized = ?", normalized).Find(&contacts).Error; err != nil {
		return err
	}

	now := time.Now().UTC()
	for _, contact := range contacts {
		if !contact.OptedOut {
			if err := tx.Model(&models.Contact{}).Where("id = ?", contact.ID).
				Updates(map[string]interface{}{
					"opted_out":    true,
					"opted_out_at": now,
				}).Error; err != nil {
				return err
			}
		}

		var enrollments []models.Enrollment
		if err := tx.Where("contact_id = ? AND status IN ?", contact.ID,
			[]string{models.EnrollmentActive, models.EnrollmentPaused}).
			Find(&enrollments).Error; err != nil {
			return err
		}
		for _, enr := range enrollments {
			if err := tx.Model(&models.Enrollment{}).Where("id = ?", enr.ID).
				Updates(map[string]interface{}{
					"status":         models.EnrollmentStopped,
					"stopped_reason": "suppressed:" + reason,
				}).Error; err != nil {
				return err
			}
		}

		if err := models.AppendEvent(tx, &models.Event{
			ProspectID:  contact.ProspectID,
			ContactID:   Pointer(contact.ID),
			EventType:   models.EventSuppressed,
			EventSource: source,
			Data: map[string]any{
				"email":  normalized,
				"reason": reason,
			},
		}); err != nil {
			return err
		}
	}

	sg.Logger.WithFields(logrus.Fields{
		"email":    normalized,
		"reason":   reason,
		"source":   source,
		"contacts": len(contacts),
	}).Info("suppression added")
	return nil
}

// Remove deletes an entry by ID. Manual operator override only:
// contacts stay opted out, this merely permits future manual review.
func (sg *SuppressionGuard) Remove(id uint) error {
	result := sg.DB.Delete(&models.SuppressionEntry{}, id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	sg.Logger.WithField("id", id).Warn("suppression entry removed by operator")
	return nil
}
