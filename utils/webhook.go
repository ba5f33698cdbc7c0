package utils

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"linkreach/models"
)

// WebhookEvent is the provider's inbound payload. Delivery is neither
// reliable nor ordered; the reconciler tolerates duplicates and gaps.
type WebhookEvent struct {
	Event         string            `json:"event" validate:"required"`
	SubscriberUID string            `json:"subscriber_uid"`
	ListUID       string            `json:"list_uid"`
	CampaignUID   string            `json:"campaign_uid"`
	Email         string            `json:"email"`
	BounceType    string            `json:"bounce_type"` // hard or soft
	Timestamp     int64             `json:"timestamp"`
	CustomFields  map[string]string `json:"custom_fields"`
}

// CorrelationRef extracts the correlation token the enrollment embedded
// in the subscriber's custom fields.
func (ev *WebhookEvent) CorrelationRef() string {
	if ev.CustomFields == nil {
		return ""
	}
	return ev.CustomFields["CAMPAIGN_REF"]
}

// dedupKey fingerprints an event for redelivery detection.
func (ev *WebhookEvent) dedupKey() string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%s|%s|%d",
		ev.Event, ev.SubscriberUID, ev.CorrelationRef(), ev.BounceType, ev.Timestamp)))
	return "webhook:seen:" + hex.EncodeToString(sum[:16])
}

// WebhookReconciler maps provider events onto enrollment/contact/
// prospect state. Every handler is idempotent: a redis redelivery
// fingerprint plus current-state guards keep repeated events from
// double-applying.
type WebhookReconciler struct {
	DB           *gorm.DB
	Redis        *redis.Client
	Suppressions *SuppressionGuard
	Logger       *logrus.Logger
}

func NewWebhookReconciler(db *gorm.DB, rdb *redis.Client, suppressions *SuppressionGuard, logger *logrus.Logger) *WebhookReconciler {
	return &WebhookReconciler{
		DB:           db,
		Redis:        rdb,
		Suppressions: suppressions,
		Logger:       logger,
	}
}

// Handle reconciles one provider event. Unmatched events are logged and
// discarded; the provider is never made to retry.
func (wr *WebhookReconciler) Handle(ctx context.Context, ev *WebhookEvent) error {
	if wr.alreadySeen(ctx, ev) {
		wr.Logger.WithField("event", ev.Event).Debug("webhook redelivery ignored")
		return nil
	}

	enrollment := wr.match(ev)
	if enrollment == nil {
		wr.Logger.WithFields(logrus.Fields{
			"event":          ev.Event,
			"subscriber_uid": ev.SubscriberUID,
			"campaign_ref":   ev.CorrelationRef(),
		}).Warn("webhook event matched no enrollment, discarding")
		return nil
	}

	switch ev.Event {
	case "sent", "delivery":
		return wr.handleSent(enrollment)
	case "bounce":
		return wr.handleBounce(enrollment, ev.BounceType)
	case "unsubscribe":
		return wr.handleOptOut(enrollment, "unsubscribe", models.EventUnsubscribed)
	case "complaint":
		// A spam complaint is treated with identical severity.
		return wr.handleOptOut(enrollment, "complaint", models.EventComplaint)
	case "open":
		return wr.logOnly(enrollment, models.EventEmailOpened)
	case "click":
		return wr.logOnly(enrollment, models.EventEmailClicked)
	case "subscribe":
		wr.Logger.WithField("enrollment_id", enrollment.ID).Debug("subscribe acknowledged")
		return nil
	default:
		wr.Logger.WithField("event", ev.Event).Warn("unknown webhook event type, discarding")
		return nil
	}
}

// alreadySeen marks the event fingerprint and reports redelivery.
// Without redis the state guards below still keep handlers idempotent.
func (wr *WebhookReconciler) alreadySeen(ctx context.Context, ev *WebhookEvent) bool {
	if wr.Redis == nil {
		return false
	}
	set, err := wr.Redis.SetNX(ctx, ev.dedupKey(), 1, 24*time.Hour).Result()
	if err != nil {
		wr.Logger.WithError(err).Warn("webhook dedup store unavailable")
		return false
	}
	return !set
}

// match resolves the enrollment: correlation token exact match first,
// then subscriber UID.
func (wr *WebhookReconciler) match(ev *WebhookEvent) *models.Enrollment {
	var enrollment models.Enrollment

	if ref := ev.CorrelationRef(); ref != "" {
		if err := wr.DB.Where("campaign_ref = ?", ref).First(&enrollment).Error; err == nil {
			return &enrollment
		}
	}
	if ev.SubscriberUID != "" {
		if err := wr.DB.Where("subscriber_uid = ?", ev.SubscriberUID).First(&enrollment).Error; err == nil {
			return &enrollment
		}
	}
	return nil
}

func (wr *WebhookReconciler) handleSent(enrollment *models.Enrollment) error {
	if !enrollment.Active() {
		return nil
	}
	now := time.Now().UTC()
	return wr.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.Enrollment{}).Where("id = ?", enrollment.ID).
			Updates(map[string]interface{}{
				"current_step": gorm.Expr("current_step + 1"),
				"last_sent_at": now,
			}).Error; err != nil {
			return err
		}
		if err := tx.Model(&models.Prospect{}).Where("id = ?", enrollment.ProspectID).
			Update("last_contacted_at", now).Error; err != nil {
			return err
		}
		return models.AppendEvent(tx, &models.Event{
			ProspectID:   enrollment.ProspectID,
			ContactID:    Pointer(enrollment.ContactID),
			EnrollmentID: Pointer(enrollment.ID),
			EventType:    models.EventEmailSent,
			EventSource:  models.SourceWebhook,
			Data:         map[string]any{"step": enrollment.CurrentStep + 1},
			OccurredAt:   now,
		})
	})
}

// handleBounce stops the enrollment, invalidates the contact and marks
// the prospect LOST. Only hard bounces suppress the address.
func (wr *WebhookReconciler) handleBounce(enrollment *models.Enrollment, bounceType string) error {
	if bounceType == "" {
		bounceType = "hard"
	}
	return wr.DB.Transaction(func(tx *gorm.DB) error {
		var current models.Enrollment
		if err := tx.First(&current, enrollment.ID).Error; err != nil {
			return err
		}
		if !current.Active() {
			// Already stopped by an earlier delivery of this event.
			return nil
		}

		if err := tx.Model(&models.Enrollment{}).Where("id = ?", current.ID).
			Updates(map[string]interface{}{
				"status":         models.EnrollmentStopped,
				"stopped_reason": "bounce_" + bounceType,
			}).Error; err != nil {
			return err
		}

		var contact models.Contact
		if err := tx.First(&contact, current.ContactID).Error; err != nil {
			return err
		}
		if err := tx.Model(&models.Contact{}).Where("id = ?", contact.ID).
			Update("email_status", models.EmailStatusInvalid).Error; err != nil {
			return err
		}

		var prospect models.Prospect
		if err := tx.First(&prospect, current.ProspectID).Error; err != nil {
			return err
		}
		if prospect.Status.CanTransition(models.StatusLost) {
			if err := tx.Model(&models.Prospect{}).Where("id = ?", prospect.ID).
				Update("status", models.StatusLost).Error; err != nil {
				return err
			}
		}

		if err := tx.Model(&models.Campaign{}).Where("id = ?", current.CampaignID).
			Update("total_bounced", gorm.Expr("total_bounced + 1")).Error; err != nil {
			return err
		}

		if bounceType == "hard" {
			if err := wr.Suppressions.AddTx(tx, contact.EmailNormalized, "hard_bounce", models.SuppressionSourceWebhook); err != nil {
				return err
			}
		}

		return models.AppendEvent(tx, &models.Event{
			ProspectID:   current.ProspectID,
			ContactID:    Pointer(current.ContactID),
			EnrollmentID: Pointer(current.ID),
			EventType:    models.EventEmailBounced,
			EventSource:  models.SourceWebhook,
			Data:         map[string]any{"bounce_type": bounceType},
		})
	})
}

// handleOptOut covers unsubscribe and complaint: stop, opt out,
// DO_NOT_CONTACT, and unconditional suppression.
func (wr *WebhookReconciler) handleOptOut(enrollment *models.Enrollment, reason, eventType string) error {
	return wr.DB.Transaction(func(tx *gorm.DB) error {
		var current models.Enrollment
		if err := tx.First(&current, enrollment.ID).Error; err != nil {
			return err
		}

		if current.Active() {
			if err := tx.Model(&models.Enrollment{}).Where("id = ?", current.ID).
				Updates(map[string]interface{}{
					"status":         models.EnrollmentStopped,
					"stopped_reason": reason,
				}).Error; err != nil {
				return err
			}
		}

		var contact models.Contact
		if err := tx.First(&contact, current.ContactID).Error; err != nil {
			return err
		}

		var prospect models.Prospect
		if err := tx.First(&prospect, current.ProspectID).Error; err != nil {
			return err
		}
		if prospect.Status.CanTransition(models.StatusDoNotContact) {
			if err := tx.Model(&models.Prospect{}).Where("id = ?", prospect.ID).
				Update("status", models.StatusDoNotContact).Error; err != nil {
				return err
			}
		}

		// AddTx opts the contact out and is a no-op when already
		// registered, so redelivered events stay safe.
		if err := wr.Suppressions.AddTx(tx, contact.EmailNormalized, reason, models.SuppressionSourceWebhook); err != nil {
			return err
		}

		return models.AppendEvent(tx, &models.Event{
			ProspectID:   current.ProspectID,
			ContactID:    Pointer(current.ContactID),
			EnrollmentID: Pointer(current.ID),
			EventType:    eventType,
			EventSource:  models.SourceWebhook,
			Data:         map[string]any{"reason": reason},
		})
	})
}

func (wr *WebhookReconciler) logOnly(enrollment *models.Enrollment, eventType string) error {
	return models.AppendEvent(wr.DB, &models.Event{
		ProspectID:   enrollment.ProspectID,
		ContactID:    Pointer(enrollment.ContactID),
		EnrollmentID: Pointer(enrollment.ID),
		EventType:    eventType,
		EventSource:  models.SourceWebhook,
	})
}
