package utils

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"linkreach/config"
	"linkreach/models"
)

// Enrollment block reasons recorded on ENROLLMENT_BLOCKED events.
const (
	BlockedDryRun            = "dry_run"
	BlockedProspectTerminal  = "prospect_terminal"
	BlockedNoContact         = "no_contact"
	BlockedContactInvalid    = "contact_invalid"
	BlockedSuppressed        = "suppressed"
	BlockedAlreadyRegistered = "already_registered"
	BlockedAlreadyEnrolled   = "already_enrolled"
)

// EnrollmentManager enrolls a prospect's contact into a campaign via
// the mail provider. Suppression is checked synchronously before any
// external call; the unique (contact, campaign) constraint is the
// idempotency key for retries.
type EnrollmentManager struct {
	DB           *gorm.DB
	Mailer       MailerClient
	LLM          LLMClient
	Suppressions SuppressionChecker
	Logger       *logrus.Logger

	mu              sync.RWMutex
	dryRun          bool
	defaultListUIDs map[string]string
}

func NewEnrollmentManager(db *gorm.DB, mailer MailerClient, llm LLMClient, suppressions SuppressionChecker, cfg *config.Config, logger *logrus.Logger) *EnrollmentManager {
	return &EnrollmentManager{
		DB:              db,
		Mailer:          mailer,
		LLM:             llm,
		Suppressions:    suppressions,
		Logger:          logger,
		dryRun:          cfg.DryRun,
		defaultListUIDs: cfg.DefaultListUIDs,
	}
}

// Reload applies changed outbound settings without rebuilding the engine.
func (em *EnrollmentManager) Reload(cfg *config.Config) {
	em.mu.Lock()
	defer em.mu.Unlock()
	em.dryRun = cfg.DryRun
	em.defaultListUIDs = cfg.DefaultListUIDs
}

// CorrelationToken builds the deterministic token embedded in outbound
// custom fields and later matched against webhook and IMAP events.
func CorrelationToken(campaignID, prospectID uint, at time.Time) string {
	return fmt.Sprintf("%d-%d-%d", campaignID, prospectID, at.Unix())
}

// Enroll runs the precondition chain and, on success, registers the
// contact with the provider and commits the enrollment atomically.
// Failed preconditions append an ENROLLMENT_BLOCKED event and return
// nil; only configuration and infrastructure problems return an error.
func (em *EnrollmentManager) Enroll(ctx context.Context, prospectID, campaignID uint) error {
	var prospect models.Prospect
	if err := em.DB.First(&prospect, prospectID).Error; err != nil {
		return fmt.Errorf("enroll: load prospect %d: %w", prospectID, err)
	}
	var campaign models.Campaign
	if err := em.DB.First(&campaign, campaignID).Error; err != nil {
		return fmt.Errorf("enroll: load campaign %d: %w", campaignID, err)
	}

	em.mu.RLock()
	dryRun := em.dryRun
	em.mu.RUnlock()

	if reason := preflightBlock(&prospect, dryRun); reason != "" {
		return em.blocked(&prospect, nil, campaignID, reason)
	}

	contact, reason, err := em.pickContact(prospectID)
	if err != nil {
		return fmt.Errorf("enroll: suppression check: %w", err)
	}
	if contact == nil {
		return em.blocked(&prospect, nil, campaignID, reason)
	}

	listUID, err := em.resolveListUID(&campaign)
	if err != nil {
		return err
	}

	existing, err := em.Mailer.SearchSubscriber(ctx, listUID, contact.EmailNormalized)
	if err != nil {
		return fmt.Errorf("enroll: provider search: %w", err)
	}
	if existing != nil {
		return em.blocked(&prospect, contact, campaignID, BlockedAlreadyRegistered)
	}

	var count int64
	if err := em.DB.Model(&models.Enrollment{}).
		Where("contact_id = ? AND campaign_id = ?", contact.ID, campaignID).
		Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return em.blocked(&prospect, contact, campaignID, BlockedAlreadyEnrolled)
	}

	// Best effort: an unavailable LLM never blocks enrollment.
	personalization, err := em.LLM.Personalize(ctx, campaign.Language, prospect.Domain, contact.Name, prospect.Country)
	if err != nil {
		em.Logger.WithError(err).WithField("prospect_id", prospectID).Warn("personalization failed, sending without")
		personalization = ""
	}

	now := time.Now().UTC()
	token := CorrelationToken(campaignID, prospectID, now)

	subscriber, err := em.Mailer.CreateSubscriber(ctx, listUID, map[string]string{
		"EMAIL":           contact.EmailNormalized,
		"NAME":            contact.Name,
		"CAMPAIGN_REF":    token,
		"PERSONALIZATION": personalization,
		"TIER":            prospect.Tier,
		"SCORE_BUCKET":    scoreBucket(prospect.Score),
		"DA_BUCKET":       daBucket(prospect.DA),
		"LANGUAGE":        campaign.Language,
		"COUNTRY":         prospect.Country,
		"CAMPAIGN":        campaign.Name,
	})
	if err != nil {
		return fmt.Errorf("enroll: create subscriber: %w", err)
	}

	return em.DB.Transaction(func(tx *gorm.DB) error {
		enrollment := models.Enrollment{
			ProspectID:    prospectID,
			ContactID:     contact.ID,
			CampaignID:    campaignID,
			Status:        models.EnrollmentActive,
			CampaignRef:   token,
			SubscriberUID: subscriber.UID,
			EnrolledAt:    now,
		}
		if err := tx.Create(&enrollment).Error; err != nil {
			return fmt.Errorf("enroll: create enrollment: %w", err)
		}

		updates := map[string]interface{}{
			"last_contacted_at": now,
		}
		if prospect.Status.CanTransition(models.StatusContactedEmail) {
			updates["status"] = models.StatusContactedEmail
		}
		if prospect.Status == models.StatusNew || prospect.Status == models.StatusReadyToContact {
			updates["first_contacted_at"] = now
		}
		if err := tx.Model(&models.Prospect{}).Where("id = ?", prospectID).
			Updates(updates).Error; err != nil {
			return err
		}

		if err := tx.Model(&models.Campaign{}).Where("id = ?", campaignID).
			Update("total_enrolled", gorm.Expr("total_enrolled + 1")).Error; err != nil {
			return err
		}

		return models.AppendEvent(tx, &models.Event{
			ProspectID:   prospectID,
			ContactID:    Pointer(contact.ID),
			EnrollmentID: Pointer(enrollment.ID),
			EventType:    models.EventEnrolled,
			EventSource:  models.SourceOutreach,
			Data: map[string]any{
				"campaign_id":     campaignID,
				"campaign_ref":    token,
				"subscriber_uid":  subscriber.UID,
				"list_uid":        listUID,
				"personalization": personalization != "",
			},
			OccurredAt: now,
		})
	})
}

// preflightBlock reports a block decidable from the prospect alone.
// Terminal prospects never leave their status, so no send may start
// for them.
func preflightBlock(prospect *models.Prospect, dryRun bool) string {
	if dryRun {
		return BlockedDryRun
	}
	if prospect.Status.IsTerminal() {
		return BlockedProspectTerminal
	}
	return ""
}

// pickContact returns the first contact allowed to receive outreach:
// contactable and not on the suppression list.
func (em *EnrollmentManager) pickContact(prospectID uint) (*models.Contact, string, error) {
	var contacts []models.Contact
	if err := em.DB.Where("prospect_id = ?", prospectID).Order("id asc").Find(&contacts).Error; err != nil {
		em.Logger.WithError(err).Error("enroll: contact lookup failed")
		return nil, BlockedNoContact, nil
	}
	return selectContact(contacts, em.Suppressions.IsSuppressed)
}

// selectContact walks the candidates in order and, when none qualify,
// reports why: no contacts at all, none contactable, or every
// contactable address suppressed.
func selectContact(contacts []models.Contact, isSuppressed func(string) (bool, error)) (*models.Contact, string, error) {
	if len(contacts) == 0 {
		return nil, BlockedNoContact, nil
	}
	sawContactable := false
	for i := range contacts {
		if !contacts[i].Contactable() {
			continue
		}
		sawContactable = true
		suppressed, err := isSuppressed(contacts[i].EmailNormalized)
		if err != nil {
			return nil, "", err
		}
		if !suppressed {
			return &contacts[i], "", nil
		}
	}
	if sawContactable {
		return nil, BlockedSuppressed, nil
	}
	return nil, BlockedContactInvalid, nil
}

// resolveListUID picks the provider list: campaign override, then the
// settings table, then the per-language environment default. Missing
// configuration is a hard error, not a block.
func (em *EnrollmentManager) resolveListUID(campaign *models.Campaign) (string, error) {
	if campaign.ListUID != "" {
		return campaign.ListUID, nil
	}

	key := "list_uid_" + campaign.Language
	value, err := models.GetSetting(em.DB, key)
	if err != nil {
		return "", fmt.Errorf("enroll: settings lookup %q: %w", key, err)
	}
	if value != "" {
		return value, nil
	}

	em.mu.RLock()
	fallback := em.defaultListUIDs[campaign.Language]
	em.mu.RUnlock()
	if fallback != "" {
		return fallback, nil
	}

	return "", fmt.Errorf("enroll: no list configured for language %q", campaign.Language)
}

func (em *EnrollmentManager) blocked(prospect *models.Prospect, contact *models.Contact, campaignID uint, reason string) error {
	ev := &models.Event{
		ProspectID:  prospect.ID,
		EventType:   models.EventEnrollmentBlocked,
		EventSource: models.SourceOutreach,
		Data: map[string]any{
			"campaign_id": campaignID,
			"reason":      reason,
		},
	}
	if contact != nil {
		ev.ContactID = Pointer(contact.ID)
	}
	if err := models.AppendEvent(em.DB, ev); err != nil {
		return err
	}
	em.Logger.WithFields(logrus.Fields{
		"prospect_id": prospect.ID,
		"campaign_id": campaignID,
		"reason":      reason,
	}).Info("enrollment blocked")
	return nil
}

func scoreBucket(score int) string {
	switch {
	case score >= 70:
		return "high"
	case score >= 40:
		return "medium"
	default:
		return "low"
	}
}

func daBucket(da int) string {
	switch {
	case da >= 60:
		return "da60+"
	case da >= 30:
		return "da30-59"
	default:
		return "da0-29"
	}
}
