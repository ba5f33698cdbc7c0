package utils

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"linkreach/models"
)

// ReplyCategory is the fixed classification set for inbound replies.
type ReplyCategory string

const (
	CategoryInterested      ReplyCategory = "interested"
	CategoryNotInterested   ReplyCategory = "not-interested"
	CategoryAskingPrice     ReplyCategory = "asking-price"
	CategoryAskingQuestions ReplyCategory = "asking-questions"
	CategoryAlreadyLinked   ReplyCategory = "already-linked"
	CategoryOutOfOffice     ReplyCategory = "out-of-office"
	CategoryBounce          ReplyCategory = "bounce"
	CategoryUnsubscribe     ReplyCategory = "unsubscribe"
	CategorySpam            ReplyCategory = "spam"
	CategoryOther           ReplyCategory = "other"
)

// AllCategories lists every category; the action table must cover each.
var AllCategories = []ReplyCategory{
	CategoryInterested,
	CategoryNotInterested,
	CategoryAskingPrice,
	CategoryAskingQuestions,
	CategoryAlreadyLinked,
	CategoryOutOfOffice,
	CategoryBounce,
	CategoryUnsubscribe,
	CategorySpam,
	CategoryOther,
}

func (c ReplyCategory) Valid() bool {
	for _, known := range AllCategories {
		if c == known {
			return true
		}
	}
	return false
}

// ConfidenceThreshold is the minimum LLM confidence before automatic
// status/enrollment changes are applied. Below it the classification is
// recorded and left for human review.
const ConfidenceThreshold = 0.85

// Enrollment actions a category can demand.
type EnrollmentAction string

const (
	ActionStop     EnrollmentAction = "stop"
	ActionPause    EnrollmentAction = "pause"
	ActionContinue EnrollmentAction = "continue"
)

// CategoryAction is the outcome rule for one reply category.
type CategoryAction struct {
	TargetStatus  models.ProspectStatus // "" means leave unchanged
	Action        EnrollmentAction
	StoppedReason string
	Suppress      bool // also register the contact's email
	CountsAsReply bool // bump Campaign.TotalReplied
}

// actionTable maps every category to its effects. out-of-office is the
// only category that lets the sequence keep running.
var actionTable = map[ReplyCategory]CategoryAction{
	CategoryInterested:      {TargetStatus: models.StatusNegotiating, Action: ActionStop, StoppedReason: "prospect_interested", CountsAsReply: true},
	CategoryNotInterested:   {TargetStatus: models.StatusLost, Action: ActionStop, StoppedReason: "prospect_declined", CountsAsReply: true},
	CategoryAskingPrice:     {TargetStatus: models.StatusNegotiating, Action: ActionStop, StoppedReason: "prospect_asking_price", CountsAsReply: true},
	CategoryAskingQuestions: {TargetStatus: models.StatusReplied, Action: ActionStop, StoppedReason: "prospect_asking_questions", CountsAsReply: true},
	CategoryAlreadyLinked:   {TargetStatus: models.StatusLinkPending, Action: ActionStop, StoppedReason: "already_linked", CountsAsReply: true},
	CategoryOutOfOffice:     {Action: ActionContinue},
	CategoryBounce:          {TargetStatus: models.StatusLost, Action: ActionStop, StoppedReason: "bounce_reply"},
	CategoryUnsubscribe:     {TargetStatus: models.StatusDoNotContact, Action: ActionStop, StoppedReason: "unsubscribed", Suppress: true, CountsAsReply: true},
	CategorySpam:            {TargetStatus: models.StatusDoNotContact, Action: ActionStop, StoppedReason: "spam_complaint", Suppress: true, CountsAsReply: true},
	CategoryOther:           {TargetStatus: models.StatusReplied, Action: ActionPause, CountsAsReply: true},
}

// ActionFor returns the rule for a category; unknown categories get the
// same safe handling as "other".
func ActionFor(category ReplyCategory) CategoryAction {
	if action, ok := actionTable[category]; ok {
		return action
	}
	return actionTable[CategoryOther]
}

// Classification is the recorded result of one categorize call.
type Classification struct {
	Category        ReplyCategory `json:"category"`
	Confidence      float64       `json:"confidence"`
	Summary         string        `json:"summary"`
	SuggestedAction string        `json:"suggested_action"`
	RequiresHuman   bool          `json:"requires_human"`
}

// Intents: the decision layer emits these; a single transactional
// applier executes them, so the mapping stays unit-testable.

type Intent interface{ intent() }

type StopEnrollmentIntent struct{ Reason string }
type PauseEnrollmentIntent struct{}
type SetProspectStatusIntent struct{ Status models.ProspectStatus }
type SuppressIntent struct{ Reason string }
type BumpRepliedIntent struct{}

func (StopEnrollmentIntent) intent()    {}
func (PauseEnrollmentIntent) intent()   {}
func (SetProspectStatusIntent) intent() {}
func (SuppressIntent) intent()          {}
func (BumpRepliedIntent) intent()       {}

// DecideActions maps a classification to the intents to execute.
// Below the confidence threshold nothing is emitted.
func DecideActions(c Classification) []Intent {
	if c.Confidence < ConfidenceThreshold {
		return nil
	}

	rule := ActionFor(c.Category)
	var intents []Intent

	switch rule.Action {
	case ActionStop:
		intents = append(intents, StopEnrollmentIntent{Reason: rule.StoppedReason})
	case ActionPause:
		intents = append(intents, PauseEnrollmentIntent{})
	}
	if rule.TargetStatus != "" {
		intents = append(intents, SetProspectStatusIntent{Status: rule.TargetStatus})
	}
	if rule.Suppress {
		intents = append(intents, SuppressIntent{Reason: rule.StoppedReason})
	}
	if rule.CountsAsReply {
		intents = append(intents, BumpRepliedIntent{})
	}
	return intents
}

// ReplyClassifier categorizes inbound reply text and applies the
// resulting intents.
type ReplyClassifier struct {
	DB           *gorm.DB
	LLM          LLMClient
	Suppressions *SuppressionGuard
	Logger       *logrus.Logger
}

func NewReplyClassifier(db *gorm.DB, llm LLMClient, suppressions *SuppressionGuard, logger *logrus.Logger) *ReplyClassifier {
	return &ReplyClassifier{
		DB:           db,
		LLM:          llm,
		Suppressions: suppressions,
		Logger:       logger,
	}
}

// Categorize classifies replyText for one enrollment and applies the
// category rules when confident. It never raises on LLM failure: the
// classification degrades to other/0/requiresHuman and is still
// recorded. Re-running on the same reply is safe: state guards keep
// stopped enrollments stopped and terminal prospects terminal.
func (rc *ReplyClassifier) Categorize(ctx context.Context, prospectID, enrollmentID uint, replyText string) (*Classification, error) {
	var prospect models.Prospect
	if err := rc.DB.First(&prospect, prospectID).Error; err != nil {
		return nil, err
	}
	var enrollment models.Enrollment
	if err := rc.DB.First(&enrollment, enrollmentID).Error; err != nil {
		return nil, err
	}

	classification := rc.classify(ctx, replyText, prospect.Language)

	intents := DecideActions(*classification)
	if err := rc.apply(prospectID, enrollmentID, *classification, intents); err != nil {
		return nil, err
	}
	return classification, nil
}

func (rc *ReplyClassifier) classify(ctx context.Context, replyText, langHint string) *Classification {
	result, err := rc.LLM.CategorizeReply(ctx, replyText, langHint)
	if err != nil {
		rc.Logger.WithError(err).Warn("reply classification failed, falling back to human review")
		return &Classification{
			Category:      CategoryOther,
			Confidence:    0,
			RequiresHuman: true,
		}
	}
	return &Classification{
		Category:        result.Category,
		Confidence:      result.Confidence,
		Summary:         result.Summary,
		SuggestedAction: result.SuggestedAction,
		RequiresHuman:   result.Confidence < ConfidenceThreshold,
	}
}

// apply executes the intents and the mandatory REPLY_CLASSIFIED event
// in one transaction, re-checking current state so webhook races and
// job retries cannot double-apply side effects.
func (rc *ReplyClassifier) apply(prospectID, enrollmentID uint, c Classification, intents []Intent) error {
	return rc.DB.Transaction(func(tx *gorm.DB) error {
		var prospect models.Prospect
		if err := tx.First(&prospect, prospectID).Error; err != nil {
			return err
		}
		var enrollment models.Enrollment
		if err := tx.First(&enrollment, enrollmentID).Error; err != nil {
			return err
		}
		var contact models.Contact
		if err := tx.First(&contact, enrollment.ContactID).Error; err != nil {
			return err
		}

		for _, intent := range intents {
			switch it := intent.(type) {
			case StopEnrollmentIntent:
				if enrollment.Active() {
					if err := tx.Model(&models.Enrollment{}).Where("id = ?", enrollment.ID).
						Updates(map[string]interface{}{
							"status":         models.EnrollmentStopped,
							"stopped_reason": it.Reason,
						}).Error; err != nil {
						return err
					}
					if err := tx.Model(&models.Campaign{}).Where("id = ?", enrollment.CampaignID).
						Update("total_stopped", gorm.Expr("total_stopped + 1")).Error; err != nil {
						return err
					}
				}
			case PauseEnrollmentIntent:
				if enrollment.Status == models.EnrollmentActive {
					if err := tx.Model(&models.Enrollment{}).Where("id = ?", enrollment.ID).
						Update("status", models.EnrollmentPaused).Error; err != nil {
						return err
					}
				}
			case SetProspectStatusIntent:
				if prospect.Status.CanTransition(it.Status) {
					if err := tx.Model(&models.Prospect{}).Where("id = ?", prospect.ID).
						Update("status", it.Status).Error; err != nil {
						return err
					}
				}
			case SuppressIntent:
				if err := rc.Suppressions.AddTx(tx, contact.EmailNormalized, it.Reason, models.SuppressionSourceClassifier); err != nil {
					return err
				}
			case BumpRepliedIntent:
				if enrollment.Active() {
					if err := tx.Model(&models.Campaign{}).Where("id = ?", enrollment.CampaignID).
						Update("total_replied", gorm.Expr("total_replied + 1")).Error; err != nil {
						return err
					}
				}
			}
		}

		return models.AppendEvent(tx, &models.Event{
			ProspectID:   prospectID,
			ContactID:    Pointer(enrollment.ContactID),
			EnrollmentID: Pointer(enrollmentID),
			EventType:    models.EventReplyClassified,
			EventSource:  models.SourceClassifier,
			Data: map[string]any{
				"category":         string(c.Category),
				"confidence":       c.Confidence,
				"summary":          c.Summary,
				"suggested_action": c.SuggestedAction,
				"requires_human":   c.RequiresHuman,
				"applied":          len(intents) > 0,
			},
			OccurredAt: time.Now().UTC(),
		})
	})
}
