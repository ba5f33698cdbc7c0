package utils

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"linkreach/models"
)

func TestActionTableCoversAllCategories(t *testing.T) {
	for _, category := range AllCategories {
		_, ok := actionTable[category]
		assert.True(t, ok, "category %q has no action rule", category)
	}
}

func TestActionForUnknownCategory(t *testing.T) {
	rule := ActionFor(ReplyCategory("garbled"))
	assert.Equal(t, actionTable[CategoryOther], rule)
}

func TestActionRules(t *testing.T) {
	cases := []struct {
		category ReplyCategory
		status   models.ProspectStatus
		action   EnrollmentAction
		reason   string
		suppress bool
		reply    bool
	}{
		{CategoryInterested, models.StatusNegotiating, ActionStop, "prospect_interested", false, true},
		{CategoryNotInterested, models.StatusLost, ActionStop, "prospect_declined", false, true},
		{CategoryAskingPrice, models.StatusNegotiating, ActionStop, "prospect_asking_price", false, true},
		{CategoryAskingQuestions, models.StatusReplied, ActionStop, "prospect_asking_questions", false, true},
		{CategoryAlreadyLinked, models.StatusLinkPending, ActionStop, "already_linked", false, true},
		{CategoryOutOfOffice, "", ActionContinue, "", false, false},
		{CategoryBounce, models.StatusLost, ActionStop, "bounce_reply", false, false},
		{CategoryUnsubscribe, models.StatusDoNotContact, ActionStop, "unsubscribed", true, true},
		{CategorySpam, models.StatusDoNotContact, ActionStop, "spam_complaint", true, true},
		{CategoryOther, models.StatusReplied, ActionPause, "", false, true},
	}

	for _, tc := range cases {
		t.Run(string(tc.category), func(t *testing.T) {
			rule := ActionFor(tc.category)
			assert.Equal(t, tc.status, rule.TargetStatus)
			assert.Equal(t, tc.action, rule.Action)
			assert.Equal(t, tc.reason, rule.StoppedReason)
			assert.Equal(t, tc.suppress, rule.Suppress)
			assert.Equal(t, tc.reply, rule.CountsAsReply)
		})
	}
}

func TestDecideActionsBelowThreshold(t *testing.T) {
	intents := DecideActions(Classification{Category: CategoryInterested, Confidence: 0.4})
	assert.Nil(t, intents, "low-confidence classifications must not produce side effects")
}

func TestDecideActionsInterested(t *testing.T) {
	intents := DecideActions(Classification{Category: CategoryInterested, Confidence: 0.92})
	require.Len(t, intents, 3)

	stop, ok := intents[0].(StopEnrollmentIntent)
	require.True(t, ok)
	assert.Equal(t, "prospect_interested", stop.Reason)

	status, ok := intents[1].(SetProspectStatusIntent)
	require.True(t, ok)
	assert.Equal(t, models.StatusNegotiating, status.Status)

	_, ok = intents[2].(BumpRepliedIntent)
	assert.True(t, ok)
}

func TestDecideActionsUnsubscribeSuppresses(t *testing.T) {
	intents := DecideActions(Classification{Category: CategoryUnsubscribe, Confidence: 0.99})

	var suppressed bool
	for _, intent := range intents {
		if s, ok := intent.(SuppressIntent); ok {
			suppressed = true
			assert.Equal(t, "unsubscribed", s.Reason)
		}
	}
	assert.True(t, suppressed, "unsubscribe replies must register a suppression")
}

func TestDecideActionsOutOfOffice(t *testing.T) {
	intents := DecideActions(Classification{Category: CategoryOutOfOffice, Confidence: 0.95})
	assert.Empty(t, intents, "out-of-office keeps the sequence running untouched")
}

func TestDecideActionsBounceDoesNotCountAsReply(t *testing.T) {
	intents := DecideActions(Classification{Category: CategoryBounce, Confidence: 0.9})
	for _, intent := range intents {
		_, bumped := intent.(BumpRepliedIntent)
		assert.False(t, bumped, "auto-responder bounces must not inflate reply counters")
	}
}

func TestClassifyFallsBackOnLLMError(t *testing.T) {
	rc := &ReplyClassifier{
		LLM:    &fakeLLM{err: assert.AnError},
		Logger: testLogger(),
	}
	got := rc.classify(context.Background(), "Bonjour, oui je suis intéressé", "fr")
	assert.Equal(t, CategoryOther, got.Category)
	assert.Zero(t, got.Confidence)
	assert.True(t, got.RequiresHuman)
}

func TestClassifyMarksLowConfidenceForHuman(t *testing.T) {
	rc := &ReplyClassifier{
		LLM: &fakeLLM{result: &CategoryResult{
			Category:   CategoryAskingQuestions,
			Confidence: 0.4,
			Summary:    "asks about editorial guidelines",
		}},
		Logger: testLogger(),
	}
	got := rc.classify(context.Background(), "Quelles sont vos consignes éditoriales ?", "fr")
	assert.Equal(t, CategoryAskingQuestions, got.Category)
	assert.True(t, got.RequiresHuman)
	assert.Nil(t, DecideActions(*got))
}
