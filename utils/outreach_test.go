package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"linkreach/models"
)

func TestPreflightBlock(t *testing.T) {
	assert.Equal(t, BlockedDryRun, preflightBlock(&models.Prospect{Status: models.StatusNew}, true))

	// Terminal prospects may never be pulled back into a sequence.
	assert.Equal(t, BlockedProspectTerminal, preflightBlock(&models.Prospect{Status: models.StatusDoNotContact}, false))
	assert.Equal(t, BlockedProspectTerminal, preflightBlock(&models.Prospect{Status: models.StatusLost}, false))

	for _, status := range []models.ProspectStatus{models.StatusNew, models.StatusReadyToContact, models.StatusReplied, models.StatusLinkLost} {
		assert.Empty(t, preflightBlock(&models.Prospect{Status: status}, false), "status %s", status)
	}
}

func TestSelectContact(t *testing.T) {
	verified := models.Contact{EmailNormalized: "one@site.fr", EmailStatus: models.EmailStatusVerified}
	bounced := models.Contact{EmailNormalized: "dead@site.fr", EmailStatus: models.EmailStatusBounced}

	none := &fakeSuppressions{}

	contact, reason, err := selectContact(nil, none.IsSuppressed)
	require.NoError(t, err)
	assert.Nil(t, contact)
	assert.Equal(t, BlockedNoContact, reason)

	contact, reason, err = selectContact([]models.Contact{bounced}, none.IsSuppressed)
	require.NoError(t, err)
	assert.Nil(t, contact)
	assert.Equal(t, BlockedContactInvalid, reason)

	contact, _, err = selectContact([]models.Contact{bounced, verified}, none.IsSuppressed)
	require.NoError(t, err)
	require.NotNil(t, contact)
	assert.Equal(t, "one@site.fr", contact.EmailNormalized)
}

func TestSelectContactSkipsSuppressed(t *testing.T) {
	first := models.Contact{EmailNormalized: "one@site.fr", EmailStatus: models.EmailStatusVerified}
	second := models.Contact{EmailNormalized: "two@site.fr", EmailStatus: models.EmailStatusVerified}
	suppressions := &fakeSuppressions{suppressed: map[string]bool{"one@site.fr": true}}

	// A suppressed first contact must not block the whole prospect.
	contact, _, err := selectContact([]models.Contact{first, second}, suppressions.IsSuppressed)
	require.NoError(t, err)
	require.NotNil(t, contact)
	assert.Equal(t, "two@site.fr", contact.EmailNormalized)

	suppressions.suppressed["two@site.fr"] = true
	contact, reason, err := selectContact([]models.Contact{first, second}, suppressions.IsSuppressed)
	require.NoError(t, err)
	assert.Nil(t, contact)
	assert.Equal(t, BlockedSuppressed, reason)
}

func TestSelectContactPropagatesLookupError(t *testing.T) {
	broken := &fakeSuppressions{err: assert.AnError}
	contacts := []models.Contact{{EmailNormalized: "one@site.fr", EmailStatus: models.EmailStatusVerified}}

	_, _, err := selectContact(contacts, broken.IsSuppressed)
	assert.Error(t, err)
}

func TestCorrelationToken(t *testing.T) {
	at := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	token := CorrelationToken(7, 1203, at)
	assert.Equal(t, "7-1203-1773480413", token)

	// Same inputs must always produce the same token.
	assert.Equal(t, token, CorrelationToken(7, 1203, at))
}

func TestScoreBucket(t *testing.T) {
	assert.Equal(t, "high", scoreBucket(100))
	assert.Equal(t, "high", scoreBucket(70))
	assert.Equal(t, "medium", scoreBucket(69))
	assert.Equal(t, "medium", scoreBucket(40))
	assert.Equal(t, "low", scoreBucket(39))
	assert.Equal(t, "low", scoreBucket(0))
}

func TestDABucket(t *testing.T) {
	assert.Equal(t, "da60+", daBucket(85))
	assert.Equal(t, "da60+", daBucket(60))
	assert.Equal(t, "da30-59", daBucket(59))
	assert.Equal(t, "da30-59", daBucket(30))
	assert.Equal(t, "da0-29", daBucket(29))
	assert.Equal(t, "da0-29", daBucket(0))
}
