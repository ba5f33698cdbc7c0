package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsTerminal(t *testing.T) {
	assert.True(t, StatusLost.IsTerminal())
	assert.True(t, StatusDoNotContact.IsTerminal())

	for _, s := range []ProspectStatus{StatusNew, StatusReplied, StatusNegotiating, StatusWon, StatusLinkVerified, StatusLinkLost} {
		assert.False(t, s.IsTerminal(), "%s must not be terminal", s)
	}
}

func TestCanTransition(t *testing.T) {
	// Self transitions are no-ops.
	assert.False(t, StatusReplied.CanTransition(StatusReplied))

	// DO_NOT_CONTACT is absorbing.
	for _, target := range []ProspectStatus{StatusNew, StatusReplied, StatusNegotiating, StatusLost, StatusLinkVerified} {
		assert.False(t, StatusDoNotContact.CanTransition(target), "DO_NOT_CONTACT must not move to %s", target)
	}

	// LOST can only escalate to DO_NOT_CONTACT.
	assert.True(t, StatusLost.CanTransition(StatusDoNotContact))
	assert.False(t, StatusLost.CanTransition(StatusNegotiating))
	assert.False(t, StatusLost.CanTransition(StatusReContacted))

	// Ordinary lifecycle moves are allowed.
	assert.True(t, StatusNew.CanTransition(StatusContactedEmail))
	assert.True(t, StatusContactedEmail.CanTransition(StatusReplied))
	assert.True(t, StatusReplied.CanTransition(StatusNegotiating))
	assert.True(t, StatusWon.CanTransition(StatusLinkVerified))
	assert.True(t, StatusLinkVerified.CanTransition(StatusLinkLost))
	assert.True(t, StatusNegotiating.CanTransition(StatusDoNotContact))
}

func TestContactable(t *testing.T) {
	ok := Contact{Email: "a@b.com", EmailStatus: EmailStatusVerified}
	assert.True(t, ok.Contactable())

	risky := Contact{EmailStatus: EmailStatusRisky}
	assert.True(t, risky.Contactable())

	optedOut := Contact{EmailStatus: EmailStatusVerified, OptedOut: true}
	assert.False(t, optedOut.Contactable())

	for _, status := range []string{EmailStatusInvalid, EmailStatusBounced, EmailStatusDisposable} {
		c := Contact{EmailStatus: status}
		assert.False(t, c.Contactable(), "status %s must not be contactable", status)
	}
}

func TestEnrollmentActive(t *testing.T) {
	assert.True(t, (&Enrollment{Status: EnrollmentActive}).Active())
	assert.True(t, (&Enrollment{Status: EnrollmentPaused}).Active())
	assert.False(t, (&Enrollment{Status: EnrollmentStopped}).Active())
	assert.False(t, (&Enrollment{Status: EnrollmentCompleted}).Active())
}
