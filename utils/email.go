package utils

import (
	"strings"

	"github.com/badoux/checkmail"

	"linkreach/models"
)

// Role-account local parts that rarely reach a person.
var roleLocalParts = map[string]bool{
	"admin":      true,
	"info":       true,
	"contact":    true,
	"support":    true,
	"sales":      true,
	"hello":      true,
	"webmaster":  true,
	"postmaster": true,
	"noreply":    true,
	"no-reply":   true,
	"abuse":      true,
	"office":     true,
}

// Common throwaway domains; a short built-in list is enough since
// ingestion already filters most of these.
var disposableDomains = map[string]bool{
	"mailinator.com":     true,
	"guerrillamail.com":  true,
	"10minutemail.com":   true,
	"tempmail.com":       true,
	"temp-mail.org":      true,
	"throwawaymail.com":  true,
	"yopmail.com":        true,
	"sharklasers.com":    true,
	"getnada.com":        true,
	"trashmail.com":      true,
	"dispostable.com":    true,
	"maildrop.cc":        true,
	"fakeinbox.com":      true,
	"mintemail.com":      true,
	"mytemp.email":       true,
	"spamgourmet.com":    true,
	"mailnesia.com":      true,
	"emailondeck.com":    true,
	"burnermail.io":      true,
	"inboxkitten.com":    true,
	"mohmal.com":         true,
	"tempinbox.com":      true,
	"33mail.com":         true,
	"anonbox.net":        true,
	"spambog.com":        true,
	"discard.email":      true,
	"mail-temporaire.fr": true,
	"jetable.org":        true,
}

// ClassifyEmail returns the email status recorded on a contact at
// ingestion: format check, MX plausibility, disposable and role
// heuristics. Only "invalid"/"disposable" block outreach outright.
func ClassifyEmail(email string) string {
	email = NormalizeEmail(email)

	if err := checkmail.ValidateFormat(email); err != nil {
		return models.EmailStatusInvalid
	}

	parts := strings.Split(email, "@")
	if len(parts) != 2 {
		return models.EmailStatusInvalid
	}
	local, domain := parts[0], parts[1]

	if disposableDomains[domain] {
		return models.EmailStatusDisposable
	}

	if err := checkmail.ValidateHost(domain); err != nil {
		if !HasMXRecords(email) {
			return models.EmailStatusInvalid
		}
		return models.EmailStatusRisky
	}

	if roleLocalParts[local] {
		return models.EmailStatusRole
	}

	return models.EmailStatusVerified
}
