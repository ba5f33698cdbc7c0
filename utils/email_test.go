package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"linkreach/models"
)

func TestClassifyEmailFormat(t *testing.T) {
	assert.Equal(t, models.EmailStatusInvalid, ClassifyEmail("not-an-email"))
	assert.Equal(t, models.EmailStatusInvalid, ClassifyEmail(""))
	assert.Equal(t, models.EmailStatusInvalid, ClassifyEmail("missing@"))
}

func TestClassifyEmailDisposable(t *testing.T) {
	assert.Equal(t, models.EmailStatusDisposable, ClassifyEmail("temp@mailinator.com"))
	assert.Equal(t, models.EmailStatusDisposable, ClassifyEmail("x@10minutemail.com"))
	assert.Equal(t, models.EmailStatusDisposable, ClassifyEmail("jeter@jetable.org"))
}

func TestNormalizeEmail(t *testing.T) {
	assert.Equal(t, "dev@example.com", NormalizeEmail("  Dev@Example.COM "))
	assert.Equal(t, "dev@example.com", NormalizeEmail("dev@example.com"))
}
