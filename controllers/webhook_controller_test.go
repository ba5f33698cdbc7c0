package controller

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newWebhookApp() *fiber.App {
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	wc := NewWebhookController(nil, logger)
	app := fiber.New()
	app.Post("/webhooks/mailer", wc.HandleMailerWebhook)
	return app
}

// The provider treats anything but 200 as a delivery failure and
// retries aggressively, so even garbage payloads are acknowledged.
func TestWebhookAcknowledgesUnparseableBody(t *testing.T) {
	app := newWebhookApp()

	req := httptest.NewRequest("POST", "/webhooks/mailer", strings.NewReader("{not json"))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestWebhookAcknowledgesInvalidPayload(t *testing.T) {
	app := newWebhookApp()

	// Missing the required event field.
	req := httptest.NewRequest("POST", "/webhooks/mailer", strings.NewReader(`{"subscriber_uid":"s1"}`))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}
