package controller

import (
	"github.com/getsentry/sentry-go"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"linkreach/utils"
)

type WebhookController struct {
	Reconciler *utils.WebhookReconciler
	Logger     *logrus.Logger
}

func NewWebhookController(reconciler *utils.WebhookReconciler, logger *logrus.Logger) *WebhookController {
	return &WebhookController{Reconciler: reconciler, Logger: logger}
}

// HandleMailerWebhook ingests provider events. It always acknowledges
// with 200, even on internal failure, so the provider does not build a
// retry storm; failures land in logs and error reporting instead.
func (wc *WebhookController) HandleMailerWebhook(c *fiber.Ctx) error {
	var event utils.WebhookEvent
	if err := c.BodyParser(&event); err != nil {
		wc.Logger.WithError(err).Warn("unparseable webhook body")
		return c.SendStatus(fiber.StatusOK)
	}
	if err := utils.ValidateStruct(&event); err != nil {
		wc.Logger.WithError(err).Warn("invalid webhook payload")
		return c.SendStatus(fiber.StatusOK)
	}

	if err := wc.Reconciler.Handle(c.Context(), &event); err != nil {
		wc.Logger.WithError(err).WithField("event", event.Event).Error("webhook processing failed")
		sentry.CaptureException(err)
	}
	return c.SendStatus(fiber.StatusOK)
}
