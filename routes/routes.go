package routes

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"linkreach/config"
	controller "linkreach/controllers"
	"linkreach/middleware"
	"linkreach/queue"
	"linkreach/utils"
)

// Engines bundles the constructed lifecycle engines the routes expose.
type Engines struct {
	Gate         *utils.DedupGate
	Suppressions *utils.SuppressionGuard
	Reconciler   *utils.WebhookReconciler
	Queue        *queue.Queue
}

func SetupRoutes(app *fiber.App, db *gorm.DB, engines Engines, log *logrus.Logger) {
	webhookController := controller.NewWebhookController(engines.Reconciler, log)
	outreachController := controller.NewOutreachController(db, engines.Gate, engines.Suppressions, engines.Queue, log)

	// Provider-facing webhook, shared-secret authenticated.
	webhooks := app.Group("/webhooks", logger.New(logger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))
	webhooks.Post("/mailer",
		middleware.WebhookAuth(config.AppConfig.Mailer.WebhookSecret),
		webhookController.HandleMailerWebhook)

	// Thin operational API over the engines.
	api := app.Group("/api/v1", logger.New(logger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))

	prospects := api.Group("/prospects")
	prospects.Post("/check-duplicate", outreachController.CheckDuplicate)
	prospects.Post("/check-duplicate/batch", outreachController.CheckDuplicateBatch)

	suppressions := api.Group("/suppressions")
	suppressions.Post("/", outreachController.AddSuppression)
	suppressions.Delete("/:id", outreachController.RemoveSuppression)

	api.Post("/enroll", outreachController.Enroll)
	api.Post("/verification/trigger", outreachController.TriggerVerification)
}
