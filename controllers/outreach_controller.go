package controller

import (
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"linkreach/models"
	"linkreach/queue"
	"linkreach/utils"
)

// OutreachController is the thin HTTP boundary over the lifecycle
// engines: validation and JSON shaping only, no business rules.
type OutreachController struct {
	DB           *gorm.DB
	Gate         *utils.DedupGate
	Suppressions *utils.SuppressionGuard
	Queue        *queue.Queue
	Logger       *logrus.Logger
}

func NewOutreachController(db *gorm.DB, gate *utils.DedupGate, suppressions *utils.SuppressionGuard, q *queue.Queue, logger *logrus.Logger) *OutreachController {
	return &OutreachController{
		DB:           db,
		Gate:         gate,
		Suppressions: suppressions,
		Queue:        q,
		Logger:       logger,
	}
}

// CheckDuplicate reports whether an ingested URL collides with an
// existing prospect.
func (oc *OutreachController) CheckDuplicate(c *fiber.Ctx) error {
	var input struct {
		URL string `json:"url" validate:"required"`
	}
	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}
	if err := utils.ValidateStruct(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}

	return c.JSON(utils.SuccessResponse(oc.Gate.Check(input.URL)))
}

// CheckDuplicateBatch resolves many URLs in two queries.
func (oc *OutreachController) CheckDuplicateBatch(c *fiber.Ctx) error {
	var input struct {
		URLs []string `json:"urls" validate:"required,min=1,max=500"`
	}
	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}
	if err := utils.ValidateStruct(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}

	return c.JSON(utils.SuccessResponse(oc.Gate.CheckBatch(input.URLs)))
}

// AddSuppression registers a do-not-contact email.
func (oc *OutreachController) AddSuppression(c *fiber.Ctx) error {
	var input struct {
		Email  string `json:"email" validate:"required,email"`
		Reason string `json:"reason" validate:"required"`
	}
	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}
	if err := utils.ValidateStruct(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}

	if err := oc.Suppressions.Add(input.Email, input.Reason, models.SuppressionSourceManual); err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to add suppression", err)
	}
	return c.Status(fiber.StatusCreated).JSON(utils.SuccessResponse(nil))
}

// RemoveSuppression deletes an entry by ID (operator override).
func (oc *OutreachController) RemoveSuppression(c *fiber.Ctx) error {
	id := utils.ParseUint(c.Params("id"))
	if id == 0 {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid suppression id", nil)
	}
	if err := oc.Suppressions.Remove(id); err != nil {
		if err == gorm.ErrRecordNotFound {
			return utils.ErrorResponse(c, fiber.StatusNotFound, "Suppression entry not found", nil)
		}
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to remove suppression", err)
	}
	return c.JSON(utils.SuccessResponse(nil))
}

// Enroll queues an enrollment; the outreach worker applies the
// precondition chain and rate limit asynchronously.
func (oc *OutreachController) Enroll(c *fiber.Ctx) error {
	var input struct {
		ProspectID uint `json:"prospect_id" validate:"required"`
		CampaignID uint `json:"campaign_id" validate:"required"`
	}
	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}
	if err := utils.ValidateStruct(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}

	err := oc.Queue.Enqueue(c.Context(), queue.QueueOutreachRetry, "", queue.OutreachRetryPayload{
		ProspectID: input.ProspectID,
		CampaignID: input.CampaignID,
	})
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to queue enrollment", err)
	}
	return c.Status(fiber.StatusAccepted).JSON(utils.SuccessResponse(fiber.Map{
		"queued": true,
	}))
}

// TriggerVerification enqueues a verification sweep on demand.
func (oc *OutreachController) TriggerVerification(c *fiber.Ctx) error {
	var input struct {
		Type string `json:"type" validate:"required,oneof=check-backlinks check-link-loss"`
	}
	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}
	if err := utils.ValidateStruct(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}

	if err := oc.Queue.Enqueue(c.Context(), queue.QueueVerification, input.Type, nil); err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to queue verification", err)
	}
	return c.Status(fiber.StatusAccepted).JSON(utils.SuccessResponse(fiber.Map{
		"queued": true,
	}))
}
