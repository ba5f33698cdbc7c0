package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
	"gorm.io/gorm"

	"linkreach/models"
	"linkreach/queue"
	"linkreach/utils"
)

// OutreachWorker consumes the outreach-retry queue with a single
// consumer and a provider-friendly rate limit.
type OutreachWorker struct {
	DB          *gorm.DB
	Queue       *queue.Queue
	Enrollments *utils.EnrollmentManager
	Logger      *logrus.Logger

	limiter *rate.Limiter
}

func NewOutreachWorker(db *gorm.DB, q *queue.Queue, enrollments *utils.EnrollmentManager, perMinute int, logger *logrus.Logger) *OutreachWorker {
	if perMinute <= 0 {
		perMinute = 30
	}
	return &OutreachWorker{
		DB:          db,
		Queue:       q,
		Enrollments: enrollments,
		Logger:      logger,
		limiter:     rate.NewLimiter(rate.Limit(float64(perMinute)/60.0), 1),
	}
}

func (ow *OutreachWorker) Start(ctx context.Context) {
	ow.Logger.Info("outreach worker started")
	ow.Queue.Consume(ctx, queue.QueueOutreachRetry, ow.handle)
}

// handle re-drives an enrollment. The enrollment manager's precondition
// chain makes re-running the same job a no-op, so queue retries are safe.
func (ow *OutreachWorker) handle(ctx context.Context, job *queue.Job) error {
	var payload queue.OutreachRetryPayload
	if len(job.Payload) > 0 {
		if err := json.Unmarshal(job.Payload, &payload); err != nil {
			return fmt.Errorf("outreach: bad payload: %w", err)
		}
	}

	switch {
	case payload.ProspectID != 0 && payload.CampaignID != 0:
		if err := ow.limiter.Wait(ctx); err != nil {
			return err
		}
		return ow.Enrollments.Enroll(ctx, payload.ProspectID, payload.CampaignID)

	case payload.EnrollmentID != 0:
		var enrollment models.Enrollment
		if err := ow.DB.First(&enrollment, payload.EnrollmentID).Error; err != nil {
			return fmt.Errorf("outreach: load enrollment %d: %w", payload.EnrollmentID, err)
		}
		if err := ow.limiter.Wait(ctx); err != nil {
			return err
		}
		return ow.Enrollments.Enroll(ctx, enrollment.ProspectID, enrollment.CampaignID)

	case payload.FailedStatus != "":
		return ow.fanOutFailed(ctx, payload.FailedStatus)

	default:
		ow.Logger.WithField("job_id", job.ID).Warn("outreach job without target, dropping")
		return nil
	}
}

// fanOutFailed re-enqueues one job per enrollment stopped with the
// given reason, so each retry is independently rate limited and retried.
func (ow *OutreachWorker) fanOutFailed(ctx context.Context, failedStatus string) error {
	var enrollments []models.Enrollment
	if err := ow.DB.
		Where("status = ? AND stopped_reason = ?", models.EnrollmentStopped, failedStatus).
		Find(&enrollments).Error; err != nil {
		return fmt.Errorf("outreach: fan-out query: %w", err)
	}

	ow.Logger.WithFields(logrus.Fields{
		"failed_status": failedStatus,
		"count":         len(enrollments),
	}).Info("re-enqueueing failed enrollments")

	for _, enrollment := range enrollments {
		err := ow.Queue.Enqueue(ctx, queue.QueueOutreachRetry, "", queue.OutreachRetryPayload{
			EnrollmentID: enrollment.ID,
		})
		if err != nil {
			return err
		}
	}
	return nil
}
