package worker

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"linkreach/models"
	"linkreach/queue"
	"linkreach/utils"
)

// VerificationWorker owns the verification queue: scheduled link-loss
// sweeps plus on-demand backlink checks. Concurrency is one to respect
// crawl etiquette on target sites.
type VerificationWorker struct {
	DB       *gorm.DB
	Queue    *queue.Queue
	Verifier *utils.BacklinkVerifier
	Logger   *logrus.Logger

	SweepInterval time.Duration
}

func NewVerificationWorker(db *gorm.DB, q *queue.Queue, verifier *utils.BacklinkVerifier, logger *logrus.Logger) *VerificationWorker {
	return &VerificationWorker{
		DB:            db,
		Queue:         q,
		Verifier:      verifier,
		Logger:        logger,
		SweepInterval: 24 * time.Hour,
	}
}

func (vw *VerificationWorker) Start(ctx context.Context) {
	vw.Logger.Info("verification worker started")

	go vw.Queue.Consume(ctx, queue.QueueVerification, vw.handle)

	ticker := time.NewTicker(vw.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			vw.Logger.Info("verification worker shutting down")
			return
		case <-ticker.C:
			if err := vw.Queue.Enqueue(ctx, queue.QueueVerification, queue.TypeCheckLinkLoss, nil); err != nil {
				vw.Logger.WithError(err).Warn("failed to enqueue link-loss sweep")
			}
		}
	}
}

func (vw *VerificationWorker) handle(ctx context.Context, job *queue.Job) error {
	switch job.Type {
	case queue.TypeCheckLinkLoss:
		return vw.Verifier.DetectLinkLoss(ctx)
	case queue.TypeCheckBacklinks:
		return vw.checkUnverified(ctx)
	default:
		vw.Logger.WithField("type", job.Type).Warn("unexpected job on verification queue")
		return nil
	}
}

// checkUnverified verifies backlinks that have never been checked,
// pacing requests like the sweep does.
func (vw *VerificationWorker) checkUnverified(ctx context.Context) error {
	var backlinks []models.Backlink
	if err := vw.DB.Where("is_verified = ?", false).Find(&backlinks).Error; err != nil {
		return err
	}

	vw.Logger.WithField("count", len(backlinks)).Info("verifying new backlinks")

	for i := range backlinks {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if _, err := vw.Verifier.Verify(ctx, &backlinks[i]); err != nil {
			vw.Logger.WithError(err).WithField("backlink_id", backlinks[i].ID).Warn("backlink verification failed")
		}
		if i < len(backlinks)-1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(vw.Verifier.RequestDelay):
			}
		}
	}
	return nil
}
