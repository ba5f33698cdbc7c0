// Package queue implements the durable redis-backed job queue the
// lifecycle workers consume. Jobs survive process restarts, are retried
// with backoff on handler failure, and are dropped (with an error
// report) after a bounded number of attempts.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Queue names.
const (
	QueueOutreachRetry = "outreach-retry"
	QueueReplyCheck    = "reply-check"
	QueueVerification  = "verification"
)

// Job type discriminators inside a queue.
const (
	TypeIMAPCheck      = "imap-check"
	TypeCheckBacklinks = "check-backlinks"
	TypeCheckLinkLoss  = "check-link-loss"
)

const defaultMaxAttempts = 5

// Job is one unit of work. Payload is decoded by the handler.
type Job struct {
	ID          string          `json:"id"`
	Queue       string          `json:"queue"`
	Type        string          `json:"type"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	Attempts    int             `json:"attempts"`
	MaxAttempts int             `json:"max_attempts"`
	EnqueuedAt  time.Time       `json:"enqueued_at"`
}

// Typed payloads.

type OutreachRetryPayload struct {
	EnrollmentID uint   `json:"enrollment_id,omitempty"`
	ProspectID   uint   `json:"prospect_id,omitempty"`
	CampaignID   uint   `json:"campaign_id,omitempty"`
	FailedStatus string `json:"failed_status,omitempty"`
}

// Handler processes one job. Handlers must be idempotent: a job that
// fails after partial work will run again.
type Handler func(ctx context.Context, job *Job) error

// Queue is the shared producer/consumer client.
type Queue struct {
	rdb    *redis.Client
	logger *logrus.Logger
}

func New(rdb *redis.Client, logger *logrus.Logger) *Queue {
	return &Queue{rdb: rdb, logger: logger}
}

func listKey(name string) string    { return "queue:" + name }
func delayedKey(name string) string { return "queue:" + name + ":delayed" }

// Enqueue makes a job ready immediately.
func (q *Queue) Enqueue(ctx context.Context, queueName, jobType string, payload interface{}) error {
	job, err := q.newJob(queueName, jobType, payload)
	if err != nil {
		return err
	}
	return q.push(ctx, job)
}

// EnqueueIn schedules a job to become ready after delay.
func (q *Queue) EnqueueIn(ctx context.Context, delay time.Duration, queueName, jobType string, payload interface{}) error {
	job, err := q.newJob(queueName, jobType, payload)
	if err != nil {
		return err
	}
	return q.pushDelayed(ctx, job, time.Now().Add(delay))
}

func (q *Queue) newJob(queueName, jobType string, payload interface{}) (*Job, error) {
	job := &Job{
		ID:          uuid.NewString(),
		Queue:       queueName,
		Type:        jobType,
		MaxAttempts: defaultMaxAttempts,
		EnqueuedAt:  time.Now().UTC(),
	}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("queue: marshal payload: %w", err)
		}
		job.Payload = data
	}
	return job, nil
}

func (q *Queue) push(ctx context.Context, job *Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("queue: marshal job: %w", err)
	}
	if err := q.rdb.LPush(ctx, listKey(job.Queue), data).Err(); err != nil {
		return fmt.Errorf("queue: push %s: %w", job.Queue, err)
	}
	return nil
}

func (q *Queue) pushDelayed(ctx context.Context, job *Job, readyAt time.Time) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("queue: marshal job: %w", err)
	}
	err = q.rdb.ZAdd(ctx, delayedKey(job.Queue), &redis.Z{
		Score:  float64(readyAt.Unix()),
		Member: data,
	}).Err()
	if err != nil {
		return fmt.Errorf("queue: schedule %s: %w", job.Queue, err)
	}
	return nil
}

// promoteDelayed moves due delayed jobs onto the ready list.
func (q *Queue) promoteDelayed(ctx context.Context, queueName string) {
	now := fmt.Sprintf("%d", time.Now().Unix())
	members, err := q.rdb.ZRangeByScore(ctx, delayedKey(queueName), &redis.ZRangeBy{
		Min: "-inf", Max: now,
	}).Result()
	if err != nil || len(members) == 0 {
		return
	}
	pipe := q.rdb.TxPipeline()
	for _, m := range members {
		pipe.LPush(ctx, listKey(queueName), m)
		pipe.ZRem(ctx, delayedKey(queueName), m)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		q.logger.WithError(err).WithField("queue", queueName).Warn("failed to promote delayed jobs")
	}
}

// Dequeue blocks up to timeout for the next ready job.
func (q *Queue) Dequeue(ctx context.Context, queueName string, timeout time.Duration) (*Job, error) {
	q.promoteDelayed(ctx, queueName)

	res, err := q.rdb.BRPop(ctx, timeout, listKey(queueName)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("queue: pop %s: %w", queueName, err)
	}
	// BRPop returns [key, value].
	var job Job
	if err := json.Unmarshal([]byte(res[1]), &job); err != nil {
		return nil, fmt.Errorf("queue: corrupt job on %s: %w", queueName, err)
	}
	return &job, nil
}

// Consume runs a single-consumer loop on one queue until ctx is done.
// Failed jobs are re-enqueued with exponential backoff up to
// MaxAttempts, then reported and dropped.
func (q *Queue) Consume(ctx context.Context, queueName string, handler Handler) {
	q.logger.WithField("queue", queueName).Info("queue consumer started")

	for {
		select {
		case <-ctx.Done():
			q.logger.WithField("queue", queueName).Info("queue consumer stopped")
			return
		default:
		}

		job, err := q.Dequeue(ctx, queueName, 5*time.Second)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			q.logger.WithError(err).WithField("queue", queueName).Warn("dequeue failed")
			time.Sleep(time.Second)
			continue
		}
		if job == nil {
			continue
		}

		q.runJob(ctx, job, handler)
	}
}

func (q *Queue) runJob(ctx context.Context, job *Job, handler Handler) {
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("queue: panic in %s handler: %v", job.Queue, r)
			sentry.CaptureException(err)
			q.retryOrDrop(ctx, job, err)
		}
	}()

	if err := handler(ctx, job); err != nil {
		q.retryOrDrop(ctx, job, err)
	}
}

func (q *Queue) retryOrDrop(ctx context.Context, job *Job, cause error) {
	job.Attempts++
	fields := logrus.Fields{
		"queue":    job.Queue,
		"job_id":   job.ID,
		"job_type": job.Type,
		"attempts": job.Attempts,
	}

	if job.Attempts >= job.MaxAttempts {
		q.logger.WithError(cause).WithFields(fields).Error("job exhausted retries, dropping")
		sentry.WithScope(func(scope *sentry.Scope) {
			scope.SetTag("queue", job.Queue)
			scope.SetTag("job_type", job.Type)
			sentry.CaptureException(cause)
		})
		return
	}

	delay := backoff(job.Attempts)
	q.logger.WithError(cause).WithFields(fields).WithField("retry_in", delay.String()).Warn("job failed, retrying")
	if err := q.pushDelayed(ctx, job, time.Now().Add(delay)); err != nil {
		q.logger.WithError(err).WithFields(fields).Error("failed to requeue job")
	}
}

// backoff doubles from 30s and caps at 15 minutes.
func backoff(attempts int) time.Duration {
	d := 30 * time.Second
	for i := 1; i < attempts; i++ {
		d *= 2
		if d >= 15*time.Minute {
			return 15 * time.Minute
		}
	}
	return d
}
