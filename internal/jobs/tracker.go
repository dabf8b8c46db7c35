package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/example/blurdetect/internal/cache"
	"github.com/example/blurdetect/internal/faults"
)

// Status of a background analysis job.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Record is the status entry for one queued analysis. Records are advisory:
// the photo row stays the source of truth for the analysis outcome, records
// only answer "what happened to the job I submitted" and expire after a TTL.
type Record struct {
	ID          string     `json:"job_id"`
	PhotoID     string     `json:"photo_id"`
	UserID      string     `json:"user_id"`
	Status      Status     `json:"status"`
	EnqueuedAt  time.Time  `json:"enqueued_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Error       string     `json:"error,omitempty"`
	ErrorKind   string     `json:"error_kind,omitempty"`
}

// Tracker records job lifecycle transitions.
type Tracker interface {
	Create(ctx context.Context, rec *Record) error
	MarkRunning(ctx context.Context, jobID string) error
	MarkCompleted(ctx context.Context, jobID string) error
	MarkFailed(ctx context.Context, jobID string, cause error) error
	Get(ctx context.Context, jobID string) (*Record, error)
}

// RedisTracker keeps job records as JSON values in Redis.
type RedisTracker struct {
	cache  cache.Cache
	logger *zap.Logger
	ttl    time.Duration
	policy cache.RetryPolicy
}

// NewRedisTracker builds a tracker whose records expire after ttl.
func NewRedisTracker(c cache.Cache, ttl time.Duration, logger *zap.Logger) *RedisTracker {
	return &RedisTracker{
		cache:  c,
		logger: logger.Named("job_tracker"),
		ttl:    ttl,
		policy: cache.DefaultRetryPolicy(),
	}
}

func jobKey(jobID string) string {
	return "blurjob:" + jobID
}

// Create stores a fresh record in the queued state.
func (t *RedisTracker) Create(ctx context.Context, rec *Record) error {
	if rec.Status == "" {
		rec.Status = StatusQueued
	}
	if rec.EnqueuedAt.IsZero() {
		rec.EnqueuedAt = time.Now().UTC()
	}
	return t.save(ctx, rec)
}

// MarkRunning transitions a record to running.
func (t *RedisTracker) MarkRunning(ctx context.Context, jobID string) error {
	rec, err := t.Get(ctx, jobID)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	rec.Status = StatusRunning
	rec.StartedAt = &now
	return t.save(ctx, rec)
}

// MarkCompleted transitions a record to completed.
func (t *RedisTracker) MarkCompleted(ctx context.Context, jobID string) error {
	rec, err := t.Get(ctx, jobID)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	rec.Status = StatusCompleted
	rec.CompletedAt = &now
	return t.save(ctx, rec)
}

// MarkFailed transitions a record to failed and captures the cause.
func (t *RedisTracker) MarkFailed(ctx context.Context, jobID string, cause error) error {
	rec, err := t.Get(ctx, jobID)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	rec.Status = StatusFailed
	rec.CompletedAt = &now
	if cause != nil {
		rec.Error = cause.Error()
		rec.ErrorKind = string(faults.KindOf(cause))
	}
	return t.save(ctx, rec)
}

// Get loads a record. A missing or expired record is reported as not found.
func (t *RedisTracker) Get(ctx context.Context, jobID string) (*Record, error) {
	raw, err := cache.GetWithRetry(ctx, t.logger, t.policy, t.cache, "jobs.get", jobID, jobKey(jobID))
	if err != nil {
		if errors.Is(err, cache.ErrMiss) {
			return nil, faults.New(faults.KindNotFound, "jobs.get", err)
		}
		return nil, err
	}

	var rec Record
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return nil, fmt.Errorf("jobs: decode record %s: %w", jobID, err)
	}
	return &rec, nil
}

func (t *RedisTracker) save(ctx context.Context, rec *Record) error {
	serialized, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("jobs: encode record %s: %w", rec.ID, err)
	}
	return cache.WithRetry(ctx, t.logger, t.policy, "jobs.save", rec.ID, func() error {
		return t.cache.Set(ctx, jobKey(rec.ID), string(serialized), t.ttl)
	})
}
