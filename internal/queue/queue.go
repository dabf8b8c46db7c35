package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/example/blurdetect/internal/analysis"
)

const (
	// QueueBlurAnalysis is the queue batch-submitted tasks land on.
	QueueBlurAnalysis = "blur_analysis"
	// TypeAnalyzePhoto identifies a single-photo analysis task.
	TypeAnalyzePhoto = "photo:analyze"
)

// taskTimeout bounds one queued analysis end to end: the collaborator
// deadlines (10s metadata, 30s image fetch, 10s write-back) plus scoring.
const taskTimeout = 2 * time.Minute

// AnalysisTaskPayload is the JSON body of a TypeAnalyzePhoto task.
type AnalysisTaskPayload struct {
	JobID   string           `json:"job_id"`
	PhotoID string           `json:"photo_id"`
	UserID  string           `json:"user_id"`
	Options analysis.Options `json:"options"`
}

// Enqueuer submits analysis tasks for background processing.
type Enqueuer interface {
	EnqueueAnalysis(ctx context.Context, payload AnalysisTaskPayload) error
}

// AsynqEnqueuer is the production Enqueuer on top of an asynq client.
type AsynqEnqueuer struct {
	client   *asynq.Client
	logger   *zap.Logger
	maxRetry int
}

// NewAsynqEnqueuer builds an enqueuer. maxRetry 0 means a failed task goes
// straight to the archive instead of being re-delivered.
func NewAsynqEnqueuer(client *asynq.Client, maxRetry int, logger *zap.Logger) *AsynqEnqueuer {
	return &AsynqEnqueuer{
		client:   client,
		logger:   logger.Named("enqueuer"),
		maxRetry: maxRetry,
	}
}

// EnqueueAnalysis places one task on the analysis queue.
func (e *AsynqEnqueuer) EnqueueAnalysis(ctx context.Context, payload AnalysisTaskPayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("queue: encode analysis payload: %w", err)
	}

	info, err := e.client.EnqueueContext(ctx, asynq.NewTask(TypeAnalyzePhoto, body),
		asynq.Queue(QueueBlurAnalysis),
		asynq.MaxRetry(e.maxRetry),
		asynq.Timeout(taskTimeout))
	if err != nil {
		return fmt.Errorf("queue: enqueue analysis for photo %s: %w", payload.PhotoID, err)
	}

	e.logger.Debug("enqueued analysis task",
		zap.String("task_id", info.ID),
		zap.String("job_id", payload.JobID),
		zap.String("photo_id", payload.PhotoID))
	return nil
}
