package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/example/blurdetect/internal/analysis"
	"github.com/example/blurdetect/internal/faults"
	"github.com/example/blurdetect/internal/jobs"
	"github.com/example/blurdetect/internal/logging"
)

// AnalysisRunner is the orchestrator slice the worker invokes per task.
type AnalysisRunner interface {
	AnalyzeOne(ctx context.Context, photoID, userID string, opts analysis.Options) (*analysis.Result, error)
}

// AnalysisHandler consumes queued analysis tasks. Job tracker updates are
// advisory: a tracker failure never fails the task itself.
type AnalysisHandler struct {
	runner  AnalysisRunner
	tracker jobs.Tracker
	logger  *zap.Logger
}

// NewAnalysisHandler wires the worker-side handler. tracker may be nil.
func NewAnalysisHandler(runner AnalysisRunner, tracker jobs.Tracker, logger *zap.Logger) *AnalysisHandler {
	return &AnalysisHandler{
		runner:  runner,
		tracker: tracker,
		logger:  logger.Named("analysis_worker"),
	}
}

// ProcessTask implements asynq.Handler for TypeAnalyzePhoto tasks. A returned
// error that wraps asynq.SkipRetry archives the task instead of retrying it;
// deterministic failures take that path since re-running cannot change them.
func (h *AnalysisHandler) ProcessTask(ctx context.Context, task *asynq.Task) error {
	var payload AnalysisTaskPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		h.logger.Error("failed to decode analysis payload", zap.Error(err))
		return fmt.Errorf("queue: decode analysis payload: %v: %w", err, asynq.SkipRetry)
	}

	opLogger := logging.WithOperation(h.logger, "queue.analyze_photo", payload.JobID)
	h.transition(ctx, payload.JobID, opLogger, func(t jobs.Tracker) error {
		return t.MarkRunning(ctx, payload.JobID)
	})

	result, err := h.runner.AnalyzeOne(ctx, payload.PhotoID, payload.UserID, payload.Options)
	if err != nil {
		opLogger.Error("queued analysis failed",
			zap.String("photo_id", payload.PhotoID),
			zap.String("kind", string(faults.KindOf(err))),
			zap.Error(err))
		h.transition(ctx, payload.JobID, opLogger, func(t jobs.Tracker) error {
			return t.MarkFailed(ctx, payload.JobID, err)
		})
		if isPermanent(err) {
			return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
		}
		return err
	}

	h.transition(ctx, payload.JobID, opLogger, func(t jobs.Tracker) error {
		return t.MarkCompleted(ctx, payload.JobID)
	})
	opLogger.Info("queued analysis completed",
		zap.String("photo_id", payload.PhotoID),
		zap.Float64("blur_score", result.BlurScore),
		zap.Bool("is_blurred", result.IsBlurred))
	return nil
}

func (h *AnalysisHandler) transition(ctx context.Context, jobID string, opLogger *zap.Logger, fn func(jobs.Tracker) error) {
	if h.tracker == nil || jobID == "" {
		return
	}
	if err := fn(h.tracker); err != nil {
		opLogger.Warn("job tracker update failed", zap.Error(err))
	}
}

// isPermanent reports whether a failure is deterministic for this photo.
func isPermanent(err error) bool {
	switch faults.KindOf(err) {
	case faults.KindNotFound, faults.KindAccessExpired, faults.KindInvalidContent, faults.KindScoring:
		return true
	}
	return false
}

// NewMux routes task types to their handlers.
func NewMux(handler *AnalysisHandler) *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.Handle(TypeAnalyzePhoto, handler)
	return mux
}

// NewWorkerServer builds the asynq server consuming the analysis queue.
func NewWorkerServer(redisOpt asynq.RedisClientOpt, concurrency int, logger *zap.Logger) *asynq.Server {
	return asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			QueueBlurAnalysis: 1,
		},
		Logger: &zapAsynqLogger{sugared: logger.Named("asynq").Sugar()},
	})
}

// zapAsynqLogger adapts zap to asynq's logging interface.
type zapAsynqLogger struct {
	sugared *zap.SugaredLogger
}

func (l *zapAsynqLogger) Debug(args ...interface{}) { l.sugared.Debug(args...) }
func (l *zapAsynqLogger) Info(args ...interface{})  { l.sugared.Info(args...) }
func (l *zapAsynqLogger) Warn(args ...interface{})  { l.sugared.Warn(args...) }
func (l *zapAsynqLogger) Error(args ...interface{}) { l.sugared.Error(args...) }
func (l *zapAsynqLogger) Fatal(args ...interface{}) { l.sugared.Fatal(args...) }
