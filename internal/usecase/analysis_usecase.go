package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/blurdetect/internal/analysis"
	"github.com/example/blurdetect/internal/cache"
	"github.com/example/blurdetect/internal/faults"
	"github.com/example/blurdetect/internal/jobs"
	"github.com/example/blurdetect/internal/logging"
	"github.com/example/blurdetect/internal/photos"
	"github.com/example/blurdetect/internal/queue"
	"github.com/example/blurdetect/internal/tagging"
	"github.com/example/blurdetect/internal/upstream"
)

// ErrNotAnalyzed marks a photo that exists but has no analysis result yet.
var ErrNotAnalyzed = errors.New("photo not analyzed yet")

// ErrTaggingDisabled is returned when no tagging service is configured.
var ErrTaggingDisabled = errors.New("tagging service not configured")

const tagFetchTimeout = 30 * time.Second

// AnalysisRunner runs one full analysis inline.
type AnalysisRunner interface {
	AnalyzeOne(ctx context.Context, photoID, userID string, opts analysis.Options) (*analysis.Result, error)
}

// PhotoStore is the persistence surface the use case reads from directly.
type PhotoStore interface {
	GetPhoto(ctx context.Context, photoID, userID string) (*photos.Photo, error)
	AggregateMetrics(ctx context.Context) (*photos.MetricsAggregate, error)
}

// ResultView is the stored analysis outcome of a photo as served to clients.
type ResultView struct {
	PhotoID         string    `json:"photo_id"`
	UpstreamImageID string    `json:"upstream_image_id"`
	Filename        string    `json:"filename,omitempty"`
	BlurScore       float64   `json:"blur_score"`
	IsBlurred       bool      `json:"is_blurred"`
	Quality         string    `json:"quality"`
	ProcessedAt     time.Time `json:"processed_at"`
}

// BatchItem describes one photo of a batch submission.
type BatchItem struct {
	JobID   string `json:"job_id"`
	PhotoID string `json:"photo_id"`
	Status  string `json:"status"`
}

// BatchSubmission summarizes a batch enqueue. QueuedCount counts only the
// photos that actually reached the queue.
type BatchSubmission struct {
	QueuedCount int         `json:"queued_count"`
	Jobs        []BatchItem `json:"jobs"`
}

// AnalysisUseCase encapsulates the service's business flows: inline analysis,
// batch submission, result reads, job status, tagging, and metrics.
type AnalysisUseCase struct {
	runner      AnalysisRunner
	store       PhotoStore
	enqueuer    queue.Enqueuer
	tracker     jobs.Tracker
	cache       cache.Cache
	fetcher     upstream.Fetcher
	tagger      tagging.Tagger
	logger      *zap.Logger
	retryPolicy cache.RetryPolicy
	cacheTTL    time.Duration
}

// NewAnalysisUseCase constructs a new use case instance. tracker, cache, and
// tagger may be nil; the corresponding features degrade gracefully.
func NewAnalysisUseCase(runner AnalysisRunner, store PhotoStore, enqueuer queue.Enqueuer, tracker jobs.Tracker, c cache.Cache, fetcher upstream.Fetcher, tagger tagging.Tagger, cacheTTL time.Duration, logger *zap.Logger) *AnalysisUseCase {
	return &AnalysisUseCase{
		runner:      runner,
		store:       store,
		enqueuer:    enqueuer,
		tracker:     tracker,
		cache:       c,
		fetcher:     fetcher,
		tagger:      tagger,
		logger:      logger.Named("analysis_usecase"),
		retryPolicy: cache.DefaultRetryPolicy(),
		cacheTTL:    cacheTTL,
	}
}

type cachedResult struct {
	UserID string          `json:"user_id"`
	Result analysis.Result `json:"result"`
}

func resultKey(photoID string) string {
	return "bluranalysis:" + photoID
}

// AnalyzeOne runs the analysis pipeline for a single photo and caches the
// outcome for the result endpoint. The database write-back inside the run is
// the durable record; a cache failure is logged but never fails the request.
func (uc *AnalysisUseCase) AnalyzeOne(ctx context.Context, photoID, userID string, opts analysis.Options) (*analysis.Result, error) {
	result, err := uc.runner.AnalyzeOne(ctx, photoID, userID, opts)
	if err != nil {
		return nil, err
	}
	uc.cacheResult(ctx, userID, result)
	return result, nil
}

func (uc *AnalysisUseCase) cacheResult(ctx context.Context, userID string, result *analysis.Result) {
	if uc.cache == nil {
		return
	}
	opLogger := logging.WithOperation(uc.logger, "usecase.cache_result", result.PhotoID)

	serialized, err := json.Marshal(cachedResult{UserID: userID, Result: *result})
	if err != nil {
		opLogger.Warn("failed to serialize analysis result", zap.Error(err))
		return
	}
	err = cache.WithRetry(ctx, uc.logger, uc.retryPolicy, "cache.set.result", result.PhotoID, func() error {
		return uc.cache.Set(ctx, resultKey(result.PhotoID), string(serialized), uc.cacheTTL)
	})
	if err != nil {
		opLogger.Warn("failed to cache analysis result", zap.Error(err))
	}
}

// SubmitBatch enqueues one analysis task per photo. Enqueue failures are
// reported per item and excluded from the queued count; the batch itself
// never fails halfway.
func (uc *AnalysisUseCase) SubmitBatch(ctx context.Context, userID string, photoIDs []string, opts analysis.Options) (*BatchSubmission, error) {
	submission := &BatchSubmission{Jobs: make([]BatchItem, 0, len(photoIDs))}

	for _, photoID := range photoIDs {
		jobID := uuid.NewString()
		opLogger := logging.WithOperation(uc.logger, "usecase.submit_batch", jobID)

		if uc.tracker != nil {
			rec := &jobs.Record{ID: jobID, PhotoID: photoID, UserID: userID}
			if err := uc.tracker.Create(ctx, rec); err != nil {
				opLogger.Warn("failed to create job record", zap.Error(err))
			}
		}

		payload := queue.AnalysisTaskPayload{JobID: jobID, PhotoID: photoID, UserID: userID, Options: opts}
		if err := uc.enqueuer.EnqueueAnalysis(ctx, payload); err != nil {
			opLogger.Error("failed to enqueue analysis", zap.String("photo_id", photoID), zap.Error(err))
			if uc.tracker != nil {
				if terr := uc.tracker.MarkFailed(ctx, jobID, err); terr != nil {
					opLogger.Warn("failed to mark job failed", zap.Error(terr))
				}
			}
			submission.Jobs = append(submission.Jobs, BatchItem{JobID: jobID, PhotoID: photoID, Status: string(jobs.StatusFailed)})
			continue
		}

		submission.QueuedCount++
		submission.Jobs = append(submission.Jobs, BatchItem{JobID: jobID, PhotoID: photoID, Status: string(jobs.StatusQueued)})
	}

	uc.logger.Info("batch submitted",
		zap.String("user_id", userID),
		zap.Int("requested", len(photoIDs)),
		zap.Int("queued", submission.QueuedCount))
	return submission, nil
}

// GetResult returns the stored analysis outcome for a photo, preferring the
// cache. ErrNotAnalyzed is returned for photos that exist without a score.
func (uc *AnalysisUseCase) GetResult(ctx context.Context, photoID, userID string) (*ResultView, error) {
	if uc.cache != nil {
		raw, err := cache.GetWithRetry(ctx, uc.logger, uc.retryPolicy, uc.cache, "cache.get.result", photoID, resultKey(photoID))
		if err == nil {
			var cached cachedResult
			if err := json.Unmarshal([]byte(raw), &cached); err != nil {
				logging.WithOperation(uc.logger, "usecase.get_result", photoID).Warn("failed to decode cached result", zap.Error(err))
			} else if cached.UserID == userID {
				return viewFromResult(&cached.Result), nil
			}
		} else if !errors.Is(err, cache.ErrMiss) {
			logging.WithOperation(uc.logger, "usecase.get_result", photoID).Warn("failed to read result cache", zap.Error(err))
		}
	}

	photo, err := uc.store.GetPhoto(ctx, photoID, userID)
	if err != nil {
		return nil, err
	}
	if !photo.Analyzed() {
		return nil, ErrNotAnalyzed
	}
	return viewFromPhoto(photo), nil
}

// GetJob returns the status record of a batch job owned by the user.
func (uc *AnalysisUseCase) GetJob(ctx context.Context, jobID, userID string) (*jobs.Record, error) {
	if uc.tracker == nil {
		return nil, faults.Errorf(faults.KindNotFound, "jobs.get", "job tracking not configured")
	}
	rec, err := uc.tracker.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if rec.UserID != userID {
		return nil, faults.Errorf(faults.KindNotFound, "jobs.get", "job %s not found", jobID)
	}
	return rec, nil
}

// TagPhoto fetches the photo's image and asks the vision service for a
// one-word tag. The tag is returned to the caller and not persisted.
func (uc *AnalysisUseCase) TagPhoto(ctx context.Context, photoID, userID string) (string, error) {
	if uc.tagger == nil {
		return "", ErrTaggingDisabled
	}

	photo, err := uc.store.GetPhoto(ctx, photoID, userID)
	if err != nil {
		return "", err
	}

	fetchCtx, cancel := context.WithTimeout(ctx, tagFetchTimeout)
	defer cancel()
	img, err := uc.fetcher.FetchImage(fetchCtx, photo.UpstreamImageID, userID)
	if err != nil {
		return "", err
	}

	tag, err := uc.tagger.TagImage(ctx, img.Data)
	if err != nil {
		return "", err
	}

	uc.logger.Info("photo tagged", zap.String("photo_id", photoID), zap.String("tag", tag))
	return tag, nil
}

func viewFromResult(result *analysis.Result) *ResultView {
	return &ResultView{
		PhotoID:         result.PhotoID,
		UpstreamImageID: result.UpstreamImageID,
		Filename:        result.Filename,
		BlurScore:       result.BlurScore,
		IsBlurred:       result.IsBlurred,
		Quality:         result.Quality(),
		ProcessedAt:     result.ProcessedAt,
	}
}

func viewFromPhoto(photo *photos.Photo) *ResultView {
	view := &ResultView{
		PhotoID:         photo.ID,
		UpstreamImageID: photo.UpstreamImageID,
		Filename:        photo.Filename,
		BlurScore:       *photo.BlurScore,
		Quality:         QualityDescriptionOf(photo),
		ProcessedAt:     *photo.ProcessedAt,
	}
	if photo.IsBlurred != nil {
		view.IsBlurred = *photo.IsBlurred
	}
	return view
}

// QualityDescriptionOf labels an analyzed photo's stored score.
func QualityDescriptionOf(photo *photos.Photo) string {
	if photo.BlurScore == nil {
		return ""
	}
	return analysis.QualityDescription(*photo.BlurScore)
}
