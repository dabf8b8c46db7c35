package photos

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/example/blurdetect/internal/faults"
	"github.com/example/blurdetect/internal/logging"
)

// MetricsAggregate holds the raw counts behind the metrics summary endpoint.
type MetricsAggregate struct {
	TotalPhotos      int64
	AnalyzedPhotos   int64
	BlurredPhotos    int64
	AverageBlurScore *float64
}

// PhotoRepository provides persistence APIs for photo metadata.
type PhotoRepository struct {
	db             *gorm.DB
	logger         *zap.Logger
	retryAttempts  int
	initialBackoff time.Duration
	maxBackoff     time.Duration
}

// NewPhotoRepository creates a new repository instance.
func NewPhotoRepository(db *gorm.DB, logger *zap.Logger) *PhotoRepository {
	return &PhotoRepository{
		db:             db,
		logger:         logger.Named("photo_repository"),
		retryAttempts:  3,
		initialBackoff: 50 * time.Millisecond,
		maxBackoff:     time.Second,
	}
}

// AutoMigrate ensures the schema is available.
func (r *PhotoRepository) AutoMigrate(ctx context.Context) error {
	return r.db.WithContext(ctx).AutoMigrate(&Photo{})
}

// GetPhoto loads a photo owned by the given user.
func (r *PhotoRepository) GetPhoto(ctx context.Context, photoID, userID string) (*Photo, error) {
	var photo Photo
	err := r.executeWithRetry(ctx, "photos.get", photoID, func() error {
		return r.db.WithContext(ctx).First(&photo, "id = ? AND user_id = ?", photoID, userID).Error
	})
	if err != nil {
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			return nil, faults.New(faults.KindNotFound, "photos.get", err)
		case errors.Is(err, context.DeadlineExceeded):
			return nil, faults.New(faults.KindTimeout, "photos.get", err)
		default:
			return nil, faults.New(faults.KindUpstream, "photos.get", err)
		}
	}
	return &photo, nil
}

// RecordAnalysis writes the analysis outcome onto the photo row as a partial
// update. Rows are matched by id and owner; no version check is performed, so
// concurrent analyses of the same photo resolve as last writer wins.
func (r *PhotoRepository) RecordAnalysis(ctx context.Context, photoID, userID string, score float64, blurred bool, processedAt time.Time) error {
	var affected int64
	err := r.executeWithRetry(ctx, "photos.record_analysis", photoID, func() error {
		result := r.db.WithContext(ctx).
			Model(&Photo{}).
			Where("id = ? AND user_id = ?", photoID, userID).
			Updates(map[string]interface{}{
				"blur_score":   score,
				"is_blurred":   blurred,
				"processed_at": processedAt,
			})
		affected = result.RowsAffected
		return result.Error
	})
	if err != nil {
		return faults.New(faults.KindUpstream, "photos.record_analysis", err)
	}
	if affected == 0 {
		return faults.New(faults.KindNotFound, "photos.record_analysis", nil)
	}
	return nil
}

// AggregateMetrics computes library-wide analysis counters in one query.
func (r *PhotoRepository) AggregateMetrics(ctx context.Context) (*MetricsAggregate, error) {
	var agg MetricsAggregate
	err := r.executeWithRetry(ctx, "photos.aggregate_metrics", "", func() error {
		return r.db.WithContext(ctx).
			Model(&Photo{}).
			Select("COUNT(*) AS total_photos, " +
				"COUNT(blur_score) AS analyzed_photos, " +
				"COALESCE(SUM(CASE WHEN is_blurred THEN 1 ELSE 0 END), 0) AS blurred_photos, " +
				"AVG(blur_score) AS average_blur_score").
			Scan(&agg).Error
	})
	if err != nil {
		return nil, err
	}
	return &agg, nil
}

func (r *PhotoRepository) executeWithRetry(ctx context.Context, operation, taskID string, fn func() error) error {
	if r.retryAttempts <= 1 {
		err := fn()
		return logging.NewOperationError(operation, taskID, err)
	}

	backoff := r.initialBackoff
	opLogger := logging.WithOperation(r.logger, operation, taskID)
	var err error
	for attempt := 0; attempt < r.retryAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return logging.NewOperationError(operation, taskID, ctx.Err())
			case <-time.After(backoff):
			}
			if next := backoff * 2; next <= r.maxBackoff {
				backoff = next
			}
		}

		err = fn()
		if err == nil {
			if attempt > 0 {
				opLogger.Info("database operation succeeded after retry", zap.Int("attempt", attempt+1))
			}
			return nil
		}

		if !faults.IsTransient(err) || attempt == r.retryAttempts-1 {
			opLogger.Error("database operation failed", zap.Error(err), zap.Int("attempt", attempt+1))
			return logging.NewOperationError(operation, taskID, err)
		}

		opLogger.Warn("transient database error", zap.Error(err), zap.Int("attempt", attempt+1))
	}
	return logging.NewOperationError(operation, taskID, err)
}
