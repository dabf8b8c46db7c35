package analysis

import (
	"context"
	"image"
	"time"

	"go.uber.org/zap"

	"github.com/example/blurdetect/internal/blur"
	"github.com/example/blurdetect/internal/faces"
	"github.com/example/blurdetect/internal/faults"
	"github.com/example/blurdetect/internal/imaging"
	"github.com/example/blurdetect/internal/logging"
	"github.com/example/blurdetect/internal/photos"
	"github.com/example/blurdetect/internal/upstream"
)

// MetadataStore is the slice of photo persistence the analyzer needs.
type MetadataStore interface {
	GetPhoto(ctx context.Context, photoID, userID string) (*photos.Photo, error)
	RecordAnalysis(ctx context.Context, photoID, userID string, score float64, blurred bool, processedAt time.Time) error
}

// RegionSelector picks the image region to score, usually the largest face.
type RegionSelector interface {
	PrimaryRegion(img image.Image) (faces.Region, bool, error)
}

// BlurScorer produces a blurriness score in [0,1] for a grayscale image.
type BlurScorer interface {
	Score(gray *image.Gray, method blur.Method) (float64, error)
}

// Per-call deadlines for the collaborators. Image retrieval gets the long
// one; metadata reads and the write-back are quick row operations.
const (
	metadataTimeout = 10 * time.Second
	fetchTimeout    = 30 * time.Second
	writeTimeout    = 10 * time.Second
)

// Analyzer coordinates one photo's analysis: metadata lookup, image fetch,
// region selection, scoring, classification, and the result write-back.
type Analyzer struct {
	store    MetadataStore
	fetcher  upstream.Fetcher
	codec    imaging.Codec
	selector RegionSelector
	scorer   BlurScorer
	logger   *zap.Logger
}

// NewAnalyzer wires the orchestrator. A nil selector disables face-aware
// analysis regardless of the per-request option.
func NewAnalyzer(store MetadataStore, fetcher upstream.Fetcher, codec imaging.Codec, selector RegionSelector, scorer BlurScorer, logger *zap.Logger) *Analyzer {
	return &Analyzer{
		store:    store,
		fetcher:  fetcher,
		codec:    codec,
		selector: selector,
		scorer:   scorer,
		logger:   logger.Named("analyzer"),
	}
}

// AnalyzeOne runs the full pipeline for a single photo and returns the
// written result. Errors carry a faults.Kind so callers can translate them
// without knowing which step failed.
func (a *Analyzer) AnalyzeOne(ctx context.Context, photoID, userID string, opts Options) (*Result, error) {
	start := time.Now()
	opLogger := logging.WithOperation(a.logger, "analysis.analyze_photo", photoID)
	opLogger.Info("analysis started",
		zap.String("user_id", userID),
		zap.String("method", string(opts.Method)),
		zap.Float64("threshold", opts.Threshold),
		zap.Bool("use_face_detection", opts.UseFaceDetection))

	metaCtx, cancelMeta := context.WithTimeout(ctx, metadataTimeout)
	photo, err := a.store.GetPhoto(metaCtx, photoID, userID)
	cancelMeta()
	if err != nil {
		return nil, err
	}

	fetchCtx, cancelFetch := context.WithTimeout(ctx, fetchTimeout)
	img, err := a.fetcher.FetchImage(fetchCtx, photo.UpstreamImageID, userID)
	cancelFetch()
	if err != nil {
		return nil, err
	}

	decoded, format, err := a.codec.Decode(img.Data)
	if err != nil {
		return nil, faults.New(faults.KindInvalidContent, "analysis.decode", err)
	}

	target := a.selectTarget(decoded, opts, opLogger)

	score, err := a.scorer.Score(a.codec.Grayscale(target), opts.Method)
	if err != nil {
		return nil, faults.New(faults.KindScoring, "analysis.score", err)
	}
	blurred := IsBlurred(score, opts.Threshold)

	processedAt := time.Now().UTC()
	writeCtx, cancelWrite := context.WithTimeout(ctx, writeTimeout)
	err = a.store.RecordAnalysis(writeCtx, photoID, userID, score, blurred, processedAt)
	cancelWrite()
	if err != nil {
		return nil, err
	}

	elapsed := time.Since(start).Seconds() * 1000
	opLogger.Info("analysis completed",
		zap.String("format", format),
		zap.Float64("blur_score", score),
		zap.Bool("is_blurred", blurred),
		zap.Float64("processing_time_ms", elapsed))

	return &Result{
		PhotoID:          photo.ID,
		UpstreamImageID:  photo.UpstreamImageID,
		Filename:         photo.Filename,
		BlurScore:        score,
		IsBlurred:        blurred,
		ProcessedAt:      processedAt,
		ProcessingTimeMS: elapsed,
	}, nil
}

// selectTarget returns the face crop when face-aware analysis applies, or
// the whole image. Detection problems degrade to whole-image analysis
// rather than failing the run.
func (a *Analyzer) selectTarget(decoded image.Image, opts Options, opLogger *zap.Logger) image.Image {
	if !opts.UseFaceDetection || a.selector == nil {
		return decoded
	}

	region, ok, err := a.selector.PrimaryRegion(decoded)
	if err != nil {
		opLogger.Warn("face detection failed, scoring whole image", zap.Error(err))
		return decoded
	}
	if !ok {
		return decoded
	}

	opLogger.Debug("scoring face region",
		zap.Int("x", region.X),
		zap.Int("y", region.Y),
		zap.Int("width", region.Width),
		zap.Int("height", region.Height))
	return a.codec.Crop(decoded, region.Rect())
}
