package usecase

import "context"

// MetricsSummary represents aggregated analysis insights over the library.
type MetricsSummary struct {
	TotalPhotos      int64   `json:"total_photos"`
	AnalyzedPhotos   int64   `json:"analyzed_photos"`
	BlurredPhotos    int64   `json:"blurred_photos"`
	AnalyzedRate     float64 `json:"analyzed_rate"`
	BlurredRate      float64 `json:"blurred_rate"`
	AverageBlurScore float64 `json:"average_blur_score"`
}

// GetMetricsSummary aggregates analysis metrics from the photo store.
func (uc *AnalysisUseCase) GetMetricsSummary(ctx context.Context) (*MetricsSummary, error) {
	aggregation, err := uc.store.AggregateMetrics(ctx)
	if err != nil {
		return nil, err
	}

	summary := &MetricsSummary{
		TotalPhotos:    aggregation.TotalPhotos,
		AnalyzedPhotos: aggregation.AnalyzedPhotos,
		BlurredPhotos:  aggregation.BlurredPhotos,
	}
	if aggregation.AverageBlurScore != nil {
		summary.AverageBlurScore = *aggregation.AverageBlurScore
	}
	if aggregation.TotalPhotos > 0 {
		summary.AnalyzedRate = float64(aggregation.AnalyzedPhotos) / float64(aggregation.TotalPhotos)
	}
	if aggregation.AnalyzedPhotos > 0 {
		summary.BlurredRate = float64(aggregation.BlurredPhotos) / float64(aggregation.AnalyzedPhotos)
	}

	return summary, nil
}
