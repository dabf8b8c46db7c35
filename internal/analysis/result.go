package analysis

import (
	"time"
)

// Result is the immutable outcome of one analysis run.
type Result struct {
	PhotoID          string    `json:"photo_id"`
	UpstreamImageID  string    `json:"upstream_image_id"`
	Filename         string    `json:"filename,omitempty"`
	BlurScore        float64   `json:"blur_score"`
	IsBlurred        bool      `json:"is_blurred"`
	ProcessedAt      time.Time `json:"processed_at"`
	ProcessingTimeMS float64   `json:"processing_time_ms"`
}

// Quality returns the human readable label for the result's score.
func (r *Result) Quality() string {
	return QualityDescription(r.BlurScore)
}
