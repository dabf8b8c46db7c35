package analysis

import (
	"github.com/example/blurdetect/internal/blur"
)

// DefaultThreshold is the score above which a photo counts as blurred.
const DefaultThreshold = 0.30

// Options tune one analysis run. The zero value is not useful; start from
// DefaultOptions.
type Options struct {
	Threshold        float64     `json:"threshold"`
	Method           blur.Method `json:"method"`
	UseFaceDetection bool        `json:"use_face_detection"`
}

// DefaultOptions mirrors the request defaults of the HTTP API.
func DefaultOptions() Options {
	return Options{
		Threshold:        DefaultThreshold,
		Method:           blur.MethodHybrid,
		UseFaceDetection: true,
	}
}
