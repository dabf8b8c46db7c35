package blur

import (
	"image"
	"strings"

	"go.uber.org/zap"
)

// Method selects the scoring technique. Any value outside the known set
// routes to the multi-scale fallback path.
type Method string

const (
	MethodLaplacian Method = "laplacian"
	MethodFFT       Method = "fft"
	MethodHybrid    Method = "hybrid"
)

// ParseMethod normalizes a request-supplied method string. Empty input means
// the hybrid default; unknown values are kept verbatim so the scorer can
// route them to the fallback technique.
func ParseMethod(s string) Method {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return MethodHybrid
	}
	return Method(s)
}

// Normalization constants for the Laplacian variance score. The standalone
// and hybrid call sites deliberately use different divisors; both values are
// load-bearing for downstream thresholds and must not be unified.
const (
	laplacianSoloNorm   = 40.0
	laplacianHybridNorm = 100.0
)

// hybrid weighting between the Laplacian and spectral terms.
const (
	hybridLaplacianWeight = 0.5
	hybridSpectralWeight  = 0.5
)

// Scorer computes normalized blur scores, higher meaning blurrier.
type Scorer struct {
	transform SpectralTransform
	logger    *zap.Logger
}

// NewScorer constructs a scorer around the given spectral transform.
func NewScorer(transform SpectralTransform, logger *zap.Logger) *Scorer {
	return &Scorer{
		transform: transform,
		logger:    logger.Named("blur_scorer"),
	}
}

// Score runs the selected method over a grayscale image and returns a value
// clamped to [0,1].
func (s *Scorer) Score(gray *image.Gray, method Method) (float64, error) {
	if gray == nil || gray.Bounds().Empty() {
		return 0, errEmptyImage
	}

	var (
		score float64
		err   error
	)
	switch method {
	case MethodLaplacian:
		score, err = laplacianScore(gray, laplacianSoloNorm)
	case MethodFFT:
		score, err = s.spectralScore(gray)
	case MethodHybrid:
		var lap, spectral float64
		if lap, err = laplacianScore(gray, laplacianHybridNorm); err != nil {
			return 0, err
		}
		if spectral, err = s.spectralScore(gray); err != nil {
			return 0, err
		}
		score = hybridLaplacianWeight*lap + hybridSpectralWeight*spectral
	default:
		score, err = s.multiscaleScore(gray)
		if err != nil {
			s.logger.Warn("multi-scale measure failed, falling back to laplacian",
				zap.String("method", string(method)), zap.Error(err))
			score, err = laplacianScore(gray, laplacianSoloNorm)
		}
	}
	if err != nil {
		return 0, err
	}
	return clamp01(score), nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
