package faces

import (
	"image"
	"sort"

	"go.uber.org/zap"
)

// expandRatio widens the chosen face box by 30% of its size on every side
// so the crop keeps hair, chin and some background context.
const expandRatio = 0.30

// Selector picks the region to score when face-aware analysis is on: the
// largest detected face, expanded and clamped to the image bounds.
type Selector struct {
	detector RegionDetector
	logger   *zap.Logger
}

func NewSelector(detector RegionDetector, logger *zap.Logger) *Selector {
	return &Selector{
		detector: detector,
		logger:   logger.Named("face_selector"),
	}
}

// PrimaryRegion returns the expanded largest face and true, or false when no
// usable face was found. Callers fall back to the whole image on false.
func (s *Selector) PrimaryRegion(img image.Image) (Region, bool, error) {
	regions, err := s.detector.DetectRegions(img)
	if err != nil {
		return Region{}, false, err
	}
	if len(regions) == 0 {
		s.logger.Debug("no faces detected, using whole image")
		return Region{}, false, nil
	}

	sort.SliceStable(regions, func(i, j int) bool {
		return regions[i].Area() > regions[j].Area()
	})
	primary := expand(regions[0], img.Bounds())
	if primary.Width <= 0 || primary.Height <= 0 {
		s.logger.Warn("face region empty after clamping, using whole image",
			zap.Int("x", regions[0].X),
			zap.Int("y", regions[0].Y),
			zap.Int("width", regions[0].Width),
			zap.Int("height", regions[0].Height))
		return Region{}, false, nil
	}

	s.logger.Debug("selected face region",
		zap.Int("candidates", len(regions)),
		zap.Int("width", primary.Width),
		zap.Int("height", primary.Height))
	return primary, true, nil
}

func expand(r Region, bounds image.Rectangle) Region {
	ew := int(float64(r.Width) * expandRatio)
	eh := int(float64(r.Height) * expandRatio)

	x1 := r.X - ew
	if x1 < bounds.Min.X {
		x1 = bounds.Min.X
	}
	y1 := r.Y - eh
	if y1 < bounds.Min.Y {
		y1 = bounds.Min.Y
	}
	x2 := r.X + r.Width + ew
	if x2 > bounds.Max.X {
		x2 = bounds.Max.X
	}
	y2 := r.Y + r.Height + eh
	if y2 > bounds.Max.Y {
		y2 = bounds.Max.Y
	}

	return Region{X: x1, Y: y1, Width: x2 - x1, Height: y2 - y1}
}
