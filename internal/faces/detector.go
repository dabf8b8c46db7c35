package faces

import (
	"fmt"
	"image"
	"os"

	pigo "github.com/esimov/pigo/core"
)

// Region is a face bounding box in pixel coordinates.
type Region struct {
	X      int
	Y      int
	Width  int
	Height int
}

// Area is the pixel count used to rank candidate regions.
func (r Region) Area() int {
	return r.Width * r.Height
}

// Rect converts the region to a stdlib rectangle.
func (r Region) Rect() image.Rectangle {
	return image.Rect(r.X, r.Y, r.X+r.Width, r.Y+r.Height)
}

// RegionDetector finds candidate face regions in a decoded image. Order is
// unspecified; ranking is the selector's job.
type RegionDetector interface {
	DetectRegions(img image.Image) ([]Region, error)
}

// Cascade parameters. MinSize and the quality cutoff correspond to the
// minimum region size and neighbor count the classifier was tuned against.
const (
	minFaceSize      = 30
	shiftFactor      = 0.1
	scaleFactor      = 1.1
	qualityThreshold = 5.0
	overlapThreshold = 0.2
)

// PigoDetector runs the pigo cascade classifier.
type PigoDetector struct {
	classifier *pigo.Pigo
}

// NewPigoDetector loads and unpacks the binary cascade model at path.
func NewPigoDetector(path string) (*PigoDetector, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("faces: read cascade %s: %w", path, err)
	}
	classifier, err := pigo.NewPigo().Unpack(data)
	if err != nil {
		return nil, fmt.Errorf("faces: unpack cascade %s: %w", path, err)
	}
	return &PigoDetector{classifier: classifier}, nil
}

// DetectRegions runs the cascade over the full image, clusters overlapping
// hits, and drops low-quality detections.
func (d *PigoDetector) DetectRegions(img image.Image) ([]Region, error) {
	src := pigo.ImgToNRGBA(img)
	pixels := pigo.RgbToGrayscale(src)
	cols, rows := src.Bounds().Max.X, src.Bounds().Max.Y
	if cols < minFaceSize || rows < minFaceSize {
		return nil, nil
	}

	maxSize := rows
	if cols < rows {
		maxSize = cols
	}

	params := pigo.CascadeParams{
		MinSize:     minFaceSize,
		MaxSize:     maxSize,
		ShiftFactor: shiftFactor,
		ScaleFactor: scaleFactor,
		ImageParams: pigo.ImageParams{
			Pixels: pixels,
			Rows:   rows,
			Cols:   cols,
			Dim:    cols,
		},
	}

	dets := d.classifier.RunCascade(params, 0.0)
	dets = d.classifier.ClusterDetections(dets, overlapThreshold)

	regions := make([]Region, 0, len(dets))
	for _, det := range dets {
		if det.Q < qualityThreshold {
			continue
		}
		half := det.Scale / 2
		regions = append(regions, Region{
			X:      det.Col - half,
			Y:      det.Row - half,
			Width:  det.Scale,
			Height: det.Scale,
		})
	}
	return regions, nil
}
