package blur

import (
	"errors"
	"image"

	"gonum.org/v1/gonum/stat"
)

// multiscaleFactors are the downsampling steps of the relative-focus
// measure: full size plus two halvings.
var multiscaleFactors = [...]int{1, 2, 4}

// multiscaleScore estimates blurriness relative to the image's own sharpest
// detail at several scales. Per scale, every pixel's focus is its Laplacian
// magnitude normalized by the scale's maximum; blurriness is the mean
// complement. Scales too small to convolve are skipped; when none remain the
// technique reports failure so the caller can fall back.
func (s *Scorer) multiscaleScore(gray *image.Gray) (float64, error) {
	perScale := make([]float64, 0, len(multiscaleFactors))
	for _, factor := range multiscaleFactors {
		scaled := downsample(gray, factor)
		response, err := absoluteLaplacian(scaled)
		if err != nil {
			continue
		}

		max := 0.0
		for _, v := range response {
			if v > max {
				max = v
			}
		}
		if max == 0 {
			// No detail at this scale at all.
			perScale = append(perScale, 1.0)
			continue
		}

		var sum float64
		for _, v := range response {
			sum += 1.0 - v/max
		}
		perScale = append(perScale, sum/float64(len(response)))
	}

	if len(perScale) == 0 {
		return 0, errors.New("blur: image too small for multi-scale measure")
	}
	return stat.Mean(perScale, nil), nil
}

// downsample shrinks the image by an integer factor using box averaging,
// truncating any remainder rows and columns.
func downsample(gray *image.Gray, factor int) *image.Gray {
	if factor <= 1 {
		return gray
	}
	bounds := gray.Bounds()
	w, h := bounds.Dx()/factor, bounds.Dy()/factor
	out := image.NewGray(image.Rect(0, 0, w, h))
	if w == 0 || h == 0 {
		return out
	}

	block := float64(factor * factor)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			var sum int
			for dy := 0; dy < factor; dy++ {
				offset := (y*factor + dy) * gray.Stride
				for dx := 0; dx < factor; dx++ {
					sum += int(gray.Pix[offset+x*factor+dx])
				}
			}
			out.Pix[y*out.Stride+x] = uint8(float64(sum)/block + 0.5)
		}
	}
	return out
}
