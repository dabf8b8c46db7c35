package blur

import (
	"errors"
	"image"

	"gonum.org/v1/gonum/stat"
)

var errEmptyImage = errors.New("blur: image is empty or too small")

// laplacianScore normalizes the Laplacian variance into a blur score via
// score = 1 / (1 + variance/norm).
func laplacianScore(gray *image.Gray, norm float64) (float64, error) {
	variance, err := laplacianVariance(gray)
	if err != nil {
		return 0, err
	}
	return 1.0 / (1.0 + variance/norm), nil
}

// laplacianVariance is the population variance of the 4-neighbor Laplacian
// response over every pixel, with reflected borders.
func laplacianVariance(gray *image.Gray) (float64, error) {
	response, err := laplacianResponse(gray)
	if err != nil {
		return 0, err
	}
	mean := stat.Mean(response, nil)
	return stat.MomentAbout(2, response, mean, nil), nil
}

// laplacianResponse convolves the image with the discrete second-derivative
// kernel {{0,1,0},{1,-4,1},{0,1,0}} and returns the flattened response map.
func laplacianResponse(gray *image.Gray) ([]float64, error) {
	bounds := gray.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w < 2 || h < 2 {
		return nil, errEmptyImage
	}

	at := func(x, y int) float64 {
		x = reflect(x, w)
		y = reflect(y, h)
		return float64(gray.Pix[y*gray.Stride+x])
	}

	response := make([]float64, 0, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := at(x-1, y) + at(x+1, y) + at(x, y-1) + at(x, y+1) - 4*at(x, y)
			response = append(response, v)
		}
	}
	return response, nil
}

// reflect mirrors an out-of-range index back into [0,n) without repeating
// the edge sample.
func reflect(i, n int) int {
	if i < 0 {
		return -i
	}
	if i >= n {
		return 2*n - 2 - i
	}
	return i
}

// absoluteLaplacian is the magnitude of the Laplacian response per pixel,
// used by the multi-scale focus measure.
func absoluteLaplacian(gray *image.Gray) ([]float64, error) {
	response, err := laplacianResponse(gray)
	if err != nil {
		return nil, err
	}
	for i, v := range response {
		if v < 0 {
			response[i] = -v
		}
	}
	return response, nil
}
