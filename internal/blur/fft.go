package blur

import (
	"image"
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"
)

// totalEnergyEpsilon guards the energy-ratio division on pathological
// all-zero spectra.
const totalEnergyEpsilon = 1e-8

// SpectralTransform computes a full 2D discrete Fourier transform of a
// real-valued matrix. Implementations must return one coefficient per input
// sample in row-major order.
type SpectralTransform interface {
	Transform(rows [][]float64) [][]complex128
}

// FourierTransform is the production SpectralTransform, built on gonum's
// complex FFT applied per row and then per column.
type FourierTransform struct{}

// NewFourierTransform constructs the gonum-backed transform.
func NewFourierTransform() *FourierTransform {
	return &FourierTransform{}
}

// Transform computes the 2D DFT by row-column decomposition.
func (*FourierTransform) Transform(rows [][]float64) [][]complex128 {
	h := len(rows)
	if h == 0 {
		return nil
	}
	w := len(rows[0])
	out := make([][]complex128, h)

	rowFFT := fourier.NewCmplxFFT(w)
	seq := make([]complex128, w)
	for y, row := range rows {
		for x, v := range row {
			seq[x] = complex(v, 0)
		}
		out[y] = rowFFT.Coefficients(nil, seq)
	}

	colFFT := fourier.NewCmplxFFT(h)
	col := make([]complex128, h)
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			col[y] = out[y][x]
		}
		res := colFFT.Coefficients(nil, col)
		for y := 0; y < h; y++ {
			out[y][x] = res[y]
		}
	}
	return out
}

// spectralScore measures how little high-frequency energy the image holds.
// The magnitude spectrum is centered, the middle half of each dimension is
// treated as low frequency, and the remaining energy ratio is folded into
// score = 1 - min(ratio*2, 1).
func (s *Scorer) spectralScore(gray *image.Gray) (float64, error) {
	bounds := gray.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w < 2 || h < 2 {
		return 0, errEmptyImage
	}

	spectrum := s.transform.Transform(grayRows(gray))

	// Magnitudes with the zero frequency shifted to (h/2, w/2).
	shiftY, shiftX := h-h/2, w-w/2
	magnitude := make([][]float64, h)
	for y := 0; y < h; y++ {
		row := make([]float64, w)
		srcRow := spectrum[(y+shiftY)%h]
		for x := 0; x < w; x++ {
			row[x] = cmplx.Abs(srcRow[(x+shiftX)%w])
		}
		magnitude[y] = row
	}

	centerY, centerX := h/2, w/2
	lowY0, lowY1 := centerY-h/4, centerY+h/4
	lowX0, lowX1 := centerX-w/4, centerX+w/4

	var total, low float64
	for y := 0; y < h; y++ {
		inY := y >= lowY0 && y < lowY1
		for x := 0; x < w; x++ {
			v := magnitude[y][x]
			total += v
			if inY && x >= lowX0 && x < lowX1 {
				low += v
			}
		}
	}

	ratio := (total - low) / (total + totalEnergyEpsilon)
	score := 1.0 - math.Min(ratio*2.0, 1.0)
	return score, nil
}

func grayRows(gray *image.Gray) [][]float64 {
	bounds := gray.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	rows := make([][]float64, h)
	for y := 0; y < h; y++ {
		row := make([]float64, w)
		offset := y * gray.Stride
		for x := 0; x < w; x++ {
			row[x] = float64(gray.Pix[offset+x])
		}
		rows[y] = row
	}
	return rows
}
