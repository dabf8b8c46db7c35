package imaging

import (
	"bytes"
	"fmt"
	"image"
	"image/draw"

	// Registered decoders for the formats the upstream serves.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
)

// Codec turns raw upstream bytes into pixel buffers the scorers consume.
// It exists as an interface so analysis code can be tested without real
// image payloads.
type Codec interface {
	// Decode parses raw bytes and reports the detected format name.
	Decode(data []byte) (image.Image, string, error)
	// Grayscale derives the single-channel view used by every scorer.
	Grayscale(img image.Image) *image.Gray
	// Crop returns the sub-image covered by r, clamped to the image bounds.
	Crop(img image.Image, r image.Rectangle) image.Image
}

// StdCodec implements Codec with the standard library decoders.
type StdCodec struct{}

// NewStdCodec constructs the stdlib-backed codec.
func NewStdCodec() *StdCodec {
	return &StdCodec{}
}

// Decode parses JPEG, PNG, or GIF bytes.
func (*StdCodec) Decode(data []byte) (image.Image, string, error) {
	if len(data) == 0 {
		return nil, "", fmt.Errorf("imaging: empty payload")
	}
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("imaging: decode: %w", err)
	}
	return img, format, nil
}

// Grayscale converts using the BT.601 luma weights, matching the scorers'
// expectations for 8-bit intensity values.
func (*StdCodec) Grayscale(img image.Image) *image.Gray {
	if gray, ok := img.(*image.Gray); ok {
		return gray
	}
	bounds := img.Bounds()
	gray := image.NewGray(bounds)
	draw.Draw(gray, bounds, img, bounds.Min, draw.Src)
	return gray
}

// Crop copies the region r out of img. An empty intersection yields an
// image with zero-size bounds, which callers must treat as no region.
func (*StdCodec) Crop(img image.Image, r image.Rectangle) image.Image {
	r = r.Intersect(img.Bounds())
	if r.Empty() {
		return image.NewRGBA(image.Rectangle{})
	}
	if sub, ok := img.(interface {
		SubImage(image.Rectangle) image.Image
	}); ok {
		return sub.SubImage(r)
	}
	out := image.NewRGBA(image.Rect(0, 0, r.Dx(), r.Dy()))
	draw.Draw(out, out.Bounds(), img, r.Min, draw.Src)
	return out
}
