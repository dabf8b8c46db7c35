package tagging

import "context"

// Tagger labels an image with a single descriptive word, e.g. "dog" or
// "park". Tags are returned to the caller only; nothing is persisted.
type Tagger interface {
	TagImage(ctx context.Context, imageBytes []byte) (string, error)
}
