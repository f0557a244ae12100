// Package ocr defines the optical character recognition capability boundary.
//
// Engines consume a grayscale pixel array and return recognized text
// fragments with confidence and position. The concrete provider is optional;
// when none is wired in, the pipeline reports every image as
// "[OCR not available]" instead of failing.
package ocr

import (
	"context"
	"image"
)

// Fragment is a single recognized run of text.
type Fragment struct {
	Text       string
	Confidence float64
	// Box is the fragment position in image pixel coordinates. The document
	// pipeline does not consume it, but providers report it.
	Box image.Rectangle
}

// Engine is the OCR provider contract: one grayscale image in, recognized
// fragments out.
type Engine interface {
	Name() string
	Recognize(ctx context.Context, img *image.Gray) ([]Fragment, error)
}
