//go:build !tesseract

package tesseract

import (
	"context"
	"errors"
	"image"

	"github.com/docguard/docguard/internal/ocr"
)

// ErrUnavailable reports that the binary was built without Tesseract support.
var ErrUnavailable = errors.New("tesseract support not compiled in (build with -tags tesseract)")

// Engine is a stub that satisfies ocr.Engine but never recognizes anything.
type Engine struct{}

// NewEngine reports the engine as unavailable in builds without the
// "tesseract" tag. Callers treat the error as a degraded mode, not a failure.
func NewEngine() (*Engine, error) {
	return nil, ErrUnavailable
}

func (e *Engine) Name() string { return "tesseract" }

func (e *Engine) Recognize(ctx context.Context, img *image.Gray) ([]ocr.Fragment, error) {
	return nil, ErrUnavailable
}
