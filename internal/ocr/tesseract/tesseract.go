//go:build tesseract

// Package tesseract provides an ocr.Engine backed by the Tesseract library
// via gosseract. It requires cgo and libtesseract, so the provider is guarded
// by the "tesseract" build tag; without it NewEngine reports the engine as
// unavailable and the pipeline runs in its degraded OCR mode.
package tesseract

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"

	"github.com/otiai10/gosseract/v2"

	"github.com/docguard/docguard/internal/ocr"
)

// Engine implements ocr.Engine using a gosseract client per call.
type Engine struct {
	clientFactory func() *gosseract.Client
}

// NewEngine constructs a Tesseract-backed OCR engine.
func NewEngine() (*Engine, error) {
	return &Engine{clientFactory: gosseract.NewClient}, nil
}

func (e *Engine) Name() string { return "tesseract" }

// Recognize runs Tesseract over a grayscale image and returns per-line
// fragments with confidence and position.
func (e *Engine) Recognize(ctx context.Context, img *image.Gray) ([]ocr.Fragment, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode image for ocr: %w", err)
	}

	client := e.clientFactory()
	defer func() { _ = client.Close() }()

	if err := client.SetImageFromBytes(buf.Bytes()); err != nil {
		return nil, fmt.Errorf("set ocr image: %w", err)
	}

	boxes, err := client.GetBoundingBoxes(gosseract.RIL_TEXTLINE)
	if err != nil {
		// Fall back to plain text recognition without positions.
		text, terr := client.Text()
		if terr != nil {
			return nil, fmt.Errorf("tesseract recognize: %w", terr)
		}
		if text == "" {
			return nil, nil
		}
		return []ocr.Fragment{{Text: text}}, nil
	}

	fragments := make([]ocr.Fragment, 0, len(boxes))
	for _, box := range boxes {
		if box.Word == "" {
			continue
		}
		fragments = append(fragments, ocr.Fragment{
			Text:       box.Word,
			Confidence: box.Confidence,
			Box:        box.Box,
		})
	}
	return fragments, nil
}
