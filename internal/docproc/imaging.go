package docproc

import (
	"bytes"
	"image"
	"image/png"
	"math"

	// Decoders for the image formats that appear embedded in documents.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// detectImageFormat reports the encoded format of raw image bytes, or
// "unknown" when no registered decoder recognizes them.
func detectImageFormat(data []byte) string {
	_, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return "unknown"
	}
	return format
}

// decodeGray decodes raw image bytes into a grayscale pixel array.
func decodeGray(data []byte) (*image.Gray, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	bounds := img.Bounds()
	gray := image.NewGray(bounds)
	draw.Draw(gray, bounds, img, bounds.Min, draw.Src)
	return gray, nil
}

// grayStdDev computes the standard deviation of pixel intensity.
func grayStdDev(img *image.Gray) float64 {
	n := len(img.Pix)
	if n == 0 {
		return 0
	}
	var sum float64
	for _, p := range img.Pix {
		sum += float64(p)
	}
	mean := sum / float64(n)
	var variance float64
	for _, p := range img.Pix {
		d := float64(p) - mean
		variance += d * d
	}
	return math.Sqrt(variance / float64(n))
}

// resizeGray scales a grayscale image to exactly w x h.
func resizeGray(img *image.Gray, w, h int) *image.Gray {
	out := image.NewGray(image.Rect(0, 0, w, h))
	draw.ApproxBiLinear.Scale(out, out.Bounds(), img, img.Bounds(), draw.Src, nil)
	return out
}

// scaleToWidth downscales an image to at most maxWidth, preserving aspect
// ratio. Images already narrow enough are returned unchanged.
func scaleToWidth(img image.Image, maxWidth int) image.Image {
	bounds := img.Bounds()
	if bounds.Dx() <= maxWidth {
		return img
	}
	ratio := float64(maxWidth) / float64(bounds.Dx())
	h := int(float64(bounds.Dy()) * ratio)
	if h < 1 {
		h = 1
	}
	out := image.NewNRGBA(image.Rect(0, 0, maxWidth, h))
	draw.ApproxBiLinear.Scale(out, out.Bounds(), img, bounds, draw.Src, nil)
	return out
}

// thumbnailPNG produces a PNG thumbnail fitting within maxDim x maxDim,
// preserving aspect ratio.
func thumbnailPNG(data []byte, maxDim int) ([]byte, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w > maxDim || h > maxDim {
		ratio := math.Min(float64(maxDim)/float64(w), float64(maxDim)/float64(h))
		w = int(float64(w) * ratio)
		h = int(float64(h) * ratio)
		if w < 1 {
			w = 1
		}
		if h < 1 {
			h = 1
		}
		scaled := image.NewNRGBA(image.Rect(0, 0, w, h))
		draw.ApproxBiLinear.Scale(scaled, scaled.Bounds(), img, bounds, draw.Src, nil)
		img = scaled
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
