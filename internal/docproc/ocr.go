package docproc

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/docguard/docguard/internal/ocr"
)

// Placeholder texts recorded on images that were not (successfully) OCR'd.
const (
	ocrReasonThroughput  = "[OCR disabled in throughput mode]"
	ocrReasonDisabled    = "[OCR disabled]"
	ocrReasonUnavailable = "[OCR not available]"
	ocrReasonCapReached  = "[OCR skipped: max images reached]"
	ocrReasonNoData      = "[OCR skipped: no image data]"
	ocrReasonLowText     = "[OCR skipped: low-text likelihood]"
	ocrNoTextDetected    = "[No text detected in image]"
)

// Admissibility heuristic thresholds.
const (
	ocrMinDimension  = 32
	ocrMinPixelArea  = 2000
	ocrMinStdDev     = 8.0
	ocrDarkThreshold = 110
	ocrMinDarkRatio  = 0.01
	ocrSampleEdge    = 64
)

// ocrOrchestrator bounds and dispatches OCR over a document's images.
type ocrOrchestrator struct {
	engine    ocr.Engine    // nil means globally unavailable
	maxPerDoc int           // hard cap on engine calls per document
	workers   int64         // bounded intra-document concurrency
	limiter   *rate.Limiter // optional engine call rate bound, nil = unlimited
	logger    *logrus.Logger
}

// run applies OCR in place over the image records and returns the aggregate
// counters. A failure on one image marks that image and moves on; it can
// never fail the document.
func (o *ocrOrchestrator) run(ctx context.Context, images []ImageRecord, opts Options) ([]ImageRecord, OCRStats) {
	stats := OCRStats{
		Engine:          "unavailable",
		MaxImagesPerDoc: o.maxPerDoc,
		Enabled:         opts.OCREnabled && !opts.ThroughputMode,
	}
	if o.engine != nil {
		stats.Engine = o.engine.Name()
	}
	if len(images) == 0 {
		return images, stats
	}

	if !stats.Enabled {
		reason := ocrReasonDisabled
		if opts.ThroughputMode {
			reason = ocrReasonThroughput
		}
		markAll(images, reason)
		stats.ImagesSkipped += len(images)
		return images, stats
	}

	if o.engine == nil {
		markAll(images, ocrReasonUnavailable)
		stats.ImagesSkipped += len(images)
		return images, stats
	}

	// Cheap screens first; only admissible images within the cap are
	// dispatched to the engine.
	var dispatch []int
	for i := range images {
		switch {
		case len(images[i].Data) == 0:
			images[i].ExtractedText = ocrReasonNoData
			images[i].OCRApplied = false
			stats.ImagesSkipped++
		case !shouldApplyOCR(images[i].Data):
			images[i].ExtractedText = ocrReasonLowText
			images[i].OCRApplied = false
			stats.ImagesSkipped++
		case len(dispatch) >= o.maxPerDoc:
			// The cap reason is reserved for images that would otherwise
			// have been sent to the engine.
			images[i].ExtractedText = ocrReasonCapReached
			images[i].OCRApplied = false
			stats.ImagesSkipped++
		default:
			dispatch = append(dispatch, i)
		}
	}

	sem := semaphore.NewWeighted(o.workers)
	var wg sync.WaitGroup
	var mu sync.Mutex

	for _, idx := range dispatch {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()

			text, err := o.recognizeOne(ctx, sem, images[idx].Data)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				images[idx].ExtractedText = fmt.Sprintf("[OCR failed: %v]", err)
				images[idx].OCRApplied = false
				stats.ImagesSkipped++
				return
			}
			images[idx].ExtractedText = text
			images[idx].OCRApplied = true
			stats.ImagesProcessed++
		}(idx)
	}
	wg.Wait()

	return images, stats
}

func (o *ocrOrchestrator) recognizeOne(ctx context.Context, sem *semaphore.Weighted, data []byte) (string, error) {
	if err := sem.Acquire(ctx, 1); err != nil {
		return "", err
	}
	defer sem.Release(1)

	if o.limiter != nil {
		if err := o.limiter.Wait(ctx); err != nil {
			return "", err
		}
	}

	gray, err := decodeGray(data)
	if err != nil {
		return "", fmt.Errorf("decode image: %w", err)
	}
	fragments, err := o.engine.Recognize(ctx, gray)
	if err != nil {
		return "", err
	}

	parts := make([]string, 0, len(fragments))
	for _, f := range fragments {
		if f.Text != "" {
			parts = append(parts, f.Text)
		}
	}
	cleaned := strings.Join(strings.Fields(strings.Join(parts, " ")), " ")
	if cleaned == "" {
		return ocrNoTextDetected, nil
	}
	return cleaned, nil
}

func markAll(images []ImageRecord, reason string) {
	for i := range images {
		images[i].ExtractedText = reason
		images[i].OCRApplied = false
	}
}

/// shouldApplyOCR screens out images unlikely to contain readable glyphs:
// tiny images, near-constant intensity, and images whose downsampled
// dark-pixel ratio is negligible. Undecodable images pass through to the
// engine, which reports its own failure.
func shouldApplyOCR(data []byte) bool {
	gray, err := decodeGray(data)
	if err != nil {
		return true
	}
	bounds := gray.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w < ocrMinDimension || h < ocrMinDimension || w*h < ocrMinPixelArea {
		return false
	}
	if grayStdDev(gray) < ocrMinStdDev {
		return false
	}
	sample := resizeGray(gray, ocrSampleEdge, ocrSampleEdge)
	dark := 0
	for _, p := range sample.Pix {
		if p < ocrDarkThreshold {
			dark++
		}
	}
	return float64(dark)/float64(len(sample.Pix)) >= ocrMinDarkRatio
}
