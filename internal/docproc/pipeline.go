package docproc

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/docguard/docguard/internal/config"
	"github.com/docguard/docguard/internal/ner"
	"github.com/docguard/docguard/internal/ocr"
)

// Pipeline processes one document at a time: extract, transform, OCR,
// render, cache. It is not safe for concurrent use; batch processing gives
// each worker its own Pipeline.
type Pipeline struct {
	cfg        config.Config
	cache      *Cache
	engine     ocr.Engine
	recognizer ner.Recognizer
	limiter    *rate.Limiter
	logger     *logrus.Logger
}

// New builds a Pipeline with its own result cache. engine and recognizer
// may be nil; the corresponding stages then degrade rather than fail.
func New(cfg config.Config, engine ocr.Engine, recognizer ner.Recognizer, logger *logrus.Logger) *Pipeline {
	var limiter *rate.Limiter
	if cfg.OCRRateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.OCRRateLimit), 1)
	}
	return &Pipeline{
		cfg:        cfg,
		cache:      NewCache(cfg.MaxCacheItems),
		engine:     engine,
		recognizer: recognizer,
		limiter:    limiter,
		logger:     logger,
	}
}

// Process runs the full pipeline for one document. Identical (bytes, request)
// pairs are served from the cache with historical metadata and CacheHit set.
func (p *Pipeline) Process(ctx context.Context, doc Document, req Request) (Result, error) {
	req.Options = req.Options.Normalize()

	key := Fingerprint(doc.Data, req)
	if cached, ok := p.cache.Get(key); ok {
		p.logger.WithFields(logrus.Fields{
			"filename": doc.Filename,
			"run_id":   cached.Metadata.RunID,
		}).Debug("cache hit")
		return cached, nil
	}

	meta := Metadata{
		Timing:         map[string]float64{},
		ThroughputMode: req.Options.ThroughputMode,
		NERMode:        NERModeRegexOnly,
		RunID:          uuid.NewString(),
		Options:        req.Options,
	}
	transformer := NewTransformer(req.Options, p.recognizer)
	if req.RemovePII {
		meta.NERMode = transformer.NERMode()
	}

	content, err := p.extract(ctx, doc, req, transformer, &meta)
	if err != nil {
		return Result{}, err
	}

	ocrStart := time.Now()
	orchestrator := &ocrOrchestrator{
		engine:    p.engine,
		maxPerDoc: p.cfg.OCRMaxImages,
		workers:   int64(p.cfg.OCRWorkers),
		limiter:   p.limiter,
		logger:    p.logger,
	}
	content.Images, meta.OCR = orchestrator.run(ctx, content.Images, req.Options)
	p.redactImageText(ctx, content.Images, req, transformer)
	meta.Timing["ocr"] = time.Since(ocrStart).Seconds()

	result, err := p.render(content, doc, req, &meta)
	if err != nil {
		return Result{}, err
	}
	result.Metadata = meta

	p.cache.Put(key, result)
	p.logger.WithFields(logrus.Fields{
		"filename": doc.Filename,
		"run_id":   meta.RunID,
		"output":   result.Extension,
	}).Info("document processed")
	return result, nil
}

// extract reads the document by format and applies the requested text
// transforms. Word documents are transformed inside the archive before
// extraction so headers and footers are covered too.
func (p *Pipeline) extract(ctx context.Context, doc Document, req Request, t *Transformer, meta *Metadata) (Content, error) {
	start := time.Now()
	var (
		content Content
		err     error
	)
	transform := req.Anonymize || req.RemovePII
	switch doc.Format {
	case FormatText:
		content, err = readText(doc.Data)
		meta.Timing["read_txt"] = time.Since(start).Seconds()
		if err == nil && transform {
			ts := time.Now()
			p.transformContent(ctx, &content, req, t)
			meta.Timing["transform"] = time.Since(ts).Seconds()
		}
	case FormatWord:
		data := doc.Data
		rewriteFailed := false
		if transform {
			rewritten, rerr := rewriteWordArchive(ctx, doc.Data, func(ctx context.Context, texts []string) []string {
				if req.Anonymize {
					texts = t.applyBatch(ctx, texts, opAnonymize)
				}
				if req.RemovePII {
					texts = t.applyBatch(ctx, texts, opRemovePII)
				}
				return texts
			})
			if rerr != nil {
				// The container rewrite is best effort: keep the original
				// bytes and apply the transforms to the extracted text view
				// instead of losing the document.
				rewriteFailed = true
				p.logger.WithError(rerr).WithField("filename", doc.Filename).
					Warn("word container transform failed, transforming extracted text instead")
			} else {
				data = rewritten
			}
			meta.Timing["transform"] = time.Since(start).Seconds()
		}
		readStart := time.Now()
		content, err = readWord(data)
		meta.Timing["read_docx"] = time.Since(readStart).Seconds()
		if err == nil && rewriteFailed {
			ts := time.Now()
			p.transformContent(ctx, &content, req, t)
			meta.Timing["transform"] += time.Since(ts).Seconds()
		}
	case FormatPDF:
		content, meta.PDFEngine, err = readPDF(doc.Data, req.Options, p.cfg.PDFHeaderRatio, p.logger)
		meta.Timing["read_pdf"] = time.Since(start).Seconds()
		if err == nil && transform {
			ts := time.Now()
			p.transformContent(ctx, &content, req, t)
			meta.Timing["transform"] = time.Since(ts).Seconds()
		}
	default:
		return Content{}, fmt.Errorf("unsupported format: %q", doc.Format)
	}
	if err != nil {
		return Content{}, fmt.Errorf("read %s document: %w", doc.Format, err)
	}
	return content, nil
}

// transformContent applies anonymization and PII removal over the flat text,
// the paragraphs, and every table cell. Paragraphs and cells go through the
// batch path so a model recognizer sees one batch per document.
func (p *Pipeline) transformContent(ctx context.Context, content *Content, req Request, t *Transformer) {
	if !req.Anonymize && !req.RemovePII {
		return
	}

	texts := []string{content.Text}
	texts = append(texts, content.Paragraphs...)
	cellCounts := make([]int, len(content.Tables))
	for i, table := range content.Tables {
		for _, row := range table.Data {
			texts = append(texts, row...)
			cellCounts[i] += len(row)
		}
	}

	if req.Anonymize {
		texts = t.applyBatch(ctx, texts, opAnonymize)
	}
	if req.RemovePII {
		texts = t.applyBatch(ctx, texts, opRemovePII)
	}

	content.Text = texts[0]
	next := 1
	for i := range content.Paragraphs {
		content.Paragraphs[i] = texts[next]
		next++
	}
	for i := range content.Tables {
		for r := range content.Tables[i].Data {
			for c := range content.Tables[i].Data[r] {
				content.Tables[i].Data[r][c] = texts[next]
				next++
			}
		}
	}
}

// redactImageText runs the text transforms over OCR output so recognized
// text obeys the same redaction rules as document text.
func (p *Pipeline) redactImageText(ctx context.Context, images []ImageRecord, req Request, t *Transformer) {
	if !req.Anonymize && !req.RemovePII {
		return
	}
	for i := range images {
		if !images[i].OCRApplied {
			continue
		}
		text := images[i].ExtractedText
		if req.Anonymize {
			text = t.Anonymize(text)
		}
		if req.RemovePII {
			text = t.RemovePII(ctx, text)
		}
		images[i].ExtractedText = text
	}
}

// render picks the output mode: JSON snapshot, processed PDF, or original
// bytes untouched when no operation was requested.
func (p *Pipeline) render(content Content, doc Document, req Request, meta *Metadata) (Result, error) {
	now := time.Now()
	switch {
	case req.ExtractJSON:
		out, err := renderJSON(content, doc, req, now)
		meta.Timing["json_generation"] = time.Since(now).Seconds()
		if err != nil {
			return Result{}, fmt.Errorf("render json: %w", err)
		}
		return Result{Content: out, Extension: ".json"}, nil
	case req.Anonymize || req.RemovePII:
		out := renderPDF(content, doc, p.logger, now)
		meta.Timing["pdf_generation"] = time.Since(now).Seconds()
		return Result{Content: out, Extension: ".pdf"}, nil
	default:
		return Result{Content: doc.Data, Extension: filepath.Ext(doc.Filename)}, nil
	}
}

// CacheLen reports the number of cached results, for diagnostics.
func (p *Pipeline) CacheLen() int {
	return p.cache.Len()
}
