// Package docproc implements the per-document processing pipeline: format
// detection, content extraction, anonymization and PII redaction, OCR
// orchestration, output rendering, and result caching.
package docproc

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Format identifies a supported input document type. It is resolved once from
// the filename extension when a Document is created; everything downstream
// switches exhaustively on it.
type Format string

const (
	FormatText Format = "text" // .txt plain text
	FormatWord Format = "word" // .docx word-processor container
	FormatPDF  Format = "pdf"  // .pdf portable document
)

// DetectFormat maps a filename extension onto a Format. Unsupported
// extensions fail the individual document, never the batch.
func DetectFormat(filename string) (Format, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".txt":
		return FormatText, nil
	case ".docx":
		return FormatWord, nil
	case ".pdf":
		return FormatPDF, nil
	default:
		return "", fmt.Errorf("unsupported file format: %q", filepath.Ext(filename))
	}
}

// Document is an immutable input: raw bytes plus the declared filename and
// the format resolved from it. The pipeline borrows it read-only.
type Document struct {
	Filename string
	Data     []byte
	Format   Format
}

// NewDocument resolves the format tag for filename and wraps the raw bytes.
func NewDocument(filename string, data []byte) (Document, error) {
	format, err := DetectFormat(filename)
	if err != nil {
		return Document{}, err
	}
	return Document{Filename: filename, Data: data, Format: format}, nil
}

// Request carries the three operation flags and the per-request options.
type Request struct {
	Anonymize   bool    `json:"anonymize"`       // substitute configured literal terms
	RemovePII   bool    `json:"remove_pii"`      // redact detected personal information
	ExtractJSON bool    `json:"extract_to_json"` // emit a structured JSON snapshot instead of a document
	Options     Options `json:"options"`
}

// Table is an extracted table: a row-major grid of cell strings.
type Table struct {
	Index  int        `json:"table_index"`
	Data   [][]string `json:"data"`
	Rows   int        `json:"rows"`
	Cols   int        `json:"cols"`
	Page   int        `json:"page,omitempty"`              // 1-based source page, PDF only
	Method string     `json:"extraction_method,omitempty"` // how the table was detected
}

// ImageRecord is an image extracted from a document, with the OCR outcome
// once the orchestrator has run.
type ImageRecord struct {
	Type          string `json:"type"`        // pdf_embedded_image, docx_embedded_image, referenced_image
	Description   string `json:"description"` // human-readable source description
	Data          []byte `json:"-"`           // raw image bytes, never serialized directly
	ImageFormat   string `json:"image_format"`
	Page          int    `json:"page,omitempty"` // 1-based source page, PDF only
	ExtractedText string `json:"extracted_text"`
	OCRApplied    bool   `json:"ocr_applied"`
}

// Content is the normalized extraction result for one document.
type Content struct {
	Text       string        // flat text view, table rows appended pipe-joined
	Paragraphs []string      // non-empty paragraphs in document order
	Tables     []Table       // ordered as encountered
	Images     []ImageRecord // ordered as encountered
}

// OCRStats aggregates per-document OCR counters for metadata.
type OCRStats struct {
	Engine          string `json:"engine"` // engine name, or "unavailable"
	ImagesProcessed int    `json:"images_processed"`
	ImagesSkipped   int    `json:"images_skipped"`
	MaxImagesPerDoc int    `json:"max_images_per_doc"`
	Enabled         bool   `json:"enabled"`
}

// Metadata describes how a result was produced. A copy is stored with every
// cache entry; timing values are historical and never re-measured on a hit.
type Metadata struct {
	Timing         map[string]float64 `json:"timing"` // per-stage seconds
	ThroughputMode bool               `json:"throughput_mode"`
	CacheHit       bool               `json:"cache_hit"`
	NERMode        string             `json:"ner_mode"` // regex_only or model_batch
	PDFEngine      string             `json:"pdf_engine,omitempty"`
	OCR            OCRStats           `json:"ocr"`
	RunID          string             `json:"run_id"`  // unique id of the producing pipeline run
	Options        Options            `json:"options"` // effective (normalized) options
}

// Clone deep-copies the metadata so cached copies can never be corrupted by
// later mutation of a returned result.
func (m Metadata) Clone() Metadata {
	out := m
	if m.Timing != nil {
		out.Timing = make(map[string]float64, len(m.Timing))
		for k, v := range m.Timing {
			out.Timing[k] = v
		}
	}
	out.Options = m.Options.clone()
	return out
}

// Result is the finished output for one document.
type Result struct {
	Content   []byte   // output bytes (PDF, JSON, or original passthrough)
	Extension string   // ".pdf", ".json", or the original extension
	Metadata  Metadata // finalized processing metadata
}

// OutputName derives the output filename for a processed document:
// .json when a JSON snapshot was requested, stem_processed.pdf when any
// transform was applied, otherwise the original name unchanged.
func OutputName(filename string, req Request) string {
	stem := strings.TrimSuffix(filename, filepath.Ext(filename))
	if stem == "" {
		stem = filename
	}
	switch {
	case req.ExtractJSON:
		return stem + ".json"
	case req.Anonymize || req.RemovePII:
		return stem + "_processed.pdf"
	default:
		return filename
	}
}
