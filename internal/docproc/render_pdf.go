package docproc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/sirupsen/logrus"
)

// A4 in points, text laid out top-down inside the margins.
const (
	pdfPageWidth     = 595.0
	pdfPageHeight    = 842.0
	pdfMargin        = 72.0
	pdfBodyFontSize  = 10.0
	pdfTitleFontSize = 14.0
	pdfLineHeight    = 14.0
	pdfWrapColumns   = 90 // Helvetica at body size inside the margins

	pdfImageMaxWidth     = 400
	pdfTableMaxRows      = 10
	pdfTableMaxCols      = 6
	pdfTableCellMaxChars = 50
)

// renderPDF produces the processed-document PDF. It degrades in stages:
// full layout with tables and images, then text-only, then a single-page
// error notice, and as a last resort plain error bytes so the caller always
// gets output.
func renderPDF(content Content, doc Document, logger *logrus.Logger, now time.Time) []byte {
	out, err := renderLayout(content, doc, now, true)
	if err == nil {
		return out
	}
	logger.WithError(err).WithField("filename", doc.Filename).Warn("PDF layout rendering failed, retrying text-only")

	out, err = renderLayout(content, doc, now, false)
	if err == nil {
		return out
	}
	logger.WithError(err).WithField("filename", doc.Filename).Warn("text-only PDF rendering failed, emitting error document")

	out, errDoc := renderErrorPDF(doc.Filename, err)
	if errDoc == nil {
		return out
	}
	return []byte("PDF generation failed: " + err.Error())
}

// renderLayout builds the pdfcpu page-description JSON for the document and
// feeds it through api.Create. With rich=false tables and images are skipped.
func renderLayout(content Content, doc Document, now time.Time, rich bool) ([]byte, error) {
	tmpDir := ""
	if rich && len(content.Images) > 0 {
		dir, err := os.MkdirTemp("", "docguard-pdf-")
		if err != nil {
			return nil, fmt.Errorf("create image temp dir: %w", err)
		}
		defer os.RemoveAll(dir)
		tmpDir = dir
	}

	b := newLayoutBuilder()
	b.addLine("Processed Document: "+doc.Filename, pdfTitleFontSize)
	b.addLine("Processed on: "+now.Format("2006-01-02 15:04:05"), pdfBodyFontSize)
	b.addGap(pdfLineHeight)

	paragraphs := content.Paragraphs
	if len(paragraphs) == 0 && strings.TrimSpace(content.Text) != "" {
		paragraphs = strings.Split(content.Text, "\n")
	}
	for _, para := range paragraphs {
		para = sanitizePDFText(para)
		if para == "" {
			continue
		}
		for _, line := range wrapText(para, pdfWrapColumns) {
			b.addLine(line, pdfBodyFontSize)
		}
		b.addGap(pdfLineHeight / 2)
	}

	if rich {
		for _, table := range content.Tables {
			b.addGap(pdfLineHeight / 2)
			b.addTable(table)
		}
		for i, img := range content.Images {
			if len(img.Data) == 0 {
				continue
			}
			path, width, height, err := stageImage(tmpDir, i, img.Data)
			if err != nil {
				// A broken image frame should not sink the whole document.
				b.addLine(sanitizePDFText("[Image unavailable: "+img.Description+"]"), pdfBodyFontSize)
				continue
			}
			b.addGap(pdfLineHeight / 2)
			b.addImage(path, width, height)
		}
	}

	desc, err := json.Marshal(b.document())
	if err != nil {
		return nil, fmt.Errorf("marshal page description: %w", err)
	}

	var buf bytes.Buffer
	conf := model.NewDefaultConfiguration()
	if err := api.Create(nil, bytes.NewReader(desc), &buf, conf); err != nil {
		return nil, fmt.Errorf("create pdf: %w", err)
	}
	return buf.Bytes(), nil
}

// renderErrorPDF emits a minimal one-page document naming the failure.
func renderErrorPDF(filename string, cause error) ([]byte, error) {
	b := newLayoutBuilder()
	b.addLine("Processed Document: "+sanitizePDFText(filename), pdfTitleFontSize)
	b.addGap(pdfLineHeight)
	b.addLine("Document rendering failed.", pdfBodyFontSize)
	for _, line := range wrapText(sanitizePDFText(cause.Error()), pdfWrapColumns) {
		b.addLine(line, pdfBodyFontSize)
	}

	desc, err := json.Marshal(b.document())
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := api.Create(nil, bytes.NewReader(desc), &buf, model.NewDefaultConfiguration()); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// layoutBuilder accumulates pdfcpu create-JSON content boxes, flowing a
// cursor down the page and breaking to a new page when the margin is hit.
type layoutBuilder struct {
	pages   []map[string]any // content of each page so far
	current map[string]any
	cursorY float64
}

func newLayoutBuilder() *layoutBuilder {
	b := &layoutBuilder{}
	b.newPage()
	return b
}

func (b *layoutBuilder) newPage() {
	b.current = map[string]any{}
	b.pages = append(b.pages, b.current)
	b.cursorY = pdfMargin
}

func (b *layoutBuilder) ensure(height float64) {
	if b.cursorY+height > pdfPageHeight-pdfMargin {
		b.newPage()
	}
}

func (b *layoutBuilder) appendBox(kind string, box map[string]any) {
	boxes, _ := b.current[kind].([]map[string]any)
	b.current[kind] = append(boxes, box)
}

func (b *layoutBuilder) addLine(text string, fontSize float64) {
	height := fontSize * 1.4
	b.ensure(height)
	b.appendBox("text", map[string]any{
		"value":  text,
		"anchor": "tl",
		"pos":    []float64{pdfMargin, b.cursorY},
		"font":   map[string]any{"name": "Helvetica", "size": int(fontSize)},
		"width":  pdfPageWidth - 2*pdfMargin,
	})
	b.cursorY += height
}

func (b *layoutBuilder) addGap(height float64) {
	b.cursorY += height
}

// addTable renders a capped table grid as one text box per cell row, pipes
// between columns. Oversized tables are truncated, never dropped.
func (b *layoutBuilder) addTable(table Table) {
	rows := table.Data
	truncatedRows := false
	if len(rows) > pdfTableMaxRows {
		rows = rows[:pdfTableMaxRows]
		truncatedRows = true
	}
	b.addLine(fmt.Sprintf("Table %d:", table.Index+1), pdfBodyFontSize)
	for _, row := range rows {
		if len(row) > pdfTableMaxCols {
			row = row[:pdfTableMaxCols]
		}
		cells := make([]string, len(row))
		for i, cell := range row {
			cell = sanitizePDFText(cell)
			if r := []rune(cell); len(r) > pdfTableCellMaxChars {
				cell = string(r[:pdfTableCellMaxChars-3]) + "..."
			}
			cells[i] = cell
		}
		b.addLine(strings.Join(cells, " | "), pdfBodyFontSize)
	}
	if truncatedRows {
		b.addLine(fmt.Sprintf("... (%d more rows)", len(table.Data)-pdfTableMaxRows), pdfBodyFontSize)
	}
}

func (b *layoutBuilder) addImage(path string, width, height float64) {
	b.ensure(height)
	b.appendBox("image", map[string]any{
		"src":    path,
		"anchor": "tl",
		"pos":    []float64{pdfMargin, b.cursorY},
		"width":  width,
	})
	b.cursorY += height
}

// document assembles the top-level pdfcpu create-JSON description.
func (b *layoutBuilder) document() map[string]any {
	pages := make(map[string]any, len(b.pages))
	for i, content := range b.pages {
		pages[strconv.Itoa(i+1)] = map[string]any{"content": content}
	}
	return map[string]any{
		"paper":  "A4",
		"origin": "upperLeft",
		"pages":  pages,
	}
}

// stageImage decodes, downscales to the output width cap, and writes a PNG
// into the temp dir for pdfcpu to pick up by path.
func stageImage(dir string, index int, data []byte) (path string, width, height float64, err error) {
	decoded, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return "", 0, 0, fmt.Errorf("decode image: %w", err)
	}
	img := scaleToWidth(decoded, pdfImageMaxWidth)
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", 0, 0, fmt.Errorf("encode staged image: %w", err)
	}
	path = filepath.Join(dir, fmt.Sprintf("image_%d.png", index))
	if err := os.WriteFile(path, buf.Bytes(), 0o600); err != nil {
		return "", 0, 0, fmt.Errorf("write staged image: %w", err)
	}
	bounds := img.Bounds()
	return path, float64(bounds.Dx()), float64(bounds.Dy()), nil
}

// sanitizePDFText keeps text inside what the built-in Helvetica font can
// encode, replacing anything else so rendering never fails on input bytes.
func sanitizePDFText(s string) string {
	var sb strings.Builder
	sb.Grow(len(s))
	for _, r := range s {
		switch {
		case r == '\t':
			sb.WriteString("    ")
		case r == '\n' || r == '\r':
			sb.WriteByte(' ')
		case r >= 0x20 && r <= 0x7e, r >= 0xa1 && r <= 0xff:
			sb.WriteRune(r)
		default:
			sb.WriteByte('?')
		}
	}
	return strings.TrimSpace(sb.String())
}

// wrapText greedily wraps on word boundaries at the given column budget.
func wrapText(s string, columns int) []string {
	words := strings.Fields(s)
	if len(words) == 0 {
		return nil
	}
	var lines []string
	line := words[0]
	for _, word := range words[1:] {
		if len(line)+1+len(word) > columns {
			lines = append(lines, line)
			line = word
			continue
		}
		line += " " + word
	}
	return append(lines, line)
}
