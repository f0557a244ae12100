package docproc

import (
	"bytes"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/sirupsen/logrus"
)

// PDF engine identifiers reported in metadata.
const (
	PDFEngineSinglePass = "pdfcpu_single_pass"
	PDFEngineTextOnly   = "pdfcpu_text_only"
)

// readPDF extracts a portable document. The optimized single pass collects
// text, tables, and images; any failure degrades to a text-only pass that
// attempts neither, so extraction problems narrow the result instead of
// failing the document outright.
func readPDF(data []byte, opts Options, headerRatio float64, logger *logrus.Logger) (Content, string, error) {
	content, err := readPDFSinglePass(data, opts, headerRatio, logger)
	if err == nil {
		return content, PDFEngineSinglePass, nil
	}
	logger.WithError(err).Debug("pdf single-pass extraction failed, falling back to text-only")

	content, err = readPDFTextOnly(data)
	if err != nil {
		return Content{}, "", fmt.Errorf("unable to read pdf: %w", err)
	}
	return content, PDFEngineTextOnly, nil
}

// readPDFSinglePass walks every page once: clipped text, indicator-gated
// table detection, and image extraction deduplicated by object number.
func readPDFSinglePass(data []byte, opts Options, headerRatio float64, logger *logrus.Logger) (Content, error) {
	pdfCtx, err := openPDF(data)
	if err != nil {
		return Content{}, err
	}

	dims, err := pdfCtx.PageDims()
	if err != nil {
		return Content{}, fmt.Errorf("pdfcpu page dims: %w", err)
	}

	var textChunks []string
	var tables []Table
	var images []ImageRecord
	tableIndex := 0
	seenObjs := make(map[int]bool)

	for pageNr := 1; pageNr <= pdfCtx.PageCount; pageNr++ {
		pageHeight := 0.0
		if pageNr-1 < len(dims) {
			pageHeight = dims[pageNr-1].Height
		}
		pageText := extractPageText(pdfCtx, pageNr, pageHeight, headerRatio)
		if pageText != "" {
			textChunks = append(textChunks, pageText)
		}

		// Table detection is skipped in throughput mode, and otherwise gated
		// on a cheap indicator scan of the page text.
		if !opts.ThroughputMode {
			if hasTableIndicators(pageText) {
				pageTables := detectTables(pageText, pageNr, tableIndex)
				tableIndex += len(pageTables)
				tables = append(tables, pageTables...)
			} else {
				logger.WithField("page", pageNr).Debug("no table indicators, skipping table extraction")
			}
		}

		images = append(images, extractPageImages(pdfCtx, pageNr, seenObjs, logger)...)
	}

	return Content{
		Text:   normalizeText(strings.Join(textChunks, "\n")),
		Tables: tables,
		Images: images,
	}, nil
}

// readPDFTextOnly is the minimal fallback: unclipped page text, no tables,
// no images.
func readPDFTextOnly(data []byte) (Content, error) {
	pdfCtx, err := openPDF(data)
	if err != nil {
		return Content{}, err
	}
	var textChunks []string
	for pageNr := 1; pageNr <= pdfCtx.PageCount; pageNr++ {
		if pageText := extractPageText(pdfCtx, pageNr, 0, 0); pageText != "" {
			textChunks = append(textChunks, pageText)
		}
	}
	return Content{Text: normalizeText(strings.Join(textChunks, "\n"))}, nil
}

func openPDF(data []byte) (*model.Context, error) {
	conf := model.NewDefaultConfiguration()
	pdfCtx, err := api.ReadValidateAndOptimize(bytes.NewReader(data), conf)
	if err != nil {
		return nil, fmt.Errorf("pdfcpu read: %w", err)
	}
	return pdfCtx, nil
}

// extractPageText pulls the page content stream and parses its text
// operators. When pageHeight and headerRatio are set, text positioned inside
// the top or bottom band is dropped so repeating headers and footers stay
// out of the text view.
func extractPageText(pdfCtx *model.Context, pageNr int, pageHeight, headerRatio float64) string {
	r, err := pdfcpu.ExtractPageContent(pdfCtx, pageNr)
	if err != nil {
		return ""
	}
	data, err := io.ReadAll(r)
	if err != nil || len(data) == 0 {
		return ""
	}
	return parseContentStream(data, pageHeight, headerRatio)
}

// extractPageImages collects the page's embedded images. seenObjs persists
// across pages so an image object referenced from several places is
// extracted exactly once.
func extractPageImages(pdfCtx *model.Context, pageNr int, seenObjs map[int]bool, logger *logrus.Logger) []ImageRecord {
	imgs, err := pdfcpu.ExtractPageImages(pdfCtx, pageNr, false)
	if err != nil {
		logger.WithField("page", pageNr).WithError(err).Debug("pdf image extraction failed")
		return nil
	}

	objNrs := make([]int, 0, len(imgs))
	for objNr := range imgs {
		objNrs = append(objNrs, objNr)
	}
	// Map iteration order is random; keep extraction deterministic.
	sortInts(objNrs)

	var records []ImageRecord
	for _, objNr := range objNrs {
		if seenObjs[objNr] {
			continue
		}
		seenObjs[objNr] = true
		raw, err := io.ReadAll(imgs[objNr])
		if err != nil || len(raw) == 0 {
			continue
		}
		records = append(records, ImageRecord{
			Type:        "pdf_embedded_image",
			Description: fmt.Sprintf("Image on page %d", pageNr),
			Data:        raw,
			ImageFormat: detectImageFormat(raw),
			Page:        pageNr,
		})
	}
	return records
}

func sortInts(s []int) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j] < s[j-1]; j-- {
			s[j], s[j-1] = s[j-1], s[j]
		}
	}
}

// pdfStringRe matches PDF string literals in parentheses.
var pdfStringRe = regexp.MustCompile(`\(([^)]*)\)`)

// parseContentStream walks content stream operators line by line, tracking
// the vertical text position so strings inside the header/footer band can be
// excluded. Positionless streams are kept in full.
func parseContentStream(data []byte, pageHeight, headerRatio float64) string {
	var sb strings.Builder

	curY := 0.0
	haveY := false
	const defaultLeading = 12.0

	keep := func() bool {
		if pageHeight <= 0 || headerRatio <= 0 || !haveY {
			return true
		}
		return curY >= pageHeight*headerRatio && curY <= pageHeight*(1-headerRatio)
	}

	appendStrings := func(line []byte, newline bool) {
		if !keep() {
			return
		}
		for _, m := range pdfStringRe.FindAllSubmatch(line, -1) {
			text := decodePDFString(m[1])
			if text == "" {
				continue
			}
			if newline {
				sb.WriteByte('\n')
			}
			sb.WriteString(text)
		}
	}

	for _, line := range bytes.Split(data, []byte{'\n'}) {
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}

		switch {
		case bytes.HasSuffix(line, []byte("Tm")):
			if f := operandFloats(line, 6); f != nil {
				curY = f[5]
				haveY = true
			}
		case bytes.HasSuffix(line, []byte("TD")), bytes.HasSuffix(line, []byte("Td")):
			if f := operandFloats(line, 2); f != nil && haveY {
				curY += f[1]
			}
			if keep() && sb.Len() > 0 {
				sb.WriteByte(' ')
			}
		case bytes.Equal(line, []byte("T*")):
			if haveY {
				curY -= defaultLeading
			}
			if keep() {
				sb.WriteByte('\n')
			}
		case bytes.HasSuffix(line, []byte("Tj")), bytes.HasSuffix(line, []byte("TJ")):
			appendStrings(line, false)
		case bytes.HasSuffix(line, []byte("'")) && bytes.Contains(line, []byte("(")):
			if haveY {
				curY -= defaultLeading
			}
			appendStrings(line, true)
		}
	}

	return cleanStreamText(sb.String())
}

// operandFloats parses the first n whitespace-separated operands of an
// operator line as floats.
func operandFloats(line []byte, n int) []float64 {
	fields := strings.Fields(string(line))
	if len(fields) < n+1 {
		return nil
	}
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		v, err := strconv.ParseFloat(fields[i], 64)
		if err != nil {
			return nil
		}
		out[i] = v
	}
	return out
}

// decodePDFString resolves basic PDF string escapes, including octal.
func decodePDFString(raw []byte) string {
	var sb strings.Builder
	for i := 0; i < len(raw); i++ {
		if raw[i] != '\\' || i+1 >= len(raw) {
			sb.WriteByte(raw[i])
			continue
		}
		i++
		switch raw[i] {
		case 'n':
			sb.WriteByte('\n')
		case 'r':
			sb.WriteByte('\r')
		case 't':
			sb.WriteByte('\t')
		case '\\', '(', ')':
			sb.WriteByte(raw[i])
		default:
			if raw[i] >= '0' && raw[i] <= '7' {
				val := int(raw[i] - '0')
				for k := 0; k < 2 && i+1 < len(raw) && raw[i+1] >= '0' && raw[i+1] <= '7'; k++ {
					i++
					val = val*8 + int(raw[i]-'0')
				}
				sb.WriteByte(byte(val))
			} else {
				sb.WriteByte(raw[i])
			}
		}
	}
	return sb.String()
}

// cleanStreamText collapses whitespace runs and drops non-printable runes,
// preserving line breaks.
func cleanStreamText(text string) string {
	var sb strings.Builder
	prevSpace := false
	for _, r := range text {
		switch {
		case r == '\n':
			sb.WriteByte('\n')
			prevSpace = true
		case unicode.IsSpace(r):
			if !prevSpace && sb.Len() > 0 {
				sb.WriteByte(' ')
				prevSpace = true
			}
		case unicode.IsPrint(r):
			sb.WriteRune(r)
			prevSpace = false
		}
	}
	return strings.TrimSpace(sb.String())
}
