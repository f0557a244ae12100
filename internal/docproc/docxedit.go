package docproc

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"strings"
)

// wordTextPart reports whether an archive entry carries text-bearing leaf
// nodes the transforms must cover: the main body plus headers and footers.
func wordTextPart(name string) bool {
	if name == "word/document.xml" {
		return true
	}
	if !strings.HasSuffix(name, ".xml") {
		return false
	}
	return strings.HasPrefix(name, "word/header") || strings.HasPrefix(name, "word/footer")
}

// rewriteWordArchive applies a batched text transform to every text-bearing
// leaf (<w:t> element) across the container's document, header, and footer
// parts, then rebuilds the archive. All leaf texts are transformed in a
// single call so model-backed transforms can batch inference, and only
// leaves whose text actually changed are written back. Everything outside
// the leaf text is preserved byte-for-byte.
func rewriteWordArchive(ctx context.Context, data []byte, transform func(context.Context, []string) []string) ([]byte, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open word container: %w", err)
	}

	type part struct {
		entry  *zip.File
		data   []byte // nil for entries passed through untouched
		leaves []textLeaf
		offset int // index of this part's first leaf in the batch
	}

	parts := make([]part, 0, len(zr.File))
	var batch []string
	for _, f := range zr.File {
		p := part{entry: f}
		if wordTextPart(f.Name) {
			entryData, err := readZipEntry(f)
			if err != nil {
				return nil, fmt.Errorf("read %s: %w", f.Name, err)
			}
			p.data = entryData
			p.leaves = findTextLeaves(entryData)
			p.offset = len(batch)
			for _, leaf := range p.leaves {
				batch = append(batch, leaf.text)
			}
		}
		parts = append(parts, p)
	}

	processed := transform(ctx, batch)
	if len(processed) != len(batch) {
		return nil, fmt.Errorf("transform returned %d texts for %d leaves", len(processed), len(batch))
	}

	var out bytes.Buffer
	zw := zip.NewWriter(&out)
	for _, p := range parts {
		if p.data == nil {
			// Non-text entries are copied raw, without decompression, so a
			// media stream the extractor would only placeholder anyway can
			// never fail the rewrite.
			if err := zw.Copy(p.entry); err != nil {
				return nil, fmt.Errorf("copy %s: %w", p.entry.Name, err)
			}
			continue
		}
		entryData := p.data
		if len(p.leaves) > 0 {
			entryData = spliceLeaves(entryData, p.leaves, processed[p.offset:p.offset+len(p.leaves)])
		}
		w, err := zw.CreateHeader(&zip.FileHeader{Name: p.entry.Name, Method: p.entry.Method})
		if err != nil {
			return nil, fmt.Errorf("write %s: %w", p.entry.Name, err)
		}
		if _, err := w.Write(entryData); err != nil {
			return nil, fmt.Errorf("write %s: %w", p.entry.Name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("finalize word container: %w", err)
	}
	return out.Bytes(), nil
}

// textLeaf locates the inner text region of one <w:t> element.
type textLeaf struct {
	start, end int    // byte bounds of the raw inner content
	text       string // unescaped text
}

// findTextLeaves scans a part for <w:t> elements. The scan is byte-level on
// purpose: an XML decode/encode round-trip would rewrite namespace prefixes
// and attribute ordering, breaking parts the word processor expects verbatim.
func findTextLeaves(data []byte) []textLeaf {
	var leaves []textLeaf
	pos := 0
	for {
		idx := bytes.Index(data[pos:], []byte("<w:t"))
		if idx < 0 {
			break
		}
		open := pos + idx
		after := open + len("<w:t")
		if after >= len(data) {
			break
		}
		// Must be the w:t element itself, not w:tbl / w:tr / w:tc etc.
		switch data[after] {
		case '>', ' ', '\t', '\r', '\n', '/':
		default:
			pos = after
			continue
		}
		gt := bytes.IndexByte(data[after:], '>')
		if gt < 0 {
			break
		}
		contentStart := after + gt + 1
		if data[contentStart-2] == '/' { // self-closing, no text
			pos = contentStart
			continue
		}
		closeIdx := bytes.Index(data[contentStart:], []byte("</w:t>"))
		if closeIdx < 0 {
			break
		}
		contentEnd := contentStart + closeIdx
		leaves = append(leaves, textLeaf{
			start: contentStart,
			end:   contentEnd,
			text:  unescapeXMLText(data[contentStart:contentEnd]),
		})
		pos = contentEnd + len("</w:t>")
	}
	return leaves
}

// spliceLeaves rebuilds a part with the processed leaf texts, touching only
// leaves whose text changed.
func spliceLeaves(data []byte, leaves []textLeaf, processed []string) []byte {
	var out bytes.Buffer
	out.Grow(len(data))
	last := 0
	for i, leaf := range leaves {
		if processed[i] == leaf.text {
			continue
		}
		out.Write(data[last:leaf.start])
		_ = xml.EscapeText(&out, []byte(processed[i]))
		last = leaf.end
	}
	out.Write(data[last:])
	return out.Bytes()
}

// unescapeXMLText resolves entity and character references in raw element
// content.
func unescapeXMLText(raw []byte) string {
	if !bytes.ContainsRune(raw, '&') {
		return string(raw)
	}
	var v struct {
		Text string `xml:",chardata"`
	}
	wrapped := append(append([]byte("<x>"), raw...), []byte("</x>")...)
	if err := xml.Unmarshal(wrapped, &v); err != nil {
		return string(raw)
	}
	return v.Text
}
