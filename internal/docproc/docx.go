package docproc

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"
)

// readWord extracts text, tables, and embedded images from a word-processor
// container (ZIP archive with word/document.xml).
func readWord(data []byte) (Content, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return Content{}, fmt.Errorf("open word container: %w", err)
	}

	var docFile *zip.File
	for _, f := range zr.File {
		if f.Name == "word/document.xml" {
			docFile = f
			break
		}
	}
	if docFile == nil {
		return Content{}, fmt.Errorf("word/document.xml not found in archive")
	}

	rc, err := docFile.Open()
	if err != nil {
		return Content{}, fmt.Errorf("open document.xml: %w", err)
	}
	defer func() { _ = rc.Close() }()

	paragraphs, tables, err := walkWordBody(rc)
	if err != nil {
		return Content{}, fmt.Errorf("parse document.xml: %w", err)
	}

	// Flat text view: every paragraph in document order, then each table row
	// appended as a pipe-joined line.
	var fullText []string
	var nonEmpty []string
	for _, p := range paragraphs {
		fullText = append(fullText, p)
		if strings.TrimSpace(p) != "" {
			nonEmpty = append(nonEmpty, p)
		}
	}
	for _, tbl := range tables {
		for _, row := range tbl.Data {
			fullText = append(fullText, strings.Join(row, " | "))
		}
	}

	return Content{
		Text:       normalizeText(strings.Join(fullText, "\n")),
		Paragraphs: nonEmpty,
		Tables:     tables,
		Images:     extractWordImages(zr),
	}, nil
}

// walkWordBody walks the document body token stream collecting body-level
// paragraphs and tables. Paragraphs inside table cells belong to their cell,
// not the paragraph list.
func walkWordBody(r io.Reader) ([]string, []Table, error) {
	decoder := xml.NewDecoder(r)

	var paragraphs []string
	var tables []Table

	var paraBuf strings.Builder
	var cellBuf strings.Builder
	var curRow []string
	var curRows [][]string

	inParagraph := false
	inText := false
	tableDepth := 0
	inCell := false

	for {
		tok, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, err
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "tbl":
				tableDepth++
				if tableDepth == 1 {
					curRows = nil
				}
			case "tr":
				if tableDepth == 1 {
					curRow = nil
				}
			case "tc":
				if tableDepth == 1 {
					inCell = true
					cellBuf.Reset()
				}
			case "p":
				if tableDepth == 0 {
					inParagraph = true
					paraBuf.Reset()
				}
			case "t":
				inText = true
			}

		case xml.CharData:
			if !inText {
				continue
			}
			if inCell {
				cellBuf.Write(t)
			} else if inParagraph {
				paraBuf.Write(t)
			}

		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				if inCell {
					cellBuf.WriteByte('\n')
				} else if inParagraph {
					inParagraph = false
					paragraphs = append(paragraphs, paraBuf.String())
				}
			case "tc":
				if tableDepth == 1 && inCell {
					inCell = false
					curRow = append(curRow, strings.TrimSuffix(cellBuf.String(), "\n"))
				}
			case "tr":
				if tableDepth == 1 && curRow != nil {
					curRows = append(curRows, curRow)
					curRow = nil
				}
			case "tbl":
				tableDepth--
				if tableDepth == 0 && len(curRows) > 0 {
					cols := 0
					for _, row := range curRows {
						if len(row) > cols {
							cols = len(row)
						}
					}
					tables = append(tables, Table{
						Index: len(tables),
						Data:  curRows,
						Rows:  len(curRows),
						Cols:  cols,
					})
					curRows = nil
				}
			}
		}
	}

	return paragraphs, tables, nil
}

// extractWordImages collects embedded media from the container. A corrupt or
// unreadable entry becomes a placeholder record describing the failure; it
// never aborts extraction.
func extractWordImages(zr *zip.Reader) []ImageRecord {
	var media []*zip.File
	for _, f := range zr.File {
		if strings.HasPrefix(f.Name, "word/media/") && !strings.HasSuffix(f.Name, "/") {
			media = append(media, f)
		}
	}
	sort.Slice(media, func(i, j int) bool { return media[i].Name < media[j].Name })

	var images []ImageRecord
	for _, f := range media {
		name := path.Base(f.Name)
		data, err := readZipEntry(f)
		if err != nil {
			images = append(images, ImageRecord{
				Type:          "docx_embedded_image",
				Description:   fmt.Sprintf("Embedded image %s (extraction failed)", name),
				ExtractedText: fmt.Sprintf("[Image extraction failed: %v]", err),
			})
			continue
		}
		images = append(images, ImageRecord{
			Type:        "docx_embedded_image",
			Description: fmt.Sprintf("Embedded image %s", name),
			Data:        data,
			ImageFormat: detectImageFormat(data),
		})
	}
	return images
}

func readZipEntry(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer func() { _ = rc.Close() }()
	return io.ReadAll(rc)
}
