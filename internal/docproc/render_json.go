package docproc

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// JSON snapshot limits.
const (
	jsonThumbnailMaxBytes = 10000 // images at or above this size are omitted
	jsonThumbnailDim      = 100
)

// logoTexts are known non-informative OCR outputs (brand marks); images whose
// recognized text matches one are content noise and excluded from output.
var logoTexts = map[string]bool{
	"stc": true,
	"sic": true,
}

var imageRefRe = regexp.MustCompile(`\[Image:\s*([^\]]*)\]|!\[([^\]]*)\]`)

// jsonSnapshot is the fixed schema of the JSON output mode.
type jsonSnapshot struct {
	DocumentMetadata jsonDocumentMetadata `json:"document_metadata"`
	Content          jsonContent          `json:"content"`
	ProcessingInfo   jsonProcessingInfo   `json:"processing_info"`
}

type jsonDocumentMetadata struct {
	Filename       string `json:"filename"`
	FileType       string `json:"file_type"`
	ProcessingDate string `json:"processing_date"`
	FileSize       int    `json:"file_size"`
}

type jsonContent struct {
	Text   string          `json:"text"`
	Tables []Table         `json:"tables"`
	Images []jsonImageInfo `json:"images"`
}

type jsonImageInfo struct {
	Type          string `json:"type"`
	Description   string `json:"description"`
	ExtractedText string `json:"extracted_text"`
	OCRApplied    bool   `json:"ocr_applied"`
	ImageFormat   string `json:"image_format,omitempty"`
	Thumbnail     string `json:"thumbnail,omitempty"` // base64 PNG, small images only
}

type jsonProcessingInfo struct {
	Anonymized      bool `json:"anonymized"`
	PIIRemoved      bool `json:"pii_removed"`
	ExtractedToJSON bool `json:"extracted_to_json"`
}

// renderJSON serializes the processed content into the fixed snapshot schema.
func renderJSON(content Content, doc Document, req Request, now time.Time) ([]byte, error) {
	snapshot := jsonSnapshot{
		DocumentMetadata: jsonDocumentMetadata{
			Filename:       doc.Filename,
			FileType:       "." + doc.Format.extension(),
			ProcessingDate: now.Format(time.RFC3339),
			FileSize:       len(doc.Data),
		},
		Content: jsonContent{
			Text:   content.Text,
			Tables: emptyIfNilTables(content.Tables),
			Images: collectImageInfo(content.Images, content.Text),
		},
		ProcessingInfo: jsonProcessingInfo{
			Anonymized:      req.Anonymize,
			PIIRemoved:      req.RemovePII,
			ExtractedToJSON: req.ExtractJSON,
		},
	}

	out, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal json snapshot: %w", err)
	}
	return out, nil
}

// collectImageInfo converts image records into their JSON form: small images
// get an embedded thumbnail, references found in the document text become
// referenced_image entries, and logo-text images are filtered out.
func collectImageInfo(images []ImageRecord, documentText string) []jsonImageInfo {
	infos := make([]jsonImageInfo, 0, len(images))
	for _, img := range images {
		info := jsonImageInfo{
			Type:          img.Type,
			Description:   img.Description,
			ExtractedText: img.ExtractedText,
			OCRApplied:    img.OCRApplied,
			ImageFormat:   img.ImageFormat,
		}
		if len(img.Data) > 0 && len(img.Data) < jsonThumbnailMaxBytes {
			if thumb, err := thumbnailPNG(img.Data, jsonThumbnailDim); err == nil {
				info.Thumbnail = base64.StdEncoding.EncodeToString(thumb)
			}
			// Thumbnail failure is not worth failing the snapshot over.
		}
		infos = append(infos, info)
	}

	// Image references mentioned in the text itself, e.g. "[Image: chart]".
	for _, match := range imageRefRe.FindAllStringSubmatch(documentText, -1) {
		alt := match[1]
		if alt == "" {
			alt = match[2]
		}
		if alt == "" || hasDescription(infos, alt) {
			continue
		}
		infos = append(infos, jsonImageInfo{
			Type:          "referenced_image",
			Description:   alt,
			ExtractedText: "Referenced image: " + alt,
		})
	}

	filtered := make([]jsonImageInfo, 0, len(infos))
	for _, info := range infos {
		if isLogoText(info.ExtractedText) {
			continue
		}
		filtered = append(filtered, info)
	}
	return filtered
}

func hasDescription(infos []jsonImageInfo, desc string) bool {
	for _, info := range infos {
		if info.Description == desc {
			return true
		}
	}
	return false
}

func isLogoText(text string) bool {
	return logoTexts[strings.ToLower(strings.TrimSpace(text))]
}

func emptyIfNilTables(tables []Table) []Table {
	if tables == nil {
		return []Table{}
	}
	return tables
}

// extension maps a format tag back onto its canonical file extension.
func (f Format) extension() string {
	switch f {
	case FormatText:
		return "txt"
	case FormatWord:
		return "docx"
	case FormatPDF:
		return "pdf"
	default:
		return string(f)
	}
}
