package docproc

import (
	"fmt"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// normalizeText applies NFC normalization so extracted text compares and
// fingerprints consistently regardless of the source encoder.
func normalizeText(s string) string {
	if norm.NFC.IsNormalString(s) {
		return s
	}
	return norm.NFC.String(s)
}

// readText decodes a plain-text document. No tables or images exist in this
// format.
func readText(data []byte) (Content, error) {
	if !utf8.Valid(data) {
		return Content{}, fmt.Errorf("text file is not valid UTF-8")
	}
	return Content{Text: normalizeText(string(data))}, nil
}
