// Package ner defines the named-entity recognition capability boundary.
//
// The core consumes a recognizer only through this interface; no concrete
// model ships with the module. A nil Recognizer degrades PII redaction to the
// regex-only stage, which the pipeline reports explicitly in metadata rather
// than failing.
package ner

import "context"

// Label classifies a recognized entity span.
type Label string

const (
	LabelPerson Label = "PERSON"
	LabelOrg    Label = "ORG"
	LabelGPE    Label = "GPE"
)

// Span is an entity occurrence in a text, expressed as byte offsets into the
// input string. Offsets always refer to the text as submitted, before any
// replacement has been applied.
type Span struct {
	Start int   `json:"start"`
	End   int   `json:"end"`
	Label Label `json:"label"`
}

// Recognizer detects entity spans in a batch of independent texts. The result
// has one span slice per input, index-aligned.
type Recognizer interface {
	Name() string
	RecognizeBatch(ctx context.Context, texts []string) ([][]Span, error)
}
