package docproc

import (
	"context"
	"regexp"
	"sort"
	"strings"

	"github.com/docguard/docguard/internal/ner"
)

// PIISentinel replaces every detected piece of personal information.
const PIISentinel = "[PII_REMOVED]"

// NER mode identifiers reported in metadata.
const (
	NERModeRegexOnly  = "regex_only"
	NERModeModelBatch = "model_batch"
)

// piiPatterns are the fixed stage-one redaction patterns, applied in a
// deterministic order. Compiled once at package load.
var piiPatterns = []struct {
	name    string
	pattern *regexp.Regexp
}{
	{"email", regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`)},
	{"phone", regexp.MustCompile(`\b(\+\d{1,2}\s?)?1?-?\.?\s?\(?\d{3}\)?[\s.-]?\d{3}[\s.-]?\d{4}\b`)},
	{"ssn", regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`)},
	{"credit_card", regexp.MustCompile(`\b\d{4}[- ]?\d{4}[- ]?\d{4}[- ]?\d{4}\b`)},
	{"iban", regexp.MustCompile(`\b[A-Z]{2}\d{2}[\s-]?[A-Z\d]{4}[\s-]?[A-Z\d]{4}[\s-]?[A-Z\d]{4}[\s-]?[A-Z\d]{1,4}\b`)},
}

// nerLabels are the entity classes subject to stage-two redaction.
var nerLabels = map[ner.Label]bool{
	ner.LabelPerson: true,
	ner.LabelOrg:    true,
	ner.LabelGPE:    true,
}

// Transformer applies the anonymization and PII-redaction transforms. It is
// compiled once per request from normalized options and is safe for use
// across every paragraph of a document.
type Transformer struct {
	anonPattern *regexp.Regexp // single alternation over all terms, nil when no terms
	replacement string
	recognizer  ner.Recognizer
	throughput  bool
}

// NewTransformer compiles a Transformer for one request. The anonymization
// terms are combined into a single case-insensitive alternation so each text
// gets exactly one substitution pass regardless of term count. A nil
// recognizer (or throughput mode) limits PII removal to the regex stage.
func NewTransformer(opts Options, recognizer ner.Recognizer) *Transformer {
	t := &Transformer{
		replacement: opts.AnonymizeReplacement,
		recognizer:  recognizer,
		throughput:  opts.ThroughputMode,
	}
	terms := normalizeTerms(opts.AnonymizeTerms)
	if len(terms) > 0 {
		quoted := make([]string, len(terms))
		for i, term := range terms {
			quoted[i] = regexp.QuoteMeta(term)
		}
		t.anonPattern = regexp.MustCompile(`(?i)` + strings.Join(quoted, "|"))
	}
	return t
}

// NERMode reports which redaction mode the transformer will run in.
func (t *Transformer) NERMode() string {
	if t.throughput || t.recognizer == nil {
		return NERModeRegexOnly
	}
	return NERModeModelBatch
}

// Anonymize substitutes every configured term occurrence. An empty
// replacement becomes a single space so adjacent words are not glued.
func (t *Transformer) Anonymize(text string) string {
	if t.anonPattern == nil {
		return text
	}
	replacement := t.replacement
	if replacement == "" {
		replacement = " "
	}
	return t.anonPattern.ReplaceAllLiteralString(text, replacement)
}

// redactPatterns is the stage-one regex pass: every fixed pattern match is
// replaced with the sentinel token.
func redactPatterns(text string) string {
	for _, p := range piiPatterns {
		text = p.pattern.ReplaceAllLiteralString(text, PIISentinel)
	}
	return text
}

// applySpans redacts entity spans by character offset in a single left-to-
// right rebuild. Offsets refer to the input text before any replacement, so
// repeated or adjacent entity mentions never corrupt each other the way
// substring replacement would.
func applySpans(text string, spans []ner.Span) string {
	filtered := spans[:0:0]
	for _, s := range spans {
		if !nerLabels[s.Label] {
			continue
		}
		if s.Start < 0 || s.End > len(text) || s.Start >= s.End {
			continue
		}
		filtered = append(filtered, s)
	}
	if len(filtered) == 0 {
		return text
	}
	sort.Slice(filtered, func(i, j int) bool {
		if filtered[i].Start != filtered[j].Start {
			return filtered[i].Start < filtered[j].Start
		}
		return filtered[i].End < filtered[j].End
	})

	var sb strings.Builder
	last := 0
	for _, s := range filtered {
		if s.Start < last {
			// Overlapping span already covered by the previous redaction.
			if s.End > last {
				last = s.End
			}
			continue
		}
		sb.WriteString(text[last:s.Start])
		sb.WriteString(PIISentinel)
		last = s.End
	}
	sb.WriteString(text[last:])
	return sb.String()
}

// RemovePII runs the two-stage redaction over a single text.
func (t *Transformer) RemovePII(ctx context.Context, text string) string {
	out := t.RemovePIIBatch(ctx, []string{text})
	return out[0]
}

// RemovePIIBatch redacts a batch of texts: the regex stage always runs; the
// model stage runs in one recognizer call for the whole batch when a
// recognizer is available and throughput mode is off. Recognizer failure
// degrades to the regex-stage output, never to an error.
func (t *Transformer) RemovePIIBatch(ctx context.Context, texts []string) []string {
	cleaned := make([]string, len(texts))
	for i, text := range texts {
		cleaned[i] = redactPatterns(text)
	}
	if t.throughput || t.recognizer == nil {
		return cleaned
	}

	spans, err := t.recognizer.RecognizeBatch(ctx, cleaned)
	if err != nil || len(spans) != len(cleaned) {
		return cleaned
	}
	for i := range cleaned {
		cleaned[i] = applySpans(cleaned[i], spans[i])
	}
	return cleaned
}

// transformOp names a batched container transform.
type transformOp string

const (
	opAnonymize transformOp = "anonymize"
	opRemovePII transformOp = "remove_pii"
)

// applyBatch runs one named transform over a batch of text leaves.
func (t *Transformer) applyBatch(ctx context.Context, texts []string, op transformOp) []string {
	switch op {
	case opAnonymize:
		out := make([]string, len(texts))
		for i, text := range texts {
			out[i] = t.Anonymize(text)
		}
		return out
	case opRemovePII:
		return t.RemovePIIBatch(ctx, texts)
	default:
		return texts
	}
}
