package docproc

import "strings"

// Options are the per-request processing knobs. They are normalized before
// use and the normalized form participates in the cache fingerprint.
type Options struct {
	ThroughputMode       bool     `json:"throughput_mode"` // skip OCR, table extraction, and model-based redaction
	VerboseLogging       bool     `json:"verbose_logging"`
	OCREnabled           bool     `json:"ocr_enabled"`
	AnonymizeTerms       []string `json:"anonymize_terms"`
	AnonymizeReplacement string   `json:"anonymize_replace"`
}

// Normalize trims anonymization terms, drops empties, and de-duplicates them
// case-insensitively while preserving first-seen order. Normalization is
// idempotent: Normalize(Normalize(o)) == Normalize(o).
func (o Options) Normalize() Options {
	out := o.clone()
	out.AnonymizeTerms = normalizeTerms(o.AnonymizeTerms)
	return out
}

func (o Options) clone() Options {
	out := o
	if o.AnonymizeTerms != nil {
		out.AnonymizeTerms = append([]string(nil), o.AnonymizeTerms...)
	}
	return out
}

func normalizeTerms(terms []string) []string {
	if len(terms) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(terms))
	normalized := make([]string, 0, len(terms))
	for _, raw := range terms {
		term := strings.TrimSpace(raw)
		if term == "" {
			continue
		}
		key := strings.ToLower(term)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		normalized = append(normalized, term)
	}
	if len(normalized) == 0 {
		return nil
	}
	return normalized
}
