package docproc

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docguard/docguard/internal/ner"
)

// fakeRecognizer returns canned spans per batch position.
type fakeRecognizer struct {
	spans [][]ner.Span
	err   error
	calls int
}

func (f *fakeRecognizer) Name() string { return "fake" }

func (f *fakeRecognizer) RecognizeBatch(_ context.Context, texts []string) ([][]ner.Span, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if f.spans != nil {
		return f.spans, nil
	}
	return make([][]ner.Span, len(texts)), nil
}

// TestAnonymizeCaseInsensitive ensures all configured terms are replaced
// regardless of case, in one pass.
func TestAnonymizeCaseInsensitive(t *testing.T) {
	tr := NewTransformer(Options{
		AnonymizeTerms:       []string{"Acme Corp", "widget"},
		AnonymizeReplacement: "REDACTED",
	}, nil)

	out := tr.Anonymize("ACME CORP shipped a Widget to acme corp.")
	assert.Equal(t, "REDACTED shipped a REDACTED to REDACTED.", out)
}

// TestAnonymizeEmptyReplacement ensures an empty replacement substitutes a
// single space so neighbouring words are not glued together.
func TestAnonymizeEmptyReplacement(t *testing.T) {
	tr := NewTransformer(Options{AnonymizeTerms: []string{"secret"}}, nil)

	out := tr.Anonymize("the secret word")
	assert.Equal(t, "the   word", out)
	assert.NotContains(t, out, "theword")
}

// TestAnonymizeNoTerms ensures a transformer without terms is the identity.
func TestAnonymizeNoTerms(t *testing.T) {
	tr := NewTransformer(Options{}, nil)
	assert.Equal(t, "unchanged text", tr.Anonymize("unchanged text"))
}

// TestAnonymizeSpecialCharacters ensures terms containing regex
// metacharacters are matched literally.
func TestAnonymizeSpecialCharacters(t *testing.T) {
	tr := NewTransformer(Options{
		AnonymizeTerms:       []string{"A.B (Ltd)"},
		AnonymizeReplacement: "X",
	}, nil)

	assert.Equal(t, "X paid", tr.Anonymize("A.B (Ltd) paid"))
	assert.Equal(t, "AxB yLtdz paid", tr.Anonymize("AxB yLtdz paid"), "dots must not match arbitrary characters")
}

// TestRemovePIIPatterns covers the fixed regex stage across pattern types.
func TestRemovePIIPatterns(t *testing.T) {
	tr := NewTransformer(Options{}, nil)
	ctx := context.Background()

	out := tr.RemovePII(ctx, "Mail jane.doe@example.com or call 555-123-4567 today.")
	assert.Equal(t, 2, strings.Count(out, PIISentinel))
	assert.NotContains(t, out, "jane.doe@example.com")
	assert.NotContains(t, out, "555-123-4567")
	assert.Contains(t, out, "today.")

	assert.Contains(t, tr.RemovePII(ctx, "SSN 123-45-6789"), PIISentinel)
	assert.Contains(t, tr.RemovePII(ctx, "card 4111 1111 1111 1111"), PIISentinel)
	assert.Contains(t, tr.RemovePII(ctx, "iban DE89 3704 0044 0532 0130 00"), PIISentinel)
}

// TestRemovePIIIdempotent ensures redacting already-redacted text changes
// nothing.
func TestRemovePIIIdempotent(t *testing.T) {
	tr := NewTransformer(Options{}, nil)
	ctx := context.Background()

	once := tr.RemovePII(ctx, "reach me at bob@corp.io")
	twice := tr.RemovePII(ctx, once)
	assert.Equal(t, once, twice)
}

// TestRemovePIIModelSpans ensures the model stage redacts spans by byte
// offset, handling repeated mentions without corrupting surrounding text.
func TestRemovePIIModelSpans(t *testing.T) {
	//        0123456789...
	text := "Ann met Ann in Paris"
	rec := &fakeRecognizer{spans: [][]ner.Span{{
		{Start: 0, End: 3, Label: ner.LabelPerson},
		{Start: 8, End: 11, Label: ner.LabelPerson},
		{Start: 15, End: 20, Label: ner.LabelGPE},
	}}}
	tr := NewTransformer(Options{}, rec)

	out := tr.RemovePII(context.Background(), text)
	assert.Equal(t, PIISentinel+" met "+PIISentinel+" in "+PIISentinel, out)
	assert.Equal(t, 1, rec.calls)
}

// TestRemovePIISpanFiltering ensures out-of-range, irrelevant-label, and
// overlapping spans are handled safely.
func TestRemovePIISpanFiltering(t *testing.T) {
	text := "Bob works at Initech"
	rec := &fakeRecognizer{spans: [][]ner.Span{{
		{Start: 0, End: 3, Label: ner.LabelPerson},
		{Start: 1, End: 2, Label: ner.LabelPerson},    // overlaps the first
		{Start: 4, End: 9, Label: ner.Label("DATE")},  // label not redacted
		{Start: 13, End: 999, Label: ner.LabelOrg},    // out of range
		{Start: 13, End: 20, Label: ner.LabelOrg},
	}}}
	tr := NewTransformer(Options{}, rec)

	out := tr.RemovePII(context.Background(), text)
	assert.Equal(t, PIISentinel+" works at "+PIISentinel, out)
}

// TestRemovePIIRecognizerFailure ensures recognizer errors degrade to the
// regex-stage output instead of failing.
func TestRemovePIIRecognizerFailure(t *testing.T) {
	rec := &fakeRecognizer{err: errors.New("model exploded")}
	tr := NewTransformer(Options{}, rec)

	out := tr.RemovePII(context.Background(), "write to eve@corp.io now")
	assert.Contains(t, out, PIISentinel)
	assert.Contains(t, out, "now")
}

// TestRemovePIIThroughputSkipsModel ensures throughput mode never invokes
// the recognizer.
func TestRemovePIIThroughputSkipsModel(t *testing.T) {
	rec := &fakeRecognizer{}
	tr := NewTransformer(Options{ThroughputMode: true}, rec)

	out := tr.RemovePII(context.Background(), "email eve@corp.io")
	assert.Contains(t, out, PIISentinel)
	assert.Equal(t, 0, rec.calls)
	assert.Equal(t, NERModeRegexOnly, tr.NERMode())
}

// TestRemovePIIBatchSingleCall ensures one recognizer call covers the whole
// batch.
func TestRemovePIIBatchSingleCall(t *testing.T) {
	rec := &fakeRecognizer{}
	tr := NewTransformer(Options{}, rec)

	out := tr.RemovePIIBatch(context.Background(), []string{"one", "two", "three"})
	require.Len(t, out, 3)
	assert.Equal(t, 1, rec.calls)
	assert.Equal(t, NERModeModelBatch, tr.NERMode())
}

// TestNERModeRegexOnlyWithoutRecognizer ensures a nil recognizer reports
// regex-only mode.
func TestNERModeRegexOnlyWithoutRecognizer(t *testing.T) {
	tr := NewTransformer(Options{}, nil)
	assert.Equal(t, NERModeRegexOnly, tr.NERMode())
}
