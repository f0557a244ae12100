package docproc

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestNormalizeTerms ensures term normalization trims, drops empties, and
// de-duplicates case-insensitively while preserving first-seen order.
func TestNormalizeTerms(t *testing.T) {
	opts := Options{
		AnonymizeTerms: []string{"  Acme Corp ", "", "acme corp", "Beta", "   ", "BETA", "Gamma"},
	}

	normalized := opts.Normalize()
	assert.Equal(t, []string{"Acme Corp", "Beta", "Gamma"}, normalized.AnonymizeTerms)
}

// TestNormalizeIdempotent ensures normalizing twice changes nothing.
func TestNormalizeIdempotent(t *testing.T) {
	opts := Options{
		AnonymizeTerms:       []string{" One", "two ", "ONE"},
		AnonymizeReplacement: "X",
	}

	once := opts.Normalize()
	twice := once.Normalize()
	assert.Equal(t, once, twice)
}

// TestNormalizeDoesNotMutate ensures the receiver's term slice is untouched.
func TestNormalizeDoesNotMutate(t *testing.T) {
	terms := []string{" padded ", "padded"}
	opts := Options{AnonymizeTerms: terms}

	_ = opts.Normalize()
	assert.Equal(t, []string{" padded ", "padded"}, terms)
}

// TestNormalizeAllEmptyTerms ensures a list of blanks normalizes to nil.
func TestNormalizeAllEmptyTerms(t *testing.T) {
	opts := Options{AnonymizeTerms: []string{"", "   ", "\t"}}
	assert.Nil(t, opts.Normalize().AnonymizeTerms)
}
