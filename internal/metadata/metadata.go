// Package metadata implements the Metadata Builder: given an ordered list of
// keywords for one subtopic, it derives the lemma set, fuzzy-normalised
// string, and unit vector that the Topic Coverage Engine's three cascade
// tiers compare an utterance against.
//
// Grounded on spec.md §4.2, composing internal/nlp's lemmatiser/normaliser
// and a pkg/provider/embeddings.Provider for the vector step.
package metadata

import (
	"context"
	"sort"
	"strings"

	"github.com/simonealverdi/interviewer/internal/nlp"
	"github.com/simonealverdi/interviewer/pkg/provider/embeddings"
)

// Metadata is the Metadata Builder's output for a single subtopic's keyword
// list.
type Metadata struct {
	// LemmaSet is the deduplicated, case-folded, diacritic-stripped set of
	// lemmas found across all keywords.
	LemmaSet map[string]struct{}

	// FuzzyNorm is the keywords joined by a single space after lowercasing,
	// diacritic-stripping, and whitespace collapsing.
	FuzzyNorm string

	// UnitVector is the L2-normalised embedding of FuzzyNorm. It is nil when
	// no embeddings provider is configured or embedding fails — callers must
	// treat a nil/empty vector as "no semantic signal" and skip the cosine
	// tier for this subtopic.
	UnitVector []float32
}

// Builder produces [Metadata] for subtopic keyword lists.
type Builder struct {
	embed embeddings.Provider
}

// New returns a [Builder] backed by embed for the unit-vector component.
// embed may be nil, in which case Build always yields a nil UnitVector.
func New(embed embeddings.Provider) *Builder {
	return &Builder{embed: embed}
}

// Build derives lemma_set, fuzzy_norm, and unit_vector for keywords. It never
// returns an error: on embedding failure it returns the degenerate form
// (∅, fuzzy_norm, nil) per spec.md §4.2, and the coverage engine is expected
// to tolerate that. With no provider configured it returns the lemma set and
// fuzzy_norm with a nil vector.
func (b *Builder) Build(ctx context.Context, keywords []string) Metadata {
	fuzzyNorm := FuzzyNormalize(keywords)

	lemmaSet := make(map[string]struct{})
	for _, kw := range keywords {
		for _, word := range strings.Fields(kw) {
			lemma := nlp.Lemmatize(nlp.StripDiacritics(strings.ToLower(word)))
			if lemma == "" {
				continue
			}
			lemmaSet[lemma] = struct{}{}
		}
	}

	md := Metadata{LemmaSet: lemmaSet, FuzzyNorm: fuzzyNorm}

	if b.embed == nil || fuzzyNorm == "" {
		return md
	}

	vec, err := b.embed.Embed(ctx, fuzzyNorm)
	if err != nil || len(vec) == 0 {
		return Metadata{LemmaSet: map[string]struct{}{}, FuzzyNorm: fuzzyNorm}
	}
	md.UnitVector = nlp.NormalizeVector(vec)
	return md
}

// FuzzyNormalize joins keywords into the single fuzzy-norm string: lowercase,
// diacritic-stripped, whitespace-collapsed, space-joined. Idempotent:
// FuzzyNormalize([]string{FuzzyNormalize(keywords)}) == FuzzyNormalize(keywords).
func FuzzyNormalize(keywords []string) string {
	parts := make([]string, 0, len(keywords))
	for _, kw := range keywords {
		norm := nlp.Normalize(nlp.StripDiacritics(strings.ToLower(kw)))
		if norm != "" {
			parts = append(parts, norm)
		}
	}
	return strings.Join(parts, " ")
}

// LemmaSetSlice returns the lemma set as a sorted slice, useful for
// deterministic comparisons and test assertions.
func LemmaSetSlice(s map[string]struct{}) []string {
	out := make([]string, 0, len(s))
	for l := range s {
		out = append(out, l)
	}
	sort.Strings(out)
	return out
}
