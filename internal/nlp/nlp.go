// Package nlp provides the lightweight text-understanding primitives shared by
// the Metadata Builder and the Topic Coverage Engine: tokenisation with a
// suffix-stripping lemmatiser, a naive proper-noun entity spotter, and
// sentence-embedding vectors delegated to a [embeddings.Provider].
//
// No Go lemmatiser or NER library was found anywhere in the retrieved example
// pack (checked every go.mod and other_examples file), so the lemma and
// entity steps are deliberately simple, deterministic transforms rather than
// a fabricated dependency. The vector component is the one piece that
// genuinely needs a model, so it delegates to the same embeddings.Provider
// abstraction the rest of the stack already uses.
package nlp

import (
	"context"
	"fmt"
	"math"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"

	"github.com/simonealverdi/interviewer/pkg/provider/embeddings"
)

// Token is a single word of input text paired with its lemma.
type Token struct {
	// Surface is the original word as it appeared in the text (lowercased).
	Surface string

	// Lemma is the normalised base form produced by the suffix-stripping
	// lemmatiser.
	Lemma string
}

// Entity is a naively-spotted proper-noun span.
type Entity struct {
	// Surface is the text of the entity span, unchanged casing.
	Surface string

	// Label is always "PROPN" — this package does not attempt fine-grained
	// entity typing.
	Label string
}

// Result is the output of [Parser.Parse].
type Result struct {
	Tokens   []Token
	Entities []Entity
	Vector   []float32
}

// Parser implements the NLP Primitives contract: parse(text) -> {tokens,
// entities, vector}. The zero value is not usable; construct with [New].
type Parser struct {
	embed embeddings.Provider
}

// New returns a [Parser] backed by embed for the vector component. embed may
// be nil, in which case Parse always returns a zero-length vector ("no
// semantic signal").
func New(embed embeddings.Provider) *Parser {
	return &Parser{embed: embed}
}

// Parse tokenises and lemmatises text, spots naive proper-noun entities, and
// embeds the text into a vector. An empty or whitespace-only text returns
// empty tokens/entities and a nil vector, per the "no semantic signal"
// contract.
func (p *Parser) Parse(ctx context.Context, text string) (Result, error) {
	if strings.TrimSpace(text) == "" {
		return Result{}, nil
	}

	words := strings.Fields(text)
	tokens := make([]Token, 0, len(words))
	for _, w := range words {
		surface := strings.ToLower(stripPunctuation(w))
		if surface == "" {
			continue
		}
		tokens = append(tokens, Token{Surface: surface, Lemma: Lemmatize(surface)})
	}

	entities := spotEntities(words)

	vector, err := p.embedVector(ctx, text)
	if err != nil {
		return Result{Tokens: tokens, Entities: entities}, fmt.Errorf("nlp: embed: %w", err)
	}

	return Result{Tokens: tokens, Entities: entities, Vector: vector}, nil
}

// embedVector returns the L2-normalised embedding of text, or a nil vector
// when no embeddings provider is configured.
func (p *Parser) embedVector(ctx context.Context, text string) ([]float32, error) {
	if p.embed == nil {
		return nil, nil
	}
	vec, err := p.embed.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	return NormalizeVector(vec), nil
}

// StripDiacritics removes combining diacritical marks from s using Unicode
// NFKD decomposition, e.g. "café" -> "cafe".
func StripDiacritics(s string) string {
	decomposed := norm.NFKD.String(s)
	var b strings.Builder
	b.Grow(len(decomposed))
	for _, r := range decomposed {
		if unicode.Is(unicode.Mn, r) {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Normalize normalises whitespace: trims and collapses all runs of
// whitespace into a single space.
func Normalize(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// NormalizeVector returns the L2-normalised form of vec. A zero-length or
// all-zero vector is returned unchanged ("no semantic signal" per spec.md
// §4.1), avoiding a division by zero.
func NormalizeVector(vec []float32) []float32 {
	if len(vec) == 0 {
		return vec
	}
	var sumSq float64
	for _, v := range vec {
		sumSq += float64(v) * float64(v)
	}
	if sumSq == 0 {
		return vec
	}
	norm := math.Sqrt(sumSq)
	out := make([]float32, len(vec))
	for i, v := range vec {
		out[i] = float32(float64(v) / norm)
	}
	return out
}

// Cosine computes the dot product of u and v, assuming both are already
// unit-norm (per spec.md §4.1: cosine(u,v) = uᵀv for unit vectors). Returns 0
// if the vectors differ in length or either is empty.
func Cosine(u, v []float32) float32 {
	if len(u) == 0 || len(v) == 0 || len(u) != len(v) {
		return 0
	}
	var dot float32
	for i := range u {
		dot += u[i] * v[i]
	}
	return dot
}

// stripPunctuation removes leading/trailing punctuation from a word while
// leaving internal punctuation (e.g. apostrophes in "don't") intact.
func stripPunctuation(w string) string {
	return strings.TrimFunc(w, func(r rune) bool {
		return unicode.IsPunct(r) || unicode.IsSymbol(r)
	})
}

// verbSuffixes are tried in order, then the plural rules in Lemmatize; the
// first matching suffix on a word long enough to survive stripping is removed.
var verbSuffixes = []string{"ing", "ed"}

// Lemmatize reduces surface to a deterministic base form by stripping common
// English inflectional suffixes. It is intentionally simple: no irregular
// verb table, no part-of-speech disambiguation.
func Lemmatize(surface string) string {
	lemma := StripDiacritics(strings.ToLower(surface))
	if len(lemma) <= 3 {
		return lemma
	}

	for _, suf := range verbSuffixes {
		if strings.HasSuffix(lemma, suf) && len(lemma)-len(suf) >= 3 {
			return lemma[:len(lemma)-len(suf)]
		}
	}

	switch {
	case strings.HasSuffix(lemma, "ies") && len(lemma) > 4:
		return lemma[:len(lemma)-3] + "y"
	case strings.HasSuffix(lemma, "es") && len(lemma) > 4:
		return lemma[:len(lemma)-2]
	case strings.HasSuffix(lemma, "s") && !strings.HasSuffix(lemma, "ss") && len(lemma) > 3:
		return lemma[:len(lemma)-1]
	}

	return lemma
}

// spotEntities groups consecutive capitalised words (excluding the very
// first word of the text, which is capitalised by sentence convention) into
// naive proper-noun entities.
func spotEntities(words []string) []Entity {
	var entities []Entity
	var span []string

	flush := func() {
		if len(span) > 0 {
			entities = append(entities, Entity{Surface: strings.Join(span, " "), Label: "PROPN"})
			span = nil
		}
	}

	for i, w := range words {
		clean := stripPunctuation(w)
		if clean == "" {
			flush()
			continue
		}
		if i == 0 {
			// Sentence-initial capitalisation is not evidence of a proper noun.
			continue
		}
		if isCapitalized(clean) {
			span = append(span, clean)
		} else {
			flush()
		}
	}
	flush()

	return entities
}

// isCapitalized reports whether w starts with an uppercase letter followed
// by at least one lowercase letter (filters out acronyms and all-caps
// emphasis, which are rarely proper nouns in transcribed speech).
func isCapitalized(w string) bool {
	runes := []rune(w)
	if len(runes) < 2 {
		return false
	}
	return unicode.IsUpper(runes[0]) && unicode.IsLower(runes[1])
}
