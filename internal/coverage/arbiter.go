package coverage

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/simonealverdi/interviewer/internal/llmgateway"
	"github.com/simonealverdi/interviewer/internal/nlp"
	"github.com/simonealverdi/interviewer/internal/question"
	"github.com/simonealverdi/interviewer/internal/transcript/phonetic"
	"github.com/simonealverdi/interviewer/pkg/provider/llm"
)

// shortUtteranceWords is the word-count cutoff below which the arbiter
// declares every topic covered rather than asking the LLM to judge a
// fragment too short to carry meaning (spec.md §4.6.2).
const shortUtteranceWords = 4

// arbiterSystemPromptTmpl asks the model for one comma-separated T/F flag
// per topic, in the exact order the topics are listed.
const arbiterSystemPromptTmpl = `Given the utterance U, for each topic in order [%s], answer T or F, comma-separated, nothing else.

U: %q`

// ArbiterDetector defers the covered/not-covered decision to an LLM, with
// two short-circuits ahead of the LLM call and an intentionally asymmetric
// scoring rule once it runs (spec.md §4.6.2): only the focus subtopic may
// be credited from the LLM's verdict, even if it marks other topics true.
type ArbiterDetector struct {
	gw                      *llmgateway.Gateway
	dontKnowPhrases         []string
	repeatedQuestionPhrases []string
	phraseMatcher           *phonetic.Matcher
}

// NewArbiterDetector returns an [ArbiterDetector] backed by gw, short-
// circuiting on the given phrase sets, which it lower-cases and normalises
// once here. Phrase
// matching tolerates STT mishearings (e.g. "i don't no" for "i don't know")
// via a phonetic fallback once an exact substring match fails.
func NewArbiterDetector(gw *llmgateway.Gateway, dontKnowPhrases, repeatedQuestionPhrases []string) *ArbiterDetector {
	return &ArbiterDetector{
		gw:                      gw,
		dontKnowPhrases:         normalizePhrases(dontKnowPhrases),
		repeatedQuestionPhrases: normalizePhrases(repeatedQuestionPhrases),
		phraseMatcher:           phonetic.New(),
	}
}

// Detect implements [Detector].
func (a *ArbiterDetector) Detect(ctx context.Context, utterance string, topics []question.Topic, focus string) (Result, error) {
	if len(topics) == 0 {
		return Result{Covered: map[string]struct{}{}, Coverage: 0}, nil
	}

	normalized := nlp.Normalize(nlp.StripDiacritics(strings.ToLower(utterance)))
	if normalized == "" {
		return Result{Covered: map[string]struct{}{}, Coverage: 0}, nil
	}

	if containsAny(normalized, a.dontKnowPhrases) || containsAny(normalized, a.repeatedQuestionPhrases) ||
		a.phoneticContainsAny(normalized, a.dontKnowPhrases) || a.phoneticContainsAny(normalized, a.repeatedQuestionPhrases) {
		covered := map[string]struct{}{}
		if focus != "" {
			covered[focus] = struct{}{}
		}
		return Result{Covered: covered, Coverage: CoverageFraction(topics, covered)}, nil
	}

	if len(strings.Fields(normalized)) < shortUtteranceWords {
		covered := allCovered(topics)
		return Result{Covered: covered, Coverage: 1}, nil
	}

	flags, err := a.askLLM(ctx, utterance, topics)
	if err != nil {
		// The arbiter degrades rather than fails the turn: a transient LLM
		// error here should not block the interview, per spec.md §7's rule
		// that the controller never surfaces transient LLM errors.
		slog.Warn("coverage: llm arbiter call failed, treating utterance as uncovered", "error", err)
		return Result{Covered: map[string]struct{}{}, Coverage: CoverageFraction(topics, nil)}, nil
	}

	covered := make(map[string]struct{})
	for i, t := range topics {
		if i < len(flags) && flags[i] && t.Name == focus {
			covered[t.Name] = struct{}{}
		}
	}
	return Result{Covered: covered, Coverage: CoverageFraction(topics, covered)}, nil
}

// askLLM sends the arbitration prompt and parses the comma-separated T/F
// reply into one bool per topic, in order.
func (a *ArbiterDetector) askLLM(ctx context.Context, utterance string, topics []question.Topic) ([]bool, error) {
	names := make([]string, len(topics))
	for i, t := range topics {
		names[i] = fmt.Sprintf("%d:%s", i+1, t.Name)
	}
	prompt := fmt.Sprintf(arbiterSystemPromptTmpl, strings.Join(names, ", "), utterance)

	text, err := a.gw.ChatText(ctx, []llm.Message{{Role: "system", Content: prompt}}, 0, 60)
	if err != nil {
		return nil, fmt.Errorf("coverage: arbiter: %w", err)
	}
	return parseFlags(text, len(topics)), nil
}

// parseFlags decodes a comma-separated "T,F,T" reply into exactly n bool
// flags. Any entry that is not exactly "T" (case-insensitively, after
// trimming) is treated as false; a short reply pads with false, a long one
// is truncated.
func parseFlags(reply string, n int) []bool {
	parts := strings.Split(reply, ",")
	flags := make([]bool, n)
	for i := 0; i < n && i < len(parts); i++ {
		flags[i] = strings.EqualFold(strings.TrimSpace(parts[i]), "T")
	}
	return flags
}

// normalizePhrases lower-cases and trims each phrase once at construction
// time so Detect's hot path only normalises the utterance.
func normalizePhrases(phrases []string) []string {
	out := make([]string, 0, len(phrases))
	for _, p := range phrases {
		p = nlp.Normalize(nlp.StripDiacritics(strings.ToLower(p)))
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// containsAny reports whether normalized contains any of phrases as a
// substring.
func containsAny(normalized string, phrases []string) bool {
	for _, p := range phrases {
		if strings.Contains(normalized, p) {
			return true
		}
	}
	return false
}

// phoneticContainsAny is the fallback for utterances that contain a
// dismissal phrase but a mangled spelling of it, e.g. an STT transcript of
// "i don't know" as "i don't no". It slides a window the width of each
// phrase over the utterance's tokens and accepts the window if every token
// matches the phrase's corresponding token phonetically.
func (a *ArbiterDetector) phoneticContainsAny(normalized string, phrases []string) bool {
	if len(phrases) == 0 {
		return false
	}
	tokens := strings.Fields(normalized)
	for _, phrase := range phrases {
		phraseTokens := strings.Fields(phrase)
		n := len(phraseTokens)
		if n == 0 || n > len(tokens) {
			continue
		}
		for i := 0; i+n <= len(tokens); i++ {
			if a.phoneticPhraseMatch(tokens[i:i+n], phraseTokens) {
				return true
			}
		}
	}
	return false
}

// phoneticPhraseMatch reports whether every word in window matches the word
// in the same position of phraseTokens per [phonetic.Matcher.Match].
func (a *ArbiterDetector) phoneticPhraseMatch(window, phraseTokens []string) bool {
	for i, word := range window {
		if word == phraseTokens[i] {
			continue
		}
		if _, _, matched := a.phraseMatcher.Match(word, []string{phraseTokens[i]}); !matched {
			return false
		}
	}
	return true
}
