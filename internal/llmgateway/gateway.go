// Package llmgateway implements the LLM Gateway: the only component in this
// system that talks to an LLM backend directly. It exposes two calls —
// chat_json (schema-enforced, business-rule-validated, retried) and chat_text
// (plain completion, used for follow-up question generation) — so every other
// package treats the LLM as a narrow, typed collaborator instead of a raw
// chat API.
//
// Grounded on spec.md §4.3. The backend is a pkg/provider/llm.Provider,
// typically an internal/resilience.LLMFallback wrapping one or more concrete
// providers.
package llmgateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/simonealverdi/interviewer/pkg/provider/llm"
)

// defaultMaxJSONAttempts is used when cfg.MaxRetries is unset (<= 0).
const defaultMaxJSONAttempts = 3

// Config bundles the spec.md §6 LLM Gateway configuration variables that
// govern the Gateway's own calls (OPENAI_TEMP, MAX_TOKENS, MAX_RETRIES).
// OPENAI_MODEL takes effect one layer down, at provider-construction time
// (config.ProvidersConfig.LLM.Model selects the model the backend
// llm.Provider is built against) — there is no per-call model override on
// [llm.CompletionRequest] for a Gateway-level Model field to feed.
type Config struct {
	// Temperature controls output randomness on every chat_json/chat_text
	// call this Gateway makes. Zero uses the provider's default.
	Temperature float64

	// MaxTokens caps completion tokens on every call. Zero uses the
	// provider's default.
	MaxTokens int

	// MaxRetries bounds chat_json's corrective-retry loop. <= 0 falls back
	// to the spec's default of 3 attempts.
	MaxRetries int
}

// Gateway drives chat_json/chat_text calls against a backend llm.Provider.
type Gateway struct {
	provider llm.Provider
	backoff  time.Duration
	cfg      Config
}

// New returns a Gateway backed by provider and configured by cfg, using the
// spec's fixed ~0.5s retry backoff.
func New(provider llm.Provider, cfg Config) *Gateway {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = defaultMaxJSONAttempts
	}
	return &Gateway{provider: provider, backoff: 500 * time.Millisecond, cfg: cfg}
}

// ChatText sends messages to the backend and returns the trimmed completion
// text. It performs no schema or business-rule validation; callers that need
// structural guarantees on the result (e.g. GenerateFollowUp) validate it
// themselves.
func (g *Gateway) ChatText(ctx context.Context, messages []llm.Message, temperature float64, maxTokens int) (string, error) {
	resp, err := g.provider.Complete(ctx, llm.CompletionRequest{
		Messages:    messages,
		Temperature: temperature,
		MaxTokens:   maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("llmgateway: chat_text: %w", err)
	}
	return strings.TrimSpace(resp.Content), nil
}

// businessRuleFunc checks a schema-valid parsed object against rules that
// JSON Schema cannot express (e.g. cross-field uniqueness).
type businessRuleFunc func(parsed map[string]any) error

// chatJSON sends messages to the backend and requires the reply to be JSON
// that satisfies schema and rules. On any violation it appends the bad
// output plus a corrective user turn and retries, up to g.cfg.MaxRetries
// total attempts, waiting g.backoff between attempts. The final failure
// returns an "LLM output invalid" error.
func (g *Gateway) chatJSON(ctx context.Context, messages []llm.Message, schema *jsonschema.Resolved, rules businessRuleFunc, temperature float64, maxTokens int) (map[string]any, error) {
	convo := append([]llm.Message(nil), messages...)
	var lastErr error

	for attempt := 1; attempt <= g.cfg.MaxRetries; attempt++ {
		resp, err := g.provider.Complete(ctx, llm.CompletionRequest{
			Messages:    convo,
			Temperature: temperature,
			MaxTokens:   maxTokens,
		})
		if err != nil {
			return nil, fmt.Errorf("llmgateway: chat_json: %w", err)
		}
		content := resp.Content

		parsed, violation := validateJSONTurn(content, schema, rules)
		if violation == nil {
			return parsed, nil
		}
		lastErr = violation

		if attempt == g.cfg.MaxRetries {
			break
		}
		convo = append(convo,
			llm.Message{Role: "assistant", Content: content},
			llm.Message{Role: "user", Content: fmt.Sprintf(
				"Your previous output was invalid: %s. Return only corrected JSON satisfying the schema, with no surrounding text.",
				violation)},
		)
		time.Sleep(g.backoff)
	}

	return nil, fmt.Errorf("LLM output invalid: %w", lastErr)
}

// validateJSONTurn decodes content as JSON, checks it against schema, and
// then against rules, in that order. It returns the decoded object only when
// all three stages pass.
func validateJSONTurn(content string, schema *jsonschema.Resolved, rules businessRuleFunc) (map[string]any, error) {
	var parsed map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(content)), &parsed); err != nil {
		return nil, fmt.Errorf("output was not valid JSON: %w", err)
	}
	if err := schema.Validate(parsed); err != nil {
		return nil, fmt.Errorf("output violated the JSON schema: %w", err)
	}
	if rules != nil {
		if err := rules(parsed); err != nil {
			return nil, err
		}
	}
	return parsed, nil
}

// enrichmentSystemPrompt instructs the model to produce the strict
// primary_topic/subtopics/keywords enrichment object for one question.
const enrichmentSystemPrompt = `You are enriching one interview question for an adaptive interview system.
Given the question text, identify:
- primary_topic: the single overarching subject the question probes.
- subtopics: 2 to 8 distinct, non-overlapping facets of that topic a strong answer should cover.
- keywords: for each subtopic, in the same order, a list of fewer than 7 representative keywords or short phrases. No keyword may appear under more than one subtopic.
Respond with a single JSON object with exactly the fields primary_topic, subtopics, and keywords. No prose, no markdown fences.`

// EnrichQuestion runs the enrichment chat_json call for a single question's
// text and returns its validated primary topic, subtopics, and parallel
// keyword lists.
func (g *Gateway) EnrichQuestion(ctx context.Context, questionText string) (EnrichmentResult, error) {
	messages := []llm.Message{
		{Role: "system", Content: enrichmentSystemPrompt},
		{Role: "user", Content: questionText},
	}

	parsed, err := g.chatJSON(ctx, messages, enrichmentSchema, enrichmentBusinessRules, g.cfg.Temperature, g.cfg.MaxTokens)
	if err != nil {
		return EnrichmentResult{}, err
	}

	var result EnrichmentResult
	raw, _ := json.Marshal(parsed)
	if err := json.Unmarshal(raw, &result); err != nil {
		return EnrichmentResult{}, fmt.Errorf("llmgateway: decode enrichment result: %w", err)
	}
	return result, nil
}

// enrichmentBusinessRules checks the rules JSON Schema alone cannot express:
// subtopic count/uniqueness, one keyword list per subtopic, list length, and
// keyword disjointness across lists.
func enrichmentBusinessRules(parsed map[string]any) error {
	var r EnrichmentResult
	raw, err := json.Marshal(parsed)
	if err != nil {
		return fmt.Errorf("could not re-encode parsed output: %w", err)
	}
	if err := json.Unmarshal(raw, &r); err != nil {
		return fmt.Errorf("could not decode enrichment fields: %w", err)
	}
	return validateEnrichmentResult(r)
}

func validateEnrichmentResult(r EnrichmentResult) error {
	if len(r.Subtopics) < 2 || len(r.Subtopics) > 8 {
		return fmt.Errorf("subtopics must number between 2 and 8, got %d", len(r.Subtopics))
	}
	seen := make(map[string]struct{}, len(r.Subtopics))
	for _, st := range r.Subtopics {
		if _, dup := seen[st]; dup {
			return fmt.Errorf("duplicate subtopic %q", st)
		}
		seen[st] = struct{}{}
	}

	if len(r.Keywords) != len(r.Subtopics) {
		return fmt.Errorf("keywords must have one list per subtopic: got %d lists for %d subtopics", len(r.Keywords), len(r.Subtopics))
	}

	owner := make(map[string]int)
	for i, list := range r.Keywords {
		if len(list) >= 7 {
			return fmt.Errorf("keyword list %d has %d entries, must be fewer than 7", i, len(list))
		}
		for _, kw := range list {
			if o, dup := owner[kw]; dup {
				return fmt.Errorf("keyword %q appears in both list %d and list %d", kw, o, i)
			}
			owner[kw] = i
		}
	}
	return nil
}

const (
	followUpMinLen = 5
	followUpMaxLen = 120
)

// followUpSystemPromptTmpl is templated per call with the principal question,
// the candidate's last answer, and the subtopics still missing.
const followUpSystemPromptTmpl = `You are conducting a spoken interview. The principal question was:
%q

The candidate answered:
%q

Subtopics the answer has not yet covered: %s.

Produce exactly one follow-up question, at most 25 words, ending in a question mark, that targets only the first missing subtopic listed above ("%s"). Respond with the question text only — no preamble, no quotes.`

// GenerateFollowUp produces one follow-up question targeting the first entry
// of missingSubtopics. On a malformed first attempt it retries once with a
// corrective user message; if that also fails validation it falls back to
// a deterministic templated question so the interview can always proceed.
func (g *Gateway) GenerateFollowUp(ctx context.Context, principalQuestion, lastAnswer string, missingSubtopics []string) (string, error) {
	if len(missingSubtopics) == 0 {
		return "", errors.New("llmgateway: generate follow-up: no missing subtopics")
	}
	focus := missingSubtopics[0]

	messages := []llm.Message{
		{Role: "system", Content: fmt.Sprintf(followUpSystemPromptTmpl, principalQuestion, lastAnswer, strings.Join(missingSubtopics, ", "), focus)},
	}

	if text, err := g.ChatText(ctx, messages, g.cfg.Temperature, g.cfg.MaxTokens); err == nil && validFollowUp(text) {
		return text, nil
	}

	corrective := append(messages, llm.Message{
		Role: "user",
		Content: "That was not a single question between 5 and 120 characters, at most 25 words, ending in '?'. " +
			"Try again: respond with exactly one such question and nothing else.",
	})
	if text, err := g.ChatText(ctx, corrective, g.cfg.Temperature, g.cfg.MaxTokens); err == nil && validFollowUp(text) {
		return text, nil
	}

	return fmt.Sprintf("Could you tell me more about '%s'?", focus), nil
}

// validFollowUp reports whether s satisfies the follow-up question contract:
// spec.md §4.3's stated validation gate is length alone, 5..120 characters.
// The word-count and single-question-mark phrasing in the system prompt are
// generation instructions to the model, not additional validation gates —
// a compliant reply that happens to run a little long in words or repeats a
// '?' mid-sentence is still accepted rather than spuriously bounced to the
// deterministic fallback.
func validFollowUp(s string) bool {
	s = strings.TrimSpace(s)
	return len(s) >= followUpMinLen && len(s) <= followUpMaxLen
}
