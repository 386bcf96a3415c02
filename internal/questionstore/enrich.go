package questionstore

import (
	"context"

	"github.com/simonealverdi/interviewer/internal/importer"
	"github.com/simonealverdi/interviewer/internal/llmgateway"
	"github.com/simonealverdi/interviewer/internal/metadata"
	"github.com/simonealverdi/interviewer/internal/question"
)

// NewLLMEnricher returns an [EnrichFunc] that enriches a question's prompt
// via the LLM Gateway and Metadata Builder (internal/importer.EnrichPrompt),
// preserving the question's identity across both the success and the
// partial-failure path.
func NewLLMEnricher(gw *llmgateway.Gateway, mb *metadata.Builder) EnrichFunc {
	return func(ctx context.Context, q question.Question) (question.Question, error) {
		enriched, err := importer.EnrichPrompt(ctx, gw, mb, q.Prompt)
		enriched.ID = q.ID
		return enriched, err
	}
}
