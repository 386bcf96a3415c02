package llmgateway

import (
	"encoding/json"

	"github.com/google/jsonschema-go/jsonschema"
)

// EnrichmentResult is the parsed, validated shape of an enrichment chat_json
// call: one principal topic, its subtopics, and one keyword list per subtopic.
type EnrichmentResult struct {
	PrimaryTopic string     `json:"primary_topic"`
	Subtopics    []string   `json:"subtopics"`
	Keywords     [][]string `json:"keywords"`
}

// enrichmentSchemaJSON is the strict JSON Schema enforced on chat_json
// enrichment calls. Business rules beyond what JSON Schema alone can express
// (uniqueness of subtopics, disjointness of keyword lists) are checked
// separately in enrichmentBusinessRules.
const enrichmentSchemaJSON = `{
  "type": "object",
  "properties": {
    "primary_topic": {"type": "string", "minLength": 1},
    "subtopics": {
      "type": "array",
      "items": {"type": "string", "minLength": 1},
      "minItems": 2,
      "maxItems": 8
    },
    "keywords": {
      "type": "array",
      "items": {
        "type": "array",
        "items": {"type": "string", "minLength": 1},
        "maxItems": 6
      },
      "minItems": 2,
      "maxItems": 8
    }
  },
  "required": ["primary_topic", "subtopics", "keywords"],
  "additionalProperties": false
}`

// mustResolveSchema unmarshals raw schema text and resolves it for
// validation. Panics on malformed schema text, which can only happen from a
// programming error in this package, not from LLM output.
func mustResolveSchema(raw string) *jsonschema.Resolved {
	var s jsonschema.Schema
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		panic("llmgateway: invalid embedded schema: " + err.Error())
	}
	resolved, err := s.Resolve(nil)
	if err != nil {
		panic("llmgateway: schema does not resolve: " + err.Error())
	}
	return resolved
}

var enrichmentSchema = mustResolveSchema(enrichmentSchemaJSON)
