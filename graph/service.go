package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/bbiangul/kgraph/llm"
)

// Service is the boundary to the language-model backend. Both operations
// return the raw completion text; parsing is the caller's job.
type Service interface {
	// ExtractTriples asks for subject-predicate-object triples in segment.
	ExtractTriples(ctx context.Context, segment string) (string, error)

	// ConsolidateEntities asks for a JSON object mapping canonical names to
	// arrays of variant names.
	ConsolidateEntities(ctx context.Context, entities []string) (string, error)
}

// ServiceOptions tunes the LLM-backed Service. Zero values select the
// defaults below.
type ServiceOptions struct {
	Model                    string  `json:"model" yaml:"model"`
	MaxTokens                int     `json:"max_tokens" yaml:"max_tokens"`
	ExtractionTemperature    float64 `json:"extraction_temperature" yaml:"extraction_temperature"`
	ConsolidationTemperature float64 `json:"consolidation_temperature" yaml:"consolidation_temperature"`
}

// Defaults for ServiceOptions.
const (
	DefaultMaxTokens                = 1000
	DefaultExtractionTemperature    = 0.3
	DefaultConsolidationTemperature = 0.1
)

func (o ServiceOptions) withDefaults() ServiceOptions {
	if o.MaxTokens <= 0 {
		o.MaxTokens = DefaultMaxTokens
	}
	if o.ExtractionTemperature <= 0 {
		o.ExtractionTemperature = DefaultExtractionTemperature
	}
	if o.ConsolidationTemperature <= 0 {
		o.ConsolidationTemperature = DefaultConsolidationTemperature
	}
	return o
}

// extractionSystemPrompt frames the extraction call.
const extractionSystemPrompt = `You are an advanced AI system specialized in knowledge extraction and knowledge graph generation.
Your expertise includes identifying consistent entity references and meaningful relationships in text.
CRITICAL INSTRUCTION: All relationships (predicates) MUST be no more than 3 words maximum.`

// extractionUserPrompt wraps the segment in triple backticks.
const extractionUserPrompt = "Extract Subject-Predicate-Object triples from this text (between triple backticks):\n" +
	"```%s```\n\n" +
	`Rules:
1. Use consistent names for entities (prefer most complete form)
2. Predicates must be 1-3 words max
3. Make all text lowercase
4. Replace pronouns with actual entities
5. Return ONLY a JSON array of {"subject", "predicate", "object"} objects

Example output:
[{"subject": "john smith", "predicate": "works at", "object": "acme corp"}]`

// consolidationSystemPrompt frames the entity-resolution call.
const consolidationSystemPrompt = `You are an expert in entity resolution. Group these entity names that refer to the same concept.
Provide a standardized name for each group and its variants. Return ONLY valid JSON.
Important: Your response must contain ONLY the JSON object, no additional text or explanation.`

const consolidationUserPrompt = `Standardize these entities:
%s

Return JSON where keys are standardized names and values are variant arrays.
Example:
{
  "apple inc": ["tech giant", "apple"],
  "tim cook": ["ceo", "apple ceo"]
}`

// LLMService implements Service on top of an llm.Provider.
type LLMService struct {
	chat llm.Provider
	opts ServiceOptions
}

// NewLLMService creates a Service backed by chat.
func NewLLMService(chat llm.Provider, opts ServiceOptions) *LLMService {
	return &LLMService{chat: chat, opts: opts.withDefaults()}
}

// ExtractTriples implements Service. JSON mode is not requested because the
// expected answer is a top-level array.
func (s *LLMService) ExtractTriples(ctx context.Context, segment string) (string, error) {
	resp, err := s.chat.Chat(ctx, llm.ChatRequest{
		Model: s.opts.Model,
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: extractionSystemPrompt},
			{Role: llm.RoleUser, Content: fmt.Sprintf(extractionUserPrompt, segment)},
		},
		Temperature: s.opts.ExtractionTemperature,
		MaxTokens:   s.opts.MaxTokens,
		Validate:    validReply(JSONArray),
	})
	if err != nil {
		return "", fmt.Errorf("triple extraction llm chat: %w", err)
	}
	return strings.TrimSpace(resp.Content), nil
}

// ConsolidateEntities implements Service. The answer is a top-level object,
// so JSON mode is requested.
func (s *LLMService) ConsolidateEntities(ctx context.Context, entities []string) (string, error) {
	list, err := json.Marshal(entities)
	if err != nil {
		return "", fmt.Errorf("encoding entity list: %w", err)
	}

	resp, err := s.chat.Chat(ctx, llm.ChatRequest{
		Model: s.opts.Model,
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: consolidationSystemPrompt},
			{Role: llm.RoleUser, Content: fmt.Sprintf(consolidationUserPrompt, list)},
		},
		Temperature:    s.opts.ConsolidationTemperature,
		MaxTokens:      s.opts.MaxTokens,
		ResponseFormat: "json_object",
		Validate:       validReply(JSONObject),
	})
	if err != nil {
		return "", fmt.Errorf("entity consolidation llm chat: %w", err)
	}
	return strings.TrimSpace(resp.Content), nil
}

// validReply reports whether a reply holds a parseable JSON value of kind.
func validReply(kind JSONKind) func(string) error {
	return func(content string) error {
		if kind == JSONObject {
			var v map[string]json.RawMessage
			return ParseJSON(content, kind, &v)
		}
		var v []json.RawMessage
		return ParseJSON(content, kind, &v)
	}
}
