package lawgen

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"
)

// OpenAIConfig holds credentials and tuning for the OpenAI generator.
type OpenAIConfig struct {
	APIKey      string  `env:"OPENAI_API_KEY,required"`
	Model       string  `env:"OPENAI_MODEL" envDefault:"gpt-4o-mini"`
	Temperature float32 `env:"OPENAI_TEMPERATURE" envDefault:"0.7"`
	MaxTokens   int     `env:"OPENAI_MAX_TOKENS" envDefault:"1200"`
}

const systemPrompt = `You are a witty legislative drafter for a satirical
government. Given a topic, write one fictional law. Respond with a JSON
object containing exactly these fields:
  "title": a short official-sounding name for the law,
  "summary": one or two sentences describing its effect,
  "content": the full text of the law in formal legislative language
             with numbered articles,
  "tags": an array of 2-5 lowercase topical keywords.
Write in the language of the topic. Keep the satire sharp but harmless.`

// OpenAIGenerator implements Generator over the OpenAI chat completion
// API. The model is asked for a strict JSON object so the response parses
// directly into a Draft.
type OpenAIGenerator struct {
	client *openai.Client
	cfg    OpenAIConfig
}

// NewOpenAIGenerator builds an OpenAI-backed Generator.
func NewOpenAIGenerator(cfg OpenAIConfig) (*OpenAIGenerator, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("lawgen: openai api key is required")
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}

	return &OpenAIGenerator{
		client: openai.NewClient(cfg.APIKey),
		cfg:    cfg,
	}, nil
}

func (g *OpenAIGenerator) Generate(ctx context.Context, prompt string) (*Generation, error) {
	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       g.cfg.Model,
		Temperature: g.cfg.Temperature,
		MaxTokens:   g.cfg.MaxTokens,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrGenerationFailed, err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%w: empty completion", ErrGenerationFailed)
	}

	draft, err := parseDraft(resp.Choices[0].Message.Content)
	if err != nil {
		return nil, err
	}
	return &Generation{
		Draft:      *draft,
		Model:      g.cfg.Model,
		TokensUsed: resp.Usage.TotalTokens,
	}, nil
}

const constitutionSystemPrompt = `You are a constitutional scholar drafting
the founding document of a new network state. Given the state's name,
population, geography and focus areas, write a complete constitutional
framework. Respond with a JSON object containing exactly these fields:
  "preamble": the preamble stating the founding principles,
  "rights": a bill of rights protecting individual freedoms,
  "structure": the governmental structure and organization,
  "amendments": the process for amending the constitution.
Each field holds formal constitutional prose with numbered articles.`

// Constitutions are long-form and benefit from steadier output than the
// satirical laws, so the call uses its own tuning.
const (
	constitutionTemperature float32 = 0.6
	constitutionMaxTokens           = 3000
)

func (g *OpenAIGenerator) GenerateConstitution(ctx context.Context, req ConstitutionRequest) (*ConstitutionGeneration, error) {
	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       g.cfg.Model,
		Temperature: constitutionTemperature,
		MaxTokens:   constitutionMaxTokens,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: constitutionSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: constitutionPrompt(req)},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrGenerationFailed, err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%w: empty completion", ErrGenerationFailed)
	}

	draft, err := parseConstitutionDraft(resp.Choices[0].Message.Content)
	if err != nil {
		return nil, err
	}
	return &ConstitutionGeneration{
		Draft:      *draft,
		Model:      g.cfg.Model,
		TokensUsed: resp.Usage.TotalTokens,
	}, nil
}

func parseConstitutionDraft(raw string) (*ConstitutionDraft, error) {
	var draft ConstitutionDraft
	if err := json.Unmarshal([]byte(stripFences(raw)), &draft); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidDraft, err)
	}
	if err := draft.validate(); err != nil {
		return nil, err
	}
	return &draft, nil
}

// parseDraft decodes the model output. Models occasionally wrap JSON in a
// markdown fence despite the response format hint, so fences are
// stripped before decoding.
func parseDraft(raw string) (*Draft, error) {
	var draft Draft
	if err := json.Unmarshal([]byte(stripFences(raw)), &draft); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidDraft, err)
	}
	if err := draft.validate(); err != nil {
		return nil, err
	}
	return &draft, nil
}

// stripFences removes the markdown code fence models occasionally wrap
// around JSON despite the response format hint.
func stripFences(raw string) string {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")
	return strings.TrimSpace(raw)
}
