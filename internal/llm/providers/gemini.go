package providers

import (
	"context"
	"strings"

	"google.golang.org/genai"

	"github.com/spanexx/ACTA-sub001/internal/llm"
	"github.com/spanexx/ACTA-sub001/pkg/models"
)

const defaultGeminiBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// Gemini is a cloud adapter backed by the Gemini API. Completions go through
// the official SDK; model discovery uses the plain REST endpoint because the
// list call carries the key as a query parameter and the shared client scrubs
// it from any surfaced error.
type Gemini struct {
	client  *genai.Client
	rest    *llm.Client
	baseURL string
	apiKey  string
}

var _ llm.Adapter = (*Gemini)(nil)

// NewGemini creates a Gemini adapter from profile settings.
func NewGemini(settings models.LLMSettings, rest *llm.Client) (*Gemini, error) {
	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:  settings.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, llm.NewTransportError(models.CodeLLMMisconfigured, err.Error()).
			WithProvider(string(models.AdapterGemini)).WithCause(err)
	}
	baseURL := strings.TrimRight(strings.TrimSpace(llm.BaseURLOf(settings)), "/")
	if baseURL == "" {
		baseURL = defaultGeminiBaseURL
	}
	return &Gemini{
		client:  client,
		rest:    rest,
		baseURL: baseURL,
		apiKey:  settings.APIKey,
	}, nil
}

// ID returns the adapter identifier.
func (g *Gemini) ID() models.AdapterID { return models.AdapterGemini }

// Complete performs a non-streaming content generation and concatenates the
// text parts of the first candidates.
func (g *Gemini) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResult, error) {
	config := &genai.GenerateContentConfig{}
	if req.System != "" {
		config.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: req.System}},
		}
	}
	if req.MaxTokens > 0 {
		config.MaxOutputTokens = int32(req.MaxTokens)
	}
	if req.Temperature > 0 {
		config.Temperature = genai.Ptr(float32(req.Temperature))
	}

	resp, err := g.client.Models.GenerateContent(ctx, req.Model, genai.Text(req.Prompt), config)
	if err != nil {
		return nil, wrapSDKError(ctx, string(models.AdapterGemini), err)
	}

	var text strings.Builder
	for _, candidate := range resp.Candidates {
		if candidate == nil || candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part != nil && part.Text != "" {
				text.WriteString(part.Text)
			}
		}
	}
	result := &llm.CompletionResult{
		Text:  text.String(),
		Model: req.Model,
	}
	if resp.UsageMetadata != nil {
		result.PromptTokens = int(resp.UsageMetadata.PromptTokenCount)
		result.CompletionTokens = int(resp.UsageMetadata.CandidatesTokenCount)
	}
	return result, nil
}

type geminiModelsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

// ListModels queries the REST models endpoint. Returned names drop the
// "models/" resource prefix so they match what a profile configures.
func (g *Gemini) ListModels(ctx context.Context) ([]string, error) {
	resp, err := llm.RequestJSON[geminiModelsResponse](ctx, g.rest, g.baseURL+"/models?key="+g.apiKey, llm.RequestOptions{
		Method:   "GET",
		Provider: string(models.AdapterGemini),
	})
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(resp.Models))
	for _, m := range resp.Models {
		names = append(names, strings.TrimPrefix(m.Name, "models/"))
	}
	return names, nil
}

// HealthCheck verifies the key can reach the models endpoint.
func (g *Gemini) HealthCheck(ctx context.Context) error {
	_, err := g.ListModels(ctx)
	return err
}
