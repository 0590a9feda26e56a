package providers

import (
	"context"
	"strings"

	"github.com/spanexx/ACTA-sub001/internal/llm"
	"github.com/spanexx/ACTA-sub001/pkg/models"
)

// Ollama speaks the native ollama HTTP API through the shared transport
// client, so it inherits the retry budget, per-attempt timeouts, and error
// taxonomy without any SDK.
type Ollama struct {
	baseURL string
	client  *llm.Client
	headers map[string]string
}

var _ llm.Adapter = (*Ollama)(nil)

// NewOllama creates an ollama adapter from profile settings.
func NewOllama(settings models.LLMSettings, client *llm.Client) *Ollama {
	baseURL := strings.TrimRight(strings.TrimSpace(llm.BaseURLOf(settings)), "/")
	if baseURL == "" {
		baseURL = models.DefaultOllamaBaseURL
	}
	return &Ollama{
		baseURL: baseURL,
		client:  client,
		headers: settings.Headers,
	}
}

// ID returns the adapter identifier.
func (o *Ollama) ID() models.AdapterID { return models.AdapterOllama }

type ollamaGenerateRequest struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	System  string         `json:"system,omitempty"`
	Stream  bool           `json:"stream"`
	Options map[string]any `json:"options,omitempty"`
}

type ollamaGenerateResponse struct {
	Model           string `json:"model"`
	Response        string `json:"response"`
	PromptEvalCount int    `json:"prompt_eval_count"`
	EvalCount       int    `json:"eval_count"`
}

// Complete performs a non-streaming /api/generate call.
func (o *Ollama) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResult, error) {
	payload := ollamaGenerateRequest{
		Model:  req.Model,
		Prompt: req.Prompt,
		System: req.System,
		Stream: false,
	}
	options := map[string]any{}
	if req.MaxTokens > 0 {
		options["num_predict"] = req.MaxTokens
	}
	if req.Temperature > 0 {
		options["temperature"] = req.Temperature
	}
	if len(options) > 0 {
		payload.Options = options
	}

	resp, err := llm.RequestJSON[ollamaGenerateResponse](ctx, o.client, o.baseURL+"/api/generate", llm.RequestOptions{
		Body:     payload,
		Headers:  o.headers,
		Provider: string(models.AdapterOllama),
	})
	if err != nil {
		return nil, err
	}
	return &llm.CompletionResult{
		Text:             resp.Response,
		Model:            resp.Model,
		PromptTokens:     resp.PromptEvalCount,
		CompletionTokens: resp.EvalCount,
	}, nil
}

type ollamaTagsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

// ListModels reads the local model registry from /api/tags.
func (o *Ollama) ListModels(ctx context.Context) ([]string, error) {
	resp, err := llm.RequestJSON[ollamaTagsResponse](ctx, o.client, o.baseURL+"/api/tags", llm.RequestOptions{
		Method:   "GET",
		Headers:  o.headers,
		Provider: string(models.AdapterOllama),
	})
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(resp.Models))
	for _, m := range resp.Models {
		names = append(names, m.Name)
	}
	return names, nil
}

// HealthCheck probes /api/version, the cheapest endpoint the server exposes.
func (o *Ollama) HealthCheck(ctx context.Context) error {
	_, err := o.client.DoJSON(ctx, o.baseURL+"/api/version", llm.RequestOptions{
		Method:   "GET",
		Headers:  o.headers,
		Provider: string(models.AdapterOllama),
	})
	return err
}
