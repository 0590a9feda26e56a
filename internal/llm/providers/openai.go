package providers

import (
	"context"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/spanexx/ACTA-sub001/internal/llm"
	"github.com/spanexx/ACTA-sub001/pkg/models"
)

// OpenAI is a cloud adapter backed by the official chat completions API.
type OpenAI struct {
	client *openai.Client
}

var _ llm.Adapter = (*OpenAI)(nil)

// NewOpenAI creates an OpenAI adapter from profile settings. A custom base
// URL routes requests to an API-compatible proxy when one is configured.
func NewOpenAI(settings models.LLMSettings) *OpenAI {
	config := openai.DefaultConfig(settings.APIKey)
	if baseURL := strings.TrimRight(strings.TrimSpace(llm.BaseURLOf(settings)), "/"); baseURL != "" {
		config.BaseURL = baseURL
	}
	return &OpenAI{client: openai.NewClientWithConfig(config)}
}

// ID returns the adapter identifier.
func (o *OpenAI) ID() models.AdapterID { return models.AdapterOpenAI }

// Complete performs a non-streaming chat completion.
func (o *OpenAI) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResult, error) {
	return completeChat(ctx, o.client, string(models.AdapterOpenAI), req)
}

// ListModels returns the model identifiers visible to the configured key.
func (o *OpenAI) ListModels(ctx context.Context) ([]string, error) {
	return listChatModels(ctx, o.client, string(models.AdapterOpenAI))
}

// HealthCheck verifies the key can reach the models endpoint.
func (o *OpenAI) HealthCheck(ctx context.Context) error {
	_, err := listChatModels(ctx, o.client, string(models.AdapterOpenAI))
	return err
}

// completeChat runs one chat completion against any OpenAI-protocol server
// and normalizes transport failures into the shared error taxonomy.
func completeChat(ctx context.Context, client *openai.Client, provider string, req llm.CompletionRequest) (*llm.CompletionResult, error) {
	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if req.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.System,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: req.Prompt,
	})

	resp, err := client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       req.Model,
		Messages:    messages,
		MaxTokens:   req.MaxTokens,
		Temperature: float32(req.Temperature),
	})
	if err != nil {
		return nil, wrapSDKError(ctx, provider, err)
	}
	if len(resp.Choices) == 0 {
		return nil, llm.NewTransportError(models.CodeLLMUnknown, "completion returned no choices").WithProvider(provider)
	}
	return &llm.CompletionResult{
		Text:             resp.Choices[0].Message.Content,
		Model:            resp.Model,
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
	}, nil
}

// listChatModels queries the models endpoint of any OpenAI-protocol server.
func listChatModels(ctx context.Context, client *openai.Client, provider string) ([]string, error) {
	resp, err := client.ListModels(ctx)
	if err != nil {
		return nil, wrapSDKError(ctx, provider, err)
	}
	names := make([]string, 0, len(resp.Models))
	for _, m := range resp.Models {
		names = append(names, m.ID)
	}
	return names, nil
}
