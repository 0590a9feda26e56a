package providers

import (
	"context"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/spanexx/ACTA-sub001/internal/llm"
	"github.com/spanexx/ACTA-sub001/pkg/models"
)

// Anthropic is a cloud adapter backed by the Messages API.
type Anthropic struct {
	client anthropic.Client
}

var _ llm.Adapter = (*Anthropic)(nil)

// NewAnthropic creates an Anthropic adapter from profile settings.
func NewAnthropic(settings models.LLMSettings) *Anthropic {
	options := []option.RequestOption{option.WithAPIKey(settings.APIKey)}
	if baseURL := strings.TrimSpace(llm.BaseURLOf(settings)); baseURL != "" {
		options = append(options, option.WithBaseURL(baseURL))
	}
	for key, value := range settings.Headers {
		options = append(options, option.WithHeader(key, value))
	}
	return &Anthropic{client: anthropic.NewClient(options...)}
}

// ID returns the adapter identifier.
func (a *Anthropic) ID() models.AdapterID { return models.AdapterAnthropic }

// Complete performs a non-streaming message creation and concatenates the
// text blocks of the response.
func (a *Anthropic) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResult, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		MaxTokens: int64(req.MaxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
		},
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}
	if req.Temperature > 0 {
		params.Temperature = anthropic.Float(req.Temperature)
	}

	message, err := a.client.Messages.New(ctx, params)
	if err != nil {
		return nil, wrapSDKError(ctx, string(models.AdapterAnthropic), err)
	}

	var text strings.Builder
	for _, block := range message.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	return &llm.CompletionResult{
		Text:             text.String(),
		Model:            string(message.Model),
		PromptTokens:     int(message.Usage.InputTokens),
		CompletionTokens: int(message.Usage.OutputTokens),
	}, nil
}

// ListModels returns the first page of model identifiers visible to the key.
func (a *Anthropic) ListModels(ctx context.Context) ([]string, error) {
	page, err := a.client.Models.List(ctx, anthropic.ModelListParams{})
	if err != nil {
		return nil, wrapSDKError(ctx, string(models.AdapterAnthropic), err)
	}
	names := make([]string, 0, len(page.Data))
	for _, m := range page.Data {
		names = append(names, m.ID)
	}
	return names, nil
}

// HealthCheck verifies the key can reach the models endpoint.
func (a *Anthropic) HealthCheck(ctx context.Context) error {
	_, err := a.ListModels(ctx)
	return err
}
