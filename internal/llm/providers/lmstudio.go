package providers

import (
	"context"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/spanexx/ACTA-sub001/internal/llm"
	"github.com/spanexx/ACTA-sub001/pkg/models"
)

const defaultLMStudioBaseURL = "http://localhost:1234"

// LMStudio talks to a local LM Studio server through its OpenAI-compatible
// endpoint.
type LMStudio struct {
	baseURL string
	client  *openai.Client
}

var _ llm.Adapter = (*LMStudio)(nil)

// NewLMStudio creates an LM Studio adapter from profile settings. LM Studio
// does not require an API key, so a placeholder is used when none is set.
func NewLMStudio(settings models.LLMSettings) *LMStudio {
	baseURL := strings.TrimRight(strings.TrimSpace(llm.BaseURLOf(settings)), "/")
	if baseURL == "" {
		baseURL = defaultLMStudioBaseURL
	}
	if !strings.HasSuffix(baseURL, "/v1") {
		baseURL += "/v1"
	}
	apiKey := settings.APIKey
	if apiKey == "" {
		apiKey = "lm-studio"
	}
	config := openai.DefaultConfig(apiKey)
	config.BaseURL = baseURL
	return &LMStudio{baseURL: baseURL, client: openai.NewClientWithConfig(config)}
}

// ID returns the adapter identifier.
func (l *LMStudio) ID() models.AdapterID { return models.AdapterLMStudio }

// Complete performs a non-streaming chat completion.
func (l *LMStudio) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResult, error) {
	return completeChat(ctx, l.client, string(models.AdapterLMStudio), req)
}

// ListModels returns the models loaded into the local server.
func (l *LMStudio) ListModels(ctx context.Context) ([]string, error) {
	return listChatModels(ctx, l.client, string(models.AdapterLMStudio))
}

// HealthCheck verifies the server answers the models endpoint.
func (l *LMStudio) HealthCheck(ctx context.Context) error {
	_, err := listChatModels(ctx, l.client, string(models.AdapterLMStudio))
	return err
}
