// Package providers contains the LLM adapter implementations selectable from
// profile settings: ollama and LM Studio for local inference, OpenAI,
// Anthropic, and Gemini for cloud inference.
package providers

import (
	"context"
	"errors"

	"github.com/anthropics/anthropic-sdk-go"
	openai "github.com/sashabaranov/go-openai"

	"github.com/spanexx/ACTA-sub001/internal/llm"
	"github.com/spanexx/ACTA-sub001/pkg/models"
)

// RegisterAll installs every adapter factory on the router. The mapping from
// adapterId to implementation is the single source of truth for what a
// profile may select.
func RegisterAll(router *llm.Router) {
	router.Register(models.AdapterOllama, func(s models.LLMSettings, c *llm.Client) (llm.Adapter, error) {
		return NewOllama(s, c), nil
	})
	router.Register(models.AdapterLMStudio, func(s models.LLMSettings, c *llm.Client) (llm.Adapter, error) {
		return NewLMStudio(s), nil
	})
	router.Register(models.AdapterOpenAI, func(s models.LLMSettings, c *llm.Client) (llm.Adapter, error) {
		return NewOpenAI(s), nil
	})
	router.Register(models.AdapterAnthropic, func(s models.LLMSettings, c *llm.Client) (llm.Adapter, error) {
		return NewAnthropic(s), nil
	})
	router.Register(models.AdapterGemini, func(s models.LLMSettings, c *llm.Client) (llm.Adapter, error) {
		return NewGemini(s, c)
	})
}

// wrapSDKError converts an SDK error into a TransportError with a stable
// wire code. Status-bearing SDK errors map through the status table; the
// rest fall back to message classification.
func wrapSDKError(ctx context.Context, provider string, err error) error {
	if err == nil {
		return nil
	}
	if te, ok := llm.GetTransportError(err); ok {
		return te
	}
	if ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return llm.NewTransportError(models.CodeLLMCancelled, "request cancelled").
			WithProvider(provider).WithCause(err)
	}

	var oaiErr *openai.APIError
	if errors.As(err, &oaiErr) && oaiErr.HTTPStatusCode != 0 {
		return llm.NewTransportError("", oaiErr.Message).
			WithProvider(provider).
			WithStatus(oaiErr.HTTPStatusCode).
			WithCause(err)
	}

	var antErr *anthropic.Error
	if errors.As(err, &antErr) && antErr.StatusCode != 0 {
		return llm.NewTransportError("", err.Error()).
			WithProvider(provider).
			WithStatus(antErr.StatusCode).
			WithCause(err)
	}

	code, retryable := llm.ClassifyMessage(err.Error())
	te := llm.NewTransportError(code, err.Error()).WithProvider(provider).WithCause(err)
	te.Retryable = retryable
	return te
}
