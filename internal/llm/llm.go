package llm

import (
	"context"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/spanexx/ACTA-sub001/internal/observability"
	"github.com/spanexx/ACTA-sub001/pkg/models"
)

// CompletionRequest is a single-turn text completion. Zero-valued fields are
// filled from the profile's LLM defaults by the router.
type CompletionRequest struct {
	Prompt      string
	System      string
	Model       string
	MaxTokens   int
	Temperature float64
}

// CompletionResult is the provider's answer to a completion request.
type CompletionResult struct {
	Text             string
	Model            string
	PromptTokens     int
	CompletionTokens int
}

// Adapter is the contract every provider implementation satisfies. Adapters
// are cheap to construct and carry their settings; the router builds one per
// call site from profile settings.
type Adapter interface {
	// ID names the adapter ("ollama", "openai", ...).
	ID() models.AdapterID

	// Complete performs a single-turn completion.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResult, error)

	// ListModels returns the model identifiers the provider currently
	// serves.
	ListModels(ctx context.Context) ([]string, error)

	// HealthCheck probes reachability without generating tokens.
	HealthCheck(ctx context.Context) error
}

// AdapterFactory builds an adapter from profile LLM settings.
type AdapterFactory func(settings models.LLMSettings, client *Client) (Adapter, error)

const (
	// modelCacheSize bounds the number of distinct provider endpoints
	// whose model lists are cached.
	modelCacheSize = 16

	// modelCacheTTL keeps discovery results fresh enough for setup UIs
	// polling health while a user edits settings.
	modelCacheTTL = 45 * time.Second
)

// Router binds profile LLM settings to a concrete adapter and applies the
// profile's generation defaults. Model discovery results are cached briefly
// per endpoint.
type Router struct {
	client     *Client
	logger     *observability.Logger
	factories  map[models.AdapterID]AdapterFactory
	modelCache *lru.LRU[string, []string]
}

// RouterOption configures a Router.
type RouterOption func(*Router)

// WithRouterLogger attaches a structured logger.
func WithRouterLogger(l *observability.Logger) RouterOption {
	return func(r *Router) { r.logger = l }
}

// NewRouter creates a Router over the given transport client. Adapters are
// registered separately so the providers package stays the only place that
// knows concrete implementations.
func NewRouter(client *Client, opts ...RouterOption) *Router {
	r := &Router{
		client:     client,
		factories:  make(map[models.AdapterID]AdapterFactory),
		modelCache: lru.NewLRU[string, []string](modelCacheSize, nil, modelCacheTTL),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register installs a factory for an adapter ID. Later registrations replace
// earlier ones.
func (r *Router) Register(id models.AdapterID, factory AdapterFactory) {
	r.factories[id] = factory
}

// Client returns the underlying transport client for adapters constructed
// outside the router.
func (r *Router) Client() *Client {
	return r.client
}

// BaseURLOf returns the effective server URL of a settings block: baseUrl,
// falling back to endpoint.
func BaseURLOf(settings models.LLMSettings) string {
	if settings.BaseURL != "" {
		return settings.BaseURL
	}
	return settings.Endpoint
}

// AdapterFor validates settings and builds the matching adapter. Invalid or
// incomplete settings surface as llm.misconfigured.
func (r *Router) AdapterFor(settings models.LLMSettings) (Adapter, error) {
	factory, ok := r.factories[settings.AdapterID]
	if !ok {
		return nil, NewTransportError(models.CodeLLMMisconfigured,
			"unknown adapter "+string(settings.AdapterID))
	}
	if settings.Mode == models.LLMModeLocal && BaseURLOf(settings) == "" {
		return nil, NewTransportError(models.CodeLLMMisconfigured,
			"local mode requires baseUrl or endpoint").WithProvider(string(settings.AdapterID))
	}
	if models.CloudAdapter(settings.AdapterID) && settings.APIKey == "" {
		return nil, NewTransportError(models.CodeLLMMisconfigured,
			"cloud adapter requires an API key").WithProvider(string(settings.AdapterID))
	}
	adapter, err := factory(settings, r.client)
	if err != nil {
		return nil, NewTransportError(models.CodeLLMMisconfigured, "build adapter").
			WithProvider(string(settings.AdapterID)).WithCause(err)
	}
	return adapter, nil
}

// Complete routes a completion to the adapter selected by settings, filling
// model and generation defaults from the profile.
func (r *Router) Complete(ctx context.Context, settings models.LLMSettings, req CompletionRequest) (*CompletionResult, error) {
	adapter, err := r.AdapterFor(settings)
	if err != nil {
		return nil, err
	}

	if req.Model == "" {
		req.Model = settings.Model
	}
	if d := settings.Defaults; d != nil {
		if req.MaxTokens == 0 {
			req.MaxTokens = d.MaxTokens
		}
		if req.Temperature == 0 {
			req.Temperature = d.Temperature
		}
	}

	if r.logger != nil {
		r.logger.Debug(ctx, "routing completion",
			"provider", string(settings.AdapterID),
			"model", req.Model,
		)
	}
	return adapter.Complete(ctx, req)
}

// ListModels returns the provider's model list, served from a short-lived
// cache keyed by adapter and endpoint.
func (r *Router) ListModels(ctx context.Context, settings models.LLMSettings) ([]string, error) {
	key := string(settings.AdapterID) + "|" + BaseURLOf(settings)
	if cached, ok := r.modelCache.Get(key); ok {
		return cached, nil
	}

	adapter, err := r.AdapterFor(settings)
	if err != nil {
		return nil, err
	}
	list, err := adapter.ListModels(ctx)
	if err != nil {
		return nil, err
	}
	r.modelCache.Add(key, list)
	return list, nil
}

// HealthCheck probes the provider selected by settings and reports the
// outcome in wire form: reachability, the discovered model list, and whether
// the configured model is actually served.
func (r *Router) HealthCheck(ctx context.Context, settings models.LLMSettings) *models.HealthCheckResult {
	adapter, err := r.AdapterFor(settings)
	if err != nil {
		return healthFailure(err)
	}

	if err := adapter.HealthCheck(ctx); err != nil {
		return healthFailure(err)
	}

	list, err := r.ListModels(ctx, settings)
	if err != nil {
		return healthFailure(err)
	}

	if settings.Model != "" && len(list) > 0 && !modelListed(list, settings.Model) {
		return &models.HealthCheckResult{
			OK:     false,
			Models: list,
			Error: &models.WireError{
				Code:    models.CodeLLMModelNotFound,
				Message: "model " + settings.Model + " is not served by this provider",
			},
		}
	}

	return &models.HealthCheckResult{OK: true, Models: list}
}

func healthFailure(err error) *models.HealthCheckResult {
	return &models.HealthCheckResult{
		OK: false,
		Error: &models.WireError{
			Code:    CodeOf(err),
			Message: err.Error(),
		},
	}
}

// modelListed reports whether want is served, either exactly or when a
// listed tagged model ("llama3:8b") matches an untagged request ("llama3").
func modelListed(list []string, want string) bool {
	for _, m := range list {
		if m == want {
			return true
		}
		if base, _, ok := strings.Cut(m, ":"); ok && base == want {
			return true
		}
	}
	return false
}
