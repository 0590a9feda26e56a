package providers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/spanexx/ACTA-sub001/internal/llm"
	"github.com/spanexx/ACTA-sub001/pkg/models"
)

func ollamaSettings(baseURL string) models.LLMSettings {
	return models.LLMSettings{
		Mode:      models.LLMModeLocal,
		AdapterID: models.AdapterOllama,
		Model:     "llama3:8b",
		BaseURL:   baseURL,
	}
}

func TestOllamaComplete(t *testing.T) {
	var got ollamaGenerateRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			t.Errorf("path = %q, want %q", r.URL.Path, "/api/generate")
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		json.NewEncoder(w).Encode(ollamaGenerateResponse{
			Model:           "llama3:8b",
			Response:        "four",
			PromptEvalCount: 12,
			EvalCount:       3,
		})
	}))
	defer server.Close()

	adapter := NewOllama(ollamaSettings(server.URL+"/"), llm.NewClient(llm.WithRetries(0)))
	result, err := adapter.Complete(context.Background(), llm.CompletionRequest{
		Prompt:      "what is 2+2",
		System:      "be brief",
		Model:       "llama3:8b",
		MaxTokens:   64,
		Temperature: 0.2,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got.Model != "llama3:8b" {
		t.Errorf("request model = %q, want %q", got.Model, "llama3:8b")
	}
	if got.Prompt != "what is 2+2" {
		t.Errorf("request prompt = %q, want %q", got.Prompt, "what is 2+2")
	}
	if got.System != "be brief" {
		t.Errorf("request system = %q, want %q", got.System, "be brief")
	}
	if got.Stream {
		t.Error("expected stream=false")
	}
	if v, ok := got.Options["num_predict"]; !ok || v != float64(64) {
		t.Errorf("options num_predict = %v, want 64", v)
	}
	if v, ok := got.Options["temperature"]; !ok || v != 0.2 {
		t.Errorf("options temperature = %v, want 0.2", v)
	}

	if result.Text != "four" {
		t.Errorf("text = %q, want %q", result.Text, "four")
	}
	if result.Model != "llama3:8b" {
		t.Errorf("model = %q, want %q", result.Model, "llama3:8b")
	}
	if result.PromptTokens != 12 || result.CompletionTokens != 3 {
		t.Errorf("tokens = %d/%d, want 12/3", result.PromptTokens, result.CompletionTokens)
	}
}

func TestOllamaCompleteOmitsZeroOptions(t *testing.T) {
	var raw map[string]json.RawMessage
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		json.NewEncoder(w).Encode(ollamaGenerateResponse{Response: "ok"})
	}))
	defer server.Close()

	adapter := NewOllama(ollamaSettings(server.URL), llm.NewClient(llm.WithRetries(0)))
	if _, err := adapter.Complete(context.Background(), llm.CompletionRequest{Prompt: "hi", Model: "llama3:8b"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := raw["options"]; ok {
		t.Error("expected options to be omitted when no limits are set")
	}
}

func TestOllamaListModels(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/tags" {
			t.Errorf("path = %q, want %q", r.URL.Path, "/api/tags")
		}
		if r.Method != http.MethodGet {
			t.Errorf("method = %q, want GET", r.Method)
		}
		w.Write([]byte(`{"models":[{"name":"llama3:8b"},{"name":"qwen2:7b"}]}`))
	}))
	defer server.Close()

	adapter := NewOllama(ollamaSettings(server.URL), llm.NewClient(llm.WithRetries(0)))
	names, err := adapter.ListModels(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"llama3:8b", "qwen2:7b"}
	if len(names) != len(want) {
		t.Fatalf("models = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("models[%d] = %q, want %q", i, names[i], want[i])
		}
	}
}

func TestOllamaHealthCheck(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/version" {
			t.Errorf("path = %q, want %q", r.URL.Path, "/api/version")
		}
		w.Write([]byte(`{"version":"0.5.1"}`))
	}))
	defer server.Close()

	adapter := NewOllama(ollamaSettings(server.URL), llm.NewClient(llm.WithRetries(0)))
	if err := adapter.HealthCheck(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestOllamaHealthCheckUnreachable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()

	adapter := NewOllama(ollamaSettings(server.URL), llm.NewClient(llm.WithRetries(0)))
	err := adapter.HealthCheck(context.Background())
	if err == nil {
		t.Fatal("expected error against closed server")
	}
	code := llm.CodeOf(err)
	if code != models.CodeHTTPConnectionFailed && code != models.CodeHTTPTimeout {
		t.Errorf("code = %q, want connection_failed or timeout", code)
	}
}

func TestOllamaDefaultBaseURL(t *testing.T) {
	adapter := NewOllama(models.LLMSettings{AdapterID: models.AdapterOllama}, llm.NewClient(llm.WithRetries(0)))
	if adapter.baseURL != models.DefaultOllamaBaseURL {
		t.Errorf("baseURL = %q, want %q", adapter.baseURL, models.DefaultOllamaBaseURL)
	}
}
