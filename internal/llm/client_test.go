package llm

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/spanexx/ACTA-sub001/internal/backoff"
	"github.com/spanexx/ACTA-sub001/pkg/models"
)

func fastClient(retries int) *Client {
	return NewClient(
		WithRetries(retries),
		WithBackoffPolicy(backoff.Policy{InitialMs: 1, MaxMs: 2, Factor: 1, JitterMs: 0}),
	)
}

func retriesOf(t *testing.T, err error) int {
	t.Helper()
	te, ok := GetTransportError(err)
	if !ok {
		t.Fatalf("expected TransportError, got %v", err)
	}
	return te.Attempts
}

func TestRequestJSONSuccess(t *testing.T) {
	var gotContentType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotContentType = r.Header.Get("Content-Type")
		w.Write([]byte(`{"answer": "ok", "n": 3}`))
	}))
	defer srv.Close()

	type reply struct {
		Answer string `json:"answer"`
		N      int    `json:"n"`
	}
	got, err := RequestJSON[reply](context.Background(), fastClient(0), srv.URL, RequestOptions{
		Body: map[string]string{"q": "ping"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Answer != "ok" || got.N != 3 {
		t.Errorf("unexpected reply: %+v", got)
	}
	if gotContentType != "application/json" {
		t.Errorf("content-type not enforced, got %q", gotContentType)
	}
}

func TestContentTypeOverridesCallerHeader(t *testing.T) {
	var gotContentType, gotCustom string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotContentType = r.Header.Get("Content-Type")
		gotCustom = r.Header.Get("X-Custom")
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	_, err := fastClient(0).DoJSON(context.Background(), srv.URL, RequestOptions{
		Headers: map[string]string{
			"Content-Type": "text/plain",
			"X-Custom":     "kept",
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotContentType != "application/json" {
		t.Errorf("expected forced application/json, got %q", gotContentType)
	}
	if gotCustom != "kept" {
		t.Errorf("caller header dropped, got %q", gotCustom)
	}
}

func TestRetryOnServerError(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`{"ok": true}`))
	}))
	defer srv.Close()

	_, err := fastClient(2).DoJSON(context.Background(), srv.URL, RequestOptions{Provider: "ollama"})
	if err != nil {
		t.Fatalf("expected recovery after retries, got %v", err)
	}
	if n := atomic.LoadInt32(&calls); n != 3 {
		t.Errorf("expected 3 calls, got %d", n)
	}
}

func TestNoRetryOnBadRequest(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error": "bad params"}`))
	}))
	defer srv.Close()

	_, err := fastClient(2).DoJSON(context.Background(), srv.URL, RequestOptions{})
	te, ok := GetTransportError(err)
	if !ok {
		t.Fatalf("expected TransportError, got %v", err)
	}
	if te.Code != models.CodeHTTPBadRequest {
		t.Errorf("expected %s, got %s", models.CodeHTTPBadRequest, te.Code)
	}
	if te.Retryable {
		t.Errorf("400 must not be retryable")
	}
	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Errorf("expected a single call, got %d", n)
	}
	if !strings.Contains(te.BodySnippet, "bad params") {
		t.Errorf("expected body snippet preserved, got %q", te.BodySnippet)
	}
}

func TestRetriesExhaustedKeepsLastError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := fastClient(2).DoJSON(context.Background(), srv.URL, RequestOptions{})
	te, ok := GetTransportError(err)
	if !ok {
		t.Fatalf("expected TransportError, got %v", err)
	}
	if te.Code != models.CodeHTTPRateLimited {
		t.Errorf("expected %s, got %s", models.CodeHTTPRateLimited, te.Code)
	}
	if te.Attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", te.Attempts)
	}
}

func TestInvalidJSONNotRetried(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Write([]byte(`<html>not json</html>`))
	}))
	defer srv.Close()

	_, err := fastClient(2).DoJSON(context.Background(), srv.URL, RequestOptions{})
	te, ok := GetTransportError(err)
	if !ok {
		t.Fatalf("expected TransportError, got %v", err)
	}
	if te.Code != models.CodeHTTPInvalidJSON {
		t.Errorf("expected %s, got %s", models.CodeHTTPInvalidJSON, te.Code)
	}
	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Errorf("invalid JSON must not retry, got %d calls", n)
	}
	if !strings.Contains(te.BodySnippet, "not json") {
		t.Errorf("expected snippet, got %q", te.BodySnippet)
	}
}

func TestBodySnippetBounded(t *testing.T) {
	big := strings.Repeat("x", 5000)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(big))
	}))
	defer srv.Close()

	_, err := fastClient(0).DoJSON(context.Background(), srv.URL, RequestOptions{})
	te, _ := GetTransportError(err)
	if te == nil {
		t.Fatalf("expected error for non-JSON body")
	}
	if len(te.BodySnippet) != 2000 {
		t.Errorf("expected 2000-char snippet, got %d", len(te.BodySnippet))
	}
}

func TestCancelledBeforeCall(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	}))
	defer srv.Close()

	_, err := fastClient(2).DoJSON(ctx, srv.URL, RequestOptions{})
	te, ok := GetTransportError(err)
	if !ok {
		t.Fatalf("expected TransportError, got %v", err)
	}
	if te.Code != models.CodeLLMCancelled {
		t.Errorf("expected %s, got %s", models.CodeLLMCancelled, te.Code)
	}
	if n := atomic.LoadInt32(&calls); n != 0 {
		t.Errorf("aborted context must not issue calls, got %d", n)
	}
}

func TestCancelledMidRequest(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := fastClient(2).DoJSON(ctx, srv.URL, RequestOptions{})
	if code := CodeOf(err); code != models.CodeLLMCancelled {
		t.Errorf("expected %s, got %s (%v)", models.CodeLLMCancelled, code, err)
	}
	if IsRetryable(err) {
		t.Errorf("cancellation must not be retryable")
	}
}

func TestPerAttemptTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	_, err := fastClient(0).DoJSON(context.Background(), srv.URL, RequestOptions{
		Timeout: 30 * time.Millisecond,
	})
	te, ok := GetTransportError(err)
	if !ok {
		t.Fatalf("expected TransportError, got %v", err)
	}
	if te.Code != models.CodeHTTPTimeout {
		t.Errorf("expected %s, got %s", models.CodeHTTPTimeout, te.Code)
	}
	if !te.Retryable {
		t.Errorf("attempt timeout should be retryable")
	}
}

func TestConnectionFailure(t *testing.T) {
	// Port from a just-closed listener: connection refused.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, err := fastClient(0).DoJSON(context.Background(), url, RequestOptions{})
	te, ok := GetTransportError(err)
	if !ok {
		t.Fatalf("expected TransportError, got %v", err)
	}
	if te.Code != models.CodeHTTPConnectionFailed && te.Code != models.CodeHTTPTimeout {
		t.Errorf("expected connection failure classification, got %s", te.Code)
	}
	if !te.Retryable {
		t.Errorf("connection failures should be retryable")
	}
}

func TestStatusClassification(t *testing.T) {
	tests := []struct {
		status    int
		code      string
		retryable bool
	}{
		{400, models.CodeHTTPBadRequest, false},
		{401, models.CodeHTTPUnauthorized, false},
		{403, models.CodeHTTPForbidden, false},
		{404, models.CodeHTTPNotFound, false},
		{429, models.CodeHTTPRateLimited, true},
		{500, models.CodeHTTPServerError, true},
		{503, models.CodeHTTPServerError, true},
		{408, models.CodeHTTPBadStatus, true},
		{409, models.CodeHTTPBadStatus, true},
		{402, models.CodeHTTPBadStatus, false},
		{302, models.CodeHTTPBadStatus, false},
	}
	for _, tt := range tests {
		code, retryable := ClassifyStatus(tt.status)
		if code != tt.code || retryable != tt.retryable {
			t.Errorf("ClassifyStatus(%d) = (%s, %v), want (%s, %v)",
				tt.status, code, retryable, tt.code, tt.retryable)
		}
	}
}

func TestTransportErrorUnwrap(t *testing.T) {
	cause := errors.New("root cause")
	te := NewTransportError(models.CodeHTTPConnectionFailed, "boom").WithCause(cause)
	if !errors.Is(te, cause) {
		t.Errorf("expected errors.Is to reach the cause")
	}
}
