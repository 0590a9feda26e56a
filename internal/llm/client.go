package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/spanexx/ACTA-sub001/internal/backoff"
	"github.com/spanexx/ACTA-sub001/internal/observability"
	"github.com/spanexx/ACTA-sub001/pkg/models"
)

const (
	// DefaultTimeout bounds a single request attempt.
	DefaultTimeout = 30 * time.Second

	// DefaultRetries is the retry budget for retryable errors. Tests pass
	// WithRetries(0) so suites never sit through backoff sleeps.
	DefaultRetries = 2
)

// Client is a JSON-over-HTTP client with per-attempt timeouts, taxonomy-aware
// retries, and URL scrubbing on every debug surface. All provider adapters
// that speak plain HTTP go through it.
type Client struct {
	httpClient *http.Client
	logger     *observability.Logger
	metrics    *observability.Metrics
	policy     backoff.Policy
	retries    int
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = hc }
}

// WithLogger attaches a structured logger.
func WithLogger(l *observability.Logger) ClientOption {
	return func(c *Client) { c.logger = l }
}

// WithMetrics attaches runtime metrics.
func WithMetrics(m *observability.Metrics) ClientOption {
	return func(c *Client) { c.metrics = m }
}

// WithRetries overrides the default retry budget.
func WithRetries(n int) ClientOption {
	return func(c *Client) { c.retries = n }
}

// WithBackoffPolicy overrides the retry sleep schedule.
func WithBackoffPolicy(p backoff.Policy) ClientOption {
	return func(c *Client) { c.policy = p }
}

// NewClient creates a Client with the default timeout, retry budget, and
// backoff schedule.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		httpClient: &http.Client{},
		policy:     backoff.DefaultPolicy(),
		retries:    DefaultRetries,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RequestOptions configures a single logical request (which may span
// multiple attempts).
type RequestOptions struct {
	// Method defaults to POST.
	Method string

	// Headers pass through unchanged, except Content-Type which is always
	// forced to application/json.
	Headers map[string]string

	// Body is marshaled to JSON when non-nil.
	Body any

	// Timeout bounds each attempt; defaults to DefaultTimeout.
	Timeout time.Duration

	// Retries overrides the client's budget for this request.
	Retries *int

	// Provider labels metrics and log lines.
	Provider string

	// RequestID correlates log lines across attempts.
	RequestID string
}

// DoJSON performs the request, retrying errors the taxonomy marks retryable,
// and returns the raw JSON body of the first successful attempt. The
// returned error is always a *TransportError with a stable wire code.
func (c *Client) DoJSON(ctx context.Context, rawURL string, opts RequestOptions) (json.RawMessage, error) {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	retries := c.retries
	if opts.Retries != nil {
		retries = *opts.Retries
	}
	if retries < 0 {
		retries = 0
	}

	var bodyBytes []byte
	if opts.Body != nil {
		b, err := json.Marshal(opts.Body)
		if err != nil {
			return nil, NewTransportError(models.CodeLLMUnknown, "marshal request body").
				WithProvider(opts.Provider).WithCause(err)
		}
		bodyBytes = b
	}

	start := time.Now()
	attempts := retries + 1

	var lastErr *TransportError
	for attempt := 0; attempt < attempts; attempt++ {
		if ctx.Err() != nil {
			lastErr = c.cancelled(ctx, rawURL, opts, attempt)
			break
		}

		raw, err := c.attempt(ctx, rawURL, bodyBytes, timeout, opts)
		if err == nil {
			c.record(opts.Provider, "success", start)
			return raw, nil
		}
		lastErr = err
		lastErr.Attempts = attempt + 1

		if !err.Retryable || attempt == attempts-1 {
			break
		}

		if c.logger != nil {
			c.logger.Warn(ctx, "llm request retrying",
				"provider", opts.Provider,
				"url", ScrubURL(rawURL),
				"code", err.Code,
				"attempt", attempt+1,
				"request_id", opts.RequestID,
			)
		}
		if serr := backoff.Sleep(ctx, c.policy, attempt); serr != nil {
			lastErr = c.cancelled(ctx, rawURL, opts, attempt+1)
			break
		}
	}

	c.record(opts.Provider, "error", start)
	return nil, lastErr
}

// attempt executes one HTTP round trip under a per-attempt deadline.
func (c *Client) attempt(ctx context.Context, rawURL string, body []byte, timeout time.Duration, opts RequestOptions) (json.RawMessage, *TransportError) {
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	method := opts.Method
	if method == "" {
		method = http.MethodPost
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(attemptCtx, method, rawURL, reader)
	if err != nil {
		return nil, NewTransportError(models.CodeHTTPConnectionFailed, "build request").
			WithProvider(opts.Provider).WithURL(rawURL).WithCause(err)
	}

	for k, v := range opts.Headers {
		req.Header.Set(k, v)
	}
	// Forced after caller headers so it always wins.
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		code, retryable := ClassifyTransport(err, ctx.Err() != nil)
		return nil, &TransportError{
			Code:      code,
			Provider:  opts.Provider,
			URL:       ScrubURL(rawURL),
			Message:   err.Error(),
			Retryable: retryable,
			Cause:     err,
		}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		code, retryable := ClassifyTransport(err, ctx.Err() != nil)
		return nil, &TransportError{
			Code:      code,
			Provider:  opts.Provider,
			Status:    resp.StatusCode,
			URL:       ScrubURL(rawURL),
			Message:   "read response body: " + err.Error(),
			Retryable: retryable,
			Cause:     err,
		}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		code, retryable := ClassifyStatus(resp.StatusCode)
		return nil, &TransportError{
			Code:        code,
			Provider:    opts.Provider,
			Status:      resp.StatusCode,
			URL:         ScrubURL(rawURL),
			Message:     http.StatusText(resp.StatusCode),
			BodySnippet: Snippet(string(data)),
			Retryable:   retryable,
		}
	}

	if !json.Valid(data) {
		return nil, &TransportError{
			Code:        models.CodeHTTPInvalidJSON,
			Provider:    opts.Provider,
			Status:      resp.StatusCode,
			URL:         ScrubURL(rawURL),
			Message:     "response is not valid JSON",
			BodySnippet: Snippet(string(data)),
			Retryable:   false,
		}
	}

	return json.RawMessage(data), nil
}

func (c *Client) cancelled(ctx context.Context, rawURL string, opts RequestOptions, attempts int) *TransportError {
	return &TransportError{
		Code:      models.CodeLLMCancelled,
		Provider:  opts.Provider,
		URL:       ScrubURL(rawURL),
		Message:   "request cancelled",
		Retryable: false,
		Attempts:  attempts,
		Cause:     ctx.Err(),
	}
}

func (c *Client) record(provider, status string, start time.Time) {
	if c.metrics == nil || provider == "" {
		return
	}
	c.metrics.RecordLLMRequest(provider, status, time.Since(start).Seconds())
}

// RequestJSON performs the request and unmarshals the response into T.
// Unmarshal failures surface as http.invalid_json with a body snippet.
func RequestJSON[T any](ctx context.Context, c *Client, rawURL string, opts RequestOptions) (T, error) {
	var out T
	raw, err := c.DoJSON(ctx, rawURL, opts)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, &TransportError{
			Code:        models.CodeHTTPInvalidJSON,
			Provider:    opts.Provider,
			URL:         ScrubURL(rawURL),
			Message:     "decode response: " + err.Error(),
			BodySnippet: Snippet(string(raw)),
			Retryable:   false,
			Cause:       err,
		}
	}
	return out, nil
}
