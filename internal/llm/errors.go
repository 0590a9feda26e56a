// Package llm provides the provider-facing layer of the runtime: a retrying
// JSON-over-HTTP client, a structured transport error taxonomy with stable
// wire codes, and the router that binds profile LLM settings to a concrete
// provider adapter.
package llm

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/spanexx/ACTA-sub001/pkg/models"
)

// TransportError is a structured error from the LLM transport layer. It
// carries the stable wire code surfaced to the UI, retry metadata for the
// client loop, and scrubbed debug context.
type TransportError struct {
	// Code is one of the stable http.* / llm.* wire codes.
	Code string

	// Provider names the adapter that produced the error, when known.
	Provider string

	// Status is the HTTP status code, if the request got that far.
	Status int

	// URL is the request URL with sensitive query parameters scrubbed.
	URL string

	// Message is the human-readable error message.
	Message string

	// BodySnippet preserves up to 2000 characters of the response body
	// for debugging parse failures.
	BodySnippet string

	// Retryable marks errors the client loop may retry.
	Retryable bool

	// Attempts is the number of attempts made before giving up.
	Attempts int

	// Cause is the underlying error.
	Cause error
}

// Error implements the error interface.
func (e *TransportError) Error() string {
	var parts []string

	parts = append(parts, fmt.Sprintf("[%s]", e.Code))

	if e.Provider != "" {
		parts = append(parts, e.Provider)
	}

	if e.Status != 0 {
		parts = append(parts, fmt.Sprintf("status=%d", e.Status))
	}

	if e.URL != "" {
		parts = append(parts, fmt.Sprintf("url=%s", e.URL))
	}

	if e.Message != "" {
		parts = append(parts, e.Message)
	} else if e.Cause != nil {
		parts = append(parts, e.Cause.Error())
	}

	return strings.Join(parts, " ")
}

// Unwrap returns the underlying error.
func (e *TransportError) Unwrap() error {
	return e.Cause
}

// NewTransportError creates a TransportError with the given code.
func NewTransportError(code, message string) *TransportError {
	return &TransportError{Code: code, Message: message}
}

// WithProvider attaches the provider name.
func (e *TransportError) WithProvider(provider string) *TransportError {
	e.Provider = provider
	return e
}

// WithStatus attaches the HTTP status and reclassifies code and
// retryability from it.
func (e *TransportError) WithStatus(status int) *TransportError {
	e.Status = status
	e.Code, e.Retryable = ClassifyStatus(status)
	return e
}

// WithURL attaches a scrubbed request URL.
func (e *TransportError) WithURL(rawURL string) *TransportError {
	e.URL = ScrubURL(rawURL)
	return e
}

// WithCause attaches the underlying error.
func (e *TransportError) WithCause(cause error) *TransportError {
	e.Cause = cause
	return e
}

// WithSnippet preserves a bounded body snippet for debugging.
func (e *TransportError) WithSnippet(body string) *TransportError {
	e.BodySnippet = Snippet(body)
	return e
}

// Snippet bounds a response body to 2000 characters for debug fields.
func Snippet(body string) string {
	const maxSnippet = 2000
	if len(body) > maxSnippet {
		return body[:maxSnippet]
	}
	return body
}

// ClassifyStatus maps a non-2xx HTTP status to its wire code and
// retryability. Rate limits and server errors are retryable; in the
// unmapped 4xx range only 408..499 are considered transient.
func ClassifyStatus(status int) (code string, retryable bool) {
	switch {
	case status == http.StatusBadRequest:
		return models.CodeHTTPBadRequest, false
	case status == http.StatusUnauthorized:
		return models.CodeHTTPUnauthorized, false
	case status == http.StatusForbidden:
		return models.CodeHTTPForbidden, false
	case status == http.StatusNotFound:
		return models.CodeHTTPNotFound, false
	case status == http.StatusTooManyRequests:
		return models.CodeHTTPRateLimited, true
	case status >= 500:
		return models.CodeHTTPServerError, true
	default:
		return models.CodeHTTPBadStatus, status >= 408 && status <= 499
	}
}

// ClassifyTransport maps a transport-level failure (no HTTP response) to its
// wire code and retryability. Cancellation is never retried; anything that
// reads like a timeout is; remaining failures count as connection errors.
func ClassifyTransport(err error, cancelled bool) (code string, retryable bool) {
	if cancelled {
		return models.CodeLLMCancelled, false
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "timeout") ||
		strings.Contains(msg, "timed out") ||
		strings.Contains(msg, "etimedout") ||
		strings.Contains(msg, "deadline exceeded") {
		return models.CodeHTTPTimeout, true
	}
	return models.CodeHTTPConnectionFailed, true
}

// ClassifyMessage maps an error message with no usable status code to a wire
// code, using the same substring heuristics providers print in practice.
// Used for SDK errors that hide their HTTP response.
func ClassifyMessage(msg string) (code string, retryable bool) {
	lower := strings.ToLower(msg)

	switch {
	case strings.Contains(lower, "timeout") ||
		strings.Contains(lower, "timed out") ||
		strings.Contains(lower, "etimedout") ||
		strings.Contains(lower, "deadline exceeded"):
		return models.CodeHTTPTimeout, true
	case strings.Contains(lower, "rate limit") ||
		strings.Contains(lower, "rate_limit") ||
		strings.Contains(lower, "too many requests") ||
		strings.Contains(lower, "429"):
		return models.CodeHTTPRateLimited, true
	case strings.Contains(lower, "unauthorized") ||
		strings.Contains(lower, "invalid api key") ||
		strings.Contains(lower, "invalid_api_key") ||
		strings.Contains(lower, "authentication") ||
		strings.Contains(lower, "401"):
		return models.CodeHTTPUnauthorized, false
	case strings.Contains(lower, "forbidden") ||
		strings.Contains(lower, "403"):
		return models.CodeHTTPForbidden, false
	case strings.Contains(lower, "model not found") ||
		strings.Contains(lower, "model_not_found") ||
		strings.Contains(lower, "does not exist"):
		return models.CodeLLMModelNotFound, false
	case strings.Contains(lower, "internal server") ||
		strings.Contains(lower, "server error") ||
		strings.Contains(lower, "500") ||
		strings.Contains(lower, "502") ||
		strings.Contains(lower, "503") ||
		strings.Contains(lower, "504"):
		return models.CodeHTTPServerError, true
	case strings.Contains(lower, "connection refused") ||
		strings.Contains(lower, "connection reset") ||
		strings.Contains(lower, "no such host"):
		return models.CodeHTTPConnectionFailed, true
	default:
		return models.CodeLLMUnknown, false
	}
}

// IsTransportError checks if an error is a TransportError.
func IsTransportError(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// GetTransportError extracts a TransportError from an error chain.
func GetTransportError(err error) (*TransportError, bool) {
	var te *TransportError
	if errors.As(err, &te) {
		return te, true
	}
	return nil, false
}

// IsRetryable reports whether an error should be retried by the client loop.
func IsRetryable(err error) bool {
	if te, ok := GetTransportError(err); ok {
		return te.Retryable
	}
	return false
}

// CodeOf returns the stable wire code of an error, falling back to
// llm.unknown for errors outside the taxonomy.
func CodeOf(err error) string {
	if te, ok := GetTransportError(err); ok {
		return te.Code
	}
	return models.CodeLLMUnknown
}
