package models

// Stable error codes surfaced on the wire in task.error, chat.error, and
// health check payloads. Codes are part of the external contract; UIs match
// on them.
const (
	CodeTaskBusy            = "task.busy"
	CodeTaskInvalidInput    = "task.invalid_input"
	CodeTaskInputTooLong    = "task.input_too_long"
	CodeTaskPlanFailed      = "task.plan_failed"
	CodeTaskSafetyViolation = "task.safety_violation"

	CodePermissionDenied = "permission.denied"

	CodeToolNotFound  = "tool.not_found"
	CodeToolFailed    = "tool.failed"
	CodeToolException = "tool.exception"

	CodeLLMMisconfigured = "llm.misconfigured"
	CodeLLMCancelled     = "llm.cancelled"
	CodeLLMModelNotFound = "llm.model_not_found"
	CodeLLMUnknown       = "llm.unknown"

	CodeHTTPTimeout          = "http.timeout"
	CodeHTTPConnectionFailed = "http.connection_failed"
	CodeHTTPRateLimited      = "http.rate_limited"
	CodeHTTPUnauthorized     = "http.unauthorized"
	CodeHTTPForbidden        = "http.forbidden"
	CodeHTTPNotFound         = "http.not_found"
	CodeHTTPBadRequest       = "http.bad_request"
	CodeHTTPServerError      = "http.server_error"
	CodeHTTPBadStatus        = "http.bad_status"
	CodeHTTPInvalidJSON      = "http.invalid_json"

	CodeIPCInvalidPayload = "ipc.invalid_payload"

	CodeChatInvalidInput = "chat.invalid_input"
	CodeChatInputTooLong = "chat.input_too_long"
)
