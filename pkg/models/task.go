package models

import (
	"encoding/json"
	"fmt"
)

// Input limits enforced at the IPC boundary before a task is accepted.
const (
	// MaxTaskInputLen caps the task.request input string.
	MaxTaskInputLen = 20000
	// MaxContextFiles caps how many files a request may attach as context.
	MaxContextFiles = 50
	// MaxContextFileLen caps each context file excerpt.
	MaxContextFileLen = 500
)

// RuntimeTask is the unit of work the agent service runs. At most one task
// is running process-wide at any moment.
type RuntimeTask struct {
	TaskID        string   `json:"taskId"`
	CorrelationID string   `json:"correlationId"`
	ProfileID     string   `json:"profileId"`
	Input         string   `json:"input"`
	Attachments   []string `json:"attachments,omitempty"`
}

// TaskContext is optional ambient context the UI attaches to a request.
type TaskContext struct {
	Files     []string        `json:"files,omitempty"`
	Screen    *ContextCapture `json:"screen,omitempty"`
	Clipboard *ContextCapture `json:"clipboard,omitempty"`
}

// ContextCapture is one ambient-context slot on task.request. The UI either
// inlines content it already captured as a string, or sends boolean true to
// ask the daemon to capture the source itself.
type ContextCapture struct {
	// Requested is set when the UI sent boolean true.
	Requested bool
	// Content is inline content supplied by the UI.
	Content string
}

func (c *ContextCapture) UnmarshalJSON(data []byte) error {
	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		*c = ContextCapture{Requested: b}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*c = ContextCapture{Content: s}
		return nil
	}
	return fmt.Errorf("context capture must be a boolean or a string")
}

func (c ContextCapture) MarshalJSON() ([]byte, error) {
	if c.Content != "" {
		return json.Marshal(c.Content)
	}
	return json.Marshal(c.Requested)
}

// TaskRequestPayload is the body of task.request messages.
type TaskRequestPayload struct {
	Input   string       `json:"input"`
	Context *TaskContext `json:"context,omitempty"`
	// TrustLevel optionally overrides the profile default for this task.
	TrustLevel *TrustLevel `json:"trustLevel,omitempty"`
}

// TaskStopPayload is the body of task.stop messages. An empty correlation ID
// stops whatever task is running.
type TaskStopPayload struct {
	CorrelationID string `json:"correlationId,omitempty"`
}

// StepStatus tracks a plan step through execution.
type StepStatus string

const (
	StepInProgress StepStatus = "in-progress"
	StepCompleted  StepStatus = "completed"
	StepFailed     StepStatus = "failed"
)

// TaskPlanPayload is the body of task.plan events, announcing the accepted
// plan before execution begins.
type TaskPlanPayload struct {
	TaskID string     `json:"taskId"`
	Plan   *AgentPlan `json:"plan"`
}

// TaskStepPayload is the body of task.step events. One in-progress event and
// exactly one terminal event are emitted per started step.
type TaskStepPayload struct {
	TaskID      string     `json:"taskId"`
	StepID      string     `json:"stepId"`
	Index       int        `json:"index"`
	Tool        string     `json:"tool"`
	Status      StepStatus `json:"status"`
	StartedAt   int64      `json:"startedAt,omitempty"`
	CompletedAt int64      `json:"completedAt,omitempty"`
	Error       string     `json:"error,omitempty"`
}

// TaskResultPayload is the body of the terminal task.result event.
type TaskResultPayload struct {
	TaskID    string   `json:"taskId"`
	Success   bool     `json:"success"`
	Report    string   `json:"report"`
	Artifacts []string `json:"artifacts,omitempty"`
	Cancelled bool     `json:"cancelled,omitempty"`
}

// TaskErrorPayload is the body of task.error events.
type TaskErrorPayload struct {
	TaskID  string         `json:"taskId"`
	Code    string         `json:"code"`
	Message string         `json:"message"`
	StepID  string         `json:"stepId,omitempty"`
	Details map[string]any `json:"details,omitempty"`
}

// ChatRequestPayload is the body of chat.request messages: a single-turn
// completion without planning or tools.
type ChatRequestPayload struct {
	Input string `json:"input"`
}

// ChatResponsePayload is the body of chat.response messages.
type ChatResponsePayload struct {
	Text  string `json:"text"`
	Model string `json:"model,omitempty"`
}

// ChatErrorPayload is the body of chat.error messages.
type ChatErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// HealthCheckPayload is the body of llm.healthCheck requests. With no
// overrides the active profile's provider is probed.
type HealthCheckPayload struct {
	ProfileID string       `json:"profileId,omitempty"`
	LLM       *LLMSettings `json:"llm,omitempty"`
}

// HealthCheckResult is the body of llm.healthCheck responses.
type HealthCheckResult struct {
	OK     bool       `json:"ok"`
	Models []string   `json:"models,omitempty"`
	Error  *WireError `json:"error,omitempty"`
}

// WireError is the generic error body used inside response payloads.
type WireError struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

// MemoryWritePayload is the body of memory.write messages.
type MemoryWritePayload struct {
	Text string `json:"text"`
}

// MemoryReadResult is the body of memory.read responses.
type MemoryReadResult struct {
	Text    string `json:"text"`
	Entries int    `json:"entries"`
}
